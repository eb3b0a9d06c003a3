package domain

import "time"

// SourceClass is the resolver's classification of a submitted URL.
type SourceClass string

const (
	// SourceDirect is a link that can be fetched as-is.
	SourceDirect SourceClass = "direct"
	// SourceCloudPublic is a cloud-storage share link that must be exchanged
	// for a direct download href before fetching.
	SourceCloudPublic SourceClass = "cloud-public"
	// SourceNeedsExtractor is anything the fetcher cannot handle directly;
	// the external extraction tool is the only option.
	SourceNeedsExtractor SourceClass = "needs-extractor"
)

// Origin tags where the bytes of a FetchedMedia actually came from.
const (
	OriginDirect    = "direct"
	OriginCloud     = "cloud"
	OriginExtractor = "extractor"
	OriginUpload    = "upload"
)

// RetrievalRequest is one caller's request to turn a video into an audio
// file. Exactly one of URL or UploadPath must be set. The request is
// immutable once submitted and owned by a single in-flight job.
type RetrievalRequest struct {
	URL        string
	UploadPath string
	CallerID   string
	// SizeCeiling is the hard byte limit for the payload. Zero means the
	// orchestrator's configured default applies.
	SizeCeiling int64
}

// ResolvedSource is the resolver's output: a fetchable location plus
// inferred metadata. It is consumed exactly once, by the fetcher or the
// extractor.
type ResolvedSource struct {
	FetchURL    string
	DisplayName string
	Class       SourceClass
}

// FetchedMedia is a downloaded payload sitting in the job's workspace.
// The job owns it until the transcoder consumes it or cleanup removes it.
type FetchedMedia struct {
	Path      string
	SizeBytes int64
	Origin    string
}

// TranscodeResult is the encoder's output, handed to the caller for
// delivery and removed by the job's cleanup phase afterwards.
type TranscodeResult struct {
	OutputPath string
	Format     string
	SizeBytes  int64
	Duration   time.Duration
}

// JobState tracks one request through the pipeline. Transitions are
// strictly forward, except that any non-terminal state may move to
// Failed or Cancelled.
type JobState string

const (
	JobStatePending     JobState = "pending"
	JobStateResolving   JobState = "resolving"
	JobStateFetching    JobState = "fetching"
	JobStateTranscoding JobState = "transcoding"
	JobStateDelivering  JobState = "delivering"
	JobStateSucceeded   JobState = "succeeded"
	JobStateFailed      JobState = "failed"
	JobStateCancelled   JobState = "cancelled"
)

// IsTerminal reports whether a state ends the job. Terminal states
// trigger artifact cleanup exactly once.
func (s JobState) IsTerminal() bool {
	switch s {
	case JobStateSucceeded, JobStateFailed, JobStateCancelled:
		return true
	default:
		return false
	}
}

// ValidTransition enforces the allowed job state machine edges.
func ValidTransition(from, to JobState) bool {
	if from.IsTerminal() {
		return false
	}
	if to == JobStateFailed || to == JobStateCancelled {
		return true
	}
	switch from {
	case JobStatePending:
		// Local uploads skip resolution and enter the pipeline as
		// already-fetchable media.
		return to == JobStateResolving || to == JobStateFetching
	case JobStateResolving:
		return to == JobStateFetching
	case JobStateFetching:
		return to == JobStateTranscoding
	case JobStateTranscoding:
		return to == JobStateDelivering
	case JobStateDelivering:
		return to == JobStateSucceeded
	default:
		return false
	}
}

// Stage is a semantic progress tag surfaced to the external caller. The
// chat layer owns how these are rendered.
type Stage string

const (
	StageResolving  Stage = "resolving"
	StageFetching   Stage = "fetching"
	StageExtracting Stage = "extracting"
	StageProcessing Stage = "processing"
	StageDone       Stage = "done"
)

// ProgressEvent is one entry in a job's finite, ordered progress stream.
type ProgressEvent struct {
	JobID     string
	Stage     Stage
	Timestamp time.Time
}
