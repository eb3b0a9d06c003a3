package ports

import (
	"context"
	"time"

	"audiopipe/internal/core/domain"
)

// Resolver classifies a URL and produces a fetchable location. It never
// downloads content itself.
type Resolver interface {
	// Resolve returns a ResolvedSource or a *domain.ResolutionError.
	Resolve(ctx context.Context, rawURL string) (domain.ResolvedSource, error)
}

// Fetcher streams bytes from a resolved source into local storage,
// enforcing the size ceiling as it goes.
type Fetcher interface {
	// Fetch writes the payload to destPath. The partial file is removed
	// on any failure. Errors are *domain.FetchError.
	Fetch(ctx context.Context, src domain.ResolvedSource, destPath string, sizeCeiling int64) (domain.FetchedMedia, error)
}

// Extractor is the last-resort source: a general-purpose external
// video-retrieval tool run as a child process.
type Extractor interface {
	// Extract downloads the URL's media to destPath. Errors are
	// *domain.ExtractError.
	Extract(ctx context.Context, rawURL, destPath string, sizeCeiling int64) (domain.FetchedMedia, error)
}

// ProgressFunc receives heartbeat stage notifications while an external
// process runs. Implementations must not block; failures are the
// receiver's problem, never the job's.
type ProgressFunc func(stage domain.Stage)

// TranscodeRequest describes one encoder invocation.
type TranscodeRequest struct {
	InputPath string
	OutputDir string
	// Format is the target container/extension, "mp3" or "m4a".
	Format  string
	Bitrate string
	// Timeout bounds the encoder process; zero means no limit.
	Timeout    time.Duration
	OnProgress ProgressFunc
}

// Transcoder wraps the external audio encoder and manages its lifecycle:
// start, heartbeat, timeout, forced termination, output validation.
type Transcoder interface {
	// Transcode produces an audio file in req.OutputDir named after the
	// input's base name. Errors are *domain.TranscodeError.
	Transcode(ctx context.Context, req TranscodeRequest) (domain.TranscodeResult, error)
}

// Workspace hands out job-unique directories under the shared temp root
// and guarantees their removal. No job reads another job's files.
type Workspace interface {
	// Init creates the job directory and returns its path.
	Init(jobID string) (string, error)

	// Path returns the directory for a job without creating it.
	Path(jobID string) string

	// Remove deletes the job directory and everything in it.
	Remove(jobID string) error
}
