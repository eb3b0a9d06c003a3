package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"audiopipe/internal/core/domain"
	"audiopipe/internal/core/ports"
)

// Options is the orchestrator's configuration surface: concurrency
// limit, payload ceiling, encoder parameters, and per-phase timeouts.
type Options struct {
	MaxWorkers   int
	SizeCeiling  int64
	AudioFormat  string
	AudioBitrate string

	ResolveTimeout   time.Duration
	FetchTimeout     time.Duration
	ExtractTimeout   time.Duration
	TranscodeTimeout time.Duration

	// DeliveryGrace bounds how long a delivered result is kept on disk
	// waiting for the caller's acknowledgement.
	DeliveryGrace time.Duration
}

// Orchestrator drives each request through resolve, fetch (or extractor
// fallback), and transcode, under a process-wide worker limit. It is the
// only layer that translates one component's failure into a fallback
// attempt at another, and the only layer that decides a failure is
// terminal.
type Orchestrator struct {
	resolver   ports.Resolver
	fetcher    ports.Fetcher
	extractor  ports.Extractor
	transcoder ports.Transcoder
	workspace  ports.Workspace
	opts       Options
	logger     zerolog.Logger

	slots chan struct{}

	mu       sync.Mutex
	inflight map[string]struct{}
}

// New creates an Orchestrator.
func New(
	resolver ports.Resolver,
	fetcher ports.Fetcher,
	extractor ports.Extractor,
	transcoder ports.Transcoder,
	workspace ports.Workspace,
	opts Options,
	logger zerolog.Logger,
) *Orchestrator {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = 1
	}
	if opts.AudioFormat == "" {
		opts.AudioFormat = "mp3"
	}
	if opts.AudioBitrate == "" {
		opts.AudioBitrate = "192k"
	}
	if opts.DeliveryGrace <= 0 {
		opts.DeliveryGrace = time.Minute
	}
	return &Orchestrator{
		resolver:   resolver,
		fetcher:    fetcher,
		extractor:  extractor,
		transcoder: transcoder,
		workspace:  workspace,
		opts:       opts,
		logger:     logger,
		slots:      make(chan struct{}, opts.MaxWorkers),
		inflight:   make(map[string]struct{}),
	}
}

// JobHandle is the caller's view of one in-flight job: an ordered
// progress stream and a final result. The events channel is closed once
// the job reaches a terminal outcome.
type JobHandle struct {
	ID string

	events chan domain.ProgressEvent
	done   chan struct{}
	ack    chan struct{}

	ackOnce sync.Once
	result  domain.TranscodeResult
	err     error

	stateMu sync.Mutex
	state   domain.JobState
	logger  zerolog.Logger
}

// Events returns the job's progress stream. Slow consumers lose events
// rather than stalling the job.
func (h *JobHandle) Events() <-chan domain.ProgressEvent { return h.events }

// Wait blocks until the job finishes or ctx is done, then returns the
// result or the job's typed error.
func (h *JobHandle) Wait(ctx context.Context) (domain.TranscodeResult, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return domain.TranscodeResult{}, ctx.Err()
	}
}

// Acknowledge tells the pipeline the result file has been delivered and
// may be removed. Without it, cleanup happens after the delivery grace
// period.
func (h *JobHandle) Acknowledge() {
	h.ackOnce.Do(func() { close(h.ack) })
}

// State returns the job's current state.
func (h *JobHandle) State() domain.JobState {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	return h.state
}

// emit appends one progress event without ever blocking the job.
func (h *JobHandle) emit(stage domain.Stage) {
	event := domain.ProgressEvent{JobID: h.ID, Stage: stage, Timestamp: time.Now().UTC()}
	select {
	case h.events <- event:
	default:
		h.logger.Debug().Str("stage", string(stage)).Msg("progress event dropped, subscriber not keeping up")
	}
}

// transition applies a validated state change. A rejected transition is
// a logic bug, logged rather than propagated.
func (h *JobHandle) transition(to domain.JobState) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()
	if !domain.ValidTransition(h.state, to) {
		h.logger.Error().
			Str("from", string(h.state)).
			Str("to", string(to)).
			Msg("invalid job state transition")
		return
	}
	h.state = to
	h.logger.Debug().Str("state", string(to)).Msg("job state changed")
}

// Submit accepts one request and starts its job. A caller with a job
// already in flight gets ErrCallerBusy; everyone else gets a handle and
// a FIFO place in line for a worker slot.
func (o *Orchestrator) Submit(ctx context.Context, req domain.RetrievalRequest) (*JobHandle, error) {
	if req.URL == "" && req.UploadPath == "" {
		return nil, fmt.Errorf("retrieval request needs a URL or an upload path")
	}

	if req.CallerID != "" {
		o.mu.Lock()
		if _, busy := o.inflight[req.CallerID]; busy {
			o.mu.Unlock()
			return nil, domain.ErrCallerBusy
		}
		o.inflight[req.CallerID] = struct{}{}
		o.mu.Unlock()
	}

	id := uuid.New().String()
	h := &JobHandle{
		ID:     id,
		events: make(chan domain.ProgressEvent, 16),
		done:   make(chan struct{}),
		ack:    make(chan struct{}),
		state:  domain.JobStatePending,
		logger: o.logger.With().Str("job", id).Logger(),
	}

	go o.run(ctx, req, h)
	return h, nil
}

// run executes one job to completion and settles its handle.
func (o *Orchestrator) run(ctx context.Context, req domain.RetrievalRequest, h *JobHandle) {
	defer o.releaseCaller(req.CallerID)

	result, err := o.execute(ctx, req, h)
	if err != nil {
		if errors.Is(err, domain.ErrCancelled) {
			h.transition(domain.JobStateCancelled)
		} else {
			h.transition(domain.JobStateFailed)
		}
		h.logger.Warn().Err(err).Msg("job finished with error")
		h.emit(errorStage(err))
		h.err = err
	} else {
		h.logger.Info().Str("output", result.OutputPath).Int64("bytes", result.SizeBytes).Msg("job succeeded")
		h.result = result
	}
	close(h.events)
	close(h.done)
}

// execute drives the pipeline phases for one job. It returns the
// transcode result or a typed error from the taxonomy; all temporary
// artifacts are cleaned up on every path except the success path, whose
// output survives until delivery is acknowledged.
func (o *Orchestrator) execute(ctx context.Context, req domain.RetrievalRequest, h *JobHandle) (domain.TranscodeResult, error) {
	// FIFO admission: blocked senders on the slot channel are served in
	// arrival order.
	select {
	case o.slots <- struct{}{}:
	case <-ctx.Done():
		return domain.TranscodeResult{}, cancelErr(ctx)
	}
	defer func() { <-o.slots }()

	ceiling := req.SizeCeiling
	if ceiling <= 0 {
		ceiling = o.opts.SizeCeiling
	}

	jobDir, err := o.workspace.Init(h.ID)
	if err != nil {
		return domain.TranscodeResult{}, &domain.InternalError{Err: err}
	}
	delivered := false
	defer func() {
		if delivered {
			return
		}
		if err := o.workspace.Remove(h.ID); err != nil {
			h.logger.Warn().Err(err).Msg("workspace cleanup failed")
		}
	}()

	media, err := o.obtainMedia(ctx, req, h, jobDir, ceiling)
	if err != nil {
		return domain.TranscodeResult{}, err
	}
	if media.Origin != domain.OriginUpload {
		// The job owns the fetched payload; it goes away on every
		// terminal outcome. Uploads belong to the caller.
		defer func() {
			if err := os.Remove(media.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
				h.logger.Warn().Err(err).Msg("fetched media cleanup failed")
			}
		}()
	}

	// Cancellation checkpoint between retrieval and transcode.
	if ctx.Err() != nil {
		return domain.TranscodeResult{}, cancelErr(ctx)
	}

	h.transition(domain.JobStateTranscoding)
	result, err := o.transcoder.Transcode(ctx, ports.TranscodeRequest{
		InputPath:  media.Path,
		OutputDir:  jobDir,
		Format:     o.opts.AudioFormat,
		Bitrate:    o.opts.AudioBitrate,
		Timeout:    o.opts.TranscodeTimeout,
		OnProgress: h.emit,
	})
	if err != nil {
		return domain.TranscodeResult{}, err
	}

	// The ceiling is a user-facing constraint on what gets delivered,
	// so the encoder's output is held to it too.
	if ceiling > 0 && result.SizeBytes > ceiling {
		return domain.TranscodeResult{}, fmt.Errorf("transcoded output: %w", domain.ErrTooLarge)
	}

	h.transition(domain.JobStateDelivering)
	delivered = true
	go o.finalize(h)
	return result, nil
}

// obtainMedia lands the payload in the job directory: straight from a
// local upload, via the fetcher for direct and cloud-public sources, or
// through the extractor fallback. TooLarge never falls back.
func (o *Orchestrator) obtainMedia(ctx context.Context, req domain.RetrievalRequest, h *JobHandle, jobDir string, ceiling int64) (domain.FetchedMedia, error) {
	if req.UploadPath != "" {
		h.transition(domain.JobStateFetching)
		info, err := os.Stat(req.UploadPath)
		if err != nil {
			return domain.FetchedMedia{}, &domain.InternalError{Err: err}
		}
		if ceiling > 0 && info.Size() > ceiling {
			return domain.FetchedMedia{}, &domain.FetchError{Kind: domain.ErrTooLarge}
		}
		return domain.FetchedMedia{Path: req.UploadPath, SizeBytes: info.Size(), Origin: domain.OriginUpload}, nil
	}

	h.transition(domain.JobStateResolving)
	h.emit(domain.StageResolving)

	rctx, cancel := phaseContext(ctx, o.opts.ResolveTimeout)
	src, rerr := o.resolver.Resolve(rctx, req.URL)
	cancel()
	if ctx.Err() != nil {
		return domain.FetchedMedia{}, cancelErr(ctx)
	}

	needExtractor := false
	switch {
	case rerr != nil:
		// Resolution failure is a fallback signal, not a terminal one.
		h.logger.Warn().Err(rerr).Msg("resolution failed, falling back to extractor")
		needExtractor = true
	case src.Class == domain.SourceNeedsExtractor:
		needExtractor = true
	}

	h.transition(domain.JobStateFetching)
	if !needExtractor {
		h.emit(domain.StageFetching)
		fctx, cancel := phaseContext(ctx, o.opts.FetchTimeout)
		media, ferr := o.fetcher.Fetch(fctx, src, filepath.Join(jobDir, "source.bin"), ceiling)
		cancel()
		if ferr == nil {
			return media, nil
		}
		if errors.Is(ferr, domain.ErrTooLarge) {
			return domain.FetchedMedia{}, ferr
		}
		if ctx.Err() != nil {
			return domain.FetchedMedia{}, cancelErr(ctx)
		}
		h.logger.Warn().Err(ferr).Msg("fetch failed, falling back to extractor")
	}

	h.emit(domain.StageExtracting)
	xctx, cancel := phaseContext(ctx, o.opts.ExtractTimeout)
	media, xerr := o.extractor.Extract(xctx, req.URL, filepath.Join(jobDir, "source.mp4"), ceiling)
	cancel()
	if xerr != nil {
		if ctx.Err() != nil {
			return domain.FetchedMedia{}, cancelErr(ctx)
		}
		return domain.FetchedMedia{}, xerr
	}
	return media, nil
}

// finalize removes the job's workspace once the caller acknowledges
// delivery or the grace period lapses, then settles the state machine.
func (o *Orchestrator) finalize(h *JobHandle) {
	select {
	case <-h.ack:
	case <-time.After(o.opts.DeliveryGrace):
	}
	if err := o.workspace.Remove(h.ID); err != nil {
		h.logger.Warn().Err(err).Msg("post-delivery cleanup failed")
	}
	h.transition(domain.JobStateSucceeded)
}

// releaseCaller lifts the per-caller single-flight lock.
func (o *Orchestrator) releaseCaller(callerID string) {
	if callerID == "" {
		return
	}
	o.mu.Lock()
	delete(o.inflight, callerID)
	o.mu.Unlock()
}

// phaseContext bounds one pipeline phase. Zero timeout means the parent
// context alone governs.
func phaseContext(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, timeout)
}

// cancelErr wraps the context cause into the pipeline's cancellation
// error.
func cancelErr(ctx context.Context) error {
	return fmt.Errorf("%w: %v", domain.ErrCancelled, context.Cause(ctx))
}

// errorStage maps a terminal error to the semantic tag surfaced on the
// progress stream, so the chat layer can tell which phase failed
// without seeing internals.
func errorStage(err error) domain.Stage {
	switch {
	case errors.Is(err, domain.ErrCancelled):
		return "cancelled"
	case errors.Is(err, domain.ErrTooLarge):
		return "error:too-large"
	case errors.Is(err, domain.ErrTimeout),
		errors.Is(err, domain.ErrEncodeFailure),
		errors.Is(err, domain.ErrOutputMissing):
		return "error:encode-failed"
	case errors.Is(err, domain.ErrToolFailure),
		errors.Is(err, domain.ErrBadStatus),
		errors.Is(err, domain.ErrTransport):
		return "error:source-unavailable"
	default:
		return "error:internal"
	}
}
