package ffmpeg

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"audiopipe/internal/core/domain"
	"audiopipe/internal/core/ports"
)

// Process is a started encoder child process. Stderr must only be read
// after Done has delivered.
type Process interface {
	Done() <-chan error
	Kill() error
	Stderr() string
}

// Starter abstracts process creation so tests can fake the encoder.
type Starter interface {
	Start(name string, args ...string) (Process, error)
}

// ExecStarter is the production Starter using os/exec.
type ExecStarter struct{}

type execProcess struct {
	cmd    *exec.Cmd
	stderr *bytes.Buffer
	done   chan error
}

// Start launches the command and begins waiting for its exit in the
// background.
func (s *ExecStarter) Start(name string, args ...string) (Process, error) {
	cmd := exec.Command(name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return nil, err
	}
	p := &execProcess{cmd: cmd, stderr: &stderr, done: make(chan error, 1)}
	go func() { p.done <- cmd.Wait() }()
	return p, nil
}

func (p *execProcess) Done() <-chan error { return p.done }

func (p *execProcess) Kill() error { return p.cmd.Process.Kill() }

func (p *execProcess) Stderr() string { return p.stderr.String() }

// Transcoder wraps the ffmpeg binary for audio-only extraction. It owns
// the process lifecycle: start, heartbeat progress, timeout, forced
// termination, and output validation.
type Transcoder struct {
	ffmpegPath string
	starter    Starter
	heartbeat  time.Duration
	killWait   time.Duration
	logger     zerolog.Logger
}

// Option configures a Transcoder.
type Option func(*Transcoder)

// WithFFmpegPath sets a custom ffmpeg executable path.
func WithFFmpegPath(path string) Option {
	return func(t *Transcoder) { t.ffmpegPath = path }
}

// WithStarter sets a custom process starter (for testing).
func WithStarter(starter Starter) Option {
	return func(t *Transcoder) { t.starter = starter }
}

// WithHeartbeatInterval sets how often processing heartbeats are
// emitted while the encoder runs.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(t *Transcoder) { t.heartbeat = d }
}

// WithLogger sets the transcoder's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(t *Transcoder) { t.logger = logger }
}

// New creates an ffmpeg-backed Transcoder.
func New(opts ...Option) *Transcoder {
	t := &Transcoder{
		ffmpegPath: "ffmpeg",
		starter:    &ExecStarter{},
		heartbeat:  500 * time.Millisecond,
		killWait:   5 * time.Second,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// codecFor maps the target container to an encoder codec.
func codecFor(format string) string {
	if format == "mp3" {
		return "libmp3lame"
	}
	return "aac"
}

// outputPath derives the deterministic output location from the input's
// base name.
func outputPath(inputPath, outputDir, format string) string {
	base := filepath.Base(inputPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	if stem == "" || stem == "." {
		stem = "audio"
	}
	return filepath.Join(outputDir, stem+"."+format)
}

// buildArgs assembles the encoder invocation: audio-only, fixed sample
// rate and channel count, requested bitrate, overwrite enabled. The
// argv is fully determined by its inputs so repeated runs are
// reproducible.
func buildArgs(inputPath, outPath, format, bitrate string) []string {
	return []string{
		"-y",
		"-hide_banner",
		"-nostdin",
		"-i", inputPath,
		"-vn",
		"-acodec", codecFor(format),
		"-b:a", bitrate,
		"-ar", "44100",
		"-ac", "2",
		outPath,
	}
}

// Transcode runs the encoder and validates its output. While the
// process runs, the caller receives heartbeat-based processing
// notifications and a final done; the encoder reports no true
// percentage progress.
func (t *Transcoder) Transcode(ctx context.Context, req ports.TranscodeRequest) (domain.TranscodeResult, error) {
	format := req.Format
	if format == "" {
		format = "mp3"
	}
	bitrate := req.Bitrate
	if bitrate == "" {
		bitrate = "192k"
	}

	if err := os.MkdirAll(req.OutputDir, 0o755); err != nil {
		return domain.TranscodeResult{}, &domain.TranscodeError{Kind: domain.ErrEncodeFailure, Err: err}
	}

	outPath := outputPath(req.InputPath, req.OutputDir, format)
	args := buildArgs(req.InputPath, outPath, format, bitrate)
	t.logger.Debug().Str("bin", t.ffmpegPath).Strs("args", args).Msg("starting encoder")

	proc, err := t.starter.Start(t.ffmpegPath, args...)
	if err != nil {
		return domain.TranscodeResult{}, &domain.TranscodeError{Kind: domain.ErrEncodeFailure, Err: err}
	}

	emit := func(stage domain.Stage) {
		if req.OnProgress != nil {
			req.OnProgress(stage)
		}
	}

	ticker := time.NewTicker(t.heartbeat)
	defer ticker.Stop()

	var timeoutC <-chan time.Time
	if req.Timeout > 0 {
		timer := time.NewTimer(req.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	var waitErr error
wait:
	for {
		select {
		case waitErr = <-proc.Done():
			break wait
		case <-ticker.C:
			emit(domain.StageProcessing)
		case <-timeoutC:
			stderr := t.terminate(proc)
			return domain.TranscodeResult{}, &domain.TranscodeError{Kind: domain.ErrTimeout, Stderr: stderr}
		case <-ctx.Done():
			t.terminate(proc)
			return domain.TranscodeResult{}, fmt.Errorf("%w: %v", domain.ErrCancelled, context.Cause(ctx))
		}
	}

	if waitErr != nil {
		return domain.TranscodeResult{}, &domain.TranscodeError{Kind: domain.ErrEncodeFailure, Stderr: proc.Stderr(), Err: waitErr}
	}

	info, err := os.Stat(outPath)
	if err != nil || info.Size() == 0 {
		os.Remove(outPath)
		return domain.TranscodeResult{}, &domain.TranscodeError{Kind: domain.ErrOutputMissing, Stderr: proc.Stderr(), Err: err}
	}

	emit(domain.StageDone)
	return domain.TranscodeResult{
		OutputPath: outPath,
		Format:     format,
		SizeBytes:  info.Size(),
	}, nil
}

// terminate kills the process and waits briefly for it to exit. An
// unresponsive process is logged and abandoned; its resources are
// reclaimed on a best-effort basis.
func (t *Transcoder) terminate(proc Process) string {
	if err := proc.Kill(); err != nil {
		t.logger.Warn().Err(err).Msg("failed to kill encoder process")
	}
	select {
	case <-proc.Done():
		return proc.Stderr()
	case <-time.After(t.killWait):
		t.logger.Warn().Msg("encoder process unresponsive after kill")
		return ""
	}
}
