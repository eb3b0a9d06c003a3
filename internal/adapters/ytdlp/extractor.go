package ytdlp

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"

	"github.com/rs/zerolog"

	"audiopipe/internal/core/domain"
)

const browserUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// CommandResult captures one child process invocation.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// CommandRunner abstracts process execution so tests can fake the
// external tool.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) (CommandResult, error)
}

// ExecCommandRunner is the production implementation using os/exec.
type ExecCommandRunner struct{}

// Run executes one command and captures stdout/stderr and exit code.
func (r *ExecCommandRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := CommandResult{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}
	if err != nil {
		result.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		}
		return result, err
	}
	return result, nil
}

// Extractor wraps the yt-dlp binary as the last-resort media source.
// The tool is treated as opaque: exit code 0 plus an existing output
// file means success, anything else is a tool failure.
type Extractor struct {
	binPath string
	runner  CommandRunner
	logger  zerolog.Logger
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithBinaryPath sets a custom yt-dlp executable path.
func WithBinaryPath(path string) Option {
	return func(e *Extractor) { e.binPath = path }
}

// WithCommandRunner sets a custom command runner (for testing).
func WithCommandRunner(runner CommandRunner) Option {
	return func(e *Extractor) { e.runner = runner }
}

// WithLogger sets the extractor's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(e *Extractor) { e.logger = logger }
}

// New creates a yt-dlp backed Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{
		binPath: "yt-dlp",
		runner:  &ExecCommandRunner{},
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// buildArgs assembles the bounded argument set for one extraction.
func buildArgs(rawURL, destPath string) []string {
	return []string{
		"-f", "best[height<=720]/best",
		"-o", destPath,
		"--no-playlist",
		"--no-progress",
		"--geo-bypass",
		"--retries", "3",
		"--retry-sleep", "1",
		"--user-agent", browserUserAgent,
		"--referer", rawURL,
		rawURL,
	}
}

// Extract runs yt-dlp against rawURL, writing the media to destPath.
// Oversized output is deleted and reported as ErrTooLarge; every other
// failure is ErrToolFailure.
func (e *Extractor) Extract(ctx context.Context, rawURL, destPath string, sizeCeiling int64) (domain.FetchedMedia, error) {
	args := buildArgs(rawURL, destPath)
	e.logger.Debug().Str("url", rawURL).Str("bin", e.binPath).Msg("running extraction tool")

	result, err := e.runner.Run(ctx, e.binPath, args...)
	if err != nil {
		if ctx.Err() != nil {
			return domain.FetchedMedia{}, &domain.ExtractError{Kind: domain.ErrToolFailure, Stderr: result.Stderr, Err: ctx.Err()}
		}
		return domain.FetchedMedia{}, &domain.ExtractError{Kind: domain.ErrToolFailure, Stderr: result.Stderr, Err: err}
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return domain.FetchedMedia{}, &domain.ExtractError{Kind: domain.ErrToolFailure, Stderr: result.Stderr, Err: err}
	}

	if sizeCeiling > 0 && info.Size() > sizeCeiling {
		os.Remove(destPath)
		return domain.FetchedMedia{}, &domain.ExtractError{Kind: domain.ErrTooLarge}
	}

	return domain.FetchedMedia{
		Path:      destPath,
		SizeBytes: info.Size(),
		Origin:    domain.OriginExtractor,
	}, nil
}
