package ytdlp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"testing"

	"audiopipe/internal/core/domain"
)

// fakeRunner simulates the external tool.
type fakeRunner struct {
	run   func(ctx context.Context, name string, args ...string) (CommandResult, error)
	calls int
}

func (f *fakeRunner) Run(ctx context.Context, name string, args ...string) (CommandResult, error) {
	f.calls++
	if f.run == nil {
		return CommandResult{}, nil
	}
	return f.run(ctx, name, args...)
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

// TestExtractSuccess checks the happy path and the bounded argv.
func TestExtractSuccess(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "source.mp4")
	var gotName string
	var gotArgs []string
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (CommandResult, error) {
			gotName = name
			gotArgs = append([]string{}, args...)
			mustWriteFile(t, dest, "merged video")
			return CommandResult{Stdout: "ok"}, nil
		},
	}

	e := New(WithBinaryPath("yt-dlp-custom"), WithCommandRunner(runner))
	media, err := e.Extract(context.Background(), "https://videos.example/watch?v=1", dest, 1<<20)
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}

	if gotName != "yt-dlp-custom" {
		t.Errorf("binary = %q", gotName)
	}
	for _, want := range []string{"--no-playlist", "--no-progress", "--geo-bypass"} {
		if !slices.Contains(gotArgs, want) {
			t.Errorf("args missing %s: %v", want, gotArgs)
		}
	}
	if gotArgs[len(gotArgs)-1] != "https://videos.example/watch?v=1" {
		t.Errorf("last arg = %q, want the URL", gotArgs[len(gotArgs)-1])
	}
	if i := slices.Index(gotArgs, "--referer"); i < 0 || gotArgs[i+1] != "https://videos.example/watch?v=1" {
		t.Errorf("referer not set to source URL: %v", gotArgs)
	}
	if i := slices.Index(gotArgs, "-o"); i < 0 || gotArgs[i+1] != dest {
		t.Errorf("output template not set: %v", gotArgs)
	}

	if media.Path != dest {
		t.Errorf("path = %q", media.Path)
	}
	if media.SizeBytes != int64(len("merged video")) {
		t.Errorf("size = %d", media.SizeBytes)
	}
	if media.Origin != domain.OriginExtractor {
		t.Errorf("origin = %q", media.Origin)
	}
}

// TestExtractNonZeroExit checks tool failure with stderr context.
func TestExtractNonZeroExit(t *testing.T) {
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (CommandResult, error) {
			return CommandResult{Stderr: "ERROR: unsupported URL", ExitCode: 1}, errors.New("exit status 1")
		},
	}

	e := New(WithCommandRunner(runner))
	_, err := e.Extract(context.Background(), "https://videos.example/x", filepath.Join(t.TempDir(), "out.mp4"), 1<<20)

	var xerr *domain.ExtractError
	if !errors.As(err, &xerr) {
		t.Fatalf("error = %v, want *ExtractError", err)
	}
	if !errors.Is(err, domain.ErrToolFailure) {
		t.Error("kind should be ErrToolFailure")
	}
	if xerr.Stderr != "ERROR: unsupported URL" {
		t.Errorf("stderr = %q", xerr.Stderr)
	}
}

// TestExtractZeroExitMissingOutput checks the reported-success-but-no-
// file case.
func TestExtractZeroExitMissingOutput(t *testing.T) {
	e := New(WithCommandRunner(&fakeRunner{}))
	_, err := e.Extract(context.Background(), "https://videos.example/x", filepath.Join(t.TempDir(), "out.mp4"), 1<<20)
	if !errors.Is(err, domain.ErrToolFailure) {
		t.Fatalf("error = %v, want ErrToolFailure", err)
	}
}

// TestExtractOversizedOutputDeleted checks the post-hoc ceiling check.
func TestExtractOversizedOutputDeleted(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.mp4")
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (CommandResult, error) {
			mustWriteFile(t, dest, "0123456789")
			return CommandResult{}, nil
		},
	}

	e := New(WithCommandRunner(runner))
	_, err := e.Extract(context.Background(), "https://videos.example/x", dest, 5)
	if !errors.Is(err, domain.ErrTooLarge) {
		t.Fatalf("error = %v, want ErrTooLarge", err)
	}
	if _, statErr := os.Stat(dest); !errors.Is(statErr, os.ErrNotExist) {
		t.Error("oversized output should be deleted")
	}
}

// TestExtractCancelledContext checks the tool run is abandoned when the
// job is cancelled.
func TestExtractCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	runner := &fakeRunner{
		run: func(ctx context.Context, name string, args ...string) (CommandResult, error) {
			cancel()
			return CommandResult{ExitCode: -1}, errors.New("signal: killed")
		},
	}

	e := New(WithCommandRunner(runner))
	_, err := e.Extract(ctx, "https://videos.example/x", filepath.Join(t.TempDir(), "out.mp4"), 1<<20)
	if !errors.Is(err, domain.ErrToolFailure) {
		t.Fatalf("error = %v, want ErrToolFailure", err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Error("cancellation cause should be preserved")
	}
}
