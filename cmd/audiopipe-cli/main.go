package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"audiopipe/internal/adapters/fetcher"
	"audiopipe/internal/adapters/ffmpeg"
	"audiopipe/internal/adapters/resolver"
	"audiopipe/internal/adapters/ytdlp"
	"audiopipe/internal/config"
	"audiopipe/internal/core/domain"
	"audiopipe/internal/service"
	"audiopipe/internal/workspace"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		cfgFile    string
		rawURL     string
		uploadPath string
		callerID   string
		outputDir  string
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "audiopipe-cli",
		Short: "Retrieve a video and strip its audio track",
		Long: `audiopipe-cli runs one job through the retrieval-and-transcode pipeline:
the URL is classified, the video is fetched (falling back to yt-dlp for
unsupported hosts), the audio track is extracted with ffmpeg, and the
resulting file is copied to the output directory.

Example:
  audiopipe-cli --url https://host/video.mp4
  audiopipe-cli --url https://disk.yandex.ru/d/abc123 --output ./out
  audiopipe-cli --file ./recording.mkv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if rawURL == "" && uploadPath == "" {
				return fmt.Errorf("either --url or --file is required")
			}
			return run(cmd.Context(), cfgFile, rawURL, uploadPath, callerID, outputDir, verbose)
		},
		SilenceUsage: true,
	}

	cmd.Flags().StringVar(&cfgFile, "config", "", "config file (YAML, optional)")
	cmd.Flags().StringVar(&rawURL, "url", "", "video URL to process")
	cmd.Flags().StringVar(&uploadPath, "file", "", "local video file to process instead of a URL")
	cmd.Flags().StringVar(&callerID, "caller", "cli", "caller identity for the single-flight lock")
	cmd.Flags().StringVar(&outputDir, "output", ".", "directory the audio file is copied to")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	return cmd
}

func run(parent context.Context, cfgFile, rawURL, uploadPath, callerID, outputDir string, verbose bool) error {
	// Environment variables may also come from a .env file; its absence
	// is fine.
	_ = godotenv.Load()

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Logger()

	orch := service.New(
		resolver.New(
			resolver.WithToken(cfg.YandexToken),
			resolver.WithLogger(logger),
		),
		fetcher.New(fetcher.WithLogger(logger)),
		ytdlp.New(
			ytdlp.WithBinaryPath(cfg.YtDlpPath),
			ytdlp.WithLogger(logger),
		),
		ffmpeg.New(
			ffmpeg.WithFFmpegPath(cfg.FFmpegPath),
			ffmpeg.WithLogger(logger),
		),
		workspace.New(cfg.TempDir),
		service.Options{
			MaxWorkers:       cfg.MaxWorkers,
			SizeCeiling:      cfg.MaxSizeBytes(),
			AudioFormat:      cfg.AudioFormat,
			AudioBitrate:     cfg.AudioBitrate,
			ResolveTimeout:   cfg.ResolveTimeout(),
			FetchTimeout:     cfg.FetchTimeout(),
			ExtractTimeout:   cfg.ExtractTimeout(),
			TranscodeTimeout: cfg.TranscodeTimeout(),
			DeliveryGrace:    cfg.DeliveryGrace(),
		},
		logger,
	)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	handle, err := orch.Submit(ctx, domain.RetrievalRequest{
		URL:        rawURL,
		UploadPath: uploadPath,
		CallerID:   callerID,
	})
	if err != nil {
		return err
	}

	go func() {
		for event := range handle.Events() {
			logger.Info().Str("stage", string(event.Stage)).Msg("progress")
		}
	}()

	result, err := handle.Wait(ctx)
	if err != nil {
		return err
	}

	dest := filepath.Join(outputDir, filepath.Base(result.OutputPath))
	if err := copyFile(result.OutputPath, dest); err != nil {
		return fmt.Errorf("failed to deliver audio file: %w", err)
	}
	handle.Acknowledge()

	fmt.Println("\n=== Job Summary ===")
	fmt.Printf("Job ID:  %s\n", handle.ID)
	fmt.Printf("Format:  %s\n", result.Format)
	fmt.Printf("Size:    %d bytes\n", result.SizeBytes)
	fmt.Printf("Audio:   %s\n", dest)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
