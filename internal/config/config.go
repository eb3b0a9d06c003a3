package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults mirror what the pipeline needs to run on a stock host with
// ffmpeg and yt-dlp on PATH.
const (
	DefaultTempDir                 = "/tmp/audiopipe"
	DefaultFFmpegPath              = "ffmpeg"
	DefaultYtDlpPath               = "yt-dlp"
	DefaultMaxFileSizeMB           = 2000
	DefaultAudioFormat             = "mp3"
	DefaultAudioBitrate            = "192k"
	DefaultMaxWorkers              = 3
	DefaultResolveTimeoutSeconds   = 30
	DefaultFetchTimeoutSeconds     = 1800
	DefaultExtractTimeoutSeconds   = 1800
	DefaultTranscodeTimeoutSeconds = 600
	DefaultDeliveryGraceSeconds    = 60
)

// Config holds everything the pipeline consumes: the temp root, external
// tool paths, the payload size ceiling, per-phase timeouts, and the
// global concurrency limit.
type Config struct {
	TempDir     string `yaml:"temp_dir"`
	FFmpegPath  string `yaml:"ffmpeg_path"`
	YtDlpPath   string `yaml:"ytdlp_path"`
	YandexToken string `yaml:"yandex_token"`

	MaxFileSizeMB int64  `yaml:"max_file_size_mb"`
	AudioFormat   string `yaml:"audio_format"`
	AudioBitrate  string `yaml:"audio_bitrate"`
	MaxWorkers    int    `yaml:"max_workers"`

	ResolveTimeoutSeconds   int `yaml:"resolve_timeout_seconds"`
	FetchTimeoutSeconds     int `yaml:"fetch_timeout_seconds"`
	ExtractTimeoutSeconds   int `yaml:"extract_timeout_seconds"`
	TranscodeTimeoutSeconds int `yaml:"transcode_timeout_seconds"`
	DeliveryGraceSeconds    int `yaml:"delivery_grace_seconds"`
}

// Default returns a Config populated with defaults only.
func Default() *Config {
	return &Config{
		TempDir:                 DefaultTempDir,
		FFmpegPath:              DefaultFFmpegPath,
		YtDlpPath:               DefaultYtDlpPath,
		MaxFileSizeMB:           DefaultMaxFileSizeMB,
		AudioFormat:             DefaultAudioFormat,
		AudioBitrate:            DefaultAudioBitrate,
		MaxWorkers:              DefaultMaxWorkers,
		ResolveTimeoutSeconds:   DefaultResolveTimeoutSeconds,
		FetchTimeoutSeconds:     DefaultFetchTimeoutSeconds,
		ExtractTimeoutSeconds:   DefaultExtractTimeoutSeconds,
		TranscodeTimeoutSeconds: DefaultTranscodeTimeoutSeconds,
		DeliveryGraceSeconds:    DefaultDeliveryGraceSeconds,
	}
}

// Load builds the configuration: defaults, then the optional YAML file
// at path, then environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnv()

	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = DefaultMaxWorkers
	}
	if cfg.MaxFileSizeMB <= 0 {
		cfg.MaxFileSizeMB = DefaultMaxFileSizeMB
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto the config. Variable
// names follow the original deployment's .env convention.
func (c *Config) applyEnv() {
	c.TempDir = envOrDefault("TEMP_DIR", c.TempDir)
	c.FFmpegPath = envOrDefault("FFMPEG_PATH", c.FFmpegPath)
	c.YtDlpPath = envOrDefault("YTDLP_PATH", c.YtDlpPath)
	c.YandexToken = envOrDefault("YADISK_TOKEN", c.YandexToken)
	c.AudioFormat = envOrDefault("AUDIO_FORMAT", c.AudioFormat)
	c.AudioBitrate = envOrDefault("AUDIO_BITRATE", c.AudioBitrate)

	if v, ok := envInt("MAX_FILE_SIZE_MB"); ok {
		c.MaxFileSizeMB = int64(v)
	}
	if v, ok := envInt("MAX_WORKERS"); ok {
		c.MaxWorkers = v
	}
	if v, ok := envInt("RESOLVE_TIMEOUT_SECONDS"); ok {
		c.ResolveTimeoutSeconds = v
	}
	if v, ok := envInt("FETCH_TIMEOUT_SECONDS"); ok {
		c.FetchTimeoutSeconds = v
	}
	if v, ok := envInt("EXTRACT_TIMEOUT_SECONDS"); ok {
		c.ExtractTimeoutSeconds = v
	}
	if v, ok := envInt("TRANSCODE_TIMEOUT_SECONDS"); ok {
		c.TranscodeTimeoutSeconds = v
	}
	if v, ok := envInt("DELIVERY_GRACE_SECONDS"); ok {
		c.DeliveryGraceSeconds = v
	}
}

// MaxSizeBytes returns the payload ceiling in bytes.
func (c *Config) MaxSizeBytes() int64 {
	return c.MaxFileSizeMB * 1024 * 1024
}

func (c *Config) ResolveTimeout() time.Duration {
	return time.Duration(c.ResolveTimeoutSeconds) * time.Second
}

func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

func (c *Config) ExtractTimeout() time.Duration {
	return time.Duration(c.ExtractTimeoutSeconds) * time.Second
}

func (c *Config) TranscodeTimeout() time.Duration {
	return time.Duration(c.TranscodeTimeoutSeconds) * time.Second
}

func (c *Config) DeliveryGrace() time.Duration {
	return time.Duration(c.DeliveryGraceSeconds) * time.Second
}

// envOrDefault returns the trimmed env value or fallback when unset.
func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// envInt parses a positive integer env value; ok is false when unset or
// invalid.
func envInt(key string) (int, bool) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, false
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, false
	}
	return n, true
}
