// Package config provides the configuration structure for the tts-service.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/book-expert/configurator"
	"github.com/book-expert/logger"
	"github.com/book-expert/tts-orchestrator/internal/audio"
	"github.com/book-expert/tts-orchestrator/internal/catalog"
	"github.com/book-expert/tts-orchestrator/internal/objectstore"
	"github.com/book-expert/tts-orchestrator/internal/orchestrator"
	"github.com/book-expert/tts-orchestrator/internal/tts"
	"github.com/caarlos0/env/v11"
	"github.com/pelletier/go-toml/v2"
)

// Storage backends.
const (
	StorageLocal = "local"
	StorageNATS  = "nats"
	StorageMinio = "minio"
)

var (
	// ErrInvalidConfig indicates a value that cannot be used.
	ErrInvalidConfig = errors.New("invalid configuration")
	// ErrNATSRequired indicates a feature that needs a NATS URL.
	ErrNATSRequired = errors.New("nats url is required")
)

// NATSConfig holds the configuration for NATS.
type NATSConfig struct {
	URL                    string `env:"NATS_URL"               toml:"url"`
	WorkerEnabled          bool   `env:"NATS_WORKER_ENABLED"    toml:"worker_enabled"`
	TextProcessedSubject   string `toml:"text_processed_subject"`
	QueueGroup             string `toml:"queue_group"`
	AudioObjectStoreBucket string `toml:"audio_object_store_bucket"`
	WorkerLanguage         string `toml:"worker_language"`
	JobTimeoutSeconds      int    `toml:"job_timeout_seconds"`
}

// TTSServiceConfig holds the synthesis backend configuration.
type TTSServiceConfig struct {
	Backend           string  `env:"TTS_BACKEND"     toml:"backend"`
	URL               string  `env:"TTS_SERVICE_URL" toml:"url"`
	TimeoutSeconds    int     `toml:"timeout_seconds"`
	SampleRate        int     `toml:"sample_rate"`
	DefaultLanguage   string  `env:"DEFAULT_LANGUAGE" toml:"default_language"`
	Binary            string  `toml:"binary"`
	ModelPath         string  `toml:"model_path"`
	SnacModelPath     string  `toml:"snac_model_path"`
	Voice             string  `toml:"voice"`
	NGL               int     `toml:"ngl"`
	TopP              float64 `toml:"top_p"`
	RepetitionPenalty float64 `toml:"repetition_penalty"`
	Temperature       float64 `toml:"temperature"`
}

// CacheConfig controls the synthesis resource cache.
type CacheConfig struct {
	IdleTimeoutSeconds   int `env:"MODEL_IDLE_TIMEOUT" toml:"idle_timeout_seconds"`
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
}

// JobsConfig controls the job table.
type JobsConfig struct {
	RetentionSeconds       int `toml:"retention_seconds"`
	ReclaimIntervalSeconds int `toml:"reclaim_interval_seconds"`
	MaxTextLength          int `toml:"max_text_length"`
}

// ChunkingConfig controls chunk planning and the retry policy.
type ChunkingConfig struct {
	MaxChars         int   `env:"MAX_CHUNK_CHARS" toml:"max_chars"`
	MaxAttempts      int   `toml:"max_attempts"`
	SeedStride       int64 `toml:"seed_stride"`
	FallbackMS       int   `toml:"fallback_ms"`
	SynthConcurrency int64 `toml:"synth_concurrency"`
}

// AudioConfig controls merging and the filter chain.
type AudioConfig struct {
	HighPass          int     `env:"HIGHPASS_FREQ"             toml:"highpass_hz"`
	LowPass           int     `env:"LOWPASS_FREQ"              toml:"lowpass_hz"`
	NoiseGateDB       float64 `env:"NOISE_GATE_THRESHOLD"      toml:"noise_gate_db"`
	Normalize         bool    `env:"NORMALIZE_AUDIO"           toml:"normalize"`
	NormalizeTargetDB float64 `toml:"normalize_target_db"`
	SilenceMS         int     `env:"SILENCE_BETWEEN_CHUNKS_MS" toml:"silence_ms"`
	FadeMS            int     `env:"FADE_MS"                   toml:"fade_ms"`
}

// MinioConfig holds the S3-compatible bucket settings.
type MinioConfig struct {
	Endpoint  string `env:"MINIO_ENDPOINT"   toml:"endpoint"`
	AccessKey string `env:"MINIO_ACCESS_KEY" toml:"access_key"`
	SecretKey string `env:"MINIO_SECRET_KEY" toml:"secret_key"`
	Bucket    string `env:"MINIO_BUCKET"     toml:"bucket"`
	Region    string `toml:"region"`
	UseSSL    bool   `env:"MINIO_USE_SSL" toml:"use_ssl"`
}

// StorageConfig selects where generated audio is kept.
type StorageConfig struct {
	Backend  string      `env:"STORAGE_BACKEND" toml:"backend"`
	LocalDir string      `env:"OUTPUT_DIR"      toml:"local_dir"`
	Minio    MinioConfig `toml:"minio"`
}

// HistoryConfig locates the history database.
type HistoryConfig struct {
	Path string `env:"HISTORY_DB" toml:"path"`
}

// HTTPConfig controls the HTTP job API.
type HTTPConfig struct {
	Host            string `env:"HOST" toml:"host"`
	Port            int    `env:"PORT" toml:"port"`
	ShutdownSeconds int    `toml:"shutdown_seconds"`
	MaxUploadMB     int    `toml:"max_upload_mb"`
}

// PathsConfig holds the configuration for file paths.
type PathsConfig struct {
	BaseLogsDir string `env:"LOGS_DIR" toml:"base_logs_dir"`
}

// Config is the root configuration structure.
type Config struct {
	NATS     NATSConfig       `toml:"nats"`
	TTS      TTSServiceConfig `toml:"tts_service"`
	Cache    CacheConfig      `toml:"cache"`
	Jobs     JobsConfig       `toml:"jobs"`
	Chunking ChunkingConfig   `toml:"chunking"`
	Audio    AudioConfig      `toml:"audio"`
	Storage  StorageConfig    `toml:"storage"`
	History  HistoryConfig    `toml:"history"`
	HTTP     HTTPConfig       `toml:"http"`
	Paths    PathsConfig      `toml:"paths"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	filters := audio.NewDefaultFilterChain()
	merge := audio.NewDefaultMergeConfig()
	generator := tts.NewDefaultGeneratorConfig()
	orch := orchestrator.DefaultConfig()

	return Config{
		NATS: NATSConfig{
			URL:                    "",
			WorkerEnabled:          false,
			TextProcessedSubject:   "text.processed",
			QueueGroup:             "tts-workers",
			AudioObjectStoreBucket: "AUDIO_FILES",
			WorkerLanguage:         catalog.AutoLanguage,
			JobTimeoutSeconds:      600,
		},
		TTS: TTSServiceConfig{
			Backend:           tts.BackendHTTP,
			URL:               "http://127.0.0.1:8000",
			TimeoutSeconds:    300,
			SampleRate:        tts.DefaultSampleRate,
			DefaultLanguage:   orch.DefaultLanguage,
			Binary:            "chatllm",
			ModelPath:         "",
			SnacModelPath:     "",
			Voice:             "tara",
			NGL:               0,
			TopP:              0.9,
			RepetitionPenalty: 1.1,
			Temperature:       0.7,
		},
		Cache: CacheConfig{
			IdleTimeoutSeconds:   int(orch.IdleTimeout / time.Second),
			SweepIntervalSeconds: int(orch.CacheSweep / time.Second),
		},
		Jobs: JobsConfig{
			RetentionSeconds:       int(orch.JobRetention / time.Second),
			ReclaimIntervalSeconds: int(orch.ReclaimInterval / time.Second),
			MaxTextLength:          orch.MaxTextLength,
		},
		Chunking: ChunkingConfig{
			MaxChars:         orch.MaxChunkChars,
			MaxAttempts:      generator.MaxAttempts,
			SeedStride:       generator.SeedStride,
			FallbackMS:       int(generator.FallbackDuration / time.Millisecond),
			SynthConcurrency: generator.Concurrency,
		},
		Audio: AudioConfig{
			HighPass:          filters.HighPass,
			LowPass:           filters.LowPass,
			NoiseGateDB:       filters.NoiseGateDB,
			Normalize:         filters.Normalize,
			NormalizeTargetDB: filters.NormalizeTargetDB,
			SilenceMS:         int(merge.Silence / time.Millisecond),
			FadeMS:            int(merge.Fade / time.Millisecond),
		},
		Storage: StorageConfig{
			Backend:  StorageLocal,
			LocalDir: "outputs",
			Minio: MinioConfig{
				Endpoint:  "",
				AccessKey: "",
				SecretKey: "",
				Bucket:    "tts-audio",
				Region:    "",
				UseSSL:    false,
			},
		},
		History: HistoryConfig{Path: "history.db"},
		HTTP: HTTPConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ShutdownSeconds: 30,
			MaxUploadMB:     20,
		},
		Paths: PathsConfig{BaseLogsDir: "logs"},
	}
}

// Load reads the project configuration through the configurator, then applies environment
// overrides.
func Load(log *logger.Logger) (*Config, error) {
	cfg := Default()

	err := configurator.Load(&cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration from configurator: %w", err)
	}

	return finish(&cfg)
}

// LoadFile reads an explicit TOML file, then applies environment overrides.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}

	return Parse(data)
}

// Parse decodes TOML over the defaults, then applies environment overrides.
func Parse(data []byte) (*Config, error) {
	cfg := Default()

	err := toml.Unmarshal(data, &cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to decode configuration: %w", err)
	}

	return finish(&cfg)
}

func finish(cfg *Config) (*Config, error) {
	err := env.Parse(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	checks := []struct {
		ok      bool
		message string
	}{
		{c.Cache.IdleTimeoutSeconds >= 0, "cache.idle_timeout_seconds must not be negative"},
		{c.Cache.SweepIntervalSeconds > 0, "cache.sweep_interval_seconds must be positive"},
		{c.Jobs.RetentionSeconds > 0, "jobs.retention_seconds must be positive"},
		{c.Jobs.ReclaimIntervalSeconds > 0, "jobs.reclaim_interval_seconds must be positive"},
		{c.Jobs.MaxTextLength > 0, "jobs.max_text_length must be positive"},
		{c.Chunking.MaxChars > 0, "chunking.max_chars must be positive"},
		{c.Chunking.MaxAttempts > 0, "chunking.max_attempts must be positive"},
		{c.Chunking.SynthConcurrency > 0, "chunking.synth_concurrency must be positive"},
		{c.Chunking.FallbackMS >= 0, "chunking.fallback_ms must not be negative"},
		{c.Audio.SilenceMS >= 0 && c.Audio.FadeMS >= 0, "audio silence and fade must not be negative"},
		{c.HTTP.Port > 0 && c.HTTP.Port <= 65535, "http.port must be between 1 and 65535"},
		{c.TTS.SampleRate > 0, "tts_service.sample_rate must be positive"},
		{catalog.IsSupported(c.TTS.DefaultLanguage), "tts_service.default_language is not supported"},
	}

	for _, check := range checks {
		if !check.ok {
			return fmt.Errorf("%w: %s", ErrInvalidConfig, check.message)
		}
	}

	filters := c.FilterChain()

	filterErr := filters.Validate()
	if filterErr != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, filterErr)
	}

	switch c.TTS.Backend {
	case tts.BackendHTTP, tts.BackendChatLLM:
	default:
		return fmt.Errorf("%w: unknown tts_service.backend %q", ErrInvalidConfig, c.TTS.Backend)
	}

	switch c.Storage.Backend {
	case StorageLocal, StorageMinio:
	case StorageNATS:
		if c.NATS.URL == "" {
			return fmt.Errorf("%w: %w for the nats storage backend", ErrInvalidConfig, ErrNATSRequired)
		}
	default:
		return fmt.Errorf("%w: unknown storage.backend %q", ErrInvalidConfig, c.Storage.Backend)
	}

	if c.NATS.WorkerEnabled && c.NATS.URL == "" {
		return fmt.Errorf("%w: %w for the worker", ErrInvalidConfig, ErrNATSRequired)
	}

	return nil
}

// FilterChain maps the [audio] section onto the filter chain.
func (c *Config) FilterChain() audio.FilterChain {
	return audio.FilterChain{
		HighPass:          c.Audio.HighPass,
		LowPass:           c.Audio.LowPass,
		NoiseGateDB:       c.Audio.NoiseGateDB,
		Normalize:         c.Audio.Normalize,
		NormalizeTargetDB: c.Audio.NormalizeTargetDB,
	}
}

// Orchestrator maps the configuration onto the orchestrator settings.
func (c *Config) Orchestrator() orchestrator.Config {
	cfg := orchestrator.DefaultConfig()

	cfg.DefaultLanguage = c.TTS.DefaultLanguage
	cfg.MaxTextLength = c.Jobs.MaxTextLength
	cfg.MaxChunkChars = c.Chunking.MaxChars
	cfg.IdleTimeout = seconds(c.Cache.IdleTimeoutSeconds)
	cfg.CacheSweep = seconds(c.Cache.SweepIntervalSeconds)
	cfg.JobRetention = seconds(c.Jobs.RetentionSeconds)
	cfg.ReclaimInterval = seconds(c.Jobs.ReclaimIntervalSeconds)
	cfg.Generator = tts.GeneratorConfig{
		MaxAttempts:      c.Chunking.MaxAttempts,
		SeedStride:       c.Chunking.SeedStride,
		FallbackDuration: time.Duration(c.Chunking.FallbackMS) * time.Millisecond,
		Concurrency:      c.Chunking.SynthConcurrency,
	}
	cfg.Merge = audio.MergeConfig{
		Silence: time.Duration(c.Audio.SilenceMS) * time.Millisecond,
		Fade:    time.Duration(c.Audio.FadeMS) * time.Millisecond,
	}
	cfg.Filters = c.FilterChain()

	return cfg
}

// Backend maps the [tts_service] section onto the loader configuration.
func (c *Config) Backend() tts.BackendConfig {
	return tts.BackendConfig{
		Backend:    c.TTS.Backend,
		ServiceURL: c.TTS.URL,
		Timeout:    seconds(c.TTS.TimeoutSeconds),
		SampleRate: c.TTS.SampleRate,
		ChatLLM: tts.ChatLLMConfig{
			Binary:            c.TTS.Binary,
			ModelPath:         c.TTS.ModelPath,
			SnacModelPath:     c.TTS.SnacModelPath,
			Voice:             c.TTS.Voice,
			NGL:               c.TTS.NGL,
			TopP:              c.TTS.TopP,
			RepetitionPenalty: c.TTS.RepetitionPenalty,
			Temperature:       c.TTS.Temperature,
			SampleRate:        c.TTS.SampleRate,
		},
	}
}

// Minio maps the [storage.minio] section onto the store configuration.
func (c *Config) Minio() objectstore.MinioConfig {
	return objectstore.MinioConfig{
		Endpoint:  c.Storage.Minio.Endpoint,
		AccessKey: c.Storage.Minio.AccessKey,
		SecretKey: c.Storage.Minio.SecretKey,
		Bucket:    c.Storage.Minio.Bucket,
		Region:    c.Storage.Minio.Region,
		UseSSL:    c.Storage.Minio.UseSSL,
	}
}

// HTTPAddr is the listen address of the job API.
func (c *Config) HTTPAddr() string {
	return net.JoinHostPort(strings.TrimSpace(c.HTTP.Host), strconv.Itoa(c.HTTP.Port))
}

// ShutdownTimeout bounds the graceful shutdown of the service.
func (c *Config) ShutdownTimeout() time.Duration {
	return seconds(c.HTTP.ShutdownSeconds)
}

// JobTimeout bounds one worker message.
func (c *Config) JobTimeout() time.Duration {
	return seconds(c.NATS.JobTimeoutSeconds)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
