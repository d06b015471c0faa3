package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Artifact store backends.
const (
	BackendLocal = "local"
	BackendMinio = "minio"
	BackendS3    = "s3"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// Config is the complete runtime configuration of the service and CLI.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Storage       StorageConfig       `yaml:"storage"`
	Queue         QueueConfig         `yaml:"queue"`
	Retention     RetentionConfig     `yaml:"retention"`
	Transcription TranscriptionConfig `yaml:"transcription"`
	Media         MediaConfig         `yaml:"media"`
	Redis         RedisConfig         `yaml:"redis"`
	Log           LogConfig           `yaml:"log"`
}

type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Environment     string        `yaml:"environment"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type StorageConfig struct {
	UploadDir string         `yaml:"upload_dir"`
	WorkDir   string         `yaml:"work_dir"`
	Artifacts ArtifactConfig `yaml:"artifacts"`
}

// ArtifactConfig selects where finished subtitle files are stored. LocalDir is
// used by the local backend, the remaining fields by minio and s3.
type ArtifactConfig struct {
	Backend       string `yaml:"backend"`
	LocalDir      string `yaml:"local_dir"`
	Endpoint      string `yaml:"endpoint"`
	Region        string `yaml:"region"`
	AccessKey     string `yaml:"access_key"`
	SecretKey     string `yaml:"secret_key"`
	Bucket        string `yaml:"bucket"`
	UseSSL        bool   `yaml:"use_ssl"`
	UsePathStyle  bool   `yaml:"use_path_style"`
	PublicBaseURL string `yaml:"public_base_url"`
}

type QueueConfig struct {
	Concurrency int           `yaml:"concurrency"`
	RateLimit   int           `yaml:"rate_limit"`
	RateWindow  time.Duration `yaml:"rate_window"`
	JobTimeout  time.Duration `yaml:"job_timeout"`
}

type RetentionConfig struct {
	MaxAge     time.Duration `yaml:"max_age"`
	Schedule   string        `yaml:"schedule"`
	StaleAfter time.Duration `yaml:"stale_after"`
	RunTimeout time.Duration `yaml:"run_timeout"`
}

type TranscriptionConfig struct {
	DefaultLanguage string         `yaml:"default_language"`
	OpenAI          OpenAIConfig   `yaml:"openai"`
	Deepgram        DeepgramConfig `yaml:"deepgram"`
}

type OpenAIConfig struct {
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

type DeepgramConfig struct {
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	Model       string        `yaml:"model"`
	SmartFormat bool          `yaml:"smart_format"`
	Timeout     time.Duration `yaml:"timeout"`
}

type MediaConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path"`
}

// RedisConfig enables progress fan-out when URL is set.
type RedisConfig struct {
	URL string `yaml:"url"`
}

type LogConfig struct {
	Development bool `yaml:"development"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Environment:     "development",
			MaxUploadBytes:  2 << 30,
			AllowedOrigins:  []string{"*"},
			ShutdownTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			DSN:    "data/subtitler.db",
		},
		Storage: StorageConfig{
			UploadDir: "data/uploads",
			Artifacts: ArtifactConfig{
				Backend:  BackendLocal,
				LocalDir: "data/artifacts",
				Region:   "auto",
			},
		},
		Queue: QueueConfig{
			Concurrency: 2,
			RateLimit:   5,
			RateWindow:  time.Second,
			JobTimeout:  30 * time.Minute,
		},
		Retention: RetentionConfig{
			MaxAge:     30 * 24 * time.Hour,
			Schedule:   "@every 1h",
			StaleAfter: 2 * time.Hour,
			RunTimeout: 5 * time.Minute,
		},
		Transcription: TranscriptionConfig{
			DefaultLanguage: "en",
			OpenAI: OpenAIConfig{
				Model: "whisper-1",
			},
			Deepgram: DeepgramConfig{
				Model:       "whisper",
				SmartFormat: true,
				Timeout:     10 * time.Minute,
			},
		},
		Media: MediaConfig{FFmpegPath: "ffmpeg"},
	}
}

// Load builds the configuration from defaults, the optional YAML file at path
// (${VAR} references are expanded) and environment overrides, then validates it.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		path = os.ExpandEnv(path)
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Addr is the listen address of the HTTP server.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Server.Environment, "production")
}

// applyEnv overlays environment variables. Unset variables leave the field alone.
func (c *Config) applyEnv() error {
	var errs []error

	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	num := func(key string, dst *int) {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be an integer: %w", key, err))
			return
		}
		*dst = n
	}
	dur := func(key string, dst *time.Duration) {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be a duration: %w", key, err))
			return
		}
		*dst = d
	}
	flag := func(key string, dst *bool) {
		v, ok := os.LookupEnv(key)
		if !ok || v == "" {
			return
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s must be a boolean: %w", key, err))
			return
		}
		*dst = b
	}

	str("SUBTITLER_HOST", &c.Server.Host)
	num("SUBTITLER_PORT", &c.Server.Port)
	str("SUBTITLER_ENV", &c.Server.Environment)

	str("SUBTITLER_DB_DRIVER", &c.Database.Driver)
	str("DATABASE_URL", &c.Database.DSN)

	str("SUBTITLER_UPLOAD_DIR", &c.Storage.UploadDir)
	str("SUBTITLER_WORK_DIR", &c.Storage.WorkDir)
	str("SUBTITLER_ARTIFACT_BACKEND", &c.Storage.Artifacts.Backend)
	str("SUBTITLER_ARTIFACT_DIR", &c.Storage.Artifacts.LocalDir)

	art := &c.Storage.Artifacts
	switch art.Backend {
	case BackendS3:
		if account := strings.TrimSpace(os.Getenv("CLOUDFLARE_ACCOUNT_ID")); account != "" && art.Endpoint == "" {
			art.Endpoint = "https://" + account + ".r2.cloudflarestorage.com"
			art.Region = "auto"
		}
		str("R2_ENDPOINT", &art.Endpoint)
		str("R2_ACCESS_KEY_ID", &art.AccessKey)
		str("R2_SECRET_ACCESS_KEY", &art.SecretKey)
		str("R2_BUCKET", &art.Bucket)
		str("R2_PUBLIC_URL", &art.PublicBaseURL)
	case BackendMinio:
		str("MINIO_ENDPOINT", &art.Endpoint)
		str("MINIO_ACCESS_KEY", &art.AccessKey)
		str("MINIO_SECRET_KEY", &art.SecretKey)
		str("MINIO_BUCKET", &art.Bucket)
		flag("MINIO_USE_SSL", &art.UseSSL)
		str("MINIO_PUBLIC_URL", &art.PublicBaseURL)
	}

	num("SUBTITLER_QUEUE_CONCURRENCY", &c.Queue.Concurrency)
	num("SUBTITLER_QUEUE_RATE_LIMIT", &c.Queue.RateLimit)
	dur("SUBTITLER_QUEUE_RATE_WINDOW", &c.Queue.RateWindow)
	dur("SUBTITLER_JOB_TIMEOUT", &c.Queue.JobTimeout)

	dur("SUBTITLER_RETENTION_MAX_AGE", &c.Retention.MaxAge)
	str("SUBTITLER_RETENTION_SCHEDULE", &c.Retention.Schedule)
	dur("SUBTITLER_STALE_AFTER", &c.Retention.StaleAfter)

	str("SUBTITLER_DEFAULT_LANGUAGE", &c.Transcription.DefaultLanguage)
	str("OPENAI_API_KEY", &c.Transcription.OpenAI.APIKey)
	str("OPENAI_BASE_URL", &c.Transcription.OpenAI.BaseURL)
	str("OPENAI_MODEL", &c.Transcription.OpenAI.Model)
	str("DEEPGRAM_API_KEY", &c.Transcription.Deepgram.APIKey)
	str("DEEPGRAM_BASE_URL", &c.Transcription.Deepgram.BaseURL)
	str("DEEPGRAM_MODEL", &c.Transcription.Deepgram.Model)

	str("FFMPEG_PATH", &c.Media.FFmpegPath)
	str("REDIS_URL", &c.Redis.URL)
	flag("SUBTITLER_LOG_DEV", &c.Log.Development)

	return errors.Join(errs...)
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	add(ValidatePort(c.Server.Port, "server"))
	if c.Server.MaxUploadBytes <= 0 {
		add(fmt.Errorf("server max upload bytes must be positive"))
	}
	add(ValidateTimeout(c.Server.ShutdownTimeout, "server shutdown"))

	add(ValidateOneOf(c.Database.Driver, "database driver", DriverSQLite, DriverPostgres))
	if c.Database.DSN == "" {
		add(fmt.Errorf("database dsn is required"))
	}

	if c.Storage.UploadDir == "" {
		add(fmt.Errorf("storage upload dir is required"))
	}
	add(c.Storage.Artifacts.validate())

	add(ValidateConcurrency(c.Queue.Concurrency, "queue"))
	if c.Queue.RateLimit <= 0 {
		add(fmt.Errorf("queue rate limit must be positive"))
	}
	add(ValidateTimeout(c.Queue.RateWindow, "queue rate window"))
	add(ValidateTimeout(c.Queue.JobTimeout, "queue job"))

	if c.Retention.MaxAge <= 0 {
		add(fmt.Errorf("retention max age must be positive"))
	}
	add(ValidateSchedule(c.Retention.Schedule, "retention"))
	if c.Retention.StaleAfter <= c.Queue.JobTimeout {
		add(fmt.Errorf("retention stale after (%s) must be greater than queue job timeout (%s)",
			c.Retention.StaleAfter, c.Queue.JobTimeout))
	}
	add(ValidateTimeout(c.Retention.RunTimeout, "retention run"))

	if c.Transcription.DefaultLanguage == "" {
		add(fmt.Errorf("transcription default language is required"))
	}
	if c.Transcription.OpenAI.BaseURL != "" {
		add(ValidateURL(c.Transcription.OpenAI.BaseURL, "OpenAI base"))
	}
	if c.Transcription.Deepgram.BaseURL != "" {
		add(ValidateURL(c.Transcription.Deepgram.BaseURL, "Deepgram base"))
	}

	if c.Media.FFmpegPath == "" {
		add(fmt.Errorf("media ffmpeg path is required"))
	}

	return errors.Join(errs...)
}

// RequireProviders fails fast when a command needs both transcription providers
// and a key is missing.
func (c *Config) RequireProviders() error {
	var errs []error
	if err := ValidateAPIKey(c.Transcription.OpenAI.APIKey, "OpenAI", c.Transcription.OpenAI.BaseURL == ""); err != nil {
		errs = append(errs, fmt.Errorf("%w - set OPENAI_API_KEY in environment or .env file", err))
	}
	if err := ValidateAPIKey(c.Transcription.Deepgram.APIKey, "Deepgram", true); err != nil {
		errs = append(errs, fmt.Errorf("%w - set DEEPGRAM_API_KEY in environment or .env file", err))
	}
	return errors.Join(errs...)
}

func (a ArtifactConfig) validate() error {
	switch a.Backend {
	case BackendLocal:
		if a.LocalDir == "" {
			return fmt.Errorf("storage artifacts local dir is required")
		}
	case BackendMinio:
		var errs []error
		if a.Endpoint == "" {
			errs = append(errs, fmt.Errorf("storage artifacts endpoint is required for minio"))
		}
		if a.Bucket == "" {
			errs = append(errs, fmt.Errorf("storage artifacts bucket is required for minio"))
		}
		if a.AccessKey == "" || a.SecretKey == "" {
			errs = append(errs, fmt.Errorf("storage artifacts credentials are required for minio"))
		}
		return errors.Join(errs...)
	case BackendS3:
		var errs []error
		if a.Bucket == "" {
			errs = append(errs, fmt.Errorf("storage artifacts bucket is required for s3"))
		}
		if a.Endpoint != "" {
			if err := ValidateURL(a.Endpoint, "storage artifacts endpoint"); err != nil {
				errs = append(errs, err)
			}
		}
		if a.Endpoint == "" && a.PublicBaseURL == "" {
			errs = append(errs, fmt.Errorf("storage artifacts endpoint or public base URL is required for s3"))
		}
		return errors.Join(errs...)
	default:
		return ValidateOneOf(a.Backend, "storage artifacts backend", BackendLocal, BackendMinio, BackendS3)
	}
	return nil
}
