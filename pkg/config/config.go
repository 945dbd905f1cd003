package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config captures the full runtime configuration for the streamforge service.
type Config struct {
	App       AppConfig
	HTTP      HTTPConfig
	Upload    UploadConfig
	Media     MediaConfig
	Transcode TranscodeConfig
	Worker    WorkerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Storage   StorageConfig
	Tracing   TracingConfig
	Metrics   MetricsConfig
}

type AppConfig struct {
	Name        string `env:"APP_NAME" envDefault:"streamforge"`
	Environment string `env:"APP_ENV" envDefault:"development"`
	Version     string `env:"APP_VERSION" envDefault:"0.1.0"`
	LogLevel    string `env:"APP_LOG_LEVEL" envDefault:"info"`
	LogFormat   string `env:"APP_LOG_FORMAT" envDefault:"json"`
}

type HTTPConfig struct {
	Addr            string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout     time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"15m"`
	WriteTimeout    time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"15m"`
	IdleTimeout     time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`
	RequestTimeout  time.Duration `env:"HTTP_REQUEST_TIMEOUT" envDefault:"15m"`
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"30s"`
	IdentityHeader  string        `env:"HTTP_IDENTITY_HEADER" envDefault:"X-User-ID"`
}

type UploadConfig struct {
	MaxSizeBytes      int64  `env:"UPLOAD_MAX_SIZE_BYTES" envDefault:"524288000"`
	MultipartMemBytes int64  `env:"UPLOAD_MULTIPART_MEM_BYTES" envDefault:"33554432"`
	TempDir           string `env:"UPLOAD_TEMP_DIR" envDefault:"./data/uploads/temp"`
}

type MediaConfig struct {
	AssetRoot      string `env:"MEDIA_ASSET_ROOT" envDefault:"./data/uploads/videos"`
	StreamBasePath string `env:"STREAM_BASE_PATH" envDefault:"/assets"`
}

type TranscodeConfig struct {
	FFmpegPath            string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	EncoderTimeout        time.Duration `env:"ENCODER_TIMEOUT" envDefault:"0s"`
	PurgePartialOnFailure bool          `env:"TRANSCODE_PURGE_PARTIAL_ON_FAILURE" envDefault:"false"`
	RemoveInputOnFailure  bool          `env:"TRANSCODE_REMOVE_INPUT_ON_FAILURE" envDefault:"false"`
}

type WorkerConfig struct {
	// MaxConcurrent caps simultaneous transcodes; 0 leaves them unbounded.
	MaxConcurrent   int64         `env:"WORKER_MAX_CONCURRENT" envDefault:"0"`
	ShutdownTimeout time.Duration `env:"WORKER_SHUTDOWN_TIMEOUT" envDefault:"10m"`
}

type DatabaseConfig struct {
	Driver          string        `env:"DATABASE_DRIVER" envDefault:"sqlite"`
	Path            string        `env:"DATABASE_PATH" envDefault:"./data/streamforge.db"`
	DSN             string        `env:"DATABASE_DSN"`
	MaxConns        int32         `env:"DATABASE_MAX_CONNS" envDefault:"10"`
	MaxConnLifetime time.Duration `env:"DATABASE_MAX_CONN_LIFETIME" envDefault:"30m"`
}

type RedisConfig struct {
	Addr     string        `env:"REDIS_ADDR"`
	Username string        `env:"REDIS_USERNAME"`
	Password string        `env:"REDIS_PASSWORD"`
	DB       int           `env:"REDIS_DB" envDefault:"0"`
	LockTTL  time.Duration `env:"REDIS_LOCK_TTL" envDefault:"24h"`
}

type KafkaConfig struct {
	Brokers          []string      `env:"KAFKA_BROKERS" envSeparator:","`
	EventsTopic      string        `env:"KAFKA_EVENTS_TOPIC" envDefault:"streamforge.video-events"`
	Retries          int           `env:"KAFKA_RETRIES" envDefault:"3"`
	CompressionCodec string        `env:"KAFKA_COMPRESSION_CODEC" envDefault:"snappy"`
	RequiredAcks     string        `env:"KAFKA_REQUIRED_ACKS" envDefault:"all"`
	BatchSize        int           `env:"KAFKA_BATCH_SIZE" envDefault:"100"`
	BatchTimeout     time.Duration `env:"KAFKA_BATCH_TIMEOUT" envDefault:"1s"`
	Async            bool          `env:"KAFKA_ASYNC" envDefault:"false"`
}

type StorageConfig struct {
	Provider  string `env:"STORAGE_PROVIDER" envDefault:"none"`
	Endpoint  string `env:"STORAGE_ENDPOINT" envDefault:"http://localhost:9000"`
	Region    string `env:"STORAGE_REGION" envDefault:"us-east-1"`
	Bucket    string `env:"STORAGE_BUCKET" envDefault:"streamforge-assets"`
	AccessKey string `env:"STORAGE_ACCESS_KEY"`
	SecretKey string `env:"STORAGE_SECRET_KEY"`
	UseSSL    bool   `env:"STORAGE_USE_SSL" envDefault:"false"`
}

type TracingConfig struct {
	Endpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	Insecure     bool    `env:"OTEL_EXPORTER_OTLP_INSECURE" envDefault:"true"`
	SampleRatio  float64 `env:"OTEL_TRACES_SAMPLER_RATIO" envDefault:"1.0"`
	ResourceAttr string  `env:"OTEL_RESOURCE_ATTRIBUTES" envDefault:"service.namespace=streamforge"`
}

type MetricsConfig struct {
	Addr string `env:"METRICS_ADDR" envDefault:":9102"`
}

// Load reads an optional .env file, then parses environment variables into
// Config and validates the result. Variables already set in the environment
// win over .env entries.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings that cannot work together.
func (c *Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case "sqlite":
		if c.Database.Path == "" {
			errs = append(errs, errors.New("DATABASE_PATH is required for sqlite"))
		}
	case "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("DATABASE_DSN is required for postgres"))
		}
	case "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown DATABASE_DRIVER %q", c.Database.Driver))
	}
	if c.Upload.MaxSizeBytes <= 0 {
		errs = append(errs, errors.New("UPLOAD_MAX_SIZE_BYTES must be positive"))
	}
	if c.Upload.TempDir == "" || c.Media.AssetRoot == "" {
		errs = append(errs, errors.New("UPLOAD_TEMP_DIR and MEDIA_ASSET_ROOT are required"))
	}
	if !strings.HasPrefix(c.Media.StreamBasePath, "/") {
		errs = append(errs, fmt.Errorf("STREAM_BASE_PATH %q must start with /", c.Media.StreamBasePath))
	}
	if c.Worker.MaxConcurrent < 0 {
		errs = append(errs, errors.New("WORKER_MAX_CONCURRENT must not be negative"))
	}
	if c.Transcode.EncoderTimeout < 0 {
		errs = append(errs, errors.New("ENCODER_TIMEOUT must not be negative"))
	}
	switch strings.ToLower(c.Storage.Provider) {
	case "", "none", "minio", "s3":
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_PROVIDER %q", c.Storage.Provider))
	}
	switch c.App.LogFormat {
	case "json", "console":
	default:
		errs = append(errs, fmt.Errorf("unknown APP_LOG_FORMAT %q", c.App.LogFormat))
	}
	return errors.Join(errs...)
}
