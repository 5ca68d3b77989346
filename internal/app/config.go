package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/huddle-backend/internal/data/db"
	"github.com/yungbote/huddle-backend/internal/observability"
	"github.com/yungbote/huddle-backend/internal/platform/envutil"
	"github.com/yungbote/huddle-backend/internal/platform/storage"
)

const (
	BusNone  = "none"
	BusRedis = "redis"
	BusAMQP  = "amqp"
)

type Config struct {
	LogMode        string   `yaml:"log_mode"`
	HTTPAddr       string   `yaml:"http_addr"`
	ServiceName    string   `yaml:"service_name"`
	Environment    string   `yaml:"environment"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	JWTSecretKey   string   `yaml:"-"`

	Tracing observability.OtelConfig `yaml:"tracing"`

	Postgres db.PostgresConfig `yaml:"-"`

	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"-"`
	RedisDB       int    `yaml:"redis_db"`
	RedisChannel  string `yaml:"redis_channel"`

	RealtimeBus  string `yaml:"realtime_bus"`
	AMQPURL      string `yaml:"-"`
	AMQPExchange string `yaml:"amqp_exchange"`

	StorageMode         string `yaml:"object_storage_mode"`
	LocalStorageDir     string `yaml:"local_storage_dir"`
	PublicFilesURL      string `yaml:"public_files_url"`
	AttachmentBucket    string `yaml:"attachment_gcs_bucket_name"`
	StorageEmulatorHost string `yaml:"storage_emulator_host"`

	WorkerConcurrency  int           `yaml:"worker_concurrency"`
	WorkerPollInterval time.Duration `yaml:"worker_poll_interval"`
	WorkerMaxAttempts  int           `yaml:"worker_max_attempts"`

	PostCommitShards int `yaml:"postcommit_shards"`
	PostCommitBuffer int `yaml:"postcommit_buffer"`

	TypingRatePerMinute int `yaml:"typing_rate_per_minute"`
	TypingBurst         int `yaml:"typing_burst"`

	IdempotencyTTL  time.Duration `yaml:"idempotency_ttl"`
	IdempotencyWait time.Duration `yaml:"idempotency_wait"`
}

func defaultConfig() Config {
	return Config{
		LogMode:             "development",
		HTTPAddr:            ":8080",
		ServiceName:         "huddle",
		Environment:         "development",
		Tracing:             observability.OtelConfig{SampleRatio: 0.1},
		RedisChannel:        "huddle:realtime",
		RealtimeBus:         BusNone,
		AMQPExchange:        "huddle.realtime",
		StorageMode:         string(storage.ModeLocal),
		LocalStorageDir:     "./data/attachments",
		PublicFilesURL:      "/files",
		WorkerConcurrency:   2,
		WorkerPollInterval:  time.Second,
		WorkerMaxAttempts:   3,
		PostCommitShards:    8,
		PostCommitBuffer:    1024,
		TypingRatePerMinute: 20,
		TypingBurst:         5,
		IdempotencyTTL:      24 * time.Hour,
		IdempotencyWait:     3 * time.Second,
	}
}

// LoadConfig layers defaults, then the optional CONFIG_FILE, then the
// environment. Secrets are only read from the environment.
func LoadConfig() (Config, error) {
	cfg := defaultConfig()
	if path := envutil.String("CONFIG_FILE", ""); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.LogMode = envutil.String("LOG_MODE", c.LogMode)
	c.HTTPAddr = envutil.String("HTTP_ADDR", c.HTTPAddr)
	if port := envutil.String("PORT", ""); port != "" {
		c.HTTPAddr = ":" + port
	}
	c.ServiceName = envutil.String("OTEL_SERVICE_NAME", c.ServiceName)
	c.Environment = envutil.String("APP_ENV", c.Environment)
	if origins := envutil.String("CORS_ALLOWED_ORIGINS", ""); origins != "" {
		c.AllowedOrigins = splitList(origins)
	}
	c.JWTSecretKey = envutil.String("JWT_SECRET_KEY", c.JWTSecretKey)

	c.Tracing.Enabled = envutil.Bool("OTEL_ENABLED", c.Tracing.Enabled)
	c.Tracing.Endpoint = envutil.String("OTEL_EXPORTER_OTLP_ENDPOINT", c.Tracing.Endpoint)
	if raw := envutil.String("OTEL_EXPORTER_OTLP_HEADERS", ""); raw != "" {
		c.Tracing.Headers = observability.ParseHeaders(raw)
	}
	c.Tracing.Insecure = envutil.Bool("OTEL_EXPORTER_OTLP_INSECURE", c.Tracing.Insecure)
	c.Tracing.SampleRatio = envutil.Float("OTEL_SAMPLER_RATIO", c.Tracing.SampleRatio)
	c.Tracing.Version = envutil.String("SERVICE_VERSION", c.Tracing.Version)
	c.Tracing.ServiceName = c.ServiceName
	c.Tracing.Environment = c.Environment

	c.Postgres = db.PostgresConfigFromEnv()

	c.RedisAddr = envutil.String("REDIS_ADDR", c.RedisAddr)
	c.RedisPassword = envutil.String("REDIS_PASSWORD", c.RedisPassword)
	c.RedisDB = envutil.Int("REDIS_DB", c.RedisDB)
	c.RedisChannel = envutil.String("REDIS_CHANNEL", c.RedisChannel)

	c.RealtimeBus = strings.ToLower(envutil.String("REALTIME_BUS", c.RealtimeBus))
	c.AMQPURL = envutil.String("AMQP_URL", c.AMQPURL)
	c.AMQPExchange = envutil.String("AMQP_EXCHANGE", c.AMQPExchange)

	c.StorageMode = strings.ToLower(envutil.String("OBJECT_STORAGE_MODE", c.StorageMode))
	c.LocalStorageDir = envutil.String("LOCAL_STORAGE_DIR", c.LocalStorageDir)
	c.PublicFilesURL = envutil.String("PUBLIC_FILES_URL", c.PublicFilesURL)
	c.AttachmentBucket = envutil.String("ATTACHMENT_GCS_BUCKET_NAME", c.AttachmentBucket)
	c.StorageEmulatorHost = envutil.String("STORAGE_EMULATOR_HOST", c.StorageEmulatorHost)

	c.WorkerConcurrency = envutil.Int("WORKER_CONCURRENCY", c.WorkerConcurrency)
	c.WorkerPollInterval = envutil.Duration("WORKER_POLL_INTERVAL", c.WorkerPollInterval)
	c.WorkerMaxAttempts = envutil.Int("WORKER_MAX_ATTEMPTS", c.WorkerMaxAttempts)

	c.PostCommitShards = envutil.Int("POSTCOMMIT_SHARDS", c.PostCommitShards)
	c.PostCommitBuffer = envutil.Int("POSTCOMMIT_BUFFER", c.PostCommitBuffer)

	c.TypingRatePerMinute = envutil.Int("TYPING_RATE_PER_MINUTE", c.TypingRatePerMinute)
	c.TypingBurst = envutil.Int("TYPING_BURST", c.TypingBurst)

	c.IdempotencyTTL = envutil.Duration("IDEMPOTENCY_TTL", c.IdempotencyTTL)
	c.IdempotencyWait = envutil.Duration("IDEMPOTENCY_WAIT", c.IdempotencyWait)
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.JWTSecretKey) == "" {
		return fmt.Errorf("JWT_SECRET_KEY is required")
	}
	switch c.RealtimeBus {
	case BusNone:
	case BusRedis:
		if c.RedisAddr == "" {
			return fmt.Errorf("REALTIME_BUS=redis requires REDIS_ADDR")
		}
	case BusAMQP:
		if c.AMQPURL == "" {
			return fmt.Errorf("REALTIME_BUS=amqp requires AMQP_URL")
		}
	default:
		return fmt.Errorf("unknown REALTIME_BUS %q (want none, redis or amqp)", c.RealtimeBus)
	}
	if c.Tracing.SampleRatio < 0 || c.Tracing.SampleRatio > 1 {
		return fmt.Errorf("OTEL_SAMPLER_RATIO must be between 0 and 1")
	}
	if c.TypingRatePerMinute < 1 {
		return fmt.Errorf("TYPING_RATE_PER_MINUTE must be positive")
	}
	return c.StorageConfig().Validate()
}

func (c Config) StorageConfig() storage.Config {
	return storage.Config{
		Mode:          storage.Mode(c.StorageMode),
		LocalDir:      c.LocalStorageDir,
		PublicBaseURL: c.PublicFilesURL,
		Bucket:        c.AttachmentBucket,
		EmulatorHost:  c.StorageEmulatorHost,
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
