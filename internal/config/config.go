package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the cover generation worker.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Vertex   VertexConfig
	Storage  StorageConfig
	NATS     NATSConfig
	Worker   WorkerConfig
}

type ServerConfig struct {
	Port           int
	Env            string
	AuthToken      string
	AuthTokenHash  string
	RequestsPerMin int
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL string
}

// VertexConfig configures the Imagen predict endpoint. A missing project or
// missing credentials is not a startup error: every generation attempt then
// fails and the job ends failed.
type VertexConfig struct {
	ProjectID          string
	Location           string
	Model              string
	AccessToken        string
	ServiceAccountJSON string
	CredentialsFile    string
	SafetyFilterLevel  string
	PersonGeneration   string
	Timeout            time.Duration
	BaseURL            string
}

type StorageConfig struct {
	Driver          string
	R2AccountID     string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	Endpoint        string
	PublicURL       string
	LocalPath       string
	KeyPrefix       string
}

type NATSConfig struct {
	URL              string
	Subject          string
	Queue            string
	CompletedSubject string
}

type WorkerConfig struct {
	InvocationTimeout time.Duration
	StaleJobTimeout   time.Duration
	SweepInterval     time.Duration
}

// LockGrace is how long a job lock outlives the invocation deadline.
const LockGrace = 30 * time.Second

var validStorageDrivers = map[string]bool{
	"r2":         true,
	"filesystem": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Values from .env and .env.local are loaded first; variables already set in
// the process environment win.
func Load() (*Config, error) {
	loadDotEnv(".env", ".env.local")

	cfg := &Config{
		Server: ServerConfig{
			Port:           envInt("COVERGEN_PORT", 8080),
			Env:            envString("COVERGEN_ENV", "development"),
			AuthToken:      os.Getenv("AUTH_TOKEN"),
			AuthTokenHash:  os.Getenv("AUTH_TOKEN_HASH"),
			RequestsPerMin: envInt("COVERGEN_REQUESTS_PER_MIN", 60),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("DATABASE_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Vertex: VertexConfig{
			ProjectID:          os.Getenv("VERTEX_PROJECT_ID"),
			Location:           envString("VERTEX_LOCATION", "us-central1"),
			Model:              envString("VERTEX_IMAGEN_MODEL", "imagen-4.0-generate-001"),
			AccessToken:        os.Getenv("VERTEX_ACCESS_TOKEN"),
			ServiceAccountJSON: os.Getenv("VERTEX_SERVICE_ACCOUNT_JSON"),
			CredentialsFile:    os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
			SafetyFilterLevel:  envString("VERTEX_SAFETY_FILTER_LEVEL", "BLOCK_ONLY_HIGH"),
			PersonGeneration:   envString("VERTEX_PERSON_GENERATION", "ALLOW_ADULT"),
			Timeout:            envDurationSecs("VERTEX_TIMEOUT_SECONDS", 120*time.Second),
			BaseURL:            os.Getenv("VERTEX_BASE_URL"),
		},
		Storage: StorageConfig{
			Driver:          envString("STORAGE_DRIVER", "r2"),
			R2AccountID:     os.Getenv("R2_ACCOUNT_ID"),
			AccessKeyID:     os.Getenv("R2_ACCESS_KEY_ID"),
			SecretAccessKey: os.Getenv("R2_SECRET_ACCESS_KEY"),
			Bucket:          envString("R2_BUCKET_NAME", "bearing-uploads"),
			Endpoint:        os.Getenv("R2_ENDPOINT"),
			PublicURL:       os.Getenv("R2_PUBLIC_URL"),
			LocalPath:       envString("STORAGE_LOCAL_PATH", "./data/uploads"),
			KeyPrefix:       envString("COVER_KEY_PREFIX", "tmp/covers"),
		},
		NATS: NATSConfig{
			URL:              os.Getenv("NATS_URL"),
			Subject:          envString("NATS_COVER_SUBJECT", "covers.generate"),
			Queue:            envString("NATS_COVER_QUEUE", "covergen-workers"),
			CompletedSubject: envString("NATS_COVER_COMPLETED_SUBJECT", "covers.completed"),
		},
		Worker: WorkerConfig{
			InvocationTimeout: envDurationSecs("COVER_INVOCATION_TIMEOUT_SECS", 600*time.Second),
			StaleJobTimeout:   envDuration("COVER_STALE_JOB_TIMEOUT", 30*time.Minute),
			SweepInterval:     envDuration("COVER_SWEEP_INTERVAL", time.Minute),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadDotEnv loads each file that exists. godotenv.Load never overrides
// variables that are already set.
func loadDotEnv(files ...string) {
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		_ = godotenv.Load(f)
	}
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Server.AuthToken == "" && c.Server.AuthTokenHash == "" {
		return fmt.Errorf("AUTH_TOKEN or AUTH_TOKEN_HASH is required")
	}

	if c.Server.RequestsPerMin < 0 {
		return fmt.Errorf("COVERGEN_REQUESTS_PER_MIN must not be negative, got %d", c.Server.RequestsPerMin)
	}

	if !validStorageDrivers[c.Storage.Driver] {
		return fmt.Errorf("STORAGE_DRIVER must be one of r2, filesystem; got %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "r2" {
		if c.Storage.R2AccountID == "" && c.Storage.Endpoint == "" {
			return fmt.Errorf("R2_ACCOUNT_ID is required when STORAGE_DRIVER is r2")
		}
		if c.Storage.AccessKeyID == "" || c.Storage.SecretAccessKey == "" {
			return fmt.Errorf("R2_ACCESS_KEY_ID and R2_SECRET_ACCESS_KEY are required when STORAGE_DRIVER is r2")
		}
	}
	if c.Storage.Endpoint != "" && !isHTTPURL(c.Storage.Endpoint) {
		return fmt.Errorf("R2_ENDPOINT must start with http:// or https://, got %q", c.Storage.Endpoint)
	}

	if c.Vertex.BaseURL != "" && !isHTTPURL(c.Vertex.BaseURL) {
		return fmt.Errorf("VERTEX_BASE_URL must start with http:// or https://, got %q", c.Vertex.BaseURL)
	}

	if c.NATS.URL != "" && c.NATS.Subject == "" {
		return fmt.Errorf("NATS_COVER_SUBJECT is required when NATS_URL is set")
	}

	if c.Worker.InvocationTimeout <= 0 {
		return fmt.Errorf("COVER_INVOCATION_TIMEOUT_SECS must be positive")
	}
	if c.Worker.StaleJobTimeout <= 0 {
		return fmt.Errorf("COVER_STALE_JOB_TIMEOUT must be positive")
	}
	if c.Worker.StaleJobTimeout <= c.Worker.InvocationTimeout+LockGrace {
		return fmt.Errorf("COVER_STALE_JOB_TIMEOUT must exceed COVER_INVOCATION_TIMEOUT_SECS plus %s (%s), got %s",
			LockGrace, c.Worker.InvocationTimeout+LockGrace, c.Worker.StaleJobTimeout)
	}

	return nil
}

// R2Endpoint returns the S3-compatible endpoint for the configured account.
func (s StorageConfig) R2Endpoint() string {
	if s.Endpoint != "" {
		return s.Endpoint
	}
	return fmt.Sprintf("https://%s.r2.cloudflarestorage.com", s.R2AccountID)
}

func isHTTPURL(v string) bool {
	return strings.HasPrefix(v, "http://") || strings.HasPrefix(v, "https://")
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
