package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers
const (
	DriverMemory   = "memory"
	DriverRedis    = "redis"
	DriverSQLite   = "sqlite"
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverMinio    = "minio"
)

// Analysis providers
const (
	ProviderWebhook = "webhook"
	ProviderOpenAI  = "openai"
)

type Config struct {
	Server struct {
		Port            int               `yaml:"port"`
		ShutdownTimeout time.Duration     `yaml:"shutdownTimeout"`
		CORSOrigins     []string          `yaml:"corsOrigins"`
		APIKeys         map[string]string `yaml:"apiKeys"`
		RateLimit       struct {
			Capacity     int `yaml:"capacity"`
			RefillPerSec int `yaml:"refillPerSec"`
		} `yaml:"rateLimit"`
	} `yaml:"server"`

	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
		Prod  bool   `yaml:"prod"`
	} `yaml:"log"`

	Cache struct {
		TTL        time.Duration `yaml:"ttl"`
		Namespace  string        `yaml:"namespace"`
		EvictBatch int           `yaml:"evictBatch"`
		// MaxEntries caps memory and SQL stores, 0 is unbounded
		MaxEntries int `yaml:"maxEntries"`
	} `yaml:"cache"`

	Panels struct {
		IdleTTL time.Duration `yaml:"idleTTL"`
	} `yaml:"panels"`

	Store struct {
		Driver string `yaml:"driver"`
		Redis  struct {
			URL string `yaml:"url"`
		} `yaml:"redis"`
		SQLite struct {
			Path string `yaml:"path"`
		} `yaml:"sqlite"`
		Postgres struct {
			DSN string `yaml:"dsn"`
		} `yaml:"postgres"`
	} `yaml:"store"`

	Database struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		User     string `yaml:"user"`
		Password string `yaml:"password"`
		Name     string `yaml:"name"`
	} `yaml:"database"`

	Minio struct {
		Endpoint   string `yaml:"endpoint"`
		AccessKey  string `yaml:"accessKey"`
		SecretKey  string `yaml:"secretKey"`
		BucketName string `yaml:"bucketName"`
		Region     string `yaml:"region"`
		UseSSL     bool   `yaml:"useSSL"`
	} `yaml:"minio"`

	Upstream struct {
		Provider     string `yaml:"provider"`
		BuildingsURL string `yaml:"buildingsURL"`
		WebhookURL   string `yaml:"webhookURL"`
		Token        string `yaml:"token"`
		// BuildingGate fetches the building before every network analysis
		BuildingGate bool `yaml:"buildingGate"`
	} `yaml:"upstream"`

	OpenAI struct {
		APIKey string `yaml:"apiKey"`
		Model  string `yaml:"model"`
	} `yaml:"openai"`
}

// Path returns config.yaml unless CONFIG_PATH is set
func Path() string {
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		return v
	}
	return "config.yaml"
}

// Load baca file config.yaml. A missing file means defaults plus environment.
func Load(path string) (*Config, error) {
	// .env opsional
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	var cfg Config
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return nil, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	setString(&c.OpenAI.APIKey, "OPENAI_API_KEY")
	setString(&c.Store.Redis.URL, "REDIS_URL")
	setString(&c.Store.Postgres.DSN, "POSTGRES_DSN")
	setString(&c.Store.Driver, "STORE_DRIVER")
	setString(&c.Upstream.Token, "UPSTREAM_TOKEN")
	setString(&c.Minio.AccessKey, "MINIO_ACCESS_KEY")
	setString(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
	setString(&c.Database.Password, "DB_PASSWORD")
	if v := os.Getenv("PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Server.Port = p
		}
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if len(c.Server.CORSOrigins) == 0 {
		c.Server.CORSOrigins = []string{"*"}
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Cache.TTL <= 0 {
		c.Cache.TTL = 24 * time.Hour
	}
	if c.Cache.Namespace == "" {
		c.Cache.Namespace = "analysis:"
	}
	if c.Cache.EvictBatch <= 0 {
		c.Cache.EvictBatch = 5
	}
	if c.Panels.IdleTTL <= 0 {
		c.Panels.IdleTTL = 30 * time.Minute
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverMemory
	}
	if c.Database.Port == 0 {
		c.Database.Port = 3306
	}
	if c.Upstream.Provider == "" {
		c.Upstream.Provider = ProviderWebhook
	}
}

// Validate checks the combinations the process cannot start without
func (c *Config) Validate() error {
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite, DriverMySQL:
	case DriverRedis:
		if c.Store.Redis.URL == "" {
			return errors.New("store.redis.url (or REDIS_URL) is required for the redis driver")
		}
	case DriverPostgres:
		if c.Store.Postgres.DSN == "" {
			return errors.New("store.postgres.dsn (or POSTGRES_DSN) is required for the postgres driver")
		}
	case DriverMinio:
		if c.Minio.Endpoint == "" || c.Minio.BucketName == "" {
			return errors.New("minio.endpoint and minio.bucketName are required for the minio driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}

	switch c.Upstream.Provider {
	case ProviderWebhook:
		if c.Upstream.WebhookURL == "" {
			return errors.New("upstream.webhookURL is required for the webhook provider")
		}
	case ProviderOpenAI:
		if c.OpenAI.APIKey == "" {
			return errors.New("openai.apiKey (or OPENAI_API_KEY) is required for the openai provider")
		}
	default:
		return fmt.Errorf("unknown analysis provider %q", c.Upstream.Provider)
	}
	if c.Upstream.BuildingGate && c.Upstream.BuildingsURL == "" {
		return errors.New("upstream.buildingsURL is required when buildingGate is on")
	}
	return nil
}

// Helper untuk build DSN MySQL
func (c *Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&charset=utf8mb4&loc=UTC",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
	)
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
