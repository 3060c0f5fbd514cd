package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Queue    QueueConfig    `mapstructure:"queue"`
	ERP      ERPConfig      `mapstructure:"erp"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Pricing  PricingConfig  `mapstructure:"pricing"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	URL             string        `mapstructure:"url"`
	Path            string        `mapstructure:"path"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"`
}

// DSN returns the connection string for the configured driver.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return c.URL
	}
	if c.Path == ":memory:" {
		return "file::memory:?cache=shared"
	}
	return c.Path
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type QueueConfig struct {
	Stream       string        `mapstructure:"stream"`
	Group        string        `mapstructure:"group"`
	MaxLen       int64         `mapstructure:"max_len"`
	Block        time.Duration `mapstructure:"block"`
	ClaimMinIdle time.Duration `mapstructure:"claim_min_idle"`
}

type ERPConfig struct {
	BaseURL     string        `mapstructure:"base_url"`
	APIToken    string        `mapstructure:"api_token"`
	Timeout     time.Duration `mapstructure:"timeout"`
	RetryCount  int           `mapstructure:"retry_count"`
	RetryWait   time.Duration `mapstructure:"retry_wait"`
	RateLimit   float64       `mapstructure:"rate_limit"`
	Burst       int           `mapstructure:"burst"`
	PageSize    int           `mapstructure:"page_size"`
	MinStock    int           `mapstructure:"min_stock"`
	ActiveOnly  bool          `mapstructure:"active_only"`
	ProductType string        `mapstructure:"product_type"`
}

type SyncConfig struct {
	BatchSize     int      `mapstructure:"batch_size"`
	Schedule      string   `mapstructure:"schedule"`
	PremiumBrands []string `mapstructure:"premium_brands"`
	BudgetBrands  []string `mapstructure:"budget_brands"`
}

type PricingConfig struct {
	ChunkSize           int     `mapstructure:"chunk_size"`
	DefaultShippingCost float64 `mapstructure:"default_shipping_cost"`
}

type WorkerConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	LeaseTimeout      time.Duration `mapstructure:"lease_timeout"`
	MaxAttempts       int           `mapstructure:"max_attempts"`
	RequeueAfter      time.Duration `mapstructure:"requeue_after"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	AdminRole string `mapstructure:"admin_role"`
}

type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Type      string `mapstructure:"type"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.url", "DATABASE_URL")
	v.BindEnv("redis.addr", "REDIS_ADDR")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("erp.base_url", "ERP_BASE_URL")
	v.BindEnv("erp.api_token", "ERP_API_TOKEN")
	v.BindEnv("auth.jwt_secret", "JWT_SECRET")
	v.BindEnv("storage.endpoint", "S3_ENDPOINT")
	v.BindEnv("storage.access_key", "S3_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "S3_SECRET_KEY")
	v.BindEnv("storage.bucket", "S3_BUCKET")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", false)
	v.SetDefault("server.cors.allowed_origins", []string{})

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/lenscat.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("queue.stream", "lenscat:jobs")
	v.SetDefault("queue.group", "lenscat-workers")
	v.SetDefault("queue.max_len", 10000)
	v.SetDefault("queue.block", 5*time.Second)
	v.SetDefault("queue.claim_min_idle", 10*time.Minute)

	v.SetDefault("erp.timeout", 5*time.Minute)
	v.SetDefault("erp.retry_count", 2)
	v.SetDefault("erp.retry_wait", 2*time.Second)
	v.SetDefault("erp.rate_limit", 5.0)
	v.SetDefault("erp.burst", 1)
	v.SetDefault("erp.page_size", 100)
	v.SetDefault("erp.min_stock", 1)
	v.SetDefault("erp.active_only", true)
	v.SetDefault("erp.product_type", "")

	v.SetDefault("sync.batch_size", 50)
	v.SetDefault("sync.schedule", "")
	v.SetDefault("sync.premium_brands", []string{})
	v.SetDefault("sync.budget_brands", []string{})

	v.SetDefault("pricing.chunk_size", 100)
	v.SetDefault("pricing.default_shipping_cost", 25.0)

	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.heartbeat_interval", 15*time.Second)
	v.SetDefault("worker.lease_timeout", 2*time.Minute)
	v.SetDefault("worker.max_attempts", 3)
	v.SetDefault("worker.requeue_after", 5*time.Minute)
	v.SetDefault("worker.sweep_interval", 30*time.Second)

	v.SetDefault("auth.admin_role", "admin")

	v.SetDefault("storage.enabled", false)
	v.SetDefault("storage.use_ssl", true)
	v.SetDefault("storage.prefix", "reports")

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9090")
}

// Validate rejects settings the job subsystem cannot run with.
func (c *Config) Validate() error {
	if c.Sync.BatchSize <= 0 {
		return fmt.Errorf("sync.batch_size must be positive")
	}
	if c.Pricing.ChunkSize <= 0 {
		return fmt.Errorf("pricing.chunk_size must be positive")
	}
	if c.Pricing.DefaultShippingCost < 0 {
		return fmt.Errorf("pricing.default_shipping_cost must not be negative")
	}
	if c.Worker.Concurrency <= 0 {
		return fmt.Errorf("worker.concurrency must be positive")
	}
	if c.Worker.HeartbeatInterval >= c.Worker.LeaseTimeout {
		return fmt.Errorf("worker.heartbeat_interval must be shorter than worker.lease_timeout")
	}
	if c.Worker.MaxAttempts <= 0 {
		return fmt.Errorf("worker.max_attempts must be positive")
	}
	if c.Database.Driver == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("database.url (DATABASE_URL) is required for postgres")
	}
	return nil
}
