package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	AWS       AWSConfig       `yaml:"aws"`
	Generator GeneratorConfig `yaml:"generator"`
	Booth     BoothConfig     `yaml:"booth"`
	Jobs      JobsConfig      `yaml:"jobs"`
	Push      PushConfig      `yaml:"push"`
	Admin     AdminConfig     `yaml:"admin"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port          int    `yaml:"port"`
	Host          string `yaml:"host"`
	PublicBaseURL string `yaml:"public_base_url"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// AWSConfig holds S3 storage configuration
type AWSConfig struct {
	Region     string `yaml:"region"`
	S3Bucket   string `yaml:"s3_bucket"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Endpoint   string `yaml:"endpoint"` // custom S3-compatible endpoint, optional
	DisableSSL bool   `yaml:"disable_ssl"`
}

// GeneratorConfig holds the external image generator configuration
type GeneratorConfig struct {
	BaseURL     string `yaml:"base_url"`
	Token       string `yaml:"token"`
	Model       string `yaml:"model"`
	Size        string `yaml:"size"`
	AspectRatio string `yaml:"aspect_ratio"`
}

// BoothConfig holds booth scheduling tunables
type BoothConfig struct {
	QuietPeriodSeconds int `yaml:"quiet_period_seconds"`
	RetryDelaySeconds  int `yaml:"retry_delay_seconds"`
	DefaultMemberSize  int `yaml:"default_member_size"`
}

// JobsConfig holds durable job runner tunables
type JobsConfig struct {
	Workers             int `yaml:"workers"`
	QueueSize           int `yaml:"queue_size"`
	MaxAttempts         int `yaml:"max_attempts"`
	RetryBackoffSeconds int `yaml:"retry_backoff_seconds"`
	AbandonAfterMinutes int `yaml:"abandon_after_minutes"`
}

// PushConfig holds APNs configuration
type PushConfig struct {
	Enabled     bool   `yaml:"enabled"`
	P12Path     string `yaml:"p12_path"`
	P12Password string `yaml:"p12_password"`
	Topic       string `yaml:"topic"`
	Production  bool   `yaml:"production"`
}

// AdminConfig holds the administrative surface configuration
type AdminConfig struct {
	Password  string `yaml:"password"`
	JWTSecret string `yaml:"jwt_secret"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level string `yaml:"level"`
}

// Load reads configuration from a YAML file. A .env file, if present, is
// loaded first so secrets can be kept out of the YAML.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	return &cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATABASE_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("AWS_ACCESS_KEY"); v != "" {
		cfg.AWS.AccessKey = v
	}
	if v := os.Getenv("AWS_SECRET_KEY"); v != "" {
		cfg.AWS.SecretKey = v
	}
	if v := os.Getenv("GENERATOR_TOKEN"); v != "" {
		cfg.Generator.Token = v
	}
	if v := os.Getenv("ADMIN_PASSWORD"); v != "" {
		cfg.Admin.Password = v
	}
	if v := os.Getenv("ADMIN_JWT_SECRET"); v != "" {
		cfg.Admin.JWTSecret = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Booth.QuietPeriodSeconds <= 0 {
		cfg.Booth.QuietPeriodSeconds = 30
	}
	if cfg.Booth.RetryDelaySeconds <= 0 {
		cfg.Booth.RetryDelaySeconds = 10
	}
	if cfg.Booth.DefaultMemberSize <= 0 {
		cfg.Booth.DefaultMemberSize = 2
	}
	if cfg.Jobs.Workers <= 0 {
		cfg.Jobs.Workers = 2
	}
	if cfg.Jobs.QueueSize <= 0 {
		cfg.Jobs.QueueSize = 64
	}
	if cfg.Jobs.MaxAttempts <= 0 {
		cfg.Jobs.MaxAttempts = 5
	}
	if cfg.Jobs.RetryBackoffSeconds <= 0 {
		cfg.Jobs.RetryBackoffSeconds = 2
	}
	if cfg.Jobs.AbandonAfterMinutes <= 0 {
		cfg.Jobs.AbandonAfterMinutes = 15
	}
}

// QuietPeriod returns the minimum gap since the last fauxto before an
// under-threshold snap may fire.
func (c *BoothConfig) QuietPeriod() time.Duration {
	return time.Duration(c.QuietPeriodSeconds) * time.Second
}

// RetryDelay returns the debounce delay before a scheduled snap retry.
func (c *BoothConfig) RetryDelay() time.Duration {
	return time.Duration(c.RetryDelaySeconds) * time.Second
}

// RetryBackoff returns the per-step retry backoff unit.
func (c *JobsConfig) RetryBackoff() time.Duration {
	return time.Duration(c.RetryBackoffSeconds) * time.Second
}

// AbandonAfter returns how long a recovered job may have been in flight
// before it is considered abandoned.
func (c *JobsConfig) AbandonAfter() time.Duration {
	return time.Duration(c.AbandonAfterMinutes) * time.Minute
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
