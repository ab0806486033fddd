package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

var sizePattern = regexp.MustCompile(`(?i)^(\d+(?:\.\d+)?)\s*(B|KB|MB|GB|TB)?$`)

// ParseSize converts a human-readable size string (e.g., "5GB", "500MB", "1024KB")
// to bytes. Supports B, KB, MB, GB, TB suffixes (case-insensitive).
// Also accepts plain numbers as bytes.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size string")
	}

	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid size format: %s (use e.g., '5GB', '500MB', '1024KB')", s)
	}

	value, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number in size: %s", s)
	}

	unit := strings.ToUpper(matches[2])
	if unit == "" {
		unit = "B"
	}

	multipliers := map[string]float64{
		"B":  1,
		"KB": 1024,
		"MB": 1024 * 1024,
		"GB": 1024 * 1024 * 1024,
		"TB": 1024 * 1024 * 1024 * 1024,
	}

	return int64(value * multipliers[unit]), nil
}

type Config struct {
	Listen    string         `yaml:"listen"`
	PublicURL string         `yaml:"public_url"`
	Database  DatabaseConfig `yaml:"database"`
	Session   SessionConfig  `yaml:"session"`
	Storage   StorageConfig  `yaml:"storage"`
	Mail      MailConfig     `yaml:"mail"`
	OTP       OTPConfig      `yaml:"otp"`
	Auth      AuthConfig     `yaml:"auth"`
	Upload    UploadConfig   `yaml:"upload"`
	Logs      LogsConfig     `yaml:"logs"`
	TLS       TLSConfig      `yaml:"tls"`
}

type TLSConfig struct {
	Enabled bool   `yaml:"enabled"`
	Cert    string `yaml:"cert"`
	Key     string `yaml:"key"`
}

// DatabaseConfig selects the credential and metadata backend.
// Driver is one of sqlite, mysql, postgres.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type SessionConfig struct {
	Backend       string        `yaml:"backend"` // filesystem, cookie, redis
	Timeout       time.Duration `yaml:"timeout"`
	Secret        string        `yaml:"secret"`
	EncryptionKey string        `yaml:"encryption_key"` // 16, 24 or 32 bytes; derived from Secret if empty
	Path          string        `yaml:"path"`           // filesystem backend directory
	Redis         RedisConfig   `yaml:"redis"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type StorageConfig struct {
	Backend string        `yaml:"backend"` // filesystem, s3
	Path    string        `yaml:"path"`
	Timeout time.Duration `yaml:"timeout"`
	S3      S3Config      `yaml:"s3"`
	Breaker BreakerConfig `yaml:"breaker"`
}

type S3Config struct {
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	PathStyle bool   `yaml:"path_style"`
}

type BreakerConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxFailures uint32        `yaml:"max_failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

type MailConfig struct {
	Backend  string        `yaml:"backend"` // smtp, log
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	From     string        `yaml:"from"`
	Timeout  time.Duration `yaml:"timeout"`
}

type OTPConfig struct {
	Digits      int           `yaml:"digits"`
	TTL         time.Duration `yaml:"ttl"`
	Issuer      string        `yaml:"issuer"`
	MaxAttempts int           `yaml:"max_attempts"` // 0 disables the limit
}

type AuthConfig struct {
	MinPasswordLength int `yaml:"min_password_length"`
	BcryptCost        int `yaml:"bcrypt_cost"`
}

type UploadConfig struct {
	MaxSize    int64  `yaml:"-"`
	MaxSizeRaw string `yaml:"max_size"`
}

type LogsConfig struct {
	Persist   bool          `yaml:"persist"`
	Retention time.Duration `yaml:"retention"`
	Level     string        `yaml:"level"`
}

var C Config

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Listen:    ":5000",
		PublicURL: "http://localhost:5000",
		Database: DatabaseConfig{
			Driver: "sqlite",
			DSN:    "secureone.db",
		},
		Session: SessionConfig{
			Backend: "filesystem",
			Timeout: 24 * time.Hour,
			Path:    "data/sessions",
			Redis:   RedisConfig{Addr: "localhost:6379"},
		},
		Storage: StorageConfig{
			Backend: "filesystem",
			Path:    "data/objects",
			Timeout: 30 * time.Second,
			S3: S3Config{
				Bucket:    "files",
				Region:    "us-east-1",
				PathStyle: true,
			},
			Breaker: BreakerConfig{
				Enabled:     true,
				MaxFailures: 5,
				OpenTimeout: 30 * time.Second,
			},
		},
		Mail: MailConfig{
			Backend: "log",
			Port:    587,
			From:    "SecureOne <no-reply@localhost>",
			Timeout: 15 * time.Second,
		},
		OTP: OTPConfig{
			Digits: 6,
			TTL:    600 * time.Second,
			Issuer: "SecureOne",
		},
		Auth: AuthConfig{
			MinPasswordLength: 6,
			BcryptCost:        10,
		},
		Upload: UploadConfig{
			MaxSize: 50 * 1024 * 1024, // 50MB
		},
		Logs: LogsConfig{
			Retention: 48 * time.Hour,
			Level:     "info",
		},
	}
}

func Load() error {
	C = Defaults()

	path := "config.yaml"
	if v := os.Getenv("CONFIG_FILE"); v != "" {
		path = v
	}
	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, &C); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if C.Upload.MaxSizeRaw != "" {
		size, err := ParseSize(C.Upload.MaxSizeRaw)
		if err != nil {
			return fmt.Errorf("upload.max_size: %w", err)
		}
		C.Upload.MaxSize = size
	}

	applyEnv(&C)
	return C.Validate()
}

func applyEnv(c *Config) {
	if v := os.Getenv("LISTEN"); v != "" {
		c.Listen = v
	}
	if v := os.Getenv("PUBLIC_URL"); v != "" {
		c.PublicURL = v
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		c.Database.DSN = v
	}
	if v := os.Getenv("SESSION_BACKEND"); v != "" {
		c.Session.Backend = v
	}
	if v := os.Getenv("SESSION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Session.Timeout = d
		}
	}
	if v := os.Getenv("SESSION_SECRET"); v != "" {
		c.Session.Secret = v
	}
	if v := os.Getenv("SESSION_ENCRYPTION_KEY"); v != "" {
		c.Session.EncryptionKey = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Session.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Session.Redis.Password = v
	}
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("STORAGE_PATH"); v != "" {
		c.Storage.Path = v
	}
	if v := os.Getenv("S3_BUCKET"); v != "" {
		c.Storage.S3.Bucket = v
	}
	if v := os.Getenv("S3_REGION"); v != "" {
		c.Storage.S3.Region = v
	}
	if v := os.Getenv("S3_ENDPOINT"); v != "" {
		c.Storage.S3.Endpoint = v
	}
	if v := os.Getenv("S3_ACCESS_KEY"); v != "" {
		c.Storage.S3.AccessKey = v
	}
	if v := os.Getenv("S3_SECRET_KEY"); v != "" {
		c.Storage.S3.SecretKey = v
	}
	if v := os.Getenv("MAIL_BACKEND"); v != "" {
		c.Mail.Backend = v
	}
	if v := os.Getenv("SMTP_HOST"); v != "" {
		c.Mail.Host = v
	}
	if v := os.Getenv("SMTP_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Mail.Port = n
		}
	}
	if v := os.Getenv("SMTP_USERNAME"); v != "" {
		c.Mail.Username = v
	}
	if v := os.Getenv("SMTP_PASSWORD"); v != "" {
		c.Mail.Password = v
	}
	if v := os.Getenv("MAIL_FROM"); v != "" {
		c.Mail.From = v
	}
	if v := os.Getenv("OTP_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.OTP.MaxAttempts = n
		}
	}
	if v := os.Getenv("UPLOAD_MAX_SIZE"); v != "" {
		if size, err := ParseSize(v); err == nil {
			c.Upload.MaxSize = size
		}
	}
	if v := os.Getenv("LOGS_PERSIST"); v == "true" {
		c.Logs.Persist = true
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logs.Level = v
	}
	if v := os.Getenv("TLS_ENABLED"); v == "true" {
		c.TLS.Enabled = true
	}
	if v := os.Getenv("TLS_CERT"); v != "" {
		c.TLS.Cert = v
	}
	if v := os.Getenv("TLS_KEY"); v != "" {
		c.TLS.Key = v
	}
}

// Validate rejects settings the server cannot start with. The session secret
// is checked separately by handlers.InitSession.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite", "mysql", "postgres":
	default:
		return fmt.Errorf("database.driver: unknown driver %q", c.Database.Driver)
	}
	switch c.Session.Backend {
	case "filesystem", "cookie", "redis":
	default:
		return fmt.Errorf("session.backend: unknown backend %q", c.Session.Backend)
	}
	switch c.Storage.Backend {
	case "filesystem", "s3":
	default:
		return fmt.Errorf("storage.backend: unknown backend %q", c.Storage.Backend)
	}
	switch c.Mail.Backend {
	case "smtp":
		if c.Mail.Host == "" {
			return fmt.Errorf("mail.host is required for the smtp backend")
		}
	case "log":
	default:
		return fmt.Errorf("mail.backend: unknown backend %q", c.Mail.Backend)
	}
	if c.OTP.Digits != 6 && c.OTP.Digits != 8 {
		return fmt.Errorf("otp.digits must be 6 or 8, got %d", c.OTP.Digits)
	}
	if c.OTP.TTL <= 0 {
		return fmt.Errorf("otp.ttl must be positive")
	}
	if c.Auth.MinPasswordLength < 1 {
		return fmt.Errorf("auth.min_password_length must be at least 1")
	}
	if c.Upload.MaxSize <= 0 {
		return fmt.Errorf("upload.max_size must be positive")
	}
	return nil
}
