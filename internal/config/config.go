package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Config holds application configuration
type Config struct {
	Port            string        `yaml:"port"`
	StorageDriver   string        `yaml:"storage_driver"`
	DBConn          string        `yaml:"db_conn"`
	LogLevel        string        `yaml:"log_level"`
	JWTSecret       string        `yaml:"jwt_secret"`
	JWTTTL          time.Duration `yaml:"jwt_ttl"`
	HMACSecret      string        `yaml:"hmac_secret"`
	EncryptionKey   string        `yaml:"encryption_key"`
	IssuerPrefix    string        `yaml:"issuer_prefix"`
	TransferTimeout time.Duration `yaml:"transfer_timeout"`
	RedisAddr       string        `yaml:"redis_addr"`
	IdempotencyTTL  time.Duration `yaml:"idempotency_ttl"`
	SMTPHost        string        `yaml:"smtp_host"`
	SMTPPort        string        `yaml:"smtp_port"`
	SMTPUsername    string        `yaml:"smtp_username"`
	SMTPPassword    string        `yaml:"smtp_password"`
	SenderEmail     string        `yaml:"sender_email"`
	AdminEmail      string        `yaml:"admin_email"`
	DigestSchedule  string        `yaml:"digest_schedule"`
	AdminUsername   string        `yaml:"admin_username"`
	AdminPassword   string        `yaml:"admin_password"`
}

// NewConfig loads configuration from environment variables, optionally
// layered over the YAML file named by CONFIG_FILE.
func NewConfig() (*Config, error) {
	cfg := &Config{
		Port:            "8080",
		StorageDriver:   StoragePostgres,
		DBConn:          "host=localhost port=5436 user=test password=test dbname=bank sslmode=disable",
		LogLevel:        "INFO",
		JWTSecret:       "secret",
		JWTTTL:          24 * time.Hour,
		HMACSecret:      "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6",
		EncryptionKey:   "a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6a1b2c3d4e5f6a7b8c9d0e1f2a3b4c5d6",
		IssuerPrefix:    "411111",
		TransferTimeout: 5 * time.Second,
		IdempotencyTTL:  24 * time.Hour,
		SMTPPort:        "587",
		DigestSchedule:  "0 9 * * *",
		AdminUsername:   "admin",
		AdminPassword:   "admin123",
	}

	if path, ok := os.LookupEnv("CONFIG_FILE"); ok && path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}

	cfg.Port = getEnv("PORT", cfg.Port)
	cfg.StorageDriver = getEnv("STORAGE_DRIVER", cfg.StorageDriver)
	cfg.DBConn = getEnv("DB_CONN", cfg.DBConn)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.JWTSecret = getEnv("JWT_SECRET", cfg.JWTSecret)
	cfg.HMACSecret = getEnv("HMAC_SECRET", cfg.HMACSecret)
	cfg.EncryptionKey = getEnv("ENCRYPTION_KEY", cfg.EncryptionKey)
	cfg.IssuerPrefix = getEnv("ISSUER_PREFIX", cfg.IssuerPrefix)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	cfg.SMTPHost = getEnv("SMTP_HOST", cfg.SMTPHost)
	cfg.SMTPPort = getEnv("SMTP_PORT", cfg.SMTPPort)
	cfg.SMTPUsername = getEnv("SMTP_USERNAME", cfg.SMTPUsername)
	cfg.SMTPPassword = getEnv("SMTP_PASSWORD", cfg.SMTPPassword)
	cfg.SenderEmail = getEnv("SENDER_EMAIL", cfg.SenderEmail)
	cfg.AdminEmail = getEnv("ADMIN_EMAIL", cfg.AdminEmail)
	cfg.DigestSchedule = getEnv("DIGEST_SCHEDULE", cfg.DigestSchedule)
	cfg.AdminUsername = getEnv("ADMIN_USERNAME", cfg.AdminUsername)
	cfg.AdminPassword = getEnv("ADMIN_PASSWORD", cfg.AdminPassword)

	var err error
	if cfg.JWTTTL, err = getDuration("JWT_TTL", cfg.JWTTTL); err != nil {
		return nil, err
	}
	if cfg.TransferTimeout, err = getDuration("TRANSFER_TIMEOUT", cfg.TransferTimeout); err != nil {
		return nil, err
	}
	if cfg.IdempotencyTTL, err = getDuration("IDEMPOTENCY_TTL", cfg.IdempotencyTTL); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// EncryptionKeyBytes returns the decoded AES key.
func (c *Config) EncryptionKeyBytes() []byte {
	key, _ := hex.DecodeString(c.EncryptionKey)
	return key
}

// NotificationsEnabled reports whether SMTP delivery is configured.
func (c *Config) NotificationsEnabled() bool {
	return c.SMTPHost != "" && c.SenderEmail != ""
}

func (c *Config) validate() error {
	switch c.StorageDriver {
	case StoragePostgres:
		if c.DBConn == "" {
			return fmt.Errorf("DB_CONN is required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.HMACSecret == "" {
		return fmt.Errorf("HMAC_SECRET is required")
	}
	if c.EncryptionKey == "" {
		return fmt.Errorf("ENCRYPTION_KEY is required")
	}
	if key, err := hex.DecodeString(c.EncryptionKey); err != nil || len(key) != 32 {
		return fmt.Errorf("ENCRYPTION_KEY must be 64 hex characters")
	}
	if len(c.IssuerPrefix) != 6 {
		return fmt.Errorf("ISSUER_PREFIX must be 6 digits, got %q", c.IssuerPrefix)
	}
	for _, r := range c.IssuerPrefix {
		if r < '0' || r > '9' {
			return fmt.Errorf("ISSUER_PREFIX must be 6 digits, got %q", c.IssuerPrefix)
		}
	}
	if c.TransferTimeout <= 0 {
		return fmt.Errorf("TRANSFER_TIMEOUT must be positive")
	}
	return nil
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("error reading config file: %w", err)
	}
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), cfg); err != nil {
		return fmt.Errorf("error parsing config file: %w", err)
	}
	return nil
}

func getEnv(key, defaultVal string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultVal, nil
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d, nil
	}
	// Bare numbers are seconds.
	secs, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return time.Duration(secs) * time.Second, nil
}
