package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"paper-ledger/internal/analytics"
)

// Config holds all application configuration. Environment variables are
// the primary source; an optional YAML file overrides the analytics
// thresholds.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Quotes     QuotesConfig
	Ledger     LedgerConfig
	Thresholds analytics.Thresholds
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig selects and configures the storage backend.
type DatabaseConfig struct {
	// Backend is "postgres" or "sqlite".
	Backend  string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	// SQLitePath is the database file used when Backend is "sqlite".
	SQLitePath string
}

// RedisConfig holds the quote cache configuration.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// CacheTTL is how long cached quotes stay fresh.
	CacheTTL time.Duration
}

// KafkaConfig holds Kafka configuration
type KafkaConfig struct {
	Brokers     []string
	OrdersTopic string
	TicksTopic  string
	GroupID     string
	// Enabled gates the producer and tick consumer; the ledger runs fine
	// without a broker.
	Enabled bool
}

// QuotesConfig holds the upstream price feed configuration.
type QuotesConfig struct {
	BaseURL string
	APIKey  string
}

// LedgerConfig holds the ledger engine tunables.
type LedgerConfig struct {
	// InitialCash seeds the account row on first start.
	InitialCash decimal.Decimal
	// ReconcileInterval is the balance reconciliation cadence.
	ReconcileInterval time.Duration
	// StopLossInterval is the stop-loss monitor cadence.
	StopLossInterval time.Duration
	// DiscrepancyThreshold is the drift above which reconciliation warns.
	DiscrepancyThreshold decimal.Decimal
	// PerformanceRetention is how long account snapshots are kept.
	PerformanceRetention time.Duration
}

// Load reads configuration from environment variables. When
// LEDGER_CONFIG_FILE points at a YAML file its thresholds section
// overrides the defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Backend:    getEnv("DB_BACKEND", "postgres"),
			Host:       getEnv("DB_HOST", "localhost"),
			Port:       getEnv("DB_PORT", "5432"),
			User:       getEnv("DB_USER", "postgres"),
			Password:   getEnv("DB_PASSWORD", "postgres"),
			DBName:     getEnv("DB_NAME", "paperledger"),
			SSLMode:    getEnv("DB_SSLMODE", "disable"),
			SQLitePath: getEnv("DB_SQLITE_PATH", "paper-ledger.db"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			Password: getEnv("REDIS_PASSWORD", ""),
		},
		Kafka: KafkaConfig{
			Brokers:     strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			OrdersTopic: getEnv("KAFKA_ORDERS_TOPIC", "ledger-orders"),
			TicksTopic:  getEnv("KAFKA_TICKS_TOPIC", "price-ticks"),
			GroupID:     getEnv("KAFKA_GROUP_ID", "paper-ledger"),
		},
		Quotes: QuotesConfig{
			BaseURL: getEnv("QUOTES_BASE_URL", "http://localhost:9000"),
			APIKey:  getEnv("QUOTES_API_KEY", ""),
		},
		Thresholds: analytics.DefaultThresholds(),
	}

	var err error
	if cfg.Redis.DB, err = getEnvInt("REDIS_DB", 0); err != nil {
		return nil, err
	}
	if cfg.Redis.CacheTTL, err = getEnvDuration("REDIS_CACHE_TTL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Kafka.Enabled, err = getEnvBool("KAFKA_ENABLED", false); err != nil {
		return nil, err
	}

	if cfg.Ledger.InitialCash, err = getEnvDecimal("LEDGER_INITIAL_CASH", "10000"); err != nil {
		return nil, err
	}
	if cfg.Ledger.ReconcileInterval, err = getEnvDuration("LEDGER_RECONCILE_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Ledger.StopLossInterval, err = getEnvDuration("LEDGER_STOP_LOSS_INTERVAL", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.Ledger.DiscrepancyThreshold, err = getEnvDecimal("LEDGER_DISCREPANCY_THRESHOLD", "1.00"); err != nil {
		return nil, err
	}
	if cfg.Ledger.PerformanceRetention, err = getEnvDuration("LEDGER_PERFORMANCE_RETENTION", 90*24*time.Hour); err != nil {
		return nil, err
	}
	cfg.Thresholds.InitialAllocation = cfg.Ledger.InitialCash

	if path := os.Getenv("LEDGER_CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

// loadFile overlays the YAML thresholds file on top of the env config.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	var file struct {
		Thresholds analytics.Thresholds `yaml:"thresholds"`
	}
	file.Thresholds = c.Thresholds
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	c.Thresholds = file.Thresholds
	return nil
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return n, nil
}

func getEnvBool(key string, defaultValue bool) (bool, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return b, nil
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}

func getEnvDecimal(key, defaultValue string) (decimal.Decimal, error) {
	value := getEnv(key, defaultValue)
	d, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return d, nil
}
