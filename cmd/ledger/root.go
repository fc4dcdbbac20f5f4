// Command ledger runs the paper-trading ledger: an HTTP API over the
// account, positions and order history, plus the reconciliation, stop-loss
// and P&L maintenance loops.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"paper-ledger/internal/config"
	"paper-ledger/internal/database"
	"paper-ledger/internal/quotes"
)

var rootCmd = &cobra.Command{
	Use:           "ledger",
	Short:         "Paper-trading ledger and strategy performance engine",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.AddCommand(
		newServeCmd(),
		newReconcileCmd(),
		newCheckDiscrepancyCmd(),
		newBackfillCmd(),
		newMonitorCmd(),
		newMigrateCmd(),
	)
}

// setup loads .env and the environment config and builds the root logger.
func setup() (*config.Config, zerolog.Logger, error) {
	// A missing .env is fine; the environment may be set directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	return cfg, newLogger(), nil
}

func newLogger() zerolog.Logger {
	level := zerolog.InfoLevel
	if s := os.Getenv("LOG_LEVEL"); s != "" {
		if parsed, err := zerolog.ParseLevel(s); err == nil {
			level = parsed
		}
	}

	var log zerolog.Logger
	if os.Getenv("LOG_FORMAT") == "console" {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	} else {
		log = zerolog.New(os.Stderr)
	}
	return log.Level(level).With().Timestamp().Logger()
}

// openStore connects the configured backend, applies migrations on
// postgres and seeds the account row.
func openStore(cfg *config.Config, log zerolog.Logger) (database.Store, error) {
	var store database.Store

	switch cfg.Database.Backend {
	case "sqlite":
		s, err := database.NewSQLite(cfg.Database.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite store: %w", err)
		}
		store = s
	case "postgres":
		db, err := database.New(cfg.Database.ConnectionString())
		if err != nil {
			return nil, fmt.Errorf("open postgres store: %w", err)
		}
		migrationsPath := os.Getenv("MIGRATIONS_PATH")
		if migrationsPath == "" {
			migrationsPath = "db/migrations"
		}
		if err := db.Migrate(migrationsPath); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply migrations: %w", err)
		}
		store = db
	default:
		return nil, fmt.Errorf("unknown DB_BACKEND %q", cfg.Database.Backend)
	}

	ctx, cancel := storageContext()
	defer cancel()
	if err := store.InitAccount(ctx, cfg.Ledger.InitialCash); err != nil {
		store.Close()
		return nil, fmt.Errorf("seed account: %w", err)
	}

	log.Info().Str("backend", cfg.Database.Backend).Msg("store ready")
	return store, nil
}

// storageContext bounds one standalone store call made during setup.
func storageContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// newQuoteSource builds the upstream feed behind the Redis quote cache.
// With no REDIS_ADDR the cache runs memory-only.
func newQuoteSource(cfg *config.Config, log zerolog.Logger) quotes.Source {
	src := quotes.NewHTTPSource(cfg.Quotes.BaseURL, cfg.Quotes.APIKey)

	var client *redis.Client
	if cfg.Redis.Addr != "" {
		client = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	return quotes.NewCache(src, client, cfg.Redis.CacheTTL, log)
}
