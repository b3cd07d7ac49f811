package progress

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Kind selects which Store implementation backs the application.
type Kind string

const (
	KindSQL    Kind = "sql"
	KindMemory Kind = "memory"
	KindRemote Kind = "remote"
)

// Config selects and configures the progress store.
type Config struct {
	Store Kind `mapstructure:"store" yaml:"store"`
	// RemoteURL is the base URL of a checkpoint API when Store is remote.
	RemoteURL string         `mapstructure:"remote_url" yaml:"remote_url"`
	Database  DatabaseConfig `mapstructure:"database"   yaml:"database"`
}

// DatabaseConfig holds the SQL backend settings.
type DatabaseConfig struct {
	Backend         Backend       `mapstructure:"backend"           yaml:"backend"`
	DSN             string        `mapstructure:"dsn"               yaml:"dsn"               env:"DATABASE_URL"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"    yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" yaml:"conn_max_lifetime"`
	SkipMigrations  bool          `mapstructure:"skip_migrations"   yaml:"skip_migrations"`
}

func DefaultConfig() Config {
	return Config{
		Store: KindSQL,
		Database: DatabaseConfig{
			Backend:         BackendSqlite,
			DSN:             "prover-rewards.db",
			MaxOpenConns:    defaultMaxConns,
			ConnMaxLifetime: defaultConnMaxLifetime,
		},
	}
}

// Validate checks the store selection.
func (c Config) Validate() error {
	switch c.Store {
	case KindSQL:
		return c.Database.Validate()
	case KindMemory:
		return nil
	case KindRemote:
		if strings.TrimSpace(c.RemoteURL) == "" {
			return fmt.Errorf("progress.remote_url is required for the remote store")
		}
		if _, err := url.Parse(c.RemoteURL); err != nil {
			return fmt.Errorf("progress.remote_url: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("progress.store must be one of sql, memory, remote; got %q", c.Store)
	}
}

// Validate checks the database settings.
func (c DatabaseConfig) Validate() error {
	if strings.TrimSpace(c.DSN) == "" {
		return fmt.Errorf("progress.database.dsn is required")
	}
	switch c.Backend {
	case BackendPostgres:
		if _, err := url.Parse(c.DSN); err != nil {
			return fmt.Errorf("progress.database.dsn: %w", err)
		}
	case BackendSqlite:
	default:
		return fmt.Errorf("progress.database.backend must be postgres or sqlite; got %q", c.Backend)
	}
	if c.MaxOpenConns < 0 {
		return fmt.Errorf("progress.database.max_open_conns must not be negative")
	}
	return nil
}
