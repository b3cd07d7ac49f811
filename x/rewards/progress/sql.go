package progress

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	pgxmigrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	sqlitemigrate "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "github.com/jackc/pgx/v5/stdlib" // Register the pgx driver.
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // Register the sqlite driver.
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Backend selects the SQL engine behind SQLStore.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendSqlite   Backend = "sqlite"
)

const (
	defaultMaxConns        = 10
	defaultConnMaxLifetime = 10 * time.Minute

	// sqliteOptionPrefix is the DSN query key modernc.org/sqlite reads pragmas from.
	sqliteOptionPrefix = "_pragma"
)

const (
	selectProgressSQL = `SELECT last_epoch, cumulative_rewards
		FROM prover_progress
		WHERE prover_address = $1 AND contract_address = $2`

	upsertProgressSQL = `INSERT INTO prover_progress
		(prover_address, contract_address, last_epoch, cumulative_rewards, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (prover_address, contract_address)
		DO UPDATE SET last_epoch = EXCLUDED.last_epoch,
			cumulative_rewards = EXCLUDED.cumulative_rewards,
			updated_at = EXCLUDED.updated_at`
)

var _ Store = (*SQLStore)(nil)

// SQLStore persists checkpoints in the prover_progress table.
type SQLStore struct {
	db      *sql.DB
	backend Backend
	log     zerolog.Logger
	now     func() time.Time
}

// OpenSQL opens the configured database and applies pending migrations.
func OpenSQL(ctx context.Context, cfg DatabaseConfig, log zerolog.Logger) (*SQLStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	driver, dsn := "pgx", cfg.DSN
	if cfg.Backend == BackendSqlite {
		driver, dsn = "sqlite", sqliteDSN(cfg.DSN)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.Backend, err)
	}

	maxConns := defaultMaxConns
	if cfg.MaxOpenConns > 0 {
		maxConns = cfg.MaxOpenConns
	}
	connMaxLifetime := defaultConnMaxLifetime
	if cfg.ConnMaxLifetime > 0 {
		connMaxLifetime = cfg.ConnMaxLifetime
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s database: %w", cfg.Backend, err)
	}

	s := NewSQLStore(db, cfg.Backend, log)

	sanitized, _ := sanitizeDSN(cfg.DSN)
	s.log.Info().
		Str("backend", string(cfg.Backend)).
		Str("dsn", sanitized).
		Int("max_conns", maxConns).
		Msg("Progress database opened")

	if !cfg.SkipMigrations {
		if err := s.Migrate(dbName(cfg.DSN)); err != nil {
			_ = db.Close()
			return nil, err
		}
	}

	return s, nil
}

// NewSQLStore wraps an already opened database.
func NewSQLStore(db *sql.DB, backend Backend, log zerolog.Logger) *SQLStore {
	return &SQLStore{
		db:      db,
		backend: backend,
		log:     log.With().Str("component", "progress-store").Logger(),
		now:     time.Now,
	}
}

// Migrate applies the embedded schema migrations.
func (s *SQLStore) Migrate(name string) error {
	var (
		driver database.Driver
		err    error
	)
	switch s.backend {
	case BackendPostgres:
		driver, err = pgxmigrate.WithInstance(s.db, &pgxmigrate.Config{})
	case BackendSqlite:
		driver, err = sqlitemigrate.WithInstance(s.db, &sqlitemigrate.Config{})
	default:
		return fmt.Errorf("unknown database backend %q", s.backend)
	}
	if err != nil {
		return fmt.Errorf("create %s migration driver: %w", s.backend, err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("load migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, name, driver)
	if err != nil {
		return fmt.Errorf("init migrations: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}

	version, dirty, _ := m.Version()
	s.log.Info().Uint("version", version).Bool("dirty", dirty).Msg("Progress schema up to date")
	return nil
}

func (s *SQLStore) Get(ctx context.Context, prover, contract common.Address) (Record, error) {
	var (
		lastEpoch  int64
		cumulative string
	)
	row := s.db.QueryRowContext(ctx, s.rebind(selectProgressSQL), addressKey(prover), addressKey(contract))
	if err := row.Scan(&lastEpoch, &cumulative); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DefaultRecord(prover, contract), nil
		}
		return Record{}, fmt.Errorf("select progress: %w", err)
	}

	amount, err := ParseAmount(cumulative)
	if err != nil {
		return Record{}, fmt.Errorf("stored cumulative for %s: %w", prover.Hex(), err)
	}

	return Record{
		Prover:           prover,
		Contract:         contract,
		LastEpoch:        lastEpoch,
		CumulativeReward: amount,
	}, nil
}

func (s *SQLStore) Put(ctx context.Context, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, s.rebind(upsertProgressSQL),
		addressKey(rec.Prover),
		addressKey(rec.Contract),
		rec.LastEpoch,
		rec.Cumulative().String(),
		s.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert progress: %w", err)
	}

	s.log.Debug().
		Str("prover", rec.Prover.Hex()).
		Str("contract", rec.Contract.Hex()).
		Int64("last_epoch", rec.LastEpoch).
		Str("cumulative", rec.Cumulative().String()).
		Msg("Checkpoint stored")
	return nil
}

// Ping checks database connectivity.
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind turns $N placeholders into SQLite's ?N form.
func (s *SQLStore) rebind(query string) string {
	if s.backend == BackendSqlite {
		return strings.ReplaceAll(query, "$", "?")
	}
	return query
}

func addressKey(a common.Address) string {
	return strings.ToLower(a.Hex())
}

func sqliteDSN(dbPath string) string {
	opts := make(url.Values)
	for _, pragma := range []string{"journal_mode=WAL", "busy_timeout=5000", "synchronous=full"} {
		opts.Add(sqliteOptionPrefix, pragma)
	}
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + opts.Encode()
}

// sanitizeDSN masks the password of URL-style DSNs.
func sanitizeDSN(dsn string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", err
	}
	return u.Redacted(), nil
}

func dbName(dsn string) string {
	u, err := url.Parse(dsn)
	if err != nil || u.Path == "" {
		return path.Base(dsn)
	}
	return path.Base(u.Path)
}
