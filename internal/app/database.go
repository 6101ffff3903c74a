package app

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"  // PostgreSQL driver for database/sql
	_ "modernc.org/sqlite" // pure-Go SQLite driver, registered as "sqlite"

	"github.com/guttosm/stockpulse/config"
	"github.com/guttosm/stockpulse/internal/storage"
)

// sqlOpener is an indirection for unit testing; defaults to sql.Open
var sqlOpener = sql.Open

// ConnectDatabase opens and pings the configured backend without touching the schema.
//
// Behavior:
//   - DB_DRIVER=postgres uses cfg.Postgres.URL; DB_DRIVER=sqlite opens cfg.Database.SQLitePath.
//   - SQLite gets a single connection so writers never contend.
//
// Returns:
//   - *sql.DB: an open pool.
//   - storage.Dialect: the dialect to hand to storage.NewQuotesRepository.
//   - error: if the driver is unknown, or opening or pinging fails.
func ConnectDatabase(ctx context.Context, cfg config.Config) (*sql.DB, storage.Dialect, error) {
	dialect, err := storage.ParseDialect(cfg.Database.Driver)
	if err != nil {
		return nil, "", err
	}

	db, err := sqlOpener(dialect.DriverName(), dataSourceName(cfg, dialect))
	if err != nil {
		return nil, "", fmt.Errorf("failed to open %s: %w", dialect, err)
	}
	if dialect == storage.DialectSQLite {
		db.SetMaxOpenConns(1)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("failed to ping %s: %w", dialect, err)
	}
	return db, dialect, nil
}

// OpenDatabase is ConnectDatabase followed by the embedded goose migrations.
func OpenDatabase(ctx context.Context, cfg config.Config) (*sql.DB, storage.Dialect, error) {
	db, dialect, err := ConnectDatabase(ctx, cfg)
	if err != nil {
		return nil, "", err
	}
	if err := storage.Migrate(ctx, db, dialect); err != nil {
		_ = db.Close()
		return nil, "", err
	}
	return db, dialect, nil
}

func dataSourceName(cfg config.Config, dialect storage.Dialect) string {
	if dialect == storage.DialectSQLite {
		return cfg.Database.SQLitePath + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
	}
	if cfg.Postgres.URL != "" {
		return cfg.Postgres.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)
}

// databaseOpener is an indirection used by InitializeApp; overridden in tests to avoid real connections.
var databaseOpener = OpenDatabase
