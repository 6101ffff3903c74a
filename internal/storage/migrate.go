package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"

	"github.com/guttosm/stockpulse/db"
	"github.com/guttosm/stockpulse/internal/logger"
	goose "github.com/pressly/goose/v3"
)

// goose keeps its dialect and base FS in package globals.
var migrateMu sync.Mutex

// Migrate brings the stock_quotes schema up to date using the embedded migrations.
func Migrate(ctx context.Context, conn *sql.DB, dialect Dialect) error {
	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(db.Migrations)
	defer goose.SetBaseFS(nil)
	goose.SetLogger(gooseLogger{})

	if err := goose.SetDialect(dialect.gooseDialect()); err != nil {
		return fmt.Errorf("goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, conn, dialect.migrationsDir()); err != nil {
		return storeErr("migrate up", err)
	}
	return nil
}

// gooseLogger routes goose output through zerolog.
type gooseLogger struct{}

func (gooseLogger) Printf(format string, v ...interface{}) {
	l := logger.With("migrate")
	l.Info().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (gooseLogger) Fatalf(format string, v ...interface{}) {
	l := logger.With("migrate")
	l.Fatal().Msg(strings.TrimSpace(fmt.Sprintf(format, v...)))
}
