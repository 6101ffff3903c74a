package storage

import (
	"fmt"
	"regexp"
)

// Dialect identifies the SQL backend behind a *sql.DB.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
)

// ParseDialect maps a configured driver name to a Dialect.
func ParseDialect(driver string) (Dialect, error) {
	switch Dialect(driver) {
	case DialectPostgres, DialectSQLite:
		return Dialect(driver), nil
	default:
		return "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// DriverName is the database/sql driver registered for the dialect.
func (d Dialect) DriverName() string {
	return string(d)
}

// gooseDialect is the name goose uses for the dialect.
func (d Dialect) gooseDialect() string {
	if d == DialectSQLite {
		return "sqlite3"
	}
	return "postgres"
}

// migrationsDir is the directory inside the embedded FS holding the dialect's migrations.
func (d Dialect) migrationsDir() string {
	return "migrations/" + string(d)
}

// tradingDayExpr renders a DATE column as YYYY-MM-DD text.
// SQLite already stores it that way.
func (d Dialect) tradingDayExpr(col string) string {
	if d == DialectSQLite {
		return col
	}
	return fmt.Sprintf("TO_CHAR(%s, 'YYYY-MM-DD')", col)
}

var placeholderRe = regexp.MustCompile(`\$\d+`)

// rebind rewrites $N placeholders to ? for SQLite.
// Every query in this package uses each placeholder once, in order.
func (d Dialect) rebind(query string) string {
	if d != DialectSQLite {
		return query
	}
	return placeholderRe.ReplaceAllString(query, "?")
}
