package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds the full application configuration loaded from environment variables or .env file.
//
// It is composed of smaller structs that represent different concerns of the system:
// the HTTP server, the database (Postgres or SQLite), the quote provider and the
// pipeline job itself.
//
// Example ENV equivalent:
//
//	SERVER_PORT=8080
//	DB_DRIVER=postgres
//	POSTGRES_HOST=localhost
//	POSTGRES_PORT=5432
//	POSTGRES_USER=admin
//	POSTGRES_PASSWORD=secret
//	POSTGRES_DB=stockpulse
//	ALPHA_VANTAGE_API_KEY=xxxx
//	STOCK_SYMBOLS=IBM,AAPL,GOOGL,MSFT
//	DATA_RETENTION_DAYS=90
type Config struct {
	Server   ServerConfig   // HTTP server configuration
	Database DatabaseConfig // Which SQL backend to use
	Postgres PostgresConfig // PostgreSQL connection settings
	QuoteAPI QuoteAPIConfig // Quote provider client settings
	Job      JobConfig      // Pipeline run settings
}

// ServerConfig holds HTTP server settings such as the port to listen on.
type ServerConfig struct {
	Port string // The TCP port the HTTP server will listen on (e.g., "8080")
}

// DatabaseConfig selects the SQL backend.
//
// Driver is "postgres" (default) or "sqlite". SQLitePath is only used for sqlite.
type DatabaseConfig struct {
	Driver     string
	SQLitePath string
}

// PostgresConfig defines connection details for PostgreSQL.
//
// Fields:
//   - Host: hostname of the database server.
//   - Port: port number of the database server (default 5432).
//   - User: username for authentication.
//   - Password: password for authentication.
//   - DBName: target database name.
//   - SSLMode: SSL mode (e.g., "disable", "require").
//   - URL: computed DSN used by database/sql to connect.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	URL      string
}

// QuoteAPIConfig configures the Alpha Vantage client.
type QuoteAPIConfig struct {
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration // per attempt
	MaxAttempts    int           // total attempts per symbol, including the first
	RetryDelay     time.Duration // initial backoff delay, doubled on every retry
	MinInterval    time.Duration // minimum spacing between two requests (0 = none)
}

// JobConfig is passed explicitly into the pipeline driver.
type JobConfig struct {
	Symbols            []string
	RetentionDays      int
	MinSuccessRatio    float64
	SkipNonTradingDays bool
	ScheduleInterval   time.Duration
	JobRetries         int
	JobRetryDelay      time.Duration
}

// AppConfig is the globally accessible configuration instance.
//
// It is populated once via LoadConfig() and used by main to build the
// explicit structs handed to each component.
var AppConfig Config

const placeholderMarker = "REPLACE_ME"

// ErrMissingConfig is returned by Load when required variables are absent.
var ErrMissingConfig = errors.New("missing required environment variables")

func setDefaults() {
	viper.SetDefault("SERVER_PORT", "8080")

	viper.SetDefault("DB_DRIVER", "postgres")
	viper.SetDefault("SQLITE_PATH", "stockpulse.db")

	viper.SetDefault("POSTGRES_HOST", "localhost")
	viper.SetDefault("POSTGRES_PORT", 5432)
	viper.SetDefault("POSTGRES_USER", "postgres")
	viper.SetDefault("POSTGRES_PASSWORD", "postgres")
	viper.SetDefault("POSTGRES_DB", "stockpulse")
	viper.SetDefault("POSTGRES_SSLMODE", "disable")

	viper.SetDefault("ALPHA_VANTAGE_BASE_URL", "https://www.alphavantage.co")
	viper.SetDefault("QUOTE_REQUEST_TIMEOUT", "30s")
	viper.SetDefault("QUOTE_MAX_ATTEMPTS", 3)
	viper.SetDefault("QUOTE_RETRY_DELAY", "5s")
	viper.SetDefault("QUOTE_MIN_INTERVAL", "0s")

	viper.SetDefault("STOCK_SYMBOLS", "IBM,AAPL,GOOGL,MSFT")
	viper.SetDefault("DATA_RETENTION_DAYS", 90)
	viper.SetDefault("MIN_SUCCESS_RATIO", 0.5)
	viper.SetDefault("SKIP_NON_TRADING_DAYS", false)
	viper.SetDefault("SCHEDULE_INTERVAL", "24h")
	viper.SetDefault("JOB_RETRIES", 3)
	viper.SetDefault("JOB_RETRY_DELAY", "5m")
}

// Load builds a Config from defaults, an optional .env file and the environment.
//
// Precedence (from lowest to highest):
//  1. Defaults set in setDefaults().
//  2. Values from .env file (if present).
//  3. Environment variables.
//
// The legacy names MAX_API_RETRIES and RETRY_DELAY_SECONDS are honoured when
// the newer QUOTE_* variables are not set.
//
// The returned error wraps ErrMissingConfig and lists every missing variable;
// the Config is still returned so callers can report on it.
func Load() (Config, error) {
	setDefaults()

	// Optionally read from .env if present (common in local dev)
	viper.SetConfigFile(".env")
	_ = viper.ReadInConfig() // ignore error if no .env

	viper.AutomaticEnv()
	_ = viper.BindEnv("QUOTE_MAX_ATTEMPTS", "QUOTE_MAX_ATTEMPTS", "MAX_API_RETRIES")

	cfg := Config{
		Server: ServerConfig{
			Port: viper.GetString("SERVER_PORT"),
		},
		Database: DatabaseConfig{
			Driver:     strings.ToLower(viper.GetString("DB_DRIVER")),
			SQLitePath: viper.GetString("SQLITE_PATH"),
		},
		Postgres: PostgresConfig{
			Host:     viper.GetString("POSTGRES_HOST"),
			Port:     viper.GetInt("POSTGRES_PORT"),
			User:     viper.GetString("POSTGRES_USER"),
			Password: viper.GetString("POSTGRES_PASSWORD"),
			DBName:   viper.GetString("POSTGRES_DB"),
			SSLMode:  viper.GetString("POSTGRES_SSLMODE"),
		},
		QuoteAPI: QuoteAPIConfig{
			APIKey:         viper.GetString("ALPHA_VANTAGE_API_KEY"),
			BaseURL:        strings.TrimRight(viper.GetString("ALPHA_VANTAGE_BASE_URL"), "/"),
			RequestTimeout: viper.GetDuration("QUOTE_REQUEST_TIMEOUT"),
			MaxAttempts:    viper.GetInt("QUOTE_MAX_ATTEMPTS"),
			RetryDelay:     viper.GetDuration("QUOTE_RETRY_DELAY"),
			MinInterval:    viper.GetDuration("QUOTE_MIN_INTERVAL"),
		},
		Job: JobConfig{
			Symbols:            ParseSymbols(viper.GetString("STOCK_SYMBOLS")),
			RetentionDays:      viper.GetInt("DATA_RETENTION_DAYS"),
			MinSuccessRatio:    viper.GetFloat64("MIN_SUCCESS_RATIO"),
			SkipNonTradingDays: viper.GetBool("SKIP_NON_TRADING_DAYS"),
			ScheduleInterval:   viper.GetDuration("SCHEDULE_INTERVAL"),
			JobRetries:         viper.GetInt("JOB_RETRIES"),
			JobRetryDelay:      viper.GetDuration("JOB_RETRY_DELAY"),
		},
	}

	if secs := viper.GetInt("RETRY_DELAY_SECONDS"); secs > 0 && !explicitlySet("QUOTE_RETRY_DELAY") {
		cfg.QuoteAPI.RetryDelay = time.Duration(secs) * time.Second
	}

	// Construct Postgres DSN (used by database/sql)
	cfg.Postgres.URL = fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		cfg.Postgres.User,
		cfg.Postgres.Password,
		cfg.Postgres.Host,
		cfg.Postgres.Port,
		cfg.Postgres.DBName,
		cfg.Postgres.SSLMode,
	)

	if missing := MissingVars(cfg); len(missing) > 0 {
		return cfg, fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	return cfg, nil
}

// LoadConfig initializes the global AppConfig, applying overrides (e.g. CLI
// flags) before validation.
//
// Fatal exit:
//   - If required variables are missing, validateConfig() will terminate the app
//     with a descriptive log message.
func LoadConfig(overrides ...func(*Config)) {
	AppConfig, _ = Load()
	for _, o := range overrides {
		o(&AppConfig)
	}

	validateConfig()
}

// ParseSymbols splits a comma separated list, trimming blanks, upper-casing
// and dropping duplicates while keeping the first-seen order.
func ParseSymbols(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		p = strings.ToUpper(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// MissingVars lists the environment variables that are absent, invalid, or
// still hold a setup placeholder.
func MissingVars(cfg Config) []string {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "SERVER_PORT")
	}
	if IsPlaceholder(cfg.QuoteAPI.APIKey) {
		missing = append(missing, "ALPHA_VANTAGE_API_KEY")
	}
	if cfg.QuoteAPI.BaseURL == "" {
		missing = append(missing, "ALPHA_VANTAGE_BASE_URL")
	}
	if len(cfg.Job.Symbols) == 0 {
		missing = append(missing, "STOCK_SYMBOLS")
	}
	if cfg.Job.RetentionDays <= 0 {
		missing = append(missing, "DATA_RETENTION_DAYS")
	}
	if cfg.Job.MinSuccessRatio <= 0 || cfg.Job.MinSuccessRatio > 1 {
		missing = append(missing, "MIN_SUCCESS_RATIO")
	}

	switch cfg.Database.Driver {
	case "sqlite":
		if cfg.Database.SQLitePath == "" {
			missing = append(missing, "SQLITE_PATH")
		}
	case "postgres":
		if cfg.Postgres.Host == "" {
			missing = append(missing, "POSTGRES_HOST")
		}
		if cfg.Postgres.Port == 0 {
			missing = append(missing, "POSTGRES_PORT")
		}
		if cfg.Postgres.User == "" {
			missing = append(missing, "POSTGRES_USER")
		}
		if IsPlaceholder(cfg.Postgres.Password) {
			missing = append(missing, "POSTGRES_PASSWORD")
		}
		if cfg.Postgres.DBName == "" {
			missing = append(missing, "POSTGRES_DB")
		}
	default:
		missing = append(missing, "DB_DRIVER")
	}

	return missing
}

func explicitlySet(key string) bool {
	return os.Getenv(key) != "" || viper.InConfig(key)
}

// IsPlaceholder reports whether v is empty or still holds the REPLACE_ME marker.
func IsPlaceholder(v string) bool {
	return v == "" || strings.Contains(strings.ToUpper(v), placeholderMarker)
}

// validateConfig ensures required variables are present and terminates
// the application if they are missing.
func validateConfig() {
	if missing := MissingVars(AppConfig); len(missing) > 0 {
		log.Fatalf("❌ Missing required environment variables: %v\n", missing)
	}
}
