// Package store persists finished scans and their hosts in PostgreSQL.
//
// The schema is created by Migrate from SQL files embedded in the binary.
// Database errors are sanitized before they leave the package so that API
// clients never see SQL text or connection details.
package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/anstrom/netrecon/internal/errors"
	"github.com/anstrom/netrecon/internal/logging"
)

const (
	defaultPostgresPort    = 5432
	defaultMaxOpenConns    = 10
	defaultMaxIdleConns    = 2
	defaultConnMaxLifetime = 5 * time.Minute
	defaultConnectTimeout  = 30 * time.Second
)

// Config holds database connection settings.
type Config struct {
	Host            string        `yaml:"host" json:"host"`
	Port            int           `yaml:"port" json:"port" validate:"omitempty,min=1,max=65535"`
	Database        string        `yaml:"database" json:"database"`
	Username        string        `yaml:"username" json:"username"`
	Password        string        `yaml:"password" json:"-"`
	SSLMode         string        `yaml:"ssl_mode" json:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
	MaxOpenConns    int           `yaml:"max_open_conns" json:"max_open_conns" validate:"min=0"`
	MaxIdleConns    int           `yaml:"max_idle_conns" json:"max_idle_conns" validate:"min=0"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	// ConnectTimeout bounds the whole retry loop in Connect.
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}

// DefaultConfig returns the default configuration. Database and Username
// must be set before Enabled reports true.
func DefaultConfig() Config {
	return Config{
		Host:            "localhost",
		Port:            defaultPostgresPort,
		SSLMode:         "disable",
		MaxOpenConns:    defaultMaxOpenConns,
		MaxIdleConns:    defaultMaxIdleConns,
		ConnMaxLifetime: defaultConnMaxLifetime,
		ConnectTimeout:  defaultConnectTimeout,
	}
}

// Enabled reports whether enough is configured to attempt a connection.
func (c Config) Enabled() bool {
	return c.Host != "" && c.Database != "" && c.Username != ""
}

// DSN returns the lib/pq key=value connection string.
func (c Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.Username, c.Password, c.SSLMode)
}

// Store reads and writes scan results.
type Store struct {
	db     *sqlx.DB
	logger *logging.Logger
}

// New wraps an open database handle.
func New(db *sqlx.DB) *Store {
	return &Store{db: db, logger: logging.WithComponent("store")}
}

// Connect opens the database, retrying with exponential backoff until
// ConnectTimeout or ctx ends. Returned errors never include the DSN.
func Connect(ctx context.Context, cfg Config) (*Store, error) {
	if !cfg.Enabled() {
		return nil, errors.NewConfigFieldError(errors.CodeConfiguration,
			"database host, name and username are required", "database", nil)
	}
	timeout := cfg.ConnectTimeout
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	logger := logging.WithComponent("store")
	policy := backoff.WithContext(backoff.NewExponentialBackOff(), ctx)

	var db *sqlx.DB
	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		conn, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
		if err != nil {
			logger.Warn("Database connection attempt failed", "attempt", attempt)
			return err
		}
		db = conn
		return nil
	}, policy)
	if err != nil {
		return nil, errors.WrapDatabaseError(errors.CodeDatabaseConnection, "failed to connect to database", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.Info("Connected to database", "host", cfg.Host, "port", cfg.Port, "database", cfg.Database)
	return New(db), nil
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return sanitize("ping", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// sanitize converts driver errors into coded errors without SQL details. The
// driver error is kept as the cause for logging.
func sanitize(operation string, err error) error {
	if err == nil {
		return nil
	}
	if stderrors.Is(err, sql.ErrNoRows) {
		return errors.NewDatabaseError(errors.CodeNotFound, "resource not found")
	}

	code := errors.CodeDatabaseQuery
	var pqErr *pq.Error
	if stderrors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08":
			code = errors.CodeDatabaseConnection
		case "23":
			code = errors.CodeValidation
		case "57":
			code = errors.CodeCanceled
		}
	}
	if stderrors.Is(err, context.Canceled) {
		code = errors.CodeCanceled
	}

	dbErr := errors.WrapDatabaseError(code, "database operation failed: "+operation, err)
	dbErr.Operation = operation
	return dbErr
}
