package store

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"io/fs"
	"path"
	"sort"
	"strings"

	"github.com/anstrom/netrecon/internal/errors"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

const createMigrationsTable = `
	CREATE TABLE IF NOT EXISTS schema_migrations (
		name       TEXT PRIMARY KEY,
		checksum   TEXT NOT NULL,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

// Migration is one embedded schema file.
type Migration struct {
	Name     string
	SQL      string
	Checksum string
}

// Migrations returns the embedded migrations in apply order.
func Migrations() ([]Migration, error) {
	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	out := make([]Migration, 0, len(names))
	for _, name := range names {
		content, err := migrationFiles.ReadFile(name)
		if err != nil {
			return nil, err
		}
		sum := sha256.Sum256(content)
		out = append(out, Migration{
			Name:     strings.TrimSuffix(path.Base(name), ".sql"),
			SQL:      string(content),
			Checksum: hex.EncodeToString(sum[:]),
		})
	}
	return out, nil
}

// Migrate applies every migration not yet recorded in schema_migrations,
// each in its own transaction. It returns the names it applied.
func (s *Store) Migrate(ctx context.Context) ([]string, error) {
	if _, err := s.db.ExecContext(ctx, createMigrationsTable); err != nil {
		return nil, migrationError("create migrations table", err)
	}

	var done []string
	if err := s.db.SelectContext(ctx, &done, `SELECT name FROM schema_migrations ORDER BY name`); err != nil {
		return nil, migrationError("read applied migrations", err)
	}
	applied := make(map[string]bool, len(done))
	for _, name := range done {
		applied[name] = true
	}

	migrations, err := Migrations()
	if err != nil {
		return nil, migrationError("read embedded migrations", err)
	}

	var ran []string
	for _, m := range migrations {
		if applied[m.Name] {
			continue
		}
		if err := s.apply(ctx, m); err != nil {
			return ran, err
		}
		s.logger.Info("Applied migration", "migration", m.Name)
		ran = append(ran, m.Name)
	}
	return ran, nil
}

func (s *Store) apply(ctx context.Context, m Migration) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return migrationError("begin "+m.Name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return migrationError("execute "+m.Name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (name, checksum) VALUES ($1, $2)`, m.Name, m.Checksum); err != nil {
		return migrationError("record "+m.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return migrationError("commit "+m.Name, err)
	}
	return nil
}

func migrationError(operation string, err error) error {
	dbErr := errors.WrapDatabaseError(errors.CodeDatabaseMigration, "migration failed: "+operation, err)
	dbErr.Operation = operation
	return dbErr
}
