// Package storage bootstraps the single SQLite database shared by the
// identifier layer, tree-stores, cache registry, content-meta manager, and
// operation ledger. Each of those packages owns its own tables and prepared
// statements; this package only owns the connection, pragmas, and schema
// migrations.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // registers the "sqlite" driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const walJournalSizeLimit = 67108864 // 64 MiB

// DB wraps the shared *sql.DB connection.
type DB struct {
	Conn   *sql.DB
	logger *slog.Logger
}

// Open opens (creating if necessary) the SQLite database at path, applies
// pragmas, and runs pending goose migrations. Use ":memory:" for tests.
func Open(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening cache database", slog.String("path", path))

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// modernc.org/sqlite does not support concurrent writers on one
	// connection; the whole process shares one *sql.DB so cap the pool to a
	// single connection and let Go's database/sql serialize access.
	conn.SetMaxOpenConns(1)

	if err := setPragmas(ctx, conn); err != nil {
		conn.Close()
		return nil, err
	}

	if err := migrate(conn, logger); err != nil {
		conn.Close()
		return nil, err
	}

	return &DB{Conn: conn, logger: logger}, nil
}

func setPragmas(ctx context.Context, conn *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit),
	}

	for _, p := range pragmas {
		if _, err := conn.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("set pragma %q: %w", p, err)
		}
	}

	return nil
}

func migrate(conn *sql.DB, logger *slog.Logger) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}

	if err := goose.Up(conn, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	version, err := goose.GetDBVersion(conn)
	if err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	logger.Debug("schema up to date", slog.Int64("version", version))

	return nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.Conn.Close()
}
