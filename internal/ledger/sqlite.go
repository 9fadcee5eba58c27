// Package ledger remembers which delivered orders already prompted the
// customer for feedback, across restarts.
package ledger

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

type SQLiteLedger struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the ledger database at path. Use ":memory:" for a
// throwaway ledger.
func Open(path string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: in-memory databases are per connection and SQLite
	// serialises writers anyway.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &SQLiteLedger{db: db, now: time.Now}, nil
}

// RunMigrations applies the embedded schema migrations.
func (l *SQLiteLedger) RunMigrations() error {
	source, err := iofs.New(migrations, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(l.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}
	return nil
}

// MarkPrompted records orderID. first is true only for the call that
// inserted the row.
func (l *SQLiteLedger) MarkPrompted(ctx context.Context, orderID string) (bool, error) {
	res, err := l.db.ExecContext(ctx,
		`INSERT INTO feedback_prompts (order_id, prompted_at) VALUES (?, ?)
		 ON CONFLICT(order_id) DO NOTHING`,
		orderID, l.now().UnixMilli(),
	)
	if err != nil {
		return false, fmt.Errorf("failed to mark order %s prompted: %w", orderID, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n == 1, nil
}

// PromptedAt returns when orderID was prompted, or ok=false if it never was.
func (l *SQLiteLedger) PromptedAt(ctx context.Context, orderID string) (time.Time, bool, error) {
	var millis int64
	err := l.db.QueryRowContext(ctx,
		`SELECT prompted_at FROM feedback_prompts WHERE order_id = ?`, orderID,
	).Scan(&millis)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("failed to query order %s: %w", orderID, err)
	}
	return time.UnixMilli(millis), true, nil
}

func (l *SQLiteLedger) Close() error {
	return l.db.Close()
}
