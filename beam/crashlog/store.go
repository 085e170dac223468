// Package crashlog persists [beam.Report]s in SQLite, so crashes and
// supervisor restarts can be inspected after the program is gone.
//
//	store, err := crashlog.Open("crashes.db")
//	...
//	sink, err := crashlog.StartSink(self, store)
package crashlog

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/uberbrodt/beamgo/beam"
)

//go:embed schema.sql
var schema string

// Entry is a stored report.
type Entry struct {
	ID     int64
	Kind   beam.ReportKind
	PID    string
	Name   beam.Name
	Reason string
	Detail string
	// stored with millisecond precision
	CreatedAt time.Time
}

// Store is a SQLite backed crash log. It is safe for concurrent use.
type Store struct {
	sqlDB *sql.DB
}

// Open opens or creates the database at path and applies the schema. Use
// ":memory:" for a private in-memory log.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("crash log path is required")
	}
	dsn := ":memory:"
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// an in-memory database exists per connection
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// Record stores one report.
func (s *Store) Record(ctx context.Context, r beam.Report) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("crash log is not open")
	}
	if r.Kind == "" {
		return fmt.Errorf("report kind is required")
	}
	if r.Time.IsZero() {
		r.Time = time.Now()
	}
	var reason string
	if r.Reason != nil {
		reason = r.Reason.Error()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO reports (
	kind,
	pid,
	name,
	reason,
	detail,
	created_at
) VALUES (?, ?, ?, ?, ?, ?)
`,
		string(r.Kind),
		r.PID.String(),
		string(r.Name),
		reason,
		r.Detail,
		r.Time.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record report: %w", err)
	}
	return nil
}

// List returns up to limit entries, newest first.
func (s *Store) List(ctx context.Context, limit int) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("crash log is not open")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT
	id,
	kind,
	pid,
	name,
	reason,
	detail,
	created_at
FROM reports
ORDER BY created_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var kind, name string
		var createdAt int64
		if err := rows.Scan(&e.ID, &kind, &e.PID, &name, &e.Reason, &e.Detail, &createdAt); err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		e.Kind = beam.ReportKind(kind)
		e.Name = beam.Name(name)
		e.CreatedAt = time.UnixMilli(createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reports: %w", err)
	}
	return entries, nil
}

// Prune deletes all but the newest keep entries and returns how many were
// deleted.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if s == nil || s.sqlDB == nil {
		return 0, fmt.Errorf("crash log is not open")
	}
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative")
	}

	res, err := s.sqlDB.ExecContext(ctx, `
DELETE FROM reports
WHERE id NOT IN (
	SELECT id FROM reports
	ORDER BY created_at DESC, id DESC
	LIMIT ?
)
`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune reports: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("prune reports: %w", err)
	}
	return n, nil
}
