package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/okian/fathom/internal/domain/model"
	"github.com/okian/fathom/pkg/metrics"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS decisions (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	id           TEXT NOT NULL UNIQUE,
	subject      TEXT NOT NULL,
	action       TEXT NOT NULL,
	context_json TEXT,
	ts_unix_nano INTEGER NOT NULL,
	ts_text      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_subject_action ON decisions(subject, action, ts_unix_nano);
`

// SQLiteStore persists records in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens the database at path and runs migrations.
// ":memory:" opens a private in-memory database.
func NewSQLiteStore(path string, opts ...SQLiteOption) (*SQLiteStore, error) {
	cfg := sqliteConfig{busyTimeout: 5 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own database
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.busyTimeout.Milliseconds())); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, rec model.DecisionRecord) error {
	if err := validate(rec); err != nil {
		return err
	}
	start := time.Now()

	var ctxJSON sql.NullString
	if rec.HasContext() {
		b, err := json.Marshal(rec.Context)
		if err != nil {
			return fmt.Errorf("marshal context: %w", err)
		}
		ctxJSON = sql.NullString{String: string(b), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	ts := rec.Timestamp.UTC()
	res, err := tx.ExecContext(ctx,
		`INSERT INTO decisions (id, subject, action, context_json, ts_unix_nano, ts_text)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		rec.ID, rec.Subject, rec.Action, ctxJSON, ts.UnixNano(), ts.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert decision: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrDuplicate
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	metrics.UpdateStoreRecords(s.Count(ctx))
	metrics.RecordStoreLatency("append", float64(time.Since(start).Nanoseconds())/1e6)
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, f Filter) ([]model.DecisionRecord, error) {
	start := time.Now()

	var (
		where []string
		args  []any
	)
	if f.Subject != "" {
		where = append(where, "subject = ?")
		args = append(args, f.Subject)
	}
	if f.Action != "" {
		where = append(where, "action = ?")
		args = append(args, f.Action)
	}
	if !f.Since.IsZero() {
		where = append(where, "ts_unix_nano >= ?")
		args = append(args, f.Since.UTC().UnixNano())
	}
	q := "SELECT id, subject, action, context_json, ts_text FROM decisions"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY seq"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	out := make([]model.DecisionRecord, 0)
	for rows.Next() {
		var (
			rec     model.DecisionRecord
			ctxJSON sql.NullString
			ts      string
		)
		if err := rows.Scan(&rec.ID, &rec.Subject, &rec.Action, &ctxJSON, &ts); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if ctxJSON.Valid {
			if err := json.Unmarshal([]byte(ctxJSON.String), &rec.Context); err != nil {
				return nil, fmt.Errorf("unmarshal context of %s: %w", rec.ID, err)
			}
		}
		if rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse timestamp of %s: %w", rec.ID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}

	metrics.RecordStoreLatency("query", float64(time.Since(start).Nanoseconds())/1e6)
	return out, nil
}

func (s *SQLiteStore) Count(ctx context.Context) int {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM decisions").Scan(&n); err != nil {
		return 0
	}
	return n
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
