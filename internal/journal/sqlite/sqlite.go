package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/godlewis/process-list/internal/journal"
)

// Sink writes journal events to a SQLite database. It also implements
// journal.Reader and journal.Purger.
type Sink struct {
	db *sql.DB
}

// New opens or creates the database and ensures the schema.
// DSN format:
//   - "sqlite:///path/to/file.db"
//   - "sqlite://:memory:"
//   - "/path/to/file.db" (without prefix)
//   - ":memory:" (in-memory database)
func New(dsn string) (*Sink, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("empty SQLite DSN")
	}
	if strings.HasPrefix(strings.ToLower(dsn), "sqlite://") {
		dsn = strings.TrimPrefix(dsn, "sqlite://")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one connection keeps ":memory:" on a single database
	db.SetMaxOpenConns(1)
	// busy timeout helps with short concurrent locks
	_, _ = db.Exec("PRAGMA busy_timeout=3000;")

	sink := &Sink{db: db}
	if err := sink.ensureSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return sink, nil
}

func (s *Sink) ensureSchema(ctx context.Context) error {
	// occurred_at_ns holds UnixNano so purge cutoffs compare as integers.
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS snapshot_journal(
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			occurred_at_ns INTEGER NOT NULL,
			event_type TEXT NOT NULL,
			cause TEXT NOT NULL,
			record_count INTEGER NOT NULL,
			took_ms INTEGER NOT NULL,
			record_id TEXT NOT NULL,
			error TEXT NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_snapshot_journal_occurred ON snapshot_journal(occurred_at_ns);`,
	}
	for _, q := range stmts {
		if _, err := s.db.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sink) Send(ctx context.Context, e journal.Event) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO snapshot_journal(occurred_at_ns, event_type, cause, record_count, took_ms, record_id, error)
		VALUES(?, ?, ?, ?, ?, ?, ?);`,
		e.OccurredAt.UTC().UnixNano(), string(e.Type), e.Trigger, e.Records, e.TookMS, e.RecordID, e.Error)
	return err
}

// Recent returns up to limit entries, newest first. Limit values below 1
// default to 50.
func (s *Sink) Recent(ctx context.Context, limit int) ([]journal.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT occurred_at_ns, event_type, cause, record_count, took_ms, record_id, error
		FROM snapshot_journal
		ORDER BY occurred_at_ns DESC, id DESC
		LIMIT ?;`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []journal.Event
	for rows.Next() {
		var (
			ns  int64
			typ string
			e   journal.Event
		)
		if err := rows.Scan(&ns, &typ, &e.Trigger, &e.Records, &e.TookMS, &e.RecordID, &e.Error); err != nil {
			return nil, err
		}
		e.Type = journal.EventType(typ)
		e.OccurredAt = time.Unix(0, ns).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

// PurgeOlderThan deletes entries that occurred before the cutoff.
func (s *Sink) PurgeOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM snapshot_journal WHERE occurred_at_ns < ?;`, cutoff.UTC().UnixNano())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Sink) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
