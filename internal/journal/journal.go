// SPDX-License-Identifier: MIT

// Package journal records session lifecycle events in SQLite.
package journal

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/ManuGH/camwatch/internal/log"
	"github.com/ManuGH/camwatch/internal/metrics"
)

const (
	schemaVersion = 1

	// writeBuffer bounds how many entries may sit between the run loop
	// and the disk before new entries are dropped.
	writeBuffer = 256

	defaultTailLimit = 100
	maxTailLimit     = 1000
)

// Entry is one journal row.
type Entry struct {
	ID        int64     `json:"id"`
	TS        time.Time `json:"ts"`
	SessionID string    `json:"sessionId"`
	Event     string    `json:"event"`
	FromState string    `json:"fromState,omitempty"`
	ToState   string    `json:"toState,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Journal persists entries through a buffered writer goroutine so
// callers never block on disk.
type Journal struct {
	db *sql.DB

	mu      sync.RWMutex
	closed  bool
	entries chan Entry
	drained chan struct{}
}

// Open creates or migrates the journal database and starts the writer.
func Open(dbPath string) (*Journal, error) {
	db, err := openDB(dbPath, defaultDBConfig())
	if err != nil {
		return nil, err
	}

	j := &Journal{
		db:      db,
		entries: make(chan Entry, writeBuffer),
		drained: make(chan struct{}),
	}
	if err := j.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("journal: migration failed: %w", err)
	}

	go j.writeLoop()
	return j, nil
}

func (j *Journal) migrate() error {
	var currentVersion int
	err := j.db.QueryRow("PRAGMA user_version").Scan(&currentVersion)
	if err != nil {
		return err
	}

	if currentVersion >= schemaVersion {
		return nil
	}

	tx, err := j.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	schema := `
	CREATE TABLE IF NOT EXISTS session_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		ts TEXT NOT NULL,
		session_id TEXT NOT NULL,
		event TEXT NOT NULL,
		from_state TEXT NOT NULL DEFAULT '',
		to_state TEXT NOT NULL DEFAULT '',
		reason TEXT NOT NULL DEFAULT '',
		detail TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_session_events_ts ON session_events(ts);
	CREATE INDEX IF NOT EXISTS idx_session_events_session ON session_events(session_id);
	`

	if _, err := tx.Exec(schema); err != nil {
		return err
	}

	if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)); err != nil {
		return err
	}

	return tx.Commit()
}

// Record enqueues an entry for the writer. When the buffer is full or
// the journal is closed the entry is dropped and counted; the caller is
// never blocked.
func (j *Journal) Record(e Entry) {
	if e.TS.IsZero() {
		e.TS = time.Now()
	}

	j.mu.RLock()
	defer j.mu.RUnlock()
	if j.closed {
		metrics.IncJournalWrite("dropped")
		return
	}
	select {
	case j.entries <- e:
	default:
		metrics.IncJournalWrite("dropped")
		logger := log.WithComponent("journal")
		logger.Warn().
			Str("event", "journal.write.dropped").
			Str(log.FieldSessionID, e.SessionID).
			Msg("journal buffer full")
	}
}

func (j *Journal) writeLoop() {
	defer close(j.drained)
	logger := log.WithComponent("journal")

	for e := range j.entries {
		if err := j.insert(e); err != nil {
			metrics.IncJournalWrite("error")
			logger.Error().Err(err).
				Str("event", "journal.write.failed").
				Msg("failed to persist journal entry")
			continue
		}
		metrics.IncJournalWrite("success")
	}
}

func (j *Journal) insert(e Entry) error {
	query := `
	INSERT INTO session_events (ts, session_id, event, from_state, to_state, reason, detail)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := j.db.Exec(query,
		e.TS.UTC().Format(time.RFC3339Nano),
		e.SessionID, e.Event, e.FromState, e.ToState, e.Reason, e.Detail,
	)
	return err
}

// Tail returns the newest n entries, newest first. n outside [1,1000]
// is clamped.
func (j *Journal) Tail(ctx context.Context, n int) ([]Entry, error) {
	if n <= 0 {
		n = defaultTailLimit
	}
	if n > maxTailLimit {
		n = maxTailLimit
	}

	query := `
	SELECT id, ts, session_id, event, from_state, to_state, reason, detail
	FROM session_events
	ORDER BY id DESC
	LIMIT ?
	`
	rows, err := j.db.QueryContext(ctx, query, n)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var tsStr string
		if err := rows.Scan(&e.ID, &tsStr, &e.SessionID, &e.Event, &e.FromState, &e.ToState, &e.Reason, &e.Detail); err != nil {
			return nil, err
		}
		e.TS, _ = time.Parse(time.RFC3339Nano, tsStr)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Ping verifies the database is reachable and writable enough for a
// health probe.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Close flushes buffered entries and closes the database. Safe to call
// twice.
func (j *Journal) Close() error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return nil
	}
	j.closed = true
	close(j.entries)
	j.mu.Unlock()

	<-j.drained
	return j.db.Close()
}
