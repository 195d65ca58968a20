// SPDX-License-Identifier: MIT

package journal

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite" // Pure Go driver
)

// dbConfig defines the SQLite operational parameters for the journal.
type dbConfig struct {
	BusyTimeout  time.Duration
	MaxOpenConns int
}

func defaultDBConfig() dbConfig {
	return dbConfig{
		BusyTimeout: 5 * time.Second,
		// One writer goroutine plus a handful of tail readers; WAL
		// lets the reads run alongside the writer.
		MaxOpenConns: 4,
	}
}

// openDB initializes a SQLite connection pool with mandatory PRAGMAs.
// The DSN form applies them to every connection in the pool.
func openDB(dbPath string, cfg dbConfig) (*sql.DB, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)",
		dbPath, cfg.BusyTimeout.Milliseconds())

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open failed: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(1 * time.Hour)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping failed: %w", err)
	}

	return db, nil
}
