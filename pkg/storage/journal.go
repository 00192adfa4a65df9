// Package storage keeps the dispatch journal: one row per envelope the
// consumer handled, failed or skipped.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"

	"github.com/ZentaChain/chuck/pkg/network"
	"github.com/ZentaChain/chuck/pkg/protocol"
)

// DefaultRetention is how long receipts are kept when no retention is given
const DefaultRetention = 7 * 24 * time.Hour

// Entry is a stored receipt
type Entry struct {
	ID      int64           `json:"id"`
	Topic   string          `json:"topic"`
	Size    int             `json:"size"`
	Outcome network.Outcome `json:"outcome"`
	Error   string          `json:"error,omitempty"`
	Elapsed time.Duration   `json:"elapsed_ns"`
	At      time.Time       `json:"at"`
}

// Journal records dispatch receipts in SQLite
type Journal struct {
	db        *sql.DB
	retention time.Duration
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

var _ network.Recorder = (*Journal)(nil)

// NewJournal opens (or creates) the journal at dbPath and starts the
// background cleanup of receipts older than retention.
func NewJournal(dbPath string, retention time.Duration) (*Journal, error) {
	if retention <= 0 {
		retention = DefaultRetention
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	j := &Journal{
		db:        db,
		retention: retention,
		cancel:    cancel,
	}

	if err := j.initSchema(); err != nil {
		cancel()
		db.Close()
		return nil, err
	}

	j.wg.Add(1)
	go j.cleanupExpired(ctx)

	return j, nil
}

func (j *Journal) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS receipts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		topic INTEGER NOT NULL,
		size INTEGER NOT NULL,
		outcome TEXT NOT NULL,
		error TEXT NOT NULL DEFAULT '',
		elapsed_ns INTEGER NOT NULL,
		at INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_receipts_at ON receipts(at);
	CREATE INDEX IF NOT EXISTS idx_receipts_outcome ON receipts(outcome);
	`

	if _, err := j.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Record stores one receipt
func (j *Journal) Record(ctx context.Context, r network.Receipt) error {
	at := r.At
	if at.IsZero() {
		at = time.Now()
	}

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO receipts (topic, size, outcome, error, elapsed_ns, at) VALUES (?, ?, ?, ?, ?, ?)`,
		int64(r.Topic), r.Size, string(r.Outcome), r.Error, int64(r.Elapsed), at.UnixNano())
	if err != nil {
		return fmt.Errorf("failed to record receipt: %w", err)
	}
	return nil
}

// Recent returns up to limit receipts, newest first
func (j *Journal) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, topic, size, outcome, error, elapsed_ns, at FROM receipts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query receipts: %w", err)
	}
	defer rows.Close()

	entries := make([]Entry, 0, limit)
	for rows.Next() {
		var e Entry
		var topic, elapsed, at int64
		var outcome string
		if err := rows.Scan(&e.ID, &topic, &e.Size, &outcome, &e.Error, &elapsed, &at); err != nil {
			return nil, fmt.Errorf("failed to scan receipt: %w", err)
		}
		e.Topic = protocol.Topic(topic).String()
		e.Outcome = network.Outcome(outcome)
		e.Elapsed = time.Duration(elapsed)
		e.At = time.Unix(0, at)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Counts returns the number of stored receipts per outcome
func (j *Journal) Counts(ctx context.Context) (map[network.Outcome]int64, error) {
	rows, err := j.db.QueryContext(ctx, `SELECT outcome, COUNT(*) FROM receipts GROUP BY outcome`)
	if err != nil {
		return nil, fmt.Errorf("failed to count receipts: %w", err)
	}
	defer rows.Close()

	counts := make(map[network.Outcome]int64)
	for rows.Next() {
		var outcome string
		var n int64
		if err := rows.Scan(&outcome, &n); err != nil {
			return nil, err
		}
		counts[network.Outcome(outcome)] = n
	}
	return counts, rows.Err()
}

// Prune deletes receipts recorded before cutoff
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := j.db.ExecContext(ctx, `DELETE FROM receipts WHERE at < ?`, cutoff.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to prune receipts: %w", err)
	}
	return result.RowsAffected()
}

// cleanupExpired periodically removes receipts older than the retention
func (j *Journal) cleanupExpired(ctx context.Context) {
	defer j.wg.Done()

	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := j.Prune(ctx, time.Now().Add(-j.retention))
			if err != nil {
				log.Warn().Err(err).Msg("failed to clean up journal")
				continue
			}
			if count > 0 {
				log.Info().Int64("removed", count).Msg("expired receipts removed")
			}
		}
	}
}

// Close stops the cleanup loop and closes the database
func (j *Journal) Close() error {
	j.cancel()
	j.wg.Wait()
	return j.db.Close()
}
