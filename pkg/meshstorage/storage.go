package meshstorage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// schemaVersion is stored in PRAGMA user_version
const schemaVersion = 1

var ErrNotFound = errors.New("content not found")

// LocalStorage keeps manifests and erasure coded shards in SQLite
type LocalStorage struct {
	db   *sql.DB
	path string
}

// Manifest describes how a piece of content was sharded
type Manifest struct {
	CID          string    `json:"cid"`
	Size         int       `json:"size"`
	ShardSize    int       `json:"shard_size"`
	DataShards   int       `json:"data_shards"`
	ParityShards int       `json:"parity_shards"`
	StoredAt     time.Time `json:"stored_at"`
}

// StorageStats summarizes the store
type StorageStats struct {
	Contents  int   `json:"contents"`
	Shards    int   `json:"shards"`
	TotalSize int64 `json:"total_size"`
}

// NewLocalStorage opens (or creates) content.db under dataDir
func NewLocalStorage(dataDir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "content.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &LocalStorage{db: db, path: dbPath}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *LocalStorage) initSchema() error {
	var version int
	if err := s.db.QueryRow(`PRAGMA user_version`).Scan(&version); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if version > schemaVersion {
		return fmt.Errorf("database schema v%d is newer than supported v%d", version, schemaVersion)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS manifests (
			cid TEXT PRIMARY KEY,
			size INTEGER NOT NULL,
			shard_size INTEGER NOT NULL,
			data_shards INTEGER NOT NULL,
			parity_shards INTEGER NOT NULL,
			stored_at INTEGER NOT NULL
		);
		CREATE TABLE IF NOT EXISTS shards (
			cid TEXT NOT NULL,
			shard_index INTEGER NOT NULL,
			data BLOB NOT NULL,
			size INTEGER NOT NULL,
			PRIMARY KEY (cid, shard_index)
		);
		CREATE INDEX IF NOT EXISTS idx_manifests_stored_at ON manifests(stored_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	if version < schemaVersion {
		if _, err := s.db.Exec(fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion)); err != nil {
			return fmt.Errorf("failed to set schema version: %w", err)
		}
	}
	return nil
}

// Put stores a manifest and its shards in one transaction. Nil shards
// are skipped.
func (s *LocalStorage) Put(m Manifest, shards [][]byte) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`INSERT OR REPLACE INTO manifests (cid, size, shard_size, data_shards, parity_shards, stored_at)
	                  VALUES (?, ?, ?, ?, ?, ?)`,
		m.CID, m.Size, m.ShardSize, m.DataShards, m.ParityShards, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("failed to store manifest: %w", err)
	}

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO shards (cid, shard_index, data, size) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare shard insert: %w", err)
	}
	defer stmt.Close()

	for i, shard := range shards {
		if shard == nil {
			continue
		}
		if _, err := stmt.Exec(m.CID, i, shard, len(shard)); err != nil {
			return fmt.Errorf("failed to store shard %d: %w", i, err)
		}
	}

	return tx.Commit()
}

// GetManifest returns the manifest for cid
func (s *LocalStorage) GetManifest(cid string) (Manifest, error) {
	var m Manifest
	var storedAt int64
	err := s.db.QueryRow(`SELECT cid, size, shard_size, data_shards, parity_shards, stored_at
	                      FROM manifests WHERE cid = ?`, cid).
		Scan(&m.CID, &m.Size, &m.ShardSize, &m.DataShards, &m.ParityShards, &storedAt)
	if err == sql.ErrNoRows {
		return Manifest{}, fmt.Errorf("%w: %s", ErrNotFound, cid)
	}
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to retrieve manifest: %w", err)
	}
	m.StoredAt = time.Unix(storedAt, 0)
	return m, nil
}

// GetShard returns one shard
func (s *LocalStorage) GetShard(cid string, index int) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT data FROM shards WHERE cid = ? AND shard_index = ?`, cid, index).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: shard %d of %s", ErrNotFound, index, cid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve shard: %w", err)
	}
	return data, nil
}

// GetShards returns all stored shards for cid, indexed by shard number
func (s *LocalStorage) GetShards(cid string) ([][]byte, error) {
	rows, err := s.db.Query(`SELECT shard_index, data FROM shards WHERE cid = ? ORDER BY shard_index`, cid)
	if err != nil {
		return nil, fmt.Errorf("failed to query shards: %w", err)
	}
	defer rows.Close()

	shards := make([][]byte, TotalShards)
	for rows.Next() {
		var index int
		var data []byte
		if err := rows.Scan(&index, &data); err != nil {
			return nil, fmt.Errorf("failed to scan shard: %w", err)
		}
		if index >= 0 && index < TotalShards {
			shards[index] = data
		}
	}
	return shards, rows.Err()
}

// DeleteShard removes one shard
func (s *LocalStorage) DeleteShard(cid string, index int) error {
	result, err := s.db.Exec(`DELETE FROM shards WHERE cid = ? AND shard_index = ?`, cid, index)
	if err != nil {
		return fmt.Errorf("failed to delete shard: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: shard %d of %s", ErrNotFound, index, cid)
	}
	return nil
}

// Delete removes a manifest and its shards. It reports ErrNotFound when
// no manifest was stored for cid.
func (s *LocalStorage) Delete(cid string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM shards WHERE cid = ?`, cid); err != nil {
		return fmt.Errorf("failed to delete shards: %w", err)
	}
	result, err := tx.Exec(`DELETE FROM manifests WHERE cid = ?`, cid)
	if err != nil {
		return fmt.Errorf("failed to delete manifest: %w", err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, cid)
	}
	return tx.Commit()
}

// GetStats returns storage statistics
func (s *LocalStorage) GetStats() (*StorageStats, error) {
	var stats StorageStats
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM manifests`).Scan(&stats.Contents); err != nil {
		return nil, fmt.Errorf("failed to count manifests: %w", err)
	}
	err := s.db.QueryRow(`SELECT COUNT(*), COALESCE(SUM(size), 0) FROM shards`).Scan(&stats.Shards, &stats.TotalSize)
	if err != nil {
		return nil, fmt.Errorf("failed to get storage size: %w", err)
	}
	return &stats, nil
}

// Cleanup removes content stored longer than maxAge ago
func (s *LocalStorage) Cleanup(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).Unix()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM shards WHERE cid IN (SELECT cid FROM manifests WHERE stored_at < ?)`, cutoff); err != nil {
		return 0, fmt.Errorf("failed to cleanup shards: %w", err)
	}
	result, err := tx.Exec(`DELETE FROM manifests WHERE stored_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup manifests: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get affected rows: %w", err)
	}
	return int(n), tx.Commit()
}

// Close closes the database connection
func (s *LocalStorage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file path
func (s *LocalStorage) Path() string {
	return s.path
}
