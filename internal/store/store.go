package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mesh-intelligence/ndrbatch/pkg/types"
)

// Store is the concurrently-written result table shared by every worker.
// It owns one long-lived connection; a single mutex serializes every
// read-modify-write so workers never interleave transactions. All writes
// are idempotent on their primary key.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open creates (or reopens) the result database at path and ensures the
// schema exists. Schema creation failure is fatal to the run.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("creating database dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening result database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating result schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection. Idempotent.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// InsertExport records the total exported nutrient mass for one
// (watershed, scenario) pair. Re-insertion with the same key is a silent
// no-op and the first value is retained, so a duplicated or retried
// schedule of the same watershed cannot corrupt totals or abort the batch.
func (s *Store) InsertExport(wsID, scenarioKey string, totalExport float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return types.ErrStoreClosed
	}
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"INSERT OR IGNORE INTO nutrient_export (ws_prefix_key, scenario_key, total_export) VALUES (?, ?, ?)",
			wsID, scenarioKey, totalExport,
		)
		return err
	})
}

// InsertGeometry records a watershed's canonical WGS84 geometry as
// well-known binary, insert-if-absent.
func (s *Store) InsertGeometry(wsID string, geometryWKB []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return types.ErrStoreClosed
	}
	return s.withTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"INSERT OR IGNORE INTO geometry (ws_prefix_key, geometry_wkb) VALUES (?, ?)",
			wsID, geometryWKB,
		)
		return err
	})
}

// HasAllScenarios reports whether the store already holds an export total
// for every given scenario key, used to skip completed watersheds on
// resume.
func (s *Store) HasAllScenarios(wsID string, scenarioKeys []string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return false, types.ErrStoreClosed
	}
	for _, key := range scenarioKeys {
		var total float64
		err := s.db.QueryRow(
			"SELECT total_export FROM nutrient_export WHERE ws_prefix_key = ? AND scenario_key = ?",
			wsID, key,
		).Scan(&total)
		if err == sql.ErrNoRows {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("querying export for %s/%s: %w", wsID, key, err)
		}
	}
	return true, nil
}

// Export returns the stored total for one (watershed, scenario) pair.
func (s *Store) Export(wsID, scenarioKey string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return 0, types.ErrStoreClosed
	}
	var total float64
	err := s.db.QueryRow(
		"SELECT total_export FROM nutrient_export WHERE ws_prefix_key = ? AND scenario_key = ?",
		wsID, scenarioKey,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("querying export for %s/%s: %w", wsID, scenarioKey, err)
	}
	return total, nil
}

// GeometryRecord is one row of the geometry table.
type GeometryRecord struct {
	WsID string
	WKB  []byte
}

// Geometries returns every stored watershed geometry, ordered by ID.
func (s *Store) Geometries() ([]GeometryRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, types.ErrStoreClosed
	}
	rows, err := s.db.Query("SELECT ws_prefix_key, geometry_wkb FROM geometry ORDER BY ws_prefix_key")
	if err != nil {
		return nil, fmt.Errorf("querying geometries: %w", err)
	}
	defer rows.Close()
	var out []GeometryRecord
	for rows.Next() {
		var rec GeometryRecord
		if err := rows.Scan(&rec.WsID, &rec.WKB); err != nil {
			return nil, fmt.Errorf("scanning geometry row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// ExportsByWatershed returns scenario -> total for one watershed.
func (s *Store) ExportsByWatershed(wsID string) (map[string]float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil, types.ErrStoreClosed
	}
	rows, err := s.db.Query(
		"SELECT scenario_key, total_export FROM nutrient_export WHERE ws_prefix_key = ?", wsID)
	if err != nil {
		return nil, fmt.Errorf("querying exports for %s: %w", wsID, err)
	}
	defer rows.Close()
	out := make(map[string]float64)
	for rows.Next() {
		var key string
		var total float64
		if err := rows.Scan(&key, &total); err != nil {
			return nil, fmt.Errorf("scanning export row: %w", err)
		}
		out[key] = total
	}
	return out, rows.Err()
}

// withTx runs fn inside a transaction with commit on success and rollback
// on every failure path. Caller holds the mutex.
func (s *Store) withTx(fn func(tx *sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}
