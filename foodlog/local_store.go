// ABOUTME: LocalStore keeps the two local slots (logs and categories) as JSON
// ABOUTME: values in a SQLite key/value table.

package foodlog

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// Slot keys for the two persisted collections.
const (
	SlotLogs       = "foodlog_v1_data"
	SlotCategories = "foodlog_v1_categories"
)

// LocalStore keeps the device-local copy of logs and categories. Each
// collection lives in one JSON slot and is always read and written whole.
type LocalStore struct {
	db     *sql.DB
	logger *log.Logger
}

// OpenLocalStore opens/creates a SQLite database and runs migrations.
func OpenLocalStore(path string) (*LocalStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &LocalStore{db: db, logger: log.Default()}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// SetLogger redirects diagnostics about unreadable slots.
func (s *LocalStore) SetLogger(l *log.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Close closes the underlying database handle.
func (s *LocalStore) Close() error { return s.db.Close() }

func (s *LocalStore) migrate() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS slots (
  k TEXT PRIMARY KEY,
  v TEXT NOT NULL,
  updated_at INTEGER NOT NULL
);
`)
	return err
}

// LoadLogs returns the stored log collection, newest first. A missing or
// unreadable slot yields an empty collection.
func (s *LocalStore) LoadLogs(ctx context.Context) []LogEntry {
	var logs []LogEntry
	if !s.loadSlot(ctx, SlotLogs, &logs) || logs == nil {
		return []LogEntry{}
	}
	return logs
}

// SaveLogs overwrites the log slot.
func (s *LocalStore) SaveLogs(ctx context.Context, logs []LogEntry) error {
	if logs == nil {
		logs = []LogEntry{}
	}
	return s.saveSlot(ctx, SlotLogs, logs)
}

// LoadCategories returns the stored categories, or defaults when the slot is
// missing or unreadable.
func (s *LocalStore) LoadCategories(ctx context.Context, defaults []MealCategory) []MealCategory {
	var cats []MealCategory
	if !s.loadSlot(ctx, SlotCategories, &cats) || len(cats) == 0 {
		return cloneCategories(defaults)
	}
	return normalizeOrigins(cats, defaults)
}

// SaveCategories overwrites the category slot.
func (s *LocalStore) SaveCategories(ctx context.Context, cats []MealCategory) error {
	return s.saveSlot(ctx, SlotCategories, cats)
}

// loadSlot decodes slot k into out. It reports false when the slot is absent
// or cannot be decoded; corruption is logged and otherwise ignored.
func (s *LocalStore) loadSlot(ctx context.Context, k string, out any) bool {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT v FROM slots WHERE k = ?`, k).Scan(&v)
	if err == sql.ErrNoRows {
		return false
	}
	if err != nil {
		s.logger.Printf("local store: read %s: %v", k, err)
		return false
	}
	if err := json.Unmarshal([]byte(v), out); err != nil {
		s.logger.Printf("local store: %s is corrupt, using defaults: %v", k, err)
		return false
	}
	return true
}

func (s *LocalStore) saveSlot(ctx context.Context, k string, val any) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return s.writeSlot(ctx, k, string(b))
}

func (s *LocalStore) writeSlot(ctx context.Context, k, raw string) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO slots(k,v,updated_at) VALUES(?,?,?)
ON CONFLICT(k) DO UPDATE SET v=excluded.v, updated_at=excluded.updated_at`,
		k, raw, time.Now().Unix())
	return err
}
