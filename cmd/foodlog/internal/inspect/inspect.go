// ABOUTME: Reads the local slot table directly for the inspect command.
// ABOUTME: Summarizes slots and returns their raw JSON.

package inspect

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	_ "modernc.org/sqlite"
)

// Inspector provides read-only access to the local slot table.
type Inspector struct {
	db *sql.DB
}

// Open opens the SQLite database located at path.
func Open(path string) (*Inspector, error) {
	if path == "" {
		return nil, errors.New("db path required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	return &Inspector{db: db}, nil
}

// Close releases resources held by Inspector.
func (i *Inspector) Close() error {
	if i == nil || i.db == nil {
		return nil
	}
	return i.db.Close()
}

// SlotRow summarizes one stored slot.
type SlotRow struct {
	Key     string
	Bytes   int
	Items   int // array length, or -1 if the value is not a JSON array
	Updated int64
}

// Summary returns every slot with its size and element count.
func (i *Inspector) Summary(ctx context.Context) ([]SlotRow, error) {
	rows, err := i.db.QueryContext(ctx, `SELECT k, v, updated_at FROM slots ORDER BY k`)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	var out []SlotRow
	for rows.Next() {
		var r SlotRow
		var raw string
		if err := rows.Scan(&r.Key, &raw, &r.Updated); err != nil {
			return nil, err
		}
		r.Bytes = len(raw)
		r.Items = countElements(raw)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Raw returns the stored value of a slot, or "" if it is absent.
func (i *Inspector) Raw(ctx context.Context, key string) (string, error) {
	if key == "" {
		return "", errors.New("slot key required")
	}
	var raw string
	err := i.db.QueryRowContext(ctx, `SELECT v FROM slots WHERE k = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return raw, err
}

func countElements(raw string) int {
	var elems []json.RawMessage
	if err := json.Unmarshal([]byte(raw), &elems); err != nil {
		return -1
	}
	return len(elems)
}
