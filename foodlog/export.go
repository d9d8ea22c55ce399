// ABOUTME: JSON backup export and lenient import of the log collection.
// ABOUTME: Import keeps element order and coerces off-type fields instead of failing.

package foodlog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"
)

// ExportLogs writes logs as an indented JSON array.
func ExportLogs(w io.Writer, logs []LogEntry) error {
	if logs == nil {
		logs = []LogEntry{}
	}
	b, err := json.MarshalIndent(logs, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// ExportFilename names a backup taken at now.
func ExportFilename(now time.Time) string {
	return fmt.Sprintf("foodlog_backup_%s.json", now.UTC().Format("2006-01-02"))
}

// ParseImport decodes an export file. Only invalid JSON or a top-level value
// other than an array is rejected with ErrInvalidImport. Each element is mapped
// leniently and in order: fields of the wrong type are coerced where the
// meaning is clear and zeroed otherwise, and non-object elements become zero
// entries.
func ParseImport(data []byte) ([]LogEntry, error) {
	trimmed := bytes.TrimSpace(data)
	if !json.Valid(trimmed) {
		return nil, fmt.Errorf("%w: not valid JSON", ErrInvalidImport)
	}
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, fmt.Errorf("%w: top-level value is not an array", ErrInvalidImport)
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(trimmed, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImport, err)
	}
	logs := make([]LogEntry, 0, len(raw))
	for _, elem := range raw {
		logs = append(logs, importEntry(elem))
	}
	return logs, nil
}

func importEntry(elem json.RawMessage) LogEntry {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(elem, &fields); err != nil {
		return LogEntry{}
	}
	return LogEntry{
		ID:        importString(fields["id"]),
		Timestamp: importMillis(fields["timestamp"]),
		MealType:  MealType(importString(fields["mealType"])),
		ItemName:  importString(fields["itemName"]),
		Emoji:     importString(fields["emoji"]),
		IsCustom:  importBool(fields["isCustom"]),
		Origin:    Origin(importString(fields["origin"])),
	}
}

// importString takes strings as they are and numbers by their literal text.
func importString(v json.RawMessage) string {
	var s string
	if json.Unmarshal(v, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(v, &n) == nil {
		return n.String()
	}
	return ""
}

// importMillis accepts epoch milliseconds as a number or numeric string, or
// an RFC 3339 timestamp string.
func importMillis(v json.RawMessage) int64 {
	var f float64
	if json.Unmarshal(v, &f) == nil {
		return int64(f)
	}
	var s string
	if json.Unmarshal(v, &s) != nil {
		return 0
	}
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return ms
	}
	if ms, err := ParseTimestamp(s); err == nil {
		return ms
	}
	return 0
}

func importBool(v json.RawMessage) bool {
	var b bool
	if json.Unmarshal(v, &b) == nil {
		return b
	}
	var s string
	if json.Unmarshal(v, &s) == nil {
		b, _ = strconv.ParseBool(strings.TrimSpace(s))
		return b
	}
	var f float64
	if json.Unmarshal(v, &f) == nil {
		return f != 0
	}
	return false
}
