// ABOUTME: Tests for backup export formatting and lenient import parsing.
// ABOUTME: Off-type fields are coerced and order is kept.

package foodlog

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestExportLogsIsIndentedArray(t *testing.T) {
	var buf bytes.Buffer
	logs := []LogEntry{{ID: "a", Timestamp: 1, MealType: Lunch, ItemName: "Salad", Emoji: "🥗"}}
	if err := ExportLogs(&buf, logs); err != nil {
		t.Fatalf("export: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "[\n  {\n    \"id\": \"a\"") {
		t.Fatalf("unexpected export format:\n%s", out)
	}

	buf.Reset()
	if err := ExportLogs(&buf, nil); err != nil {
		t.Fatalf("export empty: %v", err)
	}
	if buf.String() != "[]" {
		t.Fatalf("empty export = %q", buf.String())
	}
}

func TestExportFilename(t *testing.T) {
	got := ExportFilename(time.Date(2024, 3, 1, 23, 0, 0, 0, time.UTC))
	if got != "foodlog_backup_2024-03-01.json" {
		t.Fatalf("filename = %q", got)
	}
}

func TestParseImport(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantLen int
		wantErr bool
	}{
		{name: "array", input: `[{"id":"a","timestamp":1,"mealType":"lunch","itemName":"Salad","emoji":"🥗","isCustom":false}]`, wantLen: 1},
		{name: "empty array", input: `[]`, wantLen: 0},
		{name: "string", input: `"not an array"`, wantErr: true},
		{name: "object", input: `{"id":"a"}`, wantErr: true},
		{name: "invalid json", input: `[{`, wantErr: true},
		{name: "empty file", input: ``, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logs, err := ParseImport([]byte(tt.input))
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidImport) {
					t.Fatalf("expected ErrInvalidImport, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(logs) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(logs), tt.wantLen)
			}
		})
	}
}

func TestParseImportCoercesOffTypeFields(t *testing.T) {
	input := `[
		{"id":"a","timestamp":"2024-03-01T08:00:00Z","mealType":"lunch","itemName":"Salad","emoji":"🥗","isCustom":"no"},
		{"id":7,"timestamp":"1709280000000","mealType":"dinner","itemName":["x"],"isCustom":"true"},
		[1,2],
		1,
		{"id":"d","timestamp":1709280000000.9,"mealType":"snack","itemName":"Nuts","isCustom":1,"extra":{"k":"v"}}
	]`
	logs, err := ParseImport([]byte(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(logs) != 5 {
		t.Fatalf("len = %d, want 5", len(logs))
	}

	want := []LogEntry{
		{ID: "a", Timestamp: 1709280000000, MealType: Lunch, ItemName: "Salad", Emoji: "🥗"},
		{ID: "7", Timestamp: 1709280000000, MealType: Dinner, IsCustom: true},
		{},
		{},
		{ID: "d", Timestamp: 1709280000000, MealType: Snack, ItemName: "Nuts", IsCustom: true},
	}
	for i := range want {
		if logs[i] != want[i] {
			t.Errorf("entry %d = %+v, want %+v", i, logs[i], want[i])
		}
	}
}
