// ABOUTME: Wire forms of the remote food_logs and user_food_items rows.
// ABOUTME: Converts between ISO-8601 timestamps and epoch milliseconds.

package foodlog

import (
	"fmt"
	"time"
)

// isoMillis matches the ISO-8601 form browsers produce, e.g.
// 2024-03-01T08:15:00.000Z.
const isoMillis = "2006-01-02T15:04:05.000Z07:00"

// FoodLogRow is the wire form of a food_logs row.
type FoodLogRow struct {
	ID       string   `json:"id,omitempty"`
	UserID   string   `json:"user_id"`
	LoggedAt string   `json:"logged_at"`
	MealType MealType `json:"meal_type"`
	ItemName string   `json:"item_name"`
	Emoji    string   `json:"emoji"`
	IsCustom bool     `json:"is_custom"`
}

// NewFoodLogRow converts an entry into an insert payload. The id is left for
// the server to assign.
func NewFoodLogRow(e LogEntry, userID string) FoodLogRow {
	return FoodLogRow{
		UserID:   userID,
		LoggedAt: FormatTimestamp(e.Timestamp),
		MealType: e.MealType,
		ItemName: e.ItemName,
		Emoji:    e.Emoji,
		IsCustom: e.IsCustom,
	}
}

// Entry converts a row back into a LogEntry.
func (r FoodLogRow) Entry() (LogEntry, error) {
	ts, err := ParseTimestamp(r.LoggedAt)
	if err != nil {
		return LogEntry{}, fmt.Errorf("row %s: %w", r.ID, err)
	}
	return LogEntry{
		ID:        r.ID,
		Timestamp: ts,
		MealType:  r.MealType,
		ItemName:  r.ItemName,
		Emoji:     r.Emoji,
		IsCustom:  r.IsCustom,
		Origin:    OriginRemote,
	}, nil
}

// UserFoodItemRow is the wire form of a user_food_items row.
type UserFoodItemRow struct {
	ID           string   `json:"id,omitempty"`
	UserID       string   `json:"user_id"`
	CategoryType MealType `json:"category_type"`
	Name         string   `json:"name"`
	Emoji        string   `json:"emoji"`
	Calories     *float64 `json:"calories,omitempty"`
	CreatedAt    string   `json:"created_at,omitempty"`
}

// Item converts a row into a FoodItem.
func (r UserFoodItemRow) Item() FoodItem {
	return FoodItem{
		ID:       r.ID,
		Name:     r.Name,
		Emoji:    r.Emoji,
		Calories: r.Calories,
		Origin:   OriginRemote,
	}
}

// FormatTimestamp renders epoch milliseconds as an ISO-8601 UTC string.
func FormatTimestamp(ms int64) string {
	return time.UnixMilli(ms).UTC().Format(isoMillis)
}

// ParseTimestamp accepts any RFC 3339 timestamp and returns epoch milliseconds.
func ParseTimestamp(s string) (int64, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, err
	}
	return t.UnixMilli(), nil
}
