// ABOUTME: Core domain types: meal types, log entries, food items and categories.
// ABOUTME: Origin records whether a value came from seed, local or remote storage.

package foodlog

import (
	"fmt"
	"strings"
)

// MealType names the meal a log entry or category belongs to.
type MealType string

const (
	Breakfast MealType = "breakfast"
	Lunch     MealType = "lunch"
	Dinner    MealType = "dinner"
	Snack     MealType = "snack"
	Other     MealType = "other"
)

// Valid reports whether m is one of the known meal types.
func (m MealType) Valid() bool {
	switch m {
	case Breakfast, Lunch, Dinner, Snack, Other:
		return true
	}
	return false
}

// ParseMealType normalizes user input into a MealType.
func ParseMealType(s string) (MealType, error) {
	m := MealType(strings.ToLower(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidMealType, s)
	}
	return m, nil
}

// Origin records where an item or entry came from. Routing decisions use it
// instead of guessing from the shape of an id.
type Origin string

const (
	OriginSeed   Origin = "seed"
	OriginLocal  Origin = "local"
	OriginRemote Origin = "remote"
)

// LogEntry is one recorded instance of eating something. Timestamp is epoch ms.
type LogEntry struct {
	ID        string   `json:"id"`
	Timestamp int64    `json:"timestamp"`
	MealType  MealType `json:"mealType"`
	ItemName  string   `json:"itemName"`
	Emoji     string   `json:"emoji"`
	IsCustom  bool     `json:"isCustom"`
	Origin    Origin   `json:"origin,omitempty"`
}

// FoodItem is a selectable food choice inside a category.
type FoodItem struct {
	ID       string   `json:"id"`
	Name     string   `json:"name"`
	Emoji    string   `json:"emoji"`
	Calories *float64 `json:"calories,omitempty"`
	Origin   Origin   `json:"origin,omitempty"`
}

// MealCategory groups the items offered for one meal type. There is never a
// category for Other.
type MealCategory struct {
	Type  MealType   `json:"type"`
	Label string     `json:"label"`
	Items []FoodItem `json:"items"`
}

// UserIdentity is the signed-in account as seen by the client.
type UserIdentity struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
}

// Mode selects which backend is authoritative.
type Mode int

const (
	ModeLocal Mode = iota
	ModeRemote
)

func (m Mode) String() string {
	if m == ModeRemote {
		return "remote"
	}
	return "local"
}

func cloneLogs(in []LogEntry) []LogEntry {
	if in == nil {
		return []LogEntry{}
	}
	out := make([]LogEntry, len(in))
	copy(out, in)
	return out
}

func cloneCategories(in []MealCategory) []MealCategory {
	out := make([]MealCategory, len(in))
	for i, cat := range in {
		items := make([]FoodItem, len(cat.Items))
		copy(items, cat.Items)
		out[i] = MealCategory{Type: cat.Type, Label: cat.Label, Items: items}
	}
	return out
}

// FindItem looks an item up by id across all categories.
func FindItem(categories []MealCategory, itemID string) (FoodItem, MealType, bool) {
	for _, cat := range categories {
		for _, it := range cat.Items {
			if it.ID == itemID {
				return it, cat.Type, true
			}
		}
	}
	return FoodItem{}, "", false
}
