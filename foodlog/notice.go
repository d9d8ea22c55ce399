// ABOUTME: Transient user-facing notices and the custom item action choice.
// ABOUTME: Confirmations expire after a TTL; failures stay until replaced.

package foodlog

import "time"

// NoticeKind distinguishes confirmations from failures.
type NoticeKind int

const (
	NoticeLogged NoticeKind = iota + 1
	NoticeFailure
	NoticeRestored
)

// RestoredMessage confirms a successful backup import.
const RestoredMessage = "System data successfully restored."

// Notice is a transient user-facing message.
type Notice struct {
	Kind    NoticeKind
	Message string
	Expires time.Time // zero for notices that stay until replaced or dismissed
}

// CustomAction says what to do with a newly authored item.
type CustomAction struct {
	persist  bool
	mealType MealType
}

// Ephemeral logs the item once under Other without keeping it.
func Ephemeral() CustomAction { return CustomAction{} }

// Persist adds the item to mealType's category and logs it there.
func Persist(mealType MealType) CustomAction {
	return CustomAction{persist: true, mealType: mealType}
}

// Persistent reports whether the item should be kept.
func (a CustomAction) Persistent() bool { return a.persist }

// MealType is the target category for persisted items.
func (a CustomAction) MealType() MealType { return a.mealType }
