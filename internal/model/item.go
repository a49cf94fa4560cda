package model

import "time"

// ItemStatus is the per-run state of a single search term.
type ItemStatus string

// Item status constants.
const (
	ItemPending    ItemStatus = "pending"
	ItemInProgress ItemStatus = "in_progress"
	ItemDone       ItemStatus = "done"
	ItemFailed     ItemStatus = "failed"
	ItemRetry      ItemStatus = "retry"
	ItemCancelled  ItemStatus = "cancelled"
)

// Valid reports whether s is a known item status.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemPending, ItemInProgress, ItemDone, ItemFailed, ItemRetry, ItemCancelled:
		return true
	}
	return false
}

// Item is one unit of work: a project criterion or an imported interest.
type Item struct {
	CreatedAt            time.Time
	UpdatedAt            time.Time
	SelectedSuggestionID *string
	ID                   string
	JobID                string
	Label                string
	Country              string
	Category             string // Optional target category path used as scoring context
	Status               ItemStatus
	Position             int
	RetryCount           int
}

// ItemCounts aggregates the items of a job by status.
type ItemCounts struct {
	Total           int
	Pending         int
	InProgress      int
	Retry           int
	Done            int
	Failed          int
	Cancelled       int
	WithSuggestions int
}
