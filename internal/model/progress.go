package model

import "time"

// Metrics are the item counters exposed to polling clients.
type Metrics struct {
	TotalItems      int `json:"totalItems"`
	WithSuggestions int `json:"withSuggestions"`
	Processed       int `json:"processed"`
	Failed          int `json:"failed"`
	Pending         int `json:"pending"`
	InProgress      int `json:"inProgress"`
}

// Progress is the read model served while a job runs.
//
// CurrentLabel is the label at the job cursor: the furthest item position that
// has finished, not the item being searched right now. It is only set while
// the job is processing.
type Progress struct {
	PausedAt     *time.Time `json:"pausedAt,omitempty"`
	CurrentLabel *string    `json:"currentLabel,omitempty"`
	JobID        string     `json:"jobId"`
	Status       JobStatus  `json:"status"`
	Metrics      Metrics    `json:"metrics"`
	Current      int        `json:"current"`
	Total        int        `json:"total"`
	Percentage   float64    `json:"percentage"`
}
