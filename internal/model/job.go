// Package model defines the core domain models used throughout the application.
package model

import "time"

// JobKind distinguishes the two domains sharing the enrichment mechanics.
type JobKind string

// Job kinds.
const (
	KindProject       JobKind = "project"
	KindInterestCheck JobKind = "interest_check"
)

// Valid reports whether k is a known job kind.
func (k JobKind) Valid() bool {
	return k == KindProject || k == KindInterestCheck
}

// JobStatus is the lifecycle state of an enrichment job.
type JobStatus string

// Job status constants.
const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobPaused     JobStatus = "paused"
	JobCancelled  JobStatus = "cancelled"
	JobDone       JobStatus = "done"
	JobError      JobStatus = "error"
)

// Terminal reports whether no further transition is accepted from s.
func (s JobStatus) Terminal() bool {
	return s == JobCancelled || s == JobDone
}

// Valid reports whether s is a known job status.
func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobProcessing, JobPaused, JobCancelled, JobDone, JobError:
		return true
	}
	return false
}

// Job is one Project or InterestCheck undergoing enrichment.
type Job struct {
	CreatedAt    time.Time
	UpdatedAt    time.Time
	CurrentIndex *int       // Position of the furthest completed item, only set while processing
	PausedAt     *time.Time
	HeartbeatAt  *time.Time // Last sign of life from the process running the job
	ID           string
	Name         string
	Kind         JobKind
	Status       JobStatus
}
