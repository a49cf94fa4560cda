package testutil

import (
	"context"
	"fmt"
	"testing"

	"github.com/Veraticus/interest-enricher/internal/model"
)

// JobBuilder provides a fluent interface for constructing test jobs.
type JobBuilder struct {
	categories map[string]string
	name       string
	country    string
	kind       model.JobKind
	labels     []string
}

// NewJobBuilder starts a job of the given kind with country US.
func NewJobBuilder(kind model.JobKind) *JobBuilder {
	return &JobBuilder{
		kind:       kind,
		name:       fmt.Sprintf("test %s", kind),
		country:    "US",
		categories: make(map[string]string),
	}
}

// WithName sets the job name.
func (b *JobBuilder) WithName(name string) *JobBuilder {
	b.name = name
	return b
}

// WithCountry sets the country used by every item.
func (b *JobBuilder) WithCountry(country string) *JobBuilder {
	b.country = country
	return b
}

// WithLabels appends items in order.
func (b *JobBuilder) WithLabels(labels ...string) *JobBuilder {
	b.labels = append(b.labels, labels...)
	return b
}

// WithCategory sets the scoring context of the item with label.
func (b *JobBuilder) WithCategory(label, path string) *JobBuilder {
	b.categories[label] = path
	return b
}

// Build creates the job in db.
func (b *JobBuilder) Build(t *testing.T, db *TestDB) *model.Job {
	t.Helper()

	items := make([]model.Item, len(b.labels))
	for i, label := range b.labels {
		items[i] = model.Item{Label: label, Country: b.country, Category: b.categories[label]}
	}

	job := &model.Job{Name: b.name, Kind: b.kind}
	if err := db.Storage.CreateJob(context.Background(), job, items); err != nil {
		t.Fatalf("failed to create job: %v", err)
	}
	return job
}

// Candidate builds a search candidate with audience bounds and an optional path.
func Candidate(id, name string, lower, upper int64, path ...string) model.Candidate {
	return model.Candidate{
		ExternalID:         id,
		Name:               name,
		Type:               "interest",
		Path:               path,
		AudienceLowerBound: &lower,
		AudienceUpperBound: &upper,
	}
}
