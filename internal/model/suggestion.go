package model

import (
	"math"
	"strings"
	"time"
)

// Suggestion is a scored candidate persisted for an item.
type Suggestion struct {
	CreatedAt        time.Time
	ExternalID       *string // Nil when the API did not resolve the candidate to a canonical id
	ID               string
	ItemID           string
	Label            string
	Path             string
	Audience         int64
	SimilarityScore  float64 // 0.0-1.0
	IsBestMatch      bool
	IsSelectedByUser bool
}

// Candidate is a raw result returned by the ad-interest search API.
// Candidates are what the suggestion cache stores.
type Candidate struct {
	ExternalID         string   `json:"id,omitempty"`
	Name               string   `json:"name"`
	Topic              string   `json:"topic,omitempty"`
	Type               string   `json:"type,omitempty"`
	Brand              string   `json:"brand,omitempty"`
	Path               []string `json:"path,omitempty"`
	AudienceLowerBound *int64   `json:"audience_lower_bound,omitempty"`
	AudienceUpperBound *int64   `json:"audience_upper_bound,omitempty"`
}

// Audience returns the midpoint of the audience bounds.
// A single known bound is used as is.
func (c Candidate) Audience() int64 {
	switch {
	case c.AudienceLowerBound != nil && c.AudienceUpperBound != nil:
		return int64(math.Round(float64(*c.AudienceLowerBound+*c.AudienceUpperBound) / 2))
	case c.AudienceLowerBound != nil:
		return *c.AudienceLowerBound
	case c.AudienceUpperBound != nil:
		return *c.AudienceUpperBound
	}
	return 0
}

// PathString joins the category path the way it is compared and displayed.
func (c Candidate) PathString() string {
	return strings.Join(c.Path, " > ")
}

// CallType tells whether a search was issued by the batch loop or by a user action.
type CallType string

// Call types.
const (
	CallAuto   CallType = "auto"
	CallManual CallType = "manual"
)

// SearchRequest is a single query to the ad-interest search API.
type SearchRequest struct {
	Term     string
	Country  string
	CallType CallType
	Limit    int
	Attempt  int
}

// SearchResult is the decoded answer of a successful search call.
type SearchResult struct {
	Candidates []Candidate
	StatusCode int
}

// CacheEntry is a memoized search result.
type CacheEntry struct {
	CreatedAt  time.Time
	Key        string
	Country    string
	Candidates []Candidate
}
