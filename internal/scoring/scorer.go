// Package scoring ranks ad-interest candidates against the term they were searched for.
package scoring

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/Veraticus/interest-enricher/internal/model"
)

// InterestType is the candidate type that earns the full type factor.
const InterestType = "interest"

// Input is one (query, candidate) pair to score.
type Input struct {
	Query     string
	Context   string // Target category path; empty when unknown
	Candidate model.Candidate
}

// Factors holds the per-factor scores, each in [0,1].
type Factors struct {
	Textual      float64
	Contextual   float64
	Audience     float64
	Brand        float64
	InterestType float64
}

// Scorer computes 0-100 relevance scores with a fixed set of weights.
type Scorer struct {
	weights model.ScoreWeights
}

// New returns a scorer for weights. Invalid weights fall back to the defaults.
func New(weights model.ScoreWeights) *Scorer {
	if !weights.Valid() {
		weights = model.DefaultScoreWeights()
	}
	return &Scorer{weights: weights}
}

// Weights returns the weights in use.
func (s *Scorer) Weights() model.ScoreWeights {
	return s.weights
}

// Score returns the weighted relevance of in, rounded to one decimal.
func (s *Scorer) Score(in Input) float64 {
	f := ComputeFactors(in)

	pairs := [...]struct{ weight, value float64 }{
		{s.weights.Textual, f.Textual},
		{s.weights.Contextual, f.Contextual},
		{s.weights.Audience, f.Audience},
		{s.weights.Brand, f.Brand},
		{s.weights.InterestType, f.InterestType},
	}

	total := 0.0
	for _, p := range pairs {
		if p.weight > 0 {
			total += p.weight
		}
	}
	if total == 0 {
		return 0
	}

	sum := 0.0
	for _, p := range pairs {
		if p.weight > 0 {
			sum += p.weight / total * p.value
		}
	}

	score := math.Round(sum*100*10) / 10
	return math.Max(0, math.Min(100, score))
}

// Scored pairs a candidate with its score.
type Scored struct {
	Candidate model.Candidate
	Score     float64
}

// Rank scores every candidate for query and sorts them best first.
// Ties are broken by name then external id so the order is deterministic.
func (s *Scorer) Rank(query, context string, candidates []model.Candidate) []Scored {
	ranked := make([]Scored, len(candidates))
	for i, c := range candidates {
		ranked[i] = Scored{
			Candidate: c,
			Score:     s.Score(Input{Query: query, Context: context, Candidate: c}),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].Candidate.Name != ranked[j].Candidate.Name {
			return ranked[i].Candidate.Name < ranked[j].Candidate.Name
		}
		return ranked[i].Candidate.ExternalID < ranked[j].Candidate.ExternalID
	})

	return ranked
}

// ComputeFactors evaluates each similarity factor independently.
func ComputeFactors(in Input) Factors {
	return Factors{
		Textual:      textual(in.Query, in.Candidate.Name),
		Contextual:   contextual(in.Context, in.Candidate.PathString()),
		Audience:     audience(in.Candidate.Audience()),
		Brand:        brand(in.Candidate.Name, in.Candidate.Brand),
		InterestType: interestType(in.Candidate.Type),
	}
}

func textual(query, label string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	l := strings.ToLower(strings.TrimSpace(label))
	if q == l {
		return 1
	}

	qTokens := tokenSet(q)
	lTokens := tokenSet(l)
	if len(qTokens) == 0 || len(lTokens) == 0 {
		return 0
	}

	intersection := 0
	for tok := range qTokens {
		if _, ok := lTokens[tok]; ok {
			intersection++
		}
	}
	union := len(qTokens) + len(lTokens) - intersection
	return float64(intersection) / float64(union)
}

func tokenSet(s string) map[string]struct{} {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	return set
}

func contextual(want, path string) float64 {
	want = strings.TrimSpace(want)
	if want == "" {
		return 0.5
	}
	if path != "" && path == want {
		return 1
	}
	return 0
}

func audience(size int64) float64 {
	if size <= 0 {
		return 0
	}
	return math.Min(1, math.Log10(float64(size)+1)/6)
}

func brand(label, known string) float64 {
	known = strings.TrimSpace(known)
	if known == "" {
		return 0.5
	}
	if strings.Contains(strings.ToLower(label), strings.ToLower(known)) {
		return 1
	}
	return 0
}

func interestType(kind string) float64 {
	k := strings.ToLower(strings.TrimSpace(kind))
	if k == InterestType || k == InterestType+"s" {
		return 1
	}
	return 0.5
}
