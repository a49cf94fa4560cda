package model

// ScoreWeights configures how much each similarity factor contributes.
// Weights need not sum to 1; they are normalized when a score is computed.
type ScoreWeights struct {
	Textual      float64 `json:"textual"`
	Contextual   float64 `json:"contextual"`
	Audience     float64 `json:"audience"`
	Brand        float64 `json:"brand"`
	InterestType float64 `json:"interestType"`
}

// DefaultScoreWeights returns the weights used when none are configured.
func DefaultScoreWeights() ScoreWeights {
	return ScoreWeights{
		Textual:      0.50,
		Contextual:   0.15,
		Audience:     0.15,
		Brand:        0.10,
		InterestType: 0.10,
	}
}

// Valid reports whether every weight lies in [0,1] and at least one is positive.
func (w ScoreWeights) Valid() bool {
	sum := 0.0
	for _, v := range []float64{w.Textual, w.Contextual, w.Audience, w.Brand, w.InterestType} {
		if v < 0 || v > 1 {
			return false
		}
		sum += v
	}
	return sum > 0
}
