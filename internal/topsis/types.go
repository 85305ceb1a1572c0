package topsis

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Polarity says whether a higher or a lower raw score is preferable.
type Polarity int

const (
	// Benefit criteria prefer higher scores.
	Benefit Polarity = iota
	// Cost criteria prefer lower scores.
	Cost
)

func (p Polarity) String() string {
	switch p {
	case Benefit:
		return "benefit"
	case Cost:
		return "cost"
	default:
		return fmt.Sprintf("polarity(%d)", int(p))
	}
}

// ParsePolarity accepts "benefit" or "cost" (case-insensitive). Empty means benefit.
func ParsePolarity(s string) (Polarity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "benefit":
		return Benefit, nil
	case "cost":
		return Cost, nil
	default:
		return Benefit, fmt.Errorf("unknown polarity %q (valid: benefit, cost)", s)
	}
}

// MarshalJSON encodes the polarity as its name.
func (p Polarity) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

// UnmarshalJSON decodes "benefit"/"cost"; a missing value stays Benefit.
func (p *Polarity) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("polarity must be a string: %w", err)
	}
	parsed, err := ParsePolarity(s)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Criterion is one scored, weighted dimension of a candidate.
type Criterion struct {
	Name     string   `json:"name"`
	Score    float64  `json:"score"`  // 0-100
	Weight   float64  `json:"weight"` // percentage
	Polarity Polarity `json:"polarity,omitempty"`
}

// Candidate is an entity being ranked. Name and Role are opaque to the engine.
type Candidate struct {
	ID       string      `json:"id"`
	Name     string      `json:"name,omitempty"`
	Role     string      `json:"role,omitempty"`
	Criteria []Criterion `json:"criteria"`
}

// Batch is the ordered set of candidates evaluated together.
type Batch struct {
	Candidates []Candidate `json:"candidates"`
}

// RankResult is the immutable per-candidate outcome of a Rank call.
type RankResult struct {
	CandidateID string  `json:"candidate_id"`
	Name        string  `json:"name,omitempty"`
	Role        string  `json:"role,omitempty"`
	Score       float64 `json:"topsis"`
	Rank        int     `json:"rank"`
	Total       float64 `json:"total"`
	DPlus       float64 `json:"d_plus"`
	DMinus      float64 `json:"d_minus"`
	Degenerate  bool    `json:"degenerate,omitempty"`
	InputIndex  int     `json:"input_index"`
}
