package topsis

import (
	"math"
)

const (
	// WeightSum is the total every candidate's weights must add up to.
	WeightSum = 100.0
	// WeightTolerance is the allowed deviation from WeightSum.
	WeightTolerance = 0.01

	// MinScore and MaxScore bound raw criterion scores.
	MinScore = 0.0
	MaxScore = 100.0

	weightEpsilon = 1e-9
)

// matrix is a validated batch laid out in declared criterion order.
type matrix struct {
	ref      string
	names    []string
	weights  []float64 // percentages
	polarity []Polarity
	scores   [][]float64 // [candidate][criterion]
}

// Validate checks a batch against every input constraint without ranking it.
func Validate(batch Batch) error {
	_, err := prepare(batch)
	return err
}

func prepare(batch Batch) (*matrix, error) {
	if len(batch.Candidates) == 0 {
		return nil, invalid("", "", ConstraintEmptyBatch, "")
	}

	ref := batch.Candidates[0]
	if ref.ID == "" {
		return nil, invalid("", "", ConstraintCandidateID, "candidate at position 0")
	}
	if len(ref.Criteria) == 0 {
		return nil, invalid(ref.ID, "", ConstraintNoCriteria, "")
	}

	m := &matrix{
		ref:      ref.ID,
		names:    make([]string, 0, len(ref.Criteria)),
		weights:  make([]float64, 0, len(ref.Criteria)),
		polarity: make([]Polarity, 0, len(ref.Criteria)),
		scores:   make([][]float64, len(batch.Candidates)),
	}
	declared := make(map[string]int, len(ref.Criteria))
	for _, c := range ref.Criteria {
		if c.Name == "" {
			return nil, invalid(ref.ID, "", ConstraintCriterionName, "")
		}
		if _, dup := declared[c.Name]; dup {
			return nil, invalid(ref.ID, c.Name, ConstraintDuplicateCriterion, "")
		}
		declared[c.Name] = len(m.names)
		m.names = append(m.names, c.Name)
		m.weights = append(m.weights, c.Weight)
		m.polarity = append(m.polarity, c.Polarity)
	}

	seen := make(map[string]int, len(batch.Candidates))
	for i, cand := range batch.Candidates {
		if cand.ID == "" {
			return nil, invalid("", "", ConstraintCandidateID, "candidate at position %d", i)
		}
		if prev, dup := seen[cand.ID]; dup {
			return nil, invalid(cand.ID, "", ConstraintDuplicateCandidate, "positions %d and %d", prev, i)
		}
		seen[cand.ID] = i

		row, err := validateCandidate(cand, m, declared)
		if err != nil {
			return nil, err
		}
		m.scores[i] = row
	}

	return m, nil
}

func validateCandidate(cand Candidate, m *matrix, declared map[string]int) ([]float64, error) {
	if len(cand.Criteria) == 0 {
		return nil, invalid(cand.ID, "", ConstraintNoCriteria, "")
	}

	row := make([]float64, len(m.names))
	filled := make([]bool, len(m.names))

	for _, c := range cand.Criteria {
		if c.Name == "" {
			return nil, invalid(cand.ID, "", ConstraintCriterionName, "")
		}
		j, ok := declared[c.Name]
		if !ok {
			return nil, invalid(cand.ID, c.Name, ConstraintExtraCriterion, "not declared by candidate %q", m.ref)
		}
		if filled[j] {
			return nil, invalid(cand.ID, c.Name, ConstraintDuplicateCriterion, "")
		}
		if math.IsNaN(c.Score) || math.IsInf(c.Score, 0) || c.Score < MinScore || c.Score > MaxScore {
			return nil, invalid(cand.ID, c.Name, ConstraintScoreRange, "got %v", c.Score)
		}
		if math.IsNaN(c.Weight) || math.IsInf(c.Weight, 0) || c.Weight < 0 {
			return nil, invalid(cand.ID, c.Name, ConstraintWeightValue, "got %v", c.Weight)
		}
		if c.Polarity != Benefit && c.Polarity != Cost {
			return nil, invalid(cand.ID, c.Name, ConstraintPolarity, "got %d", int(c.Polarity))
		}
		if math.Abs(c.Weight-m.weights[j]) > weightEpsilon {
			return nil, invalid(cand.ID, c.Name, ConstraintWeightMismatch, "got %v, declared %v", c.Weight, m.weights[j])
		}
		if c.Polarity != m.polarity[j] {
			return nil, invalid(cand.ID, c.Name, ConstraintPolarityMismatch, "got %s, declared %s", c.Polarity, m.polarity[j])
		}
		row[j] = c.Score
		filled[j] = true
	}

	for j, ok := range filled {
		if !ok {
			return nil, invalid(cand.ID, m.names[j], ConstraintMissingCriterion, "")
		}
	}

	var sum float64
	for _, w := range m.weights {
		sum += w
	}
	if math.Abs(sum-WeightSum) > WeightTolerance {
		return nil, invalid(cand.ID, "", ConstraintWeightSum, "got %.4f", sum)
	}

	return row, nil
}
