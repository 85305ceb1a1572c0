// Package topsis ranks candidates with the Technique for Order of Preference
// by Similarity to Ideal Solution.
//
// Rank is a pure function: it holds no state between calls, performs no I/O
// and returns identical results for identical input.
package topsis

import (
	"math"
	"sort"
)

// DegenerateScore is assigned when a candidate is equidistant from
// coinciding ideal best and ideal worst points (d+ = d- = 0).
const DegenerateScore = 0.5

// Rank validates the batch and returns one result per candidate, ordered by
// descending TOPSIS score. Candidates with equal scores keep input order.
// The input batch is never modified.
func Rank(batch Batch) ([]RankResult, error) {
	m, err := prepare(batch)
	if err != nil {
		return nil, err
	}

	weighted := m.weighted()
	best, worst := m.ideals(weighted)

	results := make([]RankResult, len(batch.Candidates))
	for i, cand := range batch.Candidates {
		dPlus := distance(weighted[i], best)
		dMinus := distance(weighted[i], worst)

		r := RankResult{
			CandidateID: cand.ID,
			Name:        cand.Name,
			Role:        cand.Role,
			Total:       m.total(i),
			DPlus:       dPlus,
			DMinus:      dMinus,
			InputIndex:  i,
		}
		if denom := dPlus + dMinus; denom == 0 {
			r.Score = DegenerateScore
			r.Degenerate = true
		} else {
			r.Score = dMinus / denom
		}
		results[i] = r
	}

	sort.SliceStable(results, func(a, b int) bool {
		return results[a].Score > results[b].Score
	})
	for i := range results {
		results[i].Rank = i + 1
	}

	return results, nil
}

// weighted returns the vector-normalised matrix scaled by weight/100.
// A criterion whose column is all zero normalises to zero.
func (m *matrix) weighted() [][]float64 {
	cols := len(m.names)
	norms := make([]float64, cols)
	for _, row := range m.scores {
		for j, x := range row {
			norms[j] += x * x
		}
	}
	for j := range norms {
		norms[j] = math.Sqrt(norms[j])
	}

	out := make([][]float64, len(m.scores))
	for i, row := range m.scores {
		out[i] = make([]float64, cols)
		for j, x := range row {
			if norms[j] == 0 {
				continue
			}
			out[i][j] = x / norms[j] * (m.weights[j] / WeightSum)
		}
	}
	return out
}

func (m *matrix) ideals(v [][]float64) (best, worst []float64) {
	cols := len(m.names)
	best = make([]float64, cols)
	worst = make([]float64, cols)
	for j := 0; j < cols; j++ {
		hi, lo := v[0][j], v[0][j]
		for i := 1; i < len(v); i++ {
			hi = math.Max(hi, v[i][j])
			lo = math.Min(lo, v[i][j])
		}
		if m.polarity[j] == Cost {
			best[j], worst[j] = lo, hi
		} else {
			best[j], worst[j] = hi, lo
		}
	}
	return best, worst
}

// total is the weighted display score on the 0-100 scale. Cost criteria
// contribute their complement so a higher total is always better.
func (m *matrix) total(i int) float64 {
	var t float64
	for j, x := range m.scores[i] {
		if m.polarity[j] == Cost {
			x = MaxScore - x
		}
		t += x * m.weights[j] / WeightSum
	}
	return t
}

func distance(a, b []float64) float64 {
	var sum float64
	for j := range a {
		d := a[j] - b[j]
		sum += d * d
	}
	return math.Sqrt(sum)
}
