package scoring

import (
	"context"
	"math"
	"strings"
	"unicode/utf8"

	"github.com/fmuoria/ranksense/internal/models"
)

// Scorer produces per-section scores and a profile for one resume.
type Scorer interface {
	Evaluate(ctx context.Context, doc models.ResumeDocument, job models.JobDescription) (models.Evaluation, error)
}

const (
	// neutralScore is given to every section of a resume with no usable text.
	neutralScore = 50.0
	minTextLen   = 10

	keywordFloor   = 40.0
	keywordCeiling = 98.0
	layoutFloor    = 45.0
	layoutCeiling  = 98.0
)

// HeuristicScorer scores sections by keyword density and layout. It needs no
// external service and is fully deterministic.
type HeuristicScorer struct {
	sections []Section
}

// NewHeuristicScorer creates a scorer over the given sections, or the default
// catalogue when none are given.
func NewHeuristicScorer(sections []Section) *HeuristicScorer {
	if len(sections) == 0 {
		sections = DefaultSections()
	}
	return &HeuristicScorer{sections: sections}
}

// Sections returns the catalogue the scorer uses.
func (h *HeuristicScorer) Sections() []Section {
	return h.sections
}

// Evaluate scores every section of doc. The job description is not used.
func (h *HeuristicScorer) Evaluate(ctx context.Context, doc models.ResumeDocument, _ models.JobDescription) (models.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return models.Evaluation{}, err
	}

	text := SanitizeUTF8(doc.Content)

	scores := make([]models.SectionScore, len(h.sections))
	for i, s := range h.sections {
		score := round(scoreSection(text, s), 1)
		level := LevelFor(score)
		scores[i] = models.SectionScore{
			Name:     s.Name,
			Score:    score,
			Weight:   s.Weight,
			Level:    level,
			Feedback: Feedback(s.Name, level),
		}
	}

	return models.Evaluation{
		Profile:  ExtractProfile(text, doc.Filename),
		Sections: scores,
	}, nil
}

func scoreSection(text string, s Section) float64 {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < minTextLen {
		return neutralScore
	}
	if s.pattern == nil {
		return layoutScore(text)
	}

	matches := len(s.pattern.FindAllStringIndex(text, -1))
	words := float64(len(strings.Fields(text)))
	density := float64(matches) / math.Max(words/100, 1)

	base := 40 + math.Min(density*25, 40) + math.Min(words/20, 15)
	return clamp(base, keywordFloor, keywordCeiling)
}

// layoutScore rewards moderate average line lengths.
func layoutScore(text string) float64 {
	lines := strings.Split(text, "\n")
	var total int
	for _, l := range lines {
		total += utf8.RuneCountInString(l)
	}
	avg := float64(total) / float64(len(lines))

	base := 70.0
	if avg > 30 && avg < 80 {
		base += 10
	}
	return clamp(base, layoutFloor, layoutCeiling)
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(math.Max(v, lo), hi)
}
