package scoring

import (
	"fmt"
	"sort"

	"github.com/fmuoria/ranksense/internal/models"
)

const maxInsights = 3

// Insights summarises a candidate's strongest, weakest and middle sections.
func Insights(sections []models.SectionScore) []models.Insight {
	if len(sections) == 0 {
		return nil
	}

	sorted := make([]models.SectionScore, len(sections))
	copy(sorted, sections)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	top := sorted[0]
	bottom := sorted[len(sorted)-1]
	mid := sorted[len(sorted)/2]

	out := []models.Insight{{
		Type: models.InsightSuccess,
		Text: fmt.Sprintf("Strong %s section, %s level", top.Name, top.Level),
	}}

	switch {
	case bottom.Score < 65:
		out = append(out, models.Insight{Type: models.InsightError, Text: fmt.Sprintf("%s needs significant improvement", bottom.Name)})
	case bottom.Score < 78:
		out = append(out, models.Insight{Type: models.InsightWarning, Text: fmt.Sprintf("%s could be stronger with more detail", bottom.Name)})
	}

	if mid.Level == models.LevelModerate || mid.Level == models.LevelPoor {
		out = append(out, models.Insight{Type: models.InsightWarning, Text: fmt.Sprintf("Consider enhancing %s for better ranking", mid.Name)})
	} else {
		out = append(out, models.Insight{Type: models.InsightSuccess, Text: "Well-rounded profile across most sections"})
	}

	if len(out) > maxInsights {
		out = out[:maxInsights]
	}
	return out
}
