package scoring

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/fmuoria/ranksense/internal/models"
	"github.com/fmuoria/ranksense/internal/topsis"
)

// Section names of the default catalogue.
const (
	SectionContact      = "Contact Info"
	SectionEducation    = "Education"
	SectionExperience   = "Work Experience"
	SectionSkills       = "Skills"
	SectionProjects     = "Projects"
	SectionAchievements = "Achievements"
	SectionSummary      = "Summary"
	SectionFormatting   = "Formatting"
)

// Section is one scored resume section and its weight in percent.
type Section struct {
	Name   string
	Weight float64

	// pattern counts keyword hits; nil means the section is scored on layout.
	pattern *regexp.Regexp
}

var defaultSections = []Section{
	{SectionContact, 5, regexp.MustCompile(`(?i)(email|phone|linkedin|github|portfolio|contact)`)},
	{SectionEducation, 20, regexp.MustCompile(`(?i)(education|university|college|degree|gpa|cgpa|bachelor|master|phd|b\.?tech|m\.?tech)`)},
	{SectionExperience, 30, regexp.MustCompile(`(?i)(experience|work|internship|employment|job|company|engineer|analyst|developer|intern)`)},
	{SectionSkills, 20, regexp.MustCompile(`(?i)(skills|technologies|tools|frameworks|languages|proficiency|expertise)`)},
	{SectionProjects, 15, regexp.MustCompile(`(?i)(projects?|portfolio|built|developed|created|implemented)`)},
	{SectionAchievements, 5, regexp.MustCompile(`(?i)(achievements?|awards?|honors?|publications?|certifications?|accomplishments?)`)},
	{SectionSummary, 3, regexp.MustCompile(`(?i)(summary|objective|profile|about|overview)`)},
	{SectionFormatting, 2, nil},
}

// DefaultSections returns a copy of the built-in catalogue in display order.
func DefaultSections() []Section {
	out := make([]Section, len(defaultSections))
	copy(out, defaultSections)
	return out
}

// WithWeights overrides catalogue weights by section name. Sections not named
// keep their weight; the result must still sum to 100.
func WithWeights(sections []Section, weights map[string]float64) ([]Section, error) {
	out := make([]Section, len(sections))
	copy(out, sections)

	index := make(map[string]int, len(out))
	for i, s := range out {
		index[strings.ToLower(s.Name)] = i
	}

	names := make([]string, 0, len(weights))
	for name := range weights {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		w := weights[name]
		i, ok := index[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return nil, fmt.Errorf("unknown section %q", name)
		}
		if w < 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("section %q: weight must be a finite non-negative number", name)
		}
		out[i].Weight = w
	}

	if err := ValidateWeights(out); err != nil {
		return nil, err
	}
	return out, nil
}

// ValidateWeights checks that the section weights add up to 100.
func ValidateWeights(sections []Section) error {
	var sum float64
	for _, s := range sections {
		sum += s.Weight
	}
	if math.Abs(sum-topsis.WeightSum) > topsis.WeightTolerance {
		return fmt.Errorf("section weights must sum to 100, got %.2f", sum)
	}
	return nil
}

// LevelFor buckets a section score.
func LevelFor(score float64) models.Level {
	switch {
	case score >= 85:
		return models.LevelExcellent
	case score >= 70:
		return models.LevelGood
	case score >= 50:
		return models.LevelModerate
	default:
		return models.LevelPoor
	}
}

var grades = []struct {
	threshold float64
	grade     string
	color     string
}{
	{90, "A+", "#3b82f6"},
	{80, "A", "#8b5cf6"},
	{70, "B+", "#06b6d4"},
	{60, "B", "#f59e0b"},
	{50, "C+", "#f97316"},
	{0, "C", "#f43f5e"},
}

// Grade maps a weighted total (0-100) to a letter grade and its colour.
func Grade(total float64) (grade, color string) {
	for _, g := range grades {
		if total >= g.threshold {
			return g.grade, g.color
		}
	}
	last := grades[len(grades)-1]
	return last.grade, last.color
}

var avatarColors = []string{"#3b82f6", "#8b5cf6", "#22d3ee", "#f59e0b", "#f43f5e", "#10b981", "#a78bfa"}

// AvatarColor picks a colour for the candidate at position i.
func AvatarColor(i int) string {
	if i < 0 {
		i = -i
	}
	return avatarColors[i%len(avatarColors)]
}

var feedback = map[string]map[models.Level]string{
	SectionContact: {
		models.LevelExcellent: "All professional channels present: email, phone, LinkedIn and GitHub",
		models.LevelGood:      "Most contact details present, missing one channel",
		models.LevelModerate:  "Basic contact info only, add LinkedIn/GitHub",
		models.LevelPoor:      "Very minimal contact information provided",
	},
	SectionEducation: {
		models.LevelExcellent: "Strong academic background with prestigious institution",
		models.LevelGood:      "Solid educational foundation, GPA mentioned",
		models.LevelModerate:  "Education listed but lacks GPA or institution prestige",
		models.LevelPoor:      "Education section needs significant detail",
	},
	SectionExperience: {
		models.LevelExcellent: "Strong work history with quantified impact metrics",
		models.LevelGood:      "Good experience, some quantified results",
		models.LevelModerate:  "Work experience listed but lacks quantified achievements",
		models.LevelPoor:      "Limited or no work experience demonstrated",
	},
	SectionSkills: {
		models.LevelExcellent: "Comprehensive and role-relevant technical skill set",
		models.LevelGood:      "Good skill coverage, minor gaps in stack",
		models.LevelModerate:  "Basic skills listed, needs deeper technical depth",
		models.LevelPoor:      "Skills section is underdeveloped",
	},
	SectionProjects: {
		models.LevelExcellent: "Strong portfolio of relevant projects with live demonstrations",
		models.LevelGood:      "Good projects, could add more metrics and GitHub links",
		models.LevelModerate:  "Projects listed but lack depth or public links",
		models.LevelPoor:      "Very few or irrelevant projects in portfolio",
	},
	SectionAchievements: {
		models.LevelExcellent: "Notable awards, publications, or certifications listed",
		models.LevelGood:      "Some recognitions and certifications present",
		models.LevelModerate:  "Few achievements mentioned, needs more specificity",
		models.LevelPoor:      "No achievements or certifications listed",
	},
	SectionSummary: {
		models.LevelExcellent: "Clear, targeted, and role-specific professional summary",
		models.LevelGood:      "Good summary with clear career objective",
		models.LevelModerate:  "Summary is generic, not tailored to role",
		models.LevelPoor:      "Missing or very vague professional summary",
	},
	SectionFormatting: {
		models.LevelExcellent: "ATS-optimized, consistent layout, professional design",
		models.LevelGood:      "Clean layout with minor formatting inconsistencies",
		models.LevelModerate:  "Acceptable but has formatting issues that may affect ATS",
		models.LevelPoor:      "Significant formatting issues detected",
	},
}

// Feedback returns the canned feedback line for a section at a level.
func Feedback(section string, level models.Level) string {
	if f, ok := feedback[section][level]; ok {
		return f
	}
	return "Score computed from resume content"
}

// Total is the weighted sum of section scores on the 0-100 scale.
func Total(sections []models.SectionScore) float64 {
	var t float64
	for _, s := range sections {
		t += s.Score * s.Weight / topsis.WeightSum
	}
	return t
}

// Criteria converts section scores into engine criteria, preserving order.
func Criteria(sections []models.SectionScore) []topsis.Criterion {
	out := make([]topsis.Criterion, len(sections))
	for i, s := range sections {
		out[i] = topsis.Criterion{Name: s.Name, Score: s.Score, Weight: s.Weight, Polarity: topsis.Benefit}
	}
	return out
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// Round1 rounds a section score or weighted total for display.
func Round1(v float64) float64 {
	return round(v, 1)
}

// Round4 rounds a TOPSIS score for display and storage.
func Round4(v float64) float64 {
	return round(v, 4)
}
