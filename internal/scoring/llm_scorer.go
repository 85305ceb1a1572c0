package scoring

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/mitchellh/mapstructure"

	"github.com/fmuoria/ranksense/internal/llm"
	"github.com/fmuoria/ranksense/internal/models"
)

const (
	maxResumeChars      = 8000
	maxCoverLetterChars = 3000
	maxRequirements     = 5
)

// LLMScorer asks a language model to score each section against the job.
// Profile fields still come from the heuristic extractor.
type LLMScorer struct {
	gen      llm.Generator
	sections []Section
}

// NewLLMScorer creates a scorer over the given sections, or the default
// catalogue when none are given.
func NewLLMScorer(gen llm.Generator, sections []Section) *LLMScorer {
	if len(sections) == 0 {
		sections = DefaultSections()
	}
	return &LLMScorer{gen: gen, sections: sections}
}

type sectionVerdict struct {
	Score    float64 `json:"score"`
	Feedback string  `json:"feedback"`
}

type verdict struct {
	Sections map[string]sectionVerdict `json:"sections"`
}

// Evaluate scores doc against job
func (s *LLMScorer) Evaluate(ctx context.Context, doc models.ResumeDocument, job models.JobDescription) (models.Evaluation, error) {
	doc.Content = SanitizeUTF8(doc.Content)
	doc.CoverLetter = SanitizeUTF8(doc.CoverLetter)

	prompt := s.buildScoringPrompt(doc, job)

	response, err := s.gen.GenerateContent(ctx, prompt)
	if err != nil {
		return models.Evaluation{}, fmt.Errorf("failed to get LLM response: %w", err)
	}

	v, err := s.parseScores(response)
	if err != nil {
		return models.Evaluation{}, fmt.Errorf("failed to parse scores: %w", err)
	}

	byName := make(map[string]sectionVerdict, len(v.Sections))
	for name, sv := range v.Sections {
		byName[strings.ToLower(strings.TrimSpace(name))] = sv
	}

	scores := make([]models.SectionScore, len(s.sections))
	for i, sec := range s.sections {
		sv, ok := byName[strings.ToLower(sec.Name)]
		if !ok {
			return models.Evaluation{}, fmt.Errorf("llm response missing section %q", sec.Name)
		}
		if math.IsNaN(sv.Score) || math.IsInf(sv.Score, 0) {
			return models.Evaluation{}, fmt.Errorf("llm returned non-finite score for section %q", sec.Name)
		}
		score := round(clamp(sv.Score, 0, 100), 1)
		level := LevelFor(score)
		fb := strings.TrimSpace(sv.Feedback)
		if fb == "" {
			fb = Feedback(sec.Name, level)
		}
		scores[i] = models.SectionScore{
			Name:     sec.Name,
			Score:    score,
			Weight:   sec.Weight,
			Level:    level,
			Feedback: fb,
		}
	}

	return models.Evaluation{
		Profile:  ExtractProfile(doc.Content, doc.Filename),
		Sections: scores,
	}, nil
}

// buildScoringPrompt creates the scoring prompt, truncating long documents
func (s *LLMScorer) buildScoringPrompt(doc models.ResumeDocument, job models.JobDescription) string {
	var sb strings.Builder

	sb.WriteString("You are an expert HR analyst scoring a resume section by section for a job opening.\n\n")

	sb.WriteString("## JOB\n")
	fmt.Fprintf(&sb, "Title: %s\n", job.Title)
	if job.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", truncate(job.Description, 1500))
	}
	sb.WriteString(s.condenseRequirements("Required experience", job.RequiredExperience, maxRequirements))
	sb.WriteString(s.condenseRequirements("Required education", job.RequiredEducation, maxRequirements))
	sb.WriteString(s.condenseRequirements("Required skills", job.RequiredSkills, maxRequirements))
	sb.WriteString(s.condenseRequirements("Nice to have experience", job.NiceToHaveExperience, maxRequirements))
	sb.WriteString(s.condenseRequirements("Nice to have education", job.NiceToHaveEducation, maxRequirements))
	sb.WriteString(s.condenseRequirements("Nice to have skills", job.NiceToHaveSkills, maxRequirements))

	sb.WriteString("\n## RESUME\n")
	if r := []rune(doc.Content); len(r) > maxResumeChars {
		sb.WriteString(string(r[:maxResumeChars]))
		sb.WriteString("\n[CV truncated for length]")
	} else {
		sb.WriteString(doc.Content)
	}
	sb.WriteString("\n\n")

	if doc.CoverLetter != "" {
		sb.WriteString("## COVER LETTER\n")
		if r := []rune(doc.CoverLetter); len(r) > maxCoverLetterChars {
			sb.WriteString(string(r[:maxCoverLetterChars]))
			sb.WriteString("\n[Cover letter truncated for length]")
		} else {
			sb.WriteString(doc.CoverLetter)
		}
		sb.WriteString("\n\n")
	}

	sb.WriteString("## INSTRUCTIONS\n")
	sb.WriteString("Score each section from 0 to 100 for quality and relevance to the job, with one sentence of feedback.\n")
	sb.WriteString("Sections (weight %):\n")
	for _, sec := range s.sections {
		fmt.Fprintf(&sb, "- %s (%g)\n", sec.Name, sec.Weight)
	}
	sb.WriteString("\nRespond with JSON only, in this shape:\n")
	sb.WriteString(`{"sections": {"<section name>": {"score": <0-100>, "feedback": "<one sentence>"}}}` + "\n")

	return sb.String()
}

// condenseRequirements renders at most maxItems requirements on one line
func (s *LLMScorer) condenseRequirements(category string, items []string, maxItems int) string {
	if len(items) == 0 {
		return ""
	}
	shown := items
	if len(items) > maxItems {
		shown = items[:maxItems]
	}
	line := fmt.Sprintf("%s: %s", category, strings.Join(shown, "; "))
	if extra := len(items) - len(shown); extra > 0 {
		line += fmt.Sprintf(" (+%d more)", extra)
	}
	return line + "\n"
}

// parseScores extracts the JSON object from the LLM response
func (s *LLMScorer) parseScores(response string) (verdict, error) {
	startIdx := strings.Index(response, "{")
	endIdx := strings.LastIndex(response, "}")

	if startIdx == -1 || endIdx == -1 || endIdx < startIdx {
		return verdict{}, fmt.Errorf("no JSON found in response")
	}

	var raw map[string]any
	if err := json.Unmarshal([]byte(response[startIdx:endIdx+1]), &raw); err != nil {
		return verdict{}, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}

	// models sometimes quote numbers ("score": "85")
	var v verdict
	cfg := &mapstructure.DecoderConfig{
		Result:           &v,
		TagName:          "json",
		WeaklyTypedInput: true,
	}
	decoder, err := mapstructure.NewDecoder(cfg)
	if err != nil {
		return verdict{}, err
	}
	if err := decoder.Decode(raw); err != nil {
		return verdict{}, fmt.Errorf("failed to decode scores: %w", err)
	}
	if len(v.Sections) == 0 {
		return verdict{}, fmt.Errorf("response has no sections")
	}

	return v, nil
}
