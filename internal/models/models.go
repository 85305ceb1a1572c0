package models

import "time"

// JobDescription represents the role candidates are ranked for
type JobDescription struct {
	Title                string   `json:"title"`
	RequiredExperience   []string `json:"required_experience,omitempty"`
	RequiredEducation    []string `json:"required_education,omitempty"`
	RequiredSkills       []string `json:"required_skills,omitempty"`
	NiceToHaveExperience []string `json:"nice_to_have_experience,omitempty"`
	NiceToHaveEducation  []string `json:"nice_to_have_education,omitempty"`
	NiceToHaveSkills     []string `json:"nice_to_have_skills,omitempty"`
	Description          string   `json:"description"`
}

// ResumeDocument holds the extracted resume text and an optional cover letter
type ResumeDocument struct {
	Name            string `json:"name"`
	Filename        string `json:"filename"`
	Path            string `json:"path"`
	Content         string `json:"content"`
	CoverLetter     string `json:"cover_letter,omitempty"`
	CoverLetterPath string `json:"cover_letter_path,omitempty"`
}

// Level buckets a section score
type Level string

const (
	LevelExcellent Level = "excellent"
	LevelGood      Level = "good"
	LevelModerate  Level = "moderate"
	LevelPoor      Level = "poor"
)

// SectionScore is the score of one resume section (a TOPSIS criterion)
type SectionScore struct {
	Name     string  `json:"name"`
	Score    float64 `json:"score"`  // 0-100
	Weight   float64 `json:"weight"` // percentage
	Level    Level   `json:"level"`
	Feedback string  `json:"feedback"`
}

// InsightType classifies an insight
type InsightType string

const (
	InsightSuccess InsightType = "success"
	InsightWarning InsightType = "warning"
	InsightError   InsightType = "error"
)

// Insight is a short, human-readable observation about a candidate
type Insight struct {
	Type InsightType `json:"type"`
	Text string      `json:"text"`
}

// Profile is the contact and background information extracted from a resume
type Profile struct {
	Name        string   `json:"name"`
	Role        string   `json:"role"`
	Email       string   `json:"email"`
	Phone       string   `json:"phone"`
	Education   string   `json:"education"`
	Experience  string   `json:"experience"`
	Location    string   `json:"location"`
	Keywords    []string `json:"keywords"`
	Avatar      string   `json:"avatar"`
	AvatarColor string   `json:"avatar_color"`
}

// Evaluation is a scorer's output for one resume
type Evaluation struct {
	Profile  Profile        `json:"profile"`
	Sections []SectionScore `json:"sections"`
}

// CandidateResult represents the ranked outcome for one candidate
type CandidateResult struct {
	Profile
	ID          int64          `json:"id,omitempty"`
	CandidateID string         `json:"candidate_id"`
	Total       float64        `json:"total"`
	Topsis      float64        `json:"topsis"`
	Rank        int            `json:"rank"`
	Grade       string         `json:"grade"`
	GradeColor  string         `json:"grade_color"`
	Degenerate  bool           `json:"degenerate,omitempty"`
	Sections    []SectionScore `json:"sections"`
	Insights    []Insight      `json:"insights"`
	CVPath      string         `json:"cv_path,omitempty"`
	CLPath      string         `json:"cl_path,omitempty"`
}

// Batch status values
const (
	StatusProcessing = "processing"
	StatusDone       = "done"
	StatusFailed     = "failed"
)

// BatchSummary is a batch listing entry
type BatchSummary struct {
	ID             string    `json:"batch_id"`
	JobTitle       string    `json:"job_title"`
	Status         string    `json:"status"`
	CreatedAt      time.Time `json:"created_at"`
	CandidateCount int       `json:"candidate_count"`
}

// BatchReport represents a complete analysed batch with ranked candidates
type BatchReport struct {
	BatchID    string            `json:"batch_id"`
	JobTitle   string            `json:"job_title"`
	Status     string            `json:"status"`
	CreatedAt  time.Time         `json:"created_at"`
	Candidates []CandidateResult `json:"candidates"`
}

// IngestRequest represents the request payload for Gmail ingestion
type IngestRequest struct {
	GmailSubject   string `json:"gmail_subject"`
	JobTitle       string `json:"job_title"`
	JobDescription string `json:"job_description"`
}

// Top returns the first n candidates of the report (all when n <= 0).
func (r *BatchReport) Top(n int) []CandidateResult {
	if n <= 0 || n >= len(r.Candidates) {
		return r.Candidates
	}
	return r.Candidates[:n]
}
