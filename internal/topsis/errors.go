package topsis

import (
	"fmt"
	"strings"
)

// Constraint names the rule a batch violated.
type Constraint string

const (
	ConstraintEmptyBatch         Constraint = "batch must contain at least one candidate"
	ConstraintCandidateID        Constraint = "candidate id must be non-empty"
	ConstraintDuplicateCandidate Constraint = "candidate id must be unique"
	ConstraintNoCriteria         Constraint = "candidate must declare at least one criterion"
	ConstraintCriterionName      Constraint = "criterion name must be non-empty"
	ConstraintDuplicateCriterion Constraint = "criterion declared more than once"
	ConstraintMissingCriterion   Constraint = "missing criterion"
	ConstraintExtraCriterion     Constraint = "undeclared criterion"
	ConstraintScoreRange         Constraint = "score must be within [0,100]"
	ConstraintWeightValue        Constraint = "weight must be a finite non-negative number"
	ConstraintWeightSum          Constraint = "weights must sum to 100"
	ConstraintWeightMismatch     Constraint = "weight must match across candidates"
	ConstraintPolarityMismatch   Constraint = "polarity must match across candidates"
	ConstraintPolarity           Constraint = "unknown polarity"
)

// ValidationError reports a malformed batch. It is returned before any
// ranking math runs.
type ValidationError struct {
	CandidateID string
	Criterion   string
	Constraint  Constraint
	Detail      string
}

func (e *ValidationError) Error() string {
	var sb strings.Builder
	sb.WriteString("invalid batch")
	if e.CandidateID != "" {
		fmt.Fprintf(&sb, ": candidate %q", e.CandidateID)
	}
	if e.Criterion != "" {
		fmt.Fprintf(&sb, ": criterion %q", e.Criterion)
	}
	fmt.Fprintf(&sb, ": %s", e.Constraint)
	if e.Detail != "" {
		fmt.Fprintf(&sb, " (%s)", e.Detail)
	}
	return sb.String()
}

func invalid(candidateID, criterion string, c Constraint, detail string, args ...any) *ValidationError {
	if len(args) > 0 {
		detail = fmt.Sprintf(detail, args...)
	}
	return &ValidationError{
		CandidateID: candidateID,
		Criterion:   criterion,
		Constraint:  c,
		Detail:      detail,
	}
}
