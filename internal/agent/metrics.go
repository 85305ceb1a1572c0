package agent

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Metrics tracks operational counters of one agent.
type Metrics struct {
	BatchesStarted   atomic.Int64
	BatchesCompleted atomic.Int64
	BatchesFailed    atomic.Int64
	ResumesScored    atomic.Int64
	ScoringErrors    atomic.Int64
	GmailFetches     atomic.Int64
	GmailAttachments atomic.Int64
}

var metricKeys = []string{
	"batches_started", "batches_completed", "batches_failed",
	"resumes_scored", "scoring_errors",
	"gmail_fetches", "gmail_attachments",
}

// Snapshot returns the current counter values.
func (m *Metrics) Snapshot() map[string]int64 {
	return map[string]int64{
		"batches_started":   m.BatchesStarted.Load(),
		"batches_completed": m.BatchesCompleted.Load(),
		"batches_failed":    m.BatchesFailed.Load(),
		"resumes_scored":    m.ResumesScored.Load(),
		"scoring_errors":    m.ScoringErrors.Load(),
		"gmail_fetches":     m.GmailFetches.Load(),
		"gmail_attachments": m.GmailAttachments.Load(),
	}
}

// Format renders the counters one "name value" pair per line.
func (m *Metrics) Format() string {
	snap := m.Snapshot()
	var sb strings.Builder
	for _, k := range metricKeys {
		fmt.Fprintf(&sb, "%s %d\n", k, snap[k])
	}
	return sb.String()
}
