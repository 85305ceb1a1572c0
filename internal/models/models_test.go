package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func TestCandidateResultFlattensProfile(t *testing.T) {
	c := CandidateResult{
		Profile: Profile{
			Name:        "Jane Doe",
			Email:       "jane@example.com",
			Avatar:      "JD",
			AvatarColor: "#3b82f6",
		},
		CandidateID: "jane-doe",
		Total:       82.5,
		Topsis:      0.7312,
		Rank:        1,
		Grade:       "A",
	}

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("Failed to marshal CandidateResult: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Failed to unmarshal CandidateResult: %v", err)
	}

	for _, key := range []string{"name", "email", "avatar", "avatar_color", "topsis", "rank", "grade"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("Expected top-level key %q in %s", key, data)
		}
	}
	if _, ok := raw["profile"]; ok {
		t.Errorf("Profile should be flattened, got nested object in %s", data)
	}
	if _, ok := raw["degenerate"]; ok {
		t.Errorf("degenerate should be omitted when false")
	}
}

func TestBatchReportTop(t *testing.T) {
	report := BatchReport{Candidates: []CandidateResult{
		{CandidateID: "a", Rank: 1},
		{CandidateID: "b", Rank: 2},
		{CandidateID: "c", Rank: 3},
	}}

	tests := []struct {
		n    int
		want int
	}{
		{0, 3},
		{-1, 3},
		{2, 2},
		{3, 3},
		{10, 3},
	}

	for _, tt := range tests {
		if got := len(report.Top(tt.n)); got != tt.want {
			t.Errorf("Top(%d) returned %d candidates, want %d", tt.n, got, tt.want)
		}
	}
}

func TestSectionScoreSerialization(t *testing.T) {
	s := SectionScore{Name: "Work Experience", Score: 88, Weight: 30, Level: LevelExcellent, Feedback: "Strong"}

	data, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("Failed to marshal SectionScore: %v", err)
	}
	if !strings.Contains(string(data), `"level":"excellent"`) {
		t.Errorf("Expected level to serialise as a string, got %s", data)
	}
}
