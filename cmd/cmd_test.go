package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuoria/ranksense/internal/models"
)

func TestRank(t *testing.T) {
	in := strings.NewReader(`{"candidates":[
		{"id":"a","criteria":[{"name":"Skills","score":90,"weight":60},{"name":"Projects","score":40,"weight":40}]},
		{"id":"b","criteria":[{"name":"Skills","score":50,"weight":60},{"name":"Projects","score":80,"weight":40}]}
	]}`)
	var out bytes.Buffer

	require.NoError(t, rank(in, &out))

	var got struct {
		Results []struct {
			CandidateID string  `json:"candidate_id"`
			Rank        int     `json:"rank"`
			Score       float64 `json:"topsis"`
		} `json:"results"`
	}
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	require.Len(t, got.Results, 2)
	assert.Equal(t, 1, got.Results[0].Rank)
	assert.Equal(t, 2, got.Results[1].Rank)
	assert.GreaterOrEqual(t, got.Results[0].Score, got.Results[1].Score)
}

func TestRankRejectsBadInput(t *testing.T) {
	var out bytes.Buffer
	assert.Error(t, rank(strings.NewReader(`{"candidates":[],"extra":1}`), &out))
	assert.Error(t, rank(strings.NewReader(`{"candidates":[{"id":"a","criteria":[{"name":"Skills","score":150,"weight":100}]}]}`), &out))
	assert.Empty(t, out.String())
}

func TestRankCommandReadsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"candidates":[{"id":"solo","criteria":[{"name":"Skills","score":70,"weight":100}]}]}`), 0o600))

	var out bytes.Buffer
	rankCmd.SetOut(&out)
	t.Cleanup(func() { rankCmd.SetOut(nil) })

	require.NoError(t, rankCmd.RunE(rankCmd, []string{path}))
	assert.Contains(t, out.String(), `"candidate_id": "solo"`)
}

func TestLoadJob(t *testing.T) {
	path := filepath.Join(t.TempDir(), "job.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"title":"Backend Engineer","required_skills":["Go","SQL"],"description":"from file"}`), 0o600))

	job, err := loadJob(analyzeFlags{jobFile: path, jobDesc: "  from flag "})
	require.NoError(t, err)
	assert.Equal(t, "Backend Engineer", job.Title)
	assert.Equal(t, []string{"Go", "SQL"}, job.RequiredSkills)
	assert.Equal(t, "from flag", job.Description)

	job, err = loadJob(analyzeFlags{jobTitle: "Data Analyst"})
	require.NoError(t, err)
	assert.Equal(t, "Data Analyst", job.Title)

	_, err = loadJob(analyzeFlags{jobFile: filepath.Join(t.TempDir(), "missing.json")})
	assert.Error(t, err)
}

func TestPrintLeaderboard(t *testing.T) {
	report := &models.BatchReport{
		BatchID:  "b-1",
		JobTitle: "Backend Engineer",
		Candidates: []models.CandidateResult{
			{Profile: models.Profile{Name: "Jane", Role: "Engineer"}, Rank: 1, Topsis: 0.8123, Total: 81.5, Grade: "A"},
			{Profile: models.Profile{Name: "Bob", Role: "Analyst"}, Rank: 2, Topsis: 0.2, Total: 55, Grade: "C+"},
		},
	}

	var out bytes.Buffer
	require.NoError(t, printLeaderboard(&out, report, 1))

	s := out.String()
	assert.Contains(t, s, "Batch b-1")
	assert.Contains(t, s, "0.8123")
	assert.Contains(t, s, "Jane")
	assert.NotContains(t, s, "Bob")
	assert.NotContains(t, s, "identical")
}

func TestPrintLeaderboardMarksDegenerate(t *testing.T) {
	report := &models.BatchReport{
		Candidates: []models.CandidateResult{
			{Profile: models.Profile{Name: "A"}, Rank: 1, Topsis: 0.5, Degenerate: true},
			{Profile: models.Profile{Name: "B"}, Rank: 2, Topsis: 0.5, Degenerate: true},
		},
	}

	var out bytes.Buffer
	require.NoError(t, printLeaderboard(&out, report, 0))
	assert.Contains(t, out.String(), "0.5000*")
	assert.Equal(t, 1, strings.Count(out.String(), "identical"))
}

func TestPrintBatches(t *testing.T) {
	var out bytes.Buffer
	err := printBatches(&out, []models.BatchSummary{
		{ID: "b-2", JobTitle: "Designer", Status: models.StatusDone, CandidateCount: 3, CreatedAt: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "b-2")
	assert.Contains(t, out.String(), "done")
}
