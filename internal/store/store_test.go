package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmuoria/ranksense/internal/models"
)

func openTestStore(t *testing.T) *SQLite {
	t.Helper()
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleCandidates() []models.CandidateResult {
	return []models.CandidateResult{
		{
			Profile: models.Profile{
				Name:     "Alice Mwangi",
				Email:    "alice@example.com",
				Location: "Nairobi",
				Keywords: []string{"Go", "SQL"},
				Avatar:   "AM",
			},
			CandidateID: "alice",
			Total:       82.5,
			Topsis:      0.8123,
			Rank:        1,
			Grade:       "A",
			GradeColor:  "#8b5cf6",
			Sections: []models.SectionScore{
				{Name: "Education", Score: 90, Weight: 40, Level: models.LevelExcellent, Feedback: "Strong"},
				{Name: "Skills", Score: 75, Weight: 60, Level: models.LevelGood, Feedback: "Solid"},
			},
			Insights: []models.Insight{
				{Type: models.InsightSuccess, Text: "Strong Education section, excellent level"},
			},
			CVPath: "/uploads/Alice_CV.pdf",
		},
		{
			Profile:     models.Profile{Name: "Bob"},
			CandidateID: "bob",
			Total:       40,
			Topsis:      0.5,
			Rank:        2,
			Degenerate:  true,
			Sections: []models.SectionScore{
				{Name: "Education", Score: 40, Weight: 40, Level: models.LevelPoor},
				{Name: "Skills", Score: 40, Weight: 60, Level: models.LevelPoor},
			},
		},
	}
}

func TestSQLite_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	b, err := s.CreateBatch(ctx, "Backend Engineer", "Go services")
	require.NoError(t, err)
	assert.NotEmpty(t, b.ID)
	assert.Equal(t, models.StatusProcessing, b.Status)

	cands := sampleCandidates()
	require.NoError(t, s.SaveCandidates(ctx, b.ID, cands))
	assert.NotZero(t, cands[0].ID)
	assert.NotEqual(t, cands[0].ID, cands[1].ID)

	require.NoError(t, s.SetBatchStatus(ctx, b.ID, models.StatusDone))

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "Backend Engineer", got.JobTitle)
	assert.Equal(t, models.StatusDone, got.Status)
	assert.WithinDuration(t, b.CreatedAt, got.CreatedAt, time.Millisecond)
	require.Len(t, got.Candidates, 2)

	alice := got.Candidates[0]
	assert.Equal(t, cands[0].ID, alice.ID)
	assert.Equal(t, "alice", alice.CandidateID)
	assert.Equal(t, "Alice Mwangi", alice.Name)
	assert.Equal(t, []string{"Go", "SQL"}, alice.Keywords)
	assert.InDelta(t, 0.8123, alice.Topsis, 1e-12)
	assert.Equal(t, cands[0].Sections, alice.Sections)
	assert.Equal(t, cands[0].Insights, alice.Insights)
	assert.Equal(t, "/uploads/Alice_CV.pdf", alice.CVPath)

	bob := got.Candidates[1]
	assert.Equal(t, 2, bob.Rank)
	assert.True(t, bob.Degenerate)
	assert.Equal(t, []string{}, bob.Keywords)
	assert.Equal(t, []models.Insight{}, bob.Insights)
}

func TestSQLite_ListAndLatest(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.LatestBatch(ctx)
	require.ErrorIs(t, err, ErrNotFound)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, err := s.CreateBatch(ctx, "first", "")
	require.NoError(t, err)
	require.NoError(t, s.SaveCandidates(ctx, first.ID, sampleCandidates()))
	require.NoError(t, s.SetBatchStatus(ctx, first.ID, models.StatusDone))

	second, err := s.CreateBatch(ctx, "second", "")
	require.NoError(t, err)
	require.NoError(t, s.SetBatchStatus(ctx, second.ID, models.StatusFailed))

	list, err := s.ListBatches(ctx, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, 0, list[0].CandidateCount)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, 2, list[1].CandidateCount)

	limited, err := s.ListBatches(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	latest, err := s.LatestBatch(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, latest.BatchID, "failed batches are not the latest result")
}

func TestSQLite_NotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.GetBatch(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.SetBatchStatus(ctx, "missing", models.StatusDone), ErrNotFound)
	assert.ErrorIs(t, s.SaveCandidates(ctx, "missing", sampleCandidates()), ErrNotFound)
}

func TestSQLite_SaveCandidatesRollback(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	_, err := s.db.ExecContext(ctx, `
		CREATE TRIGGER reject_bob BEFORE INSERT ON candidates
		WHEN NEW.candidate_id = 'bob'
		BEGIN SELECT RAISE(ABORT, 'rejected'); END`)
	require.NoError(t, err)

	b, err := s.CreateBatch(ctx, "x", "")
	require.NoError(t, err)

	cands := sampleCandidates()
	require.Error(t, s.SaveCandidates(ctx, b.ID, cands))
	assert.Zero(t, cands[0].ID, "id of a rolled back row")
	assert.Zero(t, cands[1].ID)

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Candidates)
}

func TestSQLite_RejectsUnknownStatus(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	b, err := s.CreateBatch(ctx, "x", "")
	require.NoError(t, err)
	assert.Error(t, s.SetBatchStatus(ctx, b.ID, "archived"))
}

func TestSQLite_EmptyBatch(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	b, err := s.CreateBatch(ctx, "empty", "")
	require.NoError(t, err)

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.Candidates)
	assert.Empty(t, got.Candidates)
}

func TestSQLite_ReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "rs.db")

	s, err := OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	b, err := s.CreateBatch(ctx, "persisted", "")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = OpenSQLite(ctx, path, nil)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.GetBatch(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "persisted", got.JobTitle)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	repo, err := Open(ctx, Config{Driver: "SQLite", Path: filepath.Join(t.TempDir(), "x.db")}, nil)
	require.NoError(t, err)
	require.NoError(t, repo.Close())

	_, err = Open(ctx, Config{Driver: "mongo"}, nil)
	assert.Error(t, err)

	_, err = Open(ctx, Config{Driver: DriverPostgres}, nil)
	assert.Error(t, err, "postgres requires a dsn")
}
