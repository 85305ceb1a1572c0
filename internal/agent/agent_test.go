package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/fmuoria/ranksense/internal/ingestion"
	"github.com/fmuoria/ranksense/internal/models"
	"github.com/fmuoria/ranksense/internal/scoring"
	"github.com/fmuoria/ranksense/internal/store"
)

// fixedScorer gives every section of a resume the score listed for its name.
type fixedScorer struct {
	scores map[string]float64
	fail   map[string]bool
}

func (f *fixedScorer) Evaluate(ctx context.Context, doc models.ResumeDocument, _ models.JobDescription) (models.Evaluation, error) {
	if err := ctx.Err(); err != nil {
		return models.Evaluation{}, err
	}
	if f.fail[doc.Name] {
		return models.Evaluation{}, fmt.Errorf("scoring %s failed", doc.Name)
	}
	score := f.scores[doc.Name]
	sections := []models.SectionScore{
		{Name: scoring.SectionSkills, Score: score, Weight: 60, Level: scoring.LevelFor(score)},
		{Name: scoring.SectionEducation, Score: score, Weight: 40, Level: scoring.LevelFor(score)},
	}
	return models.Evaluation{
		Profile:  models.Profile{Name: doc.Name, Avatar: scoring.Initials(doc.Name)},
		Sections: sections,
	}, nil
}

func newTestAgent(t *testing.T, scorer scoring.Scorer, opts Options) (*Agent, store.Repository) {
	t.Helper()
	repo, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "agent.db"), nil)
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	files := ingestion.NewFileHandler(filepath.Join(t.TempDir(), "uploads"), nil)
	return New(files, scorer, repo, opts), repo
}

func docs(names ...string) []models.ResumeDocument {
	out := make([]models.ResumeDocument, len(names))
	for i, n := range names {
		out[i] = models.ResumeDocument{Name: n, Content: "resume of " + n, Path: "/uploads/" + n + "_CV.txt"}
	}
	return out
}

func TestAnalyze_RanksAndPersists(t *testing.T) {
	scorer := &fixedScorer{scores: map[string]float64{"Low": 40, "High": 80}}
	a, repo := newTestAgent(t, scorer, Options{Workers: 2})

	report, err := a.Analyze(context.Background(), models.JobDescription{Title: "Engineer"}, docs("Low", "High"))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}

	if len(report.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(report.Candidates))
	}
	first, second := report.Candidates[0], report.Candidates[1]
	if first.Name != "High" || first.Rank != 1 || first.Topsis != 1 {
		t.Errorf("first = %s rank %d topsis %v, want High rank 1 topsis 1", first.Name, first.Rank, first.Topsis)
	}
	if second.Name != "Low" || second.Rank != 2 || second.Topsis != 0 {
		t.Errorf("second = %s rank %d topsis %v, want Low rank 2 topsis 0", second.Name, second.Rank, second.Topsis)
	}
	if first.Total != 80 || first.Grade != "A" {
		t.Errorf("High total/grade = %v/%s, want 80/A", first.Total, first.Grade)
	}
	if first.AvatarColor != scoring.AvatarColor(1) {
		t.Errorf("avatar colour follows input position, got %s", first.AvatarColor)
	}
	if first.CVPath != "/uploads/High_CV.txt" {
		t.Errorf("CVPath = %q", first.CVPath)
	}
	if len(first.Insights) == 0 {
		t.Error("expected insights for ranked candidates")
	}

	stored, err := repo.GetBatch(context.Background(), report.BatchID)
	if err != nil {
		t.Fatalf("GetBatch() error = %v", err)
	}
	if stored.Status != models.StatusDone || stored.JobTitle != "Engineer" {
		t.Errorf("stored batch = %s/%s", stored.Status, stored.JobTitle)
	}
	if len(stored.Candidates) != 2 || stored.Candidates[0].Name != "High" {
		t.Errorf("stored candidates not in rank order: %+v", stored.Candidates)
	}

	snap := a.Metrics().Snapshot()
	if snap["batches_completed"] != 1 || snap["resumes_scored"] != 2 {
		t.Errorf("metrics = %v", snap)
	}
}

func TestAnalyze_IdenticalCandidatesKeepInputOrder(t *testing.T) {
	scorer := &fixedScorer{scores: map[string]float64{"A": 70, "B": 70, "C": 70}}
	a, _ := newTestAgent(t, scorer, Options{Workers: 3})

	report, err := a.Analyze(context.Background(), models.JobDescription{}, docs("A", "B", "C"))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	for i, want := range []string{"A", "B", "C"} {
		c := report.Candidates[i]
		if c.Name != want || c.Rank != i+1 || c.Topsis != 0.5 || !c.Degenerate {
			t.Errorf("candidate %d = %s rank %d topsis %v degenerate %v", i, c.Name, c.Rank, c.Topsis, c.Degenerate)
		}
	}
}

func TestAnalyze_SkipsFailedResumes(t *testing.T) {
	scorer := &fixedScorer{
		scores: map[string]float64{"Good": 90},
		fail:   map[string]bool{"Broken": true},
	}
	a, _ := newTestAgent(t, scorer, Options{})

	report, err := a.Analyze(context.Background(), models.JobDescription{}, docs("Broken", "Good"))
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(report.Candidates) != 1 || report.Candidates[0].Name != "Good" {
		t.Fatalf("unexpected candidates: %+v", report.Candidates)
	}
	if got := a.Metrics().ScoringErrors.Load(); got != 1 {
		t.Errorf("scoring_errors = %d, want 1", got)
	}
}

func TestAnalyze_AllFailedMarksBatchFailed(t *testing.T) {
	scorer := &fixedScorer{fail: map[string]bool{"X": true}}
	a, repo := newTestAgent(t, scorer, Options{})

	_, err := a.Analyze(context.Background(), models.JobDescription{Title: "t"}, docs("X"))
	if !errors.Is(err, ErrNothingScored) {
		t.Fatalf("Analyze() error = %v, want ErrNothingScored", err)
	}

	list, err := repo.ListBatches(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListBatches() error = %v", err)
	}
	if len(list) != 1 || list[0].Status != models.StatusFailed {
		t.Errorf("batch status = %+v, want failed", list)
	}
	if _, err := repo.LatestBatch(context.Background()); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("LatestBatch() error = %v, want ErrNotFound", err)
	}
}

func TestAnalyze_InputLimits(t *testing.T) {
	a, _ := newTestAgent(t, &fixedScorer{}, Options{})

	if _, err := a.Analyze(context.Background(), models.JobDescription{}, nil); !errors.Is(err, ErrNoDocuments) {
		t.Errorf("empty input error = %v, want ErrNoDocuments", err)
	}

	names := make([]string, MaxBatchSize+1)
	for i := range names {
		names[i] = fmt.Sprintf("c%d", i)
	}
	if _, err := a.Analyze(context.Background(), models.JobDescription{}, docs(names...)); !errors.Is(err, ErrTooManyDocuments) {
		t.Errorf("oversized input error = %v, want ErrTooManyDocuments", err)
	}
}

func TestAnalyze_CancelledContext(t *testing.T) {
	a, _ := newTestAgent(t, &fixedScorer{scores: map[string]float64{"A": 50}}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := a.Analyze(ctx, models.JobDescription{}, docs("A")); err == nil {
		t.Fatal("Analyze() with cancelled context should fail")
	}
}

func TestAnalyze_ReportsProgress(t *testing.T) {
	a, _ := newTestAgent(t, &fixedScorer{scores: map[string]float64{"A": 50, "B": 60}}, Options{})

	var (
		mu       sync.Mutex
		messages []string
		last     int
	)
	a.SetProgressCallback(func(current, total int, message string) {
		mu.Lock()
		defer mu.Unlock()
		messages = append(messages, message)
		last = current
	})

	if _, err := a.Analyze(context.Background(), models.JobDescription{}, docs("A", "B")); err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if last != 100 {
		t.Errorf("final progress = %d, want 100", last)
	}
	if !strings.Contains(strings.Join(messages, "\n"), "Ranking candidates") {
		t.Errorf("progress messages = %v", messages)
	}
}

func TestIngestFromUpload(t *testing.T) {
	a, _ := newTestAgent(t, scoring.NewHeuristicScorer(nil), Options{})
	dir := a.Files().Dir()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	write := func(name, content string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("Jane_CV.txt", "Jane Wanjiru\njane@example.com\nEducation: University of Nairobi\nSkills: Go, Python, SQL\nWork experience as developer")
	write("Jane_CoverLetter.txt", "I would love to join your team as an engineer.")
	write("Tom_CV.txt", "Tom Otieno\nSummary of experience\nProjects: built a compiler")

	report, err := a.IngestFromUpload(context.Background(), models.JobDescription{Title: "Dev"})
	if err != nil {
		t.Fatalf("IngestFromUpload() error = %v", err)
	}
	if len(report.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(report.Candidates))
	}
	for _, c := range report.Candidates {
		if len(c.Sections) != len(scoring.DefaultSections()) {
			t.Errorf("%s has %d sections", c.Name, len(c.Sections))
		}
		if c.Name == "Jane Wanjiru" && c.CLPath == "" {
			t.Error("cover letter path not carried to the result")
		}
	}
}

type fakeGmail struct {
	dir   string
	files map[string]string
	err   error
}

func (f *fakeGmail) FetchAttachments(_ context.Context, _ string, progress ingestion.ProgressFunc) (int, error) {
	if f.err != nil {
		return 0, f.err
	}
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return 0, err
	}
	for name, content := range f.files {
		if err := os.WriteFile(filepath.Join(f.dir, name), []byte(content), 0o644); err != nil {
			return 0, err
		}
	}
	progress(1, 1, "done")
	return len(f.files), nil
}

func TestIngestFromGmail(t *testing.T) {
	a, _ := newTestAgent(t, &fixedScorer{scores: map[string]float64{"Ann": 70}}, Options{})

	if _, err := a.IngestFromGmail(context.Background(), "Application", models.JobDescription{}); !errors.Is(err, ErrGmailDisabled) {
		t.Fatalf("IngestFromGmail() without factory error = %v", err)
	}

	gm := &fakeGmail{files: map[string]string{"Ann_CV.txt": "Ann resume text with enough content"}}
	a.gmail = func(_ context.Context, dir string) (AttachmentSource, error) {
		gm.dir = dir
		return gm, nil
	}

	// an earlier /analyze upload shares the uploads root
	earlier := filepath.Join(a.Files().Dir(), "batch-earlier")
	if err := os.MkdirAll(earlier, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(earlier, "Bob_CV.txt"), []byte("Bob resume"), 0o644); err != nil {
		t.Fatal(err)
	}

	report, err := a.IngestFromGmail(context.Background(), "Application", models.JobDescription{})
	if err != nil {
		t.Fatalf("IngestFromGmail() error = %v", err)
	}
	if len(report.Candidates) != 1 || report.Candidates[0].Name != "Ann" {
		t.Errorf("candidates = %+v", report.Candidates)
	}
	if got := a.Metrics().GmailAttachments.Load(); got != 1 {
		t.Errorf("gmail_attachments = %d, want 1", got)
	}
	if _, err := os.Stat(filepath.Join(earlier, "Bob_CV.txt")); err != nil {
		t.Errorf("earlier upload removed by gmail ingest: %v", err)
	}
	if filepath.Dir(gm.dir) != a.Files().Dir() || !strings.HasPrefix(filepath.Base(gm.dir), "gmail-") {
		t.Errorf("gmail download dir = %s", gm.dir)
	}
	if _, err := os.Stat(filepath.Join(gm.dir, "Ann_CV.txt")); err != nil {
		t.Errorf("downloaded attachment missing: %v", err)
	}
	firstRun := gm.dir

	gm.err = ingestion.ErrNoMessages
	if _, err := a.IngestFromGmail(context.Background(), "x", models.JobDescription{}); !errors.Is(err, ingestion.ErrNoMessages) {
		t.Errorf("IngestFromGmail() error = %v, want ErrNoMessages", err)
	}
	if gm.dir == firstRun {
		t.Error("second gmail run reused the first run's directory")
	}
	if _, err := os.Stat(filepath.Join(firstRun, "Ann_CV.txt")); err != nil {
		t.Errorf("first gmail run removed by second: %v", err)
	}
	if _, err := os.Stat(gm.dir); !os.IsNotExist(err) {
		t.Errorf("failed run dir left behind: %v", err)
	}
}

func TestMetricsFormat(t *testing.T) {
	var m Metrics
	m.BatchesStarted.Add(2)
	out := m.Format()
	if !strings.Contains(out, "batches_started 2\n") || !strings.Contains(out, "gmail_attachments 0\n") {
		t.Errorf("Format() = %q", out)
	}
}
