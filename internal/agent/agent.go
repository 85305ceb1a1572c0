// Package agent runs an analysis end to end: load resumes, score their
// sections, rank them with TOPSIS and persist the batch.
package agent

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/fmuoria/ranksense/internal/ingestion"
	"github.com/fmuoria/ranksense/internal/logger"
	"github.com/fmuoria/ranksense/internal/models"
	"github.com/fmuoria/ranksense/internal/scoring"
	"github.com/fmuoria/ranksense/internal/store"
	"github.com/fmuoria/ranksense/internal/topsis"
)

// MaxBatchSize is the largest number of resumes analysed in one batch.
const MaxBatchSize = 25

const defaultWorkers = 4

var (
	ErrNoDocuments      = errors.New("no resumes to analyse")
	ErrTooManyDocuments = fmt.Errorf("maximum %d files per batch", MaxBatchSize)
	ErrNothingScored    = errors.New("no resume could be scored")
	ErrGmailDisabled    = errors.New("gmail ingestion is not configured")
)

// ProgressCallback is called to report progress during processing
type ProgressCallback func(current, total int, message string)

// AttachmentSource downloads applicant files into its download directory.
type AttachmentSource interface {
	FetchAttachments(ctx context.Context, subject string, progress ingestion.ProgressFunc) (int, error)
}

// GmailFactory builds an AttachmentSource that downloads into dir.
type GmailFactory func(ctx context.Context, dir string) (AttachmentSource, error)

// Options configures an Agent. Zero values pick defaults.
type Options struct {
	Workers int
	Gmail   GmailFactory
	Logger  *zap.Logger
}

// Agent orchestrates resume analysis
type Agent struct {
	files   *ingestion.FileHandler
	scorer  scoring.Scorer
	repo    store.Repository
	gmail   GmailFactory
	workers int
	logger  *zap.Logger
	metrics Metrics

	mu         sync.RWMutex
	progressCb ProgressCallback
}

// New creates an agent that scores with scorer and persists into repo.
func New(files *ingestion.FileHandler, scorer scoring.Scorer, repo store.Repository, opts Options) *Agent {
	workers := opts.Workers
	if workers <= 0 {
		workers = defaultWorkers
	}
	return &Agent{
		files:   files,
		scorer:  scorer,
		repo:    repo,
		gmail:   opts.Gmail,
		workers: workers,
		logger:  logger.OrNop(opts.Logger),
	}
}

// SetProgressCallback sets the progress callback function
func (a *Agent) SetProgressCallback(cb ProgressCallback) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.progressCb = cb
}

func (a *Agent) reportProgress(current, total int, message string) {
	a.mu.RLock()
	cb := a.progressCb
	a.mu.RUnlock()

	if cb != nil {
		cb(current, total, message)
	}
}

// Metrics returns the agent's counters.
func (a *Agent) Metrics() *Metrics {
	return &a.metrics
}

// Files returns the upload directory handler.
func (a *Agent) Files() *ingestion.FileHandler {
	return a.files
}

// IngestFromUpload analyses every document in the uploads directory.
func (a *Agent) IngestFromUpload(ctx context.Context, job models.JobDescription) (*models.BatchReport, error) {
	a.reportProgress(0, 100, "Loading documents...")

	documents, err := a.files.LoadDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	return a.Analyze(ctx, job, documents)
}

// AnalyzeFiles extracts text from the given paths and analyses them.
func (a *Agent) AnalyzeFiles(ctx context.Context, job models.JobDescription, paths []string) (*models.BatchReport, error) {
	if len(paths) > MaxBatchSize {
		return nil, ErrTooManyDocuments
	}
	documents, err := a.files.LoadFiles(ctx, paths)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	return a.Analyze(ctx, job, documents)
}

// IngestFromGmail downloads the attachments of messages matching subject
// into a fresh gmail-<uuid> directory under the uploads root and analyses
// them. Files from earlier runs are left in place.
func (a *Agent) IngestFromGmail(ctx context.Context, subject string, job models.JobDescription) (*models.BatchReport, error) {
	if a.gmail == nil {
		return nil, ErrGmailDisabled
	}

	dir := filepath.Join(a.files.Dir(), "gmail-"+uuid.NewString())
	run := ingestion.NewFileHandler(dir, a.logger)

	a.reportProgress(0, 100, "Initializing Gmail handler...")
	src, err := a.gmail(ctx, dir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gmail handler: %w", err)
	}

	a.reportProgress(10, 100, "Fetching emails from Gmail...")
	a.metrics.GmailFetches.Add(1)
	n, err := src.FetchAttachments(ctx, subject, func(done, total int, message string) {
		if total > 0 {
			a.reportProgress(10+30*done/total, 100, message)
		}
	})
	if err != nil {
		a.discard(run)
		return nil, fmt.Errorf("failed to fetch Gmail attachments: %w", err)
	}
	a.metrics.GmailAttachments.Add(int64(n))
	a.logger.Info("gmail attachments downloaded",
		zap.Int("count", n), zap.String("subject", subject), zap.String("dir", dir))

	documents, err := run.LoadDocuments(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load documents: %w", err)
	}
	if len(documents) == 0 {
		a.discard(run)
	}
	return a.Analyze(ctx, job, documents)
}

// discard removes a Gmail run directory that no batch will reference.
func (a *Agent) discard(run *ingestion.FileHandler) {
	if err := run.Discard(); err != nil {
		a.logger.Warn("failed to remove gmail download dir", zap.String("dir", run.Dir()), zap.Error(err))
	}
}

type evaluated struct {
	doc  models.ResumeDocument
	eval models.Evaluation
}

// Analyze scores, ranks and stores one batch of resumes. Resumes that fail to
// score are logged and left out; the batch fails only when none survive.
func (a *Agent) Analyze(ctx context.Context, job models.JobDescription, docs []models.ResumeDocument) (*models.BatchReport, error) {
	if len(docs) == 0 {
		return nil, ErrNoDocuments
	}
	if len(docs) > MaxBatchSize {
		return nil, ErrTooManyDocuments
	}

	batch, err := a.repo.CreateBatch(ctx, job.Title, job.Description)
	if err != nil {
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}
	a.metrics.BatchesStarted.Add(1)
	log := a.logger.With(zap.String(logger.FieldBatchID, batch.ID))
	log.Info("analysing batch", zap.Int("resumes", len(docs)))

	report, err := a.analyze(ctx, log, batch, job, docs)
	if err != nil {
		a.metrics.BatchesFailed.Add(1)
		// the request context may already be gone
		if serr := a.repo.SetBatchStatus(context.WithoutCancel(ctx), batch.ID, models.StatusFailed); serr != nil {
			log.Warn("failed to mark batch failed", zap.Error(serr))
		}
		return nil, err
	}

	a.metrics.BatchesCompleted.Add(1)
	a.reportProgress(100, 100, "Processing complete!")
	return report, nil
}

func (a *Agent) analyze(ctx context.Context, log *zap.Logger, batch models.BatchSummary, job models.JobDescription, docs []models.ResumeDocument) (*models.BatchReport, error) {
	scored, err := a.scoreAll(ctx, log, job, docs)
	if err != nil {
		return nil, err
	}
	if len(scored) == 0 {
		return nil, ErrNothingScored
	}

	a.reportProgress(90, 100, "Ranking candidates...")
	candidates, err := rankCandidates(scored)
	if err != nil {
		return nil, err
	}

	if err := a.repo.SaveCandidates(ctx, batch.ID, candidates); err != nil {
		return nil, fmt.Errorf("failed to save candidates: %w", err)
	}
	if err := a.repo.SetBatchStatus(ctx, batch.ID, models.StatusDone); err != nil {
		return nil, fmt.Errorf("failed to complete batch: %w", err)
	}

	log.Info("batch ranked", zap.Int("candidates", len(candidates)))
	return &models.BatchReport{
		BatchID:    batch.ID,
		JobTitle:   batch.JobTitle,
		Status:     models.StatusDone,
		CreatedAt:  batch.CreatedAt,
		Candidates: candidates,
	}, nil
}

// scoreAll evaluates docs with a bounded worker pool and returns the
// successful evaluations in input order.
func (a *Agent) scoreAll(ctx context.Context, log *zap.Logger, job models.JobDescription, docs []models.ResumeDocument) ([]evaluated, error) {
	results := make([]*evaluated, len(docs))
	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.workers)
	for i, doc := range docs {
		g.Go(func() error {
			eval, err := a.scorer.Evaluate(gctx, doc, job)
			if err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				a.metrics.ScoringErrors.Add(1)
				log.Warn("failed to score resume", zap.String(logger.FieldCandidate, doc.Name), zap.Error(err))
			} else {
				a.metrics.ResumesScored.Add(1)
				results[i] = &evaluated{doc: doc, eval: eval}
			}

			mu.Lock()
			done++
			n := done
			mu.Unlock()
			a.reportProgress(10+80*n/len(docs), 100, fmt.Sprintf("Evaluated %s (%d/%d)", doc.Name, n, len(docs)))
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]evaluated, 0, len(docs))
	for _, r := range results {
		if r != nil {
			out = append(out, *r)
		}
	}
	return out, nil
}

// rankCandidates runs TOPSIS over the evaluations and returns candidates in
// rank order.
func rankCandidates(scored []evaluated) ([]models.CandidateResult, error) {
	batch := topsis.Batch{Candidates: make([]topsis.Candidate, len(scored))}
	for i, s := range scored {
		batch.Candidates[i] = topsis.Candidate{
			ID:       candidateID(i, s.doc),
			Name:     s.eval.Profile.Name,
			Role:     s.eval.Profile.Role,
			Criteria: scoring.Criteria(s.eval.Sections),
		}
	}

	ranked, err := topsis.Rank(batch)
	if err != nil {
		return nil, fmt.Errorf("failed to rank candidates: %w", err)
	}

	out := make([]models.CandidateResult, len(ranked))
	for i, r := range ranked {
		s := scored[r.InputIndex]
		profile := s.eval.Profile
		profile.AvatarColor = scoring.AvatarColor(r.InputIndex)
		if profile.Keywords == nil {
			profile.Keywords = []string{}
		}
		grade, color := scoring.Grade(r.Total)

		out[i] = models.CandidateResult{
			Profile:     profile,
			CandidateID: r.CandidateID,
			Total:       scoring.Round1(r.Total),
			Topsis:      scoring.Round4(r.Score),
			Rank:        r.Rank,
			Grade:       grade,
			GradeColor:  color,
			Degenerate:  r.Degenerate,
			Sections:    s.eval.Sections,
			Insights:    nonNilInsights(scoring.Insights(s.eval.Sections)),
			CVPath:      s.doc.Path,
			CLPath:      s.doc.CoverLetterPath,
		}
	}
	return out, nil
}

func candidateID(i int, doc models.ResumeDocument) string {
	return fmt.Sprintf("%02d-%s", i+1, doc.Name)
}

func nonNilInsights(in []models.Insight) []models.Insight {
	if in == nil {
		return []models.Insight{}
	}
	return in
}

// Batches lists recent batches, newest first.
func (a *Agent) Batches(ctx context.Context, limit int) ([]models.BatchSummary, error) {
	return a.repo.ListBatches(ctx, limit)
}

// Batch returns a stored batch report.
func (a *Agent) Batch(ctx context.Context, id string) (*models.BatchReport, error) {
	return a.repo.GetBatch(ctx, id)
}

// LatestBatch returns the newest completed batch.
func (a *Agent) LatestBatch(ctx context.Context) (*models.BatchReport, error) {
	return a.repo.LatestBatch(ctx)
}
