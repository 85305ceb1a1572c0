package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/fmuoria/ranksense/internal/logger"
	"github.com/fmuoria/ranksense/internal/models"
)

// SQLite is the embedded single-file Repository.
type SQLite struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// OpenSQLite opens (creating if needed) the database file at path.
func OpenSQLite(ctx context.Context, path string, log *zap.Logger) (*SQLite, error) {
	if path == "" {
		path = DefaultConfig().Path
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer

	s := &SQLite{db: db, logger: logger.OrNop(log), now: time.Now}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}

	s.logger.Info("sqlite store ready", zap.String("path", path))
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	steps, err := migrations(DriverSQLite)
	if err != nil {
		return err
	}
	for _, m := range steps {
		if _, err := s.db.ExecContext(ctx, m.sql); err != nil {
			return fmt.Errorf("execute %s: %w", m.name, err)
		}
	}
	return nil
}

// Close closes the database.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) CreateBatch(ctx context.Context, jobTitle, jobDesc string) (models.BatchSummary, error) {
	b := models.BatchSummary{
		ID:        uuid.NewString(),
		JobTitle:  jobTitle,
		Status:    models.StatusProcessing,
		CreatedAt: s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO batches (id, job_title, job_desc, status, created_at) VALUES (?, ?, ?, ?, ?)`,
		b.ID, jobTitle, jobDesc, b.Status, b.CreatedAt.UnixNano())
	if err != nil {
		return models.BatchSummary{}, fmt.Errorf("insert batch: %w", err)
	}
	return b, nil
}

func (s *SQLite) SaveCandidates(ctx context.Context, batchID string, candidates []models.CandidateResult) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM batches WHERE id = ?`, batchID).Scan(&exists); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
		}
		return fmt.Errorf("lookup batch: %w", err)
	}

	ids := make([]int64, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		keywords, err := json.Marshal(nonNil(c.Keywords))
		if err != nil {
			return fmt.Errorf("encode keywords: %w", err)
		}

		res, err := tx.ExecContext(ctx, `
			INSERT INTO candidates
			  (batch_id, candidate_id, name, role, email, phone, education, experience, location,
			   total_score, topsis_score, degenerate, grade, grade_color, rank_position,
			   avatar, avatar_color, keywords, cv_path, cl_path)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			batchID, c.CandidateID, c.Name, c.Role, c.Email, c.Phone, c.Education, c.Experience, c.Location,
			c.Total, c.Topsis, c.Degenerate, c.Grade, c.GradeColor, c.Rank,
			c.Avatar, c.AvatarColor, string(keywords), c.CVPath, c.CLPath)
		if err != nil {
			return fmt.Errorf("insert candidate %s: %w", c.CandidateID, err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("candidate id: %w", err)
		}

		for pos, sec := range c.Sections {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO sections (candidate_id, position, section_name, score, weight, level, feedback) VALUES (?,?,?,?,?,?,?)`,
				id, pos, sec.Name, sec.Score, sec.Weight, string(sec.Level), sec.Feedback); err != nil {
				return fmt.Errorf("insert section %s: %w", sec.Name, err)
			}
		}
		for pos, ins := range c.Insights {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO insights (candidate_id, position, type, text) VALUES (?,?,?,?)`,
				id, pos, string(ins.Type), ins.Text); err != nil {
				return fmt.Errorf("insert insight: %w", err)
			}
		}
		ids[i] = id
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	for i := range candidates {
		candidates[i].ID = ids[i]
	}
	return nil
}

func (s *SQLite) SetBatchStatus(ctx context.Context, batchID, status string) error {
	if err := validStatus(status); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE batches SET status = ? WHERE id = ?`, status, batchID)
	if err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	return nil
}

func (s *SQLite) ListBatches(ctx context.Context, limit int) ([]models.BatchSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT b.id, b.job_title, b.status, b.created_at, COUNT(c.id)
		FROM batches b
		LEFT JOIN candidates c ON c.batch_id = b.id
		GROUP BY b.id
		ORDER BY b.created_at DESC, b.rowid DESC
		LIMIT ?`, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}
	defer rows.Close()

	out := []models.BatchSummary{}
	for rows.Next() {
		var (
			b  models.BatchSummary
			ts int64
		)
		if err := rows.Scan(&b.ID, &b.JobTitle, &b.Status, &ts, &b.CandidateCount); err != nil {
			return nil, fmt.Errorf("scan batch: %w", err)
		}
		b.CreatedAt = time.Unix(0, ts).UTC()
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQLite) LatestBatch(ctx context.Context) (*models.BatchReport, error) {
	var id string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM batches WHERE status = ? ORDER BY created_at DESC, rowid DESC LIMIT 1`,
		models.StatusDone).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no completed batches: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest batch: %w", err)
	}
	return s.GetBatch(ctx, id)
}

// GetBatch reads the batch and its candidates in rank order. Each query is
// drained before the next one starts since the pool holds one connection.
func (s *SQLite) GetBatch(ctx context.Context, batchID string) (*models.BatchReport, error) {
	report := &models.BatchReport{BatchID: batchID}
	var ts int64
	err := s.db.QueryRowContext(ctx,
		`SELECT job_title, status, created_at FROM batches WHERE id = ?`, batchID).
		Scan(&report.JobTitle, &report.Status, &ts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	report.CreatedAt = time.Unix(0, ts).UTC()

	if report.Candidates, err = s.candidates(ctx, batchID); err != nil {
		return nil, err
	}
	idx := candidateIndex(report.Candidates)

	if err := s.sections(ctx, batchID, report.Candidates, idx); err != nil {
		return nil, err
	}
	if err := s.insights(ctx, batchID, report.Candidates, idx); err != nil {
		return nil, err
	}
	return report, nil
}

func (s *SQLite) candidates(ctx context.Context, batchID string) ([]models.CandidateResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, candidate_id, name, role, email, phone, education, experience, location,
		       total_score, topsis_score, degenerate, grade, grade_color, rank_position,
		       avatar, avatar_color, keywords, cv_path, cl_path
		FROM candidates WHERE batch_id = ? ORDER BY rank_position, id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	defer rows.Close()

	out := []models.CandidateResult{}
	for rows.Next() {
		var (
			c        models.CandidateResult
			keywords string
		)
		if err := rows.Scan(&c.ID, &c.CandidateID, &c.Name, &c.Role, &c.Email, &c.Phone,
			&c.Education, &c.Experience, &c.Location, &c.Total, &c.Topsis, &c.Degenerate,
			&c.Grade, &c.GradeColor, &c.Rank, &c.Avatar, &c.AvatarColor, &keywords,
			&c.CVPath, &c.CLPath); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if err := json.Unmarshal([]byte(keywords), &c.Keywords); err != nil {
			return nil, fmt.Errorf("decode keywords: %w", err)
		}
		c.Keywords = nonNil(c.Keywords)
		c.Sections = []models.SectionScore{}
		c.Insights = []models.Insight{}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLite) sections(ctx context.Context, batchID string, cands []models.CandidateResult, idx map[int64]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.candidate_id, s.section_name, s.score, s.weight, s.level, s.feedback
		FROM sections s JOIN candidates c ON c.id = s.candidate_id
		WHERE c.batch_id = ? ORDER BY s.candidate_id, s.position`, batchID)
	if err != nil {
		return fmt.Errorf("query sections: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id    int64
			sec   models.SectionScore
			level string
		)
		if err := rows.Scan(&id, &sec.Name, &sec.Score, &sec.Weight, &level, &sec.Feedback); err != nil {
			return fmt.Errorf("scan section: %w", err)
		}
		sec.Level = models.Level(level)
		if i, ok := idx[id]; ok {
			cands[i].Sections = append(cands[i].Sections, sec)
		}
	}
	return rows.Err()
}

func (s *SQLite) insights(ctx context.Context, batchID string, cands []models.CandidateResult, idx map[int64]int) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.candidate_id, i.type, i.text
		FROM insights i JOIN candidates c ON c.id = i.candidate_id
		WHERE c.batch_id = ? ORDER BY i.candidate_id, i.position`, batchID)
	if err != nil {
		return fmt.Errorf("query insights: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  int64
			typ string
			ins models.Insight
		)
		if err := rows.Scan(&id, &typ, &ins.Text); err != nil {
			return fmt.Errorf("scan insight: %w", err)
		}
		ins.Type = models.InsightType(typ)
		if i, ok := idx[id]; ok {
			cands[i].Insights = append(cands[i].Insights, ins)
		}
	}
	return rows.Err()
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
