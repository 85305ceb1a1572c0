package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fmuoria/ranksense/internal/logger"
	"github.com/fmuoria/ranksense/internal/models"
)

// Postgres is the Repository backed by a pgx connection pool.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// OpenPostgres creates a pgx pool and runs schema migrations.
func OpenPostgres(ctx context.Context, databaseURL string, log *zap.Logger) (*Postgres, error) {
	if databaseURL == "" {
		return nil, errors.New("database dsn is required for the postgres driver")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	p := &Postgres{pool: pool, logger: logger.OrNop(log)}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	p.logger.Info("postgres store connected", zap.String("host", config.ConnConfig.Host))
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	steps, err := migrations(DriverPostgres)
	if err != nil {
		return err
	}

	conn, err := p.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Release()

	for _, m := range steps {
		if _, err := conn.Exec(ctx, m.sql); err != nil {
			return fmt.Errorf("execute %s: %w", m.name, err)
		}
	}
	return nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}

func (p *Postgres) CreateBatch(ctx context.Context, jobTitle, jobDesc string) (models.BatchSummary, error) {
	b := models.BatchSummary{
		ID:       uuid.NewString(),
		JobTitle: jobTitle,
		Status:   models.StatusProcessing,
	}
	err := p.pool.QueryRow(ctx,
		`INSERT INTO batches (id, job_title, job_desc, status) VALUES ($1, $2, $3, $4) RETURNING created_at`,
		b.ID, jobTitle, jobDesc, b.Status).Scan(&b.CreatedAt)
	if err != nil {
		return models.BatchSummary{}, fmt.Errorf("insert batch: %w", err)
	}
	b.CreatedAt = b.CreatedAt.UTC()
	return b, nil
}

func (p *Postgres) SaveCandidates(ctx context.Context, batchID string, candidates []models.CandidateResult) error {
	ids := make([]int64, len(candidates))
	err := pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM batches WHERE id = $1)`, batchID).Scan(&exists); err != nil {
			return fmt.Errorf("lookup batch: %w", err)
		}
		if !exists {
			return fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
		}

		for i, c := range candidates {
			err := tx.QueryRow(ctx, `
				INSERT INTO candidates
				  (batch_id, candidate_id, name, role, email, phone, education, experience, location,
				   total_score, topsis_score, degenerate, grade, grade_color, rank_position,
				   avatar, avatar_color, keywords, cv_path, cl_path)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
				RETURNING id`,
				batchID, c.CandidateID, c.Name, c.Role, c.Email, c.Phone, c.Education, c.Experience, c.Location,
				c.Total, c.Topsis, c.Degenerate, c.Grade, c.GradeColor, c.Rank,
				c.Avatar, c.AvatarColor, nonNil(c.Keywords), c.CVPath, c.CLPath).Scan(&ids[i])
			if err != nil {
				return fmt.Errorf("insert candidate %s: %w", c.CandidateID, err)
			}
		}

		var sectionRows, insightRows [][]any
		for i, c := range candidates {
			for pos, sec := range c.Sections {
				sectionRows = append(sectionRows, []any{ids[i], pos, sec.Name, sec.Score, sec.Weight, string(sec.Level), sec.Feedback})
			}
			for pos, ins := range c.Insights {
				insightRows = append(insightRows, []any{ids[i], pos, string(ins.Type), ins.Text})
			}
		}

		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"sections"},
			[]string{"candidate_id", "position", "section_name", "score", "weight", "level", "feedback"},
			pgx.CopyFromRows(sectionRows)); err != nil {
			return fmt.Errorf("copy sections: %w", err)
		}
		if _, err := tx.CopyFrom(ctx, pgx.Identifier{"insights"},
			[]string{"candidate_id", "position", "type", "text"},
			pgx.CopyFromRows(insightRows)); err != nil {
			return fmt.Errorf("copy insights: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	for i := range candidates {
		candidates[i].ID = ids[i]
	}
	return nil
}

func (p *Postgres) SetBatchStatus(ctx context.Context, batchID, status string) error {
	if err := validStatus(status); err != nil {
		return err
	}
	tag, err := p.pool.Exec(ctx, `UPDATE batches SET status = $1 WHERE id = $2`, status, batchID)
	if err != nil {
		return fmt.Errorf("update batch status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	return nil
}

func (p *Postgres) ListBatches(ctx context.Context, limit int) ([]models.BatchSummary, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT b.id, b.job_title, b.status, b.created_at, COUNT(c.id)::int
		FROM batches b
		LEFT JOIN candidates c ON c.batch_id = b.id
		GROUP BY b.id
		ORDER BY b.created_at DESC
		LIMIT $1`, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list batches: %w", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.BatchSummary, error) {
		var b models.BatchSummary
		err := row.Scan(&b.ID, &b.JobTitle, &b.Status, &b.CreatedAt, &b.CandidateCount)
		b.CreatedAt = b.CreatedAt.UTC()
		return b, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan batches: %w", err)
	}
	if out == nil {
		out = []models.BatchSummary{}
	}
	return out, nil
}

func (p *Postgres) LatestBatch(ctx context.Context) (*models.BatchReport, error) {
	var id string
	err := p.pool.QueryRow(ctx,
		`SELECT id FROM batches WHERE status = $1 ORDER BY created_at DESC LIMIT 1`,
		models.StatusDone).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("no completed batches: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("latest batch: %w", err)
	}
	return p.GetBatch(ctx, id)
}

func (p *Postgres) GetBatch(ctx context.Context, batchID string) (*models.BatchReport, error) {
	report := &models.BatchReport{BatchID: batchID}
	var createdAt time.Time
	err := p.pool.QueryRow(ctx,
		`SELECT job_title, status, created_at FROM batches WHERE id = $1`, batchID).
		Scan(&report.JobTitle, &report.Status, &createdAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("batch %s: %w", batchID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get batch: %w", err)
	}
	report.CreatedAt = createdAt.UTC()

	rows, err := p.pool.Query(ctx, `
		SELECT id, candidate_id, name, role, email, phone, education, experience, location,
		       total_score, topsis_score, degenerate, grade, grade_color, rank_position,
		       avatar, avatar_color, keywords, cv_path, cl_path
		FROM candidates WHERE batch_id = $1 ORDER BY rank_position, id`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query candidates: %w", err)
	}
	report.Candidates, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (models.CandidateResult, error) {
		var c models.CandidateResult
		err := row.Scan(&c.ID, &c.CandidateID, &c.Name, &c.Role, &c.Email, &c.Phone,
			&c.Education, &c.Experience, &c.Location, &c.Total, &c.Topsis, &c.Degenerate,
			&c.Grade, &c.GradeColor, &c.Rank, &c.Avatar, &c.AvatarColor, &c.Keywords,
			&c.CVPath, &c.CLPath)
		c.Keywords = nonNil(c.Keywords)
		c.Sections = []models.SectionScore{}
		c.Insights = []models.Insight{}
		return c, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan candidates: %w", err)
	}
	if report.Candidates == nil {
		report.Candidates = []models.CandidateResult{}
	}
	idx := candidateIndex(report.Candidates)

	rows, err = p.pool.Query(ctx, `
		SELECT s.candidate_id, s.section_name, s.score, s.weight, s.level, s.feedback
		FROM sections s JOIN candidates c ON c.id = s.candidate_id
		WHERE c.batch_id = $1 ORDER BY s.candidate_id, s.position`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query sections: %w", err)
	}
	var (
		id    int64
		sec   models.SectionScore
		level string
	)
	_, err = pgx.ForEachRow(rows, []any{&id, &sec.Name, &sec.Score, &sec.Weight, &level, &sec.Feedback}, func() error {
		sec.Level = models.Level(level)
		if i, ok := idx[id]; ok {
			report.Candidates[i].Sections = append(report.Candidates[i].Sections, sec)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan sections: %w", err)
	}

	rows, err = p.pool.Query(ctx, `
		SELECT i.candidate_id, i.type, i.text
		FROM insights i JOIN candidates c ON c.id = i.candidate_id
		WHERE c.batch_id = $1 ORDER BY i.candidate_id, i.position`, batchID)
	if err != nil {
		return nil, fmt.Errorf("query insights: %w", err)
	}
	var (
		typ string
		ins models.Insight
	)
	_, err = pgx.ForEachRow(rows, []any{&id, &typ, &ins.Text}, func() error {
		ins.Type = models.InsightType(typ)
		if i, ok := idx[id]; ok {
			report.Candidates[i].Insights = append(report.Candidates[i].Insights, ins)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan insights: %w", err)
	}

	return report, nil
}
