// Package store persists analysed batches, their ranked candidates, section
// scores and insights.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fmuoria/ranksense/internal/models"
)

// ErrNotFound is returned when a batch does not exist.
var ErrNotFound = errors.New("not found")

// DefaultListLimit is the number of batches ListBatches returns when limit <= 0.
const DefaultListLimit = 20

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Repository is the persistence contract used by the agent and the API.
type Repository interface {
	// CreateBatch inserts a batch in the processing state.
	CreateBatch(ctx context.Context, jobTitle, jobDesc string) (models.BatchSummary, error)
	// SaveCandidates stores ranked candidates and fills in their IDs.
	SaveCandidates(ctx context.Context, batchID string, candidates []models.CandidateResult) error
	SetBatchStatus(ctx context.Context, batchID, status string) error
	// ListBatches returns the newest batches first.
	ListBatches(ctx context.Context, limit int) ([]models.BatchSummary, error)
	GetBatch(ctx context.Context, batchID string) (*models.BatchReport, error)
	// LatestBatch returns the newest batch whose status is done.
	LatestBatch(ctx context.Context) (*models.BatchReport, error)
	Close() error
}

// Config selects and locates the database.
type Config struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
	DSN    string `mapstructure:"dsn"`
}

// DefaultConfig stores batches in a local SQLite file.
func DefaultConfig() Config {
	return Config{
		Driver: DriverSQLite,
		Path:   "ranksense.db",
	}
}

// Open connects to the configured database and applies the schema.
func Open(ctx context.Context, cfg Config, log *zap.Logger) (Repository, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverSQLite:
		return OpenSQLite(ctx, cfg.Path, log)
	case DriverPostgres, "postgresql", "pgx":
		return OpenPostgres(ctx, cfg.DSN, log)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

func listLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	return limit
}

func validStatus(status string) error {
	switch status {
	case models.StatusProcessing, models.StatusDone, models.StatusFailed:
		return nil
	}
	return fmt.Errorf("invalid batch status %q", status)
}

// candidateIndex maps database ids to positions in a report so that
// sections and insights can be attached after the candidate rows are read.
func candidateIndex(candidates []models.CandidateResult) map[int64]int {
	idx := make(map[int64]int, len(candidates))
	for i, c := range candidates {
		idx[c.ID] = i
	}
	return idx
}

var (
	_ Repository = (*SQLite)(nil)
	_ Repository = (*Postgres)(nil)
)
