package cmd

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/fmuoria/ranksense/internal/agent"
	"github.com/fmuoria/ranksense/internal/config"
	"github.com/fmuoria/ranksense/internal/ingestion"
	"github.com/fmuoria/ranksense/internal/llm"
	"github.com/fmuoria/ranksense/internal/scoring"
	"github.com/fmuoria/ranksense/internal/store"
)

// runtime is the set of long-lived components shared by serve and analyze.
type runtime struct {
	agent *agent.Agent
	repo  store.Repository
	gen   llm.Generator
}

func (r *runtime) Close() error {
	var errs []error
	if r.gen != nil {
		errs = append(errs, r.gen.Close())
	}
	if r.repo != nil {
		errs = append(errs, r.repo.Close())
	}
	return errors.Join(errs...)
}

// newRuntime opens the store, picks a scorer and assembles the agent.
func newRuntime(ctx context.Context, cfg *config.Config, log *zap.Logger) (*runtime, error) {
	sections, err := cfg.Sections()
	if err != nil {
		return nil, err
	}

	repo, err := store.Open(ctx, cfg.Store, log)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	rt := &runtime{repo: repo}

	var scorer scoring.Scorer
	gen, err := llm.New(ctx, cfg.LLM, log)
	switch {
	case errors.Is(err, llm.ErrDisabled):
		log.Info("llm disabled, using heuristic scoring")
		scorer = scoring.NewHeuristicScorer(sections)
	case err != nil:
		rt.Close()
		return nil, fmt.Errorf("creating llm client: %w", err)
	default:
		rt.gen = gen
		log.Info("using llm scoring", zap.String("provider", cfg.LLM.Provider), zap.String("model", gen.Model()))
		scorer = scoring.NewLLMScorer(gen, sections)
	}

	files := ingestion.NewFileHandler(cfg.UploadsDir, log)
	rt.agent = agent.New(files, scorer, repo, agent.Options{
		Workers: cfg.Scoring.Workers,
		Gmail:   gmailFactory(cfg, log),
		Logger:  log,
	})
	return rt, nil
}

// gmailFactory defers the OAuth client until Gmail ingestion is requested.
// Each run downloads into the directory the agent hands it. It never
// prompts; tokens come from `ranksense gmail-auth`.
func gmailFactory(cfg *config.Config, log *zap.Logger) agent.GmailFactory {
	if cfg.Gmail.CredentialsFile == "" {
		return nil
	}
	return func(ctx context.Context, dir string) (agent.AttachmentSource, error) {
		h, err := ingestion.NewGmailHandler(ctx, cfg.Gmail, dir, nil, log)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
}
