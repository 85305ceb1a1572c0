package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fmuoria/ranksense/internal/logger"
)

// Free-tier quotas allow roughly 15 requests per minute.
const (
	requestDelay = 4 * time.Second
	maxRetries   = 3
	retryBackoff = 10 * time.Second
)

// Limited paces requests to the wrapped generator and retries rate-limit
// rejections with a linear backoff.
type Limited struct {
	next       Generator
	limiter    *rate.Limiter
	maxRetries int
	backoff    time.Duration
	logger     *zap.Logger
}

// NewLimited wraps next. A zero RequestDelay disables pacing.
func NewLimited(next Generator, cfg Config, log *zap.Logger) *Limited {
	limit := rate.Inf
	if cfg.RequestDelay > 0 {
		limit = rate.Every(cfg.RequestDelay)
	}
	retries := cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}

	return &Limited{
		next:       next,
		limiter:    rate.NewLimiter(limit, 1),
		maxRetries: retries,
		backoff:    cfg.RetryBackoff,
		logger:     logger.WithFields(log, logger.LLMFields(cfg.Provider, next.Model())...),
	}
}

// GenerateContent waits for a request slot, then calls the wrapped generator.
func (l *Limited) GenerateContent(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 0; attempt <= l.maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * l.backoff
			l.logger.Warn("rate limited, backing off",
				zap.Int("attempt", attempt),
				zap.Int("max_retries", l.maxRetries),
				zap.Duration("backoff", wait),
				zap.Error(lastErr),
			)
			if err := sleepCtx(ctx, wait); err != nil {
				return "", err
			}
		}

		if err := l.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("failed waiting for request slot: %w", err)
		}

		start := time.Now()
		out, err := l.next.GenerateContent(ctx, prompt)
		if err == nil {
			l.logger.Debug("llm response received",
				zap.Duration("elapsed", time.Since(start)),
				zap.Int("prompt_chars", len(prompt)),
				zap.String("preview", logger.TruncateForLog(out, 120)),
			)
			return out, nil
		}

		if !isRateLimitError(err) {
			return "", err
		}
		lastErr = err
	}

	return "", fmt.Errorf("giving up after %d retries: %w", l.maxRetries, lastErr)
}

func (l *Limited) Model() string {
	return l.next.Model()
}

func (l *Limited) Close() error {
	return l.next.Close()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// isRateLimitError reports whether err is a quota or throttling rejection.
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}
	if s, ok := status.FromError(err); ok && s.Code() == codes.ResourceExhausted {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"resourceexhausted", "resource exhausted", "429", "rate limit", "quota"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
