package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig configures RetryProvider.
type RetryConfig struct {
	MaxTries        uint          // Default: 3
	InitialInterval time.Duration // Default: 200ms
	MaxInterval     time.Duration // Default: 2s
}

// RetryProvider retries transient failures of the wrapped provider with
// exponential backoff. Context cancellation stops retrying immediately.
type RetryProvider struct {
	inner  Provider
	cfg    RetryConfig
	logger *slog.Logger
}

// NewRetryProvider wraps p.
func NewRetryProvider(p Provider, cfg RetryConfig, logger *slog.Logger) *RetryProvider {
	if cfg.MaxTries == 0 {
		cfg.MaxTries = 3
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = 2 * time.Second
	}
	return &RetryProvider{inner: p, cfg: cfg, logger: logger}
}

func (r *RetryProvider) Name() string { return r.inner.Name() }

func (r *RetryProvider) SendMessage(ctx context.Context, req *Request) (*Response, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = r.cfg.InitialInterval
	bo.MaxInterval = r.cfg.MaxInterval

	attempt := 0
	return backoff.Retry(ctx, func() (*Response, error) {
		attempt++
		resp, err := r.inner.SendMessage(ctx, req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			r.logger.WarnContext(ctx, "llm request failed",
				slog.String("provider", r.inner.Name()),
				slog.Int("attempt", attempt),
				slog.String("error", err.Error()),
			)
			return nil, err
		}
		return resp, nil
	}, backoff.WithBackOff(bo), backoff.WithMaxTries(r.cfg.MaxTries))
}

var _ Provider = (*RetryProvider)(nil)
