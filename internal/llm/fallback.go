package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// FallbackProvider asks each provider in turn until one answers. The
// classifier and the writer see a single provider; which backend answered
// is only visible in the logs.
type FallbackProvider struct {
	providers []Provider
	logger    *slog.Logger
}

// NewFallbackProvider chains providers in order. Panics when empty, which
// is a startup configuration error.
func NewFallbackProvider(providers []Provider, logger *slog.Logger) *FallbackProvider {
	if len(providers) == 0 {
		panic("llm: fallback chain needs at least one provider")
	}
	return &FallbackProvider{providers: providers, logger: logger}
}

// SendMessage returns the first successful response. A canceled or expired
// context ends the chain immediately.
func (f *FallbackProvider) SendMessage(ctx context.Context, req *Request) (*Response, error) {
	var errs []error
	for i, p := range f.providers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		resp, err := p.SendMessage(ctx, req)
		if err == nil {
			if i > 0 {
				f.logger.InfoContext(ctx, "answered by fallback provider",
					slog.String("provider", p.Name()),
					slog.Int("position", i),
				)
			}
			return resp, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		if i < len(f.providers)-1 {
			f.logger.WarnContext(ctx, "provider failed, falling back",
				slog.String("provider", p.Name()),
				slog.String("next", f.providers[i+1].Name()),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil, fmt.Errorf("no provider answered (%s): %w", f.chain(), errors.Join(errs...))
}

// Name is the primary provider name suffixed with "+fallback".
func (f *FallbackProvider) Name() string {
	return f.providers[0].Name() + "+fallback"
}

func (f *FallbackProvider) chain() string {
	names := make([]string, len(f.providers))
	for i, p := range f.providers {
		names[i] = p.Name()
	}
	return strings.Join(names, " -> ")
}
