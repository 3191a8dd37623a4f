package scheduler

import (
	"context"
	"log/slog"

	"github.com/jkaninda/duka/internal/config"
	"github.com/jkaninda/duka/internal/ratelimit"
)

// Job names.
const (
	JobRateLimitPrune = "rate_limit_prune"
	JobBadgerGC       = "badger_gc"
	JobAuditSync      = "audit_sync"
)

// GarbageCollector is implemented by stores with reclaimable space.
type GarbageCollector interface {
	RunGC() error
}

// Syncer is implemented by audit loggers backed by a file.
type Syncer interface {
	Sync() error
}

// Targets are the components housekeeping acts on. Nil fields disable the
// corresponding job.
type Targets struct {
	Limiter *ratelimit.Limiter
	Store   any
	Audit   any
}

// HousekeepingJobs builds the jobs enabled by cfg for targets.
func HousekeepingJobs(cfg *config.HousekeepingConfig, t Targets, logger *slog.Logger) []Job {
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	var jobs []Job
	if t.Limiter != nil {
		idle := cfg.IdleLimiterTTL()
		jobs = append(jobs, Job{
			Name: JobRateLimitPrune,
			Spec: cfg.RateLimitPrune,
			Run: func(ctx context.Context) error {
				if n := t.Limiter.Prune(idle); n > 0 {
					logger.DebugContext(ctx, "pruned idle rate limiters", slog.Int("count", n))
				}
				return nil
			},
		})
	}
	if gc, ok := t.Store.(GarbageCollector); ok {
		jobs = append(jobs, Job{
			Name: JobBadgerGC,
			Spec: cfg.BadgerGC,
			Run:  func(context.Context) error { return gc.RunGC() },
		})
	}
	if s, ok := t.Audit.(Syncer); ok {
		jobs = append(jobs, Job{
			Name: JobAuditSync,
			Spec: cfg.AuditSync,
			Run:  func(context.Context) error { return s.Sync() },
		})
	}
	return jobs
}
