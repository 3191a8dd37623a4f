// Package scheduler runs Duka's housekeeping jobs on cron schedules: pruning
// idle rate-limit buckets, badger value-log GC and audit log syncing.
//
// Jobs never touch orders; a failing job is logged and retried on its next
// schedule.
package scheduler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is a named housekeeping task.
type Job struct {
	Name string
	// Spec is a five-field cron expression.
	Spec string
	Run  func(ctx context.Context) error
}

// Scheduler runs jobs on their cron schedules.
type Scheduler struct {
	cron    *cron.Cron
	parser  cron.Parser
	metrics *Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	jobs    map[string]cron.EntryID
	baseCtx context.Context
}

// New creates a Scheduler. metrics may be nil.
func New(metrics *Metrics, logger *slog.Logger) *Scheduler {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Scheduler{
		cron:    cron.New(cron.WithParser(parser), cron.WithLocation(time.UTC)),
		parser:  parser,
		metrics: metrics,
		logger:  logger,
		jobs:    make(map[string]cron.EntryID),
		baseCtx: context.Background(),
	}
}

// Add registers a job. Jobs with an empty spec are skipped so a blank config
// field disables that job.
func (s *Scheduler) Add(job Job) error {
	if job.Spec == "" {
		return nil
	}
	if job.Name == "" || job.Run == nil {
		return errors.New("scheduler: job needs a name and a run function")
	}
	if _, err := s.parser.Parse(job.Spec); err != nil {
		return fmt.Errorf("invalid cron expression %q for job %s: %w", job.Spec, job.Name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.jobs[job.Name]; exists {
		return fmt.Errorf("scheduler: duplicate job %s", job.Name)
	}
	id, err := s.cron.AddFunc(job.Spec, func() { s.fire(s.context(), job) })
	if err != nil {
		return fmt.Errorf("scheduling job %s: %w", job.Name, err)
	}
	s.jobs[job.Name] = id
	return nil
}

// Start runs the cron loop until ctx is done or the returned cancel function
// is called.
func (s *Scheduler) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.InfoContext(ctx, "housekeeping scheduler started", slog.Int("jobs", len(s.cron.Entries())))

	go func() {
		<-ctx.Done()
		<-s.cron.Stop().Done()
		s.logger.Info("housekeeping scheduler stopped")
	}()
	return cancel
}

// RunNow fires the named job synchronously.
func (s *Scheduler) RunNow(ctx context.Context, job Job) {
	s.fire(ctx, job)
}

// NextRun returns when the named job fires next.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.Lock()
	id, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return time.Time{}, false
	}
	return s.cron.Entry(id).Next, true
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.baseCtx
}

func (s *Scheduler) fire(ctx context.Context, job Job) {
	correlationID := newCorrelationID()
	start := time.Now()

	err := job.Run(ctx)
	elapsed := time.Since(start)

	if s.metrics != nil {
		s.metrics.RunDuration.WithLabelValues(job.Name).Observe(elapsed.Seconds())
	}
	if err != nil {
		if s.metrics != nil {
			s.metrics.Runs.WithLabelValues(job.Name, "failure").Inc()
		}
		s.logger.ErrorContext(ctx, "housekeeping job failed",
			slog.String("job", job.Name),
			slog.String("correlation_id", correlationID),
			slog.String("error", err.Error()),
		)
		return
	}
	if s.metrics != nil {
		s.metrics.Runs.WithLabelValues(job.Name, "success").Inc()
	}
	s.logger.DebugContext(ctx, "housekeeping job finished",
		slog.String("job", job.Name),
		slog.String("correlation_id", correlationID),
		slog.Duration("duration", elapsed),
	)
}

// ComputeNextRunFrom computes the next run time of expr after from.
func ComputeNextRunFrom(expr string, from time.Time) (time.Time, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	sched, err := parser.Parse(expr)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return sched.Next(from), nil
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
