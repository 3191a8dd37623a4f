package observability

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jkaninda/duka/internal/config"
)

// minSamples is the smallest window population an error rate is judged on.
const minSamples = 5

// AnomalyDetector tracks per-operation error rates over a sliding window and
// warns when a rate crosses the configured threshold. Operations are short
// labels such as "llm_request", "tool_order_cancel" or "store_cancel".
type AnomalyDetector struct {
	mu        sync.Mutex
	outcomes  map[string]*slidingWindow
	window    time.Duration
	threshold float64
	logger    *slog.Logger
	now       func() time.Time
}

type slidingWindow struct {
	entries []outcome
}

type outcome struct {
	at     time.Time
	failed bool
}

// NewAnomalyDetector creates an anomaly detector from config.
func NewAnomalyDetector(cfg *config.AnomalyConfig, logger *slog.Logger) *AnomalyDetector {
	window := 300 * time.Second
	if cfg.WindowSeconds > 0 {
		window = time.Duration(cfg.WindowSeconds) * time.Second
	}
	return &AnomalyDetector{
		outcomes:  make(map[string]*slidingWindow),
		window:    window,
		threshold: cfg.ErrorRateThreshold,
		logger:    logger,
		now:       time.Now,
	}
}

// RecordError records a failed operation and checks the error rate.
func (a *AnomalyDetector) RecordError(operation string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.record(operation, true)
	if rate, total := a.rate(operation); a.exceeded(rate, total) && a.logger != nil {
		a.logger.Warn("anomaly detected: high error rate",
			slog.String("operation", operation),
			slog.Float64("error_rate", rate),
			slog.Float64("threshold", a.threshold),
			slog.Int("samples", total),
		)
	}
}

// RecordSuccess records a successful operation.
func (a *AnomalyDetector) RecordSuccess(operation string) {
	if a == nil {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.record(operation, false)
}

// ErrorRate returns the failure ratio for operation within the window and
// the number of samples it is based on.
func (a *AnomalyDetector) ErrorRate(operation string) (float64, int) {
	if a == nil {
		return 0, 0
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.rate(operation)
}

// Check returns an error when operation's error rate is above threshold.
// It is shaped for HealthChecker.AddCheck.
func (a *AnomalyDetector) Check(operation string) error {
	rate, total := a.ErrorRate(operation)
	if a != nil && a.exceeded(rate, total) {
		return fmt.Errorf("%s error rate %.0f%% over the last %s", operation, rate*100, a.window)
	}
	return nil
}

func (a *AnomalyDetector) exceeded(rate float64, total int) bool {
	return a.threshold > 0 && total >= minSamples && rate > a.threshold
}

// record must be called with a.mu held.
func (a *AnomalyDetector) record(operation string, failed bool) {
	w, ok := a.outcomes[operation]
	if !ok {
		w = &slidingWindow{}
		a.outcomes[operation] = w
	}
	now := a.now()
	w.entries = append(w.entries, outcome{at: now, failed: failed})
	w.prune(now.Add(-a.window))
}

// rate must be called with a.mu held.
func (a *AnomalyDetector) rate(operation string) (float64, int) {
	w, ok := a.outcomes[operation]
	if !ok {
		return 0, 0
	}
	w.prune(a.now().Add(-a.window))
	if len(w.entries) == 0 {
		return 0, 0
	}
	failed := 0
	for _, e := range w.entries {
		if e.failed {
			failed++
		}
	}
	return float64(failed) / float64(len(w.entries)), len(w.entries)
}

// prune removes entries recorded before cutoff.
func (w *slidingWindow) prune(cutoff time.Time) {
	i := 0
	for i < len(w.entries) && w.entries[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.entries = w.entries[i:]
	}
}
