package scheduler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/jkaninda/duka/internal/config"
	"github.com/jkaninda/duka/internal/ratelimit"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeGC struct{ calls int }

func (f *fakeGC) RunGC() error { f.calls++; return nil }

type failingSyncer struct{}

func (failingSyncer) Sync() error { return errors.New("disk full") }

func TestAddValidatesSpec(t *testing.T) {
	s := New(nil, discardLogger())
	noop := func(context.Context) error { return nil }

	if err := s.Add(Job{Name: "bad", Spec: "every minute", Run: noop}); err == nil {
		t.Error("invalid spec accepted")
	}
	if err := s.Add(Job{Name: "blank", Run: noop}); err != nil {
		t.Errorf("blank spec: %v", err)
	}
	if _, ok := s.NextRun("blank"); ok {
		t.Error("blank spec was scheduled")
	}
	if err := s.Add(Job{Name: "ok", Spec: "*/5 * * * *", Run: noop}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := s.Add(Job{Name: "ok", Spec: "* * * * *", Run: noop}); err == nil {
		t.Error("duplicate job accepted")
	}
}

func TestComputeNextRunFrom(t *testing.T) {
	from := time.Date(2025, 9, 7, 12, 3, 0, 0, time.UTC)
	next, err := ComputeNextRunFrom("*/5 * * * *", from)
	if err != nil {
		t.Fatal(err)
	}
	if want := time.Date(2025, 9, 7, 12, 5, 0, 0, time.UTC); !next.Equal(want) {
		t.Errorf("next = %s, want %s", next, want)
	}
	if _, err := ComputeNextRunFrom("nope", from); err == nil {
		t.Error("invalid expression accepted")
	}
}

func TestHousekeepingJobs(t *testing.T) {
	cfg := &config.HousekeepingConfig{
		Enabled:        true,
		RateLimitPrune: "*/5 * * * *",
		BadgerGC:       "0 * * * *",
		AuditSync:      "* * * * *",
	}
	gc := &fakeGC{}
	jobs := HousekeepingJobs(cfg, Targets{
		Limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: 60, BurstSize: 1}),
		Store:   gc,
		Audit:   failingSyncer{},
	}, discardLogger())
	if len(jobs) != 3 {
		t.Fatalf("got %d jobs, want 3", len(jobs))
	}

	if got := HousekeepingJobs(&config.HousekeepingConfig{}, Targets{Store: gc}, discardLogger()); got != nil {
		t.Errorf("disabled config built %d jobs", len(got))
	}
	if got := HousekeepingJobs(cfg, Targets{Store: "not a store"}, discardLogger()); len(got) != 0 {
		t.Errorf("unsupported targets built %d jobs", len(got))
	}

	reg := prometheus.NewRegistry()
	s := New(NewMetrics(reg), discardLogger())
	for _, j := range jobs {
		if err := s.Add(j); err != nil {
			t.Fatalf("Add %s: %v", j.Name, err)
		}
		s.RunNow(context.Background(), j)
	}
	if gc.calls != 1 {
		t.Errorf("gc calls = %d", gc.calls)
	}
	if _, ok := s.NextRun(JobAuditSync); !ok {
		t.Error("audit sync not scheduled")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	runs := map[string]float64{}
	for _, mf := range families {
		if mf.GetName() != "duka_housekeeping_runs_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			runs[jobStatus(m)] = m.GetCounter().GetValue()
		}
	}
	if runs[JobAuditSync+"/failure"] != 1 || runs[JobBadgerGC+"/success"] != 1 || runs[JobRateLimitPrune+"/success"] != 1 {
		t.Errorf("runs = %v", runs)
	}
}

func jobStatus(m *dto.Metric) string {
	var job, status string
	for _, l := range m.GetLabel() {
		switch l.GetName() {
		case "job":
			job = l.GetValue()
		case "status":
			status = l.GetValue()
		}
	}
	return job + "/" + status
}

func TestStartStop(t *testing.T) {
	s := New(nil, discardLogger())
	cancel := s.Start(context.Background())
	cancel()
}
