// Package audit records cancellation decisions as append-only JSONL.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one cancellation decision. It never carries the customer email.
type Event struct {
	ID             string    `json:"id"`
	RequestID      string    `json:"request_id,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
	ReferenceTime  time.Time `json:"reference_time"`
	Tool           string    `json:"tool"`
	OrderID        string    `json:"order_id"`
	CancelAllowed  bool      `json:"cancel_allowed"`
	Reason         string    `json:"reason"`
	Status         string    `json:"status,omitempty"`
	ElapsedSeconds float64   `json:"elapsed_seconds"`
	Committed      bool      `json:"committed"` // the status write succeeded
}

// Logger receives audit events.
type Logger interface {
	Log(ctx context.Context, event Event) error
}

// FileLogger writes audit events as append-only JSONL.
// Each event is a single JSON line followed by a newline.
// Safe for concurrent use.
type FileLogger struct {
	mu     sync.Mutex
	file   *os.File
	logger *slog.Logger
}

// NewFileLogger opens (or creates) the audit log file in append-only mode.
// File permissions are 0600 (owner read/write only).
func NewFileLogger(path string, logger *slog.Logger) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("creating audit directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log %s: %w", path, err)
	}
	return &FileLogger{file: f, logger: logger}, nil
}

// Log serializes the event and appends it. ID and Timestamp are filled in
// when empty. Marshal happens outside the lock; only the write is serialized.
func (a *FileLogger) Log(ctx context.Context, event Event) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling audit event: %w", err)
	}
	data = append(data, '\n')

	a.mu.Lock()
	_, writeErr := a.file.Write(data)
	a.mu.Unlock()

	if writeErr != nil {
		return fmt.Errorf("writing audit event: %w", writeErr)
	}

	a.logger.InfoContext(ctx, "audit event logged",
		slog.String("event_id", event.ID),
		slog.String("request_id", event.RequestID),
		slog.String("order_id", event.OrderID),
		slog.String("reason", event.Reason),
		slog.Bool("committed", event.Committed),
	)
	return nil
}

// Sync flushes the file to stable storage.
func (a *FileLogger) Sync() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Sync()
}

// Close closes the underlying file.
func (a *FileLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// Nop discards events.
type Nop struct{}

func (Nop) Log(context.Context, Event) error { return nil }

var (
	_ Logger = (*FileLogger)(nil)
	_ Logger = Nop{}
)
