package audit

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestFileLogger_AppendsJSONL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "audit.jsonl")
	l, err := NewFileLogger(path, discardLogger())
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Log(context.Background(), Event{OrderID: "A1003", Reason: "allowed", CancelAllowed: true}); err != nil {
				t.Errorf("Log: %v", err)
			}
		}()
	}
	wg.Wait()
	if err := l.Sync(); err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	ids := map[string]bool{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("line %q: %v", sc.Text(), err)
		}
		if ev.ID == "" || ev.Timestamp.IsZero() {
			t.Errorf("event missing id or timestamp: %+v", ev)
		}
		if strings.Contains(sc.Text(), "@") {
			t.Errorf("audit line carries an email: %s", sc.Text())
		}
		ids[ev.ID] = true
	}
	if len(ids) != 10 {
		t.Errorf("got %d distinct events, want 10", len(ids))
	}
}

func TestNop(t *testing.T) {
	if err := (Nop{}).Log(context.Background(), Event{}); err != nil {
		t.Fatal(err)
	}
}
