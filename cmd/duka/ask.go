package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/duka/internal/pipeline"
)

var (
	askMessage string
	askNow     string
	askReply   bool
	askVerbose bool
)

var askCmd = &cobra.Command{
	Use:   "ask",
	Short: "Run one message through the assistant and print the trace",
	Long: `Run a single message through the pipeline in-process and print the
trace as JSON on stdout. Stage errors are reported on stderr.

Examples:
  duka ask -m "Wedding guest, midi, under $120 — I'm between M/L. ETA to 560001?"
  duka ask -m "Cancel order A1003 — email mira@example.com." --now 2025-09-07T12:35:00Z
  duka ask -m "Can you give me a discount code that doesn't exist?" --reply`,
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askMessage, "message", "m", "", "message to send (required)")
	askCmd.Flags().StringVar(&askNow, "now", "", "reference time, RFC 3339 (default: clock.current_time or now)")
	askCmd.Flags().BoolVar(&askReply, "reply", false, "print only the reply text")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "debug logging")

	_ = askCmd.MarkFlagRequired("message")
}

func runAsk(cmd *cobra.Command, _ []string) error {
	level := slog.LevelWarn
	if askVerbose {
		level = slog.LevelDebug
	}
	logger := newLogger(false, level)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	req := pipeline.Request{Message: askMessage}
	if askNow != "" {
		now, err := time.Parse(time.RFC3339, askNow)
		if err != nil {
			return fmt.Errorf("--now must be an RFC 3339 timestamp: %w", err)
		}
		req.Now = now.UTC()
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 2*time.Minute)
	defer cancel()

	sc, err := initShared(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	res := sc.Pipeline.Run(ctx, req)
	for _, e := range res.Errors {
		fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", e.Stage, e.Kind, e.Message)
	}

	if askReply {
		fmt.Println(res.Trace.FinalMessage)
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(res.Trace)
}
