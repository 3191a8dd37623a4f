package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	mcpgw "github.com/jkaninda/duka/internal/gateway/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the assistant and its tools over MCP (stdio)",
	RunE:  runMCP,
}

func runMCP(_ *cobra.Command, _ []string) error {
	// stdout carries the protocol; logs go to stderr.
	logger := newLogger(true, slog.LevelInfo)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sc, err := initShared(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer sc.Cleanup()

	var name string
	if cfg.Gateways.MCP != nil {
		name = cfg.Gateways.MCP.Name
	}
	srv, err := mcpgw.New(sc.Pipeline, name, version, logger)
	if err != nil {
		return err
	}
	return srv.Serve(ctx, os.Stdin, os.Stdout)
}
