package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/fpang/video-screen/internal/app"
	"github.com/fpang/video-screen/internal/lock"
	"github.com/fpang/video-screen/internal/mcpserver"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the screen_video tool over the Model Context Protocol (stdio)",
	Long: `mcp runs a Model Context Protocol server on stdin/stdout. Agents call the
screen_video tool with {"video_path": "...", "sensitivity": 0.3} and receive the
session counts, unsafe frames and report path. Logs go to stderr.`,
	Args: cobra.NoArgs,
	Run:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) {
	start := time.Now()
	cfg := loadConfig(cmd)

	instance, err := lock.Acquire(cfg.LockPort)
	if err != nil {
		log.Fatal().Err(err).Int("port", cfg.LockPort).Msg("Cannot start MCP server")
	}
	defer instance.Release()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stdout carries the protocol.
	a, err := app.New(ctx, cfg, app.WithMetricsOutput(os.Stderr))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize")
	}
	defer a.Close()

	logStartup("mcp", a, time.Since(start))

	if err := mcpserver.Run(ctx, mcpserver.New(a.Screener, version)); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("MCP server stopped")
	}
}
