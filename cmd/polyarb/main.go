package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/polyarb/config"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run holds every deferred cleanup, so it returns an exit code instead of
// calling os.Exit itself.
func run(args []string) int {
	fs := flag.NewFlagSet("polyarb", flag.ContinueOnError)
	configPath := fs.String("config", "config/config.yaml", "path to config file")
	once := fs.Bool("once", false, "run one scan cycle per sport and exit")
	dryRun := fs.Bool("dry-run", false, "paper trading: real market data, simulated venue")
	verbose := fs.Bool("verbose", false, "set log level to debug")
	logFormat := fs.String("format", "", "log format: text|json (overrides config)")
	report := fs.Bool("report", false, "print ledger, positions and daily history, then exit")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		return 1
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *report {
		if err := runReport(ctx, cfg, *dryRun); err != nil {
			slog.Error("report failed", "err", err)
			return 1
		}
		return 0
	}

	slog.Info("polyarb starting",
		"config", *configPath,
		"sports", len(cfg.Sports),
		"dry_run", *dryRun,
		"once", *once,
		"fair_value", cfg.FairValueEnabled(),
		"structural", cfg.StructuralEnabled(),
		"sizing", cfg.Risk.Sizing,
	)

	app, err := build(ctx, cfg, *dryRun)
	if err != nil {
		slog.Error("failed to start", "err", err)
		return 1
	}
	defer app.Close()

	if *once {
		results, err := app.runner.RunOnce(ctx)
		for _, r := range results {
			slog.Info("cycle result",
				"sport", r.Sport,
				"markets", r.Markets,
				"opportunities", len(r.Opportunities),
				"placed", r.Placed,
				"took", r.Duration.Round(time.Millisecond),
			)
		}
		if err != nil {
			slog.Error("cycle failed", "err", err)
			return 1
		}
		return 0
	}

	if err := app.runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("runner exited with error", "err", err)
		return 1
	}

	l := app.risk.Snapshot()
	slog.Info("polyarb stopped cleanly",
		"bankroll", fmt.Sprintf("$%.2f", l.Bankroll),
		"open_positions", len(app.risk.OpenPositions()),
	)
	return 0
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
