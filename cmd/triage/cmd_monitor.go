package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/straja-ai/triage/internal/evidence"
	"github.com/straja-ai/triage/internal/monitor"
)

var (
	monitorInterval time.Duration
	monitorCount    int
	monitorSeed     int64
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Classify synthetic network activity on an interval and print each result",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		rt, err := buildRuntime(ctx, cfg)
		if err != nil {
			return err
		}
		defer rt.Close(context.Background())

		interval := cfg.Monitor.Interval()
		if cmd.Flags().Changed("interval") {
			interval = monitorInterval
		}
		seed := cfg.Monitor.Seed
		if cmd.Flags().Changed("seed") {
			seed = monitorSeed
		}
		src, err := monitor.NewSource(cfg.Monitor.Source, seed)
		if err != nil {
			return err
		}

		mon := monitor.New(rt.engine, src, interval, monitor.WithMetrics(rt.metrics))
		return runMonitor(ctx, mon, monitorCount, cmd.OutOrStdout())
	},
}

func init() {
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", monitor.DefaultInterval, "Time between classifications")
	monitorCmd.Flags().IntVar(&monitorCount, "count", 0, "Stop after this many results (0 runs until interrupted)")
	monitorCmd.Flags().Int64Var(&monitorSeed, "seed", 0, "Seed for the synthetic source")
}

// runMonitor prints results as JSON lines until ctx ends or count results
// have been printed.
func runMonitor(ctx context.Context, mon *monitor.Monitor, count int, w io.Writer) error {
	enc := json.NewEncoder(w)
	reached := make(chan struct{})
	var (
		once    sync.Once
		printed int
	)

	err := mon.Start(ctx, func(r evidence.AnalysisResult) {
		if count > 0 && printed >= count {
			return
		}
		_ = enc.Encode(r)
		printed++
		if count > 0 && printed >= count {
			once.Do(func() { close(reached) })
		}
	})
	if err != nil {
		return fmt.Errorf("start monitor: %w", err)
	}

	select {
	case <-ctx.Done():
	case <-reached:
	case <-mon.Done():
	}
	mon.Stop()
	return nil
}
