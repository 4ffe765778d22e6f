package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/straja-ai/triage/internal/evidence"
	"github.com/straja-ai/triage/internal/monitor"
)

var (
	benchN    int
	benchSeed int64
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Classify a batch of synthetic inputs and report throughput and latency",
	RunE: func(cmd *cobra.Command, _ []string) error {
		rt, err := buildRuntime(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer rt.Close(context.Background())

		return runBench(cmd.Context(), rt.engine, monitor.NewSyntheticNetworkSource(benchSeed), benchN, cmd.OutOrStdout())
	},
}

func init() {
	benchCmd.Flags().IntVarP(&benchN, "inputs", "n", 1000, "Number of inputs")
	benchCmd.Flags().Int64Var(&benchSeed, "seed", 1, "Seed for the synthetic source")
}

type batchClassifier interface {
	ClassifyBatch(ctx context.Context, inputs []evidence.AnalysisInput) evidence.BatchResult
}

func runBench(ctx context.Context, c batchClassifier, src monitor.Source, n int, w io.Writer) error {
	if n <= 0 {
		n = 1
	}
	inputs := make([]evidence.AnalysisInput, 0, n)
	for len(inputs) < n {
		in, err := src.Next(ctx)
		if err != nil {
			return fmt.Errorf("generate inputs: %w", err)
		}
		inputs = append(inputs, in)
	}

	start := time.Now()
	res := c.ClassifyBatch(ctx, inputs)
	elapsed := time.Since(start)

	latencies := make([]float64, 0, len(res.Results))
	var total float64
	for _, r := range res.Results {
		latencies = append(latencies, r.ProcessingTimeMs)
		total += r.ProcessingTimeMs
	}
	sort.Float64s(latencies)

	avg := total / float64(len(latencies))
	p50 := latencies[len(latencies)/2]
	p95 := latencies[int(float64(len(latencies)-1)*0.95)]
	throughput := float64(len(latencies)) / elapsed.Seconds()

	_, err := fmt.Fprintf(w, "bench: n=%d wall_ms=%.2f per_sec=%.0f avg_ms=%.3f p50_ms=%.3f p95_ms=%.3f safe=%d suspicious=%d malicious=%d\n",
		len(latencies),
		float64(elapsed.Microseconds())/1000,
		throughput,
		avg,
		p50,
		p95,
		res.Summary.Positive,
		res.Summary.Suspicious,
		res.Summary.Negative,
	)
	return err
}
