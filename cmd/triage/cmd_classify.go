package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/straja-ai/triage/internal/evidence"
	"github.com/straja-ai/triage/internal/server"
)

var classifyFile string

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify inputs from a JSON file (single object or array)",
	Long: `Reads one input object, or an array of them, and prints the result
(or the batch result with its summary) as JSON. Use -f - to read stdin.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if classifyFile == "" {
			return errors.New("-f is required")
		}
		var r io.Reader = cmd.InOrStdin()
		if classifyFile != "-" {
			f, err := os.Open(classifyFile)
			if err != nil {
				return fmt.Errorf("open inputs: %w", err)
			}
			defer f.Close()
			r = f
		}

		rt, err := buildRuntime(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer rt.Close(context.Background())

		return classifyInputs(cmd.Context(), rt.engine, r, cmd.OutOrStdout())
	},
}

func init() {
	classifyCmd.Flags().StringVarP(&classifyFile, "file", "f", "", "Path to inputs JSON, or - for stdin")
}

// classifyInputs decodes one input or an array of inputs from r and writes
// the matching result JSON to w.
func classifyInputs(ctx context.Context, c server.Classifier, r io.Reader, w io.Writer) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read inputs: %w", err)
	}
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return errors.New("no inputs")
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	if data[0] == '[' {
		var inputs []evidence.AnalysisInput
		if err := json.Unmarshal(data, &inputs); err != nil {
			return fmt.Errorf("decode inputs: %w", err)
		}
		for i := range inputs {
			if inputs[i].ID == "" {
				inputs[i].ID = uuid.NewString()
			}
		}
		return enc.Encode(c.ClassifyBatch(ctx, inputs))
	}

	var in evidence.AnalysisInput
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("decode input: %w", err)
	}
	if in.ID == "" {
		in.ID = uuid.NewString()
	}
	return enc.Encode(c.Classify(ctx, in))
}
