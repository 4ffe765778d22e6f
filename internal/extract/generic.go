package extract

import (
	"context"

	"github.com/straja-ai/triage/internal/evidence"
)

// GenericExtractor handles kinds without a dedicated extractor. Its single
// indicator has no polarity, so the decision engine reports insufficient
// data.
type GenericExtractor struct{}

func (GenericExtractor) Category() string { return CategoryGeneric }

func (GenericExtractor) Extract(context.Context, evidence.AnalysisInput) (Outcome, error) {
	return Votes(CategoryGeneric, 0.3, "unknown_input_type"), nil
}
