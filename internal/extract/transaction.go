package extract

import (
	"context"
	"fmt"

	"github.com/straja-ai/triage/internal/evidence"
	"github.com/straja-ai/triage/internal/reputation"
)

// TransactionExtractor scores amount and frequency patterns and checks
// counterparty addresses against the blacklist.
type TransactionExtractor struct {
	addresses           reputation.AddressReputation
	launderingAmount    float64
	launderingFrequency int
	largeAmount         float64
}

func (e *TransactionExtractor) Category() string { return CategoryTransaction }

func (e *TransactionExtractor) Extract(ctx context.Context, in evidence.AnalysisInput) (Outcome, error) {
	p, err := evidence.PayloadAs[evidence.TransactionPayload](in)
	if err != nil {
		return Outcome{}, err
	}

	conf := baseline
	var indicators []string
	switch {
	case p.Amount > e.launderingAmount && p.Frequency > e.launderingFrequency:
		indicators = append(indicators, "money_laundering")
		conf += 0.4
	case p.Amount > e.largeAmount:
		indicators = append(indicators, "large_transaction")
		conf += 0.2
	default:
		indicators = append(indicators, "normal_transaction")
		conf += 0.1
	}

	flagged, err := e.addresses.Flagged(ctx, p.Addresses)
	if err != nil {
		return Outcome{}, fmt.Errorf("address reputation: %w", err)
	}
	if len(flagged) > 0 {
		indicators = append(indicators, "blacklisted_address")
		conf += 0.4
	} else {
		indicators = append(indicators, "clean_addresses")
		conf += 0.1
	}

	return Votes(CategoryTransaction, conf, indicators...), nil
}
