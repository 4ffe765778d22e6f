package extract

import (
	"context"

	"github.com/straja-ai/triage/internal/evidence"
	"github.com/straja-ai/triage/internal/reputation"
)

// NetworkExtractor scores flow summaries. A connection is suspicious when its
// IP is on the suspicious list or it targets a privileged port.
type NetworkExtractor struct {
	ips               reputation.IPReputation
	byteThreshold     int64
	botnetConnections int
}

func (e *NetworkExtractor) Category() string { return CategoryNetwork }

func (e *NetworkExtractor) Extract(_ context.Context, in evidence.AnalysisInput) (Outcome, error) {
	p, err := evidence.PayloadAs[evidence.NetworkPayload](in)
	if err != nil {
		return Outcome{}, err
	}

	suspicious := 0
	for _, c := range p.Connections {
		if e.ips.Suspicious(c.IP) || c.Port < 1024 {
			suspicious++
		}
	}

	conf := baseline
	var indicators []string
	switch {
	case suspicious > e.botnetConnections:
		indicators = append(indicators, "botnet_activity")
		conf += 0.3
	case suspicious > 0:
		indicators = append(indicators, "anomalous_pattern")
		conf += 0.2
	default:
		indicators = append(indicators, "normal_network_pattern")
		conf += 0.1
	}

	if p.TrafficVolume > e.byteThreshold {
		indicators = append(indicators, "high_volume_traffic")
		conf += 0.2
	} else {
		indicators = append(indicators, "normal_traffic")
		conf += 0.1
	}

	return Votes(CategoryNetwork, conf, indicators...), nil
}
