package judge

import (
	"fmt"
	"sort"
	"strings"
)

const textInstructions = `You are a digital forensics analyst. Assess the evidence text for threats
such as phishing, fraud, extortion, malware delivery or social engineering.
Answer with a single JSON object and nothing else:
{"threat_level":"none|low|medium|high","confidence":0.0-1.0,"indicators":["snake_case_signal"],"reasoning":"one or two sentences"}`

const mediaInstructions = `You are a digital forensics analyst. Assess the described media artifact for
signs of manipulation (deepfake, splicing, metadata tampering, synthetic generation).
Answer with a single JSON object and nothing else:
{"manipulation_detected":true|false,"confidence":0.0-1.0,"indicators":["snake_case_signal"],"reasoning":"one or two sentences"}`

// BuildMessages returns the system and user messages for a request.
func BuildMessages(req Request) (system, user string, err error) {
	switch req.Task {
	case TaskText:
		system = textInstructions
	case TaskMedia:
		system = mediaInstructions
	default:
		return "", "", fmt.Errorf("%w: %q", ErrUnsupportedTask, req.Task)
	}

	var b strings.Builder
	if len(req.Metadata) > 0 {
		keys := make([]string, 0, len(req.Metadata))
		for k := range req.Metadata {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("[METADATA]\n")
		for _, k := range keys {
			fmt.Fprintf(&b, "%s: %s\n", k, req.Metadata[k])
		}
	}
	b.WriteString("[EVIDENCE]\n")
	b.WriteString(req.Content)
	return system, b.String(), nil
}
