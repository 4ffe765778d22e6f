// Package rules holds the read-only indicator catalogs and confidence
// thresholds shared by every analysis. A Tables value is built once at
// startup and never mutated, so it is safe for concurrent use without locks.
package rules

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Polarity classifies an indicator name.
type Polarity string

const (
	Positive     Polarity = "positive"
	Negative     Polarity = "negative"
	Suspicious   Polarity = "suspicious"
	Unclassified Polarity = "unclassified"
)

// Thresholds are the three confidence cutoffs used by the decision engine
// and the escalation trigger.
type Thresholds struct {
	High   float64 `yaml:"high" json:"high"`
	Medium float64 `yaml:"medium" json:"medium"`
	Low    float64 `yaml:"low" json:"low"`
}

// JudgmentBands map an AI manipulation judgment onto flags for media input.
type JudgmentBands struct {
	MediaNegative   float64 `yaml:"media_negative" json:"media_negative"`
	MediaSuspicious float64 `yaml:"media_suspicious" json:"media_suspicious"`
}

// DefaultThresholds returns high=0.85, medium=0.65, low=0.45.
func DefaultThresholds() Thresholds {
	return Thresholds{High: 0.85, Medium: 0.65, Low: 0.45}
}

// DefaultJudgmentBands returns the 0.8 / 0.4 media cutoffs.
func DefaultJudgmentBands() JudgmentBands {
	return JudgmentBands{MediaNegative: 0.8, MediaSuspicious: 0.4}
}

// File is the on-disk shape of a rule file.
type File struct {
	Positive      []string       `yaml:"positive"`
	Negative      []string       `yaml:"negative"`
	Suspicious    []string       `yaml:"suspicious"`
	Thresholds    *Thresholds    `yaml:"thresholds"`
	JudgmentBands *JudgmentBands `yaml:"judgment_bands"`
}

// Tables is the immutable indicator catalog.
type Tables struct {
	polarity   map[string]Polarity
	thresholds Thresholds
	bands      JudgmentBands
}

// Default returns the built-in catalog.
func Default() *Tables {
	t, err := New(File{
		Positive: []string{
			"verified_source",
			"safe_filetype",
			"normal_network_pattern",
			"normal_traffic",
			"normal_transaction",
			"clean_addresses",
			"authentic_media",
		},
		Negative: []string{
			"malware_detected",
			"botnet_activity",
			"money_laundering",
			"blacklisted_address",
			"phishing_content",
			"manipulated_media",
		},
		Suspicious: []string{
			"suspicious_filetype",
			"unverified_source",
			"anomalous_pattern",
			"high_volume_traffic",
			"large_transaction",
		},
	})
	if err != nil {
		panic(fmt.Sprintf("rules: built-in catalog invalid: %v", err))
	}
	return t
}

// New validates f and builds a Tables. Missing thresholds or bands fall back
// to the defaults.
func New(f File) (*Tables, error) {
	th := DefaultThresholds()
	if f.Thresholds != nil {
		th = *f.Thresholds
	}
	bands := DefaultJudgmentBands()
	if f.JudgmentBands != nil {
		bands = *f.JudgmentBands
	}
	if err := th.Validate(); err != nil {
		return nil, err
	}
	if err := bands.Validate(); err != nil {
		return nil, err
	}

	if len(f.Positive)+len(f.Negative)+len(f.Suspicious) == 0 {
		return nil, errors.New("rules: catalog is empty")
	}

	polarity := make(map[string]Polarity, len(f.Positive)+len(f.Negative)+len(f.Suspicious))
	add := func(names []string, p Polarity) error {
		for _, raw := range names {
			name := normalize(raw)
			if name == "" {
				return fmt.Errorf("rules: empty indicator name in %s list", p)
			}
			if prev, ok := polarity[name]; ok && prev != p {
				return fmt.Errorf("rules: indicator %q listed as both %s and %s", name, prev, p)
			}
			polarity[name] = p
		}
		return nil
	}
	if err := add(f.Positive, Positive); err != nil {
		return nil, err
	}
	if err := add(f.Negative, Negative); err != nil {
		return nil, err
	}
	if err := add(f.Suspicious, Suspicious); err != nil {
		return nil, err
	}

	return &Tables{polarity: polarity, thresholds: th, bands: bands}, nil
}

// Load reads a YAML rule file. Any failure is a configuration error.
func Load(path string) (*Tables, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("rules: path is empty")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("rules: read %s: %w", path, err)
	}
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("rules: decode %s: %w", path, err)
	}
	t, err := New(f)
	if err != nil {
		return nil, fmt.Errorf("%w (file %s)", err, path)
	}
	return t, nil
}

// WithOverrides returns a copy of t with thresholds and bands replaced when
// the overrides are non-zero.
func (t *Tables) WithOverrides(th Thresholds, bands JudgmentBands) (*Tables, error) {
	out := &Tables{polarity: t.polarity, thresholds: t.thresholds, bands: t.bands}
	if th != (Thresholds{}) {
		if err := th.Validate(); err != nil {
			return nil, err
		}
		out.thresholds = th
	}
	if bands != (JudgmentBands{}) {
		if err := bands.Validate(); err != nil {
			return nil, err
		}
		out.bands = bands
	}
	return out, nil
}

// Polarity returns the polarity of an indicator, Unclassified if unknown.
func (t *Tables) Polarity(indicator string) Polarity {
	if p, ok := t.polarity[normalize(indicator)]; ok {
		return p
	}
	return Unclassified
}

// Thresholds returns the confidence cutoffs.
func (t *Tables) Thresholds() Thresholds { return t.thresholds }

// JudgmentBands returns the media judgment cutoffs.
func (t *Tables) JudgmentBands() JudgmentBands { return t.bands }

// Names returns the sorted indicator names for a polarity.
func (t *Tables) Names(p Polarity) []string {
	var out []string
	for name, got := range t.polarity {
		if got == p {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// Validate checks 0 < low < medium < high <= 1.
func (th Thresholds) Validate() error {
	if !(th.Low > 0 && th.Low < th.Medium && th.Medium < th.High && th.High <= 1) {
		return fmt.Errorf("rules: thresholds must satisfy 0 < low < medium < high <= 1, got low=%.2f medium=%.2f high=%.2f", th.Low, th.Medium, th.High)
	}
	return nil
}

// Validate checks 0 <= suspicious < negative <= 1.
func (b JudgmentBands) Validate() error {
	if !(b.MediaSuspicious >= 0 && b.MediaSuspicious < b.MediaNegative && b.MediaNegative <= 1) {
		return fmt.Errorf("rules: judgment bands must satisfy 0 <= media_suspicious < media_negative <= 1, got %.2f / %.2f", b.MediaSuspicious, b.MediaNegative)
	}
	return nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
