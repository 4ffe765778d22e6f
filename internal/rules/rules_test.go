package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	tables := Default()

	assert.Equal(t, Negative, tables.Polarity("malware_detected"))
	assert.Equal(t, Negative, tables.Polarity("money_laundering"))
	assert.Equal(t, Suspicious, tables.Polarity("high_volume_traffic"))
	assert.Equal(t, Positive, tables.Polarity("verified_source"))
	assert.Equal(t, Unclassified, tables.Polarity("unknown_input_type"))
	assert.Equal(t, Positive, tables.Polarity("  Normal_Traffic "))

	th := tables.Thresholds()
	assert.Equal(t, 0.85, th.High)
	assert.Equal(t, 0.65, th.Medium)
	assert.Equal(t, 0.45, th.Low)

	bands := tables.JudgmentBands()
	assert.Equal(t, 0.8, bands.MediaNegative)
	assert.Equal(t, 0.4, bands.MediaSuspicious)
}

func TestNewRejectsOverlap(t *testing.T) {
	_, err := New(File{
		Positive: []string{"a"},
		Negative: []string{"a"},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "both")
}

func TestNewRejectsEmptyCatalog(t *testing.T) {
	_, err := New(File{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}

func TestNewRejectsUnorderedThresholds(t *testing.T) {
	_, err := New(File{
		Positive:   []string{"a"},
		Thresholds: &Thresholds{High: 0.5, Medium: 0.6, Low: 0.4},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "thresholds")
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rules.yaml")
	data := []byte(`positive: [ok_signal]
negative: [bad_signal]
suspicious: [odd_signal]
thresholds:
  high: 0.9
  medium: 0.7
  low: 0.5
judgment_bands:
  media_negative: 0.75
  media_suspicious: 0.3
`)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	tables, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, Negative, tables.Polarity("bad_signal"))
	assert.Equal(t, Unclassified, tables.Polarity("malware_detected"))
	assert.Equal(t, Thresholds{High: 0.9, Medium: 0.7, Low: 0.5}, tables.Thresholds())
	assert.Equal(t, JudgmentBands{MediaNegative: 0.75, MediaSuspicious: 0.3}, tables.JudgmentBands())
	assert.Equal(t, []string{"odd_signal"}, tables.Names(Suspicious))
}

func TestLoadMissingFileIsConfigError(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestWithOverrides(t *testing.T) {
	base := Default()

	same, err := base.WithOverrides(Thresholds{}, JudgmentBands{})
	require.NoError(t, err)
	assert.Equal(t, base.Thresholds(), same.Thresholds())

	tuned, err := base.WithOverrides(Thresholds{High: 0.95, Medium: 0.7, Low: 0.5}, JudgmentBands{})
	require.NoError(t, err)
	assert.Equal(t, 0.95, tuned.Thresholds().High)
	assert.Equal(t, 0.85, base.Thresholds().High, "base must stay untouched")

	_, err = base.WithOverrides(Thresholds{High: 0.2, Medium: 0.7, Low: 0.5}, JudgmentBands{})
	require.Error(t, err)
}
