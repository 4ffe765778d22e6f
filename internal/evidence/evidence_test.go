package evidence

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	assert.Equal(t, 0.0, Clamp(-0.3))
	assert.Equal(t, 1.0, Clamp(1.4))
	assert.Equal(t, 0.5, Clamp(0.5))
	assert.Equal(t, 0.0, Clamp(math.NaN()))
}

func TestNewResultClampsConfidence(t *testing.T) {
	r := NewResult(FlagMalicious, 1.3, "x", "network_analysis", nil)
	assert.Equal(t, 1.0, r.Confidence)
	assert.NotEmpty(t, r.ID)
	assert.False(t, r.Timestamp.IsZero())
}

func TestErrorResult(t *testing.T) {
	r := ErrorResult(errors.New("boom"))
	assert.Equal(t, FlagSuspicious, r.Flag)
	assert.Equal(t, CategoryError, r.Category)
	assert.Less(t, r.Confidence, 0.5)
	assert.Contains(t, r.Reasoning, "boom")
}

func TestSummaryAdd(t *testing.T) {
	var s Summary
	for _, f := range []Flag{FlagSafe, FlagMalicious, FlagSuspicious, FlagSuspicious} {
		s.Add(f)
	}
	assert.Equal(t, Summary{Positive: 1, Negative: 1, Suspicious: 2, Total: 4}, s)
}

func TestUnmarshalDispatchesOnKind(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want AnalysisInput
	}{
		{
			name: "transaction",
			in:   `{"id":"t1","kind":"transaction","payload":{"amount":15000,"frequency":25,"addresses":["0xabc"]}}`,
			want: AnalysisInput{ID: "t1", Kind: KindTransaction, Payload: TransactionPayload{Amount: 15000, Frequency: 25, Addresses: []string{"0xabc"}}},
		},
		{
			name: "network",
			in:   `{"kind":"Network","payload":{"connections":[{"ip":"192.168.1.100","port":22}],"trafficVolume":2000000}}`,
			want: AnalysisInput{Kind: KindNetwork, Payload: NetworkPayload{Connections: []Connection{{IP: "192.168.1.100", Port: 22}}, TrafficVolume: 2000000}},
		},
		{
			name: "text with metadata",
			in:   `{"kind":"text","payload":{"text":"hello"},"metadata":{"source":"mail","hash":"abc"}}`,
			want: AnalysisInput{Kind: KindText, Payload: TextPayload{Text: "hello"}, Metadata: &Metadata{Source: "mail", Hash: "abc"}},
		},
		{
			name: "unknown kind keeps raw payload",
			in:   `{"kind":"unknown","payload":{"x":1}}`,
			want: AnalysisInput{Kind: Kind("unknown"), Payload: GenericPayload{Raw: json.RawMessage(`{"x":1}`)}},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var got AnalysisInput
			require.NoError(t, json.Unmarshal([]byte(tc.in), &got))
			if diff := cmp.Diff(tc.want, got); diff != "" {
				t.Errorf("decoded input mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUnmarshalRejectsMissingKind(t *testing.T) {
	var in AnalysisInput
	err := json.Unmarshal([]byte(`{"payload":{}}`), &in)
	require.Error(t, err)
}

func TestUnmarshalRejectsBadPayload(t *testing.T) {
	var in AnalysisInput
	err := json.Unmarshal([]byte(`{"kind":"transaction","payload":{"amount":"lots"}}`), &in)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transaction")
}

func TestMarshalRoundTripFile(t *testing.T) {
	in := AnalysisInput{
		ID:       "f1",
		Kind:     KindFile,
		Payload:  FilePayload{Name: "invoice.exe", Content: []byte("MZ")},
		Metadata: &Metadata{Hash: "deadbeef", Size: 2},
	}
	data, err := json.Marshal(in)
	require.NoError(t, err)

	var back AnalysisInput
	require.NoError(t, json.Unmarshal(data, &back))
	if diff := cmp.Diff(in, back); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestPayloadAs(t *testing.T) {
	in := AnalysisInput{Kind: KindFile, Payload: TextPayload{Text: "x"}}
	_, err := PayloadAs[FilePayload](in)
	require.ErrorIs(t, err, ErrPayloadMismatch)

	p, err := PayloadAs[TextPayload](in)
	require.NoError(t, err)
	assert.Equal(t, "x", p.Text)
}

func TestKindKnown(t *testing.T) {
	assert.True(t, KindMedia.Known())
	assert.False(t, Kind("unknown").Known())
}
