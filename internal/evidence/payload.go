package evidence

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Payload is the kind-specific body of an input. The set of variants is
// closed: only types in this package implement it.
type Payload interface {
	payloadKind() Kind
}

// FilePayload describes a file artifact.
type FilePayload struct {
	Name    string `json:"name"`
	Content []byte `json:"content,omitempty"`
}

// TextPayload is free text (messages, documents, transcripts).
type TextPayload struct {
	Text string `json:"text"`
}

// Connection is one observed network flow.
type Connection struct {
	IP       string `json:"ip"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol,omitempty"`
}

// NetworkPayload summarizes network activity.
type NetworkPayload struct {
	Connections   []Connection `json:"connections"`
	TrafficVolume int64        `json:"trafficVolume"`
}

// TransactionPayload summarizes financial activity.
type TransactionPayload struct {
	Amount    float64  `json:"amount"`
	Frequency int      `json:"frequency"`
	Addresses []string `json:"addresses,omitempty"`
}

// MediaPayload references an image, audio, or video artifact.
type MediaPayload struct {
	Name      string `json:"name,omitempty"`
	MediaType string `json:"mediaType,omitempty"`
	URL       string `json:"url,omitempty"`
	Content   []byte `json:"content,omitempty"`
}

// GenericPayload carries anything without a dedicated extractor.
type GenericPayload struct {
	Raw json.RawMessage `json:"raw,omitempty"`
}

func (FilePayload) payloadKind() Kind        { return KindFile }
func (TextPayload) payloadKind() Kind        { return KindText }
func (NetworkPayload) payloadKind() Kind     { return KindNetwork }
func (TransactionPayload) payloadKind() Kind { return KindTransaction }
func (MediaPayload) payloadKind() Kind       { return KindMedia }
func (GenericPayload) payloadKind() Kind     { return KindGeneric }

// PayloadAs returns the payload of in as T, or ErrPayloadMismatch.
func PayloadAs[T Payload](in AnalysisInput) (T, error) {
	var zero T
	p, ok := in.Payload.(T)
	if !ok {
		return zero, fmt.Errorf("%w: kind %q carries %T", ErrPayloadMismatch, in.Kind, in.Payload)
	}
	return p, nil
}

type wireInput struct {
	ID       string          `json:"id,omitempty"`
	Kind     Kind            `json:"kind"`
	Payload  json.RawMessage `json:"payload,omitempty"`
	Metadata *Metadata       `json:"metadata,omitempty"`
}

// MarshalJSON encodes the input as {"id","kind","payload","metadata"}.
func (in AnalysisInput) MarshalJSON() ([]byte, error) {
	w := wireInput{ID: in.ID, Kind: in.Kind, Metadata: in.Metadata}
	if g, ok := in.Payload.(GenericPayload); ok {
		w.Payload = g.Raw
	} else if in.Payload != nil {
		raw, err := json.Marshal(in.Payload)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		w.Payload = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the payload according to kind. Unknown kinds keep
// their kind string and get a GenericPayload holding the raw payload.
func (in *AnalysisInput) UnmarshalJSON(data []byte) error {
	var w wireInput
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	kind := Kind(strings.ToLower(strings.TrimSpace(string(w.Kind))))
	if kind == "" {
		return fmt.Errorf("input missing kind")
	}

	var (
		payload Payload
		err     error
	)
	switch kind {
	case KindFile:
		payload, err = decodePayload[FilePayload](w.Payload)
	case KindText:
		payload, err = decodePayload[TextPayload](w.Payload)
	case KindNetwork:
		payload, err = decodePayload[NetworkPayload](w.Payload)
	case KindTransaction:
		payload, err = decodePayload[TransactionPayload](w.Payload)
	case KindMedia:
		payload, err = decodePayload[MediaPayload](w.Payload)
	default:
		payload = GenericPayload{Raw: w.Payload}
	}
	if err != nil {
		return fmt.Errorf("decode %s payload: %w", kind, err)
	}

	*in = AnalysisInput{ID: w.ID, Kind: kind, Payload: payload, Metadata: w.Metadata}
	return nil
}

func decodePayload[T Payload](raw json.RawMessage) (T, error) {
	var p T
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return p, err
	}
	return p, nil
}
