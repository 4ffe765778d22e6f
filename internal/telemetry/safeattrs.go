package telemetry

import (
	"sort"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"

	"github.com/straja-ai/triage/internal/evidence"
)

const (
	maxAttrString = 256
	maxAttrSlice  = 16
)

// sensitiveKeys are substrings of field names that never reach a span:
// evidence bodies, secrets, and counterparty identifiers.
var sensitiveKeys = []string{
	"payload",
	"content",
	"text",
	"raw",
	"authorization",
	"api_key",
	"token",
	"address",
	"url",
	"email",
	"iban",
}

// InputAttributes describes in for a span. Fields are collected from the
// metadata and the payload, then anything sensitive is dropped.
func InputAttributes(in evidence.AnalysisInput) []attribute.KeyValue {
	return filterAttributes(inputFields(in))
}

func inputFields(in evidence.AnalysisInput) map[string]any {
	f := map[string]any{
		"triage.kind":     string(in.Kind),
		"triage.input_id": in.ID,
	}
	if md := in.Metadata; md != nil {
		if md.Source != "" {
			f["triage.source"] = md.Source
		}
		if md.FileType != "" {
			f["triage.file_type"] = md.FileType
		}
		if md.Size > 0 {
			f["triage.size"] = md.Size
		}
		if md.Hash != "" {
			f["triage.hash"] = md.Hash
		}
	}

	switch p := in.Payload.(type) {
	case evidence.FilePayload:
		f["triage.file.name"] = p.Name
		f["triage.file.bytes"] = len(p.Content)
	case evidence.TextPayload:
		f["triage.chars"] = utf8.RuneCountInString(p.Text)
	case evidence.NetworkPayload:
		ports := make([]int, 0, len(p.Connections))
		for _, c := range p.Connections {
			ports = append(ports, c.Port)
		}
		f["triage.network.connections"] = len(p.Connections)
		f["triage.network.ports"] = ports
		f["triage.network.traffic_volume"] = p.TrafficVolume
	case evidence.TransactionPayload:
		f["triage.transaction.amount"] = p.Amount
		f["triage.transaction.frequency"] = p.Frequency
		f["triage.transaction.addresses"] = p.Addresses
	case evidence.MediaPayload:
		f["triage.media.type"] = p.MediaType
		f["triage.media.url"] = p.URL
		f["triage.media.bytes"] = len(p.Content)
	case evidence.GenericPayload:
		f["triage.generic.raw"] = string(p.Raw)
	}
	return f
}

func sensitive(key string) bool {
	lk := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lk, s) {
			return true
		}
	}
	return false
}

// filterAttributes converts fields to span attributes in key order, skipping
// sensitive keys, oversized strings, and unsupported types. Slices are
// capped.
func filterAttributes(fields map[string]any) []attribute.KeyValue {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		if !sensitive(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, k := range keys {
		switch v := fields[k].(type) {
		case string:
			if v == "" || len(v) > maxAttrString {
				continue
			}
			attrs = append(attrs, attribute.String(k, v))
		case bool:
			attrs = append(attrs, attribute.Bool(k, v))
		case int:
			attrs = append(attrs, attribute.Int(k, v))
		case int64:
			attrs = append(attrs, attribute.Int64(k, v))
		case float64:
			attrs = append(attrs, attribute.Float64(k, v))
		case []string:
			attrs = append(attrs, attribute.StringSlice(k, capSlice(v)))
		case []int:
			attrs = append(attrs, attribute.IntSlice(k, capSlice(v)))
		}
	}
	return attrs
}

func capSlice[T any](s []T) []T {
	if len(s) > maxAttrSlice {
		return s[:maxAttrSlice]
	}
	return s
}
