package judge

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

const textSchema = `{
  "type": "object",
  "required": ["threat_level", "confidence", "reasoning"],
  "properties": {
    "threat_level": {"type": "string", "enum": ["none", "low", "medium", "high", "NONE", "LOW", "MEDIUM", "HIGH"]},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "indicators": {"type": "array", "items": {"type": "string"}},
    "reasoning": {"type": "string"}
  }
}`

const mediaSchema = `{
  "type": "object",
  "required": ["manipulation_detected", "confidence", "reasoning"],
  "properties": {
    "manipulation_detected": {"type": "boolean"},
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "indicators": {"type": "array", "items": {"type": "string"}},
    "reasoning": {"type": "string"}
  }
}`

var (
	textValidator  = mustSchema(textSchema)
	mediaValidator = mustSchema(mediaSchema)
)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("judge: invalid built-in schema: %v", err))
	}
	return schema
}

// ParseJudgment extracts the JSON object from a model completion, validates
// it against the task schema and decodes it.
func ParseJudgment(task Task, completion string) (*Judgment, error) {
	raw := extractJSONObject(completion)
	if raw == "" {
		return nil, fmt.Errorf("%w: completion contains no JSON object", ErrInvalidJudgment)
	}

	var validator *gojsonschema.Schema
	switch task {
	case TaskText:
		validator = textValidator
	case TaskMedia:
		validator = mediaValidator
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTask, task)
	}

	result, err := validator.Validate(gojsonschema.NewStringLoader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidJudgment, err)
	}
	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}
		return nil, fmt.Errorf("%w: %s", ErrInvalidJudgment, strings.Join(problems, "; "))
	}

	var j Judgment
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	if err := dec.Decode(&j); err != nil {
		return nil, fmt.Errorf("%w: decode: %v", ErrInvalidJudgment, err)
	}
	return Normalize(task, &j)
}

// extractJSONObject returns the outermost {...} span, tolerating markdown
// fences and chatter around it.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
