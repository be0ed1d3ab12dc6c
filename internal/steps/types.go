package steps

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// Step is one loosely-typed workflow action prior to compilation. Service
// and Operation together select the required-parameter schema; Parameters
// may hold concrete values, template references to other steps' outputs, or
// placeholders that still need to be collected.
type Step struct {
	Action     string                 `json:"action"`
	Service    string                 `json:"service"`
	Operation  string                 `json:"operation"`
	Parameters map[string]interface{} `json:"parameters"`
}

// FieldSpec describes one required parameter of a (service, operation) pair.
type FieldSpec struct {
	ID       string `json:"id"`
	Question string `json:"question"`
	Type     string `json:"type"`
	Required bool   `json:"required"`
}

// MissingInfo is one outstanding question: which step, and which fields.
type MissingInfo struct {
	StepIndex       int         `json:"step_index"`
	StepDescription string      `json:"step_description"`
	Fields          []FieldSpec `json:"fields"`
}

// Collected maps step index to the parameter values gathered for that step.
// Transports deliver the outer keys as strings; ParseCollected normalizes.
type Collected map[int]map[string]interface{}

// ParseCollected normalizes a raw collected-parameter payload whose step
// indices may arrive as JSON strings. Entries with non-numeric keys are
// dropped.
func ParseCollected(raw map[string]map[string]interface{}) Collected {
	out := make(Collected, len(raw))
	for key, fields := range raw {
		idx, err := strconv.Atoi(key)
		if err != nil {
			continue
		}
		out[idx] = fields
	}
	return out
}

// DecodeSteps parses a step list that storage may hold as a JSON array, a
// JSON-encoded string, or a {"raw_text": "..."} wrapper.
func DecodeSteps(raw json.RawMessage) ([]Step, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	var list []Step
	if err := json.Unmarshal(raw, &list); err == nil {
		return list, nil
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if err := json.Unmarshal([]byte(s), &list); err != nil {
			return nil, fmt.Errorf("decode steps from string: %w", err)
		}
		return list, nil
	}

	var wrapper struct {
		RawText string `json:"raw_text"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.RawText != "" {
		if err := json.Unmarshal([]byte(wrapper.RawText), &list); err != nil {
			return nil, fmt.Errorf("decode steps from raw_text: %w", err)
		}
		return list, nil
	}

	return nil, fmt.Errorf("unrecognized steps encoding")
}

// Valid reports whether a step is well-formed enough to keep: it must name
// a service and an operation. Used when the model rewrites the step list.
func (s Step) Valid() bool {
	return s.Service != "" && s.Operation != ""
}

// Clone returns a deep copy of the step list so enrichment never mutates
// its input.
func Clone(list []Step) []Step {
	out := make([]Step, len(list))
	for i, s := range list {
		params := make(map[string]interface{}, len(s.Parameters))
		for k, v := range s.Parameters {
			params[k] = v
		}
		s.Parameters = params
		out[i] = s
	}
	return out
}
