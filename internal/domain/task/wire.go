package task

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/hexswarm/hexswarm/internal/domain"
)

// ToWire converts the request into the loosely typed map used by the
// submission schema.
func (r *Request) ToWire() map[string]any {
	m := map[string]any{
		"type":          string(r.Type),
		"description":   r.Description,
		"files":         stringsOrEmpty(r.Files),
		"constraints":   stringsOrEmpty(r.Constraints),
		"output_format": string(r.OutputFormat),
		"priority":      string(r.Priority),
	}
	if r.Context != nil {
		m["context"] = *r.Context
	}
	if r.Callback != nil {
		m["callback"] = *r.Callback
	}
	if r.TimeoutSeconds != nil {
		m["timeout_seconds"] = *r.TimeoutSeconds
	}
	return m
}

// RequestFromWire parses a submission map. Optional fields fall back to
// their defaults (text output, normal priority). The returned request is
// validated.
func RequestFromWire(m map[string]any) (Request, error) {
	var r Request
	var err error

	if r.Type, err = enumField(m, "type", Type("")); err != nil {
		return Request{}, err
	}
	if r.Description, err = stringField(m, "description"); err != nil {
		return Request{}, err
	}
	if r.Files, err = stringListField(m, "files"); err != nil {
		return Request{}, err
	}
	if r.Constraints, err = stringListField(m, "constraints"); err != nil {
		return Request{}, err
	}
	if r.Context, err = optionalStringField(m, "context"); err != nil {
		return Request{}, err
	}
	if r.Callback, err = optionalStringField(m, "callback"); err != nil {
		return Request{}, err
	}
	if r.OutputFormat, err = enumField(m, "output_format", OutputText); err != nil {
		return Request{}, err
	}
	if r.Priority, err = enumField(m, "priority", PriorityNormal); err != nil {
		return Request{}, err
	}
	if r.TimeoutSeconds, err = optionalNumberField(m, "timeout_seconds"); err != nil {
		return Request{}, err
	}

	if err := r.Validate(); err != nil {
		return Request{}, err
	}
	return r, nil
}

// Validate checks the request against the submission schema.
func (r *Request) Validate() error {
	if !r.Type.Valid() {
		return fmt.Errorf("%w: invalid task type %q", domain.ErrValidation, r.Type)
	}
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("%w: description is required", domain.ErrValidation)
	}
	if !r.OutputFormat.Valid() {
		return fmt.Errorf("%w: invalid output_format %q", domain.ErrValidation, r.OutputFormat)
	}
	if !r.Priority.Valid() {
		return fmt.Errorf("%w: invalid priority %q", domain.ErrValidation, r.Priority)
	}
	if ts := r.TimeoutSeconds; ts != nil && (math.IsNaN(*ts) || *ts < 0 || *ts > MaxTimeoutSeconds) {
		return fmt.Errorf("%w: timeout_seconds must be between 0 and %.0f", domain.ErrValidation, MaxTimeoutSeconds)
	}
	return nil
}

func stringsOrEmpty(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

func enumField[T ~string](m map[string]any, key string, fallback T) (T, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return fallback, nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", domain.ErrValidation, key)
	}
	return T(s), nil
}

func stringField(m map[string]any, key string) (string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", domain.ErrValidation, key)
	}
	return s, nil
}

func optionalStringField(m map[string]any, key string) (*string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	s, ok := v.(string)
	if !ok {
		return nil, fmt.Errorf("%w: %s must be a string", domain.ErrValidation, key)
	}
	return &s, nil
}

func stringListField(m map[string]any, key string) ([]string, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return []string{}, nil
	}
	switch list := v.(type) {
	case []string:
		return append([]string{}, list...), nil
	case []any:
		out := make([]string, 0, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s[%d] must be a string", domain.ErrValidation, key, i)
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s must be a list of strings", domain.ErrValidation, key)
	}
}

func optionalNumberField(m map[string]any, key string) (*float64, error) {
	v, ok := m[key]
	if !ok || v == nil {
		return nil, nil
	}
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be a number", domain.ErrValidation, key)
		}
		f = parsed
	default:
		return nil, fmt.Errorf("%w: %s must be a number", domain.ErrValidation, key)
	}
	return &f, nil
}
