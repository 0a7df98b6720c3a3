package task

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/hexswarm/hexswarm/internal/domain"
)

func strPtr(s string) *string { return &s }

func TestRequestWireRoundTrip(t *testing.T) {
	timeout := 5.0
	tests := []struct {
		name string
		req  Request
	}{
		{
			name: "all fields",
			req: Request{
				Type:           TypeCode,
				Description:    "test",
				Files:          []string{"a", "b"},
				Context:        strPtr("ctx"),
				Constraints:    []string{"c1"},
				OutputFormat:   OutputJSON,
				Priority:       PriorityHigh,
				Callback:       strPtr("cb"),
				TimeoutSeconds: &timeout,
			},
		},
		{
			name: "minimal",
			req: Request{
				Type:         TypeGeneral,
				Description:  "demo",
				Files:        []string{},
				Constraints:  []string{},
				OutputFormat: OutputText,
				Priority:     PriorityNormal,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RequestFromWire(tt.req.ToWire())
			if err != nil {
				t.Fatalf("RequestFromWire: %v", err)
			}
			if !reflect.DeepEqual(got, tt.req) {
				t.Fatalf("round trip mismatch:\n got  %+v\n want %+v", got, tt.req)
			}
		})
	}
}

func TestRequestFromWireThroughJSON(t *testing.T) {
	// Maps decoded from JSON carry []any and float64 values.
	raw := `{"type":"research","description":"find it","files":["x.go"],"timeout_seconds":30}`
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		t.Fatal(err)
	}

	req, err := RequestFromWire(m)
	if err != nil {
		t.Fatalf("RequestFromWire: %v", err)
	}
	if req.Type != TypeResearch {
		t.Errorf("type = %q, want research", req.Type)
	}
	if len(req.Files) != 1 || req.Files[0] != "x.go" {
		t.Errorf("files = %v", req.Files)
	}
	if req.OutputFormat != OutputText || req.Priority != PriorityNormal {
		t.Errorf("defaults not applied: %q %q", req.OutputFormat, req.Priority)
	}
	if got := req.Timeout(time.Minute); got != 30*time.Second {
		t.Errorf("timeout = %v, want 30s", got)
	}
}

func TestRequestFromWireRejects(t *testing.T) {
	tests := []struct {
		name string
		in   map[string]any
	}{
		{"missing type", map[string]any{"description": "x"}},
		{"bad type", map[string]any{"type": "poetry", "description": "x"}},
		{"missing description", map[string]any{"type": "code"}},
		{"blank description", map[string]any{"type": "code", "description": "   "}},
		{"bad priority", map[string]any{"type": "code", "description": "x", "priority": "urgent"}},
		{"bad format", map[string]any{"type": "code", "description": "x", "output_format": "xml"}},
		{"files not list", map[string]any{"type": "code", "description": "x", "files": "a.go"}},
		{"file not string", map[string]any{"type": "code", "description": "x", "files": []any{1}}},
		{"timeout not number", map[string]any{"type": "code", "description": "x", "timeout_seconds": "10"}},
		{"negative timeout", map[string]any{"type": "code", "description": "x", "timeout_seconds": -1.0}},
		{"timeout overflows duration", map[string]any{"type": "code", "description": "x", "timeout_seconds": 1e12}},
		{"infinite timeout", map[string]any{"type": "code", "description": "x", "timeout_seconds": math.Inf(1)}},
		{"nan timeout", map[string]any{"type": "code", "description": "x", "timeout_seconds": math.NaN()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RequestFromWire(tt.in)
			if !errors.Is(err, domain.ErrValidation) {
				t.Fatalf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestRequestTimeout(t *testing.T) {
	fallback := 30 * time.Second
	secs := func(f float64) *float64 { return &f }
	tests := []struct {
		name string
		in   *float64
		want time.Duration
	}{
		{"unset", nil, fallback},
		{"zero", secs(0), fallback},
		{"fractional", secs(1.5), 1500 * time.Millisecond},
		{"largest accepted", secs(MaxTimeoutSeconds), time.Duration(MaxTimeoutSeconds) * time.Second},
		{"beyond range clamps", secs(1e12), time.Duration(MaxTimeoutSeconds) * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Request{TimeoutSeconds: tt.in}
			got := r.Timeout(fallback)
			if got != tt.want {
				t.Fatalf("Timeout = %v, want %v", got, tt.want)
			}
			if got <= 0 {
				t.Fatalf("Timeout = %v, must be positive", got)
			}
		})
	}

	req, err := RequestFromWire(map[string]any{"type": "code", "description": "x", "timeout_seconds": MaxTimeoutSeconds})
	if err != nil {
		t.Fatalf("largest timeout rejected: %v", err)
	}
	if req.Timeout(fallback) <= 0 {
		t.Fatalf("largest timeout overflowed: %v", req.Timeout(fallback))
	}
}

func TestStatusIsTerminal(t *testing.T) {
	tests := map[Status]bool{
		StatusPending:   false,
		StatusRunning:   false,
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
		StatusUnknown:   false,
	}
	for s, want := range tests {
		if got := s.IsTerminal(); got != want {
			t.Errorf("%s.IsTerminal() = %v, want %v", s, got, want)
		}
	}
}

func TestRecordCloneIsDeep(t *testing.T) {
	started := Now()
	tokens := 10
	rec := Record{
		ID:        "task_1",
		Request:   Request{Type: TypeCode, Description: "x", Files: []string{"a"}},
		Status:    StatusCompleted,
		StartedAt: &started,
		Result:    &Result{TaskID: "task_1", Result: json.RawMessage(`"ok"`), TokenUsage: &tokens},
	}

	c := rec.Clone()
	c.Request.Files[0] = "changed"
	*c.StartedAt = started.Add(time.Hour)
	*c.Result.TokenUsage = 99

	if rec.Request.Files[0] != "a" {
		t.Error("files slice shared with clone")
	}
	if !rec.StartedAt.Equal(started) {
		t.Error("started_at shared with clone")
	}
	if rec.Result.Tokens() != 10 {
		t.Error("token usage shared with clone")
	}
}

func TestRecordJSONShape(t *testing.T) {
	rec := Record{
		ID:        "task_abc",
		Request:   Request{Type: TypeGeneral, Description: "demo", OutputFormat: OutputText, Priority: PriorityNormal},
		Status:    StatusPending,
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatal(err)
	}

	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m["task_id"] != "task_abc" {
		t.Errorf("task_id = %v", m["task_id"])
	}
	if m["status"] != "pending" {
		t.Errorf("status = %v", m["status"])
	}
	if m["created_at"] != "2026-01-02T03:04:05Z" {
		t.Errorf("created_at = %v", m["created_at"])
	}
	req, ok := m["request"].(map[string]any)
	if !ok || req["type"] != "general" {
		t.Errorf("request = %v", m["request"])
	}
}
