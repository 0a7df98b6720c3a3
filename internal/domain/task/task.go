// Package task defines the Task domain entity.
package task

import (
	"encoding/json"
	"math"
	"slices"
	"time"
)

// Type is the kind of work a task asks for.
type Type string

const (
	TypeCode     Type = "code"
	TypeResearch Type = "research"
	TypeAnalysis Type = "analysis"
	TypeGeneral  Type = "general"
)

// Types lists every valid task type.
var Types = []Type{TypeCode, TypeResearch, TypeAnalysis, TypeGeneral}

// Valid reports whether t is one of the known task types.
func (t Type) Valid() bool { return slices.Contains(Types, t) }

// Status represents the current state of a task.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// StatusUnknown is reported for task IDs that no record exists for.
// It is never persisted.
const StatusUnknown Status = "unknown"

// Statuses lists every persisted status in the order the store scans them.
var Statuses = []Status{StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCancelled}

// Valid reports whether s is a persistable status.
func (s Status) Valid() bool { return slices.Contains(Statuses, s) }

// IsTerminal reports whether no further transitions are allowed from s.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// Priority is advisory metadata; it never preempts running work.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return p == PriorityLow || p == PriorityNormal || p == PriorityHigh
}

// OutputFormat is the representation the caller wants the result in.
type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputFile OutputFormat = "file"
)

// Valid reports whether f is a known output format.
func (f OutputFormat) Valid() bool {
	return f == OutputText || f == OutputJSON || f == OutputFile
}

// Request is the caller-supplied description of a task. It is immutable
// once accepted.
type Request struct {
	Type           Type         `json:"type"`
	Description    string       `json:"description"`
	Files          []string     `json:"files"`
	Context        *string      `json:"context"`
	Constraints    []string     `json:"constraints"`
	OutputFormat   OutputFormat `json:"output_format"`
	Priority       Priority     `json:"priority"`
	Callback       *string      `json:"callback"`
	TimeoutSeconds *float64     `json:"timeout_seconds"`
}

// MaxTimeoutSeconds is the largest timeout_seconds that fits a time.Duration.
const MaxTimeoutSeconds = float64(math.MaxInt64 / int64(time.Second))

// Timeout returns the per-request timeout, or fallback when none was given.
// Values beyond MaxTimeoutSeconds are clamped.
func (r *Request) Timeout(fallback time.Duration) time.Duration {
	if r.TimeoutSeconds == nil || !(*r.TimeoutSeconds > 0) {
		return fallback
	}
	if *r.TimeoutSeconds >= MaxTimeoutSeconds {
		return time.Duration(MaxTimeoutSeconds) * time.Second
	}
	return time.Duration(*r.TimeoutSeconds * float64(time.Second))
}

// Result holds the output of a finished task. Exactly one is attached to a
// record when it reaches completed or failed.
type Result struct {
	TaskID          string          `json:"task_id"`
	Status          Status          `json:"status"`
	Result          json.RawMessage `json:"result"`
	FilesCreated    []string        `json:"files_created"`
	Summary         string          `json:"summary,omitempty"`
	TokenUsage      *int            `json:"token_usage"`
	DurationSeconds float64         `json:"duration_seconds"`
	Error           string          `json:"error,omitempty"`
}

// Tokens returns the reported token usage, or zero when unknown.
func (r *Result) Tokens() int {
	if r == nil || r.TokenUsage == nil {
		return 0
	}
	return *r.TokenUsage
}

// Record ties a request to its lifecycle metadata. It is the unit of
// persistence.
type Record struct {
	ID           string     `json:"task_id"`
	Request      Request    `json:"request"`
	Status       Status     `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	StartedAt    *time.Time `json:"started_at"`
	CompletedAt  *time.Time `json:"completed_at"`
	Progress     *int       `json:"progress"`
	Result       *Result    `json:"result"`
	Error        string     `json:"error,omitempty"`
	RequesterDID string     `json:"requester_did,omitempty"`
}

// Clone returns a deep copy of the record so it can be persisted or handed
// to callers without sharing mutable state.
func (r *Record) Clone() Record {
	out := *r
	out.Request.Files = slices.Clone(r.Request.Files)
	out.Request.Constraints = slices.Clone(r.Request.Constraints)
	if r.StartedAt != nil {
		t := *r.StartedAt
		out.StartedAt = &t
	}
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	if r.Progress != nil {
		p := *r.Progress
		out.Progress = &p
	}
	if r.Result != nil {
		res := *r.Result
		res.Result = slices.Clone(r.Result.Result)
		res.FilesCreated = slices.Clone(r.Result.FilesCreated)
		if r.Result.TokenUsage != nil {
			n := *r.Result.TokenUsage
			res.TokenUsage = &n
		}
		out.Result = &res
	}
	return out
}

// Now returns the current time truncated to UTC, the form every record
// timestamp is stored in.
func Now() time.Time { return time.Now().UTC() }
