// Package taskstore defines the durable task store port.
package taskstore

import (
	"context"

	"github.com/hexswarm/hexswarm/internal/domain/task"
)

// Outcome classifies an expected lookup result. True faults (unreadable or
// malformed files) are reported through the error return instead.
type Outcome uint8

const (
	Found Outcome = iota + 1
	NotFound
)

func (o Outcome) String() string {
	switch o {
	case Found:
		return "found"
	case NotFound:
		return "not_found"
	default:
		return "invalid"
	}
}

// Lookup is the result of loading a single task.
type Lookup struct {
	Outcome Outcome
	Record  task.Record
}

// Store maps task identifiers to records.
//
// Save returns an error wrapping domain.ErrBusy when the per-task lock
// could not be acquired within the configured retries; callers may retry.
type Store interface {
	// Save persists rec in the location for rec.Status, replacing any copy
	// held under a different status.
	Save(ctx context.Context, rec task.Record) error

	// Update loads the stored record under the task lock, applies fn to a
	// copy and persists it when fn returns true. Terminal records are
	// returned unchanged without calling fn. It returns the record now on
	// disk and whether fn changed it. An unknown task yields an error
	// wrapping domain.ErrNotFound.
	Update(ctx context.Context, id string, fn func(*task.Record) bool) (task.Record, bool, error)

	// Load finds a single task.
	Load(ctx context.Context, id string) (Lookup, error)

	// LoadAll returns every readable record. A non-nil error alongside a
	// non-nil map names records that could not be read.
	LoadAll(ctx context.Context) (map[string]task.Record, error)

	// ListByStatus returns every readable record with the given status,
	// with the same partial-failure semantics as LoadAll.
	ListByStatus(ctx context.Context, status task.Status) ([]task.Record, error)

	// Delete removes every copy of a task. Deleting an unknown task is not an error.
	Delete(ctx context.Context, id string) error
}
