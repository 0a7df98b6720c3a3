// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNotFound indicates the requested entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrValidation indicates a malformed request that was rejected before any state was created.
var ErrValidation = errors.New("validation failed")

// ErrBusy indicates the storage layer could not acquire a task lock in time.
// Callers may retry the operation.
var ErrBusy = errors.New("storage busy")

// ErrTerminal indicates an operation was attempted on a task that already
// reached a terminal state.
var ErrTerminal = errors.New("task already terminal")
