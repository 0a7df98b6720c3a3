// Package secrets holds credentials forwarded to executor subprocesses, with
// hot reload support.
package secrets

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Loader retrieves secrets from a source (env vars, a dotenv file, ...).
type Loader func() (map[string]string, error)

// Vault holds secret values in memory and supports atomic reloading.
type Vault struct {
	mu     sync.RWMutex
	values map[string]string
	loader Loader
}

// NewVault creates a Vault, calling the loader once to populate initial values.
func NewVault(loader Loader) (*Vault, error) {
	vals, err := loader()
	if err != nil {
		return nil, fmt.Errorf("initial secret load: %w", err)
	}
	return &Vault{
		values: vals,
		loader: loader,
	}, nil
}

// Get returns the secret for key, or an empty string if not found.
func (v *Vault) Get(key string) string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.values[key]
}

// Environ returns the secrets as sorted KEY=VALUE pairs, ready to append to
// a command's environment. A nil Vault has no secrets.
func (v *Vault) Environ() []string {
	if v == nil {
		return nil
	}
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]string, 0, len(v.values))
	for _, k := range slices.Sorted(maps.Keys(v.values)) {
		out = append(out, k+"="+v.values[k])
	}
	return out
}

// Keys returns the names of the loaded secrets, sorted. Values are never
// logged; the names are.
func (v *Vault) Keys() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return slices.Sorted(maps.Keys(v.values))
}

// Reload calls the loader and swaps in the new values atomically.
// If the loader returns an error, existing values are preserved.
func (v *Vault) Reload() error {
	newVals, err := v.loader()
	if err != nil {
		return fmt.Errorf("reload secrets: %w", err)
	}
	v.mu.Lock()
	v.values = newVals
	v.mu.Unlock()
	return nil
}
