// Package ledgerstore defines persistence for the agent resource ledger.
package ledgerstore

import (
	"context"

	"github.com/hexswarm/hexswarm/internal/domain/resource"
)

// Store loads and saves the whole ledger. There is no partial update; every
// Save replaces the previous ledger.
type Store interface {
	// Load returns the saved ledger, or an empty one if none exists.
	Load(ctx context.Context) (resource.Ledger, error)
	Save(ctx context.Context, l resource.Ledger) error
}
