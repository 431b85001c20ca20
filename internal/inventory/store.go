package inventory

import (
	"context"

	id "custodia/pkg/domain"
)

// CustodyUpdate pairs a product with the custody event to append and the new
// custodian. ApplyCustody applies a set of them atomically so batch
// transfers mutate the mirror all-or-nothing.
type CustodyUpdate struct {
	ProductID    id.ProductID
	Event        CustodyEvent
	NewCustodian id.OrgID
}

// Store persists the mirrored inventory. Implementations return sentinel
// errors; services translate. All multi-record writes are atomic.
type Store interface {
	// CreateProducts persists the set atomically.
	CreateProducts(ctx context.Context, products []*Product) error
	// CreateBatch persists the batch and all members atomically.
	CreateBatch(ctx context.Context, batch *Batch, members []*Product) error

	FindProduct(ctx context.Context, pid id.ProductID) (*Product, error)
	FindProductByToken(ctx context.Context, token uint64) (*Product, error)
	FindBatch(ctx context.Context, bid id.BatchID) (*Batch, error)
	ListProducts(ctx context.Context, filter Filter) ([]*Product, error)
	ListBatches(ctx context.Context, manufacturer id.OrgID) ([]*Batch, error)

	// ApplyCustody appends custody events and moves custodians atomically.
	ApplyCustody(ctx context.Context, updates []CustodyUpdate) error
	// SetProofGenerated flips the flag; sentinel.ErrInvalidState if already set.
	SetProofGenerated(ctx context.Context, pid id.ProductID) error
	// SetVerified marks the terminal flag; sentinel.ErrInvalidState if already set.
	SetVerified(ctx context.Context, pid id.ProductID, anchorID string) error
}
