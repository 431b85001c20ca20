package partnership

import (
	"context"
	"time"

	id "custodia/pkg/domain"
)

// Store persists partnerships. CreateIfNoneActive must enforce the
// one-active-per-pair invariant atomically; UpdateStatus must apply the
// pending->terminal transition atomically so a double-accept race cannot
// produce two terminal states.
type Store interface {
	// CreateIfNoneActive inserts p unless a pending or accepted partnership
	// already covers the unordered pair, in which case it returns
	// sentinel.ErrConflict.
	CreateIfNoneActive(ctx context.Context, p *Partnership) error
	FindByID(ctx context.Context, pid id.PartnershipID) (*Partnership, error)
	// UpdateStatus transitions from pending to status. Returns
	// sentinel.ErrInvalidState if the partnership is no longer pending.
	UpdateStatus(ctx context.Context, pid id.PartnershipID, status Status, respondedAt time.Time) error
	// FindActive returns the pending or accepted partnership covering the
	// unordered pair, or sentinel.ErrNotFound.
	FindActive(ctx context.Context, a, b id.OrgID) (*Partnership, error)
	ListForOrg(ctx context.Context, orgID id.OrgID) ([]*Partnership, error)
}
