package org

import (
	"context"

	id "custodia/pkg/domain"
)

// Store persists organizations. Implementations return sentinel errors;
// the service translates them into domain errors.
type Store interface {
	Create(ctx context.Context, org *Organization) error
	FindByID(ctx context.Context, orgID id.OrgID) (*Organization, error)
	FindByEmail(ctx context.Context, email string) (*Organization, error)
	FindByAddress(ctx context.Context, addr id.Address) (*Organization, error)
	List(ctx context.Context) ([]*Organization, error)
}
