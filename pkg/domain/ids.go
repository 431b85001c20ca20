// Package domain holds the typed identifiers and core value types shared
// across the custody protocol. Typed IDs prevent cross-entity assignment at
// compile time; construct them via the Parse helpers at trust boundaries.
package domain

import (
	"github.com/google/uuid"

	dErrors "custodia/pkg/domain-errors"
)

// OrgID identifies an organization.
type OrgID uuid.UUID

// ProductID identifies a product, the atomic unit of custody.
type ProductID uuid.UUID

// BatchID identifies a minted batch of products.
type BatchID uuid.UUID

// PartnershipID identifies a partnership agreement.
type PartnershipID uuid.UUID

func (id OrgID) String() string         { return uuid.UUID(id).String() }
func (id ProductID) String() string     { return uuid.UUID(id).String() }
func (id BatchID) String() string       { return uuid.UUID(id).String() }
func (id PartnershipID) String() string { return uuid.UUID(id).String() }

// Typed IDs are defined types over uuid.UUID and do not inherit its methods;
// the Text marshalers below keep their JSON form as the canonical string.

func (id OrgID) MarshalText() ([]byte, error)         { return []byte(id.String()), nil }
func (id ProductID) MarshalText() ([]byte, error)     { return []byte(id.String()), nil }
func (id BatchID) MarshalText() ([]byte, error)       { return []byte(id.String()), nil }
func (id PartnershipID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *OrgID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = OrgID(u)
	return nil
}

func (id *ProductID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = ProductID(u)
	return nil
}

func (id *BatchID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = BatchID(u)
	return nil
}

func (id *PartnershipID) UnmarshalText(b []byte) error {
	u, err := uuid.Parse(string(b))
	if err != nil {
		return err
	}
	*id = PartnershipID(u)
	return nil
}

func (id OrgID) IsNil() bool         { return uuid.UUID(id) == uuid.Nil }
func (id ProductID) IsNil() bool     { return uuid.UUID(id) == uuid.Nil }
func (id BatchID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id PartnershipID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }

// NewOrgID allocates a fresh organization id.
func NewOrgID() OrgID { return OrgID(uuid.New()) }

// NewProductID allocates a fresh product id.
func NewProductID() ProductID { return ProductID(uuid.New()) }

// NewBatchID allocates a fresh batch id.
func NewBatchID() BatchID { return BatchID(uuid.New()) }

// NewPartnershipID allocates a fresh partnership id.
func NewPartnershipID() PartnershipID { return PartnershipID(uuid.New()) }

func parseUUID(s, what string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidArgument, what+" id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidArgument, "invalid "+what+" id")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidArgument, what+" id cannot be nil")
	}
	return u, nil
}

// ParseOrgID validates external input into an OrgID.
func ParseOrgID(s string) (OrgID, error) {
	u, err := parseUUID(s, "organization")
	return OrgID(u), err
}

// ParseProductID validates external input into a ProductID.
func ParseProductID(s string) (ProductID, error) {
	u, err := parseUUID(s, "product")
	return ProductID(u), err
}

// ParseBatchID validates external input into a BatchID.
func ParseBatchID(s string) (BatchID, error) {
	u, err := parseUUID(s, "batch")
	return BatchID(u), err
}

// ParsePartnershipID validates external input into a PartnershipID.
func ParsePartnershipID(s string) (PartnershipID, error) {
	u, err := parseUUID(s, "partnership")
	return PartnershipID(u), err
}
