// Package inventory is the authoritative mirror of every product and batch,
// their current custodian, and their lifecycle state. Records are append-only:
// custody history grows, flags go one way, and nothing is ever deleted —
// the ledger anchors behind them are immutable.
package inventory

import (
	"time"

	id "custodia/pkg/domain"
)

// CustodyEvent is one entry in a product's custody history.
type CustodyEvent struct {
	FromOrg   id.OrgID   `json:"fromOrg"`
	ToOrg     id.OrgID   `json:"toOrg"`
	From      id.Address `json:"from"`
	To        id.Address `json:"to"`
	Location  string     `json:"location"`
	Timestamp time.Time  `json:"timestamp"`
	AnchorID  string     `json:"anchorId"`
}

// Product is the atomic unit of custody.
//
// Only the transfer coordinator appends custody, only the attestation
// service sets ProofGenerated, and only the verification gate sets
// VerifiedByCustomer. VerifiedByCustomer is terminal: once true, no further
// custody change is permitted.
type Product struct {
	ID              id.ProductID   `json:"id"`
	Token           uint64         `json:"token"`
	BatchID         id.BatchID     `json:"batchId,omitempty"`
	BatchToken      uint64         `json:"batchToken,omitempty"`
	PositionInBatch int            `json:"positionInBatch,omitempty"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	ManufactureDate string         `json:"manufactureDate"`
	ManufacturerID  id.OrgID       `json:"manufacturerId"`
	CustodianID     id.OrgID       `json:"custodianId"`
	History         []CustodyEvent `json:"history"`
	ProofGenerated  bool           `json:"proofGenerated"`
	Verified        bool           `json:"verifiedByCustomer"`
	MintAnchorID    string         `json:"mintAnchorId"`
	VerifyAnchorID  string         `json:"verifyAnchorId,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
}

// Batched reports whether the product belongs to a batch.
func (p *Product) Batched() bool { return !p.BatchID.IsNil() }

// Batch is a manufacturer-minted group of products anchored together.
// Membership is immutable after mint; member count equals declared quantity.
type Batch struct {
	ID             id.BatchID     `json:"id"`
	Token          uint64         `json:"nftTokenId"`
	MetadataURI    string         `json:"metadataURI"`
	Quantity       int            `json:"quantity"`
	ManufacturerID id.OrgID       `json:"manufacturerId"`
	MemberIDs      []id.ProductID `json:"memberIds"`
	AnchorID       string         `json:"anchorId"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// ProductSpec is the metadata template for a product to be created.
type ProductSpec struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	ManufactureDate string `json:"manufactureDate"`
}

// Filter narrows product listings. Zero fields match everything.
type Filter struct {
	OwnedBy    id.OrgID
	SentBy     id.OrgID // appears as FromOrg in custody history
	ReceivedBy id.OrgID // appears as ToOrg in custody history
	BatchID    id.BatchID
}
