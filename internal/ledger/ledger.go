// Package ledger defines the anchor client contract: idempotent submission of
// custody-changing facts to an immutable external ledger, with eventual
// confirmation and deterministic ordering per item. The concrete chain is out
// of scope; Memory provides an in-process implementation honoring the same
// contract.
package ledger

import (
	"context"
	"errors"
	"time"

	id "custodia/pkg/domain"
)

// Errors returned by ledger clients. Services translate these into the
// domain taxonomy (ErrNotConfirmed -> ledger_timeout).
var (
	ErrNotConfirmed = errors.New("ledger: anchor not confirmed")
	ErrRejected     = errors.New("ledger: submission rejected")
	ErrUnknownToken = errors.New("ledger: unknown token")
)

// Anchor is a confirmed reference to a fact recorded on the ledger.
type Anchor struct {
	ID          string
	Sequence    uint64 // per-item ordering position
	ConfirmedAt time.Time
}

// CustodyFact records one custody change for a product token.
//
// IdempotencyKey must be stable across retries of the same logical change
// (productID|from|to|timestamp); resubmission with the same key returns the
// original anchor and never double-records.
type CustodyFact struct {
	IdempotencyKey string
	ProductToken   uint64
	From           id.Address
	To             id.Address
	Location       string
	Timestamp      time.Time
}

// MintFact records the creation of product tokens, optionally grouped under a
// batch token. Quantity tokens are allocated; for batch mints the whole group
// is anchored atomically under one anchor.
type MintFact struct {
	IdempotencyKey string
	Manufacturer   id.Address
	MetadataURI    string
	Quantity       int
	Batch          bool
}

// MintReceipt is returned for a confirmed mint.
type MintReceipt struct {
	Anchor        Anchor
	BatchToken    uint64   // 0 unless Batch; monotonic per manufacturer
	ProductTokens []uint64 // length == Quantity, globally unique
}

// VerificationFact records the terminal customer verification of a product.
type VerificationFact struct {
	IdempotencyKey string
	ProductToken   uint64
	Signature      string
	Timestamp      time.Time
}

// TokenState is the ledger's view of one product token, read by the public
// lookup path.
type TokenState struct {
	Owner        id.Address
	Manufacturer id.Address
	Verified     bool
	Anchors      []Anchor // complete anchor chain, oldest first
}

// Client is the anchor submission contract. Implementations must be
// idempotent per fact key, confirm eventually, and order anchors
// deterministically per item.
type Client interface {
	Mint(ctx context.Context, fact MintFact) (MintReceipt, error)
	SubmitCustody(ctx context.Context, fact CustodyFact) (Anchor, error)
	SubmitVerification(ctx context.Context, fact VerificationFact) (Anchor, error)
	TokenState(ctx context.Context, productToken uint64) (TokenState, error)
}
