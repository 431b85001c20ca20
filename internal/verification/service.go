// Package verification is the terminal gate of a product's life: a consumer
// verifies authenticity once, the fact is anchored, and custody can never
// move again. It also serves the unauthenticated public lookup.
package verification

import (
	"context"
	"errors"
	"log/slog"

	"custodia/internal/audit"
	"custodia/internal/inventory"
	"custodia/internal/ledger"
	"custodia/internal/platform/metrics"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/keyedlock"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/requestcontext"
)

// AddressBook resolves an organization's ledger address. Satisfied by
// org.Service.
type AddressBook interface {
	AddressOf(ctx context.Context, orgID id.OrgID) (id.Address, error)
}

type Service struct {
	products inventory.Store
	orgs     AddressBook
	ledger   *ledger.Submitter
	locks    *keyedlock.Mutex
	audit    *audit.Publisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewService(products inventory.Store, orgs AddressBook, submitter *ledger.Submitter, locks *keyedlock.Mutex, publisher *audit.Publisher, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{products: products, orgs: orgs, ledger: submitter, locks: locks, audit: publisher, logger: logger, metrics: m}
}

// VerifyAsCustomer records the terminal verification of a product. It is
// at-most-once: a second call fails InvalidState and leaves the record
// untouched. The mirror flag flips only after the ledger confirms the fact.
func (s *Service) VerifyAsCustomer(ctx context.Context, pid id.ProductID, signature string) (*inventory.Product, error) {
	if signature == "" {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "caller signature is required")
	}

	s.locks.Lock(pid.String())
	defer s.locks.Unlock(pid.String())

	product, err := s.products.FindProduct(ctx, pid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "product not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "find product", err)
	}
	if product.Verified {
		return nil, dErrors.New(dErrors.CodeInvalidState, "product already verified by a customer")
	}

	anchor, err := s.ledger.SubmitVerification(ctx, ledger.VerificationFact{
		IdempotencyKey: "verify|" + pid.String(),
		ProductToken:   product.Token,
		Signature:      signature,
		Timestamp:      requestcontext.Now(ctx),
	})
	if err != nil {
		return nil, err
	}

	if err := s.products.SetVerified(ctx, pid, anchor.ID); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.New(dErrors.CodeInvalidState, "product already verified by a customer")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "mark verified", err)
	}

	s.metrics.CustomerVerifications.Inc()
	s.audit.Emit(ctx, audit.Event{
		Kind:      audit.KindCustomerVerified,
		ProductID: pid.String(),
		AnchorID:  anchor.ID,
	})
	s.logger.InfoContext(ctx, "product verified by customer",
		"product", pid.String(), "anchor", anchor.ID)
	return s.products.FindProduct(ctx, pid)
}

// OnchainView is the ledger's side of a lookup.
type OnchainView struct {
	Owner        id.Address      `json:"owner"`
	Manufacturer id.Address      `json:"manufacturer"`
	Verified     bool            `json:"verified"`
	Anchors      []ledger.Anchor `json:"anchors"`
}

// LookupResult pairs the ledger view with the mirror view so a consumer can
// compare them.
type LookupResult struct {
	Onchain   OnchainView        `json:"onchain"`
	DB        *inventory.Product `json:"db"`
	Batch     *inventory.Batch   `json:"batch,omitempty"`
	Authentic bool               `json:"authentic"`
}

// Lookup is the public, unauthenticated read path. Authentic means the
// anchor chain originates at the recorded manufacturer and the ledger still
// names a non-zero owner.
func (s *Service) Lookup(ctx context.Context, pid id.ProductID) (*LookupResult, error) {
	product, err := s.products.FindProduct(ctx, pid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "product not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "find product", err)
	}

	state, err := s.ledger.TokenState(ctx, product.Token)
	if err != nil {
		return nil, err
	}
	manufacturerAddr, err := s.orgs.AddressOf(ctx, product.ManufacturerID)
	if err != nil {
		return nil, err
	}

	result := &LookupResult{
		Onchain: OnchainView{
			Owner:        state.Owner,
			Manufacturer: state.Manufacturer,
			Verified:     state.Verified,
			Anchors:      state.Anchors,
		},
		DB: product,
		Authentic: state.Manufacturer == manufacturerAddr &&
			!state.Owner.IsZero() && len(state.Anchors) > 0,
	}
	if product.Batched() {
		if result.Batch, err = s.products.FindBatch(ctx, product.BatchID); err != nil {
			return nil, dErrors.Wrap(dErrors.CodeInternal, "find batch", err)
		}
	}
	return result, nil
}
