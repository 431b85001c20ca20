package transfer

import (
	"context"
	"errors"
	"sync"

	"golang.org/x/sync/errgroup"

	"custodia/internal/inventory"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
)

// Mismatch is one disagreement between the mirror and the ledger. The mirror
// is never silently corrected: mismatches surface to an operator.
type Mismatch struct {
	Product       *inventory.Product `json:"product"`
	MirrorOwner   string             `json:"mirrorOwner"`
	LedgerOwner   string             `json:"ledgerOwner"`
	MirrorAnchors int                `json:"mirrorAnchors"`
	LedgerAnchors int                `json:"ledgerAnchors"`
}

const reconcileConcurrency = 8

// Reconcile compares every mirrored product against the ledger's token
// state. It only reads; a non-empty result carries CodeLedgerMismatch so
// callers treat it as fatal rather than recoverable.
func (s *Service) Reconcile(ctx context.Context) ([]Mismatch, error) {
	products, err := s.products.ListProducts(ctx, inventory.Filter{})
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "list products", err)
	}

	var (
		mu         sync.Mutex
		mismatches []Mismatch
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(reconcileConcurrency)
	for _, product := range products {
		g.Go(func() error {
			state, err := s.ledger.TokenState(ctx, product.Token)
			if err != nil {
				if dErrors.HasCode(err, dErrors.CodeNotFound) {
					mu.Lock()
					mismatches = append(mismatches, Mismatch{
						Product:       product,
						MirrorOwner:   product.CustodianID.String(),
						MirrorAnchors: len(product.History) + 1,
					})
					mu.Unlock()
					return nil
				}
				return err
			}

			mirrorOwner, err := s.orgs.Get(ctx, product.CustodianID)
			if err != nil {
				return err
			}
			// One mint anchor, one per custody event, one for the
			// terminal verification.
			mirrorAnchors := len(product.History) + 1
			if product.Verified {
				mirrorAnchors++
			}
			if state.Owner != mirrorOwner.Address || len(state.Anchors) != mirrorAnchors {
				mu.Lock()
				mismatches = append(mismatches, Mismatch{
					Product:       product,
					MirrorOwner:   mirrorOwner.Address.String(),
					LedgerOwner:   state.Owner.String(),
					MirrorAnchors: mirrorAnchors,
					LedgerAnchors: len(state.Anchors),
				})
				mu.Unlock()
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "reconcile", err)
	}
	if len(mismatches) > 0 {
		s.metrics.LedgerMismatches.Add(float64(len(mismatches)))
		return mismatches, dErrors.New(dErrors.CodeLedgerMismatch, "mirror and ledger disagree")
	}
	return nil, nil
}

func translateStore(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "product not found")
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.New(dErrors.CodeInvalidState, "record is already in its terminal state")
	default:
		return dErrors.Wrap(dErrors.CodeInternal, "storage", err)
	}
}
