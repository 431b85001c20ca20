// Package attestation issues Merkle membership proofs: a manufacturer can
// hand a downstream party evidence that a product was minted inside a given
// batch without revealing the batch's other members.
package attestation

import (
	"context"
	"errors"
	"log/slog"

	"custodia/internal/audit"
	"custodia/internal/inventory"
	"custodia/internal/platform/metrics"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/keyedlock"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/requestcontext"
)

type Service struct {
	products inventory.Store
	proofs   Store
	locks    *keyedlock.Mutex
	audit    *audit.Publisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

func NewService(products inventory.Store, proofs Store, locks *keyedlock.Mutex, publisher *audit.Publisher, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{products: products, proofs: proofs, locks: locks, audit: publisher, logger: logger, metrics: m}
}

// GenerateProof builds the membership proof for one batched product. Only
// the batch's manufacturer may call it, and only once per product: the
// proofGenerated flag flips after the record is durably saved, never before.
func (s *Service) GenerateProof(ctx context.Context, caller id.OrgID, pid id.ProductID) (*Record, error) {
	s.locks.Lock(pid.String())
	defer s.locks.Unlock(pid.String())

	product, err := s.products.FindProduct(ctx, pid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "product not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "find product", err)
	}
	if !product.Batched() {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "product is not part of a batch")
	}
	if product.ManufacturerID != caller {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the batch manufacturer can attest membership")
	}
	if product.ProofGenerated {
		return nil, dErrors.New(dErrors.CodeInvalidState, "proof already generated for this product")
	}

	batch, err := s.products.FindBatch(ctx, product.BatchID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "find batch", err)
	}

	leaves := make([][]byte, len(batch.MemberIDs))
	index := -1
	for i, member := range batch.MemberIDs {
		leaves[i] = LeafHash(member, batch.ID)
		if member == pid {
			index = i
		}
	}
	if index < 0 {
		return nil, dErrors.New(dErrors.CodeInternal, "product missing from its batch membership")
	}

	record := &Record{
		ProductID: pid,
		BatchID:   batch.ID,
		Proof:     NewTree(leaves).ProofFor(index),
		CreatedAt: requestcontext.Now(ctx),
	}
	if err := s.proofs.Save(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeInvalidState, "proof already generated for this product")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "save proof record", err)
	}
	if err := s.products.SetProofGenerated(ctx, pid); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.New(dErrors.CodeInvalidState, "proof already generated for this product")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "mark proof generated", err)
	}

	s.metrics.ProofsGenerated.Inc()
	s.audit.Emit(ctx, audit.Event{
		Kind:      audit.KindProofGenerated,
		ActorID:   caller.String(),
		ProductID: pid.String(),
		BatchID:   batch.ID.String(),
	})
	s.logger.InfoContext(ctx, "membership proof generated",
		"product", pid.String(), "batch", batch.ID.String())
	return record, nil
}

// GetProof returns the stored record for a product.
func (s *Service) GetProof(ctx context.Context, pid id.ProductID) (*Record, error) {
	record, err := s.proofs.Find(ctx, pid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "no proof for this product")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "find proof", err)
	}
	return record, nil
}

// VerifyMembership checks a proof against a claimed (product, batch) pair.
// It needs no store access beyond the hashes inside the proof itself.
func VerifyMembership(productID id.ProductID, batchID id.BatchID, proof Proof) bool {
	return VerifyProof(LeafHash(productID, batchID), proof)
}
