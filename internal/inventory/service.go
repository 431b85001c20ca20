package inventory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"custodia/internal/ledger"
	"custodia/internal/platform/config"
	"custodia/internal/platform/metrics"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/requestcontext"
)

// AddressBook resolves an organization's ledger address. Satisfied by
// org.Service.
type AddressBook interface {
	AddressOf(ctx context.Context, orgID id.OrgID) (id.Address, error)
}

// Service owns product and batch creation. Only manufacturers mint; every
// mint is anchored before the mirror records anything.
type Service struct {
	store   Store
	ledger  *ledger.Submitter
	orgs    AddressBook
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewService(store Store, submitter *ledger.Submitter, orgs AddressBook, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, ledger: submitter, orgs: orgs, logger: logger, metrics: m}
}

// CreateInput describes one create call: a metadata template replicated
// Quantity times into independent products.
type CreateInput struct {
	Spec     ProductSpec
	Quantity int
}

// BatchInput describes one batch mint. When Quantity is zero the member
// count is len(Specs); when Specs holds a single template and Quantity > 1
// the template is replicated.
type BatchInput struct {
	MetadataURI string
	Specs       []ProductSpec
	Quantity    int
}

func (s *Service) requireManufacturer(role id.Role) error {
	if !role.CanMint() {
		return dErrors.New(dErrors.CodeForbidden, "only manufacturers can create products")
	}
	return nil
}

// CreateProducts mints Quantity independent products sharing the template's
// metadata. Quantity above the cap fails with InvalidArgument; zero or
// negative means one.
func (s *Service) CreateProducts(ctx context.Context, caller id.OrgID, role id.Role, in CreateInput) ([]*Product, error) {
	if err := s.requireManufacturer(role); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Spec.Name) == "" {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "product name is required")
	}
	qty := in.Quantity
	if qty <= 0 {
		qty = 1
	}
	if qty > config.MaxCreateQuantity {
		return nil, dErrors.New(dErrors.CodeInvalidArgument,
			fmt.Sprintf("quantity exceeds the per-call cap of %d", config.MaxCreateQuantity))
	}

	addr, err := s.orgs.AddressOf(ctx, caller)
	if err != nil {
		return nil, err
	}

	ids := make([]id.ProductID, qty)
	for i := range ids {
		ids[i] = id.NewProductID()
	}
	receipt, err := s.ledger.Mint(ctx, ledger.MintFact{
		IdempotencyKey: mintKey(ids[0]),
		Manufacturer:   addr,
		Quantity:       qty,
	})
	if err != nil {
		return nil, err
	}

	now := requestcontext.Now(ctx)
	products := make([]*Product, qty)
	for i := range products {
		products[i] = &Product{
			ID:              ids[i],
			Token:           receipt.ProductTokens[i],
			Name:            in.Spec.Name,
			Description:     in.Spec.Description,
			ManufactureDate: in.Spec.ManufactureDate,
			ManufacturerID:  caller,
			CustodianID:     caller,
			MintAnchorID:    receipt.Anchor.ID,
			CreatedAt:       now,
		}
	}
	if err := s.store.CreateProducts(ctx, products); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "persist products", err)
	}
	s.metrics.ProductsCreated.Add(float64(qty))
	s.logger.InfoContext(ctx, "products created",
		"manufacturer", caller.String(), "quantity", qty, "anchor", receipt.Anchor.ID)
	return products, nil
}

// CreateBatch mints a batch of products under one anchor. The batch record
// and all members persist together or not at all.
func (s *Service) CreateBatch(ctx context.Context, caller id.OrgID, role id.Role, in BatchInput) (*Batch, []*Product, error) {
	if err := s.requireManufacturer(role); err != nil {
		return nil, nil, err
	}
	specs, err := expandSpecs(in)
	if err != nil {
		return nil, nil, err
	}

	addr, err := s.orgs.AddressOf(ctx, caller)
	if err != nil {
		return nil, nil, err
	}

	now := requestcontext.Now(ctx)
	metadataURI := in.MetadataURI
	if metadataURI == "" {
		metadataURI = fmt.Sprintf("ipfs://batch-%d", now.Unix())
	}

	batchID := id.NewBatchID()
	receipt, err := s.ledger.Mint(ctx, ledger.MintFact{
		IdempotencyKey: batchMintKey(batchID),
		Manufacturer:   addr,
		MetadataURI:    metadataURI,
		Quantity:       len(specs),
		Batch:          true,
	})
	if err != nil {
		return nil, nil, err
	}

	batch := &Batch{
		ID:             batchID,
		Token:          receipt.BatchToken,
		MetadataURI:    metadataURI,
		Quantity:       len(specs),
		ManufacturerID: caller,
		AnchorID:       receipt.Anchor.ID,
		CreatedAt:      now,
	}
	members := make([]*Product, len(specs))
	for i, spec := range specs {
		pid := id.NewProductID()
		batch.MemberIDs = append(batch.MemberIDs, pid)
		members[i] = &Product{
			ID:              pid,
			Token:           receipt.ProductTokens[i],
			BatchID:         batchID,
			BatchToken:      receipt.BatchToken,
			PositionInBatch: i + 1,
			Name:            spec.Name,
			Description:     spec.Description,
			ManufactureDate: spec.ManufactureDate,
			ManufacturerID:  caller,
			CustodianID:     caller,
			MintAnchorID:    receipt.Anchor.ID,
			CreatedAt:       now,
		}
	}
	if err := s.store.CreateBatch(ctx, batch, members); err != nil {
		return nil, nil, dErrors.Wrap(dErrors.CodeInternal, "persist batch", err)
	}
	s.metrics.BatchesMinted.Inc()
	s.metrics.ProductsCreated.Add(float64(len(members)))
	s.logger.InfoContext(ctx, "batch minted",
		"manufacturer", caller.String(), "batch", batchID.String(),
		"members", len(members), "anchor", receipt.Anchor.ID)
	return batch, members, nil
}

// expandSpecs applies the quantity defaulting rule: member count is
// len(Specs) unless Quantity asks for the first template replicated.
func expandSpecs(in BatchInput) ([]ProductSpec, error) {
	specs := in.Specs
	if in.Quantity > 0 && in.Quantity != len(specs) {
		if len(specs) == 0 {
			return nil, dErrors.New(dErrors.CodeInvalidArgument, "at least one product spec is required")
		}
		specs = make([]ProductSpec, in.Quantity)
		for i := range specs {
			specs[i] = in.Specs[0]
		}
	}
	if len(specs) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "at least one product spec is required")
	}
	if len(specs) > config.MaxCreateQuantity {
		return nil, dErrors.New(dErrors.CodeInvalidArgument,
			fmt.Sprintf("batch size exceeds the per-call cap of %d", config.MaxCreateQuantity))
	}
	for _, spec := range specs {
		if strings.TrimSpace(spec.Name) == "" {
			return nil, dErrors.New(dErrors.CodeInvalidArgument, "product name is required")
		}
	}
	return specs, nil
}

// Get returns one product with its full custody history.
func (s *Service) Get(ctx context.Context, pid id.ProductID) (*Product, error) {
	p, err := s.store.FindProduct(ctx, pid)
	if err != nil {
		return nil, translateStore(err, "product")
	}
	return p, nil
}

// GetBatch returns one batch with its member ids.
func (s *Service) GetBatch(ctx context.Context, bid id.BatchID) (*Batch, error) {
	b, err := s.store.FindBatch(ctx, bid)
	if err != nil {
		return nil, translateStore(err, "batch")
	}
	return b, nil
}

// List returns products matching the filter, ordered by token.
func (s *Service) List(ctx context.Context, filter Filter) ([]*Product, error) {
	products, err := s.store.ListProducts(ctx, filter)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "list products", err)
	}
	return products, nil
}

// ListBatches returns the manufacturer's batches, ordered by token.
func (s *Service) ListBatches(ctx context.Context, manufacturer id.OrgID) ([]*Batch, error) {
	batches, err := s.store.ListBatches(ctx, manufacturer)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "list batches", err)
	}
	return batches, nil
}

func translateStore(err error, what string) error {
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, what+" not found")
	}
	return dErrors.Wrap(dErrors.CodeInternal, "read "+what, err)
}

func mintKey(first id.ProductID) string      { return "mint|" + first.String() }
func batchMintKey(batchID id.BatchID) string { return "mint-batch|" + batchID.String() }
