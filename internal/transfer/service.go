// Package transfer is the custody protocol core: it moves products between
// authorized partners, anchoring every change on the ledger before the
// mirror records it. All mutations on a product are serialized per product
// id; batch operations acquire member sections in ascending id order.
package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"custodia/internal/audit"
	"custodia/internal/inventory"
	"custodia/internal/ledger"
	"custodia/internal/org"
	"custodia/internal/platform/metrics"
	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/keyedlock"
	"custodia/pkg/requestcontext"
)

// Authorizer answers whether two organizations hold an accepted partnership.
// Satisfied by partnership.Service.
type Authorizer interface {
	IsAuthorized(ctx context.Context, a, b id.OrgID) (bool, error)
}

// Directory resolves organizations. Satisfied by org.Service.
type Directory interface {
	Get(ctx context.Context, orgID id.OrgID) (*org.Organization, error)
}

// ManufacturerContact is denormalized onto the first hop away from the
// manufacturer so downstream custodians can reach the producer directly.
type ManufacturerContact struct {
	Name        string     `json:"name"`
	CompanyName string     `json:"companyName"`
	Email       string     `json:"email"`
	Address     id.Address `json:"address"`
}

// Result is the authoritative post-transfer state, returned synchronously so
// callers never need to re-fetch.
type Result struct {
	Product      *inventory.Product   `json:"product"`
	Manufacturer *ManufacturerContact `json:"manufacturer,omitempty"`
}

// BatchResult reports a completed batch transfer.
type BatchResult struct {
	Batch        *inventory.Batch     `json:"batch"`
	Transferred  []*inventory.Product `json:"transferred"`
	Manufacturer *ManufacturerContact `json:"manufacturer,omitempty"`
}

// Service coordinates custody changes.
type Service struct {
	products inventory.Store
	partners Authorizer
	orgs     Directory
	ledger   *ledger.Submitter
	locks    *keyedlock.Mutex
	audit    *audit.Publisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewService wires the coordinator. locks must be the process-wide
// per-product mutex shared with the attestation and verification services so
// a transfer can never race a proof or a customer verification on the same
// product.
func NewService(
	products inventory.Store,
	partners Authorizer,
	orgs Directory,
	submitter *ledger.Submitter,
	locks *keyedlock.Mutex,
	publisher *audit.Publisher,
	logger *slog.Logger,
	m *metrics.Metrics,
) *Service {
	return &Service{
		products: products,
		partners: partners,
		orgs:     orgs,
		ledger:   submitter,
		locks:    locks,
		audit:    publisher,
		logger:   logger,
		metrics:  m,
	}
}

// Plan is a validated, not-yet-committed transfer. The idempotency key is
// fixed at validation time, so retrying Commit with the same plan can never
// double-record on the ledger.
type Plan struct {
	ProductID id.ProductID
	From      id.OrgID
	To        id.OrgID
	FromAddr  id.Address
	ToAddr    id.Address
	Location  string
	Timestamp time.Time
	firstHop  bool
	token     uint64
}

// Key is the ledger idempotency key for this plan.
func (p *Plan) Key() string {
	return fmt.Sprintf("%s|%s|%s|%d", p.ProductID, p.From, p.To, p.Timestamp.UnixNano())
}

// Validate checks every transfer precondition without touching the ledger or
// the mirror. Failure order: NotFound, Forbidden, UnauthorizedPartner,
// InvalidState.
func (s *Service) Validate(ctx context.Context, caller id.OrgID, pid id.ProductID, to id.OrgID, location string) (*Plan, error) {
	product, err := s.products.FindProduct(ctx, pid)
	if err != nil {
		return nil, translateStore(err)
	}
	plan, err := s.validateProduct(ctx, product, caller, to)
	if err != nil {
		return nil, err
	}
	plan.Location = location
	plan.Timestamp = requestcontext.Now(ctx)
	return plan, nil
}

func (s *Service) validateProduct(ctx context.Context, product *inventory.Product, caller, to id.OrgID) (*Plan, error) {
	if product.CustodianID != caller {
		return nil, dErrors.New(dErrors.CodeForbidden, "caller is not the current custodian")
	}
	if to == caller {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "cannot transfer to yourself")
	}
	authorized, err := s.partners.IsAuthorized(ctx, caller, to)
	if err != nil {
		return nil, err
	}
	if !authorized {
		return nil, dErrors.New(dErrors.CodeUnauthorizedPartner, "no accepted partnership between the organizations")
	}
	if product.Verified {
		return nil, dErrors.New(dErrors.CodeInvalidState, "product was verified by a customer; custody is terminal")
	}

	fromOrg, err := s.orgs.Get(ctx, caller)
	if err != nil {
		return nil, err
	}
	toOrg, err := s.orgs.Get(ctx, to)
	if err != nil {
		return nil, err
	}
	return &Plan{
		ProductID: product.ID,
		From:      caller,
		To:        to,
		FromAddr:  fromOrg.Address,
		ToAddr:    toOrg.Address,
		firstHop:  caller == product.ManufacturerID && toOrg.Role != id.RoleManufacturer,
		token:     product.Token,
	}, nil
}

// Commit executes a validated plan: re-checks preconditions under the
// product's exclusive section, anchors the custody fact, and only then
// mutates the mirror. A timed-out anchor leaves the mirror untouched and the
// plan safely re-committable.
func (s *Service) Commit(ctx context.Context, plan *Plan) (*Result, error) {
	s.locks.Lock(plan.ProductID.String())
	defer s.locks.Unlock(plan.ProductID.String())

	product, err := s.products.FindProduct(ctx, plan.ProductID)
	if err != nil {
		return nil, translateStore(err)
	}
	// Validation may be stale by the time the section is held.
	if _, err := s.validateProduct(ctx, product, plan.From, plan.To); err != nil {
		s.metrics.TransfersTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}

	anchor, err := s.ledger.SubmitCustody(ctx, custodyFact(plan))
	if err != nil {
		s.metrics.TransfersTotal.WithLabelValues("failed").Inc()
		return nil, err
	}

	update := custodyUpdate(plan, anchor)
	if err := s.products.ApplyCustody(ctx, []inventory.CustodyUpdate{update}); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "apply custody", err)
	}
	s.metrics.TransfersTotal.WithLabelValues("ok").Inc()
	s.audit.Emit(ctx, audit.Event{
		Kind:      audit.KindCustodyTransferred,
		ActorID:   plan.From.String(),
		ProductID: plan.ProductID.String(),
		AnchorID:  anchor.ID,
		Detail:    fmt.Sprintf("to %s at %s", plan.To, plan.Location),
	})
	s.logger.InfoContext(ctx, "custody transferred",
		"product", plan.ProductID.String(), "from", plan.From.String(),
		"to", plan.To.String(), "anchor", anchor.ID)

	updated, err := s.products.FindProduct(ctx, plan.ProductID)
	if err != nil {
		return nil, translateStore(err)
	}
	result := &Result{Product: updated}
	if plan.firstHop {
		if result.Manufacturer, err = s.contact(ctx, updated.ManufacturerID); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// Transfer is the one-shot composition of Validate and Commit.
func (s *Service) Transfer(ctx context.Context, caller id.OrgID, pid id.ProductID, to id.OrgID, location string) (*Result, error) {
	plan, err := s.Validate(ctx, caller, pid, to, location)
	if err != nil {
		s.metrics.TransfersTotal.WithLabelValues("rejected").Inc()
		return nil, err
	}
	return s.Commit(ctx, plan)
}

// TransferBatch moves every member still custodied by the caller, all or
// nothing. Any precondition failure on any member rejects the whole call
// before a single ledger submission.
func (s *Service) TransferBatch(ctx context.Context, caller id.OrgID, bid id.BatchID, to id.OrgID, location string) (*BatchResult, error) {
	batch, err := s.products.FindBatch(ctx, bid)
	if err != nil {
		return nil, translateStore(err)
	}

	keys := make([]string, len(batch.MemberIDs))
	for i, pid := range batch.MemberIDs {
		keys[i] = pid.String()
	}
	release := s.locks.LockAll(keys)
	defer release()

	var held []*inventory.Product
	for _, pid := range batch.MemberIDs {
		p, err := s.products.FindProduct(ctx, pid)
		if err != nil {
			return nil, translateStore(err)
		}
		if p.CustodianID == caller {
			held = append(held, p)
		}
	}
	if len(held) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "no batch members held by the caller")
	}
	sort.Slice(held, func(i, j int) bool { return held[i].ID.String() < held[j].ID.String() })

	return s.commitGroup(ctx, caller, to, location, held, batch)
}

// TransferQuantity selects quantity arbitrary still-owned, unverified
// products and transfers them as one all-or-nothing group.
func (s *Service) TransferQuantity(ctx context.Context, caller id.OrgID, to id.OrgID, location string, quantity int) (*BatchResult, error) {
	if quantity <= 0 {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "quantity must be positive")
	}
	owned, err := s.products.ListProducts(ctx, inventory.Filter{OwnedBy: caller})
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "list products", err)
	}
	var eligible []*inventory.Product
	for _, p := range owned {
		if !p.Verified {
			eligible = append(eligible, p)
		}
	}
	if len(eligible) < quantity {
		return nil, dErrors.New(dErrors.CodeInvalidArgument,
			fmt.Sprintf("only %d transferable products held, %d requested", len(eligible), quantity))
	}
	selected := eligible[:quantity]
	sort.Slice(selected, func(i, j int) bool { return selected[i].ID.String() < selected[j].ID.String() })

	keys := make([]string, len(selected))
	for i, p := range selected {
		keys[i] = p.ID.String()
	}
	release := s.locks.LockAll(keys)
	defer release()

	// Re-read under the sections; ownership may have moved.
	fresh := make([]*inventory.Product, len(selected))
	for i, p := range selected {
		if fresh[i], err = s.products.FindProduct(ctx, p.ID); err != nil {
			return nil, translateStore(err)
		}
	}
	return s.commitGroup(ctx, caller, to, location, fresh, nil)
}

// commitGroup runs the two phases shared by batch and quantity transfers:
// validate every member, then anchor and mirror them together. Caller holds
// all member sections.
func (s *Service) commitGroup(ctx context.Context, caller, to id.OrgID, location string, members []*inventory.Product, batch *inventory.Batch) (*BatchResult, error) {
	now := requestcontext.Now(ctx)
	plans := make([]*Plan, len(members))
	for i, p := range members {
		plan, err := s.validateProduct(ctx, p, caller, to)
		if err != nil {
			s.metrics.TransfersTotal.WithLabelValues("rejected").Inc()
			return nil, err
		}
		plan.Location = location
		plan.Timestamp = now
		plans[i] = plan
	}

	anchors := make([]ledger.Anchor, len(plans))
	for i, plan := range plans {
		anchor, err := s.ledger.SubmitCustody(ctx, custodyFact(plan))
		if err != nil {
			s.metrics.TransfersTotal.WithLabelValues("failed").Inc()
			return nil, err
		}
		anchors[i] = anchor
	}

	updates := make([]inventory.CustodyUpdate, len(plans))
	for i, plan := range plans {
		updates[i] = custodyUpdate(plan, anchors[i])
	}
	if err := s.products.ApplyCustody(ctx, updates); err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "apply batch custody", err)
	}

	result := &BatchResult{Batch: batch}
	for i, plan := range plans {
		updated, err := s.products.FindProduct(ctx, plan.ProductID)
		if err != nil {
			return nil, translateStore(err)
		}
		result.Transferred = append(result.Transferred, updated)
		s.metrics.TransfersTotal.WithLabelValues("ok").Inc()
		s.audit.Emit(ctx, audit.Event{
			Kind:      audit.KindCustodyTransferred,
			ActorID:   caller.String(),
			ProductID: plan.ProductID.String(),
			AnchorID:  anchors[i].ID,
			Detail:    fmt.Sprintf("to %s at %s", to, location),
		})
	}
	if plans[0].firstHop {
		var err error
		if result.Manufacturer, err = s.contact(ctx, members[0].ManufacturerID); err != nil {
			return nil, err
		}
	}
	s.logger.InfoContext(ctx, "group custody transferred",
		"from", caller.String(), "to", to.String(), "count", len(plans))
	return result, nil
}

func (s *Service) contact(ctx context.Context, manufacturer id.OrgID) (*ManufacturerContact, error) {
	o, err := s.orgs.Get(ctx, manufacturer)
	if err != nil {
		return nil, err
	}
	return &ManufacturerContact{
		Name:        o.Name,
		CompanyName: o.CompanyName,
		Email:       o.Email,
		Address:     o.Address,
	}, nil
}

func custodyFact(plan *Plan) ledger.CustodyFact {
	return ledger.CustodyFact{
		IdempotencyKey: plan.Key(),
		ProductToken:   plan.token,
		From:           plan.FromAddr,
		To:             plan.ToAddr,
		Location:       plan.Location,
		Timestamp:      plan.Timestamp,
	}
}

func custodyUpdate(plan *Plan, anchor ledger.Anchor) inventory.CustodyUpdate {
	return inventory.CustodyUpdate{
		ProductID: plan.ProductID,
		Event: inventory.CustodyEvent{
			FromOrg:   plan.From,
			ToOrg:     plan.To,
			From:      plan.FromAddr,
			To:        plan.ToAddr,
			Location:  plan.Location,
			Timestamp: plan.Timestamp,
			AnchorID:  anchor.ID,
		},
		NewCustodian: plan.To,
	}
}
