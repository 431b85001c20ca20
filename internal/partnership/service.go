package partnership

import (
	"context"
	"errors"
	"log/slog"

	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
	"custodia/pkg/platform/keyedlock"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/requestcontext"
)

// Decision is the receiver's answer to a partnership request.
type Decision string

const (
	DecisionAccept Decision = "accepted"
	DecisionReject Decision = "rejected"
)

// ParseDecision validates external input into a Decision.
func ParseDecision(s string) (Decision, error) {
	switch Decision(s) {
	case DecisionAccept, DecisionReject:
		return Decision(s), nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidArgument, "decision must be accepted or rejected")
	}
}

// Service owns the partnership rules. Responses are serialized per
// partnership id so a double-accept race cannot produce two terminal states.
type Service struct {
	store  Store
	locks  *keyedlock.Mutex
	logger *slog.Logger
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{store: store, locks: keyedlock.New(), logger: logger}
}

// Request creates a pending partnership from sender to receiver. Fails with
// Conflict if an active partnership already covers the unordered pair, or if
// sender == receiver.
func (s *Service) Request(ctx context.Context, sender, receiver id.OrgID) (*Partnership, error) {
	if sender == receiver {
		return nil, dErrors.New(dErrors.CodeConflict, "cannot request a partnership with yourself")
	}
	if receiver.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "receiver is required")
	}

	p := &Partnership{
		ID:          id.NewPartnershipID(),
		SenderID:    sender,
		ReceiverID:  receiver,
		Status:      StatusPending,
		RequestedAt: requestcontext.Now(ctx),
	}
	if err := s.store.CreateIfNoneActive(ctx, p); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.New(dErrors.CodeConflict, "an active partnership already exists for this pair")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "create partnership", err)
	}

	s.logger.InfoContext(ctx, "partnership requested",
		"partnership_id", p.ID.String(),
		"sender", sender.String(),
		"receiver", receiver.String(),
	)
	return p, nil
}

// Respond applies the receiver's decision. Fails Forbidden unless responder
// is the receiver, InvalidState unless the partnership is still pending. The
// transition is atomic and irrevocable.
func (s *Service) Respond(ctx context.Context, pid id.PartnershipID, responder id.OrgID, decision Decision) (*Partnership, error) {
	s.locks.Lock(pid.String())
	defer s.locks.Unlock(pid.String())

	p, err := s.store.FindByID(ctx, pid)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.New(dErrors.CodeNotFound, "partnership not found")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "find partnership", err)
	}
	if p.ReceiverID != responder {
		return nil, dErrors.New(dErrors.CodeForbidden, "only the receiver may respond to a partnership request")
	}
	if p.Status != StatusPending {
		return nil, dErrors.New(dErrors.CodeInvalidState, "partnership has already been responded to")
	}

	respondedAt := requestcontext.Now(ctx)
	if err := s.store.UpdateStatus(ctx, pid, Status(decision), respondedAt); err != nil {
		if errors.Is(err, sentinel.ErrInvalidState) {
			return nil, dErrors.New(dErrors.CodeInvalidState, "partnership has already been responded to")
		}
		return nil, dErrors.Wrap(dErrors.CodeInternal, "update partnership", err)
	}

	p.Status = Status(decision)
	p.RespondedAt = &respondedAt
	s.logger.InfoContext(ctx, "partnership responded",
		"partnership_id", pid.String(),
		"status", string(p.Status),
	)
	return p, nil
}

// IsAuthorized reports whether an accepted partnership covers the unordered
// pair. Pure read.
func (s *Service) IsAuthorized(ctx context.Context, a, b id.OrgID) (bool, error) {
	p, err := s.store.FindActive(ctx, a, b)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return false, nil
		}
		return false, dErrors.Wrap(dErrors.CodeInternal, "find partnership", err)
	}
	return p.Status == StatusAccepted, nil
}

// ListForOrg returns every partnership involving the organization.
func (s *Service) ListForOrg(ctx context.Context, orgID id.OrgID) ([]*Partnership, error) {
	out, err := s.store.ListForOrg(ctx, orgID)
	if err != nil {
		return nil, dErrors.Wrap(dErrors.CodeInternal, "list partnerships", err)
	}
	return out, nil
}

// PendingRequests returns pending partnerships where the organization is the
// receiver — the ones it can act on.
func (s *Service) PendingRequests(ctx context.Context, orgID id.OrgID) ([]*Partnership, error) {
	all, err := s.ListForOrg(ctx, orgID)
	if err != nil {
		return nil, err
	}
	var out []*Partnership
	for _, p := range all {
		if p.Status == StatusPending && p.ReceiverID == orgID {
			out = append(out, p)
		}
	}
	return out, nil
}
