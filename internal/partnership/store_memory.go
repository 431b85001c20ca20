package partnership

import (
	"context"
	"sort"
	"sync"
	"time"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// InMemoryStore keeps partnerships under one mutex, which also provides the
// per-pair and per-id atomicity the Store contract requires.
type InMemoryStore struct {
	mu   sync.RWMutex
	byID map[id.PartnershipID]*Partnership
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{byID: make(map[id.PartnershipID]*Partnership)}
}

func (s *InMemoryStore) CreateIfNoneActive(_ context.Context, p *Partnership) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.byID {
		if existing.Active() && existing.Covers(p.SenderID, p.ReceiverID) {
			return sentinel.ErrConflict
		}
	}
	cp := *p
	s.byID[p.ID] = &cp
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, pid id.PartnershipID) (*Partnership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[pid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *InMemoryStore) UpdateStatus(_ context.Context, pid id.PartnershipID, status Status, respondedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[pid]
	if !ok {
		return sentinel.ErrNotFound
	}
	if p.Status != StatusPending {
		return sentinel.ErrInvalidState
	}
	p.Status = status
	p.RespondedAt = &respondedAt
	return nil
}

func (s *InMemoryStore) FindActive(_ context.Context, a, b id.OrgID) (*Partnership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.byID {
		if p.Active() && p.Covers(a, b) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListForOrg(_ context.Context, orgID id.OrgID) ([]*Partnership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Partnership
	for _, p := range s.byID {
		if p.SenderID == orgID || p.ReceiverID == orgID {
			cp := *p
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}
