package org

import (
	"context"
	"sort"
	"strings"
	"sync"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// InMemoryStore keeps organizations in maps. Default wiring and test
// substrate; PostgresStore is the durable mirror.
type InMemoryStore struct {
	mu      sync.RWMutex
	byID    map[id.OrgID]*Organization
	byEmail map[string]id.OrgID
	byAddr  map[id.Address]id.OrgID
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:    make(map[id.OrgID]*Organization),
		byEmail: make(map[string]id.OrgID),
		byAddr:  make(map[id.Address]id.OrgID),
	}
}

func (s *InMemoryStore) Create(_ context.Context, org *Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(org.Email)
	if _, ok := s.byEmail[email]; ok {
		return sentinel.ErrConflict
	}
	cp := *org
	s.byID[org.ID] = &cp
	s.byEmail[email] = org.ID
	s.byAddr[org.Address] = org.ID
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, orgID id.OrgID) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	org, ok := s.byID[orgID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (s *InMemoryStore) FindByEmail(_ context.Context, email string) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orgID, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.byID[orgID]
	return &cp, nil
}

func (s *InMemoryStore) FindByAddress(_ context.Context, addr id.Address) (*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	orgID, ok := s.byAddr[addr]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s.byID[orgID]
	return &cp, nil
}

func (s *InMemoryStore) List(_ context.Context) ([]*Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Organization, 0, len(s.byID))
	for _, org := range s.byID {
		cp := *org
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
