package inventory

import (
	"context"
	"sort"
	"sync"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// InMemoryStore keeps the mirror in maps under one mutex, which provides the
// atomicity the Store contract requires.
type InMemoryStore struct {
	mu       sync.RWMutex
	products map[id.ProductID]*Product
	byToken  map[uint64]id.ProductID
	batches  map[id.BatchID]*Batch
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		products: make(map[id.ProductID]*Product),
		byToken:  make(map[uint64]id.ProductID),
		batches:  make(map[id.BatchID]*Batch),
	}
}

func cloneProduct(p *Product) *Product {
	cp := *p
	cp.History = append([]CustodyEvent(nil), p.History...)
	return &cp
}

func cloneBatch(b *Batch) *Batch {
	cp := *b
	cp.MemberIDs = append([]id.ProductID(nil), b.MemberIDs...)
	return &cp
}

func (s *InMemoryStore) CreateProducts(_ context.Context, products []*Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range products {
		if _, ok := s.products[p.ID]; ok {
			return sentinel.ErrConflict
		}
	}
	for _, p := range products {
		s.products[p.ID] = cloneProduct(p)
		s.byToken[p.Token] = p.ID
	}
	return nil
}

func (s *InMemoryStore) CreateBatch(_ context.Context, batch *Batch, members []*Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.batches[batch.ID]; ok {
		return sentinel.ErrConflict
	}
	for _, p := range members {
		if _, ok := s.products[p.ID]; ok {
			return sentinel.ErrConflict
		}
	}
	s.batches[batch.ID] = cloneBatch(batch)
	for _, p := range members {
		s.products[p.ID] = cloneProduct(p)
		s.byToken[p.Token] = p.ID
	}
	return nil
}

func (s *InMemoryStore) FindProduct(_ context.Context, pid id.ProductID) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[pid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneProduct(p), nil
}

func (s *InMemoryStore) FindProductByToken(_ context.Context, token uint64) (*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pid, ok := s.byToken[token]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneProduct(s.products[pid]), nil
}

func (s *InMemoryStore) FindBatch(_ context.Context, bid id.BatchID) (*Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.batches[bid]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneBatch(b), nil
}

func matches(p *Product, f Filter) bool {
	if !f.OwnedBy.IsNil() && p.CustodianID != f.OwnedBy {
		return false
	}
	if !f.BatchID.IsNil() && p.BatchID != f.BatchID {
		return false
	}
	if !f.SentBy.IsNil() || !f.ReceivedBy.IsNil() {
		found := false
		for _, ev := range p.History {
			sentOK := f.SentBy.IsNil() || ev.FromOrg == f.SentBy
			recvOK := f.ReceivedBy.IsNil() || ev.ToOrg == f.ReceivedBy
			if sentOK && recvOK {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

func (s *InMemoryStore) ListProducts(_ context.Context, filter Filter) ([]*Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Product
	for _, p := range s.products {
		if matches(p, filter) {
			out = append(out, cloneProduct(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

func (s *InMemoryStore) ListBatches(_ context.Context, manufacturer id.OrgID) ([]*Batch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Batch
	for _, b := range s.batches {
		if manufacturer.IsNil() || b.ManufacturerID == manufacturer {
			out = append(out, cloneBatch(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Token < out[j].Token })
	return out, nil
}

func (s *InMemoryStore) ApplyCustody(_ context.Context, updates []CustodyUpdate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		if _, ok := s.products[u.ProductID]; !ok {
			return sentinel.ErrNotFound
		}
	}
	for _, u := range updates {
		p := s.products[u.ProductID]
		p.History = append(p.History, u.Event)
		p.CustodianID = u.NewCustodian
	}
	return nil
}

func (s *InMemoryStore) SetProofGenerated(_ context.Context, pid id.ProductID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[pid]
	if !ok {
		return sentinel.ErrNotFound
	}
	if p.ProofGenerated {
		return sentinel.ErrInvalidState
	}
	p.ProofGenerated = true
	return nil
}

func (s *InMemoryStore) SetVerified(_ context.Context, pid id.ProductID, anchorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[pid]
	if !ok {
		return sentinel.ErrNotFound
	}
	if p.Verified {
		return sentinel.ErrInvalidState
	}
	p.Verified = true
	p.VerifyAnchorID = anchorID
	return nil
}
