package attestation

import (
	"context"
	"sync"
	"time"

	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
)

// Record is the durable result of a proof generation. The product's
// proofGenerated flag is set only after the record exists.
type Record struct {
	ProductID id.ProductID `json:"productId"`
	BatchID   id.BatchID   `json:"batchId"`
	Proof     Proof        `json:"proof"`
	CreatedAt time.Time    `json:"createdAt"`
}

// Store persists proof records, at most one per product.
type Store interface {
	Save(ctx context.Context, record *Record) error
	Find(ctx context.Context, productID id.ProductID) (*Record, error)
}

type InMemoryStore struct {
	mu      sync.RWMutex
	records map[id.ProductID]*Record
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[id.ProductID]*Record)}
}

func (s *InMemoryStore) Save(_ context.Context, record *Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.ProductID]; ok {
		return sentinel.ErrConflict
	}
	cp := *record
	s.records[record.ProductID] = &cp
	return nil
}

func (s *InMemoryStore) Find(_ context.Context, productID id.ProductID) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[productID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *r
	return &cp, nil
}
