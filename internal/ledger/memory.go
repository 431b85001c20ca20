package ledger

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	id "custodia/pkg/domain"
)

// Memory is the in-process ledger. It honors the full client contract:
// duplicate idempotency keys return the original receipt, anchors carry a
// per-token sequence, batch tokens are monotonic per manufacturer, and
// custody/verification facts are checked against current token ownership so
// the ledger stays internally consistent regardless of mirror state.
//
// Failure injection (FailNext) and confirmation latency make timeout and
// retry paths testable.
type Memory struct {
	mu sync.Mutex

	confirmLatency time.Duration
	failNext       int

	nextProductToken uint64
	batchSeq         map[string]uint64 // manufacturer address -> last batch token
	anchorSeq        uint64

	tokens map[uint64]*tokenRecord

	mintReceipts   map[string]MintReceipt
	custodyAnchors map[string]Anchor
	verifyAnchors  map[string]Anchor
}

type tokenRecord struct {
	owner        string
	manufacturer string
	verified     bool
	sequence     uint64
	anchors      []Anchor
}

// MemoryOption configures the in-process ledger.
type MemoryOption func(*Memory)

// WithConfirmLatency delays confirmation of every submission.
func WithConfirmLatency(d time.Duration) MemoryOption {
	return func(m *Memory) { m.confirmLatency = d }
}

// NewMemory creates an empty in-process ledger.
func NewMemory(opts ...MemoryOption) *Memory {
	m := &Memory{
		nextProductToken: 1,
		batchSeq:         make(map[string]uint64),
		tokens:           make(map[uint64]*tokenRecord),
		mintReceipts:     make(map[string]MintReceipt),
		custodyAnchors:   make(map[string]Anchor),
		verifyAnchors:    make(map[string]Anchor),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FailNext makes the next n submissions return ErrNotConfirmed after
// recording nothing. Used by tests to exercise retry-with-same-key.
func (m *Memory) FailNext(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failNext = n
}

func (m *Memory) takeFailure() bool {
	if m.failNext > 0 {
		m.failNext--
		return true
	}
	return false
}

func (m *Memory) newAnchor(seq uint64, at time.Time) Anchor {
	m.anchorSeq++
	sum := sha256.Sum256([]byte(fmt.Sprintf("anchor|%d|%d", m.anchorSeq, at.UnixNano())))
	return Anchor{
		ID:          "0x" + hex.EncodeToString(sum[:]),
		Sequence:    seq,
		ConfirmedAt: at,
	}
}

func (m *Memory) awaitConfirmation(ctx context.Context) error {
	if m.confirmLatency == 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ErrNotConfirmed
	case <-time.After(m.confirmLatency):
		return nil
	}
}

// Mint allocates product tokens (and a batch token for batch mints) under a
// single anchor. The whole group confirms or nothing is recorded.
func (m *Memory) Mint(ctx context.Context, fact MintFact) (MintReceipt, error) {
	if fact.Quantity <= 0 {
		return MintReceipt{}, ErrRejected
	}
	if err := m.awaitConfirmation(ctx); err != nil {
		return MintReceipt{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if receipt, ok := m.mintReceipts[fact.IdempotencyKey]; ok {
		return receipt, nil
	}
	if m.takeFailure() {
		return MintReceipt{}, ErrNotConfirmed
	}

	now := time.Now()
	anchor := m.newAnchor(0, now)

	var batchToken uint64
	if fact.Batch {
		m.batchSeq[fact.Manufacturer.String()]++
		batchToken = m.batchSeq[fact.Manufacturer.String()]
	}

	tokens := make([]uint64, 0, fact.Quantity)
	for i := 0; i < fact.Quantity; i++ {
		token := m.nextProductToken
		m.nextProductToken++
		m.tokens[token] = &tokenRecord{
			owner:        fact.Manufacturer.String(),
			manufacturer: fact.Manufacturer.String(),
			anchors:      []Anchor{anchor},
		}
		tokens = append(tokens, token)
	}

	receipt := MintReceipt{Anchor: anchor, BatchToken: batchToken, ProductTokens: tokens}
	m.mintReceipts[fact.IdempotencyKey] = receipt
	return receipt, nil
}

// SubmitCustody records a custody change. The fact's From must match the
// ledger's current owner; verified tokens reject all changes.
func (m *Memory) SubmitCustody(ctx context.Context, fact CustodyFact) (Anchor, error) {
	if err := m.awaitConfirmation(ctx); err != nil {
		return Anchor{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if anchor, ok := m.custodyAnchors[fact.IdempotencyKey]; ok {
		return anchor, nil
	}
	if m.takeFailure() {
		return Anchor{}, ErrNotConfirmed
	}

	record, ok := m.tokens[fact.ProductToken]
	if !ok {
		return Anchor{}, ErrUnknownToken
	}
	if record.verified || record.owner != fact.From.String() {
		return Anchor{}, ErrRejected
	}

	record.sequence++
	anchor := m.newAnchor(record.sequence, time.Now())
	record.owner = fact.To.String()
	record.anchors = append(record.anchors, anchor)
	m.custodyAnchors[fact.IdempotencyKey] = anchor
	return anchor, nil
}

// SubmitVerification records the terminal verification fact. A second
// verification for the same token is rejected.
func (m *Memory) SubmitVerification(ctx context.Context, fact VerificationFact) (Anchor, error) {
	if err := m.awaitConfirmation(ctx); err != nil {
		return Anchor{}, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if anchor, ok := m.verifyAnchors[fact.IdempotencyKey]; ok {
		return anchor, nil
	}
	if m.takeFailure() {
		return Anchor{}, ErrNotConfirmed
	}

	record, ok := m.tokens[fact.ProductToken]
	if !ok {
		return Anchor{}, ErrUnknownToken
	}
	if record.verified {
		return Anchor{}, ErrRejected
	}

	record.sequence++
	anchor := m.newAnchor(record.sequence, time.Now())
	record.verified = true
	record.anchors = append(record.anchors, anchor)
	m.verifyAnchors[fact.IdempotencyKey] = anchor
	return anchor, nil
}

// TokenState returns the ledger's view of a product token.
func (m *Memory) TokenState(_ context.Context, productToken uint64) (TokenState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.tokens[productToken]
	if !ok {
		return TokenState{}, ErrUnknownToken
	}
	anchors := make([]Anchor, len(record.anchors))
	copy(anchors, record.anchors)
	return TokenState{
		Owner:        id.Address(record.owner),
		Manufacturer: id.Address(record.manufacturer),
		Verified:     record.verified,
		Anchors:      anchors,
	}, nil
}
