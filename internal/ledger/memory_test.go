package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "custodia/pkg/domain"
)

type MemoryLedgerSuite struct {
	suite.Suite
	ledger *Memory
	ctx    context.Context
	maker  id.Address
	dist   id.Address
}

func TestMemoryLedgerSuite(t *testing.T) {
	suite.Run(t, new(MemoryLedgerSuite))
}

func (s *MemoryLedgerSuite) SetupTest() {
	s.ledger = NewMemory()
	s.ctx = context.Background()
	s.maker = id.DeriveAddress(id.NewOrgID())
	s.dist = id.DeriveAddress(id.NewOrgID())
}

func (s *MemoryLedgerSuite) mint(quantity int, batch bool) MintReceipt {
	receipt, err := s.ledger.Mint(s.ctx, MintFact{
		IdempotencyKey: "mint-" + time.Now().String(),
		Manufacturer:   s.maker,
		MetadataURI:    "ipfs://test",
		Quantity:       quantity,
		Batch:          batch,
	})
	s.Require().NoError(err)
	return receipt
}

func (s *MemoryLedgerSuite) TestMint() {
	s.Run("allocates distinct product tokens", func() {
		receipt := s.mint(3, true)
		s.Len(receipt.ProductTokens, 3)
		seen := map[uint64]bool{}
		for _, tok := range receipt.ProductTokens {
			s.False(seen[tok])
			seen[tok] = true
		}
		s.NotZero(receipt.BatchToken)
	})

	s.Run("batch tokens are monotonic per manufacturer", func() {
		first := s.mint(1, true)
		second := s.mint(1, true)
		s.Equal(first.BatchToken+1, second.BatchToken)
	})

	s.Run("single mints carry no batch token", func() {
		receipt := s.mint(2, false)
		s.Zero(receipt.BatchToken)
	})

	s.Run("duplicate key returns original receipt", func() {
		fact := MintFact{IdempotencyKey: "dup-mint", Manufacturer: s.maker, Quantity: 2, Batch: true}
		first, err := s.ledger.Mint(s.ctx, fact)
		s.Require().NoError(err)
		second, err := s.ledger.Mint(s.ctx, fact)
		s.Require().NoError(err)
		s.Equal(first, second)
	})

	s.Run("rejects non-positive quantity", func() {
		_, err := s.ledger.Mint(s.ctx, MintFact{IdempotencyKey: "zero", Manufacturer: s.maker})
		s.Require().ErrorIs(err, ErrRejected)
	})
}

func (s *MemoryLedgerSuite) TestCustody() {
	receipt := s.mint(1, false)
	token := receipt.ProductTokens[0]

	fact := CustodyFact{
		IdempotencyKey: "c1",
		ProductToken:   token,
		From:           s.maker,
		To:             s.dist,
		Location:       "warehouse 9",
		Timestamp:      time.Now(),
	}

	s.Run("transfers ownership", func() {
		anchor, err := s.ledger.SubmitCustody(s.ctx, fact)
		s.Require().NoError(err)
		s.NotEmpty(anchor.ID)

		state, err := s.ledger.TokenState(s.ctx, token)
		s.Require().NoError(err)
		s.Equal(s.dist, state.Owner)
		s.Equal(s.maker, state.Manufacturer)
	})

	s.Run("duplicate key does not double-record", func() {
		anchor, err := s.ledger.SubmitCustody(s.ctx, fact)
		s.Require().NoError(err)

		state, err := s.ledger.TokenState(s.ctx, token)
		s.Require().NoError(err)
		// mint anchor + one custody anchor
		s.Len(state.Anchors, 2)
		s.Equal(state.Anchors[1].ID, anchor.ID)
	})

	s.Run("rejects stale owner", func() {
		_, err := s.ledger.SubmitCustody(s.ctx, CustodyFact{
			IdempotencyKey: "c2",
			ProductToken:   token,
			From:           s.maker, // no longer the owner
			To:             s.dist,
		})
		s.Require().ErrorIs(err, ErrRejected)
	})

	s.Run("rejects unknown token", func() {
		_, err := s.ledger.SubmitCustody(s.ctx, CustodyFact{IdempotencyKey: "c3", ProductToken: 9999, From: s.maker, To: s.dist})
		s.Require().ErrorIs(err, ErrUnknownToken)
	})

	s.Run("anchors carry increasing sequence", func() {
		state, err := s.ledger.TokenState(s.ctx, token)
		s.Require().NoError(err)
		for i := 1; i < len(state.Anchors); i++ {
			s.Greater(state.Anchors[i].Sequence, state.Anchors[i-1].Sequence)
		}
	})
}

func (s *MemoryLedgerSuite) TestVerification() {
	receipt := s.mint(1, false)
	token := receipt.ProductTokens[0]

	s.Run("marks token verified", func() {
		_, err := s.ledger.SubmitVerification(s.ctx, VerificationFact{
			IdempotencyKey: "v1", ProductToken: token, Signature: "0xsig", Timestamp: time.Now(),
		})
		s.Require().NoError(err)

		state, err := s.ledger.TokenState(s.ctx, token)
		s.Require().NoError(err)
		s.True(state.Verified)
	})

	s.Run("verified token rejects custody changes", func() {
		_, err := s.ledger.SubmitCustody(s.ctx, CustodyFact{
			IdempotencyKey: "cv", ProductToken: token, From: s.maker, To: s.dist,
		})
		s.Require().ErrorIs(err, ErrRejected)
	})

	s.Run("second verification with a new key is rejected", func() {
		_, err := s.ledger.SubmitVerification(s.ctx, VerificationFact{
			IdempotencyKey: "v2", ProductToken: token,
		})
		s.Require().ErrorIs(err, ErrRejected)
	})
}

func (s *MemoryLedgerSuite) TestFailureInjection() {
	receipt := s.mint(1, false)
	token := receipt.ProductTokens[0]
	fact := CustodyFact{IdempotencyKey: "retry-key", ProductToken: token, From: s.maker, To: s.dist}

	s.ledger.FailNext(1)
	_, err := s.ledger.SubmitCustody(s.ctx, fact)
	s.Require().ErrorIs(err, ErrNotConfirmed)

	// Nothing was recorded by the failed attempt.
	state, err := s.ledger.TokenState(s.ctx, token)
	s.Require().NoError(err)
	s.Equal(s.maker, state.Owner)
	s.Len(state.Anchors, 1)

	// Retry with the same key succeeds and records exactly once.
	anchor, err := s.ledger.SubmitCustody(s.ctx, fact)
	s.Require().NoError(err)
	s.NotEmpty(anchor.ID)

	state, err = s.ledger.TokenState(s.ctx, token)
	s.Require().NoError(err)
	s.Equal(s.dist, state.Owner)
	s.Len(state.Anchors, 2)
}

func TestMemoryKeyStore(t *testing.T) {
	store := NewMemoryKeyStore()
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = store.Reserve(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.Release(ctx, "k"))
	ok, err = store.Reserve(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryKeyStore_Expiry(t *testing.T) {
	store := NewMemoryKeyStore()
	ctx := context.Background()

	ok, err := store.Reserve(ctx, "k", time.Millisecond)
	require.NoError(t, err)
	require.True(t, ok)

	time.Sleep(5 * time.Millisecond)
	ok, err = store.Reserve(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
}
