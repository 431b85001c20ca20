package partnership

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/suite"

	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

type PartnershipSuite struct {
	suite.Suite
	svc *Service
	ctx context.Context
	a   id.OrgID
	b   id.OrgID
}

func TestPartnershipSuite(t *testing.T) {
	suite.Run(t, new(PartnershipSuite))
}

func (s *PartnershipSuite) SetupTest() {
	s.svc = NewService(NewInMemoryStore(), slog.New(slog.DiscardHandler))
	s.ctx = context.Background()
	s.a = id.NewOrgID()
	s.b = id.NewOrgID()
}

func (s *PartnershipSuite) TestRequest() {
	s.Run("creates pending partnership", func() {
		p, err := s.svc.Request(s.ctx, s.a, s.b)
		s.Require().NoError(err)
		s.Equal(StatusPending, p.Status)
		s.Equal(s.a, p.SenderID)
		s.Equal(s.b, p.ReceiverID)
	})

	s.Run("rejects duplicate in same direction", func() {
		_, err := s.svc.Request(s.ctx, s.a, s.b)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("rejects duplicate in opposite direction", func() {
		_, err := s.svc.Request(s.ctx, s.b, s.a)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("rejects self-partnership", func() {
		_, err := s.svc.Request(s.ctx, s.a, s.a)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})
}

func (s *PartnershipSuite) TestRespond() {
	p, err := s.svc.Request(s.ctx, s.a, s.b)
	s.Require().NoError(err)

	s.Run("sender cannot respond", func() {
		_, err := s.svc.Respond(s.ctx, p.ID, s.a, DecisionAccept)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	})

	s.Run("receiver accepts", func() {
		updated, err := s.svc.Respond(s.ctx, p.ID, s.b, DecisionAccept)
		s.Require().NoError(err)
		s.Equal(StatusAccepted, updated.Status)
		s.NotNil(updated.RespondedAt)
	})

	s.Run("second response fails", func() {
		_, err := s.svc.Respond(s.ctx, p.ID, s.b, DecisionReject)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
	})

	s.Run("unknown partnership", func() {
		_, err := s.svc.Respond(s.ctx, id.NewPartnershipID(), s.b, DecisionAccept)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func (s *PartnershipSuite) TestRejectedPairMayReRequest() {
	p, err := s.svc.Request(s.ctx, s.a, s.b)
	s.Require().NoError(err)
	_, err = s.svc.Respond(s.ctx, p.ID, s.b, DecisionReject)
	s.Require().NoError(err)

	// Rejection frees the pair.
	p2, err := s.svc.Request(s.ctx, s.b, s.a)
	s.Require().NoError(err)
	s.Equal(StatusPending, p2.Status)
}

func (s *PartnershipSuite) TestIsAuthorized() {
	ok, err := s.svc.IsAuthorized(s.ctx, s.a, s.b)
	s.Require().NoError(err)
	s.False(ok)

	p, err := s.svc.Request(s.ctx, s.a, s.b)
	s.Require().NoError(err)

	// Pending does not authorize.
	ok, err = s.svc.IsAuthorized(s.ctx, s.a, s.b)
	s.Require().NoError(err)
	s.False(ok)

	_, err = s.svc.Respond(s.ctx, p.ID, s.b, DecisionAccept)
	s.Require().NoError(err)

	// Accepted authorizes in both directions.
	ok, err = s.svc.IsAuthorized(s.ctx, s.a, s.b)
	s.Require().NoError(err)
	s.True(ok)
	ok, err = s.svc.IsAuthorized(s.ctx, s.b, s.a)
	s.Require().NoError(err)
	s.True(ok)
}

// TestDoubleAcceptRace drives concurrent responses at one pending
// partnership; exactly one may win.
func (s *PartnershipSuite) TestDoubleAcceptRace() {
	p, err := s.svc.Request(s.ctx, s.a, s.b)
	s.Require().NoError(err)

	var wg sync.WaitGroup
	results := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			decision := DecisionAccept
			if i%2 == 0 {
				decision = DecisionReject
			}
			_, results[i] = s.svc.Respond(s.ctx, p.ID, s.b, decision)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range results {
		if err == nil {
			wins++
		} else {
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidState))
		}
	}
	s.Equal(1, wins)
}

func (s *PartnershipSuite) TestPendingRequests() {
	p, err := s.svc.Request(s.ctx, s.a, s.b)
	s.Require().NoError(err)

	// Receiver sees the request; sender does not.
	forB, err := s.svc.PendingRequests(s.ctx, s.b)
	s.Require().NoError(err)
	s.Len(forB, 1)
	s.Equal(p.ID, forB[0].ID)

	forA, err := s.svc.PendingRequests(s.ctx, s.a)
	s.Require().NoError(err)
	s.Empty(forA)
}

func TestParseDecision(t *testing.T) {
	if _, err := ParseDecision("accepted"); err != nil {
		t.Fatalf("accepted should parse: %v", err)
	}
	if _, err := ParseDecision("rejected"); err != nil {
		t.Fatalf("rejected should parse: %v", err)
	}
	if _, err := ParseDecision("maybe"); err == nil {
		t.Fatal("maybe should not parse")
	}
}
