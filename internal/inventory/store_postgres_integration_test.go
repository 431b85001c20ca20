//go:build integration

package inventory_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"custodia/internal/inventory"
	"custodia/internal/org"
	id "custodia/pkg/domain"
	"custodia/pkg/platform/sentinel"
	"custodia/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	orgs     *org.PostgresStore
	store    *inventory.PostgresStore

	nextToken uint64
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.orgs = org.NewPostgres(s.postgres.DB)
	s.store = inventory.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	ctx := context.Background()
	// Truncate in dependency order
	err := s.postgres.TruncateTables(ctx,
		"membership_proofs", "custody_events", "products", "batches", "partnerships", "organizations")
	s.Require().NoError(err)
}

func (s *PostgresStoreSuite) seedOrg(role id.Role) id.OrgID {
	orgID := id.NewOrgID()
	err := s.orgs.Create(context.Background(), &org.Organization{
		ID:           orgID,
		Name:         "Inventory Org",
		Email:        "inv-" + uuid.NewString() + "@example.com",
		Role:         role,
		Address:      id.DeriveAddress(orgID),
		PasswordHash: []byte("$2a$10$fixture"),
		CreatedAt:    time.Now(),
	})
	s.Require().NoError(err)
	return orgID
}

func (s *PostgresStoreSuite) newProduct(mfr id.OrgID) *inventory.Product {
	s.nextToken++
	return &inventory.Product{
		ID:             id.NewProductID(),
		Token:          s.nextToken,
		Name:           "Widget",
		ManufacturerID: mfr,
		CustodianID:    mfr,
		MintAnchorID:   "anchor-" + uuid.NewString(),
		CreatedAt:      time.Now(),
	}
}

func (s *PostgresStoreSuite) TestCreateAndFindProduct() {
	ctx := context.Background()
	mfr := s.seedOrg(id.RoleManufacturer)

	p := s.newProduct(mfr)
	p.Description = "first run"
	p.ManufactureDate = "2026-08-01"
	s.Require().NoError(s.store.CreateProducts(ctx, []*inventory.Product{p}))

	found, err := s.store.FindProduct(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(p.Token, found.Token)
	s.Equal(p.Description, found.Description)
	s.Equal(mfr, found.CustodianID)
	s.Empty(found.History)
	s.False(found.ProofGenerated)
	s.False(found.Verified)

	byToken, err := s.store.FindProductByToken(ctx, p.Token)
	s.Require().NoError(err)
	s.Equal(p.ID, byToken.ID)
}

// TestDuplicateTokenRollsBackGroup verifies that a token collision inside a
// multi-product insert persists nothing.
func (s *PostgresStoreSuite) TestDuplicateTokenRollsBackGroup() {
	ctx := context.Background()
	mfr := s.seedOrg(id.RoleManufacturer)

	existing := s.newProduct(mfr)
	s.Require().NoError(s.store.CreateProducts(ctx, []*inventory.Product{existing}))

	fresh := s.newProduct(mfr)
	dup := s.newProduct(mfr)
	dup.Token = existing.Token

	err := s.store.CreateProducts(ctx, []*inventory.Product{fresh, dup})
	s.ErrorIs(err, sentinel.ErrConflict)

	_, err = s.store.FindProduct(ctx, fresh.ID)
	s.ErrorIs(err, sentinel.ErrNotFound, "partial insert must not survive")
}

func (s *PostgresStoreSuite) TestCreateBatchAndMemberOrder() {
	ctx := context.Background()
	mfr := s.seedOrg(id.RoleManufacturer)

	batch := &inventory.Batch{
		ID:             id.NewBatchID(),
		Token:          1,
		MetadataURI:    "ipfs://batch-test",
		Quantity:       3,
		ManufacturerID: mfr,
		AnchorID:       "anchor-" + uuid.NewString(),
		CreatedAt:      time.Now(),
	}
	var members []*inventory.Product
	for i := 0; i < 3; i++ {
		p := s.newProduct(mfr)
		p.BatchID = batch.ID
		p.BatchToken = batch.Token
		p.PositionInBatch = i + 1
		members = append(members, p)
	}
	s.Require().NoError(s.store.CreateBatch(ctx, batch, members))

	found, err := s.store.FindBatch(ctx, batch.ID)
	s.Require().NoError(err)
	s.Equal(batch.MetadataURI, found.MetadataURI)
	s.Require().Len(found.MemberIDs, 3)
	for i, pid := range found.MemberIDs {
		s.Equal(members[i].ID, pid, "members come back in batch position order")
	}

	listed, err := s.store.ListBatches(ctx, mfr)
	s.Require().NoError(err)
	s.Len(listed, 1)

	_, err = s.store.FindBatch(ctx, id.NewBatchID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestApplyCustodyAppendsHistory() {
	ctx := context.Background()
	mfr := s.seedOrg(id.RoleManufacturer)
	dist := s.seedOrg(id.RoleDistributor)
	retail := s.seedOrg(id.RoleRetailer)

	p := s.newProduct(mfr)
	s.Require().NoError(s.store.CreateProducts(ctx, []*inventory.Product{p}))

	hop := func(from, to id.OrgID, at time.Time) inventory.CustodyUpdate {
		return inventory.CustodyUpdate{
			ProductID:    p.ID,
			NewCustodian: to,
			Event: inventory.CustodyEvent{
				FromOrg:   from,
				ToOrg:     to,
				From:      id.DeriveAddress(from),
				To:        id.DeriveAddress(to),
				Location:  "warehouse 7",
				Timestamp: at,
				AnchorID:  "anchor-" + uuid.NewString(),
			},
		}
	}

	base := time.Now()
	s.Require().NoError(s.store.ApplyCustody(ctx, []inventory.CustodyUpdate{hop(mfr, dist, base)}))
	s.Require().NoError(s.store.ApplyCustody(ctx, []inventory.CustodyUpdate{hop(dist, retail, base.Add(time.Minute))}))

	found, err := s.store.FindProduct(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(retail, found.CustodianID)
	s.Require().Len(found.History, 2)
	s.Equal(mfr, found.History[0].FromOrg)
	s.Equal(dist, found.History[0].ToOrg)
	s.Equal(dist, found.History[1].FromOrg)
	s.Equal(retail, found.History[1].ToOrg)

	err = s.store.ApplyCustody(ctx, []inventory.CustodyUpdate{{
		ProductID:    id.NewProductID(),
		NewCustodian: dist,
	}})
	s.ErrorIs(err, sentinel.ErrNotFound)
}

// TestApplyCustodyGroupIsAtomic verifies that one missing member fails the
// whole group without moving the others.
func (s *PostgresStoreSuite) TestApplyCustodyGroupIsAtomic() {
	ctx := context.Background()
	mfr := s.seedOrg(id.RoleManufacturer)
	dist := s.seedOrg(id.RoleDistributor)

	p := s.newProduct(mfr)
	s.Require().NoError(s.store.CreateProducts(ctx, []*inventory.Product{p}))

	updates := []inventory.CustodyUpdate{
		{
			ProductID:    p.ID,
			NewCustodian: dist,
			Event: inventory.CustodyEvent{
				FromOrg: mfr, ToOrg: dist,
				From: id.DeriveAddress(mfr), To: id.DeriveAddress(dist),
				Timestamp: time.Now(), AnchorID: "anchor-a",
			},
		},
		{ProductID: id.NewProductID(), NewCustodian: dist},
	}
	s.ErrorIs(s.store.ApplyCustody(ctx, updates), sentinel.ErrNotFound)

	found, err := s.store.FindProduct(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(mfr, found.CustodianID, "custody must not move when the group fails")
	s.Empty(found.History)
}

func (s *PostgresStoreSuite) TestListFilters() {
	ctx := context.Background()
	mfr := s.seedOrg(id.RoleManufacturer)
	dist := s.seedOrg(id.RoleDistributor)

	kept := s.newProduct(mfr)
	moved := s.newProduct(mfr)
	s.Require().NoError(s.store.CreateProducts(ctx, []*inventory.Product{kept, moved}))
	s.Require().NoError(s.store.ApplyCustody(ctx, []inventory.CustodyUpdate{{
		ProductID:    moved.ID,
		NewCustodian: dist,
		Event: inventory.CustodyEvent{
			FromOrg: mfr, ToOrg: dist,
			From: id.DeriveAddress(mfr), To: id.DeriveAddress(dist),
			Timestamp: time.Now(), AnchorID: "anchor-moved",
		},
	}}))

	mine, err := s.store.ListProducts(ctx, inventory.Filter{OwnedBy: mfr})
	s.Require().NoError(err)
	s.Require().Len(mine, 1)
	s.Equal(kept.ID, mine[0].ID)

	received, err := s.store.ListProducts(ctx, inventory.Filter{SentBy: mfr, ReceivedBy: dist})
	s.Require().NoError(err)
	s.Require().Len(received, 1)
	s.Equal(moved.ID, received[0].ID)
	s.Require().Len(received[0].History, 1, "filtered listings carry history")

	none, err := s.store.ListProducts(ctx, inventory.Filter{SentBy: dist})
	s.Require().NoError(err)
	s.Empty(none)
}

func (s *PostgresStoreSuite) TestFlagsAreSingleShot() {
	ctx := context.Background()
	mfr := s.seedOrg(id.RoleManufacturer)

	p := s.newProduct(mfr)
	s.Require().NoError(s.store.CreateProducts(ctx, []*inventory.Product{p}))

	s.Require().NoError(s.store.SetProofGenerated(ctx, p.ID))
	s.ErrorIs(s.store.SetProofGenerated(ctx, p.ID), sentinel.ErrInvalidState)
	s.ErrorIs(s.store.SetProofGenerated(ctx, id.NewProductID()), sentinel.ErrNotFound)

	s.Require().NoError(s.store.SetVerified(ctx, p.ID, "anchor-verify"))
	s.ErrorIs(s.store.SetVerified(ctx, p.ID, "anchor-other"), sentinel.ErrInvalidState)
	s.ErrorIs(s.store.SetVerified(ctx, id.NewProductID(), "anchor-x"), sentinel.ErrNotFound)

	found, err := s.store.FindProduct(ctx, p.ID)
	s.Require().NoError(err)
	s.True(found.ProofGenerated)
	s.True(found.Verified)
	s.Equal("anchor-verify", found.VerifyAnchorID, "losing write must not overwrite the anchor")
}
