package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "custodia/pkg/domain-errors"
)

// TestParseIDs_Invariants validates the parsing invariant: IDs must be valid,
// non-empty, non-nil UUIDs. Parsing happens at trust boundaries only.
func TestParseIDs_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseProductID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseOrgID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseBatchID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		valid := uuid.New()
		id, err := ParsePartnershipID(valid.String())
		require.NoError(t, err)
		assert.Equal(t, PartnershipID(valid), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety between
// entity ids. If this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	orgID := NewOrgID()
	productID := NewProductID()

	// These would fail to compile if types were interchangeable:
	// var _ OrgID = productID   // compile error
	// var _ ProductID = orgID   // compile error

	assert.NotEqual(t, uuid.UUID(orgID), uuid.UUID(productID))
}

func TestParseRole(t *testing.T) {
	for _, s := range []string{"manufacturer", "distributor", "warehouse", "retailer"} {
		r, err := ParseRole(s)
		require.NoError(t, err)
		assert.True(t, r.IsValid())
	}

	_, err := ParseRole("wholesaler")
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidArgument))
}

func TestDashboardPath(t *testing.T) {
	assert.Equal(t, "/manufacturer", DashboardPath(RoleManufacturer))
	assert.Equal(t, "/distributor", DashboardPath(RoleDistributor))
	assert.Equal(t, "/warehouse", DashboardPath(RoleWarehouse))
	assert.Equal(t, "/retailer", DashboardPath(RoleRetailer))
	assert.Equal(t, "/", DashboardPath(Role("unknown")))
}

func TestParseAddress(t *testing.T) {
	t.Run("derived addresses round-trip", func(t *testing.T) {
		addr := DeriveAddress(NewOrgID())
		parsed, err := ParseAddress(addr.String())
		require.NoError(t, err)
		assert.Equal(t, addr, parsed)
		assert.False(t, addr.IsZero())
	})

	t.Run("derivation is deterministic", func(t *testing.T) {
		id := NewOrgID()
		assert.Equal(t, DeriveAddress(id), DeriveAddress(id))
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		for _, s := range []string{"", "0x123", "1234567890123456789012345678901234567890ab", "0xZZ34567890123456789012345678901234567890"} {
			_, err := ParseAddress(s)
			require.Error(t, err, s)
		}
	})

	t.Run("zero address is zero", func(t *testing.T) {
		assert.True(t, ZeroAddress.IsZero())
		assert.True(t, Address("").IsZero())
	})
}
