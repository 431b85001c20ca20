package jwttoken

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "custodia/pkg/domain"
	dErrors "custodia/pkg/domain-errors"
)

func TestRoundTrip(t *testing.T) {
	svc := NewService("test-key", "custodia")
	orgID := id.NewOrgID()

	token, err := svc.GenerateAccessToken(orgID, id.RoleManufacturer, time.Hour)
	require.NoError(t, err)

	claims, err := svc.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, orgID, claims.OrgID)
	assert.Equal(t, id.RoleManufacturer, claims.Role)
}

func TestValidateToken_Expired(t *testing.T) {
	svc := NewService("test-key", "custodia")
	token, err := svc.GenerateAccessToken(id.NewOrgID(), id.RoleRetailer, -time.Minute)
	require.NoError(t, err)

	_, err = svc.ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
}

func TestValidateToken_WrongKey(t *testing.T) {
	token, err := NewService("key-a", "custodia").GenerateAccessToken(id.NewOrgID(), id.RoleRetailer, time.Hour)
	require.NoError(t, err)

	_, err = NewService("key-b", "custodia").ValidateToken(token)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthenticated))
}

func TestValidateToken_Garbage(t *testing.T) {
	_, err := NewService("key", "custodia").ValidateToken("not.a.jwt")
	require.Error(t, err)
}
