// Package org manages organization identity: registration, authentication,
// and the directory other organizations browse when requesting partnerships.
package org

import (
	"time"

	id "custodia/pkg/domain"
)

// Organization is a participant in the custody network. Identity (ID, ledger
// address, role) is immutable after registration; profile fields may change.
type Organization struct {
	ID          id.OrgID
	Name        string
	CompanyName string
	Email       string
	Role        id.Role
	Address     id.Address
	CreatedAt   time.Time

	// PasswordHash never leaves the store/service boundary.
	PasswordHash []byte
}

// Public is the directory view of an organization, stripped of credentials.
type Public struct {
	ID          id.OrgID   `json:"id"`
	Name        string     `json:"name"`
	CompanyName string     `json:"companyName"`
	Role        id.Role    `json:"role"`
	Address     id.Address `json:"address"`
}

// ToPublic strips credential fields for directory listings.
func (o *Organization) ToPublic() Public {
	return Public{
		ID:          o.ID,
		Name:        o.Name,
		CompanyName: o.CompanyName,
		Role:        o.Role,
		Address:     o.Address,
	}
}
