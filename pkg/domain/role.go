package domain

import dErrors "custodia/pkg/domain-errors"

// Role is the tagged variant over the four organization kinds. Dispatch on it
// with the pure functions below rather than string lookups.
type Role string

const (
	RoleManufacturer Role = "manufacturer"
	RoleDistributor  Role = "distributor"
	RoleWarehouse    Role = "warehouse"
	RoleRetailer     Role = "retailer"
)

var validRoles = map[Role]bool{
	RoleManufacturer: true,
	RoleDistributor:  true,
	RoleWarehouse:    true,
	RoleRetailer:     true,
}

// ParseRole constructs a Role from external input, enforcing the allowlist.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !validRoles[r] {
		return "", dErrors.New(dErrors.CodeInvalidArgument, "invalid role: "+s)
	}
	return r, nil
}

// IsValid reports whether the role is one of the supported variants.
func (r Role) IsValid() bool { return validRoles[r] }

// CanMint reports whether organizations with this role may create products
// and mint batches. Only manufacturers originate inventory.
func (r Role) CanMint() bool { return r == RoleManufacturer }

// DashboardPath maps a role to its client landing path. Pure function so the
// routing contract is testable without a UI.
func DashboardPath(r Role) string {
	switch r {
	case RoleManufacturer:
		return "/manufacturer"
	case RoleDistributor:
		return "/distributor"
	case RoleWarehouse:
		return "/warehouse"
	case RoleRetailer:
		return "/retailer"
	default:
		return "/"
	}
}
