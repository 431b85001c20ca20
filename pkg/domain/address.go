package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"

	dErrors "custodia/pkg/domain-errors"
)

// Address is an organization's ledger address: 0x-prefixed, 20 bytes of hex.
// The zero value means "no owner" on the ledger.
type Address string

// ZeroAddress is the ledger's null owner.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

const hexDigits = "0123456789abcdef"

// ParseAddress validates external input into an Address. Input is lowercased;
// mixed-case checksums are not enforced here.
func ParseAddress(s string) (Address, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 42 || !strings.HasPrefix(s, "0x") {
		return "", dErrors.New(dErrors.CodeInvalidArgument, "invalid ledger address")
	}
	for _, c := range s[2:] {
		if !strings.ContainsRune(hexDigits, c) {
			return "", dErrors.New(dErrors.CodeInvalidArgument, "invalid ledger address")
		}
	}
	return Address(s), nil
}

// IsZero reports whether the address is empty or the ledger null owner.
func (a Address) IsZero() bool { return a == "" || a == ZeroAddress }

func (a Address) String() string { return string(a) }

// DeriveAddress deterministically derives a ledger address from an
// organization id. Registration assigns addresses this way so the mirror and
// the simulated ledger agree without coordination.
func DeriveAddress(id OrgID) Address {
	u := uuid.UUID(id)
	sum := sha256.Sum256(u[:])
	return Address("0x" + hex.EncodeToString(sum[:20]))
}
