package domain

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Address identifies an account. It is a domain primitive that enforces
// validity at parse time: a 0x-prefixed, 40-hex-digit string, stored
// lowercased so comparisons are cheap.
type Address string

// ZeroAddress is the null account. Transfers from it model minting.
const ZeroAddress Address = "0x0000000000000000000000000000000000000000"

// ParseAddress validates and returns an Address.
// Returns an error if the string is not a 0x-prefixed 20-byte hex value.
func ParseAddress(s string) (Address, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		return "", fmt.Errorf("address must be 0x-prefixed: %q", s)
	}
	body := s[2:]
	if len(body) != 40 {
		return "", fmt.Errorf("address must be 20 bytes, got %d hex digits", len(body))
	}
	if _, err := hex.DecodeString(body); err != nil {
		return "", fmt.Errorf("address is not valid hex: %q", s)
	}
	return Address("0x" + strings.ToLower(body)), nil
}

// String returns the canonical lowercase form.
func (a Address) String() string {
	return string(a)
}

// IsZero reports whether the address is unset or the null account.
func (a Address) IsZero() bool {
	return a == "" || a == ZeroAddress
}

// Bytes returns the 20 raw bytes of the address. The zero value yields 20
// zero bytes so hashing an unset address stays deterministic.
func (a Address) Bytes() []byte {
	if a == "" {
		return make([]byte, 20)
	}
	b, err := hex.DecodeString(strings.TrimPrefix(string(a), "0x"))
	if err != nil {
		return make([]byte, 20)
	}
	return b
}
