package ton

import (
	"fmt"
	"strings"

	"github.com/xssnick/tonutils-go/address"
)

// ParseAccount принимает raw ("0:<hex>") или user-friendly ("EQ...", "UQ...") адрес.
func ParseAccount(s string) (*address.Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty address")
	}
	if strings.Contains(s, ":") {
		return address.ParseRawAddr(strings.ToLower(s))
	}
	return address.ParseAddr(s)
}

// CanonicalAccount returns the raw lowercase form used as the ledger account key,
// so both address spellings of one wallet share a balance.
func CanonicalAccount(s string) (string, error) {
	a, err := ParseAccount(s)
	if err != nil {
		return "", fmt.Errorf("invalid TON address %q: %w", s, err)
	}
	return a.StringRaw(), nil
}
