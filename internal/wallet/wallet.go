// Package wallet holds the identity helpers shared by the access and catalog
// layers: address normalization and validation, owner-name handling, and the
// masking applied before a holder identity leaves the service.
package wallet

import "strings"

const (
	addressLength = 42 // "0x" + 40 hex chars

	// Identifiers at or below this many runes carry no meaningful privacy
	// surface and are returned unmasked.
	maskMinLength = 10
	maskPrefixLen = 6
	maskSuffixLen = 4
)

// Normalize trims and lowercases a wallet identifier. All comparisons in the
// service happen on normalized form.
func Normalize(addr string) string {
	return strings.ToLower(strings.TrimSpace(addr))
}

// Valid reports whether addr is a well-formed 0x-prefixed address.
func Valid(addr string) bool {
	addr = Normalize(addr)
	if len(addr) != addressLength || !strings.HasPrefix(addr, "0x") {
		return false
	}
	for _, c := range addr[2:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

// IsName reports whether value looks like an ENS/Base name rather than an
// address: it contains a dot and no 0x prefix (vitalik.eth, name.base.eth).
func IsName(value string) bool {
	value = Normalize(value)
	return strings.Contains(value, ".") && !strings.HasPrefix(value, "0x")
}

// ValidOwner reports whether value is acceptable as an owner identity: either
// a plain address or a dotted name.
func ValidOwner(value string) bool {
	if IsName(value) {
		return true
	}
	return Valid(value)
}

// Mask reduces an identifier to a short prefix and suffix joined by an
// ellipsis, keeping it useful for "who has this rover" reports without
// disclosing the full identity. ENS names flow through here as well as hex
// addresses, so the cut points count runes, not bytes. Short identifiers
// pass through unchanged.
func Mask(addr string) string {
	runes := []rune(addr)
	if len(runes) <= maskMinLength {
		return addr
	}
	return string(runes[:maskPrefixLen]) + "..." + string(runes[len(runes)-maskSuffixLen:])
}
