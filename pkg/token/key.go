// Package token holds the static token catalog and candidate pool table the
// agent trades over. The catalog is loaded once at startup from CSV files and
// is immutable afterwards.
package token

import (
	"fmt"
	"strings"
)

// Key identifies a token class on GalaChain. The canonical string form is
// "collection|category|type|additionalKey". Two keys are equal iff all four
// fields match.
type Key struct {
	Collection    string `json:"collection"`
	Category      string `json:"category"`
	Type          string `json:"type"`
	AdditionalKey string `json:"additionalKey"`
}

// ParseKey parses the canonical pipe-separated form.
func ParseKey(s string) (Key, error) {
	parts := strings.Split(s, "|")
	if len(parts) != 4 {
		return Key{}, fmt.Errorf("token key %q: expected 4 pipe-separated fields, got %d", s, len(parts))
	}
	for i, p := range parts {
		if p == "" {
			return Key{}, fmt.Errorf("token key %q: field %d is empty", s, i)
		}
	}
	return Key{
		Collection:    parts[0],
		Category:      parts[1],
		Type:          parts[2],
		AdditionalKey: parts[3],
	}, nil
}

// KeyFromSymbol expands a bare symbol to a full key using the standard
// fungible-token template Unit|none|none.
func KeyFromSymbol(symbol string) Key {
	return Key{
		Collection:    symbol,
		Category:      "Unit",
		Type:          "none",
		AdditionalKey: "none",
	}
}

// String returns the canonical pipe-separated serialization.
func (k Key) String() string {
	return k.Collection + "|" + k.Category + "|" + k.Type + "|" + k.AdditionalKey
}

// Symbol is the display symbol, the collection field by convention.
func (k Key) Symbol() string {
	return k.Collection
}

// Equal reports field-wise equality.
func (k Key) Equal(other Key) bool {
	return k == other
}

// IsZero reports whether the key is the empty value.
func (k Key) IsZero() bool {
	return k == Key{}
}

// Less orders keys by their canonical string form. Used to derive canonical
// pool identities from unordered token pairs.
func (k Key) Less(other Key) bool {
	return k.String() < other.String()
}
