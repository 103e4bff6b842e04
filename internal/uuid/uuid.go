// Package uuid provides identifier generation for locally created records.
package uuid

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Prefixes used for ids minted on the device.
const (
	PrefixOffline = "offline"
	PrefixSync    = "sync"
	PrefixWeather = "weather"
	PrefixChat    = "chat"
	PrefixLocal   = "local"
)

// New generates a new UUID v4.
func New() string {
	return uuid.New().String()
}

// NewPrefixed returns "<prefix>_<uuid>".
func NewPrefixed(prefix string) string {
	return prefix + "_" + New()
}

// SplitPrefixed splits an id produced by NewPrefixed and validates the UUID part.
func SplitPrefixed(id string) (prefix string, u uuid.UUID, err error) {
	i := strings.Index(id, "_")
	if i <= 0 {
		return "", uuid.Nil, fmt.Errorf("id %q has no prefix", id)
	}
	u, err = uuid.Parse(id[i+1:])
	if err != nil {
		return "", uuid.Nil, fmt.Errorf("invalid id %q: %w", id, err)
	}
	return id[:i], u, nil
}

// HasPrefix reports whether id was minted with prefix.
func HasPrefix(id, prefix string) bool {
	p, _, err := SplitPrefixed(id)
	return err == nil && p == prefix
}

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// ShortCode returns n upper-case alphanumeric characters drawn from random
// UUIDs, for human-facing references.
func ShortCode(n int) string {
	var b strings.Builder
	b.Grow(n)
	for b.Len() < n {
		u := uuid.New()
		for _, c := range u[:] {
			if b.Len() == n {
				break
			}
			// 252 is the largest multiple of 36 below 256
			if c < 252 {
				b.WriteByte(codeAlphabet[int(c)%len(codeAlphabet)])
			}
		}
	}
	return b.String()
}
