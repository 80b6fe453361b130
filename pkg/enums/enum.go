package enums

import (
	"fmt"
	"slices"
	"strings"
)

// member reports whether v is one of set.
func member[T ~string](set []T, v T) bool {
	return slices.Contains(set, v)
}

// parse matches trimmed raw input against set. Matching is case-sensitive;
// callers normalize case where the wire format allows it.
func parse[T ~string](set []T, kind, raw string) (T, error) {
	value := T(strings.TrimSpace(raw))
	if member(set, value) {
		return value, nil
	}
	var zero T
	return zero, fmt.Errorf("invalid %s %q", kind, raw)
}
