// Package hash derives the stable 64-bit identifiers the keyword
// dictionary keys its bitvectors by.
package hash

import "github.com/cespare/xxhash/v2"

// ID returns the xxHash64 of token. Identifiers are stable across
// processes and persisted inside keyword index files, so the hash
// function here must never change.
func ID(token string) uint64 {
	return xxhash.Sum64String(token)
}
