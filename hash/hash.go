// Package hash computes the SHA-256 full hashes, 4-byte prefixes, and
// 32-bit host keys the Safe Browsing v2 protocol indexes everything by.
package hash

import (
	"crypto/sha256"
	"encoding/binary"
)

// PrefixLen is the default prefix length used for chunk entries and
// lookup hashes.
const PrefixLen = 4

// Full returns the 32-byte SHA-256 hash of s.
func Full(s string) [32]byte {
	return sha256.Sum256([]byte(s))
}

// Prefix returns the first n bytes of SHA-256(s). n must be in [0,32];
// callers pass PrefixLen unless they're re-deriving a stored shorter
// prefix.
func Prefix(s string, n int) []byte {
	if n <= 0 {
		return nil
	}
	if n > 32 {
		n = 32
	}
	full := Full(s)
	out := make([]byte, n)
	copy(out, full[:n])
	return out
}

// HostKey returns the little-endian uint32 of the first 4 bytes of
// SHA-256("<host>/"), the primary index Storage keys chunk entries by.
func HostKey(host string) uint32 {
	full := Full(host + "/")
	return binary.LittleEndian.Uint32(full[:4])
}
