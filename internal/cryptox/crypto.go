// Package cryptox holds the hashing used for local server session keys.
package cryptox

import (
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"

	"github.com/casanet/remote-server/internal/common"
)

// KeyLength is the length of a generated local server auth key.
const KeyLength = 64

// HashKey returns hex(SHA-512(key + salt)), the form in which session keys
// are stored.
func HashKey(key, salt string) string {
	sum := sha512.Sum512([]byte(key + salt))
	return hex.EncodeToString(sum[:])
}

// GenerateKey returns a fresh alphanumeric auth key for a local server.
func GenerateKey() (string, error) {
	return common.RandomString(KeyLength)
}

// EqualHashes compares two hex hashes in constant time.
func EqualHashes(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
