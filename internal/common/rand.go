package common

import (
	"crypto/rand"
	"encoding/hex"
	"math/big"
)

const (
	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	digits       = "0123456789"
)

// MakeRandHexString generates size random bytes and returns them hex encoded,
// so the resulting string is twice as long as size.
func MakeRandHexString(size int) (string, error) {

	b := make([]byte, size)
	_, err := rand.Read(b)
	if err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}

// RandomString returns a random string of length n over [A-Za-z0-9].
func RandomString(n int) (string, error) {
	return randomFrom(alphanumeric, n)
}

// RandomDigits returns a random string of n decimal digits. Leading zeros are
// kept, so the result is always exactly n characters long.
func RandomDigits(n int) (string, error) {
	return randomFrom(digits, n)
}

func randomFrom(alphabet string, n int) (string, error) {
	if n <= 0 {
		return "", nil
	}

	max := big.NewInt(int64(len(alphabet)))
	out := make([]byte, n)
	for i := range out {
		idx, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		out[i] = alphabet[idx.Int64()]
	}

	return string(out), nil
}
