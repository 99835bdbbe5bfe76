package common

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"math/big"
)

// MakeRandHexString generates size random bytes and returns them hex-encoded,
// so the result is twice as long as size.
func MakeRandHexString(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// GenerateRandByteArray returns size bytes from crypto/rand.
// It panics if the system source fails, which only happens on broken hosts.
func GenerateRandByteArray(size int) []byte {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// RandDigits returns a decimal string of exactly n digits, zero padded.
func RandDigits(n int) string {
	if n <= 0 {
		return ""
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		panic(err)
	}
	return fmt.Sprintf("%0*d", n, v)
}
