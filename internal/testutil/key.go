package testutil

import (
	"crypto/sha256"
)

// SealingKey derives a fixed 32-byte sealing key from seed. Ciphertexts
// still differ between runs because every seal draws a fresh nonce.
func SealingKey(seed string) []byte {
	sum := sha256.Sum256([]byte("pnftm/test-key/" + seed))
	return sum[:]
}
