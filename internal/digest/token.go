package digest

import (
	"crypto/rand"
	"math/big"
)

// tokenBits is the entropy carried by RandomToken.
const tokenBits = 130

// RandomToken returns an opaque identifier with 130 bits of entropy rendered
// in radix 32 (digits 0-9 and a-v). Shorter than a UUID and URL safe.
func RandomToken() string {
	b := make([]byte, (tokenBits+7)/8)
	if _, err := rand.Read(b); err != nil {
		panic("digest: crypto/rand unavailable: " + err.Error())
	}
	// keep the low tokenBits bits
	b[0] &= byte(1<<(tokenBits%8)) - 1
	return new(big.Int).SetBytes(b).Text(32)
}
