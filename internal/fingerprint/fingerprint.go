// Package fingerprint computes content digests used for change detection.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/minio/highwayhash"

	"github.com/dshills/llmdiag/pkg/types"
)

// cacheKeySeed keys the HighwayHash used for in-process cache keys.
// It is not a secret: cache keys never leave the process.
var cacheKeySeed = []byte("llmdiag-response-cache-key-32by!")

// Compute returns the SHA-256 fingerprint of text as lowercase hex.
func Compute(text string) types.Fingerprint {
	sum := sha256.Sum256([]byte(text))
	return types.Fingerprint(hex.EncodeToString(sum[:]))
}

// Equal reports whether text hashes to fp.
func Equal(text string, fp types.Fingerprint) bool {
	return !fp.IsZero() && Compute(text) == fp
}

// CacheKey returns a 64-bit HighwayHash over parts, separated by a NUL byte
// so that ("ab","c") and ("a","bc") differ.
func CacheKey(parts ...string) uint64 {
	h, err := highwayhash.New64(cacheKeySeed)
	if err != nil {
		// Only fails for a key that is not 32 bytes long.
		panic(err)
	}
	for i, p := range parts {
		if i > 0 {
			_, _ = h.Write([]byte{0})
		}
		_, _ = h.Write([]byte(p))
	}
	return h.Sum64()
}
