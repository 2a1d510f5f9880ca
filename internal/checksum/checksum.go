// Package checksum computes content hashes used for change detection.
package checksum

import (
	"encoding/hex"

	"github.com/zeebo/xxh3"
)

// Sum returns the hex-encoded 128-bit XXH3 digest of data.
func Sum(data []byte) string {
	h := xxh3.Hash128(data).Bytes()
	return hex.EncodeToString(h[:])
}
