// Package sha256 provides content digests for uploaded bitmaps, used to
// correlate log lines for repeated uploads of the same image.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the hex SHA-256 of data.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
