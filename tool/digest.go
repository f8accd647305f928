package tool

import (
	"crypto/sha256"
	"encoding/hex"
)

// Digest returns the content digest of source: the lowercase hex SHA-256 of
// its bytes. Any byte-level change yields a different digest.
func Digest(source string) string {
	sum := sha256.Sum256([]byte(source))
	return hex.EncodeToString(sum[:])
}

// ShortDigest returns the first 12 characters of a digest for logging.
func ShortDigest(digest string) string {
	if len(digest) > 12 {
		return digest[:12]
	}
	return digest
}
