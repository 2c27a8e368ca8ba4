// Package checksum computes the content fingerprints used as fragment cache keys.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// FingerprintLen is the number of hex characters kept from the digest.
const FingerprintLen = 24

// Sum returns the hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

// Fingerprint returns the first FingerprintLen hex characters of the SHA-256
// digest of text. No normalisation is applied: any byte difference, whitespace
// included, yields a different fingerprint.
func Fingerprint(text string) string {
	return Sum([]byte(text))[:FingerprintLen]
}

// ArtifactSum returns the hex-encoded BLAKE3 digest of a rendered artifact.
func ArtifactSum(data []byte) string {
	h := blake3.Sum256(data)
	return hex.EncodeToString(h[:])
}
