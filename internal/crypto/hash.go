package crypto

import (
	"crypto/sha256"
	"encoding/hex"
)

// HashBytes returns SHA-256 hash of the input data
func HashBytes(data []byte) []byte {
	hash := sha256.Sum256(data)
	return hash[:]
}

// HashHex returns the lowercase hex SHA-256 digest of data.
// Block hashes and transaction ids are rendered this way.
func HashHex(data []byte) string {
	return hex.EncodeToString(HashBytes(data))
}

// IsHexDigest reports whether s looks like a HashHex output.
func IsHexDigest(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
