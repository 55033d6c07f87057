package util

import (
	"crypto/sha256"
	"encoding/hex"
)

func SHA256Hex(b []byte) string {
	x := sha256.Sum256(b)
	return hex.EncodeToString(x[:])
}

// ContentID derives a document id from the file content, so uploading the
// same bytes again addresses the same document.
func ContentID(content []byte) string {
	return SHA256Hex(content)
}
