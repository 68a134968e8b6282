package config

import (
	"crypto/sha256"
	"encoding/hex"
)

// PathHash returns the short hash used to key per-repo state directories.
func PathHash(absPath string) string {
	sum := sha256.Sum256([]byte(absPath))
	return hex.EncodeToString(sum[:])[:16]
}
