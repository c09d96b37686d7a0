package util

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
)

// PathKey returns "<prefix>:<hash>" where hash is the first 16 hex chars of the
// SHA-256 of the cleaned absolute path. Keys stay short for any path length.
func PathKey(prefix, path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	sum := sha256.Sum256([]byte(filepath.Clean(path)))
	return prefix + ":" + hex.EncodeToString(sum[:8])
}
