package fileopt

import (
	"crypto/md5"
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"os"
	"strings"
)

const validateBlockSize = 64 * 1024

// ValidateHash streams path through the named hash algorithm in fixed
// blocks and compares against expectedHex case-insensitively. Memory use
// is bounded regardless of file size.
func ValidateHash(path, expectedHex, algorithm string) (bool, error) {
	var h hash.Hash
	switch strings.ToLower(algorithm) {
	case "", "sha256":
		h = sha256.New()
	case "sha1":
		h = sha1.New()
	case "md5":
		h = md5.New()
	default:
		return false, fmt.Errorf("unsupported hash algorithm: %s", algorithm)
	}
	file, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("error opening file for validation: %w", err)
	}
	defer file.Close()
	if _, err := io.CopyBuffer(h, file, make([]byte, validateBlockSize)); err != nil {
		return false, fmt.Errorf("error hashing file: %w", err)
	}
	actual := hex.EncodeToString(h.Sum(nil))
	return strings.EqualFold(actual, expectedHex), nil
}

// ValidateSize reports whether path is exactly expectedSize bytes.
func ValidateSize(path string, expectedSize int64) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		return false, fmt.Errorf("error stating file for validation: %w", err)
	}
	return info.Size() == expectedSize, nil
}
