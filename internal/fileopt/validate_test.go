package fileopt

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTestFile(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data.bin")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestValidateHashRoundTrip(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	path := writeTestFile(t, data)
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	ok, err := ValidateHash(path, digest, "sha256")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("matching digest rejected")
	}

	// Case-insensitive comparison.
	ok, err = ValidateHash(path, strings.ToUpper(digest), "")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("uppercase digest rejected")
	}
}

func TestValidateHashDetectsMutation(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	mutated := append([]byte(nil), data...)
	mutated[10] ^= 0x01
	path := writeTestFile(t, mutated)

	ok, err := ValidateHash(path, digest, "sha256")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("single-byte mutation not detected")
	}
}

func TestValidateHashUnsupportedAlgorithm(t *testing.T) {
	path := writeTestFile(t, []byte("data"))
	if _, err := ValidateHash(path, "00", "crc32"); err == nil {
		t.Fatal("expected error for unsupported algorithm")
	}
}

func TestValidateHashMissingFile(t *testing.T) {
	if _, err := ValidateHash(filepath.Join(t.TempDir(), "nope"), "00", "sha256"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateSize(t *testing.T) {
	data := []byte("0123456789")
	path := writeTestFile(t, data)

	ok, err := ValidateSize(path, 10)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("exact size rejected")
	}
	ok, err = ValidateSize(path, 11)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("wrong size accepted")
	}
}
