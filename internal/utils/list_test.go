package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadDownloadList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.yaml")
	content := `- link: https://example.com/a.bin
  op: downloads/a.bin
- link: https://example.com/b.bin
  sha256: abc123
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	entries, err := ReadDownloadList(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("parsed %d entries, want 2", len(entries))
	}
	if entries[0].OutputPath != "downloads/a.bin" {
		t.Fatalf("first output path %q", entries[0].OutputPath)
	}
	if entries[1].ExpectedHash != "abc123" {
		t.Fatalf("second hash %q", entries[1].ExpectedHash)
	}
}

func TestReadDownloadListRejectsMissingLink(t *testing.T) {
	path := filepath.Join(t.TempDir(), "list.yaml")
	if err := os.WriteFile(path, []byte("- op: out.bin\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadDownloadList(path); err == nil {
		t.Fatal("entry without a link should be rejected")
	}
}

func TestReadDownloadListMissingFile(t *testing.T) {
	if _, err := ReadDownloadList(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing file should be an error")
	}
}
