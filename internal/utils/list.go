package utils

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DownloadEntry is one item in a YAML url-list file.
type DownloadEntry struct {
	OutputPath   string `yaml:"op"`
	URL          string `yaml:"link"`
	ExpectedHash string `yaml:"sha256,omitempty"`
}

// ReadDownloadList parses a YAML file of download entries.
func ReadDownloadList(path string) ([]DownloadEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading url list: %w", err)
	}
	var entries []DownloadEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("error parsing url list: %w", err)
	}
	for i, entry := range entries {
		if entry.URL == "" {
			return nil, fmt.Errorf("entry %d has no link", i+1)
		}
	}
	return entries, nil
}
