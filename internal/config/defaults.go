package config

import (
	"os"
	"path/filepath"

	"docx-pdf-packer/internal/domain"
)

// Default conversion limits, mirroring the converter's retry contract.
const (
	DefaultMaxParallel    = 8
	DefaultMaxRetries     = 5
	DefaultTimeoutSeconds = 600
)

// DefaultSettings returns baseline local configuration for first launch.
func DefaultSettings() domain.Settings {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = "."
	}

	return domain.Settings{
		OutputDir:      filepath.Join(homeDir, "Documents"),
		MaxParallel:    DefaultMaxParallel,
		MaxRetries:     DefaultMaxRetries,
		TimeoutSeconds: DefaultTimeoutSeconds,
		UsePassword:    true,
	}
}
