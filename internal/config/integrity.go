package config

import (
	"errors"
	"fmt"
	"path/filepath"
)

// IntegrityResult summarizes a checksum audit. Unlike Load, which fails on the
// first problem, CheckIntegrity collects everything it finds.
type IntegrityResult struct {
	Passed   bool
	Warnings []string
	Errors   []string
}

// CheckIntegrity audits the config at configPath against its .checksums.
// A missing manifest is only a warning.
func CheckIntegrity(configPath string) (*IntegrityResult, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return nil, err
	}
	configDir := filepath.Dir(absPath)
	result := &IntegrityResult{Passed: true}

	manifest, err := LoadChecksums(configDir)
	if errors.Is(err, ErrNoChecksums) {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("no %s manifest in %s; run 'cinema-bridge config lock' to enable integrity verification", ChecksumFileName, configDir))
		return result, nil
	}
	if err != nil {
		return nil, err
	}

	for _, filename := range ScopeFiles(absPath) {
		filePath := filepath.Join(configDir, filename)
		expectedHash, inManifest := manifest.Hashes[filename]

		actualHash, err := ComputeBlake3Hash(filePath)
		if err != nil {
			if inManifest {
				result.Passed = false
				result.Errors = append(result.Errors, fmt.Sprintf("%s is in the manifest but cannot be read: %v", filename, err))
			}
			continue
		}

		if !inManifest {
			result.Passed = false
			result.Errors = append(result.Errors, fmt.Sprintf("file %s not in %s manifest", filename, ChecksumFileName))
			continue
		}

		if actualHash != expectedHash {
			result.Passed = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("hash mismatch for %s (expected %s, got %s)", filename, expectedHash, actualHash))
		}
	}

	return result, nil
}
