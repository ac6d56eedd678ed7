package session

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Run directory name format: run_2025-10-30T14-30-00
var runNameRegex = regexp.MustCompile(`^run_\d{4}-\d{2}-\d{2}T\d{2}-\d{2}-\d{2}$`)

// ValidateRunName validates a run directory name to prevent path traversal attacks.
// It checks for:
//   - Path traversal attempts (..)
//   - Absolute paths
//   - Path separators (run name should be a simple directory name)
//   - Expected format (run_YYYY-MM-DDTHH-MM-SS)
//   - Path escaping the output directory
//
// This prevents CWE-22 (Improper Limitation of a Pathname to a Restricted Directory)
func ValidateRunName(outputDir, runName string) error {
	// Check for empty
	if runName == "" {
		return fmt.Errorf("run name cannot be empty")
	}

	// Check for path traversal attempts
	if strings.Contains(runName, "..") {
		return fmt.Errorf("invalid run name: contains '..' (path traversal attempt)")
	}

	// Check for absolute paths
	if filepath.IsAbs(runName) {
		return fmt.Errorf("invalid run name: must be relative path")
	}

	// Check for path separators (run name should be simple directory name)
	if strings.ContainsAny(runName, "/\\") {
		return fmt.Errorf("invalid run name: must be directory name without path separators")
	}

	// Validate format (ensures only expected run directories are accessed)
	if !runNameRegex.MatchString(runName) {
		return fmt.Errorf("invalid run name format: expected 'run_YYYY-MM-DDTHH-MM-SS', got '%s'", runName)
	}

	// Additional check: ensure resolved path stays within output directory
	fullPath := filepath.Join(outputDir, runName)
	cleanPath := filepath.Clean(fullPath)

	absOutput, err := filepath.Abs(outputDir)
	if err != nil {
		return fmt.Errorf("failed to resolve output directory: %w", err)
	}

	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return fmt.Errorf("failed to resolve run path: %w", err)
	}

	// Ensure the path is actually within the output directory
	// Use separator suffix to prevent prefix attacks like "/var/image" matching "/var/image-user"
	if !strings.HasPrefix(absPath, absOutput+string(filepath.Separator)) {
		return fmt.Errorf("run path escapes output directory")
	}

	return nil
}
