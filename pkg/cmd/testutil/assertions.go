package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// RequireValidProject asserts that a stagehand project structure exists.
func RequireValidProject(t *testing.T, projectDir string) {
	t.Helper()

	require.FileExists(t, filepath.Join(projectDir, "stagehand.yaml"), "stagehand.yaml should exist")
	require.DirExists(t, filepath.Join(projectDir, "migrations"), "migrations directory should exist")
	require.FileExists(t, filepath.Join(projectDir, "migrations", "incantation.sql"), "incantation.sql should exist")
}

// RequireFileExists asserts that a file exists and optionally checks its
// content.
func RequireFileExists(t *testing.T, path string, checks ...func(content string)) {
	t.Helper()

	require.FileExists(t, path, "File should exist: %s", path)

	if len(checks) > 0 {
		content, err := os.ReadFile(path)
		require.NoError(t, err, "Failed to read file: %s", path)

		for _, check := range checks {
			check(string(content))
		}
	}
}

// RequireFileContains returns a check function that verifies file contains text.
func RequireFileContains(t *testing.T, expected string) func(string) {
	return func(content string) {
		require.Contains(t, content, expected, "File should contain: %s", expected)
	}
}

// RequireFileNotContains returns a check function that verifies file doesn't contain text.
func RequireFileNotContains(t *testing.T, unexpected string) func(string) {
	return func(content string) {
		require.NotContains(t, content, unexpected, "File should not contain: %s", unexpected)
	}
}

// RequireNoFile asserts that a file does not exist.
func RequireNoFile(t *testing.T, path string) {
	t.Helper()

	_, err := os.Stat(path)
	require.True(t, os.IsNotExist(err), "File should not exist: %s", path)
}

// RequireRevisionCount asserts the number of revision documents in a
// migrations directory.
func RequireRevisionCount(t *testing.T, migrationsDir string, expectedCount int) {
	t.Helper()

	entries, err := os.ReadDir(migrationsDir)
	require.NoError(t, err, "Failed to read migrations directory")

	count := 0
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), ".yml") {
			count++
		}
	}

	require.Equal(t, expectedCount, count, "Should have expected number of revision documents")
}
