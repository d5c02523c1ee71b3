// Package testutil provides shared test helpers.
package testutil

import (
	"bytes"
	"flag"
	"os"
	"path/filepath"
	"testing"
)

// updateGolden controls whether golden files should be updated.
// Use: go test ./... -update
var updateGolden = flag.Bool("update", false, "update golden files")

// ShouldUpdate returns true if golden files should be updated.
func ShouldUpdate() bool {
	return *updateGolden
}

// AssertGolden compares got against the golden file at path, rewriting it
// when -update is set.
func AssertGolden(t *testing.T, path string, got []byte) {
	t.Helper()

	if ShouldUpdate() {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("failed to create golden dir: %v", err)
		}
		if err := os.WriteFile(path, got, 0o644); err != nil {
			t.Fatalf("failed to update golden file %s: %v", path, err)
		}
		return
	}

	want, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("failed to read golden file %s (run with -update to create): %v", path, err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("output differs from golden file %s\ngot:\n%s\nwant:\n%s", path, got, want)
	}
}

// TempDir returns a per-test temporary directory.
func TempDir(t *testing.T) string {
	t.Helper()
	return t.TempDir()
}
