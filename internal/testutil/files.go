// Package testutil holds shared test helpers.
package testutil

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// FileAssertions asserts file system state below a base directory.
type FileAssertions struct {
	t       testing.TB
	baseDir string
}

// NewFileAssertions creates a new file assertions helper.
func NewFileAssertions(t testing.TB, baseDir string) *FileAssertions {
	return &FileAssertions{t: t, baseDir: baseDir}
}

func (fa *FileAssertions) path(rel string) string {
	return filepath.Join(fa.baseDir, rel)
}

// AssertFileExists validates that a regular file exists.
func (fa *FileAssertions) AssertFileExists(rel string) *FileAssertions {
	fa.t.Helper()
	info, err := os.Stat(fa.path(rel))
	switch {
	case err != nil:
		fa.t.Errorf("Expected file to exist: %s (%v)", fa.path(rel), err)
	case info.IsDir():
		fa.t.Errorf("Expected %s to be a file, but it's a directory", fa.path(rel))
	}
	return fa
}

// AssertNoFile validates that nothing exists at rel.
func (fa *FileAssertions) AssertNoFile(rel string) *FileAssertions {
	fa.t.Helper()
	if _, err := os.Stat(fa.path(rel)); err == nil {
		fa.t.Errorf("Expected %s not to exist", fa.path(rel))
	}
	return fa
}

// AssertMode validates the permission bits of rel.
func (fa *FileAssertions) AssertMode(rel string, want os.FileMode) *FileAssertions {
	fa.t.Helper()
	info, err := os.Stat(fa.path(rel))
	if err != nil {
		fa.t.Errorf("Failed to stat %s: %v", fa.path(rel), err)
		return fa
	}
	if got := info.Mode().Perm(); got != want {
		fa.t.Errorf("Expected %s to have mode %o, got %o", rel, want, got)
	}
	return fa
}

// AssertFileContains validates that a file contains expected content.
func (fa *FileAssertions) AssertFileContains(rel, expected string) *FileAssertions {
	fa.t.Helper()
	if content, ok := fa.read(rel); ok && !strings.Contains(content, expected) {
		fa.t.Errorf("Expected file %s to contain %q\nActual content:\n%s", rel, expected, content)
	}
	return fa
}

// AssertFileNotContains validates that a file does not contain content.
func (fa *FileAssertions) AssertFileNotContains(rel, unexpected string) *FileAssertions {
	fa.t.Helper()
	if content, ok := fa.read(rel); ok && strings.Contains(content, unexpected) {
		fa.t.Errorf("Expected file %s not to contain %q", rel, unexpected)
	}
	return fa
}

// AssertFileCount validates the number of files with suffix directly below rel.
func (fa *FileAssertions) AssertFileCount(rel, suffix string, want int) *FileAssertions {
	fa.t.Helper()
	entries, err := os.ReadDir(fa.path(rel))
	if err != nil {
		fa.t.Errorf("Failed to read directory %s: %v", fa.path(rel), err)
		return fa
	}
	n := 0
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			n++
		}
	}
	if n != want {
		fa.t.Errorf("Expected %d %s files in %s, found %d", want, suffix, rel, n)
	}
	return fa
}

func (fa *FileAssertions) read(rel string) (string, bool) {
	fa.t.Helper()
	// #nosec G304 - test helper, paths are controlled by test code
	content, err := os.ReadFile(fa.path(rel))
	if err != nil {
		fa.t.Errorf("Failed to read file %s: %v", fa.path(rel), err)
		return "", false
	}
	return string(content), true
}
