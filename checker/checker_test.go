package checker_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/etnz/syskoll/checker"
	"github.com/etnz/syskoll/fsentry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path string, content []byte, mode os.FileMode) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, content, mode))
}

func TestCheckEntryChecksumMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "file.txt")
	writeFile(t, path, []byte("actual content"), 0o644)

	_, sha, _, err := fsentry.HashReader(mustOpen(t, path))
	require.NoError(t, err)
	_ = sha

	bogus := fsentry.SHA256([32]byte{1, 2, 3})
	entry := fsentry.NewFileEntry(0, path, fsentry.RegularFileBasic(nil, bogus), 0, 0)

	issue, err := checker.CheckEntry(entry, checker.Options{})
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, checker.IssueChecksumIncorrect, issue.Kind)
}

func TestCheckEntryMissingUnlessOkIfMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nope.txt")

	entry := fsentry.NewFileEntry(0, path, fsentry.RegularFileBasic(nil, fsentry.Checksum{}), 0, 0)
	issue, err := checker.CheckEntry(entry, checker.Options{})
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, checker.IssueMissing, issue.Kind)

	okEntry := fsentry.NewFileEntry(0, path, fsentry.RegularFileBasic(nil, fsentry.Checksum{}), fsentry.FlagOKIfMissing, 0)
	issue, err = checker.CheckEntry(okEntry, checker.Options{})
	require.NoError(t, err)
	assert.Nil(t, issue)
}

func TestCheckEntryRemovedButPresentReportsExists(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "still-here.txt")
	writeFile(t, path, []byte("x"), 0o644)

	entry := fsentry.NewFileEntry(0, path, fsentry.Removed(), 0, 0)
	issue, err := checker.CheckEntry(entry, checker.Options{})
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Equal(t, checker.IssueExists, issue.Kind)
}

func TestCheckAllReportsUnexpectedAndMissing(t *testing.T) {
	root := t.TempDir()
	expected := filepath.Join(root, "expected.txt")
	unexpected := filepath.Join(root, "unexpected.txt")
	writeFile(t, expected, []byte("hi"), 0o644)
	writeFile(t, unexpected, []byte("surprise"), 0o644)

	missingPath := filepath.Join(root, "missing.txt")

	entries := []*fsentry.FileEntry{
		fsentry.NewFileEntry(0, expected, fsentry.RegularFileBasic(nil, fsentry.Checksum{}), 0, 0),
		fsentry.NewFileEntry(0, missingPath, fsentry.RegularFileBasic(nil, fsentry.Checksum{}), 0, 0),
	}

	report, err := checker.CheckAll(context.Background(), root, entries, checker.Options{})
	require.NoError(t, err)

	kinds := map[string]checker.IssueKind{}
	for _, i := range report.Issues {
		kinds[i.Path] = i.Kind
	}
	assert.Equal(t, checker.IssueUnexpected, kinds[unexpected])
	assert.Equal(t, checker.IssueMissing, kinds[missingPath])
	_, flaggedExpected := kinds[expected]
	assert.False(t, flaggedExpected, "a matching entry with no checksum assertion should not be flagged")
}

func TestCheckAllIgnoreGlobCoversDescendants(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "ignored", "nested"), 0o755))
	writeFile(t, filepath.Join(root, "ignored", "nested", "surprise.txt"), []byte("x"), 0o644)

	report, err := checker.CheckAll(context.Background(), root, nil, checker.Options{
		IgnoreGlobs: []string{filepath.Join(root, "ignored")},
	})
	require.NoError(t, err)
	assert.Empty(t, report.Issues, "everything under an ignored directory must be silent regardless of status")
}

func mustOpen(t *testing.T, path string) *os.File {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	return f
}
