package fsentry_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/etnz/syskoll/fsentry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileContentsThresholdChoosesFromFile(t *testing.T) {
	big := bytes.Repeat([]byte{'x'}, fsentry.InlineContentThreshold+1)
	_, sha, _, err := fsentry.HashReader(bytes.NewReader(big))
	require.NoError(t, err)

	_, err = fsentry.NewFileContents(fsentry.SHA256(sha), big, "")
	assert.Error(t, err, "content over the threshold without a backing path must be rejected")

	fc, err := fsentry.NewFileContents(fsentry.SHA256(sha), big, "/var/cache/pkg/foo")
	require.NoError(t, err)
	assert.Equal(t, fsentry.ContentsFromFile, fc.Kind)
}

func TestFileContentsThresholdKeepsSmallInline(t *testing.T) {
	small := []byte(strings.Repeat("y", 10))
	_, sha, _, err := fsentry.HashReader(bytes.NewReader(small))
	require.NoError(t, err)

	fc, err := fsentry.NewFileContents(fsentry.SHA256(sha), small, "")
	require.NoError(t, err)
	assert.Equal(t, fsentry.ContentsLiteral, fc.Kind)
}

func TestFileContentsRejectsNonSHA256(t *testing.T) {
	md5c, _ := fsentry.ParseMD5Hex("00000000000000000000000000000000")
	_, err := fsentry.NewFileContents(md5c, nil, "")
	assert.Error(t, err)
}
