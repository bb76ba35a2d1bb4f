package render

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileDiffIdenticalContentIsEmpty(t *testing.T) {
	out, err := FileDiff("/etc/same", []byte("hello\n"), []byte("hello\n"))
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestFileDiffReportsHunksWithoutError(t *testing.T) {
	out, err := FileDiff("/etc/changed", []byte("one\n"), []byte("two\n"))
	require.NoError(t, err)
	assert.Contains(t, out, "-one")
	assert.Contains(t, out, "+two")
}

func TestPageWithoutPagerWritesDirectly(t *testing.T) {
	old := PagerCommand
	PagerCommand = nil
	defer func() { PagerCommand = old }()

	var buf bytes.Buffer
	require.NoError(t, Page(&buf, "hello world"))
	assert.Equal(t, "hello world", buf.String())
}

func TestPageWithPagerShellsOut(t *testing.T) {
	old := PagerCommand
	PagerCommand = []string{"cat"}
	defer func() { PagerCommand = old }()

	var buf bytes.Buffer
	require.NoError(t, Page(&buf, "piped through cat\n"))
	assert.Equal(t, "piped through cat\n", buf.String())
}
