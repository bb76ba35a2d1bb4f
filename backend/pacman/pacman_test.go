package pacman

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDescLibrarySubpackage(t *testing.T) {
	const desc = `%NAME%
library-subpackage

%VERSION%
1.2.3-4

%ARCH%
x86_64

%DEPENDS%
somelib=1.2.3

%REASON%
1
`
	e, err := parseDesc(strings.NewReader(desc))
	require.NoError(t, err)

	assert.Equal(t, "library-subpackage", e.Name)
	assert.Equal(t, "1.2.3-4", e.Version)
	assert.Equal(t, "x86_64", e.Arch)
	require.Len(t, e.Depends, 1)
	assert.Equal(t, "somelib", stripDependVersion(e.Depends[0]))
	assert.Equal(t, "1", e.Reason)
}

func TestStripDependVersionVariants(t *testing.T) {
	assert.Equal(t, "somelib", stripDependVersion("somelib=1.2.3"))
	assert.Equal(t, "somelib", stripDependVersion("somelib>=1.2.3"))
	assert.Equal(t, "somelib", stripDependVersion("somelib<=1.2.3"))
	assert.Equal(t, "plain", stripDependVersion("plain"))
}

func TestParseMtreeDirStackAndEscapes(t *testing.T) {
	const mtree = `#mtree
/set type=file uid=0 gid=0 mode=644
. type=dir mode=755
./usr type=dir mode=755
usr type=dir mode=755
    file\040one.txt size=4 sha256digest=0000000000000000000000000000000000000000000000000000000000000000
..
..
`
	// Intentionally minimal: exercise the "/set" default, a full-path entry,
	// directory push via the relative "usr" dir entry, a nested file entry
	// with an octal escape, and ".." pops.
	recs, err := ParseMtree(strings.NewReader(mtree))
	require.NoError(t, err)
	require.NotEmpty(t, recs)
	require.Len(t, recs, 3)
	assert.Equal(t, "/usr", recs[0].Path)
	assert.Equal(t, "/usr/file one.txt", recs[2].Path)
	assert.Equal(t, "file", recs[2].Type)
}

func TestMtreeToPropertiesRegularFile(t *testing.T) {
	size := int64(4)
	rec := MtreeRecord{
		Path:   "/usr/file.txt",
		Type:   "file",
		Mode:   "644",
		UID:    "0",
		GID:    "0",
		Size:   &size,
		SHA256: strings.Repeat("00", 32),
	}
	props, ok := mtreeToProperties(rec)
	require.True(t, ok)
	assert.Equal(t, "sha256:"+strings.Repeat("00", 32), props.Checksum.String())
}

func TestPacmanArchiveSkip(t *testing.T) {
	assert.True(t, pacmanArchiveSkip.MatchString("/.BUILDINFO"))
	assert.True(t, pacmanArchiveSkip.MatchString("/.PKGINFO"))
	assert.True(t, pacmanArchiveSkip.MatchString("/.MTREE"))
	assert.False(t, pacmanArchiveSkip.MatchString("/usr/bin/foo"))
}
