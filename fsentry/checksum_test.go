package fsentry_test

import (
	"bytes"
	"crypto/sha256"
	"testing"

	"github.com/etnz/syskoll/fsentry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMD5HexDisplayForm(t *testing.T) {
	// S1 from the design notes: a single md5sums line.
	sum, err := fsentry.ParseMD5Hex("1f7b7e9e7e9e7e9e7e9e7e9e7e9e7e9a")
	require.NoError(t, err)
	assert.Equal(t, "md5:1f7b7e9e7e9e7e9e7e9e7e9e7e9e7e9a", sum.String())
}

func TestChecksumPurity(t *testing.T) {
	// Rehashing content never depends on filesystem metadata like mtime;
	// hashing the same bytes twice yields the same checksum.
	data := []byte("#!/bin/sh\necho hi\n")
	c1, err := fsentry.Rehash(fsentry.Checksum{}, bytes.NewReader(data))
	require.NoError(t, err)
	c2, err := fsentry.Rehash(fsentry.Checksum{}, bytes.NewReader(data))
	require.NoError(t, err)
	assert.True(t, c1.Equal(c2))

	want := sha256.Sum256(data)
	assert.Equal(t, fsentry.SHA256(want), c1)
}

func TestRehashReusesExistingSHA256(t *testing.T) {
	want := sha256.Sum256([]byte("unused"))
	c := fsentry.SHA256(want)
	got, err := fsentry.Rehash(c, bytes.NewReader(nil))
	require.NoError(t, err)
	assert.True(t, c.Equal(got))
}

func TestChecksumEqualityAcrossAlgosIsFalse(t *testing.T) {
	md5c, err := fsentry.ParseMD5Hex("00000000000000000000000000000000")
	require.NoError(t, err)
	sha := fsentry.SHA256([sha256.Size]byte{})
	assert.False(t, md5c.Equal(sha))
}
