package fsentry_test

import (
	"testing"

	"github.com/etnz/syskoll/fsentry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseModeSymbolic(t *testing.T) {
	m, err := fsentry.ParseMode("u=rwx,g=rw,o=r")
	require.NoError(t, err)
	assert.Equal(t, fsentry.Mode(0o764), m)

	zero, err := fsentry.ParseMode("u=,g=,o=")
	require.NoError(t, err)
	assert.Equal(t, fsentry.Mode(0), zero)
}

func TestParseModeOctal(t *testing.T) {
	m, err := fsentry.ParseMode("644")
	require.NoError(t, err)
	assert.Equal(t, fsentry.Mode(0o644), m)
}
