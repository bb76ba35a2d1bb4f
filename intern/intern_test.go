package intern_test

import (
	"testing"

	"github.com/etnz/syskoll/intern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternDeduplicates(t *testing.T) {
	in := intern.New()
	a := in.Intern("pacman")
	b := in.Intern("dpkg")
	c := in.Intern("pacman")

	assert.Equal(t, a, c, "interning the same string twice must yield the same handle")
	assert.NotEqual(t, a, b)
	assert.Equal(t, "pacman", in.String(a))
	assert.Equal(t, "dpkg", in.String(b))
	assert.Equal(t, 2, in.Len())
}

func TestZeroIDIsNeverAllocated(t *testing.T) {
	in := intern.New()
	id := in.Intern("x86_64")
	assert.NotEqual(t, intern.ID(0), id)
}

func TestStringPanicsOnForeignHandle(t *testing.T) {
	a := intern.New()
	b := intern.New()
	id := b.Intern("something")

	require.Panics(t, func() { a.String(id) })
}
