package sysusers_test

import (
	"strings"
	"testing"

	"github.com/etnz/syskoll/sysusers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUserWithQuotedGecosAndNumericIDs(t *testing.T) {
	const line = `u user 1000:2000 "GECOS quux" /home/user /bin/bash` + "\n"

	ds, err := sysusers.ParseFile(strings.NewReader(line))
	require.NoError(t, err)
	require.Len(t, ds, 1)

	d := ds[0]
	assert.Equal(t, sysusers.KindUser, d.Kind)
	assert.Equal(t, "user", d.Name)
	assert.Equal(t, sysusers.IDUidGid, d.ID.Kind)
	assert.Equal(t, uint32(1000), d.ID.Uid)
	assert.Equal(t, uint32(2000), d.ID.Gid)
	assert.Equal(t, "GECOS quux", d.Gecos)
	assert.Equal(t, "/home/user", d.Home)
	assert.Equal(t, "/bin/bash", d.Shell)
}

func TestParseUserMinimal(t *testing.T) {
	ds, err := sysusers.ParseFile(strings.NewReader("u svc -\n"))
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, sysusers.IDNone, ds[0].ID.Kind)
	assert.Equal(t, "", ds[0].Gecos)
}

func TestParseGroupWithGid(t *testing.T) {
	ds, err := sysusers.ParseFile(strings.NewReader("g mygroup 999\n"))
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, sysusers.KindGroup, ds[0].Kind)
	assert.Equal(t, uint32(999), ds[0].ID.Uid)
}

func TestParseAddToGroup(t *testing.T) {
	ds, err := sysusers.ParseFile(strings.NewReader("m user wheel\n"))
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, sysusers.KindAddToGroup, ds[0].Kind)
	assert.Equal(t, "user", ds[0].User)
	assert.Equal(t, "wheel", ds[0].Group)
}

func TestParseRange(t *testing.T) {
	ds, err := sysusers.ParseFile(strings.NewReader("r - 5000-5999\n"))
	require.NoError(t, err)
	require.Len(t, ds, 1)
	assert.Equal(t, sysusers.KindRange, ds[0].Kind)
	assert.Equal(t, uint32(5000), ds[0].RangeLo)
	assert.Equal(t, uint32(5999), ds[0].RangeHi)
}

func TestParseFileSkipsCommentsAndBlankLines(t *testing.T) {
	const content = "# a comment\n\nu user - - - -\n"
	ds, err := sysusers.ParseFile(strings.NewReader(content))
	require.NoError(t, err)
	require.Len(t, ds, 1)
}
