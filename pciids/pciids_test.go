package pciids_test

import (
	"strings"
	"testing"

	"github.com/etnz/syskoll/pciids"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixture = `# comment line, ignored
10de  NVIDIA Corporation
	1eb0  TU104 [GeForce RTX 2080 SUPER]
		1458 3fe1  GeForce RTX 2080 SUPER
8086  Intel Corporation
	1237  440FX - 82441FX PMC

C 03  Display controller
	00  VGA compatible controller
	02  3D controller
C 02  Network controller
	00  Ethernet controller
`

func TestParsePciIds(t *testing.T) {
	db, err := pciids.Parse(strings.NewReader(fixture))
	require.NoError(t, err)

	name, ok := db.VendorName(0x10de)
	require.True(t, ok)
	assert.Equal(t, "NVIDIA Corporation", name)

	dname, ok := db.DeviceName(0x10de, 0x1eb0)
	require.True(t, ok)
	assert.Equal(t, "TU104 [GeForce RTX 2080 SUPER]", dname)

	sname, ok := db.SubsystemName(0x10de, 0x1eb0, 0x1458, 0x3fe1)
	require.True(t, ok)
	assert.Equal(t, "GeForce RTX 2080 SUPER", sname)

	_, ok = db.DeviceName(0x10de, 0xffff)
	assert.False(t, ok)

	cname, ok := db.ClassName(0x03)
	require.True(t, ok)
	assert.Equal(t, "Display controller", cname)

	_, ok = db.VendorName(0xdead)
	assert.False(t, ok)
}

func TestParsePciIdsSecondVendorIsolated(t *testing.T) {
	db, err := pciids.Parse(strings.NewReader(fixture))
	require.NoError(t, err)

	name, ok := db.DeviceName(0x8086, 0x1237)
	require.True(t, ok)
	assert.Equal(t, "440FX - 82441FX PMC", name)

	// Intel's device list must not have inherited NVIDIA's subsystem entries.
	_, ok = db.SubsystemName(0x8086, 0x1237, 0x1458, 0x3fe1)
	assert.False(t, ok)
}
