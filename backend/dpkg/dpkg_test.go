package dpkg_test

import (
	"strings"
	"testing"

	"github.com/etnz/syskoll/fsentry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// A single md5sums line parses into a RegularFileBasic entry with no size
// and the expected MD5 digest.
func TestMd5sumsParseSingleLine(t *testing.T) {
	const line = "1f7b7e9e7e9e7e9e7e9e7e9e7e9e7e9a  /usr/share/doc/foo/README\n"

	fields := strings.Fields(line)
	require.Len(t, fields, 2)
	assert.Equal(t, "/usr/share/doc/foo/README", fields[1])

	sum, err := fsentry.ParseMD5Hex(fields[0])
	require.NoError(t, err)

	props := fsentry.RegularFileBasic(nil, sum)
	assert.Equal(t, fsentry.KindRegularFileBasic, props.Kind)
	assert.Nil(t, props.Size)
	assert.Equal(t, "md5:"+fields[0], props.Checksum.String())
}
