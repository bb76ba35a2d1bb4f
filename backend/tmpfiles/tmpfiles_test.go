package tmpfiles

import (
	"testing"

	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/pkgmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLineBasicFile(t *testing.T) {
	d, err := ParseLine(`f /etc/foo 0644 root root - hello`)
	require.NoError(t, err)
	assert.Equal(t, TypeCreateFile, d.Type)
	assert.Equal(t, "/etc/foo", d.Path)
	assert.Equal(t, "0644", d.Mode)
	assert.Equal(t, "root", d.User)
	assert.Equal(t, "root", d.Group)
	assert.Equal(t, "", d.Age)
	assert.Equal(t, "hello", d.Argument)
}

func TestParseLineModifiers(t *testing.T) {
	d, err := ParseLine(`f+! /etc/foo - - - -`)
	require.NoError(t, err)
	assert.True(t, d.CreateOnly)
	assert.True(t, d.Force)
}

func TestParseLineQuotedArgumentWithOctalEscape(t *testing.T) {
	d, err := ParseLine(`f /etc/foo - - - - "hello\040world"`)
	require.NoError(t, err)
	assert.Equal(t, "hello world", d.Argument)
}

func TestParseModeFieldFlags(t *testing.T) {
	octal, newOnly, masked := ParseModeField(":0644")
	assert.Equal(t, "0644", octal)
	assert.True(t, newOnly)
	assert.False(t, masked)

	octal, newOnly, masked = ParseModeField("~0644")
	assert.Equal(t, "0644", octal)
	assert.False(t, newOnly)
	assert.True(t, masked)
}

type fixedResolver map[byte]string

func (r fixedResolver) Resolve(input string) string {
	out := []byte(input)
	var b []byte
	for i := 0; i < len(out); i++ {
		if out[i] == '%' && i+1 < len(out) {
			if v, ok := r[out[i+1]]; ok {
				b = append(b, v...)
				i++
				continue
			}
		}
		b = append(b, out[i])
	}
	return string(b)
}

func TestExpandCreateFileDecodesBase64Argument(t *testing.T) {
	b := &Backend{}
	d := Directive{Type: TypeCreateFile, Path: "/etc/motd", Mode: "0644", Base64Arg: true, Argument: "aGVsbG8="}
	entries, err := b.expand(d, fixedResolver{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, fsentry.KindRegularFileSystemd, entries[0].Properties.Kind)
	assert.Equal(t, []byte("hello"), entries[0].Properties.Contents)
}

func TestExpandCreateFileCredentialArgumentNotDecoded(t *testing.T) {
	b := &Backend{}
	d := Directive{Type: TypeCreateFile, Path: "/etc/motd", Base64Arg: true, Credential: true, Argument: "aGVsbG8="}
	entries, err := b.expand(d, fixedResolver{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, []byte("aGVsbG8="), entries[0].Properties.Contents)
}

func TestExpandDeviceNode(t *testing.T) {
	b := &Backend{}
	d := Directive{Type: TypeBlockDevice, Path: "/dev/loop0", Mode: "0660", Argument: "7:0"}
	entries, err := b.expand(d, fixedResolver{})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, fsentry.KindDeviceNode, entries[0].Properties.Kind)
	assert.Equal(t, uint32(7), entries[0].Properties.Major)
	assert.Equal(t, uint32(0), entries[0].Properties.Minor)
}

func TestMergeEntryPermissionsOverlay(t *testing.T) {
	size := int64(4)
	prior := fsentry.NewFileEntry(0, "/etc/x", fsentry.RegularFileSystemd(0o644, fsentry.OwnerRef{}, fsentry.OwnerRef{}, &size, fsentry.Checksum{}, nil), 0, pkgmodel.BackendSystemdTmpfiles)
	next := fsentry.NewFileEntry(0, "/etc/x", fsentry.Permissions(0o600, fsentry.Owner("root"), fsentry.Owner("root")), 0, pkgmodel.BackendSystemdTmpfiles)

	merged := mergeEntry(prior, next)
	assert.Equal(t, fsentry.KindRegularFileSystemd, merged.Properties.Kind)
	assert.Equal(t, fsentry.Mode(0o600), merged.Properties.Mode)
	assert.Equal(t, "root", merged.Properties.Owner.Name)
}

func TestMergeEntryUnknownPriorUpgraded(t *testing.T) {
	prior := fsentry.NewFileEntry(0, "/etc/x", fsentry.Unknown(), 0, pkgmodel.BackendSystemdTmpfiles)
	next := fsentry.NewFileEntry(0, "/etc/x", fsentry.Directory(0o755, fsentry.OwnerRef{}, fsentry.OwnerRef{}), 0, pkgmodel.BackendSystemdTmpfiles)

	merged := mergeEntry(prior, next)
	assert.Equal(t, fsentry.KindDirectory, merged.Properties.Kind)
}

func TestMergeEntryLastWriteWins(t *testing.T) {
	prior := fsentry.NewFileEntry(0, "/etc/x", fsentry.Directory(0o755, fsentry.OwnerRef{}, fsentry.OwnerRef{}), 0, pkgmodel.BackendSystemdTmpfiles)
	next := fsentry.NewFileEntry(0, "/etc/x", fsentry.Fifo(0o644, fsentry.OwnerRef{}, fsentry.OwnerRef{}), 0, pkgmodel.BackendSystemdTmpfiles)

	merged := mergeEntry(prior, next)
	assert.Equal(t, fsentry.KindFifo, merged.Properties.Kind)
}
