package fsentry

import "fmt"

// Kind discriminates the [Properties] variant carried by a [FileEntry]. It
// is also the discriminant the state engine keys diffs on: two entries at
// the same path with different Kind always produce a Remove-then-recreate
// pair rather than an in-place attribute update.
type Kind uint8

const (
	KindRegularFileBasic Kind = iota
	KindRegularFileSystemd
	KindRegularFile
	KindSymlink
	KindDirectory
	KindFifo
	KindDeviceNode
	KindSpecial
	KindRemoved
	KindUnknown
	KindPermissions
)

func (k Kind) String() string {
	switch k {
	case KindRegularFileBasic:
		return "regular-file-basic"
	case KindRegularFileSystemd:
		return "regular-file-systemd"
	case KindRegularFile:
		return "regular-file"
	case KindSymlink:
		return "symlink"
	case KindDirectory:
		return "directory"
	case KindFifo:
		return "fifo"
	case KindDeviceNode:
		return "device-node"
	case KindSpecial:
		return "special"
	case KindRemoved:
		return "removed"
	case KindUnknown:
		return "unknown"
	case KindPermissions:
		return "permissions"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// DeviceKind distinguishes block from character devices.
type DeviceKind uint8

const (
	DeviceBlock DeviceKind = iota
	DeviceChar
)

// Properties is the tagged sum describing what kind of filesystem object an
// entry expects, and with how much detail. Only the fields relevant to Kind
// are meaningful; the zero value of the others is ignored. This mirrors a
// Rust enum-with-payload using a single struct with an explicit
// discriminant, which is the idiomatic Go rendering when the payloads
// overlap heavily (owner/group recur in seven of the eleven variants, mode
// in six of them).
type Properties struct {
	Kind Kind

	// Size is set when known. A nil pointer means "unknown", distinct
	// from a known size of zero.
	Size *int64

	Checksum Checksum

	Mode  Mode
	Owner OwnerRef
	Group OwnerRef

	// ModTime is only meaningful for KindRegularFile (the richest
	// variant, sourced from an archive or live stat).
	ModTimeUnixNano int64

	// SymlinkTarget is the textual target of a KindSymlink entry; may be
	// relative to the symlink's own directory.
	SymlinkTarget string

	// Contents holds literal file bytes when a backend can supply them
	// inline (systemd-tmpfiles 'f' lines with an argument, recursive
	// copy results). Nil unless Kind == KindRegularFileSystemd and the
	// directive carried literal content.
	Contents []byte

	Device DeviceKind
	Major  uint32
	Minor  uint32
}

// OwnerRef names a user or group either by name or by numeric id; backends
// populate whichever they natively have. Empty Name with Known=false means
// "unspecified, leave as default".
type OwnerRef struct {
	Name  string
	UID   int
	Known bool
}

// Owner builds an OwnerRef from a name.
func Owner(name string) OwnerRef { return OwnerRef{Name: name, Known: name != ""} }

// Mode is a POSIX permission-bits-and-then-some mode, as in os.FileMode's
// low 12 bits (rwxrwxrwx + setuid/setgid/sticky). Comparisons against the
// live filesystem mask to 0o7777 per the spec's permission check.
type Mode uint32

const PermMask Mode = 0o7777

// Masked returns the mode restricted to the permission bits, discarding any
// type bits a caller accidentally included.
func (m Mode) Masked() Mode { return m & PermMask }

// DefaultMode returns the conventional default mode for a freshly created
// node of the given kind, used by the state engine when an instruction
// doesn't specify one explicitly.
func DefaultMode(k Kind) Mode {
	switch k {
	case KindDirectory:
		return 0o755
	case KindSymlink:
		return 0o777
	default:
		return 0o644
	}
}

// RegularFileBasic builds a minimal regular-file assertion (size and
// checksum only), as produced by dpkg's md5sums list.
func RegularFileBasic(size *int64, sum Checksum) Properties {
	return Properties{Kind: KindRegularFileBasic, Size: size, Checksum: sum}
}

// RegularFileSystemd builds a regular-file assertion with ownership and
// mode but no mtime, as produced by the systemd-tmpfiles backend.
func RegularFileSystemd(mode Mode, owner, group OwnerRef, size *int64, sum Checksum, contents []byte) Properties {
	return Properties{
		Kind: KindRegularFileSystemd, Mode: mode, Owner: owner, Group: group,
		Size: size, Checksum: sum, Contents: contents,
	}
}

// RegularFile builds the fully-specified regular-file variant produced when
// reading a package archive directly.
func RegularFile(mode Mode, owner, group OwnerRef, size int64, modTimeUnixNano int64, sum Checksum) Properties {
	return Properties{
		Kind: KindRegularFile, Mode: mode, Owner: owner, Group: group,
		Size: &size, ModTimeUnixNano: modTimeUnixNano, Checksum: sum,
	}
}

// Symlink builds a symlink assertion.
func Symlink(owner, group OwnerRef, target string) Properties {
	return Properties{Kind: KindSymlink, Owner: owner, Group: group, SymlinkTarget: target}
}

// Directory builds a directory assertion.
func Directory(mode Mode, owner, group OwnerRef) Properties {
	return Properties{Kind: KindDirectory, Mode: mode, Owner: owner, Group: group}
}

// Fifo builds a named-pipe assertion.
func Fifo(mode Mode, owner, group OwnerRef) Properties {
	return Properties{Kind: KindFifo, Mode: mode, Owner: owner, Group: group}
}

// NewDeviceNode builds a device-node assertion.
func NewDeviceNode(mode Mode, owner, group OwnerRef, dev DeviceKind, major, minor uint32) Properties {
	return Properties{Kind: KindDeviceNode, Mode: mode, Owner: owner, Group: group, Device: dev, Major: major, Minor: minor}
}

// Special builds an existence-only assertion for anything that isn't a
// regular file, directory, or symlink (sockets, unusual device files).
func Special() Properties { return Properties{Kind: KindSpecial} }

// Removed builds an assertion that nothing may exist at the path.
func Removed() Properties { return Properties{Kind: KindRemoved} }

// Unknown builds an existence-only, type-agnostic assertion; used when a
// backend's metadata doesn't record the file type (dpkg's *.list).
func Unknown() Properties { return Properties{Kind: KindUnknown} }

// Permissions builds an attribute-only assertion: mode/owner/group must
// match, but the node's type is left untouched.
func Permissions(mode Mode, owner, group OwnerRef) Properties {
	return Properties{Kind: KindPermissions, Mode: mode, Owner: owner, Group: group}
}
