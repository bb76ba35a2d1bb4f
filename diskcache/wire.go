package diskcache

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/pkgmodel"
)

// wireEntry is the YAML-serialisable mirror of a [fsentry.FileEntry]. It
// exists because Checksum keeps its digest bytes unexported (so a caller
// can't construct a mismatched algo/digest pair), which also makes it
// opaque to a generic marshaller; wireEntry unpacks it into plain fields
// instead. Package and the transient "seen" flag are deliberately absent:
// the owning package is re-derived from the cache key on load (a
// [pkgmodel.PackageRef] is only valid against the [intern.Interner] that
// produced it, so storing the raw handle would be meaningless across
// runs), and "seen" is reset by every check pass regardless.
type wireEntry struct {
	Path string `yaml:"path"`

	Kind   uint8 `yaml:"kind"`
	Flags  uint8 `yaml:"flags"`
	Source uint8 `yaml:"source"`

	Size *int64 `yaml:"size,omitempty"`

	ChecksumAlgo uint8  `yaml:"checksum_algo,omitempty"`
	ChecksumHex  string `yaml:"checksum_hex,omitempty"`

	Mode uint32 `yaml:"mode,omitempty"`

	OwnerName  string `yaml:"owner_name,omitempty"`
	OwnerUID   int    `yaml:"owner_uid,omitempty"`
	OwnerKnown bool   `yaml:"owner_known,omitempty"`

	GroupName  string `yaml:"group_name,omitempty"`
	GroupUID   int    `yaml:"group_uid,omitempty"`
	GroupKnown bool   `yaml:"group_known,omitempty"`

	ModTimeUnixNano int64  `yaml:"mod_time_unix_nano,omitempty"`
	SymlinkTarget   string `yaml:"symlink_target,omitempty"`
	Contents        []byte `yaml:"contents,omitempty"`

	Device uint8  `yaml:"device,omitempty"`
	Major  uint32 `yaml:"major,omitempty"`
	Minor  uint32 `yaml:"minor,omitempty"`
}

func toWireEntries(entries []*fsentry.FileEntry) []wireEntry {
	out := make([]wireEntry, 0, len(entries))
	for _, e := range entries {
		p := e.Properties
		w := wireEntry{
			Path:            e.Path,
			Kind:            uint8(p.Kind),
			Flags:           uint8(e.Flags),
			Source:          uint8(e.Source),
			Size:            p.Size,
			ChecksumAlgo:    uint8(p.Checksum.Algo),
			Mode:            uint32(p.Mode),
			OwnerName:       p.Owner.Name,
			OwnerUID:        p.Owner.UID,
			OwnerKnown:      p.Owner.Known,
			GroupName:       p.Group.Name,
			GroupUID:        p.Group.UID,
			GroupKnown:      p.Group.Known,
			ModTimeUnixNano: p.ModTimeUnixNano,
			SymlinkTarget:   p.SymlinkTarget,
			Contents:        p.Contents,
			Device:          uint8(p.Device),
			Major:           p.Major,
			Minor:           p.Minor,
		}
		if p.Checksum.Algo != fsentry.AlgoNone {
			w.ChecksumHex = hexEncode(p.Checksum.Bytes())
		}
		out = append(out, w)
	}
	return out
}

func hexEncode(b []byte) string { return hex.EncodeToString(b) }

// checksumFromWire rebuilds a typed [fsentry.Checksum] from its hex-encoded
// wire form. An empty algo or digest yields the zero Checksum, which is the
// correct "no checksum known" value; an unrecognised algo or a digest of
// the wrong length is an error.
func checksumFromWire(algo fsentry.ChecksumAlgo, hexDigest string) (fsentry.Checksum, error) {
	if algo == fsentry.AlgoNone || hexDigest == "" {
		return fsentry.Checksum{}, nil
	}
	b, err := hex.DecodeString(hexDigest)
	if err != nil {
		return fsentry.Checksum{}, err
	}
	switch algo {
	case fsentry.AlgoMD5:
		if len(b) != md5.Size {
			return fsentry.Checksum{}, fmt.Errorf("diskcache: bad md5 digest length %d", len(b))
		}
		var sum [md5.Size]byte
		copy(sum[:], b)
		return fsentry.MD5(sum), nil
	case fsentry.AlgoSHA256:
		if len(b) != sha256.Size {
			return fsentry.Checksum{}, fmt.Errorf("diskcache: bad sha256 digest length %d", len(b))
		}
		var sum [sha256.Size]byte
		copy(sum[:], b)
		return fsentry.SHA256(sum), nil
	default:
		return fsentry.Checksum{}, fmt.Errorf("diskcache: unknown checksum algo %d", algo)
	}
}

func (w wireEntry) toFileEntry(ref pkgmodel.PackageRef) *fsentry.FileEntry {
	props := fsentry.Properties{
		Kind:            fsentry.Kind(w.Kind),
		Size:            w.Size,
		Mode:            fsentry.Mode(w.Mode),
		Owner:           fsentry.OwnerRef{Name: w.OwnerName, UID: w.OwnerUID, Known: w.OwnerKnown},
		Group:           fsentry.OwnerRef{Name: w.GroupName, UID: w.GroupUID, Known: w.GroupKnown},
		ModTimeUnixNano: w.ModTimeUnixNano,
		SymlinkTarget:   w.SymlinkTarget,
		Contents:        w.Contents,
		Device:          fsentry.DeviceKind(w.Device),
		Major:           w.Major,
		Minor:           w.Minor,
	}
	if sum, err := checksumFromWire(fsentry.ChecksumAlgo(w.ChecksumAlgo), w.ChecksumHex); err == nil {
		props.Checksum = sum
	}
	return fsentry.NewFileEntry(ref, w.Path, props, fsentry.Flags(w.Flags), pkgmodel.Backend(w.Source))
}
