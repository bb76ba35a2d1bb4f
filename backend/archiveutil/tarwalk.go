// Package archiveutil holds the tar-entry-to-FileEntry conversion shared by
// the pacman and dpkg backends: both stream an inner tar out of a
// decompression chain and need the same type-code mapping and checksum
// computation.
package archiveutil

import (
	"archive/tar"
	"io"
	"strings"

	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/pkgmodel"
)

// SkipFunc reports whether a tar entry name should be excluded from the
// resulting file-entry list (package-manager bookkeeping files such as
// pacman's .BUILDINFO or dpkg's control members when walking a combined
// stream).
type SkipFunc func(name string) bool

// WalkTar reads every entry of tr, computing a SHA-256 over regular-file
// bodies while streaming (never buffering the whole archive), and returns
// one [fsentry.FileEntry] per entry. pkg is attached to every entry;
// source identifies which backend produced them.
func WalkTar(tr *tar.Reader, pkg pkgmodel.PackageRef, source pkgmodel.Backend, skip SkipFunc) ([]*fsentry.FileEntry, error) {
	var out []*fsentry.FileEntry

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		name := NormalizeTarName(hdr.Name)
		if skip != nil && skip(name) {
			if hdr.Typeflag == tar.TypeReg {
				io.Copy(io.Discard, tr)
			}
			continue
		}

		owner := ownerRef(hdr.Uname, hdr.Uid)
		group := ownerRef(hdr.Gname, hdr.Gid)
		mode := fsentry.Mode(hdr.Mode) & fsentry.PermMask

		var props fsentry.Properties
		switch hdr.Typeflag {
		case tar.TypeReg, tar.TypeRegA:
			_, sha, size, err := fsentry.HashReader(tr)
			if err != nil {
				return nil, err
			}
			props = fsentry.RegularFile(mode, owner, group, size, hdr.ModTime.UnixNano(), fsentry.SHA256(sha))

		case tar.TypeSymlink:
			props = fsentry.Symlink(owner, group, hdr.Linkname)

		case tar.TypeLink:
			// Hard links carry no independent content in the stream;
			// treat as an existence-only assertion like tar type Unknown.
			props = fsentry.Unknown()

		case tar.TypeDir:
			props = fsentry.Directory(mode, owner, group)

		case tar.TypeFifo:
			props = fsentry.Fifo(mode, owner, group)

		case tar.TypeChar:
			props = fsentry.NewDeviceNode(mode, owner, group, fsentry.DeviceChar, uint32(hdr.Devmajor), uint32(hdr.Devminor))

		case tar.TypeBlock:
			props = fsentry.NewDeviceNode(mode, owner, group, fsentry.DeviceBlock, uint32(hdr.Devmajor), uint32(hdr.Devminor))

		default:
			props = fsentry.Special()
		}

		out = append(out, fsentry.NewFileEntry(pkg, name, props, 0, source))
	}
	return out, nil
}

// NormalizeTarName strips a leading "./" and ensures a leading "/", the
// normalisation archive-sourced paths need before they can be compared
// against live filesystem paths.
func NormalizeTarName(name string) string {
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimSuffix(name, "/")
	if !strings.HasPrefix(name, "/") {
		name = "/" + name
	}
	return name
}

func ownerRef(name string, id int) fsentry.OwnerRef {
	if name != "" {
		return fsentry.OwnerRef{Name: name, UID: id, Known: true}
	}
	return fsentry.OwnerRef{UID: id, Known: id != 0}
}
