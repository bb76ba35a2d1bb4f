package orchestrator

import (
	"os"

	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/state"
)

// foldFileEntries folds a backend's scanned inventory into a canonical
// [state.FsEntries] map, by first lowering each entry to the instruction(s)
// that would create it and replaying them through [state.ApplyInstructions].
// This keeps entries and script-declared state on the same footing: both
// end up as folded maps before [state.Diff] ever sees them.
func foldFileEntries(entries []*fsentry.FileEntry) (*state.FsEntries, []string) {
	var stream []fsentry.FsInstruction
	for _, e := range entries {
		stream = append(stream, fileEntryToInstructions(e)...)
	}
	return state.ApplyInstructions(stream, false)
}

// fileEntryToInstructions lowers one scanned entry back into the creation
// instruction(s) [state.ApplyInstructions] would need to fold it into a map
// equal to what Diff would produce for a freshly created entry; the
// inverse of state.createFromNode.
func fileEntryToInstructions(e *fsentry.FileEntry) []fsentry.FsInstruction {
	props := e.Properties
	var out []fsentry.FsInstruction

	switch props.Kind {
	case fsentry.KindRemoved:
		return []fsentry.FsInstruction{fsentry.Remove(e.Path).WithPackage(e.Package)}
	case fsentry.KindDirectory, fsentry.KindPermissions:
		out = append(out, fsentry.CreateDirectory(e.Path))
	case fsentry.KindSymlink:
		out = append(out, fsentry.CreateSymlink(e.Path, props.SymlinkTarget))
	case fsentry.KindFifo:
		out = append(out, fsentry.CreateFifo(e.Path))
	case fsentry.KindDeviceNode:
		if props.Device == fsentry.DeviceChar {
			out = append(out, fsentry.CreateCharDevice(e.Path, props.Major, props.Minor))
		} else {
			out = append(out, fsentry.CreateBlockDevice(e.Path, props.Major, props.Minor))
		}
	case fsentry.KindRegularFileBasic, fsentry.KindRegularFileSystemd, fsentry.KindRegularFile:
		contents, err := regularFileContents(e.Path, props)
		if err != nil {
			// Can't establish SHA-256 content without reading the live
			// file (e.g. it's already gone); skip rather than assert
			// attributes on a path this map never creates.
			return nil
		}
		out = append(out, fsentry.CreateFile(e.Path, contents))
	default:
		// KindUnknown, KindSpecial: existence-only, nothing to create.
		return nil
	}

	if props.Mode != 0 {
		out = append(out, fsentry.SetMode(e.Path, props.Mode))
	}
	if props.Owner.Known {
		out = append(out, fsentry.SetOwner(e.Path, props.Owner.Name))
	}
	if props.Group.Known {
		out = append(out, fsentry.SetGroup(e.Path, props.Group.Name))
	}

	for i := range out {
		out[i] = out[i].WithPackage(e.Package)
	}
	return out
}

// regularFileContents builds the FileContents [state.Diff] needs, always
// keyed by SHA-256 per [fsentry.FileContents]'s invariant. Backends that
// only carry an MD5 (dpkg's md5sums-only path) get rehashed against the
// live file; that requires the path to still exist, which holds for the
// common case of building the before-state from what's on disk right now.
func regularFileContents(path string, props fsentry.Properties) (fsentry.FileContents, error) {
	sum := props.Checksum
	if sum.Algo != fsentry.AlgoSHA256 {
		f, err := os.Open(path)
		if err != nil {
			return fsentry.FileContents{}, err
		}
		defer f.Close()
		sum, err = fsentry.Rehash(sum, f)
		if err != nil {
			return fsentry.FileContents{}, err
		}
	}
	var size int64
	if props.Size != nil {
		size = *props.Size
	}
	if props.Contents != nil {
		return fsentry.NewFileContents(sum, props.Contents, path)
	}
	return fsentry.FromFileRef(sum, path, size)
}
