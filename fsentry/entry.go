package fsentry

import (
	"sync/atomic"

	"github.com/etnz/syskoll/pkgmodel"
)

// Flags is a bitset of per-entry modifiers independent of Properties.Kind.
type Flags uint8

const (
	// FlagConfig marks a file as a package-manager "conffile": local
	// edits are expected and must not be silently clobbered.
	FlagConfig Flags = 1 << iota
	// FlagOKIfMissing suppresses the Missing issue for an entry that is
	// conventionally absent on some systems (e.g. an optional config
	// drop-in).
	FlagOKIfMissing
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

// FileEntry is one typed filesystem expectation, as produced by a backend
// and consumed by the checker and state engine.
//
// The "seen" flag is mutated concurrently by the parallel filesystem walker
// in [checker] and read back afterwards; it is therefore a plain atomic
// rather than a field guarded by a mutex the rest of the struct doesn't
// need.
type FileEntry struct {
	// Package is the owning package, or the zero PackageRef if the file
	// isn't attributed to one (e.g. a systemd-tmpfiles directive).
	Package pkgmodel.PackageRef

	// Path is the absolute, normalised (no "..", no repeated slashes)
	// filesystem path this entry describes.
	Path string

	Properties Properties
	Flags      Flags
	Source     pkgmodel.Backend

	seen atomic.Bool
}

// NewFileEntry builds a FileEntry from all of its exported fields and
// returns it by pointer, so the atomic.Bool "seen" field is never copied by
// value (FileEntry values should be passed by pointer once constructed).
func NewFileEntry(pkg pkgmodel.PackageRef, path string, props Properties, flags Flags, source pkgmodel.Backend) *FileEntry {
	return &FileEntry{Package: pkg, Path: path, Properties: props, Flags: flags, Source: source}
}

// MarkSeen records that the filesystem walk in [checker.CheckAll] visited
// this entry's path. Safe for concurrent use from multiple walker workers.
func (e *FileEntry) MarkSeen() { e.seen.Store(true) }

// Seen reports whether MarkSeen has been called.
func (e *FileEntry) Seen() bool { return e.seen.Load() }

// ResetSeen clears the seen flag, for reuse across multiple check passes.
func (e *FileEntry) ResetSeen() { e.seen.Store(false) }
