// Package backend defines the distro-agnostic capability interfaces
// ([Files], [Packages]) that the pacman, dpkg, and systemd-tmpfiles
// implementations satisfy, plus the shared error taxonomy backends report
// through.
package backend

import (
	"context"
	"fmt"

	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/intern"
	"github.com/etnz/syskoll/pkgmodel"
)

// Packages is the package-inventory and transaction capability. Several
// backends may implement it simultaneously (pacman, apt, flatpak); the
// orchestrator groups instructions by backend before dispatching.
type Packages interface {
	// Kind identifies which backend this is, for grouping and cache keys.
	Kind() pkgmodel.Backend

	// ListPackages enumerates every installed package known to this
	// backend, interning names and architectures through in.
	ListPackages(ctx context.Context, in *intern.Interner) ([]pkgmodel.Package, error)

	// Transact installs the packages named in install and then uninstalls
	// those named in uninstall, one native package-manager invocation per
	// non-empty list. askConfirmation controls whether the subprocess is
	// invoked in a mode that prompts the user itself (pacman/apt's own
	// prompts) or runs fully unattended.
	Transact(ctx context.Context, install, uninstall []string, askConfirmation bool) error

	// Mark reclassifies packages between explicit and dependency install
	// reason without installing or removing anything.
	Mark(ctx context.Context, asDependency, asExplicit []string) error

	// RemoveUnused uninstalls every package whose install reason is
	// Dependency and that nothing depends on anymore.
	RemoveUnused(ctx context.Context, askConfirmation bool) error
}

// Files is the filesystem-expectation capability. Settings enforce that
// exactly one backend provides it (see [ErrFileBackendAlreadySet]).
type Files interface {
	// Kind identifies which backend this is.
	Kind() pkgmodel.Backend

	// Files enumerates every expected filesystem entry this backend's
	// package database describes. Must be safe to call concurrently
	// with ListPackages and must itself parallelise internally when
	// doing so pays off (hundreds of packages' metadata).
	Files(ctx context.Context, in *intern.Interner) ([]*fsentry.FileEntry, error)

	// OwningPackages resolves each path in paths to the package that
	// installed it, or a zero PackageRef if no package claims it.
	OwningPackages(ctx context.Context, paths []string, in *intern.Interner) (map[string]pkgmodel.PackageRef, error)

	// OriginalFiles fetches the pristine bytes a package originally
	// shipped at each requested path, straight from the package
	// archive (cache-fronted by the orchestrator, not here).
	OriginalFiles(ctx context.Context, queries []OriginalFileQuery, packages map[pkgmodel.PackageRef]pkgmodel.PkgIdent, in *intern.Interner) (map[OriginalFileQuery][]byte, error)

	// FilesFromArchives enumerates every file entry a package's archive
	// contains, bypassing the lighter-weight metadata Files() uses.
	// Required for backends where Files() lacks mode/owner/mtime.
	FilesFromArchives(ctx context.Context, refs []pkgmodel.PackageRef, packages map[pkgmodel.PackageRef]pkgmodel.PkgIdent, in *intern.Interner) (map[pkgmodel.PackageRef][]*fsentry.FileEntry, error)

	// MayNeedCanonicalization reports whether entries from this backend
	// need their parent directory canonicalised before comparison
	// (true for dpkg, where /usr-merge makes packaged paths and live
	// paths diverge only in intermediate symlinks).
	MayNeedCanonicalization() bool

	// PreferFilesFromArchive reports whether the checker should source
	// entries from FilesFromArchives rather than Files(), because the
	// backend's lightweight metadata lacks mode/owner (true for dpkg).
	PreferFilesFromArchive() bool

	// CacheVersion is mixed into every disk-cache key this backend's
	// entries are stored under. Bump it whenever the shape of what this
	// backend produces changes, to invalidate stale cache entries.
	CacheVersion() uint32
}

// OriginalFileQuery identifies one (package, path) pair whose pristine
// content is being requested.
type OriginalFileQuery struct {
	Package pkgmodel.PackageRef
	Path    string
}

// Error wraps a backend-reported failure with a structured Kind so callers
// can branch on it without string matching, while still behaving like a
// normal Go error (wraps, unwraps, formats).
type Error struct {
	Kind ErrorKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorKind enumerates the backend-error taxonomy from the design's error
// handling section. These are recoverable-by-caller conditions, distinct
// from Go errors that indicate a bug.
type ErrorKind uint8

const (
	ErrUnknown ErrorKind = iota
	// ErrPackageNotFound: caller may retry with an alternate identifier.
	ErrPackageNotFound
	// ErrFileNotFound: dpkg's /usr-merge fallback retries with/without
	// "/usr"; other callers surface it.
	ErrFileNotFound
	// ErrArchiveMissing: the package archive isn't in the local cache;
	// the orchestrator triggers a batched download and retries once.
	ErrArchiveMissing
	// ErrConfiguration: bad settings (e.g. two file backends enabled).
	// Always fatal.
	ErrConfiguration
)

func (k ErrorKind) String() string {
	switch k {
	case ErrPackageNotFound:
		return "package-not-found"
	case ErrFileNotFound:
		return "file-not-found"
	case ErrArchiveMissing:
		return "archive-missing"
	case ErrConfiguration:
		return "configuration-error"
	default:
		return "unknown"
	}
}

// PackageNotFound builds an [Error] of kind [ErrPackageNotFound].
func PackageNotFound(name string) *Error {
	return &Error{Kind: ErrPackageNotFound, Msg: fmt.Sprintf("package %q not found", name)}
}

// FileNotFound builds an [Error] of kind [ErrFileNotFound].
func FileNotFound(pkg pkgmodel.PkgIdent, path string) *Error {
	return &Error{Kind: ErrFileNotFound, Msg: fmt.Sprintf("%s: file %q not found in package %s", pkg.Backend, path, pkg.Identifier)}
}

// ArchiveMissing builds an [Error] of kind [ErrArchiveMissing]. Alternates
// lists other candidate archive locations the caller may try before giving
// up (e.g. with/without a version suffix).
func ArchiveMissing(query pkgmodel.PkgIdent, alternates []string) *Error {
	return &Error{Kind: ErrArchiveMissing, Msg: fmt.Sprintf("archive for %s not cached (tried %v)", query.Identifier, alternates)}
}

// ConfigurationError builds a fatal [Error] of kind [ErrConfiguration].
func ConfigurationError(msg string) *Error {
	return &Error{Kind: ErrConfiguration, Msg: msg}
}
