// Package pkgmodel holds the distro-agnostic representation of an installed
// package: identifiers, metadata, and the handful of enums backends agree
// on (install reason, install status, backend kind).
package pkgmodel

import "github.com/etnz/syskoll/intern"

// PackageRef is an interned package-name handle. Two refs compare equal iff
// they name the same string in the same [intern.Interner]; ordering follows
// intern order, not alphabetical order, so it is only useful for stable
// sorting of otherwise-equal keys, not for display.
type PackageRef intern.ID

// ArchitectureRef is an interned CPU-architecture handle (e.g. "x86_64",
// "amd64", "all").
type ArchitectureRef intern.ID

// IsZero reports whether the ref was never assigned, i.e. "no package".
func (r PackageRef) IsZero() bool { return r == 0 }

// IsZero reports whether the ref was never assigned, i.e. "architecture
// unknown".
func (r ArchitectureRef) IsZero() bool { return r == 0 }

// Backend names a package-manager ecosystem. It is a closed set: adding a
// new distro backend means adding a new constant here, not an open string.
type Backend uint8

const (
	BackendUnknown Backend = iota
	BackendPacman
	BackendDpkg
	BackendFlatpak
	BackendSystemdTmpfiles
)

// String renders the backend's canonical lowercase name, used both in cache
// keys and in generated save-file source (cmds.add_pkg("pacman", ...)).
func (b Backend) String() string {
	switch b {
	case BackendPacman:
		return "pacman"
	case BackendDpkg:
		return "apt"
	case BackendFlatpak:
		return "flatpak"
	case BackendSystemdTmpfiles:
		return "systemd-tmpfiles"
	default:
		return "unknown"
	}
}

// PkgIdent uniquely names a package within one package-manager ecosystem.
// It is the key used for cache lookups and for addressing a package in a
// generated script (`cmds.add_pkg(backend, identifier)`).
type PkgIdent struct {
	Backend    Backend
	Identifier string
}

// InstallReason records why a package is present: because the user asked
// for it, or because something else depends on it. Dependency-only
// packages are candidates for `remove_unused`.
type InstallReason uint8

const (
	ReasonUnknown InstallReason = iota
	ReasonExplicit
	ReasonDependency
)

// InstallStatus records whether a package is fully unpacked and configured
// or left in a partial state by an interrupted transaction.
type InstallStatus uint8

const (
	StatusUnknown InstallStatus = iota
	StatusInstalled
	StatusPartial
)

// Dependency is a single dependency requirement. Disjunctions
// ("a | b | c", dpkg's alternative syntax) are modelled as Alternatives;
// a plain dependency has exactly one name in Alternatives.
type Dependency struct {
	Alternatives []string
}

// Single reports whether this dependency has no '|' alternatives, and
// returns the one name if so.
func (d Dependency) Single() (string, bool) {
	if len(d.Alternatives) == 1 {
		return d.Alternatives[0], true
	}
	return "", false
}

// Package is the distro-agnostic view of one installed package record.
// Backends populate it from their native metadata; the orchestrator only
// ever sees this shape.
type Package struct {
	Ident PackageRef
	Arch  ArchitectureRef

	// Version is the raw version string in the backend's own format
	// (dpkg and pacman disagree on ordering rules, so comparisons are
	// always backend-specific and out of scope here).
	Version string

	Description string
	Depends     []Dependency
	Provides    []string

	Reason InstallReason
	Status InstallStatus

	// SecondaryIdents holds alternate names this package is also known
	// by: dpkg's "name:arch" form, pacman provides-aliases, Flatpak ref
	// variants. Ownership and dependency resolution may need to match
	// against any of these.
	SecondaryIdents []string

	// Source identifies which backend produced this record.
	Source Backend
}
