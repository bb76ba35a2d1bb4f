// Package cliutil holds the small bits both CLI entry points
// (cmd/konfigkoll, cmd/paketkoll) need: distro detection and shared
// --format handling, so neither duplicates the other's guesswork.
package cliutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/etnz/syskoll/backend"
	"github.com/etnz/syskoll/backend/dpkg"
	"github.com/etnz/syskoll/backend/pacman"
	"github.com/etnz/syskoll/backend/tmpfiles"
	"github.com/etnz/syskoll/diskcache"
	"github.com/etnz/syskoll/pkgmodel"
	"go.uber.org/zap"
)

// CacheDir returns the directory disk caches are rooted at: the user's
// cache directory under "syskoll", or a temp directory if that can't be
// determined.
func CacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "syskoll-cache")
	}
	return filepath.Join(dir, "syskoll")
}

// Distro is the detected package-manager family this host runs.
type Distro uint8

const (
	DistroUnknown Distro = iota
	DistroPacman
	DistroDpkg
)

// DetectDistro picks a backend by checking for each distro's canonical
// state directory, the same heuristic `paketkoll` itself uses to pick a
// default backend when none is given explicitly.
func DetectDistro() Distro {
	if _, err := os.Stat("/var/lib/pacman/local"); err == nil {
		return DistroPacman
	}
	if _, err := os.Stat("/var/lib/dpkg/status"); err == nil {
		return DistroDpkg
	}
	return DistroUnknown
}

// FileBackend builds the file backend for the detected (or forced) distro,
// fronted by the original-files and archive-entries disk caches so repeat
// CLI invocations don't re-read every package archive.
func FileBackend(d Distro, log *zap.Logger) (backend.Files, error) {
	var files backend.Files
	switch d {
	case DistroPacman:
		files = pacman.NewBackend("/var/lib/pacman/local", "/var/cache/pacman/pkg", log)
	case DistroDpkg:
		files = dpkg.NewBackend("/var/lib/dpkg", "/var/cache/apt/archives", log)
	default:
		return nil, fmt.Errorf("cliutil: could not detect a supported package manager (tried pacman, dpkg)")
	}
	cacheDir := CacheDir()
	return diskcache.NewArchiveEntries(diskcache.NewOriginalFiles(files, cacheDir), cacheDir), nil
}

// PackageBackend builds the package-transaction backend for the detected
// distro. Systemd-tmpfiles is always added as a second, package-less file
// backend contribution by the caller when wanted; it has no Packages side.
func PackageBackend(d Distro, log *zap.Logger) (backend.Packages, error) {
	switch d {
	case DistroPacman:
		return pacman.NewBackend("/var/lib/pacman/local", "/var/cache/pacman/pkg", log), nil
	case DistroDpkg:
		return dpkg.NewBackend("/var/lib/dpkg", "/var/cache/apt/archives", log), nil
	default:
		return nil, fmt.Errorf("cliutil: could not detect a supported package manager (tried pacman, dpkg)")
	}
}

// TmpfilesBackend is always available regardless of distro.
func TmpfilesBackend(log *zap.Logger) backend.Files { return tmpfiles.NewBackend(log) }

// BackendKind maps a Distro to its [pkgmodel.Backend] constant.
func (d Distro) BackendKind() pkgmodel.Backend {
	switch d {
	case DistroPacman:
		return pkgmodel.BackendPacman
	case DistroDpkg:
		return pkgmodel.BackendDpkg
	default:
		return pkgmodel.BackendUnknown
	}
}
