package dpkg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"github.com/etnz/syskoll/backend"
	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/intern"
	"github.com/etnz/syskoll/pkgmodel"
	"go.uber.org/zap"
)

// cacheVersion is bumped whenever the shape of entries this backend
// produces changes, to cache-bust [backend.Files.CacheVersion] consumers.
const cacheVersion = 1

// Backend implements [backend.Files] and [backend.Packages] for dpkg/apt.
type Backend struct {
	// AdminDir is /var/lib/dpkg by convention.
	AdminDir string
	// ArchiveCacheDir is where downloaded .deb files are looked for
	// (apt's /var/cache/apt/archives by convention).
	ArchiveCacheDir string

	log *zap.Logger

	// txMu serialises apt-get/apt-mark invocations: concurrent
	// package-manager invocations deadlock on their own database locks.
	txMu sync.Mutex
}

// NewBackend constructs a dpkg backend rooted at the conventional
// /var/lib/dpkg and /var/cache/apt/archives paths.
func NewBackend(adminDir, archiveCacheDir string, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{AdminDir: adminDir, ArchiveCacheDir: archiveCacheDir, log: log}
}

func (b *Backend) Kind() pkgmodel.Backend { return pkgmodel.BackendDpkg }

func (b *Backend) CacheVersion() uint32 { return cacheVersion }

// MayNeedCanonicalization is true: /usr-merge collapses packaging paths
// into symlinked directories.
func (b *Backend) MayNeedCanonicalization() bool { return true }

// PreferFilesFromArchive is true: dpkg's own metadata carries no
// mode/owner.
func (b *Backend) PreferFilesFromArchive() bool { return true }

func (b *Backend) infoDir() string { return filepath.Join(b.AdminDir, "info") }

// ListPackages merges status (names, versions, depends) with
// extended_states (explicit vs dependency).
func (b *Backend) ListPackages(ctx context.Context, in *intern.Interner) ([]pkgmodel.Package, error) {
	f, err := os.Open(filepath.Join(b.AdminDir, "status"))
	if err != nil {
		return nil, fmt.Errorf("dpkg: opening status: %w", err)
	}
	defer f.Close()
	entries, err := parseStatus(f)
	if err != nil {
		return nil, fmt.Errorf("dpkg: parsing status: %w", err)
	}

	autoInstalled := make(map[string]bool)
	if ef, err := os.Open(filepath.Join(filepath.Dir(b.AdminDir), "apt", "extended_states")); err == nil {
		defer ef.Close()
		if states, err := parseExtendedStates(ef); err == nil {
			for _, s := range states {
				autoInstalled[s.Package] = s.AutoInstalled
			}
		}
	}

	var out []pkgmodel.Package
	for _, e := range entries {
		if !strings.Contains(e.Status, "installed") && !strings.Contains(e.Status, "config-files") {
			continue
		}
		pkg := pkgmodel.Package{
			Ident:       pkgmodel.PackageRef(in.Intern(e.Package)),
			Version:     e.Version,
			Description: e.Description,
			Source:      pkgmodel.BackendDpkg,
		}
		if e.Architecture != "" {
			pkg.Arch = pkgmodel.ArchitectureRef(in.Intern(e.Architecture))
			pkg.SecondaryIdents = append(pkg.SecondaryIdents, e.Package+":"+e.Architecture)
		}
		for _, group := range splitDepends(e.Depends) {
			pkg.Depends = append(pkg.Depends, pkgmodel.Dependency{Alternatives: group})
		}
		for _, group := range splitDepends(e.Provides) {
			if len(group) > 0 {
				pkg.Provides = append(pkg.Provides, group[0])
			}
		}
		if strings.Contains(e.Status, "config-files") {
			pkg.Status = pkgmodel.StatusPartial
		} else {
			pkg.Status = pkgmodel.StatusInstalled
		}
		if autoInstalled[e.Package] {
			pkg.Reason = pkgmodel.ReasonDependency
		} else {
			pkg.Reason = pkgmodel.ReasonExplicit
		}
		out = append(out, pkg)
	}
	return out, nil
}

// Files unions *.list, *.md5sums, status conffiles, and diversions per spec
// §4.3.
func (b *Backend) Files(ctx context.Context, in *intern.Interner) ([]*fsentry.FileEntry, error) {
	entries, err := os.ReadDir(b.infoDir())
	if err != nil {
		return nil, fmt.Errorf("dpkg: reading info dir: %w", err)
	}

	byPath := make(map[string]*fsentry.FileEntry)
	pkgOfPath := make(map[string]string)

	for _, de := range entries {
		name := de.Name()
		switch {
		case strings.HasSuffix(name, ".list"):
			pkgName := strings.TrimSuffix(name, ".list")
			paths, err := b.readList(filepath.Join(b.infoDir(), name))
			if err != nil {
				b.log.Debug("dpkg: skipping unreadable .list", zap.String("pkg", pkgName), zap.Error(err))
				continue
			}
			ref := pkgmodel.PackageRef(in.Intern(pkgName))
			for _, p := range paths {
				if _, exists := byPath[p]; exists {
					continue
				}
				byPath[p] = fsentry.NewFileEntry(ref, p, fsentry.Unknown(), 0, pkgmodel.BackendDpkg)
				pkgOfPath[p] = pkgName
			}

		case strings.HasSuffix(name, ".md5sums"):
			pkgName := strings.TrimSuffix(name, ".md5sums")
			sums, err := b.readMd5sums(filepath.Join(b.infoDir(), name))
			if err != nil {
				b.log.Debug("dpkg: skipping unreadable .md5sums", zap.String("pkg", pkgName), zap.Error(err))
				continue
			}
			ref := pkgmodel.PackageRef(in.Intern(pkgName))
			for _, s := range sums {
				sum, err := fsentry.ParseMD5Hex(s.MD5Hex)
				if err != nil {
					continue
				}
				byPath[s.Path] = fsentry.NewFileEntry(ref, s.Path, fsentry.RegularFileBasic(nil, sum), 0, pkgmodel.BackendDpkg)
				pkgOfPath[s.Path] = pkgName
			}
		}
	}

	if err := b.applyConffiles(in, byPath, pkgOfPath); err != nil {
		b.log.Debug("dpkg: conffiles merge skipped", zap.Error(err))
	}

	if divs, err := b.readDiversions(); err == nil {
		for _, d := range divs {
			e, ok := byPath[d.Of]
			if !ok || pkgOfPath[d.Of] == d.ByPkg {
				continue
			}
			byPath[d.To] = fsentry.NewFileEntry(e.Package, d.To, e.Properties, e.Flags, e.Source)
			pkgOfPath[d.To] = pkgOfPath[d.Of]
			delete(byPath, d.Of)
			delete(pkgOfPath, d.Of)
		}
	}

	out := make([]*fsentry.FileEntry, 0, len(byPath))
	for _, e := range byPath {
		out = append(out, e)
	}
	return out, nil
}

func (b *Backend) readList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseList(f)
}

func (b *Backend) readMd5sums(path string) ([]md5sumEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return parseMd5sums(f)
}

// applyConffiles overwrites non-config entries at the same path with the
// CONFIG-flagged version from status.
func (b *Backend) applyConffiles(in *intern.Interner, byPath map[string]*fsentry.FileEntry, pkgOfPath map[string]string) error {
	f, err := os.Open(filepath.Join(b.AdminDir, "status"))
	if err != nil {
		return err
	}
	defer f.Close()
	entries, err := parseStatus(f)
	if err != nil {
		return err
	}
	for _, e := range entries {
		ref := pkgmodel.PackageRef(in.Intern(e.Package))
		for _, cf := range e.Conffiles {
			if cf.obsolete {
				b.log.Debug("dpkg: conffile marker skipped", zap.String("pkg", e.Package), zap.String("path", cf.Path))
			}
			sum, err := fsentry.ParseMD5Hex(cf.MD5Hex)
			if err != nil {
				continue
			}
			byPath[cf.Path] = fsentry.NewFileEntry(ref, cf.Path, fsentry.RegularFileBasic(nil, sum), fsentry.FlagConfig, pkgmodel.BackendDpkg)
			pkgOfPath[cf.Path] = e.Package
		}
	}
	return nil
}

// OwningPackages answers which package claims each requested path, applying
// diversions.
func (b *Backend) OwningPackages(ctx context.Context, paths []string, in *intern.Interner) (map[string]pkgmodel.PackageRef, error) {
	all, err := b.Files(ctx, in)
	if err != nil {
		return nil, err
	}
	byPath := make(map[string]pkgmodel.PackageRef, len(all))
	for _, e := range all {
		byPath[e.Path] = e.Package
	}

	if divs, err := b.readDiversions(); err == nil {
		strPaths := make(map[string]string, len(byPath))
		for p, ref := range byPath {
			strPaths[p] = in.String(intern.ID(ref))
		}
		applyDiversions(strPaths, divs)
		for p, name := range strPaths {
			byPath[p] = pkgmodel.PackageRef(in.Intern(name))
		}
	}

	out := make(map[string]pkgmodel.PackageRef, len(paths))
	for _, p := range paths {
		out[p] = byPath[p]
	}
	return out, nil
}

func (b *Backend) readDiversions() ([]diversion, error) {
	cmd := exec.Command("dpkg-divert", "--list")
	outBytes, err := cmd.Output()
	if err != nil {
		return nil, err
	}
	return parseDiversions(strings.NewReader(string(outBytes)))
}

// OriginalFiles fetches pristine bytes from the cached .deb archive,
// retrying with/without a leading "/usr" once before giving up with
// FileNotFound (the /usr-merge fallback).
func (b *Backend) OriginalFiles(ctx context.Context, queries []backend.OriginalFileQuery, packages map[pkgmodel.PackageRef]pkgmodel.PkgIdent, in *intern.Interner) (map[backend.OriginalFileQuery][]byte, error) {
	out := make(map[backend.OriginalFileQuery][]byte, len(queries))

	byPkg := make(map[pkgmodel.PackageRef][]backend.OriginalFileQuery)
	for _, q := range queries {
		byPkg[q.Package] = append(byPkg[q.Package], q)
	}

	for ref, qs := range byPkg {
		ident, ok := packages[ref]
		if !ok {
			continue
		}
		debPath, err := b.locateDeb(ident)
		if err != nil {
			return out, err
		}
		f, err := os.Open(debPath)
		if err != nil {
			return out, err
		}
		entries, err := filesFromDebReader(f, ref)
		f.Close()
		if err != nil {
			return out, err
		}
		byArchivePath := make(map[string]*fsentry.FileEntry, len(entries))
		for _, e := range entries {
			byArchivePath[e.Path] = e
		}
		for _, q := range qs {
			e, ok := byArchivePath[q.Path]
			if !ok {
				alt := usrMergeAlternate(q.Path)
				e, ok = byArchivePath[alt]
			}
			if !ok {
				return out, backend.FileNotFound(ident, q.Path)
			}
			out[q] = e.Properties.Contents
		}
	}
	return out, nil
}

// usrMergeAlternate toggles a leading "/usr" prefix, the one retry
// OriginalFiles tries before giving up on a path.
func usrMergeAlternate(path string) string {
	if strings.HasPrefix(path, "/usr/") {
		return strings.TrimPrefix(path, "/usr")
	}
	return "/usr" + path
}

func (b *Backend) locateDeb(ident pkgmodel.PkgIdent) (string, error) {
	matches, err := filepath.Glob(filepath.Join(b.ArchiveCacheDir, ident.Identifier+"_*.deb"))
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", backend.ArchiveMissing(ident, []string{filepath.Join(b.ArchiveCacheDir, ident.Identifier+"_*.deb")})
	}
	return matches[0], nil
}

// FilesFromArchives opens each package's cached .deb and walks its
// data.tar.*, the metadata-rich path needed because dpkg's own records
// lack mode/owner.
func (b *Backend) FilesFromArchives(ctx context.Context, refs []pkgmodel.PackageRef, packages map[pkgmodel.PackageRef]pkgmodel.PkgIdent, in *intern.Interner) (map[pkgmodel.PackageRef][]*fsentry.FileEntry, error) {
	out := make(map[pkgmodel.PackageRef][]*fsentry.FileEntry, len(refs))
	for _, ref := range refs {
		ident, ok := packages[ref]
		if !ok {
			continue
		}
		debPath, err := b.locateDeb(ident)
		if err != nil {
			return out, err
		}
		f, err := os.Open(debPath)
		if err != nil {
			return out, err
		}
		entries, err := filesFromDebReader(f, ref)
		f.Close()
		if err != nil {
			return out, err
		}
		out[ref] = entries
	}
	return out, nil
}

// Transact shells out to apt-get install/remove, serialised by txMu so
// concurrent invocations don't deadlock on apt's own database lock (spec
// §4.1, §5).
func (b *Backend) Transact(ctx context.Context, install, uninstall []string, askConfirmation bool) error {
	b.txMu.Lock()
	defer b.txMu.Unlock()

	run := func(verb string, names []string) error {
		if len(names) == 0 {
			return nil
		}
		args := []string{verb}
		if !askConfirmation {
			args = append(args, "-y")
		}
		args = append(args, names...)
		cmd := exec.CommandContext(ctx, "apt-get", args...)
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("dpkg: apt-get %s: %w", verb, err)
		}
		return nil
	}
	if err := run("install", install); err != nil {
		return err
	}
	return run("remove", uninstall)
}

// Mark reclassifies packages via apt-mark auto|manual.
func (b *Backend) Mark(ctx context.Context, asDependency, asExplicit []string) error {
	b.txMu.Lock()
	defer b.txMu.Unlock()

	run := func(verb string, names []string) error {
		if len(names) == 0 {
			return nil
		}
		args := append([]string{verb}, names...)
		cmd := exec.CommandContext(ctx, "apt-mark", args...)
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("dpkg: apt-mark %s: %w", verb, err)
		}
		return nil
	}
	if err := run("auto", asDependency); err != nil {
		return err
	}
	return run("manual", asExplicit)
}

// RemoveUnused shells out to apt-get autoremove.
func (b *Backend) RemoveUnused(ctx context.Context, askConfirmation bool) error {
	b.txMu.Lock()
	defer b.txMu.Unlock()

	args := []string{"autoremove"}
	if !askConfirmation {
		args = append(args, "-y")
	}
	cmd := exec.CommandContext(ctx, "apt-get", args...)
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("dpkg: apt-get autoremove: %w", err)
	}
	return nil
}

var _ backend.Files = (*Backend)(nil)
var _ backend.Packages = (*Backend)(nil)
