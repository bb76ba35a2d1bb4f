package pacman

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/etnz/syskoll/backend"
	"github.com/etnz/syskoll/backend/archiveutil"
	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/intern"
	"github.com/etnz/syskoll/pkgmodel"
	"github.com/klauspost/compress/zstd"
	"go.uber.org/zap"
)

const cacheVersion = 1

// pacmanArchiveSkip matches the five bookkeeping entries pacman's
// .pkg.tar.zst always carries; these are stripped rather than surfaced
// as file entries.
var pacmanArchiveSkip = regexp.MustCompile(`^/\.(BUILDINFO|PKGINFO|MTREE|INSTALL|CHANGELOG)$`)

// Backend implements [backend.Files] and [backend.Packages] for pacman.
type Backend struct {
	LocalDB  string // /var/lib/pacman/local
	CacheDir string // /var/cache/pacman/pkg

	log *zap.Logger

	// dirs is the process-wide directory dedup set: the same directory is
	// owned by many packages, so only the first sighting produces a
	// FileEntry.
	dirsMu sync.Mutex
	dirs   map[string]bool

	txMu sync.Mutex
}

func NewBackend(localDB, cacheDir string, log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{LocalDB: localDB, CacheDir: cacheDir, log: log, dirs: make(map[string]bool)}
}

func (b *Backend) Kind() pkgmodel.Backend        { return pkgmodel.BackendPacman }
func (b *Backend) CacheVersion() uint32          { return cacheVersion }
func (b *Backend) MayNeedCanonicalization() bool { return false }
func (b *Backend) PreferFilesFromArchive() bool  { return false }

func (b *Backend) packageDirs() ([]string, error) {
	entries, err := os.ReadDir(b.LocalDB)
	if err != nil {
		return nil, fmt.Errorf("pacman: reading local db: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(b.LocalDB, e.Name()))
		}
	}
	return dirs, nil
}

// ListPackages parses each package's desc file into a [pkgmodel.Package].
func (b *Backend) ListPackages(ctx context.Context, in *intern.Interner) ([]pkgmodel.Package, error) {
	dirs, err := b.packageDirs()
	if err != nil {
		return nil, err
	}

	var out []pkgmodel.Package
	for _, dir := range dirs {
		f, err := os.Open(filepath.Join(dir, "desc"))
		if err != nil {
			continue
		}
		e, err := parseDesc(f)
		f.Close()
		if err != nil {
			b.log.Debug("pacman: skipping unparsable desc", zap.String("dir", dir), zap.Error(err))
			continue
		}

		pkg := pkgmodel.Package{
			Ident:       pkgmodel.PackageRef(in.Intern(e.Name)),
			Version:     e.Version,
			Description: e.Description,
			Source:      pkgmodel.BackendPacman,
			Status:      pkgmodel.StatusInstalled,
		}
		if e.Arch != "" {
			pkg.Arch = pkgmodel.ArchitectureRef(in.Intern(e.Arch))
		}
		for _, d := range e.Depends {
			pkg.Depends = append(pkg.Depends, pkgmodel.Dependency{Alternatives: []string{stripDependVersion(d)}})
		}
		pkg.Provides = append(pkg.Provides, e.Provides...)
		if e.Reason == "1" {
			pkg.Reason = pkgmodel.ReasonDependency
		} else {
			pkg.Reason = pkgmodel.ReasonExplicit
		}
		out = append(out, pkg)
	}
	return out, nil
}

// Files parses desc (for the owning package ref), files (backup/CONFIG
// paths) and mtree (the bulk of typed entries) per package directory,
// deduplicating directories globally.
func (b *Backend) Files(ctx context.Context, in *intern.Interner) ([]*fsentry.FileEntry, error) {
	dirs, err := b.packageDirs()
	if err != nil {
		return nil, err
	}

	var out []*fsentry.FileEntry
	for _, dir := range dirs {
		entries, err := b.filesForPackage(dir, in)
		if err != nil {
			b.log.Debug("pacman: skipping package", zap.String("dir", dir), zap.Error(err))
			continue
		}
		out = append(out, entries...)
	}
	return out, nil
}

func (b *Backend) filesForPackage(dir string, in *intern.Interner) ([]*fsentry.FileEntry, error) {
	descF, err := os.Open(filepath.Join(dir, "desc"))
	if err != nil {
		return nil, err
	}
	desc, err := parseDesc(descF)
	descF.Close()
	if err != nil {
		return nil, err
	}
	ref := pkgmodel.PackageRef(in.Intern(desc.Name))

	backupSet := make(map[string]bool)
	if ff, err := os.Open(filepath.Join(dir, "files")); err == nil {
		if backups, err := parseFilesBackup(ff); err == nil {
			for _, p := range backups {
				backupSet[p] = true
			}
		}
		ff.Close()
	}

	mf, err := os.Open(filepath.Join(dir, "mtree"))
	if err != nil {
		return nil, err
	}
	defer mf.Close()
	gz, err := gzip.NewReader(mf)
	if err != nil {
		return nil, fmt.Errorf("pacman: opening mtree: %w", err)
	}
	defer gz.Close()
	records, err := ParseMtree(gz)
	if err != nil {
		return nil, fmt.Errorf("pacman: parsing mtree: %w", err)
	}

	var out []*fsentry.FileEntry
	for _, rec := range records {
		if rec.Type == "dir" {
			b.dirsMu.Lock()
			seen := b.dirs[rec.Path]
			b.dirs[rec.Path] = true
			b.dirsMu.Unlock()
			if seen {
				continue
			}
		}

		props, ok := mtreeToProperties(rec)
		if !ok {
			continue
		}
		flags := fsentry.Flags(0)
		if backupSet[rec.Path] {
			flags |= fsentry.FlagConfig
		}
		out = append(out, fsentry.NewFileEntry(ref, rec.Path, props, flags, pkgmodel.BackendPacman))
	}
	return out, nil
}

func mtreeToProperties(rec MtreeRecord) (fsentry.Properties, bool) {
	owner := fsentry.OwnerRef{}
	if rec.UID != "" {
		if n, err := strconv.Atoi(rec.UID); err == nil {
			owner = fsentry.OwnerRef{UID: n, Known: true}
		}
	}
	group := fsentry.OwnerRef{}
	if rec.GID != "" {
		if n, err := strconv.Atoi(rec.GID); err == nil {
			group = fsentry.OwnerRef{UID: n, Known: true}
		}
	}
	var mode fsentry.Mode
	if rec.Mode != "" {
		if m, err := fsentry.ParseMode(rec.Mode); err == nil {
			mode = m
		}
	}

	switch rec.Type {
	case "dir":
		return fsentry.Directory(mode, owner, group), true
	case "link":
		return fsentry.Symlink(owner, group, rec.Link), true
	case "fifo":
		return fsentry.Fifo(mode, owner, group), true
	case "file":
		if rec.SHA256 != "" {
			sum, err := parseSHA256Hex(rec.SHA256)
			if err == nil {
				return fsentry.RegularFile(mode, owner, group, sizeOrZero(rec.Size), 0, sum), true
			}
		}
		if rec.MD5 != "" {
			sum, err := fsentry.ParseMD5Hex(rec.MD5)
			if err == nil {
				return fsentry.RegularFileBasic(rec.Size, sum), true
			}
		}
		return fsentry.RegularFileBasic(rec.Size, fsentry.Checksum{}), true
	default:
		return fsentry.Properties{}, false
	}
}

func sizeOrZero(s *int64) int64 {
	if s == nil {
		return 0
	}
	return *s
}

func parseSHA256Hex(hexStr string) (fsentry.Checksum, error) {
	b, err := hex.DecodeString(hexStr)
	if err != nil {
		return fsentry.Checksum{}, err
	}
	if len(b) != 32 {
		return fsentry.Checksum{}, fmt.Errorf("pacman: invalid sha256 length %d", len(b))
	}
	var out [32]byte
	copy(out[:], b)
	return fsentry.SHA256(out), nil
}

// OwningPackages walks every package's `files` file and looks each listed
// path up in the set of requested paths.
func (b *Backend) OwningPackages(ctx context.Context, paths []string, in *intern.Interner) (map[string]pkgmodel.PackageRef, error) {
	want := make(map[string]bool, len(paths))
	for _, p := range paths {
		want[strings.TrimPrefix(p, "/")] = true
	}

	dirs, err := b.packageDirs()
	if err != nil {
		return nil, err
	}

	out := make(map[string]pkgmodel.PackageRef, len(paths))
	for _, dir := range dirs {
		descF, err := os.Open(filepath.Join(dir, "desc"))
		if err != nil {
			continue
		}
		desc, err := parseDesc(descF)
		descF.Close()
		if err != nil {
			continue
		}
		ref := pkgmodel.PackageRef(in.Intern(desc.Name))

		ff, err := os.Open(filepath.Join(dir, "files"))
		if err != nil {
			continue
		}
		list, err := parseFilesList(ff)
		ff.Close()
		if err != nil {
			continue
		}
		for _, p := range list {
			if want[strings.TrimPrefix(p, "/")] {
				out[p] = ref
			}
		}
	}
	return out, nil
}

// OriginalFiles takes the first file in the cache directory matching
// {name}-*.pkg.tar.zst (running `pacman -Sw` once if none matches) and scans
// the decoded tar stream for the requested paths. The version and
// architecture in the file name are not checked, so with several cached
// versions any one of them may be read.
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
		archivePath, err := b.locateArchive(ident)
		if err != nil {
			b.txMu.Lock()
			cmd := exec.CommandContext(ctx, "pacman", "-Sw", "--noconfirm", ident.Identifier)
			runErr := cmd.Run()
			b.txMu.Unlock()
			if runErr != nil {
				return out, err
			}
			archivePath, err = b.locateArchive(ident)
			if err != nil {
				return out, err
			}
		}

		entries, err := b.filesFromArchivePath(archivePath, ref)
		if err != nil {
			return out, err
		}
		byPath := make(map[string]*fsentry.FileEntry, len(entries))
		for _, e := range entries {
			byPath[e.Path] = e
		}
		for _, q := range qs {
			e, ok := byPath[q.Path]
			if !ok {
				return out, backend.FileNotFound(ident, q.Path)
			}
			out[q] = e.Properties.Contents
		}
	}
	return out, nil
}

func (b *Backend) locateArchive(ident pkgmodel.PkgIdent) (string, error) {
	pattern := filepath.Join(b.CacheDir, ident.Identifier+"-*.pkg.tar.zst")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", backend.ArchiveMissing(ident, []string{pattern})
	}
	return matches[0], nil
}

func (b *Backend) filesFromArchivePath(path string, ref pkgmodel.PackageRef) ([]*fsentry.FileEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("pacman: opening zstd stream: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	return archiveutil.WalkTar(tr, ref, pkgmodel.BackendPacman, func(name string) bool {
		return pacmanArchiveSkip.MatchString(name)
	})
}

// FilesFromArchives walks each package's cached .pkg.tar.zst directly.
func (b *Backend) FilesFromArchives(ctx context.Context, refs []pkgmodel.PackageRef, packages map[pkgmodel.PackageRef]pkgmodel.PkgIdent, in *intern.Interner) (map[pkgmodel.PackageRef][]*fsentry.FileEntry, error) {
	out := make(map[pkgmodel.PackageRef][]*fsentry.FileEntry, len(refs))
	for _, ref := range refs {
		ident, ok := packages[ref]
		if !ok {
			continue
		}
		archivePath, err := b.locateArchive(ident)
		if err != nil {
			return out, err
		}
		entries, err := b.filesFromArchivePath(archivePath, ref)
		if err != nil {
			return out, err
		}
		out[ref] = entries
	}
	return out, nil
}

// Transact shells out to pacman -S/-R, serialised by txMu: concurrent
// invocations deadlock on pacman's own database lock.
func (b *Backend) Transact(ctx context.Context, install, uninstall []string, askConfirmation bool) error {
	b.txMu.Lock()
	defer b.txMu.Unlock()

	run := func(args, names []string) error {
		if len(names) == 0 {
			return nil
		}
		cmd := exec.CommandContext(ctx, "pacman", args...)
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("pacman: %v: %w", args, err)
		}
		return nil
	}

	confirmFlag := "--noconfirm"
	if askConfirmation {
		confirmFlag = ""
	}
	installArgs := []string{"-S"}
	if confirmFlag != "" {
		installArgs = append(installArgs, confirmFlag)
	}
	installArgs = append(installArgs, install...)
	if err := run(installArgs, install); err != nil {
		return err
	}

	removeArgs := []string{"-R"}
	if confirmFlag != "" {
		removeArgs = append(removeArgs, confirmFlag)
	}
	removeArgs = append(removeArgs, uninstall...)
	return run(removeArgs, uninstall)
}

// Mark sets install reason via pacman -D --asdeps/--asexplicit.
func (b *Backend) Mark(ctx context.Context, asDependency, asExplicit []string) error {
	b.txMu.Lock()
	defer b.txMu.Unlock()

	run := func(flag string, names []string) error {
		if len(names) == 0 {
			return nil
		}
		args := append([]string{"-D", flag}, names...)
		cmd := exec.CommandContext(ctx, "pacman", args...)
		cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("pacman: -D %s: %w", flag, err)
		}
		return nil
	}
	if err := run("--asdeps", asDependency); err != nil {
		return err
	}
	return run("--asexplicit", asExplicit)
}

// RemoveUnused runs pacman -Qtdq | pacman -Rns -, the conventional
// orphan-removal pipeline.
func (b *Backend) RemoveUnused(ctx context.Context, askConfirmation bool) error {
	b.txMu.Lock()
	defer b.txMu.Unlock()

	listCmd := exec.CommandContext(ctx, "pacman", "-Qtdq")
	orphans, err := listCmd.Output()
	if err != nil {
		// Exit status 1 with empty output means "no orphans": not an error.
		if len(orphans) == 0 {
			return nil
		}
		return fmt.Errorf("pacman: -Qtdq: %w", err)
	}
	names := strings.Fields(string(orphans))
	if len(names) == 0 {
		return nil
	}

	args := []string{"-Rns"}
	if !askConfirmation {
		args = append(args, "--noconfirm")
	}
	args = append(args, names...)
	cmd := exec.CommandContext(ctx, "pacman", args...)
	cmd.Stdout, cmd.Stderr = os.Stdout, os.Stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("pacman: -Rns: %w", err)
	}
	return nil
}

var _ backend.Files = (*Backend)(nil)
var _ backend.Packages = (*Backend)(nil)
