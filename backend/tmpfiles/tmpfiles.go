package tmpfiles

import (
	"bufio"
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/etnz/syskoll/backend"
	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/intern"
	"github.com/etnz/syskoll/pkgmodel"
	"go.uber.org/zap"
)

const cacheVersion = 1

// Backend implements [backend.Files] for systemd-tmpfiles. It has no
// package-manager counterpart; entries it produces carry the zero
// [pkgmodel.PackageRef].
type Backend struct {
	// Resolver expands %-specifiers; defaults to [NewSystemResolver] when
	// nil, overridable in tests.
	Resolver Resolver

	log *zap.Logger
}

func NewBackend(log *zap.Logger) *Backend {
	if log == nil {
		log = zap.NewNop()
	}
	return &Backend{log: log}
}

func (b *Backend) Kind() pkgmodel.Backend        { return pkgmodel.BackendSystemdTmpfiles }
func (b *Backend) CacheVersion() uint32          { return cacheVersion }
func (b *Backend) MayNeedCanonicalization() bool { return false }
func (b *Backend) PreferFilesFromArchive() bool  { return false }

func (b *Backend) resolver() Resolver {
	if b.Resolver != nil {
		return b.Resolver
	}
	return NewSystemResolver()
}

// ParseConfig parses `systemd-tmpfiles --cat-config` output: one directive
// per non-blank, non-comment line.
func ParseConfig(r *bufio.Scanner) ([]Directive, error) {
	var out []Directive
	for r.Scan() {
		line := strings.TrimSpace(r.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		d, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("tmpfiles: %w", err)
		}
		out = append(out, d)
	}
	return out, r.Err()
}

// Files runs `systemd-tmpfiles --cat-config`, resolves every directive into
// zero or more [fsentry.FileEntry] values, and merges same-path entries
// last-write-wins with the two overlay special cases mergeEntry documents.
func (b *Backend) Files(ctx context.Context, in *intern.Interner) ([]*fsentry.FileEntry, error) {
	cmd := exec.CommandContext(ctx, "systemd-tmpfiles", "--cat-config")
	outBytes, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("tmpfiles: systemd-tmpfiles --cat-config: %w", err)
	}

	directives, err := ParseConfig(bufio.NewScanner(bytes.NewReader(outBytes)))
	if err != nil {
		return nil, err
	}

	resolver := b.resolver()
	byPath := make(map[string]*fsentry.FileEntry)
	for _, d := range directives {
		entries, err := b.expand(d, resolver)
		if err != nil {
			b.log.Debug("tmpfiles: skipping directive", zap.String("path", d.Path), zap.Error(err))
			continue
		}
		for _, e := range entries {
			if prior, ok := byPath[e.Path]; ok {
				byPath[e.Path] = mergeEntry(prior, e)
			} else {
				byPath[e.Path] = e
			}
		}
	}

	out := make([]*fsentry.FileEntry, 0, len(byPath))
	for _, e := range byPath {
		out = append(out, e)
	}
	return out, nil
}

// mergeEntry implements the merge rule: last-write-wins, except a
// Permissions-only entry overlays attributes onto the prior variant, and an
// Unknown prior is always upgraded by whatever comes next.
func mergeEntry(prior, next *fsentry.FileEntry) *fsentry.FileEntry {
	if next.Properties.Kind == fsentry.KindPermissions && prior.Properties.Kind != fsentry.KindUnknown {
		merged := *prior
		merged.Properties.Mode = next.Properties.Mode
		merged.Properties.Owner = next.Properties.Owner
		merged.Properties.Group = next.Properties.Group
		merged.Flags = next.Flags
		return &merged
	}
	return next
}

// expand resolves one directive (with specifiers applied) into the file
// entries it asserts. Cleanup-only directives ('r', 'R', 'x', 'X') assert
// nothing about desired state and are skipped.
func (b *Backend) expand(d Directive, resolver Resolver) ([]*fsentry.FileEntry, error) {
	path := resolver.Resolve(d.Path)
	owner := ownerRef(resolver.Resolve(d.User))
	group := ownerRef(resolver.Resolve(d.Group))
	mode, hasMode := resolveMode(d.Mode)

	switch d.Type {
	case TypeCreateFile, TypeCreateTruncate:
		m := mode
		if !hasMode {
			m = 0o644
		}
		content, err := b.argumentBytes(d)
		if err != nil {
			return nil, err
		}
		var size *int64
		if content != nil {
			n := int64(len(content))
			size = &n
		}
		sum := fsentry.Checksum{}
		if content != nil {
			_, sha, _, err := fsentry.HashReader(bytes.NewReader(content))
			if err != nil {
				return nil, err
			}
			sum = fsentry.SHA256(sha)
		}
		return []*fsentry.FileEntry{
			fsentry.NewFileEntry(0, path, fsentry.RegularFileSystemd(m, owner, group, size, sum, content), 0, pkgmodel.BackendSystemdTmpfiles),
		}, nil

	case TypeCreateDir, TypeCreateDirClean, TypeCreateSubvol:
		m := mode
		if !hasMode {
			m = 0o755
		}
		return []*fsentry.FileEntry{
			fsentry.NewFileEntry(0, path, fsentry.Directory(m, owner, group), 0, pkgmodel.BackendSystemdTmpfiles),
		}, nil

	case TypeSymlink:
		target := resolver.Resolve(d.Argument)
		return []*fsentry.FileEntry{
			fsentry.NewFileEntry(0, path, fsentry.Symlink(owner, group, target), 0, pkgmodel.BackendSystemdTmpfiles),
		}, nil

	case TypeFifo:
		m := mode
		if !hasMode {
			m = 0o644
		}
		return []*fsentry.FileEntry{
			fsentry.NewFileEntry(0, path, fsentry.Fifo(m, owner, group), 0, pkgmodel.BackendSystemdTmpfiles),
		}, nil

	case TypeCharDevice, TypeBlockDevice:
		major, minor, err := parseDeviceArg(d.Argument)
		if err != nil {
			return nil, err
		}
		kind := fsentry.DeviceChar
		if d.Type == TypeBlockDevice {
			kind = fsentry.DeviceBlock
		}
		m := mode
		if !hasMode {
			m = 0o644
		}
		return []*fsentry.FileEntry{
			fsentry.NewFileEntry(0, path, fsentry.NewDeviceNode(m, owner, group, kind, major, minor), 0, pkgmodel.BackendSystemdTmpfiles),
		}, nil

	case TypeSetAttrs, TypeSetAttrsDeep:
		return []*fsentry.FileEntry{
			fsentry.NewFileEntry(0, path, fsentry.Permissions(mode, owner, group), 0, pkgmodel.BackendSystemdTmpfiles),
		}, nil

	case TypeCopy:
		return b.expandCopy(d, path)

	case TypeRemove, TypeRemoveDeep, TypeIgnore, TypeIgnoreDeep:
		return nil, nil

	default:
		return nil, fmt.Errorf("unsupported directive type %q", string(d.Type))
	}
}

// argumentBytes decodes a directive's Argument field: base64-decoded when
// the '~' modifier is set and the argument isn't also marked as a
// credential ('^'), literal otherwise. An empty argument yields nil
// (content unspecified, only existence asserted).
func (b *Backend) argumentBytes(d Directive) ([]byte, error) {
	if d.Argument == "" {
		return nil, nil
	}
	if d.Base64Arg && !d.Credential {
		decoded, err := base64.StdEncoding.DecodeString(d.Argument)
		if err != nil {
			return nil, fmt.Errorf("tmpfiles: invalid base64 argument: %w", err)
		}
		return decoded, nil
	}
	return []byte(d.Argument), nil
}

func parseDeviceArg(arg string) (major, minor uint32, err error) {
	parts := strings.SplitN(arg, ":", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("tmpfiles: malformed device argument %q", arg)
	}
	maj, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return 0, 0, err
	}
	min, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, err
	}
	return uint32(maj), uint32(min), nil
}

func resolveMode(field string) (fsentry.Mode, bool) {
	if field == "" {
		return 0, false
	}
	octal, _, _ := ParseModeField(field)
	m, err := fsentry.ParseMode(octal)
	if err != nil {
		return 0, false
	}
	return m, true
}

func ownerRef(s string) fsentry.OwnerRef {
	if s == "" {
		return fsentry.OwnerRef{}
	}
	if uid, err := strconv.Atoi(s); err == nil {
		return fsentry.OwnerRef{UID: uid, Known: true}
	}
	return fsentry.OwnerRef{Name: s, Known: true}
}

// expandCopy walks the source subtree on the live filesystem (the only
// expectation-building step that reads live state) hashing file bodies
// with SHA-256 to seed RegularFileSystemd entries.
func (b *Backend) expandCopy(d Directive, destPath string) ([]*fsentry.FileEntry, error) {
	src := d.Argument
	if src == "" {
		src = filepath.Join("/usr/share/factory", destPath)
	}

	if _, err := os.Lstat(src); err != nil {
		if d.NoDeref {
			return nil, nil
		}
		return nil, fmt.Errorf("tmpfiles: copy source %q: %w", src, err)
	}

	var out []*fsentry.FileEntry
	walkErr := filepath.WalkDir(src, func(p string, de fs.DirEntry, err error) error {
		if err != nil {
			b.log.Warn("tmpfiles: copy walk error", zap.String("path", p), zap.Error(err))
			return nil
		}
		rel, err := filepath.Rel(src, p)
		if err != nil {
			return err
		}
		dst := destPath
		if rel != "." {
			dst = filepath.Join(destPath, rel)
		}

		fi, err := de.Info()
		if err != nil {
			b.log.Warn("tmpfiles: copy stat error", zap.String("path", p), zap.Error(err))
			return nil
		}

		switch {
		case de.IsDir():
			out = append(out, fsentry.NewFileEntry(0, dst, fsentry.Directory(fsentry.Mode(fi.Mode().Perm()), fsentry.OwnerRef{}, fsentry.OwnerRef{}), 0, pkgmodel.BackendSystemdTmpfiles))
		case fi.Mode()&os.ModeSymlink != 0:
			target, err := os.Readlink(p)
			if err != nil {
				return nil
			}
			out = append(out, fsentry.NewFileEntry(0, dst, fsentry.Symlink(fsentry.OwnerRef{}, fsentry.OwnerRef{}, target), 0, pkgmodel.BackendSystemdTmpfiles))
		case fi.Mode().IsRegular():
			f, err := os.Open(p)
			if err != nil {
				b.log.Warn("tmpfiles: copy open error", zap.String("path", p), zap.Error(err))
				return nil
			}
			_, sha, size, err := fsentry.HashReader(f)
			f.Close()
			if err != nil {
				return nil
			}
			out = append(out, fsentry.NewFileEntry(0, dst, fsentry.RegularFileSystemd(fsentry.Mode(fi.Mode().Perm()), fsentry.OwnerRef{}, fsentry.OwnerRef{}, &size, fsentry.SHA256(sha), nil), 0, pkgmodel.BackendSystemdTmpfiles))
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return out, nil
}

// OwningPackages always answers the zero PackageRef: tmpfiles directives
// aren't attributed to a package.
func (b *Backend) OwningPackages(ctx context.Context, paths []string, in *intern.Interner) (map[string]pkgmodel.PackageRef, error) {
	out := make(map[string]pkgmodel.PackageRef, len(paths))
	for _, p := range paths {
		out[p] = 0
	}
	return out, nil
}

// OriginalFiles has nothing to fetch: tmpfiles entries already carry their
// full content (if any) inline from Files().
func (b *Backend) OriginalFiles(ctx context.Context, queries []backend.OriginalFileQuery, packages map[pkgmodel.PackageRef]pkgmodel.PkgIdent, in *intern.Interner) (map[backend.OriginalFileQuery][]byte, error) {
	return map[backend.OriginalFileQuery][]byte{}, nil
}

// FilesFromArchives is a no-op: tmpfiles has no archive concept.
func (b *Backend) FilesFromArchives(ctx context.Context, refs []pkgmodel.PackageRef, packages map[pkgmodel.PackageRef]pkgmodel.PkgIdent, in *intern.Interner) (map[pkgmodel.PackageRef][]*fsentry.FileEntry, error) {
	return map[pkgmodel.PackageRef][]*fsentry.FileEntry{}, nil
}

var _ backend.Files = (*Backend)(nil)
