//go:build linux

package apply

import (
	"context"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/etnz/syskoll/backend"
	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/intern"
	"github.com/etnz/syskoll/pkgmodel"
)

// InProcess applies instructions directly via OS primitives: create/remove,
// mkfifo, mknod, chmod, chown, symlink, and, for Restore, a call back into
// the owning package's file backend.
type InProcess struct {
	Files    backend.Files
	Packages map[pkgmodel.PackageRef]pkgmodel.PkgIdent
	Interner *intern.Interner
	Log      *zap.Logger

	idCache ownerCache
}

// NewInProcess builds an InProcess applicator. files and packages may be
// nil if the batch stream never contains a Restore instruction.
func NewInProcess(files backend.Files, packages map[pkgmodel.PackageRef]pkgmodel.PkgIdent, in *intern.Interner, log *zap.Logger) *InProcess {
	if log == nil {
		log = zap.NewNop()
	}
	return &InProcess{Files: files, Packages: packages, Interner: in, Log: log}
}

// Apply executes every instruction in batch. All instructions in a batch
// share an op kind (see [ApplyFiles]), but Apply itself makes no such
// assumption so it remains safe to call directly with a mixed slice.
func (a *InProcess) Apply(ctx context.Context, batch []fsentry.FsInstruction) error {
	for _, instr := range batch {
		if err := a.applyOne(ctx, instr); err != nil {
			return fmt.Errorf("apply %s %s: %w", instr.Op.Kind, instr.Path, err)
		}
	}
	return nil
}

func (a *InProcess) applyOne(ctx context.Context, instr fsentry.FsInstruction) error {
	switch instr.Op.Kind {
	case fsentry.OpRemove:
		if err := os.RemoveAll(instr.Path); err != nil && !os.IsNotExist(err) {
			return err
		}
		return nil

	case fsentry.OpCreateDirectory:
		return os.MkdirAll(instr.Path, 0o755)

	case fsentry.OpCreateFile:
		return a.createFile(instr.Path, instr.Op.Contents)

	case fsentry.OpCreateSymlink:
		_ = os.Remove(instr.Path)
		return os.Symlink(instr.Op.Target, instr.Path)

	case fsentry.OpCreateFifo:
		_ = os.Remove(instr.Path)
		return unix.Mkfifo(instr.Path, 0o644)

	case fsentry.OpCreateBlockDevice:
		_ = os.Remove(instr.Path)
		return unix.Mknod(instr.Path, unix.S_IFBLK|0o660, int(unix.Mkdev(instr.Op.Major, instr.Op.Minor)))

	case fsentry.OpCreateCharDevice:
		_ = os.Remove(instr.Path)
		return unix.Mknod(instr.Path, unix.S_IFCHR|0o660, int(unix.Mkdev(instr.Op.Major, instr.Op.Minor)))

	case fsentry.OpSetMode:
		return os.Chmod(instr.Path, os.FileMode(instr.Op.Mode.Masked()))

	case fsentry.OpSetOwner:
		uid, err := a.idCache.uid(instr.Op.Name)
		if err != nil {
			return err
		}
		return os.Chown(instr.Path, uid, -1)

	case fsentry.OpSetGroup:
		gid, err := a.idCache.gid(instr.Op.Name)
		if err != nil {
			return err
		}
		return os.Chown(instr.Path, -1, gid)

	case fsentry.OpRestore:
		return a.restore(ctx, instr)

	case fsentry.OpComment:
		a.Log.Debug("apply: comment", zap.String("path", instr.Path), zap.String("text", instr.Comment))
		return nil

	default:
		return fmt.Errorf("unhandled op kind %s", instr.Op.Kind)
	}
}

func (a *InProcess) createFile(path string, contents fsentry.FileContents) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	switch contents.Kind {
	case fsentry.ContentsLiteral:
		return os.WriteFile(path, contents.Bytes, 0o644)
	case fsentry.ContentsFromFile:
		data, err := os.ReadFile(contents.Path)
		if err != nil {
			return err
		}
		return os.WriteFile(path, data, 0o644)
	default:
		return fmt.Errorf("unknown file-contents kind %d", contents.Kind)
	}
}

// restore re-fetches the package-pristine bytes for a Restore instruction
// and writes them in place, calling the file backend's original-files
// lookup with the owning package of the path.
func (a *InProcess) restore(ctx context.Context, instr fsentry.FsInstruction) error {
	if a.Files == nil {
		return fmt.Errorf("restore %s: no file backend configured", instr.Path)
	}
	ident, ok := a.Packages[instr.Package]
	if !ok {
		return fmt.Errorf("restore %s: owning package unknown", instr.Path)
	}
	query := backend.OriginalFileQuery{Package: instr.Package, Path: instr.Path}
	result, err := a.Files.OriginalFiles(ctx, []backend.OriginalFileQuery{query}, a.Packages, a.Interner)
	if err != nil {
		return err
	}
	content, ok := result[query]
	if !ok {
		return backend.FileNotFound(ident, instr.Path)
	}
	return os.WriteFile(instr.Path, content, 0o644)
}

// ownerCache memoises user/group name to numeric id lookups, since the
// same owner/group name recurs across most instructions in a batch.
type ownerCache struct {
	mu   sync.Mutex
	uids map[string]int
	gids map[string]int
}

func (c *ownerCache) uid(name string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.uids == nil {
		c.uids = make(map[string]int)
	}
	if id, ok := c.uids[name]; ok {
		return id, nil
	}
	u, err := user.Lookup(name)
	if err != nil {
		return 0, err
	}
	id, err := strconv.Atoi(u.Uid)
	if err != nil {
		return 0, err
	}
	c.uids[name] = id
	return id, nil
}

func (c *ownerCache) gid(name string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gids == nil {
		c.gids = make(map[string]int)
	}
	if id, ok := c.gids[name]; ok {
		return id, nil
	}
	g, err := user.LookupGroup(name)
	if err != nil {
		return 0, err
	}
	id, err := strconv.Atoi(g.Gid)
	if err != nil {
		return 0, err
	}
	c.gids[name] = id
	return id, nil
}

var _ Applicator = (*InProcess)(nil)
