package diskcache

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/etnz/syskoll/backend"
	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/intern"
	"github.com/etnz/syskoll/pkgmodel"
	"go.yaml.in/yaml/v3"
)

// ArchiveEntriesTTL is the default lifetime of an archive-entries cache
// entry.
const ArchiveEntriesTTL = 15 * 24 * time.Hour

// ArchiveEntries fronts a [backend.Files]'s FilesFromArchives method with a
// write-through cache keyed by (backend name, package identity). The cached
// value is the full file-entry listing a package's archive contains, with
// each entry's transient "seen" flag stripped before storage.
type ArchiveEntries struct {
	backend.Files
	Dir string
	TTL time.Duration
	Now func() time.Time
}

// NewArchiveEntries wraps files with a disk cache rooted at dir.
func NewArchiveEntries(files backend.Files, dir string) *ArchiveEntries {
	return &ArchiveEntries{Files: files, Dir: dir, TTL: ArchiveEntriesTTL, Now: time.Now}
}

func (c *ArchiveEntries) entryPaths(ident pkgmodel.PkgIdent) (valuePath, metaPath string) {
	key := hashKey(c.Kind().String(), itoa(c.CacheVersion()), ident.Backend.String(), ident.Identifier)
	base := filepath.Join(c.Dir, "archive-entries")
	return filepath.Join(base, key+".yaml"), filepath.Join(base, key+".meta.yaml")
}

// FilesFromArchives resolves each ref from the on-disk cache where
// possible, fetching only the misses from the wrapped backend in one
// batched call, then writes the fetch results back.
func (c *ArchiveEntries) FilesFromArchives(ctx context.Context, refs []pkgmodel.PackageRef, packages map[pkgmodel.PackageRef]pkgmodel.PkgIdent, in *intern.Interner) (map[pkgmodel.PackageRef][]*fsentry.FileEntry, error) {
	now := c.now()
	out := make(map[pkgmodel.PackageRef][]*fsentry.FileEntry, len(refs))
	var misses []pkgmodel.PackageRef

	for _, ref := range refs {
		ident, known := packages[ref]
		if !known {
			misses = append(misses, ref)
			continue
		}
		valuePath, metaPath := c.entryPaths(ident)
		meta, err := readMeta(metaPath)
		if err != nil || meta.expired(c.TTL, now) {
			misses = append(misses, ref)
			continue
		}
		entries, err := loadWireEntries(valuePath, ref)
		if err != nil {
			misses = append(misses, ref)
			continue
		}
		out[ref] = entries
		c.touch(metaPath, now)
	}

	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := c.Files.FilesFromArchives(ctx, misses, packages, in)
	if err != nil {
		return nil, err
	}
	for ref, entries := range fetched {
		out[ref] = entries
		ident, known := packages[ref]
		if !known {
			continue
		}
		valuePath, metaPath := c.entryPaths(ident)
		c.store(valuePath, metaPath, entries, now)
	}
	return out, nil
}

func (c *ArchiveEntries) store(valuePath, metaPath string, entries []*fsentry.FileEntry, now time.Time) {
	dir := filepath.Dir(valuePath)
	b, err := yaml.Marshal(toWireEntries(entries))
	if err != nil {
		return
	}
	if err := writeAtomic(dir, filepath.Base(valuePath), b); err != nil {
		return
	}
	meta, err := yamlMarshalMeta(entryMeta{StoredAtUnix: now.Unix()})
	if err != nil {
		return
	}
	_ = writeAtomic(dir, filepath.Base(metaPath), meta)
}

func (c *ArchiveEntries) touch(metaPath string, now time.Time) {
	meta, err := yamlMarshalMeta(entryMeta{StoredAtUnix: now.Unix()})
	if err != nil {
		return
	}
	_ = writeAtomic(filepath.Dir(metaPath), filepath.Base(metaPath), meta)
}

func (c *ArchiveEntries) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func loadWireEntries(path string, ref pkgmodel.PackageRef) ([]*fsentry.FileEntry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var wire []wireEntry
	if err := yaml.Unmarshal(b, &wire); err != nil {
		return nil, err
	}
	out := make([]*fsentry.FileEntry, 0, len(wire))
	for _, w := range wire {
		out = append(out, w.toFileEntry(ref))
	}
	return out, nil
}

var _ backend.Files = (*ArchiveEntries)(nil)
