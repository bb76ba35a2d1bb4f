package diskcache

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/etnz/syskoll/backend"
	"github.com/etnz/syskoll/intern"
	"github.com/etnz/syskoll/pkgmodel"
)

// OriginalFilesTTL is the default lifetime of an original-files cache
// entry, refreshed on every hit.
const OriginalFilesTTL = 30 * 24 * time.Hour

// OriginalFiles fronts a [backend.Files]'s OriginalFiles method with a
// write-through cache keyed by (backend name, cache version, package
// identity, path). A lookup batch is split into hits, served straight from
// disk, and misses, fetched from the wrapped backend in one call and
// written back.
type OriginalFiles struct {
	backend.Files
	Dir string
	TTL time.Duration
	Now func() time.Time
}

// NewOriginalFiles wraps files with a disk cache rooted at dir (a
// subdirectory of the process's cache root is created on demand).
func NewOriginalFiles(files backend.Files, dir string) *OriginalFiles {
	return &OriginalFiles{Files: files, Dir: dir, TTL: OriginalFilesTTL, Now: time.Now}
}

func (c *OriginalFiles) entryPaths(query backend.OriginalFileQuery, packages map[pkgmodel.PackageRef]pkgmodel.PkgIdent, in *intern.Interner) (valuePath, metaPath string, ok bool) {
	ident, known := packages[query.Package]
	if !known {
		return "", "", false
	}
	key := hashKey(c.Kind().String(), itoa(c.CacheVersion()), ident.Backend.String(), ident.Identifier, query.Path)
	base := filepath.Join(c.Dir, "original-files")
	return filepath.Join(base, key+".bin"), filepath.Join(base, key+".meta.yaml"), true
}

// OriginalFiles resolves each query from the on-disk cache where possible,
// fetching only the misses from the wrapped backend, then writes the fetch
// results back before returning the full result set.
func (c *OriginalFiles) OriginalFiles(ctx context.Context, queries []backend.OriginalFileQuery, packages map[pkgmodel.PackageRef]pkgmodel.PkgIdent, in *intern.Interner) (map[backend.OriginalFileQuery][]byte, error) {
	now := c.now()
	out := make(map[backend.OriginalFileQuery][]byte, len(queries))
	var misses []backend.OriginalFileQuery

	for _, q := range queries {
		valuePath, metaPath, ok := c.entryPaths(q, packages, in)
		if !ok {
			misses = append(misses, q)
			continue
		}
		meta, err := readMeta(metaPath)
		if err != nil || meta.expired(c.TTL, now) {
			misses = append(misses, q)
			continue
		}
		content, err := os.ReadFile(valuePath)
		if err != nil {
			misses = append(misses, q)
			continue
		}
		out[q] = content
		c.touch(metaPath, now)
	}

	if len(misses) == 0 {
		return out, nil
	}

	fetched, err := c.Files.OriginalFiles(ctx, misses, packages, in)
	if err != nil {
		return nil, err
	}
	for q, content := range fetched {
		out[q] = content
		if valuePath, metaPath, ok := c.entryPaths(q, packages, in); ok {
			c.store(valuePath, metaPath, content, now)
		}
	}
	return out, nil
}

func (c *OriginalFiles) store(valuePath, metaPath string, content []byte, now time.Time) {
	dir := filepath.Dir(valuePath)
	_ = writeAtomic(dir, filepath.Base(valuePath), content)
	meta, err := yamlMarshalMeta(entryMeta{StoredAtUnix: now.Unix()})
	if err != nil {
		return
	}
	_ = writeAtomic(dir, filepath.Base(metaPath), meta)
}

// touch refreshes an entry's stored-at time on a cache hit, per the TTL
// being "refreshed on hit" rather than fixed at write time.
func (c *OriginalFiles) touch(metaPath string, now time.Time) {
	meta, err := yamlMarshalMeta(entryMeta{StoredAtUnix: now.Unix()})
	if err != nil {
		return
	}
	_ = writeAtomic(filepath.Dir(metaPath), filepath.Base(metaPath), meta)
}

func (c *OriginalFiles) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

var _ backend.Files = (*OriginalFiles)(nil)
