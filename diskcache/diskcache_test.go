package diskcache

import (
	"context"
	"testing"
	"time"

	"github.com/etnz/syskoll/backend"
	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/intern"
	"github.com/etnz/syskoll/pkgmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFiles is a minimal backend.Files stub that counts how many times its
// fetch methods run, so tests can assert a cache hit never reaches it.
type fakeFiles struct {
	kind             pkgmodel.Backend
	version          uint32
	originalCalls    int
	originalResponse map[backend.OriginalFileQuery][]byte
	archiveCalls     int
	archiveResponse  map[pkgmodel.PackageRef][]*fsentry.FileEntry
}

func (f *fakeFiles) Kind() pkgmodel.Backend        { return f.kind }
func (f *fakeFiles) CacheVersion() uint32          { return f.version }
func (f *fakeFiles) MayNeedCanonicalization() bool { return false }
func (f *fakeFiles) PreferFilesFromArchive() bool  { return false }

func (f *fakeFiles) Files(ctx context.Context, in *intern.Interner) ([]*fsentry.FileEntry, error) {
	return nil, nil
}

func (f *fakeFiles) OwningPackages(ctx context.Context, paths []string, in *intern.Interner) (map[string]pkgmodel.PackageRef, error) {
	return nil, nil
}

func (f *fakeFiles) OriginalFiles(ctx context.Context, queries []backend.OriginalFileQuery, packages map[pkgmodel.PackageRef]pkgmodel.PkgIdent, in *intern.Interner) (map[backend.OriginalFileQuery][]byte, error) {
	f.originalCalls++
	out := make(map[backend.OriginalFileQuery][]byte, len(queries))
	for _, q := range queries {
		if v, ok := f.originalResponse[q]; ok {
			out[q] = v
		}
	}
	return out, nil
}

func (f *fakeFiles) FilesFromArchives(ctx context.Context, refs []pkgmodel.PackageRef, packages map[pkgmodel.PackageRef]pkgmodel.PkgIdent, in *intern.Interner) (map[pkgmodel.PackageRef][]*fsentry.FileEntry, error) {
	f.archiveCalls++
	out := make(map[pkgmodel.PackageRef][]*fsentry.FileEntry, len(refs))
	for _, ref := range refs {
		if v, ok := f.archiveResponse[ref]; ok {
			out[ref] = v
		}
	}
	return out, nil
}

var _ backend.Files = (*fakeFiles)(nil)

func TestOriginalFilesCacheHitAvoidsBackendCall(t *testing.T) {
	in := intern.New()
	pkgRef := pkgmodel.PackageRef(in.Intern("coreutils"))
	packages := map[pkgmodel.PackageRef]pkgmodel.PkgIdent{pkgRef: {Backend: pkgmodel.BackendPacman, Identifier: "coreutils"}}
	query := backend.OriginalFileQuery{Package: pkgRef, Path: "/usr/bin/ls"}

	fake := &fakeFiles{
		kind:             pkgmodel.BackendPacman,
		version:          1,
		originalResponse: map[backend.OriginalFileQuery][]byte{query: []byte("ls-bytes")},
	}
	cache := NewOriginalFiles(fake, t.TempDir())

	out, err := cache.OriginalFiles(context.Background(), []backend.OriginalFileQuery{query}, packages, in)
	require.NoError(t, err)
	assert.Equal(t, []byte("ls-bytes"), out[query])
	assert.Equal(t, 1, fake.originalCalls)

	// Second lookup must be served from disk, not the wrapped backend.
	fake.originalResponse = nil
	out, err = cache.OriginalFiles(context.Background(), []backend.OriginalFileQuery{query}, packages, in)
	require.NoError(t, err)
	assert.Equal(t, []byte("ls-bytes"), out[query])
	assert.Equal(t, 1, fake.originalCalls, "cache hit must not re-invoke the backend")
}

func TestOriginalFilesCacheExpiresAfterTTL(t *testing.T) {
	in := intern.New()
	pkgRef := pkgmodel.PackageRef(in.Intern("coreutils"))
	packages := map[pkgmodel.PackageRef]pkgmodel.PkgIdent{pkgRef: {Backend: pkgmodel.BackendPacman, Identifier: "coreutils"}}
	query := backend.OriginalFileQuery{Package: pkgRef, Path: "/usr/bin/ls"}

	fake := &fakeFiles{
		kind:             pkgmodel.BackendPacman,
		version:          1,
		originalResponse: map[backend.OriginalFileQuery][]byte{query: []byte("v1")},
	}
	clock := time.Now()
	cache := NewOriginalFiles(fake, t.TempDir())
	cache.TTL = time.Hour
	cache.Now = func() time.Time { return clock }

	_, err := cache.OriginalFiles(context.Background(), []backend.OriginalFileQuery{query}, packages, in)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.originalCalls)

	// Still within TTL: served from disk.
	clock = clock.Add(30 * time.Minute)
	fake.originalResponse = map[backend.OriginalFileQuery][]byte{query: []byte("v2")}
	out, err := cache.OriginalFiles(context.Background(), []backend.OriginalFileQuery{query}, packages, in)
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), out[query])
	assert.Equal(t, 1, fake.originalCalls)

	// Past TTL: the underlying backend's current answer must win.
	clock = clock.Add(2 * time.Hour)
	out, err = cache.OriginalFiles(context.Background(), []backend.OriginalFileQuery{query}, packages, in)
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), out[query])
	assert.Equal(t, 2, fake.originalCalls)
}

func TestArchiveEntriesCacheRoundTripsProperties(t *testing.T) {
	in := intern.New()
	pkgRef := pkgmodel.PackageRef(in.Intern("bash"))
	packages := map[pkgmodel.PackageRef]pkgmodel.PkgIdent{pkgRef: {Backend: pkgmodel.BackendPacman, Identifier: "bash"}}

	size := int64(42)
	sum := fsentry.MD5([16]byte{1, 2, 3})
	entry := fsentry.NewFileEntry(pkgRef, "/bin/bash", fsentry.RegularFileBasic(&size, sum), fsentry.FlagConfig, pkgmodel.BackendPacman)

	fake := &fakeFiles{
		kind:            pkgmodel.BackendPacman,
		version:         1,
		archiveResponse: map[pkgmodel.PackageRef][]*fsentry.FileEntry{pkgRef: {entry}},
	}
	cache := NewArchiveEntries(fake, t.TempDir())

	out, err := cache.FilesFromArchives(context.Background(), []pkgmodel.PackageRef{pkgRef}, packages, in)
	require.NoError(t, err)
	require.Len(t, out[pkgRef], 1)
	assert.Equal(t, 1, fake.archiveCalls)

	fake.archiveResponse = nil
	out, err = cache.FilesFromArchives(context.Background(), []pkgmodel.PackageRef{pkgRef}, packages, in)
	require.NoError(t, err)
	require.Len(t, out[pkgRef], 1)
	assert.Equal(t, 1, fake.archiveCalls, "cache hit must not re-invoke the backend")

	got := out[pkgRef][0]
	assert.Equal(t, "/bin/bash", got.Path)
	assert.Equal(t, fsentry.FlagConfig, got.Flags)
	assert.Equal(t, fsentry.KindRegularFileBasic, got.Properties.Kind)
	require.NotNil(t, got.Properties.Size)
	assert.Equal(t, int64(42), *got.Properties.Size)
	assert.True(t, sum.Equal(got.Properties.Checksum))
}

func TestArchiveEntriesCacheVersionBustsStaleEntries(t *testing.T) {
	in := intern.New()
	pkgRef := pkgmodel.PackageRef(in.Intern("bash"))
	packages := map[pkgmodel.PackageRef]pkgmodel.PkgIdent{pkgRef: {Backend: pkgmodel.BackendPacman, Identifier: "bash"}}
	entryV1 := fsentry.NewFileEntry(pkgRef, "/bin/bash", fsentry.Unknown(), 0, pkgmodel.BackendPacman)

	dir := t.TempDir()
	fake := &fakeFiles{kind: pkgmodel.BackendPacman, version: 1, archiveResponse: map[pkgmodel.PackageRef][]*fsentry.FileEntry{pkgRef: {entryV1}}}
	cache := NewArchiveEntries(fake, dir)
	_, err := cache.FilesFromArchives(context.Background(), []pkgmodel.PackageRef{pkgRef}, packages, in)
	require.NoError(t, err)
	assert.Equal(t, 1, fake.archiveCalls)

	// A cache-version bump must look like a fresh miss even though the TTL
	// hasn't elapsed and the directory is unchanged.
	fake.version = 2
	cacheV2 := NewArchiveEntries(fake, dir)
	_, err = cacheV2.FilesFromArchives(context.Background(), []pkgmodel.PackageRef{pkgRef}, packages, in)
	require.NoError(t, err)
	assert.Equal(t, 2, fake.archiveCalls, "version bump must not reuse the v1 cache entry")
}

func TestHashKeyStableAndDistinctPerPart(t *testing.T) {
	a := hashKey("pacman", "1", "pacman", "bash", "/bin/bash")
	b := hashKey("pacman", "1", "pacman", "bash", "/bin/bash")
	assert.Equal(t, a, b)

	c := hashKey("pacman", "2", "pacman", "bash", "/bin/bash")
	assert.NotEqual(t, a, c)
}
