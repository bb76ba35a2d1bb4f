//go:build linux

package apply

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/etnz/syskoll/backend"
	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/intern"
	"github.com/etnz/syskoll/pkgmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessCreateDirectoryAndFile(t *testing.T) {
	dir := t.TempDir()
	a := NewInProcess(nil, nil, nil, nil)

	sub := filepath.Join(dir, "a", "b")
	require.NoError(t, a.Apply(context.Background(), []fsentry.FsInstruction{fsentry.CreateDirectory(sub)}))
	info, err := os.Stat(sub)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	file := filepath.Join(sub, "hello.txt")
	contents := fsentry.FileContents{Kind: fsentry.ContentsLiteral, Bytes: []byte("hi")}
	require.NoError(t, a.Apply(context.Background(), []fsentry.FsInstruction{fsentry.CreateFile(file, contents)}))
	got, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.Equal(t, "hi", string(got))
}

func TestInProcessRemoveIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "gone")
	a := NewInProcess(nil, nil, nil, nil)
	require.NoError(t, a.Apply(context.Background(), []fsentry.FsInstruction{fsentry.Remove(target)}))
}

func TestInProcessCreateSymlink(t *testing.T) {
	dir := t.TempDir()
	link := filepath.Join(dir, "link")
	a := NewInProcess(nil, nil, nil, nil)
	require.NoError(t, a.Apply(context.Background(), []fsentry.FsInstruction{fsentry.CreateSymlink(link, "/etc/target")}))
	target, err := os.Readlink(link)
	require.NoError(t, err)
	assert.Equal(t, "/etc/target", target)
}

type fakeOriginalFilesBackend struct {
	backend.Files
	content []byte
}

func (f *fakeOriginalFilesBackend) OriginalFiles(ctx context.Context, queries []backend.OriginalFileQuery, packages map[pkgmodel.PackageRef]pkgmodel.PkgIdent, in *intern.Interner) (map[backend.OriginalFileQuery][]byte, error) {
	out := make(map[backend.OriginalFileQuery][]byte)
	for _, q := range queries {
		out[q] = f.content
	}
	return out, nil
}

func TestInProcessRestoreWritesPristineBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conf")
	require.NoError(t, os.WriteFile(path, []byte("modified"), 0o644))

	in := intern.New()
	ref := pkgmodel.PackageRef(in.Intern("bash"))
	packages := map[pkgmodel.PackageRef]pkgmodel.PkgIdent{ref: {Backend: pkgmodel.BackendPacman, Identifier: "bash"}}
	fake := &fakeOriginalFilesBackend{content: []byte("pristine")}

	a := NewInProcess(fake, packages, in, nil)
	instr := fsentry.Restore(path).WithPackage(ref)
	require.NoError(t, a.Apply(context.Background(), []fsentry.FsInstruction{instr}))

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "pristine", string(got))
}

func TestInProcessRestoreWithoutBackendErrors(t *testing.T) {
	a := NewInProcess(nil, nil, nil, nil)
	err := a.Apply(context.Background(), []fsentry.FsInstruction{fsentry.Restore("/etc/x")})
	require.Error(t, err)
}
