package orchestrator_test

import (
	"context"
	"testing"

	"github.com/etnz/syskoll/backend"
	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/intern"
	"github.com/etnz/syskoll/orchestrator"
	"github.com/etnz/syskoll/pkgmodel"
	"github.com/etnz/syskoll/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFiles struct {
	backend.Files
	entries []*fsentry.FileEntry
}

func (f *fakeFiles) Kind() pkgmodel.Backend { return pkgmodel.BackendPacman }
func (f *fakeFiles) Files(ctx context.Context, in *intern.Interner) ([]*fsentry.FileEntry, error) {
	return f.entries, nil
}
func (f *fakeFiles) OwningPackages(ctx context.Context, paths []string, in *intern.Interner) (map[string]pkgmodel.PackageRef, error) {
	return map[string]pkgmodel.PackageRef{}, nil
}
func (f *fakeFiles) MayNeedCanonicalization() bool { return false }
func (f *fakeFiles) PreferFilesFromArchive() bool  { return false }
func (f *fakeFiles) CacheVersion() uint32          { return 1 }

type fakePackages struct {
	backend.Packages
	installed, uninstalled []string
}

func (p *fakePackages) Kind() pkgmodel.Backend { return pkgmodel.BackendPacman }
func (p *fakePackages) ListPackages(ctx context.Context, in *intern.Interner) ([]pkgmodel.Package, error) {
	return nil, nil
}
func (p *fakePackages) Transact(ctx context.Context, install, uninstall []string, askConfirmation bool) error {
	p.installed = append(p.installed, install...)
	p.uninstalled = append(p.uninstalled, uninstall...)
	return nil
}

func newTestOrchestrator(t *testing.T, files *fakeFiles, pkgs *fakePackages) *orchestrator.Orchestrator {
	t.Helper()
	settings := orchestrator.NewSettings(t.TempDir())
	o := orchestrator.New(settings, intern.New(), nil)

	require.NoError(t, o.SystemDiscovery(context.Background(), func(s *orchestrator.Settings) error {
		require.NoError(t, s.SetFileBackend(files))
		s.RegisterPackageBackend(pkgs)
		return nil
	}))
	require.NoError(t, o.Ignores(context.Background(), func(s *orchestrator.Settings) []string { return nil }))
	require.NoError(t, o.ScriptDependencies(context.Background(), nil))
	return o
}

func TestPhaseOrderEnforced(t *testing.T) {
	settings := orchestrator.NewSettings(t.TempDir())
	o := orchestrator.New(settings, intern.New(), nil)
	err := o.Ignores(context.Background(), nil)
	assert.Error(t, err)
}

func TestMainRequiresFileBackend(t *testing.T) {
	settings := orchestrator.NewSettings(t.TempDir())
	o := orchestrator.New(settings, intern.New(), nil)
	err := o.SystemDiscovery(context.Background(), nil)
	assert.Error(t, err)
}

func TestMainDiffsScriptAgainstBaseline(t *testing.T) {
	baseline := fsentry.NewFileEntry(0, "/etc/unchanged", fsentry.Directory(0o755, fsentry.OwnerRef{}, fsentry.OwnerRef{}), 0, pkgmodel.BackendPacman)
	files := &fakeFiles{entries: []*fsentry.FileEntry{baseline}}
	pkgs := &fakePackages{}
	o := newTestOrchestrator(t, files, pkgs)

	result, err := o.Main(context.Background(), state.GoalApply, func(fs *orchestrator.FsActions, pk *orchestrator.PackageActions) error {
		fs.Mkdir("/etc/unchanged")
		fs.Mkdir("/etc/new")
		pk.AddPkg(pkgmodel.BackendPacman, "vim")
		return nil
	})
	require.NoError(t, err)

	var newPaths []string
	for _, instr := range result.FsInstructions {
		if instr.Op.Kind == fsentry.OpCreateDirectory {
			newPaths = append(newPaths, instr.Path)
		}
	}
	assert.Contains(t, newPaths, "/etc/new")
	assert.NotContains(t, newPaths, "/etc/unchanged")

	require.Len(t, result.PackageInstructions, 1)
	assert.Equal(t, "vim", result.PackageInstructions[0].Identifier)
	assert.True(t, result.PackageInstructions[0].Install)
}

func TestResultEarlyLateSplitsByDefaultGlobs(t *testing.T) {
	settings := orchestrator.NewSettings(t.TempDir())
	result := &orchestrator.Result{FsInstructions: []fsentry.FsInstruction{
		fsentry.CreateFile("/etc/passwd", fsentry.FileContents{}),
		fsentry.CreateFile("/etc/vim/vimrc", fsentry.FileContents{}),
	}}
	early, late := result.EarlyLate(settings)
	require.Len(t, early, 1)
	require.Len(t, late, 1)
	assert.Equal(t, "/etc/passwd", early[0].Path)
	assert.Equal(t, "/etc/vim/vimrc", late[0].Path)
}

func TestResultRedactSensitiveSplitsByDefaultGlobs(t *testing.T) {
	settings := orchestrator.NewSettings(t.TempDir())
	result := &orchestrator.Result{FsInstructions: []fsentry.FsInstruction{
		fsentry.CreateFile("/etc/shadow", fsentry.FileContents{}),
		fsentry.CreateFile("/etc/vim/vimrc", fsentry.FileContents{}),
	}}
	safe, sensitive := result.RedactSensitive(settings)
	require.Len(t, sensitive, 1)
	require.Len(t, safe, 1)
	assert.Equal(t, "/etc/shadow", sensitive[0].Path)
	assert.Equal(t, "/etc/vim/vimrc", safe[0].Path)
}
