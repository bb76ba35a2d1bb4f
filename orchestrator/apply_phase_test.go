package orchestrator_test

import (
	"context"
	"testing"

	"github.com/etnz/syskoll/apply"
	"github.com/etnz/syskoll/backend"
	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/orchestrator"
	"github.com/etnz/syskoll/pkgmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingApplicator struct {
	batches [][]fsentry.FsInstruction
}

func (r *recordingApplicator) Apply(ctx context.Context, batch []fsentry.FsInstruction) error {
	r.batches = append(r.batches, batch)
	return nil
}

func TestApplyResultRunsEarlyThenPackagesThenLate(t *testing.T) {
	settings := orchestrator.NewSettings(t.TempDir())
	pkgs := &fakePackages{}
	settings.RegisterPackageBackend(pkgs)

	result := &orchestrator.Result{
		FsInstructions: []fsentry.FsInstruction{
			fsentry.CreateFile("/etc/passwd", fsentry.FileContents{}),
			fsentry.CreateFile("/etc/vim/vimrc", fsentry.FileContents{}),
		},
		PackageInstructions: []apply.PackageInstruction{
			{Backend: pkgmodel.BackendPacman, Identifier: "vim", Install: true},
		},
	}

	a := &recordingApplicator{}
	require.NoError(t, orchestrator.ApplyResult(context.Background(), settings, a, result))

	require.Len(t, a.batches, 2)
	assert.Equal(t, "/etc/passwd", a.batches[0][0].Path)
	assert.Equal(t, "/etc/vim/vimrc", a.batches[1][0].Path)
	assert.Equal(t, []string{"vim"}, pkgs.installed)
}

func TestApplyResultPropagatesApplicatorError(t *testing.T) {
	settings := orchestrator.NewSettings(t.TempDir())
	result := &orchestrator.Result{FsInstructions: []fsentry.FsInstruction{
		fsentry.CreateFile("/etc/passwd", fsentry.FileContents{}),
	}}

	err := orchestrator.ApplyResult(context.Background(), settings, erroringApplicator{}, result)
	assert.Error(t, err)
}

type erroringApplicator struct{}

func (erroringApplicator) Apply(ctx context.Context, batch []fsentry.FsInstruction) error {
	return backend.ConfigurationError("boom")
}
