package apply

import (
	"context"
	"testing"

	"github.com/etnz/syskoll/backend"
	"github.com/etnz/syskoll/intern"
	"github.com/etnz/syskoll/pkgmodel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPackages struct {
	install, uninstall []string
	transacted         bool
}

func (p *recordingPackages) Kind() pkgmodel.Backend { return pkgmodel.BackendPacman }

func (p *recordingPackages) ListPackages(ctx context.Context, in *intern.Interner) ([]pkgmodel.Package, error) {
	return nil, nil
}

func (p *recordingPackages) Transact(ctx context.Context, install, uninstall []string, askConfirmation bool) error {
	p.transacted = true
	p.install = install
	p.uninstall = uninstall
	return nil
}

func (p *recordingPackages) Mark(ctx context.Context, asDependency, asExplicit []string) error {
	return nil
}

func (p *recordingPackages) RemoveUnused(ctx context.Context, askConfirmation bool) error { return nil }

var _ backend.Packages = (*recordingPackages)(nil)

func TestApplyPackagesGroupsByBackend(t *testing.T) {
	pacman := &recordingPackages{}
	backends := map[pkgmodel.Backend]backend.Packages{pkgmodel.BackendPacman: pacman}

	instrs := []PackageInstruction{
		{Backend: pkgmodel.BackendPacman, Identifier: "vim", Install: true},
		{Backend: pkgmodel.BackendPacman, Identifier: "emacs", Install: false},
		{Backend: pkgmodel.BackendPacman, Identifier: "neovim", Install: true},
	}

	require.NoError(t, ApplyPackages(context.Background(), backends, instrs, false))
	assert.True(t, pacman.transacted)
	assert.ElementsMatch(t, []string{"vim", "neovim"}, pacman.install)
	assert.ElementsMatch(t, []string{"emacs"}, pacman.uninstall)
}

func TestApplyPackagesUnknownBackendErrors(t *testing.T) {
	err := ApplyPackages(context.Background(), nil, []PackageInstruction{
		{Backend: pkgmodel.BackendDpkg, Identifier: "bash", Install: true},
	}, false)
	require.Error(t, err)
	var berr *backend.Error
	require.ErrorAs(t, err, &berr)
	assert.Equal(t, backend.ErrConfiguration, berr.Kind)
}

func TestApplyPackagesNoInstructionsIsNoop(t *testing.T) {
	require.NoError(t, ApplyPackages(context.Background(), nil, nil, false))
}
