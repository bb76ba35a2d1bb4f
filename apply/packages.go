package apply

import (
	"context"

	"github.com/etnz/syskoll/backend"
	"github.com/etnz/syskoll/pkgmodel"
)

// PackageInstruction is one install or uninstall directive targeting a
// single backend, as produced by reconciling the script's desired package
// set against [backend.Packages.ListPackages].
type PackageInstruction struct {
	Backend    pkgmodel.Backend
	Identifier string
	Install    bool // false means uninstall
}

// ApplyPackages groups instrs by backend, partitions each group into
// install/uninstall identifier lists, and calls that backend's Transact
// once.
func ApplyPackages(ctx context.Context, backends map[pkgmodel.Backend]backend.Packages, instrs []PackageInstruction, askConfirmation bool) error {
	type lists struct{ install, uninstall []string }
	byBackend := make(map[pkgmodel.Backend]*lists)

	for _, instr := range instrs {
		l, ok := byBackend[instr.Backend]
		if !ok {
			l = &lists{}
			byBackend[instr.Backend] = l
		}
		if instr.Install {
			l.install = append(l.install, instr.Identifier)
		} else {
			l.uninstall = append(l.uninstall, instr.Identifier)
		}
	}

	for kind, l := range byBackend {
		b, ok := backends[kind]
		if !ok {
			return backend.ConfigurationError("no package backend registered for " + kind.String())
		}
		if len(l.install) == 0 && len(l.uninstall) == 0 {
			continue
		}
		if err := b.Transact(ctx, l.install, l.uninstall, askConfirmation); err != nil {
			return err
		}
	}
	return nil
}
