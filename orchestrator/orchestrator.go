// Package orchestrator drives the phased reconciliation loop:
// SystemDiscovery, Ignores, ScriptDependencies, and Main each run as a
// barrier, with the package and filesystem scans kicked off in parallel
// as soon as the ignore set is known, using the same errgroup
// fan-out-then-join pattern rclone uses to coordinate independent
// blocking backend calls.
package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/etnz/syskoll/apply"
	"github.com/etnz/syskoll/backend"
	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/intern"
	"github.com/etnz/syskoll/pkgmodel"
	"github.com/etnz/syskoll/state"
)

type phase uint8

const (
	phaseNotStarted phase = iota
	phaseSystemDiscovery
	phaseIgnores
	phaseScriptDependencies
	phaseMain
	phaseDone
)

// Orchestrator carries the phase driver's mutable state across one
// check/save/apply run: the registered backends, the shared interner, and
// the results of the background scan started in Ignores.
type Orchestrator struct {
	Settings *Settings
	Interner *intern.Interner
	Log      *zap.Logger

	phase phase

	scanEntries  []*fsentry.FileEntry
	scanPackages []pkgmodel.Package
	scanErr      error
}

// New builds an Orchestrator. log may be nil, in which case logging is a
// no-op.
func New(settings *Settings, in *intern.Interner, log *zap.Logger) *Orchestrator {
	if log == nil {
		log = zap.NewNop()
	}
	if in == nil {
		in = intern.New()
	}
	return &Orchestrator{Settings: settings, Interner: in, Log: log}
}

func (o *Orchestrator) requirePhase(want phase, name string) error {
	if o.phase != want-1 {
		return fmt.Errorf("orchestrator: %s must run immediately after phase %d, was in phase %d", name, want-1, o.phase)
	}
	return nil
}

// SystemDiscovery lets fn populate Settings: register backends, set
// TrustMtime/Canonicalize/Confirmation. Must be the first phase to run.
func (o *Orchestrator) SystemDiscovery(ctx context.Context, fn func(*Settings) error) error {
	if err := o.requirePhase(phaseSystemDiscovery, "SystemDiscovery"); err != nil {
		return err
	}
	if fn != nil {
		if err := fn(o.Settings); err != nil {
			return err
		}
	}
	if o.Settings.FileBackend == nil {
		return backend.ConfigurationError("no file backend registered during SystemDiscovery")
	}
	o.phase = phaseSystemDiscovery
	return nil
}

// Ignores lets fn contribute additional ignore globs, then starts the
// parallel package inventory and filesystem scans, since the scan needs
// the final ignore set to skip irrelevant trees. Ignores waits for both
// scans to finish before returning; a scan error is kept and returned by
// Main or Baseline.
func (o *Orchestrator) Ignores(ctx context.Context, fn func(*Settings) []string) error {
	if err := o.requirePhase(phaseIgnores, "Ignores"); err != nil {
		return err
	}
	if fn != nil {
		o.Settings.IgnoreGlobs = append(o.Settings.IgnoreGlobs, fn(o.Settings)...)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entries, err := o.Settings.FileBackend.Files(gctx, o.Interner)
		if err != nil {
			return fmt.Errorf("orchestrator: scanning files: %w", err)
		}
		o.scanEntries = entries
		return nil
	})
	g.Go(func() error {
		var all []pkgmodel.Package
		for _, p := range o.Settings.PackageBackends {
			pkgs, err := p.ListPackages(gctx, o.Interner)
			if err != nil {
				return fmt.Errorf("orchestrator: listing packages (%s): %w", p.Kind(), err)
			}
			all = append(all, pkgs...)
		}
		o.scanPackages = all
		return nil
	})
	o.scanErr = g.Wait()

	o.phase = phaseIgnores
	return nil
}

// ScriptDependencies lets fn declare packages that must already be
// installed before Main runs (so Main can read files shipped by them).
// Declared packages are installed immediately, one Transact call per
// backend, mirroring [apply.ApplyPackages].
func (o *Orchestrator) ScriptDependencies(ctx context.Context, fn func() []pkgmodel.PkgIdent) error {
	if err := o.requirePhase(phaseScriptDependencies, "ScriptDependencies"); err != nil {
		return err
	}
	if fn != nil {
		deps := fn()
		byBackend := make(map[pkgmodel.Backend][]string)
		for _, d := range deps {
			byBackend[d.Backend] = append(byBackend[d.Backend], d.Identifier)
		}
		for kind, idents := range byBackend {
			p, ok := o.Settings.PackageBackends[kind]
			if !ok {
				return backend.ConfigurationError("no package backend registered for " + kind.String())
			}
			if err := p.Transact(ctx, idents, nil, false); err != nil {
				return fmt.Errorf("orchestrator: installing script dependency: %w", err)
			}
		}
	}
	o.phase = phaseScriptDependencies
	return nil
}

// Packages returns the package inventory collected during Ignores, across
// every registered package backend. Callers building an [apply.InProcess]
// applicator need this to resolve [pkgmodel.PackageRef] identifiers back
// to [pkgmodel.PkgIdent] for archive lookups.
func (o *Orchestrator) Packages() []pkgmodel.Package { return o.scanPackages }

// Entries returns the filesystem expectations collected during Ignores,
// before any script deltas are applied.
func (o *Orchestrator) Entries() []*fsentry.FileEntry { return o.scanEntries }

// Result is what Main produces: the full reconciled instruction stream,
// not yet split into early/late or redacted for the save path.
type Result struct {
	FsInstructions      []fsentry.FsInstruction
	PackageInstructions []apply.PackageInstruction
}

// Baseline folds the scan results into a single creation-instruction
// stream describing everything the package databases and filesystem
// backend currently declare, with no script involved. This is what a
// save command bootstraps a new script from: there being no prior script
// to diff against, the whole baseline is what's "unsorted" and needs
// writing out. Callable once ScriptDependencies has run, like Main.
func (o *Orchestrator) Baseline(ctx context.Context) (*Result, error) {
	if err := o.requirePhase(phaseMain, "Baseline"); err != nil {
		return nil, err
	}
	if o.scanErr != nil {
		return nil, o.scanErr
	}

	before, warnings := foldFileEntries(o.scanEntries)
	for _, w := range warnings {
		o.Log.Warn("orchestrator: folding scanned entries", zap.String("warning", w))
	}

	var pkgInstrs []apply.PackageInstruction
	for _, p := range o.scanPackages {
		pkgInstrs = append(pkgInstrs, apply.PackageInstruction{
			Backend:    p.Source,
			Identifier: o.Interner.String(intern.ID(p.Ident)),
			Install:    true,
		})
	}

	o.phase = phaseDone
	return &Result{FsInstructions: replayCreations(before), PackageInstructions: pkgInstrs}, nil
}

// Main runs fn against fresh FsActions/PackageActions, folds the scan
// results (the "before" state) and fn's calls (the "after" state) into
// canonical maps, and diffs them. goal selects GoalApply (diff reasons
// about what's really on disk for paths the script drops) or GoalSave
// (diff just says "remove").
func (o *Orchestrator) Main(ctx context.Context, goal state.Goal, fn func(*FsActions, *PackageActions) error) (*Result, error) {
	if err := o.requirePhase(phaseMain, "Main"); err != nil {
		return nil, err
	}
	if o.scanErr != nil {
		return nil, o.scanErr
	}

	before, warnings := foldFileEntries(o.scanEntries)
	for _, w := range warnings {
		o.Log.Warn("orchestrator: folding scanned entries", zap.String("warning", w))
	}

	fsActions := &FsActions{}
	pkgActions := &PackageActions{}
	if fn != nil {
		if err := fn(fsActions, pkgActions); err != nil {
			return nil, err
		}
	}

	after, warnings := state.ApplyInstructions(append(replayCreations(before), fsActions.Instructions()...), true)
	for _, w := range warnings {
		o.Log.Warn("orchestrator: folding script actions", zap.String("warning", w))
	}

	var live *liveResolver
	if goal == state.GoalApply {
		var err error
		live, err = newLiveResolver(ctx, o.Settings.FileBackend, goneFromAfter(before, after), o.Interner)
		if err != nil {
			return nil, err
		}
	}

	var resolver state.PathResolver
	if live != nil {
		resolver = live
	}
	instrs := state.Diff(goal, before, after, resolver)
	state.SortByApplyOrder(instrs)

	o.phase = phaseDone
	return &Result{FsInstructions: instrs, PackageInstructions: pkgActions.Instructions()}, nil
}

// goneFromAfter returns every key present in before but not after, the set
// [state.Diff] will call the resolver for under GoalApply.
func goneFromAfter(before, after *state.FsEntries) []string {
	var out []string
	for _, k := range before.SortedKeys() {
		if after.Get(k) == nil {
			out = append(out, k)
		}
	}
	return out
}

// replayCreations reconstructs a creation stream equivalent to m, so a
// script's incremental FsActions calls can be layered on top of the
// package-declared baseline rather than having to restate it.
func replayCreations(m *state.FsEntries) []fsentry.FsInstruction {
	var out []fsentry.FsInstruction
	for _, k := range m.SortedKeys() {
		n := m.Get(k)
		switch n.Kind {
		case state.NodeFile:
			out = append(out, fsentry.CreateFile(k, n.Contents))
		case state.NodeDirectory:
			out = append(out, fsentry.CreateDirectory(k))
		case state.NodeSymlink:
			out = append(out, fsentry.CreateSymlink(k, n.Target))
		case state.NodeFifo:
			out = append(out, fsentry.CreateFifo(k))
		case state.NodeBlockDevice:
			out = append(out, fsentry.CreateBlockDevice(k, n.Major, n.Minor))
		case state.NodeCharDevice:
			out = append(out, fsentry.CreateCharDevice(k, n.Major, n.Minor))
		}
		if n.Mode != nil {
			out = append(out, fsentry.SetMode(k, *n.Mode))
		}
		if n.Owner != nil {
			out = append(out, fsentry.SetOwner(k, *n.Owner))
		}
		if n.Group != nil {
			out = append(out, fsentry.SetGroup(k, *n.Group))
		}
	}
	return out
}

// EarlyLate splits fs instructions into those matching Settings.EarlyGlobs
// (applied before the package transaction) and the rest (applied after).
func (r *Result) EarlyLate(s *Settings) (early, late []fsentry.FsInstruction) {
	for _, instr := range r.FsInstructions {
		if matchesAny(s.EarlyGlobs, instr.Path) {
			early = append(early, instr)
		} else {
			late = append(late, instr)
		}
	}
	return early, late
}

// RedactSensitive splits fs instructions into (safe, sensitive): sensitive
// entries match Settings.SensitiveGlobs and must never be written to the
// save-file or a files/ payload, only logged by the caller.
func (r *Result) RedactSensitive(s *Settings) (safe, sensitive []fsentry.FsInstruction) {
	for _, instr := range r.FsInstructions {
		if matchesAny(s.SensitiveGlobs, instr.Path) {
			sensitive = append(sensitive, instr)
		} else {
			safe = append(safe, instr)
		}
	}
	return safe, sensitive
}

func matchesAny(globs []string, path string) bool {
	for _, g := range globs {
		if ok, _ := matchGlob(g, path); ok {
			return true
		}
	}
	return false
}
