// Command konfigkoll reconciles a system's packages and filesystem state
// against the orchestrator's phased driver.
//
// No scripting language is implemented: a real deployment embeds
// orchestrator.Orchestrator directly and drives FsActions/PackageActions
// from its own script host. This binary runs the orchestrator with an
// empty script, so check/save/apply reconcile the live system purely
// against what the package databases themselves declare.
package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/etnz/syskoll/apply"
	"github.com/etnz/syskoll/cmd/cliutil"
	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/intern"
	"github.com/etnz/syskoll/orchestrator"
	"github.com/etnz/syskoll/pkgmodel"
	"github.com/etnz/syskoll/render"
	"github.com/etnz/syskoll/state"
	"github.com/etnz/syskoll/sysusers"
)

type globalFlags struct {
	configPath       string
	trustMtime       bool
	canonicalize     bool
	confirmation     string
	debugForceDryRun bool
	debug            bool
}

func main() {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "konfigkoll",
		Short: "Reconcile installed packages and filesystem state against the system",
	}
	root.PersistentFlags().StringVar(&flags.configPath, "config-path", defaultConfigPath(), "configuration directory")
	root.PersistentFlags().BoolVar(&flags.trustMtime, "trust-mtime", false, "skip content hashing when mtime matches exactly")
	root.PersistentFlags().BoolVar(&flags.canonicalize, "canonicalize", false, "canonicalise parent directories before comparison")
	root.PersistentFlags().StringVar(&flags.confirmation, "confirmation", "normal", "confirmation mode: paranoid|normal|dry-run")
	root.PersistentFlags().BoolVar(&flags.debugForceDryRun, "debug-force-dry-run", false, "force dry-run regardless of --confirmation")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newInitCmd(flags),
		newCheckCmd(flags),
		newSaveCmd(flags),
		newApplyCmd(flags),
		newDiffCmd(flags),
		newSysusersCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "konfigkoll:", err)
		os.Exit(1)
	}
}

func defaultConfigPath() string {
	home, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return home + "/konfigkoll"
}

// newOrchestrator runs SystemDiscovery, Ignores and ScriptDependencies,
// leaving the orchestrator ready for Main or Baseline. Both file and
// package backend are registered from the same detected distro.
func newOrchestrator(ctx context.Context, f *globalFlags) (*orchestrator.Orchestrator, error) {
	log, err := cliutil.NewLogger(f.debug)
	if err != nil {
		return nil, err
	}
	confirmation, err := orchestrator.ParseConfirmation(f.confirmation)
	if err != nil {
		return nil, err
	}

	distro := cliutil.DetectDistro()
	files, err := cliutil.FileBackend(distro, log)
	if err != nil {
		return nil, err
	}
	pkgs, err := cliutil.PackageBackend(distro, log)
	if err != nil {
		return nil, err
	}

	in := intern.New()
	settings := orchestrator.NewSettings(f.configPath)
	o := orchestrator.New(settings, in, log)

	if err := o.SystemDiscovery(ctx, func(s *orchestrator.Settings) error {
		if err := s.SetFileBackend(files); err != nil {
			return err
		}
		s.RegisterPackageBackend(pkgs)
		s.TrustMtime = f.trustMtime
		s.Canonicalize = f.canonicalize
		s.Confirmation = confirmation
		s.ForceDryRunFlag = f.debugForceDryRun
		return nil
	}); err != nil {
		return nil, err
	}
	if err := o.Ignores(ctx, nil); err != nil {
		return nil, err
	}
	if err := o.ScriptDependencies(ctx, nil); err != nil {
		return nil, err
	}
	return o, nil
}

func newInitCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create an empty configuration directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(flags.configPath, 0o755); err != nil {
				return err
			}
			readme := flags.configPath + "/README"
			if _, err := os.Stat(readme); err == nil {
				return nil
			}
			return os.WriteFile(readme, []byte(
				"konfigkoll configuration directory.\n\n"+
					"No script engine is bundled; check/save/apply reconcile the live\n"+
					"system against what the package databases themselves declare.\n"), 0o644)
		},
	}
}

func newCheckCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Report the filesystem and package changes apply would make",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			o, err := newOrchestrator(ctx, flags)
			if err != nil {
				return err
			}
			result, err := o.Main(ctx, state.GoalApply, nil)
			if err != nil {
				return err
			}
			printResult(result)
			if len(result.FsInstructions) > 0 || len(result.PackageInstructions) > 0 {
				os.Exit(1)
			}
			return nil
		},
	}
}

func printResult(result *orchestrator.Result) {
	for _, instr := range result.FsInstructions {
		if instr.Comment != "" {
			fmt.Printf("%s\t%s\t%s\n", instr.Op.Kind, instr.Path, instr.Comment)
		} else {
			fmt.Printf("%s\t%s\n", instr.Op.Kind, instr.Path)
		}
	}
	for _, p := range result.PackageInstructions {
		verb := "remove"
		if p.Install {
			verb = "install"
		}
		fmt.Printf("%s\t%s:%s\n", verb, p.Backend, p.Identifier)
	}
}

func newSaveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "save [filter]",
		Short: "Write the save-file script for the current system state",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			o, err := newOrchestrator(ctx, flags)
			if err != nil {
				return err
			}
			result, err := o.Baseline(ctx)
			if err != nil {
				return err
			}

			fsInstrs := result.FsInstructions
			if len(args) > 0 {
				fsInstrs = filterByPathPrefix(fsInstrs, args[0])
			}
			safe, sensitive := (&orchestrator.Result{FsInstructions: fsInstrs}).RedactSensitive(o.Settings)
			for _, instr := range sensitive {
				fmt.Fprintf(os.Stderr, "konfigkoll: omitting sensitive path from save output: %s\n", instr.Path)
			}

			if err := render.WriteUnsortedAdditions(os.Stdout, safe, result.PackageInstructions); err != nil {
				return err
			}
			return render.WriteUnsortedRemovals(os.Stdout, nil, nil)
		},
	}
}

// filterByPathPrefix keeps instructions at or below prefix, matching the
// save command's optional positional filter argument.
func filterByPathPrefix(instrs []fsentry.FsInstruction, prefix string) []fsentry.FsInstruction {
	var out []fsentry.FsInstruction
	for _, instr := range instrs {
		if instr.Path == prefix || strings.HasPrefix(instr.Path, prefix+"/") {
			out = append(out, instr)
		}
	}
	return out
}

func newApplyCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Reconcile the live system against the package-declared state",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			o, err := newOrchestrator(ctx, flags)
			if err != nil {
				return err
			}
			result, err := o.Main(ctx, state.GoalApply, nil)
			if err != nil {
				return err
			}

			packages := make(map[pkgmodel.PackageRef]pkgmodel.PkgIdent)
			for _, p := range o.Packages() {
				packages[p.Ident] = pkgmodel.PkgIdent{Backend: p.Source, Identifier: o.Interner.String(intern.ID(p.Ident))}
			}

			inProcess := apply.NewInProcess(o.Settings.FileBackend, packages, o.Interner, o.Log)
			var a apply.Applicator = inProcess
			switch o.Settings.EffectiveConfirmation() {
			case orchestrator.ConfirmationDryRun:
				a = apply.NewNoop(o.Log)
			case orchestrator.ConfirmationNormal, orchestrator.ConfirmationParanoid:
				interactive := apply.NewInteractive(inProcess, o.Log)
				interactive.ShowDiff = func(instr fsentry.FsInstruction) (string, error) {
					return instr.Op.Kind.String() + " " + instr.Path, nil
				}
				a = interactive
			}

			return orchestrator.ApplyResult(ctx, o.Settings, a, result)
		},
	}
}

func newDiffCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "diff PATH",
		Short: "Show the pending change at one path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			ctx := cmd.Context()
			o, err := newOrchestrator(ctx, flags)
			if err != nil {
				return err
			}
			result, err := o.Main(ctx, state.GoalApply, nil)
			if err != nil {
				return err
			}

			var matched bool
			for _, instr := range result.FsInstructions {
				if instr.Path != path && !strings.HasPrefix(instr.Path, path+"/") {
					continue
				}
				matched = true
				comment := instr.Comment
				if comment == "" {
					comment = "(no detail)"
				}
				fmt.Printf("%s %s: %s\n", instr.Op.Kind, instr.Path, comment)
			}
			if !matched {
				fmt.Printf("%s: no pending change\n", path)
			}
			return nil
		},
	}
}

// newSysusersCmd lets a script author inspect what users/groups a
// sysusers.d file declares before wiring an EditLines/Chown action around
// it; it does not itself create anything, since user/group creation is a
// host responsibility outside FsActions/PackageActions.
func newSysusersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sysusers PATH",
		Short: "Print the user/group directives declared by a sysusers.d file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			directives, err := sysusers.ParseFile(f)
			if err != nil {
				return fmt.Errorf("konfigkoll: %w", err)
			}
			for _, d := range directives {
				switch d.Kind {
				case sysusers.KindUser:
					fmt.Printf("user\t%s\thome=%s\tshell=%s\n", d.Name, d.Home, d.Shell)
				case sysusers.KindGroup:
					fmt.Printf("group\t%s\n", d.Name)
				case sysusers.KindAddToGroup:
					fmt.Printf("add-to-group\t%s\t%s\n", d.User, d.Group)
				case sysusers.KindRange:
					fmt.Printf("range\t%d-%d\n", d.RangeLo, d.RangeHi)
				}
			}
			return nil
		},
	}
}
