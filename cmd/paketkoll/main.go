// Command paketkoll audits installed packages and the files they claim to
// own against the live filesystem.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/etnz/syskoll/backend"
	"github.com/etnz/syskoll/checker"
	"github.com/etnz/syskoll/cmd/cliutil"
	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/intern"
	"github.com/etnz/syskoll/pciids"
	"github.com/etnz/syskoll/pkgmodel"
)

type globalFlags struct {
	format  string
	backend string
	debug   bool
}

func main() {
	flags := &globalFlags{}
	root := &cobra.Command{
		Use:   "paketkoll",
		Short: "Audit installed packages and the files they own",
	}
	root.PersistentFlags().StringVar(&flags.format, "format", "text", "output format: text|json")
	root.PersistentFlags().StringVar(&flags.backend, "backend", "auto", "package backend: auto|pacman|dpkg")
	root.PersistentFlags().BoolVar(&flags.debug, "debug", false, "enable debug logging")

	root.AddCommand(
		newCheckCmd(flags),
		newCheckUnexpectedCmd(flags),
		newInstalledPackagesCmd(flags),
		newOriginalFileCmd(flags),
		newOwnsCmd(flags),
		newDebugPackageFileDataCmd(flags),
		newPciLookupCmd(flags),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "paketkoll:", err)
		os.Exit(1)
	}
}

func (f *globalFlags) distro() cliutil.Distro {
	switch f.backend {
	case "pacman":
		return cliutil.DistroPacman
	case "dpkg":
		return cliutil.DistroDpkg
	default:
		return cliutil.DetectDistro()
	}
}

func (f *globalFlags) logger() *zap.Logger {
	log, err := cliutil.NewLogger(f.debug)
	if err != nil {
		log = zap.NewNop()
	}
	return log
}

func (f *globalFlags) printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newCheckCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check [packages...]",
		Short: "Check every file a package claims to own against the live filesystem",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := flags.logger()
			files, err := cliutil.FileBackend(flags.distro(), log)
			if err != nil {
				return err
			}
			in := intern.New()
			entries, err := files.Files(cmd.Context(), in)
			if err != nil {
				return err
			}
			if len(args) > 0 {
				entries = filterByPackage(entries, in, args)
			}

			type result struct {
				Path  string `json:"path"`
				Issue string `json:"issue"`
			}
			var results []result
			for _, e := range entries {
				issue, err := checker.CheckEntry(e, checker.Options{})
				if err != nil {
					return err
				}
				if issue != nil {
					results = append(results, result{Path: issue.Path, Issue: issue.String()})
				}
			}

			if flags.format == "json" {
				return flags.printJSON(results)
			}
			for _, r := range results {
				fmt.Println(r.Issue)
			}
			if len(results) > 0 {
				os.Exit(1)
			}
			return nil
		},
	}
}

func filterByPackage(entries []*fsentry.FileEntry, in *intern.Interner, names []string) []*fsentry.FileEntry {
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}
	var out []*fsentry.FileEntry
	for _, e := range entries {
		if want[in.String(intern.ID(e.Package))] {
			out = append(out, e)
		}
	}
	return out
}

func newCheckUnexpectedCmd(flags *globalFlags) *cobra.Command {
	var ignores []string
	var canonicalize bool
	cmd := &cobra.Command{
		Use:   "check-unexpected",
		Short: "Walk the filesystem for files no package claims",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := flags.logger()
			files, err := cliutil.FileBackend(flags.distro(), log)
			if err != nil {
				return err
			}
			in := intern.New()
			entries, err := files.Files(cmd.Context(), in)
			if err != nil {
				return err
			}
			report, err := checker.CheckAll(cmd.Context(), "/", entries, checker.Options{
				IgnoreGlobs:  ignores,
				Canonicalize: canonicalize,
			})
			if err != nil {
				return err
			}

			var unexpected []string
			for _, issue := range report.Issues {
				if issue.Kind == checker.IssueUnexpected {
					unexpected = append(unexpected, issue.Path)
				}
			}

			if flags.format == "json" {
				return flags.printJSON(unexpected)
			}
			for _, p := range unexpected {
				fmt.Println(p)
			}
			if len(unexpected) > 0 {
				os.Exit(1)
			}
			return nil
		},
	}
	cmd.Flags().StringArrayVar(&ignores, "ignore", nil, "glob to exclude from the walk (repeatable)")
	cmd.Flags().BoolVar(&canonicalize, "canonicalize", false, "canonicalise parent directories before comparison (dpkg /usr-merge)")
	return cmd
}

func newInstalledPackagesCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "installed-packages",
		Short: "List every installed package",
		RunE: func(cmd *cobra.Command, args []string) error {
			log := flags.logger()
			pkgs, err := cliutil.PackageBackend(flags.distro(), log)
			if err != nil {
				return err
			}
			in := intern.New()
			list, err := pkgs.ListPackages(cmd.Context(), in)
			if err != nil {
				return err
			}

			type result struct {
				Name    string `json:"name"`
				Version string `json:"version"`
				Reason  string `json:"reason"`
			}
			var out []result
			for _, p := range list {
				out = append(out, result{
					Name:    in.String(intern.ID(p.Ident)),
					Version: p.Version,
					Reason:  reasonString(p.Reason),
				})
			}

			if flags.format == "json" {
				return flags.printJSON(out)
			}
			for _, r := range out {
				fmt.Printf("%s\t%s\t%s\n", r.Name, r.Version, r.Reason)
			}
			return nil
		},
	}
}

func reasonString(r pkgmodel.InstallReason) string {
	if r == pkgmodel.ReasonDependency {
		return "dependency"
	}
	return "explicit"
}

func newOriginalFileCmd(flags *globalFlags) *cobra.Command {
	var pkgName string
	cmd := &cobra.Command{
		Use:   "original-file PATH",
		Short: "Print the pristine bytes a package shipped at PATH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			log := flags.logger()
			files, err := cliutil.FileBackend(flags.distro(), log)
			if err != nil {
				return err
			}
			in := intern.New()

			var pkgRef pkgmodel.PackageRef
			if pkgName != "" {
				pkgRef = pkgmodel.PackageRef(in.Intern(pkgName))
			} else {
				owners, err := files.OwningPackages(cmd.Context(), []string{path}, in)
				if err != nil {
					return err
				}
				ref, ok := owners[path]
				if !ok {
					return fmt.Errorf("paketkoll: %s is not owned by any package", path)
				}
				pkgRef = ref
				pkgName = in.String(intern.ID(ref))
			}

			packages := map[pkgmodel.PackageRef]pkgmodel.PkgIdent{
				pkgRef: {Backend: flags.distro().BackendKind(), Identifier: pkgName},
			}
			result, err := files.OriginalFiles(cmd.Context(), []backend.OriginalFileQuery{{Package: pkgRef, Path: path}}, packages, in)
			if err != nil {
				return err
			}
			data, ok := result[backend.OriginalFileQuery{Package: pkgRef, Path: path}]
			if !ok {
				return fmt.Errorf("paketkoll: %s not found in package %s", path, pkgName)
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}
	cmd.Flags().StringVar(&pkgName, "package", "", "package name (skips ownership lookup)")
	return cmd
}

func newOwnsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "owns PATH...",
		Short: "Report which package owns each given path",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log := flags.logger()
			files, err := cliutil.FileBackend(flags.distro(), log)
			if err != nil {
				return err
			}
			in := intern.New()
			owners, err := files.OwningPackages(cmd.Context(), args, in)
			if err != nil {
				return err
			}

			out := make(map[string]string, len(args))
			for _, path := range args {
				ref, ok := owners[path]
				if !ok || ref.IsZero() {
					out[path] = ""
					continue
				}
				out[path] = in.String(intern.ID(ref))
			}

			if flags.format == "json" {
				return flags.printJSON(out)
			}
			for _, path := range args {
				if out[path] == "" {
					fmt.Printf("%s: not owned\n", path)
				} else {
					fmt.Printf("%s: %s\n", path, out[path])
				}
			}
			return nil
		},
	}
}

func newDebugPackageFileDataCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "debug-package-file-data PKG",
		Short: "Dump every file entry a package's archive contains",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pkgName := args[0]
			log := flags.logger()
			files, err := cliutil.FileBackend(flags.distro(), log)
			if err != nil {
				return err
			}
			in := intern.New()
			ref := pkgmodel.PackageRef(in.Intern(pkgName))
			packages := map[pkgmodel.PackageRef]pkgmodel.PkgIdent{
				ref: {Backend: flags.distro().BackendKind(), Identifier: pkgName},
			}
			result, err := files.FilesFromArchives(cmd.Context(), []pkgmodel.PackageRef{ref}, packages, in)
			if err != nil {
				return err
			}

			entries := result[ref]
			if flags.format == "json" {
				type row struct {
					Path string `json:"path"`
					Kind string `json:"kind"`
				}
				var rows []row
				for _, e := range entries {
					rows = append(rows, row{Path: e.Path, Kind: e.Properties.Kind.String()})
				}
				return flags.printJSON(rows)
			}
			for _, e := range entries {
				fmt.Printf("%s\t%s\n", e.Path, e.Properties.Kind)
			}
			return nil
		},
	}
}

func newPciLookupCmd(flags *globalFlags) *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "pci-lookup VENDOR [DEVICE]",
		Short: "Resolve a PCI vendor/device hex ID against the system's pci.ids database",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(dbPath)
			if err != nil {
				return err
			}
			defer f.Close()
			db, err := pciids.Parse(f)
			if err != nil {
				return fmt.Errorf("paketkoll: parsing %s: %w", dbPath, err)
			}

			vendor, err := strconv.ParseUint(args[0], 16, 16)
			if err != nil {
				return fmt.Errorf("paketkoll: invalid vendor ID %q: %w", args[0], err)
			}
			vendorName, ok := db.VendorName(uint16(vendor))
			if !ok {
				return fmt.Errorf("paketkoll: unknown vendor %04x", vendor)
			}

			if len(args) == 1 {
				fmt.Println(vendorName)
				return nil
			}
			device, err := strconv.ParseUint(args[1], 16, 16)
			if err != nil {
				return fmt.Errorf("paketkoll: invalid device ID %q: %w", args[1], err)
			}
			deviceName, ok := db.DeviceName(uint16(vendor), uint16(device))
			if !ok {
				return fmt.Errorf("paketkoll: unknown device %04x:%04x", vendor, device)
			}
			fmt.Printf("%s: %s\n", vendorName, deviceName)
			return nil
		},
	}
	cmd.Flags().StringVar(&dbPath, "db", "/usr/share/hwdata/pci.ids", "path to the pci.ids database")
	return cmd
}
