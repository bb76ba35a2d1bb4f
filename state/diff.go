package state

import (
	"sort"

	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/pkgmodel"
)

// Goal selects which policy [Diff] uses for paths present only in the
// "before" map: Save is generating a script-edit suggestion (just say
// "remove this"), Apply is about to touch the live filesystem (so it must
// reason about what's really there before deciding).
type Goal uint8

const (
	GoalApply Goal = iota
	GoalSave
)

// ResolutionKind is what [PathResolver.Resolve] found on the live system
// for a path that the goal map no longer asserts anything about.
type ResolutionKind uint8

const (
	ResolutionUnknown ResolutionKind = iota
	ResolutionRegularFileTrackedByPackage
	ResolutionSymlink
	ResolutionDirectory
)

// Resolution is the live-system fact [PathResolver.Resolve] returns.
type Resolution struct {
	Kind    ResolutionKind
	Mode    fsentry.Mode
	Owner   string
	Group   string
	Target  string // ResolutionSymlink
	Package pkgmodel.PackageRef
}

// PathResolver answers "what does the live filesystem / owning backend
// know about this path", used by [Diff] only for Apply's key-in-before-only
// case. Backed by [backend.Files.OwningPackages] plus a live stat in the
// orchestrator; passing nil is valid and treated as "knows nothing".
type PathResolver interface {
	Resolve(path string) (Resolution, bool)
}

// Diff walks the sorted union of before's and after's keys and produces the
// ordered instruction stream that [ApplyInstructions] would fold, starting
// from before, back into (a map equal to) after on their shared keys.
func Diff(goal Goal, before, after *FsEntries, live PathResolver) []fsentry.FsInstruction {
	keys := unionSortedKeys(before, after)
	var out []fsentry.FsInstruction

	for _, path := range keys {
		b := before.Get(path)
		a := after.Get(path)

		switch {
		case b == nil && a != nil:
			out = append(out, createFromNode(path, a)...)

		case b != nil && a == nil:
			out = append(out, diffGoneFromAfter(goal, path, b, live)...)

		case b != nil && a != nil:
			out = append(out, diffBoth(path, b, a)...)
		}
	}

	return out
}

func unionSortedKeys(before, after *FsEntries) []string {
	seen := make(map[string]struct{})
	for _, k := range before.SortedKeys() {
		seen[k] = struct{}{}
	}
	for _, k := range after.SortedKeys() {
		seen[k] = struct{}{}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// createFromNode emits the ops needed to create node at path from nothing,
// skipping attributes that equal the type's default (root:root, the
// type's conventional mode).
func createFromNode(path string, node *FsNode) []fsentry.FsInstruction {
	var out []fsentry.FsInstruction

	switch node.Kind {
	case NodeDirectory:
		out = append(out, fsentry.CreateDirectory(path))
	case NodeFile:
		out = append(out, fsentry.CreateFile(path, node.Contents))
	case NodeSymlink:
		out = append(out, fsentry.CreateSymlink(path, node.Target))
	case NodeFifo:
		out = append(out, fsentry.CreateFifo(path))
	case NodeBlockDevice:
		out = append(out, fsentry.CreateBlockDevice(path, node.Major, node.Minor))
	case NodeCharDevice:
		out = append(out, fsentry.CreateCharDevice(path, node.Major, node.Minor))
	case NodeRemoved:
		out = append(out, fsentry.Remove(path))
		return out
	case NodeUnset:
		// No type asserted, only attributes; nothing to "create".
	}

	if node.Mode != nil && node.Mode.Masked() != defaultModeFor(node.Kind).Masked() {
		out = append(out, fsentry.SetMode(path, *node.Mode))
	}
	if node.Owner != nil && *node.Owner != rootOwner {
		out = append(out, fsentry.SetOwner(path, *node.Owner))
	}
	if node.Group != nil && *node.Group != rootGroup {
		out = append(out, fsentry.SetGroup(path, *node.Group))
	}
	return withComment(out, node.Comment)
}

func withComment(ops []fsentry.FsInstruction, comment string) []fsentry.FsInstruction {
	if comment == "" || len(ops) == 0 {
		return ops
	}
	ops[len(ops)-1] = ops[len(ops)-1].WithComment(comment)
	return ops
}

// diffGoneFromAfter handles a path present in "before" but no longer
// asserted by "after".
func diffGoneFromAfter(goal Goal, path string, before *FsNode, live PathResolver) []fsentry.FsInstruction {
	if goal == GoalSave {
		return []fsentry.FsInstruction{fsentry.Remove(path)}
	}

	if live == nil {
		return []fsentry.FsInstruction{fsentry.Remove(path)}
	}
	res, ok := live.Resolve(path)
	if !ok {
		return []fsentry.FsInstruction{fsentry.Remove(path)}
	}

	var out []fsentry.FsInstruction
	switch res.Kind {
	case ResolutionRegularFileTrackedByPackage:
		out = append(out, fsentry.Restore(path).WithPackage(res.Package))
	case ResolutionSymlink:
		out = append(out, fsentry.CreateSymlink(path, res.Target))
	case ResolutionDirectory:
		out = append(out, fsentry.CreateDirectory(path))
	default:
		return []fsentry.FsInstruction{fsentry.Remove(path)}
	}

	if res.Mode.Masked() != 0 {
		out = append(out, fsentry.SetMode(path, res.Mode))
	}
	if res.Owner != "" {
		out = append(out, fsentry.SetOwner(path, res.Owner))
	}
	if res.Group != "" {
		out = append(out, fsentry.SetGroup(path, res.Group))
	}
	return out
}

// diffBoth handles a path present in both maps.
func diffBoth(path string, before, after *FsNode) []fsentry.FsInstruction {
	if before.Equal(after) {
		return nil
	}

	if before.Kind != after.Kind || before.RemovedBeforeAdded {
		out := []fsentry.FsInstruction{fsentry.Remove(path)}
		out = append(out, createFromNode(path, after)...)
		return out
	}

	// Same kind: attribute-only changes.
	var out []fsentry.FsInstruction
	if after.Mode != nil && (before.Mode == nil || before.Mode.Masked() != after.Mode.Masked()) {
		out = append(out, fsentry.SetMode(path, *after.Mode))
	} else if after.Mode == nil && before.Mode != nil {
		out = append(out, fsentry.Comment(path, "mode no longer asserted; left unchanged"))
	}

	if after.Owner != nil && (before.Owner == nil || *before.Owner != *after.Owner) {
		out = append(out, fsentry.SetOwner(path, *after.Owner))
	} else if after.Owner == nil && before.Owner != nil {
		out = append(out, fsentry.Comment(path, "owner no longer asserted; left unchanged"))
	}

	if after.Group != nil && (before.Group == nil || *before.Group != *after.Group) {
		out = append(out, fsentry.SetGroup(path, *after.Group))
	} else if after.Group == nil && before.Group != nil {
		out = append(out, fsentry.Comment(path, "group no longer asserted; left unchanged"))
	}

	if after.Kind == NodeFile && !after.Contents.Equal(before.Contents) {
		out = append([]fsentry.FsInstruction{fsentry.CreateFile(path, after.Contents)}, out...)
	}
	if after.Kind == NodeSymlink && after.Target != before.Target {
		out = append([]fsentry.FsInstruction{fsentry.Remove(path), fsentry.CreateSymlink(path, after.Target)}, out...)
	}
	if after.Kind == NodeBlockDevice && (after.Major != before.Major || after.Minor != before.Minor) {
		out = append([]fsentry.FsInstruction{fsentry.Remove(path), fsentry.CreateBlockDevice(path, after.Major, after.Minor)}, out...)
	}
	if after.Kind == NodeCharDevice && (after.Major != before.Major || after.Minor != before.Minor) {
		out = append([]fsentry.FsInstruction{fsentry.Remove(path), fsentry.CreateCharDevice(path, after.Major, after.Minor)}, out...)
	}

	return out
}

// SortByApplyOrder groups instructions by op discriminant then path, the
// order the applicator batches by so that e.g. every CreateFile across all
// paths runs before any SetMode.
func SortByApplyOrder(instrs []fsentry.FsInstruction) {
	sort.SliceStable(instrs, func(i, j int) bool {
		if instrs[i].Op.Kind != instrs[j].Op.Kind {
			return instrs[i].Op.Kind < instrs[j].Op.Kind
		}
		return instrs[i].Path < instrs[j].Path
	})
}
