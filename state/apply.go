package state

import "github.com/etnz/syskoll/fsentry"

var (
	rootOwner = "root"
	rootGroup = "root"
)

func strPtr(s string) *string     { return &s }
func modePtr(m fsentry.Mode) *fsentry.Mode { return &m }

// defaultModeFor returns the conventional default mode for a freshly
// created node of kind k.
func defaultModeFor(k NodeKind) fsentry.Mode {
	switch k {
	case NodeDirectory:
		return 0o755
	case NodeSymlink:
		return 0o777
	case NodeFifo:
		return 0o644
	default:
		return 0o644
	}
}

func creationKind(op fsentry.OpKind) (NodeKind, bool) {
	switch op {
	case fsentry.OpCreateDirectory:
		return NodeDirectory, true
	case fsentry.OpCreateFile:
		return NodeFile, true
	case fsentry.OpCreateSymlink:
		return NodeSymlink, true
	case fsentry.OpCreateFifo:
		return NodeFifo, true
	case fsentry.OpCreateBlockDevice:
		return NodeBlockDevice, true
	case fsentry.OpCreateCharDevice:
		return NodeCharDevice, true
	default:
		return 0, false
	}
}

// ApplyInstructions folds an ordered instruction stream into a canonical
// [FsEntries] map. Later instructions overwrite earlier ones at the same
// path; a Remove followed by a recreate sets RemovedBeforeAdded so a
// subsequent [Diff] against this map knows to emit an explicit removal on
// type change. Returns the map plus any warnings produced when
// warnRedundant is set (a SetMode/SetOwner/SetGroup that doesn't change
// anything).
func ApplyInstructions(stream []fsentry.FsInstruction, warnRedundant bool) (*FsEntries, []string) {
	m := NewFsEntries()
	var warnings []string

	for _, instr := range stream {
		materializeAncestors(m, instr.Path)

		if kind, ok := creationKind(instr.Op.Kind); ok {
			old := m.Get(instr.Path)
			node := &FsNode{Kind: kind, Package: instr.Package}
			node.Mode = modePtr(defaultModeFor(kind))
			node.Owner = strPtr(rootOwner)
			node.Group = strPtr(rootGroup)
			switch kind {
			case NodeFile:
				node.Contents = instr.Op.Contents
			case NodeSymlink:
				node.Target = instr.Op.Target
			case NodeBlockDevice, NodeCharDevice:
				node.Major, node.Minor = instr.Op.Major, instr.Op.Minor
			}
			if old != nil && old.Kind == NodeRemoved {
				node.RemovedBeforeAdded = true
			}
			if instr.Comment != "" {
				node.Comment = instr.Comment
			}
			m.Set(instr.Path, node)
			continue
		}

		switch instr.Op.Kind {
		case fsentry.OpRemove:
			m.Set(instr.Path, &FsNode{Kind: NodeRemoved, RemovedBeforeAdded: true, Package: instr.Package})

		case fsentry.OpSetMode:
			node := m.Get(instr.Path)
			if node == nil {
				node = &FsNode{Kind: NodeUnset, Package: instr.Package}
				m.Set(instr.Path, node)
			} else if warnRedundant && node.Mode != nil && node.Mode.Masked() == instr.Op.Mode.Masked() {
				warnings = append(warnings, "redundant SetMode on "+instr.Path)
			}
			node.Mode = modePtr(instr.Op.Mode)

		case fsentry.OpSetOwner:
			node := m.Get(instr.Path)
			if node == nil {
				node = &FsNode{Kind: NodeUnset, Package: instr.Package}
				m.Set(instr.Path, node)
			} else if warnRedundant && node.Owner != nil && *node.Owner == instr.Op.Name {
				warnings = append(warnings, "redundant SetOwner on "+instr.Path)
			}
			node.Owner = strPtr(instr.Op.Name)

		case fsentry.OpSetGroup:
			node := m.Get(instr.Path)
			if node == nil {
				node = &FsNode{Kind: NodeUnset, Package: instr.Package}
				m.Set(instr.Path, node)
			} else if warnRedundant && node.Group != nil && *node.Group == instr.Op.Name {
				warnings = append(warnings, "redundant SetGroup on "+instr.Path)
			}
			node.Group = strPtr(instr.Op.Name)

		case fsentry.OpRestore:
			node := m.Get(instr.Path)
			if node == nil {
				node = &FsNode{Kind: NodeUnset, Package: instr.Package}
				m.Set(instr.Path, node)
			}
			// The folded map records no contents or attributes for
			// Restore (the applicator fetches the original bytes);
			// mode/owner/group are left to subsequent explicit
			// instructions per the design notes' open question on
			// FsOp::Restore.

		case fsentry.OpComment:
			node := m.Get(instr.Path)
			if node == nil {
				node = &FsNode{Kind: NodeUnset, Package: instr.Package}
				m.Set(instr.Path, node)
			}
			node.Comment = instr.Comment
		}
	}

	return m, warnings
}

// materializeAncestors ensures every ancestor directory of path exists in m
// as a root:root Directory node, default-moded, unless already present.
func materializeAncestors(m *FsEntries, path string) {
	for _, anc := range ancestorsRootFirst(path) {
		if m.Get(anc) != nil {
			continue
		}
		m.Set(anc, &FsNode{
			Kind:  NodeDirectory,
			Mode:  modePtr(defaultModeFor(NodeDirectory)),
			Owner: strPtr(rootOwner),
			Group: strPtr(rootGroup),
		})
	}
}
