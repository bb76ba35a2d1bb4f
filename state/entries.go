// Package state folds ordered filesystem instruction streams into a
// canonical path-keyed map, and diffs two such maps into a minimal ordered
// instruction stream suitable for apply or save.
package state

import (
	"sort"

	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/pkgmodel"
)

// NodeKind is the effective type of a folded [FsNode]. It mirrors
// [fsentry.OpKind]'s creation variants plus two engine-only states:
// NodeUnset (an attribute was asserted before any creation op arrived) and
// NodeRemoved (explicitly absent).
type NodeKind uint8

const (
	NodeUnset NodeKind = iota
	NodeRemoved
	NodeDirectory
	NodeFile
	NodeSymlink
	NodeFifo
	NodeBlockDevice
	NodeCharDevice
)

// FsNode is one entry in the canonical map built by [ApplyInstructions].
// Mode/Owner/Group are pointers so the engine can distinguish "asserted to
// this value" from "never asserted", which matters for the diff's
// attribute-only-change logic.
type FsNode struct {
	Kind NodeKind

	Mode  *fsentry.Mode
	Owner *string
	Group *string

	Contents fsentry.FileContents // NodeFile
	Target   string               // NodeSymlink
	Major    uint32               // NodeBlockDevice, NodeCharDevice
	Minor    uint32               // NodeBlockDevice, NodeCharDevice

	// RemovedBeforeAdded is set when a Remove instruction was folded in
	// before this node's current creation op, so a later diff against
	// this map knows to emit an explicit removal on type change even
	// where the discriminant alone wouldn't reveal it.
	RemovedBeforeAdded bool

	Comment string
	Package pkgmodel.PackageRef
}

// Equal reports whether two nodes would produce no diff against each
// other: same kind, same attributes, same payload.
func (n *FsNode) Equal(other *FsNode) bool {
	if n == nil || other == nil {
		return n == other
	}
	if n.Kind != other.Kind {
		return false
	}
	if !modeEqual(n.Mode, other.Mode) || !strPtrEqual(n.Owner, other.Owner) || !strPtrEqual(n.Group, other.Group) {
		return false
	}
	switch n.Kind {
	case NodeFile:
		return n.Contents.Equal(other.Contents)
	case NodeSymlink:
		return n.Target == other.Target
	case NodeBlockDevice, NodeCharDevice:
		return n.Major == other.Major && n.Minor == other.Minor
	default:
		return true
	}
}

func modeEqual(a, b *fsentry.Mode) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Masked() == b.Masked()
}

func strPtrEqual(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// FsEntries is the sorted path->node canonical map described in the design.
// It is single-owner: built and consumed within one reconciliation pass,
// never mutated by more than one goroutine at a time.
type FsEntries struct {
	nodes map[string]*FsNode
}

// NewFsEntries returns an empty map.
func NewFsEntries() *FsEntries {
	return &FsEntries{nodes: make(map[string]*FsNode)}
}

// Get returns the node at path, or nil if the path isn't present.
func (m *FsEntries) Get(path string) *FsNode { return m.nodes[path] }

// Set installs node at path, overwriting whatever was there.
func (m *FsEntries) Set(path string, node *FsNode) { m.nodes[path] = node }

// Delete removes path from the map entirely (distinct from setting a
// NodeRemoved node, which keeps the key present to record the assertion).
func (m *FsEntries) Delete(path string) { delete(m.nodes, path) }

// Len reports how many keys are present.
func (m *FsEntries) Len() int { return len(m.nodes) }

// SortedKeys returns every key in lexical order, the order both the
// ancestry invariant and the diff walk rely on.
func (m *FsEntries) SortedKeys() []string {
	keys := make([]string, 0, len(m.nodes))
	for k := range m.nodes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// HasAllAncestors reports whether every ancestor directory of path is also
// a key in the map, the property [ApplyInstructions] must maintain.
func (m *FsEntries) HasAllAncestors(path string) bool {
	for _, anc := range ancestors(path) {
		if _, ok := m.nodes[anc]; !ok {
			return false
		}
	}
	return true
}
