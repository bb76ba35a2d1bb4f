// Package apply applies the state engine's ordered filesystem and package
// instructions to the running system. Three filesystem applicators compose
// by wrapping one another ([InProcess], [Interactive], [Noop]); package
// instructions go through [ApplyPackages] instead, since they address a
// different backend capability.
package apply

import (
	"context"

	"github.com/etnz/syskoll/fsentry"
	"github.com/etnz/syskoll/state"
)

// Applicator performs one batch of same-kind filesystem instructions
// against the running system. Batches, not individual instructions, are
// the unit of work so that interactive and dry-run wrappers can describe
// "create 14 files" as a single decision point.
type Applicator interface {
	Apply(ctx context.Context, batch []fsentry.FsInstruction) error
}

// ApplyFiles sorts instrs into [state.SortByApplyOrder] order, splits them
// into contiguous same-op batches, and hands each batch to a in turn. This
// mirrors the design's apply_files: grouping by op-discriminant lets a
// single InProcess.Apply call, say, mkdir every new directory before any
// file is written into one.
func ApplyFiles(ctx context.Context, a Applicator, instrs []fsentry.FsInstruction) error {
	sorted := make([]fsentry.FsInstruction, len(instrs))
	copy(sorted, instrs)
	state.SortByApplyOrder(sorted)

	for _, batch := range batchesByOp(sorted) {
		if err := a.Apply(ctx, batch); err != nil {
			return err
		}
	}
	return nil
}

// batchesByOp splits an already-sorted-by-op-then-path instruction slice
// into contiguous runs sharing the same [fsentry.OpKind].
func batchesByOp(sorted []fsentry.FsInstruction) [][]fsentry.FsInstruction {
	var batches [][]fsentry.FsInstruction
	start := 0
	for i := 1; i <= len(sorted); i++ {
		if i == len(sorted) || sorted[i].Op.Kind != sorted[start].Op.Kind {
			batches = append(batches, sorted[start:i])
			start = i
		}
	}
	return batches
}
