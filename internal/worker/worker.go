// Package worker computes escape times for one chunk of the grid.
//
// A worker either runs as a goroutine writing straight into its disjoint
// sub-range of the orchestrator's IterationField, or as an isolated process
// that regenerates its constants from the Grid, computes into a private
// buffer and sends the buffer back over a transport (see Serve).
package worker

import (
	"fmt"

	"github.com/dreamware/mandelgrid/internal/escape"
	"github.com/dreamware/mandelgrid/internal/grid"
	"github.com/dreamware/mandelgrid/internal/partition"
)

// Compute evaluates every constant in consts and stores the escape time at
// the same local index of out. Both slices must have the same length.
func Compute(consts grid.ConstantField, maxIter int, out grid.IterationField) {
	for i, c := range consts {
		out[i] = int32(escape.Iterations(c, maxIter))
	}
}

// ComputeRow evaluates a single row of the grid into out, which must hold
// exactly g.Width cells.
func ComputeRow(g grid.Grid, row, maxIter int, out grid.IterationField) {
	for col := 0; col < g.Width; col++ {
		out[col] = int32(escape.Iterations(g.At(row, col), maxIter))
	}
}

// ComputeAssignment regenerates the constants of assignment a from g and
// returns a freshly allocated buffer with its escape times. Local index 0
// corresponds to global row a.Start.
func ComputeAssignment(g grid.Grid, a partition.Assignment, maxIter int) (grid.IterationField, error) {
	if a.Start < 0 || a.Length < 0 || a.End() > g.Height {
		return nil, fmt.Errorf("worker: assignment %s outside grid of height %d", a, g.Height)
	}
	out := make(grid.IterationField, a.Pixels(g.Width))
	for i := 0; i < a.Length; i++ {
		ComputeRow(g, a.Start+i, maxIter, out[i*g.Width:(i+1)*g.Width])
	}
	return out, nil
}
