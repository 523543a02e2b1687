// Package partition splits the rows of a grid into contiguous chunks, one
// per worker.
//
// Chunks are row ranges [Start, Start+Length). Split computes
// chunkSize = height / workers and hands chunk i the rows starting at
// i*chunkSize. When height is not a multiple of the worker count the
// RemainderPolicy decides what happens to the last height%workers rows:
//
//	height=10 workers=4 chunkSize=2
//
//	RemainderDrop: [0,2) [2,4) [4,6) [6,8)        rows 8,9 never computed
//	RemainderLast: [0,2) [2,4) [4,6) [6,10)       union is exactly [0,10)
//
// RemainderDrop reproduces the historical behaviour and is kept so the
// divergence can be observed; RemainderLast is the default.
package partition

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/exp/slices"
)

var (
	// ErrInvalidWorkerCount is returned when the worker count is not in
	// [1, height].
	ErrInvalidWorkerCount = errors.New("partition: worker count must be in [1, height]")
	// ErrGap is returned by Verify when some row is not covered.
	ErrGap = errors.New("partition: rows left unassigned")
	// ErrOverlap is returned by Verify when a row is covered twice.
	ErrOverlap = errors.New("partition: overlapping assignments")
)

// RemainderPolicy controls what happens to the rows left over by integer
// division.
type RemainderPolicy string

const (
	// RemainderLast appends the leftover rows to the final chunk.
	RemainderLast RemainderPolicy = "last"
	// RemainderDrop leaves the leftover rows unassigned.
	RemainderDrop RemainderPolicy = "drop"
)

// ParsePolicy converts a configuration string into a RemainderPolicy.
func ParsePolicy(s string) (RemainderPolicy, error) {
	switch RemainderPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case RemainderLast, "":
		return RemainderLast, nil
	case RemainderDrop:
		return RemainderDrop, nil
	default:
		return "", fmt.Errorf("partition: unknown remainder policy %q", s)
	}
}

// Assignment is one worker's slice of the grid, in rows.
type Assignment struct {
	Start  int `json:"start"`
	Length int `json:"length"`
}

// End returns the first row past the assignment.
func (a Assignment) End() int {
	return a.Start + a.Length
}

// Pixels returns the number of cells covered for a grid of the given width.
func (a Assignment) Pixels(width int) int {
	return a.Length * width
}

// String implements fmt.Stringer.
func (a Assignment) String() string {
	return fmt.Sprintf("[%d,%d)", a.Start, a.End())
}

// Split divides height rows between workers chunks.
func Split(height, workers int, policy RemainderPolicy) ([]Assignment, error) {
	if workers <= 0 || workers > height {
		return nil, fmt.Errorf("%w: workers=%d height=%d", ErrInvalidWorkerCount, workers, height)
	}

	chunkSize := height / workers
	out := make([]Assignment, workers)
	for i := range out {
		out[i] = Assignment{Start: i * chunkSize, Length: chunkSize}
	}
	if policy != RemainderDrop {
		out[workers-1].Length += height % workers
	}
	return out, nil
}

// Uncovered returns the rows in [0, height) that no assignment covers, in
// ascending order.
func Uncovered(assignments []Assignment, height int) []int {
	covered := make([]bool, height)
	for _, a := range assignments {
		for r := a.Start; r < a.End() && r < height; r++ {
			if r >= 0 {
				covered[r] = true
			}
		}
	}
	var rows []int
	for r, ok := range covered {
		if !ok {
			rows = append(rows, r)
		}
	}
	return rows
}

// Verify checks that assignments partition [0, height) with no gaps and no
// overlaps.
func Verify(assignments []Assignment, height int) error {
	sorted := slices.Clone(assignments)
	slices.SortFunc(sorted, func(a, b Assignment) int { return a.Start - b.Start })

	next := 0
	for _, a := range sorted {
		if a.Length <= 0 {
			continue
		}
		switch {
		case a.Start > next:
			return fmt.Errorf("%w: rows [%d,%d)", ErrGap, next, a.Start)
		case a.Start < next:
			return fmt.Errorf("%w: %s starts before row %d", ErrOverlap, a, next)
		}
		next = a.End()
	}
	if next < height {
		return fmt.Errorf("%w: rows [%d,%d)", ErrGap, next, height)
	}
	if next > height {
		return fmt.Errorf("%w: rows past %d assigned", ErrOverlap, height)
	}
	return nil
}

// Rows returns the total number of rows assigned.
func Rows(assignments []Assignment) int {
	total := 0
	for _, a := range assignments {
		total += a.Length
	}
	return total
}
