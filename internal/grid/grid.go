// Package grid maps the pixel raster onto the complex plane and owns the
// row-major buffers shared by every stage of a run.
//
// A Grid is immutable once built. Its ConstantField holds one complex
// constant per pixel and is never mutated; its IterationField is allocated
// once per run and filled by the workers. Both use the same indexing:
//
//	index = row*Width + col
//
// Row 0 is the top of the image (imaginary part YMax) and column 0 the left
// edge (real part XMin).
package grid

import (
	"errors"
	"fmt"
	"math"
)

// DefaultWidth and DefaultHeight are the raster size of a standard run.
const (
	DefaultWidth  = 1000
	DefaultHeight = 1000
)

// MaxPixels caps the size of a single field. Anything larger is treated as
// an allocation failure before memory is requested.
const MaxPixels = 1 << 28

var (
	// ErrAllocation is returned when a field of the requested size cannot be
	// obtained.
	ErrAllocation = errors.New("grid: cannot allocate field")
	// ErrInvalidGrid is returned for non-positive dimensions or empty bounds.
	ErrInvalidGrid = errors.New("grid: invalid grid")
)

// Bounds is the rectangle of the complex plane covered by the raster.
type Bounds struct {
	XMin float64 `json:"x_min" yaml:"x_min"`
	XMax float64 `json:"x_max" yaml:"x_max"`
	YMin float64 `json:"y_min" yaml:"y_min"`
	YMax float64 `json:"y_max" yaml:"y_max"`
}

// DefaultBounds is the classic [-2,2]x[-2,2] view.
var DefaultBounds = Bounds{XMin: -2, XMax: 2, YMin: -2, YMax: 2}

// CenteredBounds builds a square view of side size around (x, y).
func CenteredBounds(x, y, size float64) Bounds {
	half := size / 2
	return Bounds{
		XMin: x - half,
		XMax: x + half,
		YMin: y - half,
		YMax: y + half,
	}
}

// Grid describes the raster and its placement on the complex plane.
type Grid struct {
	Bounds Bounds
	Width  int
	Height int
	// Step is the distance between neighbouring pixels on both axes.
	Step float64
}

// New validates the dimensions and computes the pixel step as
// (YMax-YMin)/Width.
func New(b Bounds, width, height int) (Grid, error) {
	if width < 1 || height < 1 {
		return Grid{}, fmt.Errorf("%w: %dx%d", ErrInvalidGrid, width, height)
	}
	if !b.Valid() {
		return Grid{}, fmt.Errorf("%w: empty bounds %+v", ErrInvalidGrid, b)
	}
	if width > MaxPixels/height {
		return Grid{}, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrAllocation, width, height, MaxPixels)
	}
	return Grid{
		Bounds: b,
		Width:  width,
		Height: height,
		Step:   (b.YMax - b.YMin) / float64(width),
	}, nil
}

// Pixels returns Width*Height.
func (g Grid) Pixels() int {
	return g.Width * g.Height
}

// Index returns the row-major index of (row, col).
func (g Grid) Index(row, col int) int {
	return row*g.Width + col
}

// At returns the complex constant of pixel (row, col). Each coordinate is
// derived directly from the bounds rather than accumulated, so any process
// holding the Grid regenerates bit-identical constants for any sub-range.
func (g Grid) At(row, col int) complex128 {
	return complex(g.Bounds.XMin+float64(col)*g.Step, g.Bounds.YMax-float64(row)*g.Step)
}

// ConstantField is the read-only per-pixel constant table.
type ConstantField []complex128

// IterationField is the per-pixel escape-time table.
type IterationField []int32

// Constants builds the full ConstantField.
func (g Grid) Constants() ConstantField {
	return g.ConstantRows(0, g.Height)
}

// ConstantRows builds the constants for rows [start, start+length) only.
// Local index 0 corresponds to global row start.
func (g Grid) ConstantRows(start, length int) ConstantField {
	out := make(ConstantField, length*g.Width)
	for i := 0; i < length; i++ {
		row := start + i
		for col := 0; col < g.Width; col++ {
			out[i*g.Width+col] = g.At(row, col)
		}
	}
	return out
}

// NewIterationField allocates the iteration buffer for the whole grid.
// Cells are initialised to -1 so that an unwritten cell is distinguishable
// from a legitimate zero escape time.
func (g Grid) NewIterationField() (IterationField, error) {
	n := g.Pixels()
	if n <= 0 || n > MaxPixels {
		return nil, fmt.Errorf("%w: %d pixels", ErrAllocation, n)
	}
	f := make(IterationField, n)
	f.Reset()
	return f, nil
}

// Reset marks every cell as unwritten.
func (f IterationField) Reset() {
	for i := range f {
		f[i] = Unwritten
	}
}

// Unwritten is the sentinel held by a cell no worker has produced yet.
const Unwritten int32 = -1

// Rows returns the sub-slice covering rows [start, start+length) of a field
// with the given width. The slice aliases f.
func (f IterationField) Rows(width, start, length int) IterationField {
	return f[start*width : (start+length)*width]
}

// Rows returns the sub-slice covering rows [start, start+length).
func (c ConstantField) Rows(width, start, length int) ConstantField {
	return c[start*width : (start+length)*width]
}

// FirstUnwritten returns the index of the first unwritten cell, or -1 when
// every cell holds a value.
func (f IterationField) FirstUnwritten() int {
	for i, v := range f {
		if v == Unwritten {
			return i
		}
	}
	return -1
}

// Equal reports whether two fields hold identical values.
func (f IterationField) Equal(o IterationField) bool {
	if len(f) != len(o) {
		return false
	}
	for i := range f {
		if f[i] != o[i] {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer for log lines.
func (g Grid) String() string {
	return fmt.Sprintf("%dx%d [%g,%g]x[%g,%g] step=%g",
		g.Width, g.Height, g.Bounds.XMin, g.Bounds.XMax, g.Bounds.YMin, g.Bounds.YMax, g.Step)
}

// Valid reports whether every bound is a finite number.
func (b Bounds) Valid() bool {
	for _, v := range []float64{b.XMin, b.XMax, b.YMin, b.YMax} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return b.XMax > b.XMin && b.YMax > b.YMin
}
