// Package coloring turns a completed IterationField into one scalar color
// per pixel using histogram coloring.
package coloring

import "github.com/dreamware/mandelgrid/internal/grid"

// InSet is the color given to pixels that never escaped.
const InSet = 1.0

// Histogram counts escaped pixels per iteration value. It has maxIter
// entries; the last entry stays zero since maxIter-1 means "in the set".
type Histogram []int

// Total returns the number of escaped pixels counted.
func (h Histogram) Total() int {
	n := 0
	for _, c := range h {
		n += c
	}
	return n
}

// Build counts the escape times in field. In-set and unwritten cells are
// not counted.
func Build(field grid.IterationField, maxIter int) Histogram {
	h := make(Histogram, maxIter)
	for _, it := range field {
		if it >= 0 && int(it) < maxIter-1 {
			h[it]++
		}
	}
	return h
}

// Apply colors every pixel of field. An escaped pixel gets the fraction of
// escaped pixels that escaped strictly earlier, a value in [0,1). In-set
// pixels get InSet and unwritten cells get 0.
//
// field must be complete; Apply does not synchronise with workers.
func Apply(field grid.IterationField, maxIter int) (Histogram, []float64) {
	h := Build(field, maxIter)
	total := h.Total()

	// below[k] is the number of escaped pixels with escape time < k
	below := make([]int, maxIter)
	for k := 1; k < maxIter; k++ {
		below[k] = below[k-1] + h[k-1]
	}

	colors := make([]float64, len(field))
	for i, it := range field {
		switch {
		case it < 0:
			colors[i] = 0
		case int(it) >= maxIter-1:
			colors[i] = InSet
		default:
			colors[i] = float64(below[it]) / float64(total)
		}
	}
	return h, colors
}
