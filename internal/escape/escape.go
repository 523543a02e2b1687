// Package escape evaluates the Mandelbrot escape time of a single point.
package escape

import "math/cmplx"

// Bound is the modulus past which an orbit is considered to have escaped.
const Bound = 2.0

// Iterations iterates z = z*z + c from z = 0 and returns the 0-based
// iteration at which |z| first exceeds Bound. Points that stay bounded for
// maxIter iterations are reported as maxIter-1, never maxIter, so the result
// always lies in [0, maxIter-1].
//
// Iterations touches no shared state and is safe to call from any number of
// goroutines or processes.
func Iterations(c complex128, maxIter int) int {
	var z complex128
	for k := 0; k < maxIter; k++ {
		z = z*z + c
		if cmplx.Abs(z) > Bound {
			return k
		}
	}
	return maxIter - 1
}

// InSet reports whether an iteration count produced by Iterations marks a
// point that never escaped.
func InSet(iterations, maxIter int) bool {
	return iterations >= maxIter-1
}
