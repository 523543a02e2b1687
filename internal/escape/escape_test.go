package escape

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIterationsKnownPoints(t *testing.T) {
	tests := []struct {
		name    string
		c       complex128
		maxIter int
		want    int
	}{
		{name: "origin is in the set", c: 0, maxIter: 100, want: 99},
		{name: "minus one cycles", c: -1, maxIter: 50, want: 49},
		{name: "2+2i escapes immediately", c: 2 + 2i, maxIter: 100, want: 0},
		{name: "one escapes on third step", c: 1, maxIter: 100, want: 2},
		{name: "maxIter of one", c: 0, maxIter: 1, want: 0},
		{name: "far point", c: -3, maxIter: 10, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Iterations(tt.c, tt.maxIter))
		})
	}
}

func TestIterationsRange(t *testing.T) {
	maxIter := 64
	for re := -2.0; re <= 2.0; re += 0.125 {
		for im := -2.0; im <= 2.0; im += 0.125 {
			c := complex(re, im)
			got := Iterations(c, maxIter)
			assert.GreaterOrEqual(t, got, 0)
			assert.LessOrEqual(t, got, maxIter-1)
		}
	}
}

func TestInSet(t *testing.T) {
	assert.True(t, InSet(Iterations(0, 20), 20))
	assert.False(t, InSet(Iterations(2+2i, 20), 20))
}

func BenchmarkIterations(b *testing.B) {
	for i := 0; i < b.N; i++ {
		Iterations(-0.668+0.32i, 5000)
	}
}
