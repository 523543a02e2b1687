package coordinator

import (
	"context"
	"fmt"
	"testing"

	"github.com/dreamware/mandelgrid/internal/grid"
	"github.com/dreamware/mandelgrid/internal/partition"
)

// BenchmarkRun compares the in-process transports across worker counts.
func BenchmarkRun(b *testing.B) {
	g, err := grid.New(grid.CenteredBounds(-0.75, 0, 2.5), 200, 200)
	if err != nil {
		b.Fatal(err)
	}

	for _, d := range []Dispatcher{&SharedDispatcher{}, &ParallelForDispatcher{}} {
		for _, workers := range []int{1, 2, 4, 8, 16} {
			b.Run(fmt.Sprintf("%s/%d_workers", d.Name(), workers), func(b *testing.B) {
				o := New(d, nil)
				job := Job{Grid: g, MaxIter: 256, Workers: workers, Remainder: partition.RemainderLast}
				b.ReportAllocs()
				for i := 0; i < b.N; i++ {
					if _, err := o.Run(context.Background(), job); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
