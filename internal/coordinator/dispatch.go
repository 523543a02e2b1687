package coordinator

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/dreamware/mandelgrid/internal/cluster"
	"github.com/dreamware/mandelgrid/internal/config"
	"github.com/dreamware/mandelgrid/internal/grid"
	"github.com/dreamware/mandelgrid/internal/partition"
	"github.com/dreamware/mandelgrid/internal/pool"
	"github.com/dreamware/mandelgrid/internal/worker"
)

// WaitFunc blocks until every worker of a phase has been joined, or the
// phase context ends, and returns the first worker error.
type WaitFunc func() error

// Dispatcher runs the workers of a compute phase over one transport.
//
// Start prepares every channel first and returns ErrChannelSetup without
// starting anything if that fails. Once workers are running, their
// failures surface through the returned WaitFunc. Cancelling ctx stops the
// workers.
type Dispatcher interface {
	Name() string
	Start(ctx context.Context, p *Phase) (WaitFunc, error)
}

// Options carries what the out-of-process dispatchers need.
type Options struct {
	Command WorkerCommand
	Nodes   []cluster.NodeInfo
	Health  *HealthMonitor
}

// NewDispatcher returns the dispatcher for a configured transport name.
func NewDispatcher(name string, opts Options) (Dispatcher, error) {
	switch name {
	case config.TransportShared:
		return &SharedDispatcher{}, nil
	case config.TransportParallelFor:
		return &ParallelForDispatcher{}, nil
	case config.TransportPipe:
		return &PipeDispatcher{Command: opts.Command}, nil
	case config.TransportSocket:
		return &SocketDispatcher{Command: opts.Command}, nil
	case config.TransportRemote:
		return &RemoteDispatcher{Nodes: opts.Nodes, Health: opts.Health}, nil
	default:
		return nil, fmt.Errorf("coordinator: unknown transport %q", name)
	}
}

// joinWait waits for wg, giving up when ctx ends. errs must be buffered
// for every send a worker can make, since senders are never drained after
// a timeout.
func joinWait(ctx context.Context, wg *sync.WaitGroup, errs chan error) WaitFunc {
	return func() error {
		done := make(chan struct{})
		go func() {
			wg.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}

		close(errs)
		for err := range errs {
			if err != nil {
				return err
			}
		}
		return nil
	}
}

// SharedDispatcher runs one goroutine per chunk, each reading a view of
// the run's constants and writing its rows straight into the phase's field.
type SharedDispatcher struct {
	// compute fills out with the escape times of chunk a. Tests swap it.
	compute func(a partition.Assignment, consts grid.ConstantField, maxIter int, out grid.IterationField)
}

func (d *SharedDispatcher) Name() string { return config.TransportShared }

func (d *SharedDispatcher) Start(ctx context.Context, p *Phase) (WaitFunc, error) {
	compute := d.compute
	if compute == nil {
		compute = computeInPlace
	}

	chunks := p.Chunks()
	errs := make(chan error, len(chunks))
	var wg sync.WaitGroup

	for _, c := range chunks {
		wg.Add(1)
		go func(c *ChunkRecord) {
			defer wg.Done()
			workerID := uuid.NewString()
			defer func() {
				if r := recover(); r != nil {
					errs <- fmt.Errorf("%w: worker %s on %s panicked: %v", ErrWorkerFailed, workerID, c.Assignment, r)
				}
			}()

			id, out, err := p.Claim(c.Assignment, workerID)
			if err != nil {
				errs <- err
				return
			}
			compute(c.Assignment, p.Constants(c.Assignment), p.MaxIter, out)
			errs <- p.Complete(id)
		}(c)
	}
	return joinWait(ctx, &wg, errs), nil
}

func computeInPlace(_ partition.Assignment, consts grid.ConstantField, maxIter int, out grid.IterationField) {
	worker.Compute(consts, maxIter, out)
}

// ParallelForDispatcher hands every row of every chunk to a work-stealing
// pool sized to the worker count, the goroutine analogue of a parallel for
// loop. Chunks are claimed up front and completed once the pool drains.
// Rows not yet started when ctx ends are skipped.
type ParallelForDispatcher struct{}

func (d *ParallelForDispatcher) Name() string { return config.TransportParallelFor }

func (d *ParallelForDispatcher) Start(ctx context.Context, p *Phase) (WaitFunc, error) {
	chunks := p.Chunks()
	workerID := "pool-" + uuid.NewString()
	width := p.Grid.Width

	var (
		ids  []int
		work []func()
	)
	for _, c := range chunks {
		id, out, err := p.Claim(c.Assignment, workerID)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		consts := p.Constants(c.Assignment)
		for i := 0; i < c.Assignment.Length; i++ {
			src := consts.Rows(width, i, 1)
			dst := out.Rows(width, i, 1)
			work = append(work, func() { worker.Compute(src, p.MaxIter, dst) })
		}
	}

	wp := pool.New(len(chunks))
	errs := make(chan error, 1)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer wp.Close()

		if err := wp.ExecuteAll(ctx, work); err != nil {
			errs <- fmt.Errorf("%w: %w", ErrWorkerFailed, err)
			return
		}
		for _, id := range ids {
			if err := p.Complete(id); err != nil {
				errs <- err
				return
			}
		}
	}()
	return joinWait(ctx, &wg, errs), nil
}
