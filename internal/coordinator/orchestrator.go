package coordinator

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dreamware/mandelgrid/internal/grid"
	"github.com/dreamware/mandelgrid/internal/logging"
	"github.com/dreamware/mandelgrid/internal/partition"
	"github.com/dreamware/mandelgrid/internal/transport"
)

var (
	// ErrChannelSetup is returned when a pipe, socket or node cannot be
	// prepared. No worker has been started when it is returned.
	ErrChannelSetup = errors.New("coordinator: channel setup failed")
	// ErrWorkerFailed is returned when a worker panics, exits abnormally or
	// sends a malformed result.
	ErrWorkerFailed = errors.New("coordinator: worker failed")
	// ErrWorkerTimeout is returned when the compute phase outlives
	// Job.Timeout.
	ErrWorkerTimeout = errors.New("coordinator: worker timed out")
	// ErrIncomplete is returned when the phase ends with assigned cells
	// unwritten.
	ErrIncomplete = errors.New("coordinator: iteration field incomplete")
)

// State is the orchestrator's position in a run.
type State int32

const (
	StateIdle State = iota
	StatePartitioned
	StateDispatched
	StateCollecting
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePartitioned:
		return "partitioned"
	case StateDispatched:
		return "dispatched"
	case StateCollecting:
		return "collecting"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Job is one compute request. The caller validates it; the orchestrator
// only rejects values that would make partitioning impossible.
type Job struct {
	Grid      grid.Grid
	MaxIter   int
	Workers   int
	Remainder partition.RemainderPolicy
	// ChunkSize is the transport segment size in bytes for out-of-process
	// workers. Zero means transport.DefaultChunkSize.
	ChunkSize int
	// Timeout bounds the compute phase. Zero means no limit.
	Timeout time.Duration
}

// Result is a completed compute phase.
type Result struct {
	RunID       string
	Transport   string
	Grid        grid.Grid
	MaxIter     int
	Constants   grid.ConstantField
	Field       grid.IterationField
	Assignments []partition.Assignment
	// Uncovered lists rows no assignment covered. It is empty unless the
	// job used partition.RemainderDrop with a height not divisible by the
	// worker count; those rows hold grid.Unwritten.
	Uncovered []int
	Chunks    []*ChunkRecord
	// ByWorker maps each worker ID to the chunk IDs it delivered.
	ByWorker map[string][]int
	Elapsed  time.Duration
}

// Orchestrator partitions a job, hands the chunks to a Dispatcher and
// assembles the results into one IterationField.
//
// An Orchestrator runs one job at a time; State reports progress of the
// current or last run.
type Orchestrator struct {
	dispatcher Dispatcher
	log        logging.Logger
	state      atomic.Int32
}

// New creates an orchestrator that dispatches through d.
func New(d Dispatcher, log logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.Nop{}
	}
	return &Orchestrator{dispatcher: d, log: log.With("component", "orchestrator", "transport", d.Name())}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	return State(o.state.Load())
}

func (o *Orchestrator) setState(log logging.Logger, s State) {
	prev := State(o.state.Swap(int32(s)))
	log.Debug("state change", "from", prev.String(), "to", s.String())
}

// Run executes the compute phase of job and returns the complete field.
// On any failure the partially written field is discarded and the error
// wraps one of ErrChannelSetup, ErrWorkerFailed, ErrWorkerTimeout,
// ErrIncomplete, grid.ErrAllocation or partition.ErrInvalidWorkerCount.
func (o *Orchestrator) Run(ctx context.Context, job Job) (*Result, error) {
	runID := uuid.NewString()
	log := o.log.With("run_id", runID)
	o.setState(log, StateIdle)

	res, err := o.run(ctx, job, runID, log)
	if err != nil {
		o.setState(log, StateFailed)
		log.Error("run failed", "error", err)
		return nil, err
	}
	o.setState(log, StateComplete)
	log.Info("run complete",
		"elapsed", res.Elapsed,
		"chunks", len(res.Chunks),
		"uncovered_rows", len(res.Uncovered))
	return res, nil
}

func (o *Orchestrator) run(ctx context.Context, job Job, runID string, log logging.Logger) (*Result, error) {
	if job.MaxIter < 1 {
		return nil, fmt.Errorf("coordinator: max iterations %d < 1", job.MaxIter)
	}
	if job.ChunkSize <= 0 {
		job.ChunkSize = transport.DefaultChunkSize
	}

	field, err := job.Grid.NewIterationField()
	if err != nil {
		return nil, err
	}
	consts := job.Grid.Constants()
	assignments, err := partition.Split(job.Grid.Height, job.Workers, job.Remainder)
	if err != nil {
		return nil, err
	}
	uncovered := partition.Uncovered(assignments, job.Grid.Height)
	if len(uncovered) > 0 {
		log.Warn("rows left unassigned by remainder policy",
			"policy", string(job.Remainder), "rows", len(uncovered))
	}
	o.setState(log, StatePartitioned)

	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	phase := newPhase(runID, job, consts, field, assignments, log)
	start := time.Now()

	wait, err := o.dispatcher.Start(ctx, phase)
	if err != nil {
		if !errors.Is(err, ErrChannelSetup) {
			err = fmt.Errorf("%w: %w", ErrChannelSetup, err)
		}
		return nil, err
	}
	o.setState(log, StateDispatched)
	log.Info("workers dispatched", "workers", len(assignments), "grid", job.Grid.String(), "max_iter", job.MaxIter)

	o.setState(log, StateCollecting)
	if err := wait(); err != nil {
		return nil, classify(ctx, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, classify(ctx, err)
	}

	if err := phase.registry.Verify(); err != nil {
		return nil, err
	}
	for _, a := range assignments {
		if i := field.Rows(job.Grid.Width, a.Start, a.Length).FirstUnwritten(); i >= 0 {
			return nil, fmt.Errorf("%w: cell %d of chunk %s never written", ErrIncomplete, i, a)
		}
	}

	chunks := phase.registry.All()
	byWorker := make(map[string][]int)
	for _, c := range chunks {
		if _, ok := byWorker[c.WorkerID]; !ok {
			byWorker[c.WorkerID] = phase.registry.WorkerChunks(c.WorkerID)
		}
	}
	log.Debug("chunks collected", "workers", len(byWorker), "by_worker", byWorker)

	return &Result{
		RunID:       runID,
		Transport:   o.dispatcher.Name(),
		Grid:        job.Grid,
		MaxIter:     job.MaxIter,
		Constants:   consts,
		Field:       field,
		Assignments: assignments,
		Uncovered:   uncovered,
		Chunks:      chunks,
		ByWorker:    byWorker,
		Elapsed:     time.Since(start),
	}, nil
}

// classify maps a collection error onto the run failure taxonomy. A
// deadline on ctx wins over whatever error the killed workers produced.
func classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %w", ErrWorkerTimeout, err)
	case errors.Is(ctx.Err(), context.Canceled):
		return fmt.Errorf("coordinator: run cancelled: %w", ctx.Err())
	case errors.Is(err, ErrWorkerFailed), errors.Is(err, ErrIncomplete):
		return err
	default:
		return fmt.Errorf("%w: %w", ErrWorkerFailed, err)
	}
}
