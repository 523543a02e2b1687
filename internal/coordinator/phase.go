package coordinator

import (
	"fmt"
	"io"

	"github.com/dreamware/mandelgrid/internal/grid"
	"github.com/dreamware/mandelgrid/internal/logging"
	"github.com/dreamware/mandelgrid/internal/partition"
	"github.com/dreamware/mandelgrid/internal/transport"
)

// Phase is the state of one compute phase as seen by a Dispatcher: the
// grid, the chunks to hand out and the field results must land in.
//
// Dispatchers either write in place (Claim, compute into the returned
// slice, Complete) or hand the chunk's assignment record to an isolated
// worker and feed its reply to Deliver.
type Phase struct {
	RunID     string
	Grid      grid.Grid
	MaxIter   int
	ChunkSize int

	consts   grid.ConstantField
	field    grid.IterationField
	registry *ChunkRegistry
	log      logging.Logger
}

func newPhase(runID string, job Job, consts grid.ConstantField, field grid.IterationField, assignments []partition.Assignment, log logging.Logger) *Phase {
	return &Phase{
		RunID:     runID,
		Grid:      job.Grid,
		MaxIter:   job.MaxIter,
		ChunkSize: job.ChunkSize,
		consts:    consts,
		field:     field,
		registry:  NewChunkRegistry(assignments),
		log:       log,
	}
}

// Chunks returns the chunks of the phase ordered by ID.
func (p *Phase) Chunks() []*ChunkRecord {
	return p.registry.All()
}

// Log returns the run's logger.
func (p *Phase) Log() logging.Logger {
	return p.log
}

// Constants returns the complex constants of the rows covered by a. The
// slice aliases the run's constant field and must not be written.
func (p *Phase) Constants(a partition.Assignment) grid.ConstantField {
	return p.consts.Rows(p.Grid.Width, a.Start, a.Length)
}

// Header builds the assignment record sent to an isolated worker.
func (p *Phase) Header(a partition.Assignment) transport.Header {
	return transport.NewAssignment(p.Grid, a, p.MaxIter, p.ChunkSize)
}

// Claim reserves the chunk a for workerID and returns the slice of the
// field it covers. The slice is the worker's alone until Complete.
func (p *Phase) Claim(a partition.Assignment, workerID string) (int, grid.IterationField, error) {
	id, err := p.registry.Claim(a, workerID)
	if err != nil {
		return -1, nil, err
	}
	return id, p.field.Rows(p.Grid.Width, a.Start, a.Length), nil
}

// Complete records that chunk id has been fully written.
func (p *Phase) Complete(id int) error {
	if err := p.registry.Complete(id); err != nil {
		return err
	}
	c := p.registry.Get(id)
	p.log.Debug("chunk collected", "chunk", c.Assignment.String(), "worker", c.WorkerID)
	return nil
}

// Exchange sends the assignment for a to an isolated worker on w and
// collects the reply from r. The reply must echo a.
func (p *Phase) Exchange(w io.Writer, r io.Reader, a partition.Assignment, workerID string) error {
	if err := transport.SendAssignment(w, p.Header(a)); err != nil {
		return fmt.Errorf("send %s to %s: %w", a, workerID, err)
	}
	return p.deliver(r, workerID, &a)
}

// Deliver reads one result record and its payload from r. The assignment
// echoed in the record must match an issued, unclaimed chunk, and the grid
// parameters must match the phase, before any cell is written. The payload
// is decoded straight into the chunk's slice of the field.
func (p *Phase) Deliver(r io.Reader, workerID string) error {
	return p.deliver(r, workerID, nil)
}

// deliver is Deliver for a reply to a known request. A non-nil sent must
// equal the echoed assignment.
func (p *Phase) deliver(r io.Reader, workerID string, sent *partition.Assignment) error {
	h, err := transport.ReceiveResultHeader(r)
	if err != nil {
		return fmt.Errorf("result from %s: %w", workerID, err)
	}
	if h.Width != p.Grid.Width || h.Height != p.Grid.Height || h.MaxIter != p.MaxIter || h.Bounds != p.Grid.Bounds {
		return fmt.Errorf("result from %s: %w: grid %dx%d maxIter %d does not match the run",
			workerID, transport.ErrBadHeader, h.Width, h.Height, h.MaxIter)
	}
	if sent != nil && h.Assignment != *sent {
		return fmt.Errorf("result from %s: %w: echoed %s, sent %s",
			workerID, transport.ErrBadHeader, h.Assignment, *sent)
	}

	id, dst, err := p.Claim(h.Assignment, workerID)
	if err != nil {
		return fmt.Errorf("result from %s: %w", workerID, err)
	}
	if err := transport.ReceivePayload(r, h, dst); err != nil {
		return fmt.Errorf("result from %s: %w", workerID, err)
	}
	return p.Complete(id)
}
