package worker

import (
	"fmt"
	"io"

	"github.com/dreamware/mandelgrid/internal/grid"
	"github.com/dreamware/mandelgrid/internal/transport"
)

// Serve runs one out-of-process exchange on rw: it blocks until the
// assignment record arrives, computes the chunk into a private buffer and
// writes the record back followed by the payload. The returned header is the
// assignment that was served.
func Serve(rw io.ReadWriter) (transport.Header, error) {
	h, err := transport.ReceiveAssignment(rw)
	if err != nil {
		return transport.Header{}, fmt.Errorf("worker: read assignment: %w", err)
	}

	out, err := Handle(h)
	if err != nil {
		return h, err
	}

	if err := transport.SendResult(rw, h, out); err != nil {
		return h, fmt.Errorf("worker: send result for %s: %w", h.Assignment, err)
	}
	return h, nil
}

// Handle computes the chunk described by an assignment record.
func Handle(h transport.Header) (grid.IterationField, error) {
	g, err := h.Grid()
	if err != nil {
		return nil, fmt.Errorf("worker: %w", err)
	}
	return ComputeAssignment(g, h.Assignment, h.MaxIter)
}
