package transport

import (
	"fmt"
	"io"

	"github.com/dreamware/mandelgrid/internal/grid"
)

// SendAssignment writes an assignment record.
func SendAssignment(w io.Writer, h Header) error {
	h.Kind = KindAssign
	return writeHeader(w, h)
}

// ReceiveAssignment reads the record a worker waits for before computing.
func ReceiveAssignment(r io.Reader) (Header, error) {
	h, err := readHeader(r)
	if err != nil {
		return Header{}, err
	}
	if h.Kind != KindAssign {
		return Header{}, fmt.Errorf("%w: expected assign, got %s", ErrBadHeader, h.Kind)
	}
	return h, nil
}

// SendResult writes a result record followed by the chunk's payload. data
// must hold exactly Length*Width cells.
func SendResult(w io.Writer, h Header, data grid.IterationField) error {
	if want := h.Assignment.Length * h.Width; len(data) != want {
		return fmt.Errorf("transport: result for %s holds %d cells, want %d", h.Assignment, len(data), want)
	}
	if err := writeHeader(w, h.AsResult()); err != nil {
		return err
	}
	_, err := WriteChunked(w, EncodeIterations(data), h.ChunkSize)
	return err
}

// ReceiveResultHeader reads the record that precedes a worker's payload. The
// caller is expected to check the advertised assignment before calling
// ReceivePayload, since the payload size is derived from it.
func ReceiveResultHeader(r io.Reader) (Header, error) {
	h, err := readHeader(r)
	if err != nil {
		return Header{}, err
	}
	if h.Kind != KindResult {
		return Header{}, fmt.Errorf("%w: expected result, got %s", ErrBadHeader, h.Kind)
	}
	return h, nil
}

// ReceivePayload reads the payload announced by h into dst, which must hold
// Length*Width cells.
func ReceivePayload(r io.Reader, h Header, dst grid.IterationField) error {
	buf := make([]byte, h.PayloadSize())
	if _, err := ReadChunked(r, buf, h.ChunkSize); err != nil {
		return fmt.Errorf("payload for %s: %w", h.Assignment, err)
	}
	return DecodeIterations(buf, dst)
}

// ReceiveResult reads a result header and its payload into a new buffer.
func ReceiveResult(r io.Reader) (Header, grid.IterationField, error) {
	h, err := ReceiveResultHeader(r)
	if err != nil {
		return Header{}, nil, err
	}
	out := make(grid.IterationField, h.Assignment.Length*h.Width)
	if err := ReceivePayload(r, h, out); err != nil {
		return h, nil, err
	}
	return h, out, nil
}

func writeHeader(w io.Writer, h Header) error {
	b, err := h.MarshalBinary()
	if err != nil {
		return err
	}
	_, err = WriteChunked(w, b, headerChunk(h.ChunkSize))
	return err
}

func readHeader(r io.Reader) (Header, error) {
	b := make([]byte, HeaderSize)
	if _, err := ReadChunked(r, b, HeaderSize); err != nil {
		return Header{}, err
	}
	var h Header
	if err := h.UnmarshalBinary(b); err != nil {
		return Header{}, err
	}
	return h, nil
}

func headerChunk(chunkSize int) int {
	if chunkSize <= 0 {
		return HeaderSize
	}
	return chunkSize
}
