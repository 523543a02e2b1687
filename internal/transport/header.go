// Package transport moves chunk assignments and iteration payloads between
// the orchestrator and out-of-process workers.
//
// Every exchange is one assignment record sent to the worker, followed by the
// worker echoing the record back with its payload:
//
//	orchestrator                         worker
//	     │  Header{kind=assign}  ───────▶   │
//	     │                                  │ compute rows [start,start+length)
//	     │  ◀─────── Header{kind=result}    │
//	     │  ◀─────── payload (chunked)      │
//
// The header is a fixed 64-byte little-endian record. The payload carries no
// length prefix: both sides derive it from the header as
// length × width × 4 bytes of little-endian int32 escape times. Payloads and
// headers are written in fixed-size chunks plus one remainder, and read back
// the same way, because a single write of a large buffer is not guaranteed to
// arrive in one piece over a pipe or socket.
package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"github.com/dreamware/mandelgrid/internal/grid"
	"github.com/dreamware/mandelgrid/internal/partition"
)

// HeaderSize is the encoded size of a Header.
const HeaderSize = 64

// Version is the wire format revision written into every header.
const Version uint16 = 1

var magic = [4]byte{'M', 'D', 'L', 'B'}

// Kind distinguishes assignment records from result records.
type Kind uint16

const (
	// KindAssign is sent by the orchestrator to hand out a chunk.
	KindAssign Kind = 1
	// KindResult is sent by a worker ahead of its payload.
	KindResult Kind = 2
)

func (k Kind) String() string {
	switch k {
	case KindAssign:
		return "assign"
	case KindResult:
		return "result"
	default:
		return fmt.Sprintf("kind(%d)", uint16(k))
	}
}

var (
	// ErrBadHeader is returned for records with the wrong magic, version or
	// kind, or with fields that do not describe a valid chunk.
	ErrBadHeader = errors.New("transport: malformed header")
)

// Header is the fixed-size record that describes one chunk. It carries the
// grid geometry so that an isolated worker can regenerate its constants
// without sharing memory with the orchestrator.
type Header struct {
	Kind       Kind
	Assignment partition.Assignment
	Width      int
	Height     int
	MaxIter    int
	// ChunkSize is the transfer segment size both sides use for the payload.
	ChunkSize int
	Bounds    grid.Bounds
}

// NewAssignment builds the assignment record for chunk a of grid g.
func NewAssignment(g grid.Grid, a partition.Assignment, maxIter, chunkSize int) Header {
	return Header{
		Kind:       KindAssign,
		Assignment: a,
		Width:      g.Width,
		Height:     g.Height,
		MaxIter:    maxIter,
		ChunkSize:  chunkSize,
		Bounds:     g.Bounds,
	}
}

// PayloadSize returns the number of payload bytes that follow a result
// header.
func (h Header) PayloadSize() int {
	return h.Assignment.Length * h.Width * 4
}

// Grid rebuilds the grid described by the header.
func (h Header) Grid() (grid.Grid, error) {
	return grid.New(h.Bounds, h.Width, h.Height)
}

// AsResult returns a copy of h marked as a result record.
func (h Header) AsResult() Header {
	h.Kind = KindResult
	return h
}

// Validate checks that the header describes a chunk inside its grid.
func (h Header) Validate() error {
	switch {
	case h.Kind != KindAssign && h.Kind != KindResult:
		return fmt.Errorf("%w: kind %s", ErrBadHeader, h.Kind)
	case h.Width < 1 || h.Height < 1:
		return fmt.Errorf("%w: grid %dx%d", ErrBadHeader, h.Width, h.Height)
	case h.MaxIter < 1:
		return fmt.Errorf("%w: maxIter %d", ErrBadHeader, h.MaxIter)
	case h.ChunkSize < 1:
		return fmt.Errorf("%w: chunk size %d", ErrBadHeader, h.ChunkSize)
	case h.Assignment.Start < 0 || h.Assignment.Length < 0 || h.Assignment.End() > h.Height:
		return fmt.Errorf("%w: assignment %s outside height %d", ErrBadHeader, h.Assignment, h.Height)
	}
	return nil
}

// MarshalBinary encodes the header into its 64-byte wire form.
func (h Header) MarshalBinary() ([]byte, error) {
	for _, v := range []int{h.Assignment.Start, h.Assignment.Length, h.Width, h.Height, h.MaxIter, h.ChunkSize} {
		if v < 0 || v > math.MaxUint32 {
			return nil, fmt.Errorf("%w: field %d does not fit in 32 bits", ErrBadHeader, v)
		}
	}

	b := make([]byte, HeaderSize)
	le := binary.LittleEndian
	copy(b[0:4], magic[:])
	le.PutUint16(b[4:6], Version)
	le.PutUint16(b[6:8], uint16(h.Kind))
	le.PutUint32(b[8:12], uint32(h.Assignment.Start))
	le.PutUint32(b[12:16], uint32(h.Assignment.Length))
	le.PutUint32(b[16:20], uint32(h.Width))
	le.PutUint32(b[20:24], uint32(h.Height))
	le.PutUint32(b[24:28], uint32(h.MaxIter))
	le.PutUint32(b[28:32], uint32(h.ChunkSize))
	le.PutUint64(b[32:40], math.Float64bits(h.Bounds.XMin))
	le.PutUint64(b[40:48], math.Float64bits(h.Bounds.XMax))
	le.PutUint64(b[48:56], math.Float64bits(h.Bounds.YMin))
	le.PutUint64(b[56:64], math.Float64bits(h.Bounds.YMax))
	return b, nil
}

// UnmarshalBinary decodes a 64-byte record and validates it.
func (h *Header) UnmarshalBinary(b []byte) error {
	if len(b) != HeaderSize {
		return fmt.Errorf("%w: %d bytes, want %d", ErrBadHeader, len(b), HeaderSize)
	}
	if [4]byte(b[0:4]) != magic {
		return fmt.Errorf("%w: bad magic %q", ErrBadHeader, b[0:4])
	}
	le := binary.LittleEndian
	if v := le.Uint16(b[4:6]); v != Version {
		return fmt.Errorf("%w: version %d, want %d", ErrBadHeader, v, Version)
	}

	*h = Header{
		Kind: Kind(le.Uint16(b[6:8])),
		Assignment: partition.Assignment{
			Start:  int(le.Uint32(b[8:12])),
			Length: int(le.Uint32(b[12:16])),
		},
		Width:     int(le.Uint32(b[16:20])),
		Height:    int(le.Uint32(b[20:24])),
		MaxIter:   int(le.Uint32(b[24:28])),
		ChunkSize: int(le.Uint32(b[28:32])),
		Bounds: grid.Bounds{
			XMin: math.Float64frombits(le.Uint64(b[32:40])),
			XMax: math.Float64frombits(le.Uint64(b[40:48])),
			YMin: math.Float64frombits(le.Uint64(b[48:56])),
			YMax: math.Float64frombits(le.Uint64(b[56:64])),
		},
	}
	return h.Validate()
}
