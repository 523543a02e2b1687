package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dreamware/mandelgrid/internal/grid"
)

// DefaultChunkSize is the transfer segment size used when none is configured.
const DefaultChunkSize = 1024

var (
	// ErrShortPayload is returned when the stream ends before the agreed
	// number of bytes has been moved.
	ErrShortPayload = errors.New("transport: short payload")
	// ErrChunkSize is returned for a non-positive chunk size.
	ErrChunkSize = errors.New("transport: chunk size must be positive")
)

// WriteChunked writes buf as len(buf)/chunkSize full segments followed by one
// remainder segment. A zero remainder issues no write. It returns the number
// of bytes written.
func WriteChunked(w io.Writer, buf []byte, chunkSize int) (int, error) {
	if chunkSize <= 0 {
		return 0, ErrChunkSize
	}

	full := len(buf) / chunkSize
	written := 0
	for i := 0; i < full; i++ {
		n, err := writeSegment(w, buf[written:written+chunkSize])
		written += n
		if err != nil {
			return written, err
		}
	}
	if written < len(buf) {
		n, err := writeSegment(w, buf[written:])
		written += n
		if err != nil {
			return written, err
		}
	}
	return written, nil
}

func writeSegment(w io.Writer, seg []byte) (int, error) {
	n, err := w.Write(seg)
	if err == nil && n < len(seg) {
		err = io.ErrShortWrite
	}
	return n, err
}

// ReadChunked fills buf with len(buf)/chunkSize full segments followed by one
// remainder segment. A read that returns fewer bytes than requested is not an
// error; the segment is read again until it is full. Only running out of
// stream before len(buf) bytes arrive yields ErrShortPayload.
func ReadChunked(r io.Reader, buf []byte, chunkSize int) (int, error) {
	if chunkSize <= 0 {
		return 0, ErrChunkSize
	}

	read := 0
	for read < len(buf) {
		end := read + chunkSize
		if end > len(buf) {
			end = len(buf)
		}
		n, err := io.ReadFull(r, buf[read:end])
		read += n
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return read, fmt.Errorf("%w: got %d of %d bytes", ErrShortPayload, read, len(buf))
			}
			return read, err
		}
	}
	return read, nil
}

// EncodeIterations serialises escape times as little-endian int32 values.
func EncodeIterations(f grid.IterationField) []byte {
	b := make([]byte, 4*len(f))
	for i, v := range f {
		binary.LittleEndian.PutUint32(b[4*i:], uint32(v))
	}
	return b
}

// DecodeIterations fills dst from a buffer produced by EncodeIterations.
func DecodeIterations(b []byte, dst grid.IterationField) error {
	if len(b) != 4*len(dst) {
		return fmt.Errorf("%w: %d bytes for %d cells", ErrShortPayload, len(b), len(dst))
	}
	for i := range dst {
		dst[i] = int32(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return nil
}
