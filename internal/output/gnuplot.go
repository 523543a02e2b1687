// Package output writes a colored run to disk.
//
// The data file is gnuplot's "splot ... with pm3d" layout: one line per pixel
// holding the real part, the imaginary part and the color, with a blank line
// closing every row. A path ending in ".zst" is zstd-compressed on the fly.
package output

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/dreamware/mandelgrid/internal/grid"
)

// ErrShape is returned when the constants, colors and width disagree.
var ErrShape = errors.New("output: field shape mismatch")

// CompressedSuffix selects zstd compression in WriteFile.
const CompressedSuffix = ".zst"

// WriteGnuplot writes one "%.12f %.12f %.12f" line per pixel in row-major
// order, followed by an empty line after each row.
func WriteGnuplot(w io.Writer, consts grid.ConstantField, colors []float64, width int) error {
	if width < 1 || len(consts) != len(colors) || len(consts)%width != 0 {
		return fmt.Errorf("%w: %d constants, %d colors, width %d", ErrShape, len(consts), len(colors), width)
	}

	bw := bufio.NewWriter(w)
	for i, c := range consts {
		if _, err := fmt.Fprintf(bw, "%.12f %.12f %.12f\n", real(c), imag(c), colors[i]); err != nil {
			return err
		}
		if (i+1)%width == 0 {
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}

// WriteFile creates path and writes the gnuplot data to it, compressing
// with zstd when path ends in CompressedSuffix.
func WriteFile(path string, consts grid.ConstantField, colors []float64, width int) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if !strings.HasSuffix(path, CompressedSuffix) {
		return WriteGnuplot(f, consts, colors, width)
	}

	enc, err := zstd.NewWriter(f)
	if err != nil {
		return fmt.Errorf("output: zstd: %w", err)
	}
	if err := WriteGnuplot(enc, consts, colors, width); err != nil {
		_ = enc.Close()
		return err
	}
	return enc.Close()
}

// OpenFile opens a data file written by WriteFile, decompressing it when
// the name ends in CompressedSuffix.
func OpenFile(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("output: %w", err)
	}
	if !strings.HasSuffix(path, CompressedSuffix) {
		return f, nil
	}
	dec, err := zstd.NewReader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("output: zstd: %w", err)
	}
	return &zstdFile{dec: dec, f: f}, nil
}

type zstdFile struct {
	dec *zstd.Decoder
	f   *os.File
}

func (z *zstdFile) Read(p []byte) (int, error) { return z.dec.Read(p) }

func (z *zstdFile) Close() error {
	z.dec.Close()
	return z.f.Close()
}
