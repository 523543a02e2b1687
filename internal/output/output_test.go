package output

import (
	"bytes"
	"image/color"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/mandelgrid/internal/grid"
)

func smallRun(t *testing.T) (grid.ConstantField, []float64) {
	t.Helper()
	g, err := grid.New(grid.DefaultBounds, 2, 2)
	require.NoError(t, err)
	return g.Constants(), []float64{0, 0.25, 0.5, 1}
}

func TestWriteGnuplot(t *testing.T) {
	consts, colors := smallRun(t)

	var buf bytes.Buffer
	require.NoError(t, WriteGnuplot(&buf, consts, colors, 2))

	want := "" +
		"-2.000000000000 2.000000000000 0.000000000000\n" +
		"0.000000000000 2.000000000000 0.250000000000\n" +
		"\n" +
		"-2.000000000000 0.000000000000 0.500000000000\n" +
		"0.000000000000 0.000000000000 1.000000000000\n" +
		"\n"
	assert.Equal(t, want, buf.String())
}

func TestWriteGnuplotShape(t *testing.T) {
	consts, colors := smallRun(t)
	var buf bytes.Buffer

	assert.ErrorIs(t, WriteGnuplot(&buf, consts, colors[:3], 2), ErrShape)
	assert.ErrorIs(t, WriteGnuplot(&buf, consts, colors, 3), ErrShape)
	assert.ErrorIs(t, WriteGnuplot(&buf, consts, colors, 0), ErrShape)
	assert.Zero(t, buf.Len())
}

func TestWriteFile(t *testing.T) {
	consts, colors := smallRun(t)
	var want bytes.Buffer
	require.NoError(t, WriteGnuplot(&want, consts, colors, 2))

	for _, name := range []string{"mandel.dat", "mandel.dat.zst"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			require.NoError(t, WriteFile(path, consts, colors, 2))

			raw, err := os.ReadFile(path)
			require.NoError(t, err)
			if strings.HasSuffix(name, CompressedSuffix) {
				assert.NotEqual(t, want.Bytes(), raw)
			}

			r, err := OpenFile(path)
			require.NoError(t, err)
			defer r.Close()
			got, err := io.ReadAll(r)
			require.NoError(t, err)
			assert.Equal(t, want.String(), string(got))
		})
	}
}

func TestWriteFileBadPath(t *testing.T) {
	consts, colors := smallRun(t)
	err := WriteFile(filepath.Join(t.TempDir(), "missing", "mandel.dat"), consts, colors, 2)
	assert.Error(t, err)
}

func TestShade(t *testing.T) {
	assert.Equal(t, color.RGBA{A: 255}, Shade(1))
	assert.Equal(t, palette[0], Shade(0))
	assert.Equal(t, palette[0], Shade(-3))
	assert.Equal(t, palette[2], Shade(0.5))
}

func TestWritePNG(t *testing.T) {
	colors := make([]float64, 40*20)
	for i := range colors {
		colors[i] = float64(i%40) / 40
	}

	t.Run("native", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WritePNG(&buf, colors, 40, 20, 0))
		img, err := png.Decode(&buf)
		require.NoError(t, err)
		assert.Equal(t, 40, img.Bounds().Dx())
		assert.Equal(t, 20, img.Bounds().Dy())
	})

	t.Run("scaled", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WritePNG(&buf, colors, 40, 20, 10))
		img, err := png.Decode(&buf)
		require.NoError(t, err)
		assert.Equal(t, 10, img.Bounds().Dx())
		assert.Equal(t, 5, img.Bounds().Dy())
	})

	t.Run("shape", func(t *testing.T) {
		assert.ErrorIs(t, WritePNG(io.Discard, colors, 10, 10, 0), ErrShape)
	})
}
