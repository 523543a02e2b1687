package output

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	xdraw "golang.org/x/image/draw"
)

// palette stops, blended linearly by color value.
var palette = []color.RGBA{
	{0, 7, 100, 255},
	{32, 107, 203, 255},
	{237, 255, 255, 255},
	{255, 170, 0, 255},
	{0, 2, 0, 255},
}

// Shade maps a color value to a pixel. In-set pixels (1.0) are black.
func Shade(v float64) color.RGBA {
	if v >= 1 || math.IsNaN(v) {
		return color.RGBA{A: 255}
	}
	if v < 0 {
		v = 0
	}
	pos := v * float64(len(palette)-1)
	i := int(pos)
	frac := pos - float64(i)
	a, b := palette[i], palette[i+1]
	mix := func(x, y uint8) uint8 {
		return uint8(math.Round(float64(x) + (float64(y)-float64(x))*frac))
	}
	return color.RGBA{mix(a.R, b.R), mix(a.G, b.G), mix(a.B, b.B), 255}
}

// Image renders colors as a width x height image at full resolution.
func Image(colors []float64, width, height int) (*image.RGBA, error) {
	if width < 1 || height < 1 || len(colors) != width*height {
		return nil, fmt.Errorf("%w: %d colors for %dx%d", ErrShape, len(colors), width, height)
	}
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			img.SetRGBA(col, row, Shade(colors[row*width+col]))
		}
	}
	return img, nil
}

// WritePNG encodes a preview whose longest side is size pixels. A size of
// zero or one at least as large as the grid keeps the native resolution.
func WritePNG(w io.Writer, colors []float64, width, height, size int) error {
	img, err := Image(colors, width, height)
	if err != nil {
		return err
	}
	if size <= 0 || (size >= width && size >= height) {
		return png.Encode(w, img)
	}

	dw, dh := size, size
	if width > height {
		dh = max(1, height*size/width)
	} else if height > width {
		dw = max(1, width*size/height)
	}
	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, img.Bounds(), xdraw.Src, nil)
	return png.Encode(w, dst)
}
