package mask

import (
	"errors"
	"fmt"
	"image"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"
)

var (
	ErrInvalidDimension = errors.New("invalid dimension")
	ErrPalette          = errors.New("palette error")
)

// Resample selects how the native mask is scaled to the target size.
type Resample int

const (
	Nearest Resample = iota
	Bilinear
)

// ParseResample accepts "nearest" (or empty) and "bilinear".
func ParseResample(s string) (Resample, error) {
	switch s {
	case "", "nearest":
		return Nearest, nil
	case "bilinear":
		return Bilinear, nil
	}
	return Nearest, fmt.Errorf("unknown resample method %q", s)
}

func (r Resample) String() string {
	if r == Bilinear {
		return "bilinear"
	}
	return "nearest"
}

// Render colours the class map with the palette and stretches it to exactly
// targetWidth x targetHeight using nearest neighbour sampling.
func Render(m ClassMap, p Palette, targetWidth, targetHeight int) (image.Image, error) {
	return RenderWith(m, p, targetWidth, targetHeight, Nearest)
}

// RenderWith is Render with an explicit resampling method. Each axis is
// scaled independently, so aspect ratio follows the requested size.
// Nearest only ever emits palette colours, whether shrinking or enlarging.
func RenderWith(m ClassMap, p Palette, targetWidth, targetHeight int, method Resample) (image.Image, error) {
	if targetWidth <= 0 || targetHeight <= 0 {
		return nil, fmt.Errorf("%w: target %dx%d", ErrInvalidDimension, targetWidth, targetHeight)
	}
	if m.Width <= 0 || m.Height <= 0 || len(m.Pix) != m.Width*m.Height {
		return nil, fmt.Errorf("%w: class map %dx%d with %d entries", ErrInvalidDimension, m.Width, m.Height, len(m.Pix))
	}

	native := image.NewRGBA(image.Rect(0, 0, m.Width, m.Height))
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			k := m.At(x, y)
			if k < 0 || k >= len(p) {
				return nil, fmt.Errorf("%w: class %d outside palette of %d colours", ErrPalette, k, len(p))
			}
			native.SetRGBA(x, y, p[k])
		}
	}

	if method == Bilinear {
		return resize.Resize(uint(targetWidth), uint(targetHeight), native, resize.Bilinear), nil
	}

	// resize.NearestNeighbor widens its kernel when shrinking and blends cells.
	dst := image.NewRGBA(image.Rect(0, 0, targetWidth, targetHeight))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), native, native.Bounds(), draw.Src, nil)
	return dst, nil
}
