package mask

import (
	"fmt"
	"image/color"

	lru "github.com/hashicorp/golang-lru"
	"github.com/lucasb-eyer/go-colorful"
)

// Palette maps a class index to a display colour.
type Palette []color.RGBA

const (
	PaletteHue    = "hue"
	PalettePascal = "pascal"
	PaletteRandom = "random"
)

var paletteCache *lru.Cache

func init() {
	var err error
	if paletteCache, err = lru.New(32); err != nil {
		panic(err)
	}
}

// GeneratePalette returns classCount evenly spaced hues. The result depends
// only on classCount, so the same class keeps its colour across calls.
func GeneratePalette(classCount int) Palette {
	if classCount <= 0 {
		return Palette{}
	}
	if p, ok := paletteCache.Get(classCount); ok {
		return clonePalette(p.(Palette))
	}

	p := make(Palette, classCount)
	for i := range p {
		h := 360 * float64(i) / float64(classCount)
		r, g, b := colorful.Hsv(h, 0.75, 0.95).RGB255()
		p[i] = color.RGBA{R: r, G: g, B: b, A: 0xff}
	}
	paletteCache.Add(classCount, p)
	return clonePalette(p)
}

// PascalPalette returns the PASCAL VOC colormap, where class 0 is black.
func PascalPalette(classCount int) Palette {
	if classCount <= 0 {
		return Palette{}
	}
	p := make(Palette, classCount)
	for i := range p {
		var r, g, b uint8
		c := i
		for j := 7; j >= 0; j-- {
			r |= uint8(c&1) << j
			g |= uint8((c>>1)&1) << j
			b |= uint8((c>>2)&1) << j
			c >>= 3
		}
		p[i] = color.RGBA{R: r, G: g, B: b, A: 0xff}
	}
	return p
}

// RandomPalette draws a fresh colour for every class on each call.
func RandomPalette(classCount int) Palette {
	if classCount <= 0 {
		return Palette{}
	}
	p := make(Palette, classCount)
	for i := range p {
		r, g, b := colorful.FastHappyColor().RGB255()
		p[i] = color.RGBA{R: r, G: g, B: b, A: 0xff}
	}
	return p
}

// CheckPaletteName reports whether PaletteByName knows name, without
// building a palette.
func CheckPaletteName(name string) error {
	switch name {
	case "", PaletteHue, PalettePascal, PaletteRandom:
		return nil
	}
	return fmt.Errorf("%w: unknown palette %q", ErrPalette, name)
}

// PaletteByName resolves a palette name from config or a request.
func PaletteByName(name string, classCount int) (Palette, error) {
	if err := CheckPaletteName(name); err != nil {
		return nil, err
	}
	switch name {
	case PalettePascal:
		return PascalPalette(classCount), nil
	case PaletteRandom:
		return RandomPalette(classCount), nil
	}
	return GeneratePalette(classCount), nil
}

func clonePalette(p Palette) Palette {
	out := make(Palette, len(p))
	copy(out, p)
	return out
}
