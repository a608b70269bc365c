package mask

import (
	"fmt"
	"image"
	"image/color"
	"sort"

	"golang.org/x/image/draw"
)

// Overlay draws the mask over src with the given opacity in [0,1].
// Both images must have the same size.
func Overlay(src, mask image.Image, alpha float64) (image.Image, error) {
	if alpha < 0 || alpha > 1 {
		return nil, fmt.Errorf("overlay alpha %v outside [0,1]", alpha)
	}
	sb, mb := src.Bounds(), mask.Bounds()
	if sb.Dx() != mb.Dx() || sb.Dy() != mb.Dy() {
		return nil, fmt.Errorf("%w: mask %dx%d does not match image %dx%d",
			ErrInvalidDimension, mb.Dx(), mb.Dy(), sb.Dx(), sb.Dy())
	}

	dst := image.NewRGBA(image.Rect(0, 0, sb.Dx(), sb.Dy()))
	draw.Draw(dst, dst.Bounds(), src, sb.Min, draw.Src)
	opacity := image.NewUniform(color.Alpha{A: uint8(alpha*255 + 0.5)})
	draw.DrawMask(dst, dst.Bounds(), mask, mb.Min, opacity, image.Point{}, draw.Over)
	return dst, nil
}

// SideBySide places src on the left and mask on the right.
func SideBySide(src, mask image.Image) image.Image {
	sb, mb := src.Bounds(), mask.Bounds()
	h := sb.Dy()
	if mb.Dy() > h {
		h = mb.Dy()
	}
	dst := image.NewRGBA(image.Rect(0, 0, sb.Dx()+mb.Dx(), h))
	draw.Draw(dst, image.Rect(0, 0, sb.Dx(), sb.Dy()), src, sb.Min, draw.Src)
	draw.Draw(dst, image.Rect(sb.Dx(), 0, sb.Dx()+mb.Dx(), mb.Dy()), mask, mb.Min, draw.Src)
	return dst
}

// ClassCoverage reports how much of the image a class occupies.
type ClassCoverage struct {
	Class    int     `json:"class"`
	Label    string  `json:"label"`
	Pixels   int     `json:"pixels"`
	Fraction float64 `json:"fraction"`
}

// Coverage lists the classes present in m, largest first.
func Coverage(m ClassMap, labels []string) []ClassCoverage {
	total := len(m.Pix)
	if total == 0 {
		return nil
	}
	var out []ClassCoverage
	for k, n := range m.Histogram() {
		if n == 0 {
			continue
		}
		label := "unknown"
		if k < len(labels) {
			label = labels[k]
		}
		out = append(out, ClassCoverage{
			Class:    k,
			Label:    label,
			Pixels:   n,
			Fraction: float64(n) / float64(total),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Pixels > out[j].Pixels
	})
	return out
}
