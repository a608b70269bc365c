package mask

import (
	"math"

	"github.com/Brownie44l1/segmask-api/internal/tensor"
)

// ClassMap is a grid of class indices, one per pixel, stored row by row.
type ClassMap struct {
	Width   int
	Height  int
	Classes int
	Pix     []int
}

// At returns the class index at column x, row y.
func (m ClassMap) At(x, y int) int {
	return m.Pix[y*m.Width+x]
}

// Histogram counts the pixels assigned to each class.
func (m ClassMap) Histogram() []int {
	counts := make([]int, m.Classes)
	for _, k := range m.Pix {
		if k >= 0 && k < len(counts) {
			counts[k]++
		}
	}
	return counts
}

// Classify picks the highest scoring class for every pixel. When several
// classes share the maximum, the lowest index wins.
func Classify(s *tensor.Scores) ClassMap {
	m := ClassMap{
		Width:   s.Width,
		Height:  s.Height,
		Classes: s.Classes,
		Pix:     make([]int, s.Width*s.Height),
	}
	for i := range m.Pix {
		m.Pix[i] = argmax(s.Data[i*s.Classes : (i+1)*s.Classes])
	}
	return m
}

func argmax(f []float32) int {
	r, m := 0, float32(math.Inf(-1))
	for i, v := range f {
		if v > m {
			m = v
			r = i
		}
	}
	return r
}
