package tensor

import "fmt"

// Scores holds per-pixel class scores in row-major (row, column, class) order.
type Scores struct {
	Height  int
	Width   int
	Classes int
	Data    []float32
}

// NewScores allocates a zeroed score tensor.
func NewScores(height, width, classes int) (*Scores, error) {
	if height <= 0 || width <= 0 || classes <= 0 {
		return nil, fmt.Errorf("invalid score tensor shape %dx%dx%d", height, width, classes)
	}
	return &Scores{
		Height:  height,
		Width:   width,
		Classes: classes,
		Data:    make([]float32, height*width*classes),
	}, nil
}

// FromSlice wraps data laid out as (row, column, class). The slice is not copied.
func FromSlice(height, width, classes int, data []float32) (*Scores, error) {
	if height <= 0 || width <= 0 || classes <= 0 {
		return nil, fmt.Errorf("invalid score tensor shape %dx%dx%d", height, width, classes)
	}
	if len(data) != height*width*classes {
		return nil, fmt.Errorf("expected %d values for shape %dx%dx%d, got %d",
			height*width*classes, height, width, classes, len(data))
	}
	return &Scores{Height: height, Width: width, Classes: classes, Data: data}, nil
}

// FromChannelsFirst converts a (class, row, column) buffer into a Scores tensor.
func FromChannelsFirst(height, width, classes int, data []float32) (*Scores, error) {
	s, err := NewScores(height, width, classes)
	if err != nil {
		return nil, err
	}
	if len(data) != len(s.Data) {
		return nil, fmt.Errorf("expected %d values for shape %dx%dx%d, got %d",
			len(s.Data), classes, height, width, len(data))
	}
	plane := height * width
	for k := 0; k < classes; k++ {
		for i := 0; i < plane; i++ {
			s.Data[i*classes+k] = data[k*plane+i]
		}
	}
	return s, nil
}

func (s *Scores) index(row, col, class int) int {
	return (row*s.Width+col)*s.Classes + class
}

// At returns the score of class at (row, col).
func (s *Scores) At(row, col, class int) float32 {
	return s.Data[s.index(row, col, class)]
}

// Set stores the score of class at (row, col).
func (s *Scores) Set(row, col, class int, v float32) {
	s.Data[s.index(row, col, class)] = v
}

// Pixel returns the class scores at (row, col) as a sub-slice of Data.
func (s *Scores) Pixel(row, col int) []float32 {
	i := s.index(row, col, 0)
	return s.Data[i : i+s.Classes]
}
