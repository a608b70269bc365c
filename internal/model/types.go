package model

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Brownie44l1/segmask-api/internal/mask"
)

const (
	LayoutNHWC = "NHWC"
	LayoutNCHW = "NCHW"
)

// VOCClasses are the PASCAL VOC labels predicted by the bundled DeepLabv3 model.
var VOCClasses = []string{
	"background", "aeroplane", "bicycle", "bird", "boat", "bottle", "bus", "car", "cat", "chair", "cow",
	"diningtable", "dog", "horse", "motorbike", "person", "pottedplant", "sheep", "sofa", "train", "tvmonitor",
}

type Metadata struct {
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Layout      string   `json:"layout"`
	Classes     []string `json:"classes"`
}

// PredictionRequest carries raw class scores laid out as (row, column, class).
type PredictionRequest struct {
	Height  int       `json:"height"`
	Width   int       `json:"width"`
	Classes int       `json:"classes"`
	Scores  []float32 `json:"scores"`
}

type PredictionResponse struct {
	Width   int                  `json:"width"`
	Height  int                  `json:"height"`
	Mask    []int                `json:"mask"`
	Classes []mask.ClassCoverage `json:"classes"`
}

// DefaultMetadata describes deeplabv3_257_mv_gpu.tflite.
func DefaultMetadata() Metadata {
	return Metadata{
		InputName:   "sub_7",
		OutputName:  "ResizeBilinear_3",
		InputShape:  []int64{1, 257, 257, 3},
		OutputShape: []int64{1, 257, 257, 21},
		Layout:      LayoutNHWC,
		Classes:     append([]string(nil), VOCClasses...),
	}
}

// LoadMetadata reads a metadata JSON file. An empty path yields DefaultMetadata.
func LoadMetadata(path string) (Metadata, error) {
	if path == "" {
		return DefaultMetadata(), nil
	}

	metaFile, err := os.ReadFile(path)
	if err != nil {
		return Metadata{}, fmt.Errorf("%w: failed to read metadata: %v", ErrModelLoad, err)
	}

	metadata := DefaultMetadata()
	if err := json.Unmarshal(metaFile, &metadata); err != nil {
		return Metadata{}, fmt.Errorf("%w: failed to parse metadata: %v", ErrModelLoad, err)
	}
	if err := metadata.Validate(); err != nil {
		return Metadata{}, err
	}
	return metadata, nil
}

// Validate checks that the shapes describe a single-image segmentation model.
func (m Metadata) Validate() error {
	if m.Layout != LayoutNHWC && m.Layout != LayoutNCHW {
		return fmt.Errorf("%w: unknown layout %q", ErrModelLoad, m.Layout)
	}
	for _, s := range []struct {
		name  string
		shape []int64
	}{{"input", m.InputShape}, {"output", m.OutputShape}} {
		if len(s.shape) != 4 || s.shape[0] != 1 {
			return fmt.Errorf("%w: %s shape %v is not [1,d1,d2,d3]", ErrModelLoad, s.name, s.shape)
		}
		for _, d := range s.shape {
			if d <= 0 {
				return fmt.Errorf("%w: %s shape %v has non-positive dimension", ErrModelLoad, s.name, s.shape)
			}
		}
	}
	if _, _, c := m.InputSize(); c != 3 {
		return fmt.Errorf("%w: input must have 3 channels, got %d", ErrModelLoad, c)
	}
	// labels are optional, but when given there is one per output class
	if _, _, c := m.OutputSize(); len(m.Classes) > 0 && len(m.Classes) != c {
		return fmt.Errorf("%w: output has %d classes but metadata lists %d class labels", ErrModelLoad, c, len(m.Classes))
	}
	return nil
}

// InputSize returns height, width and channels of the input tensor.
func (m Metadata) InputSize() (h, w, c int) {
	return dims(m.InputShape, m.Layout)
}

// OutputSize returns height, width and class count of the output tensor.
func (m Metadata) OutputSize() (h, w, classes int) {
	return dims(m.OutputShape, m.Layout)
}

// InputLen is the number of float32 values in the input tensor.
func (m Metadata) InputLen() int {
	h, w, c := m.InputSize()
	return h * w * c
}

// OutputLen is the number of float32 values in the output tensor.
func (m Metadata) OutputLen() int {
	h, w, c := m.OutputSize()
	return h * w * c
}

func dims(shape []int64, layout string) (h, w, c int) {
	if len(shape) != 4 {
		return 0, 0, 0
	}
	if layout == LayoutNCHW {
		return int(shape[2]), int(shape[3]), int(shape[1])
	}
	return int(shape[1]), int(shape[2]), int(shape[3])
}
