package model

import (
	"fmt"
	"image"
	"io"
	"os"
	"sync"

	"github.com/Brownie44l1/segmask-api/internal/tensor"
)

// Segmenter turns images into per-pixel class scores using a loaded model.
//
// Engine calls are serialized, so a Segmenter may be shared between
// goroutines; only preprocessing runs in parallel.
type Segmenter struct {
	Metadata Metadata

	mu     sync.Mutex
	engine Engine
}

// NewSegmenter reads the model at modelPath and builds its engine with open.
// Any failure is reported as ErrModelLoad and no Segmenter is returned.
func NewSegmenter(modelPath string, metadata Metadata, open EngineFactory) (*Segmenter, error) {
	if err := metadata.Validate(); err != nil {
		return nil, err
	}

	modelData, err := readModel(modelPath)
	if err != nil {
		return nil, err
	}

	engine, err := open(modelData, metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelLoad, err)
	}

	return &Segmenter{
		Metadata: metadata,
		engine:   engine,
	}, nil
}

func readModel(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open model: %v", ErrModelLoad, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read model %s: %v", ErrModelLoad, path, err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: model file %s is empty", ErrModelLoad, path)
	}
	return data, nil
}

// Segment runs a single forward pass over img and returns the raw class
// scores at the model's output resolution. No softmax is applied.
func (s *Segmenter) Segment(img image.Image) (*tensor.Scores, error) {
	inputData, err := Preprocess(img, s.Metadata)
	if err != nil {
		return nil, err
	}

	outputData := make([]float32, s.Metadata.OutputLen())

	s.mu.Lock()
	if s.engine == nil {
		err = errClosed
	} else {
		err = s.engine.Run(inputData, outputData)
	}
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}

	h, w, classes := s.Metadata.OutputSize()
	var scores *tensor.Scores
	if s.Metadata.Layout == LayoutNCHW {
		scores, err = tensor.FromChannelsFirst(h, w, classes, outputData)
	} else {
		scores, err = tensor.FromSlice(h, w, classes, outputData)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInference, err)
	}
	return scores, nil
}

// Classes returns the label for each class index.
func (s *Segmenter) Classes() []string {
	return s.Metadata.Classes
}

// Close releases the engine.
func (s *Segmenter) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return nil
	}
	err := s.engine.Close()
	s.engine = nil
	return err
}
