package model

import "errors"

var (
	// ErrModelLoad means the model or its metadata could not be loaded.
	// A segmenter is never returned together with this error.
	ErrModelLoad = errors.New("model load failed")
	// ErrInference means the engine could not complete a forward pass.
	ErrInference = errors.New("inference failed")
	// ErrInvalidDimension means an image or tensor had an unusable size.
	ErrInvalidDimension = errors.New("invalid dimension")

	errClosed = errors.New("segmenter is closed")
)

// Engine runs one forward pass of a loaded model. input and output are laid
// out as described by the Metadata the engine was built with. Engines bind
// fixed buffers and are not safe for concurrent use.
type Engine interface {
	Run(input, output []float32) error
	Close() error
}

// EngineFactory builds an Engine from raw model bytes.
type EngineFactory func(modelData []byte, metadata Metadata) (Engine, error)
