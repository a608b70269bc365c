package engine

import (
	"fmt"

	"github.com/Brownie44l1/segmask-api/internal/config"
	"github.com/Brownie44l1/segmask-api/internal/engine/onnx"
	"github.com/Brownie44l1/segmask-api/internal/engine/tflite"
	"github.com/Brownie44l1/segmask-api/internal/model"
)

// Factory returns the engine factory for the configured backend.
func Factory(cfg config.ModelConfig) (model.EngineFactory, error) {
	switch cfg.Backend {
	case "tflite":
		return tflite.Factory(tflite.Options{Threads: cfg.Threads}), nil
	case "onnx":
		return onnx.Factory(onnx.Options{
			SharedLibraryPath: cfg.SharedLibraryPath,
			Threads:           cfg.Threads,
		}), nil
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// Open loads the model metadata and the model itself.
func Open(cfg config.ModelConfig) (*model.Segmenter, error) {
	metadata, err := model.LoadMetadata(cfg.MetadataPath)
	if err != nil {
		return nil, err
	}
	factory, err := Factory(cfg)
	if err != nil {
		return nil, err
	}
	return model.NewSegmenter(cfg.Path, metadata, factory)
}
