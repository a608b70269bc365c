package onnx

import (
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/Brownie44l1/segmask-api/internal/model"
)

type Options struct {
	// SharedLibraryPath points at libonnxruntime; empty uses the platform default.
	SharedLibraryPath string
	Threads           int
}

// Engine runs a model through an ONNX Runtime session with pre-bound tensors.
type Engine struct {
	session      *ort.AdvancedSession
	inputTensor  *ort.Tensor[float32]
	outputTensor *ort.Tensor[float32]
	holdsEnv     bool
}

// The ONNX Runtime environment is process wide. Engines share it and the
// last one to close destroys it, unless it was initialized elsewhere.
var (
	envMu    sync.Mutex
	envRefs  int
	envOwned bool

	envInitialized = ort.IsInitialized
	initEnv        = func(sharedLibraryPath string) error {
		if sharedLibraryPath != "" {
			ort.SetSharedLibraryPath(sharedLibraryPath)
		}
		return ort.InitializeEnvironment()
	}
	destroyEnv = ort.DestroyEnvironment
)

func acquireEnv(sharedLibraryPath string) error {
	envMu.Lock()
	defer envMu.Unlock()
	if envRefs == 0 && !envInitialized() {
		if err := initEnv(sharedLibraryPath); err != nil {
			return fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
		envOwned = true
	}
	envRefs++
	return nil
}

func releaseEnv() error {
	envMu.Lock()
	defer envMu.Unlock()
	envRefs--
	if envRefs > 0 || !envOwned {
		return nil
	}
	envOwned = false
	return destroyEnv()
}

// Factory adapts New to model.EngineFactory.
func Factory(opts Options) model.EngineFactory {
	return func(modelData []byte, metadata model.Metadata) (model.Engine, error) {
		return New(modelData, metadata, opts)
	}
}

func New(modelData []byte, metadata model.Metadata, opts Options) (*Engine, error) {
	if err := acquireEnv(opts.SharedLibraryPath); err != nil {
		return nil, err
	}
	e := &Engine{holdsEnv: true}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.InputShape...))
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	e.inputTensor = inputTensor

	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(metadata.OutputShape...))
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create output tensor: %w", err)
	}
	e.outputTensor = outputTensor

	options, err := ort.NewSessionOptions()
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create session options: %w", err)
	}
	defer options.Destroy()
	if opts.Threads > 0 {
		if err := options.SetIntraOpNumThreads(opts.Threads); err != nil {
			e.Close()
			return nil, fmt.Errorf("failed to set thread count: %w", err)
		}
	}

	session, err := ort.NewAdvancedSessionWithONNXData(modelData,
		[]string{metadata.InputName}, []string{metadata.OutputName},
		[]ort.ArbitraryTensor{inputTensor}, []ort.ArbitraryTensor{outputTensor},
		options)
	if err != nil {
		e.Close()
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}
	e.session = session

	return e, nil
}

func (e *Engine) Run(input, output []float32) error {
	in := e.inputTensor.GetData()
	if len(input) != len(in) {
		return fmt.Errorf("input has %d values, tensor expects %d", len(input), len(in))
	}
	out := e.outputTensor.GetData()
	if len(output) != len(out) {
		return fmt.Errorf("output has %d values, tensor holds %d", len(output), len(out))
	}

	copy(in, input)
	if err := e.session.Run(); err != nil {
		return err
	}
	copy(output, out)
	return nil
}

func (e *Engine) Close() error {
	if e.session != nil {
		e.session.Destroy()
		e.session = nil
	}
	if e.inputTensor != nil {
		e.inputTensor.Destroy()
		e.inputTensor = nil
	}
	if e.outputTensor != nil {
		e.outputTensor.Destroy()
		e.outputTensor = nil
	}
	if e.holdsEnv {
		e.holdsEnv = false
		return releaseEnv()
	}
	return nil
}
