package tflite

import (
	"fmt"

	"github.com/mattn/go-tflite"

	"github.com/Brownie44l1/segmask-api/internal/model"
)

type Options struct {
	Threads int
}

// Engine runs a TensorFlow Lite model through a single interpreter.
type Engine struct {
	model  *tflite.Model
	interp *tflite.Interpreter
}

// Factory adapts New to model.EngineFactory.
func Factory(opts Options) model.EngineFactory {
	return func(modelData []byte, metadata model.Metadata) (model.Engine, error) {
		return New(modelData, metadata, opts)
	}
}

func New(modelData []byte, metadata model.Metadata, opts Options) (*Engine, error) {
	m := tflite.NewModel(modelData)
	if m == nil {
		return nil, fmt.Errorf("cannot load model")
	}

	options := tflite.NewInterpreterOptions()
	defer options.Delete()
	if opts.Threads > 0 {
		options.SetNumThread(opts.Threads)
	}

	interpreter := tflite.NewInterpreter(m, options)
	if interpreter == nil {
		m.Delete()
		return nil, fmt.Errorf("cannot create interpreter")
	}

	e := &Engine{model: m, interp: interpreter}
	if status := interpreter.AllocateTensors(); status != tflite.OK {
		e.Close()
		return nil, fmt.Errorf("allocate failed: %v", status)
	}

	input := interpreter.GetInputTensor(0)
	if input.Type() != tflite.Float32 {
		e.Close()
		return nil, fmt.Errorf("input tensor %s has type %v, want float32", input.Name(), input.Type())
	}
	if err := checkShape("input", getTensorShape(input), metadata.InputShape); err != nil {
		e.Close()
		return nil, err
	}
	output := interpreter.GetOutputTensor(0)
	if err := checkShape("output", getTensorShape(output), metadata.OutputShape); err != nil {
		e.Close()
		return nil, err
	}

	return e, nil
}

func getTensorShape(tensor *tflite.Tensor) []int {
	shape := []int{}
	for idx := 0; idx < tensor.NumDims(); idx++ {
		shape = append(shape, tensor.Dim(idx))
	}
	return shape
}

func checkShape(name string, got []int, want []int64) error {
	if len(got) != len(want) {
		return fmt.Errorf("%s tensor shape %v does not match metadata %v", name, got, want)
	}
	for i := range got {
		if int64(got[i]) != want[i] {
			return fmt.Errorf("%s tensor shape %v does not match metadata %v", name, got, want)
		}
	}
	return nil
}

func (e *Engine) Run(input, output []float32) error {
	in := e.interp.GetInputTensor(0).Float32s()
	if len(input) != len(in) {
		return fmt.Errorf("input has %d values, tensor expects %d", len(input), len(in))
	}
	copy(in, input)

	if status := e.interp.Invoke(); status != tflite.OK {
		return fmt.Errorf("invoke failed: %v", status)
	}

	out := e.interp.GetOutputTensor(0)
	switch out.Type() {
	case tflite.Float32:
		f := out.Float32s()
		if len(f) != len(output) {
			return fmt.Errorf("output tensor holds %d values, want %d", len(f), len(output))
		}
		copy(output, f)
	case tflite.UInt8:
		f := out.UInt8s()
		if len(f) != len(output) {
			return fmt.Errorf("output tensor holds %d values, want %d", len(f), len(output))
		}
		q := out.QuantizationParams()
		scale := float32(q.Scale)
		if scale == 0 {
			scale = 1
		}
		for i, v := range f {
			output[i] = scale * (float32(v) - float32(q.ZeroPoint))
		}
	default:
		return fmt.Errorf("unsupported output tensor type %v", out.Type())
	}
	return nil
}

func (e *Engine) Close() error {
	if e.interp != nil {
		e.interp.Delete()
		e.interp = nil
	}
	if e.model != nil {
		e.model.Delete()
		e.model = nil
	}
	return nil
}
