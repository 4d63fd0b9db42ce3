package inference

import (
	"context"

	"github.com/pkg/errors"
	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/config"
)

// onnxEngine runs a YOLO-style ONNX detector with onnxruntime.
//
// The model must take one (1, 3, H, W) float input and produce a fixed
// (1, N, 5+C) or (N, 5+C) output. Input and output tensors are allocated once
// and reused for every frame.
type onnxEngine struct {
	session       *ort.AdvancedSession
	input         *ort.Tensor[float32]
	output        *ort.Tensor[float32]
	outputShape   []int
	width         int
	height        int
	boxesInPixels bool
	ownsRuntime   bool
}

func newONNXEngine(cfg config.Model) (*onnxEngine, error) {
	ownsRuntime := false
	if !ort.IsInitialized() {
		if cfg.ONNXLibrary != "" {
			ort.SetSharedLibraryPath(cfg.ONNXLibrary)
		}
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, errors.Wrapf(ErrModelLoad, "initialize onnxruntime: %v", err)
		}
		ownsRuntime = true
	}

	e, err := loadONNXSession(cfg)
	if err != nil {
		if ownsRuntime {
			_ = ort.DestroyEnvironment()
		}
		return nil, err
	}
	e.ownsRuntime = ownsRuntime
	return e, nil
}

func loadONNXSession(cfg config.Model) (*onnxEngine, error) {
	inputs, outputs, err := ort.GetInputOutputInfo(cfg.Weights)
	if err != nil {
		return nil, errors.Wrapf(ErrModelLoad, "inspect %s: %v", cfg.Weights, err)
	}
	if len(inputs) != 1 || len(outputs) == 0 {
		return nil, errors.Wrapf(ErrModelLoad, "expected one input and at least one output, got %d and %d",
			len(inputs), len(outputs))
	}

	// Fixed model dimensions win over the configured size.
	width, height := cfg.InputWidth, cfg.InputHeight
	if dims := inputs[0].Dimensions; len(dims) == 4 && dims[2] > 0 && dims[3] > 0 {
		height, width = int(dims[2]), int(dims[3])
	}

	outDims := outputs[0].Dimensions
	for _, d := range outDims {
		if d <= 0 {
			return nil, errors.Wrapf(ErrModelLoad, "output %s has a dynamic shape %v", outputs[0].Name, outDims)
		}
	}

	input, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 3, int64(height), int64(width)))
	if err != nil {
		return nil, errors.Wrapf(ErrModelLoad, "create input tensor: %v", err)
	}
	output, err := ort.NewEmptyTensor[float32](ort.NewShape(outDims...))
	if err != nil {
		input.Destroy()
		return nil, errors.Wrapf(ErrModelLoad, "create output tensor: %v", err)
	}

	options, err := newSessionOptions(cfg)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrapf(ErrModelLoad, "%v", err)
	}
	defer options.Destroy()

	session, err := ort.NewAdvancedSession(
		cfg.Weights,
		[]string{inputs[0].Name},
		[]string{outputs[0].Name},
		[]ort.ArbitraryTensor{input},
		[]ort.ArbitraryTensor{output},
		options,
	)
	if err != nil {
		input.Destroy()
		output.Destroy()
		return nil, errors.Wrapf(ErrModelLoad, "create session: %v", err)
	}

	return &onnxEngine{
		session:       session,
		input:         input,
		output:        output,
		outputShape:   shapeInts(outDims),
		width:         width,
		height:        height,
		boxesInPixels: cfg.BoxesInPixels,
	}, nil
}

// Infer runs the detector on one frame.
func (e *onnxEngine) Infer(ctx context.Context, frame gocv.Mat) (outputs []*tensor.Dense, err error) {
	defer recoverInference(&err)
	if err := checkFrame(ctx, frame); err != nil {
		return nil, err
	}

	img, err := frame.ToImage()
	if err != nil {
		return nil, inferenceError("convert frame", err)
	}
	if err := PrepareInput(img, e.width, e.height, e.input.GetData()); err != nil {
		return nil, inferenceError("prepare input", err)
	}

	if err := e.session.Run(); err != nil {
		return nil, inferenceError("run session", err)
	}

	data := e.output.GetData()
	backing := make([]float32, len(data))
	copy(backing, data)

	if e.boxesInPixels {
		normalizeBoxes(backing, e.outputShape[len(e.outputShape)-1], float32(e.width), float32(e.height))
	}

	return []*tensor.Dense{
		tensor.New(tensor.WithShape(e.outputShape...), tensor.WithBacking(backing)),
	}, nil
}

// Close releases the session, its tensors and, if this engine started it,
// the onnxruntime environment.
func (e *onnxEngine) Close() error {
	var err error
	if e.session != nil {
		err = multierr.Append(err, e.session.Destroy())
		e.session = nil
	}
	if e.input != nil {
		err = multierr.Append(err, e.input.Destroy())
		e.input = nil
	}
	if e.output != nil {
		err = multierr.Append(err, e.output.Destroy())
		e.output = nil
	}
	if e.ownsRuntime {
		e.ownsRuntime = false
		err = multierr.Append(err, ort.DestroyEnvironment())
	}
	return err
}
