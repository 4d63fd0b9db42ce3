package inference

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/config"
)

// darknetEngine runs a darknet YOLO network with the OpenCV DNN module.
//
// YOLO region layers already emit rows of cx, cy, w, h, objectness and class
// scores relative to the frame, so outputs are passed through untouched.
type darknetEngine struct {
	net         gocv.Net
	outputNames []string
	inputShape  image.Point
}

func newDarknetEngine(cfg config.Model) (*darknetEngine, error) {
	net := gocv.ReadNet(cfg.Weights, cfg.Config)
	if net.Empty() {
		return nil, errors.Wrapf(ErrModelLoad, "cannot read network %s (%s)", cfg.Weights, cfg.Config)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	names := outputLayerNames(&net)
	if len(names) == 0 {
		_ = net.Close()
		return nil, errors.Wrapf(ErrModelLoad, "network %s has no output layers", cfg.Weights)
	}

	return &darknetEngine{
		net:         net,
		outputNames: names,
		inputShape:  image.Pt(cfg.InputWidth, cfg.InputHeight),
	}, nil
}

// outputLayerNames returns the names of the unconnected output layers.
func outputLayerNames(net *gocv.Net) []string {
	var names []string
	for _, id := range net.GetUnconnectedOutLayers() {
		layer := net.GetLayer(id)
		name := layer.GetName()
		_ = layer.Close()
		if name == "_input" {
			continue
		}
		names = append(names, name)
	}
	return names
}

// Infer forwards the frame through every output layer.
func (e *darknetEngine) Infer(ctx context.Context, frame gocv.Mat) (outputs []*tensor.Dense, err error) {
	defer recoverInference(&err)
	if err := checkFrame(ctx, frame); err != nil {
		return nil, err
	}

	blob := gocv.BlobFromImage(frame, 1.0/255.0, e.inputShape, gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	mats := e.net.ForwardLayers(e.outputNames)
	defer func() {
		for i := range mats {
			_ = mats[i].Close()
		}
	}()

	outputs = make([]*tensor.Dense, 0, len(mats))
	for i, m := range mats {
		t, err := denseFromMat(m)
		if err != nil {
			return nil, inferenceError(e.outputNames[i], err)
		}
		outputs = append(outputs, t)
	}

	return outputs, nil
}

// Close releases the network.
func (e *darknetEngine) Close() error {
	return e.net.Close()
}
