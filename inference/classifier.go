package inference

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/config"
)

const (
	// ClassifierInputSize is the square input the classifier network expects.
	ClassifierInputSize = 224
	// ClassifierPixelOffset is subtracted from every channel before inference.
	ClassifierPixelOffset = 117
)

// classifierEngine runs a whole-image TensorFlow classifier.
//
// Its score vector is returned as one detection row spanning the frame, so
// the best class is drawn as a frame-sized box by the regular pipeline.
type classifierEngine struct {
	net        gocv.Net
	inputShape image.Point
}

func newClassifierEngine(cfg config.Model) (*classifierEngine, error) {
	net := gocv.ReadNet(cfg.Weights, cfg.Config)
	if net.Empty() {
		return nil, errors.Wrapf(ErrModelLoad, "cannot read classifier %s", cfg.Weights)
	}

	net.SetPreferableBackend(gocv.NetBackendDefault)
	net.SetPreferableTarget(gocv.NetTargetCPU)

	return &classifierEngine{
		net:        net,
		inputShape: image.Pt(ClassifierInputSize, ClassifierInputSize),
	}, nil
}

// Infer classifies the frame.
func (e *classifierEngine) Infer(ctx context.Context, frame gocv.Mat) (outputs []*tensor.Dense, err error) {
	defer recoverInference(&err)
	if err := checkFrame(ctx, frame); err != nil {
		return nil, err
	}

	mean := gocv.NewScalar(ClassifierPixelOffset, ClassifierPixelOffset, ClassifierPixelOffset, 0)
	blob := gocv.BlobFromImage(frame, 1.0, e.inputShape, mean, true, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	prob := e.net.Forward("")
	defer prob.Close()

	scores, err := denseFromMat(prob)
	if err != nil {
		return nil, inferenceError("classifier", err)
	}

	return []*tensor.Dense{classifierRow(scores.Data().([]float32))}, nil
}

// Close releases the network.
func (e *classifierEngine) Close() error {
	return e.net.Close()
}
