package inference

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/config"
)

func TestPrepareInput(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 2))
	for y := 0; y < 2; y++ {
		for x := 0; x < 4; x++ {
			img.Set(x, y, color.RGBA{R: 255, G: 51, B: 0, A: 255})
		}
	}

	dst := make([]float32, 3*4*2)
	require.NoError(t, PrepareInput(img, 4, 2, dst))

	for i := 0; i < 8; i++ {
		assert.InDelta(t, 1.0, dst[i], 1e-6, "red plane")
		assert.InDelta(t, 0.2, dst[8+i], 1e-6, "green plane")
		assert.InDelta(t, 0.0, dst[16+i], 1e-6, "blue plane")
	}
}

func TestPrepareInput_Resizes(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 64, 48))
	for y := 0; y < 48; y++ {
		for x := 0; x < 64; x++ {
			img.Set(x, y, color.RGBA{R: 0, G: 0, B: 255, A: 255})
		}
	}

	dst := make([]float32, 3*16*16)
	require.NoError(t, PrepareInput(img, 16, 16, dst))
	assert.InDelta(t, 1.0, dst[2*256+100], 1e-6)
	assert.InDelta(t, 0.0, dst[100], 1e-6)
}

func TestPrepareInput_Errors(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	assert.Error(t, PrepareInput(img, 4, 4, make([]float32, 10)))
	assert.Error(t, PrepareInput(img, 0, 4, make([]float32, 48)))
}

func TestClassifierRow(t *testing.T) {
	row := classifierRow([]float32{0.1, 0.7, 0.2})

	assert.Equal(t, []int{1, 8}, []int(row.Shape()))
	assert.Equal(t, []float32{0.5, 0.5, 1, 1, 1, 0.1, 0.7, 0.2}, row.Data())
}

func TestNormalizeBoxes(t *testing.T) {
	data := []float32{
		320, 240, 64, 48, 0.9, 0.8,
		0, 640, 640, 0, 0.1, 0.2,
	}
	normalizeBoxes(data, 6, 640, 480)

	assert.InDeltaSlice(t, []float32{
		0.5, 0.5, 0.1, 0.1, 0.9, 0.8,
		0, 640.0 / 480, 1, 0, 0.1, 0.2,
	}, data, 1e-6)

	untouched := []float32{1, 2, 3}
	normalizeBoxes(untouched, 3, 10, 10)
	assert.Equal(t, []float32{1, 2, 3}, untouched)
}

func TestDenseFromMat(t *testing.T) {
	m := gocv.NewMatWithSize(2, 6, gocv.MatTypeCV32F)
	defer m.Close()
	for r := 0; r < 2; r++ {
		for c := 0; c < 6; c++ {
			m.SetFloatAt(r, c, float32(r*6+c))
		}
	}

	out, err := denseFromMat(m)
	require.NoError(t, err)
	assert.Equal(t, []int{2, 6}, []int(out.Shape()))

	data := out.Data().([]float32)
	assert.Equal(t, float32(7), data[7])

	// The tensor must not alias the Mat.
	m.SetFloatAt(1, 1, -1)
	assert.Equal(t, float32(7), data[7])
}

func TestDenseFromMat_Errors(t *testing.T) {
	empty := gocv.NewMat()
	defer empty.Close()
	_, err := denseFromMat(empty)
	assert.Error(t, err)

	bytes := gocv.NewMatWithSize(2, 2, gocv.MatTypeCV8U)
	defer bytes.Close()
	_, err = denseFromMat(bytes)
	assert.Error(t, err)
}

func TestShapeInts(t *testing.T) {
	assert.Equal(t, []int{1, 25200, 85}, shapeInts([]int64{1, 25200, 85}))
}

func TestNewEngine_Errors(t *testing.T) {
	dir := t.TempDir()
	weights := filepath.Join(dir, "model.weights")
	require.NoError(t, os.WriteFile(weights, []byte("not a network"), 0o600))

	tests := []struct {
		name  string
		model config.Model
	}{
		{"unknown engine", config.Model{Engine: "tflite", Weights: weights}},
		{"missing weights", config.Model{Engine: config.EngineONNX, Weights: filepath.Join(dir, "missing.onnx")}},
		{"missing darknet cfg", config.Model{Engine: config.EngineDarknet, Weights: weights, Config: filepath.Join(dir, "missing.cfg")}},
		{"missing classifier", config.Model{Engine: config.EngineClassifier, Weights: filepath.Join(dir, "missing.pb")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := NewEngine(tt.model, zap.NewNop())
			require.Error(t, err)
			assert.Nil(t, engine)
			assert.True(t, errors.Is(err, ErrModelLoad), "expected ErrModelLoad, got %v", err)
		})
	}
}

func TestEngineBuilder_WithoutModel(t *testing.T) {
	_, err := NewEngineBuilder().WithLogger(nil).Build()
	assert.True(t, errors.Is(err, ErrModelLoad))
}

func TestCheckFrame(t *testing.T) {
	frame := gocv.NewMatWithSize(4, 4, gocv.MatTypeCV8UC3)
	defer frame.Close()
	assert.NoError(t, checkFrame(context.Background(), frame))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.True(t, errors.Is(checkFrame(ctx, frame), ErrInference))

	empty := gocv.NewMat()
	defer empty.Close()
	assert.True(t, errors.Is(checkFrame(context.Background(), empty), ErrInference))
}

func TestRecoverInference(t *testing.T) {
	run := func() (err error) {
		defer recoverInference(&err)
		panic("native failure")
	}

	err := run()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInference))
	assert.Contains(t, err.Error(), "native failure")
}
