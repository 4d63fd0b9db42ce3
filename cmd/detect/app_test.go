package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-detect/capture"
	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/overlay"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"detect"}, args...))
	return out.String(), err
}

func TestCheck_FlagsOverrideFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "detect.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
detection:
  confidence_threshold: 0.3
  iou_threshold: 0.45
model:
  engine: onnx
  weights: yolov8n.onnx
  input_width: 640
  input_height: 640
display:
  enabled: true
`), 0o600))

	out, err := runApp(t,
		"--config", path,
		"--confidence", "0.6",
		"--headless",
		"--cancel-key", "q",
		"--frame-budget", "40ms",
		"--max-frames", "12",
		"--check",
	)
	require.NoError(t, err)

	var cfg config.Config
	require.NoError(t, yaml.Unmarshal([]byte(out), &cfg))
	assert.InDelta(t, 0.6, cfg.Detection.ConfidenceThreshold, 1e-6)
	assert.InDelta(t, 0.45, cfg.Detection.IoUThreshold, 1e-6)
	assert.Equal(t, config.EngineONNX, cfg.Model.Engine)
	assert.Equal(t, 640, cfg.Model.InputWidth)
	assert.False(t, cfg.Display.Enabled)
	assert.Equal(t, "q", cfg.Display.CancellationKey)
	assert.Equal(t, 40*time.Millisecond, cfg.Loop.FrameBudget)
	assert.Equal(t, 12, cfg.Loop.MaxFrames)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestCheck_InvalidConfiguration(t *testing.T) {
	_, err := runApp(t, "--weights", "m.onnx", "--engine", "onnx", "--confidence", "1.5", "--check")
	require.Error(t, err)
	assert.True(t, errors.Is(err, config.ErrInvalid))

	_, err = runApp(t, "--engine", "darknet", "--check")
	assert.True(t, errors.Is(err, config.ErrInvalid), "darknet needs cfg and weights")
}

func TestCheck_MissingConfigFile(t *testing.T) {
	_, err := runApp(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "--check")
	assert.Error(t, err)
}

func writeTestImage(t *testing.T, path string) {
	t.Helper()
	img := gocv.NewMatWithSize(32, 32, gocv.MatTypeCV8UC3)
	defer img.Close()
	require.True(t, gocv.IMWrite(path, img))
}

func TestRun_MissingModelIsFatal(t *testing.T) {
	dir := t.TempDir()
	frame := filepath.Join(dir, "frame-1.jpg")
	writeTestImage(t, frame)

	_, err := runApp(t,
		"--engine", "onnx",
		"--weights", filepath.Join(dir, "missing.onnx"),
		"--frames", frame,
		"--headless",
		"--log-level", "error",
	)
	require.Error(t, err)
}

func TestRun_MissingSourceIsFatal(t *testing.T) {
	dir := t.TempDir()
	weights := filepath.Join(dir, "model.onnx")
	require.NoError(t, os.WriteFile(weights, []byte("x"), 0o600))

	_, err := runApp(t,
		"--engine", "onnx",
		"--weights", weights,
		"--frames", filepath.Join(dir, "empty"),
		"--headless",
		"--log-level", "error",
	)
	require.Error(t, err)
	assert.True(t, errors.Is(err, capture.ErrDeviceUnavailable))
}

func TestNewDisplay(t *testing.T) {
	_, ok := newDisplay(config.Display{Enabled: false}).(*overlay.Headless)
	assert.True(t, ok)

	rec, ok := newDisplay(config.Display{Record: filepath.Join(t.TempDir(), "out.avi"), RecordFPS: 10}).(*overlay.Recorder)
	require.True(t, ok)
	assert.NoError(t, rec.Close())
}
