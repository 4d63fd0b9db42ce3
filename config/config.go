// Package config - Runtime configuration of the detection loop.
//
// Values are resolved in three layers: Default, then an optional YAML file
// (Load), then command line overrides applied by the caller. Validate must be
// called after the last layer.
package config

import (
	"bytes"
	"io"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-detect/images"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Model engines understood by the inference package.
const (
	EngineDarknet    = "darknet"
	EngineONNX       = "onnx"
	EngineClassifier = "classifier"
)

// Engines lists the supported values of model.engine.
var Engines = []string{EngineDarknet, EngineONNX, EngineClassifier}

// Execution providers for the onnx engine.
const (
	ProviderCPU    = "cpu"
	ProviderCUDA   = "cuda"
	ProviderCoreML = "coreml"
)

// Config is the complete configuration of a detection session.
type Config struct {
	Detection Detection `yaml:"detection"`
	Model     Model     `yaml:"model"`
	Capture   Capture   `yaml:"capture"`
	Display   Display   `yaml:"display"`
	Loop      Loop      `yaml:"loop"`
	Log       Log       `yaml:"log"`
}

// Detection holds the decoding and suppression parameters.
type Detection struct {
	// ConfidenceThreshold discards raw predictions scoring at or below it.
	ConfidenceThreshold float32 `yaml:"confidence_threshold"`
	// IoUThreshold is the overlap above which suppression removes a box.
	IoUThreshold float32 `yaml:"iou_threshold"`
	// ScoreThreshold drops candidates before suppression. Defaults to ConfidenceThreshold.
	ScoreThreshold *float32 `yaml:"score_threshold,omitempty"`
	// ClassAware limits suppression to boxes of the same class.
	ClassAware bool `yaml:"class_aware"`
	// NumClasses, when positive, is enforced on every output tensor.
	NumClasses int `yaml:"num_classes"`
	// ScaleByObjectness multiplies the class score by the objectness column.
	ScaleByObjectness bool `yaml:"scale_by_objectness"`
}

// Score returns the effective pre-suppression score threshold.
func (d Detection) Score() float32 {
	if d.ScoreThreshold != nil {
		return *d.ScoreThreshold
	}
	return d.ConfidenceThreshold
}

// Model describes the detector and how to load it.
type Model struct {
	// Engine is one of Engines.
	Engine string `yaml:"engine"`
	// Config is the network description (darknet .cfg). Unused by other engines.
	Config string `yaml:"config"`
	// Weights is the model file (.weights, .onnx or .pb).
	Weights string `yaml:"weights"`
	// InputWidth and InputHeight are the network input size in pixels.
	InputWidth  int `yaml:"input_width"`
	InputHeight int `yaml:"input_height"`
	// Classes is a built-in class set name (coco, yolo, voc) or a names file.
	Classes string `yaml:"classes"`
	// BoxesInPixels marks onnx outputs whose boxes are in input pixels instead of fractions.
	BoxesInPixels bool `yaml:"boxes_in_pixels"`
	// ONNXLibrary is the path to the onnxruntime shared library.
	ONNXLibrary string `yaml:"onnx_library"`
	// Provider is the onnx execution provider (cpu, cuda, coreml).
	Provider string `yaml:"provider"`
	// Threads bounds the intra-op thread pool of the onnx engine. 0 lets the runtime decide.
	Threads int `yaml:"threads"`
}

// Capture selects the frame source. Frames wins over Video, Video over CameraIndex.
type Capture struct {
	CameraIndex int    `yaml:"camera_index"`
	Video       string `yaml:"video"`
	Frames      string `yaml:"frames"`
	// Resolution requests a camera frame size: a preset such as 720p or WIDTHxHEIGHT.
	// Ignored for files and sequences.
	Resolution string `yaml:"resolution"`
}

// Display configures the output surface.
type Display struct {
	// Enabled opens a window. When false the loop runs headless.
	Enabled bool `yaml:"enabled"`
	// WindowTitle is the title of the window.
	WindowTitle string `yaml:"window_title"`
	// CancellationKey is the key name that stops the loop, see ParseKey.
	CancellationKey string `yaml:"cancellation_key"`
	// PollInterval is how long each iteration waits for a key press.
	PollInterval time.Duration `yaml:"poll_interval"`
	// Record, when set, writes the annotated stream to this video file.
	Record string `yaml:"record"`
	// RecordFPS is the frame rate written to the recording.
	RecordFPS float64 `yaml:"record_fps"`
}

// Loop holds controller tuning.
type Loop struct {
	// FrameBudget logs a warning for iterations slower than this. 0 disables the check.
	FrameBudget time.Duration `yaml:"frame_budget"`
	// ReportInterval enables periodic profiler reports. 0 disables them.
	ReportInterval time.Duration `yaml:"report_interval"`
	// MaxFrames stops the loop after this many frames. 0 runs until end of stream.
	MaxFrames int `yaml:"max_frames"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	// File, when set, receives the log through a rotating writer.
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Default returns the configuration used when nothing else is specified.
func Default() Config {
	return Config{
		Detection: Detection{
			ConfidenceThreshold: 0.5,
			IoUThreshold:        0.4,
		},
		Model: Model{
			Engine:      EngineDarknet,
			InputWidth:  416,
			InputHeight: 416,
			Provider:    ProviderCPU,
		},
		Display: Display{
			Enabled:         true,
			WindowTitle:     "Real-time object detection",
			CancellationKey: "ESC",
			PollInterval:    time.Millisecond,
			RecordFPS:       25,
		},
		Log: Log{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  100,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
	}
}

// Load reads a YAML file on top of the defaults.
//
// An empty path returns the defaults. Keys missing from the file keep their
// default value. The result is not validated.
//
// Arguments:
//   - path: The path to the YAML file.
//
// Returns:
//   - Config: The merged configuration.
//   - error: An error if the file cannot be read or parsed.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "read config")
	}

	if err := Parse(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parse config %s", path)
	}

	return cfg, nil
}

// Parse decodes YAML into cfg, rejecting unknown keys.
func Parse(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate reports the first problem found in the configuration.
func (c Config) Validate() error {
	d := c.Detection
	if err := unitInterval("detection.confidence_threshold", d.ConfidenceThreshold); err != nil {
		return err
	}
	if err := unitInterval("detection.iou_threshold", d.IoUThreshold); err != nil {
		return err
	}
	if err := unitInterval("detection.score_threshold", d.Score()); err != nil {
		return err
	}
	if d.NumClasses < 0 {
		return errors.Wrapf(ErrInvalid, "detection.num_classes must not be negative, got %d", d.NumClasses)
	}

	if err := c.Model.validate(); err != nil {
		return err
	}

	if c.Capture.CameraIndex < 0 {
		return errors.Wrapf(ErrInvalid, "capture.camera_index must not be negative, got %d", c.Capture.CameraIndex)
	}
	if c.Capture.Resolution != "" {
		if _, err := images.ParseResolution(c.Capture.Resolution); err != nil {
			return errors.Wrapf(ErrInvalid, "capture.resolution: %v", err)
		}
	}

	if _, err := ParseKey(c.Display.CancellationKey); err != nil {
		return err
	}
	if c.Display.Enabled && c.Display.PollInterval < time.Millisecond {
		return errors.Wrapf(ErrInvalid, "display.poll_interval must be at least 1ms, got %s", c.Display.PollInterval)
	}
	if c.Display.Record != "" && c.Display.RecordFPS <= 0 {
		return errors.Wrapf(ErrInvalid, "display.record_fps must be positive, got %v", c.Display.RecordFPS)
	}

	if c.Loop.FrameBudget < 0 || c.Loop.ReportInterval < 0 || c.Loop.MaxFrames < 0 {
		return errors.Wrap(ErrInvalid, "loop settings must not be negative")
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		return errors.Wrapf(ErrInvalid, "log.level: %v", err)
	}
	switch c.Log.Format {
	case "console", "json":
	default:
		return errors.Wrapf(ErrInvalid, "log.format must be console or json, got %q", c.Log.Format)
	}

	return nil
}

func (m Model) validate() error {
	switch m.Engine {
	case EngineDarknet:
		if m.Config == "" || m.Weights == "" {
			return errors.Wrap(ErrInvalid, "darknet engine needs model.config and model.weights")
		}
	case EngineONNX, EngineClassifier:
		if m.Weights == "" {
			return errors.Wrapf(ErrInvalid, "%s engine needs model.weights", m.Engine)
		}
	default:
		return errors.Wrapf(ErrInvalid, "unknown model.engine %q, expected one of %v", m.Engine, Engines)
	}

	if m.InputWidth <= 0 || m.InputHeight <= 0 {
		return errors.Wrapf(ErrInvalid, "model input size must be positive, got %dx%d", m.InputWidth, m.InputHeight)
	}

	switch m.Provider {
	case ProviderCPU, ProviderCUDA, ProviderCoreML:
	default:
		return errors.Wrapf(ErrInvalid, "unknown model.provider %q", m.Provider)
	}
	if m.Threads < 0 {
		return errors.Wrapf(ErrInvalid, "model.threads must not be negative, got %d", m.Threads)
	}

	return nil
}

func unitInterval(name string, v float32) error {
	// Written so that NaN fails too.
	if !(v >= 0 && v <= 1) {
		return errors.Wrapf(ErrInvalid, "%s must be within [0, 1], got %v", name, v)
	}
	return nil
}
