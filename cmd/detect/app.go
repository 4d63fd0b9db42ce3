package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/go-detect/capture"
	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/controller"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/logging"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/overlay"
	"github.com/nvr-ai/go-detect/profiler"
)

const (
	// Flags.
	flagConfig      = "config"
	flagCheck       = "check"
	flagEngine      = "engine"
	flagModelConfig = "model-config"
	flagWeights     = "weights"
	flagClasses     = "classes"
	flagInputWidth  = "input-width"
	flagInputHeight = "input-height"
	flagProvider    = "provider"
	flagONNXLibrary = "onnx-library"
	flagConfidence  = "confidence"
	flagIoU         = "iou"
	flagClassAware  = "class-aware"
	flagCamera      = "camera"
	flagVideo       = "video"
	flagFrames      = "frames"
	flagResolution  = "resolution"
	flagHeadless    = "headless"
	flagRecord      = "record"
	flagCancelKey   = "cancel-key"
	flagMaxFrames   = "max-frames"
	flagFrameBudget = "frame-budget"
	flagReport      = "report-interval"
	flagLogLevel    = "log-level"
	flagLogFormat   = "log-format"
	flagLogFile     = "log-file"
)

func newApp() *cli.App {
	return &cli.App{
		Name:  "detect",
		Usage: "run an object detector over a camera, video or image sequence and display the boxes",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    flagConfig,
				Aliases: []string{"c"},
				Usage:   "YAML configuration file; flags override its values",
			},
			&cli.BoolFlag{
				Name:  flagCheck,
				Usage: "validate the configuration, print it and exit",
			},
			&cli.StringFlag{Name: flagEngine, Usage: "detector engine (darknet, onnx, classifier)"},
			&cli.StringFlag{Name: flagModelConfig, Usage: "darknet network description (.cfg)"},
			&cli.StringFlag{Name: flagWeights, Usage: "model weights (.weights, .onnx or .pb)"},
			&cli.StringFlag{Name: flagClasses, Usage: "class set (coco, yolo, voc) or a names file"},
			&cli.IntFlag{Name: flagInputWidth, Usage: "network input width"},
			&cli.IntFlag{Name: flagInputHeight, Usage: "network input height"},
			&cli.StringFlag{Name: flagProvider, Usage: "onnx execution provider (cpu, cuda, coreml)"},
			&cli.StringFlag{Name: flagONNXLibrary, Usage: "path to the onnxruntime shared library"},
			&cli.Float64Flag{Name: flagConfidence, Usage: "confidence threshold"},
			&cli.Float64Flag{Name: flagIoU, Usage: "suppression IoU threshold"},
			&cli.BoolFlag{Name: flagClassAware, Usage: "only suppress boxes of the same class"},
			&cli.IntFlag{Name: flagCamera, Usage: "camera device index"},
			&cli.StringFlag{Name: flagVideo, Usage: "video file to read instead of a camera"},
			&cli.StringFlag{Name: flagFrames, Usage: "directory of frame-N images, or a single image"},
			&cli.StringFlag{Name: flagResolution, Usage: "camera frame size (vga, 720p, 1080p, ... or WIDTHxHEIGHT)"},
			&cli.BoolFlag{Name: flagHeadless, Usage: "do not open a window"},
			&cli.StringFlag{Name: flagRecord, Usage: "write the annotated stream to this video file"},
			&cli.StringFlag{Name: flagCancelKey, Usage: "key that stops the loop (ESC, SPACE, q, ...)"},
			&cli.IntFlag{Name: flagMaxFrames, Usage: "stop after this many frames"},
			&cli.DurationFlag{Name: flagFrameBudget, Usage: "warn about frames slower than this"},
			&cli.DurationFlag{Name: flagReport, Usage: "emit a runtime report at this interval"},
			&cli.StringFlag{Name: flagLogLevel, Usage: "log level (debug, info, warn, error)"},
			&cli.StringFlag{Name: flagLogFormat, Usage: "log format (console, json)"},
			&cli.StringFlag{Name: flagLogFile, Usage: "also write the log to this rotating file"},
		},
		Action: runAction,
	}
}

// resolveConfig layers defaults, the config file and the flags, then validates.
func resolveConfig(c *cli.Context) (config.Config, error) {
	cfg, err := config.Load(c.String(flagConfig))
	if err != nil {
		return cfg, err
	}
	applyFlags(c, &cfg)
	return cfg, cfg.Validate()
}

// applyFlags copies every flag given on the command line into cfg.
func applyFlags(c *cli.Context, cfg *config.Config) {
	setString := func(name string, dst *string) {
		if c.IsSet(name) {
			*dst = c.String(name)
		}
	}
	setInt := func(name string, dst *int) {
		if c.IsSet(name) {
			*dst = c.Int(name)
		}
	}

	setString(flagEngine, &cfg.Model.Engine)
	setString(flagModelConfig, &cfg.Model.Config)
	setString(flagWeights, &cfg.Model.Weights)
	setString(flagClasses, &cfg.Model.Classes)
	setInt(flagInputWidth, &cfg.Model.InputWidth)
	setInt(flagInputHeight, &cfg.Model.InputHeight)
	setString(flagProvider, &cfg.Model.Provider)
	setString(flagONNXLibrary, &cfg.Model.ONNXLibrary)

	if c.IsSet(flagConfidence) {
		cfg.Detection.ConfidenceThreshold = float32(c.Float64(flagConfidence))
	}
	if c.IsSet(flagIoU) {
		cfg.Detection.IoUThreshold = float32(c.Float64(flagIoU))
	}
	if c.IsSet(flagClassAware) {
		cfg.Detection.ClassAware = c.Bool(flagClassAware)
	}

	setInt(flagCamera, &cfg.Capture.CameraIndex)
	setString(flagVideo, &cfg.Capture.Video)
	setString(flagFrames, &cfg.Capture.Frames)
	setString(flagResolution, &cfg.Capture.Resolution)

	if c.IsSet(flagHeadless) {
		cfg.Display.Enabled = !c.Bool(flagHeadless)
	}
	setString(flagRecord, &cfg.Display.Record)
	setString(flagCancelKey, &cfg.Display.CancellationKey)

	setInt(flagMaxFrames, &cfg.Loop.MaxFrames)
	if c.IsSet(flagFrameBudget) {
		cfg.Loop.FrameBudget = c.Duration(flagFrameBudget)
	}
	if c.IsSet(flagReport) {
		cfg.Loop.ReportInterval = c.Duration(flagReport)
	}

	setString(flagLogLevel, &cfg.Log.Level)
	setString(flagLogFormat, &cfg.Log.Format)
	setString(flagLogFile, &cfg.Log.File)
}

func runAction(c *cli.Context) error {
	cfg, err := resolveConfig(c)
	if err != nil {
		return err
	}

	if c.Bool(flagCheck) {
		enc := yaml.NewEncoder(c.App.Writer)
		enc.SetIndent(2)
		return multierr.Append(enc.Encode(cfg), enc.Close())
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, cfg, logger)
}

// run loads every component, runs the loop and releases the engine.
func run(ctx context.Context, cfg config.Config, logger *zap.Logger) (err error) {
	classes, err := models.ResolveClassSet(cfg.Model.Classes)
	if err != nil {
		return errors.Wrap(err, "resolve classes")
	}

	source, err := capture.Open(cfg.Capture, logger)
	if err != nil {
		return err
	}

	engine, err := inference.NewEngine(cfg.Model, logger)
	if err != nil {
		return multierr.Append(err, source.Close())
	}
	defer func() {
		err = multierr.Append(err, errors.Wrap(engine.Close(), "close engine"))
	}()

	display := newDisplay(cfg.Display)
	session := controller.NewSession(cfg, source, engine, overlay.NewBoxRenderer(classes), display, logger)

	var (
		opts []controller.Option
		rp   *profiler.RuntimeProfiler
	)
	if cfg.Loop.ReportInterval > 0 {
		rp = profiler.NewRuntimeProfiler(profiler.ProfilingOptions{
			ReportInterval: cfg.Loop.ReportInterval,
			Logger:         logger,
		})
		opts = append(opts, controller.WithProfiler(rp))
	}

	ctl, err := controller.New(session, opts...)
	if err != nil {
		return multierr.Combine(err, source.Close(), display.Close())
	}

	if rp != nil {
		rp.AddMetricsCollector(ctl)
		rp.Start()
		defer rp.Stop()
	}

	logger.Info("session ready",
		zap.Stringer("session", session.ID),
		zap.String("source", source.Describe()),
		zap.String("engine", cfg.Model.Engine),
		zap.Int("classes", classes.Len()),
	)

	return ctl.Run(ctx)
}

func newDisplay(cfg config.Display) overlay.Display {
	var display overlay.Display = overlay.NewHeadless()
	if cfg.Enabled {
		display = overlay.NewWindow(cfg.WindowTitle, cfg.PollInterval)
	}
	if cfg.Record != "" {
		display = overlay.NewRecorder(cfg.Record, cfg.RecordFPS, display)
	}
	return display
}
