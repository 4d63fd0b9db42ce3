// Package inference - Inference engine interface and implementations.
package inference

import (
	"context"
	"fmt"
	"os"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/config"
)

var (
	// ErrInference is wrapped by every failure of a single Infer call.
	ErrInference = errors.New("inference failed")
	// ErrModelLoad is wrapped by every failure to load a model.
	ErrModelLoad = errors.New("model load failed")
)

// Engine runs a detector on one frame at a time.
//
// Infer returns raw output tensors whose rows hold cx, cy, w, h as fractions
// of the frame, an objectness value and one score per class.
type Engine interface {
	Infer(ctx context.Context, frame gocv.Mat) ([]*tensor.Dense, error)
	Close() error
}

// NewEngine loads the model described by cfg.
//
// Arguments:
//   - cfg: The model configuration.
//   - logger: The logger for load-time messages.
//
// Returns:
//   - Engine: The loaded engine. The caller must Close it.
//   - error: An error wrapping ErrModelLoad if the model cannot be loaded.
func NewEngine(cfg config.Model, logger *zap.Logger) (Engine, error) {
	return NewEngineBuilder().WithLogger(logger).WithModel(cfg).Build()
}

// EngineBuilder assembles an engine with a fluent API.
type EngineBuilder struct {
	model  *config.Model
	logger *zap.Logger
	err    error
}

// NewEngineBuilder creates a new engine builder.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func NewEngineBuilder() *EngineBuilder {
	return &EngineBuilder{logger: zap.NewNop()}
}

// WithLogger sets the logger for the engine.
func (b *EngineBuilder) WithLogger(logger *zap.Logger) *EngineBuilder {
	if logger != nil {
		b.logger = logger
	}
	return b
}

// WithModel sets the model for the engine and checks its files exist.
//
// Arguments:
//   - cfg: The model configuration.
//
// Returns:
//   - *EngineBuilder: The engine builder.
func (b *EngineBuilder) WithModel(cfg config.Model) *EngineBuilder {
	if b.HasError() {
		return b
	}

	files := []string{cfg.Weights}
	if EngineType(cfg.Engine) == EngineDarknet {
		files = append(files, cfg.Config)
	}
	for _, f := range files {
		if _, err := os.Stat(f); err != nil {
			b.err = errors.Wrapf(ErrModelLoad, "%s model file: %v", cfg.Engine, err)
			return b
		}
	}

	b.model = &cfg
	return b
}

// HasError checks if the engine builder has errors.
//
// Returns:
//   - bool: True if there are errors, false otherwise.
func (b *EngineBuilder) HasError() bool {
	return b.err != nil
}

// Build loads the model.
//
// Returns:
//   - Engine: The engine.
//   - error: An error wrapping ErrModelLoad if any step failed.
func (b *EngineBuilder) Build() (Engine, error) {
	if b.HasError() {
		return nil, b.err
	}
	if b.model == nil {
		return nil, errors.Wrap(ErrModelLoad, "model not configured")
	}

	var (
		engine Engine
		err    error
	)
	switch EngineType(b.model.Engine) {
	case EngineDarknet:
		engine, err = newDarknetEngine(*b.model)
	case EngineONNX:
		engine, err = newONNXEngine(*b.model)
	case EngineClassifier:
		engine, err = newClassifierEngine(*b.model)
	default:
		return nil, errors.Wrapf(ErrModelLoad, "unknown engine %q, expected one of %v", b.model.Engine, Engines)
	}
	if err != nil {
		return nil, err
	}

	b.logger.Info("model loaded",
		zap.String("engine", b.model.Engine),
		zap.String("weights", b.model.Weights),
	)
	return engine, nil
}

// recoverInference converts a panic raised while running a network into an
// ErrInference. It must be deferred directly.
func recoverInference(err *error) {
	if r := recover(); r != nil {
		*err = errors.Wrapf(ErrInference, "panic: %v", r)
	}
}

// checkFrame rejects calls whose context is done or whose frame is empty.
func checkFrame(ctx context.Context, frame gocv.Mat) error {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(ErrInference, err.Error())
	}
	if frame.Empty() {
		return errors.Wrap(ErrInference, "empty frame")
	}
	return nil
}

func inferenceError(stage string, err error) error {
	return errors.Wrap(ErrInference, fmt.Sprintf("%s: %v", stage, err))
}
