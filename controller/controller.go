// Package controller - Runs the capture, detect, suppress, render and display loop.
package controller

import (
	"context"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/capture"
	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/models/postprocess"
	"github.com/nvr-ai/go-detect/profiler"
)

// ErrStopped is returned by Run on a controller that already ran.
var ErrStopped = errors.New("controller stopped")

// State is the lifecycle state of a controller.
type State int32

const (
	// Running is the initial state. The loop keeps processing frames.
	Running State = iota
	// Stopped is terminal. Resources have been released.
	Stopped
)

func (s State) String() string {
	if s == Stopped {
		return "stopped"
	}
	return "running"
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock replaces the wall clock used for frame timing.
func WithClock(clk clock.Clock) Option {
	return func(c *Controller) { c.clock = clk }
}

// WithProfiler records per-stage timings into rp.
func WithProfiler(rp *profiler.RuntimeProfiler) Option {
	return func(c *Controller) { c.profiler = rp }
}

// Controller drives one session until the stream ends or a stop is requested.
type Controller struct {
	session   *Session
	decoder   postprocess.Decoder
	nms       *postprocess.NMSConfig
	cancelKey int
	logger    *zap.Logger
	clock     clock.Clock
	profiler  *profiler.RuntimeProfiler

	state    atomic.Int32
	started  atomic.Bool
	stopping atomic.Bool
	counters *counters
}

// New creates a controller for the session.
//
// Arguments:
//   - session: The session to run. Source, Engine, Renderer and Display are required.
//   - opts: Optional settings.
//
// Returns:
//   - *Controller: The controller, in the Running state.
//   - error: An error if the session is incomplete or its cancellation key is unknown.
func New(session *Session, opts ...Option) (*Controller, error) {
	if err := session.validate(); err != nil {
		return nil, err
	}

	key, err := config.ParseKey(session.Config.Display.CancellationKey)
	if err != nil {
		return nil, err
	}

	det := session.Config.Detection
	c := &Controller{
		session: session,
		decoder: postprocess.Decoder{
			ConfidenceThreshold: det.ConfidenceThreshold,
			NumClasses:          det.NumClasses,
			ScaleByObjectness:   det.ScaleByObjectness,
		},
		nms: &postprocess.NMSConfig{
			IoUThreshold:   det.IoUThreshold,
			ScoreThreshold: det.Score(),
			ClassAware:     det.ClassAware,
		},
		cancelKey: key,
		clock:     clock.New(),
	}
	for _, opt := range opts {
		opt(c)
	}

	logger := session.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	c.logger = logger.With(zap.Stringer("session", session.ID))
	c.counters = newCounters(c.clock)

	return c, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Stop requests the loop to stop after the current frame. It may be called
// from any goroutine, before or during Run.
func (c *Controller) Stop() {
	c.stopping.Store(true)
}

// Run processes frames until the stream ends, the cancellation key is
// pressed, Stop is called, ctx is cancelled or loop.max_frames is reached.
//
// Frames whose inference or decoding fails are logged and skipped. The source
// and display are released on every exit path, panics included.
//
// Returns:
//   - error: nil on a normal stop, ErrStopped when the controller already ran,
//     or the combined errors from releasing the source and display.
func (c *Controller) Run(ctx context.Context) (err error) {
	if !c.started.CompareAndSwap(false, true) {
		return ErrStopped
	}

	defer func() {
		c.state.Store(int32(Stopped))
		err = multierr.Append(err, c.release())
	}()

	frame := gocv.NewMat()
	defer frame.Close()

	loop := c.session.Config.Loop
	c.logger.Info("detection loop started",
		zap.String("source", c.session.Source.Describe()),
		zap.Int("max_frames", loop.MaxFrames),
	)

	for index := 0; ; index++ {
		if reason, stop := c.shouldStop(ctx); stop {
			c.logger.Info("detection loop stopped", zap.String("reason", reason), zap.Int("frames", index))
			return nil
		}
		if loop.MaxFrames > 0 && index >= loop.MaxFrames {
			c.logger.Info("detection loop stopped", zap.String("reason", "max frames"), zap.Int("frames", index))
			return nil
		}

		start := c.clock.Now()

		if readErr := c.read(&frame); readErr != nil {
			fields := []zap.Field{zap.Int("frames", index)}
			if !errors.Is(readErr, capture.ErrEndOfStream) {
				fields = append(fields, zap.Error(readErr))
			}
			c.logger.Info("frame source ended", fields...)
			return nil
		}
		c.counters.read.Inc()

		switch {
		case frame.Empty():
			c.counters.skipped.Inc()
			c.logger.Debug("empty frame skipped", zap.Int("frame", index))
		case !c.process(ctx, index, &frame):
			c.counters.skipped.Inc()
		}

		// Skipped frames poll too: the window only pumps events inside WaitKey.
		if elapsed := c.clock.Since(start); loop.FrameBudget > 0 && elapsed > loop.FrameBudget {
			c.logger.Warn("frame over budget",
				zap.Int("frame", index),
				zap.Duration("elapsed", elapsed),
				zap.Duration("budget", loop.FrameBudget),
			)
		}

		if c.session.Display.PollKey() == c.cancelKey {
			c.logger.Info("detection loop stopped", zap.String("reason", "cancellation key"), zap.Int("frames", index+1))
			return nil
		}
	}
}

func (c *Controller) shouldStop(ctx context.Context) (string, bool) {
	if c.stopping.Load() {
		return "stop requested", true
	}
	if ctx.Err() != nil {
		return "context done", true
	}
	return "", false
}

func (c *Controller) read(frame *gocv.Mat) error {
	defer c.time("read")()
	return c.session.Source.Read(frame)
}

// process runs one frame through detection, rendering and display. It
// returns false when the frame was skipped.
func (c *Controller) process(ctx context.Context, index int, frame *gocv.Mat) bool {
	done := c.time("inference")
	outputs, err := c.session.Engine.Infer(ctx, *frame)
	done()
	if err != nil {
		c.logger.Warn("frame skipped", zap.Int("frame", index), zap.String("kind", "inference"), zap.Error(err))
		return false
	}

	done = c.time("decode")
	candidates, err := c.decoder.Decode(outputs, frame.Cols(), frame.Rows())
	done()
	if err != nil {
		c.logger.Warn("frame skipped", zap.Int("frame", index), zap.String("kind", "decode"), zap.Error(err))
		return false
	}

	done = c.time("suppress")
	detections := postprocess.ApplyGreedyNMS(candidates, c.nms)
	done()

	if ce := c.logger.Check(zap.DebugLevel, "frame detections"); ce != nil {
		ce.Write(zap.Int("frame", index), zap.Int("candidates", len(candidates)), zap.Int("detections", len(detections)))
	}

	done = c.time("render")
	c.session.Renderer.Draw(frame, detections)
	done()

	done = c.time("display")
	if err := c.session.Display.Show(*frame); err != nil {
		c.logger.Warn("display failed", zap.Int("frame", index), zap.Error(err))
	}
	done()

	c.counters.frameDone(len(detections))
	return true
}

// time starts a profiler operation, or does nothing without a profiler.
func (c *Controller) time(stage string) func() {
	if c.profiler == nil {
		return func() {}
	}
	return c.profiler.StartOperation(stage)
}

// release closes the source and the display. Both are attempted even if the
// first fails.
func (c *Controller) release() error {
	err := multierr.Combine(
		errors.Wrap(c.session.Source.Close(), "close frame source"),
		errors.Wrap(c.session.Display.Close(), "close display"),
	)

	stats := c.Stats()
	c.logger.Info("detection loop released",
		zap.Int64("frames_read", stats.FramesRead),
		zap.Int64("frames_processed", stats.FramesProcessed),
		zap.Int64("frames_skipped", stats.FramesSkipped),
		zap.Int64("detections", stats.Detections),
		zap.Error(err),
	)
	return err
}
