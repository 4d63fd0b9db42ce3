package controller

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nvr-ai/go-detect/capture"
	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/inference"
	"github.com/nvr-ai/go-detect/overlay"
)

// Session bundles everything one detection loop needs.
//
// The controller takes ownership of Source and Display and releases them when
// the loop stops. The Engine stays owned by the caller, which loaded it.
type Session struct {
	ID       uuid.UUID
	Config   config.Config
	Source   capture.Source
	Engine   inference.Engine
	Renderer overlay.Renderer
	Display  overlay.Display
	Logger   *zap.Logger
}

// NewSession creates a session with a fresh ID.
//
// Arguments:
//   - cfg: The validated configuration.
//   - source: The frame source.
//   - engine: The loaded detector.
//   - renderer: Draws detections onto frames.
//   - display: Shows annotated frames and reports key presses.
//   - logger: The session logger. Nil disables logging.
//
// Returns:
//   - *Session: The session.
func NewSession(
	cfg config.Config,
	source capture.Source,
	engine inference.Engine,
	renderer overlay.Renderer,
	display overlay.Display,
	logger *zap.Logger,
) *Session {
	return &Session{
		ID:       uuid.New(),
		Config:   cfg,
		Source:   source,
		Engine:   engine,
		Renderer: renderer,
		Display:  display,
		Logger:   logger,
	}
}

func (s *Session) validate() error {
	switch {
	case s == nil:
		return errors.New("nil session")
	case s.Source == nil:
		return errors.New("session has no frame source")
	case s.Engine == nil:
		return errors.New("session has no engine")
	case s.Renderer == nil:
		return errors.New("session has no renderer")
	case s.Display == nil:
		return errors.New("session has no display")
	}
	return nil
}
