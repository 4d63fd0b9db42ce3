// Package capture - Frame sources feeding the detection loop.
package capture

import (
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/config"
)

var (
	// ErrDeviceUnavailable is returned when a source cannot be opened.
	ErrDeviceUnavailable = errors.New("capture device unavailable")
	// ErrEndOfStream is returned by Read when no more frames will arrive.
	ErrEndOfStream = errors.New("end of stream")
)

// Source delivers frames in order.
type Source interface {
	// Read decodes the next frame into dst, reusing its buffer.
	//
	// A nil error with an empty dst means the source produced no image for
	// this tick; the caller should try again. ErrEndOfStream means the
	// source is exhausted.
	Read(dst *gocv.Mat) error
	// Close releases the device or files behind the source.
	Close() error
	// Describe names the source for logs.
	Describe() string
}

// Supported file extensions.
var (
	supportedVideoExtensions = []string{".mp4", ".avi", ".mov", ".mkv"}
	supportedImageExtensions = []string{".jpg", ".jpeg", ".png", ".bmp", ".webp"}
)

// IsVideoFile reports whether the path has a video file extension.
func IsVideoFile(path string) bool {
	return hasExtension(path, supportedVideoExtensions)
}

// IsImageFile reports whether the path has an image file extension.
func IsImageFile(path string) bool {
	return hasExtension(path, supportedImageExtensions)
}

func hasExtension(path string, extensions []string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Open opens the source selected by the configuration.
//
// An image sequence directory takes precedence over a video file, which takes
// precedence over the camera.
//
// Arguments:
//   - cfg: The capture configuration.
//   - logger: Receives the camera resolution that was applied. May be nil.
//
// Returns:
//   - Source: The opened source.
//   - error: An error wrapping ErrDeviceUnavailable if it cannot be opened.
func Open(cfg config.Capture, logger *zap.Logger) (Source, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	var (
		src Source
		err error
	)
	switch {
	case cfg.Frames != "":
		src, err = OpenSequence(cfg.Frames)
	case cfg.Video != "":
		src, err = OpenFile(cfg.Video)
	default:
		var device *VideoSource
		if device, err = OpenDevice(cfg.CameraIndex); err == nil && cfg.Resolution != "" {
			err = applyResolution(device, cfg.Resolution, logger)
		}
		src = device
	}
	if err != nil {
		return nil, err
	}
	return src, nil
}

// applyResolution sets the camera resolution and closes the device when the
// value is invalid.
func applyResolution(device *VideoSource, value string, logger *zap.Logger) error {
	applied, err := device.SetResolution(value)
	if err != nil {
		_ = device.Close()
		return err
	}

	delivered := device.Resolution()
	fields := []zap.Field{
		zap.String("source", device.Describe()),
		zap.String("requested", value),
		zap.Stringer("applied", applied),
		zap.Int("width", delivered.Width),
		zap.Int("height", delivered.Height),
	}
	if applied.Name != strings.ToLower(strings.TrimSpace(value)) {
		logger.Warn("camera resolution fallback", fields...)
		return nil
	}
	logger.Info("camera resolution", fields...)
	return nil
}
