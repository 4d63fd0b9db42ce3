package capture

import (
	"fmt"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/images"
)

// maxEmptyReads is how many consecutive empty frames a device may deliver
// before it is considered gone.
const maxEmptyReads = 100

// VideoSource reads frames from a camera or a video file through OpenCV.
type VideoSource struct {
	capture    *gocv.VideoCapture
	name       string
	emptyReads int
	frameCount int
	closed     bool
}

// OpenDevice opens a camera by index.
//
// Arguments:
//   - index: The zero-based camera index.
//
// Returns:
//   - *VideoSource: The opened camera.
//   - error: An error wrapping ErrDeviceUnavailable if the camera cannot be opened.
func OpenDevice(index int) (*VideoSource, error) {
	if index < 0 {
		return nil, errors.Wrapf(ErrDeviceUnavailable, "invalid camera index %d", index)
	}
	return open(index, fmt.Sprintf("camera %d", index))
}

// OpenFile opens a video file.
//
// Arguments:
//   - path: The path to the video file.
//
// Returns:
//   - *VideoSource: The opened file.
//   - error: An error wrapping ErrDeviceUnavailable if the file cannot be opened.
func OpenFile(path string) (*VideoSource, error) {
	if !IsVideoFile(path) {
		return nil, errors.Wrapf(ErrDeviceUnavailable, "unsupported video file %s", path)
	}
	return open(path, path)
}

func open(device interface{}, name string) (*VideoSource, error) {
	capture, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, errors.Wrapf(ErrDeviceUnavailable, "%s: %v", name, err)
	}
	if !capture.IsOpened() {
		_ = capture.Close()
		return nil, errors.Wrapf(ErrDeviceUnavailable, "%s is not open", name)
	}

	return &VideoSource{
		capture:    capture,
		name:       name,
		frameCount: int(capture.Get(gocv.VideoCaptureFrameCount)),
	}, nil
}

// Read decodes the next frame into dst.
func (s *VideoSource) Read(dst *gocv.Mat) error {
	if s.closed {
		return ErrEndOfStream
	}
	if ok := s.capture.Read(dst); !ok {
		return errors.Wrapf(ErrEndOfStream, "cannot read %s", s.name)
	}

	if dst.Empty() {
		s.emptyReads++
		if s.emptyReads >= maxEmptyReads {
			return errors.Wrapf(ErrEndOfStream, "%s delivered %d empty frames", s.name, s.emptyReads)
		}
		return nil
	}
	s.emptyReads = 0

	return nil
}

// SetResolution asks the device for a frame size. A device that does not
// deliver a non-preset size is asked again for the largest preset that fits
// inside it; the size actually delivered is returned by Resolution.
//
// Arguments:
//   - value: A preset name such as 720p, or WIDTHxHEIGHT.
//
// Returns:
//   - images.Resolution: The size last asked of the device.
//   - error: An error if the value cannot be parsed.
func (s *VideoSource) SetResolution(value string) (images.Resolution, error) {
	res, err := images.ParseResolution(value)
	if err != nil {
		return images.Resolution{}, errors.Wrap(ErrDeviceUnavailable, err.Error())
	}

	s.request(res.Pixels)
	if fallback, ok := fallbackResolution(res, s.Resolution()); ok {
		s.request(fallback.Pixels)
		return fallback, nil
	}
	return res, nil
}

func (s *VideoSource) request(size images.Pixels) {
	s.capture.Set(gocv.VideoCaptureFrameWidth, float64(size.Width))
	s.capture.Set(gocv.VideoCaptureFrameHeight, float64(size.Height))
}

// fallbackResolution picks the preset to try when the device delivers
// something other than the requested size. Rejected presets have no fallback.
func fallbackResolution(requested images.Resolution, delivered images.Pixels) (images.Resolution, bool) {
	if delivered == requested.Pixels {
		return images.Resolution{}, false
	}
	preset, ok := images.GetHighestResolutionUnderDimensions(requested.Pixels.Width, requested.Pixels.Height)
	if !ok || preset.Pixels == requested.Pixels {
		return images.Resolution{}, false
	}
	return preset, true
}

// Resolution returns the frame size currently delivered by the source.
func (s *VideoSource) Resolution() images.Pixels {
	return images.Pixels{
		Width:  int(s.capture.Get(gocv.VideoCaptureFrameWidth)),
		Height: int(s.capture.Get(gocv.VideoCaptureFrameHeight)),
	}
}

// FrameCount returns the number of frames in a video file, or 0 for cameras.
func (s *VideoSource) FrameCount() int {
	if s.frameCount < 0 {
		return 0
	}
	return s.frameCount
}

// Describe names the source.
func (s *VideoSource) Describe() string { return s.name }

// Close releases the device. Closing twice is a no-op.
func (s *VideoSource) Close() error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.capture.Close()
}
