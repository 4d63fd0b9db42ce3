package overlay

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gocv.io/x/gocv"
)

// NoKey is returned by PollKey when no key was pressed.
const NoKey = -1

// Display presents annotated frames and reports key presses.
type Display interface {
	// Show presents a frame.
	Show(img gocv.Mat) error
	// PollKey waits briefly for a key press and returns its code, or NoKey.
	PollKey() int
	// Close releases the display.
	Close() error
}

// Window shows frames in a native window.
type Window struct {
	window *gocv.Window
	waitMS int
}

// NewWindow opens a window.
//
// Arguments:
//   - title: The window title.
//   - pollInterval: How long PollKey waits. Rounded up to whole milliseconds,
//     never below 1ms since 0 would block until a key is pressed.
//
// Returns:
//   - *Window: The window.
func NewWindow(title string, pollInterval time.Duration) *Window {
	waitMS := int((pollInterval + time.Millisecond - 1) / time.Millisecond)
	if waitMS < 1 {
		waitMS = 1
	}
	return &Window{
		window: gocv.NewWindow(title),
		waitMS: waitMS,
	}
}

// Show presents a frame.
func (w *Window) Show(img gocv.Mat) error {
	w.window.IMShow(img)
	return nil
}

// PollKey returns the key pressed during the poll interval.
func (w *Window) PollKey() int {
	key := w.window.WaitKey(w.waitMS)
	if key < 0 {
		return NoKey
	}
	// Some backends report modifier bits above the key code.
	return key & 0xff
}

// Close closes the window.
func (w *Window) Close() error {
	return w.window.Close()
}

// Headless discards frames. It is used when no display is available.
type Headless struct {
	shown int
}

// NewHeadless creates a display that shows nothing.
func NewHeadless() *Headless { return &Headless{} }

// Show counts the frame.
func (h *Headless) Show(gocv.Mat) error {
	h.shown++
	return nil
}

// PollKey never reports a key.
func (h *Headless) PollKey() int { return NoKey }

// Close does nothing.
func (h *Headless) Close() error { return nil }

// Shown returns how many frames were shown.
func (h *Headless) Shown() int { return h.shown }

// Recorder writes every shown frame to a video file, then forwards it to
// another display.
type Recorder struct {
	next   Display
	path   string
	fps    float64
	writer *gocv.VideoWriter
	frames int
}

// NewRecorder creates a recorder in front of next.
//
// The file is opened on the first frame, when the frame size is known. The
// codec follows the extension: mp4v for .mp4, MJPG otherwise.
func NewRecorder(path string, fps float64, next Display) *Recorder {
	if next == nil {
		next = NewHeadless()
	}
	return &Recorder{next: next, path: path, fps: fps}
}

func codecFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".mp4", ".mov":
		return "mp4v"
	default:
		return "MJPG"
	}
}

// Show writes the frame, then forwards it.
func (r *Recorder) Show(img gocv.Mat) error {
	if r.writer == nil {
		writer, err := gocv.VideoWriterFile(r.path, codecFor(r.path), r.fps, img.Cols(), img.Rows(), true)
		if err != nil {
			return errors.Wrapf(err, "open recording %s", r.path)
		}
		if !writer.IsOpened() {
			_ = writer.Close()
			return errors.Errorf("cannot open recording %s", r.path)
		}
		r.writer = writer
	}

	if err := r.writer.Write(img); err != nil {
		return errors.Wrapf(err, "write frame %d to %s", r.frames, r.path)
	}
	r.frames++

	return r.next.Show(img)
}

// PollKey forwards to the wrapped display.
func (r *Recorder) PollKey() int { return r.next.PollKey() }

// Frames returns how many frames were written.
func (r *Recorder) Frames() int { return r.frames }

// Close finalises the file and closes the wrapped display.
func (r *Recorder) Close() error {
	var err error
	if r.writer != nil {
		err = multierr.Append(err, r.writer.Close())
		r.writer = nil
	}
	return multierr.Append(err, r.next.Close())
}
