package capture

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
)

// ImageFile represents one frame of an image sequence.
type ImageFile struct {
	// Path is the path to the image file.
	Path string
	// Frame is the frame number parsed from the file name.
	Frame int
}

// ListFrames finds the frame-N image files of a directory.
//
// Files whose name does not follow the frame-N.ext pattern are ignored.
//
// Arguments:
//   - dir: Directory path containing image files.
//
// Returns:
//   - []ImageFile: The frames sorted by frame number.
//   - error: Error if the directory cannot be read.
func ListFrames(dir string) ([]ImageFile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var frames []ImageFile
	for _, entry := range entries {
		if entry.IsDir() || !IsImageFile(entry.Name()) {
			continue
		}

		ext := filepath.Ext(entry.Name())
		number, ok := strings.CutPrefix(strings.TrimSuffix(entry.Name(), ext), "frame-")
		if !ok {
			continue
		}
		frame, err := strconv.Atoi(number)
		if err != nil {
			continue
		}

		frames = append(frames, ImageFile{
			Path:  filepath.Join(dir, entry.Name()),
			Frame: frame,
		})
	}

	sort.Slice(frames, func(i, j int) bool {
		return frames[i].Frame < frames[j].Frame
	})

	return frames, nil
}

// SequenceSource replays a directory of still frames.
type SequenceSource struct {
	dir    string
	frames []ImageFile
	next   int
}

// OpenSequence opens a directory of frame-N images.
//
// A path naming a single image file opens a sequence of one frame.
//
// Arguments:
//   - dir: The directory holding the frames, or an image file.
//
// Returns:
//   - *SequenceSource: The sequence, positioned on its first frame.
//   - error: An error wrapping ErrDeviceUnavailable if the directory holds no frames.
func OpenSequence(dir string) (*SequenceSource, error) {
	if info, err := os.Stat(dir); err == nil && !info.IsDir() {
		if !IsImageFile(dir) {
			return nil, errors.Wrapf(ErrDeviceUnavailable, "unsupported image file %s", dir)
		}
		return &SequenceSource{dir: dir, frames: []ImageFile{{Path: dir}}}, nil
	}

	frames, err := ListFrames(dir)
	if err != nil {
		return nil, errors.Wrapf(ErrDeviceUnavailable, "read frames: %v", err)
	}
	if len(frames) == 0 {
		return nil, errors.Wrapf(ErrDeviceUnavailable, "no frame-N images in %s", dir)
	}

	return &SequenceSource{dir: dir, frames: frames}, nil
}

// Read decodes the next image into dst.
func (s *SequenceSource) Read(dst *gocv.Mat) error {
	if s.next >= len(s.frames) {
		return ErrEndOfStream
	}

	file := s.frames[s.next]
	s.next++

	img, err := decodeFrame(file.Path)
	if err != nil {
		return errors.Wrapf(ErrEndOfStream, "cannot decode %s: %v", file.Path, err)
	}
	defer img.Close()

	img.CopyTo(dst)
	return nil
}

// decodeFrame reads one still image as a BGR Mat. WebP goes through the webp
// decoder since OpenCV builds do not always include it.
func decodeFrame(path string) (gocv.Mat, error) {
	if strings.EqualFold(filepath.Ext(path), ".webp") {
		f, err := os.Open(path)
		if err != nil {
			return gocv.NewMat(), err
		}
		defer f.Close()

		decoded, err := webp.Decode(f)
		if err != nil {
			return gocv.NewMat(), err
		}
		return gocv.ImageToMatRGB(decoded)
	}

	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		_ = img.Close()
		return gocv.NewMat(), errors.New("empty image")
	}
	return img, nil
}

// Len returns the number of frames in the sequence.
func (s *SequenceSource) Len() int { return len(s.frames) }

// Describe names the source.
func (s *SequenceSource) Describe() string { return s.dir }

// Close ends the sequence. Later reads report ErrEndOfStream.
func (s *SequenceSource) Close() error {
	s.next = len(s.frames)
	return nil
}
