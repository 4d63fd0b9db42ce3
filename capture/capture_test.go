package capture

import (
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/chai2010/webp"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/config"
	"github.com/nvr-ai/go-detect/images"
)

// writeFrames writes solid frames named frame-<n>.png whose blue channel holds n.
func writeFrames(t *testing.T, dir string, numbers ...int) {
	t.Helper()
	for _, n := range numbers {
		mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(float64(n), 0, 0, 0), 24, 32, gocv.MatTypeCV8UC3)
		path := filepath.Join(dir, "frame-"+strconv.Itoa(n)+".png")
		require.True(t, gocv.IMWrite(path, mat), "write %s", path)
		require.NoError(t, mat.Close())
	}
}

func TestListFrames(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, 10, 2, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "thumbnail.png"), []byte("x"), 0o600))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "frame-99.png"), 0o700))

	frames, err := ListFrames(dir)
	require.NoError(t, err)
	require.Len(t, frames, 3)
	assert.Equal(t, []int{1, 2, 10}, []int{frames[0].Frame, frames[1].Frame, frames[2].Frame})
	assert.Equal(t, filepath.Join(dir, "frame-10.png"), frames[2].Path)
}

func TestSequenceSource_ReadsInOrderThenEnds(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, 3, 1, 2)

	src, err := OpenSequence(dir)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, 3, src.Len())

	frame := gocv.NewMat()
	defer frame.Close()

	for _, want := range []uint8{1, 2, 3} {
		require.NoError(t, src.Read(&frame))
		require.False(t, frame.Empty())
		assert.Equal(t, 32, frame.Cols())
		assert.Equal(t, 24, frame.Rows())
		assert.Equal(t, want, frame.GetVecbAt(0, 0)[0])
	}

	err = src.Read(&frame)
	assert.True(t, errors.Is(err, ErrEndOfStream))
}

func TestSequenceSource_CorruptFrameEndsStream(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, 1)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "frame-2.jpg"), []byte("not a jpeg"), 0o600))

	src, err := OpenSequence(dir)
	require.NoError(t, err)

	frame := gocv.NewMat()
	defer frame.Close()

	require.NoError(t, src.Read(&frame))
	err = src.Read(&frame)
	assert.True(t, errors.Is(err, ErrEndOfStream))
}

func TestSequenceSource_CloseEndsStream(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, 1, 2)

	src, err := OpenSequence(dir)
	require.NoError(t, err)
	require.NoError(t, src.Close())

	frame := gocv.NewMat()
	defer frame.Close()
	assert.True(t, errors.Is(src.Read(&frame), ErrEndOfStream))
}

func TestOpenSequence_SingleImage(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, 7)

	src, err := OpenSequence(filepath.Join(dir, "frame-7.png"))
	require.NoError(t, err)
	assert.Equal(t, 1, src.Len())

	frame := gocv.NewMat()
	defer frame.Close()
	require.NoError(t, src.Read(&frame))
	assert.Equal(t, uint8(7), frame.GetVecbAt(0, 0)[0])
	assert.True(t, errors.Is(src.Read(&frame), ErrEndOfStream))

	notes := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(notes, []byte("x"), 0o600))
	_, err = OpenSequence(notes)
	assert.True(t, errors.Is(err, ErrDeviceUnavailable))
}

func TestSequenceSource_WebP(t *testing.T) {
	dir := t.TempDir()
	img := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 16; x++ {
			img.Set(x, y, color.RGBA{R: 200, G: 10, B: 0, A: 255})
		}
	}
	f, err := os.Create(filepath.Join(dir, "frame-1.webp"))
	require.NoError(t, err)
	require.NoError(t, webp.Encode(f, img, &webp.Options{Lossless: true}))
	require.NoError(t, f.Close())

	src, err := OpenSequence(dir)
	require.NoError(t, err)
	require.Equal(t, 1, src.Len())

	frame := gocv.NewMat()
	defer frame.Close()
	require.NoError(t, src.Read(&frame))
	assert.Equal(t, 16, frame.Cols())
	assert.Equal(t, 8, frame.Rows())
	px := frame.GetVecbAt(4, 4)
	assert.Equal(t, []uint8{0, 10, 200}, []uint8{px[0], px[1], px[2]}, "BGR order")
}

func TestOpenSequence_Unavailable(t *testing.T) {
	_, err := OpenSequence(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.Is(err, ErrDeviceUnavailable))

	_, err = OpenSequence(t.TempDir())
	assert.True(t, errors.Is(err, ErrDeviceUnavailable))
}

func TestOpenFile_Unavailable(t *testing.T) {
	_, err := OpenFile(filepath.Join(t.TempDir(), "missing.mp4"))
	assert.True(t, errors.Is(err, ErrDeviceUnavailable))

	_, err = OpenFile("clip.txt")
	assert.True(t, errors.Is(err, ErrDeviceUnavailable))
}

func TestOpenDevice_InvalidIndex(t *testing.T) {
	_, err := OpenDevice(-1)
	assert.True(t, errors.Is(err, ErrDeviceUnavailable))
}

func TestOpen_PrefersSequence(t *testing.T) {
	dir := t.TempDir()
	writeFrames(t, dir, 1)

	src, err := Open(config.Capture{Frames: dir, Video: "ignored.mp4"}, nil)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, dir, src.Describe())
}

func TestVideoSource_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "clip.avi")
	writer, err := gocv.VideoWriterFile(path, "MJPG", 10, 32, 24, true)
	require.NoError(t, err)
	if !writer.IsOpened() {
		t.Skip("MJPG writer unavailable in this OpenCV build")
	}

	for i := 0; i < 5; i++ {
		mat := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 255, 0), 24, 32, gocv.MatTypeCV8UC3)
		require.NoError(t, writer.Write(mat))
		require.NoError(t, mat.Close())
	}
	require.NoError(t, writer.Close())

	src, err := OpenFile(path)
	require.NoError(t, err)
	defer src.Close()
	assert.Equal(t, 5, src.FrameCount())
	assert.Equal(t, images.Pixels{Width: 32, Height: 24}, src.Resolution())

	frame := gocv.NewMat()
	defer frame.Close()

	read := 0
	for {
		err := src.Read(&frame)
		if errors.Is(err, ErrEndOfStream) {
			break
		}
		require.NoError(t, err)
		if !frame.Empty() {
			read++
		}
	}
	assert.Equal(t, 5, read)
	assert.NoError(t, src.Close())
	assert.NoError(t, src.Close(), "closing twice is a no-op")
}

func TestFallbackResolution(t *testing.T) {
	custom, err := images.ParseResolution("1000x700")
	require.NoError(t, err)

	preset, ok := fallbackResolution(custom, images.Pixels{Width: 640, Height: 480})
	require.True(t, ok)
	assert.Equal(t, "svga", preset.Name)

	_, ok = fallbackResolution(custom, custom.Pixels)
	assert.False(t, ok, "delivered as requested")

	_, ok = fallbackResolution(images.Resolutions["720p"], images.Pixels{Width: 640, Height: 480})
	assert.False(t, ok, "presets are not retried")

	tiny, err := images.ParseResolution("100x100")
	require.NoError(t, err)
	_, ok = fallbackResolution(tiny, images.Pixels{Width: 640, Height: 480})
	assert.False(t, ok, "no preset fits")
}
