package inference

import (
	"image"

	"github.com/nfnt/resize"
	"github.com/pkg/errors"
)

// PrepareInput fills a planar RGB float tensor from an image.
//
// The image is resized to width x height with bilinear interpolation and each
// channel is scaled to [0, 1]. The destination is laid out as
// [red plane, green plane, blue plane].
//
// Arguments:
//   - img: The image to prepare.
//   - width: The network input width.
//   - height: The network input height.
//   - dst: The destination tensor data to populate.
//
// Returns:
//   - error: An error if the destination is too small.
func PrepareInput(img image.Image, width, height int, dst []float32) error {
	channelSize := width * height
	if width <= 0 || height <= 0 {
		return errors.Errorf("invalid input size %dx%d", width, height)
	}
	if len(dst) < channelSize*3 {
		return errors.Errorf("destination tensor only holds %d floats, needs %d "+
			"(make sure it's the right shape!)", len(dst), channelSize*3)
	}
	red := dst[0:channelSize]
	green := dst[channelSize : channelSize*2]
	blue := dst[channelSize*2 : channelSize*3]

	bounds := img.Bounds()
	if bounds.Dx() != width || bounds.Dy() != height {
		img = resize.Resize(uint(width), uint(height), img, resize.Bilinear)
		bounds = img.Bounds()
	}

	i := 0
	for y := bounds.Min.Y; y < bounds.Min.Y+height; y++ {
		for x := bounds.Min.X; x < bounds.Min.X+width; x++ {
			r, g, b, _ := img.At(x, y).RGBA()
			red[i] = float32(r>>8) / 255.0
			green[i] = float32(g>>8) / 255.0
			blue[i] = float32(b>>8) / 255.0
			i++
		}
	}
	return nil
}
