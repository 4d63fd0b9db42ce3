// Package overlay - Draws detections onto frames and presents them.
package overlay

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/nvr-ai/go-detect/images"
	"github.com/nvr-ai/go-detect/models"
	"github.com/nvr-ai/go-detect/models/postprocess"
)

// Renderer draws a detection set onto a frame in place.
type Renderer interface {
	Draw(img *gocv.Mat, detections []postprocess.Result)
}

// palette holds the box colours, picked by class index.
var palette = []color.RGBA{
	{R: 0, G: 255, B: 0, A: 0},
	{R: 255, G: 0, B: 0, A: 0},
	{R: 0, G: 0, B: 255, A: 0},
	{R: 255, G: 255, B: 0, A: 0},
	{R: 255, G: 0, B: 255, A: 0},
	{R: 0, G: 255, B: 255, A: 0},
	{R: 255, G: 128, B: 0, A: 0},
	{R: 128, G: 0, B: 255, A: 0},
}

// ColorFor returns the colour used for a class.
func ColorFor(class int) color.RGBA {
	if class < 0 {
		class = -class
	}
	return palette[class%len(palette)]
}

// BoxRenderer draws one rectangle per detection with a "label score" caption.
type BoxRenderer struct {
	// Classes resolves class indices to labels. Nil renders "class N".
	Classes *models.OutputClassSet
	// Thickness is the rectangle line width in pixels.
	Thickness int
	// FontScale scales the caption font.
	FontScale float64
}

// NewBoxRenderer creates a renderer using the given labels.
func NewBoxRenderer(classes *models.OutputClassSet) *BoxRenderer {
	return &BoxRenderer{
		Classes:   classes,
		Thickness: 2,
		FontScale: 1.2,
	}
}

// Draw draws every detection onto img.
//
// Boxes are clamped to the frame; a box entirely outside the frame is not
// drawn. An empty detection set leaves the frame untouched.
func (r *BoxRenderer) Draw(img *gocv.Mat, detections []postprocess.Result) {
	if img == nil || img.Empty() {
		return
	}
	frame := images.Rect{X1: 0, Y1: 0, X2: img.Cols(), Y2: img.Rows()}

	for _, d := range detections {
		box := d.Box.Clamp(frame)
		if box.Empty() {
			continue
		}

		c := ColorFor(d.Class)
		gocv.Rectangle(img, box.ToRectangle(), c, r.Thickness)

		label := fmt.Sprintf("%s %.2f", r.Classes.Name(d.Class), d.Score)
		gocv.PutText(img, label, captionOrigin(box), gocv.FontHersheyPlain, r.FontScale, c, r.Thickness)
	}
}

// captionOrigin places the caption just above the box, or inside it when the
// box touches the top edge.
func captionOrigin(box images.Rect) image.Point {
	const lineHeight = 14
	y := box.Y1 - 4
	if y < lineHeight {
		y = box.Y1 + lineHeight
	}
	return image.Pt(box.X1, y)
}
