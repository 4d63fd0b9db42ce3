// Package postprocess - Turns raw detector output into the final detections of a frame.
package postprocess

import (
	"fmt"

	"github.com/nvr-ai/go-detect/images"
)

// Result represents a single detection candidate.
//
// Results are created by the decoder and filtered by non-maximum suppression;
// neither stage mutates a Result after it has been created.
type Result struct {
	// The bounding box of the result in frame pixel coordinates.
	Box images.Rect
	// The confidence score of the result.
	Score float32
	// The predicted class index of the result.
	Class int
}

// Left returns the left edge of the box. It may be negative.
func (r Result) Left() int { return r.Box.X1 }

// Top returns the top edge of the box. It may be negative.
func (r Result) Top() int { return r.Box.Y1 }

// Width returns the width of the box.
func (r Result) Width() int { return r.Box.Width() }

// Height returns the height of the box.
func (r Result) Height() int { return r.Box.Height() }

func (r Result) String() string {
	return fmt.Sprintf("class %d (confidence %.3f): left=%d top=%d width=%d height=%d",
		r.Class, r.Score, r.Left(), r.Top(), r.Width(), r.Height())
}
