// Package images - Geometry and frame utilities shared by the detection pipeline.
package images

import "image"

// Rect is a lightweight axis-aligned box in pixel coordinates.
//
// X2,Y2 are exclusive (like image.Rectangle). A box decoded near a frame edge
// may carry negative X1/Y1; use Clamp before handing it to a drawing call.
type Rect struct {
	X1, Y1, X2, Y2 int
}

// RectFromXYWH builds a Rect from its left, top, width and height.
//
// Negative extents are treated as zero so that Width and Height are never negative.
//
// Arguments:
//   - left: The left edge in pixels.
//   - top: The top edge in pixels.
//   - width: The width in pixels.
//   - height: The height in pixels.
//
// Returns:
//   - Rect: The box spanning (left, top) to (left+width, top+height).
func RectFromXYWH(left, top, width, height int) Rect {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return Rect{X1: left, Y1: top, X2: left + width, Y2: top + height}
}

// FromRectangle converts an image.Rectangle into a Rect.
func FromRectangle(r image.Rectangle) Rect {
	return Rect{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

// Width returns the horizontal extent of the box, never negative.
func (r Rect) Width() int {
	return max(r.X2-r.X1, 0)
}

// Height returns the vertical extent of the box, never negative.
func (r Rect) Height() int {
	return max(r.Y2-r.Y1, 0)
}

// Area returns the area of the box in pixels.
func (r Rect) Area() int {
	return r.Width() * r.Height()
}

// Empty reports whether the box covers no pixels.
func (r Rect) Empty() bool {
	return r.Width() == 0 || r.Height() == 0
}

// Clamp returns the part of r that lies inside bounds.
//
// The result is empty (and anchored at bounds' origin) when r lies entirely
// outside of bounds.
//
// Arguments:
//   - bounds: The rectangle to clamp to, usually the frame (0, 0, W, H).
//
// Returns:
//   - Rect: The clamped box.
func (r Rect) Clamp(bounds Rect) Rect {
	out := Rect{
		X1: max(r.X1, bounds.X1),
		Y1: max(r.Y1, bounds.Y1),
		X2: min(r.X2, bounds.X2),
		Y2: min(r.Y2, bounds.Y2),
	}
	if out.X2 <= out.X1 || out.Y2 <= out.Y1 {
		return Rect{X1: bounds.X1, Y1: bounds.Y1, X2: bounds.X1, Y2: bounds.Y1}
	}
	return out
}

// ToRectangle converts the box into an image.Rectangle for drawing calls.
func (r Rect) ToRectangle() image.Rectangle {
	return image.Rect(r.X1, r.Y1, r.X2, r.Y2)
}

// CalculateIoU computes the Intersection over Union of two boxes.
//
//	IoU = Area of Intersection / (Area(A) + Area(B) - Area of Intersection)
//
// A value of 1.0 means the boxes are identical and 0.0 means they do not
// overlap. Boxes that only touch along an edge have no intersection. When the
// union is empty (both boxes have zero area) the result is 0.
//
// Arguments:
//   - r: The first box.
//   - o: The other box to compare against.
//
// Returns:
//   - float32: A value between 0.0 and 1.0 representing the IoU score.
//
// Example Usage:
// ```go
//
//	rect1 := Rect{X1: 0, Y1: 0, X2: 10, Y2: 10}
//	rect2 := Rect{X1: 5, Y1: 5, X2: 15, Y2: 15}
//
//	iouScore := CalculateIoU(rect1, rect2) // 25 / (100 + 100 - 25) = 0.142857
//
// ```
func CalculateIoU(r, o Rect) float32 {
	ix1 := max(r.X1, o.X1)
	iy1 := max(r.Y1, o.Y1)
	ix2 := min(r.X2, o.X2)
	iy2 := min(r.Y2, o.Y2)

	interW := ix2 - ix1
	interH := iy2 - iy1
	if interW <= 0 || interH <= 0 {
		return 0.0
	}
	interArea := interW * interH

	unionArea := r.Area() + o.Area() - interArea
	if unionArea <= 0 {
		return 0.0
	}

	// Cast before dividing; integer division would almost always yield 0.
	return float32(interArea) / float32(unionArea)
}
