package images

import (
	"crypto/md5"
	"fmt"

	"gocv.io/x/gocv"
)

// ComputeMatChecksum generates a deterministic checksum of a Mat's pixels.
//
// Arguments:
// - mat: The Mat to compute checksum for.
//
// Returns:
// - A hex-encoded MD5 checksum string, "empty" for an empty Mat, or
// "unreadable" when the pixels are not continuous 8-bit data.
//
// Example:
//
// ```go
//
//	before := ComputeMatChecksum(frame)
//	renderer.Draw(&frame, detections)
//	changed := before != ComputeMatChecksum(frame)
//
// ```
func ComputeMatChecksum(mat gocv.Mat) string {
	if mat.Empty() {
		return "empty"
	}

	data, err := mat.DataPtrUint8()
	if err != nil {
		return "unreadable"
	}
	hash := md5.New()
	hash.Write(data)
	return fmt.Sprintf("%dx%d:%x", mat.Cols(), mat.Rows(), hash.Sum(nil))
}
