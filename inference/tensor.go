package inference

import (
	"github.com/pkg/errors"
	"gocv.io/x/gocv"
	"gorgonia.org/tensor"
)

// denseFromMat copies a 2-D float32 network output into a (rows, cols) tensor.
//
// The copy is required because the Mat is released right after inference.
func denseFromMat(m gocv.Mat) (*tensor.Dense, error) {
	if m.Empty() {
		return nil, errors.New("empty output")
	}
	if m.Type() != gocv.MatTypeCV32F {
		return nil, errors.Errorf("unexpected output type %v", m.Type())
	}

	data, err := m.DataPtrFloat32()
	if err != nil {
		return nil, errors.Wrap(err, "read output")
	}

	rows, cols := m.Rows(), m.Cols()
	if rows <= 0 || cols <= 0 || rows*cols != len(data) {
		// N-dimensional blobs report -1 rows and cols; flatten them into one row.
		rows, cols = 1, len(data)
	}

	backing := make([]float32, len(data))
	copy(backing, data)

	return tensor.New(tensor.WithShape(rows, cols), tensor.WithBacking(backing)), nil
}

// classifierRow exposes a score vector as a single detection row covering
// the whole frame: centre (0.5, 0.5), size (1, 1) and objectness 1.
func classifierRow(scores []float32) *tensor.Dense {
	row := make([]float32, 0, 5+len(scores))
	row = append(row, 0.5, 0.5, 1, 1, 1)
	row = append(row, scores...)
	return tensor.New(tensor.WithShape(1, len(row)), tensor.WithBacking(row))
}

// normalizeBoxes converts box columns from input pixels to fractions in place.
func normalizeBoxes(data []float32, cols int, width, height float32) {
	if cols < 4 || width <= 0 || height <= 0 {
		return
	}
	for offset := 0; offset+cols <= len(data); offset += cols {
		data[offset] /= width
		data[offset+1] /= height
		data[offset+2] /= width
		data[offset+3] /= height
	}
}

// shapeInts converts a runtime tensor shape into tensor package dimensions.
func shapeInts(dims []int64) []int {
	out := make([]int, len(dims))
	for i, d := range dims {
		out[i] = int(d)
	}
	return out
}
