package postprocess

import (
	"github.com/chewxy/math32"
	"github.com/pkg/errors"
	"gorgonia.org/tensor"

	"github.com/nvr-ai/go-detect/images"
)

// ErrDecode is returned when a raw output tensor does not have the expected layout.
var ErrDecode = errors.New("malformed detector output")

// boxColumns is the number of leading columns before the class scores:
// cx, cy, w, h and objectness.
const boxColumns = 5

// Decoder converts raw detector rows into candidates.
//
// Each row holds cx, cy, w, h as fractions of the frame, an objectness value and
// one score per class.
type Decoder struct {
	// ConfidenceThreshold discards rows whose confidence is less than or equal to it.
	ConfidenceThreshold float32
	// NumClasses, when positive, is the number of class columns every tensor must carry.
	NumClasses int
	// ScaleByObjectness multiplies the best class score by the objectness value.
	// Disabled by default: the best class score alone is compared to the threshold.
	ScaleByObjectness bool
}

// Decode converts raw output tensors into candidates using the default decoder.
//
// Arguments:
//   - outputs: The raw output tensors of the detector.
//   - frameWidth: The width of the frame the detector saw, in pixels.
//   - frameHeight: The height of the frame the detector saw, in pixels.
//   - threshold: The confidence threshold.
//
// Returns:
//   - []Result: The candidates in input order.
//   - error: An error wrapping ErrDecode if a tensor is malformed.
func Decode(outputs []*tensor.Dense, frameWidth, frameHeight int, threshold float32) ([]Result, error) {
	return Decoder{ConfidenceThreshold: threshold}.Decode(outputs, frameWidth, frameHeight)
}

// Decode converts raw output tensors into candidates.
//
// Candidates are produced in the order of the tensors and, within a tensor, in
// row order. Nothing is sorted. A malformed tensor fails the whole call so the
// caller can skip the frame.
//
// Arguments:
//   - outputs: The raw output tensors of the detector.
//   - frameWidth: The width of the frame the detector saw, in pixels.
//   - frameHeight: The height of the frame the detector saw, in pixels.
//
// Returns:
//   - []Result: The candidates in input order.
//   - error: An error wrapping ErrDecode if a tensor is malformed.
func (d Decoder) Decode(outputs []*tensor.Dense, frameWidth, frameHeight int) ([]Result, error) {
	if frameWidth <= 0 || frameHeight <= 0 {
		return nil, errors.Wrapf(ErrDecode, "invalid frame size %dx%d", frameWidth, frameHeight)
	}

	results := make([]Result, 0)
	for i, output := range outputs {
		data, rows, cols, err := d.layout(output)
		if err != nil {
			return nil, errors.Wrapf(err, "output %d", i)
		}

		for row := 0; row < rows; row++ {
			offset := row * cols
			if result, ok := d.DecodeRow(data[offset:offset+cols], frameWidth, frameHeight); ok {
				results = append(results, result)
			}
		}
	}

	return results, nil
}

// DecodeRow converts a single prediction row into a candidate.
//
// Arguments:
//   - row: cx, cy, w, h, objectness followed by the class scores.
//   - frameWidth: The frame width in pixels.
//   - frameHeight: The frame height in pixels.
//
// Returns:
//   - Result: The candidate.
//   - bool: False when the row does not pass the confidence threshold.
func (d Decoder) DecodeRow(row []float32, frameWidth, frameHeight int) (Result, bool) {
	if len(row) <= boxColumns {
		return Result{}, false
	}

	// NaN scores take no part in the argmax; the first index wins ties.
	scores := row[boxColumns:]
	classID := -1
	var confidence float32
	for j, score := range scores {
		if math32.IsNaN(score) {
			continue
		}
		if classID < 0 || score > confidence {
			confidence = score
			classID = j
		}
	}
	if classID < 0 {
		return Result{}, false
	}

	if d.ScaleByObjectness {
		confidence *= row[4]
	}

	// A NaN objectness never passes.
	if math32.IsNaN(confidence) || confidence <= d.ConfidenceThreshold {
		return Result{}, false
	}

	fw := float32(frameWidth)
	fh := float32(frameHeight)
	centerX := int(row[0] * fw)
	centerY := int(row[1] * fh)
	width := int(row[2] * fw)
	height := int(row[3] * fh)

	return Result{
		Box:   images.RectFromXYWH(centerX-width/2, centerY-height/2, width, height),
		Score: confidence,
		Class: classID,
	}, true
}

// layout validates a tensor and returns its backing data as rows x cols.
func (d Decoder) layout(t *tensor.Dense) ([]float32, int, int, error) {
	if t == nil {
		return nil, 0, 0, errors.Wrap(ErrDecode, "nil tensor")
	}

	var rows, cols int
	shape := t.Shape()
	switch len(shape) {
	case 2:
		rows, cols = shape[0], shape[1]
	case 3:
		if shape[0] != 1 {
			return nil, 0, 0, errors.Wrapf(ErrDecode, "unsupported batch size %d", shape[0])
		}
		rows, cols = shape[1], shape[2]
	default:
		return nil, 0, 0, errors.Wrapf(ErrDecode, "unsupported shape %v", shape)
	}

	if cols <= boxColumns {
		return nil, 0, 0, errors.Wrapf(ErrDecode, "expected at least %d columns, got %d", boxColumns+1, cols)
	}
	if d.NumClasses > 0 && cols-boxColumns != d.NumClasses {
		return nil, 0, 0, errors.Wrapf(ErrDecode, "expected %d classes, got %d", d.NumClasses, cols-boxColumns)
	}

	var data []float32
	switch backing := t.Data().(type) {
	case []float32:
		data = backing
	case []float64:
		data = make([]float32, len(backing))
		for i, v := range backing {
			data[i] = float32(v)
		}
	default:
		return nil, 0, 0, errors.Wrapf(ErrDecode, "unsupported element type %v", t.Dtype())
	}

	if len(data) != rows*cols {
		return nil, 0, 0, errors.Wrapf(ErrDecode, "backing holds %d values, shape needs %d", len(data), rows*cols)
	}

	return data, rows, cols, nil
}
