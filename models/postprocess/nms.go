package postprocess

import (
	"sort"

	"github.com/nvr-ai/go-detect/images"
)

// DefaultIoUThreshold is the overlap above which a weaker box is suppressed.
const DefaultIoUThreshold = 0.4

// NMSConfig defines parameters for Non-Maximum Suppression.
type NMSConfig struct {
	IoUThreshold   float32 // Overlap threshold for suppression.
	ScoreThreshold float32 // Candidates scoring below this are dropped first.
	ClassAware     bool    // If true, suppress only within the same class.
}

// DefaultNMSConfig returns the class-agnostic configuration used by the loop.
func DefaultNMSConfig() *NMSConfig {
	return &NMSConfig{
		IoUThreshold:   DefaultIoUThreshold,
		ScoreThreshold: 0.5,
	}
}

// ApplyGreedyNMS performs standard greedy Non-Maximum Suppression.
//
// Candidates below the score threshold are dropped, the rest are sorted by
// descending score (ties keep their input order) and the best remaining
// candidate repeatedly suppresses every other remaining candidate whose IoU
// with it exceeds the IoU threshold. Unless ClassAware is set, a box may
// suppress a box of a different class.
//
// Arguments:
//   - candidates: Slice of candidates in any order. It is not modified.
//   - config: NMS configuration. A nil config uses DefaultNMSConfig.
//
// Returns:
//   - The surviving candidates ordered by descending score. Never nil.
func ApplyGreedyNMS(candidates []Result, config *NMSConfig) []Result {
	if config == nil {
		config = DefaultNMSConfig()
	}

	detections := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		if c.Score < config.ScoreThreshold {
			continue
		}
		detections = append(detections, c)
	}

	sort.SliceStable(detections, func(i, j int) bool {
		return detections[i].Score > detections[j].Score
	})

	n := len(detections)
	filtered := make([]Result, 0, n)
	used := make([]bool, n)

	for i := 0; i < n; i++ {
		if used[i] {
			continue
		}

		anchor := detections[i]
		filtered = append(filtered, anchor)
		used[i] = true

		for j := i + 1; j < n; j++ {
			if used[j] {
				continue
			}
			if config.ClassAware && anchor.Class != detections[j].Class {
				continue
			}
			if images.CalculateIoU(anchor.Box, detections[j].Box) > config.IoUThreshold {
				used[j] = true
			}
		}
	}

	return filtered
}
