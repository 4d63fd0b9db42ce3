package controller

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/atomic"
)

// fpsWindow is the span over which the frame rate is measured.
const fpsWindow = time.Second

// Stats is a snapshot of the loop counters.
type Stats struct {
	// FramesRead counts every frame returned by the source, empty ones included.
	FramesRead int64
	// FramesProcessed counts frames that were rendered and shown.
	FramesProcessed int64
	// FramesSkipped counts empty frames and frames dropped on inference or decode errors.
	FramesSkipped int64
	// Detections counts boxes that survived suppression.
	Detections int64
	// FPS is the number of frames processed during the last second.
	FPS float64
}

// counters are updated by the loop and read from any goroutine.
type counters struct {
	clock clock.Clock

	read       atomic.Int64
	processed  atomic.Int64
	skipped    atomic.Int64
	detections atomic.Int64

	mu     sync.Mutex
	recent []time.Time
}

func newCounters(clk clock.Clock) *counters {
	return &counters{clock: clk}
}

// frameDone records a processed frame and its detection count.
func (c *counters) frameDone(detections int) {
	c.processed.Inc()
	c.detections.Add(int64(detections))

	now := c.clock.Now()
	c.mu.Lock()
	c.recent = append(c.recent, now)
	c.trim(now)
	c.mu.Unlock()
}

// trim drops timestamps outside the window. Callers hold mu.
func (c *counters) trim(now time.Time) {
	cutoff := now.Add(-fpsWindow)
	i := 0
	for i < len(c.recent) && !c.recent[i].After(cutoff) {
		i++
	}
	c.recent = c.recent[i:]
}

func (c *counters) snapshot() Stats {
	now := c.clock.Now()
	c.mu.Lock()
	c.trim(now)
	fps := float64(len(c.recent)) / fpsWindow.Seconds()
	c.mu.Unlock()

	return Stats{
		FramesRead:      c.read.Load(),
		FramesProcessed: c.processed.Load(),
		FramesSkipped:   c.skipped.Load(),
		Detections:      c.detections.Load(),
		FPS:             fps,
	}
}

// Stats returns the current loop counters. It is safe to call while Run is
// in progress.
func (c *Controller) Stats() Stats {
	return c.counters.snapshot()
}

// CollectMetrics exposes the loop counters to the profiler.
func (c *Controller) CollectMetrics() map[string]float64 {
	s := c.Stats()
	return map[string]float64{
		"frames_read":      float64(s.FramesRead),
		"frames_processed": float64(s.FramesProcessed),
		"frames_skipped":   float64(s.FramesSkipped),
		"detections":       float64(s.Detections),
		"fps":              s.FPS,
	}
}
