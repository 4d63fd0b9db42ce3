// Package profiler - Stage timings, custom metrics and periodic runtime reports.
package profiler

import (
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

// MetricsCollector defines the interface for collecting custom metrics.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// RuntimeProfiler tracks per-operation timings and custom metrics and emits
// a periodic structured report.
//
// It is safe for concurrent use. The report runs on its own goroutine between
// Start and Stop; everything else is recorded by the caller's goroutine.
type RuntimeProfiler struct {
	reportInterval time.Duration
	maxSamples     int
	clock          clock.Clock
	logger         *zap.Logger

	mu        sync.Mutex
	wg        sync.WaitGroup
	done      chan struct{}
	running   bool
	startTime time.Time
	reports   int

	customMetrics  map[string]*MetricTracker
	collectors     []MetricsCollector
	operationTimes map[string]*TimeTracker
}

// MetricTracker keeps a bounded window of values for a custom metric.
type MetricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

// TimeTracker keeps a bounded window of durations for an operation.
type TimeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to emit status reports (default: 2s).
	ReportInterval time.Duration
	// MaxSamples bounds the window kept per metric (default: 600).
	MaxSamples int
	// Clock drives timings and the report ticker (default: wall clock).
	Clock clock.Clock
	// Logger receives the reports (default: no-op).
	Logger *zap.Logger
}

// MetricSummary summarises the retained window of one metric.
type MetricSummary struct {
	Avg     float64
	StdDev  float64
	Min     float64
	Max     float64
	Samples int
	Count   int64
}

// OperationSummary summarises the retained window of one operation.
type OperationSummary struct {
	Avg     time.Duration
	P95     time.Duration
	Min     time.Duration
	Max     time.Duration
	Samples int
	Count   int64
}

// Snapshot is a point-in-time view of the profiler.
type Snapshot struct {
	Uptime     time.Duration
	Goroutines int
	HeapAlloc  uint64
	NumGC      uint32
	Metrics    map[string]MetricSummary
	Operations map[string]OperationSummary
}

// NewRuntimeProfiler creates a new runtime profiler with the specified options.
//
// Arguments:
// - opts: Configuration options for the profiler.
//
// Returns:
// - A configured RuntimeProfiler instance.
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.ReportInterval <= 0 {
		opts.ReportInterval = 2 * time.Second
	}
	if opts.MaxSamples <= 0 {
		opts.MaxSamples = 600
	}
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		maxSamples:     opts.MaxSamples,
		clock:          opts.Clock,
		logger:         opts.Logger.Named("profiler"),
		startTime:      opts.Clock.Now(),
		customMetrics:  make(map[string]*MetricTracker),
		operationTimes: make(map[string]*TimeTracker),
	}
}

// Start begins periodic reporting. Calling Start on a running profiler does
// nothing.
func (rp *RuntimeProfiler) Start() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running {
		return
	}
	rp.running = true
	rp.startTime = rp.clock.Now()
	rp.done = make(chan struct{})

	ticker := rp.clock.Ticker(rp.reportInterval)
	done := rp.done

	rp.wg.Add(1)
	go func() {
		defer rp.wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				rp.Report()
			}
		}
	}()
}

// Stop stops reporting and waits for the reporter to exit.
func (rp *RuntimeProfiler) Stop() {
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	close(rp.done)
	rp.mu.Unlock()

	rp.wg.Wait()
}

// AddMetricsCollector registers a collector polled on every report.
//
// Arguments:
// - collector: An implementation of MetricsCollector interface.
func (rp *RuntimeProfiler) AddMetricsCollector(collector MetricsCollector) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.collectors = append(rp.collectors, collector)
}

// RecordMetric records a custom metric value.
//
// Arguments:
// - name: The name of the metric.
// - value: The metric value to record.
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.recordMetricLocked(name, value)
}

func (rp *RuntimeProfiler) recordMetricLocked(name string, value float64) {
	tracker, exists := rp.customMetrics[name]
	if !exists {
		tracker = &MetricTracker{
			values: make([]float64, 0, rp.maxSamples),
			min:    value,
			max:    value,
		}
		rp.customMetrics[name] = tracker
	}

	tracker.values = append(tracker.values, value)
	tracker.sum += value
	if len(tracker.values) > rp.maxSamples {
		tracker.sum -= tracker.values[0]
		tracker.values = tracker.values[1:]
	}
	tracker.count++

	if value < tracker.min {
		tracker.min = value
	}
	if value > tracker.max {
		tracker.max = value
	}
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track.
//
// Returns:
// - A function to call when the operation completes.
//
// Example:
//
// ```go
//
//	done := rp.StartOperation("inference")
//	outputs, err := engine.Infer(ctx, frame)
//	done()
//
// ```
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	start := rp.clock.Now()
	return func() {
		rp.RecordOperation(name, rp.clock.Since(start))
	}
}

// RecordOperation records the duration of one completed operation.
func (rp *RuntimeProfiler) RecordOperation(name string, duration time.Duration) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, exists := rp.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{
			minTime: duration,
			maxTime: duration,
		}
		rp.operationTimes[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	tracker.totalTime += duration
	if len(tracker.durations) > rp.maxSamples {
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.count++

	if duration < tracker.minTime {
		tracker.minTime = duration
	}
	if duration > tracker.maxTime {
		tracker.maxTime = duration
	}
}

// Report polls the collectors and logs one status report.
func (rp *RuntimeProfiler) Report() {
	snap := rp.collect()

	fields := []zap.Field{
		zap.Int("report", rp.reportCount()),
		zap.Duration("uptime", snap.Uptime.Truncate(time.Millisecond)),
		zap.Int("goroutines", snap.Goroutines),
		zap.String("heap_alloc", formatBytes(snap.HeapAlloc)),
		zap.Uint32("gc_cycles", snap.NumGC),
	}
	for _, name := range sortedKeys(snap.Metrics) {
		fields = append(fields, zap.Float64(name, snap.Metrics[name].Avg))
	}
	for _, name := range sortedKeys(snap.Operations) {
		op := snap.Operations[name]
		fields = append(fields, zap.Dict(name,
			zap.Duration("avg", op.Avg.Truncate(time.Microsecond)),
			zap.Duration("p95", op.P95.Truncate(time.Microsecond)),
			zap.Duration("max", op.Max.Truncate(time.Microsecond)),
			zap.Int64("count", op.Count),
		))
	}

	rp.logger.Info("runtime report", fields...)
}

func (rp *RuntimeProfiler) reportCount() int {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.reports++
	return rp.reports
}

// collect samples the registered collectors, then takes a snapshot.
func (rp *RuntimeProfiler) collect() Snapshot {
	rp.mu.Lock()
	collectors := append([]MetricsCollector(nil), rp.collectors...)
	rp.mu.Unlock()

	// Collectors may take their own locks; never call them under ours.
	sampled := make([]map[string]float64, 0, len(collectors))
	for _, c := range collectors {
		sampled = append(sampled, c.CollectMetrics())
	}

	rp.mu.Lock()
	for _, metrics := range sampled {
		for name, value := range metrics {
			rp.recordMetricLocked(name, value)
		}
	}
	rp.mu.Unlock()

	return rp.Snapshot()
}

// Snapshot returns the current statistics without polling collectors.
func (rp *RuntimeProfiler) Snapshot() Snapshot {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	rp.mu.Lock()
	defer rp.mu.Unlock()

	snap := Snapshot{
		Uptime:     rp.clock.Since(rp.startTime),
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  mem.HeapAlloc,
		NumGC:      mem.NumGC,
		Metrics:    make(map[string]MetricSummary, len(rp.customMetrics)),
		Operations: make(map[string]OperationSummary, len(rp.operationTimes)),
	}

	for name, tracker := range rp.customMetrics {
		if len(tracker.values) == 0 {
			continue
		}
		var stdDev float64
		if len(tracker.values) > 1 {
			stdDev = stat.StdDev(tracker.values, nil)
		}
		snap.Metrics[name] = MetricSummary{
			Avg:     tracker.sum / float64(len(tracker.values)),
			StdDev:  stdDev,
			Min:     tracker.min,
			Max:     tracker.max,
			Samples: len(tracker.values),
			Count:   tracker.count,
		}
	}

	for name, tracker := range rp.operationTimes {
		if len(tracker.durations) == 0 {
			continue
		}
		snap.Operations[name] = OperationSummary{
			Avg:     tracker.totalTime / time.Duration(len(tracker.durations)),
			P95:     quantile(tracker.durations, 0.95),
			Min:     tracker.minTime,
			Max:     tracker.maxTime,
			Samples: len(tracker.durations),
			Count:   tracker.count,
		}
	}

	return snap
}

// quantile returns the empirical p-quantile of the durations.
func quantile(durations []time.Duration, p float64) time.Duration {
	xs := make([]float64, len(durations))
	for i, d := range durations {
		xs[i] = float64(d)
	}
	sort.Float64s(xs)
	return time.Duration(stat.Quantile(p, stat.Empirical, xs, nil))
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// formatBytes formats byte counts in human-readable format.
func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return strconv.FormatUint(bytes, 10) + " B"
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return strconv.FormatFloat(float64(bytes)/float64(div), 'f', 1, 64) + " " + string("KMGTPE"[exp]) + "B"
}
