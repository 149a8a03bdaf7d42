// Package profiler provides lightweight performance logging for effect
// pipelines: a frame profiler tracking FPS and memory statistics for a render
// loop, and a pass statistics accumulator that averages per-pass GPU timings
// and emits one-line summaries at a fixed interval. Both log through the
// standard logger and are cheap enough to leave enabled in debug builds.
package profiler

import (
	"fmt"
	"log"
	"runtime"
	"strings"
	"time"
)

// FrameProfiler tracks frame rate and memory statistics for performance
// monitoring. Outputs stats to the log at a configurable interval.
type FrameProfiler struct {
	frameCount     int
	lastTime       time.Time
	updateInterval time.Duration
	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64
}

// NewFrameProfiler creates a new FrameProfiler with default settings.
// Update interval defaults to 1 second.
//
// Returns:
//   - *FrameProfiler: the newly created profiler instance
func NewFrameProfiler() *FrameProfiler {
	return &FrameProfiler{
		lastTime:       time.Now(),
		updateInterval: time.Second,
	}
}

// Tick should be called once per frame to track frame timing.
// Logs performance statistics when the update interval has elapsed.
// Statistics include: FPS, heap usage, allocation rate, GC count/pause times, total memory.
//
// Returns:
//   - bool: true if stats were logged this tick, false otherwise
func (p *FrameProfiler) Tick() bool {
	p.frameCount++
	currentTime := time.Now()
	elapsed := currentTime.Sub(p.lastTime)

	if elapsed < p.updateInterval {
		return false
	}

	fps := float64(p.frameCount) / elapsed.Seconds()

	runtime.ReadMemStats(&p.memStats)
	allocMB := float64(p.memStats.Alloc) / 1024 / 1024
	sysMB := float64(p.memStats.Sys) / 1024 / 1024

	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	allocRateMB := float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	gcCount := p.memStats.NumGC
	var lastPauseUs, maxPauseUs uint64
	if gcCount > 0 {
		// PauseNs is a circular buffer of the last 256 GC pauses
		lastPauseUs = p.memStats.PauseNs[(gcCount-1)%256] / 1000

		startIdx := p.lastGCCount
		if gcCount-startIdx > 256 {
			startIdx = gcCount - 256
		}
		for i := startIdx; i < gcCount; i++ {
			pause := p.memStats.PauseNs[i%256] / 1000
			if pause > maxPauseUs {
				maxPauseUs = pause
			}
		}
	}

	log.Printf("[ShaderFX] FPS: %.2f | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB",
		fps, allocMB, allocRateMB, gcCount, lastPauseUs, maxPauseUs, sysMB)

	p.frameCount = 0
	p.lastTime = currentTime
	p.lastGCCount = gcCount
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// PassStats accumulates per-pass GPU timing samples from a pipeline and logs
// averaged summaries once per update interval. The final sample of each
// observation is treated as the whole-pipeline total.
type PassStats interface {
	// Observe records one frame's resolved timings.
	//
	// Parameters:
	//   - timings: per-pass GPU time in seconds, last entry the pipeline total
	//   - cached: per-pass flags marking frames served from the output cache
	//
	// Returns:
	//   - bool: true if a summary was logged this observation
	Observe(timings []float32, cached []bool) bool
}

type passStats struct {
	updateInterval time.Duration
	lastTime       time.Time
	logf           func(format string, args ...any)

	sums       []float64
	cachedRuns []int
	frameCount int
}

var _ PassStats = &passStats{}

func (p *passStats) Observe(timings []float32, cached []bool) bool {
	if len(timings) == 0 {
		return false
	}

	if len(p.sums) != len(timings) {
		p.sums = make([]float64, len(timings))
		p.cachedRuns = make([]int, len(timings))
		p.frameCount = 0
		p.lastTime = time.Now()
	}

	for i, t := range timings {
		p.sums[i] += float64(t)
		if i < len(cached) && cached[i] {
			p.cachedRuns[i]++
		}
	}
	p.frameCount++

	currentTime := time.Now()
	if currentTime.Sub(p.lastTime) < p.updateInterval {
		return false
	}

	p.logf("[ShaderFX] %s", p.summary())

	for i := range p.sums {
		p.sums[i] = 0
		p.cachedRuns[i] = 0
	}
	p.frameCount = 0
	p.lastTime = currentTime
	return true
}

// summary renders one line of averaged pass timings in milliseconds.
func (p *passStats) summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "pass timings over %d frames:", p.frameCount)

	n := len(p.sums)
	frames := float64(p.frameCount)
	for i := 0; i < n-1; i++ {
		avgMs := p.sums[i] / frames * 1000
		fmt.Fprintf(&sb, " pass %d: %.3fms", i, avgMs)
		if p.cachedRuns[i] > 0 {
			fmt.Fprintf(&sb, " (cached %d/%d)", p.cachedRuns[i], p.frameCount)
		}
		sb.WriteByte(',')
	}
	fmt.Fprintf(&sb, " total: %.3fms", p.sums[n-1]/frames*1000)
	return sb.String()
}

// LogUnusedSettings reports configuration keys a shader preset carried that
// nothing consulted during pipeline construction.
//
// Parameters:
//   - keys: the raw unused key names
func LogUnusedSettings(keys []string) {
	for _, k := range keys {
		log.Printf("[ShaderFX] ignoring unknown shader preset setting: %s", k)
	}
}
