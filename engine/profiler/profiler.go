// Package profiler samples frame rate, frame times and Go runtime memory statistics over fixed
// windows, logs one line per window and renders the recorded windows as a table.
package profiler

import (
	"bytes"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/Carmen-Shannon/oxy-trace/engine/log"
	"github.com/olekukonko/tablewriter"
)

var logger = log.New("profiler")

const (
	DefaultUpdateInterval = time.Second
	DefaultHistory        = 60
)

// Sample is the summary of one profiler window.
type Sample struct {
	Frames      int
	Elapsed     time.Duration
	FPS         float64
	MinFrame    time.Duration
	MaxFrame    time.Duration
	HeapMB      float64
	AllocRateMB float64
	SysMB       float64
	GC          uint32
	LastPauseUs uint64
	MaxPauseUs  uint64
}

// Profiler tracks frame timing and memory statistics.
// Tick is called once per rendered frame; every update interval it closes a window, logs it and
// keeps it in a bounded history. Safe for concurrent use.
type Profiler struct {
	mu *sync.Mutex

	now            func() time.Time
	updateInterval time.Duration
	history        int

	start     time.Time
	lastTime  time.Time
	lastFrame time.Time

	frameCount  int
	totalFrames uint64
	minFrame    time.Duration
	maxFrame    time.Duration

	memStats       runtime.MemStats
	lastGCCount    uint32
	lastTotalAlloc uint64

	samples []Sample
}

// NewProfiler creates a new Profiler with a one-second window.
//
// Parameters:
//   - options: functional options applied after the defaults
//
// Returns:
//   - *Profiler: the new profiler
func NewProfiler(options ...ProfilerBuilderOption) *Profiler {
	p := &Profiler{
		mu:             &sync.Mutex{},
		now:            time.Now,
		updateInterval: DefaultUpdateInterval,
		history:        DefaultHistory,
	}
	for _, opt := range options {
		opt(p)
	}
	p.start = p.now()
	p.lastTime = p.start
	p.lastFrame = p.start
	return p
}

// Tick records a frame. When the window has elapsed it logs the window and starts a new one.
//
// Returns:
//   - bool: true if a window was closed by this frame
func (p *Profiler) Tick() bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.frameCount++
	p.totalFrames++
	currentTime := p.now()

	frame := currentTime.Sub(p.lastFrame)
	p.lastFrame = currentTime
	if p.frameCount == 1 || frame < p.minFrame {
		p.minFrame = frame
	}
	p.maxFrame = max(p.maxFrame, frame)

	elapsed := currentTime.Sub(p.lastTime)
	if elapsed < p.updateInterval {
		return false
	}

	s := Sample{
		Frames:   p.frameCount,
		Elapsed:  elapsed,
		FPS:      float64(p.frameCount) / elapsed.Seconds(),
		MinFrame: p.minFrame,
		MaxFrame: p.maxFrame,
	}

	runtime.ReadMemStats(&p.memStats)
	s.HeapMB = float64(p.memStats.Alloc) / 1024 / 1024
	s.SysMB = float64(p.memStats.Sys) / 1024 / 1024
	allocDelta := p.memStats.TotalAlloc - p.lastTotalAlloc
	s.AllocRateMB = float64(allocDelta) / 1024 / 1024 / elapsed.Seconds()

	s.GC = p.memStats.NumGC
	if s.GC > 0 {
		s.LastPauseUs = p.memStats.PauseNs[(s.GC-1)%256] / 1000

		startIdx := p.lastGCCount
		if s.GC-startIdx > 256 {
			startIdx = s.GC - 256
		}
		for i := startIdx; i < s.GC; i++ {
			s.MaxPauseUs = max(s.MaxPauseUs, p.memStats.PauseNs[i%256]/1000)
		}
	}

	logger.Infof("FPS: %.2f | Frame: %s..%s | Heap: %.2f MB | Alloc Rate: %.2f MB/s | GC: %d (last: %d µs, max: %d µs) | Sys: %.2f MB",
		s.FPS, s.MinFrame, s.MaxFrame, s.HeapMB, s.AllocRateMB, s.GC, s.LastPauseUs, s.MaxPauseUs, s.SysMB)

	p.samples = append(p.samples, s)
	if over := len(p.samples) - p.history; over > 0 {
		p.samples = append(p.samples[:0], p.samples[over:]...)
	}

	p.frameCount = 0
	p.minFrame, p.maxFrame = 0, 0
	p.lastTime = currentTime
	p.lastGCCount = s.GC
	p.lastTotalAlloc = p.memStats.TotalAlloc
	return true
}

// Samples returns a copy of the recorded windows, oldest first.
func (p *Profiler) Samples() []Sample {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Sample(nil), p.samples...)
}

// Total returns the frames recorded and the time since the profiler was created.
func (p *Profiler) Total() (uint64, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.totalFrames, p.now().Sub(p.start)
}

// Report renders the recorded windows as a table with the overall frame rate in the footer.
//
// Returns:
//   - string: the rendered table
func (p *Profiler) Report() string {
	samples := p.Samples()
	frames, elapsed := p.Total()

	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Window", "Frames", "FPS", "Min frame", "Max frame", "Heap", "Alloc rate", "GC"})
	for i, s := range samples {
		table.Append([]string{
			fmt.Sprintf("%d", i),
			fmt.Sprintf("%d", s.Frames),
			fmt.Sprintf("%.2f", s.FPS),
			s.MinFrame.String(),
			s.MaxFrame.String(),
			fmt.Sprintf("%.2f MB", s.HeapMB),
			fmt.Sprintf("%.2f MB/s", s.AllocRateMB),
			fmt.Sprintf("%d", s.GC),
		})
	}
	fps := 0.0
	if elapsed > 0 {
		fps = float64(frames) / elapsed.Seconds()
	}
	table.SetFooter([]string{"TOTAL", fmt.Sprintf("%d", frames), fmt.Sprintf("%.2f", fps), "", "", "", "", elapsed.Round(time.Millisecond).String()})
	table.Render()
	return buf.String()
}
