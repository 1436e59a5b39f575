// Package engine runs the application loop: a fixed-rate tick goroutine that moves the scene and a
// render goroutine that submits frames to the renderer.
package engine

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Carmen-Shannon/oxy-trace/engine/errs"
	"github.com/Carmen-Shannon/oxy-trace/engine/log"
	"github.com/Carmen-Shannon/oxy-trace/engine/profiler"
	"github.com/Carmen-Shannon/oxy-trace/engine/renderer"
)

var logger = log.New("engine")

// TickFunc is called every engine tick with the elapsed time in seconds. It returns true when it
// moved something in the scene, which restarts accumulation on the next frame.
type TickFunc func(deltaTime float32) bool

// RenderFunc is called after every submitted frame with the elapsed time and the frame number.
type RenderFunc func(deltaTime float32, frame uint32)

// engine implements the Engine interface.
// Coordinates the tick and render goroutines.
type engine struct {
	mu *sync.Mutex

	tickRateChannel chan time.Duration // Channel for dynamic tick rate updates

	running atomic.Bool
	wg      sync.WaitGroup

	quitChannel chan struct{}
	quitOnce    sync.Once // Ensures quitChannel is only closed once

	renderer renderer.Renderer

	profiler         *profiler.Profiler
	profilingEnabled atomic.Bool

	engineTickRate time.Duration
	tickCallback   TickFunc
	renderCallback RenderFunc

	input  renderer.RenderInput
	motion atomic.Bool
	frame  uint32
	err    error

	renderFrameLimit time.Duration // minimum frame duration; 0 = uncapped
}

// Engine is the main entry point for the engine.
// It orchestrates the tick loop and the render loop around one renderer.
type Engine interface {
	// Renderer returns the renderer the engine drives.
	Renderer() renderer.Renderer

	// Profiler returns the frame profiler.
	Profiler() *profiler.Profiler

	// EnableProfiler enables per-frame profiling and its periodic log line.
	EnableProfiler()

	// DisableProfiler disables profiling.
	DisableProfiler()

	// SetTickRate sets the engine tick rate in frames per second.
	// The tick callback will be called at this rate for scene updates.
	//
	// Parameters:
	//   - fps: target frames per second (defaults to 60 if <= 0)
	SetTickRate(fps float64)

	// SetTickCallback registers the function called each engine tick.
	// Use this for node movement and camera control.
	//
	// Parameters:
	//   - callback: function to call at the configured tick rate
	SetTickCallback(callback TickFunc)

	// SetRenderCallback registers the function called after each submitted frame.
	//
	// Parameters:
	//   - callback: function receiving the delta time in seconds and the frame number
	SetRenderCallback(callback RenderFunc)

	// SetRenderFrameLimit sets an optional render frame rate cap in frames per second.
	// Pass 0 to uncap the render loop (default).
	//
	// Parameters:
	//   - fps: maximum render frames per second (0 = uncapped)
	SetRenderFrameLimit(fps float64)

	// SetRenderInput sets the input passed to every following frame.
	SetRenderInput(input renderer.RenderInput)

	// MarkMotion flags scene movement made outside the tick callback. The next frame rebuilds the
	// top-level structure if needed and restarts accumulation.
	MarkMotion()

	// Run initializes the renderer if needed and starts the tick and render goroutines. It blocks
	// until Quit is called or a frame fails, then finalizes the renderer.
	//
	// Returns:
	//   - error: the initialization error or the first frame error
	Run() error

	// RunFrames renders n frames on the calling goroutine, calling the tick callback before each.
	// The renderer stays initialized afterwards.
	//
	// Parameters:
	//   - n: the number of frames
	//
	// Returns:
	//   - error: the first frame error
	RunFrames(n int) error

	// Frame returns the number of the next frame.
	Frame() uint32

	// Quit signals all engine goroutines to stop.
	// Safe to call multiple times; subsequent calls are no-ops.
	Quit()
}

var _ Engine = &engine{}

// NewEngine creates a new Engine driving r. Panics if r is nil.
//
// Parameters:
//   - r: the renderer
//   - options: functional options for engine configuration (profiling, tick rate, etc.)
//
// Returns:
//   - Engine: the newly created engine
func NewEngine(r renderer.Renderer, options ...EngineBuilderOption) Engine {
	if r == nil {
		panic("engine: nil renderer")
	}
	e := &engine{
		mu:              &sync.Mutex{},
		tickRateChannel: make(chan time.Duration, 1),
		quitChannel:     make(chan struct{}),
		renderer:        r,
		profiler:        profiler.NewProfiler(),
		engineTickRate:  time.Second / 60,
	}

	for _, opt := range options {
		opt(e)
	}
	return e
}

func (e *engine) Renderer() renderer.Renderer {
	return e.renderer
}

func (e *engine) Profiler() *profiler.Profiler {
	return e.profiler
}

func (e *engine) Run() error {
	if !e.renderer.Initialized() {
		if err := e.renderer.Initialize(); err != nil {
			return err
		}
	}
	e.running.Store(true)
	logger.Noticef("engine running at %s per tick", e.engineTickRate)

	e.wg.Add(2)
	go e.handleEngine()
	go e.handleRender()
	e.wg.Wait()

	e.running.Store(false)
	e.renderer.Finalize()

	e.mu.Lock()
	defer e.mu.Unlock()
	logger.Noticef("engine stopped after %d frames", e.frame)
	return e.err
}

func (e *engine) RunFrames(n int) error {
	if !e.renderer.Initialized() {
		if err := e.renderer.Initialize(); err != nil {
			return err
		}
	}
	last := time.Now()
	for range n {
		now := time.Now()
		dt := float32(now.Sub(last).Seconds())
		last = now

		e.tick(dt)
		if err := e.renderFrame(dt); err != nil {
			return err
		}
	}
	return nil
}

func (e *engine) Frame() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.frame
}

// Quit signals all engine goroutines to stop.
// Safe to call multiple times; subsequent calls are no-ops due to sync.Once.
func (e *engine) Quit() {
	e.signalQuit()
}

// signalQuit closes the quit channel to signal all goroutines to exit.
func (e *engine) signalQuit() {
	e.quitOnce.Do(func() {
		close(e.quitChannel)
	})
}

// fail records the first loop error and stops the engine.
func (e *engine) fail(err error) {
	e.mu.Lock()
	e.err = errors.Join(e.err, err)
	e.mu.Unlock()
	e.signalQuit()
}

func (e *engine) tick(dt float32) {
	e.mu.Lock()
	cb := e.tickCallback
	e.mu.Unlock()
	if cb != nil && cb(dt) {
		e.motion.Store(true)
	}
}

// renderFrame submits one frame with the pending motion flag.
func (e *engine) renderFrame(dt float32) error {
	e.mu.Lock()
	input, frame, cb := e.input, e.frame, e.renderCallback
	e.mu.Unlock()

	if err := e.renderer.Render(input, e.motion.Swap(false), frame); err != nil {
		return err
	}

	e.mu.Lock()
	e.frame++
	e.mu.Unlock()
	if cb != nil {
		cb(dt, frame)
	}
	if e.profilingEnabled.Load() && e.profiler != nil {
		e.profiler.Tick()
	}
	return nil
}

// handleEngine runs the fixed-rate engine tick loop in its own goroutine.
// Fires the tick callback at the configured tick rate and listens for dynamic rate changes
// via tickRateChannel. Exits when the quit channel is closed.
func (e *engine) handleEngine() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("tick goroutine recovered from panic: %v", r)
			e.fail(errs.Recovered(r))
		}
	}()

	ticker := time.NewTicker(e.engineTickRate)
	defer ticker.Stop()

	lastTick := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		case <-ticker.C:
			now := time.Now()
			dt := float32(now.Sub(lastTick).Seconds())
			lastTick = now
			e.tick(dt)
		case newRate := <-e.tickRateChannel:
			ticker.Reset(newRate)
			e.engineTickRate = newRate
		}
	}
}

// handleRender runs the uncapped (or frame-limited) render loop in its own goroutine.
// Recovers from panics to avoid crashing the process and signals quit on recovery.
func (e *engine) handleRender() {
	defer e.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("render goroutine recovered from panic: %v", r)
			e.fail(errs.Recovered(r))
		}
	}()

	lastRender := time.Now()

	for {
		select {
		case <-e.quitChannel:
			return
		default:
			now := time.Now()
			dt := float32(now.Sub(lastRender).Seconds())
			lastRender = now

			if err := e.renderFrame(dt); err != nil {
				logger.Errorf("frame %d: %v", e.Frame(), err)
				e.fail(err)
				return
			}

			// Frame rate limiting
			if e.renderFrameLimit > 0 {
				elapsed := time.Since(lastRender)
				if remaining := e.renderFrameLimit - elapsed; remaining > 0 {
					time.Sleep(remaining)
				}
			}
		}
	}
}

func (e *engine) EnableProfiler() {
	e.profilingEnabled.Store(true)
}

func (e *engine) DisableProfiler() {
	e.profilingEnabled.Store(false)
}

// SetTickRate sets the engine tick rate in frames per second.
// If the engine is running, the change takes effect immediately.
func (e *engine) SetTickRate(fps float64) {
	if fps <= 0 {
		fps = 60
	}
	newRate := time.Duration(float64(time.Second) / fps)

	if e.running.Load() {
		// Non-blocking send - if channel is full, replace the pending value
		select {
		case e.tickRateChannel <- newRate:
		default:
			select {
			case <-e.tickRateChannel:
			default:
			}
			e.tickRateChannel <- newRate
		}
	} else {
		e.engineTickRate = newRate
	}
}

func (e *engine) SetTickCallback(callback TickFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tickCallback = callback
}

func (e *engine) SetRenderCallback(callback RenderFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.renderCallback = callback
}

// SetRenderFrameLimit sets an optional render frame rate cap.
// Pass 0 to uncap the render loop.
func (e *engine) SetRenderFrameLimit(fps float64) {
	if fps <= 0 {
		e.renderFrameLimit = 0
		return
	}
	e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
}

func (e *engine) SetRenderInput(input renderer.RenderInput) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.input = input
}

func (e *engine) MarkMotion() {
	e.motion.Store(true)
}
