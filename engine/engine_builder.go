package engine

import (
	"time"

	"github.com/Carmen-Shannon/oxy-trace/engine/profiler"
)

// EngineBuilderOption is a functional option for configuring an Engine.
type EngineBuilderOption func(*engine)

// WithProfiling enables or disables the frame profiler.
//
// Parameters:
//   - enabled: true to profile every frame
//
// Returns:
//   - EngineBuilderOption: the option
func WithProfiling(enabled bool) EngineBuilderOption {
	return func(e *engine) {
		e.profilingEnabled.Store(enabled)
	}
}

// WithProfiler replaces the default profiler.
func WithProfiler(p *profiler.Profiler) EngineBuilderOption {
	return func(e *engine) {
		if p != nil {
			e.profiler = p
		}
	}
}

// WithTickRate sets the engine tick rate in frames per second.
//
// Parameters:
//   - fps: target ticks per second (defaults to 60 if <= 0)
//
// Returns:
//   - EngineBuilderOption: the option
func WithTickRate(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			fps = 60.0
		}
		e.engineTickRate = time.Duration(float64(time.Second) / fps)
	}
}

// WithTickCallback registers the tick callback.
func WithTickCallback(callback TickFunc) EngineBuilderOption {
	return func(e *engine) {
		e.tickCallback = callback
	}
}

// WithRenderCallback registers the render callback.
func WithRenderCallback(callback RenderFunc) EngineBuilderOption {
	return func(e *engine) {
		e.renderCallback = callback
	}
}

// WithRenderFrameLimit caps the render loop at fps frames per second. 0 leaves it uncapped.
func WithRenderFrameLimit(fps float64) EngineBuilderOption {
	return func(e *engine) {
		if fps <= 0 {
			e.renderFrameLimit = 0
			return
		}
		e.renderFrameLimit = time.Duration(float64(time.Second) / fps)
	}
}
