package renderer

import (
	"github.com/Carmen-Shannon/oxy-trace/engine/camera"
	"github.com/Carmen-Shannon/oxy-trace/engine/scene"
)

// RendererBuilderOption is a functional option applied to a renderer during construction via NewRenderer.
type RendererBuilderOption func(*renderer)

// WithCamera sets the camera the renderer reads every frame. The application keeps ownership.
//
// Parameters:
//   - c: the camera
//
// Returns:
//   - RendererBuilderOption: a function that applies the camera option to a renderer
func WithCamera(c camera.Camera) RendererBuilderOption {
	return func(r *renderer) {
		r.cam = c
	}
}

// WithSceneOptions passes options to the scene handler created by Initialize.
//
// Parameters:
//   - options: the scene handler options
//
// Returns:
//   - RendererBuilderOption: a function that applies the scene options to a renderer
func WithSceneOptions(options ...scene.SceneHandlerBuilderOption) RendererBuilderOption {
	return func(r *renderer) {
		r.sceneOptions = append(r.sceneOptions, options...)
	}
}

// WithMaxAccumFrames caps the accumulation counter.
func WithMaxAccumFrames(n uint32) RendererBuilderOption {
	return func(r *renderer) {
		if n > 0 {
			r.maxAccumFrames = n
		}
	}
}

// WithMaxPathLength sets the bounce limit passed to the kernel.
func WithMaxPathLength(n uint32) RendererBuilderOption {
	return func(r *renderer) {
		if n > 0 {
			r.maxPathLength = n
		}
	}
}

// WithJittering toggles sub-pixel jittering of primary rays.
func WithJittering(enabled bool) RendererBuilderOption {
	return func(r *renderer) {
		r.jitter = enabled
	}
}

// WithStreamCount sets the number of frames that may be in flight at once.
// The scene keeps one instance table copy per stream.
//
// Parameters:
//   - n: the stream ring length, values below 1 are ignored
//
// Returns:
//   - RendererBuilderOption: a function that applies the stream count option to a renderer
func WithStreamCount(n int) RendererBuilderOption {
	return func(r *renderer) {
		if n > 0 {
			r.streamCount = n
		}
	}
}

// WithImageSize sets the initial image size in pixels.
func WithImageSize(width, height uint32) RendererBuilderOption {
	return func(r *renderer) {
		if width > 0 && height > 0 {
			r.width, r.height = width, height
		}
	}
}
