package webgpu

// BuilderOption configures a webgpu backend.
type BuilderOption func(*wgpuBackend)

// WithForceFallbackAdapter requests the software adapter of the WebGPU implementation.
//
// Parameters:
//   - force: true to request the fallback adapter
//
// Returns:
//   - BuilderOption: the option
func WithForceFallbackAdapter(force bool) BuilderOption {
	return func(b *wgpuBackend) {
		b.forceFallback = force
	}
}

// WithKernel installs the WGSL compute program run by LaunchKernel. The source must link
// TraversalSource and use the bindings ParamsBinding, AccelBinding and ImageBinding of group 0.
//
// Parameters:
//   - source: the complete WGSL module
//   - entryPoint: the compute entry point
//
// Returns:
//   - BuilderOption: the option
func WithKernel(source, entryPoint string) BuilderOption {
	return func(b *wgpuBackend) {
		b.kernelSource = source
		b.entryPoint = entryPoint
	}
}

// WithDeviceLabel sets the label of the requested device. An empty label keeps the default.
func WithDeviceLabel(label string) BuilderOption {
	return func(b *wgpuBackend) {
		b.label = label
	}
}
