package webgpu

import _ "embed"

// TraversalSource is the WGSL traversal library kernels link against. It declares the
// acceleration structure binding at group 0 binding 1 and the traceScene function.
//
//go:embed assets/traversal.wgsl
var TraversalSource string

// Kernel bindings. Every kernel reads its launch parameters from binding 0, traces through
// binding 1 and writes one u32 per pixel to binding 2.
const (
	ParamsBinding = 0
	AccelBinding  = 1
	ImageBinding  = 2
)

// WorkgroupSize is the edge of the square workgroup kernels declare with @workgroup_size.
const WorkgroupSize = 8
