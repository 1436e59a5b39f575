package renderer

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"github.com/Carmen-Shannon/oxy-trace/engine/backend"
	"github.com/Carmen-Shannon/oxy-trace/engine/backend/software"
	"github.com/Carmen-Shannon/oxy-trace/engine/backend/webgpu"
	"github.com/Carmen-Shannon/oxy-trace/engine/camera"
	"github.com/Carmen-Shannon/oxy-trace/engine/errs"
	"github.com/Carmen-Shannon/oxy-trace/engine/material"
	"github.com/Carmen-Shannon/oxy-trace/engine/model"
	"github.com/Carmen-Shannon/oxy-trace/engine/renderer/shader"
	"github.com/Carmen-Shannon/oxy-trace/engine/scene"
)

//go:embed assets/primary.wgsl
var primaryKernelSource string

// BackendType identifies the backend implementation used by the Renderer.
type BackendType int

const (
	// BackendTypeSoftware selects the host backend.
	BackendTypeSoftware BackendType = iota

	// BackendTypeWGPU selects the WebGPU backend.
	BackendTypeWGPU
)

func (t BackendType) String() string {
	switch t {
	case BackendTypeSoftware:
		return "software"
	case BackendTypeWGPU:
		return "webgpu"
	default:
		return fmt.Sprintf("BackendType(%d)", int(t))
	}
}

// ParseBackendType maps a backend name to its BackendType. "wgpu" is accepted for webgpu.
//
// Parameters:
//   - name: the backend name, case-insensitive
//
// Returns:
//   - BackendType: the backend type
//   - error: errs.ErrInvalidInput for unknown names
func ParseBackendType(name string) (BackendType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "software", "sw", "cpu":
		return BackendTypeSoftware, nil
	case "webgpu", "wgpu", "gpu":
		return BackendTypeWGPU, nil
	default:
		return 0, fmt.Errorf("%w: unknown backend %q", errs.ErrInvalidInput, name)
	}
}

// PrimaryKernel pre-processes the WebGPU primary-ray kernel. Every struct the kernel includes
// is checked against the size the host marshals for it.
//
// Returns:
//   - shader.Shader: the processed kernel
//   - error: a pre-processing failure or a layout mismatch
func PrimaryKernel() (shader.Shader, error) {
	pp := shader.NewPreProcessor(
		shader.WithStruct(shader.AnnotationArgCamera, camera.GPUPerspectiveCameraSource, "PerspectiveCamera", camera.PerspectiveCameraSize),
		shader.WithStruct(shader.AnnotationArgLaunchParams, GPULaunchParamsSource, "LaunchParams", GPULaunchParamsSize),
		shader.WithStruct(shader.AnnotationArgVertex, model.GPUVertexSource, "Vertex", model.GPUVertexSize),
		shader.WithStruct(shader.AnnotationArgMaterial, material.GPUMaterialSource, "Material", material.GPUMaterialSize),
		shader.WithStruct(shader.AnnotationArgInstanceData, scene.GPUSceneSource, "InstanceData", scene.GPUInstanceDataSize),
		shader.WithStruct(shader.AnnotationArgGeometryInstance, scene.GPUSceneSource, "GeometryInstanceData", scene.GPUGeometryInstanceDataSize),
		shader.WithLibrary(shader.AnnotationArgTraversal, webgpu.TraversalSource),
	)
	return shader.NewComputeShader("primary", primaryKernelSource, pp)
}

// validateKernel checks a kernel against the dispatch shape and bindings of the webgpu backend.
func validateKernel(k shader.Shader) error {
	if ws := k.WorkgroupSize(); ws != [3]uint32{webgpu.WorkgroupSize, webgpu.WorkgroupSize, 1} {
		return fmt.Errorf("kernel %q: workgroup size %v, the backend dispatches %dx%d", k.Key(), ws, webgpu.WorkgroupSize, webgpu.WorkgroupSize)
	}
	for _, b := range []int{webgpu.ParamsBinding, webgpu.AccelBinding, webgpu.ImageBinding} {
		if _, ok := k.Binding(0, b); !ok {
			return fmt.Errorf("kernel %q: nothing declared at group 0 binding %d", k.Key(), b)
		}
	}
	if params, _ := k.Binding(0, webgpu.ParamsBinding); params.MinSize != GPULaunchParamsSize {
		return fmt.Errorf("kernel %q: params binding %s is %d bytes, expected %d", k.Key(), params.Type, params.MinSize, GPULaunchParamsSize)
	}
	return nil
}

// NewBackend creates a backend of type t running the primary-ray kernel.
//
// Parameters:
//   - t: the backend type
//   - forceFallback: request the fallback adapter, webgpu only
//   - stats: the counters the host kernel updates, software only, may be nil
//
// Returns:
//   - backend.Backend: the backend
//   - error: a failure wrapping errs.ErrBackendBuild or errs.ErrInvalidInput
func NewBackend(t BackendType, forceFallback bool, stats *KernelStats) (backend.Backend, error) {
	switch t {
	case BackendTypeSoftware:
		return software.New(software.WithKernel(PrimaryRayKernel(stats))), nil
	case BackendTypeWGPU:
		k, err := PrimaryKernel()
		if err == nil {
			err = validateKernel(k)
		}
		if err != nil {
			return nil, errors.Join(errs.ErrBackendBuild, err)
		}
		return webgpu.New(
			webgpu.WithForceFallbackAdapter(forceFallback),
			webgpu.WithKernel(k.Source(), k.EntryPoint()),
			webgpu.WithDeviceLabel(k.Key()),
		)
	default:
		return nil, fmt.Errorf("%w: %s", errs.ErrInvalidInput, t)
	}
}
