package material

import (
	"sync"
)

// material is the implementation of the Material interface.
type material struct {
	mu               *sync.RWMutex
	name             string
	baseColor        [4]float32
	metallic         float32
	roughness        float32
	emissive         [3]float32
	emissiveStrength float32
}

// Material describes the surface response a path-tracing kernel reads from the material table.
// A Material is referenced by model surfaces and resolved to a material slot by the scene.
type Material interface {
	// Name retrieves the material identifier.
	//
	// Returns:
	//   - string: the name of the material
	Name() string

	// BaseColor retrieves the albedo RGBA color of the material.
	//
	// Returns:
	//   - [4]float32: the base color as RGBA values
	BaseColor() [4]float32

	// Metallic retrieves the metallic factor (0 dielectric, 1 metal).
	//
	// Returns:
	//   - float32: the metallic factor
	Metallic() float32

	// Roughness retrieves the roughness factor (0 smooth, 1 rough).
	//
	// Returns:
	//   - float32: the roughness factor
	Roughness() float32

	// Emissive retrieves the emitted radiance color and its strength.
	//
	// Returns:
	//   - [3]float32: the emitted color
	//   - float32: the emission strength multiplier
	Emissive() ([3]float32, float32)

	// IsEmissive reports whether the material emits light.
	//
	// Returns:
	//   - bool: true if the emission strength and color are non-zero
	IsEmissive() bool

	// SetBaseColor replaces the base color.
	//
	// Parameters:
	//   - color: the new RGBA color
	SetBaseColor(color [4]float32)

	// SetEmissive replaces the emitted color and strength.
	//
	// Parameters:
	//   - color: the emitted color
	//   - strength: the emission strength multiplier
	SetEmissive(color [3]float32, strength float32)

	// GPU returns the table record for this material.
	//
	// Returns:
	//   - GPUMaterial: the GPU-aligned material record
	GPU() GPUMaterial
}

var _ Material = &material{}

// NewMaterial creates a Material with a mid-grey, fully rough, non-emissive default.
//
// Parameters:
//   - options: functional options to configure the material
//
// Returns:
//   - Material: the newly created material
func NewMaterial(options ...MaterialBuilderOption) Material {
	m := &material{
		mu:        &sync.RWMutex{},
		baseColor: [4]float32{0.8, 0.8, 0.8, 1},
		roughness: 1,
	}
	for _, opt := range options {
		opt(m)
	}
	return m
}

func (m *material) Name() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.name
}

func (m *material) BaseColor() [4]float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.baseColor
}

func (m *material) Metallic() float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.metallic
}

func (m *material) Roughness() float32 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.roughness
}

func (m *material) Emissive() ([3]float32, float32) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.emissive, m.emissiveStrength
}

func (m *material) IsEmissive() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.emissiveStrength <= 0 {
		return false
	}
	return m.emissive[0] > 0 || m.emissive[1] > 0 || m.emissive[2] > 0
}

func (m *material) SetBaseColor(color [4]float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.baseColor = color
}

func (m *material) SetEmissive(color [3]float32, strength float32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emissive = color
	m.emissiveStrength = strength
}

func (m *material) GPU() GPUMaterial {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return GPUMaterial{
		BaseColor:        m.baseColor,
		Emissive:         m.emissive,
		EmissiveStrength: m.emissiveStrength,
		Metallic:         m.metallic,
		Roughness:        m.roughness,
	}
}
