package material

import (
	_ "embed"
	"encoding/binary"
	"math"
	"unsafe"
)

// GPUMaterialSource is the canonical WGSL definition of the Material struct.
// Matches GPUMaterial layout exactly (48 bytes, std430 aligned).
//
//go:embed assets/material.wgsl
var GPUMaterialSource string

// GPUMaterial is the GPU-aligned record stored at a material slot of the material table.
// Size: 48 bytes (std430 aligned).
type GPUMaterial struct {
	BaseColor        [4]float32 // offset  0: albedo RGBA (vec4<f32>)
	Emissive         [3]float32 // offset 16: emitted color (vec3<f32>)
	EmissiveStrength float32    // offset 28: emission multiplier (f32)
	Metallic         float32    // offset 32: metallic factor (f32)
	Roughness        float32    // offset 36: roughness factor (f32)
	_pad             [2]float32 // offset 40: padding to 48 bytes
}

// GPUMaterialSize is the byte stride of the material table.
const GPUMaterialSize = 48

// Size returns the size of the GPUMaterial struct in bytes.
//
// Returns:
//   - int: the size of the struct in bytes (48)
func (g *GPUMaterial) Size() int {
	return int(unsafe.Sizeof(*g))
}

// Marshal serializes the GPUMaterial struct into a byte buffer suitable for GPU upload.
//
// Returns:
//   - []byte: 48-byte buffer ready for GPU upload
func (g *GPUMaterial) Marshal() []byte {
	buf := make([]byte, g.Size())
	for i := range 4 {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(g.BaseColor[i]))
	}
	for i := range 3 {
		binary.LittleEndian.PutUint32(buf[16+i*4:], math.Float32bits(g.Emissive[i]))
	}
	binary.LittleEndian.PutUint32(buf[28:], math.Float32bits(g.EmissiveStrength))
	binary.LittleEndian.PutUint32(buf[32:], math.Float32bits(g.Metallic))
	binary.LittleEndian.PutUint32(buf[36:], math.Float32bits(g.Roughness))
	return buf
}
