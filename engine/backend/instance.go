package backend

import (
	"encoding/binary"
	"math"
)

// InstanceSize is the byte size of one encoded Instance.
const InstanceSize = 80

// DefaultInstanceMask makes an instance visible to every ray.
const DefaultInstanceMask uint32 = 0xFF

// Instance is one TLAS entry.
//
// Layout (little-endian):
//
//	0   transform  12 x f32, 3x4 row-major object-to-world
//	48  instanceID u32
//	52  sbtOffset  u32
//	56  mask       u32
//	60  flags      u32
//	64  handle     u64
//	72  padding    8 bytes
type Instance struct {
	Transform   [12]float32
	InstanceID  uint32
	SBTOffset   uint32
	Mask        uint32
	Flags       uint32
	Traversable Traversable
}

// MarshalTo writes the instance into buf, which must hold at least InstanceSize bytes.
func (i *Instance) MarshalTo(buf []byte) {
	for k, v := range i.Transform {
		binary.LittleEndian.PutUint32(buf[k*4:], math.Float32bits(v))
	}
	binary.LittleEndian.PutUint32(buf[48:], i.InstanceID)
	binary.LittleEndian.PutUint32(buf[52:], i.SBTOffset)
	binary.LittleEndian.PutUint32(buf[56:], i.Mask)
	binary.LittleEndian.PutUint32(buf[60:], i.Flags)
	binary.LittleEndian.PutUint64(buf[64:], uint64(i.Traversable))
	clear(buf[72:InstanceSize])
}

// Marshal returns the encoded instance.
func (i *Instance) Marshal() []byte {
	buf := make([]byte, InstanceSize)
	i.MarshalTo(buf)
	return buf
}

// UnmarshalInstance decodes an instance written by MarshalTo.
func UnmarshalInstance(buf []byte) Instance {
	var i Instance
	for k := range i.Transform {
		i.Transform[k] = math.Float32frombits(binary.LittleEndian.Uint32(buf[k*4:]))
	}
	i.InstanceID = binary.LittleEndian.Uint32(buf[48:])
	i.SBTOffset = binary.LittleEndian.Uint32(buf[52:])
	i.Mask = binary.LittleEndian.Uint32(buf[56:])
	i.Flags = binary.LittleEndian.Uint32(buf[60:])
	i.Traversable = Traversable(binary.LittleEndian.Uint64(buf[64:]))
	return i
}
