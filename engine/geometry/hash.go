// Package geometry turns models into shared device geometry: content hashing, GPU vertex
// conversion, per-model geometry groups with their BLAS, and the ref-counted cache that lets
// nodes with identical meshes share one group.
package geometry

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"
	"io"
	"math"

	"github.com/Carmen-Shannon/oxy-trace/engine/model"
	"github.com/go-gl/mathgl/mgl32"
)

// Hash is the geometry identity key.
type Hash uint64

func (h Hash) String() string {
	return fmt.Sprintf("%016x", uint64(h))
}

// HashMode selects how much of a model feeds its hash.
type HashMode int

const (
	// HashFull hashes every position and index. Two models collide only if their geometry is identical.
	HashFull HashMode = iota
	// HashSampled hashes the counts and the first and last vertex positions. Cheaper, but distinct
	// meshes that agree on those samples share a group.
	HashSampled
)

func (m HashMode) String() string {
	if m == HashSampled {
		return "sampled"
	}
	return "full"
}

// Of hashes a model with the selected mode.
func (m HashMode) Of(mdl model.Model) Hash {
	if m == HashSampled {
		return SampledHash(mdl)
	}
	return ContentHash(mdl)
}

type hasher struct {
	h   io.Writer
	buf [8]byte
}

func (w *hasher) u32(v uint32) {
	binary.LittleEndian.PutUint32(w.buf[:4], v)
	_, _ = w.h.Write(w.buf[:4])
}

func (w *hasher) vec(v mgl32.Vec3) {
	for i := range 3 {
		w.u32(math.Float32bits(v[i]))
	}
}

// ContentHash returns a stable FNV-1a hash over the vertex count, triangle count, every position
// and every surface's indices.
//
// Parameters:
//   - mdl: the model to hash
//
// Returns:
//   - Hash: the content hash
func ContentHash(mdl model.Model) Hash {
	f := fnv.New64a()
	w := &hasher{h: f}

	positions := mdl.Positions()
	surfaces := mdl.Surfaces()
	w.u32(uint32(len(positions)))
	w.u32(uint32(mdl.TriangleCount()))
	for _, p := range positions {
		w.vec(p)
	}
	for _, s := range surfaces {
		w.u32(uint32(len(s.Triangles)))
		for _, tri := range s.Triangles {
			w.u32(tri[0])
			w.u32(tri[1])
			w.u32(tri[2])
		}
	}
	return Hash(f.Sum64())
}

// SampledHash returns an FNV-1a hash over the vertex and triangle counts and the first and last
// vertex positions.
//
// Parameters:
//   - mdl: the model to hash
//
// Returns:
//   - Hash: the sampled hash
func SampledHash(mdl model.Model) Hash {
	f := fnv.New64a()
	w := &hasher{h: f}

	positions := mdl.Positions()
	w.u32(uint32(len(positions)))
	w.u32(uint32(mdl.TriangleCount()))
	if len(positions) > 0 {
		w.vec(positions[0])
		w.vec(positions[len(positions)-1])
	}
	return Hash(f.Sum64())
}

// Unique mixes a per-owner key into h so owners never share a group.
func Unique(h Hash, owner uint64) Hash {
	f := fnv.New64a()
	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[:8], uint64(h))
	binary.LittleEndian.PutUint64(buf[8:], owner)
	_, _ = f.Write(buf[:])
	return Hash(f.Sum64())
}
