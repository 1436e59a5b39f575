package webgpu

import (
	"encoding/binary"
	"math"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/backend"
	"github.com/Carmen-Shannon/oxy-trace/engine/bvh"
	"github.com/go-gl/mathgl/mgl32"
)

// An acceleration structure is uploaded as one blob of 32-bit words. Every blob starts with a
// four-word header followed by its BVH nodes:
//
//	[0] node count  [1] primitive count  [2] order offset  [3] payload offset
//
// Offsets count words from the start of the blob. A BLAS payload holds nine floats per triangle.
// A TLAS payload holds one instance record per instance, and the BLAS blobs it references are
// appended after the records so one binding reaches the whole scene.
const (
	headerWords   = 4
	nodeWords     = bvh.NodeSize / 4
	triangleWords = 9
	instanceWords = 16
)

// header is the decoded blob header.
type header struct {
	NodeCount     uint32
	PrimCount     uint32
	OrderOffset   uint32
	PayloadOffset uint32
}

func readHeader(blob []byte) header {
	return header{
		NodeCount:     binary.LittleEndian.Uint32(blob[0:]),
		PrimCount:     binary.LittleEndian.Uint32(blob[4:]),
		OrderOffset:   binary.LittleEndian.Uint32(blob[8:]),
		PayloadOffset: binary.LittleEndian.Uint32(blob[12:]),
	}
}

// placedInstance is one TLAS entry ready for encoding.
type placedInstance struct {
	inverse    mgl32.Mat4
	instanceID uint32
	mask       uint32
	blas       backend.Traversable
	blob       []byte
}

func maxNodes(n int) int {
	return max(2*n-1, 1)
}

// blasBlobSize is the largest blob a BLAS over n triangles encodes to.
func blasBlobSize(n int) uint64 {
	return uint64(headerWords+maxNodes(n)*nodeWords+n+n*triangleWords) * 4
}

// tlasBlobSize is the largest blob a TLAS over n instances encodes to, excluding the BLAS blobs.
func tlasBlobSize(n int) uint64 {
	return uint64(headerWords+maxNodes(n)*nodeWords+n+n*instanceWords) * 4
}

// writeTree writes the header and nodes of t and returns the word offset after the order array.
func writeTree(blob []byte, t *bvh.Tree) uint32 {
	orderOff := uint32(headerWords + len(t.Nodes)*nodeWords)
	payloadOff := orderOff + uint32(len(t.Order))
	binary.LittleEndian.PutUint32(blob[0:], uint32(len(t.Nodes)))
	binary.LittleEndian.PutUint32(blob[4:], uint32(len(t.Order)))
	binary.LittleEndian.PutUint32(blob[8:], orderOff)
	binary.LittleEndian.PutUint32(blob[12:], payloadOff)
	for i := range t.Nodes {
		t.Nodes[i].MarshalTo(blob[(headerWords+i*nodeWords)*4:])
	}
	for i, idx := range t.Order {
		binary.LittleEndian.PutUint32(blob[(int(orderOff)+i)*4:], uint32(idx))
	}
	return payloadOff
}

// encodeBLAS encodes a bottom-level tree and its triangles.
func encodeBLAS(t *bvh.Tree, triangles [][3]mgl32.Vec3) []byte {
	words := headerWords + len(t.Nodes)*nodeWords + len(t.Order) + len(triangles)*triangleWords
	blob := make([]byte, words*4)
	off := int(writeTree(blob, t)) * 4
	for _, tri := range triangles {
		for _, corner := range tri {
			for k := range 3 {
				binary.LittleEndian.PutUint32(blob[off:], math.Float32bits(corner[k]))
				off += 4
			}
		}
	}
	return blob
}

// encodeTLAS encodes a top-level tree, its instance records and every BLAS blob they reference.
// Instances sharing a BLAS share one copy of its blob.
func encodeTLAS(t *bvh.Tree, instances []placedInstance) []byte {
	words := headerWords + len(t.Nodes)*nodeWords + len(t.Order) + len(instances)*instanceWords
	offsets := make(map[backend.Traversable]uint32, len(instances))
	var blasOrder []*placedInstance
	next := uint32(words)
	for i := range instances {
		inst := &instances[i]
		if _, ok := offsets[inst.blas]; ok {
			continue
		}
		offsets[inst.blas] = next
		next += uint32(len(inst.blob) / 4)
		blasOrder = append(blasOrder, inst)
	}

	blob := make([]byte, int(next)*4)
	off := int(writeTree(blob, t)) * 4
	for _, inst := range instances {
		rows := common.RowMajor3x4(inst.inverse)
		for k, v := range rows {
			binary.LittleEndian.PutUint32(blob[off+k*4:], math.Float32bits(v))
		}
		binary.LittleEndian.PutUint32(blob[off+48:], inst.instanceID)
		binary.LittleEndian.PutUint32(blob[off+52:], inst.mask)
		binary.LittleEndian.PutUint32(blob[off+56:], offsets[inst.blas])
		binary.LittleEndian.PutUint32(blob[off+60:], 0)
		off += instanceWords * 4
	}
	for _, inst := range blasOrder {
		copy(blob[offsets[inst.blas]*4:], inst.blob)
	}
	return blob
}
