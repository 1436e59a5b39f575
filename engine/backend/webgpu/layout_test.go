package webgpu

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/Carmen-Shannon/oxy-trace/engine/backend"
	"github.com/Carmen-Shannon/oxy-trace/engine/bvh"
	"github.com/go-gl/mathgl/mgl32"
)

func word(blob []byte, i uint32) uint32 {
	return binary.LittleEndian.Uint32(blob[i*4:])
}

func triangleTree(tris [][3]mgl32.Vec3) *bvh.Tree {
	items := make([]bvh.Item, len(tris))
	for i, tri := range tris {
		items[i] = bvh.Item{Bounds: common.EmptyAABB().Extend(tri[0]).Extend(tri[1]).Extend(tri[2]), Index: i}
	}
	return bvh.Build(items)
}

func strip(n int) [][3]mgl32.Vec3 {
	tris := make([][3]mgl32.Vec3, n)
	for i := range tris {
		x := float32(i)
		tris[i] = [3]mgl32.Vec3{{x, 0, 0}, {x + 1, 0, 0}, {x, 1, 0}}
	}
	return tris
}

func TestEncodeBLAS(t *testing.T) {
	tests := []int{1, 4, 5, 17}

	for i, n := range tests {
		tris := strip(n)
		tree := triangleTree(tris)
		blob := encodeBLAS(tree, tris)

		if uint64(len(blob)) > blasBlobSize(n) {
			t.Errorf("[spec %d] expected at most %d bytes; got %d", i, blasBlobSize(n), len(blob))
		}
		h := readHeader(blob)
		if int(h.NodeCount) != len(tree.Nodes) || int(h.PrimCount) != n {
			t.Errorf("[spec %d] expected %d nodes and %d triangles; got %+v", i, len(tree.Nodes), n, h)
			continue
		}
		if h.OrderOffset != uint32(headerWords+len(tree.Nodes)*nodeWords) || h.PayloadOffset != h.OrderOffset+uint32(n) {
			t.Errorf("[spec %d] unexpected offsets %+v", i, h)
		}

		root := bvh.Unmarshal(blob[headerWords*4:])
		if root.Min != tree.Nodes[0].Min || root.Max != tree.Nodes[0].Max {
			t.Errorf("[spec %d] expected root %v-%v; got %v-%v", i, tree.Nodes[0].Min, tree.Nodes[0].Max, root.Min, root.Max)
		}

		// the last triangle's third corner y
		last := h.PayloadOffset + uint32(n*triangleWords) - 2
		if y := math.Float32frombits(word(blob, last)); y != 1 {
			t.Errorf("[spec %d] expected trailing vertex y=1; got %v", i, y)
		}
	}
}

func TestEncodeTLASSharesBLAS(t *testing.T) {
	tris := strip(3)
	blasA := encodeBLAS(triangleTree(tris), tris)
	blasB := encodeBLAS(triangleTree(tris[:1]), tris[:1])

	placed := []placedInstance{
		{inverse: mgl32.Ident4(), instanceID: 7, mask: backend.DefaultInstanceMask, blas: 1, blob: blasA},
		{inverse: mgl32.Translate3D(-5, 0, 0), instanceID: 8, mask: backend.DefaultInstanceMask, blas: 2, blob: blasB},
		{inverse: mgl32.Translate3D(5, 0, 0), instanceID: 9, mask: 0, blas: 1, blob: blasA},
	}
	items := []bvh.Item{
		{Bounds: common.AABB{Min: mgl32.Vec3{0, 0, 0}, Max: mgl32.Vec3{4, 1, 0}}, Index: 0},
		{Bounds: common.AABB{Min: mgl32.Vec3{5, 0, 0}, Max: mgl32.Vec3{6, 1, 0}}, Index: 1},
		{Bounds: common.AABB{Min: mgl32.Vec3{-5, 0, 0}, Max: mgl32.Vec3{-1, 1, 0}}, Index: 2},
	}
	tree := bvh.Build(items)
	blob := encodeTLAS(tree, placed)

	tlasWords := headerWords + len(tree.Nodes)*nodeWords + len(tree.Order) + len(placed)*instanceWords
	want := tlasWords*4 + len(blasA) + len(blasB)
	if len(blob) != want {
		t.Fatalf("expected %d bytes with each BLAS stored once; got %d", want, len(blob))
	}
	if uint64(len(blob)) > tlasBlobSize(len(placed))+uint64(len(blasA)+len(blasB)) {
		t.Fatalf("blob exceeds its size bound")
	}

	h := readHeader(blob)
	tests := []struct {
		id, mask, blasOffset uint32
		tx                   float32
	}{
		{7, backend.DefaultInstanceMask, uint32(tlasWords), 0},
		{8, backend.DefaultInstanceMask, uint32(tlasWords + len(blasA)/4), -5},
		{9, 0, uint32(tlasWords), 5},
	}
	for i, tt := range tests {
		rec := h.PayloadOffset + uint32(i*instanceWords)
		if got := word(blob, rec+12); got != tt.id {
			t.Errorf("[spec %d] expected instance ID %d; got %d", i, tt.id, got)
		}
		if got := word(blob, rec+13); got != tt.mask {
			t.Errorf("[spec %d] expected mask %d; got %d", i, tt.mask, got)
		}
		if got := word(blob, rec+14); got != tt.blasOffset {
			t.Errorf("[spec %d] expected BLAS offset %d; got %d", i, tt.blasOffset, got)
		}
		if tx := math.Float32frombits(word(blob, rec+3)); tx != tt.tx {
			t.Errorf("[spec %d] expected inverse translation %v; got %v", i, tt.tx, tx)
		}
	}

	embedded := readHeader(blob[tlasWords*4:])
	if embedded.PrimCount != 3 {
		t.Fatalf("expected the first embedded BLAS to hold 3 triangles; got %d", embedded.PrimCount)
	}
}

func TestTraversableAt(t *testing.T) {
	params := make([]byte, 16)
	binary.LittleEndian.PutUint64(params, 42)

	if got := traversableAt(params); got != 42 {
		t.Fatalf("expected handle 42; got %d", got)
	}
	if got := traversableAt(params[:4]); got != 0 {
		t.Fatalf("expected 0 for a short block; got %d", got)
	}
}
