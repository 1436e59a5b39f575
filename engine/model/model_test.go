package model

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestValidate(t *testing.T) {
	tri := []mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}

	specs := []struct {
		name string
		m    Model
		exp  error
	}{
		{"empty", NewModel(), ErrNoPositions},
		{"no surfaces", NewModel(WithPositions(tri)), ErrNoTriangles},
		{"empty surface", NewModel(WithPositions(tri), WithSurface(nil, nil)), ErrNoTriangles},
		{"index out of range", NewModel(WithPositions(tri), WithSurface([]Triangle{{0, 1, 3}}, nil)), ErrIndexOutOfRange},
		{"valid", NewModel(WithPositions(tri), WithSurface([]Triangle{{0, 1, 2}}, nil)), nil},
		{"replaced surfaces", NewModel(WithPositions(tri), WithSurface(nil, nil), WithSurfaces(Surface{Triangles: []Triangle{{2, 1, 0}}})), nil},
	}

	for _, spec := range specs {
		err := spec.m.Validate()
		if spec.exp == nil && err != nil {
			t.Errorf("[%s] unexpected error %v", spec.name, err)
		}
		if spec.exp != nil && !errors.Is(err, spec.exp) {
			t.Errorf("[%s] expected %v; got %v", spec.name, spec.exp, err)
		}
	}
}

func TestPrimitives(t *testing.T) {
	specs := []struct {
		name      string
		m         Model
		vertices  int
		triangles int
	}{
		{"cube", NewCube(2, nil), 24, 12},
		{"plane", NewPlane(4, nil), 4, 2},
		{"sphere", NewUVSphere(1, 8, 4, nil), 9 * 5, 8*4*2 - 2*8},
	}

	for _, spec := range specs {
		if err := spec.m.Validate(); err != nil {
			t.Errorf("[%s] invalid primitive: %v", spec.name, err)
		}
		if spec.m.VertexCount() != spec.vertices {
			t.Errorf("[%s] expected %d vertices; got %d", spec.name, spec.vertices, spec.m.VertexCount())
		}
		if spec.m.TriangleCount() != spec.triangles {
			t.Errorf("[%s] expected %d triangles; got %d", spec.name, spec.triangles, spec.m.TriangleCount())
		}
	}

	b := NewCube(2, nil).Bounds()
	if b.Min != (mgl32.Vec3{-1, -1, -1}) || b.Max != (mgl32.Vec3{1, 1, 1}) {
		t.Fatalf("unexpected cube bounds %v", b)
	}
}

func TestGPUVertexMarshal(t *testing.T) {
	v := GPUVertex{
		Position: [3]float32{1, 2, 3},
		Normal:   [3]float32{0, 1, 0},
		Tangent:  [3]float32{1, 0, 0},
		TexCoord: [2]float32{0.5, 0.25},
	}
	buf := v.Marshal()
	if len(buf) != GPUVertexSize || v.Size() != GPUVertexSize {
		t.Fatalf("unexpected vertex size len=%d size=%d", len(buf), v.Size())
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[8:])); got != 3 {
		t.Fatalf("expected position z=3, got %f", got)
	}
	if got := math.Float32frombits(binary.LittleEndian.Uint32(buf[40:])); got != 0.25 {
		t.Fatalf("expected v=0.25, got %f", got)
	}
}

func TestMarshalTriangles(t *testing.T) {
	buf := MarshalTriangles([]Triangle{{0, 1, 2}, {2, 3, 0}})
	if len(buf) != 2*GPUTriangleSize {
		t.Fatalf("unexpected length %d", len(buf))
	}
	if binary.LittleEndian.Uint32(buf[16:]) != 3 {
		t.Fatalf("unexpected second triangle %v", buf[12:])
	}
}
