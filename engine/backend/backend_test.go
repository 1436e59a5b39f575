package backend

import "testing"

func TestInstanceEncoding(t *testing.T) {
	in := Instance{
		Transform:   [12]float32{1, 0, 0, 5, 0, 1, 0, -2, 0, 0, 1, 3.5},
		InstanceID:  42,
		SBTOffset:   1,
		Mask:        DefaultInstanceMask,
		Traversable: 0xDEADBEEF01,
	}
	buf := in.Marshal()
	if len(buf) != InstanceSize {
		t.Fatalf("expected %d bytes, got %d", InstanceSize, len(buf))
	}
	if got := UnmarshalInstance(buf); got != in {
		t.Fatalf("decoded %+v, want %+v", got, in)
	}
}

func TestBuildInputsPrimitives(t *testing.T) {
	specs := []struct {
		in   BuildInputs
		want int
	}{
		{BuildInputs{Kind: AccelBottom}, 0},
		{BuildInputs{Kind: AccelBottom, Triangles: []TriangleInput{{TriangleCount: 3}, {TriangleCount: 9}}}, 12},
		{BuildInputs{Kind: AccelTop, Instances: InstanceInput{Count: 7}}, 7},
	}
	for index, spec := range specs {
		if got := spec.in.Primitives(); got != spec.want {
			t.Errorf("[spec %d] expected %d primitives; got %d", index, spec.want, got)
		}
	}
}
