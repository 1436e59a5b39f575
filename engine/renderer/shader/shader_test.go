package shader

import (
	"strings"
	"testing"
)

const testPair = `struct Pair {
    a: vec3<f32>,
    b: u32,
};`

const testFrame = `struct Frame {
    pair: Pair,
    count: u32,
    rest: array<u32, 3>,
};`

const testLibrary = `fn twice(x: u32) -> u32 {
    return x * 2u;
}`

func newTestPreProcessor(frameSize uint64) PreProcessor {
	return NewPreProcessor(
		WithStruct("pair", testPair, "Pair", 16),
		WithStruct("frame", testFrame, "Frame", frameSize),
		WithLibrary("twice", testLibrary),
	)
}

func TestParseAnnotation(t *testing.T) {
	tests := []struct {
		line    string
		isNil   bool
		wantErr bool
		typ     AnnotationType
	}{
		{"let x = 1u;", true, false, ""},
		{"// plain comment", true, false, ""},
		{"//@oxy:include pair", false, false, AnnotationTypeInclude},
		{"  //@oxy:group 1 2 storage_read frame frame", false, false, AnnotationTypeBindingGroup},
		{"//@oxy:", false, true, ""},
		{"//@oxy:include", false, true, ""},
		{"//@oxy:group x 0 storage_read f frame", false, true, ""},
		{"//@oxy:group 0 -1 storage_read f frame", false, true, ""},
		{"//@oxy:group 0 0 private f frame", false, true, ""},
		{"//@oxy:provider 0 0 material", false, true, ""},
	}

	for i, tt := range tests {
		a, err := parseAnnotation(tt.line, i+1)
		if (err != nil) != tt.wantErr {
			t.Errorf("[spec %d] %q: expected error=%v; got %v", i, tt.line, tt.wantErr, err)
			continue
		}
		if tt.wantErr {
			continue
		}
		if (a == nil) != tt.isNil {
			t.Errorf("[spec %d] %q: expected nil=%v; got %+v", i, tt.line, tt.isNil, a)
			continue
		}
		if a != nil && a.Type != tt.typ {
			t.Errorf("[spec %d] %q: expected type %s; got %s", i, tt.line, tt.typ, a.Type)
		}
	}
}

func TestProcess(t *testing.T) {
	pp := newTestPreProcessor(32)
	src := strings.Join([]string{
		"//@oxy:include pair",
		"//@oxy:include frame",
		"//@oxy:include pair",
		"//@oxy:include twice",
		"//@oxy:group 0 0 storage_uniform frame frame",
		"//@oxy:group 0 1 storage_read_write pairs array<pair>",
		"//@oxy:group 1 0 storage_read words array<u32>",
	}, "\n")

	out, err := pp.Process(src)
	if err != nil {
		t.Fatalf("expected no error; got %v", err)
	}
	if n := strings.Count(out, "struct Pair"); n != 1 {
		t.Fatalf("expected Pair to be included once; got %d", n)
	}
	for i, want := range []string{
		"fn twice",
		"@group(0) @binding(0) var<uniform> frame: Frame;",
		"@group(0) @binding(1) var<storage, read_write> pairs: array<Pair>;",
		"@group(1) @binding(0) var<storage, read> words: array<u32>;",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("[spec %d] expected output to contain %q", i, want)
		}
	}

	decls := pp.Declarations()
	if len(decls) != 3 || *decls[1].Group != 0 || *decls[1].Binding != 1 || decls[1].Args[1] != "pairs" {
		t.Fatalf("unexpected declarations %+v", decls)
	}

	if _, err := pp.Process("//@oxy:include pair"); err != nil {
		t.Fatalf("expected no error; got %v", err)
	}
	if len(pp.Declarations()) != 0 {
		t.Fatal("declarations should reset on every Process call")
	}
}

func TestProcessErrors(t *testing.T) {
	tests := []struct {
		name   string
		source string
		size   uint64
		want   string
	}{
		{"unknown include", "//@oxy:include light", 32, "unknown @oxy:include"},
		{"unknown type", "//@oxy:group 0 0 storage_read l light", 32, "unknown type"},
		{"bare primitive", "//@oxy:group 0 0 storage_read w u32", 32, "unknown type"},
		{"library type", "//@oxy:group 0 0 storage_read t twice", 32, "can only be included"},
		{"size mismatch", "//@oxy:include frame\n//@oxy:include pair", 40, "is 32 bytes"},
	}

	for i, tt := range tests {
		_, err := newTestPreProcessor(tt.size).Process(tt.source)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("[spec %d] %s: expected an error containing %q; got %v", i, tt.name, tt.want, err)
		}
	}
}

func TestStructLayout(t *testing.T) {
	sizes := computeStructSizes(parseStructBlocks(stripComments(testFrame + "\n" + testPair + `
struct Tail {
    n: u32,
    data: array<vec4<f32>>,
};`)))

	tests := []struct {
		name  string
		size  uint64
		align uint64
	}{
		{"Pair", 16, 16},
		{"Frame", 32, 16},
		{"Tail", 16, 16},
	}
	for i, tt := range tests {
		got, ok := sizes[tt.name]
		if !ok || got.size != tt.size || got.align != tt.align {
			t.Errorf("[spec %d] %s: expected size %d align %d; got %+v ok=%v", i, tt.name, tt.size, tt.align, got, ok)
		}
	}
}

func TestNewComputeShader(t *testing.T) {
	src := `//@oxy:include frame
//@oxy:include pair
//@oxy:group 0 0 storage_read frame frame
@group(0) @binding(3) var<storage, read_write> out: array<u32>;

/* @compute @workgroup_size(1) fn old() {} */
@compute @workgroup_size(16, 4)
fn run(@builtin(global_invocation_id) gid: vec3<u32>) {
    out[gid.x] = frame.count;
}`

	s, err := NewComputeShader("test", src, newTestPreProcessor(32))
	if err != nil {
		t.Fatalf("expected no error; got %v", err)
	}
	if s.Key() != "test" || s.EntryPoint() != "run" {
		t.Fatalf("unexpected key %q or entry point %q", s.Key(), s.EntryPoint())
	}
	if ws := s.WorkgroupSize(); ws != [3]uint32{16, 4, 1} {
		t.Fatalf("expected workgroup size [16 4 1]; got %v", ws)
	}

	bindings := s.Bindings()
	if len(bindings) != 2 || bindings[0].Binding != 0 || bindings[1].Binding != 3 {
		t.Fatalf("unexpected bindings %+v", bindings)
	}
	if b, ok := s.Binding(0, 0); !ok || b.Type != "Frame" || b.MinSize != 32 || b.AddressSpace != "storage, read" {
		t.Fatalf("unexpected frame binding %+v ok=%v", b, ok)
	}
	if b, ok := s.Binding(0, 3); !ok || b.MinSize != 4 {
		t.Fatalf("unexpected out binding %+v ok=%v", b, ok)
	}
	if _, ok := s.Binding(1, 0); ok {
		t.Fatal("expected no binding in group 1")
	}
	if len(s.Declarations()) != 1 {
		t.Fatalf("expected one declaration; got %d", len(s.Declarations()))
	}

	if _, err := NewComputeShader("none", "fn f() {}", nil); err == nil {
		t.Fatal("expected an error for a source without a compute entry point")
	}
}

func TestProcessSharedSource(t *testing.T) {
	both := testPair + "\n" + testFrame
	pp := NewPreProcessor(
		WithStruct("pair", both, "Pair", 16),
		WithStruct("frame", both, "Frame", 32),
	)
	out, err := pp.Process("//@oxy:include pair\n//@oxy:include frame")
	if err != nil {
		t.Fatalf("expected no error; got %v", err)
	}
	if n := strings.Count(out, "struct Frame"); n != 1 {
		t.Fatalf("expected a shared source to be injected once; got %d", n)
	}

	pp = NewPreProcessor(
		WithStruct("pair", both, "Pair", 16),
		WithStruct("frame", both, "Frame", 36),
	)
	if _, err := pp.Process("//@oxy:include pair\n//@oxy:include frame"); err == nil {
		t.Fatal("expected the second key of a shared source to be checked")
	}
}

func TestPrimitiveLayout(t *testing.T) {
	tests := []struct {
		name  string
		ok    bool
		size  uint64
		align uint64
	}{
		{"u32", true, 4, 4},
		{"f16", true, 2, 2},
		{"vec2<u32>", true, 8, 8},
		{"vec2u", true, 8, 8},
		{"vec3<f32>", true, 12, 16},
		{"vec3f", true, 12, 16},
		{"vec4h", true, 8, 8},
		{"mat3x3<f32>", true, 48, 16},
		{"mat4x4<f32>", true, 64, 16},
		{"mat2x2<f32>", true, 16, 8},
		{"atomic<u32>", true, 4, 4},
		{"vec5<f32>", false, 0, 0},
		{"vec3<bool>", false, 0, 0},
		{"LaunchParams", false, 0, 0},
	}

	for i, tt := range tests {
		got, ok := primitiveLayout(tt.name)
		if ok != tt.ok || got.size != tt.size || got.align != tt.align {
			t.Errorf("[spec %d] %s: expected ok=%v size %d align %d; got ok=%v %+v", i, tt.name, tt.ok, tt.size, tt.align, ok, got)
		}
	}
}
