// Package backend defines the device contract the scene and frame controller are written against:
// streams, buffers, acceleration structures and kernel launches. Implementations live in the
// software and webgpu subpackages.
package backend

import (
	"errors"
	"fmt"
)

// Stream identifies an in-order queue of device work.
type Stream uint64

// Buffer identifies a device allocation.
type Buffer uint64

// Accel identifies an acceleration structure object.
type Accel uint64

// Traversable is the opaque handle a kernel uses to trace against a built acceleration structure.
// The zero value is the empty-scene sentinel.
type Traversable uint64

// AccelKind selects bottom-level (triangles) or top-level (instances) structures.
type AccelKind int

const (
	AccelBottom AccelKind = iota
	AccelTop
)

func (k AccelKind) String() string {
	switch k {
	case AccelBottom:
		return "BLAS"
	case AccelTop:
		return "TLAS"
	default:
		return fmt.Sprintf("AccelKind(%d)", int(k))
	}
}

// TriangleInput describes one triangle list. Vertex positions are three float32 at offset 0 of every
// VertexStride bytes; indices are three uint32 per triangle.
type TriangleInput struct {
	VertexBuffer  Buffer
	VertexStride  uint32
	VertexCount   uint32
	IndexBuffer   Buffer
	TriangleCount uint32
}

// InstanceInput points at Count records encoded with Instance.MarshalTo.
type InstanceInput struct {
	Buffer Buffer
	Count  uint32
}

// BuildInputs holds the geometry for one build. Triangles is used for AccelBottom, Instances for AccelTop.
type BuildInputs struct {
	Kind      AccelKind
	Triangles []TriangleInput
	Instances InstanceInput
}

// Primitives returns the number of triangles or instances the inputs describe.
func (in BuildInputs) Primitives() int {
	if in.Kind == AccelTop {
		return int(in.Instances.Count)
	}
	n := 0
	for _, t := range in.Triangles {
		n += int(t.TriangleCount)
	}
	return n
}

// BuildOptions are the build flags.
type BuildOptions struct {
	PreferFastBuild bool
	AllowUpdate     bool
	AllowCompaction bool
}

// MemoryRequirements are the buffer sizes a build needs.
type MemoryRequirements struct {
	OutputSize  uint64
	ScratchSize uint64
}

// Backend is the device contract.
//
// Work submitted on one stream executes in submission order. Host access through MapBuffer is
// only coherent with device work once the stream that touched the buffer has been waited on.
type Backend interface {
	// Name returns a short backend identifier.
	Name() string

	// CreateStream creates a new in-order queue.
	CreateStream() (Stream, error)
	// DestroyStream waits for and releases a stream. Unknown streams are ignored.
	DestroyStream(s Stream)
	// StreamDone reports whether every submission on s has completed.
	StreamDone(s Stream) bool
	// WaitStream blocks until every submission on s has completed.
	WaitStream(s Stream) error
	// WaitAll blocks until every stream is idle.
	WaitAll() error

	// CreateBuffer allocates size bytes of zeroed device memory.
	CreateBuffer(label string, size uint64) (Buffer, error)
	// DestroyBuffer releases a buffer. Unknown buffers are ignored.
	DestroyBuffer(b Buffer)
	// MapBuffer returns a host view of the buffer.
	MapBuffer(b Buffer) ([]byte, error)
	// UnmapBuffer publishes host writes made through the view returned by MapBuffer.
	UnmapBuffer(b Buffer) error
	// BufferSize returns the allocation size, or 0 for unknown buffers.
	BufferSize(b Buffer) uint64

	// CreateAccel creates an unbuilt acceleration structure object.
	CreateAccel(kind AccelKind) (Accel, error)
	// DestroyAccel releases an acceleration structure. Its traversable handle becomes invalid.
	DestroyAccel(a Accel)
	// AccelMemoryRequirements returns the output and scratch sizes a build of in needs.
	AccelMemoryRequirements(a Accel, in BuildInputs, opts BuildOptions) (MemoryRequirements, error)
	// BuildAccel builds a into output using scratch, ordered on stream s. The input buffers are
	// consumed before it returns, so they may be rewritten afterwards. On error the previous build
	// of a, if any, stays valid.
	BuildAccel(s Stream, a Accel, in BuildInputs, opts BuildOptions, scratch, output Buffer) error
	// Traversable returns the handle of the last successful build of a.
	Traversable(a Accel) (Traversable, error)

	// LaunchKernel runs the trace kernel over a width x height grid on stream s with the launch
	// parameters stored in params.
	LaunchKernel(s Stream, params Buffer, width, height uint32) error

	// Close waits for all work and releases every resource the backend owns.
	Close() error
}

var (
	ErrUnknownStream    = errors.New("backend: unknown stream")
	ErrUnknownBuffer    = errors.New("backend: unknown buffer")
	ErrUnknownAccel     = errors.New("backend: unknown acceleration structure")
	ErrNotBuilt         = errors.New("backend: acceleration structure has not been built")
	ErrBufferTooSmall   = errors.New("backend: buffer too small")
	ErrInvalidBuild     = errors.New("backend: invalid build inputs")
	ErrClosed           = errors.New("backend: closed")
	ErrNoKernel         = errors.New("backend: no kernel")
	ErrUnknownTraversal = errors.New("backend: unknown traversable handle")
)
