// Package renderer drives frames: it owns the stream chain, the progressive accumulation counter,
// the per-frame launch parameters and the scene handler they point at.
package renderer

import (
	"errors"
	"fmt"
	"sync"

	"github.com/Carmen-Shannon/oxy-trace/engine/accel"
	"github.com/Carmen-Shannon/oxy-trace/engine/backend"
	"github.com/Carmen-Shannon/oxy-trace/engine/camera"
	"github.com/Carmen-Shannon/oxy-trace/engine/errs"
	"github.com/Carmen-Shannon/oxy-trace/engine/log"
	"github.com/Carmen-Shannon/oxy-trace/engine/node"
	"github.com/Carmen-Shannon/oxy-trace/engine/scene"
)

var logger = log.New("renderer")

const (
	DefaultMaxPathLength = 8
	DefaultStreamCount   = 2
	DefaultWidth         = 640
	DefaultHeight        = 360
)

// RenderInput carries per-frame input from the application.
type RenderInput struct {
	// Width and Height resize the image when both are non-zero and differ from the current size.
	// A resize changes the camera aspect and restarts accumulation.
	Width  uint32
	Height uint32
}

// renderer is the implementation of the Renderer interface.
type renderer struct {
	mu *sync.Mutex
	b  backend.Backend

	maxAccumFrames uint32
	maxPathLength  uint32
	jitter         bool
	streamCount    int
	width          uint32
	height         uint32
	sceneOptions   []scene.SceneHandlerBuilderOption

	cam    camera.Camera
	scene  scene.SceneHandler
	chain  StreamChain
	accum  *Accumulator
	params []backend.Buffer

	initialized    bool
	currentCamera  camera.PerspectiveCamera
	previousCamera camera.PerspectiveCamera
	lastParams     GPULaunchParams
	frames         uint64
}

// Renderer is the frame controller. Render submits one frame and returns without waiting for it;
// the stream chain keeps at most StreamCount frames in flight.
// Thread-safe for concurrent access.
type Renderer interface {
	// Initialize creates the stream chain, the scene handler and the per-stream parameter buffers.
	//
	// Returns:
	//   - error: a failure wrapping errs.ErrBackendBuild, nothing is left allocated
	Initialize() error

	// Initialized reports whether Initialize succeeded and Finalize has not run.
	Initialized() bool

	// Render submits one frame.
	//
	// Parameters:
	//   - input: per-frame input
	//   - updateMotion: the scene moved since the last frame, which restarts accumulation
	//   - frameNumber: the application frame number, passed to the kernel as FrameIndex
	//
	// Returns:
	//   - error: errs.ErrNotInitialized, or a failure to upload parameters or launch the kernel
	Render(input RenderInput, updateMotion bool, frameNumber uint32) error

	// Finalize waits for all streams, then releases the parameter buffers, the scene and the streams.
	Finalize()

	// Accumulation returns the accumulation count of the last frame.
	Accumulation() uint32

	// LaunchParams returns the parameters of the last frame.
	LaunchParams() GPULaunchParams

	// Frames returns the number of frames submitted.
	Frames() uint64

	// ImageSize returns the current image size.
	ImageSize() (width, height uint32)

	// Scene returns the scene handler.
	Scene() scene.SceneHandler

	// Camera returns the camera the renderer reads.
	Camera() camera.Camera

	// Backend returns the backend.
	Backend() backend.Backend

	// AddNode adds a node to the scene and rebuilds the top-level structure.
	//
	// Parameters:
	//   - h: the node handle
	//
	// Returns:
	//   - bool: true if the node is in the scene afterwards
	AddNode(h node.Handle) bool

	// RemoveNode removes a node from the scene and rebuilds the top-level structure.
	RemoveNode(h node.Handle) bool

	// RemoveNodeByID removes a node by ID and rebuilds the top-level structure.
	RemoveNodeByID(id node.NodeID) bool
}

var _ Renderer = &renderer{}

// NewRenderer creates a Renderer over backend b. Panics if b is nil.
// Call Initialize before rendering.
//
// Parameters:
//   - b: the backend
//   - options: variadic list of RendererBuilderOption functions to configure the Renderer
//
// Returns:
//   - Renderer: the new renderer
func NewRenderer(b backend.Backend, options ...RendererBuilderOption) Renderer {
	if b == nil {
		panic("renderer: nil backend")
	}
	r := &renderer{
		mu:             &sync.Mutex{},
		b:              b,
		maxAccumFrames: DefaultMaxAccumFrames,
		maxPathLength:  DefaultMaxPathLength,
		jitter:         true,
		streamCount:    DefaultStreamCount,
		width:          DefaultWidth,
		height:         DefaultHeight,
	}
	for _, opt := range options {
		opt(r)
	}
	if r.cam == nil {
		r.cam = camera.NewCamera(camera.WithAspect(float32(r.width) / float32(r.height)))
	}
	r.accum = NewAccumulator(r.maxAccumFrames)
	return r
}

func (r *renderer) Initialize() (err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.initialized {
		return nil
	}
	defer func() {
		if rec := recover(); rec != nil {
			err = errs.Recovered(rec)
		}
		if err != nil {
			r.release()
			logger.Errorf("initialize: %v", err)
		}
	}()

	if r.chain, err = NewStreamChain(r.b, r.streamCount); err != nil {
		return errors.Join(errs.ErrBackendBuild, err)
	}
	for i := range r.chain.Len() {
		buf, e := r.b.CreateBuffer(fmt.Sprintf("launch params %d", i), GPULaunchParamsSize)
		if e != nil {
			return errors.Join(errs.ErrBackendBuild, e)
		}
		r.params = append(r.params, buf)
	}

	// one instance table copy per stream, whatever the scene options say
	opts := append(append([]scene.SceneHandlerBuilderOption{}, r.sceneOptions...), scene.WithInstanceBuffers(r.chain.Len()))
	r.scene = scene.NewSceneHandler(r.b, opts...)
	r.scene.SetStream(r.chain.Current())
	if err = r.scene.Initialize(); err != nil {
		return err
	}

	r.accum.Reset()
	r.initialized = true
	logger.Infof("renderer initialized on %s: %dx%d, %d streams, max %d accumulated frames",
		r.b.Name(), r.width, r.height, r.chain.Len(), r.accum.Max())
	return nil
}

func (r *renderer) Initialized() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.initialized
}

func (r *renderer) Render(input RenderInput, updateMotion bool, frameNumber uint32) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return errs.ErrNotInitialized
	}

	if input.Width > 0 && input.Height > 0 && (input.Width != r.width || input.Height != r.height) {
		r.width, r.height = input.Width, input.Height
		r.cam.SetAspect(float32(r.width) / float32(r.height))
		logger.Debugf("resized to %dx%d", r.width, r.height)
	}

	stream, err := r.chain.Acquire()
	if err != nil {
		logger.Warningf("frame %d: earlier work on stream %d failed: %v", frameNumber, stream, err)
	}
	r.scene.SetStream(stream)

	// camera
	r.previousCamera = r.currentCamera
	cameraChanged := r.cam.IsDirty() || r.cam.HasSettingsChanged()
	if cameraChanged {
		r.currentCamera = r.cam.Snapshot()
		r.cam.SetDirty(false)
	}

	if updateMotion && r.scene.Stats().TLASState == accel.StateNeedsRebuild && !r.scene.BuildAccelerationStructures() {
		logger.Warningf("frame %d: rebuild after motion failed, tracing the previous structure", frameNumber)
	}
	accum := r.accum.Advance(cameraChanged, updateMotion)

	// copy i is only read by frames on stream i, which Acquire has just waited for
	bufferIndex := uint32(r.chain.Index() % r.scene.InstanceBufferCount())
	if err := r.scene.SetActiveBuffer(int(bufferIndex)); err != nil {
		logger.Warningf("frame %d: instance table %d: %v", frameNumber, bufferIndex, err)
	}

	p := GPULaunchParams{
		Traversable:           r.scene.TraversableHandle(),
		NumAccumFrames:        accum,
		FrameIndex:            frameNumber,
		Camera:                r.currentCamera,
		PrevCamera:            r.previousCamera,
		BufferIndex:           bufferIndex,
		MaxPathLength:         r.maxPathLength,
		Width:                 r.width,
		Height:                r.height,
		InstanceTable:         r.scene.InstanceTable(int(bufferIndex)).Buffer(),
		GeometryInstanceTable: r.scene.GeometryInstanceTable().Buffer(),
		MaterialTable:         r.scene.MaterialTable().Buffer(),
	}
	if r.jitter {
		p.EnableJittering = 1
	}
	if accum == 0 {
		p.ResetFlowBuffer = 1
	}

	paramsBuf := r.params[r.chain.Index()]
	if err := r.upload(paramsBuf, p.Marshal()); err != nil {
		return fmt.Errorf("frame %d: launch params: %w", frameNumber, err)
	}
	if err := r.b.LaunchKernel(stream, paramsBuf, r.width, r.height); err != nil {
		return fmt.Errorf("frame %d: launch: %w", frameNumber, err)
	}

	r.lastParams = p
	r.frames++
	return nil
}

func (r *renderer) upload(buf backend.Buffer, data []byte) error {
	view, err := r.b.MapBuffer(buf)
	if err != nil {
		return err
	}
	copy(view, data)
	return r.b.UnmapBuffer(buf)
}

func (r *renderer) Finalize() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.initialized {
		return
	}
	if err := r.chain.WaitAll(); err != nil {
		logger.Warningf("finalize: %v", err)
	}
	r.release()
	logger.Infof("renderer finalized after %d frames", r.frames)
}

// release frees everything Initialize created. The caller holds r.mu.
func (r *renderer) release() {
	for _, buf := range r.params {
		r.b.DestroyBuffer(buf)
	}
	r.params = nil
	if r.scene != nil {
		r.scene.Finalize()
		r.scene = nil
	}
	if r.chain != nil {
		r.chain.Destroy()
		r.chain = nil
	}
	r.initialized = false
}

func (r *renderer) Accumulation() uint32 {
	return r.accum.Count()
}

func (r *renderer) LaunchParams() GPULaunchParams {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastParams
}

func (r *renderer) Frames() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.frames
}

func (r *renderer) ImageSize() (uint32, uint32) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.width, r.height
}

func (r *renderer) Scene() scene.SceneHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.scene
}

func (r *renderer) Camera() camera.Camera {
	return r.cam
}

func (r *renderer) Backend() backend.Backend {
	return r.b
}

func (r *renderer) AddNode(h node.Handle) bool {
	s := r.Scene()
	if s == nil {
		logger.Warningf("add node %s: %v", h.ID(), errs.ErrNotInitialized)
		return false
	}
	logger.Debugf("adding node %s", h.ID())
	if !s.AddRenderableNode(h) {
		logger.Warningf("node %s was not added", h.ID())
		return false
	}
	if s.HasGeometry() && !s.BuildAccelerationStructures() {
		logger.Warningf("node %s added but the rebuild failed; it becomes visible after the next successful rebuild", h.ID())
	}
	return true
}

func (r *renderer) RemoveNode(h node.Handle) bool {
	return r.RemoveNodeByID(h.ID())
}

func (r *renderer) RemoveNodeByID(id node.NodeID) bool {
	s := r.Scene()
	if s == nil {
		logger.Warningf("remove node %s: %v", id, errs.ErrNotInitialized)
		return false
	}
	if !s.RemoveRenderableNodeByID(id) {
		logger.Debugf("node %s was not in the scene", id)
		return false
	}
	if !s.BuildAccelerationStructures() {
		logger.Warningf("node %s removed but the rebuild failed", id)
	}
	return true
}
