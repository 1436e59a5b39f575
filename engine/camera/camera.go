package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/go-gl/mathgl/mgl32"
)

type cameraImpl struct {
	mu *sync.Mutex

	worldUp mgl32.Vec3
	eye     mgl32.Vec3
	target  mgl32.Vec3
	right   mgl32.Vec3
	up      mgl32.Vec3
	forward mgl32.Vec3

	fovY   float32
	aspect float32

	dirty           bool
	settingsChanged bool

	controller CameraController
}

// Camera is the application-owned pinhole camera read by the renderer.
// Moving the camera marks it dirty; changing the lens settings marks the settings changed.
// The renderer takes a snapshot when either is set and then clears both.
type Camera interface {
	// Position returns the world-space eye position.
	Position() mgl32.Vec3

	// Target returns the look-at point.
	Target() mgl32.Vec3

	// Basis returns the orthonormal right, up and forward vectors.
	//
	// Returns:
	//   - right, up, forward: the camera basis
	Basis() (right, up, forward mgl32.Vec3)

	// FovY returns the vertical field of view in radians.
	FovY() float32

	// Aspect returns the aspect ratio (width / height).
	Aspect() float32

	// LookAt moves the camera to eye, facing target, and marks it dirty if the pose changed.
	//
	// Parameters:
	//   - eye: the new eye position
	//   - target: the point to face
	LookAt(eye, target mgl32.Vec3)

	// SetFovY sets the vertical field of view in radians.
	SetFovY(fov float32)

	// SetAspect sets the aspect ratio.
	SetAspect(aspect float32)

	// IsDirty reports whether the pose changed since the last SetDirty(false).
	IsDirty() bool

	// SetDirty sets or clears the dirty flag. Clearing it also clears the settings-changed flag.
	SetDirty(dirty bool)

	// HasSettingsChanged reports whether the field of view or aspect changed since the last SetDirty(false).
	HasSettingsChanged() bool

	// Snapshot returns the GPU representation of the current camera.
	//
	// Returns:
	//   - PerspectiveCamera: the camera snapshot
	Snapshot() PerspectiveCamera

	// Controller returns the attached controller, or nil.
	Controller() CameraController

	// SetController attaches a controller whose pose Update copies into the camera.
	SetController(ctrl CameraController)

	// Update copies the controller's pose into the camera. Does nothing without a controller.
	Update()
}

var _ Camera = &cameraImpl{}

// NewCamera creates a camera at (0, 0, 5) looking at the origin with a 45 degree vertical field of view.
// The new camera starts dirty so the first frame picks it up.
//
// Parameters:
//   - options: functional options to configure the camera
//
// Returns:
//   - Camera: the newly created camera
func NewCamera(options ...CameraBuilderOption) Camera {
	c := &cameraImpl{
		mu:      &sync.Mutex{},
		worldUp: mgl32.Vec3{0, 1, 0},
		eye:     mgl32.Vec3{0, 0, 5},
		fovY:    45.0 * (math.Pi / 180.0),
		aspect:  1.0,
		dirty:   true,
	}
	for _, option := range options {
		option(c)
	}
	if c.controller != nil {
		c.eye, c.target = c.controller.Position(), c.controller.Target()
	}
	c.updateBasis()
	return c
}

func (c *cameraImpl) Position() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.eye
}

func (c *cameraImpl) Target() mgl32.Vec3 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

func (c *cameraImpl) Basis() (right, up, forward mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.right, c.up, c.forward
}

func (c *cameraImpl) FovY() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fovY
}

func (c *cameraImpl) Aspect() float32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.aspect
}

func (c *cameraImpl) LookAt(eye, target mgl32.Vec3) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lookAt(eye, target)
}

func (c *cameraImpl) lookAt(eye, target mgl32.Vec3) {
	if eye.ApproxEqual(c.eye) && target.ApproxEqual(c.target) {
		return
	}
	c.eye, c.target = eye, target
	c.updateBasis()
	c.dirty = true
}

func (c *cameraImpl) SetFovY(fov float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if fov != c.fovY {
		c.fovY = fov
		c.settingsChanged = true
	}
}

func (c *cameraImpl) SetAspect(aspect float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if aspect != c.aspect {
		c.aspect = aspect
		c.settingsChanged = true
	}
}

func (c *cameraImpl) IsDirty() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dirty
}

func (c *cameraImpl) SetDirty(dirty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dirty = dirty
	if !dirty {
		c.settingsChanged = false
	}
}

func (c *cameraImpl) HasSettingsChanged() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.settingsChanged
}

func (c *cameraImpl) Snapshot() PerspectiveCamera {
	c.mu.Lock()
	defer c.mu.Unlock()
	return PerspectiveCamera{
		Position: c.eye,
		FovY:     c.fovY,
		Right:    c.right,
		Aspect:   c.aspect,
		Up:       c.up,
		Forward:  c.forward,
	}
}

func (c *cameraImpl) Controller() CameraController {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.controller
}

func (c *cameraImpl) SetController(ctrl CameraController) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.controller = ctrl
}

func (c *cameraImpl) Update() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.controller == nil {
		return
	}
	c.lookAt(c.controller.Position(), c.controller.Target())
}

// updateBasis recomputes right/up/forward from the pose. Caller must hold the mutex.
func (c *cameraImpl) updateBasis() {
	c.right, c.up, c.forward = common.LookBasis(c.eye, c.target, c.worldUp)
}
