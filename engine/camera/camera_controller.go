package camera

import (
	"math"
	"sync"

	"github.com/Carmen-Shannon/oxy-trace/common"
	"github.com/go-gl/mathgl/mgl32"
)

// cameraControllerImpl is the single implementation of CameraController.
// Orbit methods modify spherical coordinates and recompute position; Pan translates both
// position and target along the local camera axes, preserving the orbit relationship.
type cameraControllerImpl struct {
	mu *sync.Mutex

	// Camera position (computed from target + spherical coords)
	position mgl32.Vec3
	target   mgl32.Vec3

	// Spherical coordinates (offset from target)
	radius    float32
	azimuth   float32 // Horizontal angle around Y axis
	elevation float32 // Vertical angle from horizontal plane

	minRadius    float32
	maxRadius    float32
	minElevation float32
	maxElevation float32

	zoomSpeed float32
	panSpeed  float32
}

// CameraController owns an orbiting pose around a target. Cameras read Position and Target from it
// in Update.
type CameraController interface {
	// Position returns the camera's world-space position.
	Position() mgl32.Vec3

	// Target returns the look-at point.
	Target() mgl32.Vec3

	// SetTarget sets the orbit pivot and recomputes the position.
	SetTarget(target mgl32.Vec3)

	// Orbit rotates around the target. Elevation is clamped to its bounds.
	//
	// Parameters:
	//   - dAzimuth: change of the horizontal angle in radians
	//   - dElevation: change of the vertical angle in radians
	Orbit(dAzimuth, dElevation float32)

	// Zoom moves toward the target by delta times the zoom speed, clamped to the radius bounds.
	// Positive delta zooms in.
	Zoom(delta float32)

	// Pan translates position and target along the camera's right and up axes.
	//
	// Parameters:
	//   - dRight: distance along the right axis, scaled by the pan speed
	//   - dUp: distance along the up axis, scaled by the pan speed
	Pan(dRight, dUp float32)

	// Radius returns the distance from the target.
	Radius() float32

	// SetRadius sets the distance from the target, clamped to the radius bounds.
	SetRadius(radius float32)

	// Azimuth returns the horizontal angle in radians.
	Azimuth() float32

	// SetAzimuth sets the horizontal angle in radians.
	SetAzimuth(azimuth float32)

	// Elevation returns the vertical angle in radians.
	Elevation() float32

	// SetElevation sets the vertical angle in radians, clamped to the elevation bounds.
	SetElevation(elevation float32)
}

var _ CameraController = &cameraControllerImpl{}

// NewOrbitController creates an orbit controller looking at the origin from a radius of 10.
//
// Parameters:
//   - options: functional options to configure the controller
//
// Returns:
//   - CameraController: the newly created controller
func NewOrbitController(options ...CameraControllerOption) CameraController {
	cc := &cameraControllerImpl{
		mu: &sync.Mutex{},

		radius:    10.0,
		azimuth:   0.0,
		elevation: float32(math.Pi / 6),

		minRadius:    0.1,
		maxRadius:    1000.0,
		minElevation: float32(-math.Pi/2 + 0.05),
		maxElevation: float32(math.Pi/2 - 0.05),

		zoomSpeed: 1.0,
		panSpeed:  1.0,
	}

	for _, option := range options {
		option(cc)
	}

	cc.radius = mgl32.Clamp(cc.radius, cc.minRadius, cc.maxRadius)
	cc.elevation = mgl32.Clamp(cc.elevation, cc.minElevation, cc.maxElevation)
	cc.updatePosition()
	return cc
}

// updatePosition recomputes the camera position from spherical coordinates.
// Caller must hold the mutex.
func (cc *cameraControllerImpl) updatePosition() {
	cosElev := float32(math.Cos(float64(cc.elevation)))
	sinElev := float32(math.Sin(float64(cc.elevation)))
	cosAzim := float32(math.Cos(float64(cc.azimuth)))
	sinAzim := float32(math.Sin(float64(cc.azimuth)))

	cc.position = cc.target.Add(mgl32.Vec3{
		cc.radius * cosElev * sinAzim,
		cc.radius * sinElev,
		cc.radius * cosElev * cosAzim,
	})
}

func (cc *cameraControllerImpl) Position() mgl32.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.position
}

func (cc *cameraControllerImpl) Target() mgl32.Vec3 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.target
}

func (cc *cameraControllerImpl) SetTarget(target mgl32.Vec3) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.target = target
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Orbit(dAzimuth, dElevation float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.azimuth += dAzimuth
	cc.elevation = mgl32.Clamp(cc.elevation+dElevation, cc.minElevation, cc.maxElevation)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Zoom(delta float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.radius = mgl32.Clamp(cc.radius-delta*cc.zoomSpeed, cc.minRadius, cc.maxRadius)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Pan(dRight, dUp float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()

	right, up, _ := common.LookBasis(cc.position, cc.target, mgl32.Vec3{0, 1, 0})
	offset := right.Mul(dRight * cc.panSpeed).Add(up.Mul(dUp * cc.panSpeed))
	cc.target = cc.target.Add(offset)
	cc.position = cc.position.Add(offset)
}

func (cc *cameraControllerImpl) Radius() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.radius
}

func (cc *cameraControllerImpl) SetRadius(radius float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.radius = mgl32.Clamp(radius, cc.minRadius, cc.maxRadius)
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Azimuth() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.azimuth
}

func (cc *cameraControllerImpl) SetAzimuth(azimuth float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.azimuth = azimuth
	cc.updatePosition()
}

func (cc *cameraControllerImpl) Elevation() float32 {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	return cc.elevation
}

func (cc *cameraControllerImpl) SetElevation(elevation float32) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.elevation = mgl32.Clamp(elevation, cc.minElevation, cc.maxElevation)
	cc.updatePosition()
}
