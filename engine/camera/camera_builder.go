package camera

import "github.com/go-gl/mathgl/mgl32"

// CameraBuilderOption is a functional option for configuring a Camera.
type CameraBuilderOption func(*cameraImpl)

// WithUp sets the world up direction used to derive the camera basis.
//
// Parameters:
//   - x, y, z: up vector components
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's up vector
func WithUp(x, y, z float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.worldUp = mgl32.Vec3{x, y, z}
	}
}

// WithFovY sets the camera's vertical field of view in radians.
//
// Parameters:
//   - fov: field of view in radians
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's field of view
func WithFovY(fov float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.fovY = fov
	}
}

// WithAspect sets the camera's aspect ratio (width / height).
//
// Parameters:
//   - aspect: the aspect ratio to set
//
// Returns:
//   - CameraBuilderOption: a function that sets the camera's aspect ratio
func WithAspect(aspect float32) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.aspect = aspect
	}
}

// WithPose places the camera at eye, facing target. Ignored when a controller is attached.
func WithPose(eye, target mgl32.Vec3) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.eye, c.target = eye, target
	}
}

// WithController attaches a CameraController to the camera.
//
// Parameters:
//   - ctrl: the camera controller to attach
//
// Returns:
//   - CameraBuilderOption: a function that attaches the controller
func WithController(ctrl CameraController) CameraBuilderOption {
	return func(c *cameraImpl) {
		c.controller = ctrl
	}
}
