package common

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// singularEpsilon is the determinant magnitude below which a 3x3 block is treated as singular.
const singularEpsilon = 1e-12

// RowMajor3x4 flattens the upper 3x4 block of a column-major 4x4 transform into the
// row-major layout used by instance descriptors (the implicit fourth row is 0,0,0,1).
//
// Parameters:
//   - m: the world transform
//
// Returns:
//   - [12]float32: the transform as three rows of four floats
func RowMajor3x4(m mgl32.Mat4) [12]float32 {
	var out [12]float32
	for row := range 3 {
		for col := range 4 {
			out[row*4+col] = m.At(row, col)
		}
	}
	return out
}

// FromRowMajor3x4 rebuilds a 4x4 transform from its row-major 3x4 form.
//
// Parameters:
//   - rows: the row-major 3x4 transform
//
// Returns:
//   - mgl32.Mat4: the expanded transform
func FromRowMajor3x4(rows [12]float32) mgl32.Mat4 {
	m := mgl32.Ident4()
	for row := range 3 {
		for col := range 4 {
			m.Set(row, col, rows[row*4+col])
		}
	}
	return m
}

// NormalMatrix returns the inverse-transpose of the upper 3x3 block of a transform.
// A singular block yields the identity so degenerate transforms still shade.
//
// Parameters:
//   - m: the world transform
//
// Returns:
//   - mgl32.Mat3: the normal matrix
func NormalMatrix(m mgl32.Mat4) mgl32.Mat3 {
	upper := m.Mat3()
	if math.Abs(float64(upper.Det())) < singularEpsilon {
		return mgl32.Ident3()
	}
	return upper.Inv().Transpose()
}

// SafeNormalize normalizes v, returning fallback when v has no usable length.
//
// Parameters:
//   - v: the vector to normalize
//   - fallback: the value returned for zero-length or non-finite input
//
// Returns:
//   - mgl32.Vec3: the unit vector
func SafeNormalize(v, fallback mgl32.Vec3) mgl32.Vec3 {
	l := v.Len()
	if l == 0 || math.IsNaN(float64(l)) || math.IsInf(float64(l), 0) {
		return fallback
	}
	return v.Mul(1 / l)
}

// OrthonormalTangent derives a tangent perpendicular to the unit normal n using the
// branchless orthonormal basis construction (Duff et al. 2017).
//
// Parameters:
//   - n: the unit normal
//
// Returns:
//   - mgl32.Vec3: a unit tangent perpendicular to n
func OrthonormalTangent(n mgl32.Vec3) mgl32.Vec3 {
	sign := float32(1)
	if n[2] < 0 {
		sign = -1
	}
	a := -1 / (sign + n[2])
	b := n[0] * n[1] * a
	return mgl32.Vec3{1 + sign*n[0]*n[0]*a, sign * b, -sign * n[0]}
}

// LookBasis computes the right, up and forward vectors of a camera at eye looking at target.
// Falls back to the world axes when eye and target coincide or forward is parallel to up.
//
// Parameters:
//   - eye: the camera position
//   - target: the point the camera looks at
//   - worldUp: the reference up direction
//
// Returns:
//   - right, up, forward: an orthonormal basis
func LookBasis(eye, target, worldUp mgl32.Vec3) (right, up, forward mgl32.Vec3) {
	forward = SafeNormalize(target.Sub(eye), mgl32.Vec3{0, 0, -1})
	right = forward.Cross(worldUp)
	if right.Len() < 1e-6 {
		right = forward.Cross(mgl32.Vec3{0, 0, 1})
	}
	right = SafeNormalize(right, mgl32.Vec3{1, 0, 0})
	up = right.Cross(forward)
	return right, up, forward
}
