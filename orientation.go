package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// Rotation is a 3x3 rotation matrix stored row-major.
type Rotation [9]float64

// smallAngle is the rotation-vector magnitude below which the small-angle
// form of the quaternion log is used.
const smallAngle = 1e-12

// IdentityRotation returns the rotation that leaves every vector unchanged.
func IdentityRotation() Rotation {
	return Rotation{1, 0, 0, 0, 1, 0, 0, 0, 1}
}

// RotationFromRPY builds R = Rz(yaw)·Ry(pitch)·Rx(roll). Roll, pitch and yaw
// are accepted on input only; the solver never differences Euler angles.
func RotationFromRPY(roll, pitch, yaw float64) Rotation {
	sr, cr := math.Sincos(roll)
	sp, cp := math.Sincos(pitch)
	sy, cy := math.Sincos(yaw)
	return Rotation{
		cy * cp, cy*sp*sr - sy*cr, cy*sp*cr + sy*sr,
		sy * cp, sy*sp*sr + cy*cr, sy*sp*cr - cy*sr,
		-sp, cp * sr, cp * cr,
	}
}

// RotationFromQuaternion converts q to a rotation matrix. q need not be unit.
func RotationFromQuaternion(q quat.Number) Rotation {
	n := quat.Abs(q)
	if n == 0 {
		return IdentityRotation()
	}
	q = quat.Scale(1/n, q)
	w, x, y, z := q.Real, q.Imag, q.Jmag, q.Kmag
	return Rotation{
		1 - 2*(y*y+z*z), 2 * (x*y - w*z), 2 * (x*z + w*y),
		2 * (x*y + w*z), 1 - 2*(x*x+z*z), 2 * (y*z - w*x),
		2 * (x*z - w*y), 2 * (y*z + w*x), 1 - 2*(x*x+y*y),
	}
}

// RotationFromAxisAngle rotates by angle radians about axis. A zero axis
// yields the identity.
func RotationFromAxisAngle(axis r3.Vector, angle float64) Rotation {
	n := axis.Norm()
	if n == 0 {
		return IdentityRotation()
	}
	s, c := math.Sincos(angle / 2)
	u := axis.Mul(s / n)
	return RotationFromQuaternion(quat.Number{Real: c, Imag: u.X, Jmag: u.Y, Kmag: u.Z})
}

// RotationFromVector is the inverse of RotationVector.
func RotationFromVector(v r3.Vector) Rotation {
	return RotationFromAxisAngle(v, v.Norm())
}

// At returns the element at row i, column j.
func (r Rotation) At(i, j int) float64 {
	return r[3*i+j]
}

// Col returns column j as a vector.
func (r Rotation) Col(j int) r3.Vector {
	return r3.Vector{X: r[j], Y: r[3+j], Z: r[6+j]}
}

// Mul returns r·o.
func (r Rotation) Mul(o Rotation) Rotation {
	var out Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[3*i+j] = r[3*i]*o[j] + r[3*i+1]*o[3+j] + r[3*i+2]*o[6+j]
		}
	}
	return out
}

// Transpose returns rᵀ, which is also r⁻¹.
func (r Rotation) Transpose() Rotation {
	return Rotation{
		r[0], r[3], r[6],
		r[1], r[4], r[7],
		r[2], r[5], r[8],
	}
}

// Apply rotates v.
func (r Rotation) Apply(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: r[0]*v.X + r[1]*v.Y + r[2]*v.Z,
		Y: r[3]*v.X + r[4]*v.Y + r[5]*v.Z,
		Z: r[6]*v.X + r[7]*v.Y + r[8]*v.Z,
	}
}

// RPY decomposes r as Rz(yaw)·Ry(pitch)·Rx(roll). At gimbal lock roll is
// reported as zero.
func (r Rotation) RPY() (roll, pitch, yaw float64) {
	pitch = math.Asin(math.Max(-1, math.Min(1, -r[6])))
	if math.Abs(math.Cos(pitch)) > 1e-9 {
		return math.Atan2(r[7], r[8]), pitch, math.Atan2(r[3], r[0])
	}
	return 0, pitch, math.Atan2(-r[1], r[4])
}

// Quaternion returns the unit quaternion for r with a non-negative scalar
// part, so the represented arc is the shortest one.
func (r Rotation) Quaternion() quat.Number {
	var q quat.Number
	switch tr := r[0] + r[4] + r[8]; {
	case tr > 0:
		s := 2 * math.Sqrt(tr+1)
		q = quat.Number{Real: s / 4, Imag: (r[7] - r[5]) / s, Jmag: (r[2] - r[6]) / s, Kmag: (r[3] - r[1]) / s}
	case r[0] > r[4] && r[0] > r[8]:
		s := 2 * math.Sqrt(1+r[0]-r[4]-r[8])
		q = quat.Number{Real: (r[7] - r[5]) / s, Imag: s / 4, Jmag: (r[1] + r[3]) / s, Kmag: (r[2] + r[6]) / s}
	case r[4] > r[8]:
		s := 2 * math.Sqrt(1+r[4]-r[0]-r[8])
		q = quat.Number{Real: (r[2] - r[6]) / s, Imag: (r[1] + r[3]) / s, Jmag: s / 4, Kmag: (r[5] + r[7]) / s}
	default:
		s := 2 * math.Sqrt(1+r[8]-r[0]-r[4])
		q = quat.Number{Real: (r[3] - r[1]) / s, Imag: (r[2] + r[6]) / s, Jmag: (r[5] + r[7]) / s, Kmag: s / 4}
	}
	if n := quat.Abs(q); n > 0 {
		q = quat.Scale(1/n, q)
	}
	if q.Real < 0 {
		q = quat.Scale(-1, q)
	}
	return q
}

// RotationVector returns axis·angle with angle in [0, π].
func (r Rotation) RotationVector() r3.Vector {
	q := r.Quaternion()
	v := r3.Vector{X: q.Imag, Y: q.Jmag, Z: q.Kmag}
	n := v.Norm()
	if n < smallAngle {
		return v.Mul(2)
	}
	return v.Mul(2 * math.Atan2(n, q.Real) / n)
}

// AxisAngle splits RotationVector into a unit axis and an angle. The identity
// reports the z axis with a zero angle.
func (r Rotation) AxisAngle() (r3.Vector, float64) {
	v := r.RotationVector()
	angle := v.Norm()
	if angle == 0 {
		return r3.Vector{Z: 1}, 0
	}
	return v.Mul(1 / angle), angle
}

// ApproxEqual reports whether every element differs by at most tol.
func (r Rotation) ApproxEqual(o Rotation, tol float64) bool {
	for i := range r {
		if math.Abs(r[i]-o[i]) > tol {
			return false
		}
	}
	return true
}

// IsFinite reports whether every element is a finite number.
func (r Rotation) IsFinite() bool {
	for _, v := range r {
		if !isFinite(v) {
			return false
		}
	}
	return true
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
