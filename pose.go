package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
)

// Pose is an end-effector position in meters and an orientation, both
// expressed in the base frame.
type Pose struct {
	Position    r3.Vector
	Orientation Rotation
}

// NewPoseFromRPY builds a pose from a position and roll/pitch/yaw radians.
func NewPoseFromRPY(x, y, z, roll, pitch, yaw float64) Pose {
	return Pose{
		Position:    r3.Vector{X: x, Y: y, Z: z},
		Orientation: RotationFromRPY(roll, pitch, yaw),
	}
}

// IsFinite reports whether every component of p is a finite number.
func (p Pose) IsFinite() bool {
	return isFinite(p.Position.X) && isFinite(p.Position.Y) && isFinite(p.Position.Z) &&
		p.Orientation.IsFinite()
}

// PoseDelta is the 6-vector task-space error. The first three entries are the
// position error in meters, the last three the rotation vector in radians.
type PoseDelta [6]float64

// PoseError returns the error that moves current onto target. The rotational
// part is the rotation vector of R_target·R_currentᵀ.
func PoseError(current, target Pose) PoseDelta {
	dp := target.Position.Sub(current.Position)
	dr := target.Orientation.Mul(current.Orientation.Transpose()).RotationVector()
	return PoseDelta{dp.X, dp.Y, dp.Z, dr.X, dr.Y, dr.Z}
}

func (d PoseDelta) Position() r3.Vector {
	return r3.Vector{X: d[0], Y: d[1], Z: d[2]}
}

func (d PoseDelta) Rotation() r3.Vector {
	return r3.Vector{X: d[3], Y: d[4], Z: d[5]}
}

func (d PoseDelta) PositionNorm() float64 { return d.Position().Norm() }

func (d PoseDelta) RotationNorm() float64 { return d.Rotation().Norm() }

// Norm is the Euclidean norm over all six components.
func (d PoseDelta) Norm() float64 {
	var sum float64
	for _, v := range d {
		sum += v * v
	}
	return math.Sqrt(sum)
}
