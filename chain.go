// Package kinematics computes forward and inverse kinematics for serial
// revolute arms described by Denavit-Hartenberg parameters.
package kinematics

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/mat"
)

// Supported chain lengths.
const (
	MinDOF = 2
	MaxDOF = 7
)

// JointParameter holds the standard DH constants for one revolute joint.
// The joint variable is added to ThetaOffset.
type JointParameter struct {
	ThetaOffset float64 `json:"theta_offset"`
	D           float64 `json:"d"`
	A           float64 `json:"a"`
	Alpha       float64 `json:"alpha"`
}

// Transform returns the homogeneous transform from the previous link frame to
// this one for joint variable q.
func (p JointParameter) Transform(q float64) *mat.Dense {
	st, ct := math.Sincos(q + p.ThetaOffset)
	sa, ca := math.Sincos(p.Alpha)
	return mat.NewDense(4, 4, []float64{
		ct, -st * ca, st * sa, p.A * ct,
		st, ct * ca, -ct * sa, p.A * st,
		0, sa, ca, p.D,
		0, 0, 0, 1,
	})
}

func (p JointParameter) isFinite() bool {
	return isFinite(p.ThetaOffset) && isFinite(p.D) && isFinite(p.A) && isFinite(p.Alpha)
}

// Frame is a homogeneous 4x4 transform from the base frame.
type Frame struct {
	m *mat.Dense
}

// IdentityFrame is the base frame.
func IdentityFrame() Frame {
	m := mat.NewDense(4, 4, nil)
	for i := 0; i < 4; i++ {
		m.Set(i, i, 1)
	}
	return Frame{m: m}
}

// Position is the frame origin.
func (f Frame) Position() r3.Vector {
	return r3.Vector{X: f.m.At(0, 3), Y: f.m.At(1, 3), Z: f.m.At(2, 3)}
}

// ZAxis is the third column of the rotation block.
func (f Frame) ZAxis() r3.Vector {
	return r3.Vector{X: f.m.At(0, 2), Y: f.m.At(1, 2), Z: f.m.At(2, 2)}
}

func (f Frame) Rotation() Rotation {
	var r Rotation
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			r[3*i+j] = f.m.At(i, j)
		}
	}
	return r
}

func (f Frame) Pose() Pose {
	return Pose{Position: f.Position(), Orientation: f.Rotation()}
}

// Matrix returns a copy of the underlying transform.
func (f Frame) Matrix() *mat.Dense {
	return mat.DenseCopyOf(f.m)
}

// Chain is an immutable sequence of DH joints ordered base to tip.
type Chain struct {
	joints []JointParameter
}

// NewChain copies params into a new chain.
func NewChain(params []JointParameter) (*Chain, error) {
	if len(params) < MinDOF || len(params) > MaxDOF {
		return nil, newInvalidConfiguration("DOF %d outside [%d, %d]", len(params), MinDOF, MaxDOF)
	}
	for i, p := range params {
		if !p.isFinite() {
			return nil, newInvalidConfiguration("joint %d has non-finite DH parameters", i)
		}
	}
	joints := make([]JointParameter, len(params))
	copy(joints, params)
	return &Chain{joints: joints}, nil
}

// DefaultChain returns the first dof rows of the embedded DH template.
func DefaultChain(dof int) (*Chain, error) {
	return DefaultArm().Chain(dof)
}

func (c *Chain) DOF() int {
	return len(c.joints)
}

// Joints returns a copy of the DH parameters.
func (c *Chain) Joints() []JointParameter {
	out := make([]JointParameter, len(c.joints))
	copy(out, c.joints)
	return out
}

// Reach is the sum of |a|+|d| over all joints, an upper bound on how far the
// end-effector can get from the base origin.
func (c *Chain) Reach() float64 {
	var reach float64
	for _, p := range c.joints {
		reach += math.Abs(p.A) + math.Abs(p.D)
	}
	return reach
}

// ForwardKinematics returns the end-effector pose and DOF+1 frames. frames[0]
// is the base, frames[i] is T_1·…·T_i, and joint i rotates about the z axis
// of frames[i].
func (c *Chain) ForwardKinematics(q []float64) (Pose, []Frame, error) {
	if len(q) != len(c.joints) {
		return Pose{}, nil, newInvalidConfiguration("got %d joint values for a %d DOF chain", len(q), len(c.joints))
	}
	frames := make([]Frame, len(c.joints)+1)
	frames[0] = IdentityFrame()
	for i, p := range c.joints {
		next := mat.NewDense(4, 4, nil)
		next.Mul(frames[i].m, p.Transform(q[i]))
		frames[i+1] = Frame{m: next}
	}
	return frames[len(c.joints)].Pose(), frames, nil
}
