package kinematics

import (
	"gonum.org/v1/gonum/mat"
)

// Jacobian builds the 6xDOF geometric Jacobian from the frames returned by
// ForwardKinematics. Column i is [z_i × (p_end − p_i); z_i]. Rows 0-2 map
// joint rates to linear velocity, rows 3-5 to angular velocity.
func Jacobian(frames []Frame) (*mat.Dense, error) {
	if len(frames) < 2 {
		return nil, newInvalidConfiguration("jacobian needs at least 2 frames, got %d", len(frames))
	}
	dof := len(frames) - 1
	end := frames[dof].Position()
	j := mat.NewDense(6, dof, nil)
	for i := 0; i < dof; i++ {
		z := frames[i].ZAxis()
		lin := z.Cross(end.Sub(frames[i].Position()))
		j.Set(0, i, lin.X)
		j.Set(1, i, lin.Y)
		j.Set(2, i, lin.Z)
		j.Set(3, i, z.X)
		j.Set(4, i, z.Y)
		j.Set(5, i, z.Z)
	}
	return j, nil
}
