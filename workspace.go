package kinematics

import (
	"fmt"
	"math"
	"sort"

	"github.com/golang/geo/r3"
)

// Range is an inclusive interval in meters.
type Range struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

func (r Range) Clamp(v float64) float64 {
	return math.Max(r.Min, math.Min(r.Max, v))
}

// Box is an axis-aligned region of the base frame.
type Box struct {
	X Range `json:"x"`
	Y Range `json:"y"`
	Z Range `json:"z"`
}

func (b Box) Contains(p r3.Vector) bool {
	return b.X.Contains(p.X) && b.Y.Contains(p.Y) && b.Z.Contains(p.Z)
}

// Clamp moves each coordinate of p into the box independently.
func (b Box) Clamp(p r3.Vector) r3.Vector {
	return r3.Vector{X: b.X.Clamp(p.X), Y: b.Y.Clamp(p.Y), Z: b.Z.Clamp(p.Z)}
}

func (b Box) validate() error {
	for _, axis := range []struct {
		name string
		r    Range
	}{{"x", b.X}, {"y", b.Y}, {"z", b.Z}} {
		if !isFinite(axis.r.Min) || !isFinite(axis.r.Max) || axis.r.Min > axis.r.Max {
			return fmt.Errorf("%s range [%v, %v] is not a finite ordered interval", axis.name, axis.r.Min, axis.r.Max)
		}
	}
	return nil
}

// WorkspacePolicy decides what happens to a target outside its box.
type WorkspacePolicy string

const (
	PolicyClamp  WorkspacePolicy = "clamp"
	PolicyReject WorkspacePolicy = "reject"
)

// Workspace maps a DOF count to the box its targets must lie in.
type Workspace struct {
	boxes  map[int]Box
	policy WorkspacePolicy
}

// NewWorkspace copies boxes. An empty policy means clamp.
func NewWorkspace(boxes map[int]Box, policy WorkspacePolicy) (*Workspace, error) {
	if policy == "" {
		policy = PolicyClamp
	}
	if policy != PolicyClamp && policy != PolicyReject {
		return nil, fmt.Errorf("workspace policy must be 'clamp' or 'reject', got '%s'", policy)
	}
	w := &Workspace{boxes: make(map[int]Box, len(boxes)), policy: policy}
	for dof, b := range boxes {
		if dof < MinDOF || dof > MaxDOF {
			return nil, fmt.Errorf("workspace entry for DOF %d outside [%d, %d]", dof, MinDOF, MaxDOF)
		}
		if err := b.validate(); err != nil {
			return nil, fmt.Errorf("workspace for DOF %d: %w", dof, err)
		}
		w.boxes[dof] = b
	}
	return w, nil
}

func (w *Workspace) Policy() WorkspacePolicy {
	return w.policy
}

func (w *Workspace) Box(dof int) (Box, bool) {
	b, ok := w.boxes[dof]
	return b, ok
}

// DOFs lists the configured DOF counts in ascending order.
func (w *Workspace) DOFs() []int {
	out := make([]int, 0, len(w.boxes))
	for dof := range w.boxes {
		out = append(out, dof)
	}
	sort.Ints(out)
	return out
}

// Validate checks p against the box for dof. Under PolicyClamp it returns the
// clamped point and whether anything moved. Under PolicyReject a point
// outside the box is an UnreachableTargetError. A DOF with no box is an
// InvalidConfigurationError.
func (w *Workspace) Validate(dof int, p r3.Vector) (r3.Vector, bool, error) {
	b, ok := w.boxes[dof]
	if !ok {
		return p, false, newInvalidConfiguration("no workspace defined for DOF %d", dof)
	}
	if b.Contains(p) {
		return p, false, nil
	}
	if w.policy == PolicyReject {
		return p, false, &UnreachableTargetError{
			Reason: fmt.Sprintf("position (%.3f, %.3f, %.3f) outside the DOF %d workspace", p.X, p.Y, p.Z, dof),
		}
	}
	return b.Clamp(p), true, nil
}
