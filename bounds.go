package kinematics

import (
	"fmt"
	"math"

	"go.viam.com/rdk/logging"
)

// Bound is an inclusive joint range in radians.
type Bound struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

// Validate checks that the range is finite and ordered
func (b Bound) Validate() error {
	if !isFinite(b.Min) || !isFinite(b.Max) {
		return fmt.Errorf("invalid range: bounds must be finite, got [%v, %v]", b.Min, b.Max)
	}
	if b.Min > b.Max {
		return fmt.Errorf("invalid range: min (%.4f) must not exceed max (%.4f)", b.Min, b.Max)
	}
	return nil
}

func (b Bound) Contains(v float64) bool {
	return v >= b.Min && v <= b.Max
}

func (b Bound) Clamp(v float64) float64 {
	return math.Max(b.Min, math.Min(b.Max, v))
}

// Bounds holds one Bound per joint. A nil Bounds leaves every joint free.
type Bounds []Bound

// UniformBounds gives every one of dof joints the same range.
func UniformBounds(dof int, min, max float64) Bounds {
	bs := make(Bounds, dof)
	for i := range bs {
		bs[i] = Bound{Min: min, Max: max}
	}
	return bs
}

// Validate checks every range and that there is one per joint. An empty
// Bounds is always valid.
func (bs Bounds) Validate(dof int) error {
	if len(bs) == 0 {
		return nil
	}
	if len(bs) != dof {
		return newInvalidConfiguration("got %d joint bounds for a %d DOF chain", len(bs), dof)
	}
	for i, b := range bs {
		if err := b.Validate(); err != nil {
			return newInvalidConfiguration("joint %d: %v", i+1, err)
		}
	}
	return nil
}

// Contains reports whether every value of q lies inside its range.
func (bs Bounds) Contains(q []float64) bool {
	if len(bs) == 0 {
		return true
	}
	for i, v := range q {
		if !bs[i].Contains(v) {
			return false
		}
	}
	return true
}

// Clamp returns a copy of q with each value clamped to its range.
func (bs Bounds) Clamp(q []float64) []float64 {
	out := make([]float64, len(q))
	copy(out, q)
	if len(bs) == 0 {
		return out
	}
	for i := range out {
		out[i] = bs[i].Clamp(out[i])
	}
	return out
}

// ClampLogged is Clamp with a warning for every joint that moved.
func (bs Bounds) ClampLogged(q []float64, logger logging.Logger) []float64 {
	out := bs.Clamp(q)
	if logger == nil {
		return out
	}
	for i := range out {
		if out[i] == q[i] {
			continue
		}
		if q[i] < out[i] {
			logger.Warnf("Joint %d angle %.3f rad below limit %.3f rad, clamping", i+1, q[i], out[i])
		} else {
			logger.Warnf("Joint %d angle %.3f rad above limit %.3f rad, clamping", i+1, q[i], out[i])
		}
	}
	return out
}

// Bounded reports whether joint i has a range.
func (bs Bounds) Bounded(i int) bool {
	return i < len(bs)
}

// WrapAngle maps a to the interval (-π, π].
func WrapAngle(a float64) float64 {
	w := math.Mod(a+math.Pi, 2*math.Pi)
	if w <= 0 {
		w += 2 * math.Pi
	}
	return w - math.Pi
}

func RadiansToDegrees(rad float64) float64 { return rad * 180 / math.Pi }

func DegreesToRadians(deg float64) float64 { return deg * math.Pi / 180 }
