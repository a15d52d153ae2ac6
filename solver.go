package kinematics

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.viam.com/rdk/logging"
	"gonum.org/v1/gonum/mat"
)

// Termination says why a solve stopped.
type Termination int

const (
	Converged Termination = iota
	MaxIterationsExceeded
	Divergent
	Canceled
)

func (t Termination) String() string {
	switch t {
	case Converged:
		return "converged"
	case MaxIterationsExceeded:
		return "max_iterations_exceeded"
	case Divergent:
		return "divergent"
	case Canceled:
		return "canceled"
	default:
		return fmt.Sprintf("termination(%d)", int(t))
	}
}

func (t Termination) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

func (t *Termination) UnmarshalText(text []byte) error {
	for _, candidate := range []Termination{Converged, MaxIterationsExceeded, Divergent, Canceled} {
		if candidate.String() == string(text) {
			*t = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown termination %q", text)
}

// Step describes one tentative update, accepted or not.
type Step struct {
	Iteration int
	Candidate []float64
	Residual  float64
	Damping   float64
	Accepted  bool
}

// SolverConfig tunes the damped least squares iteration. Zero values are
// replaced with defaults by Validate.
type SolverConfig struct {
	MaxIterations        int     `json:"max_iterations,omitempty"`
	PositionTolerance    float64 `json:"position_tolerance,omitempty"`
	OrientationTolerance float64 `json:"orientation_tolerance,omitempty"`
	InitialDamping       float64 `json:"initial_damping,omitempty"`
	DampingGrowth        float64 `json:"damping_growth,omitempty"`
	DampingShrink        float64 `json:"damping_shrink,omitempty"`
	MinDamping           float64 `json:"min_damping,omitempty"`
	MaxDamping           float64 `json:"max_damping,omitempty"`
	MaxSaturatedRetries  int     `json:"max_saturated_retries,omitempty"`

	// PositionOnly drops the orientation rows from the task.
	PositionOnly bool `json:"position_only,omitempty"`

	// Not serialized
	Bounds Bounds         `json:"-"`
	Logger logging.Logger `json:"-"`
	OnStep func(Step)     `json:"-"`
}

// DefaultSolverConfig returns the settings used when nothing is configured.
func DefaultSolverConfig() SolverConfig {
	cfg := SolverConfig{}
	_ = cfg.Validate("solver")
	return cfg
}

// Validate fills in defaults then range-checks the settings.
func (cfg *SolverConfig) Validate(path string) error {
	if cfg.MaxIterations == 0 {
		cfg.MaxIterations = 100
	}
	if cfg.PositionTolerance == 0 {
		cfg.PositionTolerance = 1e-4
	}
	if cfg.OrientationTolerance == 0 {
		cfg.OrientationTolerance = 1e-3
	}
	if cfg.InitialDamping == 0 {
		cfg.InitialDamping = 0.01
	}
	if cfg.DampingGrowth == 0 {
		cfg.DampingGrowth = 10
	}
	if cfg.DampingShrink == 0 {
		cfg.DampingShrink = 10
	}
	if cfg.MinDamping == 0 {
		cfg.MinDamping = 1e-6
	}
	if cfg.MaxDamping == 0 {
		cfg.MaxDamping = 1e6
	}
	if cfg.MaxSaturatedRetries == 0 {
		cfg.MaxSaturatedRetries = 3
	}

	if cfg.MaxIterations < 0 {
		return fmt.Errorf("%s: max_iterations must be positive, got %d", path, cfg.MaxIterations)
	}
	if cfg.PositionTolerance < 0 || cfg.OrientationTolerance < 0 {
		return fmt.Errorf("%s: tolerances must be positive", path)
	}
	if cfg.DampingGrowth <= 1 || cfg.DampingShrink <= 1 {
		return fmt.Errorf("%s: damping_growth and damping_shrink must be greater than 1", path)
	}
	if cfg.MinDamping < 0 || cfg.MinDamping > cfg.MaxDamping {
		return fmt.Errorf("%s: min_damping (%g) must be in [0, max_damping (%g)]", path, cfg.MinDamping, cfg.MaxDamping)
	}
	if cfg.InitialDamping < cfg.MinDamping || cfg.InitialDamping > cfg.MaxDamping {
		return fmt.Errorf("%s: initial_damping (%g) must be in [min_damping, max_damping]", path, cfg.InitialDamping)
	}
	if cfg.MaxSaturatedRetries < 0 {
		return fmt.Errorf("%s: max_saturated_retries must be positive, got %d", path, cfg.MaxSaturatedRetries)
	}
	return nil
}

// SolverResult is the outcome of one solve. Elapsed is the only field that
// varies between identical solves.
type SolverResult struct {
	Joints           []float64     `json:"joints"`
	Converged        bool          `json:"converged"`
	Termination      Termination   `json:"termination"`
	Iterations       int           `json:"iterations"`
	FinalError       float64       `json:"final_error"`
	PositionError    float64       `json:"position_error"`
	OrientationError float64       `json:"orientation_error"`
	Damping          float64       `json:"damping"`
	Elapsed          time.Duration `json:"elapsed"`
}

// evaluation is the chain state at one joint configuration.
type evaluation struct {
	q        []float64
	frames   []Frame
	delta    PoseDelta
	residual float64
}

type dlsSolver struct {
	chain  *Chain
	target Pose
	cfg    SolverConfig
}

func (s *dlsSolver) evaluate(q []float64) (evaluation, error) {
	pose, frames, err := s.chain.ForwardKinematics(q)
	if err != nil {
		return evaluation{}, err
	}
	delta := PoseError(pose, s.target)
	return evaluation{q: q, frames: frames, delta: delta, residual: s.residual(delta)}, nil
}

func (s *dlsSolver) residual(d PoseDelta) float64 {
	if s.cfg.PositionOnly {
		return d.PositionNorm()
	}
	return d.Norm()
}

func (s *dlsSolver) withinTolerance(d PoseDelta) bool {
	if d.PositionNorm() > s.cfg.PositionTolerance {
		return false
	}
	return s.cfg.PositionOnly || d.RotationNorm() <= s.cfg.OrientationTolerance
}

// task returns the Jacobian rows and error entries the solve is driving.
func (s *dlsSolver) task(ev evaluation) (mat.Matrix, *mat.VecDense, error) {
	j, err := Jacobian(ev.frames)
	if err != nil {
		return nil, nil, err
	}
	rows := 6
	if s.cfg.PositionOnly {
		rows = 3
	}
	e := make([]float64, rows)
	copy(e, ev.delta[:rows])
	return j.Slice(0, rows, 0, s.chain.DOF()), mat.NewVecDense(rows, e), nil
}

// dampedStep solves (JᵀJ + λ²I)Δθ = Jᵀe. When J has more columns than rows
// the equivalent Δθ = Jᵀ(JJᵀ + λ²I)⁻¹e keeps the factorized system small.
// ok is false when the system could not be factorized or produced a
// non-finite step.
func dampedStep(j mat.Matrix, e *mat.VecDense, lambda float64) ([]float64, bool) {
	rows, cols := j.Dims()
	l2 := lambda * lambda

	var (
		a    *mat.SymDense
		rhs  *mat.VecDense
		wide = cols > rows
	)
	if wide {
		a = mat.NewSymDense(rows, nil)
		a.SymOuterK(1, j)
		rhs = e
	} else {
		a = mat.NewSymDense(cols, nil)
		a.SymOuterK(1, j.T())
		rhs = mat.NewVecDense(cols, nil)
		rhs.MulVec(j.T(), e)
	}
	n := cols
	if wide {
		n = rows
	}
	for i := 0; i < n; i++ {
		a.SetSym(i, i, a.At(i, i)+l2)
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(a); !ok {
		return nil, false
	}
	var x mat.VecDense
	if err := chol.SolveVecTo(&x, rhs); err != nil {
		return nil, false
	}
	sol := &x
	if wide {
		sol = mat.NewVecDense(cols, nil)
		sol.MulVec(j.T(), &x)
	}

	step := make([]float64, cols)
	for i := range step {
		step[i] = sol.AtVec(i)
		if !isFinite(step[i]) {
			return nil, false
		}
	}
	return step, true
}

// Solve runs damped least squares from initial toward target.
//
// A tentative step is accepted only if it strictly lowers the residual, in
// which case the damping shrinks. A rejected step grows the damping and is
// retried from the same configuration. The solve is Divergent once
// cfg.MaxSaturatedRetries consecutive attempts at MaxDamping fail. ctx is
// checked once per iteration; on cancellation the partial result is returned
// with ctx.Err().
func Solve(ctx context.Context, chain *Chain, initial []float64, target Pose, cfg SolverConfig) (SolverResult, error) {
	start := time.Now()

	if chain == nil {
		return SolverResult{}, newInvalidConfiguration("nil chain")
	}
	if err := cfg.Validate("solver"); err != nil {
		return SolverResult{}, newInvalidConfiguration("%v", err)
	}
	dof := chain.DOF()
	if len(initial) != dof {
		return SolverResult{}, newInvalidConfiguration("got %d seed values for a %d DOF chain", len(initial), dof)
	}
	if err := cfg.Bounds.Validate(dof); err != nil {
		return SolverResult{}, err
	}
	for i, v := range initial {
		if !isFinite(v) {
			return SolverResult{}, &InvalidPoseError{Field: fmt.Sprintf("seed[%d]", i), Value: v}
		}
	}
	if !cfg.Bounds.Contains(initial) {
		return SolverResult{}, newInvalidConfiguration("seed lies outside the joint bounds")
	}
	if !target.IsFinite() {
		return SolverResult{}, &InvalidPoseError{Field: "target", Value: math.NaN()}
	}

	s := &dlsSolver{chain: chain, target: target, cfg: cfg}
	seed := make([]float64, dof)
	copy(seed, initial)
	current, err := s.evaluate(seed)
	if err != nil {
		return SolverResult{}, err
	}

	lambda := cfg.InitialDamping
	finish := func(iterations int, term Termination) SolverResult {
		return s.result(current, iterations, term, lambda, time.Since(start))
	}

	for iter := 0; ; iter++ {
		if s.withinTolerance(current.delta) {
			return finish(iter, Converged), nil
		}
		if iter >= cfg.MaxIterations {
			return finish(iter, MaxIterationsExceeded), nil
		}
		if err := ctx.Err(); err != nil {
			return finish(iter, Canceled), err
		}

		j, e, err := s.task(current)
		if err != nil {
			return SolverResult{}, err
		}

		saturated := 0
		for {
			next, accepted := s.attempt(iter+1, current, j, e, lambda)
			if accepted {
				current = next
				lambda = math.Max(lambda/cfg.DampingShrink, cfg.MinDamping)
				break
			}
			if lambda >= cfg.MaxDamping {
				saturated++
				if saturated >= cfg.MaxSaturatedRetries {
					if cfg.Logger != nil {
						cfg.Logger.Debugf("damping saturated at %g with residual %.3g, giving up", lambda, current.residual)
					}
					return finish(iter+1, Divergent), nil
				}
			}
			lambda = math.Min(lambda*cfg.DampingGrowth, cfg.MaxDamping)
		}

		if cfg.Logger != nil {
			cfg.Logger.Debugw("dls iteration", "iteration", iter+1, "residual", current.residual, "damping", lambda)
		}
	}
}

// attempt computes and scores one tentative step at damping lambda.
func (s *dlsSolver) attempt(iter int, current evaluation, j mat.Matrix, e *mat.VecDense, lambda float64) (evaluation, bool) {
	step, ok := s.boundedStep(current.q, j, e, lambda)
	if !ok {
		s.notify(Step{Iteration: iter, Candidate: current.q, Residual: math.Inf(1), Damping: lambda})
		return evaluation{}, false
	}
	candidate := make([]float64, len(current.q))
	for i := range candidate {
		candidate[i] = current.q[i] + step[i]
	}
	candidate = s.cfg.Bounds.Clamp(candidate)

	next, err := s.evaluate(candidate)
	if err != nil || math.IsNaN(next.residual) {
		s.notify(Step{Iteration: iter, Candidate: candidate, Residual: math.Inf(1), Damping: lambda})
		return evaluation{}, false
	}
	accepted := next.residual < current.residual
	s.notify(Step{Iteration: iter, Candidate: candidate, Residual: next.residual, Damping: lambda, Accepted: accepted})
	return next, accepted
}

// boundedStep is dampedStep with a small active set: joints the step would
// push past a bound are pinned there, their Jacobian columns zeroed, and the
// remaining joints re-solved against what is left of the error.
func (s *dlsSolver) boundedStep(q []float64, j mat.Matrix, e *mat.VecDense, lambda float64) ([]float64, bool) {
	step, ok := dampedStep(j, e, lambda)
	if !ok || len(s.cfg.Bounds) == 0 {
		return step, ok
	}

	rows, cols := j.Dims()
	free := mat.DenseCopyOf(j)
	residual := mat.VecDenseCopyOf(e)
	pinned := make([]bool, cols)
	fixed := make([]float64, cols)
	for pass := 0; pass < cols; pass++ {
		changed := false
		for i := 0; i < cols; i++ {
			if pinned[i] || !s.cfg.Bounds.Bounded(i) || s.cfg.Bounds[i].Contains(q[i]+step[i]) {
				continue
			}
			pinned[i] = true
			changed = true
			fixed[i] = s.cfg.Bounds[i].Clamp(q[i]+step[i]) - q[i]
			for r := 0; r < rows; r++ {
				residual.SetVec(r, residual.AtVec(r)-free.At(r, i)*fixed[i])
				free.Set(r, i, 0)
			}
		}
		if !changed {
			break
		}
		if step, ok = dampedStep(free, residual, lambda); !ok {
			return nil, false
		}
	}
	for i := range step {
		if pinned[i] {
			step[i] = fixed[i]
		}
	}
	return step, true
}

func (s *dlsSolver) notify(step Step) {
	if s.cfg.OnStep == nil {
		return
	}
	step.Candidate = append([]float64(nil), step.Candidate...)
	s.cfg.OnStep(step)
}

func (s *dlsSolver) result(ev evaluation, iterations int, term Termination, lambda float64, elapsed time.Duration) SolverResult {
	joints := make([]float64, len(ev.q))
	for i, v := range ev.q {
		if s.cfg.Bounds.Bounded(i) {
			joints[i] = v
		} else {
			joints[i] = WrapAngle(v)
		}
	}
	return SolverResult{
		Joints:           joints,
		Converged:        term == Converged,
		Termination:      term,
		Iterations:       iterations,
		FinalError:       ev.residual,
		PositionError:    ev.delta.PositionNorm(),
		OrientationError: ev.delta.RotationNorm(),
		Damping:          lambda,
		Elapsed:          elapsed,
	}
}
