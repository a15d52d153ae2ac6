package kinematics

import (
	"context"
	"fmt"
	"time"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

// Position is a target point in meters.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

func (p Position) Vector() r3.Vector {
	return r3.Vector{X: p.X, Y: p.Y, Z: p.Z}
}

func positionFromVector(v r3.Vector) Position {
	return Position{X: v.X, Y: v.Y, Z: v.Z}
}

// Orientation is a target attitude in radians, applied as
// Rz(yaw)·Ry(pitch)·Rx(roll).
type Orientation struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Request asks for joint angles that place the end-effector at a pose.
type Request struct {
	Position    Position    `json:"position"`
	Orientation Orientation `json:"orientation"`
	DOF         int         `json:"dof"`
	// Seed is the starting configuration. Empty means all zeros.
	Seed []float64 `json:"seed,omitempty"`
}

// Validate rejects non-finite values and an out-of-range DOF.
func (r Request) Validate() error {
	if r.DOF < MinDOF || r.DOF > MaxDOF {
		return newInvalidConfiguration("DOF %d outside [%d, %d]", r.DOF, MinDOF, MaxDOF)
	}
	for _, field := range []struct {
		name  string
		value float64
	}{
		{"position.x", r.Position.X},
		{"position.y", r.Position.Y},
		{"position.z", r.Position.Z},
		{"orientation.roll", r.Orientation.Roll},
		{"orientation.pitch", r.Orientation.Pitch},
		{"orientation.yaw", r.Orientation.Yaw},
	} {
		if !isFinite(field.value) {
			return &InvalidPoseError{Field: field.name, Value: field.value}
		}
	}
	if len(r.Seed) != 0 && len(r.Seed) != r.DOF {
		return newInvalidConfiguration("seed has %d values for a %d DOF chain", len(r.Seed), r.DOF)
	}
	for i, v := range r.Seed {
		if !isFinite(v) {
			return &InvalidPoseError{Field: fmt.Sprintf("seed[%d]", i), Value: v}
		}
	}
	return nil
}

// Response is a successful solve.
type Response struct {
	JointAngles            []float64   `json:"jointAngles"`
	Converged              bool        `json:"converged"`
	Iterations             int         `json:"iterations"`
	ResidualError          float64     `json:"residualError"`
	ComputationTimeSeconds float64     `json:"computationTimeSeconds"`
	Termination            Termination `json:"termination"`
	// ClampedPosition is set when the workspace moved the target.
	ClampedPosition *Position `json:"clampedPosition,omitempty"`
	PositionOnly    bool      `json:"positionOnly,omitempty"`
}

// FailureResponse is the body reported for a failed solve.
type FailureResponse struct {
	Error         Code    `json:"error"`
	Message       string  `json:"message"`
	Iterations    int     `json:"iterations,omitempty"`
	ResidualError float64 `json:"residualError,omitempty"`
}

// NewFailureResponse describes err. Errors that are not engine errors are
// reported as CONVERGENCE_FAILURE.
func NewFailureResponse(err error) FailureResponse {
	code := CodeOf(err)
	if code == "" {
		code = CodeConvergenceFailure
	}
	resp := FailureResponse{Error: code, Message: err.Error()}
	if res, ok := ResultOf(err); ok {
		resp.Iterations = res.Iterations
		resp.ResidualError = res.FinalError
	}
	return resp
}

// Engine answers solve and forward requests for one arm description. It holds
// no per-request state and is safe for concurrent use.
type Engine struct {
	logger    logging.Logger
	cfg       Config
	arm       ArmDescription
	chains    map[int]*Chain
	workspace *Workspace
}

// NewEngine validates cfg, loads the arm description and builds a chain for
// every DOF the description supports.
func NewEngine(cfg *Config, logger logging.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	c := *cfg
	if err := c.Validate("config"); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = c.Logger
	}
	if logger == nil {
		logger = logging.NewLogger("kinematics")
	}

	arm, fromFile := c.LoadArm(logger)
	workspace, err := NewWorkspace(arm.Workspace, c.WorkspacePolicy)
	if err != nil {
		return nil, errors.Wrap(err, "invalid workspace")
	}

	chains := make(map[int]*Chain)
	for dof := MinDOF; dof <= arm.JointCount(); dof++ {
		chain, err := arm.Chain(dof)
		if err != nil {
			return nil, errors.Wrapf(err, "building %d DOF chain", dof)
		}
		chains[dof] = chain
	}

	logger.Infof("kinematics engine ready: arm=%q fromFile=%v dof=[%d,%d] policy=%s orientation=%s",
		arm.Name, fromFile, MinDOF, arm.JointCount(), c.WorkspacePolicy, c.OrientationMode)

	return &Engine{
		logger:    logger,
		cfg:       c,
		arm:       arm,
		chains:    chains,
		workspace: workspace,
	}, nil
}

// Chain returns the chain used for dof.
func (e *Engine) Chain(dof int) (*Chain, error) {
	chain, ok := e.chains[dof]
	if !ok {
		return nil, newInvalidConfiguration("DOF %d outside [%d, %d]", dof, MinDOF, e.arm.JointCount())
	}
	return chain, nil
}

func (e *Engine) Workspace() *Workspace {
	return e.workspace
}

func (e *Engine) Arm() ArmDescription {
	return e.arm
}

// Forward evaluates the same chain the solver uses.
func (e *Engine) Forward(dof int, joints []float64) (Pose, []Frame, error) {
	chain, err := e.Chain(dof)
	if err != nil {
		return Pose{}, nil, err
	}
	for i, v := range joints {
		if !isFinite(v) {
			return Pose{}, nil, &InvalidPoseError{Field: fmt.Sprintf("joints[%d]", i), Value: v}
		}
	}
	return chain.ForwardKinematics(joints)
}

// Solve validates req, applies the workspace policy and runs the solver.
// On a solver failure the returned Response still carries the last iterate.
func (e *Engine) Solve(ctx context.Context, req Request) (Response, error) {
	if err := req.Validate(); err != nil {
		return Response{}, err
	}
	chain, err := e.Chain(req.DOF)
	if err != nil {
		return Response{}, err
	}

	target := req.Position.Vector()
	clamped, moved, err := e.workspace.Validate(req.DOF, target)
	if err != nil {
		return Response{}, err
	}
	if moved {
		e.logger.Infof("target (%.3f, %.3f, %.3f) outside DOF %d workspace, clamped to (%.3f, %.3f, %.3f)",
			target.X, target.Y, target.Z, req.DOF, clamped.X, clamped.Y, clamped.Z)
	}

	seed := make([]float64, req.DOF)
	copy(seed, req.Seed)

	solverCfg := e.cfg.Solver
	solverCfg.Bounds = e.arm.Bounds(req.DOF)
	solverCfg.PositionOnly = e.cfg.OrientationMode.PositionOnly(req.DOF)
	solverCfg.Logger = e.logger
	seed = solverCfg.Bounds.ClampLogged(seed, e.logger)

	pose := Pose{
		Position:    clamped,
		Orientation: RotationFromRPY(req.Orientation.Roll, req.Orientation.Pitch, req.Orientation.Yaw),
	}
	res, err := Solve(ctx, chain, seed, pose, solverCfg)

	resp := Response{
		JointAngles:            res.Joints,
		Converged:              res.Converged,
		Iterations:             res.Iterations,
		ResidualError:          res.FinalError,
		ComputationTimeSeconds: res.Elapsed.Seconds(),
		Termination:            res.Termination,
		PositionOnly:           solverCfg.PositionOnly,
	}
	if moved {
		p := positionFromVector(clamped)
		resp.ClampedPosition = &p
	}
	if err != nil {
		return resp, err
	}

	switch res.Termination {
	case Converged:
		e.logger.Debugf("solved DOF %d in %d iterations (residual %.3g, %s)",
			req.DOF, res.Iterations, res.FinalError, res.Elapsed.Round(time.Microsecond))
		return resp, nil
	case Divergent:
		return resp, &UnreachableTargetError{Reason: "damping saturated without progress", Result: &res}
	default:
		return resp, &ConvergenceFailureError{Result: res}
	}
}

// ReachEstimate is the distance from the base origin to the target compared
// with the chain's total link length.
func (e *Engine) ReachEstimate(dof int, p Position) (distance, reach float64, err error) {
	chain, err := e.Chain(dof)
	if err != nil {
		return 0, 0, err
	}
	return p.Vector().Norm(), chain.Reach(), nil
}
