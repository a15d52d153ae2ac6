package kinematics

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	commonpb "go.viam.com/api/common/v1"
	"go.viam.com/rdk/components/arm"
	"go.viam.com/rdk/logging"
	"go.viam.com/rdk/operation"
	"go.viam.com/rdk/referenceframe"
	"go.viam.com/rdk/resource"
	"go.viam.com/rdk/spatialmath"
)

// DHArmModel is a simulated arm whose joints live in memory and whose pose
// moves are solved by the engine.
var DHArmModel = resource.NewModel("julimercado10", "kinematics", "dh-arm")

func init() {
	resource.RegisterComponent(arm.API, DHArmModel,
		resource.Registration[arm.Arm, *DHArmConfig]{
			Constructor: newDHArm,
		},
	)
}

type DHArmConfig struct {
	// Engine settings, see Config
	ArmFile         string          `json:"arm_file,omitempty"`
	WorkspacePolicy WorkspacePolicy `json:"workspace_policy,omitempty"`
	OrientationMode OrientationMode `json:"orientation_mode,omitempty"`
	Solver          SolverConfig    `json:"solver,omitempty"`

	DOF           int       `json:"dof,omitempty"`            // Joints used from the DH table (default: 6)
	InitialJoints []float64 `json:"initial_joints,omitempty"` // Starting joint angles in radians (default: zeros)

	// Internal logger (not from JSON)
	Logger logging.Logger `json:"-"`
}

// Validate ensures all parts of the config are valid
func (cfg *DHArmConfig) Validate(path string) ([]string, []string, error) {
	if cfg.DOF == 0 {
		cfg.DOF = 6
	}
	if cfg.DOF < MinDOF || cfg.DOF > MaxDOF {
		return nil, nil, fmt.Errorf("dof must be between %d and %d, got %d", MinDOF, MaxDOF, cfg.DOF)
	}
	if len(cfg.InitialJoints) != 0 && len(cfg.InitialJoints) != cfg.DOF {
		return nil, nil, fmt.Errorf("expected %d initial joint angles, got %d", cfg.DOF, len(cfg.InitialJoints))
	}
	engineCfg := cfg.engineConfig()
	if err := engineCfg.Validate(path); err != nil {
		return nil, nil, err
	}
	return nil, nil, nil
}

func (cfg *DHArmConfig) engineConfig() Config {
	return Config{
		ArmFile:         cfg.ArmFile,
		WorkspacePolicy: cfg.WorkspacePolicy,
		OrientationMode: cfg.OrientationMode,
		Solver:          cfg.Solver,
		Logger:          cfg.Logger,
	}
}

type dhArm struct {
	resource.AlwaysRebuild

	name   resource.Name
	logger logging.Logger
	engine *Engine
	dof    int
	bounds Bounds
	opMgr  *operation.SingleOperationManager

	mu       sync.RWMutex
	joints   []float64
	isMoving atomic.Bool

	modelOnce sync.Once
	model     referenceframe.Model
	modelErr  error
}

func newDHArm(ctx context.Context, deps resource.Dependencies, rawConf resource.Config, logger logging.Logger) (arm.Arm, error) {
	conf, err := resource.NativeConfig[*DHArmConfig](rawConf)
	if err != nil {
		return nil, err
	}
	conf.Logger = logger
	return NewDHArm(rawConf.ResourceName(), conf, logger)
}

func NewDHArm(name resource.Name, conf *DHArmConfig, logger logging.Logger) (arm.Arm, error) {
	if _, _, err := conf.Validate(""); err != nil {
		return nil, err
	}
	engineCfg := conf.engineConfig()
	engine, err := NewEngine(&engineCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create kinematics engine: %w", err)
	}
	if _, err := engine.Chain(conf.DOF); err != nil {
		return nil, err
	}

	bounds := engine.Arm().Bounds(conf.DOF)
	joints := make([]float64, conf.DOF)
	copy(joints, conf.InitialJoints)

	s := &dhArm{
		name:   name,
		logger: logger,
		engine: engine,
		dof:    conf.DOF,
		bounds: bounds,
		opMgr:  operation.NewSingleOperationManager(),
		joints: bounds.ClampLogged(joints, logger),
	}

	logger.Infof("DH arm %q initialized with %d joints from %q", name.ShortName(), conf.DOF, engine.Arm().Name)
	return s, nil
}

func (s *dhArm) Name() resource.Name {
	return s.name
}

func (s *dhArm) Close(context.Context) error {
	s.logger.Info("Closing DH arm")
	s.isMoving.Store(false)
	return nil
}

func (s *dhArm) currentJoints() []float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]float64, len(s.joints))
	copy(out, s.joints)
	return out
}

func (s *dhArm) EndPosition(ctx context.Context, extra map[string]interface{}) (spatialmath.Pose, error) {
	pose, _, err := s.engine.Forward(s.dof, s.currentJoints())
	if err != nil {
		return nil, fmt.Errorf("failed to compute end position: %w", err)
	}
	return ToSpatialPose(pose), nil
}

// MoveToPosition solves for pose starting from the current joints and moves
// there. The arm stays put when the solve fails.
func (s *dhArm) MoveToPosition(ctx context.Context, pose spatialmath.Pose, extra map[string]interface{}) error {
	resp, err := s.solve(ctx, FromSpatialPose(pose))
	if err != nil {
		return errors.Wrap(err, "failed to solve for target pose")
	}
	return s.MoveToJointPositions(ctx, inputsFromAngles(resp.JointAngles), extra)
}

func (s *dhArm) solve(ctx context.Context, target Pose) (Response, error) {
	roll, pitch, yaw := target.Orientation.RPY()
	return s.engine.Solve(ctx, Request{
		Position:    positionFromVector(target.Position),
		Orientation: Orientation{Roll: roll, Pitch: pitch, Yaw: yaw},
		DOF:         s.dof,
		Seed:        s.currentJoints(),
	})
}

func (s *dhArm) MoveToJointPositions(ctx context.Context, positions []referenceframe.Input, extra map[string]interface{}) error {
	if len(positions) != s.dof {
		return fmt.Errorf("expected %d joint positions, got %d", s.dof, len(positions))
	}
	ctx, done := s.opMgr.New(ctx)
	defer done()

	s.isMoving.Store(true)
	defer s.isMoving.Store(false)

	angles := make([]float64, len(positions))
	for i, input := range positions {
		if !isFinite(input) {
			return &InvalidPoseError{Field: fmt.Sprintf("joints[%d]", i), Value: input}
		}
		angles[i] = input
	}
	angles = s.bounds.ClampLogged(angles, s.logger)

	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	s.joints = angles
	s.mu.Unlock()
	return nil
}

func (s *dhArm) MoveThroughJointPositions(ctx context.Context, positions [][]referenceframe.Input, options *arm.MoveOptions, extra map[string]interface{}) error {
	for _, jointPositions := range positions {
		if err := s.MoveToJointPositions(ctx, jointPositions, extra); err != nil {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (s *dhArm) JointPositions(ctx context.Context, extra map[string]interface{}) ([]referenceframe.Input, error) {
	return inputsFromAngles(s.currentJoints()), nil
}

func inputsFromAngles(angles []float64) []referenceframe.Input {
	positions := make([]referenceframe.Input, len(angles))
	for i, angle := range angles {
		positions[i] = referenceframe.Input(angle)
	}
	return positions
}

func (s *dhArm) Stop(ctx context.Context, extra map[string]interface{}) error {
	s.isMoving.Store(false)
	s.opMgr.CancelRunning(ctx)
	return nil
}

func (s *dhArm) Kinematics(ctx context.Context) (referenceframe.Model, error) {
	s.modelOnce.Do(func() {
		s.model, s.modelErr = frameModel(s.engine.Arm(), s.dof)
	})
	return s.model, s.modelErr
}

func (s *dhArm) CurrentInputs(ctx context.Context) ([]referenceframe.Input, error) {
	return s.JointPositions(ctx, nil)
}

func (s *dhArm) GoToInputs(ctx context.Context, inputSteps ...[]referenceframe.Input) error {
	return s.MoveThroughJointPositions(ctx, inputSteps, nil, nil)
}

func (s *dhArm) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	switch cmd["command"] {
	case "solve":
		target := Pose{Orientation: IdentityRotation()}
		for key, dst := range map[string]*float64{"x": &target.Position.X, "y": &target.Position.Y, "z": &target.Position.Z} {
			v, ok := cmd[key].(float64)
			if !ok {
				return nil, fmt.Errorf("solve command requires '%s' number parameter", key)
			}
			*dst = v
		}
		roll, _ := cmd["roll"].(float64)
		pitch, _ := cmd["pitch"].(float64)
		yaw, _ := cmd["yaw"].(float64)
		target.Orientation = RotationFromRPY(roll, pitch, yaw)

		resp, err := s.solve(ctx, target)
		if err != nil {
			return toMap(NewFailureResponse(err))
		}
		return toMap(resp)

	case "forward":
		pose, _, err := s.engine.Forward(s.dof, s.currentJoints())
		if err != nil {
			return nil, err
		}
		roll, pitch, yaw := pose.Orientation.RPY()
		return map[string]interface{}{
			"x": pose.Position.X, "y": pose.Position.Y, "z": pose.Position.Z,
			"roll": roll, "pitch": pitch, "yaw": yaw,
		}, nil

	case "reach":
		x, _ := cmd["x"].(float64)
		y, _ := cmd["y"].(float64)
		z, _ := cmd["z"].(float64)
		distance, reach, err := s.engine.ReachEstimate(s.dof, Position{X: x, Y: y, Z: z})
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"distance": distance, "reach": reach, "within_reach": distance <= reach}, nil

	default:
		return nil, fmt.Errorf("unknown command: %v", cmd["command"])
	}
}

func toMap(v any) (map[string]interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	out := map[string]interface{}{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *dhArm) IsMoving(ctx context.Context) (bool, error) {
	return s.isMoving.Load(), nil
}

// Geometries is empty: the DH table carries no link shapes.
func (s *dhArm) Geometries(ctx context.Context, extra map[string]interface{}) ([]spatialmath.Geometry, error) {
	return []spatialmath.Geometry{}, nil
}

func (s *dhArm) Get3DModels(ctx context.Context, extra map[string]interface{}) (map[string]*commonpb.Mesh, error) {
	return map[string]*commonpb.Mesh{}, nil
}

type dhParamJSON struct {
	ID     string  `json:"id"`
	Parent string  `json:"parent"`
	A      float64 `json:"a"`
	D      float64 `json:"d"`
	Alpha  float64 `json:"alpha"`
	Max    float64 `json:"max"`
	Min    float64 `json:"min"`
}

type dhModelJSON struct {
	Name         string        `json:"name"`
	KinParamType string        `json:"kinematic_param_type"`
	DHParams     []dhParamJSON `json:"dhParams"`
}

// frameModel renders the first dof rows of the arm as an rdk DH model.
// Lengths are millimeters there; alpha and the joint limits are degrees.
func frameModel(a ArmDescription, dof int) (referenceframe.Model, error) {
	if dof > a.JointCount() {
		return nil, newInvalidConfiguration("DOF %d exceeds the %d rows of %q", dof, a.JointCount(), a.Name)
	}
	bounds := a.Bounds(dof)

	doc := dhModelJSON{Name: a.Name, KinParamType: "DH"}
	parent := referenceframe.World
	for i, j := range a.DHTemplate[:dof] {
		if j.ThetaOffset != 0 {
			return nil, fmt.Errorf("joint %d has a theta offset, which the frame model cannot express", i+1)
		}
		lo, hi := -360.0, 360.0
		if bounds.Bounded(i) {
			lo, hi = RadiansToDegrees(bounds[i].Min), RadiansToDegrees(bounds[i].Max)
		}
		id := fmt.Sprintf("link_%d", i+1)
		doc.DHParams = append(doc.DHParams, dhParamJSON{
			ID:     id,
			Parent: parent,
			A:      j.A * metersToMillimeters,
			D:      j.D * metersToMillimeters,
			Alpha:  RadiansToDegrees(j.Alpha),
			Max:    hi,
			Min:    lo,
		})
		parent = id
	}

	data, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	m := &referenceframe.ModelConfigJSON{
		OriginalFile: &referenceframe.ModelFile{
			Bytes:     data,
			Extension: "json",
		},
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal json file")
	}
	return m.ParseConfig(a.Name)
}
