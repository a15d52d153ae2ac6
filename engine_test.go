package kinematics

import (
	"context"
	"encoding/json"
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.viam.com/rdk/logging"
)

func newTestEngine(t *testing.T, cfg *Config) *Engine {
	t.Helper()
	engine, err := NewEngine(cfg, logging.NewTestLogger(t))
	require.NoError(t, err)
	return engine
}

// requestFor builds a request whose target is the forward kinematics of q.
func requestFor(t *testing.T, engine *Engine, q []float64) Request {
	t.Helper()
	pose, _, err := engine.Forward(len(q), q)
	require.NoError(t, err)
	roll, pitch, yaw := pose.Orientation.RPY()
	return Request{
		Position:    Position{X: pose.Position.X, Y: pose.Position.Y, Z: pose.Position.Z},
		Orientation: Orientation{Roll: roll, Pitch: pitch, Yaw: yaw},
		DOF:         len(q),
	}
}

// assertRoundTrip solves the forward kinematics of q from the all-zero seed
// and checks the answer reproduces the same end-effector pose.
func assertRoundTrip(t *testing.T, engine *Engine, q []float64) {
	t.Helper()
	req := requestFor(t, engine, q)

	resp, err := engine.Solve(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.Converged, "%s after %d iterations", resp.Termination, resp.Iterations)
	assert.Equal(t, Converged, resp.Termination)
	assert.Nil(t, resp.ClampedPosition)
	assert.Equal(t, len(q) < 6, resp.PositionOnly)
	require.Len(t, resp.JointAngles, len(q))
	assert.GreaterOrEqual(t, resp.ComputationTimeSeconds, 0.0)

	got, _, err := engine.Forward(req.DOF, resp.JointAngles)
	require.NoError(t, err)
	want, _, err := engine.Forward(req.DOF, q)
	require.NoError(t, err)
	d := PoseError(got, want)
	assert.LessOrEqual(t, d.PositionNorm(), 1e-4)
	if !resp.PositionOnly {
		assert.LessOrEqual(t, d.RotationNorm(), 1e-3)
	}
	for _, v := range resp.JointAngles {
		assert.LessOrEqual(t, math.Abs(v), math.Pi)
	}
}

func TestEngineSolveRoundTrip(t *testing.T) {
	engine := newTestEngine(t, nil)

	// Configurations whose end-effector lies inside the workspace box.
	tests := []struct {
		name string
		q    []float64
	}{
		{"dof 2", []float64{0.4, 0.6}},
		{"dof 3", []float64{0.2, 0.5, 0.4}},
		{"dof 4", []float64{0.1, 0.9, 0.2, 0.5}},
		{"dof 5", []float64{0.2, 0.5, 0.4, 0.3, 0.6}},
		{"dof 6", []float64{0.2, 0.5, 0.4, 0.3, 0.6, -0.3}},
		{"dof 7", []float64{0.2, 0.5, 0.4, 0.3, 0.6, -0.3, 0.2}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertRoundTrip(t, engine, tt.q)
		})
	}
}

func TestEngineSolveInBoxTargetsWithoutSeed(t *testing.T) {
	engine := newTestEngine(t, nil)
	assert.Empty(t, engine.Arm().JointBounds)

	tests := []struct {
		name string
		q    []float64
	}{
		{"dof 2 reach back", []float64{-0.8, 0}},
		{"dof 2 folded", []float64{0.2, 0.8}},
		{"dof 3", []float64{0.4, -0.4, 0.9}},
		{"dof 3 negative base", []float64{-0.7, -0.1, 0.5}},
		{"dof 4", []float64{0.6, 0.8, 0, 0.3}},
		{"dof 4 wrist", []float64{-0.8, 0.4, 0.3, 0.9}},
		{"dof 5", []float64{-0.9, 0.7, 0.2, -0.6, -0.4}},
		{"dof 5 elbow", []float64{0.2, 0.7, 0.6, 0, 0.3}},
		{"dof 6", []float64{0.3, 0, 0.8, -0.1, 0.7, 0.6}},
		{"dof 6 twisted", []float64{0.7, 0.6, -0.4, -0.6, 0.8, 0.1}},
		{"dof 6 negative base", []float64{-0.6, 0.7, 0.6, -0.6, 0.6, 0.9}},
		{"dof 7", []float64{-0.3, 0.6, 0.4, 0.2, -0.2, -0.3, -0.8}},
		{"dof 7 upright", []float64{0, 0, 0.6, 0.5, 0.6, 0.2, 0.7}},
		{"dof 7 negative base", []float64{-0.8, 0.6, 0.7, 0.2, 0.4, 0.6, -0.6}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assertRoundTrip(t, engine, tt.q)
		})
	}
}

func TestEngineSolveInvalidRequests(t *testing.T) {
	engine := newTestEngine(t, nil)

	tests := []struct {
		name     string
		req      Request
		wantCode Code
	}{
		{"dof too small", Request{DOF: 1, Position: Position{Z: 0.5}}, CodeInvalidDOF},
		{"dof too large", Request{DOF: 8, Position: Position{Z: 0.5}}, CodeInvalidDOF},
		{"nan position", Request{DOF: 3, Position: Position{X: math.NaN(), Z: 0.5}}, CodeInvalidPose},
		{"infinite yaw", Request{DOF: 3, Position: Position{Z: 0.5}, Orientation: Orientation{Yaw: math.Inf(-1)}}, CodeInvalidPose},
		{"seed length", Request{DOF: 3, Position: Position{Z: 0.5}, Seed: []float64{0}}, CodeInvalidDOF},
		{"nan seed", Request{DOF: 2, Position: Position{Z: 0.5}, Seed: []float64{0, math.NaN()}}, CodeInvalidPose},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.Solve(context.Background(), tt.req)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, CodeOf(err))

			failure := NewFailureResponse(err)
			assert.Equal(t, tt.wantCode, failure.Error)
			assert.NotEmpty(t, failure.Message)
		})
	}
}

func TestEngineClampsOutOfBoxTarget(t *testing.T) {
	engine := newTestEngine(t, nil)

	resp, err := engine.Solve(context.Background(), Request{
		DOF:      2,
		Position: Position{X: 0.2280553325564072, Y: 0.09642024810192532, Z: 0.1},
	})
	require.NotNil(t, resp.ClampedPosition)
	assert.Equal(t, 0.3, resp.ClampedPosition.Z)
	assert.Equal(t, 0.2280553325564072, resp.ClampedPosition.X)
	if err != nil {
		assert.Contains(t, []Code{CodeUnreachableTarget, CodeConvergenceFailure}, CodeOf(err))
	}
}

func TestEngineRejectPolicy(t *testing.T) {
	engine := newTestEngine(t, &Config{WorkspacePolicy: PolicyReject})

	_, err := engine.Solve(context.Background(), Request{DOF: 2, Position: Position{X: 0.1, Z: 2}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnreachable))

	failure := NewFailureResponse(err)
	assert.Equal(t, CodeUnreachableTarget, failure.Error)
	assert.Equal(t, 0, failure.Iterations)
}

func TestEngineUnreachableInsideBox(t *testing.T) {
	engine := newTestEngine(t, nil)

	// Inside the DOF 2 box but off the sphere the two links can trace.
	resp, err := engine.Solve(context.Background(), Request{DOF: 2, Position: Position{X: 0.1, Y: 0.1, Z: 0.5}})
	require.Error(t, err)
	assert.False(t, resp.Converged)
	assert.Contains(t, []Code{CodeUnreachableTarget, CodeConvergenceFailure}, CodeOf(err))

	res, ok := ResultOf(err)
	require.True(t, ok)
	assert.Equal(t, res.Iterations, resp.Iterations)

	failure := NewFailureResponse(err)
	assert.Positive(t, failure.Iterations)
	assert.Greater(t, failure.ResidualError, 1e-4)
}

func TestEngineConvergenceFailure(t *testing.T) {
	engine := newTestEngine(t, &Config{Solver: SolverConfig{MaxIterations: 1}})

	req := requestFor(t, engine, []float64{0.2, 0.5, 0.4, 0.3, 0.6, -0.3})
	_, err := engine.Solve(context.Background(), req)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoConvergence))
	assert.Equal(t, CodeConvergenceFailure, NewFailureResponse(err).Error)
}

func TestEngineSolveCanceled(t *testing.T) {
	engine := newTestEngine(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	resp, err := engine.Solve(ctx, requestFor(t, engine, []float64{0.4, 0.6}))
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, Canceled, resp.Termination)
}

func TestEngineOrientationModes(t *testing.T) {
	full := newTestEngine(t, &Config{OrientationMode: OrientationFull})
	req := requestFor(t, full, []float64{0.2, 0.5, 0.4})
	resp, err := full.Solve(context.Background(), req)
	require.NoError(t, err)
	assert.False(t, resp.PositionOnly)

	positionOnly := newTestEngine(t, &Config{OrientationMode: OrientationPositionOnly})
	req = requestFor(t, positionOnly, []float64{0.2, 0.5, 0.4, 0.3, 0.6, -0.3})
	req.Seed = perturbed([]float64{0.2, 0.5, 0.4, 0.3, 0.6, -0.3}, 0.05)
	resp, err = positionOnly.Solve(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, resp.PositionOnly)
}

func TestEngineDeterministic(t *testing.T) {
	engine := newTestEngine(t, nil)
	req := requestFor(t, engine, []float64{0.2, 0.5, 0.4, 0.3, 0.6})

	first, err := engine.Solve(context.Background(), req)
	require.NoError(t, err)
	second, err := engine.Solve(context.Background(), req)
	require.NoError(t, err)

	first.ComputationTimeSeconds = 0
	second.ComputationTimeSeconds = 0
	assert.Equal(t, first, second)
}

func TestEngineForward(t *testing.T) {
	engine := newTestEngine(t, nil)

	pose, frames, err := engine.Forward(2, []float64{0.4, 0.6})
	require.NoError(t, err)
	assert.Len(t, frames, 3)
	assert.InDelta(t, 0.46939, pose.Position.Z, 1e-5)

	_, _, err = engine.Forward(9, []float64{0})
	assert.Equal(t, CodeInvalidDOF, CodeOf(err))
	_, _, err = engine.Forward(2, []float64{0})
	assert.Equal(t, CodeInvalidDOF, CodeOf(err))
	_, _, err = engine.Forward(2, []float64{0, math.Inf(1)})
	assert.Equal(t, CodeInvalidPose, CodeOf(err))
}

func TestEngineReachEstimate(t *testing.T) {
	engine := newTestEngine(t, nil)
	distance, reach, err := engine.ReachEstimate(2, Position{X: 0.3, Z: 0.4})
	require.NoError(t, err)
	assert.InDelta(t, 0.5, distance, 1e-12)
	assert.InDelta(t, 0.6, reach, 1e-12)
}

func TestResponseJSON(t *testing.T) {
	resp := Response{
		JointAngles:            []float64{0.1, 0.2},
		Converged:              true,
		Iterations:             4,
		ResidualError:          1e-5,
		ComputationTimeSeconds: 0.001,
		Termination:            Converged,
	}
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &fields))
	for _, key := range []string{"jointAngles", "converged", "iterations", "residualError", "computationTimeSeconds"} {
		assert.Contains(t, fields, key)
	}
	assert.Equal(t, "converged", fields["termination"])
	assert.NotContains(t, fields, "clampedPosition")

	var req Request
	require.NoError(t, json.Unmarshal([]byte(`{"position":{"x":0.1,"y":0.2,"z":0.5},"orientation":{"roll":0,"pitch":0,"yaw":1},"dof":3}`), &req))
	assert.Equal(t, 3, req.DOF)
	assert.Equal(t, 0.5, req.Position.Z)
	assert.Equal(t, 1.0, req.Orientation.Yaw)
}

func TestNewEngineRejectsBadConfig(t *testing.T) {
	_, err := NewEngine(&Config{WorkspacePolicy: "wrap"}, logging.NewTestLogger(t))
	assert.Error(t, err)
}
