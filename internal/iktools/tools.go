// Package iktools exposes the kinematics engine as MCP tools.
//
// Each tool follows the same shape:
// - A struct holding the engine, injected via constructor
// - Definition() returns the mcp.Tool schema
// - Handle() runs the request and returns a JSON text result
package iktools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"github.com/mark3labs/mcp-go/mcp"

	kinematics "github.com/julimercado10/robot-arm-kinematics"
)

// floatArg extracts a number argument, returning defaultVal if the key is
// missing or not a number.
func floatArg(req mcp.CallToolRequest, key string, defaultVal float64) float64 {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal
	}
	return v
}

// intArg extracts an integer argument (JSON numbers are float64). ok is
// false when the number has a fractional part.
func intArg(req mcp.CallToolRequest, key string, defaultVal int) (int, bool) {
	v, ok := req.GetArguments()[key].(float64)
	if !ok {
		return defaultVal, true
	}
	if v != math.Trunc(v) {
		return 0, false
	}
	return int(v), true
}

// floatsArg extracts an array of numbers. ok is false when the key is
// missing or any element is not a number.
func floatsArg(req mcp.CallToolRequest, key string) ([]float64, bool) {
	raw, ok := req.GetArguments()[key].([]interface{})
	if !ok {
		return nil, false
	}
	out := make([]float64, len(raw))
	for i, v := range raw {
		f, ok := v.(float64)
		if !ok {
			return nil, false
		}
		out[i] = f
	}
	return out, true
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}

// SolveTool handles the solve_inverse_kinematics MCP tool.
type SolveTool struct {
	engine *kinematics.Engine
}

func NewSolveTool(engine *kinematics.Engine) *SolveTool {
	return &SolveTool{engine: engine}
}

// Definition returns the MCP tool definition for solve_inverse_kinematics.
func (t *SolveTool) Definition() mcp.Tool {
	return mcp.NewTool("solve_inverse_kinematics",
		mcp.WithDescription(
			"Compute joint angles (radians) that place the arm's end-effector at a target pose. "+
				"Position is in meters; orientation is roll/pitch/yaw in radians applied as Rz(yaw)·Ry(pitch)·Rx(roll). "+
				"Chains with fewer than 6 joints only match the position.",
		),
		mcp.WithNumber("x", mcp.Required(), mcp.Description("Target x in meters")),
		mcp.WithNumber("y", mcp.Required(), mcp.Description("Target y in meters")),
		mcp.WithNumber("z", mcp.Required(), mcp.Description("Target z in meters")),
		mcp.WithNumber("roll", mcp.Description("Target roll in radians (default 0)")),
		mcp.WithNumber("pitch", mcp.Description("Target pitch in radians (default 0)")),
		mcp.WithNumber("yaw", mcp.Description("Target yaw in radians (default 0)")),
		mcp.WithNumber("dof",
			mcp.Required(),
			mcp.Description("Degrees of freedom, 2 to 7"),
		),
		mcp.WithArray("seed",
			mcp.Description("Optional starting joint angles, one per joint"),
			mcp.Items(map[string]any{"type": "number"}),
		),
	)
}

// Handle processes the solve_inverse_kinematics tool call.
func (t *SolveTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := req.GetArguments()
	for _, key := range []string{"x", "y", "z", "dof"} {
		if _, ok := args[key].(float64); !ok {
			return mcp.NewToolResultError(fmt.Sprintf("'%s' is required", key)), nil
		}
	}

	dof, ok := intArg(req, "dof", 0)
	if !ok {
		return mcp.NewToolResultError("'dof' must be an integer"), nil
	}

	ikReq := kinematics.Request{
		Position: kinematics.Position{
			X: floatArg(req, "x", 0),
			Y: floatArg(req, "y", 0),
			Z: floatArg(req, "z", 0),
		},
		Orientation: kinematics.Orientation{
			Roll:  floatArg(req, "roll", 0),
			Pitch: floatArg(req, "pitch", 0),
			Yaw:   floatArg(req, "yaw", 0),
		},
		DOF: dof,
	}
	if _, present := args["seed"]; present {
		seed, ok := floatsArg(req, "seed")
		if !ok {
			return mcp.NewToolResultError("'seed' must be an array of numbers"), nil
		}
		ikReq.Seed = seed
	}

	resp, err := t.engine.Solve(ctx, ikReq)
	if err != nil {
		b, _ := json.Marshal(kinematics.NewFailureResponse(err))
		return mcp.NewToolResultError(string(b)), nil
	}
	return jsonResult(resp)
}

// ForwardTool handles the forward_kinematics MCP tool.
type ForwardTool struct {
	engine *kinematics.Engine
}

func NewForwardTool(engine *kinematics.Engine) *ForwardTool {
	return &ForwardTool{engine: engine}
}

// ForwardResult is the pose reported by forward_kinematics.
type ForwardResult struct {
	Position    kinematics.Position    `json:"position"`
	Orientation kinematics.Orientation `json:"orientation"`
}

// Definition returns the MCP tool definition for forward_kinematics.
func (t *ForwardTool) Definition() mcp.Tool {
	return mcp.NewTool("forward_kinematics",
		mcp.WithDescription(
			"Compute the end-effector pose for a set of joint angles (radians). "+
				"The number of joints selects the chain, 2 to 7.",
		),
		mcp.WithArray("joints",
			mcp.Required(),
			mcp.Description("Joint angles in radians, base joint first"),
			mcp.Items(map[string]any{"type": "number"}),
		),
	)
}

// Handle processes the forward_kinematics tool call.
func (t *ForwardTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	joints, ok := floatsArg(req, "joints")
	if !ok {
		return mcp.NewToolResultError("'joints' must be an array of numbers"), nil
	}

	pose, _, err := t.engine.Forward(len(joints), joints)
	if err != nil {
		b, _ := json.Marshal(kinematics.NewFailureResponse(err))
		return mcp.NewToolResultError(string(b)), nil
	}

	roll, pitch, yaw := pose.Orientation.RPY()
	return jsonResult(ForwardResult{
		Position:    kinematics.Position{X: pose.Position.X, Y: pose.Position.Y, Z: pose.Position.Z},
		Orientation: kinematics.Orientation{Roll: roll, Pitch: pitch, Yaw: yaw},
	})
}
