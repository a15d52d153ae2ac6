package iktools

import (
	"context"
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"go.viam.com/rdk/logging"

	kinematics "github.com/julimercado10/robot-arm-kinematics"
)

// ─── Test helpers ────────────────────────────────────────────────────────────

func newTestEngine(t *testing.T) *kinematics.Engine {
	t.Helper()
	engine, err := kinematics.NewEngine(nil, logging.NewTestLogger(t))
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	return engine
}

// makeReq builds a mcp.CallToolRequest with the given arguments.
func makeReq(args map[string]interface{}) mcp.CallToolRequest {
	req := mcp.CallToolRequest{}
	req.Params.Arguments = args
	return req
}

// resultText extracts the text content from a tool result.
func resultText(r *mcp.CallToolResult) string {
	if r == nil || len(r.Content) == 0 {
		return ""
	}
	for _, c := range r.Content {
		if tc, ok := c.(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

// ─── ForwardTool Tests ───────────────────────────────────────────────────────

func TestForwardTool_Definition(t *testing.T) {
	tool := NewForwardTool(newTestEngine(t))
	if def := tool.Definition(); def.Name != "forward_kinematics" {
		t.Errorf("expected name 'forward_kinematics', got %q", def.Name)
	}
}

func TestForwardTool_Pose(t *testing.T) {
	tool := NewForwardTool(newTestEngine(t))

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"joints": []interface{}{0.4, 0.6},
	}))
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(result))
	}

	var out ForwardResult
	if err := json.Unmarshal([]byte(resultText(result)), &out); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if math.Abs(out.Position.Z-0.46939) > 1e-5 {
		t.Errorf("expected z ~0.46939, got %v", out.Position.Z)
	}
}

func TestForwardTool_BadJoints(t *testing.T) {
	tool := NewForwardTool(newTestEngine(t))

	tests := []struct {
		name string
		args map[string]interface{}
		want string
	}{
		{"missing", map[string]interface{}{}, "joints"},
		{"not numbers", map[string]interface{}{"joints": []interface{}{"a", "b"}}, "joints"},
		{"too few", map[string]interface{}{"joints": []interface{}{0.1}}, string(kinematics.CodeInvalidDOF)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := tool.Handle(context.Background(), makeReq(tt.args))
			if err != nil {
				t.Fatalf("unexpected Go error: %v", err)
			}
			if !result.IsError {
				t.Fatal("expected tool error")
			}
			if text := resultText(result); !strings.Contains(text, tt.want) {
				t.Errorf("error should mention %q, got: %s", tt.want, text)
			}
		})
	}
}

// ─── SolveTool Tests ─────────────────────────────────────────────────────────

func TestSolveTool_Definition(t *testing.T) {
	tool := NewSolveTool(newTestEngine(t))
	if def := tool.Definition(); def.Name != "solve_inverse_kinematics" {
		t.Errorf("expected name 'solve_inverse_kinematics', got %q", def.Name)
	}
}

func TestSolveTool_Solves(t *testing.T) {
	engine := newTestEngine(t)
	tool := NewSolveTool(engine)

	pose, _, err := engine.Forward(2, []float64{0.4, 0.6})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"x":    pose.Position.X,
		"y":    pose.Position.Y,
		"z":    pose.Position.Z,
		"dof":  float64(2),
		"seed": []interface{}{0.0, 0.0},
	}))
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(result))
	}

	var resp kinematics.Response
	if err := json.Unmarshal([]byte(resultText(result)), &resp); err != nil {
		t.Fatalf("result is not JSON: %v", err)
	}
	if !resp.Converged {
		t.Error("expected convergence")
	}
	if len(resp.JointAngles) != 2 {
		t.Errorf("expected 2 joint angles, got %d", len(resp.JointAngles))
	}
}

func TestSolveTool_MissingArgs(t *testing.T) {
	tool := NewSolveTool(newTestEngine(t))

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"x": 0.1, "y": 0.1, "z": 0.5,
	}))
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for missing dof")
	}
	if text := resultText(result); !strings.Contains(text, "dof") {
		t.Errorf("error should mention dof, got: %s", text)
	}
}

func TestSolveTool_FractionalDOF(t *testing.T) {
	tool := NewSolveTool(newTestEngine(t))

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"x": 0.1, "y": 0.1, "z": 0.5, "dof": 2.7,
	}))
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for dof 2.7")
	}
	if text := resultText(result); !strings.Contains(text, "integer") {
		t.Errorf("error should say dof must be an integer, got: %s", text)
	}
}

func TestSolveTool_FailureBody(t *testing.T) {
	tool := NewSolveTool(newTestEngine(t))

	result, err := tool.Handle(context.Background(), makeReq(map[string]interface{}{
		"x": 0.1, "y": 0.1, "z": 0.5, "dof": float64(9),
	}))
	if err != nil {
		t.Fatalf("unexpected Go error: %v", err)
	}
	if !result.IsError {
		t.Fatal("expected tool error for dof 9")
	}

	var failure kinematics.FailureResponse
	if err := json.Unmarshal([]byte(resultText(result)), &failure); err != nil {
		t.Fatalf("failure is not JSON: %v", err)
	}
	if failure.Error != kinematics.CodeInvalidDOF {
		t.Errorf("expected %s, got %s", kinematics.CodeInvalidDOF, failure.Error)
	}
}
