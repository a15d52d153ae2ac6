package kinematics

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
)

//go:embed data/default_arm.json
var defaultArmJSON []byte

// OrientationMode selects whether the orientation rows take part in a solve.
type OrientationMode string

const (
	// OrientationAuto solves position only below 6 DOF and the full pose otherwise.
	OrientationAuto         OrientationMode = "auto"
	OrientationFull         OrientationMode = "full"
	OrientationPositionOnly OrientationMode = "position_only"
)

// PositionOnly resolves the mode for a chain of dof joints.
func (m OrientationMode) PositionOnly(dof int) bool {
	switch m {
	case OrientationFull:
		return false
	case OrientationPositionOnly:
		return true
	default:
		return dof < 6
	}
}

// Config is the engine configuration file.
type Config struct {
	// ArmFile points at an ArmDescription JSON file. Relative paths are
	// resolved under DH_ARM_DATA. Empty means the embedded description.
	ArmFile string `json:"arm_file,omitempty"`

	WorkspacePolicy WorkspacePolicy `json:"workspace_policy,omitempty"`
	OrientationMode OrientationMode `json:"orientation_mode,omitempty"`

	Solver SolverConfig `json:"solver"`

	// Not serialized
	Logger logging.Logger `json:"-"`
}

// Validate ensures all parts of the config are valid
func (cfg *Config) Validate(path string) error {
	if cfg.WorkspacePolicy == "" {
		cfg.WorkspacePolicy = PolicyClamp
	}
	if cfg.OrientationMode == "" {
		cfg.OrientationMode = OrientationAuto
	}

	if cfg.WorkspacePolicy != PolicyClamp && cfg.WorkspacePolicy != PolicyReject {
		return fmt.Errorf("%s: workspace_policy must be 'clamp' or 'reject', got '%s'", path, cfg.WorkspacePolicy)
	}
	switch cfg.OrientationMode {
	case OrientationAuto, OrientationFull, OrientationPositionOnly:
	default:
		return fmt.Errorf("%s: orientation_mode must be 'auto', 'full' or 'position_only', got '%s'", path, cfg.OrientationMode)
	}
	if err := cfg.Solver.Validate(path + ".solver"); err != nil {
		return err
	}
	return nil
}

// LoadConfig reads and validates a config file.
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal json file")
	}
	if err := cfg.Validate(filePath); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveConfig writes cfg as indented JSON.
func SaveConfig(filePath string, cfg *Config) error {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ArmDescription is the DH table, joint ranges and workspace boxes of an arm.
// A chain of n DOF uses the first n rows of DHTemplate and JointBounds.
type ArmDescription struct {
	Name        string           `json:"name,omitempty"`
	DHTemplate  []JointParameter `json:"dh_template"`
	JointBounds []Bound          `json:"joint_bounds,omitempty"`
	Workspace   map[int]Box      `json:"workspace"`
}

// DefaultArm returns a fresh copy of the embedded arm description.
func DefaultArm() ArmDescription {
	arm, err := parseArm(defaultArmJSON)
	if err != nil {
		panic(errors.Wrap(err, "embedded arm description"))
	}
	return arm
}

func parseArm(data []byte) (ArmDescription, error) {
	var arm ArmDescription
	if err := json.Unmarshal(data, &arm); err != nil {
		return ArmDescription{}, errors.Wrap(err, "failed to unmarshal json file")
	}
	if err := arm.Validate(); err != nil {
		return ArmDescription{}, err
	}
	return arm, nil
}

// Validate checks the table sizes and every range.
func (a ArmDescription) Validate() error {
	if len(a.DHTemplate) < MinDOF || len(a.DHTemplate) > MaxDOF {
		return fmt.Errorf("dh_template must have between %d and %d rows, got %d", MinDOF, MaxDOF, len(a.DHTemplate))
	}
	for i, p := range a.DHTemplate {
		if !p.isFinite() {
			return fmt.Errorf("dh_template row %d has non-finite values", i)
		}
	}
	if len(a.JointBounds) != 0 && len(a.JointBounds) != len(a.DHTemplate) {
		return fmt.Errorf("joint_bounds has %d entries, dh_template has %d rows", len(a.JointBounds), len(a.DHTemplate))
	}
	for i, b := range a.JointBounds {
		if err := b.Validate(); err != nil {
			return fmt.Errorf("joint %d: %w", i+1, err)
		}
	}
	if _, err := NewWorkspace(a.Workspace, PolicyClamp); err != nil {
		return err
	}
	return nil
}

// JointCount is the longest chain this description can build.
func (a ArmDescription) JointCount() int {
	return len(a.DHTemplate)
}

// Chain builds a chain from the first dof rows of the template.
func (a ArmDescription) Chain(dof int) (*Chain, error) {
	if dof < MinDOF || dof > MaxDOF {
		return nil, newInvalidConfiguration("DOF %d outside [%d, %d]", dof, MinDOF, MaxDOF)
	}
	if dof > len(a.DHTemplate) {
		return nil, newInvalidConfiguration("arm %q only describes %d joints, requested %d", a.Name, len(a.DHTemplate), dof)
	}
	return NewChain(a.DHTemplate[:dof])
}

// Bounds returns the ranges of the first dof joints, or nil when the arm
// leaves its joints free.
func (a ArmDescription) Bounds(dof int) Bounds {
	if len(a.JointBounds) == 0 || dof > len(a.JointBounds) {
		return nil
	}
	out := make(Bounds, dof)
	copy(out, a.JointBounds[:dof])
	return out
}

func (a ArmDescription) Equal(other ArmDescription) bool {
	if a.Name != other.Name ||
		len(a.DHTemplate) != len(other.DHTemplate) ||
		len(a.JointBounds) != len(other.JointBounds) ||
		len(a.Workspace) != len(other.Workspace) {
		return false
	}
	for i := range a.DHTemplate {
		if a.DHTemplate[i] != other.DHTemplate[i] {
			return false
		}
	}
	for i := range a.JointBounds {
		if a.JointBounds[i] != other.JointBounds[i] {
			return false
		}
	}
	for dof, box := range a.Workspace {
		if otherBox, ok := other.Workspace[dof]; !ok || otherBox != box {
			return false
		}
	}
	return true
}

// LoadArm loads the arm description from file or returns the embedded one.
// Returns (arm, fromFile) where fromFile indicates if loaded from file
func (cfg *Config) LoadArm(logger logging.Logger) (ArmDescription, bool) {
	if cfg.ArmFile == "" {
		if logger != nil {
			logger.Debug("No arm file specified, using embedded arm description")
		}
		return DefaultArm(), false
	}

	armFile := cfg.ArmFile
	if !filepath.IsAbs(armFile) {
		if dataDir := os.Getenv("DH_ARM_DATA"); dataDir != "" {
			armFile = filepath.Join(dataDir, armFile)
		}
	}

	arm, err := LoadArmFromFile(armFile)
	if err != nil {
		if logger != nil {
			logger.Warnf("Failed to load arm description from %s: %v, using embedded arm description", armFile, err)
		}
		return DefaultArm(), false
	}

	if logger != nil {
		logger.Infof("Successfully loaded arm description from %s", armFile)
	}
	return arm, true
}

// LoadArmFromFile loads and validates an arm description from a JSON file
func LoadArmFromFile(filePath string) (ArmDescription, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return ArmDescription{}, fmt.Errorf("failed to read arm file: %w", err)
	}
	arm, err := parseArm(data)
	if err != nil {
		return ArmDescription{}, fmt.Errorf("arm description validation failed: %w", err)
	}
	return arm, nil
}

// SaveArmToFile saves an arm description to a JSON file
func SaveArmToFile(filePath string, arm ArmDescription) error {
	data, err := json.MarshalIndent(arm, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal arm description: %w", err)
	}
	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write arm file: %w", err)
	}
	return nil
}
