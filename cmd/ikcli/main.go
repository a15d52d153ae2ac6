package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"go.viam.com/rdk/logging"

	kinematics "github.com/julimercado10/robot-arm-kinematics"
)

func main() {
	code, err := realMain(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(code)
}

func realMain(args []string) (int, error) {
	fs := flag.NewFlagSet("ikcli", flag.ContinueOnError)
	x := fs.Float64("x", 0, "target x in meters")
	y := fs.Float64("y", 0, "target y in meters")
	z := fs.Float64("z", 0.5, "target z in meters")
	roll := fs.Float64("roll", 0, "target roll")
	pitch := fs.Float64("pitch", 0, "target pitch")
	yaw := fs.Float64("yaw", 0, "target yaw")
	dof := fs.Int("dof", 6, "degrees of freedom (2-7)")
	configPath := fs.String("config", os.Getenv("DH_ARM_CONFIG"), "path to a JSON engine config")
	degrees := fs.Bool("degrees", false, "read roll/pitch/yaw and print joint angles in degrees")
	verbose := fs.Bool("v", false, "log solver progress")
	if err := fs.Parse(args); err != nil {
		return 2, err
	}

	logger := logging.NewLogger("ikcli")
	logger.SetLevel(logging.WARN)
	if *verbose {
		logger.SetLevel(logging.DEBUG)
	}

	cfg := &kinematics.Config{}
	if *configPath != "" {
		loaded, err := kinematics.LoadConfig(*configPath)
		if err != nil {
			return 1, err
		}
		cfg = loaded
	}
	engine, err := kinematics.NewEngine(cfg, logger)
	if err != nil {
		return 1, err
	}

	orientation := kinematics.Orientation{Roll: *roll, Pitch: *pitch, Yaw: *yaw}
	if *degrees {
		orientation = kinematics.Orientation{
			Roll:  kinematics.DegreesToRadians(*roll),
			Pitch: kinematics.DegreesToRadians(*pitch),
			Yaw:   kinematics.DegreesToRadians(*yaw),
		}
	}
	req := kinematics.Request{
		Position:    kinematics.Position{X: *x, Y: *y, Z: *z},
		Orientation: orientation,
		DOF:         *dof,
	}

	if *verbose {
		if distance, reach, err := engine.ReachEstimate(req.DOF, req.Position); err == nil {
			logger.Infof("target is %.3f m from the base, chain reach is %.3f m", distance, reach)
		}
	}

	resp, err := engine.Solve(context.Background(), req)
	if err != nil {
		return 1, printJSON(kinematics.NewFailureResponse(err))
	}
	if *degrees {
		for i, v := range resp.JointAngles {
			resp.JointAngles[i] = kinematics.RadiansToDegrees(v)
		}
	}
	return 0, printJSON(resp)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
