// ikmcp serves the kinematics engine as an MCP server over stdio.
//
// Usage:
//
//	ikmcp                      # embedded arm description
//	ikmcp -config engine.json  # custom engine config
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"
	"go.viam.com/rdk/logging"

	kinematics "github.com/julimercado10/robot-arm-kinematics"
	"github.com/julimercado10/robot-arm-kinematics/internal/iktools"
)

// Version is reported in the MCP handshake.
const Version = "0.1.0"

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := flag.NewFlagSet("ikmcp", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("DH_ARM_CONFIG"), "path to a JSON engine config")
	if err := fs.Parse(args); err != nil {
		return err
	}

	// stdout belongs to the MCP transport, so the logger has no appenders.
	logger := logging.NewBlankLogger("ikmcp")

	cfg := &kinematics.Config{}
	if *configPath != "" {
		loaded, err := kinematics.LoadConfig(*configPath)
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		cfg = loaded
	}
	engine, err := kinematics.NewEngine(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating engine: %w", err)
	}

	s := server.NewMCPServer(
		"ikmcp",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
	)

	solveTool := iktools.NewSolveTool(engine)
	s.AddTool(solveTool.Definition(), solveTool.Handle)

	forwardTool := iktools.NewForwardTool(engine)
	s.AddTool(forwardTool.Definition(), forwardTool.Handle)

	return server.ServeStdio(s)
}
