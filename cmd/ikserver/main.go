// Package main serves the kinematics engine over HTTP and WebSocket.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/rdk/logging"
	"go.viam.com/utils"

	kinematics "github.com/julimercado10/robot-arm-kinematics"
	"github.com/julimercado10/robot-arm-kinematics/internal/server"
)

func main() {
	utils.ContextualMain(mainWithArgs, logging.NewLogger("ikserver"))
}

func mainWithArgs(ctx context.Context, args []string, logger logging.Logger) error {
	fs := flag.NewFlagSet("ikserver", flag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("DH_ARM_CONFIG"), "path to a JSON engine config")
	addr := fs.String("addr", envOr("DH_ARM_ADDR", ":8080"), "listen address")
	debug := fs.Bool("debug", false, "log every solver iteration")
	if err := fs.Parse(args[1:]); err != nil {
		return err
	}
	if *debug {
		logger.SetLevel(logging.DEBUG)
	}

	cfg := &kinematics.Config{}
	if *configPath != "" {
		loaded, err := kinematics.LoadConfig(*configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}

	engine, err := kinematics.NewEngine(cfg, logger)
	if err != nil {
		return errors.Wrap(err, "failed to build engine")
	}
	logger.Infof("loaded arm %q with %d joints", engine.Arm().Name, engine.Arm().JointCount())

	srv := server.NewServer(engine, logger)
	defer srv.Close()

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv.Router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("listening on %s", *addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	logger.Info("shutting down")
	return httpServer.Shutdown(shutdownCtx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
