package server

import (
	"encoding/json"
	"net/http"
	"time"

	"go.viam.com/rdk/logging"

	kinematics "github.com/julimercado10/robot-arm-kinematics"
)

// Event is the envelope for every outbound WebSocket message.
type Event struct {
	Type    string `json:"type"`
	Ts      string `json:"ts"`
	Payload any    `json:"payload"`
}

const (
	EventResult = "result"
	EventError  = "error"
)

// ForwardRequest asks for the end-effector pose of a joint configuration.
type ForwardRequest struct {
	DOF    int       `json:"dof"`
	Joints []float64 `json:"joints"`
}

// ForwardResponse carries the end-effector pose plus the origin of every
// frame, base first, for drawing the links.
type ForwardResponse struct {
	Position    kinematics.Position    `json:"position"`
	Orientation kinematics.Orientation `json:"orientation"`
	Origins     []kinematics.Position  `json:"origins"`
}

type Server struct {
	Router http.Handler

	engine   *kinematics.Engine
	registry *kinematics.SolveRegistry
	logger   logging.Logger
	conns    uint64 // Atomic
}

func NewServer(engine *kinematics.Engine, logger logging.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{
		engine:   engine,
		registry: kinematics.NewSolveRegistry(),
		logger:   logger,
	}

	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/kinematics", s.handleKinematics)
	mux.HandleFunc("/api/forward", s.handleForward)

	// CORS for the browser front end
	s.Router = withCORS(mux)
	return s
}

// Close cancels every in-flight WebSocket solve.
func (s *Server) Close() {
	s.registry.CancelAll()
}

// Registry exposes the in-flight solve table.
func (s *Server) Registry() *kinematics.SolveRegistry {
	return s.registry
}

func withCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleKinematics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req kinematics.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	resp, err := s.engine.Solve(r.Context(), req)
	if err != nil {
		s.logger.Debugf("solve for dof %d failed: %v", req.DOF, err)
		writeJSON(w, http.StatusUnprocessableEntity, kinematics.NewFailureResponse(err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleForward(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req ForwardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	pose, frames, err := s.engine.Forward(req.DOF, req.Joints)
	if err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, kinematics.NewFailureResponse(err))
		return
	}
	writeJSON(w, http.StatusOK, forwardResponse(pose, frames))
}

func forwardResponse(pose kinematics.Pose, frames []kinematics.Frame) ForwardResponse {
	roll, pitch, yaw := pose.Orientation.RPY()
	resp := ForwardResponse{
		Position:    kinematics.Position{X: pose.Position.X, Y: pose.Position.Y, Z: pose.Position.Z},
		Orientation: kinematics.Orientation{Roll: roll, Pitch: pitch, Yaw: yaw},
		Origins:     make([]kinematics.Position, 0, len(frames)),
	}
	for _, f := range frames {
		p := f.Position()
		resp.Origins = append(resp.Origins, kinematics.Position{X: p.X, Y: p.Y, Z: p.Z})
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Utility for timestamps in events
func nowISO() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}
