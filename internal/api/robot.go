package api

import (
	"net/http"
	"strings"

	"github.com/rovergate/rovergate/internal/metrics"
	"github.com/rovergate/rovergate/internal/rover"
	"github.com/rovergate/rovergate/internal/wallet"
	"github.com/rovergate/rovergate/pkg/httpx"
)

// motorCommands is the command set the rover firmware accepts. Anything else
// is rejected before it reaches hardware.
var motorCommands = map[string]bool{
	"forward": true,
	"back":    true,
	"left":    true,
	"right":   true,
	"stop":    true,
}

type motorResponse struct {
	Status  string `json:"status"`
	Command string `json:"command"`
}

func (s *Server) handleMotor(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	_, roverHost, ok := s.requireLease(w, r)
	if !ok {
		return
	}

	command := strings.TrimPrefix(r.URL.Path, "/api/v1/robot/motor/")
	if !motorCommands[command] {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_command",
			"motor command must be one of forward, back, left, right, stop")
		return
	}

	if err := s.rovers.SendMotorCommand(r.Context(), roverHost, command); err != nil {
		metrics.MotorCommands.WithLabelValues(command, "error").Inc()
		s.logger.Warn("motor command failed", "rover", roverHost, "command", command, "error", err)
		httpx.WriteErrorf(w, http.StatusServiceUnavailable, "robot_unreachable",
			"robot %q did not accept the command", roverHost)
		return
	}

	metrics.MotorCommands.WithLabelValues(command, "ok").Inc()
	httpx.WriteJSON(w, http.StatusOK, motorResponse{Status: "ok", Command: command})
}

func (s *Server) handleCameraFrame(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}
	_, roverHost, ok := s.requireLease(w, r)
	if !ok {
		return
	}

	frame, err := s.rovers.CameraFrame(r.Context(), roverHost)
	if err != nil {
		httpx.WriteError(w, http.StatusServiceUnavailable, "camera_offline", "robot camera offline")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(frame)
}

type robotStatusResponse struct {
	RobotHost string `json:"robot_host"`
	rover.Status
	Available bool   `json:"available"`
	LockedBy  string `json:"locked_by,omitempty"`
}

// handleRobotStatus is the public probe: anyone may ask whether a rover is
// reachable and whether it can currently be claimed. The holder is only ever
// reported in masked form.
func (s *Server) handleRobotStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
		return
	}

	roverHost := wallet.Normalize(r.URL.Query().Get("robot_host"))
	if roverHost == "" {
		// Callers with an active session may omit the parameter and get
		// their own rover's status.
		if address := wallet.Normalize(r.Header.Get(walletHeader)); wallet.Valid(address) {
			roverHost, _ = s.access.RoverFor(address)
		}
	}
	if roverHost == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_robot_host", "robot_host query parameter is required")
		return
	}

	availability := s.access.Describe(roverHost)
	httpx.WriteJSON(w, http.StatusOK, robotStatusResponse{
		RobotHost: roverHost,
		Status:    s.rovers.Status(r.Context(), roverHost),
		Available: availability.Available,
		LockedBy:  availability.LockedBy,
	})
}
