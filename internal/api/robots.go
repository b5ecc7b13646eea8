package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/rovergate/rovergate/internal/fleet"
	"github.com/rovergate/rovergate/internal/wallet"
	"github.com/rovergate/rovergate/pkg/httpx"
)

// registerProbeTimeout bounds the /info probes at registration time. A rover
// that is offline while being registered still registers, just without its
// self-reported mDNS names.
const registerProbeTimeout = 3 * time.Second

const reactivatedHeader = "X-Robot-Reactivated"

type registerRobotRequest struct {
	Name          string `json:"name"`
	MotorIP       string `json:"motor_ip"`
	CameraIP      string `json:"camera_ip"`
	WalletAddress string `json:"wallet_address"`
	OwnerWallet   string `json:"owner_wallet"`
}

type updateRobotRequest struct {
	Name          *string `json:"name"`
	MotorIP       *string `json:"motor_ip"`
	CameraIP      *string `json:"camera_ip"`
	WalletAddress *string `json:"wallet_address"`
	OwnerWallet   *string `json:"owner_wallet"`
}

type listRobotsResponse struct {
	Robots []fleet.Robot `json:"robots"`
	Total  int           `json:"total"`
}

func (s *Server) handleRobots(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleRegisterRobot(w, r)
	case http.MethodGet:
		s.handleListRobots(w, r)
	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (s *Server) handleRegisterRobot(w http.ResponseWriter, r *http.Request) {
	var req registerRobotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	if strings.TrimSpace(req.Name) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_name", "name is required")
		return
	}
	if strings.TrimSpace(req.MotorIP) == "" {
		httpx.WriteError(w, http.StatusBadRequest, "missing_motor_ip", "motor_ip is required")
		return
	}
	if !wallet.Valid(req.WalletAddress) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_wallet",
			"wallet_address must be a 0x-prefixed 40 hex char address")
		return
	}
	owner, ok := s.validateOwner(r.Context(), w, req.OwnerWallet)
	if !ok {
		return
	}

	motorMDNS, cameraMDNS := s.discoverMDNS(r.Context(), req.MotorIP, req.CameraIP)

	robot, reactivated, err := s.robots.Register(r.Context(), fleet.RegisterInput{
		Name:          req.Name,
		MotorIP:       req.MotorIP,
		CameraIP:      req.CameraIP,
		MotorMDNS:     motorMDNS,
		CameraMDNS:    cameraMDNS,
		WalletAddress: req.WalletAddress,
		OwnerWallet:   owner,
	})
	if err != nil {
		s.writeCatalogError(w, err)
		return
	}

	if reactivated {
		s.logger.Info("robot reactivated", "id", robot.ID, "name", robot.Name)
		w.Header().Set(reactivatedHeader, "true")
		httpx.WriteJSON(w, http.StatusOK, robot)
		return
	}
	s.logger.Info("robot registered", "id", robot.ID, "name", robot.Name, "host", robot.Host())
	httpx.WriteJSON(w, http.StatusCreated, robot)
}

func (s *Server) handleListRobots(w http.ResponseWriter, r *http.Request) {
	robots, err := s.robots.List(r.Context())
	if err != nil {
		httpx.WriteError(w, http.StatusInternalServerError, "catalog_unavailable", "robot catalog lookup failed")
		return
	}
	if robots == nil {
		robots = []fleet.Robot{}
	}
	httpx.WriteJSON(w, http.StatusOK, listRobotsResponse{Robots: robots, Total: len(robots)})
}

func (s *Server) handleRobotByID(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimPrefix(r.URL.Path, "/api/v1/robots/")
	if id == "" || strings.Contains(id, "/") {
		httpx.WriteError(w, http.StatusNotFound, "not_found", "not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		robot, err := s.robots.Get(r.Context(), id)
		if err != nil {
			s.writeCatalogError(w, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, robot)
	case http.MethodPatch:
		s.handleUpdateRobot(w, r, id)
	case http.MethodDelete:
		if err := s.robots.Delete(r.Context(), id); err != nil {
			s.writeCatalogError(w, err)
			return
		}
		s.logger.Info("robot retired", "id", id)
		w.WriteHeader(http.StatusNoContent)
	default:
		httpx.WriteError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	}
}

func (s *Server) handleUpdateRobot(w http.ResponseWriter, r *http.Request, id string) {
	var req updateRobotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}

	if req.WalletAddress != nil && !wallet.Valid(*req.WalletAddress) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_wallet",
			"wallet_address must be a 0x-prefixed 40 hex char address")
		return
	}
	if req.OwnerWallet != nil {
		owner, ok := s.validateOwner(r.Context(), w, *req.OwnerWallet)
		if !ok {
			return
		}
		req.OwnerWallet = &owner
	}

	robot, err := s.robots.Update(r.Context(), id, fleet.UpdateInput{
		Name:          req.Name,
		MotorIP:       req.MotorIP,
		CameraIP:      req.CameraIP,
		WalletAddress: req.WalletAddress,
		OwnerWallet:   req.OwnerWallet,
	})
	if err != nil {
		s.writeCatalogError(w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, robot)
}

// validateOwner accepts an empty owner, a plain address, or a dotted name.
// Names are resolved against ENS when a resolver is configured, purely to
// reject typos; the name itself is what gets stored.
func (s *Server) validateOwner(ctx context.Context, w http.ResponseWriter, owner string) (string, bool) {
	owner = wallet.Normalize(owner)
	if owner == "" {
		return "", true
	}
	if !wallet.ValidOwner(owner) {
		httpx.WriteError(w, http.StatusBadRequest, "invalid_owner",
			"owner_wallet must be a wallet address or an ENS name")
		return "", false
	}
	if wallet.IsName(owner) && s.resolver != nil {
		if _, err := s.resolver.Resolve(ctx, owner); err != nil {
			s.logger.Warn("owner name did not resolve", "owner", owner, "error", err)
			httpx.WriteError(w, http.StatusBadRequest, "unresolvable_owner",
				"owner_wallet name does not resolve to an address")
			return "", false
		}
	}
	return owner, true
}

// discoverMDNS asks the controllers for their advertised names so the catalog
// can store how the rover announces itself, not just its IPs.
func (s *Server) discoverMDNS(ctx context.Context, motorIP, cameraIP string) (string, string) {
	probeCtx, cancel := context.WithTimeout(ctx, registerProbeTimeout)
	defer cancel()

	var motorMDNS, cameraMDNS string
	if info, err := s.rovers.Info(probeCtx, motorIP); err == nil {
		motorMDNS = info.MDNSName
	}
	camHost := cameraIP
	if camHost == "" {
		camHost = motorIP
	}
	if info, err := s.rovers.CameraInfo(probeCtx, camHost); err == nil {
		cameraMDNS = info.MDNSName
	}
	return motorMDNS, cameraMDNS
}

func (s *Server) writeCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, fleet.ErrRobotNotFound):
		httpx.WriteError(w, http.StatusNotFound, "robot_not_found", "robot not found")
	case errors.Is(err, fleet.ErrHostTaken):
		httpx.WriteError(w, http.StatusConflict, "host_taken",
			"an active robot with this motor mDNS name is already registered")
	case errors.Is(err, fleet.ErrNameTaken):
		httpx.WriteError(w, http.StatusConflict, "name_taken",
			"an active robot with this name is already registered")
	default:
		httpx.WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
	}
}
