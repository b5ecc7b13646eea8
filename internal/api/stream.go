package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/jpillora/backoff"
	"nhooyr.io/websocket"

	"github.com/rovergate/rovergate/internal/wallet"
)

const streamWriteTimeout = 5 * time.Second

// handleCameraStream upgrades to a websocket and pushes JPEG frames at the
// configured interval for as long as the caller's session holds the rover.
// Authorization runs before the upgrade so unauthenticated clients see a
// plain 401/403 instead of a failed handshake.
func (s *Server) handleCameraStream(w http.ResponseWriter, r *http.Request) {
	walletAddress, roverHost, ok := s.requireLease(w, r)
	if !ok {
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: originPatterns(s.corsOrigins),
	})
	if err != nil {
		s.logger.Warn("camera stream upgrade failed", "rover", roverHost, "error", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream ended")

	s.logger.Info("camera stream opened", "wallet", wallet.Mask(walletAddress), "rover", roverHost)

	// The stream is write-only; CloseRead drains control frames and cancels
	// the context when the client goes away.
	ctx := conn.CloseRead(r.Context())
	s.streamFrames(ctx, conn, walletAddress, roverHost)
}

func (s *Server) streamFrames(ctx context.Context, conn *websocket.Conn, walletAddress, roverHost string) {
	ticker := time.NewTicker(s.frameInterval)
	defer ticker.Stop()
	retry := backoff.Backoff{Min: 250 * time.Millisecond, Max: 5 * time.Second}

	for {
		// Stop pushing the moment the session ends or moves to another rover.
		current, ok := s.access.RoverFor(walletAddress)
		if !ok || current != roverHost {
			conn.Close(websocket.StatusNormalClosure, "session ended")
			return
		}

		frame, err := s.rovers.CameraFrame(ctx, roverHost)
		if err != nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(retry.Duration()):
			}
			continue
		}
		retry.Reset()

		writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
		err = conn.Write(writeCtx, websocket.MessageBinary, frame)
		cancel()
		if err != nil {
			return
		}

		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusGoingAway, "server shutting down")
			return
		case <-ticker.C:
		}
	}
}

// originPatterns converts configured CORS origins into the host patterns the
// websocket handshake checks.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, origin := range origins {
		trimmed := strings.TrimPrefix(strings.TrimPrefix(origin, "https://"), "http://")
		if trimmed != "" {
			patterns = append(patterns, trimmed)
		}
	}
	return patterns
}
