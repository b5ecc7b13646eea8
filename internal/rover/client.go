// Package rover talks to the rover hardware: the motor controller and the
// camera board. Rovers are addressed by mDNS name or IP; the motor controller
// answers on "<host>.local" and the camera on "<host>-cam.local". When the
// host is an IP the camera shares it.
package rover

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"
)

// Info is what a controller reports on its /info endpoint.
type Info struct {
	MDNSName string `json:"mdns_name"`
	IP       string `json:"ip"`
}

// Status is the combined probe result for a rover's motor and camera.
type Status struct {
	MotorOnline  bool   `json:"motor_online"`
	MotorIP      string `json:"motor_ip,omitempty"`
	MotorMDNS    string `json:"motor_mdns,omitempty"`
	CameraOnline bool   `json:"camera_online"`
	CameraIP     string `json:"camera_ip,omitempty"`
	CameraMDNS   string `json:"camera_mdns,omitempty"`
}

// Client is the control-plane's view of rover hardware.
type Client interface {
	Info(ctx context.Context, host string) (Info, error)
	CameraInfo(ctx context.Context, host string) (Info, error)
	MotorOnline(ctx context.Context, host string) bool
	SendMotorCommand(ctx context.Context, host, command string) error
	CameraFrame(ctx context.Context, host string) ([]byte, error)
	Status(ctx context.Context, host string) Status
}

type HTTPClient struct {
	httpClient *http.Client
}

func NewHTTPClient(timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{httpClient: &http.Client{Timeout: timeout}}
}

// Info fetches the motor controller's identity.
func (c *HTTPClient) Info(ctx context.Context, host string) (Info, error) {
	return c.fetchInfo(ctx, motorBaseURL(host)+"/info", host)
}

// CameraInfo fetches the camera board's identity.
func (c *HTTPClient) CameraInfo(ctx context.Context, host string) (Info, error) {
	return c.fetchInfo(ctx, cameraBaseURL(host)+"/info", host+"-cam")
}

// MotorOnline reports whether the motor controller answers its /info probe.
func (c *HTTPClient) MotorOnline(ctx context.Context, host string) bool {
	_, err := c.Info(ctx, host)
	return err == nil
}

// SendMotorCommand relays a drive command to the motor controller.
func (c *HTTPClient) SendMotorCommand(ctx context.Context, host, command string) error {
	url := motorBaseURL(host) + "/motor/" + command
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("build motor request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("motor request failed: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20))

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("motor returned %d", resp.StatusCode)
	}
	return nil
}

// CameraFrame grabs a single JPEG frame from the camera board.
func (c *HTTPClient) CameraFrame(ctx context.Context, host string) ([]byte, error) {
	url := cameraBaseURL(host) + "/getImage"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build camera request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("camera request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("camera returned %d", resp.StatusCode)
	}

	frame, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("read camera frame: %w", err)
	}
	return frame, nil
}

// Status probes both controllers. Probe failures are reported as offline
// rather than errors so a half-dead rover still gets a useful answer.
func (c *HTTPClient) Status(ctx context.Context, host string) Status {
	var status Status
	if info, err := c.Info(ctx, host); err == nil {
		status.MotorOnline = true
		status.MotorIP = info.IP
		status.MotorMDNS = info.MDNSName
	}
	if info, err := c.CameraInfo(ctx, host); err == nil {
		status.CameraOnline = true
		status.CameraIP = info.IP
		status.CameraMDNS = info.MDNSName
	}
	return status
}

func (c *HTTPClient) fetchInfo(ctx context.Context, url, fallbackName string) (Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Info{}, fmt.Errorf("build info request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("info request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Info{}, fmt.Errorf("info returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Info{}, fmt.Errorf("read info response: %w", err)
	}

	var info Info
	if err := json.Unmarshal(body, &info); err != nil {
		return Info{}, fmt.Errorf("decode info response: %w", err)
	}
	if info.MDNSName == "" {
		info.MDNSName = fallbackName
	}
	if info.IP == "" {
		info.IP = "unknown"
	}
	return info, nil
}

var ipPattern = regexp.MustCompile(`^\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}$`)

// direct hosts skip mDNS suffixing: IPs, host:port pairs, and full URLs.
func isDirectHost(host string) bool {
	return ipPattern.MatchString(host) || strings.Contains(host, ":")
}

func motorBaseURL(host string) string {
	trimmed := strings.TrimSpace(host)
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return strings.TrimRight(trimmed, "/")
	}
	if isDirectHost(trimmed) {
		return "http://" + trimmed
	}
	return "http://" + trimmed + ".local"
}

func cameraBaseURL(host string) string {
	trimmed := strings.TrimSpace(host)
	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		return strings.TrimRight(trimmed, "/")
	}
	if isDirectHost(trimmed) {
		return "http://" + trimmed
	}
	return "http://" + trimmed + "-cam.local"
}
