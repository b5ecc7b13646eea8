package rover

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func newRoverServer(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		switch r.URL.Path {
		case "/info":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"mdns_name":"garage-rover-01","ip":"192.168.1.42"}`))
		case "/motor/forward", "/motor/back", "/motor/left", "/motor/right", "/motor/stop":
			_, _ = w.Write([]byte("ok"))
		case "/getImage":
			w.Header().Set("Content-Type", "image/jpeg")
			_, _ = w.Write([]byte{0xff, 0xd8, 0xff, 0xe0})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server, &paths
}

func TestInfo(t *testing.T) {
	t.Parallel()
	server, _ := newRoverServer(t)
	client := NewHTTPClient(time.Second)

	info, err := client.Info(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if info.MDNSName != "garage-rover-01" || info.IP != "192.168.1.42" {
		t.Fatalf("unexpected info %+v", info)
	}
	if !client.MotorOnline(context.Background(), server.URL) {
		t.Fatalf("expected motor online")
	}
}

func TestInfoOffline(t *testing.T) {
	t.Parallel()
	server, _ := newRoverServer(t)
	server.Close()
	client := NewHTTPClient(200 * time.Millisecond)

	if _, err := client.Info(context.Background(), server.URL); err == nil {
		t.Fatalf("expected error from closed server")
	}
	if client.MotorOnline(context.Background(), server.URL) {
		t.Fatalf("expected motor offline")
	}
}

func TestSendMotorCommand(t *testing.T) {
	t.Parallel()
	server, paths := newRoverServer(t)
	client := NewHTTPClient(time.Second)

	if err := client.SendMotorCommand(context.Background(), server.URL, "forward"); err != nil {
		t.Fatalf("send command: %v", err)
	}
	if len(*paths) != 1 || (*paths)[0] != "/motor/forward" {
		t.Fatalf("unexpected request paths %v", *paths)
	}

	if err := client.SendMotorCommand(context.Background(), server.URL, "launch"); err == nil {
		t.Fatalf("expected error for unknown hardware command")
	}
}

func TestCameraFrame(t *testing.T) {
	t.Parallel()
	server, _ := newRoverServer(t)
	client := NewHTTPClient(time.Second)

	frame, err := client.CameraFrame(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("camera frame: %v", err)
	}
	if len(frame) != 4 || frame[0] != 0xff || frame[1] != 0xd8 {
		t.Fatalf("unexpected frame bytes %v", frame)
	}
}

func TestStatusProbesBothControllers(t *testing.T) {
	t.Parallel()
	server, _ := newRoverServer(t)
	client := NewHTTPClient(time.Second)

	status := client.Status(context.Background(), server.URL)
	if !status.MotorOnline || !status.CameraOnline {
		t.Fatalf("expected both controllers online, got %+v", status)
	}
	if status.MotorIP != "192.168.1.42" || status.MotorMDNS != "garage-rover-01" {
		t.Fatalf("unexpected motor identity %+v", status)
	}
}

func TestStatusOfflineRover(t *testing.T) {
	t.Parallel()
	server, _ := newRoverServer(t)
	server.Close()
	client := NewHTTPClient(200 * time.Millisecond)

	status := client.Status(context.Background(), server.URL)
	if status.MotorOnline || status.CameraOnline {
		t.Fatalf("expected offline status, got %+v", status)
	}
	if status.MotorIP != "" || status.CameraMDNS != "" {
		t.Fatalf("offline controllers must not report identities")
	}
}

func TestBaseURLDerivation(t *testing.T) {
	t.Parallel()

	cases := []struct {
		host   string
		motor  string
		camera string
	}{
		{"garage-rover-01", "http://garage-rover-01.local", "http://garage-rover-01-cam.local"},
		{"192.168.1.42", "http://192.168.1.42", "http://192.168.1.42"},
		{"10.0.0.5:8080", "http://10.0.0.5:8080", "http://10.0.0.5:8080"},
		{"http://example.test/", "http://example.test", "http://example.test"},
		{"  garage-rover-01  ", "http://garage-rover-01.local", "http://garage-rover-01-cam.local"},
	}
	for _, tc := range cases {
		if got := motorBaseURL(tc.host); got != tc.motor {
			t.Fatalf("motorBaseURL(%q) = %q, want %q", tc.host, got, tc.motor)
		}
		if got := cameraBaseURL(tc.host); got != tc.camera {
			t.Fatalf("cameraBaseURL(%q) = %q, want %q", tc.host, got, tc.camera)
		}
	}
}
