package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"nhooyr.io/websocket"
)

func dialStream(t *testing.T, ctx context.Context, ts *httptest.Server, walletAddress string) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/robot/camera/stream"
	header := http.Header{}
	if walletAddress != "" {
		header.Set(walletHeader, walletAddress)
	}
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		t.Fatalf("dial stream: %v", err)
	}
	return conn
}

func TestCameraStreamPushesFrames(t *testing.T) {
	srv, rovers := newTestServer(Options{FrameInterval: 10 * time.Millisecond})

	if rr := purchase(t, srv, testWalletA, testRover); rr.Code != http.StatusOK {
		t.Fatalf("purchase failed: %d", rr.Code)
	}

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialStream(t, ctx, ts, testWalletA)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	for i := 0; i < 2; i++ {
		kind, frame, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("read frame %d: %v", i, err)
		}
		if kind != websocket.MessageBinary {
			t.Fatalf("expected binary frame, got %v", kind)
		}
		if !bytes.Equal(frame, rovers.frame) {
			t.Fatalf("frame bytes do not match")
		}
	}
}

func TestCameraStreamEndsWhenSessionReleased(t *testing.T) {
	srv, _ := newTestServer(Options{FrameInterval: 5 * time.Millisecond})

	if rr := purchase(t, srv, testWalletA, testRover); rr.Code != http.StatusOK {
		t.Fatalf("purchase failed: %d", rr.Code)
	}

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialStream(t, ctx, ts, testWalletA)
	defer conn.Close(websocket.StatusNormalClosure, "done")

	if _, _, err := conn.Read(ctx); err != nil {
		t.Fatalf("read first frame: %v", err)
	}

	if rr := doJSON(t, srv, http.MethodDelete, "/api/v1/access", testWalletA, nil, nil); rr.Code != http.StatusNoContent {
		t.Fatalf("release failed: %d", rr.Code)
	}

	var err error
	for {
		if _, _, err = conn.Read(ctx); err != nil {
			break
		}
	}
	if websocket.CloseStatus(err) != websocket.StatusNormalClosure {
		t.Fatalf("expected normal closure after release, got %v", err)
	}
}

func TestCameraStreamRequiresSession(t *testing.T) {
	srv, _ := newTestServer(Options{})

	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/robot/camera/stream"
	if _, _, err := websocket.Dial(ctx, wsURL, nil); err == nil {
		t.Fatalf("expected handshake to fail without a session")
	}
}
