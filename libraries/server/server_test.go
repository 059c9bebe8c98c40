package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"
)

func TestSocketListenTCP(t *testing.T) {
	l, err := SocketListen("127.0.0.1:0")
	if err != nil {
		t.Fatalf("SocketListen: %v", err)
	}
	defer l.Close()
	if l.Addr().Network() != "tcp" {
		t.Errorf("network = %s, want tcp", l.Addr().Network())
	}
}

func TestSocketListenUnix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.sock")
	l, err := SocketListen(path)
	if err != nil {
		t.Fatalf("SocketListen: %v", err)
	}
	defer l.Close()
	if l.Addr().Network() != "unix" {
		t.Errorf("network = %s, want unix", l.Addr().Network())
	}

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.Close()
}

func TestServeStopsOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "serve.sock")
	ctx, cancel := context.WithCancel(context.Background())

	mux := http.NewServeMux()
	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) { io.WriteString(w, "pong") })

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, path, mux) }()

	client := &http.Client{Transport: &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return (&net.Dialer{}).DialContext(ctx, "unix", path)
		},
	}}
	var body string
	for i := 0; i < 50; i++ {
		resp, err := client.Get("http://unix/ping")
		if err == nil {
			b, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			body = string(b)
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if body != "pong" {
		t.Errorf("body = %q, want pong", body)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
