package proto

import (
	"context"
	"encoding/json"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/deepgram/wsh/src/session"
)

func startServer(t *testing.T) (string, *session.Registry) {
	t.Helper()
	registry := session.NewRegistry(0)
	t.Cleanup(registry.Drain)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	socket := filepath.Join(t.TempDir(), "test.sock")
	srv := NewServer(ctx, registry)
	go func() {
		if err := srv.Serve(socket); err != nil {
			t.Logf("serve: %v", err)
		}
	}()

	// Wait for the listener to come up.
	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err := net.Dial("unix", socket)
		if err == nil {
			conn.Close()
			return socket, registry
		}
		if time.Now().After(deadline) {
			t.Fatalf("socket never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func dial(t *testing.T, socket string) net.Conn {
	t.Helper()
	conn, err := net.Dial("unix", socket)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn net.Conn, frameType FrameType, v any) {
	t.Helper()
	payload, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteFrame(conn, frameType, payload); err != nil {
		t.Fatal(err)
	}
}

func readFrameTimeout(t *testing.T, conn net.Conn, wait time.Duration) Frame {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(wait))
	frame, err := ReadFrame(conn)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	_ = conn.SetReadDeadline(time.Time{})
	return frame
}

func TestCreateAndListOverSocket(t *testing.T) {
	socket, registry := startServer(t)
	conn := dial(t, socket)

	sendJSON(t, conn, FrameCreateSession, CreateSessionRequest{Name: "unix-s", Command: "sleep 60"})
	frame := readFrameTimeout(t, conn, 2*time.Second)
	if frame.Type != FrameCreateSessionResponse {
		t.Fatalf("frame type = %d", frame.Type)
	}
	var created CreateSessionResponse
	if err := json.Unmarshal(frame.Payload, &created); err != nil {
		t.Fatal(err)
	}
	if created.Error != "" || created.Name != "unix-s" {
		t.Fatalf("response = %+v", created)
	}
	if _, ok := registry.Get("unix-s"); !ok {
		t.Error("session not in registry")
	}

	sendJSON(t, conn, FrameListSessions, struct{}{})
	frame = readFrameTimeout(t, conn, 2*time.Second)
	if frame.Type != FrameListSessionsResponse {
		t.Fatalf("frame type = %d", frame.Type)
	}
	var list []SessionSummary
	if err := json.Unmarshal(frame.Payload, &list); err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].Name != "unix-s" {
		t.Errorf("list = %+v", list)
	}
}

func TestInitialFrameTimeoutClosesConn(t *testing.T) {
	socket, _ := startServer(t)
	conn := dial(t, socket)

	// Send nothing; the server must hang up after the initial deadline.
	_ = conn.SetReadDeadline(time.Now().Add(8 * time.Second))
	buf := make([]byte, 1)
	start := time.Now()
	_, err := conn.Read(buf)
	if err == nil {
		t.Fatal("connection not closed")
	}
	if elapsed := time.Since(start); elapsed > 7*time.Second {
		t.Errorf("closed after %v, want around the 5s initial-frame deadline", elapsed)
	}
}

func TestAttachStreamsOutputAndInput(t *testing.T) {
	socket, registry := startServer(t)

	creator := dial(t, socket)
	sendJSON(t, creator, FrameCreateSession, CreateSessionRequest{Name: "att", Command: "sh"})
	readFrameTimeout(t, creator, 2*time.Second)

	conn := dial(t, socket)
	sendJSON(t, conn, FrameAttachSession, AttachSessionRequest{Name: "att"})
	frame := readFrameTimeout(t, conn, 2*time.Second)
	if frame.Type != FrameAttachSessionResponse {
		t.Fatalf("frame type = %d", frame.Type)
	}
	var resp AttachSessionResponse
	if err := json.Unmarshal(frame.Payload, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error != "" || resp.Name != "att" {
		t.Fatalf("response = %+v", resp)
	}

	// Drive the shell and expect its output back as PtyOutput frames.
	if err := WriteFrame(conn, FrameStdinInput, []byte("echo socket-roundtrip\n")); err != nil {
		t.Fatal(err)
	}
	var collected strings.Builder
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		frame, err := ReadFrame(conn)
		if err != nil {
			continue
		}
		if frame.Type == FramePtyOutput {
			collected.Write(frame.Payload)
			if strings.Contains(collected.String(), "socket-roundtrip") {
				break
			}
		}
	}
	if !strings.Contains(collected.String(), "socket-roundtrip") {
		t.Fatalf("output never echoed; got %q", collected.String())
	}

	// Detach leaves the session alive.
	_ = conn.SetReadDeadline(time.Time{})
	if err := WriteFrame(conn, FrameDetach, nil); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if _, ok := registry.Get("att"); !ok {
		t.Error("session died on detach")
	}
}

func TestAttachUnknownSessionErrors(t *testing.T) {
	socket, _ := startServer(t)
	conn := dial(t, socket)
	sendJSON(t, conn, FrameAttachSession, AttachSessionRequest{Name: "ghost"})
	frame := readFrameTimeout(t, conn, 2*time.Second)
	var resp AttachSessionResponse
	if err := json.Unmarshal(frame.Payload, &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Error == "" {
		t.Error("expected an error for unknown session")
	}
}
