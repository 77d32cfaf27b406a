package proto

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("echo hello\n")
	if err := WriteFrame(&buf, FrameStdinInput, payload); err != nil {
		t.Fatal(err)
	}
	frame, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if frame.Type != FrameStdinInput {
		t.Errorf("type = %d", frame.Type)
	}
	if !bytes.Equal(frame.Payload, payload) {
		t.Errorf("payload = %q", frame.Payload)
	}
}

func TestFrameWireFormat(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, FramePtyOutput, []byte("ab")); err != nil {
		t.Fatal(err)
	}
	raw := buf.Bytes()
	if raw[0] != byte(FramePtyOutput) {
		t.Errorf("type byte = %d", raw[0])
	}
	if got := binary.BigEndian.Uint32(raw[1:5]); got != 2 {
		t.Errorf("length = %d", got)
	}
	if string(raw[5:]) != "ab" {
		t.Errorf("payload bytes = %q", raw[5:])
	}
}

func TestEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, FrameDetach, nil); err != nil {
		t.Fatal(err)
	}
	frame, err := ReadFrame(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if frame.Type != FrameDetach || len(frame.Payload) != 0 {
		t.Errorf("frame = %+v", frame)
	}
}

func TestOversizedFrameRejected(t *testing.T) {
	header := make([]byte, 5)
	header[0] = byte(FrameStdinInput)
	binary.BigEndian.PutUint32(header[1:], MaxPayload+1)
	if _, err := ReadFrame(bytes.NewReader(header)); err == nil {
		t.Error("oversized frame accepted")
	}
}

func TestTruncatedFrame(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, FrameStdinInput, []byte("full payload")); err != nil {
		t.Fatal(err)
	}
	truncated := buf.Bytes()[:7]
	if _, err := ReadFrame(bytes.NewReader(truncated)); err != io.ErrUnexpectedEOF {
		t.Errorf("err = %v, want unexpected EOF", err)
	}
}

func TestMultipleFramesSequential(t *testing.T) {
	var buf bytes.Buffer
	for i := 0; i < 3; i++ {
		if err := WriteFrame(&buf, FrameListSessions, nil); err != nil {
			t.Fatal(err)
		}
	}
	for i := 0; i < 3; i++ {
		frame, err := ReadFrame(&buf)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if frame.Type != FrameListSessions {
			t.Errorf("frame %d type = %d", i, frame.Type)
		}
	}
}
