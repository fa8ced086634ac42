package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/vpntrail/vpntrail/internal/logging"
	"github.com/vpntrail/vpntrail/pkg/types"
)

func TestStdoutSinkWritesJSONLines(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdoutSink(&buf)

	ev := &types.ConnectionEvent{
		Timestamp:  time.Date(2026, 8, 26, 9, 12, 44, 0, time.UTC),
		EventType:  types.EventConnect,
		ClientIP:   "203.0.113.7",
		ClientPort: 51820,
		Username:   "bob",
	}
	if err := s.Write(context.Background(), ev); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	stats := &types.SystemStats{Timestamp: time.Now()}
	if err := s.Write(context.Background(), stats); err != nil {
		t.Fatalf("Write failed: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}

	var decoded types.ConnectionEvent
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("First line is not valid JSON: %v", err)
	}
	if decoded.EventType != types.EventConnect || decoded.Username != "bob" {
		t.Errorf("Decoded event mismatch: %+v", decoded)
	}
	if decoded.BytesReceived != nil {
		t.Error("Absent byte counter should decode as nil")
	}
}

func TestStdoutSinkHonorsCancelledContext(t *testing.T) {
	var buf bytes.Buffer
	s := NewStdoutSink(&buf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := s.Write(ctx, &types.SystemStats{}); err == nil {
		t.Error("Expected error from cancelled context")
	}
	if buf.Len() != 0 {
		t.Error("Nothing should be written after cancellation")
	}
}

func TestCompressorRoundTrip(t *testing.T) {
	payload := []byte(strings.Repeat("203.0.113.7:51820 connect\n", 50))

	cases := []struct {
		codec string
		ext   string
	}{
		{"none", ""},
		{"", ""},
		{"gzip", ".gz"},
		{"snappy", ".snappy"},
	}
	for _, tc := range cases {
		c, err := NewCompressor(tc.codec)
		if err != nil {
			t.Fatalf("NewCompressor(%q) failed: %v", tc.codec, err)
		}
		compressed, ext, err := c.Compress(payload)
		if err != nil {
			t.Fatalf("Compress(%q) failed: %v", tc.codec, err)
		}
		if ext != tc.ext {
			t.Errorf("Codec %q: expected extension %q, got %q", tc.codec, tc.ext, ext)
		}
		decompressed, err := c.Decompress(compressed)
		if err != nil {
			t.Fatalf("Decompress(%q) failed: %v", tc.codec, err)
		}
		if !bytes.Equal(decompressed, payload) {
			t.Errorf("Codec %q: round trip mismatch", tc.codec)
		}
	}
}

func TestNewCompressorRejectsUnknownCodec(t *testing.T) {
	if _, err := NewCompressor("lz77"); err == nil {
		t.Error("Expected error for unknown codec")
	}
}

func TestFactoryRejectsUnknownType(t *testing.T) {
	_, err := New(context.Background(), Config{Type: "carrier-pigeon"}, logging.Nop())
	if err == nil {
		t.Fatal("Expected error for unknown sink type")
	}
	if !strings.Contains(err.Error(), "carrier-pigeon") {
		t.Errorf("Error should name the offending type: %v", err)
	}
}

func TestFactoryRejectsUnconfiguredBackend(t *testing.T) {
	for _, typ := range []string{"mongodb", "kafka", "elasticsearch", "s3"} {
		if _, err := New(context.Background(), Config{Type: typ}, logging.Nop()); err == nil {
			t.Errorf("Expected error for unconfigured %s sink", typ)
		}
	}
}

func TestFactoryStdoutNeedsNoConfig(t *testing.T) {
	s, err := New(context.Background(), Config{Type: "stdout"}, logging.Nop())
	if err != nil {
		t.Fatalf("Stdout sink creation failed: %v", err)
	}
	if s.Name() != "stdout" {
		t.Errorf("Expected stdout sink, got %s", s.Name())
	}
}

func TestWriteTimeoutDefault(t *testing.T) {
	if got := (Config{}).WriteTimeout(); got != DefaultWriteTimeout {
		t.Errorf("Expected default timeout %v, got %v", DefaultWriteTimeout, got)
	}
	if got := (Config{Timeout: 3 * time.Second}).WriteTimeout(); got != 3*time.Second {
		t.Errorf("Expected configured timeout, got %v", got)
	}
}
