package ingest

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

func TestStreamPumpDeliversBytes(t *testing.T) {
	t.Parallel()

	s := NewStream("cam1")
	payload := bytes.Repeat([]byte{0x47, 1, 2, 3}, 5000)

	errc := make(chan error, 1)
	go func() { errc <- s.Pump(bytes.NewReader(payload)) }()

	got, err := io.ReadAll(s)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("read %d bytes, want %d", len(got), len(payload))
	}
	if err := <-errc; err != nil {
		t.Fatalf("Pump = %v, want nil at EOF", err)
	}

	stats := s.Stats()
	if stats.BytesReceived != int64(len(payload)) {
		t.Errorf("BytesReceived = %d, want %d", stats.BytesReceived, len(payload))
	}
	if stats.ReadCount < 2 {
		t.Errorf("ReadCount = %d, want at least 2", stats.ReadCount)
	}
	select {
	case <-s.Done():
	default:
		t.Error("Done not closed after EOF")
	}
}

type failingReader struct{ err error }

func (r failingReader) Read([]byte) (int, error) { return 0, r.err }

func TestStreamPumpPropagatesError(t *testing.T) {
	t.Parallel()

	reset := errors.New("connection reset")
	s := NewStream("cam1")
	go s.Pump(failingReader{reset})

	_, err := io.ReadAll(s)
	if !errors.Is(err, reset) {
		t.Fatalf("reader error = %v, want %v", err, reset)
	}
}

type endlessReader struct{}

func (endlessReader) Read(p []byte) (int, error) { return len(p), nil }

func TestStreamCloseStopsPump(t *testing.T) {
	t.Parallel()

	s := NewStream("cam1")
	errc := make(chan error, 1)
	go func() { errc <- s.Pump(endlessReader{}) }()

	buf := make([]byte, 64)
	if _, err := s.Read(buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	s.Close()

	select {
	case err := <-errc:
		if !errors.Is(err, io.ErrClosedPipe) {
			t.Errorf("Pump = %v, want io.ErrClosedPipe", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Pump did not return after Close")
	}
}

func TestStreamSetRemoteAddr(t *testing.T) {
	t.Parallel()

	s := NewStream("s1")
	s.SetRemoteAddr("192.168.1.1:5000")
	if got := s.Stats().RemoteAddr; got != "192.168.1.1:5000" {
		t.Fatalf("RemoteAddr = %q, want %q", got, "192.168.1.1:5000")
	}
}

func TestStreamStatsUptime(t *testing.T) {
	t.Parallel()

	s := NewStream("s1")
	time.Sleep(10 * time.Millisecond)

	stats := s.Stats()
	if stats.UptimeMs < 10 {
		t.Fatalf("UptimeMs = %d, expected at least 10", stats.UptimeMs)
	}
	if stats.ConnectedAt == 0 {
		t.Fatal("ConnectedAt is zero")
	}
}
