// Package ingest couples a live network connection to the player. Bytes
// received from the connection are written into a pipe whose read side is
// handed to the demuxer, so a stalled player applies backpressure to the
// network reader instead of buffering without bound.
package ingest

import (
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// ReadBufferSize is the socket read size: ten SRT payloads of seven
// 188-byte transport stream packets each.
const ReadBufferSize = 1316 * 10

// Stats captures connection-level metrics of a live input.
type Stats struct {
	BytesReceived int64
	ReadCount     int64
	ConnectedAt   int64
	UptimeMs      int64
	RemoteAddr    string
}

// Stream is one live input. The network side calls Pump; the player side
// reads the stream as an io.Reader.
type Stream struct {
	Key       string
	StartedAt time.Time

	pr   *io.PipeReader
	pw   *io.PipeWriter
	done chan struct{}
	once sync.Once

	bytesReceived atomic.Int64
	readCount     atomic.Int64
	remoteAddr    atomic.Value
}

// NewStream returns an unconnected live input identified by key.
func NewStream(key string) *Stream {
	pr, pw := io.Pipe()
	return &Stream{
		Key:       key,
		StartedAt: time.Now(),
		pr:        pr,
		pw:        pw,
		done:      make(chan struct{}),
	}
}

// Read returns received bytes. It returns io.EOF once the connection has
// ended.
func (s *Stream) Read(p []byte) (int, error) {
	return s.pr.Read(p)
}

// Close stops the stream from the player side. A running Pump fails its
// next write and returns.
func (s *Stream) Close() error {
	s.finish(nil)
	return s.pr.Close()
}

// Done is closed once the connection has ended or the stream was closed.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

func (s *Stream) finish(err error) {
	s.once.Do(func() {
		if err == nil || errors.Is(err, io.EOF) {
			s.pw.Close()
		} else {
			s.pw.CloseWithError(err)
		}
		close(s.done)
	})
}

// Pump copies r into the stream until r fails or the stream is closed. The
// read error ends the stream; io.EOF is reported to the reader as a clean
// end of input.
func (s *Stream) Pump(r io.Reader) error {
	buf := make([]byte, ReadBufferSize)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			s.RecordRead(n)
			if _, werr := s.pw.Write(buf[:n]); werr != nil {
				s.finish(werr)
				return werr
			}
		}
		if err != nil {
			s.finish(err)
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// RecordRead increments the byte and read counters.
func (s *Stream) RecordRead(n int) {
	s.bytesReceived.Add(int64(n))
	s.readCount.Add(1)
}

// SetRemoteAddr stores the peer address for diagnostics.
func (s *Stream) SetRemoteAddr(addr string) {
	s.remoteAddr.Store(addr)
}

// Stats returns a snapshot of the connection metrics.
func (s *Stream) Stats() Stats {
	addr, _ := s.remoteAddr.Load().(string)
	return Stats{
		BytesReceived: s.bytesReceived.Load(),
		ReadCount:     s.readCount.Load(),
		ConnectedAt:   s.StartedAt.UnixMilli(),
		UptimeMs:      time.Since(s.StartedAt).Milliseconds(),
		RemoteAddr:    addr,
	}
}
