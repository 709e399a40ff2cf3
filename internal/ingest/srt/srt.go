// Package srt receives live MPEG-TS over SRT (Secure Reliable Transport),
// either by dialing a remote listener (caller mode) or by waiting for a
// single publisher to connect (listener mode).
package srt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	srtgo "github.com/zsiec/srtgo"

	"github.com/zsiec/prismplay/internal/ingest"
)

// latencyNs is the SRT receive latency in nanoseconds (120ms).
const latencyNs = 120_000_000

// dialTimeout bounds how long Dial waits for the handshake.
const dialTimeout = 10 * time.Second

// Endpoint is a parsed srt:// URL.
type Endpoint struct {
	Address  string // host:port
	StreamID string
}

// ParseURL parses srt://host:port?streamid=....
func ParseURL(raw string) (Endpoint, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Endpoint{}, fmt.Errorf("srt: %w", err)
	}
	if u.Scheme != "srt" {
		return Endpoint{}, fmt.Errorf("srt: unsupported scheme %q", u.Scheme)
	}
	if _, _, err := net.SplitHostPort(u.Host); err != nil {
		return Endpoint{}, fmt.Errorf("srt: address %q: %w", u.Host, err)
	}

	ep := Endpoint{
		Address:  u.Host,
		StreamID: u.Query().Get("streamid"),
	}
	return ep, nil
}

// IsURL reports whether s names an SRT endpoint rather than a file.
func IsURL(s string) bool {
	return strings.HasPrefix(s, "srt://")
}


// Dial connects to a remote SRT listener and streams its payload into the
// returned Stream until the connection ends or ctx is cancelled. If log is
// nil, slog.Default() is used.
func Dial(ctx context.Context, ep Endpoint, log *slog.Logger) (*ingest.Stream, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "srt-caller")

	cfg := srtgo.DefaultConfig()
	cfg.Latency = latencyNs
	key := extractStreamKey(ep.StreamID)
	if ep.StreamID == "" {
		cfg.StreamID = "live/" + key
	} else {
		cfg.StreamID = ep.StreamID
	}

	log.Info("dialing", "address", ep.Address, "stream_key", key)

	ch := make(chan dialResult, 1)
	go func() {
		conn, err := srtgo.Dial(ep.Address, cfg)
		ch <- dialResult{conn, err}
	}()

	timer := time.NewTimer(dialTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return nil, fmt.Errorf("SRT dial failed: %w", res.err)
		}
		log.Info("connected", "address", ep.Address, "stream_key", key)
		return serve(ctx, res.conn, key, ep.Address, log), nil
	case <-timer.C:
		go closeLate(ch)
		return nil, fmt.Errorf("SRT dial timed out after %s", dialTimeout)
	case <-ctx.Done():
		go closeLate(ch)
		return nil, ctx.Err()
	}
}

type dialResult struct {
	conn *srtgo.Conn
	err  error
}

// closeLate closes a connection whose dial finished after we gave up.
func closeLate(ch <-chan dialResult) {
	if res := <-ch; res.conn != nil {
		res.conn.Close()
	}
}

// serve pumps conn into a new Stream in the background.
func serve(ctx context.Context, conn *srtgo.Conn, key, remote string, log *slog.Logger) *ingest.Stream {
	stream := ingest.NewStream(key)
	stream.SetRemoteAddr(remote)
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	go func() {
		defer func() {
			stop()
			conn.Close()
			stats := stream.Stats()
			log.Info("connection closed", "stream_key", key,
				"bytes", stats.BytesReceived, "reads", stats.ReadCount,
				"uptime_ms", stats.UptimeMs)
		}()
		if err := stream.Pump(conn); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			log.Debug("read error", "stream_key", key, "error", err)
		}
	}()
	return stream
}

// Listener accepts SRT publishers. While a publisher is connected, further
// publishers are rejected.
type Listener struct {
	log  *slog.Logger
	addr string
	l    *srtgo.Listener
	busy atomic.Bool
}

// Listen starts listening on addr. If log is nil, slog.Default() is used.
func Listen(addr string, log *slog.Logger) (*Listener, error) {
	if log == nil {
		log = slog.Default()
	}
	cfg := srtgo.DefaultConfig()
	cfg.Latency = latencyNs

	l, err := srtgo.Listen(addr, cfg)
	if err != nil {
		return nil, fmt.Errorf("SRT listen on %s: %w", addr, err)
	}
	ln := &Listener{
		log:  log.With("component", "srt-listener"),
		addr: addr,
		l:    l,
	}
	l.SetAcceptRejectFunc(func(req srtgo.ConnRequest) srtgo.RejectReason {
		if req.StreamID == "" || ln.busy.Load() {
			return srtgo.RejPeer
		}
		return 0
	})
	ln.log.Info("listening", "addr", addr)
	return ln, nil
}

// Accept waits for the next publisher and returns its stream. The listener
// accepts another publisher once the returned stream is done.
func (ln *Listener) Accept(ctx context.Context) (*ingest.Stream, error) {
	stop := context.AfterFunc(ctx, func() { ln.l.Close() })
	defer stop()

	for {
		conn, err := ln.l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("SRT accept: %w", err)
		}
		if !ln.busy.CompareAndSwap(false, true) {
			conn.Close()
			continue
		}

		key := extractStreamKey(conn.StreamID())
		ln.log.Info("publish", "stream_key", key, "remote", conn.RemoteAddr())
		stream := serve(ctx, conn, key, conn.RemoteAddr().String(), ln.log)
		go func() {
			<-stream.Done()
			ln.busy.Store(false)
		}()
		return stream, nil
	}
}

// Close stops listening.
func (ln *Listener) Close() error {
	ln.l.Close()
	return nil
}

func extractStreamKey(streamID string) string {
	streamID = strings.TrimPrefix(streamID, "/")
	streamID = strings.TrimPrefix(streamID, "live/")
	if streamID == "" {
		return "default"
	}
	return streamID
}
