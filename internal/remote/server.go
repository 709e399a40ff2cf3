package remote

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/zsiec/prismplay/internal/certs"
	"github.com/zsiec/prismplay/internal/player"
)

// Controller is the part of a playback session the control channel drives.
// *player.Session implements it.
type Controller interface {
	TogglePause()
	StepFrame()
	Seek(pos, rel float64) bool
	SeekRelative(incr float64) bool
	Quit()
	Status() player.Status
}

// Server accepts control connections for one session.
type Server struct {
	log *slog.Logger
	ctl Controller
	ln  *quic.Listener
}

// Listen binds the control endpoint on addr using cert. If log is nil,
// slog.Default() is used.
func Listen(addr string, cert *certs.CertInfo, ctl Controller, log *slog.Logger) (*Server, error) {
	if log == nil {
		log = slog.Default()
	}
	tlsConfig := &tls.Config{
		Certificates: []tls.Certificate{cert.TLSCert},
		NextProtos:   []string{ALPN},
	}
	ln, err := quic.ListenAddr(addr, tlsConfig, &quic.Config{
		MaxIdleTimeout:  30 * time.Second,
		KeepAlivePeriod: 10 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("remote: listen on %s: %w", addr, err)
	}
	s := &Server{
		log: log.With("component", "remote"),
		ctl: ctl,
		ln:  ln,
	}
	s.log.Info("control channel listening", "addr", ln.Addr().String(), "fingerprint", cert.FingerprintBase64())
	return s, nil
}

// Addr returns the bound UDP address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve accepts connections until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() { s.ln.Close() })
	defer stop()

	for {
		conn, err := s.ln.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("remote: accept: %w", err)
		}
		s.log.Info("controller connected", "remote", conn.RemoteAddr().String())
		go s.handleConn(ctx, conn)
	}
}

// Close stops accepting connections.
func (s *Server) Close() error {
	return s.ln.Close()
}

func (s *Server) handleConn(ctx context.Context, conn quic.Connection) {
	defer conn.CloseWithError(0, "")
	for {
		str, err := conn.AcceptStream(ctx)
		if err != nil {
			s.log.Debug("controller gone", "remote", conn.RemoteAddr().String(), "error", err)
			return
		}
		go s.handleStream(str)
	}
}

func (s *Server) handleStream(str quic.Stream) {
	defer str.Close()
	br := bufio.NewReader(str)
	for {
		msgType, payload, err := ReadMsg(br)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.log.Debug("control read failed", "error", err)
			}
			return
		}
		replyType, reply := s.dispatch(msgType, payload)
		if err := WriteMsg(str, replyType, reply); err != nil {
			s.log.Debug("control write failed", "error", err)
			return
		}
	}
}

// dispatch applies one request and builds its reply.
func (s *Server) dispatch(msgType uint64, payload []byte) (uint64, []byte) {
	switch msgType {
	case MsgPause:
		s.ctl.TogglePause()
		return MsgOK, SerializeOK(OK{Accepted: true})
	case MsgStep:
		s.ctl.StepFrame()
		return MsgOK, SerializeOK(OK{Accepted: true})
	case MsgQuit:
		s.ctl.Quit()
		return MsgOK, SerializeOK(OK{Accepted: true})
	case MsgSeek:
		req, err := ParseSeek(payload)
		if err != nil {
			return MsgError, SerializeError(RemoteError{Code: CodeMalformed, Reason: err.Error()})
		}
		var ok bool
		if req.Relative {
			ok = s.ctl.SeekRelative(req.Seconds)
		} else {
			ok = s.ctl.Seek(req.Seconds, 0)
		}
		s.log.Info("remote seek", "seconds", req.Seconds, "relative", req.Relative, "accepted", ok)
		return MsgOK, SerializeOK(OK{Accepted: ok})
	case MsgStatus:
		return MsgStatusReply, SerializeStatus(s.ctl.Status())
	default:
		return MsgError, SerializeError(RemoteError{
			Code:   CodeUnknownMessage,
			Reason: fmt.Sprintf("%v: %#x", ErrUnknownMessage, msgType),
		})
	}
}
