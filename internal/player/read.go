package player

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/zsiec/prismplay/internal/decode"
	"github.com/zsiec/prismplay/internal/media"
	"github.com/zsiec/prismplay/internal/syncx"
)

// readWait is how long the reader sleeps when it has nothing to do: queues
// full, input at its end, or playback paused at the end.
const readWait = 10 * time.Millisecond

// readLoop is the demux goroutine. It services seek requests, applies
// backpressure, handles the end of the input and routes packets to the
// stream queues.
func (s *Session) readLoop(ctx context.Context) error {
	log := s.log.With("component", "reader")
	for {
		s.mu.Lock()
		if s.abort {
			s.mu.Unlock()
			return nil
		}

		if s.seekReq {
			s.serviceSeekLocked(ctx, log)
			s.mu.Unlock()
			continue
		}

		if !s.opts.InfiniteBuffer && s.queuesFullLocked() {
			syncx.WaitTimeout(s.continueRead, readWait)
			s.mu.Unlock()
			continue
		}

		if !s.paused && s.eof && s.presentedLocked() {
			if s.opts.Loop {
				log.Info("end of input, looping")
				s.seekLocked(s.src.StartTime(), 0)
				s.mu.Unlock()
				continue
			}
			if s.opts.AutoExit {
				s.mu.Unlock()
				log.Info("end of input, exiting")
				s.Quit()
				return nil
			}
		}
		s.mu.Unlock()

		pkt, err := s.src.ReadPacket(ctx)
		if errors.Is(err, io.EOF) {
			s.mu.Lock()
			if !s.eof {
				s.eof = true
				s.drainDecodersLocked()
				log.Info("end of input")
			}
			syncx.WaitTimeout(s.continueRead, readWait)
			s.mu.Unlock()
			continue
		}
		if err != nil {
			if ctx.Err() != nil || s.aborted() {
				return nil
			}
			return fmt.Errorf("player: read: %w", err)
		}

		s.mu.Lock()
		s.eof = false
		s.mu.Unlock()
		s.route(pkt)
	}
}

// serviceSeekLocked repositions the source and starts a new generation on
// every queue. The session lock is released while the source seeks.
func (s *Session) serviceSeekLocked(ctx context.Context, log *slog.Logger) {
	target, rel := s.seekPos, s.seekRel
	s.mu.Unlock()
	err := s.src.Seek(ctx, target, rel)
	s.mu.Lock()

	if err != nil {
		log.Error("seek failed", "target", target, "error", err)
	} else {
		for _, st := range s.streams() {
			st.Queue.Flush()
		}
		s.clocks.External.Set(target, 0)
		log.Info("seek", "target", target, "rel", rel)
	}
	s.seekReq = false
	s.eof = false
	if s.paused {
		s.stepLocked()
	}
}

// queuesFullLocked reports whether the reader should wait: the queues
// together hold more than MaxQueueSize bytes, or every stream has enough
// packets buffered.
func (s *Session) queuesFullLocked() bool {
	size := 0
	enough := true
	for _, st := range s.streams() {
		size += st.Queue.Size()
		if !st.Queue.HasEnoughPackets(media.MinFrames, media.MinQueueSeconds) {
			enough = false
		}
	}
	return size > media.MaxQueueSize || enough
}

// presentedLocked reports whether every stream's decoder was drained in the
// current generation and its frames were all consumed.
func (s *Session) presentedLocked() bool {
	for _, st := range s.streams() {
		if !finished(st) {
			return false
		}
	}
	return true
}

func finished(st *decode.Stream) bool {
	return st.Worker.Finished() == st.Queue.Serial() && st.Worker.Frames().Remaining() == 0
}

// drainDecodersLocked queues a null packet on every stream so decoders
// flush their buffered frames.
func (s *Session) drainDecodersLocked() {
	for _, st := range s.streams() {
		_ = st.Queue.PutNull(st.Info.Index)
	}
}

func (s *Session) route(pkt *media.Packet) {
	var st *decode.Stream
	switch {
	case s.video != nil && pkt.StreamIndex == s.video.Info.Index:
		st = s.video
	case s.audio != nil && pkt.StreamIndex == s.audio.Info.Index:
		st = s.audio
	default:
		pkt.Release()
		return
	}
	// ErrAborted here only means Quit raced us; the loop sees it next.
	_ = st.Queue.Put(pkt)
}
