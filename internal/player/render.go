package player

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/zsiec/prismplay/internal/clock"
	"github.com/zsiec/prismplay/internal/media"
	"github.com/zsiec/prismplay/internal/packetq"
)

// refreshRate is the longest the video loop sleeps between checks.
const refreshRate = 0.01

// pausedPoll is how often the audio loop re-checks a paused session.
const pausedPoll = 10 * time.Millisecond

// videoLoop presents video frames at the pace of the master clock.
func (s *Session) videoLoop(ctx context.Context) error {
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	remaining := 0.0
	for {
		if remaining > 0 {
			timer.Reset(time.Duration(remaining * float64(time.Second)))
			select {
			case <-ctx.Done():
				return nil
			case <-timer.C:
			}
		}
		remaining = refreshRate

		s.mu.Lock()
		if s.abort {
			s.mu.Unlock()
			return nil
		}
		var show *media.Frame
		if !s.paused || s.forceRefresh {
			show = s.refreshLocked(&remaining)
		}
		s.mu.Unlock()

		if show != nil {
			s.videoSink.Render(show)
		}
	}
}

// refreshLocked advances the video frame queue. It returns the frame to
// display, if the display must be redrawn, and lowers *remaining to the
// time until the next frame is due.
func (s *Session) refreshLocked(remaining *float64) *media.Frame {
	fq := s.video.Worker.Frames()
	for fq.Remaining() > 0 {
		last, cur := fq.PeekLast(), fq.Peek()
		if cur.Serial != s.video.Queue.Serial() {
			fq.Next()
			continue
		}
		if last.Serial != cur.Serial {
			s.frameTimer = clock.Wall()
		}
		if s.paused {
			break
		}

		lastDuration := s.clocks.FrameDuration(last.PTS, last.Duration, last.Serial, cur.PTS, cur.Serial)
		delay := s.clocks.TargetDelay(lastDuration)

		now := clock.Wall()
		if now < s.frameTimer+delay {
			*remaining = min(s.frameTimer+delay-now, *remaining)
			break
		}
		s.frameTimer += delay
		if delay > 0 && now-s.frameTimer > clock.SyncThresholdMax {
			s.frameTimer = now
		}

		// Frames still on screen while a seek is pending belong to the
		// old generation and must not move the clocks.
		if !s.seekReq && !clock.Undefined(cur.PTS) {
			s.clocks.Video.Set(cur.PTS, cur.Serial)
			s.clocks.SyncExternal(s.clocks.Video)
		}

		if fq.Remaining() > 1 && s.dropLate() {
			next := fq.PeekNext()
			duration := s.clocks.FrameDuration(cur.PTS, cur.Duration, cur.Serial, next.PTS, next.Serial)
			if now > s.frameTimer+duration {
				s.frameDrops++
				fq.Next()
				continue
			}
		}

		fq.Next()
		s.forceRefresh = true
		if s.step && !s.paused {
			s.togglePauseLocked()
		}
		break
	}

	var show *media.Frame
	if s.forceRefresh && fq.Shown() {
		show = fq.PeekLast()
	}
	s.forceRefresh = false
	return show
}

func (s *Session) dropLate() bool {
	if s.step {
		return false
	}
	switch s.opts.FrameDrop {
	case FrameDropAlways:
		return true
	case FrameDropNever:
		return false
	default:
		return s.clocks.Master() != clock.ModeVideo
	}
}

// audioLoop hands audio frames to the sink and keeps the audio clock at the
// timestamp currently being heard.
func (s *Session) audioLoop(ctx context.Context) error {
	fq := s.audio.Worker.Frames()
	for {
		s.mu.Lock()
		abort, paused := s.abort, s.paused
		s.mu.Unlock()
		if abort {
			return nil
		}
		if paused {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(pausedPoll):
			}
			continue
		}

		fr, err := fq.Wait()
		if errors.Is(err, packetq.ErrAborted) {
			return nil
		}
		if err != nil {
			return err
		}
		fq.Next()
		if fr.Serial != s.audio.Queue.Serial() {
			continue
		}

		buffered, err := s.audioSink.Write(ctx, fr)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("player: audio output: %w", err)
		}

		s.mu.Lock()
		if !s.seekReq && !clock.Undefined(fr.PTS) {
			s.clocks.Audio.Set(fr.PTS+fr.Duration-buffered, fr.Serial)
			s.clocks.SyncExternal(s.clocks.Audio)
		}
		// The video loop ends a step; without video the step is one
		// audio frame.
		if s.video == nil && s.step && !s.paused {
			s.togglePauseLocked()
		}
		s.mu.Unlock()
	}
}
