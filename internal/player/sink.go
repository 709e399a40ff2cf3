package player

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zsiec/prismplay/internal/clock"
	"github.com/zsiec/prismplay/internal/media"
)

// VideoSink displays video frames. Render is called from the video loop at
// presentation time and must not block for long.
type VideoSink interface {
	Render(fr *media.Frame)
}

// AudioSink plays audio frames. Write blocks while the output buffer is
// full and returns how many seconds of audio are buffered ahead of the
// listener once fr is queued.
type AudioSink interface {
	Write(ctx context.Context, fr *media.Frame) (float64, error)
}

// DiscardVideo drops every frame.
type DiscardVideo struct{}

func (DiscardVideo) Render(*media.Frame) {}

// LogVideo logs each presented frame at debug level and forwards it to
// Next, if set.
type LogVideo struct {
	Log  *slog.Logger
	Next VideoSink
}

func (v LogVideo) Render(fr *media.Frame) {
	if v.Log != nil {
		v.Log.Debug("video frame", "pts", fr.PTS, "serial", fr.Serial, "key", fr.Keyframe, "bytes", len(fr.Data))
		for _, c := range fr.Captions {
			v.Log.Info("caption", "channel", c.Channel, "text", c.Text)
		}
	}
	if v.Next != nil {
		v.Next.Render(fr)
	}
}

// DefaultAudioBuffer is the output latency PacedAudio emulates.
const DefaultAudioBuffer = 0.1

// PacedAudio stands in for an audio device: it consumes frames in real
// time behind a fixed-size buffer and discards the samples.
type PacedAudio struct {
	buffer float64
	wall   func() float64

	mu  sync.Mutex
	end float64 // wall time at which the buffered audio runs out
}

// NewPacedAudio returns a sink holding up to buffer seconds of audio.
func NewPacedAudio(buffer float64) *PacedAudio {
	return &PacedAudio{buffer: buffer, wall: clock.Wall}
}

func (a *PacedAudio) Write(ctx context.Context, fr *media.Frame) (float64, error) {
	a.mu.Lock()
	now := a.wall()
	if a.end < now {
		a.end = now
	}
	a.end += fr.Duration
	wait := a.end - now - a.buffer
	a.mu.Unlock()

	if wait > 0 {
		t := time.NewTimer(time.Duration(wait * float64(time.Second)))
		defer t.Stop()
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-t.C:
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	return max(0, a.end-a.wall()), nil
}
