package player

import (
	"fmt"
	"math"

	"github.com/zsiec/prismplay/internal/clock"
	"github.com/zsiec/prismplay/internal/decode"
)

// QueueStatus describes one stream's buffering.
type QueueStatus struct {
	Packets  int
	Bytes    int
	Duration float64
	Serial   int
	Frames   int
	Decoded  int64
}

// Status is a point-in-time snapshot of a session.
type Status struct {
	ID         string
	State      string
	Master     string
	Position   float64 // master time, NaN while undefined
	Duration   float64
	Drift      float64 // video minus master, NaN when not applicable
	FrameDrops int64
	Video      *QueueStatus
	Audio      *QueueStatus
}

// Status returns a snapshot of the session.
func (s *Session) Status() Status {
	s.mu.Lock()
	st := Status{
		ID:         s.id,
		State:      s.stateLocked().String(),
		Master:     s.clocks.Master().String(),
		Position:   s.clocks.MasterTime(),
		Duration:   s.src.Duration(),
		Drift:      s.clocks.Drift(),
		FrameDrops: s.frameDrops,
	}
	s.mu.Unlock()

	if s.video != nil {
		st.Video = queueStatus(s.video)
	}
	if s.audio != nil {
		st.Audio = queueStatus(s.audio)
	}
	return st
}

func queueStatus(d *decode.Stream) *QueueStatus {
	return &QueueStatus{
		Packets:  d.Queue.Len(),
		Bytes:    d.Queue.Size(),
		Duration: d.Queue.Duration(),
		Serial:   d.Queue.Serial(),
		Frames:   d.Worker.Frames().Remaining(),
		Decoded:  d.Worker.Decoded(),
	}
}

// String renders the one-line status shown while playing:
// position, A-V drift, frame drops and queue fill.
func (st Status) String() string {
	drift := st.Drift
	if clock.Undefined(drift) {
		drift = 0
	}
	var aq, vq int
	if st.Audio != nil {
		aq = st.Audio.Bytes / 1024
	}
	if st.Video != nil {
		vq = st.Video.Bytes / 1024
	}
	return fmt.Sprintf("%s / %s  A-V:%7.3f fd=%4d aq=%5dKB vq=%5dKB  %s",
		FormatTime(st.Position), FormatTime(st.Duration), drift, st.FrameDrops, aq, vq, st.State)
}

// FormatTime formats seconds as hh:mm:ss.ff. Undefined or negative times
// print as dashes.
func FormatTime(sec float64) string {
	if clock.Undefined(sec) || sec < 0 || math.IsInf(sec, 0) {
		return "--:--:--.--"
	}
	cs := int64(math.Round(sec * 100))
	return fmt.Sprintf("%02d:%02d:%02d.%02d", cs/360000, cs/6000%60, cs/100%60, cs%100)
}
