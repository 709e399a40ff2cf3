package clock

import (
	"fmt"
	"math"

	"github.com/samber/lo"
)

// Pacing thresholds, in seconds.
const (
	// NoSyncThreshold is the default distance beyond which a clock is
	// snapped to another instead of being corrected gradually.
	NoSyncThreshold = 10.0

	// SyncThresholdMin and SyncThresholdMax bound the tolerance window
	// used when deciding whether a video frame is early or late.
	SyncThresholdMin = 0.04
	SyncThresholdMax = 0.1

	// FrameDupThreshold is the frame duration above which a late video
	// clock is corrected by lengthening the delay instead of doubling it.
	FrameDupThreshold = 0.1

	// DefaultMaxFrameDuration caps the gap between two frames above which
	// timestamps are treated as a discontinuity.
	DefaultMaxFrameDuration = 10.0
)

// Mode selects which clock is master.
type Mode int

// Master clock modes. Audio is the default: audio hardware paces output and
// an underrun is audible, while video frames can be dropped or repeated
// without notice.
const (
	ModeAudio Mode = iota
	ModeVideo
	ModeExternal
)

func (m Mode) String() string {
	switch m {
	case ModeAudio:
		return "audio"
	case ModeVideo:
		return "video"
	case ModeExternal:
		return "external"
	default:
		return fmt.Sprintf("Mode(%d)", int(m))
	}
}

// ParseMode parses "audio", "video" or "external".
func ParseMode(s string) (Mode, error) {
	switch s {
	case "audio", "":
		return ModeAudio, nil
	case "video":
		return ModeVideo, nil
	case "external", "ext":
		return ModeExternal, nil
	default:
		return ModeAudio, fmt.Errorf("clock: unknown sync mode %q", s)
	}
}

// Synchronizer owns the audio, video and external clocks, selects the
// master among them and makes the pacing decisions of the render loops.
type Synchronizer struct {
	Audio    *Clock
	Video    *Clock
	External *Clock

	// Threshold is the snap distance used by SyncExternal.
	Threshold float64

	// MaxFrameDuration guards TargetDelay and FrameDuration against
	// timestamp discontinuities.
	MaxFrameDuration float64

	mode     Mode
	hasAudio bool
	hasVideo bool
}

// Streams tells the synchronizer which stream clocks will ever be fed.
type Streams struct {
	Audio SerialSource // nil when the input has no audio
	Video SerialSource // nil when the input has no video
}

// NewSynchronizer builds the three clocks. A stream clock whose source is
// nil is never fed and is never selected as master.
func NewSynchronizer(streams Streams, mode Mode, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		Threshold:        NoSyncThreshold,
		MaxFrameDuration: DefaultMaxFrameDuration,
		mode:             mode,
		hasAudio:         streams.Audio != nil,
		hasVideo:         streams.Video != nil,
	}
	s.Audio = New(orDetached(streams.Audio), opts...)
	s.Video = New(orDetached(streams.Video), opts...)
	s.External = New(nil, opts...)
	return s
}

// detached is the serial source of a clock with no stream behind it. Its
// serial never matches a clock's, so the clock reads as undefined forever.
type detached struct{}

func (detached) Serial() int { return math.MinInt }

func orDetached(src SerialSource) SerialSource {
	if src == nil {
		return detached{}
	}
	return src
}

// Master returns the effective master mode after falling back to the
// external clock when the requested stream is absent.
func (s *Synchronizer) Master() Mode {
	switch {
	case s.mode == ModeVideo && s.hasVideo:
		return ModeVideo
	case s.mode == ModeAudio && s.hasAudio:
		return ModeAudio
	default:
		return ModeExternal
	}
}

// MasterClock returns the clock everything else is corrected toward.
func (s *Synchronizer) MasterClock() *Clock {
	switch s.Master() {
	case ModeVideo:
		return s.Video
	case ModeAudio:
		return s.Audio
	default:
		return s.External
	}
}

// MasterTime returns the master clock's current time, NaN when undefined.
func (s *Synchronizer) MasterTime() float64 {
	return s.MasterClock().Now()
}

// SyncExternal pulls the external clock toward slave after slave has been
// re-anchored by its render loop.
func (s *Synchronizer) SyncExternal(slave *Clock) bool {
	return SyncToSlave(s.External, slave, s.Threshold)
}

// SetPaused freezes or releases every clock. On resume the video and
// external clocks are re-anchored and the time elapsed since the video
// clock's last update is returned, so the caller can add it to its frame
// timer as if the pause had not happened. The caller serializes calls under
// its own state lock.
func (s *Synchronizer) SetPaused(paused bool) float64 {
	var elapsed float64
	if !paused {
		elapsed = s.Video.SinceUpdate()
	}
	s.Audio.SetPaused(paused)
	s.Video.SetPaused(paused)
	s.External.SetPaused(paused)
	return elapsed
}

// Drift returns video minus master time, NaN when either is undefined or
// video is itself the master.
func (s *Synchronizer) Drift() float64 {
	if s.Master() == ModeVideo {
		return math.NaN()
	}
	return s.Video.Now() - s.MasterTime()
}

// TargetDelay adjusts the nominal delay before the next video frame so the
// video clock converges on the master: a late frame is shown sooner, an
// early frame is held longer. Differences within the tolerance window, or
// larger than MaxFrameDuration, leave the delay unchanged.
func (s *Synchronizer) TargetDelay(delay float64) float64 {
	if s.Master() == ModeVideo {
		return delay
	}

	diff := s.Drift()
	threshold := lo.Clamp(delay, SyncThresholdMin, SyncThresholdMax)
	if Undefined(diff) || math.Abs(diff) >= s.MaxFrameDuration {
		return delay
	}

	switch {
	case diff <= -threshold:
		return math.Max(0, delay+diff)
	case diff >= threshold && delay > FrameDupThreshold:
		return delay + diff
	case diff >= threshold:
		return 2 * delay
	default:
		return delay
	}
}

// FrameDuration returns how long cur should stay on screen before next. The
// timestamp gap is used when both frames belong to the same generation and
// the gap is plausible; otherwise cur's own duration is used.
func (s *Synchronizer) FrameDuration(curPTS, curDuration float64, curSerial int, nextPTS float64, nextSerial int) float64 {
	if curSerial != nextSerial {
		return 0
	}
	d := nextPTS - curPTS
	if Undefined(d) || d <= 0 || d > s.MaxFrameDuration {
		return curDuration
	}
	return d
}
