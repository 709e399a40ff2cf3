// Package player drives one playback session: it reads packets from a
// Source into per-stream queues, runs a decode goroutine per stream, paces
// video against the master clock and feeds audio to its sink. Pause, step,
// seek and quit requests from the input layer are applied as transitions of
// a small state machine guarded by the session lock.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/zsiec/prismplay/internal/clock"
	"github.com/zsiec/prismplay/internal/decode"
	"github.com/zsiec/prismplay/internal/media"
)

// ErrResource reports a failure to set up a session. It is fatal.
var ErrResource = errors.New("player: resource error")

// Source is the demuxer a session reads from.
type Source interface {
	Streams() []media.StreamInfo
	StartTime() float64
	Duration() float64
	ReadPacket(ctx context.Context) (*media.Packet, error)
	Seek(ctx context.Context, target, rel float64) error
	Close() error
}

// State is the externally visible playback state.
type State int

// Session states.
const (
	Running State = iota
	Paused
	SeekPending
	Aborting
	Terminated
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Paused:
		return "paused"
	case SeekPending:
		return "seeking"
	case Aborting:
		return "aborting"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// FrameDrop selects when the video loop may skip late frames.
type FrameDrop int

// Frame drop policies. The zero value drops only when video is not the
// master clock.
const (
	FrameDropAuto FrameDrop = iota
	FrameDropAlways
	FrameDropNever
)

// ParseFrameDrop maps "auto", "always" and "never" (or "on"/"off") to a
// policy.
func ParseFrameDrop(s string) (FrameDrop, error) {
	switch s {
	case "", "auto":
		return FrameDropAuto, nil
	case "always", "on":
		return FrameDropAlways, nil
	case "never", "off":
		return FrameDropNever, nil
	default:
		return FrameDropAuto, fmt.Errorf("player: unknown framedrop policy %q", s)
	}
}

// Options configures a Session.
type Options struct {
	ID        string // generated when empty
	Sync      clock.Mode
	FrameDrop FrameDrop

	// AutoExit quits once every stream has been fully presented. Loop
	// restarts from the beginning instead and takes precedence.
	AutoExit bool
	Loop     bool

	// InfiniteBuffer disables read backpressure, for live inputs.
	InfiniteBuffer bool

	Video VideoSink
	Audio AudioSink
	Log   *slog.Logger
}

// Session is one playback of one Source.
type Session struct {
	id   string
	log  *slog.Logger
	src  Source
	opts Options

	clocks *clock.Synchronizer
	video  *decode.Stream // nil without video
	audio  *decode.Stream // nil without audio

	videoSink VideoSink
	audioSink AudioSink

	// mu guards the playback state below and backs continueRead. It is
	// taken before any clock or queue lock.
	mu           sync.Mutex
	continueRead *sync.Cond
	paused       bool
	step         bool
	seekReq      bool
	seekPos      float64
	seekRel      float64
	abort        bool
	terminated   bool
	eof          bool
	frameTimer   float64
	forceRefresh bool
	frameDrops   int64
	cancel       context.CancelFunc

	done chan struct{}
}

// New prepares a session for src. Streams whose codec has no decoder fail
// the setup with ErrResource.
func New(src Source, opts Options) (*Session, error) {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("session", opts.ID)

	s := &Session{
		id:        opts.ID,
		log:       log,
		src:       src,
		opts:      opts,
		videoSink: opts.Video,
		audioSink: opts.Audio,
		seekPos:   src.StartTime(),
		done:      make(chan struct{}),
	}
	s.continueRead = sync.NewCond(&s.mu)
	if s.videoSink == nil {
		s.videoSink = DiscardVideo{}
	}
	if s.audioSink == nil {
		s.audioSink = NewPacedAudio(DefaultAudioBuffer)
	}

	for _, info := range src.Streams() {
		st, err := decode.NewStream(info, log)
		if err != nil {
			return nil, fmt.Errorf("%w: %s stream: %w", ErrResource, info.Kind, err)
		}
		switch {
		case info.Kind == media.KindVideo && s.video == nil:
			s.video = st
		case info.Kind == media.KindAudio && s.audio == nil:
			s.audio = st
		}
	}
	if s.video == nil && s.audio == nil {
		return nil, fmt.Errorf("%w: no playable streams", ErrResource)
	}

	var streams clock.Streams
	if s.video != nil {
		streams.Video = s.video.Queue
		s.video.Worker.OnEmpty = s.wakeReader
	}
	if s.audio != nil {
		streams.Audio = s.audio.Queue
		s.audio.Worker.OnEmpty = s.wakeReader
	}
	s.clocks = clock.NewSynchronizer(streams, opts.Sync)

	log.Info("session ready",
		"video", s.video != nil,
		"audio", s.audio != nil,
		"master", s.clocks.Master().String(),
		"start", src.StartTime(),
		"duration", src.Duration(),
	)
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Clocks returns the session's clock set.
func (s *Session) Clocks() *clock.Synchronizer {
	return s.clocks
}

// Done is closed when Run has returned.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// State returns the current playback state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Session) stateLocked() State {
	switch {
	case s.terminated:
		return Terminated
	case s.abort:
		return Aborting
	case s.seekReq:
		return SeekPending
	case s.paused:
		return Paused
	default:
		return Running
	}
}

// TogglePause pauses or resumes playback and cancels a pending step.
func (s *Session) TogglePause() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abort {
		return
	}
	s.togglePauseLocked()
	s.step = false
}

func (s *Session) togglePauseLocked() {
	elapsed := s.clocks.SetPaused(!s.paused)
	if s.paused {
		s.frameTimer += elapsed
	}
	s.paused = !s.paused
	s.continueRead.Signal()
	s.log.Debug("pause toggled", "paused", s.paused)
}

// StepFrame shows the next video frame and pauses again. A running session
// is paused after that frame. Without video, one audio frame is played.
func (s *Session) StepFrame() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stepLocked()
}

func (s *Session) stepLocked() {
	if s.abort {
		return
	}
	if s.paused {
		s.togglePauseLocked()
	}
	s.step = true
}

// Seek asks the reader to reposition to pos seconds; rel is the signed
// distance the user asked for, or 0 for an absolute seek. pos is kept
// within the source's time range. Only one request can be pending: while
// it is, further requests are dropped and Seek returns false.
func (s *Session) Seek(pos, rel float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seekLocked(s.clampLocked(pos), rel)
}

func (s *Session) seekLocked(pos, rel float64) bool {
	if s.abort || s.seekReq {
		return false
	}
	s.seekReq = true
	s.seekPos = pos
	s.seekRel = rel
	s.continueRead.Signal()
	return true
}

// clampLocked limits pos to [start, start+duration]. Sources without a
// known duration are unbounded above.
func (s *Session) clampLocked(pos float64) float64 {
	start, end := s.src.StartTime(), math.Inf(1)
	if d := s.src.Duration(); d > 0 {
		end = start + d
	}
	return lo.Clamp(pos, start, end)
}

// SeekRelative seeks incr seconds from the current master time, or from
// the last seek target while the master clock is undefined.
func (s *Session) SeekRelative(incr float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos := s.clocks.MasterTime()
	if clock.Undefined(pos) {
		pos = s.seekPos
	}
	return s.seekLocked(s.clampLocked(pos+incr), incr)
}

// Quit aborts every queue and makes all goroutines of Run exit. It is
// idempotent.
func (s *Session) Quit() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.abort {
		return
	}
	s.abort = true
	for _, st := range s.streams() {
		st.Queue.Abort()
		st.Worker.Frames().Abort()
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.continueRead.Broadcast()
	s.log.Info("quit requested")
}

func (s *Session) aborted() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abort
}

func (s *Session) wakeReader() {
	s.continueRead.Signal()
}

func (s *Session) streams() []*decode.Stream {
	var out []*decode.Stream
	if s.video != nil {
		out = append(out, s.video)
	}
	if s.audio != nil {
		out = append(out, s.audio)
	}
	return out
}

// Run plays the source until Quit, context cancellation, the end of the
// input with AutoExit, or a fatal read error. It returns only after every
// goroutine has exited and the queues are destroyed.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.done)

	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	aborted := s.abort
	s.mu.Unlock()
	if aborted {
		cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(gctx, s.Quit)

	g.Go(func() error { return s.readLoop(gctx) })
	for _, st := range s.streams() {
		g.Go(st.Worker.Run)
	}
	if s.video != nil {
		g.Go(func() error { return s.videoLoop(gctx) })
	}
	if s.audio != nil {
		g.Go(func() error { return s.audioLoop(gctx) })
	}

	err := g.Wait()
	stop()
	s.Quit()
	cancel()

	for _, st := range s.streams() {
		st.Queue.Destroy()
	}
	if cerr := s.src.Close(); cerr != nil {
		s.log.Warn("closing source", "error", cerr)
	}

	s.mu.Lock()
	s.terminated = true
	s.mu.Unlock()

	if err != nil {
		s.log.Error("session failed", "error", err)
		return err
	}
	s.log.Info("session terminated")
	return nil
}
