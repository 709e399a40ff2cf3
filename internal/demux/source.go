package demux

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/zsiec/prismplay/internal/media"
	"github.com/zsiec/prismplay/internal/mpegts"
)

// Sentinel errors returned by Source.
var (
	// ErrNoStreams is returned by Open when the input carries no supported
	// video or audio stream.
	ErrNoStreams = errors.New("demux: no supported streams")

	// ErrNotSeekable is returned by Seek on inputs that cannot reposition,
	// such as live SRT feeds.
	ErrNotSeekable = errors.New("demux: input is not seekable")
)

const (
	// probeLimit bounds how much input Open reads while looking for the
	// PMT and the first timestamp of each stream.
	probeLimit = 4 << 20

	// tailWindow is how much of the end of a seekable input is scanned for
	// the last timestamp.
	tailWindow = 2 << 20

	wrap33 = int64(1) << 33
)

// Options tunes a Source.
type Options struct {
	// Log receives demux diagnostics. Nil means slog.Default().
	Log *slog.Logger
}

// track is the per-stream state of a selected elementary stream.
type track struct {
	info    media.StreamInfo
	first   float64 // first PTS seen, NaN until then
	lastRaw int64   // last raw PTS, for 33-bit unwrap
	offset  int64   // accumulated wrap offset
	seen    bool
}

// Source reads an MPEG-TS input and yields media packets. It is used by a
// single goroutine.
type Source struct {
	log    *slog.Logger
	r      io.Reader
	seeker io.ReadSeeker // nil for unseekable inputs
	size   int64
	dmx    *mpegts.Demuxer

	tracks  map[uint16]*track
	order   []*track
	pmtSeen bool

	startTime float64
	duration  float64

	pending []*media.Packet
	eof     bool
}

// Open probes r until the program layout and the first timestamp of each
// selected stream are known. If r also implements io.Seeker, the returned
// Source can seek and reports a duration.
func Open(ctx context.Context, r io.Reader, opts Options) (*Source, error) {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	s := &Source{
		log:       log.With("component", "demux"),
		r:         r,
		dmx:       mpegts.NewDemuxer(r),
		tracks:    make(map[uint16]*track),
		startTime: math.NaN(),
		duration:  math.NaN(),
	}
	if rs, ok := r.(io.ReadSeeker); ok {
		if size, err := rs.Seek(0, io.SeekEnd); err == nil {
			if _, err := rs.Seek(0, io.SeekStart); err == nil {
				s.seeker = rs
				s.size = size
			}
		}
	}

	if err := s.probe(ctx); err != nil {
		return nil, err
	}
	if s.seeker != nil {
		s.scanDuration(ctx)
	}
	s.log.Info("input opened",
		"streams", len(s.order),
		"start", s.startTime,
		"duration", s.duration,
		"seekable", s.seeker != nil)
	return s, nil
}

func (s *Source) probe(ctx context.Context) error {
	for s.dmx.Offset() < probeLimit {
		if s.pmtSeen && s.allTimed() {
			break
		}
		pkt, err := s.next(ctx)
		if errors.Is(err, io.EOF) {
			s.eof = true
			break
		}
		if err != nil {
			return fmt.Errorf("probing input: %w", err)
		}
		if pkt != nil {
			s.pending = append(s.pending, pkt)
		}
	}
	if len(s.order) == 0 {
		return ErrNoStreams
	}
	for _, t := range s.order {
		if t.seen && (math.IsNaN(s.startTime) || t.first < s.startTime) {
			s.startTime = t.first
		}
	}
	return nil
}

func (s *Source) allTimed() bool {
	for _, t := range s.order {
		if !t.seen {
			return false
		}
	}
	return true
}

// Streams returns the selected streams, video first.
func (s *Source) Streams() []media.StreamInfo {
	out := make([]media.StreamInfo, len(s.order))
	for i, t := range s.order {
		out[i] = t.info
	}
	return out
}

// StartTime returns the earliest timestamp of the input in seconds, NaN
// when no stream carried one.
func (s *Source) StartTime() float64 {
	return s.startTime
}

// Duration returns the input's length in seconds, NaN when unknown.
func (s *Source) Duration() float64 {
	return s.duration
}

// Seekable reports whether Seek can succeed.
func (s *Source) Seekable() bool {
	return s.seeker != nil
}

// ReadPacket returns the next packet of a selected stream, or io.EOF at
// the end of input.
func (s *Source) ReadPacket(ctx context.Context) (*media.Packet, error) {
	if len(s.pending) > 0 {
		pkt := s.pending[0]
		s.pending = s.pending[1:]
		return pkt, nil
	}
	if s.eof {
		return nil, io.EOF
	}
	for {
		pkt, err := s.next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				s.eof = true
			}
			return nil, err
		}
		if pkt != nil {
			return pkt, nil
		}
	}
}

// Seek repositions the input near target seconds. The byte offset is
// estimated from the average bitrate; rel is the requested displacement
// and a backward request lands one extra second early so the decoders can
// find a keyframe before the target.
func (s *Source) Seek(ctx context.Context, target, rel float64) error {
	if s.seeker == nil {
		return ErrNotSeekable
	}
	if math.IsNaN(s.startTime) || math.IsNaN(s.duration) || s.duration <= 0 {
		return fmt.Errorf("seek to %.3f: %w", target, ErrNotSeekable)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	pos := target - s.startTime
	if rel < 0 {
		pos--
	}
	frac := min(max(pos/s.duration, 0), 1)
	off := int64(frac * float64(s.size))
	off -= off % mpegts.PacketSize

	if _, err := s.seeker.Seek(off, io.SeekStart); err != nil {
		return fmt.Errorf("seek to offset %d: %w", off, err)
	}
	s.dmx.Reset(s.seeker, off)
	s.pending = nil
	s.eof = false
	for _, t := range s.order {
		t.lastRaw = -1
	}
	s.log.Debug("seek", "target", target, "rel", rel, "offset", off)
	return nil
}

// Close closes the underlying input if it is an io.Closer.
func (s *Source) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// next demuxes one unit and converts it. A nil packet with a nil error
// means the unit carried nothing for a selected stream.
func (s *Source) next(ctx context.Context) (*media.Packet, error) {
	u, err := s.dmx.Next(ctx)
	if err != nil {
		return nil, err
	}
	switch {
	case u.PMT != nil:
		s.onPMT(u.PMT)
		return nil, nil
	case u.PES != nil:
		t := s.tracks[u.PID]
		if t == nil || len(u.PES.Data) == 0 {
			return nil, nil
		}
		return s.packetize(t, u.PES), nil
	}
	return nil, nil
}

// onPMT selects the first supported video and audio streams. Later PMT
// versions are ignored.
func (s *Source) onPMT(pmt *mpegts.PMT) {
	if s.pmtSeen {
		return
	}
	s.pmtSeen = true

	var video, audio *track
	for _, es := range pmt.Streams {
		switch es.Type {
		case mpegts.StreamTypeH264, mpegts.StreamTypeH265:
			if video == nil {
				codec := "h264"
				if es.Type == mpegts.StreamTypeH265 {
					codec = "h265"
				}
				video = newTrack(media.KindVideo, codec, es.PID)
			}
		case mpegts.StreamTypeAAC:
			if audio == nil {
				audio = newTrack(media.KindAudio, "aac", es.PID)
			}
		}
	}
	for _, t := range []*track{video, audio} {
		if t == nil {
			continue
		}
		t.info.Index = len(s.order)
		s.order = append(s.order, t)
		s.tracks[t.info.PID] = t
		s.log.Info("stream selected", "index", t.info.Index, "kind", t.info.Kind, "codec", t.info.Codec, "pid", t.info.PID)
	}
}

func newTrack(kind media.Kind, codec string, pid uint16) *track {
	return &track{
		info:    media.StreamInfo{Kind: kind, Codec: codec, PID: pid},
		first:   math.NaN(),
		lastRaw: -1,
	}
}

// seconds converts a raw 90 kHz timestamp, unwrapping 33-bit rollover.
func (t *track) seconds(ts *mpegts.Timestamp) float64 {
	if ts == nil {
		return media.NoTimestamp
	}
	raw := ts.Base
	if t.lastRaw >= 0 && t.lastRaw-raw > wrap33/2 {
		t.offset += wrap33
	}
	t.lastRaw = raw
	return float64(raw+t.offset) / mpegts.ClockRate
}

func (s *Source) packetize(t *track, pes *mpegts.PES) *media.Packet {
	pkt := media.NewPacket(t.info.Index, t.info.Kind, pes.Data)
	pkt.Codec = t.info.Codec
	pkt.PTS = t.seconds(pes.PTS)
	pkt.DTS = pkt.PTS
	if pes.DTS != nil {
		pkt.DTS = float64(pes.DTS.Base+t.offset) / mpegts.ClockRate
	}

	switch t.info.Kind {
	case media.KindVideo:
		pkt.Keyframe = pes.RandomAccess || s.scanVideo(t, pes.Data)
	case media.KindAudio:
		frames, err := ParseADTS(pes.Data)
		if err != nil {
			s.log.Warn("bad ADTS", "pid", t.info.PID, "error", err)
		}
		for _, f := range frames {
			pkt.Duration += f.Duration()
		}
		if len(frames) > 0 && t.info.SampleRate == 0 {
			t.info.SampleRate = frames[0].SampleRate
			t.info.Channels = frames[0].Channels
		}
		pkt.Keyframe = true
	}

	if !t.seen && !math.IsNaN(pkt.PTS) {
		t.seen = true
		t.first = pkt.PTS
	}
	return pkt
}

// scanVideo reports whether an access unit holds a random access picture
// and records the picture size from the first SPS.
func (s *Source) scanVideo(t *track, data []byte) bool {
	var nals []NALUnit
	keyframe := IsKeyframe
	if t.info.Codec == "h265" {
		nals = ParseAnnexBHEVC(data)
		keyframe = IsHEVCKeyframe
	} else {
		nals = ParseAnnexB(data)
	}

	key := false
	for _, n := range nals {
		if keyframe(n.Type) {
			key = true
		}
		if t.info.Codec == "h264" && n.Type == NALTypeSPS && t.info.Width == 0 {
			if sps, err := ParseSPS(n.Data); err == nil {
				t.info.Width, t.info.Height = sps.Width, sps.Height
				s.log.Debug("video SPS", "codec", sps.CodecString(), "width", sps.Width, "height", sps.Height)
			}
		}
	}
	return key
}

// scanDuration reads the tail of a seekable input to find the last
// timestamp, then rewinds to where probing stopped.
func (s *Source) scanDuration(ctx context.Context) {
	if math.IsNaN(s.startTime) {
		return
	}
	resume := s.dmx.Offset()
	defer func() {
		if _, err := s.seeker.Seek(resume, io.SeekStart); err != nil {
			s.log.Warn("rewind after duration scan failed", "error", err)
		}
	}()

	off := max(s.size-tailWindow, 0)
	off -= off % mpegts.PacketSize
	if _, err := s.seeker.Seek(off, io.SeekStart); err != nil {
		return
	}
	tail := mpegts.NewDemuxer(s.seeker)
	last := math.Inf(-1)
	for {
		u, err := tail.Next(ctx)
		if err != nil {
			break
		}
		t := s.tracks[u.PID]
		if u.PES == nil || u.PES.PTS == nil || t == nil {
			continue
		}
		pts := float64(u.PES.PTS.Base) / mpegts.ClockRate
		if pts < t.first && t.first-pts > float64(wrap33/2)/mpegts.ClockRate {
			pts += float64(wrap33) / mpegts.ClockRate
		}
		last = max(last, pts)
	}
	if !math.IsInf(last, -1) && last > s.startTime {
		s.duration = last - s.startTime
	}
}
