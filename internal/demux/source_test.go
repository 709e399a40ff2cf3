package demux

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"testing"

	"github.com/zsiec/prismplay/internal/media"
	"github.com/zsiec/prismplay/internal/mpegts"
	"github.com/zsiec/prismplay/internal/mpegts/mpegtstest"
)

const (
	testStart     = 90000 // 1s
	videoTicks    = 3000  // 30 fps
	audioTicks    = 1920  // 1024 samples at 48 kHz
	keyframeEvery = 30
)

// buildStream returns a transport stream of the given length with H.264
// video and AAC audio interleaved in timestamp order.
func buildStream(seconds int) []byte {
	b := mpegtstest.New().Program(
		mpegtstest.Stream{Type: mpegts.StreamTypeH264, PID: mpegtstest.VideoPID},
		mpegtstest.Stream{Type: mpegts.StreamTypeAAC, PID: mpegtstest.AudioPID},
	)
	end := int64(testStart + seconds*mpegts.ClockRate)
	v, a := int64(testStart), int64(testStart)
	for n := 0; v < end || a < end; {
		if v <= a && v < end {
			b.Video(v, n%keyframeEvery == 0, mpegtstest.AccessUnit(n%keyframeEvery == 0))
			v += videoTicks
			n++
			continue
		}
		b.Audio(a, mpegtstest.ADTS(3, 2, 32))
		a += audioTicks
	}
	return b.Bytes()
}

type unseekable struct{ r io.Reader }

func (u unseekable) Read(p []byte) (int, error) { return u.r.Read(p) }

func TestOpenDiscoversStreams(t *testing.T) {
	t.Parallel()
	src, err := Open(context.Background(), bytes.NewReader(buildStream(4)), Options{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	streams := src.Streams()
	if len(streams) != 2 {
		t.Fatalf("Streams() = %d, want 2", len(streams))
	}
	if streams[0].Kind != media.KindVideo || streams[0].Codec != "h264" || streams[0].Index != 0 {
		t.Errorf("stream 0 = %+v, want h264 video at index 0", streams[0])
	}
	if streams[1].Kind != media.KindAudio || streams[1].Codec != "aac" || streams[1].SampleRate != 48000 || streams[1].Channels != 2 {
		t.Errorf("stream 1 = %+v, want 48 kHz stereo aac", streams[1])
	}
	if got := src.StartTime(); got != 1.0 {
		t.Errorf("StartTime() = %v, want 1", got)
	}
	if got := src.Duration(); math.Abs(got-4) > 0.1 {
		t.Errorf("Duration() = %v, want ~4", got)
	}
	if !src.Seekable() {
		t.Error("Seekable() = false for bytes.Reader")
	}
}

func TestReadPacketOrderAndTiming(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src, err := Open(ctx, bytes.NewReader(buildStream(2)), Options{})
	if err != nil {
		t.Fatal(err)
	}

	var videoN, audioN, keyframes int
	lastPTS := map[int]float64{0: -1, 1: -1}
	for {
		pkt, err := src.ReadPacket(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("ReadPacket: %v", err)
		}
		if pkt.PTS <= lastPTS[pkt.StreamIndex] {
			t.Fatalf("stream %d PTS %v after %v", pkt.StreamIndex, pkt.PTS, lastPTS[pkt.StreamIndex])
		}
		lastPTS[pkt.StreamIndex] = pkt.PTS
		switch pkt.Kind {
		case media.KindVideo:
			videoN++
			if pkt.Keyframe {
				keyframes++
			}
		case media.KindAudio:
			audioN++
			if want := 1024.0 / 48000; math.Abs(pkt.Duration-want) > 1e-9 {
				t.Errorf("audio duration = %v, want %v", pkt.Duration, want)
			}
		}
	}
	if videoN != 60 {
		t.Errorf("video packets = %d, want 60", videoN)
	}
	if keyframes != 2 {
		t.Errorf("keyframes = %d, want 2", keyframes)
	}
	if audioN < 90 {
		t.Errorf("audio packets = %d, want at least 90", audioN)
	}
	if _, err := src.ReadPacket(ctx); !errors.Is(err, io.EOF) {
		t.Errorf("ReadPacket after EOF = %v, want io.EOF", err)
	}
}

func TestSeekLandsNearTarget(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src, err := Open(ctx, bytes.NewReader(buildStream(10)), Options{})
	if err != nil {
		t.Fatal(err)
	}

	for _, target := range []float64{6.0, 2.5, 9.0} {
		if err := src.Seek(ctx, target, 0); err != nil {
			t.Fatalf("Seek(%v): %v", target, err)
		}
		pkt, err := src.ReadPacket(ctx)
		if err != nil {
			t.Fatalf("ReadPacket after seek to %v: %v", target, err)
		}
		if math.Abs(pkt.PTS-target) > 1.0 {
			t.Errorf("first PTS after seek to %v = %v", target, pkt.PTS)
		}
	}
}

func TestSeekBackwardLandsEarlier(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src, err := Open(ctx, bytes.NewReader(buildStream(10)), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Seek(ctx, 6, 0); err != nil {
		t.Fatal(err)
	}
	fwd, err := src.ReadPacket(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if err := src.Seek(ctx, 6, -10); err != nil {
		t.Fatal(err)
	}
	back, err := src.ReadPacket(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if back.PTS >= fwd.PTS {
		t.Errorf("backward seek PTS %v not before forward seek PTS %v", back.PTS, fwd.PTS)
	}
}

func TestUnseekableInput(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	src, err := Open(ctx, unseekable{bytes.NewReader(buildStream(1))}, Options{})
	if err != nil {
		t.Fatal(err)
	}
	if src.Seekable() {
		t.Error("Seekable() = true for plain reader")
	}
	if !math.IsNaN(src.Duration()) {
		t.Errorf("Duration() = %v, want NaN", src.Duration())
	}
	if err := src.Seek(ctx, 0.5, 0); !errors.Is(err, ErrNotSeekable) {
		t.Errorf("Seek err = %v, want ErrNotSeekable", err)
	}
	if _, err := src.ReadPacket(ctx); err != nil {
		t.Errorf("ReadPacket: %v", err)
	}
}

func TestOpenNoStreams(t *testing.T) {
	t.Parallel()
	b := mpegtstest.New().Program(mpegtstest.Stream{Type: 0x86, PID: 0x200})
	_, err := Open(context.Background(), bytes.NewReader(b.Bytes()), Options{})
	if !errors.Is(err, ErrNoStreams) {
		t.Errorf("Open err = %v, want ErrNoStreams", err)
	}
	_, err = Open(context.Background(), bytes.NewReader(nil), Options{})
	if !errors.Is(err, ErrNoStreams) {
		t.Errorf("Open(empty) err = %v, want ErrNoStreams", err)
	}
}

func TestAudioOnlyInput(t *testing.T) {
	t.Parallel()
	b := mpegtstest.New().Program(mpegtstest.Stream{Type: mpegts.StreamTypeAAC, PID: mpegtstest.AudioPID})
	for i := range 10 {
		b.Audio(int64(i*audioTicks), mpegtstest.ADTS(3, 2, 16))
	}
	src, err := Open(context.Background(), bytes.NewReader(b.Bytes()), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if s := src.Streams(); len(s) != 1 || s[0].Kind != media.KindAudio || s[0].Index != 0 {
		t.Errorf("Streams() = %+v, want one audio stream at index 0", s)
	}
}

func TestTimestampUnwrap(t *testing.T) {
	t.Parallel()
	tr := newTrack(media.KindVideo, "h264", 0x100)
	near := wrap33 - 3000
	if got := tr.seconds(&mpegts.Timestamp{Base: near}); got != float64(near)/mpegts.ClockRate {
		t.Fatalf("seconds before wrap = %v", got)
	}
	got := tr.seconds(&mpegts.Timestamp{Base: 0})
	if want := float64(wrap33) / mpegts.ClockRate; got != want {
		t.Errorf("seconds after wrap = %v, want %v", got, want)
	}
	if !math.IsNaN(tr.seconds(nil)) {
		t.Error("nil timestamp not NaN")
	}
}
