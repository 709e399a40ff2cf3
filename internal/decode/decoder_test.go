package decode

import (
	"math"
	"testing"

	"github.com/zsiec/prismplay/internal/media"
	"github.com/zsiec/prismplay/internal/mpegts/mpegtstest"
)

func videoPacket(pts float64, keyframe bool, extra ...[]byte) *media.Packet {
	pkt := media.NewPacket(0, media.KindVideo, mpegtstest.AccessUnit(keyframe, extra...))
	pkt.PTS = pts
	pkt.Keyframe = keyframe
	return pkt
}

func TestVideoDecoderWaitsForKeyframe(t *testing.T) {
	t.Parallel()
	dec := NewVideoDecoder("h264")

	frames, err := dec.Decode(videoPacket(1.00, false))
	if err != nil || len(frames) != 0 {
		t.Fatalf("leading delta frame: got %d frames, err %v; want none", len(frames), err)
	}
	frames, _ = dec.Decode(videoPacket(1.04, true))
	if len(frames) != 1 || !frames[0].Keyframe {
		t.Fatalf("keyframe: got %d frames, want 1 keyframe", len(frames))
	}
	frames, _ = dec.Decode(videoPacket(1.08, false))
	if len(frames) != 1 {
		t.Fatalf("delta after keyframe: got %d frames, want 1", len(frames))
	}

	dec.Flush()
	frames, _ = dec.Decode(videoPacket(5.00, false))
	if len(frames) != 0 {
		t.Errorf("delta after flush: got %d frames, want 0", len(frames))
	}
	if dec.DroppedKeys != 2 {
		t.Errorf("DroppedKeys = %d, want 2", dec.DroppedKeys)
	}
}

func TestVideoDecoderTimestamps(t *testing.T) {
	t.Parallel()
	dec := NewVideoDecoder("h264")

	first, _ := dec.Decode(videoPacket(2.00, true))
	if first[0].Duration != 0 {
		t.Errorf("first frame duration = %v, want 0", first[0].Duration)
	}

	second, _ := dec.Decode(videoPacket(2.04, false))
	if math.Abs(second[0].Duration-0.04) > 1e-9 {
		t.Errorf("derived duration = %v, want 0.04", second[0].Duration)
	}

	noPTS := videoPacket(math.NaN(), false)
	noPTS.DTS = 2.08
	third, _ := dec.Decode(noPTS)
	if third[0].PTS != 2.08 {
		t.Errorf("DTS fallback pts = %v, want 2.08", third[0].PTS)
	}
}

func TestVideoDecoderIgnoresNullPacket(t *testing.T) {
	t.Parallel()
	frames, err := NewVideoDecoder("h265").Decode(media.NullPacket(0))
	if err != nil || frames != nil {
		t.Errorf("null packet: frames %v, err %v; want nil, nil", frames, err)
	}
}

func TestVideoDecoderFindsCaptionSEI(t *testing.T) {
	t.Parallel()
	dec := NewVideoDecoder("h264")
	sei := mpegtstest.CaptionSEI(
		mpegtstest.CCPair{Field: 0, B1: 0x14, B2: 0x20},
		mpegtstest.CCPair{Field: 0, B1: 'H', B2: 'I'},
	)
	au := mpegtstest.AccessUnit(true, sei)

	units := dec.seiUnits(au)
	if len(units) != 1 {
		t.Fatalf("seiUnits found %d SEI NALs, want 1", len(units))
	}
	if units[0][0] != 0x06 {
		t.Errorf("SEI header = %#x, want 0x06", units[0][0])
	}
	if _, err := dec.Decode(videoPacket(1, true, sei)); err != nil {
		t.Errorf("Decode with captions: %v", err)
	}
}

func TestCaptionDuplicateControlCodes(t *testing.T) {
	t.Parallel()
	c := newCaptionDecoder()
	c.frame = 1

	if c.isDuplicateControl(0, 0x14, 0x2C) {
		t.Fatal("first control code flagged as duplicate")
	}
	if !c.isDuplicateControl(0, 0x14, 0x2C) {
		t.Fatal("repeated control code not flagged")
	}
	if c.isDuplicateControl(0, 0x14, 0x2C) {
		t.Error("third copy should start a new run")
	}
	if c.isDuplicateControl(1, 0x14, 0x2C) {
		t.Error("fields must be tracked independently")
	}

	c.isDuplicateControl(0, 0x14, 0x20)
	c.isDuplicateControl(0, 'A', 'B')
	if c.isDuplicateControl(0, 0x14, 0x20) {
		t.Error("text between control codes must break the run")
	}

	c.isDuplicateControl(1, 0x15, 0x20)
	c.frame += 3
	if c.isDuplicateControl(1, 0x15, 0x20) {
		t.Error("copies more than two frames apart are not duplicates")
	}
}

func TestAudioDecoderSplitsADTS(t *testing.T) {
	t.Parallel()
	dec := NewAudioDecoder()
	payload := append(mpegtstest.ADTS(3, 2, 10), mpegtstest.ADTS(3, 2, 12)...)
	pkt := media.NewPacket(1, media.KindAudio, payload)
	pkt.PTS = 1.0

	frames, err := dec.Decode(pkt)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("got %d frames, want 2", len(frames))
	}
	const frameDur = 1024.0 / 48000
	for i, fr := range frames {
		want := 1.0 + float64(i)*frameDur
		if math.Abs(fr.PTS-want) > 1e-9 {
			t.Errorf("frame %d pts = %v, want %v", i, fr.PTS, want)
		}
		if fr.SampleRate != 48000 || fr.Channels != 2 {
			t.Errorf("frame %d format = %d Hz/%d ch, want 48000/2", i, fr.SampleRate, fr.Channels)
		}
	}

	cont := media.NewPacket(1, media.KindAudio, mpegtstest.ADTS(3, 2, 8))
	frames, _ = dec.Decode(cont)
	if want := 1.0 + 2*frameDur; math.Abs(frames[0].PTS-want) > 1e-9 {
		t.Errorf("extrapolated pts = %v, want %v", frames[0].PTS, want)
	}

	dec.Flush()
	frames, _ = dec.Decode(media.NewPacket(1, media.KindAudio, mpegtstest.ADTS(3, 2, 8)))
	if !math.IsNaN(frames[0].PTS) {
		t.Errorf("pts after flush = %v, want NaN", frames[0].PTS)
	}
}

func TestAudioDecoderRejectsGarbage(t *testing.T) {
	t.Parallel()
	bad := []byte{0xFF, 0xF1, 0x3C, 0x80, 0x02, 0x1F, 0xFC, 0, 0, 0}
	if _, err := NewAudioDecoder().Decode(media.NewPacket(1, media.KindAudio, bad)); err == nil {
		t.Error("expected error for invalid sample rate index")
	}
}
