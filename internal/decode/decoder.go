// Package decode runs the per-stream decode goroutines. A Worker pulls
// packets from its packet queue, discards those from superseded
// generations, feeds a Decoder and pushes the resulting frames into a
// FrameQueue for the render loops.
//
// The decoders shipped here are pass-through: they frame and timestamp the
// compressed access units without producing pixels or samples.
package decode

import (
	"fmt"
	"math"

	"github.com/zsiec/prismplay/internal/demux"
	"github.com/zsiec/prismplay/internal/media"
)

// Decoder converts packets of one stream into frames.
type Decoder interface {
	// Decode consumes pkt and returns the frames that became available.
	// A null packet asks the decoder to return whatever it still holds.
	Decode(pkt *media.Packet) ([]*media.Frame, error)

	// Flush discards internal state at a generation boundary.
	Flush()
}

// New returns a pass-through decoder for the stream.
func New(info media.StreamInfo) (Decoder, error) {
	switch {
	case info.Kind == media.KindVideo && (info.Codec == "h264" || info.Codec == "h265"):
		return NewVideoDecoder(info.Codec), nil
	case info.Kind == media.KindAudio && info.Codec == "aac":
		return NewAudioDecoder(), nil
	default:
		return nil, fmt.Errorf("decode: unsupported %s codec %q", info.Kind, info.Codec)
	}
}

// VideoDecoder passes H.264 and H.265 access units through as frames. After
// a flush it drops everything up to the next random access point, as a real
// decoder would be unable to reconstruct those pictures, and it decodes
// CEA-608/708 captions from SEI.
type VideoDecoder struct {
	codec       string
	waitKey     bool
	captions    *captionDecoder
	lastPTS     float64
	lastDur     float64
	DroppedKeys int // access units dropped while waiting for a keyframe
}

// NewVideoDecoder returns a decoder for "h264" or "h265".
func NewVideoDecoder(codec string) *VideoDecoder {
	return &VideoDecoder{
		codec:    codec,
		waitKey:  true,
		captions: newCaptionDecoder(),
		lastPTS:  math.NaN(),
	}
}

func (d *VideoDecoder) Decode(pkt *media.Packet) ([]*media.Frame, error) {
	if pkt.IsNull() {
		return nil, nil
	}
	if d.waitKey && !pkt.Keyframe {
		d.DroppedKeys++
		return nil, nil
	}
	d.waitKey = false

	pts := pkt.PTS
	if math.IsNaN(pts) {
		pts = pkt.DTS
	}
	dur := pkt.Duration
	if dur == 0 && !math.IsNaN(d.lastPTS) && pts > d.lastPTS {
		dur = pts - d.lastPTS
	}
	if dur == 0 {
		dur = d.lastDur
	}
	d.lastPTS, d.lastDur = pts, dur

	fr := &media.Frame{
		Kind:     media.KindVideo,
		PTS:      pts,
		Duration: dur,
		Serial:   pkt.Serial,
		Keyframe: pkt.Keyframe,
		Data:     pkt.Payload,
	}
	fr.Captions = d.captions.decode(d.seiUnits(pkt.Payload))
	return []*media.Frame{fr}, nil
}

func (d *VideoDecoder) seiUnits(data []byte) [][]byte {
	var seis [][]byte
	if d.codec == "h265" {
		for _, n := range demux.ParseAnnexBHEVC(data) {
			if n.Type == demux.HEVCNALSEIPrefix && len(n.Data) > 2 {
				seis = append(seis, n.Data)
			}
		}
		return seis
	}
	for _, n := range demux.ParseAnnexB(data) {
		if n.Type == demux.NALTypeSEI {
			seis = append(seis, n.Data)
		}
	}
	return seis
}

func (d *VideoDecoder) Flush() {
	d.waitKey = true
	d.lastPTS = math.NaN()
	d.captions.reset()
}

// AudioDecoder splits AAC packets into one frame per ADTS frame. Packets
// without a timestamp continue from the end of the previous one.
type AudioDecoder struct {
	nextPTS float64
}

// NewAudioDecoder returns an AAC pass-through decoder.
func NewAudioDecoder() *AudioDecoder {
	return &AudioDecoder{nextPTS: math.NaN()}
}

func (d *AudioDecoder) Decode(pkt *media.Packet) ([]*media.Frame, error) {
	if pkt.IsNull() {
		return nil, nil
	}
	aac, err := demux.ParseADTS(pkt.Payload)
	if err != nil && len(aac) == 0 {
		return nil, fmt.Errorf("decode: %w", err)
	}

	pts := pkt.PTS
	if math.IsNaN(pts) {
		pts = d.nextPTS
	}
	frames := make([]*media.Frame, 0, len(aac))
	for _, a := range aac {
		dur := a.Duration()
		frames = append(frames, &media.Frame{
			Kind:       media.KindAudio,
			PTS:        pts,
			Duration:   dur,
			Serial:     pkt.Serial,
			Keyframe:   true,
			Data:       a.Data,
			SampleRate: a.SampleRate,
			Channels:   a.Channels,
		})
		pts += dur
	}
	d.nextPTS = pts
	return frames, nil
}

func (d *AudioDecoder) Flush() {
	d.nextPTS = math.NaN()
}
