package demux

import "errors"

// ErrInvalidADTS is returned when an ADTS header carries a reserved sample
// rate index.
var ErrInvalidADTS = errors.New("demux: invalid ADTS header")

// SamplesPerAACFrame is the number of PCM samples one AAC-LC frame decodes
// to.
const SamplesPerAACFrame = 1024

var aacSampleRates = [...]int{
	96000, 88200, 64000, 48000, 44100, 32000, 24000, 22050,
	16000, 12000, 11025, 8000, 7350,
}

// AACFrame is one ADTS frame.
type AACFrame struct {
	Data       []byte // header and payload
	SampleRate int
	Channels   int
}

// Duration returns the playback length of the frame in seconds.
func (f AACFrame) Duration() float64 {
	if f.SampleRate == 0 {
		return 0
	}
	return float64(SamplesPerAACFrame) / float64(f.SampleRate)
}

// ParseADTS splits an ADTS byte stream into frames. Bytes before a sync
// word are skipped and a truncated trailing frame is ignored.
func ParseADTS(data []byte) ([]AACFrame, error) {
	var frames []AACFrame
	for off := 0; len(data)-off >= 7; {
		h := data[off:]
		if h[0] != 0xFF || h[1]&0xF0 != 0xF0 {
			off++
			continue
		}

		headerLen := 7
		if h[1]&0x01 == 0 {
			headerLen = 9 // CRC present
		}
		rate := h[2] >> 2 & 0x0F
		if int(rate) >= len(aacSampleRates) {
			return frames, ErrInvalidADTS
		}
		frameLen := int(h[3]&0x03)<<11 | int(h[4])<<3 | int(h[5]>>5)
		if frameLen < headerLen || frameLen > len(h) {
			break
		}

		frames = append(frames, AACFrame{
			Data:       h[:frameLen],
			SampleRate: aacSampleRates[rate],
			Channels:   int(h[2]&0x01<<2 | h[3]>>6&0x03),
		})
		off += frameLen
	}
	return frames, nil
}
