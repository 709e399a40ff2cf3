// Package media defines the units that flow through the player: compressed
// packets handed from the demuxer to the decoders, and decoded frames handed
// from the decoders to the render loops.
package media

import "math"

// Queue sizing shared by the demux goroutine (producer) and the decode
// goroutines (consumers). The read loop stops pulling from the source once
// either limit is reached, and frame queues hold a few frames ahead of the
// render loops.
const (
	MaxQueueSize    = 15 * 1024 * 1024
	MinFrames       = 25
	MinQueueSeconds = 1.0

	VideoFrameQueueSize   = 3
	AudioFrameQueueSize   = 9
	CaptionFrameQueueSize = 16
)

// Kind identifies the elementary stream type of a packet or frame.
type Kind int

// Elementary stream kinds.
const (
	KindUnknown Kind = iota
	KindVideo
	KindAudio
)

func (k Kind) String() string {
	switch k {
	case KindVideo:
		return "video"
	case KindAudio:
		return "audio"
	default:
		return "unknown"
	}
}

// NoTimestamp marks an absent PTS/DTS.
var NoTimestamp = math.NaN()

// Packet is a single compressed data unit of one elementary stream. Once a
// packet is put on a queue the queue owns its payload; the payload is handed
// back through Release when the queue discards the packet.
type Packet struct {
	Payload     []byte
	Size        int
	StreamIndex int
	Kind        Kind
	PTS         float64 // seconds, NaN when absent
	DTS         float64 // seconds, NaN when absent
	Duration    float64 // seconds, 0 when unknown
	Keyframe    bool
	Codec       string // "h264", "h265" or "aac"

	// Serial is the queue generation the packet was inserted under. It is
	// stamped by the queue, not by the producer.
	Serial int

	release func([]byte)
}

// NewPacket wraps payload in a packet of the given stream. Timestamps start
// out undefined.
func NewPacket(streamIndex int, kind Kind, payload []byte) *Packet {
	return &Packet{
		Payload:     payload,
		Size:        len(payload),
		StreamIndex: streamIndex,
		Kind:        kind,
		PTS:         NoTimestamp,
		DTS:         NoTimestamp,
	}
}

// NullPacket returns the zero-size sentinel that tells a decoder to drain
// its buffered frames without ending the stream.
func NullPacket(streamIndex int) *Packet {
	return NewPacket(streamIndex, KindUnknown, nil)
}

// IsNull reports whether p is a null (drain) packet.
func (p *Packet) IsNull() bool {
	return p.Size == 0 && p.Payload == nil
}

// SetRelease registers fn to receive the payload when the packet is
// discarded without being consumed.
func (p *Packet) SetRelease(fn func([]byte)) {
	p.release = fn
}

// Release hands the payload back to its owner, if any, and clears it.
// Calling Release more than once is a no-op.
func (p *Packet) Release() {
	if p.release != nil && p.Payload != nil {
		p.release(p.Payload)
	}
	p.release = nil
	p.Payload = nil
}

// Frame is a decoded, timestamped unit ready for presentation. The
// pass-through decoders keep the compressed payload in Data; a real decoder
// would carry pixels or samples.
type Frame struct {
	Kind       Kind
	PTS        float64 // seconds, NaN when absent
	Duration   float64 // seconds
	Serial     int
	Keyframe   bool
	Data       []byte
	SampleRate int
	Channels   int

	// Captions holds CEA-608 text decoded from the frame's SEI, if any.
	Captions []Caption
}

// Caption is a line of caption text attached to a video frame.
type Caption struct {
	Channel int
	Text    string
}

// StreamInfo describes one elementary stream selected by a source.
type StreamInfo struct {
	Index      int
	Kind       Kind
	Codec      string
	PID        uint16
	Width      int
	Height     int
	SampleRate int
	Channels   int
}
