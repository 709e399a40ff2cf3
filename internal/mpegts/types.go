// Package mpegts parses MPEG transport streams into PSI tables and
// reassembled PES payloads. The demuxer can be re-pointed at a new read
// position after a seek without losing the program layout it has already
// learned.
package mpegts

// Elementary stream types carried in the PMT.
const (
	StreamTypeMPEG1Audio = 0x03
	StreamTypeMPEG2Audio = 0x04
	StreamTypeAAC        = 0x0F
	StreamTypeH264       = 0x1B
	StreamTypeH265       = 0x24
)

// ClockRate is the frequency of PTS and DTS values.
const ClockRate = 90000

// Packet is a parsed 188-byte transport stream packet.
type Packet struct {
	Header  PacketHeader
	Payload []byte
}

// PacketHeader holds the fields of the 4-byte TS header plus the
// discontinuity flag of the adaptation field.
type PacketHeader struct {
	PID                       uint16
	ContinuityCounter         uint8
	HasAdaptationField        bool
	HasPayload                bool
	PayloadUnitStartIndicator bool
	TransportErrorIndicator   bool
	DiscontinuityIndicator    bool
	RandomAccessIndicator     bool
}

// Unit is one logical item produced by the demuxer. Exactly one of PAT,
// PMT or PES is set.
type Unit struct {
	PID uint16
	PAT *PAT
	PMT *PMT
	PES *PES
}

// PAT is a Program Association Table.
type PAT struct {
	Programs []Program
}

// Program maps a program number to the PID of its PMT.
type Program struct {
	Number uint16
	PMTPID uint16
}

// PMT is a Program Map Table.
type PMT struct {
	ProgramNumber uint16
	PCRPID        uint16
	Streams       []ElementaryStream
}

// ElementaryStream describes one stream listed in a PMT.
type ElementaryStream struct {
	PID  uint16
	Type uint8
}

// PES is a reassembled packetized elementary stream packet.
type PES struct {
	StreamID uint8
	PTS      *Timestamp
	DTS      *Timestamp
	Data     []byte

	// RandomAccess is set when the first TS packet of the PES flagged a
	// random access point in its adaptation field.
	RandomAccess bool
}

// Timestamp is a 33-bit value on the 90 kHz system clock.
type Timestamp struct {
	Base int64
}

// Seconds converts the timestamp to seconds.
func (t *Timestamp) Seconds() float64 {
	return float64(t.Base) / ClockRate
}
