// Package mpegtstest builds synthetic transport streams for tests.
package mpegtstest

import (
	"bytes"

	"github.com/zsiec/prismplay/internal/mpegts"
)

// Default PIDs used by Builder.Program.
const (
	PMTPID   = 0x1000
	VideoPID = 0x0100
	AudioPID = 0x0101
)

// Stream is one PMT entry.
type Stream struct {
	Type uint8
	PID  uint16
}

// Builder appends packets to an in-memory transport stream, tracking the
// continuity counter of each PID.
type Builder struct {
	buf bytes.Buffer
	cc  map[uint16]uint8
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{cc: make(map[uint16]uint8)}
}

// Bytes returns the stream built so far.
func (b *Builder) Bytes() []byte {
	return b.buf.Bytes()
}

// Len returns the number of bytes written.
func (b *Builder) Len() int {
	return b.buf.Len()
}

// Program writes a PAT announcing PMTPID and a PMT listing streams.
func (b *Builder) Program(streams ...Stream) *Builder {
	b.PAT(PMTPID)
	var pcr uint16
	if len(streams) > 0 {
		pcr = streams[0].PID
	}
	return b.PMT(PMTPID, pcr, streams...)
}

// PAT writes a single-program PAT.
func (b *Builder) PAT(pmtPID uint16) *Builder {
	body := []byte{0x00, 0x01, 0xE0 | byte(pmtPID>>8)&0x1F, byte(pmtPID)}
	b.section(0x0000, PATSection(1, body))
	return b
}

// PMT writes a PMT for program 1.
func (b *Builder) PMT(pmtPID, pcrPID uint16, streams ...Stream) *Builder {
	b.section(pmtPID, PMTSection(1, pcrPID, streams))
	return b
}

func (b *Builder) section(pid uint16, section []byte) {
	payload := append([]byte{0x00}, section...)
	pkt := make([]byte, mpegts.PacketSize)
	for i := range pkt {
		pkt[i] = 0xFF
	}
	b.header(pkt, pid, true, false)
	copy(pkt[4:], payload)
	b.buf.Write(pkt)
}

// PES writes a PES packet carrying data on pid, split across as many TS
// packets as needed. A negative pts omits the timestamp. The last packet is
// padded with adaptation field stuffing.
func (b *Builder) PES(pid uint16, streamID byte, pts int64, randomAccess bool, data []byte) *Builder {
	pes := PESPacket(streamID, pts, data)
	for first := true; len(pes) > 0; first = false {
		ra := first && randomAccess
		n := min(len(pes), mpegts.PacketSize-4)
		if ra {
			n = min(len(pes), mpegts.PacketSize-6)
		}
		af := ra || n < mpegts.PacketSize-4

		pkt := make([]byte, mpegts.PacketSize)
		b.header(pkt, pid, first, af)
		off := 4
		if af {
			afLen := mpegts.PacketSize - 5 - n
			pkt[4] = byte(afLen)
			if afLen > 0 {
				if ra {
					pkt[5] = 0x40
				}
				for i := 6; i < 5+afLen; i++ {
					pkt[i] = 0xFF
				}
			}
			off = 5 + afLen
		}
		copy(pkt[off:], pes[:n])
		b.buf.Write(pkt)
		pes = pes[n:]
	}
	return b
}

// Video writes an H.264 access unit on VideoPID.
func (b *Builder) Video(pts int64, keyframe bool, data []byte) *Builder {
	return b.PES(VideoPID, 0xE0, pts, keyframe, data)
}

// Audio writes an AAC PES on AudioPID.
func (b *Builder) Audio(pts int64, data []byte) *Builder {
	return b.PES(AudioPID, 0xC0, pts, false, data)
}

// Raw appends arbitrary bytes, for corrupting the stream.
func (b *Builder) Raw(p []byte) *Builder {
	b.buf.Write(p)
	return b
}

func (b *Builder) header(pkt []byte, pid uint16, pusi, af bool) {
	cc := b.cc[pid]
	b.cc[pid] = (cc + 1) & 0x0F
	pkt[0] = 0x47
	pkt[1] = byte(pid>>8) & 0x1F
	if pusi {
		pkt[1] |= 0x40
	}
	pkt[2] = byte(pid)
	pkt[3] = 0x10 | cc
	if af {
		pkt[3] |= 0x20
	}
}

// PATSection returns a complete PAT section with CRC for the given raw
// program entries.
func PATSection(tsID uint16, entries []byte) []byte {
	return withCRC(0x00, tsID, entries)
}

// PMTSection returns a complete PMT section with CRC.
func PMTSection(program, pcrPID uint16, streams []Stream) []byte {
	body := []byte{0xE0 | byte(pcrPID>>8)&0x1F, byte(pcrPID), 0xF0, 0x00}
	for _, s := range streams {
		body = append(body, s.Type, 0xE0|byte(s.PID>>8)&0x1F, byte(s.PID), 0xF0, 0x00)
	}
	return withCRC(0x02, program, body)
}

func withCRC(tableID byte, id uint16, body []byte) []byte {
	length := 5 + len(body) + 4
	s := []byte{
		tableID,
		0xB0 | byte(length>>8)&0x0F, byte(length),
		byte(id >> 8), byte(id),
		0xC1, 0x00, 0x00,
	}
	s = append(s, body...)
	crc := mpegts.CRC32(s)
	return append(s, byte(crc>>24), byte(crc>>16), byte(crc>>8), byte(crc))
}

// PESPacket returns a PES packet. Video stream IDs use the unbounded zero
// length. A negative pts omits the timestamp.
func PESPacket(streamID byte, pts int64, data []byte) []byte {
	var opt []byte
	flags := byte(0)
	if pts >= 0 {
		flags = 0x80
		opt = EncodeTimestamp(0x02, pts)
	}
	length := 3 + len(opt) + len(data)
	if streamID&0xF0 == 0xE0 || length > 0xFFFF {
		length = 0
	}
	out := []byte{0x00, 0x00, 0x01, streamID, byte(length >> 8), byte(length), 0x80, flags, byte(len(opt))}
	out = append(out, opt...)
	return append(out, data...)
}

// EncodeTimestamp packs a 33-bit timestamp into 5 bytes with marker bits.
func EncodeTimestamp(prefix byte, v int64) []byte {
	return []byte{
		prefix<<4 | byte(v>>29)&0x0E | 0x01,
		byte(v >> 22),
		byte(v>>14)&0xFE | 0x01,
		byte(v >> 7),
		byte(v<<1)&0xFE | 0x01,
	}
}
