// Package remote exposes a playback session over a QUIC control channel.
// A controller opens a bidirectional stream and sends requests (pause,
// step, seek, quit, status); the player answers each with one reply.
//
// Every message is framed as [type (varint)] [length (uint16 big-endian)]
// [payload]. Integers inside payloads are QUIC varints, times are IEEE 754
// doubles in big-endian order and strings are varint-length-prefixed.
package remote

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/quic-go/quic-go/quicvarint"

	"github.com/zsiec/prismplay/internal/player"
)

// ALPN is the TLS application protocol of the control channel.
const ALPN = "prismplay-ctl"

// Request message types.
const (
	MsgPause  uint64 = 0x01
	MsgStep   uint64 = 0x02
	MsgSeek   uint64 = 0x03
	MsgQuit   uint64 = 0x04
	MsgStatus uint64 = 0x05
)

// Reply message types.
const (
	MsgOK          uint64 = 0x10
	MsgStatusReply uint64 = 0x11
	MsgError       uint64 = 0x12
)

// Error codes carried in MsgError.
const (
	CodeUnknownMessage uint64 = 0x01
	CodeMalformed      uint64 = 0x02
)

// Seek requests a reposition. A relative seek moves Seconds from the
// current position; otherwise Seconds is an absolute target.
type Seek struct {
	Seconds  float64
	Relative bool
}

// OK acknowledges a request. Accepted is false when the player dropped it,
// such as a seek while another is pending.
type OK struct {
	Accepted bool
}

// ReadMsg reads one framed message.
func ReadMsg(r io.Reader) (uint64, []byte, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		br = bufio.NewReader(r)
		r = br.(io.Reader)
	}
	msgType, err := quicvarint.Read(br)
	if err != nil {
		return 0, nil, fmt.Errorf("read message type: %w", err)
	}

	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, fmt.Errorf("read message length: %w", err)
	}
	length := binary.BigEndian.Uint16(lenBuf[:])

	payload := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			return 0, nil, fmt.Errorf("read message payload: %w", err)
		}
	}
	return msgType, payload, nil
}

// WriteMsg writes one framed message in a single Write call.
func WriteMsg(w io.Writer, msgType uint64, payload []byte) error {
	if len(payload) > math.MaxUint16 {
		return ErrPayloadTooLarge
	}
	buf := quicvarint.Append(nil, msgType)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(payload)))
	buf = append(buf, payload...)
	_, err := w.Write(buf)
	return err
}

// SerializeSeek serializes a SEEK payload.
func SerializeSeek(s Seek) []byte {
	var flags byte
	if s.Relative {
		flags = 1
	}
	return appendFloat([]byte{flags}, s.Seconds)
}

// ParseSeek parses a SEEK payload.
func ParseSeek(data []byte) (Seek, error) {
	r := newBufReader(data)
	var s Seek
	flags, err := r.readByte()
	if err != nil {
		return s, &ParseError{Field: "flags", Err: err}
	}
	s.Relative = flags&1 == 1
	if s.Seconds, err = r.readFloat(); err != nil {
		return s, &ParseError{Field: "seconds", Err: err}
	}
	if math.IsNaN(s.Seconds) || math.IsInf(s.Seconds, 0) {
		return s, &ParseError{Field: "seconds", Err: fmt.Errorf("not finite: %v", s.Seconds)}
	}
	return s, nil
}

// SerializeOK serializes an OK payload.
func SerializeOK(ok OK) []byte {
	if ok.Accepted {
		return []byte{1}
	}
	return []byte{0}
}

// ParseOK parses an OK payload.
func ParseOK(data []byte) (OK, error) {
	b, err := newBufReader(data).readByte()
	if err != nil {
		return OK{}, &ParseError{Field: "accepted", Err: err}
	}
	return OK{Accepted: b == 1}, nil
}

// SerializeError serializes an ERROR payload.
func SerializeError(e RemoteError) []byte {
	buf := quicvarint.Append(nil, e.Code)
	return appendVarIntBytes(buf, []byte(e.Reason))
}

// ParseErrorReply parses an ERROR payload.
func ParseErrorReply(data []byte) (*RemoteError, error) {
	r := newBufReader(data)
	code, err := r.readVarint()
	if err != nil {
		return nil, &ParseError{Field: "code", Err: err}
	}
	reason, err := r.readVarIntBytes()
	if err != nil {
		return nil, &ParseError{Field: "reason", Err: err}
	}
	return &RemoteError{Code: code, Reason: string(reason)}, nil
}

// SerializeStatus serializes a STATUS_REPLY payload.
func SerializeStatus(st player.Status) []byte {
	var buf []byte
	buf = appendVarIntBytes(buf, []byte(st.ID))
	buf = appendVarIntBytes(buf, []byte(st.State))
	buf = appendVarIntBytes(buf, []byte(st.Master))
	buf = appendFloat(buf, st.Position)
	buf = appendFloat(buf, st.Duration)
	buf = appendFloat(buf, st.Drift)
	buf = quicvarint.Append(buf, uint64(st.FrameDrops))
	buf = appendQueue(buf, st.Video)
	buf = appendQueue(buf, st.Audio)
	return buf
}

func appendQueue(buf []byte, q *player.QueueStatus) []byte {
	if q == nil {
		return append(buf, 0)
	}
	buf = append(buf, 1)
	buf = quicvarint.Append(buf, uint64(q.Packets))
	buf = quicvarint.Append(buf, uint64(q.Bytes))
	buf = appendFloat(buf, q.Duration)
	buf = quicvarint.Append(buf, uint64(q.Serial))
	buf = quicvarint.Append(buf, uint64(q.Frames))
	buf = quicvarint.Append(buf, uint64(q.Decoded))
	return buf
}

// ParseStatus parses a STATUS_REPLY payload.
func ParseStatus(data []byte) (player.Status, error) {
	r := newBufReader(data)
	var st player.Status

	for _, f := range []struct {
		name string
		dst  *string
	}{{"id", &st.ID}, {"state", &st.State}, {"master", &st.Master}} {
		b, err := r.readVarIntBytes()
		if err != nil {
			return st, &ParseError{Field: f.name, Err: err}
		}
		*f.dst = string(b)
	}

	var err error
	if st.Position, err = r.readFloat(); err != nil {
		return st, &ParseError{Field: "position", Err: err}
	}
	if st.Duration, err = r.readFloat(); err != nil {
		return st, &ParseError{Field: "duration", Err: err}
	}
	if st.Drift, err = r.readFloat(); err != nil {
		return st, &ParseError{Field: "drift", Err: err}
	}
	drops, err := r.readVarint()
	if err != nil {
		return st, &ParseError{Field: "frame_drops", Err: err}
	}
	st.FrameDrops = int64(drops)

	if st.Video, err = parseQueue(r); err != nil {
		return st, &ParseError{Field: "video", Err: err}
	}
	if st.Audio, err = parseQueue(r); err != nil {
		return st, &ParseError{Field: "audio", Err: err}
	}
	return st, nil
}

func parseQueue(r *bufReader) (*player.QueueStatus, error) {
	present, err := r.readByte()
	if err != nil || present == 0 {
		return nil, err
	}
	var q player.QueueStatus
	packets, err := r.readVarint()
	if err != nil {
		return nil, err
	}
	size, err := r.readVarint()
	if err != nil {
		return nil, err
	}
	if q.Duration, err = r.readFloat(); err != nil {
		return nil, err
	}
	serial, err := r.readVarint()
	if err != nil {
		return nil, err
	}
	frames, err := r.readVarint()
	if err != nil {
		return nil, err
	}
	decoded, err := r.readVarint()
	if err != nil {
		return nil, err
	}
	q.Packets = int(packets)
	q.Bytes = int(size)
	q.Serial = int(serial)
	q.Frames = int(frames)
	q.Decoded = int64(decoded)
	return &q, nil
}

func appendFloat(buf []byte, f float64) []byte {
	return binary.BigEndian.AppendUint64(buf, math.Float64bits(f))
}

// appendVarIntBytes appends a varint-length-prefixed byte string to buf.
func appendVarIntBytes(buf []byte, data []byte) []byte {
	buf = quicvarint.Append(buf, uint64(len(data)))
	return append(buf, data...)
}

// bufReader wraps a byte slice for sequential varint/byte reading.
type bufReader struct {
	data []byte
	pos  int
}

func newBufReader(data []byte) *bufReader {
	return &bufReader{data: data}
}

func (b *bufReader) readVarint() (uint64, error) {
	if b.pos >= len(b.data) {
		return 0, io.ErrUnexpectedEOF
	}
	val, n, err := quicvarint.Parse(b.data[b.pos:])
	if err != nil {
		return 0, err
	}
	b.pos += n
	return val, nil
}

func (b *bufReader) readByte() (byte, error) {
	if b.pos >= len(b.data) {
		return 0, io.ErrUnexpectedEOF
	}
	v := b.data[b.pos]
	b.pos++
	return v, nil
}

func (b *bufReader) readFloat() (float64, error) {
	if len(b.data)-b.pos < 8 {
		return 0, io.ErrUnexpectedEOF
	}
	v := binary.BigEndian.Uint64(b.data[b.pos:])
	b.pos += 8
	return math.Float64frombits(v), nil
}

func (b *bufReader) readVarIntBytes() ([]byte, error) {
	length, err := b.readVarint()
	if err != nil {
		return nil, err
	}
	if length > uint64(len(b.data)-b.pos) {
		return nil, io.ErrUnexpectedEOF
	}
	end := b.pos + int(length)
	val := b.data[b.pos:end]
	b.pos = end
	return val, nil
}
