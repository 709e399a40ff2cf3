package mpegts

import (
	"bytes"
	"errors"
)

var (
	errShortPES     = errors.New("mpegts: PES packet too short")
	errPESStartCode = errors.New("mpegts: invalid PES start code")
)

var pesStartCode = []byte{0x00, 0x00, 0x01}

func isPESPayload(data []byte) bool {
	return bytes.HasPrefix(data, pesStartCode)
}

// hasOptionalHeader reports whether packets of streamID carry the optional
// PES header. Padding, private_stream_2, ECM, EMM, DSMCC, H.222.1 type E
// and the program stream directory do not.
func hasOptionalHeader(streamID uint8) bool {
	switch streamID {
	case 0xBE, 0xBF, 0xF0, 0xF1, 0xF2, 0xF8, 0xFF:
		return false
	}
	return true
}

func parsePES(payload []byte) (*PES, error) {
	if len(payload) < 6 {
		return nil, errShortPES
	}
	if !isPESPayload(payload) {
		return nil, errPESStartCode
	}

	pes := &PES{StreamID: payload[3]}
	length := int(payload[4])<<8 | int(payload[5])

	// A zero length means unbounded, which video streams use.
	bounded := func(start int) []byte {
		if end := 6 + length; length > 0 && end <= len(payload) {
			return payload[min(start, end):end]
		}
		return payload[start:]
	}

	if !hasOptionalHeader(pes.StreamID) {
		pes.Data = bounded(6)
		return pes, nil
	}
	if len(payload) < 9 {
		return nil, errShortPES
	}

	// payload[7] top bits: PTS_DTS_flags; payload[8]: header_data_length.
	switch payload[7] >> 6 {
	case 2:
		if len(payload) >= 14 {
			pes.PTS = parseTimestamp(payload[9:14])
		}
	case 3:
		if len(payload) >= 19 {
			pes.PTS = parseTimestamp(payload[9:14])
			pes.DTS = parseTimestamp(payload[14:19])
		}
	}

	pes.Data = bounded(min(9+int(payload[8]), len(payload)))
	return pes, nil
}

// parseTimestamp decodes the 33-bit PTS or DTS packed into 5 bytes with
// marker bits.
func parseTimestamp(bs []byte) *Timestamp {
	if len(bs) < 5 {
		return nil
	}
	return &Timestamp{Base: int64(bs[0]>>1&0x07)<<30 |
		int64(bs[1])<<22 |
		int64(bs[2]>>1&0x7F)<<15 |
		int64(bs[3])<<7 |
		int64(bs[4]>>1&0x7F)}
}
