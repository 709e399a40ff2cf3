package mpegtstest

// ADTS returns one ADTS frame (AAC-LC, no CRC) with a zeroed payload of n
// bytes. rateIndex indexes the ISO 14496-3 sample rate table, where 3 is
// 48 kHz and 4 is 44.1 kHz.
func ADTS(rateIndex, channels, n int) []byte {
	total := 7 + n
	f := make([]byte, total)
	f[0] = 0xFF
	f[1] = 0xF1
	f[2] = 1<<6 | byte(rateIndex)<<2 | byte(channels>>2)&0x01
	f[3] = byte(channels&0x03)<<6 | byte(total>>11)&0x03
	f[4] = byte(total >> 3)
	f[5] = byte(total&0x07)<<5 | 0x1F
	f[6] = 0xFC
	return f
}

// AccessUnit returns an H.264 Annex B access unit: an AUD followed by an
// IDR slice when keyframe is set, or a non-IDR slice otherwise. extra NAL
// units (without start codes) are inserted after the AUD.
func AccessUnit(keyframe bool, extra ...[]byte) []byte {
	au := []byte{0, 0, 0, 1, 0x09, 0xF0}
	for _, nal := range extra {
		au = append(au, 0, 0, 0, 1)
		au = append(au, nal...)
	}
	if keyframe {
		return append(au, 0, 0, 0, 1, 0x65, 0x88, 0x84, 0x00)
	}
	return append(au, 0, 0, 0, 1, 0x41, 0x9A, 0x02, 0x00)
}

// CCPair is one CEA-608 byte pair for CaptionSEI. Field 0 carries CC1/CC2,
// field 1 carries CC3/CC4.
type CCPair struct {
	Field  byte
	B1, B2 byte
}

// CaptionSEI returns an H.264 SEI NAL unit (header byte onward, no start
// code) carrying ATSC A/53 cc_data with the given pairs.
func CaptionSEI(pairs ...CCPair) []byte {
	pairs = pairs[:min(len(pairs), 31)]
	p := []byte{0xB5, 0x00, 0x31, 'G', 'A', '9', '4', 0x03, 0x40 | byte(len(pairs)), 0xFF}
	for _, cc := range pairs {
		p = append(p, 0xFC|cc.Field&0x03, oddParity(cc.B1), oddParity(cc.B2))
	}
	p = append(p, 0xFF)

	nal := []byte{0x06, 0x04}
	size := len(p)
	for ; size >= 0xFF; size -= 0xFF {
		nal = append(nal, 0xFF)
	}
	nal = append(nal, byte(size))
	nal = append(nal, p...)
	return append(nal, 0x80)
}

func oddParity(b byte) byte {
	b &= 0x7F
	ones := 0
	for v := b; v != 0; v >>= 1 {
		ones += int(v & 1)
	}
	if ones%2 == 0 {
		return b | 0x80
	}
	return b
}
