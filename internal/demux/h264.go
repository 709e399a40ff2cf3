package demux

import (
	"errors"
	"fmt"
)

// H.264 NAL unit types, ITU-T H.264 Table 7-1.
const (
	NALTypeSlice      = 1
	NALTypeIDR        = 5
	NALTypeSEI        = 6
	NALTypeSPS        = 7
	NALTypePPS        = 8
	NALTypeAUD        = 9
	NALTypeFillerData = 12
)

// SPSInfo is the subset of an H.264 sequence parameter set the player
// reports.
type SPSInfo struct {
	Width           int
	Height          int
	ProfileIDC      byte
	ConstraintFlags byte
	LevelIDC        byte
}

// CodecString returns the RFC 6381 codec string, e.g. "avc1.42E01E".
func (s SPSInfo) CodecString() string {
	return fmt.Sprintf("avc1.%02X%02X%02X", s.ProfileIDC, s.ConstraintFlags, s.LevelIDC)
}

var errSPSTooShort = errors.New("demux: SPS data too short")

type bitReader struct {
	data []byte
	pos  int
	bit  int
}

func (br *bitReader) readBit() (uint, error) {
	if br.pos >= len(br.data) {
		return 0, errSPSTooShort
	}
	v := uint(br.data[br.pos]>>(7-br.bit)) & 1
	if br.bit++; br.bit == 8 {
		br.bit = 0
		br.pos++
	}
	return v, nil
}

func (br *bitReader) readBits(n int) (uint, error) {
	var v uint
	for range n {
		b, err := br.readBit()
		if err != nil {
			return 0, err
		}
		v = v<<1 | b
	}
	return v, nil
}

func (br *bitReader) readFlag() (bool, error) {
	b, err := br.readBit()
	return b == 1, err
}

// readUE reads an unsigned Exp-Golomb code.
func (br *bitReader) readUE() (uint, error) {
	zeros := 0
	for {
		b, err := br.readBit()
		if err != nil {
			return 0, err
		}
		if b == 1 {
			break
		}
		if zeros++; zeros > 31 {
			return 0, errSPSTooShort
		}
	}
	suffix, err := br.readBits(zeros)
	if err != nil {
		return 0, err
	}
	return 1<<zeros - 1 + suffix, nil
}

// readSE reads a signed Exp-Golomb code.
func (br *bitReader) readSE() (int, error) {
	v, err := br.readUE()
	if err != nil {
		return 0, err
	}
	if v%2 == 0 {
		return -int(v / 2), nil
	}
	return int((v + 1) / 2), nil
}

func (br *bitReader) skipUE(n int) error {
	for range n {
		if _, err := br.readUE(); err != nil {
			return err
		}
	}
	return nil
}

func (br *bitReader) skipScalingList(size int) error {
	last, next := 8, 8
	for range size {
		if next != 0 {
			delta, err := br.readSE()
			if err != nil {
				return err
			}
			next = (last + delta + 256) % 256
		}
		if next != 0 {
			last = next
		}
	}
	return nil
}

// highProfiles carry chroma format and scaling matrices in the SPS.
var highProfiles = map[byte]bool{
	100: true, 110: true, 122: true, 244: true, 44: true,
	83: true, 86: true, 118: true, 128: true, 138: true, 139: true, 134: true, 135: true,
}

// ParseSPS reads profile, level and cropped picture size from an SPS NAL
// unit, given with its header byte and without a start code.
func ParseSPS(nalu []byte) (SPSInfo, error) {
	if len(nalu) < 4 {
		return SPSInfo{}, errSPSTooShort
	}
	info := SPSInfo{
		ProfileIDC:      nalu[1],
		ConstraintFlags: nalu[2],
		LevelIDC:        nalu[3],
	}
	br := &bitReader{data: removeEmulationPrevention(nalu[4:])}

	if _, err := br.readUE(); err != nil { // seq_parameter_set_id
		return info, err
	}

	chromaFormat := uint(1)
	if highProfiles[info.ProfileIDC] {
		var err error
		if chromaFormat, err = br.readUE(); err != nil {
			return info, err
		}
		if chromaFormat == 3 {
			separate, err := br.readFlag()
			if err != nil {
				return info, err
			}
			if separate {
				chromaFormat = 0
			}
		}
		if err := br.skipUE(2); err != nil { // bit depths
			return info, err
		}
		if _, err := br.readBit(); err != nil { // qpprime_y_zero_transform_bypass
			return info, err
		}
		matrix, err := br.readFlag()
		if err != nil {
			return info, err
		}
		if matrix {
			lists := 8
			if chromaFormat == 3 {
				lists = 12
			}
			for i := range lists {
				present, err := br.readFlag()
				if err != nil {
					return info, err
				}
				if !present {
					continue
				}
				size := 16
				if i >= 6 {
					size = 64
				}
				if err := br.skipScalingList(size); err != nil {
					return info, err
				}
			}
		}
	}

	if err := br.skipUE(1); err != nil { // log2_max_frame_num_minus4
		return info, err
	}
	pocType, err := br.readUE()
	if err != nil {
		return info, err
	}
	switch pocType {
	case 0:
		if err := br.skipUE(1); err != nil {
			return info, err
		}
	case 1:
		if _, err := br.readBit(); err != nil {
			return info, err
		}
		if err := br.skipUE(2); err != nil { // two se(v), same code length
			return info, err
		}
		cycle, err := br.readUE()
		if err != nil {
			return info, err
		}
		if err := br.skipUE(int(cycle)); err != nil {
			return info, err
		}
	}
	if err := br.skipUE(1); err != nil { // max_num_ref_frames
		return info, err
	}
	if _, err := br.readBit(); err != nil { // gaps_in_frame_num_allowed
		return info, err
	}

	widthMBs, err := br.readUE()
	if err != nil {
		return info, err
	}
	heightMaps, err := br.readUE()
	if err != nil {
		return info, err
	}
	frameMBsOnly, err := br.readFlag()
	if err != nil {
		return info, err
	}
	fieldFactor := 2
	if frameMBsOnly {
		fieldFactor = 1
	} else if _, err := br.readBit(); err != nil { // mb_adaptive_frame_field
		return info, err
	}
	if _, err := br.readBit(); err != nil { // direct_8x8_inference
		return info, err
	}

	info.Width = int(widthMBs+1) * 16
	info.Height = fieldFactor * int(heightMaps+1) * 16

	cropping, err := br.readFlag()
	if err != nil {
		return info, err
	}
	if cropping {
		var crop [4]uint
		for i := range crop {
			if crop[i], err = br.readUE(); err != nil {
				return info, err
			}
		}
		unitX, unitY := 1, fieldFactor
		switch chromaFormat {
		case 1:
			unitX, unitY = 2, 2*fieldFactor
		case 2:
			unitX = 2
		}
		info.Width -= int(crop[0]+crop[1]) * unitX
		info.Height -= int(crop[2]+crop[3]) * unitY
	}
	return info, nil
}

// removeEmulationPrevention strips the 0x03 bytes inserted after each pair
// of zero bytes in an RBSP.
func removeEmulationPrevention(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if i+2 < len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 3 {
			out = append(out, 0, 0)
			i += 2
			continue
		}
		out = append(out, data[i])
	}
	return out
}

// NALUnit is one NAL unit of an Annex B stream.
type NALUnit struct {
	Type byte   // 5-bit for H.264, 6-bit for H.265
	Data []byte // header byte(s) onward, no start code
}

// splitAnnexB finds 3- and 4-byte start codes and returns the NAL units
// between them. minLen is the NAL header size of the codec.
func splitAnnexB(data []byte, minLen int, nalType func([]byte) byte) []NALUnit {
	type span struct{ sc, start int }
	var spans []span
	n := len(data)
	for i := 0; i+2 < n; {
		if data[i] == 0 && data[i+1] == 0 {
			if i+3 < n && data[i+2] == 0 && data[i+3] == 1 {
				spans = append(spans, span{i, i + 4})
				i += 4
				continue
			}
			if data[i+2] == 1 {
				spans = append(spans, span{i, i + 3})
				i += 3
				continue
			}
		}
		i++
	}

	var units []NALUnit
	for k, s := range spans {
		end := n
		if k+1 < len(spans) {
			end = spans[k+1].sc
		}
		if end-s.start < minLen {
			continue
		}
		nal := data[s.start:end]
		units = append(units, NALUnit{Type: nalType(nal), Data: nal})
	}
	return units
}

// ParseAnnexB splits an H.264 Annex B access unit into NAL units.
func ParseAnnexB(data []byte) []NALUnit {
	return splitAnnexB(data, 1, func(d []byte) byte { return d[0] & 0x1F })
}

// IsKeyframe reports whether an H.264 NAL type is an IDR slice.
func IsKeyframe(nalType byte) bool {
	return nalType == NALTypeIDR
}
