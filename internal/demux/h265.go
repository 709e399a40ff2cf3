package demux

// H.265 NAL unit types, ITU-T H.265 Table 7-1.
const (
	HEVCNALBlaWLP     = 16
	HEVCNALIDRWRadl   = 19
	HEVCNALIDRNlp     = 20
	HEVCNALCraNut     = 21
	HEVCNALVPS        = 32
	HEVCNALSPS        = 33
	HEVCNALPPS        = 34
	HEVCNALAUD        = 35
	HEVCNALFillerData = 38
	HEVCNALSEIPrefix  = 39
)

// HEVCNALType extracts the type from the first byte of the 2-byte HEVC NAL
// header.
func HEVCNALType(firstByte byte) byte {
	return firstByte >> 1 & 0x3F
}

// IsHEVCKeyframe reports whether an HEVC NAL type is a random access point
// (BLA, IDR or CRA).
func IsHEVCKeyframe(nalType byte) bool {
	return nalType >= HEVCNALBlaWLP && nalType <= HEVCNALCraNut
}

// ParseAnnexBHEVC splits an H.265 Annex B access unit into NAL units.
func ParseAnnexBHEVC(data []byte) []NALUnit {
	return splitAnnexB(data, 2, func(d []byte) byte { return HEVCNALType(d[0]) })
}
