package mpegts

import (
	"errors"
	"fmt"
)

const (
	tableIDPAT = 0x00
	tableIDPMT = 0x02
)

var errShortSection = errors.New("mpegts: section too short")

// parsePSI walks every section in a PSI payload. Tables other than PAT and
// PMT are skipped.
func parsePSI(payload []byte, pid uint16) ([]*Unit, error) {
	if len(payload) < 1 {
		return nil, errShortSection
	}
	offset := 1 + int(payload[0])
	if offset >= len(payload) {
		return nil, fmt.Errorf("mpegts: pointer field %d out of range", payload[0])
	}

	var units []*Unit
	for offset+3 <= len(payload) {
		tableID := payload[offset]
		if tableID == 0xFF || payload[offset+1]&0x80 == 0 {
			break
		}
		end := offset + 3 + (int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2]))
		if end > len(payload) {
			break
		}
		section := payload[offset:end]
		offset = end

		switch tableID {
		case tableIDPAT:
			pat, err := parsePAT(section)
			if err != nil {
				return units, err
			}
			units = append(units, &Unit{PID: pid, PAT: pat})
		case tableIDPMT:
			pmt, err := parsePMT(section)
			if err != nil {
				return units, err
			}
			units = append(units, &Unit{PID: pid, PMT: pmt})
		}
	}
	return units, nil
}

// parsePAT decodes a PAT section:
//
//	[0]      table_id
//	[1-2]    flags + section_length
//	[3-4]    transport_stream_id
//	[5-7]    version, section_number, last_section_number
//	[8..N-4] 4-byte program entries
//	[N-4..N] CRC32
func parsePAT(section []byte) (*PAT, error) {
	if len(section) < 12 {
		return nil, errShortSection
	}
	if err := verifyCRC32(section); err != nil {
		return nil, fmt.Errorf("PAT: %w", err)
	}

	pat := &PAT{}
	for i := 8; i+4 <= len(section)-4; i += 4 {
		num := uint16(section[i])<<8 | uint16(section[i+1])
		if num == 0 {
			continue // network PID
		}
		pat.Programs = append(pat.Programs, Program{
			Number: num,
			PMTPID: uint16(section[i+2]&0x1F)<<8 | uint16(section[i+3]),
		})
	}
	return pat, nil
}

// parsePMT decodes a PMT section:
//
//	[0]      table_id
//	[1-2]    flags + section_length
//	[3-4]    program_number
//	[5-7]    version, section_number, last_section_number
//	[8-9]    PCR_PID
//	[10-11]  program_info_length, then program descriptors
//	[...]    5-byte stream entries, each followed by ES descriptors
//	[N-4..N] CRC32
func parsePMT(section []byte) (*PMT, error) {
	if len(section) < 16 {
		return nil, errShortSection
	}
	if err := verifyCRC32(section); err != nil {
		return nil, fmt.Errorf("PMT: %w", err)
	}

	pmt := &PMT{
		ProgramNumber: uint16(section[3])<<8 | uint16(section[4]),
		PCRPID:        uint16(section[8]&0x1F)<<8 | uint16(section[9]),
	}
	end := len(section) - 4
	offset := 12 + (int(section[10]&0x0F)<<8 | int(section[11]))
	for offset+5 <= end {
		pmt.Streams = append(pmt.Streams, ElementaryStream{
			Type: section[offset],
			PID:  uint16(section[offset+1]&0x1F)<<8 | uint16(section[offset+2]),
		})
		offset += 5 + (int(section[offset+3]&0x0F)<<8 | int(section[offset+4]))
	}
	return pmt, nil
}
