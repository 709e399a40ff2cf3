package mpegts

import "slices"

const pidPAT = 0x0000

// pmtPIDs records which PIDs carry PMT sections. It survives Reset so a
// demuxer re-pointed after a seek keeps treating them as PSI.
type pmtPIDs map[uint16]bool

func (m pmtPIDs) isPSI(pid uint16) bool {
	return pid == pidPAT || m[pid]
}

// accumulator buffers the packets of a single PID until a unit is complete.
type accumulator struct {
	pid     uint16
	packets []*Packet
	pmts    pmtPIDs
}

// add buffers p and returns the packets of a completed unit, if any. A PES
// completes when the next payload unit starts; a PSI section completes as
// soon as all of its bytes are present.
func (a *accumulator) add(p *Packet) []*Packet {
	if p.Header.TransportErrorIndicator {
		a.packets = nil
		return nil
	}
	if !p.Header.HasPayload {
		return nil
	}

	if len(a.packets) > 0 && !p.Header.DiscontinuityIndicator {
		prev := a.packets[len(a.packets)-1].Header.ContinuityCounter
		if p.Header.ContinuityCounter != (prev+1)&0x0F {
			if p.Header.ContinuityCounter == prev {
				return nil // duplicate
			}
			// Lost packets: the buffered unit is unusable.
			a.packets = nil
		}
	}

	// A continuation with nothing buffered is the tail of a unit whose
	// start we never saw, typically right after a seek.
	if len(a.packets) == 0 && !p.Header.PayloadUnitStartIndicator {
		return nil
	}

	var done []*Packet
	if p.Header.PayloadUnitStartIndicator && len(a.packets) > 0 {
		done = a.packets
		a.packets = nil
	}
	a.packets = append(a.packets, p)

	if done == nil && a.pmts.isPSI(a.pid) && sectionComplete(a.packets) {
		done = a.packets
		a.packets = nil
	}
	return done
}

func (a *accumulator) flush() []*Packet {
	done := a.packets
	a.packets = nil
	return done
}

func joinPayloads(packets []*Packet) []byte {
	n := 0
	for _, p := range packets {
		n += len(p.Payload)
	}
	out := make([]byte, 0, n)
	for _, p := range packets {
		out = append(out, p.Payload...)
	}
	return out
}

// sectionComplete reports whether the buffered payload holds every PSI
// section announced after the pointer field.
func sectionComplete(packets []*Packet) bool {
	payload := joinPayloads(packets)
	if len(payload) < 1 {
		return false
	}
	offset := 1 + int(payload[0])
	if offset >= len(payload) {
		return false
	}
	for offset < len(payload) {
		if payload[offset] == 0xFF {
			return true
		}
		if offset+3 > len(payload) {
			return false
		}
		// PAT and PMT always set section_syntax_indicator; zero padding
		// does not.
		if payload[offset+1]&0x80 == 0 {
			return true
		}
		n := 3 + (int(payload[offset+1]&0x0F)<<8 | int(payload[offset+2]))
		if offset+n > len(payload) {
			return false
		}
		offset += n
	}
	return true
}

// pool owns one accumulator per PID.
type pool struct {
	accs map[uint16]*accumulator
	pmts pmtPIDs
}

func newPool(pmts pmtPIDs) *pool {
	return &pool{accs: make(map[uint16]*accumulator), pmts: pmts}
}

func (pp *pool) add(p *Packet) []*Packet {
	pid := p.Header.PID
	acc, ok := pp.accs[pid]
	if !ok {
		acc = &accumulator{pid: pid, pmts: pp.pmts}
		pp.accs[pid] = acc
	}
	return acc.add(p)
}

// dump flushes every accumulator, PAT first so PMT PIDs it announces are
// known before their sections are parsed.
func (pp *pool) dump() [][]*Packet {
	pids := make([]uint16, 0, len(pp.accs))
	for pid := range pp.accs {
		pids = append(pids, pid)
	}
	slices.Sort(pids)

	var all [][]*Packet
	for _, pid := range pids {
		if packets := pp.accs[pid].flush(); packets != nil {
			all = append(all, packets)
		}
	}
	return all
}

// reset discards every partially assembled unit.
func (pp *pool) reset() {
	clear(pp.accs)
}
