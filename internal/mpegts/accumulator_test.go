package mpegts

import "testing"

func pkt(cc uint8, pusi bool, payload ...byte) *Packet {
	return &Packet{
		Header: PacketHeader{
			PID:                       0x100,
			HasPayload:                true,
			PayloadUnitStartIndicator: pusi,
			ContinuityCounter:         cc,
		},
		Payload: payload,
	}
}

func newTestAccumulator() *accumulator {
	return &accumulator{pid: 0x100, pmts: make(pmtPIDs)}
}

func TestAccumulator_PUSIFlush(t *testing.T) {
	t.Parallel()
	acc := newTestAccumulator()
	if done := acc.add(pkt(0, true, 0x01)); done != nil {
		t.Error("first packet flushed")
	}
	if done := acc.add(pkt(1, false, 0x02)); done != nil {
		t.Error("continuation flushed")
	}
	if done := acc.add(pkt(2, true, 0x03)); len(done) != 2 {
		t.Errorf("PUSI flushed %d packets, want 2", len(done))
	}
}

func TestAccumulator_CCDiscontinuity(t *testing.T) {
	t.Parallel()
	acc := newTestAccumulator()
	acc.add(pkt(0, true, 0x01))
	acc.add(pkt(1, false, 0x02))
	// 2..4 lost: the unit is dropped along with its orphaned tail.
	acc.add(pkt(5, false, 0x03))
	if done := acc.add(pkt(6, true, 0x04)); done != nil {
		t.Errorf("flushed %d packets after loss, want none", len(done))
	}
	if done := acc.add(pkt(7, true, 0x05)); len(done) != 1 {
		t.Errorf("flushed %d packets, want 1", len(done))
	}
}

func TestAccumulator_OrphanContinuationDropped(t *testing.T) {
	t.Parallel()
	acc := newTestAccumulator()
	acc.add(pkt(3, false, 0x01))
	acc.add(pkt(4, false, 0x02))
	acc.add(pkt(5, true, 0x03))
	if done := acc.add(pkt(6, true, 0x04)); len(done) != 1 || done[0].Payload[0] != 0x03 {
		t.Errorf("flushed %v, want only the unit that started at CC 5", done)
	}
}

func TestAccumulator_DuplicateFilter(t *testing.T) {
	t.Parallel()
	acc := newTestAccumulator()
	acc.add(pkt(3, true, 0x01))
	if done := acc.add(pkt(3, false, 0x01)); done != nil {
		t.Error("duplicate flushed")
	}
	if done := acc.add(pkt(4, true, 0x02)); len(done) != 1 {
		t.Errorf("flushed %d packets, want 1", len(done))
	}
}

func TestAccumulator_TEIDiscard(t *testing.T) {
	t.Parallel()
	acc := newTestAccumulator()
	acc.add(pkt(0, true, 0x01))
	bad := pkt(1, false, 0x02)
	bad.Header.TransportErrorIndicator = true
	acc.add(bad)
	if done := acc.add(pkt(2, true, 0x03)); done != nil {
		t.Error("flushed a unit containing a transport error")
	}
}

func TestAccumulator_AdaptationOnlySkipped(t *testing.T) {
	t.Parallel()
	acc := newTestAccumulator()
	acc.add(pkt(0, true, 0x01))
	afOnly := &Packet{Header: PacketHeader{PID: 0x100, HasAdaptationField: true}}
	if done := acc.add(afOnly); done != nil {
		t.Error("adaptation-only packet flushed")
	}
	if done := acc.add(pkt(1, true, 0x02)); len(done) != 1 {
		t.Errorf("flushed %d packets, want 1", len(done))
	}
}

func TestAccumulator_CCWraparound(t *testing.T) {
	t.Parallel()
	acc := newTestAccumulator()
	acc.add(pkt(15, true, 0x01))
	acc.add(pkt(0, false, 0x02))
	if done := acc.add(pkt(1, true, 0x03)); len(done) != 2 {
		t.Errorf("flushed %d packets across wraparound, want 2", len(done))
	}
}

func TestAccumulator_DiscontinuityIndicator(t *testing.T) {
	t.Parallel()
	acc := newTestAccumulator()
	acc.add(pkt(0, true, 0x01))
	acc.add(pkt(1, false, 0x02))
	jump := pkt(9, false, 0x03)
	jump.Header.DiscontinuityIndicator = true
	acc.add(jump)
	if done := acc.add(pkt(10, true, 0x04)); len(done) != 3 {
		t.Errorf("flushed %d packets, want 3 with signaled discontinuity", len(done))
	}
}

func TestPool_DumpAndReset(t *testing.T) {
	t.Parallel()
	pp := newPool(make(pmtPIDs))
	a := pkt(0, true, 0x01)
	b := pkt(0, true, 0x02)
	b.Header.PID = 0x200
	pp.add(b)
	pp.add(a)

	all := pp.dump()
	if len(all) != 2 {
		t.Fatalf("dump returned %d groups, want 2", len(all))
	}
	if all[0][0].Header.PID != 0x100 {
		t.Errorf("first group PID = %#x, want 0x100", all[0][0].Header.PID)
	}

	pp.add(pkt(1, true, 0x03))
	pp.reset()
	if all := pp.dump(); len(all) != 0 {
		t.Errorf("dump after reset returned %d groups, want 0", len(all))
	}
}

func TestSectionComplete(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name    string
		payload []byte
		want    bool
	}{
		{"single section", []byte{0x00, 0x00, 0x80, 0x05, 1, 2, 3, 4, 5}, true},
		{"incomplete", []byte{0x00, 0x00, 0x80, 0x0A, 1, 2, 3}, false},
		{"stuffing", []byte{0x00, 0x00, 0x80, 0x02, 1, 2, 0xFF, 0xFF}, true},
		{"zero padding", []byte{0x00, 0x00, 0x80, 0x02, 1, 2, 0x00, 0x00, 0x00}, true},
		{"pointer past end", []byte{0x05, 0x00}, false},
	}
	for _, tt := range tests {
		if got := sectionComplete([]*Packet{{Payload: tt.payload}}); got != tt.want {
			t.Errorf("%s: sectionComplete = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestAccumulator_PSIFlushesWhenComplete(t *testing.T) {
	t.Parallel()
	acc := &accumulator{pid: pidPAT, pmts: make(pmtPIDs)}
	p := pkt(0, true, 0x00, 0x00, 0x80, 0x01, 0xAA, 0xFF)
	p.Header.PID = pidPAT
	if done := acc.add(p); len(done) != 1 {
		t.Errorf("complete PSI section flushed %d packets, want 1", len(done))
	}
}
