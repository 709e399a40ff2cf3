package mpegts

import (
	"bytes"
	"context"
	"errors"
	"io"
)

// Demuxer reads transport stream packets from a reader and yields PAT, PMT
// and PES units. It is not safe for concurrent use.
type Demuxer struct {
	r       io.Reader
	buf     []byte
	pmts    pmtPIDs
	pool    *pool
	pending []*Unit
	eof     bool
	offset  int64
	skipped int
}

// NewDemuxer returns a demuxer reading from r.
func NewDemuxer(r io.Reader) *Demuxer {
	pmts := make(pmtPIDs)
	return &Demuxer{
		r:    r,
		buf:  make([]byte, PacketSize),
		pmts: pmts,
		pool: newPool(pmts),
	}
}

// Reset points the demuxer at r, which is positioned at byte offset, and
// discards every partially assembled unit. The PMT PIDs learned so far are
// kept so PSI is still recognized without waiting for a new PAT.
func (d *Demuxer) Reset(r io.Reader, offset int64) {
	d.r = r
	d.offset = offset
	d.pool.reset()
	d.pending = nil
	d.eof = false
}

// Offset returns the input byte offset just past the last packet consumed.
func (d *Demuxer) Offset() int64 {
	return d.offset
}

// Skipped returns how many bytes were discarded while hunting for sync.
func (d *Demuxer) Skipped() int {
	return d.skipped
}

// Next returns the next unit. At end of input the partially assembled units
// of every PID are flushed before io.EOF is returned.
func (d *Demuxer) Next(ctx context.Context) (*Unit, error) {
	for {
		if len(d.pending) > 0 {
			u := d.pending[0]
			d.pending = d.pending[1:]
			return u, nil
		}
		if d.eof {
			return nil, io.EOF
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := d.readPacket(); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				d.eof = true
				for _, packets := range d.pool.dump() {
					d.emit(packets)
				}
				continue
			}
			return nil, err
		}

		pkt, err := parsePacket(d.buf)
		if err != nil {
			continue
		}
		if packets := d.pool.add(pkt); packets != nil {
			d.emit(packets)
		}
	}
}

// readPacket fills buf with the next packet, realigning on the sync byte
// when the input is not packet-aligned.
func (d *Demuxer) readPacket() error {
	n, err := io.ReadFull(d.r, d.buf)
	d.offset += int64(n)
	if err != nil {
		return err
	}
	for d.buf[0] != syncByte {
		i := bytes.IndexByte(d.buf[1:], syncByte) + 1
		if i == 0 {
			i = len(d.buf)
		}
		d.skipped += i
		kept := copy(d.buf, d.buf[i:])
		n, err := io.ReadFull(d.r, d.buf[kept:])
		d.offset += int64(n)
		if err != nil {
			return err
		}
	}
	return nil
}

// emit parses a completed unit and queues the results. Corrupt units are
// dropped.
func (d *Demuxer) emit(packets []*Packet) {
	first := packets[0]
	pid := first.Header.PID
	payload := joinPayloads(packets)
	if len(payload) == 0 {
		return
	}

	if d.pmts.isPSI(pid) {
		units, _ := parsePSI(payload, pid)
		for _, u := range units {
			if u.PAT != nil {
				for _, p := range u.PAT.Programs {
					d.pmts[p.PMTPID] = true
				}
			}
		}
		d.pending = append(d.pending, units...)
		return
	}

	if !isPESPayload(payload) {
		return
	}
	pes, err := parsePES(payload)
	if err != nil {
		return
	}
	pes.RandomAccess = first.Header.RandomAccessIndicator
	d.pending = append(d.pending, &Unit{PID: pid, PES: pes})
}
