package decode

import (
	"github.com/zsiec/ccx"

	"github.com/zsiec/prismplay/internal/media"
)

// captionDecoder turns A/53 cc_data carried in SEI NAL units into caption
// text. CEA-608 channels 1-4 and CEA-708 services 1-6 are decoded; 708
// services are reported as channels 7-12.
type captionDecoder struct {
	cea608 map[int]*ccx.CEA608Decoder
	cea708 map[int]*ccx.CEA708Service
	dtvcc  []byte

	// Control codes are transmitted twice for robustness; the second copy
	// in the same field within two frames is dropped.
	lastCtrl      [2][2]byte
	lastWasCtrl   [2]bool
	lastCtrlFrame [2]int64
	frame         int64
}

func newCaptionDecoder() *captionDecoder {
	c := &captionDecoder{}
	c.reset()
	return c
}

// reset drops all caption state, as after a seek.
func (c *captionDecoder) reset() {
	c.cea608 = map[int]*ccx.CEA608Decoder{
		1: ccx.NewCEA608Decoder(),
		2: ccx.NewCEA608Decoder(),
		3: ccx.NewCEA608Decoder(),
		4: ccx.NewCEA608Decoder(),
	}
	c.cea708 = make(map[int]*ccx.CEA708Service, 6)
	for svc := 1; svc <= 6; svc++ {
		c.cea708[svc] = ccx.NewCEA708Service()
	}
	c.dtvcc = c.dtvcc[:0]
	c.lastWasCtrl = [2]bool{}
}

// isDuplicateControl reports whether a 608 pair repeats the control code
// just seen on the same field. Any non-control pair breaks the run.
func (c *captionDecoder) isDuplicateControl(field int, cc1, cc2 byte) bool {
	if cc1 < 0x10 || cc1 > 0x1F {
		c.lastWasCtrl[field] = false
		return false
	}
	cp := [2]byte{cc1, cc2}
	if c.lastWasCtrl[field] && c.lastCtrl[field] == cp && c.frame-c.lastCtrlFrame[field] <= 2 {
		c.lastWasCtrl[field] = false
		return true
	}
	c.lastCtrl[field] = cp
	c.lastWasCtrl[field] = true
	c.lastCtrlFrame[field] = c.frame
	return false
}

// decode processes the SEI NAL units of one video frame.
func (c *captionDecoder) decode(seis [][]byte) []media.Caption {
	c.frame++
	var out []media.Caption
	for _, sei := range seis {
		cd := ccx.ExtractCaptions(sei)
		if cd == nil {
			continue
		}
		for _, pair := range cd.CC608Pairs {
			cc1, cc2 := pair.Data[0], pair.Data[1]
			if c.isDuplicateControl(int(pair.Field)&1, cc1, cc2) {
				continue
			}
			dec := c.cea608[pair.Channel]
			if dec == nil {
				continue
			}
			if text := dec.Decode(cc1, cc2); text != "" {
				out = append(out, media.Caption{Channel: pair.Channel, Text: text})
			}
		}
		for _, t := range cd.DTVCC {
			if t.Start {
				out = c.drainDTVCC(out)
				c.dtvcc = c.dtvcc[:0]
			}
			c.dtvcc = append(c.dtvcc, t.Data[0], t.Data[1])
		}
	}
	return out
}

func (c *captionDecoder) drainDTVCC(out []media.Caption) []media.Caption {
	if len(c.dtvcc) < 1 {
		return out
	}
	size := ccx.DTVCCPacketSize(c.dtvcc[0])
	if len(c.dtvcc) < size {
		return out
	}
	for _, block := range ccx.ParseDTVCCPacket(c.dtvcc[:size]) {
		svc := c.cea708[block.ServiceNum]
		if svc == nil || !svc.ProcessBlock(block.Data) {
			continue
		}
		if text := svc.DisplayText(); text != "" {
			out = append(out, media.Caption{Channel: block.ServiceNum + 6, Text: text})
		}
	}
	c.dtvcc = c.dtvcc[size:]
	return out
}
