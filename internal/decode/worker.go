package decode

import (
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/zsiec/prismplay/internal/media"
	"github.com/zsiec/prismplay/internal/packetq"
)

// Worker is the decode goroutine of one stream.
type Worker struct {
	queue  *packetq.Queue
	frames *FrameQueue
	dec    Decoder
	log    *slog.Logger

	// OnEmpty is called, before blocking, whenever the packet queue is
	// found empty. The session uses it to wake the reader.
	OnEmpty func()

	pktSerial int
	finished  atomic.Int64
	decoded   atomic.Int64
	failed    atomic.Int64
}

// NewWorker connects a decoder between a packet queue and a frame queue.
func NewWorker(q *packetq.Queue, frames *FrameQueue, dec Decoder, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	w := &Worker{
		queue:     q,
		frames:    frames,
		dec:       dec,
		log:       log,
		pktSerial: -1,
	}
	w.finished.Store(-1)
	return w
}

// Finished returns the packet serial at which the decoder was drained by a
// null packet, or -1 while it is not drained. The stream has ended when this
// equals the queue's live serial.
func (w *Worker) Finished() int {
	return int(w.finished.Load())
}

// Decoded returns the number of frames pushed so far.
func (w *Worker) Decoded() int64 {
	return w.decoded.Load()
}

// Errors returns the number of packets the decoder rejected.
func (w *Worker) Errors() int64 {
	return w.failed.Load()
}

// Frames returns the worker's output queue.
func (w *Worker) Frames() *FrameQueue {
	return w.frames
}

// Run decodes until the queue is aborted. Abort is the normal way out and
// yields a nil error.
func (w *Worker) Run() error {
	for {
		err := w.step()
		if errors.Is(err, packetq.ErrAborted) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (w *Worker) step() error {
	pkt, err := w.queue.Get(false)
	if errors.Is(err, packetq.ErrEmpty) {
		if w.OnEmpty != nil {
			w.OnEmpty()
		}
		pkt, err = w.queue.Get(true)
	}
	if err != nil {
		return err
	}

	// Packets queued before the last flush belong to a dead generation.
	if pkt.Serial != w.queue.Serial() {
		pkt.Release()
		return nil
	}
	if pkt.Serial != w.pktSerial {
		w.dec.Flush()
		w.finished.Store(-1)
		w.pktSerial = pkt.Serial
	}

	frames, err := w.dec.Decode(pkt)
	if err != nil {
		w.failed.Add(1)
		w.log.Warn("decode failed", "pts", pkt.PTS, "serial", pkt.Serial, "error", err)
	}
	for _, fr := range frames {
		fr.Serial = w.pktSerial
		if err := w.frames.Put(fr); err != nil {
			return err
		}
		w.decoded.Add(1)
	}
	if pkt.IsNull() {
		w.finished.Store(int64(w.pktSerial))
	}
	return nil
}

// Stream wires a complete decode path for one stream: packet queue, worker
// and frame queue.
type Stream struct {
	Info   media.StreamInfo
	Queue  *packetq.Queue
	Worker *Worker
}

// NewStream builds the queues and decoder for info. Video frame queues keep
// the last shown frame.
func NewStream(info media.StreamInfo, log *slog.Logger) (*Stream, error) {
	dec, err := New(info)
	if err != nil {
		return nil, err
	}
	q := packetq.New()
	size, keepLast := media.AudioFrameQueueSize, false
	if info.Kind == media.KindVideo {
		size, keepLast = media.VideoFrameQueueSize, true
	}
	fq := NewFrameQueue(q, size, keepLast)
	if log == nil {
		log = slog.Default()
	}
	w := NewWorker(q, fq, dec, log.With("component", "decoder", "stream", info.Kind.String()))
	return &Stream{Info: info, Queue: q, Worker: w}, nil
}
