package capture

import (
	"image"
	"sync/atomic"
	"time"
)

// frameSlot is one published frame together with its sequence number.
type frameSlot struct {
	img image.Image
	seq uint64
}

// FrameBuffer holds the latest frame of one channel. The worker writes at
// capture speed and the UI reads when it is ready; readers never block the
// writer and a slow reader only ever sees the newest frame.
type FrameBuffer struct {
	latest atomic.Pointer[frameSlot]

	frameCount   atomic.Uint64
	droppedCount atomic.Uint64
	lastFrameAt  atomic.Int64 // unix nano
	startedAt    atomic.Int64 // unix nano
}

// NewFrameBuffer creates an empty frame buffer.
func NewFrameBuffer() *FrameBuffer {
	fb := &FrameBuffer{}
	fb.startedAt.Store(time.Now().UnixNano())
	return fb
}

// Write publishes frame as the latest one.
func (fb *FrameBuffer) Write(frame image.Image) {
	seq := fb.frameCount.Add(1)
	fb.latest.Store(&frameSlot{img: frame, seq: seq})
	fb.lastFrameAt.Store(time.Now().UnixNano())
}

// Read returns the latest frame, or nil if none was written.
func (fb *FrameBuffer) Read() image.Image {
	if s := fb.latest.Load(); s != nil {
		return s.img
	}
	return nil
}

// ReadIfNew returns the latest frame only if it is newer than lastRead,
// together with its sequence number to pass on the next call.
func (fb *FrameBuffer) ReadIfNew(lastRead uint64) (image.Image, uint64, bool) {
	s := fb.latest.Load()
	if s == nil || s.seq <= lastRead {
		return nil, lastRead, false
	}
	return s.img, s.seq, true
}

// FrameCount returns the number of frames written since the last Reset.
func (fb *FrameBuffer) FrameCount() uint64 {
	return fb.frameCount.Load()
}

// LastFrameTime returns when the last frame was written.
func (fb *FrameBuffer) LastFrameTime() time.Time {
	nanos := fb.lastFrameAt.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// Stats returns the average write rate since the last Reset.
func (fb *FrameBuffer) Stats() (fps float64, totalFrames uint64, uptime time.Duration) {
	uptime = time.Since(time.Unix(0, fb.startedAt.Load()))
	totalFrames = fb.frameCount.Load()
	if uptime > 0 {
		fps = float64(totalFrames) / uptime.Seconds()
	}
	return
}

// MarkDropped counts a frame that was skipped before reaching the buffer.
func (fb *FrameBuffer) MarkDropped() {
	fb.droppedCount.Add(1)
}

// Dropped returns the number of skipped frames.
func (fb *FrameBuffer) Dropped() uint64 {
	return fb.droppedCount.Load()
}

// Reset clears the frame and counters. Sequence numbers restart, so
// readers must reset their lastRead too.
func (fb *FrameBuffer) Reset() {
	fb.latest.Store(nil)
	fb.frameCount.Store(0)
	fb.droppedCount.Store(0)
	fb.lastFrameAt.Store(0)
	fb.startedAt.Store(time.Now().UnixNano())
}

// Channel names a sensor stream.
type Channel int

const (
	RGB Channel = iota
	Depth
	IR
)

func (c Channel) String() string {
	switch c {
	case RGB:
		return "rgb"
	case Depth:
		return "depth"
	case IR:
		return "ir"
	}
	return "unknown"
}

// Channels lists every channel in display order.
var Channels = []Channel{RGB, Depth, IR}

// Buffers holds one FrameBuffer per channel.
type Buffers struct {
	buf [3]*FrameBuffer
}

// NewBuffers creates empty buffers for all channels.
func NewBuffers() *Buffers {
	b := &Buffers{}
	for i := range b.buf {
		b.buf[i] = NewFrameBuffer()
	}
	return b
}

// Get returns the buffer of ch.
func (b *Buffers) Get(ch Channel) *FrameBuffer {
	return b.buf[ch]
}

// Reset clears all channels.
func (b *Buffers) Reset() {
	for _, fb := range b.buf {
		fb.Reset()
	}
}
