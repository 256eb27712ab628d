package ringbuffer

import (
	"sync"

	"github.com/roman-kulish/eegstream/internal/errs"
	"github.com/roman-kulish/eegstream/internal/frame"
)

// Snapshot is a point-in-time copy of the buffer ordered oldest to newest.
// Slots that were never written are zero.
type Snapshot struct {
	Samples    [][frame.ChannelCount]int32
	Timestamps []uint32
	Written    uint64 // total frames pushed since creation
}

// Len returns the number of frames in the snapshot
func (s Snapshot) Len() int {
	return len(s.Samples)
}

// Channel extracts one channel as a contiguous series
func (s Snapshot) Channel(ch int) []int32 {
	out := make([]int32, len(s.Samples))
	for i := range s.Samples {
		out[i] = s.Samples[i][ch]
	}
	return out
}

// RingBuffer is a fixed-capacity circular store of sample frames. Push overwrites
// the oldest slot once the buffer is full. All methods are safe for concurrent use;
// a snapshot never observes a partially written frame.
type RingBuffer struct {
	mu         sync.Mutex
	samples    [][frame.ChannelCount]int32
	timestamps []uint32
	cursor     int // next slot to write
	written    uint64
}

// New creates a ring buffer holding capacity frames
func New(capacity int) (*RingBuffer, error) {
	if capacity <= 0 {
		return nil, errs.NewConfigError("ring buffer capacity must be positive, got %d", capacity)
	}

	return &RingBuffer{
		samples:    make([][frame.ChannelCount]int32, capacity),
		timestamps: make([]uint32, capacity),
	}, nil
}

// Push stores one frame, evicting the oldest one when full
func (rb *RingBuffer) Push(values [frame.ChannelCount]int32, ts uint32) {
	rb.mu.Lock()
	rb.samples[rb.cursor] = values
	rb.timestamps[rb.cursor] = ts
	rb.cursor = (rb.cursor + 1) % len(rb.samples)
	rb.written++
	rb.mu.Unlock()
}

// PushFrames stores a batch of frames under a single lock
func (rb *RingBuffer) PushFrames(frames []frame.Frame) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	for i := range frames {
		rb.samples[rb.cursor] = frames[i].Channels
		rb.timestamps[rb.cursor] = frames[i].Timestamp
		rb.cursor = (rb.cursor + 1) % len(rb.samples)
	}
	rb.written += uint64(len(frames))
}

// Snapshot returns a copy of the whole buffer, oldest frame first
func (rb *RingBuffer) Snapshot() Snapshot {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := len(rb.samples)
	s := Snapshot{
		Samples:    make([][frame.ChannelCount]int32, n),
		Timestamps: make([]uint32, n),
		Written:    rb.written,
	}

	k := copy(s.Samples, rb.samples[rb.cursor:])
	copy(s.Samples[k:], rb.samples[:rb.cursor])
	k = copy(s.Timestamps, rb.timestamps[rb.cursor:])
	copy(s.Timestamps[k:], rb.timestamps[:rb.cursor])

	return s
}

// Resize reallocates the buffer. The newest frames are kept: growing pads
// the oldest end with zeros and shrinking drops the oldest frames. The write
// cursor restarts at slot 0 of the new layout.
func (rb *RingBuffer) Resize(capacity int) error {
	if capacity <= 0 {
		return errs.NewConfigError("ring buffer capacity must be positive, got %d", capacity)
	}

	rb.mu.Lock()
	defer rb.mu.Unlock()

	old := len(rb.samples)
	if capacity == old {
		return nil
	}

	// linearize oldest to newest
	ordered := make([][frame.ChannelCount]int32, old)
	orderedTS := make([]uint32, old)
	k := copy(ordered, rb.samples[rb.cursor:])
	copy(ordered[k:], rb.samples[:rb.cursor])
	k = copy(orderedTS, rb.timestamps[rb.cursor:])
	copy(orderedTS[k:], rb.timestamps[:rb.cursor])

	samples := make([][frame.ChannelCount]int32, capacity)
	timestamps := make([]uint32, capacity)
	if capacity > old {
		copy(samples[capacity-old:], ordered)
		copy(timestamps[capacity-old:], orderedTS)
	} else {
		copy(samples, ordered[old-capacity:])
		copy(timestamps, orderedTS[old-capacity:])
	}

	rb.samples = samples
	rb.timestamps = timestamps
	rb.cursor = 0

	return nil
}

// Capacity returns the number of frames the buffer holds
func (rb *RingBuffer) Capacity() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return len(rb.samples)
}

// Written returns the total number of frames pushed
func (rb *RingBuffer) Written() uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.written
}
