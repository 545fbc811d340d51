package audio

import (
	"sync"
)

// DefaultBufferCapacity holds about two seconds of 40 ms chunks
const DefaultBufferCapacity = 50

// PlaybackBuffer is a bounded FIFO of decoded PCM chunks. When full, Push
// evicts the oldest chunk so the newest audio is always admitted. Both ends
// hold the lock only for an O(1) slice update.
type PlaybackBuffer struct {
	chunks [][]byte // ring storage, len == capacity
	head   int      // index of the oldest chunk
	count  int

	mu sync.Mutex
}

// NewPlaybackBuffer creates a buffer holding at most capacity chunks
func NewPlaybackBuffer(capacity int) *PlaybackBuffer {
	if capacity < 1 {
		capacity = DefaultBufferCapacity
	}
	return &PlaybackBuffer{
		chunks: make([][]byte, capacity),
	}
}

// Push appends a chunk and reports whether the oldest chunk was evicted to
// make room for it
func (b *PlaybackBuffer) Push(chunk []byte) (evicted bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	capacity := len(b.chunks)
	if b.count == capacity {
		b.chunks[b.head] = nil
		b.head = (b.head + 1) % capacity
		b.count--
		evicted = true
	}

	b.chunks[(b.head+b.count)%capacity] = chunk
	b.count++

	return evicted
}

// Pop removes and returns the oldest chunk, or false if the buffer is empty
func (b *PlaybackBuffer) Pop() ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return nil, false
	}

	chunk := b.chunks[b.head]
	b.chunks[b.head] = nil
	b.head = (b.head + 1) % len(b.chunks)
	b.count--

	return chunk, true
}

// Len returns the number of buffered chunks
func (b *PlaybackBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the configured capacity
func (b *PlaybackBuffer) Cap() int {
	return len(b.chunks)
}

// Clear drops every buffered chunk
func (b *PlaybackBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i := range b.chunks {
		b.chunks[i] = nil
	}
	b.head = 0
	b.count = 0
}
