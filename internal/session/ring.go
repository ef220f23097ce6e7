package session

import "sync"

// RingCapacity bounds the output ring at a few hundred KiB, per the
// design note on output ring sizing: big enough for useful scrollback
// replay, small enough to bound memory per session.
const RingCapacity = 256 * 1024

// Ring is the bounded sequence of byte chunks backing a session's
// subscriber replay (§3 "Output ring"). Eviction is whole-chunk FIFO:
// the oldest chunks are dropped first when the ring exceeds capacity.
// It does not interpret ANSI; the virtual terminal buffer (C1) is the
// source of truth for "what the screen looks like now" regardless of
// ring eviction.
type Ring struct {
	mu       sync.Mutex
	chunks   [][]byte
	size     int
	capacity int
}

// NewRing creates a Ring with the given byte capacity. A non-positive
// capacity falls back to RingCapacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = RingCapacity
	}
	return &Ring{capacity: capacity}
}

// Write appends a copy of p as one chunk, evicting the oldest chunks
// until the ring is back under capacity.
func (r *Ring) Write(p []byte) {
	if len(p) == 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	chunk := make([]byte, len(p))
	copy(chunk, p)
	r.chunks = append(r.chunks, chunk)
	r.size += len(chunk)

	for r.size > r.capacity && len(r.chunks) > 1 {
		evicted := r.chunks[0]
		r.chunks = r.chunks[1:]
		r.size -= len(evicted)
	}
}

// Snapshot concatenates all retained chunks in arrival order.
func (r *Ring) Snapshot() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]byte, 0, r.size)
	for _, c := range r.chunks {
		out = append(out, c...)
	}
	return out
}

// Len returns the current total retained byte size.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
