package gateway

import "sync"

// replayEntry holds a single broadcast envelope.
type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer is a fixed-size circular buffer of recent envelopes used to
// backfill clients that reconnect with ?since=<seq>.
type ReplayBuffer struct {
	mu   sync.RWMutex
	buf  []replayEntry
	pos  int // next write position
	full bool
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 50
	}
	return &ReplayBuffer{buf: make([]replayEntry, capacity)}
}

// Push appends an envelope, overwriting the oldest entry when full.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	cp := make([]byte, len(data))
	copy(cp, data)

	rb.buf[rb.pos] = replayEntry{Seq: seq, Data: cp}
	rb.pos = (rb.pos + 1) % len(rb.buf)
	if rb.pos == 0 {
		rb.full = true
	}
}

// Since returns entries with seq > since, oldest first.
func (rb *ReplayBuffer) Since(since int64) []replayEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []replayEntry
	n := rb.len()
	for i := 0; i < n; i++ {
		e := rb.buf[rb.index(i)]
		if e.Seq > since {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of entries currently buffered.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.len()
}

func (rb *ReplayBuffer) len() int {
	if rb.full {
		return len(rb.buf)
	}
	return rb.pos
}

// index converts a logical index (0 = oldest) to a physical buffer index.
func (rb *ReplayBuffer) index(logical int) int {
	if rb.full {
		return (rb.pos + logical) % len(rb.buf)
	}
	return logical
}
