package feed

import "sync"

// Tail is a Sink that keeps the most recent entries.
type Tail struct {
	mu     sync.Mutex
	buf    []Entry
	next   int
	filled bool
}

// NewTail creates a tail holding up to size entries.
func NewTail(size int) *Tail {
	if size < 1 {
		size = 1
	}
	return &Tail{buf: make([]Entry, size)}
}

// HandleEntry stores e, evicting the oldest entry when full.
func (t *Tail) HandleEntry(e Entry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf[t.next] = e
	t.next = (t.next + 1) % len(t.buf)
	if t.next == 0 {
		t.filled = true
	}
}

// Entries returns up to n of the most recent entries, oldest first.
func (t *Tail) Entries(n int) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	size := t.next
	if t.filled {
		size = len(t.buf)
	}
	n = min(n, size)
	out := make([]Entry, 0, max(n, 0))
	for i := 0; i < n; i++ {
		out = append(out, t.buf[(t.next-n+i+len(t.buf))%len(t.buf)])
	}
	return out
}

// Len returns the number of stored entries.
func (t *Tail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.filled {
		return len(t.buf)
	}
	return t.next
}
