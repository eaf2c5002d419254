// Package feed moves child output lines from the stream goroutines to slow
// consumers such as the dashboard.
//
// Delivering a line to a subscriber happens on the child's stream
// goroutine, so a consumer that blocks would stall the child once its pipe
// fills. A Pipeline decouples the two with a bounded channel:
//
//	Producer (FeedLine): never blocks, drops the line if the channel is full
//	Consumer (Run):      delivers queued lines to a Sink at its own pace
package feed

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/randomizedcoder/go-spawn/pkg/spawn"
)

// Entry is one line of one instance.
type Entry struct {
	Instance int
	Line     spawn.Line
	Time     time.Time
}

// Sink consumes entries.
type Sink interface {
	HandleEntry(Entry)
}

// SinkFunc adapts a function to a Sink.
type SinkFunc func(Entry)

// HandleEntry calls f(e).
func (f SinkFunc) HandleEntry(e Entry) { f(e) }

// Pipeline is a lossy queue of entries.
type Pipeline struct {
	entries chan Entry
	mu      sync.RWMutex // guards closed against FeedLine
	closed  bool

	linesRead      atomic.Int64
	linesDropped   atomic.Int64
	linesDelivered atomic.Int64

	dropThreshold float64
	now           func() time.Time
}

// NewPipeline creates a pipeline.
//
// Parameters:
//   - bufferSize: Channel buffer size (lines)
//   - dropThreshold: Fraction (0.0-1.0) above which the feed is degraded
func NewPipeline(bufferSize int, dropThreshold float64) *Pipeline {
	if bufferSize < 1 {
		bufferSize = 1000
	}
	if dropThreshold <= 0 {
		dropThreshold = 0.01
	}
	return &Pipeline{
		entries:       make(chan Entry, bufferSize),
		dropThreshold: dropThreshold,
		now:           time.Now,
	}
}

// FeedLine queues a line. Returns true if queued, false if dropped
// (channel full or pipeline closed).
func (p *Pipeline) FeedLine(instance int, line spawn.Line) bool {
	p.linesRead.Add(1)

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.linesDropped.Add(1)
		return false
	}

	select {
	case p.entries <- Entry{Instance: instance, Line: line, Time: p.now()}:
		return true
	default:
		p.linesDropped.Add(1)
		return false
	}
}

// Close stops the consumer once the queued entries are delivered.
// Safe to call multiple times.
func (p *Pipeline) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.closed {
		p.closed = true
		close(p.entries)
	}
}

// Run delivers entries to sink until the pipeline is closed and drained.
// MUST run in a dedicated goroutine.
func (p *Pipeline) Run(sink Sink) {
	for e := range p.entries {
		sink.HandleEntry(e)
		p.linesDelivered.Add(1)
	}
}

// Stats returns (read, dropped, delivered) line counts.
func (p *Pipeline) Stats() (read, dropped, delivered int64) {
	return p.linesRead.Load(), p.linesDropped.Load(), p.linesDelivered.Load()
}

// DropRate returns the current drop rate as a fraction (0.0 to 1.0).
func (p *Pipeline) DropRate() float64 {
	read := p.linesRead.Load()
	if read == 0 {
		return 0
	}
	return float64(p.linesDropped.Load()) / float64(read)
}

// IsDegraded returns true if the drop rate exceeds the threshold.
func (p *Pipeline) IsDegraded() bool {
	return p.DropRate() > p.dropThreshold
}
