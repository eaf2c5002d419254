// Package spawn runs external programs and streams their standard output and
// standard error to a subscriber as discrete lines.
//
// A spawned process is observed through an Observer: zero or more values
// derived from its lines, followed by exactly one terminal notification
// (OnCompleted or OnError). Cancellation is performed by closing the returned
// Subscription, which terminates the process and silences any further
// notifications.
package spawn

// Stream identifies one of the child's redirected output streams.
type Stream int

const (
	// StreamOutput is the child's standard output.
	StreamOutput Stream = iota
	// StreamError is the child's standard error.
	StreamError
)

// String returns the conventional name of the stream.
func (s Stream) String() string {
	switch s {
	case StreamOutput:
		return "stdout"
	case StreamError:
		return "stderr"
	default:
		return "unknown"
	}
}

// Line is a line of text tagged with the stream it was read from.
// It is also the item type of an input sequence, where an error-tagged
// line is never written to the child (see Options.WithMergedInputErrors).
type Line struct {
	Stream Stream
	Text   string
}

// OutputLine returns a line tagged as standard output.
func OutputLine(text string) Line { return Line{Stream: StreamOutput, Text: text} }

// ErrorLine returns a line tagged as standard error.
func ErrorLine(text string) Line { return Line{Stream: StreamError, Text: text} }

// IsOutput reports whether the line came from standard output.
func (l Line) IsOutput() bool { return l.Stream == StreamOutput }

// IsError reports whether the line came from standard error.
func (l Line) IsError() bool { return l.Stream == StreamError }

// String returns the line text.
func (l Line) String() string { return l.Text }

// Match folds a line into a single value depending on its stream.
func Match[R any](l Line, onOutput, onError func(string) R) R {
	if l.IsError() {
		return onError(l.Text)
	}
	return onOutput(l.Text)
}

// Tagged is a line of text paired with a caller-chosen key, typically
// used to tell the two streams apart without the Stream type.
type Tagged[K any] struct {
	Key  K
	Text string
}
