package spawn

import (
	"bufio"
	"context"
	"errors"
	"io"
	"iter"
	"strings"
)

// Input is a sequence of lines fed to a child's standard input. Output
// lines are written to the child one at a time, each followed by a newline.
// An error yielded by the sequence fails the whole run.
type Input interface {
	Lines(ctx context.Context) iter.Seq2[Line, error]
}

// InputFunc adapts a function to the Input interface.
type InputFunc func(ctx context.Context) iter.Seq2[Line, error]

func (f InputFunc) Lines(ctx context.Context) iter.Seq2[Line, error] { return f(ctx) }

// InputLines returns an input made of fixed output lines.
func InputLines(lines ...string) Input {
	lines = append([]string(nil), lines...)
	return InputFunc(func(context.Context) iter.Seq2[Line, error] {
		return func(yield func(Line, error) bool) {
			for _, l := range lines {
				if !yield(OutputLine(l), nil) {
					return
				}
			}
		}
	})
}

// InputFromLines returns an input that replays tagged lines as given.
func InputFromLines(lines ...Line) Input {
	lines = append([]Line(nil), lines...)
	return InputFunc(func(context.Context) iter.Seq2[Line, error] {
		return func(yield func(Line, error) bool) {
			for _, l := range lines {
				if !yield(l, nil) {
					return
				}
			}
		}
	})
}

// InputFromReader returns an input that reads lines from r. It can be
// consumed only once.
func InputFromReader(r io.Reader) Input {
	return InputFunc(func(ctx context.Context) iter.Seq2[Line, error] {
		return func(yield func(Line, error) bool) {
			br := bufio.NewReader(r)
			for ctx.Err() == nil {
				line, err := br.ReadString('\n')
				if line != "" {
					line = strings.TrimSuffix(strings.TrimSuffix(line, "\n"), "\r")
					if !yield(OutputLine(line), nil) {
						return
					}
				}
				if errors.Is(err, io.EOF) {
					return
				}
				if err != nil {
					yield(Line{}, err)
					return
				}
			}
		}
	})
}

// InputFromChan returns an input that forwards lines received from ch
// until it is closed.
func InputFromChan(ch <-chan string) Input {
	return InputFunc(func(ctx context.Context) iter.Seq2[Line, error] {
		return func(yield func(Line, error) bool) {
			for {
				select {
				case <-ctx.Done():
					return
				case l, ok := <-ch:
					if !ok || !yield(OutputLine(l), nil) {
						return
					}
				}
			}
		}
	})
}

// InputFailure returns an input whose sequence fails immediately with err.
func InputFailure(err error) Input {
	return InputFunc(func(context.Context) iter.Seq2[Line, error] {
		return func(yield func(Line, error) bool) {
			yield(Line{}, err)
		}
	})
}
