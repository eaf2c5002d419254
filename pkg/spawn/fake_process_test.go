package spawn

import (
	"bytes"
	"io"
	"sync"
	"time"
)

// fakeProcess is a Process driven by the test. Events are fired from the
// test goroutine through emit, eof and exit.
type fakeProcess struct {
	mu sync.Mutex

	spec     LaunchSpec
	pid      int
	exitCode int

	startErr     error
	onStart      func() // runs inside Start, after the process counts as started
	beginReadErr [2]error
	stdinErr     error
	terminate    func(call int) TerminateResult

	lineHandlers [2]func(LineEvent)
	exitHandlers []func()

	started        bool
	beginReadCalls [2]int
	terminateCalls int
	closeCalls     int

	stdin *fakeStdin
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, stdin: newFakeStdin()}
}

// factory returns a ProcessFactory handing out f.
func (f *fakeProcess) factory() ProcessFactory {
	return func(spec LaunchSpec) Process {
		f.mu.Lock()
		f.spec = spec
		f.mu.Unlock()
		return f
	}
}

func (f *fakeProcess) Start() error {
	f.mu.Lock()
	if f.startErr != nil {
		f.mu.Unlock()
		return f.startErr
	}
	if f.started {
		f.mu.Unlock()
		return ErrAlreadyStarted
	}
	f.started = true
	hook := f.onStart
	f.mu.Unlock()

	if hook != nil {
		hook()
	}
	return nil
}

func (f *fakeProcess) PID() int { return f.pid }

func (f *fakeProcess) ExitCode() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.exitCode
}

func (f *fakeProcess) OnLine(stream Stream, handler func(LineEvent)) {
	f.mu.Lock()
	f.lineHandlers[stream] = handler
	f.mu.Unlock()
}

func (f *fakeProcess) OnExited(handler func()) {
	f.mu.Lock()
	f.exitHandlers = append(f.exitHandlers, handler)
	f.mu.Unlock()
}

func (f *fakeProcess) BeginRead(stream Stream) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.beginReadCalls[stream]++
	return f.beginReadErr[stream]
}

func (f *fakeProcess) Stdin() (io.WriteCloser, error) {
	if f.stdinErr != nil {
		return nil, f.stdinErr
	}
	return f.stdin, nil
}

func (f *fakeProcess) TryTerminate() TerminateResult {
	f.mu.Lock()
	f.terminateCalls++
	call := f.terminateCalls
	terminate := f.terminate
	f.mu.Unlock()
	if terminate == nil {
		return TerminateResult{Status: TerminateOK}
	}
	return terminate(call)
}

func (f *fakeProcess) Close() error {
	f.mu.Lock()
	f.closeCalls++
	f.mu.Unlock()
	return nil
}

// handlerAttached reports whether a line handler was registered for stream.
func (f *fakeProcess) handlerAttached(stream Stream) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lineHandlers[stream] != nil
}

func (f *fakeProcess) emit(stream Stream, text string) {
	f.mu.Lock()
	h := f.lineHandlers[stream]
	f.mu.Unlock()
	if h != nil {
		h(LineEvent{Text: text})
	}
}

func (f *fakeProcess) eof(stream Stream) {
	f.mu.Lock()
	h := f.lineHandlers[stream]
	f.mu.Unlock()
	if h != nil {
		h(LineEvent{EOF: true})
	}
}

func (f *fakeProcess) exit(code int) {
	f.mu.Lock()
	f.exitCode = code
	handlers := append([]func(){}, f.exitHandlers...)
	f.mu.Unlock()
	for _, h := range handlers {
		h()
	}
}

func (f *fakeProcess) counts() (beginOut, beginErr, terminate, close int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.beginReadCalls[StreamOutput], f.beginReadCalls[StreamError], f.terminateCalls, f.closeCalls
}

type fakeStdin struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed chan struct{}
	once   sync.Once
}

func newFakeStdin() *fakeStdin {
	return &fakeStdin{closed: make(chan struct{})}
}

func (s *fakeStdin) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.closed:
		return 0, io.ErrClosedPipe
	default:
	}
	return s.buf.Write(p)
}

func (s *fakeStdin) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func (s *fakeStdin) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.String()
}

// recorder is an Observer that records every notification.
type recorder[T any] struct {
	mu        sync.Mutex
	values    []T
	errs      []error
	completed int
	terminal  chan struct{}
	once      sync.Once
}

func newRecorder[T any]() *recorder[T] {
	return &recorder[T]{terminal: make(chan struct{})}
}

func (r *recorder[T]) OnNext(v T) {
	r.mu.Lock()
	r.values = append(r.values, v)
	r.mu.Unlock()
}

func (r *recorder[T]) OnError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	r.once.Do(func() { close(r.terminal) })
}

func (r *recorder[T]) OnCompleted() {
	r.mu.Lock()
	r.completed++
	r.mu.Unlock()
	r.once.Do(func() { close(r.terminal) })
}

func (r *recorder[T]) snapshot() (values []T, errs []error, completed int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]T(nil), r.values...), append([]error(nil), r.errs...), r.completed
}

func (r *recorder[T]) terminals() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.errs) + r.completed
}

// waitTerminal waits for the first terminal notification.
func (r *recorder[T]) waitTerminal(d time.Duration) bool {
	select {
	case <-r.terminal:
		return true
	case <-time.After(d):
		return false
	}
}
