package spawn

import (
	"bufio"
	"errors"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
)

// osProcess is the Process implementation backed by os/exec.
//
// Each redirected output stream gets its own anonymous pipe. The parent's
// copy of the write end is closed right after Start, so end-of-stream is
// observed when the child (and any grandchild holding the descriptor)
// closes it, independently of the exit notification.
type osProcess struct {
	spec LaunchSpec

	mu       sync.Mutex
	cmd      *exec.Cmd
	started  bool
	closed   bool
	exited   bool
	exitCode int
	pid      int

	lineHandlers [2]func(LineEvent)
	exitHandlers []func()
	readers      [2]*os.File
	reading      [2]bool
	stdin        io.WriteCloser
}

// NewOSProcess returns an unstarted Process for spec. It is the default
// ProcessFactory.
//
// Streams that are not redirected are inherited from the current process,
// except standard input which is connected to the null device.
func NewOSProcess(spec LaunchSpec) Process {
	return &osProcess{spec: spec, exitCode: -1}
}

func (p *osProcess) OnLine(stream Stream, handler func(LineEvent)) {
	if stream != StreamOutput && stream != StreamError {
		return
	}
	p.mu.Lock()
	p.lineHandlers[stream] = handler
	p.mu.Unlock()
}

func (p *osProcess) OnExited(handler func()) {
	p.mu.Lock()
	p.exitHandlers = append(p.exitHandlers, handler)
	p.mu.Unlock()
}

func (p *osProcess) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrClosed
	}
	if p.started {
		return ErrAlreadyStarted
	}

	cmd := exec.Command(p.spec.Path, p.spec.Args...)
	cmd.Dir = p.spec.Dir
	cmd.Env = p.spec.Env

	var writers [2]*os.File
	closeAll := func() {
		for i := range writers {
			if writers[i] != nil {
				writers[i].Close()
			}
			if p.readers[i] != nil {
				p.readers[i].Close()
				p.readers[i] = nil
			}
		}
	}

	for _, stream := range []Stream{StreamOutput, StreamError} {
		if !p.spec.Redirected(stream) {
			continue
		}
		r, w, err := os.Pipe()
		if err != nil {
			closeAll()
			return err
		}
		p.readers[stream] = r
		writers[stream] = w
	}

	if writers[StreamOutput] != nil {
		cmd.Stdout = writers[StreamOutput]
	} else {
		cmd.Stdout = os.Stdout
	}
	if writers[StreamError] != nil {
		cmd.Stderr = writers[StreamError]
	} else {
		cmd.Stderr = os.Stderr
	}

	if p.spec.RedirectStdin {
		stdin, err := cmd.StdinPipe()
		if err != nil {
			closeAll()
			return err
		}
		p.stdin = stdin
	}

	if err := cmd.Start(); err != nil {
		closeAll()
		if p.stdin != nil {
			p.stdin.Close()
			p.stdin = nil
		}
		return err
	}

	// The child holds its own copies now.
	for i := range writers {
		if writers[i] != nil {
			writers[i].Close()
		}
	}

	p.cmd = cmd
	p.pid = cmd.Process.Pid
	p.started = true

	go p.wait()
	return nil
}

func (p *osProcess) wait() {
	err := p.cmd.Wait()
	code := extractExitCode(err)

	p.mu.Lock()
	p.exitCode = code
	p.exited = true
	handlers := append([]func(){}, p.exitHandlers...)
	p.mu.Unlock()

	for _, h := range handlers {
		h()
	}
}

func (p *osProcess) PID() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pid
}

func (p *osProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitCode
}

func (p *osProcess) BeginRead(stream Stream) error {
	if stream != StreamOutput && stream != StreamError {
		return ErrNotRedirected
	}

	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return ErrClosed
	case !p.started:
		p.mu.Unlock()
		return ErrNotStarted
	case p.readers[stream] == nil:
		p.mu.Unlock()
		return ErrNotRedirected
	case p.reading[stream]:
		p.mu.Unlock()
		return ErrAlreadyReading
	}
	p.reading[stream] = true
	r := p.readers[stream]
	h := p.lineHandlers[stream]
	p.mu.Unlock()

	if h == nil {
		h = func(LineEvent) {}
	}
	go pumpLines(r, h)
	return nil
}

// pumpLines delivers every line of r to h, then an EOF event. Lines have
// their terminator removed, including a trailing carriage return. A read
// error, such as the pipe being closed by Close, ends the stream like EOF.
func pumpLines(r io.Reader, h func(LineEvent)) {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			line = strings.TrimSuffix(line, "\n")
			line = strings.TrimSuffix(line, "\r")
			h(LineEvent{Text: line})
		}
		if err != nil {
			break
		}
	}
	h(LineEvent{EOF: true})
}

func (p *osProcess) Stdin() (io.WriteCloser, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch {
	case !p.spec.RedirectStdin:
		return nil, ErrNotRedirected
	case p.closed:
		return nil, ErrClosed
	case !p.started:
		return nil, ErrNotStarted
	}
	return p.stdin, nil
}

func (p *osProcess) TryTerminate() TerminateResult {
	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return ClassifyTerminateError(ErrClosed)
	case !p.started:
		p.mu.Unlock()
		return ClassifyTerminateError(ErrNotStarted)
	case p.exited:
		p.mu.Unlock()
		return ClassifyTerminateError(os.ErrProcessDone)
	}
	proc := p.cmd.Process
	p.mu.Unlock()

	err := proc.Kill()
	if errors.Is(err, syscall.ESRCH) {
		err = os.ErrProcessDone
	}
	return ClassifyTerminateError(err)
}

func (p *osProcess) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	for i, r := range p.readers {
		if r != nil {
			r.Close()
			p.readers[i] = nil
		}
	}
	if p.stdin != nil {
		p.stdin.Close()
	}
	return nil
}

// extractExitCode extracts the exit code from a Wait() error.
func extractExitCode(err error) int {
	if err == nil {
		return 0
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				// Signal exit: 128 + signal number
				return 128 + int(status.Signal())
			}
			return status.ExitStatus()
		}
		return exitErr.ExitCode()
	}

	// Unknown error, assume exit code 1
	return 1
}
