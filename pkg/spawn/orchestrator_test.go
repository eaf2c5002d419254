package spawn

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"testing"
	"time"
)

func newTestSpawner() *Spawner {
	return New(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
}

// subscribeLines subscribes to both streams of a fake process.
func subscribeLines(t *testing.T, f *fakeProcess, opts Options) (*Subscription, *recorder[Line]) {
	t.Helper()
	rec := newRecorder[Line]()
	sub, err := Subscribe(context.Background(), newTestSpawner(), "dummy",
		opts.WithProcessFactory(f.factory()), OutputLine, ErrorLine, Observer[Line](rec))
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	return sub, rec
}

// =============================================================================
// Terminal notification
// =============================================================================

func TestTerminalNotificationExactlyOnce(t *testing.T) {
	orders := [][]string{
		{"out", "err", "exit"},
		{"out", "exit", "err"},
		{"err", "out", "exit"},
		{"err", "exit", "out"},
		{"exit", "out", "err"},
		{"exit", "err", "out"},
	}

	for _, order := range orders {
		t.Run(order[0]+"_"+order[1]+"_"+order[2], func(t *testing.T) {
			f := newFakeProcess(123)
			_, rec := subscribeLines(t, f, Options{})

			for i, ev := range order {
				if rec.terminals() != 0 {
					t.Fatalf("terminal notification before event %d (%s)", i, ev)
				}
				switch ev {
				case "out":
					f.eof(StreamOutput)
				case "err":
					f.eof(StreamError)
				case "exit":
					f.exit(0)
				}
			}

			_, errs, completed := rec.snapshot()
			if completed != 1 || len(errs) != 0 {
				t.Errorf("completed = %d, errors = %v; want exactly one completion", completed, errs)
			}
			if _, _, _, closes := f.counts(); closes != 1 {
				t.Errorf("Close() calls = %d, want 1", closes)
			}
		})
	}
}

func TestTerminalNotificationConcurrentEvents(t *testing.T) {
	for i := 0; i < 200; i++ {
		f := newFakeProcess(123)
		_, rec := subscribeLines(t, f, Options{})

		var wg sync.WaitGroup
		start := make(chan struct{})
		for _, fire := range []func(){
			func() { f.eof(StreamOutput) },
			func() { f.eof(StreamError) },
			func() { f.exit(1) },
		} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				<-start
				fire()
			}()
		}
		close(start)
		wg.Wait()

		if n := rec.terminals(); n != 1 {
			t.Fatalf("iteration %d: terminal notifications = %d, want 1", i, n)
		}
	}
}

func TestOrderingWithinStream(t *testing.T) {
	f := newFakeProcess(123)
	_, rec := subscribeLines(t, f, Options{})

	var want []Line
	for i := 0; i < 100; i++ {
		text := "line-" + strconv.Itoa(i)
		f.emit(StreamOutput, text)
		want = append(want, OutputLine(text))
	}
	f.eof(StreamOutput)
	f.eof(StreamError)
	f.exit(0)

	values, _, _ := rec.snapshot()
	if !slices.Equal(values, want) {
		t.Errorf("values out of order: got %d values, want %d", len(values), len(want))
	}
}

func TestLinesBeforeTerminal(t *testing.T) {
	f := newFakeProcess(123)
	_, rec := subscribeLines(t, f, Options{})

	f.emit(StreamOutput, "out-1")
	f.emit(StreamError, "err-1")
	f.exit(0)
	f.emit(StreamOutput, "out-2")
	f.eof(StreamOutput)
	if rec.terminals() != 0 {
		t.Fatal("concluded before stderr drained")
	}
	f.eof(StreamError)

	values, _, completed := rec.snapshot()
	want := []Line{OutputLine("out-1"), ErrorLine("err-1"), OutputLine("out-2")}
	if !slices.Equal(values, want) {
		t.Errorf("values = %v, want %v", values, want)
	}
	if completed != 1 {
		t.Errorf("completed = %d, want 1", completed)
	}
}

// =============================================================================
// Exit code policies
// =============================================================================

func TestDefaultNonZeroExitCodeError(t *testing.T) {
	f := newFakeProcess(123)
	_, rec := subscribeLines(t, f, Options{})

	f.eof(StreamOutput)
	f.eof(StreamError)
	f.exit(42)

	_, errs, completed := rec.snapshot()
	if completed != 0 || len(errs) != 1 {
		t.Fatalf("completed = %d, errors = %v; want one error", completed, errs)
	}

	var exitErr *ExitError
	if !errors.As(errs[0], &exitErr) {
		t.Fatalf("error type = %T, want *ExitError", errs[0])
	}
	if exitErr.Code != 42 {
		t.Errorf("Code = %d, want 42", exitErr.Code)
	}
	want := `Process "dummy" (launched as the ID 123) ended with the non-zero exit code 42.`
	if exitErr.Error() != want {
		t.Errorf("Error() = %q, want %q", exitErr.Error(), want)
	}
}

func TestSuppressNonZeroExitCodeError(t *testing.T) {
	f := newFakeProcess(123)
	_, rec := subscribeLines(t, f, NewOptions().SuppressNonZeroExitCodeError())

	f.eof(StreamOutput)
	f.eof(StreamError)
	f.exit(42)

	values, errs, completed := rec.snapshot()
	if completed != 1 || len(errs) != 0 || len(values) != 0 {
		t.Errorf("completed = %d, errors = %v, values = %v; want success only", completed, errs, values)
	}
}

func TestExitCodePolicyArguments(t *testing.T) {
	f := newFakeProcess(77)
	var got ExitCodeErrorArgs
	policyErr := errors.New("custom")
	opts := NewOptions().WithArgs("a", "b").WithExitCodeError(func(a ExitCodeErrorArgs) error {
		got = a
		return policyErr
	})
	_, rec := subscribeLines(t, f, opts)

	f.eof(StreamOutput)
	f.eof(StreamError)
	f.exit(0)

	_, errs, _ := rec.snapshot()
	if len(errs) != 1 || !errors.Is(errs[0], policyErr) {
		t.Fatalf("errors = %v, want the policy error", errs)
	}
	if got.Path != "dummy" || got.PID != 77 || got.ExitCode != 0 || !slices.Equal(got.Args, []string{"a", "b"}) {
		t.Errorf("policy args = %+v", got)
	}
}

// =============================================================================
// Redirection
// =============================================================================

func TestSelectiveRedirection(t *testing.T) {
	tests := []struct {
		name           string
		stdout, stderr func(string) Line
		wantOut        bool
		wantErr        bool
	}{
		{"output only", OutputLine, nil, true, false},
		{"error only", nil, ErrorLine, false, true},
		{"both", OutputLine, ErrorLine, true, true},
		{"neither", nil, nil, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeProcess(123)
			rec := newRecorder[Line]()
			_, err := Subscribe(context.Background(), newTestSpawner(), "dummy",
				Options{}.WithProcessFactory(f.factory()), tt.stdout, tt.stderr, Observer[Line](rec))
			if err != nil {
				t.Fatalf("Subscribe() error = %v", err)
			}

			if f.spec.RedirectStdout != tt.wantOut || f.spec.RedirectStderr != tt.wantErr {
				t.Errorf("redirect stdout=%v stderr=%v, want %v %v",
					f.spec.RedirectStdout, f.spec.RedirectStderr, tt.wantOut, tt.wantErr)
			}
			if f.handlerAttached(StreamOutput) != tt.wantOut || f.handlerAttached(StreamError) != tt.wantErr {
				t.Error("line handlers attached to uncaptured streams")
			}
			beginOut, beginErr, _, _ := f.counts()
			if (beginOut == 1) != tt.wantOut || (beginErr == 1) != tt.wantErr {
				t.Errorf("BeginRead calls out=%d err=%d", beginOut, beginErr)
			}

			f.emit(StreamOutput, "o")
			f.emit(StreamError, "e")
			if tt.wantOut {
				f.eof(StreamOutput)
			}
			if tt.wantErr {
				f.eof(StreamError)
			}
			f.exit(0)

			values, _, completed := rec.snapshot()
			for _, v := range values {
				if (v.IsOutput() && !tt.wantOut) || (v.IsError() && !tt.wantErr) {
					t.Errorf("received %v from an uncaptured stream", v)
				}
			}
			if completed != 1 {
				t.Errorf("completed = %d, want 1", completed)
			}
		})
	}
}

// =============================================================================
// Cancellation
// =============================================================================

func TestCloseIdempotent(t *testing.T) {
	f := newFakeProcess(123)
	f.terminate = func(call int) TerminateResult {
		if call == 1 {
			return TerminateResult{Status: TerminateUnexpected, Err: errors.New("boom")}
		}
		return TerminateResult{Status: TerminateOK}
	}
	sub, _ := subscribeLines(t, f, Options{})

	if err := sub.Close(); err != nil {
		t.Errorf("first Close() error = %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, _, terminates, _ := f.counts(); terminates != 1 {
		t.Errorf("TryTerminate calls = %d, want 1", terminates)
	}
	if sub.State() != StateKilled {
		t.Errorf("State() = %v, want killed", sub.State())
	}
}

func TestKillErrorPolicyOptIn(t *testing.T) {
	f := newFakeProcess(123)
	f.terminate = func(int) TerminateResult {
		return TerminateResult{Status: TerminateUnexpected, Err: errors.New("boom")}
	}
	opts := Options{}.WithKillError(func(err error) error { return err })
	sub, _ := subscribeLines(t, f, opts)

	err := sub.Close()
	var termErr *TerminateError
	if !errors.As(err, &termErr) || termErr.PID != 123 {
		t.Fatalf("Close() error = %v, want *TerminateError for pid 123", err)
	}
	if err := sub.Close(); err != nil {
		t.Errorf("second Close() error = %v, want nil", err)
	}
}

func TestKillErrorPolicyIgnoresExpected(t *testing.T) {
	f := newFakeProcess(123)
	f.terminate = func(int) TerminateResult {
		return ClassifyTerminateError(ErrNotStarted)
	}
	opts := Options{}.WithKillError(func(err error) error { return err })
	sub, _ := subscribeLines(t, f, opts)

	if err := sub.Close(); err != nil {
		t.Errorf("Close() error = %v, want nil for an expected failure", err)
	}
}

func TestSilenceAfterClose(t *testing.T) {
	f := newFakeProcess(123)
	sub, rec := subscribeLines(t, f, Options{})

	f.emit(StreamOutput, "before")
	sub.Close()

	f.emit(StreamOutput, "after")
	f.emit(StreamError, "after")
	f.eof(StreamOutput)
	f.eof(StreamError)
	f.exit(1)

	values, errs, completed := rec.snapshot()
	if len(values) != 1 || len(errs) != 0 || completed != 0 {
		t.Errorf("values = %v, errors = %v, completed = %d; want only the line before Close", values, errs, completed)
	}

	select {
	case <-sub.Done():
	default:
		t.Error("Done() not closed after the process drained")
	}
	if _, _, _, closes := f.counts(); closes != 1 {
		t.Errorf("Close() calls = %d, want 1", closes)
	}
}

func TestCloseReleasesAfterDrain(t *testing.T) {
	f := newFakeProcess(123)
	sub, _ := subscribeLines(t, f, Options{})

	sub.Close()
	f.exit(137)
	f.eof(StreamOutput)
	if _, _, _, closes := f.counts(); closes != 0 {
		t.Fatal("released before stderr drained")
	}
	f.eof(StreamError)
	if _, _, _, closes := f.counts(); closes != 1 {
		t.Errorf("Close() calls = %d, want 1", closes)
	}
}

func TestCloseAfterExitBeforeDrain(t *testing.T) {
	f := newFakeProcess(123)
	sub, rec := subscribeLines(t, f, Options{})

	f.exit(0)
	sub.Close()

	_, _, terminates, closes := f.counts()
	if terminates != 0 {
		t.Errorf("TryTerminate calls = %d, want 0 for an exited process", terminates)
	}
	if closes != 1 {
		t.Errorf("Close() calls = %d, want 1", closes)
	}
	f.eof(StreamOutput)
	f.eof(StreamError)
	if rec.terminals() != 0 {
		t.Error("terminal notification after Close")
	}
}

func TestCloseAfterConclusionIsNoop(t *testing.T) {
	f := newFakeProcess(123)
	sub, _ := subscribeLines(t, f, Options{})

	f.eof(StreamOutput)
	f.eof(StreamError)
	f.exit(0)

	if err := sub.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if _, _, terminates, _ := f.counts(); terminates != 0 {
		t.Errorf("TryTerminate calls = %d, want 0", terminates)
	}
	if sub.State() != StateConcluded {
		t.Errorf("State() = %v, want concluded", sub.State())
	}
}

func TestCloseFromObserver(t *testing.T) {
	f := newFakeProcess(123)
	var sub *Subscription
	var got []string
	obs := ObserverFuncs[string]{Next: func(s string) {
		got = append(got, s)
		sub.Close()
	}}
	var err error
	sub, err = Subscribe(context.Background(), newTestSpawner(), "dummy",
		Options{}.WithProcessFactory(f.factory()), identity, nil, Observer[string](obs))
	if err != nil {
		t.Fatal(err)
	}

	f.emit(StreamOutput, "one")
	f.emit(StreamOutput, "two")
	if !slices.Equal(got, []string{"one"}) {
		t.Errorf("got %v, want [one]", got)
	}
}

func TestContextCancellationCloses(t *testing.T) {
	f := newFakeProcess(123)
	ctx, cancel := context.WithCancel(context.Background())
	rec := newRecorder[Line]()
	sub, err := Subscribe(ctx, newTestSpawner(), "dummy",
		Options{}.WithProcessFactory(f.factory()), OutputLine, nil, Observer[Line](rec))
	if err != nil {
		t.Fatal(err)
	}

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for sub.State() != StateKilled && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if sub.State() != StateKilled {
		t.Fatalf("State() = %v, want killed", sub.State())
	}
	if _, _, terminates, _ := f.counts(); terminates != 1 {
		t.Errorf("TryTerminate calls = %d, want 1", terminates)
	}
}

// =============================================================================
// Setup failures
// =============================================================================

func TestStartFailure(t *testing.T) {
	f := newFakeProcess(123)
	f.startErr = errors.New("no such file")
	rec := newRecorder[Line]()

	sub, err := Subscribe(context.Background(), newTestSpawner(), "dummy",
		Options{}.WithProcessFactory(f.factory()), OutputLine, ErrorLine, Observer[Line](rec))

	var startErr *StartError
	if sub != nil || !errors.As(err, &startErr) {
		t.Fatalf("Subscribe() = %v, %v; want *StartError", sub, err)
	}
	if !errors.Is(err, f.startErr) {
		t.Error("StartError does not wrap the cause")
	}
	_, _, _, closes := f.counts()
	if closes != 1 {
		t.Errorf("Close() calls = %d, want 1", closes)
	}
	if rec.terminals() != 0 {
		t.Error("observer notified of a start failure")
	}
}

func TestBeginReadFailure(t *testing.T) {
	f := newFakeProcess(123)
	f.beginReadErr[StreamError] = errors.New("handle closed")
	rec := newRecorder[Line]()

	sub, err := Subscribe(context.Background(), newTestSpawner(), "dummy",
		Options{}.WithProcessFactory(f.factory()), OutputLine, ErrorLine, Observer[Line](rec))

	var setupErr *StreamSetupError
	if sub != nil || !errors.As(err, &setupErr) || setupErr.Stream != "stderr" {
		t.Fatalf("Subscribe() = %v, %v; want *StreamSetupError for stderr", sub, err)
	}

	// Stdout was already being read; its lines must not leak through.
	f.emit(StreamOutput, "late")
	f.eof(StreamOutput)
	f.exit(0)

	_, _, terminates, closes := f.counts()
	if terminates != 1 {
		t.Errorf("TryTerminate calls = %d, want 1", terminates)
	}
	if closes != 1 {
		t.Errorf("Close() calls = %d, want 1", closes)
	}
	values, _, _ := rec.snapshot()
	if len(values) != 0 || rec.terminals() != 0 {
		t.Errorf("observer notified after a setup failure: %v", values)
	}
}

func TestInvalidOptions(t *testing.T) {
	_, err := Subscribe(context.Background(), newTestSpawner(), "", Options{},
		OutputLine, nil, Observer[Line](newRecorder[Line]()))
	if !errors.Is(err, ErrEmptyPath) {
		t.Errorf("error = %v, want ErrEmptyPath", err)
	}
}

// =============================================================================
// Input
// =============================================================================

func TestInputWrittenInOrder(t *testing.T) {
	f := newFakeProcess(123)
	_, rec := subscribeLines(t, f, Options{}.WithInput(InputLines("a", "b", "c")))

	if !f.spec.RedirectStdin {
		t.Fatal("stdin not redirected")
	}
	select {
	case <-f.stdin.closed:
	case <-time.After(2 * time.Second):
		t.Fatal("stdin not closed after the input sequence ended")
	}
	if got := f.stdin.String(); got != "a\nb\nc\n" {
		t.Errorf("stdin = %q", got)
	}

	f.eof(StreamOutput)
	f.eof(StreamError)
	f.exit(0)
	if _, errs, completed := rec.snapshot(); completed != 1 || len(errs) != 0 {
		t.Errorf("completed = %d, errors = %v", completed, errs)
	}
}

func TestInputFailureIsTerminal(t *testing.T) {
	f := newFakeProcess(123)
	cause := errors.New("producer broke")
	_, rec := subscribeLines(t, f, Options{}.WithInput(InputFailure(cause)))

	if !rec.waitTerminal(2 * time.Second) {
		t.Fatal("no terminal notification")
	}
	_, errs, completed := rec.snapshot()
	var inErr *InputError
	if completed != 0 || len(errs) != 1 || !errors.As(errs[0], &inErr) || !errors.Is(errs[0], cause) {
		t.Fatalf("completed = %d, errors = %v; want one *InputError", completed, errs)
	}
	if _, _, terminates, _ := f.counts(); terminates != 1 {
		t.Errorf("TryTerminate calls = %d, want 1", terminates)
	}

	// The process dies; nothing else reaches the observer.
	f.emit(StreamOutput, "late")
	f.eof(StreamOutput)
	f.eof(StreamError)
	f.exit(137)
	if n := rec.terminals(); n != 1 {
		t.Errorf("terminal notifications = %d, want 1", n)
	}
}

func TestMergedInputErrors(t *testing.T) {
	tests := []struct {
		name  string
		merge bool
		want  []Line
	}{
		{"merged", true, []Line{ErrorLine("simulated")}},
		{"skipped", false, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFakeProcess(123)
			in := InputFromLines(OutputLine("x"), ErrorLine("simulated"), OutputLine("y"))
			_, rec := subscribeLines(t, f, Options{}.WithInput(in).WithMergedInputErrors(tt.merge))

			select {
			case <-f.stdin.closed:
			case <-time.After(2 * time.Second):
				t.Fatal("stdin not closed")
			}
			if got := f.stdin.String(); got != "x\ny\n" {
				t.Errorf("stdin = %q, want error lines not written", got)
			}

			values, _, _ := rec.snapshot()
			if !slices.Equal(values, tt.want) {
				t.Errorf("values = %v, want %v", values, tt.want)
			}
		})
	}
}

func TestInputWriteFailureStopsPump(t *testing.T) {
	f := newFakeProcess(123)
	ch := make(chan string)
	_, rec := subscribeLines(t, f, Options{}.WithInput(InputFromChan(ch)))

	ch <- "a"
	deadline := time.Now().Add(2 * time.Second)
	for f.stdin.String() != "a\n" {
		if time.Now().After(deadline) {
			t.Fatalf("stdin = %q, want first line written", f.stdin.String())
		}
		time.Sleep(time.Millisecond)
	}

	// The child stops reading; the next write fails.
	f.stdin.Close()
	ch <- "b"
	select {
	case ch <- "c":
		t.Error("input kept being consumed after a failed write")
	case <-time.After(100 * time.Millisecond):
	}
	if got := f.stdin.String(); got != "a\n" {
		t.Errorf("stdin = %q, want only the first line", got)
	}
	if n := rec.terminals(); n != 0 {
		t.Fatalf("terminal notifications = %d before exit, want 0", n)
	}

	f.eof(StreamOutput)
	f.eof(StreamError)
	f.exit(0)
	_, errs, completed := rec.snapshot()
	if completed != 1 || len(errs) != 0 {
		t.Errorf("completed = %d, errors = %v; want one completion", completed, errs)
	}
}

func TestStdinSetupFailure(t *testing.T) {
	f := newFakeProcess(123)
	f.stdinErr = ErrNotRedirected

	_, err := Subscribe(context.Background(), newTestSpawner(), "dummy",
		Options{}.WithInput(InputLines("a")).WithProcessFactory(f.factory()),
		OutputLine, nil, Observer[Line](newRecorder[Line]()))

	var setupErr *StreamSetupError
	if !errors.As(err, &setupErr) || setupErr.Stream != "stdin" {
		t.Fatalf("error = %v, want *StreamSetupError for stdin", err)
	}
}

// =============================================================================
// Processes that finish inside Start
// =============================================================================

// subscribeWithin fails the test if Subscribe does not return within d.
func subscribeWithin[T any](t *testing.T, d time.Duration, f *fakeProcess,
	stdout, stderr func(string) T, obs Observer[T]) *Subscription {
	t.Helper()
	type result struct {
		sub *Subscription
		err error
	}
	ch := make(chan result, 1)
	go func() {
		sub, err := Subscribe(context.Background(), newTestSpawner(), "dummy",
			Options{}.WithProcessFactory(f.factory()), stdout, stderr, obs)
		ch <- result{sub, err}
	}()
	select {
	case r := <-ch:
		if r.err != nil {
			t.Fatalf("Subscribe() error = %v", r.err)
		}
		return r.sub
	case <-time.After(d):
		t.Fatal("Subscribe() did not return while the process exited inside Start")
		return nil
	}
}

func TestExitInsideStartFireAndForget(t *testing.T) {
	f := newFakeProcess(9)
	f.onStart = func() { f.exit(0) }
	rec := newRecorder[Line]()

	sub := subscribeWithin[Line](t, 2*time.Second, f, nil, nil, rec)

	if !rec.waitTerminal(2 * time.Second) {
		t.Fatal("no terminal notification")
	}
	if _, errs, completed := rec.snapshot(); completed != 1 || len(errs) != 0 {
		t.Errorf("completed = %d, errors = %v", completed, errs)
	}
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription not released")
	}
	if sub.PID() != 9 {
		t.Errorf("PID() = %d, want 9", sub.PID())
	}
}

func TestExitAndDrainInsideStart(t *testing.T) {
	f := newFakeProcess(9)
	f.onStart = func() {
		f.emit(StreamOutput, "early")
		f.eof(StreamOutput)
		f.eof(StreamError)
		f.exit(3)
	}
	rec := newRecorder[Line]()

	subscribeWithin(t, 2*time.Second, f, OutputLine, ErrorLine, Observer[Line](rec))

	if !rec.waitTerminal(2 * time.Second) {
		t.Fatal("no terminal notification")
	}
	values, errs, completed := rec.snapshot()
	var exitErr *ExitError
	if completed != 0 || len(errs) != 1 || !errors.As(errs[0], &exitErr) || exitErr.Code != 3 {
		t.Fatalf("completed = %d, errors = %v; want one *ExitError with code 3", completed, errs)
	}
	if !slices.Equal(values, []Line{OutputLine("early")}) {
		t.Errorf("values = %v", values)
	}
	if n := rec.terminals(); n != 1 {
		t.Errorf("terminal notifications = %d, want 1", n)
	}
}

// =============================================================================
// Hooks
// =============================================================================

func TestHooks(t *testing.T) {
	f := newFakeProcess(55)
	var mu sync.Mutex
	var started, lines, exited int
	var exitCode int
	s := New(Config{
		ProcessFactory: f.factory(),
		Hooks: Hooks{
			OnStart: func(path string, pid int) {
				mu.Lock()
				started++
				mu.Unlock()
			},
			OnLine: func(path string, stream Stream) {
				mu.Lock()
				lines++
				mu.Unlock()
			},
			OnExit: func(path string, pid, code int, _ time.Duration) {
				mu.Lock()
				exited++
				exitCode = code
				mu.Unlock()
			},
		},
	})

	rec := newRecorder[Line]()
	if _, err := Subscribe(context.Background(), s, "dummy", Options{}, OutputLine, ErrorLine, Observer[Line](rec)); err != nil {
		t.Fatal(err)
	}
	f.emit(StreamOutput, "1")
	f.emit(StreamError, "2")
	f.eof(StreamOutput)
	f.eof(StreamError)
	f.exit(3)

	mu.Lock()
	defer mu.Unlock()
	if started != 1 || lines != 2 || exited != 1 || exitCode != 3 {
		t.Errorf("hooks: started=%d lines=%d exited=%d code=%d", started, lines, exited, exitCode)
	}
}
