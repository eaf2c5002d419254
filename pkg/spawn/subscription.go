package spawn

// Subscription is the handle of one running process.
type Subscription struct {
	close func() error
	done  chan struct{}
	pid   int
	state func() State
}

// Close cancels the run: the process is terminated and no further
// notification is delivered. Closing after the run concluded, or closing
// twice, does nothing.
//
// Close returns nil unless the run's kill-error policy turns an unexpected
// termination failure into an error.
func (s *Subscription) Close() error {
	return s.close()
}

// Done is closed once the run is over: the terminal notification was
// delivered, or the subscription was closed and the process resources were
// released.
func (s *Subscription) Done() <-chan struct{} {
	return s.done
}

// PID returns the process id.
func (s *Subscription) PID() int {
	return s.pid
}

// State returns the current state of the run.
func (s *Subscription) State() State {
	return s.state()
}
