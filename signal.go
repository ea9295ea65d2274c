package amd

import "fmt"

// SignalState is the state of a Signal.
type SignalState int

const (
	SignalPending SignalState = iota
	SignalResolved
	SignalFailed
)

func (s SignalState) String() string {
	switch s {
	case SignalPending:
		return "pending"
	case SignalResolved:
		return "resolved"
	case SignalFailed:
		return "error"
	}
	return fmt.Sprintf("SignalState(%d)", int(s))
}

// Signal is a single-assignment completion future with two terminal
// states. It is used both for "a module has finished importing" and for
// "a script has finished loading".
//
// A Signal is not safe for concurrent use; it belongs to the loader's
// scheduler thread.
type Signal struct {
	state    SignalState
	value    any
	err      error
	waiting  []func(any)
	dreading []func(error)
}

// NewSignal creates a pending signal.
func NewSignal() *Signal {
	return &Signal{}
}

// State returns the current state.
func (s *Signal) State() SignalState {
	return s.state
}

// IsTerminal reports whether the signal has been resolved or failed.
func (s *Signal) IsTerminal() bool {
	return s.state != SignalPending
}

// Value returns the resolved value, or nil.
func (s *Signal) Value() any {
	return s.value
}

// Err returns the failure, or nil.
func (s *Signal) Err() error {
	return s.err
}

// HasErrorWaiters reports whether anyone is waiting for a failure.
func (s *Signal) HasErrorWaiters() bool {
	return len(s.dreading) > 0
}

// Resolve moves the signal to the resolved state and notifies waiters in
// registration order. Resolving a terminal signal panics.
func (s *Signal) Resolve(v any) {
	s.mustBePending()
	s.state = SignalResolved
	s.value = v
	waiting := s.waiting
	s.waiting, s.dreading = nil, nil
	for _, fn := range waiting {
		fn(v)
	}
}

// Fail moves the signal to the error state and notifies error waiters in
// registration order. Failing a terminal signal panics.
func (s *Signal) Fail(err error) {
	s.mustBePending()
	s.state = SignalFailed
	s.err = err
	dreading := s.dreading
	s.waiting, s.dreading = nil, nil
	for _, fn := range dreading {
		fn(err)
	}
}

func (s *Signal) mustBePending() {
	if s.state != SignalPending {
		panic(fmt.Errorf("%w (state %s)", ErrDoubleResolution, s.state))
	}
}

// OnResolved registers fn for the resolved value. If the signal is already
// resolved fn runs immediately; if it failed fn is dropped.
func (s *Signal) OnResolved(fn func(any)) {
	switch s.state {
	case SignalResolved:
		fn(s.value)
	case SignalPending:
		s.waiting = append(s.waiting, fn)
	}
}

// OnError registers fn for the failure. If the signal already failed fn
// runs immediately; if it resolved fn is dropped.
func (s *Signal) OnError(fn func(error)) {
	switch s.state {
	case SignalFailed:
		fn(s.err)
	case SignalPending:
		s.dreading = append(s.dreading, fn)
	}
}
