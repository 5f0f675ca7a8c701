package matching

import (
	"sync"
	"sync/atomic"
)

// Stopper is polled by the engine at every checkpoint.
type Stopper interface {
	Stopped() bool
}

// StopSignal is a one-way stop flag that can be shared between the caller and a run.
type StopSignal struct {
	stopped atomic.Bool

	mu    sync.Mutex
	hooks []func()
}

func NewStopSignal() *StopSignal {
	return &StopSignal{}
}

// Stop sets the flag. Hooks registered with OnStop run once, on the first call.
func (s *StopSignal) Stop() {
	if !s.stopped.CompareAndSwap(false, true) {
		return
	}

	s.mu.Lock()
	hooks := s.hooks
	s.hooks = nil
	s.mu.Unlock()

	for _, hook := range hooks {
		hook()
	}
}

func (s *StopSignal) Stopped() bool {
	return s.stopped.Load()
}

// OnStop registers fn to be called when the signal is stopped. If it already is, fn runs immediately.
func (s *StopSignal) OnStop(fn func()) {
	s.mu.Lock()
	if !s.stopped.Load() {
		s.hooks = append(s.hooks, fn)
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	fn()
}

type neverStop struct{}

func (neverStop) Stopped() bool { return false }
