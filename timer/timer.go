// Package timer provides software timers for cooperative super-loop
// schedulers. Timers are registered once, re-armed as needed, and their
// callbacks fire from Service.Run, never from an interrupt context.
package timer

import "time"

// Service owns a set of software timers sharing one time source.
type Service struct {
	now    func() time.Time
	timers []*Timer
}

type Option func(*Service)

// WithNow replaces the time source, mainly for tests.
func WithNow(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

func New(opts ...Option) *Service {
	s := &Service{now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service's current time.
func (s *Service) Now() time.Time {
	return s.now()
}

// NewTimer registers a disarmed timer whose callback runs from Run.
func (s *Service) NewTimer(cb func()) *Timer {
	t := &Timer{svc: s, cb: cb}
	s.timers = append(s.timers, t)
	return t
}

// Run fires every expired timer. Call it once per main-loop iteration, after
// pumping interrupt sources, so pending hardware events are handled before
// timeouts for the same transaction.
func (s *Service) Run() {
	now := s.now()
	for _, t := range s.timers {
		if !t.armed || now.Before(t.deadline) {
			continue
		}
		if t.period > 0 {
			t.deadline = t.deadline.Add(t.period)
		} else {
			t.armed = false
		}
		t.cb()
	}
}

// Timer is a one-shot, re-armable timer. It stays associated with its
// callback for the lifetime of the service.
type Timer struct {
	svc      *Service
	cb       func()
	deadline time.Time
	period   time.Duration
	armed    bool
}

// Start arms the timer to fire once after d. A non-positive duration disarms
// instead. Starting an armed timer replaces its deadline.
func (t *Timer) Start(d time.Duration) {
	if d <= 0 {
		t.Stop()
		return
	}
	t.period = 0
	t.deadline = t.svc.now().Add(d)
	t.armed = true
}

// StartPeriodic arms the timer to fire every d until stopped.
func (t *Timer) StartPeriodic(d time.Duration) {
	if d <= 0 {
		t.Stop()
		return
	}
	t.period = d
	t.deadline = t.svc.now().Add(d)
	t.armed = true
}

// Stop disarms the timer. Stopping a disarmed timer is a no-op.
func (t *Timer) Stop() {
	t.armed = false
	t.period = 0
}

// Armed reports whether the timer is waiting to fire.
func (t *Timer) Armed() bool {
	return t.armed
}
