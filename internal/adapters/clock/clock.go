package clock

import (
	"sync/atomic"
	"time"

	"github.com/mikey-austin/tandem/internal/ports"
)

// Scheduler runs timer callbacks through post, which normally enqueues
// them on the device event loop.
type Scheduler struct {
	post func(func())
}

// NewScheduler creates a wall-clock scheduler. A nil post runs callbacks
// on the timer goroutine.
func NewScheduler(post func(func())) *Scheduler {
	if post == nil {
		post = func(fn func()) { fn() }
	}
	return &Scheduler{post: post}
}

// Now returns the wall-clock time.
func (*Scheduler) Now() time.Time {
	return time.Now()
}

// Every runs fn every interval until stopped.
func (s *Scheduler) Every(interval time.Duration, fn func()) ports.Timer {
	t := &timer{done: make(chan struct{})}
	if interval <= 0 {
		t.Stop()
		return t
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-t.done:
				return
			case <-ticker.C:
				s.post(t.guard(fn))
			}
		}
	}()
	return t
}

// After runs fn once after delay unless stopped first.
func (s *Scheduler) After(delay time.Duration, fn func()) ports.Timer {
	t := &timer{done: make(chan struct{})}
	t.after = time.AfterFunc(delay, func() {
		s.post(t.guard(fn))
	})
	return t
}

type timer struct {
	stopped atomic.Bool
	done    chan struct{}
	after   *time.Timer
}

func (t *timer) Stop() {
	if t.stopped.Swap(true) {
		return
	}
	close(t.done)
	if t.after != nil {
		t.after.Stop()
	}
}

// guard drops callbacks already posted when the timer was stopped.
func (t *timer) guard(fn func()) func() {
	return func() {
		if t.stopped.Load() {
			return
		}
		fn()
	}
}
