package clock

import (
	"testing"
	"time"
)

func TestManualEveryAndStop(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	ticks := 0
	timer := m.Every(100*time.Millisecond, func() { ticks++ })

	m.Advance(350 * time.Millisecond)
	if ticks != 3 {
		t.Fatalf("expected 3 ticks, got %d", ticks)
	}
	timer.Stop()
	m.Advance(time.Second)
	if ticks != 3 {
		t.Fatalf("expected no ticks after stop, got %d", ticks)
	}
	if m.Pending() != 0 {
		t.Fatalf("expected no pending timers")
	}
}

func TestManualRunsInDueOrder(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	var order []string
	m.After(300*time.Millisecond, func() { order = append(order, "late") })
	m.After(100*time.Millisecond, func() {
		order = append(order, "early")
		m.After(50*time.Millisecond, func() { order = append(order, "nested") })
	})

	m.Advance(time.Second)
	if len(order) != 3 || order[0] != "early" || order[1] != "nested" || order[2] != "late" {
		t.Fatalf("unexpected order %v", order)
	}
	if !m.Now().Equal(time.Unix(1, 0)) {
		t.Fatalf("unexpected now %v", m.Now())
	}
}

func TestManualStopInsideCallback(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	ticks := 0
	var timer interface{ Stop() }
	timer = m.Every(10*time.Millisecond, func() {
		ticks++
		if ticks == 2 {
			timer.Stop()
		}
	})
	m.Advance(100 * time.Millisecond)
	if ticks != 2 {
		t.Fatalf("expected 2 ticks, got %d", ticks)
	}
}

func TestSchedulerAfterPostsCallback(t *testing.T) {
	posted := make(chan func(), 1)
	s := NewScheduler(func(fn func()) { posted <- fn })
	fired := make(chan struct{}, 1)
	s.After(5*time.Millisecond, func() { fired <- struct{}{} })

	select {
	case fn := <-posted:
		fn()
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for post")
	}
	select {
	case <-fired:
	default:
		t.Fatalf("expected callback to run")
	}
}

func TestSchedulerStopDropsPostedCallback(t *testing.T) {
	posted := make(chan func(), 4)
	s := NewScheduler(func(fn func()) { posted <- fn })
	ran := false
	timer := s.Every(time.Millisecond, func() { ran = true })

	var fn func()
	select {
	case fn = <-posted:
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for tick")
	}
	timer.Stop()
	fn()
	if ran {
		t.Fatalf("expected stopped timer to drop callback")
	}
}
