package devicecore

import (
	"time"

	"github.com/mikey-austin/tandem/internal/ports"
	"github.com/mikey-austin/tandem/pkg/tandem"
	"go.uber.org/zap"
)

type engineMode int

const (
	modeIdle engineMode = iota
	modeActive
	modePassive
)

func (m engineMode) String() string {
	switch m {
	case modeActive:
		return "active"
	case modePassive:
		return "passive"
	default:
		return "idle"
	}
}

// PositionEngine keeps the session position current. The active device
// samples its renderer and broadcasts when it drifts; passive devices
// interpolate locally between broadcasts.
type PositionEngine struct {
	rt    *runtime
	mode  engineMode
	timer ports.Timer

	lastBroadcastAt    time.Time
	lastBroadcastPos   int64
	lastBroadcastTrack string
	lastBroadcastPlay  bool
	broadcastValid     bool
}

func newPositionEngine(rt *runtime) *PositionEngine {
	return &PositionEngine{rt: rt}
}

// Mode returns the current timer mode.
func (e *PositionEngine) Mode() string {
	return e.mode.String()
}

// Reconcile recreates the timer when the active or playing state changed.
func (e *PositionEngine) Reconcile() {
	want := modeIdle
	if e.rt.store.IsPlaying() && e.rt.store.CurrentTrackID() != "" {
		switch {
		case e.rt.store.IsActive():
			want = modeActive
		case !e.rt.offline:
			want = modePassive
		}
	}
	if want == e.mode {
		return
	}

	e.stop()
	e.rt.log.Debug("position engine mode", zap.String("from", e.mode.String()), zap.String("to", want.String()))
	e.mode = want
	switch want {
	case modeActive:
		e.broadcastValid = false
		e.timer = e.rt.sched.Every(e.rt.cfg.SampleInterval, e.sample)
	case modePassive:
		e.timer = e.rt.sched.Every(e.rt.cfg.InterpolateInterval, e.interpolate)
	}
}

// Invalidate forces the next active sample to broadcast.
func (e *PositionEngine) Invalidate() {
	e.broadcastValid = false
}

func (e *PositionEngine) stop() {
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
}

// Stop cancels the timer and returns to idle.
func (e *PositionEngine) Stop() {
	e.stop()
	e.mode = modeIdle
}

func (e *PositionEngine) sample() {
	store := e.rt.store
	if !store.IsActive() || !store.IsPlaying() {
		e.Reconcile()
		return
	}
	if store.HandoffPending() {
		return
	}
	position := e.rt.renderer.PositionMS()
	store.SetPosition(position)
	position = store.PositionMS()

	now := e.rt.sched.Now()
	if !store.LastSeek().IsZero() && now.Sub(store.LastSeek()) < e.rt.cfg.SeekSettle {
		return
	}
	if !e.shouldBroadcast(position, now) {
		return
	}
	e.broadcast(position, now)
}

func (e *PositionEngine) shouldBroadcast(position int64, now time.Time) bool {
	store := e.rt.store
	if !e.broadcastValid || e.lastBroadcastTrack != store.CurrentTrackID() || e.lastBroadcastPlay != store.IsPlaying() {
		return true
	}
	elapsed := now.Sub(e.lastBroadcastAt)
	if elapsed >= e.rt.cfg.BroadcastInterval {
		return true
	}
	expected := e.lastBroadcastPos
	if e.lastBroadcastPlay {
		expected += elapsed.Milliseconds()
	}
	drift := position - expected
	if drift < 0 {
		drift = -drift
	}
	return drift > e.rt.cfg.DriftThreshold.Milliseconds()
}

func (e *PositionEngine) broadcast(position int64, now time.Time) {
	store := e.rt.store
	body := e.rt.playbackUpdate(position, store.IsPlaying(), e.rt.activeID())
	if err := e.rt.send(tandem.TypePlaybackUpdate, body); err != nil {
		return
	}
	e.lastBroadcastAt = now
	e.lastBroadcastPos = position
	e.lastBroadcastTrack = body.TrackID
	e.lastBroadcastPlay = body.Playing
	e.broadcastValid = true
}

func (e *PositionEngine) interpolate() {
	store := e.rt.store
	if store.IsActive() || !store.IsPlaying() || e.rt.offline {
		e.Reconcile()
		return
	}
	store.AdvancePosition(e.rt.cfg.InterpolateInterval)
}
