package renderersim

import (
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/mikey-austin/tandem/internal/ports"
	"go.uber.org/zap"
)

// Renderer is a silent renderer that advances position on the scheduler's
// clock and reports end of track when the duration elapses.
type Renderer struct {
	log   *zap.Logger
	sched ports.Scheduler

	mu        sync.Mutex
	media     ports.Media
	loaded    bool
	playing   bool
	base      int64
	startedAt time.Time
	volume    float64
	endTimer  ports.Timer
	endGen    uint64
	onEnded   func()
}

// New creates a simulated renderer. Scheduler callbacks must not be posted
// to a loop that calls into the renderer synchronously.
func New(log *zap.Logger, sched ports.Scheduler) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Renderer{log: log, sched: sched, volume: 1}
}

// Load replaces the current media, stopped at position zero.
func (r *Renderer) Load(media ports.Media) error {
	if strings.TrimSpace(media.TrackID) == "" {
		return errors.New("track id required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.stopTimerLocked()
	r.media = media
	r.loaded = true
	r.playing = false
	r.base = 0
	r.log.Debug("load", zap.String("track_id", media.TrackID), zap.Int64("duration_ms", media.DurationMS))
	return nil
}

// Play starts the virtual playhead.
func (r *Renderer) Play() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		return errors.New("no media loaded")
	}
	if r.playing {
		return nil
	}
	r.playing = true
	r.startedAt = r.sched.Now()
	r.armLocked()
	r.log.Debug("play", zap.String("track_id", r.media.TrackID), zap.Int64("position_ms", r.base))
	return nil
}

// Pause freezes the virtual playhead.
func (r *Renderer) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.playing {
		return nil
	}
	r.base = r.positionLocked()
	r.playing = false
	r.stopTimerLocked()
	r.log.Debug("pause", zap.Int64("position_ms", r.base))
	return nil
}

// Seek moves the playhead, clamped to the media duration.
func (r *Renderer) Seek(positionMS int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.base = r.clampLocked(positionMS)
	r.startedAt = r.sched.Now()
	if r.playing {
		r.armLocked()
	}
	r.log.Debug("seek", zap.Int64("position_ms", r.base))
	return nil
}

// SetVolume records the volume (0..1).
func (r *Renderer) SetVolume(volume float64) error {
	if volume < 0 || volume > 1 {
		return errors.New("volume out of range")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volume = volume
	return nil
}

// Volume returns the last volume set.
func (r *Renderer) Volume() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.volume
}

// Playing reports whether the playhead is moving.
func (r *Renderer) Playing() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing
}

// PositionMS returns the virtual position.
func (r *Renderer) PositionMS() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.positionLocked()
}

// OnEnded registers fn to run when the playhead reaches the duration.
func (r *Renderer) OnEnded(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEnded = fn
}

func (r *Renderer) positionLocked() int64 {
	if !r.playing {
		return r.base
	}
	elapsed := r.sched.Now().Sub(r.startedAt).Milliseconds()
	return r.clampLocked(r.base + elapsed)
}

func (r *Renderer) clampLocked(positionMS int64) int64 {
	if positionMS < 0 {
		return 0
	}
	if r.media.DurationMS > 0 && positionMS > r.media.DurationMS {
		return r.media.DurationMS
	}
	return positionMS
}

func (r *Renderer) armLocked() {
	r.stopTimerLocked()
	if r.media.DurationMS <= 0 {
		return
	}
	remaining := time.Duration(r.media.DurationMS-r.base) * time.Millisecond
	r.endGen++
	gen := r.endGen
	r.endTimer = r.sched.After(remaining, func() { r.finish(gen) })
}

func (r *Renderer) stopTimerLocked() {
	if r.endTimer != nil {
		r.endTimer.Stop()
		r.endTimer = nil
	}
	r.endGen++
}

func (r *Renderer) finish(gen uint64) {
	r.mu.Lock()
	if gen != r.endGen || !r.playing {
		r.mu.Unlock()
		return
	}
	r.endTimer = nil
	r.base = r.media.DurationMS
	r.playing = false
	fn := r.onEnded
	r.log.Debug("ended", zap.String("track_id", r.media.TrackID))
	r.mu.Unlock()

	if fn != nil {
		fn()
	}
}
