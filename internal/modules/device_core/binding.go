package devicecore

import (
	"github.com/mikey-austin/tandem/internal/ports"
	"go.uber.org/zap"
)

// Binding drives the renderer from the store. Only the active device's
// renderer is ever told to play.
type Binding struct {
	rt *runtime

	active      bool
	playing     bool
	loadedID    string
	loadedEpoch int64
	volume      float64
	volumeSet   bool
}

func newBinding(rt *runtime) *Binding {
	return &Binding{rt: rt}
}

// Sync applies the session to the renderer.
func (b *Binding) Sync() {
	store := b.rt.store
	if !store.IsActive() {
		b.release()
		store.ClearSeekTarget()
		return
	}

	track, ok := store.CurrentTrack()
	if !ok {
		b.pause()
		b.active = true
		b.loadedID = ""
		return
	}

	becameActive := !b.active
	b.active = true
	fresh := false
	if track.ID != b.loadedID || store.TrackEpoch() != b.loadedEpoch {
		media := ports.Media{TrackID: track.ID, URL: track.StreamURL, DurationMS: track.DurationMS()}
		if err := b.rt.renderer.Load(media); err != nil {
			b.rt.log.Warn("renderer load failed", zap.String("track_id", track.ID), zap.Error(err))
		}
		b.loadedID = track.ID
		b.loadedEpoch = store.TrackEpoch()
		b.playing = false
		fresh = true
	}
	b.applyVolume()

	if store.HandoffPending() {
		b.pause()
		return
	}

	now := b.rt.sched.Now()
	if _, pending := store.SeekTarget(); !pending && (becameActive || fresh) && store.PositionMS() > 0 {
		store.SetSeekTarget(store.PositionMS(), now)
	}
	if target, ok := store.ConsumeSeekTarget(); ok {
		if err := b.rt.renderer.Seek(target); err != nil {
			b.rt.log.Warn("renderer seek failed", zap.Int64("position_ms", target), zap.Error(err))
		}
		store.MarkSeek(now)
	}

	if store.IsPlaying() {
		b.play()
	} else {
		b.pause()
	}
}

// Ended records that the renderer stopped at the end of the track.
func (b *Binding) Ended() {
	b.playing = false
}

func (b *Binding) play() {
	if b.playing {
		return
	}
	b.playing = true
	if err := b.rt.renderer.Play(); err != nil {
		b.rt.log.Warn("renderer play failed", zap.Error(err))
	}
}

func (b *Binding) pause() {
	if !b.playing {
		return
	}
	b.playing = false
	if err := b.rt.renderer.Pause(); err != nil {
		b.rt.log.Warn("renderer pause failed", zap.Error(err))
	}
}

func (b *Binding) release() {
	b.pause()
	b.active = false
}

func (b *Binding) applyVolume() {
	volume := b.rt.store.Volume()
	if b.volumeSet && volume == b.volume {
		return
	}
	if err := b.rt.renderer.SetVolume(volume); err != nil {
		b.rt.log.Warn("renderer volume failed", zap.Float64("volume", volume), zap.Error(err))
	}
	b.volume = volume
	b.volumeSet = true
}
