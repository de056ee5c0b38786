package devicecore

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"github.com/mikey-austin/tandem/internal/core"
	"github.com/mikey-austin/tandem/internal/ports"
	"github.com/mikey-austin/tandem/pkg/tandem"
	"go.uber.org/zap"
)

// Dispatcher turns user intents into an optimistic local change followed
// by the matching protocol message.
type Dispatcher struct {
	rt          *runtime
	volumeTimer ports.Timer
	seed        func() uint64
	nonce       func() string
}

func newDispatcher(rt *runtime) *Dispatcher {
	return &Dispatcher{rt: rt, seed: rand.Uint64, nonce: uuid.NewString}
}

// Play resumes playback of the current track.
func (d *Dispatcher) Play() error {
	store := d.rt.store
	if store.CurrentTrackID() == "" {
		return core.ErrNoTrack
	}
	store.SetPlaying(true)
	d.rt.reconcile()
	return d.rt.send(tandem.TypePlay, tandem.PlayBody{TrackID: store.CurrentTrackID(), ActiveDeviceID: d.rt.activeID()})
}

// Pause pauses playback.
func (d *Dispatcher) Pause() error {
	d.rt.store.SetPlaying(false)
	d.rt.reconcile()
	return d.rt.send(tandem.TypePause, tandem.Empty{})
}

// TogglePlay flips between play and pause.
func (d *Dispatcher) TogglePlay() error {
	if d.rt.store.IsPlaying() {
		return d.Pause()
	}
	return d.Play()
}

// Seek moves playback to positionMS.
func (d *Dispatcher) Seek(positionMS int64) error {
	store := d.rt.store
	if store.CurrentTrackID() == "" {
		return core.ErrNoTrack
	}
	store.SetSeekTarget(positionMS, d.rt.sched.Now())
	target, _ := store.SeekTarget()
	d.rt.reconcile()
	d.rt.sendExpectingEcho(tandem.TypeSeek, tandem.SeekBody{PositionMS: target}, seekKey(target))
	return nil
}

// Next skips forward following the repeat mode.
func (d *Dispatcher) Next() error {
	outcome := d.rt.store.Next()
	if outcome == core.NextNone {
		return core.ErrNoTrack
	}
	d.announceNext(outcome, false)
	return nil
}

// TrackEnded handles the renderer reaching the end of the track.
func (d *Dispatcher) TrackEnded() {
	if !d.rt.store.IsActive() {
		return
	}
	outcome := d.rt.store.Next()
	if outcome == core.NextNone {
		return
	}
	d.rt.log.Debug("track ended", zap.String("outcome", outcome.String()))
	d.announceNext(outcome, true)
}

// announceNext broadcasts the result of a local Next. A passive device
// never sends playback:update, since that reports the sender as the
// authoritative renderer.
func (d *Dispatcher) announceNext(outcome core.NextOutcome, ended bool) {
	store := d.rt.store
	now := d.rt.sched.Now()
	active := store.IsActive()

	switch outcome {
	case core.NextRestart:
		store.SetSeekTarget(0, now)
		d.rt.reconcile()
		if ended && active {
			_ = d.rt.send(tandem.TypePlaybackUpdate, d.rt.playbackUpdate(0, true, d.rt.activeID()))
			return
		}
		d.rt.sendExpectingEcho(tandem.TypeSeek, tandem.SeekBody{PositionMS: 0}, seekKey(0))
	case core.NextAdvance, core.NextWrap:
		d.rt.reconcile()
		d.step(tandem.TypeNext)
	case core.NextStop:
		d.rt.reconcile()
		if active {
			_ = d.rt.send(tandem.TypePlaybackUpdate, d.rt.playbackUpdate(0, false, d.rt.activeID()))
			return
		}
		_ = d.rt.send(tandem.TypePause, tandem.Empty{})
		d.rt.sendExpectingEcho(tandem.TypeSeek, tandem.SeekBody{PositionMS: 0}, seekKey(0))
	}
}

// Previous moves to the preceding queue entry, if there is one.
func (d *Dispatcher) Previous() error {
	if !d.rt.store.Previous() {
		return nil
	}
	d.rt.reconcile()
	d.step(tandem.TypePrevious)
	return nil
}

// step sends control:next or control:previous tagged with a fresh nonce.
func (d *Dispatcher) step(msgType string) {
	nonce := d.nonce()
	d.rt.sendExpectingEcho(msgType, tandem.StepBody{Nonce: nonce}, nonce)
}

// SetVolume applies volume locally and sends it once the value settles.
func (d *Dispatcher) SetVolume(volume float64) {
	d.rt.store.SetVolume(volume)
	d.rt.reconcile()
	if d.volumeTimer != nil {
		d.volumeTimer.Stop()
	}
	d.volumeTimer = d.rt.sched.After(d.rt.cfg.VolumeDebounce, func() {
		d.volumeTimer = nil
		_ = d.rt.send(tandem.TypeVolume, tandem.VolumeBody{Volume: d.rt.store.Volume()})
	})
}

// ToggleShuffle flips shuffle and shares the seed used.
func (d *Dispatcher) ToggleShuffle() bool {
	seed := d.seed()
	on := d.rt.store.ToggleShuffle(seed)
	d.rt.reconcile()
	d.rt.sendExpectingEcho(tandem.TypeShuffle, tandem.ShuffleBody{Shuffle: on, Seed: seed}, shuffleKey(on, seed))
	return on
}

// CycleRepeat advances the repeat mode.
func (d *Dispatcher) CycleRepeat() core.RepeatMode {
	mode := d.rt.store.RepeatMode().Next()
	d.rt.store.SetRepeatMode(mode)
	_ = d.rt.send(tandem.TypeRepeat, tandem.RepeatBody{Mode: string(mode)})
	return mode
}

// SetActiveDevice hands the active role to id, carrying the live position.
func (d *Dispatcher) SetActiveDevice(id string) error {
	store := d.rt.store
	if id == store.ActiveDeviceID() {
		return nil
	}
	position := d.rt.livePosition()
	store.SetPosition(position)
	if err := store.SetActiveDevice(id); err != nil {
		return err
	}
	if id == store.SelfID() {
		d.rt.beginHandoff()
	} else {
		d.rt.endHandoff()
	}
	d.rt.reconcile()
	position = store.PositionMS()
	return d.rt.send(tandem.TypeSetActive, tandem.SetActiveBody{DeviceID: id, PositionMS: &position})
}

// Load makes track current and starts it.
func (d *Dispatcher) Load(track core.Track) error {
	if track.ID == "" {
		return fmt.Errorf("load: empty track id: %w", core.ErrTrackNotFound)
	}
	d.rt.store.SetCurrentTrack(track)
	d.rt.store.SetPlaying(true)
	d.rt.reconcile()
	return d.rt.send(tandem.TypeLoad, tandem.LoadBody{TrackID: track.ID})
}

// PlayQueue replaces the queue and starts the entry at index.
func (d *Dispatcher) PlayQueue(tracks []core.Track, index int) error {
	if err := d.rt.store.SetQueue(tracks, index); err != nil {
		return err
	}
	track, ok := d.rt.store.CurrentTrack()
	if !ok {
		return core.ErrNoTrack
	}
	d.rt.store.SetPlaying(true)
	d.rt.reconcile()
	return d.rt.send(tandem.TypeLoad, tandem.LoadBody{TrackID: track.ID})
}

// Enqueue appends tracks locally.
func (d *Dispatcher) Enqueue(tracks ...core.Track) {
	d.rt.store.Enqueue(tracks...)
}

// RequestDevices asks the coordinator for the roster.
func (d *Dispatcher) RequestDevices() error {
	return d.rt.send(tandem.TypeGetList, tandem.Empty{})
}

func (d *Dispatcher) stop() {
	if d.volumeTimer != nil {
		d.volumeTimer.Stop()
		d.volumeTimer = nil
	}
}
