package devicecore

import (
	"github.com/mikey-austin/tandem/internal/core"
	"github.com/mikey-austin/tandem/pkg/tandem"
	"go.uber.org/zap"
)

// trackResolver looks a track up out of band and reports back on the
// device event loop.
type trackResolver interface {
	Resolve(id string, done func(core.Track, error))
}

// Handler merges coordinator messages into the store. Every effect is an
// idempotent merge so that echoes of local changes are harmless.
type Handler struct {
	rt       *runtime
	resolver trackResolver
	lookup   uint64
}

func newHandler(rt *runtime, resolver trackResolver) *Handler {
	return &Handler{rt: rt, resolver: resolver}
}

// Apply handles one inbound message.
func (h *Handler) Apply(env tandem.Envelope) {
	if h.apply(env) {
		h.rt.reconcile()
	}
}

func (h *Handler) apply(env tandem.Envelope) bool {
	store := h.rt.store
	now := h.rt.sched.Now()

	switch env.Type {
	case tandem.TypeSync:
		var body tandem.SyncBody
		if !h.decode(env, &body) {
			return false
		}
		h.applySync(body)
	case tandem.TypePlaybackUpdate:
		var body tandem.PlaybackUpdateBody
		if !h.decode(env, &body) {
			return false
		}
		sync := tandem.SyncBody{PositionMS: &body.PositionMS, Playing: &body.Playing}
		if body.TrackID != "" {
			sync.TrackID = &body.TrackID
		}
		if body.ActiveDeviceID != "" {
			sync.ActiveDeviceID = &body.ActiveDeviceID
		}
		h.applySync(sync)
	case tandem.TypeNext, tandem.TypePrevious:
		var body tandem.StepBody
		if !h.decode(env, &body) {
			return false
		}
		if body.Nonce != "" && h.rt.echoes.consume(env.Type, body.Nonce, now) {
			return false
		}
		if env.Type == tandem.TypeNext {
			store.Next()
		} else {
			store.Previous()
		}
	case tandem.TypeSeek:
		var body tandem.SeekBody
		if !h.decode(env, &body) {
			return false
		}
		if h.rt.echoes.consume(tandem.TypeSeek, seekKey(body.PositionMS), now) {
			return false
		}
		store.SetSeekTarget(body.PositionMS, now)
	case tandem.TypeListUpdate:
		var body tandem.DeviceListBody
		if !h.decode(env, &body) {
			return false
		}
		devices := make([]core.Device, 0, len(body.Devices))
		for _, device := range body.Devices {
			devices = append(devices, core.Device{ID: device.ID, Name: device.Name, IsActive: device.IsActive})
		}
		store.SetDevices(devices, body.ActiveDeviceID)
		if store.ActiveDeviceID() != store.SelfID() && store.HandoffPending() {
			h.rt.endHandoff()
		}
	case tandem.TypeSetActive:
		var body tandem.SetActiveBody
		if !h.decode(env, &body) {
			return false
		}
		h.applySetActive(body)
	case tandem.TypeShuffle:
		var body tandem.ShuffleBody
		if !h.decode(env, &body) {
			return false
		}
		if h.rt.echoes.consume(tandem.TypeShuffle, shuffleKey(body.Shuffle, body.Seed), now) {
			return false
		}
		store.SetShuffle(body.Shuffle, body.Seed)
	case tandem.TypeRepeat:
		var body tandem.RepeatBody
		if !h.decode(env, &body) {
			return false
		}
		mode, ok := core.ParseRepeatMode(body.Mode)
		if !ok {
			h.rt.log.Warn("ignoring unknown repeat mode", zap.String("mode", body.Mode))
			return false
		}
		store.SetRepeatMode(mode)
	case tandem.TypePlay:
		store.SetPlaying(true)
	case tandem.TypePause:
		store.SetPlaying(false)
	case tandem.TypeVolume:
		var body tandem.VolumeBody
		if !h.decode(env, &body) {
			return false
		}
		store.SetVolume(body.Volume)
	case tandem.TypePing:
		_ = h.rt.send(tandem.TypePong, tandem.Empty{})
		return false
	case tandem.TypePong:
		return false
	default:
		h.rt.log.Debug("ignoring message", zap.String("type", env.Type))
		return false
	}
	return true
}

func (h *Handler) decode(env tandem.Envelope, v any) bool {
	if err := env.Decode(v); err != nil {
		h.rt.log.Warn("dropping malformed message", zap.String("type", env.Type), zap.Error(err))
		return false
	}
	return true
}

func (h *Handler) applySetActive(body tandem.SetActiveBody) {
	store := h.rt.store
	self := store.SelfID()
	wasActive := store.ActiveDeviceID() == self || (store.ActiveDeviceID() == "" && store.IsActive())
	previous := store.ActiveDeviceID()

	// Read before the binding releases the renderer.
	livePosition := h.rt.livePosition()
	if err := store.SetActiveDevice(body.DeviceID); err != nil {
		h.rt.log.Warn("ignoring set_active", zap.String("device_id", body.DeviceID), zap.Error(err))
		return
	}

	switch {
	case body.DeviceID == self && previous != self:
		if body.PositionMS != nil {
			h.rt.endHandoff()
			store.SetSeekTarget(*body.PositionMS, h.rt.sched.Now())
			return
		}
		h.rt.beginHandoff()
	case body.DeviceID != self && wasActive && previous != body.DeviceID:
		h.rt.endHandoff()
		store.SetPosition(livePosition)
		update := h.rt.playbackUpdate(store.PositionMS(), store.IsPlaying(), body.DeviceID)
		_ = h.rt.send(tandem.TypePlaybackUpdate, update)
	case body.DeviceID != self:
		h.rt.endHandoff()
	}
}

func (h *Handler) applySync(body tandem.SyncBody) {
	store := h.rt.store
	self := store.SelfID()
	previous := store.ActiveDeviceID()

	if body.ActiveDeviceID != nil && *body.ActiveDeviceID != "" && *body.ActiveDeviceID != previous {
		if err := store.SetActiveDevice(*body.ActiveDeviceID); err != nil {
			h.rt.log.Debug("sync names a device outside the roster", zap.String("device_id", *body.ActiveDeviceID))
		}
	}
	if store.ActiveDeviceID() != self && store.HandoffPending() {
		h.rt.endHandoff()
	}
	justActive := (previous != self && store.ActiveDeviceID() == self) || store.HandoffPending()

	if body.Volume != nil {
		store.SetVolume(*body.Volume)
	}
	if body.Repeat != nil {
		if mode, ok := core.ParseRepeatMode(*body.Repeat); ok {
			store.SetRepeatMode(mode)
		}
	}
	if body.Shuffle != nil {
		var seed uint64
		if body.ShuffleSeed != nil {
			seed = *body.ShuffleSeed
		}
		store.SetShuffle(*body.Shuffle, seed)
	}

	if body.TrackID == nil || *body.TrackID == "" || *body.TrackID == store.CurrentTrackID() {
		h.lookup++
		h.applyPlayback(body, justActive, false)
		return
	}

	id := *body.TrackID
	h.lookup++
	if track, ok := store.FindQueued(id); ok {
		store.SetCurrentTrack(track)
		h.applyPlayback(body, justActive, true)
		return
	}
	if h.resolver == nil {
		h.rt.log.Warn("no catalog to resolve track", zap.String("track_id", id))
		return
	}

	lookup := h.lookup
	h.resolver.Resolve(id, func(track core.Track, err error) {
		if lookup != h.lookup {
			h.rt.log.Debug("discarding superseded track lookup", zap.String("track_id", id))
			return
		}
		if err != nil {
			h.rt.log.Warn("track lookup failed; keeping current track", zap.String("track_id", id), zap.Error(err))
			return
		}
		if track.ID == "" {
			track.ID = id
		}
		h.rt.store.SetCurrentTrack(track)
		h.applyPlayback(body, justActive || h.rt.store.HandoffPending(), true)
		h.rt.reconcile()
	})
}

// applyPlayback merges position and playing. The active device owns its
// position, so it only takes a position on handoff or a track change.
// Passive devices ignore positions that arrive while a seek settles.
func (h *Handler) applyPlayback(body tandem.SyncBody, justActive bool, trackChanged bool) {
	store := h.rt.store
	now := h.rt.sched.Now()

	if body.PositionMS != nil {
		position := *body.PositionMS
		switch {
		case store.IsActive() && (justActive || trackChanged):
			h.rt.endHandoff()
			store.SetSeekTarget(position, now)
		case store.IsActive():
		case !store.LastSeek().IsZero() && now.Sub(store.LastSeek()) < h.rt.cfg.SeekSettle:
			h.rt.log.Debug("ignoring position during seek settle", zap.Int64("position_ms", position))
		default:
			store.SetPosition(position)
		}
	} else if store.IsActive() && justActive {
		h.rt.endHandoff()
		store.SetSeekTarget(store.PositionMS(), now)
	}
	if body.Playing != nil {
		store.SetPlaying(*body.Playing)
	}
}
