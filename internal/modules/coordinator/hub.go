package coordinator

import (
	"sort"
	"sync"
	"time"

	"github.com/mikey-austin/tandem/internal/ports"
	"github.com/mikey-austin/tandem/pkg/tandem"
	"go.uber.org/zap"
)

// Outlet delivers one envelope to one device.
type Outlet func(env tandem.Envelope) error

// Hub relays and merges playback state between the devices of each
// account. It is transport-agnostic; fronts call Join, Leave and Handle.
type Hub struct {
	log            *zap.Logger
	sched          ports.Scheduler
	handoffTimeout time.Duration

	mu       sync.Mutex
	seq      uint64
	accounts map[string]*room
}

type member struct {
	id   string
	name string
	gen  uint64
	out  Outlet
}

type room struct {
	account string
	members map[string]*member
	active  string
	snap    snapshot
	handoff *handoff
}

type handoff struct {
	from  string
	to    string
	timer ports.Timer
}

// snapshot is the merged playback state of an account.
type snapshot struct {
	trackID     string
	positionMS  int64
	playing     bool
	updatedAt   time.Time
	volume      float64
	volumeKnown bool
	shuffle     bool
	seed        uint64
	repeat      string
}

// NewHub creates a hub. Timer callbacks take the hub lock themselves, so
// sched must not post into a loop that already holds it.
func NewHub(log *zap.Logger, sched ports.Scheduler, handoffTimeout time.Duration) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	if handoffTimeout <= 0 {
		handoffTimeout = 2 * time.Second
	}
	return &Hub{log: log, sched: sched, handoffTimeout: handoffTimeout, accounts: make(map[string]*room)}
}

// Join registers a device connection and returns its generation, which
// Leave uses to ignore a connection already superseded by a reconnect.
func (h *Hub) Join(account, deviceID, name string, out Outlet) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.room(account)
	h.seq++
	if name == "" {
		name = deviceID
	}
	_, rejoin := r.members[deviceID]
	r.members[deviceID] = &member{id: deviceID, name: name, gen: h.seq, out: out}
	if r.active == "" {
		r.active = deviceID
	}
	h.log.Info("device joined", zap.String("account", account), zap.String("device", deviceID), zap.Bool("rejoin", rejoin))

	// The roster goes first so the joiner knows it is passive before the
	// snapshot tells it what is playing.
	h.broadcast(r, tandem.TypeListUpdate, h.roster(r))
	h.sendTo(r, deviceID, tandem.TypeSync, h.fullSync(r))
	return h.seq
}

// Leave removes a device. A gen of 0 removes whatever connection is
// registered.
func (h *Hub) Leave(account, deviceID string, gen uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.accounts[account]
	if !ok {
		return
	}
	m, ok := r.members[deviceID]
	if !ok || (gen != 0 && m.gen != gen) {
		return
	}
	delete(r.members, deviceID)
	h.log.Info("device left", zap.String("account", account), zap.String("device", deviceID))

	if r.handoff != nil && (r.handoff.from == deviceID || r.handoff.to == deviceID) {
		h.finishHandoff(r, false)
	}
	if r.active == deviceID {
		h.freeze(r)
		r.active = lowestID(r.members)
		r.snap.playing = false
		if r.active != "" {
			h.broadcast(r, tandem.TypeSync, tandem.SyncBody{
				Playing:        tandem.Ref(false),
				PositionMS:     tandem.Ref(r.snap.positionMS),
				ActiveDeviceID: tandem.Ref(r.active),
			})
		}
	}
	h.broadcast(r, tandem.TypeListUpdate, h.roster(r))
}

// Connected reports whether deviceID currently has a connection.
func (h *Hub) Connected(account, deviceID string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.accounts[account]
	if !ok {
		return false
	}
	_, ok = r.members[deviceID]
	return ok
}

// Handle processes one message from a joined device.
func (h *Hub) Handle(account, from string, env tandem.Envelope) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.accounts[account]
	if !ok || r.members[from] == nil {
		h.log.Warn("message from unknown device", zap.String("account", account), zap.String("device", from), zap.String("type", env.Type))
		return
	}

	switch env.Type {
	case tandem.TypePlaybackUpdate:
		var body tandem.PlaybackUpdateBody
		if h.decode(env, &body) {
			h.playbackUpdate(r, from, body)
		}
	case tandem.TypePlay:
		var body tandem.PlayBody
		if !h.decode(env, &body) {
			return
		}
		h.freeze(r)
		if body.TrackID != "" && body.TrackID != r.snap.trackID {
			r.snap.trackID = body.TrackID
			r.snap.positionMS = 0
		}
		r.snap.playing = true
		if r.active == "" || r.members[r.active] == nil {
			h.claimActive(r, body.ActiveDeviceID, from)
		}
		sync := tandem.SyncBody{Playing: tandem.Ref(true), ActiveDeviceID: tandem.Ref(r.active)}
		if r.snap.trackID != "" {
			sync.TrackID = tandem.Ref(r.snap.trackID)
		}
		h.broadcast(r, tandem.TypeSync, sync)
	case tandem.TypePause:
		h.freeze(r)
		r.snap.playing = false
		h.broadcast(r, tandem.TypeSync, tandem.SyncBody{Playing: tandem.Ref(false)})
	case tandem.TypeVolume:
		var body tandem.VolumeBody
		if !h.decode(env, &body) {
			return
		}
		r.snap.volume = body.Volume
		r.snap.volumeKnown = true
		h.broadcast(r, tandem.TypeSync, tandem.SyncBody{Volume: tandem.Ref(body.Volume)})
	case tandem.TypeLoad:
		var body tandem.LoadBody
		if !h.decode(env, &body) || body.TrackID == "" {
			return
		}
		r.snap.trackID = body.TrackID
		r.snap.positionMS = 0
		r.snap.playing = true
		r.snap.updatedAt = h.sched.Now()
		if r.active == "" || r.members[r.active] == nil {
			h.claimActive(r, "", from)
		}
		h.broadcast(r, tandem.TypeSync, tandem.SyncBody{
			TrackID:        tandem.Ref(body.TrackID),
			PositionMS:     tandem.Ref(int64(0)),
			Playing:        tandem.Ref(true),
			ActiveDeviceID: tandem.Ref(r.active),
		})
	case tandem.TypeSeek:
		var body tandem.SeekBody
		if !h.decode(env, &body) {
			return
		}
		r.snap.positionMS = body.PositionMS
		r.snap.updatedAt = h.sched.Now()
		h.relay(r, env)
	case tandem.TypeNext, tandem.TypePrevious:
		h.relay(r, env)
	case tandem.TypeShuffle:
		var body tandem.ShuffleBody
		if !h.decode(env, &body) {
			return
		}
		r.snap.shuffle = body.Shuffle
		r.snap.seed = body.Seed
		h.relay(r, env)
	case tandem.TypeRepeat:
		var body tandem.RepeatBody
		if !h.decode(env, &body) {
			return
		}
		r.snap.repeat = body.Mode
		h.relay(r, env)
	case tandem.TypeSetActive:
		var body tandem.SetActiveBody
		if h.decode(env, &body) {
			h.setActive(r, from, body)
		}
	case tandem.TypeGetList:
		h.sendTo(r, from, tandem.TypeListUpdate, h.roster(r))
		h.sendTo(r, from, tandem.TypeSync, h.fullSync(r))
	case tandem.TypePing:
		h.sendTo(r, from, tandem.TypePong, tandem.Empty{})
	case tandem.TypePong:
	default:
		h.log.Warn("ignoring message", zap.String("device", from), zap.String("type", env.Type))
	}
}

func (h *Hub) playbackUpdate(r *room, from string, body tandem.PlaybackUpdateBody) {
	if ho := r.handoff; ho != nil && from == ho.from && body.ActiveDeviceID == ho.to {
		h.applyUpdate(r, body)
		h.finishHandoff(r, true)
		return
	}
	if body.ActiveDeviceID != "" && body.ActiveDeviceID != from {
		h.log.Debug("dropping stale playback update", zap.String("device", from), zap.String("active", body.ActiveDeviceID))
		return
	}
	if r.handoff != nil && from == r.handoff.to {
		h.finishHandoff(r, false)
	}

	h.applyUpdate(r, body)
	if r.active != from {
		r.active = from
		h.broadcast(r, tandem.TypeListUpdate, h.roster(r))
	}
	sync := tandem.SyncBody{
		PositionMS:     tandem.Ref(r.snap.positionMS),
		Playing:        tandem.Ref(r.snap.playing),
		ActiveDeviceID: tandem.Ref(r.active),
	}
	if r.snap.trackID != "" {
		sync.TrackID = tandem.Ref(r.snap.trackID)
	}
	h.broadcast(r, tandem.TypeSync, sync)
}

func (h *Hub) applyUpdate(r *room, body tandem.PlaybackUpdateBody) {
	if body.TrackID != "" {
		r.snap.trackID = body.TrackID
	}
	r.snap.positionMS = body.PositionMS
	r.snap.playing = body.Playing
	r.snap.updatedAt = h.sched.Now()
}

func (h *Hub) setActive(r *room, from string, body tandem.SetActiveBody) {
	target := body.DeviceID
	if r.members[target] == nil {
		h.log.Warn("set_active for unknown device", zap.String("device", from), zap.String("target", target))
		return
	}
	previous := r.active
	if target == previous {
		h.broadcast(r, tandem.TypeListUpdate, h.roster(r))
		return
	}
	if r.handoff != nil {
		h.finishHandoff(r, false)
	}
	r.active = target

	relay := tandem.SetActiveBody{DeviceID: target}
	authoritative := from == previous && body.PositionMS != nil
	if authoritative {
		relay.PositionMS = body.PositionMS
	}
	h.broadcast(r, tandem.TypeSetActive, relay)
	h.broadcast(r, tandem.TypeListUpdate, h.roster(r))

	switch {
	case authoritative:
		r.snap.positionMS = *body.PositionMS
		r.snap.updatedAt = h.sched.Now()
		h.broadcast(r, tandem.TypeSync, h.fullSync(r))
	case previous != "" && r.members[previous] != nil:
		ho := &handoff{from: previous, to: target}
		ho.timer = h.sched.After(h.handoffTimeout, func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if r.handoff != ho {
				return
			}
			h.log.Warn("handoff timed out; using extrapolated position", zap.String("account", r.account), zap.String("from", ho.from), zap.String("to", ho.to))
			h.finishHandoff(r, true)
		})
		r.handoff = ho
	default:
		h.broadcast(r, tandem.TypeSync, h.fullSync(r))
	}
}

// finishHandoff clears a pending handoff, optionally broadcasting the
// position the new active device should start from.
func (h *Hub) finishHandoff(r *room, announce bool) {
	ho := r.handoff
	if ho == nil {
		return
	}
	r.handoff = nil
	if ho.timer != nil {
		ho.timer.Stop()
	}
	if announce {
		h.broadcast(r, tandem.TypeSync, h.fullSync(r))
	}
}

func (h *Hub) claimActive(r *room, requested, from string) {
	if requested != "" && r.members[requested] != nil {
		r.active = requested
	} else {
		r.active = from
	}
	h.broadcast(r, tandem.TypeListUpdate, h.roster(r))
}

// freeze folds elapsed playing time into the stored position.
func (h *Hub) freeze(r *room) {
	r.snap.positionMS = h.position(r)
	r.snap.updatedAt = h.sched.Now()
}

func (h *Hub) position(r *room) int64 {
	if !r.snap.playing || r.snap.updatedAt.IsZero() {
		return r.snap.positionMS
	}
	elapsed := h.sched.Now().Sub(r.snap.updatedAt)
	if elapsed < 0 {
		elapsed = 0
	}
	return r.snap.positionMS + elapsed.Milliseconds()
}

func (h *Hub) fullSync(r *room) tandem.SyncBody {
	body := tandem.SyncBody{
		PositionMS: tandem.Ref(h.position(r)),
		Playing:    tandem.Ref(r.snap.playing),
		Shuffle:    tandem.Ref(r.snap.shuffle),
	}
	if r.snap.trackID != "" {
		body.TrackID = tandem.Ref(r.snap.trackID)
	}
	if r.active != "" {
		body.ActiveDeviceID = tandem.Ref(r.active)
	}
	if r.snap.volumeKnown {
		body.Volume = tandem.Ref(r.snap.volume)
	}
	if r.snap.shuffle {
		body.ShuffleSeed = tandem.Ref(r.snap.seed)
	}
	if r.snap.repeat != "" {
		body.Repeat = tandem.Ref(r.snap.repeat)
	}
	return body
}

func (h *Hub) roster(r *room) tandem.DeviceListBody {
	ids := make([]string, 0, len(r.members))
	for id := range r.members {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	devices := make([]tandem.DeviceInfo, 0, len(ids))
	for _, id := range ids {
		devices = append(devices, tandem.DeviceInfo{ID: id, Name: r.members[id].name, IsActive: id == r.active})
	}
	return tandem.DeviceListBody{Devices: devices, ActiveDeviceID: r.active}
}

func (h *Hub) room(account string) *room {
	r, ok := h.accounts[account]
	if !ok {
		r = &room{account: account, members: make(map[string]*member)}
		h.accounts[account] = r
	}
	return r
}

func (h *Hub) decode(env tandem.Envelope, v any) bool {
	if err := env.Decode(v); err != nil {
		h.log.Warn("dropping malformed message", zap.String("type", env.Type), zap.Error(err))
		return false
	}
	return true
}

func (h *Hub) relay(r *room, env tandem.Envelope) {
	for _, m := range r.members {
		h.deliver(m, env)
	}
}

func (h *Hub) broadcast(r *room, msgType string, body any) {
	env, err := tandem.NewEnvelope(msgType, body)
	if err != nil {
		h.log.Error("encode broadcast", zap.String("type", msgType), zap.Error(err))
		return
	}
	h.relay(r, env)
}

func (h *Hub) sendTo(r *room, deviceID string, msgType string, body any) {
	m := r.members[deviceID]
	if m == nil {
		return
	}
	env, err := tandem.NewEnvelope(msgType, body)
	if err != nil {
		h.log.Error("encode reply", zap.String("type", msgType), zap.Error(err))
		return
	}
	h.deliver(m, env)
}

func (h *Hub) deliver(m *member, env tandem.Envelope) {
	if err := m.out(env); err != nil {
		h.log.Warn("deliver failed", zap.String("device", m.id), zap.String("type", env.Type), zap.Error(err))
	}
}

func lowestID(members map[string]*member) string {
	lowest := ""
	for id := range members {
		if lowest == "" || id < lowest {
			lowest = id
		}
	}
	return lowest
}
