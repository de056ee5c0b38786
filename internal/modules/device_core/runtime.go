package devicecore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/mikey-austin/tandem/internal/core"
	"github.com/mikey-austin/tandem/internal/ports"
	"github.com/mikey-austin/tandem/pkg/tandem"
	"go.uber.org/zap"
)

type sender interface {
	Send(msgType string, body any) error
}

// runtime is the state shared by the components of one device. All of
// its methods run on the device event loop.
type runtime struct {
	log      *zap.Logger
	store    *core.Store
	out      sender
	renderer ports.Renderer
	sched    ports.Scheduler
	cfg      core.SyncConfig
	echoes   *echoLedger

	handoffTimer ports.Timer
	reconcile    func()
	// offline is set while the channel is not open; passive devices
	// freeze their position until the coordinator re-syncs them.
	offline bool
}

func (rt *runtime) send(msgType string, body any) error {
	if err := rt.out.Send(msgType, body); err != nil {
		rt.log.Debug("send dropped", zap.String("type", msgType), zap.Error(err))
		return err
	}
	return nil
}

// sendExpectingEcho sends a command whose broadcast echo must not be
// applied twice. key identifies the echo among messages of the same type.
func (rt *runtime) sendExpectingEcho(msgType string, body any, key string) {
	if err := rt.send(msgType, body); err != nil {
		return
	}
	rt.echoes.expect(msgType, key, rt.sched.Now())
}

func seekKey(positionMS int64) string {
	return strconv.FormatInt(positionMS, 10)
}

func shuffleKey(on bool, seed uint64) string {
	return fmt.Sprintf("%t/%d", on, seed)
}

func (rt *runtime) activeID() string {
	if id := rt.store.ActiveDeviceID(); id != "" {
		return id
	}
	return rt.store.SelfID()
}

func (rt *runtime) livePosition() int64 {
	if rt.store.IsActive() && rt.renderer != nil {
		return rt.renderer.PositionMS()
	}
	return rt.store.PositionMS()
}

func (rt *runtime) playbackUpdate(positionMS int64, playing bool, activeID string) tandem.PlaybackUpdateBody {
	return tandem.PlaybackUpdateBody{
		TrackID:        rt.store.CurrentTrackID(),
		PositionMS:     positionMS,
		Playing:        playing,
		ActiveDeviceID: activeID,
	}
}

// beginHandoff marks this device as the new active device awaiting the
// authoritative position.
func (rt *runtime) beginHandoff() {
	if rt.handoffTimer != nil {
		rt.handoffTimer.Stop()
	}
	rt.store.SetHandoffPending(true)
	rt.handoffTimer = rt.sched.After(rt.cfg.HandoffTimeout, rt.expireHandoff)
}

func (rt *runtime) endHandoff() {
	if rt.handoffTimer != nil {
		rt.handoffTimer.Stop()
		rt.handoffTimer = nil
	}
	rt.store.SetHandoffPending(false)
}

func (rt *runtime) expireHandoff() {
	if !rt.store.HandoffPending() {
		return
	}
	rt.log.Warn("handoff position not received; resuming from local position",
		zap.Int64("position_ms", rt.store.PositionMS()))
	rt.handoffTimer = nil
	rt.store.SetHandoffPending(false)
	if rt.store.IsActive() {
		rt.store.SetSeekTarget(rt.store.PositionMS(), rt.sched.Now())
	}
	rt.reconcile()
}

// echoLedger remembers commands this device sent so that their echo from
// the coordinator is recognised once instead of being re-applied.
type echoLedger struct {
	window  time.Duration
	entries []echoEntry
}

type echoEntry struct {
	msgType string
	key     string
	expires time.Time
}

func newEchoLedger(window time.Duration) *echoLedger {
	return &echoLedger{window: window}
}

func (l *echoLedger) expect(msgType, key string, now time.Time) {
	l.prune(now)
	l.entries = append(l.entries, echoEntry{msgType: msgType, key: key, expires: now.Add(l.window)})
}

func (l *echoLedger) consume(msgType, key string, now time.Time) bool {
	l.prune(now)
	for i, entry := range l.entries {
		if entry.msgType != msgType || entry.key != key {
			continue
		}
		l.entries = append(l.entries[:i], l.entries[i+1:]...)
		return true
	}
	return false
}

func (l *echoLedger) pending() int {
	return len(l.entries)
}

func (l *echoLedger) prune(now time.Time) {
	live := l.entries[:0]
	for _, entry := range l.entries {
		if now.Before(entry.expires) {
			live = append(live, entry)
		}
	}
	l.entries = live
}

func (l *echoLedger) reset() {
	l.entries = nil
}
