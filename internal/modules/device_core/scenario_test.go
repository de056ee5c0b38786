package devicecore

import (
	"reflect"
	"testing"
	"time"

	"github.com/mikey-austin/tandem/internal/core"
	"github.com/mikey-austin/tandem/pkg/tandem"
)

func TestEndOfQueueStopsAndBroadcasts(t *testing.T) {
	h := newHarness(t, "x")
	if err := h.dispatch().PlayQueue([]core.Track{trackA, trackB}, 0); err != nil {
		t.Fatalf("play queue: %v", err)
	}

	h.r.end()
	store := h.store()
	if store.QueueIndex() != 1 || store.CurrentTrackID() != "b" || !store.IsPlaying() {
		t.Fatalf("expected B playing at index 1, got index=%d track=%s playing=%v",
			store.QueueIndex(), store.CurrentTrackID(), store.IsPlaying())
	}
	if h.ch.count(tandem.TypeNext) != 1 {
		t.Fatalf("expected control:next after track end, got %v", h.ch.sentTypes())
	}
	if !h.r.isPlaying() {
		t.Fatalf("expected renderer playing B")
	}

	h.r.end()
	if store.IsPlaying() || store.PositionMS() != 0 || store.QueueIndex() != 1 {
		t.Fatalf("expected stopped at 0 on B, got %+v", store.Snapshot())
	}
	var update tandem.PlaybackUpdateBody
	h.ch.last(t, tandem.TypePlaybackUpdate, &update)
	if update.TrackID != "b" || update.PositionMS != 0 || update.Playing {
		t.Fatalf("unexpected stop broadcast %+v", update)
	}
}

func TestRepeatOneRestartsOnTrackEnd(t *testing.T) {
	h := newHarness(t, "x")
	if err := h.dispatch().PlayQueue([]core.Track{trackA, trackB}, 0); err != nil {
		t.Fatalf("play queue: %v", err)
	}
	h.store().SetRepeatMode(core.RepeatOne)
	h.r.setPosition(179000)
	h.clock.Advance(time.Second)

	h.r.end()
	store := h.store()
	if store.QueueIndex() != 0 || store.PositionMS() != 0 || !store.IsPlaying() {
		t.Fatalf("expected restart at index 0, got %+v", store.Snapshot())
	}
	seeks := h.r.seekCalls()
	if len(seeks) == 0 || seeks[len(seeks)-1] != 0 {
		t.Fatalf("expected renderer rewound to 0, got %v", seeks)
	}
	var update tandem.PlaybackUpdateBody
	h.ch.last(t, tandem.TypePlaybackUpdate, &update)
	if update.TrackID != "a" || update.PositionMS != 0 || !update.Playing {
		t.Fatalf("unexpected restart broadcast %+v", update)
	}
}

func TestHandoffSeeksOnce(t *testing.T) {
	h := newHarness(t, "y")
	h.roster(t, "x", "x", "y")
	h.sync(t, tandem.SyncBody{
		TrackID:        tandem.Ref("t"),
		PositionMS:     tandem.Ref[int64](90000),
		Playing:        tandem.Ref(true),
		ActiveDeviceID: tandem.Ref("x"),
	})
	if h.store().IsActive() {
		t.Fatalf("y should be passive")
	}
	if len(h.r.loads) != 0 {
		t.Fatalf("passive device must not load the renderer")
	}

	if err := h.dispatch().SetActiveDevice("y"); err != nil {
		t.Fatalf("set active: %v", err)
	}
	if !h.store().HandoffPending() {
		t.Fatalf("expected pending handoff")
	}
	if h.r.isPlaying() {
		t.Fatalf("renderer must wait for the handoff position")
	}

	h.ch.deliver(t, tandem.TypeSetActive, tandem.SetActiveBody{DeviceID: "y"})
	handoff := tandem.SyncBody{
		TrackID:        tandem.Ref("t"),
		PositionMS:     tandem.Ref[int64](92000),
		Playing:        tandem.Ref(true),
		ActiveDeviceID: tandem.Ref("y"),
	}
	h.sync(t, handoff)
	h.clock.Advance(500 * time.Millisecond)
	h.sync(t, handoff)
	h.clock.Advance(5 * time.Second)

	seeks := h.r.seekCalls()
	if !reflect.DeepEqual(seeks, []int64{92000}) {
		t.Fatalf("expected exactly one seek to 92000, got %v", seeks)
	}
	if !h.r.isPlaying() {
		t.Fatalf("expected y to be producing audio")
	}
	if h.store().HandoffPending() {
		t.Fatalf("handoff should be complete")
	}
}

func TestHandoffTimeoutFallsBackToLocalPosition(t *testing.T) {
	h := newHarness(t, "y")
	h.roster(t, "x", "x", "y")
	h.sync(t, tandem.SyncBody{
		TrackID:    tandem.Ref("t"),
		PositionMS: tandem.Ref[int64](30000),
		Playing:    tandem.Ref(true),
	})
	h.clock.Advance(time.Second)
	if err := h.dispatch().SetActiveDevice("y"); err != nil {
		t.Fatalf("set active: %v", err)
	}

	h.clock.Advance(2 * time.Second)
	if h.store().HandoffPending() {
		t.Fatalf("handoff should have expired")
	}
	seeks := h.r.seekCalls()
	if !reflect.DeepEqual(seeks, []int64{31000}) {
		t.Fatalf("expected a single seek to the interpolated position, got %v", seeks)
	}
}

func TestStaleUpdateDoesNotOverrideSeek(t *testing.T) {
	h := newHarness(t, "y")
	h.roster(t, "x", "x", "y")
	h.sync(t, tandem.SyncBody{
		TrackID:    tandem.Ref("t"),
		PositionMS: tandem.Ref[int64](4000),
		Playing:    tandem.Ref(true),
	})

	h.ch.deliver(t, tandem.TypeSeek, tandem.SeekBody{PositionMS: 5000})
	h.ch.deliver(t, tandem.TypePlaybackUpdate, tandem.PlaybackUpdateBody{TrackID: "t", PositionMS: 4800, Playing: true, ActiveDeviceID: "x"})
	if got := h.store().PositionMS(); got != 5000 {
		t.Fatalf("expected seek to win, got %d", got)
	}

	h.clock.Advance(1500 * time.Millisecond)
	h.ch.deliver(t, tandem.TypePlaybackUpdate, tandem.PlaybackUpdateBody{TrackID: "t", PositionMS: 6600, Playing: true, ActiveDeviceID: "x"})
	if got := h.store().PositionMS(); got != 6600 {
		t.Fatalf("expected fresh update after settle, got %d", got)
	}
}

func TestStaleUpdateDoesNotOverrideSeekOnActive(t *testing.T) {
	h := newHarness(t, "x")
	h.roster(t, "x", "x", "y")
	if err := h.dispatch().PlayQueue([]core.Track{trackT}, 0); err != nil {
		t.Fatalf("play queue: %v", err)
	}

	h.ch.deliver(t, tandem.TypeSeek, tandem.SeekBody{PositionMS: 5000})
	h.ch.deliver(t, tandem.TypePlaybackUpdate, tandem.PlaybackUpdateBody{TrackID: "t", PositionMS: 4800, Playing: true, ActiveDeviceID: "x"})
	if got := h.store().PositionMS(); got != 5000 {
		t.Fatalf("expected seek to win, got %d", got)
	}
	if seeks := h.r.seekCalls(); !reflect.DeepEqual(seeks, []int64{5000}) {
		t.Fatalf("expected one renderer seek, got %v", seeks)
	}
}

func TestSyncIsIdempotent(t *testing.T) {
	body := tandem.SyncBody{
		TrackID:        tandem.Ref("t"),
		PositionMS:     tandem.Ref[int64](42000),
		Playing:        tandem.Ref(true),
		Volume:         tandem.Ref(0.4),
		ActiveDeviceID: tandem.Ref("x"),
		Repeat:         tandem.Ref("all"),
	}
	for _, self := range []string{"x", "y"} {
		h := newHarness(t, self)
		h.roster(t, "x", "x", "y")
		h.sync(t, body)
		once := h.store().Snapshot()
		loads := len(h.r.loads)
		seeks := len(h.r.seekCalls())

		h.sync(t, body)
		if twice := h.store().Snapshot(); !reflect.DeepEqual(once, twice) {
			t.Fatalf("%s: sync not idempotent:\n%+v\n%+v", self, once, twice)
		}
		if len(h.r.loads) != loads || len(h.r.seekCalls()) != seeks {
			t.Fatalf("%s: repeated sync touched the renderer", self)
		}
	}
}

func TestReplayAfterQueueEndStartsFromTop(t *testing.T) {
	h := newHarness(t, "x")
	if err := h.dispatch().PlayQueue([]core.Track{trackA, trackB}, 0); err != nil {
		t.Fatalf("play queue: %v", err)
	}
	h.r.end()
	h.r.setPosition(trackB.DurationMS())
	h.r.end()
	if got := len(h.r.loads); got != 3 || h.r.loads[2].TrackID != "b" {
		t.Fatalf("expected B reloaded after the stop, loads=%v", h.r.loads)
	}
	if h.r.PositionMS() != 0 || h.r.isPlaying() {
		t.Fatalf("expected renderer rewound and paused, position=%d", h.r.PositionMS())
	}

	plays := h.r.plays
	if err := h.dispatch().Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	if !h.r.isPlaying() || h.r.plays != plays+1 {
		t.Fatalf("expected the renderer to play again")
	}
	if h.r.PositionMS() != 0 || len(h.r.seekCalls()) != 0 {
		t.Fatalf("expected replay from 0, position=%d seeks=%v", h.r.PositionMS(), h.r.seekCalls())
	}
	if store := h.store(); store.PositionMS() != 0 || !store.IsPlaying() {
		t.Fatalf("unexpected session after replay %+v", store.Snapshot())
	}
}
