package core

import (
	"errors"
	"testing"
)

func trackIDs(tracks []Track) []string {
	out := make([]string, 0, len(tracks))
	for _, track := range tracks {
		out = append(out, track.ID)
	}
	return out
}

func sameOrder(a []Track, b []Track) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i].ID != b[i].ID {
			return false
		}
	}
	return true
}

func TestRepeatCycle(t *testing.T) {
	mode := RepeatOff
	expected := []RepeatMode{RepeatAll, RepeatOne, RepeatOff}
	for _, want := range expected {
		mode = mode.Next()
		if mode != want {
			t.Fatalf("expected %s got %s", want, mode)
		}
	}
	if _, ok := ParseRepeatMode("sometimes"); ok {
		t.Fatalf("expected invalid mode")
	}
}

func TestNextRepeatOneRestarts(t *testing.T) {
	store := NewStore("x")
	_ = store.SetQueue(testTracks(), 1)
	store.SetRepeatMode(RepeatOne)
	store.SetPosition(150000)

	if outcome := store.Next(); outcome != NextRestart {
		t.Fatalf("expected restart, got %s", outcome)
	}
	if store.QueueIndex() != 1 || store.PositionMS() != 0 || !store.IsPlaying() {
		t.Fatalf("expected index 1 at 0 playing, got %d %d", store.QueueIndex(), store.PositionMS())
	}
}

func TestEndOfQueueWithRepeatOff(t *testing.T) {
	store := NewStore("x")
	_ = store.SetQueue([]Track{{ID: "A", DurationSeconds: 180}, {ID: "B", DurationSeconds: 200}}, 0)
	store.SetPlaying(true)

	if outcome := store.Next(); outcome != NextAdvance {
		t.Fatalf("expected advance, got %s", outcome)
	}
	if store.QueueIndex() != 1 || store.CurrentTrackID() != "B" || !store.IsPlaying() {
		t.Fatalf("expected B playing at index 1")
	}

	store.SetPosition(200000)
	epoch := store.TrackEpoch()
	if outcome := store.Next(); outcome != NextStop {
		t.Fatalf("expected stop, got %s", outcome)
	}
	if store.IsPlaying() || store.PositionMS() != 0 || store.CurrentTrackID() != "B" {
		t.Fatalf("expected B stopped at 0")
	}
	if store.TrackEpoch() == epoch {
		t.Fatalf("stopping at the end must rewind the track")
	}
}

func TestNextRepeatAllWraps(t *testing.T) {
	store := NewStore("x")
	_ = store.SetQueue(testTracks(), 3)
	store.SetRepeatMode(RepeatAll)
	epoch := store.TrackEpoch()

	if outcome := store.Next(); outcome != NextWrap {
		t.Fatalf("expected wrap, got %s", outcome)
	}
	if store.QueueIndex() != 0 || store.CurrentTrackID() != "a" {
		t.Fatalf("expected first track")
	}
	if store.TrackEpoch() == epoch {
		t.Fatalf("expected epoch bump")
	}
}

func TestNextWithoutTrack(t *testing.T) {
	store := NewStore("x")
	if outcome := store.Next(); outcome != NextNone {
		t.Fatalf("expected none, got %s", outcome)
	}
}

func TestPreviousDoesNotWrap(t *testing.T) {
	store := NewStore("x")
	_ = store.SetQueue(testTracks(), 1)
	if !store.Previous() || store.QueueIndex() != 0 {
		t.Fatalf("expected move to index 0")
	}
	if store.Previous() {
		t.Fatalf("expected no wrap")
	}
	if store.QueueIndex() != 0 {
		t.Fatalf("index moved")
	}
}

func TestShuffleIsReversible(t *testing.T) {
	for seed := uint64(0); seed < 20; seed++ {
		store := NewStore("x")
		_ = store.SetQueue(testTracks(), 2)
		store.SetPosition(30000)

		if !store.ToggleShuffle(seed) {
			t.Fatalf("expected shuffle on")
		}
		session := store.Snapshot()
		if session.Queue[0].ID != "c" || session.QueueIndex != 0 || session.CurrentTrack.ID != "c" {
			t.Fatalf("seed %d: current track not first: %v", seed, trackIDs(session.Queue))
		}
		if !sameOrder(session.OriginalQueue, testTracks()) {
			t.Fatalf("seed %d: original queue not saved", seed)
		}

		if store.ToggleShuffle(seed) {
			t.Fatalf("expected shuffle off")
		}
		session = store.Snapshot()
		if !sameOrder(session.Queue, testTracks()) || session.QueueIndex != 2 {
			t.Fatalf("seed %d: expected original order at index 2, got %v %d", seed, trackIDs(session.Queue), session.QueueIndex)
		}
		if session.PositionMS != 30000 {
			t.Fatalf("seed %d: position lost", seed)
		}
	}
}

func TestShuffleIsDeterministicForSeed(t *testing.T) {
	a := NewStore("x")
	b := NewStore("y")
	_ = a.SetQueue(testTracks(), 0)
	_ = b.SetQueue(testTracks(), 0)
	a.ToggleShuffle(42)
	b.ToggleShuffle(42)
	if !sameOrder(a.Snapshot().Queue, b.Snapshot().Queue) {
		t.Fatalf("expected identical shuffles")
	}
}

func TestSetShuffleConverges(t *testing.T) {
	store := NewStore("x")
	_ = store.SetQueue(testTracks(), 0)
	if !store.SetShuffle(true, 1) {
		t.Fatalf("expected change")
	}
	if store.SetShuffle(true, 1) {
		t.Fatalf("expected no-op for same state")
	}
}

func TestUnshuffleFallsBackToPreviousIndex(t *testing.T) {
	store := NewStore("x")
	_ = store.SetQueue(testTracks(), 0)
	store.ToggleShuffle(3)
	store.session.OriginalQueue = []Track{{ID: "p", DurationSeconds: 10}, {ID: "q", DurationSeconds: 10}}
	if err := store.SetQueueIndex(3); err != nil {
		t.Fatalf("set index: %v", err)
	}

	store.ToggleShuffle(3)
	if store.QueueIndex() != 1 || store.CurrentTrackID() != "q" {
		t.Fatalf("expected clamped fallback index, got %d %s", store.QueueIndex(), store.CurrentTrackID())
	}
}

func TestEnqueueWhileShuffledMirrorsOriginal(t *testing.T) {
	store := NewStore("x")
	_ = store.SetQueue(testTracks(), 0)
	store.ToggleShuffle(9)
	store.Enqueue(Track{ID: "e", DurationSeconds: 10})
	store.EnqueueNext(Track{ID: "f", DurationSeconds: 10})

	session := store.Snapshot()
	if session.Queue[1].ID != "f" || session.Queue[len(session.Queue)-1].ID != "e" {
		t.Fatalf("unexpected shuffled queue %v", trackIDs(session.Queue))
	}
	store.ToggleShuffle(9)
	got := trackIDs(store.Snapshot().Queue)
	want := []string{"a", "f", "b", "c", "d", "e"}
	if len(got) != len(want) {
		t.Fatalf("expected %v got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v got %v", want, got)
		}
	}
}

func TestRemoveAdjustsIndex(t *testing.T) {
	store := NewStore("x")
	_ = store.SetQueue(testTracks(), 2)
	if err := store.Remove(0); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if store.QueueIndex() != 1 || store.CurrentTrackID() != "c" {
		t.Fatalf("expected c at index 1")
	}
	if err := store.Remove(1); err != nil {
		t.Fatalf("remove current: %v", err)
	}
	if store.CurrentTrackID() != "d" {
		t.Fatalf("expected d to replace removed current, got %s", store.CurrentTrackID())
	}
	if err := store.Remove(9); !errors.Is(err, ErrIndexOutOfRange) {
		t.Fatalf("expected out of range")
	}
}

func TestJumpStartsFromTop(t *testing.T) {
	store := NewStore("x")
	_ = store.SetQueue(testTracks(), 0)
	store.SetPosition(1000)
	if err := store.Jump(0); err != nil {
		t.Fatalf("jump: %v", err)
	}
	if store.PositionMS() != 0 || !store.IsPlaying() {
		t.Fatalf("expected restart from 0")
	}
	store.ClearQueue()
	if store.QueueLen() != 0 || store.IsPlaying() {
		t.Fatalf("expected empty queue")
	}
}
