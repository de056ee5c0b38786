package core

import (
	"fmt"
	"math/rand/v2"
)

// NextOutcome describes what Next did to the session.
type NextOutcome int

const (
	// NextNone means there was no current track.
	NextNone NextOutcome = iota
	// NextRestart means repeat-one rewound the current track.
	NextRestart
	// NextAdvance means the queue moved to the successor.
	NextAdvance
	// NextWrap means repeat-all wrapped to the first entry.
	NextWrap
	// NextStop means the queue ended and playback stopped at 0.
	NextStop
)

func (o NextOutcome) String() string {
	switch o {
	case NextRestart:
		return "restart"
	case NextAdvance:
		return "advance"
	case NextWrap:
		return "wrap"
	case NextStop:
		return "stop"
	default:
		return "none"
	}
}

// Next applies an explicit next or a track end.
func (s *Store) Next() NextOutcome {
	if s.session.CurrentTrack == nil || len(s.session.Queue) == 0 {
		return NextNone
	}
	defer s.bump()

	if s.session.RepeatMode == RepeatOne {
		s.session.PositionMS = 0
		s.session.IsPlaying = true
		return NextRestart
	}
	if s.session.QueueIndex+1 < len(s.session.Queue) {
		s.moveTo(s.session.QueueIndex + 1)
		return NextAdvance
	}
	if s.session.RepeatMode == RepeatAll {
		s.moveTo(0)
		return NextWrap
	}
	s.session.IsPlaying = false
	s.session.PositionMS = 0
	s.session.SeekTarget = nil
	s.trackEpoch++
	return NextStop
}

// Previous moves to the preceding queue entry. It never wraps.
func (s *Store) Previous() bool {
	if s.session.QueueIndex <= 0 || s.session.QueueIndex >= len(s.session.Queue) {
		return false
	}
	s.moveTo(s.session.QueueIndex - 1)
	s.bump()
	return true
}

func (s *Store) moveTo(index int) {
	s.selectIndex(index)
	s.session.PositionMS = 0
	s.session.SeekTarget = nil
	s.session.IsPlaying = true
	s.trackEpoch++
}

// TrackEpoch increases whenever navigation rewinds a track to the top:
// an advance, a wrap onto the same track, or a stop at the end of the
// queue.
func (s *Store) TrackEpoch() int64 {
	return s.trackEpoch
}

// ToggleShuffle flips shuffle. Devices shuffling with the same seed over
// the same queue produce the same order.
func (s *Store) ToggleShuffle(seed uint64) bool {
	if s.session.Shuffle {
		s.unshuffle()
	} else {
		s.shuffle(seed)
	}
	s.bump()
	return s.session.Shuffle
}

// SetShuffle converges to the requested shuffle state.
func (s *Store) SetShuffle(on bool, seed uint64) bool {
	if s.session.Shuffle == on {
		return false
	}
	s.ToggleShuffle(seed)
	return true
}

func (s *Store) shuffle(seed uint64) {
	s.session.OriginalQueue = cloneTracks(s.session.Queue)
	rest := cloneTracks(s.session.Queue)
	current := s.session.CurrentTrack
	hasCurrent := current != nil && s.session.QueueIndex >= 0 && s.session.QueueIndex < len(rest)
	if hasCurrent {
		rest = append(rest[:s.session.QueueIndex], rest[s.session.QueueIndex+1:]...)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	for i := len(rest) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		rest[i], rest[j] = rest[j], rest[i]
	}

	if hasCurrent {
		rest = append([]Track{*current}, rest...)
	}
	s.session.Queue = rest
	s.session.QueueIndex = 0
	s.session.Shuffle = true
}

func (s *Store) unshuffle() {
	if len(s.session.OriginalQueue) == 0 {
		s.session.Shuffle = false
		return
	}
	previous := s.session.QueueIndex
	s.session.Queue = s.session.OriginalQueue
	s.session.OriginalQueue = nil
	s.session.Shuffle = false

	if s.session.CurrentTrack == nil {
		s.session.QueueIndex = clampIndex(previous, len(s.session.Queue))
		return
	}
	index := FindTrack(s.session.Queue, s.session.CurrentTrack.ID)
	if index < 0 {
		index = clampIndex(previous, len(s.session.Queue))
	}
	s.selectIndex(index)
}

// Enqueue appends tracks to the queue.
func (s *Store) Enqueue(tracks ...Track) {
	if len(tracks) == 0 {
		return
	}
	s.session.Queue = append(s.session.Queue, tracks...)
	if s.session.Shuffle {
		s.session.OriginalQueue = append(s.session.OriginalQueue, tracks...)
	}
	s.bump()
}

// EnqueueNext inserts tracks right after the current entry.
func (s *Store) EnqueueNext(tracks ...Track) {
	if len(tracks) == 0 {
		return
	}
	at := s.session.QueueIndex + 1
	if s.session.CurrentTrack == nil {
		at = len(s.session.Queue)
	}
	s.session.Queue = insertTracks(s.session.Queue, tracks, at)
	if s.session.Shuffle {
		pos := len(s.session.OriginalQueue)
		if s.session.CurrentTrack != nil {
			if i := FindTrack(s.session.OriginalQueue, s.session.CurrentTrack.ID); i >= 0 {
				pos = i + 1
			}
		}
		s.session.OriginalQueue = insertTracks(s.session.OriginalQueue, tracks, pos)
	}
	s.bump()
}

// Remove drops the entry at index. Removing the current entry selects
// the entry that takes its place.
func (s *Store) Remove(index int) error {
	if index < 0 || index >= len(s.session.Queue) {
		return fmt.Errorf("remove index %d of %d: %w", index, len(s.session.Queue), ErrIndexOutOfRange)
	}
	removed := s.session.Queue[index]
	s.session.Queue = append(s.session.Queue[:index], s.session.Queue[index+1:]...)
	if s.session.Shuffle {
		if i := FindTrack(s.session.OriginalQueue, removed.ID); i >= 0 {
			s.session.OriginalQueue = append(s.session.OriginalQueue[:i], s.session.OriginalQueue[i+1:]...)
		}
	}

	switch {
	case len(s.session.Queue) == 0:
		s.session.QueueIndex = 0
		s.ClearCurrentTrack()
		return nil
	case index < s.session.QueueIndex:
		s.session.QueueIndex--
	case index == s.session.QueueIndex && s.session.CurrentTrack != nil:
		s.selectIndex(clampIndex(index, len(s.session.Queue)))
		s.trackEpoch++
	}
	s.bump()
	return nil
}

// Jump starts the entry at index from the top.
func (s *Store) Jump(index int) error {
	if index < 0 || index >= len(s.session.Queue) {
		return fmt.Errorf("jump index %d of %d: %w", index, len(s.session.Queue), ErrIndexOutOfRange)
	}
	s.moveTo(index)
	s.bump()
	return nil
}

// ClearQueue empties the queue and stops playback.
func (s *Store) ClearQueue() {
	_ = s.SetQueue(nil, 0)
}

func insertTracks(tracks []Track, insert []Track, index int) []Track {
	if index < 0 {
		index = 0
	}
	if index > len(tracks) {
		index = len(tracks)
	}
	result := make([]Track, 0, len(tracks)+len(insert))
	result = append(result, tracks[:index]...)
	result = append(result, insert...)
	result = append(result, tracks[index:]...)
	return result
}

func clampIndex(index int, length int) int {
	if index < 0 || length == 0 {
		return 0
	}
	if index >= length {
		return length - 1
	}
	return index
}
