package core

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// Store owns the playback session of one device. Every mutation goes
// through a setter so the session invariants hold after each call.
// A Store is not safe for concurrent use; the device event loop owns it.
type Store struct {
	selfID         string
	session        Session
	lastSeek       time.Time
	handoffPending bool
	trackEpoch     int64
	version        int64
}

// NewStore creates an empty session for the device selfID.
func NewStore(selfID string) *Store {
	s := &Store{selfID: selfID}
	s.session = emptySession()
	return s
}

func emptySession() Session {
	return Session{Volume: 1.0, RepeatMode: RepeatOff}
}

// SelfID returns this device's id.
func (s *Store) SelfID() string {
	return s.selfID
}

// Snapshot returns a deep copy of the session.
func (s *Store) Snapshot() Session {
	out := s.session
	if s.session.CurrentTrack != nil {
		track := *s.session.CurrentTrack
		out.CurrentTrack = &track
	}
	if s.session.SeekTarget != nil {
		target := *s.session.SeekTarget
		out.SeekTarget = &target
	}
	out.Queue = cloneTracks(s.session.Queue)
	out.OriginalQueue = cloneTracks(s.session.OriginalQueue)
	out.Devices = cloneDevices(s.session.Devices)
	return out
}

// Version increases on every mutation.
func (s *Store) Version() int64 {
	return s.version
}

// IsActive reports whether this device should produce audio. With fewer
// than two connected devices the device is implicitly active unless
// another device has been named active.
func (s *Store) IsActive() bool {
	if s.session.ActiveDeviceID == s.selfID {
		return true
	}
	return len(s.session.Devices) < 2 && s.session.ActiveDeviceID == ""
}

// ActiveDeviceID returns the id of the active device, if known.
func (s *Store) ActiveDeviceID() string {
	return s.session.ActiveDeviceID
}

// CurrentTrack returns a copy of the current track.
func (s *Store) CurrentTrack() (Track, bool) {
	if s.session.CurrentTrack == nil {
		return Track{}, false
	}
	return *s.session.CurrentTrack, true
}

// CurrentTrackID returns the current track id or "".
func (s *Store) CurrentTrackID() string {
	if s.session.CurrentTrack == nil {
		return ""
	}
	return s.session.CurrentTrack.ID
}

// IsPlaying reports the playing flag.
func (s *Store) IsPlaying() bool {
	return s.session.IsPlaying
}

// PositionMS returns the cached position.
func (s *Store) PositionMS() int64 {
	return s.session.PositionMS
}

// RepeatMode returns the repeat mode.
func (s *Store) RepeatMode() RepeatMode {
	return s.session.RepeatMode
}

// Shuffle reports whether the queue is shuffled.
func (s *Store) Shuffle() bool {
	return s.session.Shuffle
}

// Volume returns the volume in [0, 1].
func (s *Store) Volume() float64 {
	return s.session.Volume
}

// FindQueued returns a queued or pre-shuffle track by id.
func (s *Store) FindQueued(id string) (Track, bool) {
	if i := FindTrack(s.session.Queue, id); i >= 0 {
		return s.session.Queue[i], true
	}
	if i := FindTrack(s.session.OriginalQueue, id); i >= 0 {
		return s.session.OriginalQueue[i], true
	}
	return Track{}, false
}

// SetCurrentTrack makes track current. A queued track moves the queue
// index onto it; any other track replaces the queue. Changing track
// resets the position and cancels a pending seek.
func (s *Store) SetCurrentTrack(track Track) {
	if i := FindTrack(s.session.Queue, track.ID); i >= 0 {
		s.session.Queue[i] = track
		s.selectIndex(i)
		s.bump()
		return
	}
	s.session.Queue = []Track{track}
	if s.session.Shuffle {
		s.session.OriginalQueue = []Track{track}
	}
	s.selectIndex(0)
	s.bump()
}

// ClearCurrentTrack drops the current track and stops playback.
func (s *Store) ClearCurrentTrack() {
	s.session.CurrentTrack = nil
	s.session.IsPlaying = false
	s.session.PositionMS = 0
	s.session.SeekTarget = nil
	s.bump()
}

// SetQueue replaces the queue and selects index. Shuffle is turned off.
func (s *Store) SetQueue(tracks []Track, index int) error {
	if len(tracks) == 0 {
		s.session.Queue = nil
		s.session.OriginalQueue = nil
		s.session.Shuffle = false
		s.session.QueueIndex = 0
		s.ClearCurrentTrack()
		return nil
	}
	if index < 0 || index >= len(tracks) {
		return fmt.Errorf("queue index %d of %d: %w", index, len(tracks), ErrIndexOutOfRange)
	}
	s.session.Queue = cloneTracks(tracks)
	s.session.OriginalQueue = nil
	s.session.Shuffle = false
	s.selectIndex(index)
	s.bump()
	return nil
}

// SetQueueIndex jumps to a queue position.
func (s *Store) SetQueueIndex(index int) error {
	if index < 0 || index >= len(s.session.Queue) {
		return fmt.Errorf("queue index %d of %d: %w", index, len(s.session.Queue), ErrIndexOutOfRange)
	}
	s.selectIndex(index)
	s.bump()
	return nil
}

// QueueLen returns the queue length.
func (s *Store) QueueLen() int {
	return len(s.session.Queue)
}

// QueueIndex returns the queue index.
func (s *Store) QueueIndex() int {
	return s.session.QueueIndex
}

func (s *Store) selectIndex(index int) {
	next := s.session.Queue[index]
	changed := s.session.CurrentTrack == nil || s.session.CurrentTrack.ID != next.ID
	s.session.QueueIndex = index
	s.session.CurrentTrack = &next
	if changed {
		s.session.PositionMS = 0
		s.session.SeekTarget = nil
	} else {
		s.session.PositionMS = clampPosition(s.session.PositionMS, next.DurationMS())
	}
}

// SetPlaying sets the playing flag.
func (s *Store) SetPlaying(playing bool) {
	if s.session.IsPlaying == playing {
		return
	}
	s.session.IsPlaying = playing
	s.bump()
}

// SetPosition stores a position clamped to the current track.
func (s *Store) SetPosition(positionMS int64) {
	clamped := s.clamp(positionMS)
	if clamped == s.session.PositionMS {
		return
	}
	s.session.PositionMS = clamped
	s.bump()
}

// AdvancePosition moves the position forward by delta, clamped.
func (s *Store) AdvancePosition(delta time.Duration) {
	s.SetPosition(s.session.PositionMS + delta.Milliseconds())
}

func (s *Store) clamp(positionMS int64) int64 {
	if s.session.CurrentTrack == nil {
		return 0
	}
	return clampPosition(positionMS, s.session.DurationMS())
}

// clampPosition bounds a position to [0, durationMS]. An unknown (zero)
// duration only bounds it from below.
func clampPosition(positionMS int64, durationMS int64) int64 {
	if positionMS < 0 {
		return 0
	}
	if durationMS > 0 && positionMS > durationMS {
		return durationMS
	}
	return positionMS
}

// SetVolume stores a volume clamped to [0, 1].
func (s *Store) SetVolume(volume float64) {
	if math.IsNaN(volume) {
		return
	}
	volume = math.Max(0, math.Min(1, volume))
	if volume == s.session.Volume {
		return
	}
	s.session.Volume = volume
	s.bump()
}

// SetRepeatMode sets the repeat mode.
func (s *Store) SetRepeatMode(mode RepeatMode) {
	if _, ok := ParseRepeatMode(string(mode)); !ok {
		mode = RepeatOff
	}
	if s.session.RepeatMode == mode {
		return
	}
	s.session.RepeatMode = mode
	s.bump()
}

// SetSeekTarget records a one-shot seek and moves the cached position.
func (s *Store) SetSeekTarget(positionMS int64, now time.Time) {
	clamped := s.clamp(positionMS)
	s.session.PositionMS = clamped
	s.session.SeekTarget = &clamped
	s.lastSeek = now
	s.bump()
}

// SeekTarget returns the pending seek, if any.
func (s *Store) SeekTarget() (int64, bool) {
	if s.session.SeekTarget == nil {
		return 0, false
	}
	return *s.session.SeekTarget, true
}

// ConsumeSeekTarget returns and clears the pending seek.
func (s *Store) ConsumeSeekTarget() (int64, bool) {
	target, ok := s.SeekTarget()
	if ok {
		s.session.SeekTarget = nil
		s.bump()
	}
	return target, ok
}

// ClearSeekTarget drops a pending seek without consuming it.
func (s *Store) ClearSeekTarget() {
	if s.session.SeekTarget == nil {
		return
	}
	s.session.SeekTarget = nil
	s.bump()
}

// MarkSeek records the time a seek hit the renderer.
func (s *Store) MarkSeek(now time.Time) {
	s.lastSeek = now
}

// LastSeek returns the time of the most recent seek.
func (s *Store) LastSeek() time.Time {
	return s.lastSeek
}

// SetHandoffPending flags that this device has just been handed the
// active role and must take the next authoritative position.
func (s *Store) SetHandoffPending(pending bool) {
	if s.handoffPending == pending {
		return
	}
	s.handoffPending = pending
	s.bump()
}

// HandoffPending reports whether a handoff position is awaited.
func (s *Store) HandoffPending() bool {
	return s.handoffPending
}

// Devices returns a copy of the roster.
func (s *Store) Devices() []Device {
	return cloneDevices(s.session.Devices)
}

// SetActiveDevice moves the active role to id and flips roster flags.
func (s *Store) SetActiveDevice(id string) error {
	if id == "" {
		return fmt.Errorf("empty device id: %w", ErrUnknownDevice)
	}
	if len(s.session.Devices) > 0 && findDevice(s.session.Devices, id) < 0 {
		return fmt.Errorf("device %s: %w", id, ErrUnknownDevice)
	}
	s.session.ActiveDeviceID = id
	for i := range s.session.Devices {
		s.session.Devices[i].IsActive = s.session.Devices[i].ID == id
	}
	s.bump()
	return nil
}

// SetDevices replaces the roster. The active device is the one named by
// activeID when it is in the roster, else the single flagged entry, else
// the previous active device, else the lowest id.
func (s *Store) SetDevices(devices []Device, activeID string) {
	roster := make([]Device, 0, len(devices))
	seen := map[string]bool{}
	for _, device := range devices {
		if device.ID == "" || seen[device.ID] {
			continue
		}
		seen[device.ID] = true
		roster = append(roster, device)
	}
	if len(roster) == 0 {
		s.session.Devices = nil
		s.bump()
		return
	}

	chosen := ""
	switch {
	case activeID != "" && seen[activeID]:
		chosen = activeID
	case singleFlagged(roster) != "":
		chosen = singleFlagged(roster)
	case s.session.ActiveDeviceID != "" && seen[s.session.ActiveDeviceID]:
		chosen = s.session.ActiveDeviceID
	default:
		ids := make([]string, 0, len(roster))
		for _, device := range roster {
			ids = append(ids, device.ID)
		}
		sort.Strings(ids)
		chosen = ids[0]
	}

	for i := range roster {
		roster[i].IsActive = roster[i].ID == chosen
	}
	s.session.Devices = roster
	s.session.ActiveDeviceID = chosen
	s.bump()
}

func singleFlagged(devices []Device) string {
	found := ""
	for _, device := range devices {
		if !device.IsActive {
			continue
		}
		if found != "" {
			return ""
		}
		found = device.ID
	}
	return found
}

func findDevice(devices []Device, id string) int {
	for i, device := range devices {
		if device.ID == id {
			return i
		}
	}
	return -1
}

// Reset tears the session down to its initial state.
func (s *Store) Reset() {
	s.session = emptySession()
	s.lastSeek = time.Time{}
	s.handoffPending = false
	s.bump()
}

func (s *Store) bump() {
	s.version++
}
