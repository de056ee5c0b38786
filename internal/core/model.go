package core

import "strings"

// RepeatMode controls what happens at the end of a track.
type RepeatMode string

const (
	RepeatOff RepeatMode = "off"
	RepeatAll RepeatMode = "all"
	RepeatOne RepeatMode = "one"
)

// Next returns the following mode in the off, all, one cycle.
func (m RepeatMode) Next() RepeatMode {
	switch m {
	case RepeatOff:
		return RepeatAll
	case RepeatAll:
		return RepeatOne
	default:
		return RepeatOff
	}
}

// ParseRepeatMode parses a wire value.
func ParseRepeatMode(raw string) (RepeatMode, bool) {
	switch RepeatMode(strings.ToLower(strings.TrimSpace(raw))) {
	case RepeatOff:
		return RepeatOff, true
	case RepeatAll:
		return RepeatAll, true
	case RepeatOne:
		return RepeatOne, true
	default:
		return RepeatOff, false
	}
}

// Track is a catalog entry.
type Track struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	Artist          string  `json:"artist"`
	DurationSeconds float64 `json:"duration_seconds"`
	StreamURL       string  `json:"stream_url"`
}

// DurationMS returns the duration in milliseconds.
func (t Track) DurationMS() int64 {
	return int64(t.DurationSeconds * 1000)
}

// Device is one entry of the account roster.
type Device struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// Session is the per-device projection of the shared playback state.
type Session struct {
	CurrentTrack   *Track     `json:"current_track,omitempty"`
	IsPlaying      bool       `json:"is_playing"`
	PositionMS     int64      `json:"position_ms"`
	Volume         float64    `json:"volume"`
	Queue          []Track    `json:"queue"`
	QueueIndex     int        `json:"queue_index"`
	RepeatMode     RepeatMode `json:"repeat_mode"`
	Shuffle        bool       `json:"shuffle"`
	OriginalQueue  []Track    `json:"original_queue,omitempty"`
	ActiveDeviceID string     `json:"active_device_id,omitempty"`
	Devices        []Device   `json:"devices"`
	SeekTarget     *int64     `json:"seek_target,omitempty"`
}

// DurationMS returns the current track duration, or 0 without a track.
func (s Session) DurationMS() int64 {
	if s.CurrentTrack == nil {
		return 0
	}
	return s.CurrentTrack.DurationMS()
}

// FindTrack returns the index of id within tracks, or -1.
func FindTrack(tracks []Track, id string) int {
	for i, track := range tracks {
		if track.ID == id {
			return i
		}
	}
	return -1
}

func cloneTracks(tracks []Track) []Track {
	if tracks == nil {
		return nil
	}
	out := make([]Track, len(tracks))
	copy(out, tracks)
	return out
}

func cloneDevices(devices []Device) []Device {
	if devices == nil {
		return nil
	}
	out := make([]Device, len(devices))
	copy(out, devices)
	return out
}
