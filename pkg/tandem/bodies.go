package tandem

// Empty is the body of messages without fields.
type Empty struct{}

// PlayBody is sent with control:play.
type PlayBody struct {
	TrackID        string `json:"track_id,omitempty"`
	ActiveDeviceID string `json:"active_device_id,omitempty"`
}

// StepBody is sent with control:next and control:previous. Nonce lets the
// sender recognise the coordinator's echo of its own command.
type StepBody struct {
	Nonce string `json:"nonce,omitempty"`
}

// SeekBody is sent with control:seek.
type SeekBody struct {
	PositionMS int64 `json:"position_ms"`
}

// VolumeBody is sent with control:volume.
type VolumeBody struct {
	Volume float64 `json:"volume"`
}

// ShuffleBody carries the shuffle flag after a toggle. Seed lets every
// device derive the same shuffled order.
type ShuffleBody struct {
	Shuffle bool   `json:"shuffle"`
	Seed    uint64 `json:"seed,omitempty"`
}

// RepeatBody carries the repeat mode after a cycle.
type RepeatBody struct {
	Mode string `json:"mode"`
}

// LoadBody requests that a track become current.
type LoadBody struct {
	TrackID string `json:"track_id"`
}

// SetActiveBody transfers the active role.
type SetActiveBody struct {
	DeviceID   string `json:"device_id"`
	PositionMS *int64 `json:"position_ms,omitempty"`
}

// PlaybackUpdateBody is the active device's authoritative report.
type PlaybackUpdateBody struct {
	TrackID        string `json:"track_id"`
	PositionMS     int64  `json:"position_ms"`
	Playing        bool   `json:"playing"`
	ActiveDeviceID string `json:"active_device_id,omitempty"`
}

// SyncBody is the merged state broadcast by the coordinator. Absent fields
// leave the receiver's state unchanged.
type SyncBody struct {
	TrackID        *string  `json:"track_id,omitempty"`
	PositionMS     *int64   `json:"position_ms,omitempty"`
	Playing        *bool    `json:"playing,omitempty"`
	Volume         *float64 `json:"volume,omitempty"`
	ActiveDeviceID *string  `json:"active_device_id,omitempty"`
	Shuffle        *bool    `json:"shuffle,omitempty"`
	ShuffleSeed    *uint64  `json:"shuffle_seed,omitempty"`
	Repeat         *string  `json:"repeat,omitempty"`
}

// DeviceInfo is one roster entry.
type DeviceInfo struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsActive bool   `json:"is_active"`
}

// DeviceListBody is sent with device:list_update.
type DeviceListBody struct {
	Devices        []DeviceInfo `json:"devices"`
	ActiveDeviceID string       `json:"active_device_id,omitempty"`
}

// Presence is the retained payload a device publishes while connected.
type Presence struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	Class    string `json:"class,omitempty"`
	TS       int64  `json:"ts"`
}

// Ref returns a pointer to v, for building partial sync bodies.
func Ref[T any](v T) *T {
	return &v
}
