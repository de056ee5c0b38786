package core

// StatusResult is a device's view of the session.
type StatusResult struct {
	DeviceID string  `json:"device_id"`
	Channel  string  `json:"channel"`
	Session  Session `json:"session"`
}

// DevicesResult is the account roster as seen by one device.
type DevicesResult struct {
	SelfID         string   `json:"self_id"`
	ActiveDeviceID string   `json:"active_device_id"`
	Devices        []Device `json:"devices"`
}

// IdentityResult describes the local device.
type IdentityResult struct {
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	Class    string `json:"class"`
	Path     string `json:"path,omitempty"`
}

// QueueResult lists the play queue.
type QueueResult struct {
	Index   int     `json:"index"`
	Shuffle bool    `json:"shuffle"`
	Tracks  []Track `json:"tracks"`
}
