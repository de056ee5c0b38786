package core

import "time"

// SyncConfig holds the timing constants of the sync algorithm.
type SyncConfig struct {
	// SampleInterval is how often the active device reads the renderer.
	SampleInterval time.Duration
	// InterpolateInterval is the passive device's local tick.
	InterpolateInterval time.Duration
	// DriftThreshold forces a broadcast when the renderer strays this far
	// from the extrapolated last broadcast.
	DriftThreshold time.Duration
	// BroadcastInterval forces a broadcast after this long regardless of drift.
	BroadcastInterval time.Duration
	// SeekSettle suppresses broadcasts and stale sync positions after a seek.
	SeekSettle time.Duration
	// VolumeDebounce delays control:volume while a slider is moving.
	VolumeDebounce time.Duration
	// EchoWindow bounds how long a sent command waits for its echo.
	EchoWindow time.Duration
	// HandoffTimeout bounds how long a new active device waits for the
	// handoff position before taking its own.
	HandoffTimeout time.Duration
	// ReconnectInterval is the fixed channel reconnect delay.
	ReconnectInterval time.Duration
}

// DefaultSyncConfig returns the stock timings.
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		SampleInterval:      time.Second,
		InterpolateInterval: 100 * time.Millisecond,
		DriftThreshold:      2 * time.Second,
		BroadcastInterval:   10 * time.Second,
		SeekSettle:          time.Second,
		VolumeDebounce:      200 * time.Millisecond,
		EchoWindow:          5 * time.Second,
		HandoffTimeout:      2 * time.Second,
		ReconnectInterval:   3 * time.Second,
	}
}

// WithDefaults fills zero fields from DefaultSyncConfig.
func (c SyncConfig) WithDefaults() SyncConfig {
	d := DefaultSyncConfig()
	if c.SampleInterval <= 0 {
		c.SampleInterval = d.SampleInterval
	}
	if c.InterpolateInterval <= 0 {
		c.InterpolateInterval = d.InterpolateInterval
	}
	if c.DriftThreshold <= 0 {
		c.DriftThreshold = d.DriftThreshold
	}
	if c.BroadcastInterval <= 0 {
		c.BroadcastInterval = d.BroadcastInterval
	}
	if c.SeekSettle <= 0 {
		c.SeekSettle = d.SeekSettle
	}
	if c.VolumeDebounce <= 0 {
		c.VolumeDebounce = d.VolumeDebounce
	}
	if c.EchoWindow <= 0 {
		c.EchoWindow = d.EchoWindow
	}
	if c.HandoffTimeout <= 0 {
		c.HandoffTimeout = d.HandoffTimeout
	}
	if c.ReconnectInterval <= 0 {
		c.ReconnectInterval = d.ReconnectInterval
	}
	return c
}
