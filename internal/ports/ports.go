package ports

import (
	"context"
	"time"

	"github.com/mikey-austin/tandem/internal/core"
	"github.com/mikey-austin/tandem/pkg/tandem"
)

// ChannelState is the lifecycle of a transport channel.
type ChannelState int

const (
	StateConnecting ChannelState = iota
	StateOpen
	StateClosed
)

func (s ChannelState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	default:
		return "closed"
	}
}

// Channel is a reconnecting, message-oriented link to the coordinator.
// Send while not open drops the message and returns core.ErrNotConnected.
type Channel interface {
	Run(ctx context.Context) error
	Send(msgType string, body any) error
	OnMessage(fn func(tandem.Envelope))
	OnStateChange(fn func(ChannelState))
	State() ChannelState
	Close() error
}

// Catalog resolves track metadata.
type Catalog interface {
	GetTrack(ctx context.Context, id string) (core.Track, error)
}

// Media is what a renderer needs to play a track.
type Media struct {
	TrackID    string
	URL        string
	DurationMS int64
}

// Renderer produces audio on the active device.
type Renderer interface {
	Load(media Media) error
	Play() error
	Pause() error
	Seek(positionMS int64) error
	SetVolume(volume float64) error
	PositionMS() int64
	OnEnded(fn func())
}

// Timer is a cancellable scheduled callback.
type Timer interface {
	Stop()
}

// Scheduler runs callbacks on the device event loop.
type Scheduler interface {
	Now() time.Time
	Every(interval time.Duration, fn func()) Timer
	After(delay time.Duration, fn func()) Timer
}

// IdentityStore persists the device id.
type IdentityStore interface {
	Load() (string, error)
	Save(id string) error
}
