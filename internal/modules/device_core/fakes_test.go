package devicecore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mikey-austin/tandem/internal/adapters/clock"
	"github.com/mikey-austin/tandem/internal/core"
	"github.com/mikey-austin/tandem/internal/ports"
	"github.com/mikey-austin/tandem/pkg/tandem"
	"go.uber.org/zap"
)

type fakeChannel struct {
	mu        sync.Mutex
	sent      []tandem.Envelope
	offline   bool
	closed    bool
	state     ports.ChannelState
	onMessage func(tandem.Envelope)
	onState   func(ports.ChannelState)
}

func (c *fakeChannel) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (c *fakeChannel) Send(msgType string, body any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.offline {
		return core.ErrNotConnected
	}
	env, err := tandem.NewEnvelope(msgType, body)
	if err != nil {
		return err
	}
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeChannel) OnMessage(fn func(tandem.Envelope))       { c.onMessage = fn }
func (c *fakeChannel) OnStateChange(fn func(ports.ChannelState)) { c.onState = fn }

func (c *fakeChannel) State() ports.ChannelState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeChannel) setOffline(offline bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offline = offline
}

func (c *fakeChannel) setState(state ports.ChannelState) {
	c.mu.Lock()
	c.state = state
	c.mu.Unlock()
	c.onState(state)
}

func (c *fakeChannel) deliver(t *testing.T, msgType string, body any) {
	t.Helper()
	env, err := tandem.NewEnvelope(msgType, body)
	if err != nil {
		t.Fatalf("envelope: %v", err)
	}
	c.onMessage(env)
}

func (c *fakeChannel) sentTypes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, env := range c.sent {
		out = append(out, env.Type)
	}
	return out
}

func (c *fakeChannel) count(msgType string) int {
	n := 0
	for _, sent := range c.sentTypes() {
		if sent == msgType {
			n++
		}
	}
	return n
}

func (c *fakeChannel) last(t *testing.T, msgType string, v any) {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].Type != msgType {
			continue
		}
		if err := c.sent[i].Decode(v); err != nil {
			t.Fatalf("decode %s: %v", msgType, err)
		}
		return
	}
	t.Fatalf("no %s sent; got %v", msgType, c.sent)
}

func (c *fakeChannel) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = nil
}

type fakeRenderer struct {
	mu       sync.Mutex
	loads    []ports.Media
	seeks    []int64
	plays    int
	pauses   int
	playing  bool
	volume   float64
	position int64
	playErr  error
	ended    func()
}

func (r *fakeRenderer) Load(media ports.Media) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loads = append(r.loads, media)
	r.playing = false
	r.position = 0
	return nil
}

func (r *fakeRenderer) Play() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.plays++
	if r.playErr != nil {
		return r.playErr
	}
	r.playing = true
	return nil
}

func (r *fakeRenderer) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pauses++
	r.playing = false
	return nil
}

func (r *fakeRenderer) Seek(positionMS int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seeks = append(r.seeks, positionMS)
	r.position = positionMS
	return nil
}

func (r *fakeRenderer) SetVolume(volume float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.volume = volume
	return nil
}

func (r *fakeRenderer) PositionMS() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.position
}

func (r *fakeRenderer) OnEnded(fn func()) { r.ended = fn }

func (r *fakeRenderer) setPosition(positionMS int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.position = positionMS
}

func (r *fakeRenderer) end() {
	r.mu.Lock()
	r.playing = false
	r.mu.Unlock()
	r.ended()
}

func (r *fakeRenderer) isPlaying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.playing
}

func (r *fakeRenderer) seekCalls() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.seeks...)
}

type fakeCatalog struct {
	mu     sync.Mutex
	tracks map[string]core.Track
	calls  int
}

func (c *fakeCatalog) GetTrack(_ context.Context, id string) (core.Track, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	track, ok := c.tracks[id]
	if !ok {
		return core.Track{}, errors.New("track not found")
	}
	return track, nil
}

var (
	trackA = core.Track{ID: "a", Title: "A", DurationSeconds: 180, StreamURL: "http://media/a.mp3"}
	trackB = core.Track{ID: "b", Title: "B", DurationSeconds: 200, StreamURL: "http://media/b.mp3"}
	trackC = core.Track{ID: "c", Title: "C", DurationSeconds: 240, StreamURL: "http://media/c.mp3"}
	trackT = core.Track{ID: "t", Title: "T", DurationSeconds: 300, StreamURL: "http://media/t.mp3"}
)

var testStart = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type harness struct {
	d       *Device
	ch      *fakeChannel
	r       *fakeRenderer
	catalog *fakeCatalog
	clock   *clock.Manual
}

// newHarness builds a device whose events, timers and catalog lookups all
// run synchronously on the test goroutine.
func newHarness(t *testing.T, id string) *harness {
	t.Helper()
	h := &harness{
		ch:      &fakeChannel{},
		r:       &fakeRenderer{},
		catalog: &fakeCatalog{tracks: map[string]core.Track{"a": trackA, "b": trackB, "c": trackC, "t": trackT}},
		clock:   clock.NewManual(testStart),
	}
	d, err := NewDevice(zap.NewNop(), h.ch, h.r, h.catalog, h.clock, Config{DeviceID: id})
	if err != nil {
		t.Fatalf("new device: %v", err)
	}
	d.inline = true
	d.handler.resolver.(*catalogResolver).spawn = func(fn func()) { fn() }
	h.d = d
	return h
}

func (h *harness) store() *core.Store {
	return h.d.store
}

func (h *harness) dispatch() *Dispatcher {
	return h.d.dispatcher
}

// roster delivers a device list naming active as the active device.
func (h *harness) roster(t *testing.T, active string, ids ...string) {
	t.Helper()
	devices := make([]tandem.DeviceInfo, 0, len(ids))
	for _, id := range ids {
		devices = append(devices, tandem.DeviceInfo{ID: id, Name: id, IsActive: id == active})
	}
	h.ch.deliver(t, tandem.TypeListUpdate, tandem.DeviceListBody{Devices: devices, ActiveDeviceID: active})
}

func (h *harness) sync(t *testing.T, body tandem.SyncBody) {
	t.Helper()
	h.ch.deliver(t, tandem.TypeSync, body)
}
