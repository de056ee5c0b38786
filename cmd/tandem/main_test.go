package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/tandem/internal/adapters/clock"
	"github.com/mikey-austin/tandem/internal/adapters/config"
	"github.com/mikey-austin/tandem/internal/adapters/output"
	"github.com/mikey-austin/tandem/internal/core"
	devicecore "github.com/mikey-austin/tandem/internal/modules/device_core"
	renderersim "github.com/mikey-austin/tandem/internal/modules/renderer_sim"
	"github.com/mikey-austin/tandem/internal/ports"
	"github.com/mikey-austin/tandem/pkg/tandem"
)

func TestApplyFlagsInfersTransport(t *testing.T) {
	cfg := config.Default()
	applyFlags(&cfg, flagOverrides{url: "tcp://broker:1883", account: "family", token: "tok", name: "Kitchen"})
	if cfg.Coordinator.Transport != "mqtt" || cfg.Coordinator.Account != "family" || cfg.Device.Name != "Kitchen" {
		t.Fatalf("unexpected config %+v", cfg.Coordinator)
	}
	if err := validate(cfg); err != nil {
		t.Fatalf("validate: %v", err)
	}

	applyFlags(&cfg, flagOverrides{url: "wss://coord.example/ws"})
	if cfg.Coordinator.Transport != "ws" {
		t.Fatalf("expected ws transport, got %s", cfg.Coordinator.Transport)
	}
	applyFlags(&cfg, flagOverrides{url: "tcp://broker:1883", transport: "carrier-pigeon"})
	if err := validate(cfg); core.ExitCode(err) != core.ExitUsage {
		t.Fatalf("expected usage error, got %v", err)
	}

	mqttNoAccount := config.Default()
	mqttNoAccount.Coordinator.Transport = "mqtt"
	if err := validate(mqttNoAccount); err == nil {
		t.Fatalf("expected account error")
	}
}

type fakeChannel struct {
	mu   sync.Mutex
	sent []tandem.Envelope
}

func (c *fakeChannel) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (c *fakeChannel) Send(msgType string, body any) error {
	env, err := tandem.NewEnvelope(msgType, body)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeChannel) types() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.sent))
	for _, env := range c.sent {
		out = append(out, env.Type)
	}
	return out
}

func (c *fakeChannel) OnMessage(func(tandem.Envelope))       {}
func (c *fakeChannel) OnStateChange(func(ports.ChannelState)) {}
func (c *fakeChannel) State() ports.ChannelState              { return ports.StateOpen }
func (c *fakeChannel) Close() error                           { return nil }

type fakeCatalog map[string]core.Track

func (c fakeCatalog) GetTrack(_ context.Context, id string) (core.Track, error) {
	track, ok := c[id]
	if !ok {
		return core.Track{}, core.ErrTrackNotFound
	}
	return track, nil
}

func newTestRepl(t *testing.T) (*repl, *fakeChannel, *bytes.Buffer) {
	t.Helper()
	ch := &fakeChannel{}
	cat := fakeCatalog{
		"t1": {ID: "t1", Title: "One", Artist: "A", DurationSeconds: 200, StreamURL: "http://x/t1"},
		"t2": {ID: "t2", Title: "Two", Artist: "B", DurationSeconds: 180, StreamURL: "http://x/t2"},
	}
	rend := renderersim.New(zap.NewNop(), clock.NewScheduler(nil))
	dev, err := devicecore.NewDevice(zap.NewNop(), ch, rend, cat, nil, devicecore.Config{DeviceID: "dev-1"})
	if err != nil {
		t.Fatalf("device: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- dev.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	out := &bytes.Buffer{}
	a := &app{log: zap.NewNop(), printer: output.New(out, true), json: true, timeout: time.Second}
	s := &session{app: a, id: core.IdentityResult{DeviceID: "dev-1"}, device: dev, catalog: cat, channel: ch}
	return &repl{session: s, out: out}, ch, out
}

func TestReplDrivesTheDispatcher(t *testing.T) {
	r, ch, out := newTestRepl(t)
	ctx := context.Background()

	for _, line := range []string{"queue t1 t2", "seek 1m", "vol 40", "next", "pause"} {
		if quit, err := r.exec(ctx, line); err != nil || quit {
			t.Fatalf("%s: quit=%v err=%v", line, quit, err)
		}
	}
	snap, err := r.session.device.Snapshot(ctx)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.CurrentTrack == nil || snap.CurrentTrack.ID != "t2" || snap.IsPlaying {
		t.Fatalf("unexpected session %+v", snap)
	}
	if snap.Volume != 0.4 {
		t.Fatalf("expected volume 0.4, got %v", snap.Volume)
	}

	types := strings.Join(ch.types(), ",")
	for _, want := range []string{tandem.TypeLoad, tandem.TypeSeek, tandem.TypeNext, tandem.TypePause} {
		if !strings.Contains(types, want) {
			t.Fatalf("expected %s in %s", want, types)
		}
	}

	out.Reset()
	if _, err := r.exec(ctx, "status"); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !strings.Contains(out.String(), `"device_id": "dev-1"`) {
		t.Fatalf("unexpected status output %s", out.String())
	}
}

func TestReplErrors(t *testing.T) {
	r, _, _ := newTestRepl(t)
	ctx := context.Background()

	if _, err := r.exec(ctx, "load missing"); core.ExitCode(err) != core.ExitNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := r.exec(ctx, "seek"); core.ExitCode(err) != core.ExitUsage {
		t.Fatalf("expected usage error, got %v", err)
	}
	if _, err := r.exec(ctx, "play"); core.ExitCode(err) != core.ExitUsage {
		t.Fatalf("expected no-track usage error, got %v", err)
	}
	if _, err := r.exec(ctx, "dance"); err == nil {
		t.Fatalf("expected unknown command error")
	}
	if quit, _ := r.exec(ctx, "quit"); !quit {
		t.Fatalf("expected quit")
	}
	if quit, err := r.exec(ctx, "   "); quit || err != nil {
		t.Fatalf("blank lines are ignored")
	}
}
