package main

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey-austin/tandem/internal/adapters/catalog"
	"github.com/mikey-austin/tandem/internal/adapters/clock"
	"github.com/mikey-austin/tandem/internal/adapters/config"
	"github.com/mikey-austin/tandem/internal/adapters/deviceid"
	"github.com/mikey-austin/tandem/internal/adapters/mqtt"
	"github.com/mikey-austin/tandem/internal/adapters/transport"
	"github.com/mikey-austin/tandem/internal/adapters/wsclient"
	"github.com/mikey-austin/tandem/internal/core"
	devicecore "github.com/mikey-austin/tandem/internal/modules/device_core"
	renderergstreamer "github.com/mikey-austin/tandem/internal/modules/renderer_gstreamer"
	renderersim "github.com/mikey-austin/tandem/internal/modules/renderer_sim"
	"github.com/mikey-austin/tandem/internal/ports"
	"github.com/mikey-austin/tandem/pkg/tandem"
)

// identity resolves the persisted device id and display name.
func identity(log *zap.Logger, cfg config.Config) core.IdentityResult {
	result := core.IdentityResult{Name: cfg.Device.Name, Class: deviceid.DeviceClass()}
	if result.Name == "" {
		result.Name = deviceid.DefaultName()
	}
	store, err := deviceid.NewFileStore(cfg.Device.IDPath)
	if err != nil {
		log.Warn("device id store unavailable", zap.Error(err))
		result.DeviceID = deviceid.GetOrCreate(log, nil, deviceid.Generator{})
		return result
	}
	result.DeviceID = deviceid.GetOrCreate(log, store, deviceid.Generator{})
	result.Path = store.Path()
	return result
}

func newCatalog(log *zap.Logger, cfg config.Catalog) (ports.Catalog, error) {
	timeout := time.Duration(cfg.TimeoutMS) * time.Millisecond
	var source ports.Catalog
	switch cfg.Kind {
	case "", "http":
		if cfg.BaseURL == "" {
			return nil, nil
		}
		c, err := catalog.NewHTTP(catalog.HTTPConfig{BaseURL: cfg.BaseURL, Token: cfg.Token, Timeout: timeout})
		if err != nil {
			return nil, err
		}
		source = c
	case "feed":
		c, err := catalog.NewFeed(log.With(zap.String("module", "catalog")), catalog.FeedConfig{Feeds: cfg.Feeds, Timeout: timeout})
		if err != nil {
			return nil, err
		}
		source = c
	default:
		return nil, fmt.Errorf("unknown catalog kind %q", cfg.Kind)
	}
	if cfg.CacheSize <= 0 {
		return source, nil
	}
	return catalog.NewCached(source, cfg.CacheSize)
}

// renderer is a ports.Renderer that may need a background loop.
type renderer struct {
	ports.Renderer
	run func(ctx context.Context) error
}

func newRenderer(log *zap.Logger, cfg config.Renderer) (renderer, error) {
	log = log.With(zap.String("module", "renderer"))
	switch cfg.Kind {
	case "", "sim":
		return renderer{Renderer: renderersim.New(log, clock.NewScheduler(nil))}, nil
	case "gstreamer":
		r, err := renderergstreamer.New(log, renderergstreamer.Config{Pipeline: cfg.Pipeline, Device: cfg.Device})
		if err != nil {
			return renderer{}, err
		}
		return renderer{Renderer: r, run: r.Run}, nil
	default:
		return renderer{}, fmt.Errorf("unknown renderer kind %q", cfg.Kind)
	}
}

func newDialer(log *zap.Logger, cfg config.Coordinator, id core.IdentityResult) (transport.Dialer, error) {
	log = log.With(zap.String("module", "transport"))
	if cfg.Transport == "mqtt" {
		return mqtt.NewDialer(mqtt.Options{
			BrokerURL:   cfg.URL,
			Account:     cfg.Account,
			Token:       cfg.Token,
			DeviceID:    id.DeviceID,
			DeviceName:  id.Name,
			DeviceClass: id.Class,
			TLSCA:       cfg.TLSCA,
			TLSCert:     cfg.TLSCert,
			TLSKey:      cfg.TLSKey,
			TopicBase:   cfg.TopicBase,
			Logger:      log,
		})
	}
	return wsclient.NewDialer(wsclient.Options{
		URL:         cfg.URL,
		Account:     cfg.Account,
		Token:       cfg.Token,
		DeviceID:    id.DeviceID,
		DeviceName:  id.Name,
		DeviceClass: id.Class,
		Logger:      log,
	})
}

// session is a running device with its helpers.
type session struct {
	app      *app
	id       core.IdentityResult
	device   *devicecore.Device
	catalog  ports.Catalog
	channel  ports.Channel
	renderer renderer
	messages *messageTap
}

func newSession(a *app) (*session, error) {
	id := identity(a.log, a.cfg)
	log := a.log.With(zap.String("device_id", id.DeviceID))

	cat, err := newCatalog(log, a.cfg.Catalog)
	if err != nil {
		return nil, core.WrapError(core.ExitUsage, "catalog", err)
	}
	rend, err := newRenderer(log, a.cfg.Renderer)
	if err != nil {
		return nil, core.WrapError(core.ExitUsage, "renderer", err)
	}
	dialer, err := newDialer(log, a.cfg.Coordinator, id)
	if err != nil {
		return nil, core.WrapError(core.ExitUsage, "transport", err)
	}

	syncCfg := a.cfg.Sync.SyncConfig()
	channel := transport.NewChannel(log.With(zap.String("module", "channel")), dialer, syncCfg.ReconnectInterval)
	tap := &messageTap{Channel: channel, seen: map[string]bool{}, changed: make(chan struct{}, 1)}
	dev, err := devicecore.NewDevice(log.With(zap.String("module", "device")), tap, rend, cat, nil, devicecore.Config{
		DeviceID: id.DeviceID,
		Sync:     syncCfg,
	})
	if err != nil {
		return nil, err
	}
	return &session{app: a, id: id, device: dev, catalog: cat, channel: tap, renderer: rend, messages: tap}, nil
}

// start runs the device and renderer until ctx ends. The returned channel
// yields the device's exit error.
func (s *session) start(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	if s.renderer.run != nil {
		go func() { _ = s.renderer.run(ctx) }()
	}
	go func() { done <- s.device.Run(ctx) }()
	return done
}

func (s *session) status(ctx context.Context) (core.StatusResult, error) {
	snap, err := s.device.Snapshot(ctx)
	if err != nil {
		return core.StatusResult{}, err
	}
	return core.StatusResult{DeviceID: s.id.DeviceID, Channel: s.channel.State().String(), Session: snap}, nil
}

func (s *session) devices(ctx context.Context) (core.DevicesResult, error) {
	snap, err := s.device.Snapshot(ctx)
	if err != nil {
		return core.DevicesResult{}, err
	}
	return core.DevicesResult{SelfID: s.id.DeviceID, ActiveDeviceID: snap.ActiveDeviceID, Devices: snap.Devices}, nil
}

func (s *session) resolve(ctx context.Context, ids []string) ([]core.Track, error) {
	if s.catalog == nil {
		return nil, &core.CLIError{Code: core.ExitUsage, Msg: "no catalog configured"}
	}
	tracks := make([]core.Track, 0, len(ids))
	for _, id := range ids {
		track, err := s.catalog.GetTrack(ctx, id)
		if err != nil {
			return nil, core.ErrorFor("track "+id, err)
		}
		tracks = append(tracks, track)
	}
	return tracks, nil
}

// messageTap records which message types arrived so one-shot commands can
// wait for the coordinator's first roster and snapshot.
type messageTap struct {
	ports.Channel

	mu      sync.Mutex
	seen    map[string]bool
	changed chan struct{}
}

func (t *messageTap) OnMessage(fn func(tandem.Envelope)) {
	t.Channel.OnMessage(func(env tandem.Envelope) {
		fn(env)
		t.mu.Lock()
		t.seen[env.Type] = true
		t.mu.Unlock()
		select {
		case t.changed <- struct{}{}:
		default:
		}
	})
}

func (t *messageTap) has(types ...string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, typ := range types {
		if !t.seen[typ] {
			return false
		}
	}
	return true
}

// wait blocks until every type has been received.
func (t *messageTap) wait(ctx context.Context, types ...string) error {
	for !t.has(types...) {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.changed:
		}
	}
	return nil
}
