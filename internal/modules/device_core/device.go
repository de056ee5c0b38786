package devicecore

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/mikey-austin/tandem/internal/adapters/clock"
	"github.com/mikey-austin/tandem/internal/core"
	"github.com/mikey-austin/tandem/internal/ports"
	"github.com/mikey-austin/tandem/pkg/tandem"
	"go.uber.org/zap"
)

// ErrStopped is returned by Do once the device event loop has exited.
var ErrStopped = errors.New("device stopped")

// Config configures a device.
type Config struct {
	DeviceID      string
	Sync          core.SyncConfig
	LookupTimeout time.Duration
}

// Device runs the playback state machine of one device. Every callback
// (inbound messages, timers, renderer events, user intents, catalog
// results) runs on a single event loop goroutine.
type Device struct {
	log      *zap.Logger
	channel  ports.Channel
	renderer ports.Renderer

	store      *core.Store
	rt         *runtime
	handler    *Handler
	dispatcher *Dispatcher
	engine     *PositionEngine
	binding    *Binding

	events chan func()
	done   chan struct{}
	once   sync.Once
	inline bool

	onChange func(core.Session)
}

// NewDevice wires a device. A nil scheduler uses the wall clock and posts
// timer callbacks into the event loop.
func NewDevice(log *zap.Logger, channel ports.Channel, renderer ports.Renderer, catalog ports.Catalog, sched ports.Scheduler, cfg Config) (*Device, error) {
	if strings.TrimSpace(cfg.DeviceID) == "" {
		return nil, errors.New("device id required")
	}
	if channel == nil {
		return nil, errors.New("channel required")
	}
	if renderer == nil {
		return nil, errors.New("renderer required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if cfg.LookupTimeout <= 0 {
		cfg.LookupTimeout = 10 * time.Second
	}
	cfg.Sync = cfg.Sync.WithDefaults()

	d := &Device{
		log:      log,
		channel:  channel,
		renderer: renderer,
		store:    core.NewStore(cfg.DeviceID),
		events:   make(chan func(), 256),
		done:     make(chan struct{}),
	}
	if sched == nil {
		sched = clock.NewScheduler(d.Post)
	}
	d.rt = &runtime{
		log:      log,
		store:    d.store,
		out:      channel,
		renderer: renderer,
		sched:    sched,
		cfg:      cfg.Sync,
		echoes:   newEchoLedger(cfg.Sync.EchoWindow),
	}
	d.binding = newBinding(d.rt)
	d.engine = newPositionEngine(d.rt)
	d.dispatcher = newDispatcher(d.rt)
	d.rt.reconcile = d.reconcile

	var resolver trackResolver
	if catalog != nil {
		resolver = &catalogResolver{catalog: catalog, timeout: cfg.LookupTimeout, post: d.Post, spawn: spawn}
	}
	d.handler = newHandler(d.rt, resolver)

	channel.OnMessage(func(env tandem.Envelope) {
		d.Post(func() { d.handler.Apply(env) })
	})
	channel.OnStateChange(func(state ports.ChannelState) {
		d.Post(func() { d.channelState(state) })
	})
	renderer.OnEnded(func() {
		d.Post(d.trackEnded)
	})
	return d, nil
}

// OnChange registers fn to observe the session after every event that
// changed it. fn runs on the event loop and must not block.
func (d *Device) OnChange(fn func(core.Session)) {
	d.onChange = fn
}

// Run drives the channel and the event loop until ctx is cancelled, then
// tears the session down.
func (d *Device) Run(ctx context.Context) error {
	chCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	chErr := make(chan error, 1)
	go func() {
		chErr <- d.channel.Run(chCtx)
	}()

	d.log.Info("device started", zap.String("device_id", d.store.SelfID()))
	for {
		select {
		case <-ctx.Done():
			d.teardown()
			cancel()
			err := <-chErr
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case err := <-chErr:
			d.teardown()
			return err
		case fn := <-d.events:
			d.run(fn)
		}
	}
}

// Post enqueues fn on the event loop. Calls after the loop exits are dropped.
func (d *Device) Post(fn func()) {
	if d.inline {
		d.run(fn)
		return
	}
	select {
	case <-d.done:
	case d.events <- fn:
	}
}

// Do runs fn against the dispatcher on the event loop and waits for it.
func (d *Device) Do(ctx context.Context, fn func(*Dispatcher) error) error {
	if d.inline {
		return fn(d.dispatcher)
	}
	result := make(chan error, 1)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrStopped
	case d.events <- func() { result <- fn(d.dispatcher) }:
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-d.done:
		return ErrStopped
	case err := <-result:
		return err
	}
}

// Snapshot returns a copy of the session taken on the event loop.
func (d *Device) Snapshot(ctx context.Context) (core.Session, error) {
	var session core.Session
	err := d.Do(ctx, func(*Dispatcher) error {
		session = d.store.Snapshot()
		return nil
	})
	return session, err
}

// SelfID returns the device id.
func (d *Device) SelfID() string {
	return d.store.SelfID()
}

func (d *Device) run(fn func()) {
	before := d.store.Version()
	fn()
	if d.onChange != nil && d.store.Version() != before {
		d.onChange(d.store.Snapshot())
	}
}

func (d *Device) reconcile() {
	d.binding.Sync()
	d.engine.Reconcile()
}

func (d *Device) trackEnded() {
	d.binding.Ended()
	d.dispatcher.TrackEnded()
}

func (d *Device) channelState(state ports.ChannelState) {
	d.log.Info("channel state", zap.String("state", state.String()))
	d.rt.offline = state != ports.StateOpen
	d.engine.Reconcile()
	if state != ports.StateOpen {
		return
	}
	// Force a fresh broadcast and ask for the roster and snapshot.
	d.engine.Invalidate()
	_ = d.rt.send(tandem.TypeGetList, tandem.Empty{})
}

func (d *Device) teardown() {
	d.once.Do(func() {
		close(d.done)
		d.engine.Stop()
		d.dispatcher.stop()
		d.rt.endHandoff()
		d.rt.echoes.reset()
		d.binding.release()
		d.store.Reset()
		if err := d.channel.Close(); err != nil {
			d.log.Debug("channel close", zap.Error(err))
		}
		d.log.Info("device stopped")
	})
}

func spawn(fn func()) {
	go fn()
}

// catalogResolver fetches tracks off the event loop and posts the result back.
type catalogResolver struct {
	catalog ports.Catalog
	timeout time.Duration
	post    func(func())
	spawn   func(func())
}

func (r *catalogResolver) Resolve(id string, done func(core.Track, error)) {
	r.spawn(func() {
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
		defer cancel()
		track, err := r.catalog.GetTrack(ctx, id)
		r.post(func() { done(track, err) })
	})
}
