package renderergstreamer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/mikey-austin/tandem/internal/ports"
	"go.uber.org/zap"
)

// DefaultPipeline plays any URI through playbin.
const DefaultPipeline = "playbin uri={url}"

// driver is the playback backend behind a Renderer.
type driver interface {
	Play(url string, positionMS int64) error
	Pause() error
	Resume() error
	Stop() error
	Seek(positionMS int64) error
	SetVolume(volume float64) error
	Position() (int64, int64, bool)
	Ended() bool
}

// Config configures the GStreamer renderer.
type Config struct {
	Pipeline     string
	Device       string
	PollInterval time.Duration
}

// Renderer implements ports.Renderer on a GStreamer pipeline. The pipeline
// is built lazily on the first Play after a Load.
type Renderer struct {
	log    *zap.Logger
	driver driver
	poll   time.Duration

	mu       sync.Mutex
	media    ports.Media
	loaded   bool
	started  bool
	playing  bool
	position int64
	volume   float64
	onEnded  func()
}

// New creates a renderer backed by the GStreamer driver.
func New(log *zap.Logger, cfg Config) (*Renderer, error) {
	if strings.TrimSpace(cfg.Pipeline) == "" {
		cfg.Pipeline = DefaultPipeline
	}
	d, err := NewDriver(cfg.Pipeline, cfg.Device)
	if err != nil {
		return nil, err
	}
	return newRenderer(log, d, cfg.PollInterval), nil
}

func newRenderer(log *zap.Logger, d driver, poll time.Duration) *Renderer {
	if log == nil {
		log = zap.NewNop()
	}
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	return &Renderer{log: log, driver: d, poll: poll, volume: 1}
}

// Load replaces the current media. Playback starts on the next Play.
func (r *Renderer) Load(media ports.Media) error {
	if strings.TrimSpace(media.URL) == "" {
		return errors.New("media url required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	var err error
	if r.started {
		err = r.driver.Stop()
	}
	r.media = media
	r.loaded = true
	r.started = false
	r.playing = false
	r.position = 0
	return err
}

// Play starts or resumes playback.
func (r *Renderer) Play() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.loaded {
		return errors.New("no media loaded")
	}
	if r.started {
		if err := r.driver.Resume(); err != nil {
			return err
		}
		r.playing = true
		return nil
	}
	if err := r.driver.Play(r.media.URL, r.position); err != nil {
		return err
	}
	if err := r.driver.SetVolume(r.volume); err != nil {
		r.log.Debug("volume", zap.Error(err))
	}
	r.started = true
	r.playing = true
	return nil
}

// Pause pauses playback, keeping the position.
func (r *Renderer) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.started {
		r.playing = false
		return nil
	}
	r.position = r.positionLocked()
	if err := r.driver.Pause(); err != nil {
		return err
	}
	r.playing = false
	return nil
}

// Seek moves to positionMS; before the pipeline starts it only records it.
func (r *Renderer) Seek(positionMS int64) error {
	if positionMS < 0 {
		positionMS = 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.position = positionMS
	if !r.started {
		return nil
	}
	return r.driver.Seek(positionMS)
}

// SetVolume sets the output volume (0..1).
func (r *Renderer) SetVolume(volume float64) error {
	if volume < 0 {
		volume = 0
	}
	if volume > 1 {
		volume = 1
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.volume = volume
	if !r.started {
		return nil
	}
	return r.driver.SetVolume(volume)
}

// PositionMS returns the live playback position.
func (r *Renderer) PositionMS() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.positionLocked()
}

// OnEnded registers fn to run when the stream reaches its end.
func (r *Renderer) OnEnded(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEnded = fn
}

func (r *Renderer) positionLocked() int64 {
	if !r.started {
		return r.position
	}
	pos, _, ok := r.driver.Position()
	if !ok {
		return r.position
	}
	return pos
}

// Run watches the pipeline for end of stream until ctx is cancelled.
func (r *Renderer) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.poll)
	defer ticker.Stop()
	defer func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.started {
			_ = r.driver.Stop()
			r.started = false
			r.playing = false
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.checkEnded()
		}
	}
}

func (r *Renderer) checkEnded() {
	r.mu.Lock()
	if !r.playing || !r.driver.Ended() {
		r.mu.Unlock()
		return
	}
	r.log.Debug("end of stream", zap.String("track_id", r.media.TrackID))
	if _, dur, ok := r.driver.Position(); ok && dur > 0 {
		r.position = dur
	} else {
		r.position = r.media.DurationMS
	}
	_ = r.driver.Stop()
	r.started = false
	r.playing = false
	fn := r.onEnded
	r.mu.Unlock()

	if fn != nil {
		fn()
	}
}
