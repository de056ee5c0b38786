//go:build gstreamer

package renderergstreamer

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"
)

// Driver implements a GStreamer-backed playback driver using Go bindings.
type Driver struct {
	mu       sync.Mutex
	pipeline string
	device   string
	volume   float64
	current  *gst.Element
	startAt  int64
	ended    bool
}

var gstInitOnce sync.Once

// NewDriver creates a GStreamer driver using a pipeline template.
func NewDriver(pipeline string, device string) (*Driver, error) {
	if strings.TrimSpace(pipeline) == "" {
		return nil, errors.New("pipeline template required")
	}
	gstInitOnce.Do(func() {
		gst.Init(nil)
	})

	return &Driver{pipeline: pipeline, device: device, volume: 1.0}, nil
}

// Play replaces the current pipeline and starts playback for the URL.
func (d *Driver) Play(url string, positionMS int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	pipeline, err := d.buildPipeline(url, positionMS)
	if err != nil {
		return err
	}
	_ = d.stopCurrentLocked()
	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		return err
	}
	_ = pipeline.SetProperty("volume", d.volume)
	d.current = pipeline
	d.ended = false
	// The pipeline accepts seeks once it has prerolled; see Ended.
	d.startAt = positionMS
	return nil
}

// Pause pauses playback.
func (d *Driver) Pause() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return errors.New("not playing")
	}
	return d.current.SetState(gst.StatePaused)
}

// Resume resumes playback.
func (d *Driver) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return errors.New("not playing")
	}
	return d.current.SetState(gst.StatePlaying)
}

// Stop stops playback.
func (d *Driver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.stopCurrentLocked()
}

// Seek seeks within the current pipeline.
func (d *Driver) Seek(positionMS int64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return errors.New("not playing")
	}
	d.ended = false
	d.startAt = 0
	return d.seekLocked(d.current, positionMS)
}

// SetVolume sets volume (0..1).
func (d *Driver) SetVolume(volume float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.volume = volume
	if d.current != nil {
		return d.current.SetProperty("volume", volume)
	}
	return nil
}

// Position reports the pipeline position and duration in milliseconds.
func (d *Driver) Position() (int64, int64, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return 0, 0, false
	}
	ok, pos := d.current.QueryPosition(gst.FormatTime)
	if !ok {
		return 0, 0, false
	}
	_, dur := d.current.QueryDuration(gst.FormatTime)
	if d.startAt > 0 {
		pos = d.startAt * int64(time.Millisecond)
	}
	return pos / int64(time.Millisecond), dur / int64(time.Millisecond), true
}

// Ended drains the pipeline bus and reports whether end of stream was reached.
func (d *Driver) Ended() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil {
		return false
	}
	bus := d.current.GetBus()
	for {
		msg := bus.Pop()
		if msg == nil {
			break
		}
		switch msg.Type() {
		case gst.MessageAsyncDone:
			if d.startAt > 0 {
				_ = d.seekLocked(d.current, d.startAt)
				d.startAt = 0
			}
		case gst.MessageEOS:
			d.ended = true
		case gst.MessageError:
			d.ended = true
		}
	}
	return d.ended
}

func (d *Driver) buildPipeline(url string, positionMS int64) (*gst.Element, error) {
	pipeline := d.pipeline
	pipeline = strings.ReplaceAll(pipeline, "{url}", url)
	pipeline = strings.ReplaceAll(pipeline, "{device}", d.device)
	pipeline = strings.ReplaceAll(pipeline, "{start_ms}", fmt.Sprintf("%d", positionMS))
	pipeline = strings.ReplaceAll(pipeline, "{volume}", fmt.Sprintf("%0.2f", d.volume))

	el, err := gst.ParseLaunch(pipeline)
	if err != nil {
		return nil, err
	}
	return el, nil
}

func (d *Driver) stopCurrentLocked() error {
	if d.current == nil {
		return nil
	}
	_ = d.current.SetState(gst.StateNull)
	d.current = nil
	d.startAt = 0
	return nil
}

func (d *Driver) seekLocked(pipeline *gst.Element, positionMS int64) error {
	positionNS := positionMS * int64(time.Millisecond)
	if !pipeline.SeekSimple(positionNS, gst.FormatTime, gst.SeekFlagFlush|gst.SeekFlagKeyUnit) {
		return errors.New("seek rejected")
	}
	return nil
}
