package renderergstreamer

import (
	"context"
	"testing"
	"time"

	"github.com/mikey-austin/tandem/internal/ports"
	"go.uber.org/zap"
)

type fakeDriver struct {
	calls    []string
	playURL  string
	playFrom int64
	position int64
	duration int64
	volume   float64
	ended    bool
}

func (d *fakeDriver) Play(url string, positionMS int64) error {
	d.calls = append(d.calls, "play")
	d.playURL = url
	d.playFrom = positionMS
	d.position = positionMS
	return nil
}
func (d *fakeDriver) Pause() error  { d.calls = append(d.calls, "pause"); return nil }
func (d *fakeDriver) Resume() error { d.calls = append(d.calls, "resume"); return nil }
func (d *fakeDriver) Stop() error   { d.calls = append(d.calls, "stop"); return nil }
func (d *fakeDriver) Seek(positionMS int64) error {
	d.calls = append(d.calls, "seek")
	d.position = positionMS
	return nil
}
func (d *fakeDriver) SetVolume(volume float64) error { d.volume = volume; return nil }
func (d *fakeDriver) Position() (int64, int64, bool) { return d.position, d.duration, true }
func (d *fakeDriver) Ended() bool                    { return d.ended }

func media() ports.Media {
	return ports.Media{TrackID: "t1", URL: "http://catalog/tracks/t1/stream", DurationMS: 180000}
}

func TestSeekBeforePlayStartsPipelineAtPosition(t *testing.T) {
	d := &fakeDriver{}
	r := newRenderer(zap.NewNop(), d, 0)
	if err := r.Play(); err == nil {
		t.Fatalf("expected error without media")
	}
	if err := r.Load(media()); err != nil {
		t.Fatalf("load: %v", err)
	}
	_ = r.SetVolume(0.4)
	_ = r.Seek(42000)
	if got := r.PositionMS(); got != 42000 {
		t.Fatalf("expected pending position 42000, got %d", got)
	}
	if len(d.calls) != 0 {
		t.Fatalf("driver touched before play: %v", d.calls)
	}
	if err := r.Play(); err != nil {
		t.Fatalf("play: %v", err)
	}
	if d.playURL != media().URL || d.playFrom != 42000 || d.volume != 0.4 {
		t.Fatalf("unexpected start %s@%d vol %v", d.playURL, d.playFrom, d.volume)
	}

	d.position = 43000
	_ = r.Pause()
	_ = r.Play()
	want := []string{"play", "pause", "resume"}
	if len(d.calls) != len(want) {
		t.Fatalf("unexpected calls %v", d.calls)
	}
	for i := range want {
		if d.calls[i] != want[i] {
			t.Fatalf("unexpected calls %v", d.calls)
		}
	}
	if got := r.PositionMS(); got != 43000 {
		t.Fatalf("expected live position, got %d", got)
	}
}

func TestLoadStopsRunningPipeline(t *testing.T) {
	d := &fakeDriver{}
	r := newRenderer(zap.NewNop(), d, 0)
	_ = r.Load(media())
	_ = r.Play()
	next := media()
	next.TrackID = "t2"
	next.URL = "http://catalog/tracks/t2/stream"
	if err := r.Load(next); err != nil {
		t.Fatalf("load: %v", err)
	}
	if d.calls[len(d.calls)-1] != "stop" {
		t.Fatalf("expected stop, got %v", d.calls)
	}
	if r.PositionMS() != 0 {
		t.Fatalf("expected position reset")
	}
	if err := r.Load(ports.Media{TrackID: "x"}); err == nil {
		t.Fatalf("expected url error")
	}
}

func TestEndOfStreamFiresOnce(t *testing.T) {
	d := &fakeDriver{duration: 180000}
	r := newRenderer(zap.NewNop(), d, time.Millisecond)
	ended := make(chan struct{}, 4)
	r.OnEnded(func() { ended <- struct{}{} })
	_ = r.Load(media())
	_ = r.Play()
	d.ended = true

	r.checkEnded()
	r.checkEnded()
	if len(ended) != 1 {
		t.Fatalf("expected one end event, got %d", len(ended))
	}
	if r.PositionMS() != 180000 {
		t.Fatalf("expected position at duration, got %d", r.PositionMS())
	}
}

func TestRunStopsPipelineOnCancel(t *testing.T) {
	d := &fakeDriver{}
	r := newRenderer(zap.NewNop(), d, time.Millisecond)
	_ = r.Load(media())
	_ = r.Play()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("run did not stop")
	}
	if d.calls[len(d.calls)-1] != "stop" {
		t.Fatalf("expected stop on exit, got %v", d.calls)
	}
}
