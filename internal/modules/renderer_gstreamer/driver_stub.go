//go:build !gstreamer

package renderergstreamer

import "errors"

var errNoGStreamer = errors.New("gstreamer build tag not enabled")

// Driver is a stub when gstreamer tag is not enabled.
type Driver struct{}

// NewDriver returns an error when gstreamer build tag is missing.
func NewDriver(pipeline string, device string) (*Driver, error) {
	return nil, errNoGStreamer
}

func (d *Driver) Play(url string, positionMS int64) error { return errNoGStreamer }
func (d *Driver) Pause() error                            { return errNoGStreamer }
func (d *Driver) Resume() error                           { return errNoGStreamer }
func (d *Driver) Stop() error                             { return errNoGStreamer }
func (d *Driver) Seek(positionMS int64) error             { return errNoGStreamer }
func (d *Driver) SetVolume(volume float64) error          { return errNoGStreamer }
func (d *Driver) Position() (int64, int64, bool)          { return 0, 0, false }
func (d *Driver) Ended() bool                             { return false }
