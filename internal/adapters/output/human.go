package output

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mikey-austin/tandem/internal/core"
	"github.com/pterm/pterm"
)

// HumanPrinter prints human-readable output.
type HumanPrinter struct {
	Out io.Writer
}

// Print renders human output.
func (p HumanPrinter) Print(v any) error {
	out := p.Out
	if out == nil {
		out = os.Stdout
	}
	switch data := v.(type) {
	case core.StatusResult:
		return printStatus(out, data)
	case core.DevicesResult:
		return printDevices(out, data)
	case core.QueueResult:
		return printQueue(out, data)
	case core.IdentityResult:
		return printIdentity(out, data)
	default:
		_, err := fmt.Fprintln(out, "ok")
		return err
	}
}

func printStatus(out io.Writer, result core.StatusResult) error {
	s := result.Session
	state := "paused"
	if s.IsPlaying {
		state = "playing"
	}
	item := "nothing loaded"
	if s.CurrentTrack != nil {
		item = formatTrack(*s.CurrentTrack)
	}
	role := "passive"
	if s.ActiveDeviceID == result.DeviceID || len(s.Devices) < 2 {
		role = "active"
	}

	line := strings.TrimSpace(fmt.Sprintf("[%s]  %s  %s  vol %d%%", state, item, formatPosition(s.PositionMS, s.DurationMS()), int(s.Volume*100+0.5)))
	if _, err := fmt.Fprintln(out, line); err != nil {
		return err
	}
	_, err := fmt.Fprintf(out, "repeat %s  shuffle %s  queue %d/%d  %s on %s (%s)\n",
		s.RepeatMode, onOff(s.Shuffle), s.QueueIndex+1, len(s.Queue), role, result.DeviceID, result.Channel)
	return err
}

func printDevices(out io.Writer, result core.DevicesResult) error {
	data := pterm.TableData{{"", "NAME", "DEVICE_ID"}}
	for _, device := range result.Devices {
		marker := ""
		if device.IsActive {
			marker = "*"
		}
		name := device.Name
		if device.ID == result.SelfID {
			name += " (this device)"
		}
		data = append(data, []string{marker, name, device.ID})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(out).Render()
}

func printQueue(out io.Writer, result core.QueueResult) error {
	data := pterm.TableData{{"", "INDEX", "TITLE", "ARTIST", "LEN", "TRACK_ID"}}
	for i, track := range result.Tracks {
		marker := ""
		if i == result.Index {
			marker = ">"
		}
		data = append(data, []string{marker, fmt.Sprintf("%d", i), track.Title, track.Artist, formatMS(track.DurationMS()), track.ID})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).WithWriter(out).Render()
}

func printIdentity(out io.Writer, result core.IdentityResult) error {
	_, err := fmt.Fprintf(out, "%s  %s (%s)\n", result.DeviceID, result.Name, result.Class)
	return err
}

func formatTrack(track core.Track) string {
	title := track.Title
	if title == "" {
		title = track.ID
	}
	if track.Artist == "" {
		return title
	}
	return fmt.Sprintf("%s - %s", track.Artist, title)
}

func formatPosition(pos, dur int64) string {
	if pos == 0 && dur == 0 {
		return ""
	}
	if dur > 0 {
		return fmt.Sprintf("%s / %s (%d%%)", formatMS(pos), formatMS(dur), (pos*100)/dur)
	}
	return fmt.Sprintf("%s / %s", formatMS(pos), formatMS(dur))
}

func formatMS(ms int64) string {
	if ms <= 0 {
		return "0:00"
	}
	secs := ms / 1000
	return fmt.Sprintf("%d:%02d", secs/60, secs%60)
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
