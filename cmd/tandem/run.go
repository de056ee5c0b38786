package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mikey-austin/tandem/internal/core"
	devicecore "github.com/mikey-austin/tandem/internal/modules/device_core"
)

const helpText = `commands:
  play | pause | toggle        control playback
  seek <pos|+d|-d>             seek, e.g. seek 1m30s, seek +10s
  next | prev                  skip tracks
  vol <0..100|+n|-n>           set volume in percent
  shuffle | repeat             toggle shuffle, cycle repeat
  load <track-id>              play a track now
  queue [track-id...]          replace the queue, or show it
  active [device-id]           make a device active (default: this one)
  devices | status             show the roster or the session
  quit`

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run this device and read control commands from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			s, err := newSession(app)
			if err != nil {
				return err
			}
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()
			done := s.start(ctx)

			repl := &repl{session: s, out: cmd.OutOrStdout()}
			lines := make(chan string)
			go readLines(cmd.InOrStdin(), lines)

			fmt.Fprintf(repl.out, "device %s (%s); type help for commands\n", s.id.DeviceID, s.id.Name)
			for {
				select {
				case err := <-done:
					if err != nil {
						return core.ErrorFor("device", err)
					}
					return nil
				case line, ok := <-lines:
					if !ok {
						cancel()
						return <-done
					}
					quit, err := repl.exec(ctx, line)
					if err != nil {
						fmt.Fprintln(repl.out, "error:", err)
					}
					if quit {
						cancel()
						return <-done
					}
				}
			}
		},
	}
}

func readLines(in io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		lines <- scanner.Text()
	}
}

type repl struct {
	session *session
	out     io.Writer
}

// exec runs one command line. It reports whether the user asked to quit.
func (r *repl) exec(parent context.Context, line string) (bool, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(parent, r.session.app.timeout)
	defer cancel()

	dev := r.session.device
	name, args := strings.ToLower(fields[0]), fields[1:]
	switch name {
	case "help", "?":
		_, err := fmt.Fprintln(r.out, helpText)
		return false, err
	case "quit", "exit", "q":
		return true, nil
	case "play":
		return false, r.do(ctx, (*devicecore.Dispatcher).Play)
	case "pause":
		return false, r.do(ctx, (*devicecore.Dispatcher).Pause)
	case "toggle":
		return false, r.do(ctx, (*devicecore.Dispatcher).TogglePlay)
	case "next":
		return false, r.do(ctx, (*devicecore.Dispatcher).Next)
	case "prev", "previous":
		return false, r.do(ctx, (*devicecore.Dispatcher).Previous)
	case "seek":
		if len(args) != 1 {
			return false, usage("seek <pos|+d|-d>")
		}
		snap, err := dev.Snapshot(ctx)
		if err != nil {
			return false, err
		}
		pos, err := core.ResolveSeek(args[0], snap.PositionMS)
		if err != nil {
			return false, err
		}
		return false, r.do(ctx, func(d *devicecore.Dispatcher) error { return d.Seek(pos) })
	case "vol", "volume":
		if len(args) != 1 {
			return false, usage("vol <0..100|+n|-n>")
		}
		snap, err := dev.Snapshot(ctx)
		if err != nil {
			return false, err
		}
		volume, err := core.ResolveVolume(args[0], snap.Volume)
		if err != nil {
			return false, err
		}
		return false, r.do(ctx, func(d *devicecore.Dispatcher) error {
			d.SetVolume(volume)
			return nil
		})
	case "shuffle":
		var on bool
		err := r.do(ctx, func(d *devicecore.Dispatcher) error {
			on = d.ToggleShuffle()
			return nil
		})
		if err == nil {
			_, err = fmt.Fprintf(r.out, "shuffle %s\n", onOffWord(on))
		}
		return false, err
	case "repeat":
		var mode core.RepeatMode
		err := r.do(ctx, func(d *devicecore.Dispatcher) error {
			mode = d.CycleRepeat()
			return nil
		})
		if err == nil {
			_, err = fmt.Fprintf(r.out, "repeat %s\n", mode)
		}
		return false, err
	case "load":
		if len(args) != 1 {
			return false, usage("load <track-id>")
		}
		tracks, err := r.session.resolve(ctx, args)
		if err != nil {
			return false, err
		}
		return false, r.do(ctx, func(d *devicecore.Dispatcher) error { return d.Load(tracks[0]) })
	case "queue":
		if len(args) == 0 {
			snap, err := dev.Snapshot(ctx)
			if err != nil {
				return false, err
			}
			return false, r.session.app.printer.Print(core.QueueResult{Index: snap.QueueIndex, Shuffle: snap.Shuffle, Tracks: snap.Queue})
		}
		tracks, err := r.session.resolve(ctx, args)
		if err != nil {
			return false, err
		}
		return false, r.do(ctx, func(d *devicecore.Dispatcher) error { return d.PlayQueue(tracks, 0) })
	case "active":
		target := dev.SelfID()
		if len(args) == 1 {
			target = args[0]
		}
		return false, r.do(ctx, func(d *devicecore.Dispatcher) error { return d.SetActiveDevice(target) })
	case "devices":
		result, err := r.session.devices(ctx)
		if err != nil {
			return false, err
		}
		return false, r.session.app.printer.Print(result)
	case "status":
		result, err := r.session.status(ctx)
		if err != nil {
			return false, err
		}
		return false, r.session.app.printer.Print(result)
	default:
		return false, usage(fmt.Sprintf("unknown command %q; type help", name))
	}
}

func (r *repl) do(ctx context.Context, fn func(*devicecore.Dispatcher) error) error {
	err := r.session.device.Do(ctx, fn)
	if err != nil {
		r.session.app.log.Debug("command failed", zap.Error(err))
		return core.ErrorFor("command", err)
	}
	return nil
}

func usage(msg string) error {
	return &core.CLIError{Code: core.ExitUsage, Msg: msg}
}

func onOffWord(v bool) string {
	if v {
		return "on"
	}
	return "off"
}
