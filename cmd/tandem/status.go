package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"github.com/mikey-austin/tandem/internal/core"
	"github.com/mikey-austin/tandem/pkg/tandem"
)

func statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Connect, wait for the session snapshot and print it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			return oneShot(cmd.Context(), app, func(ctx context.Context, s *session) (any, error) {
				return s.status(ctx)
			})
		},
	}
}

func devicesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the devices of the account",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			return oneShot(cmd.Context(), app, func(ctx context.Context, s *session) (any, error) {
				return s.devices(ctx)
			})
		},
	}
}

func idCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "id",
		Short: "Print this device's id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := fromContext(cmd)
			return app.printer.Print(identity(app.log, app.cfg))
		},
	}
}

// oneShot joins the session, waits for the first roster and snapshot,
// prints fn's result and leaves.
func oneShot(parent context.Context, app *app, fn func(context.Context, *session) (any, error)) error {
	s, err := newSession(app)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()
	done := s.start(ctx)

	waitCtx, waitCancel := context.WithTimeout(ctx, app.timeout)
	defer waitCancel()
	if err := s.messages.wait(waitCtx, tandem.TypeSync, tandem.TypeListUpdate); err != nil {
		cancel()
		<-done
		if errors.Is(err, context.DeadlineExceeded) {
			return core.WrapError(core.ExitTimeout, "no response from coordinator", core.ErrNotConnected)
		}
		return err
	}

	result, err := fn(waitCtx, s)
	cancel()
	if runErr := <-done; runErr != nil && err == nil {
		err = runErr
	}
	if err != nil {
		return core.ErrorFor("status", err)
	}
	return app.printer.Print(result)
}
