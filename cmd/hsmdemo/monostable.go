package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/librescoot/librehsm"
	"github.com/librescoot/librehsm/internal/monostable"
	"github.com/librescoot/librehsm/timer"
)

func newMonostableCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "monostable",
		Short: "Run a bank of retriggerable monostable switches",
		Long: `Run a bank of retriggerable monostable switches.

Commands, one per line:
  1..n  trigger switch n
  q     quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			return a.runMonostable(cmd.Context(), cmd.InOrStdin())
		},
	}
}

func (a *app) runMonostable(ctx context.Context, in io.Reader) error {
	n := a.cfg.Monostable.Switches
	status := newStatusLine(a.out, n)
	loops := make([]*timer.Loop, n)

	for i := range n {
		render := func(st monostable.Status) {
			status.set(i, st.String())
		}
		name := fmt.Sprintf("switch-%d", i+1)
		s, err := monostable.New(i+1, a.cfg.Monostable.Timeout, render, a.machineOptions(name, monostable.EventName)...)
		if err != nil {
			return err
		}
		loops[i] = timer.NewLoop(s.Machine(), timer.WithTick(a.cfg.Monostable.Refresh))
	}

	fmt.Fprintf(a.out, "press '1' to '%d' to switch lights on, 'q' to quit\n", n)

	err := a.run(ctx, in, loops, func(_ context.Context, cmd string) bool {
		if cmd == "q" {
			return false
		}
		i, err := strconv.Atoi(cmd)
		if err != nil || i < 1 || i > n {
			if cmd != "" {
				a.logger.Warn("unhandled command", "command", cmd)
			}
			return true
		}
		loops[i-1].Post(librehsm.Event{ID: monostable.EventTrigger})
		return true
	})

	status.done()
	return err
}
