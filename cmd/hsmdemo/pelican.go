package main

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/librescoot/librehsm"
	"github.com/librescoot/librehsm/internal/pelican"
	"github.com/librescoot/librehsm/timer"
)

func newPelicanCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "pelican",
		Short: "Run a pedestrian light controlled crossing",
		Long: `Run a pedestrian light controlled crossing.

Commands, one per line:
  p or space  a pedestrian is waiting
  o           switch the crossing off or on
  q           quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(cmd, opts)
			if err != nil {
				return err
			}
			return a.runPelican(cmd.Context(), cmd.InOrStdin())
		},
	}
}

func (a *app) runPelican(ctx context.Context, in io.Reader) error {
	c, err := pelican.New(a.cfg.Pelican.Timing(), a.machineOptions("pelican", pelican.EventName)...)
	if err != nil {
		return err
	}
	loop := timer.NewLoop(c.Machine())

	status := newStatusLine(a.out, 1)
	c.OnChange(func(l pelican.Lights) {
		status.set(0, l.String())
	})

	fmt.Fprintln(a.out, "press 'p' or space to trigger PEDS_WAITING, 'o' to switch off/on, 'q' to quit")

	err = a.run(ctx, in, []*timer.Loop{loop}, func(ctx context.Context, cmd string) bool {
		switch cmd {
		case "p", " ":
			loop.Post(librehsm.Event{ID: pelican.EventPedsWaiting})
		case "o":
			// the toggle depends on the current state, so decide on the loop
			err := loop.Do(ctx, func(m *librehsm.Machine) {
				if err := m.Dispatch(c.Toggle()); err != nil {
					a.logger.Warn("toggle failed", "error", err)
				}
			})
			if err != nil {
				a.logger.Debug("toggle not delivered", "error", err)
			}
		case "q":
			return false
		case "":
		default:
			a.logger.Warn("unhandled command", "command", cmd)
		}
		return true
	})

	status.done()
	return err
}
