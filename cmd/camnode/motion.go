package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/cams3/camnode/pkg/events"
	"github.com/cams3/camnode/pkg/motion"
)

func NewMotionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "motion",
		Short:   "Show or tune motion detection",
		GroupID: gBasic,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := apiClient.GetMotion()
			if err != nil {
				return fmt.Errorf("failed to get motion status: %v", err)
			}
			cmd.Printf("Motion: %s (%d changed cells, %d frames)\n", bool2Text(res.Motion), res.ChangedCells, res.Frames)
			cmd.Print(renderGrid(&res.Grid))
			return nil
		},
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "threshold [0-255]",
			Short: "Set the per-cell change threshold",
			Long: `Set the per-cell change threshold.

A cell counts as changed when its averaged luminance differs from the
previous frame by more than this value.`,
			RunE: func(_ *cobra.Command, args []string) error {
				v, err := parseIntArg(args, "threshold")
				if err != nil {
					return err
				}
				ret, err := apiClient.SetMotionThreshold(v)
				if err != nil {
					return fmt.Errorf("failed to set threshold: %v", err)
				}
				logrus.Infof("daemon responded: %s", ret)
				return nil
			},
		},
		&cobra.Command{
			Use:   "trigger-count [0-255]",
			Short: "Set how many changed cells make a frame motion",
			RunE: func(_ *cobra.Command, args []string) error {
				v, err := parseIntArg(args, "trigger count")
				if err != nil {
					return err
				}
				if v > motion.GridCells {
					logrus.Warnf("trigger count %d exceeds the %d grid cells, motion will never trigger", v, motion.GridCells)
				}
				ret, err := apiClient.SetMotionTriggerCount(v)
				if err != nil {
					return fmt.Errorf("failed to set trigger count: %v", err)
				}
				logrus.Infof("daemon responded: %s", ret)
				return nil
			},
		},
	)

	return cmd
}

func renderGrid(g *motion.Grid) string {
	var sb strings.Builder
	for r := 0; r < motion.GridRows; r++ {
		sb.WriteString(" ")
		for c := 0; c < motion.GridCols; c++ {
			fmt.Fprintf(&sb, " %3d", g.At(r, c))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func NewEventsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "events",
		Short:   "Follow state and motion events",
		GroupID: gAdvanced,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return apiClient.Events(ctx, func(ev events.Event) {
				cmd.Println(formatEvent(ev))
			})
		},
	}
}

func formatEvent(ev events.Event) string {
	switch ev.Name {
	case events.ProvisioningState:
		p, err := events.DecodeAs[events.ProvisioningStateEvent](ev)
		if err != nil {
			break
		}
		line := fmt.Sprintf("%s state %s -> %s", stamp(p.Ts), p.From, bold("%s", p.To))
		if p.Reason != "" {
			line += " (" + p.Reason + ")"
		}
		return line
	case events.Motion:
		m, err := events.DecodeAs[events.MotionEvent](ev)
		if err != nil {
			break
		}
		return fmt.Sprintf("%s motion %s (%d changed cells)", stamp(m.Ts), bool2Text(m.Motion), m.ChangedCells)
	}
	return fmt.Sprintf("%s %s", ev.Name, ev.Data)
}

func stamp(ts int64) string {
	return time.Unix(ts, 0).Format(time.Kitchen)
}
