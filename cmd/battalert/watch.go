package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/battalert/pkg/events"
)

func NewWatchCommand() *cobra.Command {
	var levels bool

	cmd := &cobra.Command{
		Use:     "watch",
		Short:   "Stream alerts from the daemon",
		GroupID: gAdvanced,
		Long: `Stream alerts and monitor state changes from the daemon until interrupted.

With --levels, battery levels from every check are printed as well.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			// Fail fast with a helpful error if the daemon is down.
			if _, err := apiClient.GetVersion(); err != nil {
				return err
			}

			for ev := range apiClient.SubscribeEvents(ctx) {
				printEvent(cmd, ev, levels)
			}

			if ctx.Err() == nil {
				logrus.Warn("daemon closed the event stream")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&levels, "levels", false, "also print battery levels")

	return cmd
}

func printEvent(cmd *cobra.Command, ev events.Event, levels bool) {
	switch ev.Name {
	case events.AlertRaised:
		payload, err := events.DecodeAs[events.AlertRaisedEvent](ev)
		if err != nil {
			logrus.WithError(err).Error("failed to decode alert.raised event")
			return
		}
		cmd.Printf("%s %s %s: %s\n", eventTime(payload.Ts), alertText(payload.Kind), payload.Title, payload.Body)
	case events.MonitorState:
		payload, err := events.DecodeAs[events.MonitorStateEvent](ev)
		if err != nil {
			logrus.WithError(err).Error("failed to decode monitor.state event")
			return
		}
		if payload.Running {
			cmd.Printf("%s monitoring every %s\n", eventTime(payload.Ts), time.Duration(payload.IntervalSeconds)*time.Second)
		} else {
			cmd.Printf("%s monitoring stopped\n", eventTime(payload.Ts))
		}
	case events.BatteryLevels:
		if !levels {
			return
		}
		payload, err := events.DecodeAs[events.BatteryLevelsEvent](ev)
		if err != nil {
			logrus.WithError(err).Error("failed to decode battery.levels event")
			return
		}
		for _, l := range payload.Levels {
			cmd.Printf("%s %s: %d%% %s\n", eventTime(payload.Ts), l.Source, l.Capacity, chargingText(l.Charging))
		}
	default:
		logrus.WithField("event", ev.Name).Debug("ignoring unknown event")
	}
}

func eventTime(ts int64) string {
	return time.Unix(ts, 0).Format(time.Kitchen)
}
