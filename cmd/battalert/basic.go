package main

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/charlie0129/battalert/pkg/config"
	"github.com/charlie0129/battalert/pkg/version"
)

func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version",
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("%s %s\n", version.Version, version.GitCommit)
		},
	}
}

func NewThresholdsCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "thresholds LOW HIGH",
		Short:   "Set low and high alert thresholds",
		GroupID: gBasic,
		Long: fmt.Sprintf(`Set low and high alert thresholds.

Both are percentages. Values outside %d-%d are clamped, and HIGH must be
greater than LOW after clamping.

A low alert is shown once when the charge drops to LOW while unplugged. A high
alert is shown once when the charge reaches HIGH while charging. Neither
repeats until the charge is back strictly between the two.`, config.MinThreshold, config.MaxThreshold),
		Args: cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			low, high, err := parseThresholdArgs(args)
			if err != nil {
				return err
			}

			ret, err := apiClient.SetThresholds(low, high)
			if err != nil {
				return fmt.Errorf("failed to set thresholds: %v", err)
			}

			logResponse(ret)

			return nil
		},
	}
}

func NewIntervalCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "interval SECONDS",
		Short:   "Set how often the battery is checked",
		GroupID: gBasic,
		Long: fmt.Sprintf(`Set how often the battery is checked, in seconds.

The minimum is %d seconds. Shorter intervals are raised to it. The new
interval takes effect right away, starting with an immediate check.`, int(config.MinPollInterval.Seconds())),
		Args: cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			seconds, err := parseIntArg(args, "interval")
			if err != nil {
				return err
			}

			ret, err := apiClient.SetInterval(seconds)
			if err != nil {
				return fmt.Errorf("failed to set interval: %v", err)
			}

			logResponse(ret)

			return nil
		},
	}
}

func NewSoundCommand() *cobra.Command {
	return newEnableDisableCommand(
		"sound",
		"alert sound",
		"Play a sound together with battery alerts.",
		func() (string, error) { return apiClient.SetSound(true) },
		func() (string, error) { return apiClient.SetSound(false) },
	)
}

func NewCheckCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "check",
		Short:   "Check the battery now",
		GroupID: gBasic,
		Long: `Check the battery now instead of waiting for the next scheduled check.

Alerts are raised the same way a scheduled check would. When monitoring is
stopped, the battery is only read.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := apiClient.Check()
			if err != nil {
				return err
			}

			if len(res.Readings) == 0 {
				cmd.Println("No battery found.")
			}
			for _, r := range res.Readings {
				cmd.Printf("%s: %s %s\n", r.SourceID, bold("%d%%", r.CapacityPercent), chargingText(r.IsCharging))
			}
			for _, a := range res.Alerts {
				cmd.Printf("%s %s\n", alertText(a.Kind), a.Body)
			}

			return nil
		},
	}
}

func NewStartCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "start",
		Short:   "Start monitoring",
		GroupID: gAdvanced,
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := apiClient.StartMonitor()
			if err != nil {
				return fmt.Errorf("failed to start monitoring: %v", err)
			}
			logResponse(ret)
			logrus.Info("monitoring started")
			return nil
		},
	}
}

func NewStopCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "stop",
		Short:   "Stop monitoring",
		GroupID: gAdvanced,
		Long: `Stop monitoring.

Alert state is forgotten, so after 'battalert start' an alert may be shown
again even if it was shown before.`,
		RunE: func(_ *cobra.Command, _ []string) error {
			ret, err := apiClient.StopMonitor()
			if err != nil {
				return fmt.Errorf("failed to stop monitoring: %v", err)
			}
			logResponse(ret)
			logrus.Info("monitoring stopped")
			return nil
		},
	}
}
