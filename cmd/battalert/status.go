package main

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/charlie0129/battalert/pkg/alert"
	"github.com/charlie0129/battalert/pkg/config"
	"github.com/charlie0129/battalert/pkg/monitor"
	"github.com/charlie0129/battalert/pkg/powerinfo"
)

type statusData struct {
	status *monitor.Status
	config *config.RawFileConfig
}

type statusJSON struct {
	Running         bool                   `json:"running"`
	IntervalSeconds int                    `json:"intervalSeconds"`
	LastCheck       *time.Time             `json:"lastCheck"`
	Batteries       []statusBatteryJSON    `json:"batteries"`
	Configuration   statusConfigJSON       `json:"configuration"`
	States          map[string]alert.State `json:"states"`
}

type statusBatteryJSON struct {
	Source          string `json:"source"`
	CapacityPercent int    `json:"capacityPercent"`
	Charging        bool   `json:"charging"`
	AlertState      string `json:"alertState"`
}

type statusConfigJSON struct {
	LowThreshold       int  `json:"lowThreshold"`
	HighThreshold      int  `json:"highThreshold"`
	SoundEnabled       bool `json:"soundEnabled"`
	AllowNonRootAccess bool `json:"allowNonRootAccess"`
}

// fetchStatusData gathers all data required for the status command from the daemon.
func fetchStatusData() (*statusData, error) {
	st, err := apiClient.GetStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}

	conf, err := apiClient.GetConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to get config: %w", err)
	}

	return &statusData{
		status: st,
		config: conf,
	}, nil
}

func NewStatusCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:     "status",
		GroupID: gBasic,
		Short:   "Get the current status of battalert",
		Long:    `Get monitoring status, battery levels, alert states and configuration.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			data, err := fetchStatusData()
			if err != nil {
				return err
			}

			if asJSON {
				b, err := json.MarshalIndent(buildStatusJSON(data), "", "  ")
				if err != nil {
					return err
				}
				cmd.Println(string(b))
				return nil
			}

			printStatus(cmd, data)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "print status as JSON")

	return cmd
}

func buildStatusJSON(data *statusData) statusJSON {
	conf := config.NewFileFromConfig(data.config, "")
	st := data.status

	out := statusJSON{
		Running:         st.Running,
		IntervalSeconds: st.IntervalSeconds,
		States:          st.States,
		Configuration: statusConfigJSON{
			LowThreshold:       conf.LowThreshold(),
			HighThreshold:      conf.HighThreshold(),
			SoundEnabled:       conf.SoundEnabled(),
			AllowNonRootAccess: conf.AllowNonRootAccess(),
		},
	}
	if !st.LastTick.IsZero() {
		t := st.LastTick
		out.LastCheck = &t
	}
	for _, r := range sortedReadings(st) {
		out.Batteries = append(out.Batteries, statusBatteryJSON{
			Source:          r.SourceID,
			CapacityPercent: r.CapacityPercent,
			Charging:        r.IsCharging,
			AlertState:      st.States[r.SourceID].String(),
		})
	}

	return out
}

func printStatus(cmd *cobra.Command, data *statusData) {
	conf := config.NewFileFromConfig(data.config, "")
	st := data.status

	cmd.Println(bold("Monitoring:"))
	cmd.Printf("  Running: %s\n", bool2Text(st.Running))
	cmd.Printf("  Check every: %s\n", bold("%s", time.Duration(st.IntervalSeconds)*time.Second))
	if !st.LastTick.IsZero() {
		cmd.Printf("  Last check: %s\n", bold("%s", st.LastTick.Local().Format(time.Kitchen)))
	}
	cmd.Println()

	cmd.Println(bold("Battery status:"))
	readings := sortedReadings(st)
	if len(readings) == 0 {
		cmd.Println("  No battery readings yet. Run 'battalert check' to read now.")
	}
	for _, r := range readings {
		cmd.Printf("  %s: %s %s", r.SourceID, bold("%d%%", r.CapacityPercent), chargingText(r.IsCharging))
		if s, ok := st.States[r.SourceID]; ok && s != alert.Normal {
			cmd.Printf(" (%s)", color.YellowString(s.String()))
		}
		cmd.Println()
	}
	cmd.Println()

	cmd.Println(bold("Alert configuration:"))
	cmd.Printf("  Low threshold: %s\n", bold("%d%%", conf.LowThreshold()))
	cmd.Printf("  High threshold: %s\n", bold("%d%%", conf.HighThreshold()))
	cmd.Printf("  Alert sound: %s\n", bool2Text(conf.SoundEnabled()))
	cmd.Printf("  Allow non-root users to access the daemon: %s\n", bool2Text(conf.AllowNonRootAccess()))
}

func sortedReadings(st *monitor.Status) []powerinfo.Reading {
	readings := make([]powerinfo.Reading, len(st.Readings))
	copy(readings, st.Readings)
	sort.Slice(readings, func(i, j int) bool { return readings[i].SourceID < readings[j].SourceID })
	return readings
}

func chargingText(charging bool) string {
	if charging {
		return color.GreenString("charging")
	}
	return color.RedString("on battery")
}

func alertText(kind string) string {
	switch kind {
	case alert.Low.String():
		return color.New(color.Bold, color.FgRed).Sprint("[low]")
	case alert.High.String():
		return color.New(color.Bold, color.FgYellow).Sprint("[high]")
	default:
		return "[" + kind + "]"
	}
}

func bool2Text(b bool) string {
	if b {
		return color.New(color.Bold, color.FgGreen).Sprint("✔")
	}
	return color.New(color.Bold, color.FgRed).Sprint("✘")
}

func bold(format string, a ...interface{}) string {
	return color.New(color.Bold).Sprintf(format, a...)
}
