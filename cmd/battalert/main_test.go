package main

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charlie0129/battalert/pkg/alert"
	"github.com/charlie0129/battalert/pkg/config"
	"github.com/charlie0129/battalert/pkg/events"
	"github.com/charlie0129/battalert/pkg/monitor"
	"github.com/charlie0129/battalert/pkg/powerinfo"
	"github.com/charlie0129/battalert/pkg/utils/ptr"
)

func init() {
	color.NoColor = true
}

func bufferedCommand() (*cobra.Command, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	return cmd, buf
}

func TestParseThresholdArgs(t *testing.T) {
	tests := []struct {
		args      []string
		low, high int
		wantErr   bool
	}{
		{[]string{"20", "80"}, 20, 80, false},
		{[]string{"20"}, 0, 0, true},
		{[]string{"x", "80"}, 0, 0, true},
		{[]string{"20", "80%"}, 0, 0, true},
	}

	for _, tt := range tests {
		low, high, err := parseThresholdArgs(tt.args)
		if tt.wantErr {
			assert.Error(t, err, "%v", tt.args)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.low, low)
		assert.Equal(t, tt.high, high)
	}
}

func testStatusData() *statusData {
	return &statusData{
		status: &monitor.Status{
			Running:         true,
			IntervalSeconds: 90,
			LastTick:        time.Unix(1700000000, 0),
			Readings: []powerinfo.Reading{
				{SourceID: "BAT1", CapacityPercent: 85, IsCharging: true},
				{SourceID: "BAT0", CapacityPercent: 50},
			},
			States: map[string]alert.State{"BAT1": alert.AlertedHigh, "BAT0": alert.Normal},
		},
		config: &config.RawFileConfig{LowThreshold: ptr.To(15), SoundEnabled: ptr.To(false)},
	}
}

func TestPrintStatus(t *testing.T) {
	cmd, buf := bufferedCommand()
	printStatus(cmd, testStatusData())

	out := buf.String()
	assert.Contains(t, out, "Check every: 1m30s")
	assert.Contains(t, out, "BAT0: 50% on battery")
	assert.Contains(t, out, "BAT1: 85% charging (alerted-high)")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("BAT0")), bytes.Index(buf.Bytes(), []byte("BAT1")))
	assert.Contains(t, out, "Low threshold: 15%")
	assert.Contains(t, out, "High threshold: 80%")
	assert.Contains(t, out, "Alert sound: ✘")
}

func TestBuildStatusJSON(t *testing.T) {
	out := buildStatusJSON(testStatusData())

	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"alertState":"alerted-high"`)
	assert.Contains(t, string(b), `"BAT1":"alerted-high"`)

	require.Len(t, out.Batteries, 2)
	assert.Equal(t, "BAT0", out.Batteries[0].Source)
	assert.Equal(t, 15, out.Configuration.LowThreshold)
	assert.Equal(t, 80, out.Configuration.HighThreshold)
	require.NotNil(t, out.LastCheck)
}

func TestPrintEvent(t *testing.T) {
	mustEvent := func(name string, v any) events.Event {
		b, err := json.Marshal(v)
		require.NoError(t, err)
		return events.Event{Name: name, Data: b}
	}

	cmd, buf := bufferedCommand()
	printEvent(cmd, mustEvent(events.AlertRaised, events.AlertRaisedEvent{Kind: "low", Title: "Low Battery", Body: "Battery is at 9%."}), false)
	assert.Contains(t, buf.String(), "[low] Low Battery: Battery is at 9%.")

	buf.Reset()
	printEvent(cmd, mustEvent(events.BatteryLevels, events.BatteryLevelsEvent{Levels: []events.BatteryLevel{{Source: "BAT0", Capacity: 40}}}), false)
	assert.Empty(t, buf.String())

	printEvent(cmd, mustEvent(events.BatteryLevels, events.BatteryLevelsEvent{Levels: []events.BatteryLevel{{Source: "BAT0", Capacity: 40}}}), true)
	assert.Contains(t, buf.String(), "BAT0: 40% on battery")

	buf.Reset()
	printEvent(cmd, mustEvent(events.MonitorState, events.MonitorStateEvent{Running: true, IntervalSeconds: 60}), false)
	assert.Contains(t, buf.String(), "monitoring every 1m0s")
}

func TestCommandTree(t *testing.T) {
	cmd := NewCommand()

	for _, name := range []string{"daemon", "status", "check", "thresholds", "interval", "sound", "start", "stop", "watch", "version"} {
		c, _, err := cmd.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, c.Name())
	}
}
