package events

import "encoding/json"

// Event name constants
const (
	AlertRaised   = "alert.raised"
	MonitorState  = "monitor.state"
	BatteryLevels = "battery.levels"
)

// Event is a generic SSE event from daemon.
type Event struct {
	Name string          // SSE event name
	Data json.RawMessage // Raw JSON payload
}

// AlertRaisedEvent is the typed payload for alert.raised.
type AlertRaisedEvent struct {
	ID       string `json:"id"`
	Source   string `json:"source"`
	Kind     string `json:"kind"`
	Title    string `json:"title"`
	Body     string `json:"body"`
	Sound    bool   `json:"sound"`
	Capacity int    `json:"capacity"`
	Ts       int64  `json:"ts"`
}

// MonitorStateEvent is the typed payload for monitor.state.
type MonitorStateEvent struct {
	Running         bool  `json:"running"`
	IntervalSeconds int   `json:"intervalSeconds"`
	Ts              int64 `json:"ts"`
}

// BatteryLevel is one entry of the battery.levels payload.
type BatteryLevel struct {
	Source   string `json:"source"`
	Capacity int    `json:"capacity"`
	Charging bool   `json:"charging"`
}

// BatteryLevelsEvent is published after every tick so displays can refresh
// independently of alert state.
type BatteryLevelsEvent struct {
	Levels []BatteryLevel `json:"levels"`
	Ts     int64          `json:"ts"`
}

// DecodeAs decodes the event payload into the caller-specified generic type T.
// It ignores the event name and simply unmarshals Data into T. If Data is empty,
// it returns the zero value of T with a nil error.
//
// Example:
//
//	payload, err := events.DecodeAs[events.AlertRaisedEvent](ev)
//	if err != nil { /* handle */ }
//	fmt.Println(payload.Title, payload.Body)
func DecodeAs[T any](e Event) (T, error) {
	var zero T
	if len(e.Data) == 0 {
		return zero, nil
	}
	var v T
	if err := json.Unmarshal(e.Data, &v); err != nil {
		return zero, err
	}
	return v, nil
}
