package notify

import (
	"bytes"
	"context"
	"os/exec"
	"runtime"
	"strconv"
	"time"

	pkgerrors "github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/charlie0129/battalert/pkg/events"
)

// LogSink writes alerts to the logger. It never fails.
type LogSink struct{}

func (LogSink) Name() string { return "log" }

func (LogSink) Deliver(_ context.Context, req Request) error {
	logrus.WithFields(logrus.Fields{
		"id":     req.ID,
		"source": req.Source,
		"sound":  req.Sound,
	}).Warnf("%s: %s", req.Title, req.Body)
	return nil
}

// HubSink publishes alerts to SSE subscribers, e.g. a menubar client.
type HubSink struct {
	Hub *events.Hub
}

func (HubSink) Name() string { return "events" }

func (s HubSink) Deliver(_ context.Context, req Request) error {
	s.Hub.Publish(events.AlertRaised, events.AlertRaisedEvent{
		ID:       req.ID,
		Source:   req.Source,
		Kind:     req.Kind,
		Title:    req.Title,
		Body:     req.Body,
		Sound:    req.Sound,
		Capacity: req.Capacity,
		Ts:       req.CreatedAt.Unix(),
	})
	return nil
}

// CommandSink shows a desktop notification by running osascript on macOS
// and notify-send elsewhere.
type CommandSink struct {
	goos string
	// run is swapped in tests.
	run func(ctx context.Context, name string, args ...string) error
}

func NewCommandSink() *CommandSink {
	return &CommandSink{goos: runtime.GOOS, run: runCommand}
}

func (*CommandSink) Name() string { return "desktop" }

func (s *CommandSink) Deliver(ctx context.Context, req Request) error {
	name, args := s.command(req)
	return s.run(ctx, name, args...)
}

func (s *CommandSink) command(req Request) (string, []string) {
	if s.goos == "darwin" {
		script := "display notification " + strconv.Quote(req.Body) + " with title " + strconv.Quote(req.Title)
		if req.Sound {
			script += ` sound name "default"`
		}
		return "/usr/bin/osascript", []string{"-e", script}
	}

	// notify-send has no sound option. Urgency stands in for it.
	urgency := "normal"
	if req.Sound {
		urgency = "critical"
	}
	return "notify-send", []string{"--app-name=battalert", "--urgency=" + urgency, req.Title, req.Body}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	output := &bytes.Buffer{}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = output
	cmd.Stderr = output
	if err := cmd.Run(); err != nil {
		return pkgerrors.Wrapf(err, "failed to run %s: %s", name, output.String())
	}
	return nil
}

// BreakerSink stops calling a sink that keeps failing, e.g. when the user
// never granted notification permission, and retries it after a cool-down.
type BreakerSink struct {
	sink Sink
	cb   *gobreaker.CircuitBreaker
}

func NewBreakerSink(sink Sink, failures uint32, coolDown time.Duration) *BreakerSink {
	settings := gobreaker.Settings{
		Name:        sink.Name(),
		MaxRequests: 1,
		Timeout:     coolDown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logrus.WithFields(logrus.Fields{
				"sink": name,
				"from": from.String(),
				"to":   to.String(),
			}).Info("notification sink breaker state changed")
		},
	}

	return &BreakerSink{
		sink: sink,
		cb:   gobreaker.NewCircuitBreaker(settings),
	}
}

func (s *BreakerSink) Name() string { return s.sink.Name() }

func (s *BreakerSink) Deliver(ctx context.Context, req Request) error {
	_, err := s.cb.Execute(func() (interface{}, error) {
		return nil, s.sink.Deliver(ctx, req)
	})
	return err
}
