package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battalert/pkg/alert"
	"github.com/charlie0129/battalert/pkg/config"
	"github.com/charlie0129/battalert/pkg/metrics"
)

// Request is what the notification collaborator receives.
type Request struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Kind      string    `json:"kind"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	Sound     bool      `json:"sound"`
	Capacity  int       `json:"capacity"`
	CreatedAt time.Time `json:"createdAt"`
}

// Sink presents a request to the user. Delivery failures are the sink's
// business: the dispatcher logs them and moves on.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, req Request) error
}

// Dispatcher turns alert decisions into requests and hands them to sinks.
type Dispatcher struct {
	sinks []Sink
	now   func() time.Time
}

func NewDispatcher(sinks ...Sink) *Dispatcher {
	return &Dispatcher{
		sinks: sinks,
		now:   time.Now,
	}
}

// Build maps a decision to a request. It returns nil for alert.None.
func (d *Dispatcher) Build(source string, decision alert.Decision, snap config.Snapshot) *Request {
	var title, body string

	switch decision.Kind {
	case alert.Low:
		title = "Low Battery"
		body = fmt.Sprintf("Battery is at %d%%. Please plug in the charger.", decision.Capacity)
	case alert.High:
		title = "High Battery"
		body = fmt.Sprintf("Battery is at %d%%. Please unplug the charger.", decision.Capacity)
	default:
		return nil
	}

	return &Request{
		ID:        uuid.NewString(),
		Source:    source,
		Kind:      decision.Kind.String(),
		Title:     title,
		Body:      body,
		Sound:     snap.SoundEnabled,
		Capacity:  decision.Capacity,
		CreatedAt: d.now(),
	}
}

// Dispatch builds the request and delivers it to every sink. It returns the
// request that was sent, or nil when the decision raised nothing.
func (d *Dispatcher) Dispatch(ctx context.Context, source string, decision alert.Decision, snap config.Snapshot) *Request {
	req := d.Build(source, decision, snap)
	if req == nil {
		return nil
	}

	metrics.AlertsRaised.WithLabelValues(req.Kind).Inc()

	logrus.WithFields(logrus.Fields{
		"id":       req.ID,
		"source":   req.Source,
		"kind":     req.Kind,
		"capacity": req.Capacity,
		"sound":    req.Sound,
	}).Info("raising battery alert")

	for _, s := range d.sinks {
		if err := s.Deliver(ctx, *req); err != nil {
			metrics.DeliveryErrors.WithLabelValues(s.Name()).Inc()
			logrus.WithFields(logrus.Fields{
				"id":   req.ID,
				"sink": s.Name(),
			}).Warnf("failed to deliver alert: %v", err)
		}
	}

	return req
}
