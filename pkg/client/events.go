package client

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/charlie0129/battalert/pkg/events"
)

// SubscribeEvents streams daemon events until ctx is done or the connection
// drops. The returned channel is closed in both cases.
func (c *Client) SubscribeEvents(ctx context.Context) <-chan events.Event {
	ch := make(chan events.Event)

	go func() {
		defer close(ch)

		req, err := c.newRequest(ctx, http.MethodGet, "/events", "")
		if err != nil {
			logrus.Errorf("failed to subscribe to events: %v", err)
			return
		}
		req.Header.Set("Accept", "text/event-stream")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() == nil {
				logrus.Errorf("failed to subscribe to events: %v", err)
			}
			return
		}
		defer func() {
			_ = resp.Body.Close()
		}()

		if resp.StatusCode != http.StatusOK {
			logrus.Errorf("failed to subscribe to events: got %d", resp.StatusCode)
			return
		}

		if err := readEvents(ctx, resp.Body, ch); err != nil && ctx.Err() == nil {
			logrus.Errorf("event stream ended: %v", err)
		}
	}()

	return ch
}

// readEvents parses a text/event-stream body. Multiple data lines of one
// event are joined with newlines.
func readEvents(ctx context.Context, r io.Reader, ch chan<- events.Event) error {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var name string
	var data []string

	for sc.Scan() {
		line := sc.Text()

		switch {
		case line == "":
			if name == "" && len(data) == 0 {
				continue
			}
			ev := events.Event{
				Name: name,
				Data: json.RawMessage(strings.Join(data, "\n")),
			}
			name, data = "", nil

			select {
			case ch <- ev:
			case <-ctx.Done():
				return ctx.Err()
			}
		case strings.HasPrefix(line, ":"):
			// comment
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	return sc.Err()
}
