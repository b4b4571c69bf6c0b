package client

import (
	"bufio"
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/gaugeread/gaugeread/pkg/events"
)

const resubscribeDelay = 2 * time.Second

// SubscribeEvents streams server events until ctx is done, reconnecting when
// the stream drops. The returned channel is closed when ctx is done.
func (c *Client) SubscribeEvents(ctx context.Context) <-chan events.Event {
	ch := make(chan events.Event, 16)

	go func() {
		defer close(ch)
		for {
			err := c.streamEvents(ctx, ch)
			if ctx.Err() != nil {
				return
			}
			logrus.WithError(err).Debug("event stream ended, reconnecting")

			select {
			case <-ctx.Done():
				return
			case <-time.After(resubscribeDelay):
			}
		}
	}()

	return ch
}

func (c *Client) streamEvents(ctx context.Context, ch chan<- events.Event) error {
	resp, err := c.stream.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		SetHeader("Accept", "text/event-stream").
		Get("/events")
	if err != nil {
		return err
	}
	body := resp.RawBody()
	defer body.Close()

	if !resp.IsSuccess() {
		return decodeError(resp.StatusCode(), nil)
	}

	return readEvents(ctx, bufio.NewScanner(body), ch)
}

// readEvents parses "event:" and "data:" lines, dispatching on blank lines.
func readEvents(ctx context.Context, sc *bufio.Scanner, ch chan<- events.Event) error {
	var (
		name string
		data strings.Builder
	)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if name != "" || data.Len() > 0 {
				ev := events.Event{Name: name, Data: []byte(data.String())}
				select {
				case ch <- ev:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			name = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			name = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	return sc.Err()
}
