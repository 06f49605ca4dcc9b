package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"github.com/agentstation/swarmcast/internal/server/events"
	"github.com/agentstation/swarmcast/internal/transport"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// fallbackError carries the reason of a server fallback frame.
type fallbackError struct{ reason string }

func (e *fallbackError) Error() string { return "server requested fallback: " + e.reason }

// errSessionLost means the server no longer knows our session.
var errSessionLost = errors.New("session lost")

// Run receives events until ctx is done. It streams over the websocket,
// reconnecting with backoff, and polls once the failure threshold is reached
// or the server asks it to.
func (c *Client) Run(ctx context.Context) error {
	defer c.setMode(ModeDisconnected, "stopped")

	polling := false
	for ctx.Err() == nil {
		if polling {
			c.runPolling(ctx)
			polling = false
			continue
		}

		err := c.runSocket(ctx)
		if ctx.Err() != nil {
			break
		}

		var fb *fallbackError
		switch {
		case errors.As(err, &fb):
			c.setMode(ModePolling, fb.reason)
			polling = true
			continue
		case errors.Is(err, errSessionLost):
			c.logger.Info().Msg("Session expired on server, starting a new one")
			continue
		}

		c.setMode(ModeDisconnected, err.Error())
		if werr := c.backoff.Wait(ctx); werr != nil {
			break
		}
		if c.backoff.ShouldFallback() {
			c.setMode(ModePolling, fmt.Sprintf("websocket failed %d times", c.backoff.Attempts()))
			polling = true
		}
	}
	return nil
}

// runSocket holds one websocket session until it fails.
func (c *Client) runSocket(ctx context.Context) error {
	resumed := c.Session()

	conn, _, err := c.dialer.DialContext(ctx, c.socketURL(), transport.Headers(c.http.Auth()))
	if err != nil {
		c.logger.Debug().Err(err).Msg("Websocket dial failed")
		return errors.NewTransportError(resumed, "dial", err)
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		_ = conn.Close()
	}()

	hello, err := c.read(conn)
	if err != nil {
		return errors.NewTransportError(resumed, "handshake", err)
	}
	switch {
	case hello.Type == FrameError:
		c.setSession("")
		return errSessionLost
	case hello.Type != FrameAck || hello.Session == "":
		return errors.NewTransportError(resumed, "handshake", fmt.Errorf("unexpected %q frame", hello.Type))
	}

	c.mu.Lock()
	c.session = hello.Session
	first := c.handshakes == 0
	c.handshakes++
	c.mu.Unlock()
	c.backoff.Reset()
	c.setConn(conn)
	defer c.setConn(nil)
	c.setMode(ModeStreaming, "connected")

	for _, p := range c.Topics() {
		if err := c.write(conn, Frame{Type: FrameSubscribe, Topic: p}); err != nil {
			return err
		}
	}
	if hello.Session != resumed && !first {
		// Anything queued for the old session is gone.
		c.catchUpAll(ctx)
	}

	for {
		f, err := c.read(conn)
		if err != nil {
			return errors.NewTransportError(hello.Session, "read", err)
		}
		if err := c.process(ctx, conn, f); err != nil {
			return err
		}
	}
}

func (c *Client) read(conn *websocket.Conn) (Frame, error) {
	if err := conn.SetReadDeadline(time.Now().Add(c.readTimeout)); err != nil {
		return Frame{}, err
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// process handles one server frame. conn is nil while polling.
func (c *Client) process(ctx context.Context, conn *websocket.Conn, f Frame) error {
	switch f.Type {
	case FramePing:
		if conn != nil {
			return c.write(conn, Frame{Type: FramePong, ID: f.ID})
		}
	case FrameEvent:
		c.deliver(ctx, Event{Topic: f.Topic, Kind: f.Kind, Payload: f.Payload, Sequence: f.Sequence, Timestamp: f.Timestamp})
	case FrameBatch:
		for _, e := range f.Events {
			c.deliver(ctx, e)
		}
	case FrameFallback:
		return &fallbackError{reason: f.Reason}
	case FrameError:
		c.logger.Warn().Str("topic", f.Topic).Str("reason", f.Reason).Msg("Server rejected command")
	case FrameAck:
		c.logger.Debug().Str("topic", f.Topic).Msg("Acknowledged")
	}
	return nil
}

// deliver hands e to the handler, dropping duplicates and backfilling gaps
// from the replay log first.
func (c *Client) deliver(ctx context.Context, e Event) {
	last := c.LastSequence(e.Topic)
	if e.Sequence != 0 && last != 0 {
		if e.Sequence <= last {
			return
		}
		if e.Sequence > last+1 {
			gap := Gap{Topic: e.Topic, From: last + 1, To: e.Sequence - 1}
			gap.Recovered, gap.Lost = c.catchUp(ctx, e.Topic, last, e.Sequence)
			c.logger.Warn().
				Str("topic", gap.Topic).
				Uint64("from", gap.From).
				Uint64("to", gap.To).
				Int("recovered", gap.Recovered).
				Bool("lost", gap.Lost).
				Msg("Sequence gap")
			if c.onGap != nil {
				c.onGap(gap)
			}
		}
	}
	c.emit(e)
}

func (c *Client) emit(e Event) {
	c.mu.Lock()
	if e.Sequence > c.lastSeq[e.Topic] {
		c.lastSeq[e.Topic] = e.Sequence
	}
	c.mu.Unlock()
	if c.onEvent != nil {
		c.onEvent(e)
	}
}

// catchUp reads retained events after since and before until (zero for no
// bound) and emits them.
func (c *Client) catchUp(ctx context.Context, topic string, since, until uint64) (recovered int, lost bool) {
	for {
		page, err := c.Poll(ctx, topic, since, 0)
		if err != nil {
			c.logger.Debug().Err(err).Str("topic", topic).Msg("Catch-up poll failed")
			return recovered, true
		}
		if page.Gap {
			lost = true
		}
		for _, e := range page.Events {
			if until != 0 && e.Sequence >= until {
				return recovered, lost
			}
			c.emit(e)
			since = e.Sequence
			recovered++
		}
		if !page.More || len(page.Events) == 0 {
			return recovered, lost || (until != 0 && since+1 < until)
		}
	}
}

// catchUpAll backfills every known concrete topic that still matches a
// subscription.
func (c *Client) catchUpAll(ctx context.Context) {
	for _, topic := range c.knownTopics() {
		c.catchUp(ctx, topic, c.LastSequence(topic), 0)
	}
}

// knownTopics returns concrete topics to poll without a session: exact
// subscriptions plus topics already seen under a wildcard.
func (c *Client) knownTopics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, p := range c.topics {
		if events.ValidateTopic(p) == nil && !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	for topic := range c.lastSeq {
		if seen[topic] {
			continue
		}
		for _, p := range c.topics {
			if events.Match(p, topic) {
				seen[topic] = true
				out = append(out, topic)
				break
			}
		}
	}
	return out
}

// runPolling polls until the websocket retry interval elapses.
func (c *Client) runPolling(ctx context.Context) {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()
	retry := time.NewTimer(c.retryInterval)
	defer retry.Stop()

	c.pollOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-retry.C:
			c.logger.Debug().Msg("Retrying websocket from polling")
			return
		case <-ticker.C:
			c.pollOnce(ctx)
		}
	}
}

// pollOnce drains the session when there is one and otherwise reads each
// known topic from the replay log.
func (c *Client) pollOnce(ctx context.Context) {
	if session := c.Session(); session != "" {
		res, err := c.PollSession(ctx, session, true)
		switch {
		case errors.IsNotFound(err):
			c.setSession("")
		case err != nil:
			c.logger.Debug().Err(err).Msg("Session poll failed")
			return
		default:
			for _, f := range res.Frames {
				// Already polling; a repeated fallback frame changes nothing.
				_ = c.process(ctx, nil, f)
			}
			if res.State != "closed" {
				return
			}
			c.setSession("")
		}
	}
	c.catchUpAll(ctx)
}
