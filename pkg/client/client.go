// Package client is a Go dashboard client for a swarmcast server.
//
// A Client streams events over a websocket session, answers heartbeats,
// detects per-topic sequence gaps and backfills them from the replay log.
// When the websocket keeps failing, or the server sends a fallback frame,
// it switches to HTTP polling and periodically retries the websocket.
//
//	c, err := client.New("http://localhost:8080",
//	    client.WithTopics("agent-*"),
//	    client.WithHandler(func(e client.Event) { fmt.Println(e.Topic, e.Sequence) }),
//	)
//	if err != nil {
//	    return err
//	}
//	return c.Run(ctx)
package client

import (
	"context"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/agentstation/swarmcast/internal/backoff"
	"github.com/agentstation/swarmcast/internal/server/events"
	"github.com/agentstation/swarmcast/internal/transport"
	"github.com/agentstation/swarmcast/pkg/constants"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// Client talks to one swarmcast server. Its query methods are safe for
// concurrent use; Run must be called at most once at a time.
type Client struct {
	base   *url.URL
	prefix string
	http   *transport.Client
	dialer *websocket.Dialer
	logger *zerolog.Logger

	policy        backoff.Policy
	backoff       *backoff.Controller
	pollInterval  time.Duration
	retryInterval time.Duration
	readTimeout   time.Duration

	onEvent func(Event)
	onGap   func(Gap)
	onMode  func(Mode, string)

	mu      sync.Mutex
	session string
	topics  []string
	lastSeq map[string]uint64
	mode    Mode
	conn    *websocket.Conn
	// handshakes counts completed websocket handshakes.
	handshakes int

	writeMu sync.Mutex
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithAPIKey sends key in the X-API-Key header.
func WithAPIKey(key string) Option {
	return WithAuth(&transport.HeaderAuth{Header: "X-API-Key"}, key)
}

// WithAuth sets a custom authenticator.
func WithAuth(auth transport.Authenticator, key string) Option {
	return func(c *Client) { c.http = transport.New(auth, key) }
}

// WithPathPrefix sets the API prefix, /api/v1 by default.
func WithPathPrefix(prefix string) Option {
	return func(c *Client) { c.prefix = strings.TrimSuffix(prefix, "/") }
}

// WithTopics subscribes to patterns once connected.
func WithTopics(patterns ...string) Option {
	return func(c *Client) { c.topics = append(c.topics, patterns...) }
}

// WithHandler receives every event in sequence order per topic.
func WithHandler(fn func(Event)) Option {
	return func(c *Client) { c.onEvent = fn }
}

// WithGapHandler is told about every detected sequence gap.
func WithGapHandler(fn func(Gap)) Option {
	return func(c *Client) { c.onGap = fn }
}

// WithModeHook is told when the client changes mode.
func WithModeHook(fn func(Mode, string)) Option {
	return func(c *Client) { c.onMode = fn }
}

// WithBackoff sets the reconnect policy.
func WithBackoff(p backoff.Policy) Option {
	return func(c *Client) { c.policy = p }
}

// WithPollInterval sets how often polling mode polls.
func WithPollInterval(d time.Duration) Option {
	return func(c *Client) { c.pollInterval = d }
}

// WithRetryInterval sets how long polling mode waits before retrying the
// websocket.
func WithRetryInterval(d time.Duration) Option {
	return func(c *Client) { c.retryInterval = d }
}

// WithReadTimeout bounds the silence tolerated on the websocket.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Client) { c.readTimeout = d }
}

// New creates a client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil, errors.NewValidationError("url", baseURL, "must be an absolute http(s) URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.NewValidationError("url", baseURL, "scheme must be http or https")
	}

	nop := zerolog.Nop()
	c := &Client{
		base:          u,
		prefix:        constants.DefaultPathPrefix,
		http:          transport.New(nil, ""),
		dialer:        &websocket.Dialer{HandshakeTimeout: constants.DefaultTimeout},
		logger:        &nop,
		policy:        backoff.DefaultPolicy(),
		pollInterval:  2 * time.Second,
		retryInterval: 30 * time.Second,
		readTimeout:   constants.DefaultHeartbeatFailTimeout,
		lastSeq:       make(map[string]uint64),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, p := range c.topics {
		if err := events.ValidatePattern(p); err != nil {
			return nil, err
		}
	}
	c.topics = slices.Compact(slices.Sorted(slices.Values(c.topics)))
	c.backoff = backoff.New(c.policy)
	return c, nil
}

// Session returns the current session ID, empty before the first handshake.
func (c *Client) Session() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

// Mode returns how the client currently receives events.
func (c *Client) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Topics returns the subscribed patterns.
func (c *Client) Topics() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.topics)
}

// LastSequence returns the newest sequence delivered for topic.
func (c *Client) LastSequence(topic string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeq[topic]
}

// Subscribe adds a pattern. A live session is subscribed immediately.
func (c *Client) Subscribe(ctx context.Context, pattern string) error {
	if err := events.ValidatePattern(pattern); err != nil {
		return err
	}
	c.mu.Lock()
	if !slices.Contains(c.topics, pattern) {
		c.topics = append(c.topics, pattern)
		slices.Sort(c.topics)
	}
	c.mu.Unlock()
	return c.command(ctx, Frame{Type: FrameSubscribe, Topic: pattern})
}

// Unsubscribe removes a pattern.
func (c *Client) Unsubscribe(ctx context.Context, pattern string) error {
	c.mu.Lock()
	c.topics = slices.DeleteFunc(c.topics, func(t string) bool { return t == pattern })
	c.mu.Unlock()
	return c.command(ctx, Frame{Type: FrameUnsubscribe, Topic: pattern})
}

// command sends f over the websocket when streaming, or posts it to the
// session while polling. Without a session it is a no-op; subscriptions are
// replayed on the next handshake.
func (c *Client) command(ctx context.Context, f Frame) error {
	c.mu.Lock()
	conn, session := c.conn, c.session
	c.mu.Unlock()

	if conn != nil {
		return c.write(conn, f)
	}
	if session == "" {
		return nil
	}
	return c.http.Post(ctx, c.endpoint("/sessions/"+url.PathEscape(session)+"/commands"), f, nil)
}

func (c *Client) write(conn *websocket.Conn, f Frame) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.SetWriteDeadline(time.Now().Add(constants.DefaultWriteTimeout)); err != nil {
		return errors.NewTransportError(c.Session(), "write", err)
	}
	if err := conn.WriteJSON(f); err != nil {
		return errors.NewTransportError(c.Session(), "write", err)
	}
	return nil
}

// Emit publishes one event.
func (c *Client) Emit(ctx context.Context, topic, kind string, payload any) (Accepted, error) {
	body := map[string]any{"topic": topic, "kind": kind}
	if payload != nil {
		body["payload"] = payload
	}
	var out []Accepted
	if err := c.http.Post(ctx, c.endpoint("/events"), body, &out); err != nil {
		return Accepted{}, err
	}
	if len(out) == 0 {
		return Accepted{}, errors.NewTransportError("", "emit", errors.New("empty response"))
	}
	return out[0], nil
}

// Poll reads retained events of topic after since. A zero limit uses the
// server default.
func (c *Client) Poll(ctx context.Context, topic string, since uint64, limit int) (Page, error) {
	q := url.Values{}
	q.Set("topic", topic)
	q.Set("since", strconv.FormatUint(since, 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var out Page
	err := c.http.Get(ctx, c.endpoint("/events")+"?"+q.Encode(), &out)
	return out, err
}

// PollSession reports a session's state and, with drain, takes its queued
// frames.
func (c *Client) PollSession(ctx context.Context, session string, drain bool) (SessionPoll, error) {
	q := url.Values{}
	q.Set("session", session)
	q.Set("drain", strconv.FormatBool(drain))
	var out struct {
		Session *SessionPoll `json:"session"`
	}
	if err := c.http.Get(ctx, c.endpoint("/events")+"?"+q.Encode(), &out); err != nil {
		return SessionPoll{}, err
	}
	if out.Session == nil {
		return SessionPoll{}, errors.NewNotFoundError("session", session)
	}
	return *out.Session, nil
}

// Sessions lists live sessions. query is passed through as filter
// parameters and may be nil.
func (c *Client) Sessions(ctx context.Context, query url.Values) ([]SessionInfo, error) {
	u := c.endpoint("/sessions")
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	var out []SessionInfo
	err := c.http.Get(ctx, u, &out)
	return out, err
}

// CloseSession destroys a session on the server.
func (c *Client) CloseSession(ctx context.Context, id, reason string) error {
	u := c.endpoint("/sessions/" + url.PathEscape(id))
	if reason != "" {
		u += "?reason=" + url.QueryEscape(reason)
	}
	return c.http.Delete(ctx, u, nil)
}

// Stats returns the server statistics document.
func (c *Client) Stats(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.http.Get(ctx, c.endpoint("/stats"), &out)
	return out, err
}

// Health checks the server health endpoint.
func (c *Client) Health(ctx context.Context) error {
	return c.http.Get(ctx, c.endpoint("/health"), nil)
}

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimSuffix(u.Path, "/") + c.prefix + path
	u.RawQuery = ""
	return u.String()
}

func (c *Client) socketURL() string {
	u := *c.base
	u.Scheme = "ws"
	if c.base.Scheme == "https" {
		u.Scheme = "wss"
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + c.prefix + "/ws"
	u.RawQuery = ""
	if s := c.Session(); s != "" {
		u.RawQuery = url.Values{"session": {s}}.Encode()
	}
	return u.String()
}

func (c *Client) setMode(m Mode, reason string) {
	c.mu.Lock()
	prev := c.mode
	c.mode = m
	c.mu.Unlock()
	if prev == m {
		return
	}
	c.logger.Info().Str("mode", m.String()).Str("reason", reason).Msg("Client mode changed")
	if c.onMode != nil {
		c.onMode(m, reason)
	}
}

func (c *Client) setSession(s string) {
	c.mu.Lock()
	c.session = s
	c.mu.Unlock()
}

func (c *Client) setConn(conn *websocket.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}
