package client

import (
	"encoding/json"
	"time"
)

// Event is a single sequenced state change.
type Event struct {
	Topic     string          `json:"topic"`
	Kind      string          `json:"kind"`
	Payload   json.RawMessage `json:"payload"`
	Sequence  uint64          `json:"sequence"`
	Timestamp time.Time       `json:"timestamp"`
}

// Frame is one wire envelope.
type Frame struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic,omitempty"`
	Kind      string          `json:"kind,omitempty"`
	Sequence  uint64          `json:"sequence,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp,omitzero"`
	Events    []Event         `json:"events,omitempty"`
	Reason    string          `json:"reason,omitempty"`
	ID        string          `json:"id,omitempty"`
	Session   string          `json:"session,omitempty"`
}

// Frame types.
const (
	FrameEvent       = "event"
	FrameBatch       = "batch"
	FramePing        = "ping"
	FrameAck         = "ack"
	FrameFallback    = "fallback"
	FrameError       = "error"
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FramePong        = "pong"
)

// Accepted reports the sequence the server assigned to an emitted event.
type Accepted struct {
	Topic    string `json:"topic"`
	Sequence uint64 `json:"sequence"`
}

// Page is a replay read for one topic.
type Page struct {
	Topic  string  `json:"topic"`
	Events []Event `json:"events"`
	Latest uint64  `json:"latest"`
	Oldest uint64  `json:"oldest"`
	Gap    bool    `json:"gap"`
	More   bool    `json:"more"`
}

// SessionPoll is the server's view of a session during polling.
type SessionPoll struct {
	Session string  `json:"session"`
	State   string  `json:"state"`
	Reason  string  `json:"reason,omitempty"`
	Frames  []Frame `json:"frames"`
}

// QueueStats describes a session's outbound queue.
type QueueStats struct {
	Len      int    `json:"len"`
	Items    int    `json:"items"`
	Capacity int    `json:"capacity"`
	Enqueued uint64 `json:"enqueued"`
	Evicted  uint64 `json:"evicted"`
	Dropped  uint64 `json:"dropped"`
}

// SessionInfo is a live session snapshot.
type SessionInfo struct {
	ID                string     `json:"id"`
	State             string     `json:"state"`
	Remote            string     `json:"remote"`
	Topics            []string   `json:"topics"`
	Queue             QueueStats `json:"queue"`
	Quality           float64    `json:"quality"`
	RTTMillis         float64    `json:"rtt_ms"`
	ReconnectAttempts int        `json:"reconnect_attempts"`
	FallbackReason    string     `json:"fallback_reason,omitempty"`
	LastHeartbeat     time.Time  `json:"last_heartbeat"`
	LastActivity      time.Time  `json:"last_activity"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Gap describes missing sequences detected on a topic and how many of them
// were recovered from the replay log.
type Gap struct {
	Topic     string
	From      uint64
	To        uint64
	Recovered int
	// Lost is set when the server no longer retains part of the range.
	Lost bool
}

// Mode is how the client currently receives events.
type Mode uint8

// Client modes.
const (
	ModeDisconnected Mode = iota
	ModeStreaming
	ModePolling
)

func (m Mode) String() string {
	switch m {
	case ModeStreaming:
		return "streaming"
	case ModePolling:
		return "polling"
	}
	return "disconnected"
}
