// Package table converts swarmcast resources into table rows for CLI output.
package table

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/swarmcast/internal/cmd/emoji"
	"github.com/agentstation/swarmcast/pkg/client"
)

// Align represents column alignment in tables.
type Align int

const (
	// AlignDefault uses the default alignment (skip).
	AlignDefault Align = iota
	// AlignLeft aligns content to the left.
	AlignLeft
	// AlignCenter centers content.
	AlignCenter
	// AlignRight aligns content to the right.
	AlignRight
)

// Data is a rendered table: headers, rows and optional column alignment.
type Data struct {
	Headers         []string
	Rows            [][]string
	ColumnAlignment []Align
}

// maxPayloadWidth bounds the payload column of event rows.
const maxPayloadWidth = 60

// SessionsToTableData converts session snapshots to table format. The wide
// form adds remote address, heartbeat and fallback columns.
func SessionsToTableData(sessions []client.SessionInfo, wide bool) Data {
	headers := []string{"ID", "State", "Topics", "Queued", "Evicted", "Dropped", "Quality", "RTT"}
	align := []Align{AlignLeft, AlignLeft, AlignLeft, AlignRight, AlignRight, AlignRight, AlignRight, AlignRight}
	if wide {
		headers = append(headers, "Remote", "Reconnects", "Last Heartbeat", "Fallback")
		align = append(align, AlignLeft, AlignRight, AlignLeft, AlignLeft)
	}

	rows := make([][]string, 0, len(sessions))
	for _, s := range sessions {
		row := []string{
			s.ID,
			StateDisplay(s.State),
			strings.Join(s.Topics, ","),
			strconv.Itoa(s.Queue.Items),
			strconv.FormatUint(s.Queue.Evicted, 10),
			strconv.FormatUint(s.Queue.Dropped, 10),
			fmt.Sprintf("%.2f", s.Quality),
			FormatRTT(s.RTTMillis),
		}
		if wide {
			row = append(row,
				s.Remote,
				strconv.Itoa(s.ReconnectAttempts),
				FormatAge(s.LastHeartbeat, time.Now()),
				s.FallbackReason,
			)
		}
		rows = append(rows, row)
	}
	return Data{Headers: headers, Rows: rows, ColumnAlignment: align}
}

// EventHeaders are the columns of EventRow.
var EventHeaders = []string{"Seq", "Topic", "Kind", "Time", "Payload"}

// EventRow formats one received event.
func EventRow(e client.Event) []string {
	return []string{
		strconv.FormatUint(e.Sequence, 10),
		e.Topic,
		e.Kind,
		e.Timestamp.Local().Format(time.TimeOnly),
		Truncate(string(e.Payload), maxPayloadWidth),
	}
}

// GapRow formats a detected gap in the same columns as EventRow.
func GapRow(g client.Gap) []string {
	status := fmt.Sprintf("recovered %d", g.Recovered)
	if g.Lost {
		status += ", some events no longer retained"
	}
	return []string{
		fmt.Sprintf("%d-%d", g.From, g.To),
		g.Topic,
		emoji.Gap + " gap",
		"",
		status,
	}
}

// StateDisplay prefixes a connection state with its symbol.
func StateDisplay(state string) string {
	switch state {
	case "connected":
		return emoji.Connected + " " + state
	case "degraded":
		return emoji.Degraded + " " + state
	case "fallback_polling":
		return emoji.Fallback + " " + state
	case "connecting", "disconnected", "closed":
		return emoji.Disconnected + " " + state
	}
	return emoji.Unknown + " " + state
}

// FormatRTT renders a round trip in milliseconds, or "-" before the first pong.
func FormatRTT(ms float64) string {
	if ms <= 0 {
		return "-"
	}
	return fmt.Sprintf("%.1fms", ms)
}

// FormatAge renders how long ago t was, relative to now.
func FormatAge(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return now.Sub(t).Round(time.Second).String() + " ago"
}

// Truncate shortens s to n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
