// Package filter provides query parameter parsing and filtering for the
// session listing endpoint.
package filter

import (
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/agentstation/swarmcast/internal/server/connmgr"
)

// SessionFilter contains all possible filter criteria for sessions.
type SessionFilter struct {
	// State filters
	States []string
	Live   *bool

	// Subscription filters
	Topic         string
	TopicContains string

	// Health filters
	MaxQuality float64
	MinQueued  int
	Overflowed bool

	// Age filters
	CreatedAfter  *time.Time
	CreatedBefore *time.Time

	// Pagination
	Sort   string
	Order  string
	Limit  int
	Offset int
}

// ParseSessionFilter extracts session filter parameters from HTTP request.
func ParseSessionFilter(r *http.Request) SessionFilter {
	q := r.URL.Query()

	filter := SessionFilter{
		Topic:         q.Get("topic"),
		TopicContains: q.Get("topic_contains"),
		Sort:          q.Get("sort"),
		Order:         q.Get("order"),
		Limit:         parseIntOrDefault(q.Get("limit"), 100),
		Offset:        parseIntOrDefault(q.Get("offset"), 0),
		MinQueued:     parseIntOrDefault(q.Get("min_queued"), 0),
	}

	if states := q.Get("state"); states != "" {
		for _, s := range strings.Split(states, ",") {
			filter.States = append(filter.States, strings.ToLower(strings.TrimSpace(s)))
		}
	}

	if live := q.Get("live"); live != "" {
		if b, err := strconv.ParseBool(live); err == nil {
			filter.Live = &b
		}
	}

	if mq := q.Get("max_quality"); mq != "" {
		if f, err := strconv.ParseFloat(mq, 64); err == nil {
			filter.MaxQuality = f
		}
	}

	if ov := q.Get("overflowed"); ov != "" {
		filter.Overflowed, _ = strconv.ParseBool(ov)
	}

	if after := q.Get("created_after"); after != "" {
		if t, err := time.Parse(time.RFC3339, after); err == nil {
			filter.CreatedAfter = &t
		}
	}
	if before := q.Get("created_before"); before != "" {
		if t, err := time.Parse(time.RFC3339, before); err == nil {
			filter.CreatedBefore = &t
		}
	}

	return filter
}

// Apply filters, sorts and paginates sessions.
func (f SessionFilter) Apply(sessions []connmgr.Info) []connmgr.Info {
	results := make([]connmgr.Info, 0, len(sessions))
	for _, s := range sessions {
		if f.matches(s) {
			results = append(results, s)
		}
	}

	if f.Sort != "" {
		f.sort(results)
	}

	return f.page(results)
}

// matches checks if a session matches the filter criteria.
func (f SessionFilter) matches(s connmgr.Info) bool {
	return f.matchesState(s) &&
		f.matchesTopics(s) &&
		f.matchesHealth(s) &&
		f.matchesAge(s)
}

func (f SessionFilter) matchesState(s connmgr.Info) bool {
	if len(f.States) > 0 && !slices.Contains(f.States, s.State.String()) {
		return false
	}
	if f.Live != nil && s.State.Live() != *f.Live {
		return false
	}
	return true
}

// matchesTopics checks subscribed patterns. Topic is an exact pattern match.
func (f SessionFilter) matchesTopics(s connmgr.Info) bool {
	if f.Topic != "" && !slices.Contains(s.Topics, f.Topic) {
		return false
	}
	if f.TopicContains != "" {
		return slices.ContainsFunc(s.Topics, func(t string) bool {
			return strings.Contains(t, f.TopicContains)
		})
	}
	return true
}

func (f SessionFilter) matchesHealth(s connmgr.Info) bool {
	if f.MaxQuality > 0 && s.Quality > f.MaxQuality {
		return false
	}
	if f.MinQueued > 0 && s.Queue.Len < f.MinQueued {
		return false
	}
	if f.Overflowed && s.Queue.Evicted+s.Queue.Dropped == 0 {
		return false
	}
	return true
}

func (f SessionFilter) matchesAge(s connmgr.Info) bool {
	if f.CreatedAfter != nil && s.CreatedAt.Before(*f.CreatedAfter) {
		return false
	}
	if f.CreatedBefore != nil && s.CreatedAt.After(*f.CreatedBefore) {
		return false
	}
	return true
}

// sort orders sessions in place by the sort field; unknown fields keep
// creation order.
func (f SessionFilter) sort(sessions []connmgr.Info) {
	var cmp func(a, b connmgr.Info) int
	switch f.Sort {
	case "quality":
		cmp = func(a, b connmgr.Info) int { return compare(a.Quality, b.Quality) }
	case "queued":
		cmp = func(a, b connmgr.Info) int { return a.Queue.Len - b.Queue.Len }
	case "rtt":
		cmp = func(a, b connmgr.Info) int { return compare(a.RTTMillis, b.RTTMillis) }
	case "created":
		cmp = func(a, b connmgr.Info) int { return a.CreatedAt.Compare(b.CreatedAt) }
	default:
		return
	}
	if strings.EqualFold(f.Order, "desc") {
		slices.SortStableFunc(sessions, func(a, b connmgr.Info) int { return cmp(b, a) })
		return
	}
	slices.SortStableFunc(sessions, cmp)
}

func (f SessionFilter) page(sessions []connmgr.Info) []connmgr.Info {
	if f.Offset > 0 {
		if f.Offset >= len(sessions) {
			return []connmgr.Info{}
		}
		sessions = sessions[f.Offset:]
	}
	if f.Limit > 0 && len(sessions) > f.Limit {
		sessions = sessions[:f.Limit]
	}
	return sessions
}

func compare(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// parseIntOrDefault parses an integer or returns default.
func parseIntOrDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	return def
}
