// Package watch provides the command that tails events from a server.
package watch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/agentstation/swarmcast/cmd/application"
	"github.com/agentstation/swarmcast/internal/cmd/output"
	"github.com/agentstation/swarmcast/internal/cmd/table"
	"github.com/agentstation/swarmcast/pkg/client"
)

// NewCommand creates the watch command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "watch",
		GroupID: "client",
		Short:   "Tail events from a server",
		Long: `Subscribe to topics and print events as they arrive.

The watcher keeps its session across reconnects, fills sequence gaps
from the replay log, and falls back to polling when the websocket keeps
failing. With --table, events are collected and printed as a table when
the watch ends (Ctrl+C or --limit).`,
		Example: `  swarmcast watch
  swarmcast watch -t "agent-*" -t system
  swarmcast watch -t "agent-*" --limit 20 --table`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			opts, err := parseOptions(cmd)
			if err != nil {
				return err
			}
			return run(cmd.Context(), app, opts, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringSliceP("topic", "t", []string{"*"}, "Topic pattern to subscribe to (repeatable)")
	cmd.Flags().Bool("table", false, "Print collected events as a table when the watch ends")
	cmd.Flags().Int("limit", 0, "Stop after this many events (0 for no limit)")
	cmd.Flags().Duration("poll-interval", 2*time.Second, "Polling interval while in fallback mode")

	return cmd
}

type options struct {
	topics       []string
	table        bool
	limit        int
	pollInterval time.Duration
}

func parseOptions(cmd *cobra.Command) (options, error) {
	var o options
	var err error
	if o.topics, err = cmd.Flags().GetStringSlice("topic"); err != nil {
		return o, err
	}
	if o.table, err = cmd.Flags().GetBool("table"); err != nil {
		return o, err
	}
	if o.limit, err = cmd.Flags().GetInt("limit"); err != nil {
		return o, err
	}
	o.pollInterval, err = cmd.Flags().GetDuration("poll-interval")
	return o, err
}

func run(ctx context.Context, app application.Application, opts options, out io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	logger := app.Logger()
	w := &watcher{
		out:    out,
		json:   output.DetectFormat(app.OutputFormat()) == output.FormatJSON,
		table:  opts.table,
		limit:  opts.limit,
		cancel: cancel,
	}

	c, err := app.Client(
		client.WithTopics(opts.topics...),
		client.WithHandler(w.event),
		client.WithGapHandler(w.gap),
		client.WithPollInterval(opts.pollInterval),
		client.WithModeHook(func(m client.Mode, reason string) {
			logger.Info().Str("mode", m.String()).Str("reason", reason).Msg("Watch mode changed")
		}),
	)
	if err != nil {
		return err
	}

	if err := c.Run(ctx); err != nil {
		return err
	}
	return w.flush()
}

// watcher prints or collects events as the client delivers them.
type watcher struct {
	out    io.Writer
	json   bool
	table  bool
	limit  int
	cancel context.CancelFunc

	mu   sync.Mutex
	seen int
	rows [][]string
}

func (w *watcher) event(e client.Event) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.limit > 0 && w.seen >= w.limit {
		return
	}
	w.seen++

	switch {
	case w.table:
		w.rows = append(w.rows, table.EventRow(e))
	case w.json:
		_ = json.NewEncoder(w.out).Encode(e)
	default:
		fmt.Fprintf(w.out, "%s  %-24s %-22s #%-6d %s\n",
			e.Timestamp.Local().Format(time.TimeOnly), e.Topic, e.Kind, e.Sequence, e.Payload)
	}

	if w.limit > 0 && w.seen >= w.limit {
		w.cancel()
	}
}

func (w *watcher) gap(g client.Gap) {
	w.mu.Lock()
	defer w.mu.Unlock()
	switch {
	case w.table:
		w.rows = append(w.rows, table.GapRow(g))
	case w.json:
		_ = json.NewEncoder(w.out).Encode(map[string]any{
			"gap": g.Topic, "from": g.From, "to": g.To, "recovered": g.Recovered, "lost": g.Lost,
		})
	default:
		row := table.GapRow(g)
		fmt.Fprintf(w.out, "%s on %s: %s\n", row[2], g.Topic, row[4])
	}
}

// flush renders collected rows in table mode.
func (w *watcher) flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.table {
		return nil
	}
	data := table.Data{
		Headers:         table.EventHeaders,
		Rows:            w.rows,
		ColumnAlignment: []table.Align{table.AlignRight, table.AlignLeft, table.AlignLeft, table.AlignLeft, table.AlignLeft},
	}
	return output.NewFormatter(output.FormatTable).Format(w.out, data)
}
