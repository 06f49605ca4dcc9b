// Package sessions provides commands that inspect and manage server sessions.
package sessions

import (
	"fmt"
	"net/url"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/agentstation/swarmcast/cmd/application"
	"github.com/agentstation/swarmcast/internal/cmd/emoji"
	"github.com/agentstation/swarmcast/internal/cmd/output"
	"github.com/agentstation/swarmcast/internal/cmd/table"
)

// NewCommand creates the sessions command and its subcommands.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "sessions",
		Aliases: []string{"session", "ls"},
		GroupID: "client",
		Short:   "List server sessions",
		Long: `List the sessions a server holds, with queue and connection quality
statistics. Filters are evaluated by the server.`,
		Example: `  swarmcast sessions
  swarmcast sessions --state degraded,fallback_polling -o wide
  swarmcast sessions --sort quality --limit 10
  swarmcast sessions close 6f1c2a --reason maintenance`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := app.Client()
			if err != nil {
				return err
			}
			list, err := c.Sessions(cmd.Context(), query(cmd))
			if err != nil {
				return fmt.Errorf("listing sessions: %w", err)
			}

			format := output.DetectFormat(app.OutputFormat())
			if output.IsTable(format) {
				if len(list) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No sessions")
					return nil
				}
				return output.NewFormatter(format).Format(cmd.OutOrStdout(), table.SessionsToTableData(list, format == output.FormatWide))
			}
			return output.NewFormatter(format).Format(cmd.OutOrStdout(), list)
		},
	}

	f := cmd.Flags()
	f.String("state", "", "Comma-separated states to include")
	f.String("topic", "", "Only sessions subscribed to this exact pattern")
	f.Bool("overflowed", false, "Only sessions whose queue evicted or dropped events")
	f.Int("min-queued", 0, "Only sessions with at least this many queued events")
	f.String("sort", "", "Sort by quality, queued, rtt or created")
	f.String("order", "", "Sort order: asc or desc")
	f.Int("limit", 0, "Maximum sessions to list (server default when 0)")

	cmd.AddCommand(newCloseCommand(app), newStatsCommand(app))
	return cmd
}

// query translates the set flags into server filter parameters.
func query(cmd *cobra.Command) url.Values {
	q := url.Values{}
	f := cmd.Flags()
	for _, name := range []string{"state", "topic", "sort", "order"} {
		if v, _ := f.GetString(name); v != "" {
			q.Set(name, v)
		}
	}
	if v, _ := f.GetBool("overflowed"); v {
		q.Set("overflowed", "true")
	}
	if v, _ := f.GetInt("min-queued"); v > 0 {
		q.Set("min_queued", strconv.Itoa(v))
	}
	if v, _ := f.GetInt("limit"); v > 0 {
		q.Set("limit", strconv.Itoa(v))
	}
	return q
}

func newCloseCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "close <id>",
		Short: "Close a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := app.Client()
			if err != nil {
				return err
			}
			reason, _ := cmd.Flags().GetString("reason")
			if err := c.CloseSession(cmd.Context(), args[0], reason); err != nil {
				return fmt.Errorf("closing session %s: %w", args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s Session %s closed\n", emoji.Success, args[0])
			return nil
		},
	}
	cmd.Flags().String("reason", "", "Reason reported to the client")
	return cmd
}

func newStatsCommand(app application.Application) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show pipeline statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := app.Client()
			if err != nil {
				return err
			}
			stats, err := c.Stats(cmd.Context())
			if err != nil {
				return fmt.Errorf("reading stats: %w", err)
			}
			format := output.DetectFormat(app.OutputFormat())
			if output.IsTable(format) {
				format = output.FormatYAML
			}
			return output.NewFormatter(format).Format(cmd.OutOrStdout(), stats)
		},
	}
}
