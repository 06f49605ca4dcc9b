// Package emit provides the command that publishes an event to a server.
package emit

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/agentstation/swarmcast/cmd/application"
	"github.com/agentstation/swarmcast/internal/cmd/output"
	"github.com/agentstation/swarmcast/pkg/errors"
)

// NewCommand creates the emit command.
func NewCommand(app application.Application) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "emit <topic> <kind> [payload]",
		GroupID: "client",
		Short:   "Publish an event",
		Long: `Publish one event to the server.

The payload is a JSON document given as the third argument, or read from
stdin when the argument is "-". Kinds are agent.created, agent.deleted,
agent.status_changed, task.started, task.completed, metric.sample and
system.alert.`,
		Example: `  swarmcast emit agent-7 agent.status_changed '{"status":"busy"}'
  echo '{"level":"warning","message":"disk"}' | swarmcast emit system system.alert -`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload any
			if len(args) == 3 {
				raw, err := readPayload(args[2], cmd.InOrStdin())
				if err != nil {
					return err
				}
				payload = raw
			}

			c, err := app.Client()
			if err != nil {
				return err
			}
			accepted, err := c.Emit(cmd.Context(), args[0], args[1], payload)
			if err != nil {
				return fmt.Errorf("emit: %w", err)
			}
			app.Logger().Debug().
				Str("topic", accepted.Topic).
				Uint64("sequence", accepted.Sequence).
				Msg("Event accepted")

			format := output.DetectFormat(app.OutputFormat())
			return output.NewFormatter(format).Format(cmd.OutOrStdout(), accepted)
		},
	}
	return cmd
}

// readPayload returns arg, or stdin for "-", after checking it is JSON.
func readPayload(arg string, stdin io.Reader) (json.RawMessage, error) {
	data := []byte(arg)
	if arg == "-" {
		var err error
		if data, err = io.ReadAll(stdin); err != nil {
			return nil, fmt.Errorf("reading payload: %w", err)
		}
	}
	if !json.Valid(data) {
		return nil, errors.NewMalformedEventError("", "", "payload is not valid JSON", nil)
	}
	return json.RawMessage(data), nil
}
