package app

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/agentstation/swarmcast/cmd/swarmcast/cmd/emit"
	"github.com/agentstation/swarmcast/cmd/swarmcast/cmd/serve"
	"github.com/agentstation/swarmcast/cmd/swarmcast/cmd/sessions"
	"github.com/agentstation/swarmcast/cmd/swarmcast/cmd/watch"
	"github.com/agentstation/swarmcast/internal/cmd/completion"
	"github.com/agentstation/swarmcast/internal/cmd/output"
	"github.com/agentstation/swarmcast/internal/server"
)

// CreateServeCommand creates the serve command with app dependencies.
// The server configuration is read when the command runs, after --config.
func (a *App) CreateServeCommand() *cobra.Command {
	return serve.NewCommand(a, func() server.Config { return a.config.Server })
}

// CreateEmitCommand creates the emit command with app dependencies.
func (a *App) CreateEmitCommand() *cobra.Command {
	return emit.NewCommand(a)
}

// CreateWatchCommand creates the watch command with app dependencies.
func (a *App) CreateWatchCommand() *cobra.Command {
	return watch.NewCommand(a)
}

// CreateSessionsCommand creates the sessions command with app dependencies.
func (a *App) CreateSessionsCommand() *cobra.Command {
	return sessions.NewCommand(a)
}

// CreateConfigCommand creates the config command, which prints the
// effective configuration. Secrets are never printed.
func (a *App) CreateConfigCommand() *cobra.Command {
	return &cobra.Command{
		Use:     "config",
		GroupID: "core",
		Short:   "Print the effective configuration",
		Long: `Print the configuration after defaults, the config file, .env files,
SWARMCAST_* environment variables and flags have been applied.

The output is YAML by default and can be saved as ~/.swarmcast.yaml.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			format := output.Format(a.config.Format)
			if output.IsTable(format) {
				format = output.FormatYAML
			}
			if a.config.ConfigFile != "" {
				a.logger.Debug().Str("file", a.config.ConfigFile).Msg("Config file in use")
			}
			return output.NewFormatter(format).Format(cmd.OutOrStdout(), a.config)
		},
	}
}

// CreateVersionCommand creates the version command.
func (a *App) CreateVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "swarmcast %s\n", a.version)
			if a.config.Verbose {
				fmt.Fprintf(out, "  commit:   %s\n", a.commit)
				fmt.Fprintf(out, "  built:    %s\n", a.date)
				fmt.Fprintf(out, "  built by: %s\n", a.builtBy)
			}
		},
	}
}

// CreateCompletionCommand creates the shell completion command.
func (a *App) CreateCompletionCommand() *cobra.Command {
	return completion.NewCommand()
}
