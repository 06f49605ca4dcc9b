// Package completion generates and installs shell completion scripts.
package completion

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/agentstation/swarmcast/internal/cmd/emoji"
	"github.com/agentstation/swarmcast/pkg/constants"
)

// Supported shells.
const (
	ShellBash       = "bash"
	ShellZsh        = "zsh"
	ShellFish       = "fish"
	ShellPowerShell = "powershell"
)

// Shells lists every shell Generate accepts.
var Shells = []string{ShellBash, ShellZsh, ShellFish, ShellPowerShell}

// NewCommand creates the completion command. Scripts are generated for the
// command's root.
func NewCommand() *cobra.Command {
	var install bool

	cmd := &cobra.Command{
		Use:       "completion <shell>",
		Short:     "Generate shell completion scripts",
		ValidArgs: Shells,
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		Example: `  # Load completions for the current bash session
  source <(swarmcast completion bash)

  # Install zsh completions
  swarmcast completion zsh --install`,
		RunE: func(cmd *cobra.Command, args []string) error {
			shell := args[0]
			if install {
				path, err := Install(cmd.Root(), shell)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s completions installed to: %s\n", emoji.Success, shell, path)
				return nil
			}
			return Generate(cmd.Root(), shell, cmd.OutOrStdout())
		},
	}

	cmd.Flags().BoolVar(&install, "install", false, "Write the script to the shell's completion directory")
	return cmd
}

// Generate writes the completion script for shell to w.
func Generate(root *cobra.Command, shell string, w io.Writer) error {
	switch shell {
	case ShellBash:
		return root.GenBashCompletionV2(w, true)
	case ShellZsh:
		return root.GenZshCompletion(w)
	case ShellFish:
		return root.GenFishCompletion(w, true)
	case ShellPowerShell:
		return root.GenPowerShellCompletionWithDesc(w)
	default:
		return fmt.Errorf("unsupported shell: %s", shell)
	}
}

// Install writes the completion script for shell into its conventional
// directory and returns the file path.
func Install(root *cobra.Command, shell string) (string, error) {
	path, err := Path(shell, root.Name())
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(filepath.Dir(path), constants.DirPermissions); err != nil {
		return "", fmt.Errorf("creating completion directory: %w", err)
	}

	file, err := os.Create(path) // #nosec G304 - path is built by Path
	if err != nil {
		return "", fmt.Errorf("creating completion file: %w", err)
	}
	defer func() { _ = file.Close() }()

	if err := Generate(root, shell, file); err != nil {
		return "", fmt.Errorf("generating %s completion: %w", shell, err)
	}
	return path, nil
}

// Path returns where the completion script for shell belongs. A Homebrew
// prefix wins over the user's home directory.
func Path(shell, name string) (string, error) {
	var brewRel, homeRel []string
	switch shell {
	case ShellBash:
		brewRel = []string{"etc", "bash_completion.d", name}
		homeRel = []string{".bash_completion.d", name}
	case ShellZsh:
		brewRel = []string{"share", "zsh", "site-functions", "_" + name}
		homeRel = []string{".zsh", "completions", "_" + name}
	case ShellFish:
		brewRel = []string{"share", "fish", "vendor_completions.d", name + ".fish"}
		homeRel = []string{".config", "fish", "completions", name + ".fish"}
	default:
		return "", fmt.Errorf("install not supported for shell: %s", shell)
	}

	if prefix := brewPrefix(); prefix != "" {
		return filepath.Join(append([]string{prefix}, brewRel...)...), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(append([]string{home}, homeRel...)...), nil
}

func brewPrefix() string {
	if prefix := os.Getenv("HOMEBREW_PREFIX"); prefix != "" {
		return prefix
	}
	for _, prefix := range []string{"/opt/homebrew", "/usr/local"} {
		if _, err := os.Stat(filepath.Join(prefix, "bin", "brew")); err == nil {
			return prefix
		}
	}
	return ""
}
