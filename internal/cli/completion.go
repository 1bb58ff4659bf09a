package cli

import (
	"github.com/spf13/cobra"
)

// completionShells lists the shells cobra can generate completions for.
var completionShells = []string{"bash", "zsh", "fish", "powershell"}

// completionCommand creates the completion command.
func (c *CLI) completionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "completion <shell>",
		Short: "Print a shell completion script",
		Long: `Print a completion script for bash, zsh, fish or powershell.

Load it for the current session:
  source <(flatcargo completion bash)
  flatcargo completion fish | source

Or install it once:
  flatcargo completion bash > /etc/bash_completion.d/flatcargo
  flatcargo completion zsh > "${fpath[1]}/_flatcargo"
  flatcargo completion fish > ~/.config/fish/completions/flatcargo.fish
  flatcargo completion powershell > flatcargo.ps1`,
		DisableFlagsInUseLine: true,
		ValidArgs:             completionShells,
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			root, w := cmd.Root(), cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return root.GenBashCompletionV2(w, true)
			case "zsh":
				return root.GenZshCompletion(w)
			case "fish":
				return root.GenFishCompletion(w, true)
			default:
				return root.GenPowerShellCompletionWithDesc(w)
			}
		},
	}
}
