package cli

import (
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/wheelhouse/pkg/manifest"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

// completionCommand creates the completion command for generating shell completions.
func (c *CLI) completionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "completion [bash|zsh|fish|powershell]",
		Short: "Generate shell completion scripts",
		Long: `Generate shell completion scripts for wheelhouse.

To load completions:

Bash:
  $ source <(wheelhouse completion bash)

  # To load completions for each session, execute once:
  # Linux:
  $ wheelhouse completion bash > /etc/bash_completion.d/wheelhouse
  # macOS:
  $ wheelhouse completion bash > $(brew --prefix)/etc/bash_completion.d/wheelhouse

Zsh:
  # If shell completion is not already enabled in your environment,
  # you will need to enable it. You can execute the following once:
  $ echo "autoload -U compinit; compinit" >> ~/.zshrc

  # To load completions for each session, execute once:
  $ wheelhouse completion zsh > "${fpath[1]}/_wheelhouse"

Fish:
  $ wheelhouse completion fish | source

  # To load completions for each session, execute once:
  $ wheelhouse completion fish > ~/.config/fish/completions/wheelhouse.fish

PowerShell:
  PS> wheelhouse completion powershell | Out-String | Invoke-Expression
`,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}

	return cmd
}

// completeDependencies offers the names declared in the project manifest,
// skipping those already on the command line.
func (c *CLI) completeDependencies(_ *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	p, err := c.loadProject()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	reqs, err := p.manifest.Requirements()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	prefix := requirement.NormalizeName(toComplete)
	taken := make(map[string]bool, len(args))
	for _, a := range args {
		taken[requirement.NormalizeName(a)] = true
	}
	var names []string
	for _, r := range reqs {
		if strings.HasPrefix(r.Name, prefix) && !taken[r.Name] && !slices.Contains(names, r.Name) {
			names = append(names, r.Name)
		}
	}
	slices.Sort(names)
	return names, cobra.ShellCompDirectiveNoFileComp
}

// completeGroups offers the manifest's dependency groups for --group.
func (c *CLI) completeGroups(_ *cobra.Command, _ []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	p, err := c.loadProject()
	if err != nil {
		return nil, cobra.ShellCompDirectiveNoFileComp
	}
	var groups []string
	for _, g := range append(p.manifest.Groups(), manifest.RequiredGroup) {
		if strings.HasPrefix(g, toComplete) && !slices.Contains(groups, g) {
			groups = append(groups, g)
		}
	}
	return groups, cobra.ShellCompDirectiveNoFileComp
}
