package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"
)

// installCommand creates the install command.
func (c *CLI) installCommand() *cobra.Command {
	var groups []string

	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the locked dependencies",
		Long: `Install the locked dependencies into the project's virtual environment,
creating it when missing. A missing or out-of-date lock file is resolved first.

Without --group every dependency group is installed. --group required
installs the main dependencies only.`,
		Example: `  wheelhouse install
  wheelhouse install --group required
  wheelhouse install --group dev --group docs`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runInstall(cmd.Context(), cmd.OutOrStdout(), groups)
		},
	}

	cmd.Flags().StringArrayVarP(&groups, "group", "g", nil, "dependency group to install (repeatable)")
	_ = cmd.RegisterFlagCompletionFunc("group", c.completeGroups)

	return cmd
}

func (c *CLI) runInstall(ctx context.Context, w io.Writer, groups []string) error {
	p, err := c.loadProject()
	if err != nil {
		return err
	}
	lock, err := c.currentLock(ctx, p)
	if err != nil {
		return err
	}

	installed, err := c.sync(ctx, p, lock, groups)
	if err != nil {
		return err
	}
	if len(installed) == 0 {
		printSuccess(w, "Environment is up to date")
		return nil
	}
	printSuccess(w, "Installed %s", pluralize(len(installed), "package"))
	printAdded(w, installed)
	return nil
}
