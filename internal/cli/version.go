package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/matzehuels/wheelhouse/pkg/errors"
)

// versionCommand creates the version command, which prints the project
// version. The wheelhouse version is printed by --version.
func (c *CLI) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the project's version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := c.loadProject()
			if err != nil {
				return err
			}
			if p.manifest.Version == "" {
				return errors.New(errors.ErrCodeInvalidManifest, "%s has no [project] version", p.manifest.Path)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", p.manifest.Name, p.manifest.Version)
			return nil
		},
	}
}
