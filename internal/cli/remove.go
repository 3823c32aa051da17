package cli

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/manifest"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
	"github.com/matzehuels/wheelhouse/pkg/venv"
)

// removeCommand creates the remove command.
func (c *CLI) removeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "remove <name>...",
		Short: "Remove dependencies from the project",
		Long: `Remove dependencies from pyproject.toml (main list and every group),
update the lock file, and uninstall packages that are no longer locked.`,
		Aliases:           []string{"rm"},
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: c.completeDependencies,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runRemove(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}
}

func (c *CLI) runRemove(ctx context.Context, w io.Writer, names []string) error {
	p, err := c.loadProject()
	if err != nil {
		return err
	}

	var removed []string
	for _, name := range names {
		ok, err := p.manifest.RemoveDependency(name)
		if err != nil {
			return err
		}
		if !ok {
			printWarning(w, "%s is not a dependency", name)
			continue
		}
		removed = append(removed, requirement.NormalizeName(name))
	}
	if len(removed) == 0 {
		return errors.New(errors.ErrCodeNotFound, "nothing to remove")
	}

	before, _ := manifest.LoadLock(p.lockPath, nil)
	lock, err := c.lock(ctx, p, false)
	if err != nil {
		return err
	}
	if err := p.manifest.Save(); err != nil {
		return err
	}

	printSuccess(w, "Removed %s", StyleHighlight.Render(strings.Join(removed, ", ")))
	if before == nil {
		return nil
	}
	gone := dropped(before, lock)
	if v, err := venv.Find(p.dir, c.venvOptions()); err == nil && len(gone) > 0 {
		if err := v.Uninstall(ctx, gone); err != nil {
			return err
		}
	}
	printRemoved(w, gone)
	return nil
}
