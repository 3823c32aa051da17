package cli

import (
	"context"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/manifest"
	"github.com/matzehuels/wheelhouse/pkg/requirement"
)

type addOpts struct {
	group     string
	files     []string
	noInstall bool
}

// addCommand creates the add command.
func (c *CLI) addCommand() *cobra.Command {
	var opts addOpts

	cmd := &cobra.Command{
		Use:   "add [<requirement>...] [-r requirements.txt]",
		Short: "Add dependencies to the project",
		Long: `Add dependencies to pyproject.toml, update the lock file and install them.

A requirement that names an existing dependency replaces it in place.`,
		Example: `  wheelhouse add requests
  wheelhouse add "httpx[http2]>=0.27" rich
  wheelhouse add --group dev pytest
  wheelhouse add -r requirements.txt`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runAdd(cmd.Context(), cmd.OutOrStdout(), args, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.group, "group", "g", "", `optional dependency group ("dev" for dev-dependencies)`)
	cmd.Flags().StringArrayVarP(&opts.files, "requirements", "r", nil, "add every requirement listed in a requirements.txt file")
	cmd.Flags().BoolVar(&opts.noInstall, "no-install", false, "update the manifest and lock file only")
	_ = cmd.RegisterFlagCompletionFunc("group", c.completeGroups)

	return cmd
}

func (c *CLI) runAdd(ctx context.Context, w io.Writer, args []string, opts addOpts) error {
	p, err := c.loadProject()
	if err != nil {
		return err
	}

	var reqs []requirement.Requirement
	for _, arg := range args {
		req, err := requirement.Parse(arg)
		if err != nil {
			return err
		}
		reqs = append(reqs, req)
	}
	for _, path := range opts.files {
		listed, err := requirement.ParseFile(path)
		if err != nil {
			return err
		}
		reqs = append(reqs, listed...)
	}
	if len(reqs) == 0 {
		return errors.New(errors.ErrCodeInvalidRequirement, "nothing to add")
	}

	names := make([]string, len(reqs))
	for i, req := range reqs {
		if err := p.manifest.AddDependency(req, opts.group); err != nil {
			return err
		}
		names[i] = req.Name
	}

	lock, err := c.lock(ctx, p, false)
	if err != nil {
		return err
	}
	if err := p.manifest.Save(); err != nil {
		return err
	}
	printSuccess(w, "Added %s", StyleHighlight.Render(strings.Join(names, ", ")))

	if opts.noInstall {
		return nil
	}
	groups := []string{manifest.RequiredGroup}
	if opts.group != "" {
		groups = []string{opts.group}
	}
	installed, err := c.sync(ctx, p, lock, groups)
	if err != nil {
		return err
	}
	printAdded(w, installed)
	return nil
}
