package cli

import (
	"context"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/render"
)

type graphOpts struct {
	format   string
	output   string
	detailed bool
}

// graphCommand creates the graph command.
func (c *CLI) graphCommand() *cobra.Command {
	var opts graphOpts

	cmd := &cobra.Command{
		Use:   "graph",
		Short: "Export the locked dependency graph",
		Long: `Export the locked dependency graph as Graphviz DOT or SVG. Direct
dependencies are drawn bold; platform-conditional packages are dashed.`,
		Example: `  wheelhouse graph | dot -Tpng > deps.png
  wheelhouse graph --format svg -o deps.svg --detailed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runGraph(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().StringVar(&opts.format, "format", "dot", "output format: dot or svg")
	cmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: stdout)")
	cmd.Flags().BoolVar(&opts.detailed, "detailed", false, "show versions and markers")

	return cmd
}

func (c *CLI) runGraph(ctx context.Context, w io.Writer, opts graphOpts) error {
	if opts.format != "dot" && opts.format != "svg" {
		return errors.New(errors.ErrCodeUnsupported, "unknown format %q (want dot or svg)", opts.format)
	}

	p, err := c.loadProject()
	if err != nil {
		return err
	}
	lock, err := c.currentLock(ctx, p)
	if err != nil {
		return err
	}
	reqs, err := p.manifest.Requirements()
	if err != nil {
		return err
	}
	roots := make([]string, len(reqs))
	for i, r := range reqs {
		roots[i] = r.Name
	}

	data := []byte(render.ToDOT(lock.Packages, roots, render.Options{Detailed: opts.detailed}))
	if opts.format == "svg" {
		if data, err = render.RenderSVG(ctx, string(data)); err != nil {
			return err
		}
	}

	if opts.output == "" {
		_, err := w.Write(data)
		return err
	}
	if err := os.WriteFile(opts.output, data, 0o644); err != nil {
		return err
	}
	printSuccess(w, "Wrote %s graph", opts.format)
	printFile(w, opts.output)
	return nil
}
