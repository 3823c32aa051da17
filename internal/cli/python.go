package cli

import (
	"context"
	"io"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/matzehuels/wheelhouse/pkg/marker"
	"github.com/matzehuels/wheelhouse/pkg/venv"
)

// pythonCommand creates the python command group.
func (c *CLI) pythonCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "python",
		Short: "Manage the project's interpreter",
	}

	cmd.AddCommand(c.pythonUseCommand())

	return cmd
}

// pythonUseCommand creates the "python use" subcommand.
func (c *CLI) pythonUseCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "use <interpreter>",
		Short: "Recreate the environment with another interpreter",
		Long: `Delete the project's .venv, create it again with the given interpreter,
and pin the interpreter in pyproject.toml under [tool.wheelhouse] python.`,
		Example: `  wheelhouse python use python3.12
  wheelhouse python use /opt/python/3.11/bin/python`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runPythonUse(cmd.Context(), cmd.OutOrStdout(), args[0])
		},
	}
}

func (c *CLI) runPythonUse(ctx context.Context, w io.Writer, python string) error {
	p, err := c.loadProject()
	if err != nil {
		return err
	}
	opts := c.venvOptions()

	if err := venv.Open(filepath.Join(p.dir, venv.DirName), opts).Remove(); err != nil {
		return err
	}
	v, err := venv.Create(ctx, p.dir, python, opts)
	if err != nil {
		return err
	}
	env, err := v.MarkerEnvironment(ctx)
	if err != nil {
		return err
	}

	if err := p.manifest.SetPython(python); err != nil {
		return err
	}
	if err := p.manifest.Save(); err != nil {
		return err
	}

	printSuccess(w, "Using Python %s", env[marker.VarPythonFullVersion])
	printFile(w, v.Root)
	printNextStep(w, "Install dependencies", appName+" install")
	return nil
}
