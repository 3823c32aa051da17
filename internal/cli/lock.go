package cli

import (
	"context"
	"io"

	"github.com/spf13/cobra"

	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/manifest"
	"github.com/matzehuels/wheelhouse/pkg/venv"
)

type lockOpts struct {
	force bool
	check bool
}

// lockCommand creates the lock command.
func (c *CLI) lockCommand() *cobra.Command {
	var opts lockOpts

	cmd := &cobra.Command{
		Use:     "lock",
		Aliases: []string{"resolve"},
		Short:   "Resolve dependencies into the lock file",
		Long: `Resolve every dependency group of pyproject.toml and write wheelhouse.lock.

An up-to-date lock file is left alone unless --force is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runLock(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().BoolVarP(&opts.force, "force", "f", false, "resolve even when the lock file is up to date")
	cmd.Flags().BoolVar(&opts.check, "check", false, "fail if the lock file is missing or out of date")

	return cmd
}

func (c *CLI) runLock(ctx context.Context, w io.Writer, opts lockOpts) error {
	p, err := c.loadProject()
	if err != nil {
		return err
	}

	current, err := manifest.LoadLock(p.lockPath, p.manifest)
	fresh := err == nil && !current.Stale
	if err != nil && !errors.Is(err, errors.ErrCodeFileNotFound) {
		return err
	}

	if opts.check {
		if !fresh {
			return errors.New(errors.ErrCodeStaleLock, "%s does not match %s", manifest.LockFileName, manifest.FileName)
		}
		printSuccess(w, "%s is up to date", manifest.LockFileName)
		return nil
	}
	if fresh && !opts.force {
		printSuccess(w, "%s is up to date", manifest.LockFileName)
		return nil
	}

	lock, err := c.lock(ctx, p, false)
	if err != nil {
		return err
	}
	printSuccess(w, "Locked %s", pluralize(len(lock.Packages), "package"))
	printFile(w, p.lockPath)
	return nil
}

type updateOpts struct {
	noInstall bool
}

// updateCommand creates the update command.
func (c *CLI) updateCommand() *cobra.Command {
	var opts updateOpts

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Resolve with fresh metadata and install the result",
		Long: `Resolve again, bypassing cached index responses, so every dependency
moves to the newest version its constraints allow. The new lock is then
installed into the project's environment.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runUpdate(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.noInstall, "no-install", false, "update the lock file only")

	return cmd
}

func (c *CLI) runUpdate(ctx context.Context, w io.Writer, opts updateOpts) error {
	p, err := c.loadProject()
	if err != nil {
		return err
	}

	before, _ := manifest.LoadLock(p.lockPath, nil)
	lock, err := c.lock(ctx, p, true)
	if err != nil {
		return err
	}

	changed := 0
	if before != nil {
		for _, e := range lock.Packages {
			old, ok := before.Get(e.Name)
			switch {
			case !ok:
				printDetail(w, "%s %s", e.Name, e.Version)
			case old.Version != e.Version:
				printDetail(w, "%s %s %s %s", e.Name, old.Version, iconArrow, e.Version)
			default:
				continue
			}
			changed++
		}
	}
	if before != nil && changed == 0 {
		printSuccess(w, "Everything is up to date")
	} else {
		printSuccess(w, "Locked %s", pluralize(len(lock.Packages), "package"))
	}

	if opts.noInstall {
		return nil
	}
	installed, err := c.sync(ctx, p, lock, nil)
	if err != nil {
		return err
	}
	if before != nil {
		if v, err := venv.Find(p.dir, c.venvOptions()); err == nil {
			if gone := dropped(before, lock); len(gone) > 0 {
				if err := v.Uninstall(ctx, gone); err != nil {
					return err
				}
				printRemoved(w, gone)
			}
		}
	}
	printAdded(w, installed)
	return nil
}
