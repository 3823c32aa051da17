// Package cli implements the wheelhouse command-line interface.
//
// Commands edit the project manifest (add, remove), resolve it into the lock
// file (lock, update), and sync the project's virtual environment from the
// lock (install). The CLI is built using cobra and logs through
// charmbracelet/log; --verbose (-v) enables debug output, including every
// resolver decision.
//
// # Exit codes
//
//	0    success
//	1    generic or I/O failure
//	2    invalid manifest, lock or requirement
//	3    resolution conflict
//	4    metadata fetch failure
//	130  interrupted
package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/wheelhouse/pkg/buildinfo"
	"github.com/matzehuels/wheelhouse/pkg/config"
	"github.com/matzehuels/wheelhouse/pkg/deps"
	"github.com/matzehuels/wheelhouse/pkg/errors"
	"github.com/matzehuels/wheelhouse/pkg/observability"
	"github.com/matzehuels/wheelhouse/pkg/venv"
)

// appName is the application name used for directories and display.
const appName = "wheelhouse"

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	// Runner executes interpreter and pip processes. Default venv.ExecRunner.
	Runner venv.Runner

	stderr io.Writer
	flags  globalFlags
	config config.Config
}

// globalFlags are the persistent flags of the root command.
type globalFlags struct {
	dir        string
	configPath string
	indexURL   string
	indexFile  string
	noCache    bool
	pre        bool
}

// New creates a new CLI instance logging to w. WHEELHOUSE_LOG, when set to
// a level name, replaces level.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, envLevel(os.Getenv(logEnv), level)), stderr: w}
}

// errOut is where progress indicators are drawn.
func (c *CLI) errOut() io.Writer {
	return c.stderr
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Wheelhouse manages Python project dependencies",
		Long:         `Wheelhouse resolves the dependencies declared in pyproject.toml into a reproducible lock file and installs them into the project's virtual environment.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			observability.SetResolverHooks(eventLogger{})
			observability.SetCacheHooks(eventLogger{})
			return c.loadConfig()
		},
	}

	root.SetVersionTemplate(buildinfo.Template())

	pf := root.PersistentFlags()
	pf.StringVarP(&c.flags.dir, "directory", "C", ".", "project directory")
	pf.StringVar(&c.flags.configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/wheelhouse/config.toml)")
	pf.StringVar(&c.flags.indexURL, "index-url", "", "PyPI JSON API base URL")
	pf.StringVar(&c.flags.indexFile, "index-file", "", "resolve against an offline TOML index instead of PyPI")
	pf.BoolVar(&c.flags.noCache, "no-cache", false, "disable the metadata cache")
	pf.BoolVar(&c.flags.pre, "pre", false, "allow pre-release versions")

	root.AddCommand(c.addCommand())
	root.AddCommand(c.removeCommand())
	root.AddCommand(c.lockCommand())
	root.AddCommand(c.updateCommand())
	root.AddCommand(c.installCommand())
	root.AddCommand(c.graphCommand())
	root.AddCommand(c.versionCommand())
	root.AddCommand(c.pythonCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// loadConfig layers the config file, the environment and the flags.
func (c *CLI) loadConfig() error {
	path := c.flags.configPath
	if path == "" {
		if p, err := config.DefaultPath(); err == nil {
			path = p
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	if c.flags.indexURL != "" {
		cfg.IndexURL = c.flags.indexURL
	}
	if c.flags.pre {
		cfg.AllowPrereleases = true
	}
	c.config = cfg.WithDefaults()
	return nil
}

func (c *CLI) venvOptions() venv.Options {
	return venv.Options{Runner: c.Runner, Logger: c.Logger.Debugf}
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	if stderrors.Is(err, context.Canceled) {
		return 130
	}
	switch errors.GetCode(err) {
	case errors.ErrCodeManifestParse, errors.ErrCodeInvalidManifest,
		errors.ErrCodeLockParse, errors.ErrCodeInvalidLock, errors.ErrCodeStaleLock,
		errors.ErrCodeInvalidRequirement, errors.ErrCodeInvalidVersion,
		errors.ErrCodeInvalidSpecifier, errors.ErrCodeInvalidMarker:
		return 2
	case errors.ErrCodeResolutionConflict, errors.ErrCodeResolutionTooComplex:
		return 3
	case errors.ErrCodeNetwork, errors.ErrCodePackageNotFound:
		return 4
	}
	return 1
}

// ReportError prints a command error for the user. Resolution conflicts
// get one line per constraint.
func ReportError(w io.Writer, err error) {
	var conflict *deps.ConflictError
	if errors.As(err, &conflict) {
		printConflict(w, conflict.Error())
		return
	}
	printError(w, "%s", errors.UserMessage(err))
}

// pluralize formats n with noun, adding "s" unless n is 1.
func pluralize(n int, noun string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, noun)
	}
	return fmt.Sprintf("%d %ss", n, noun)
}

// ensureDir reports a missing project directory early with a clear message.
func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return errors.Wrap(errors.ErrCodeFileNotFound, err, "project directory %s", dir)
	}
	if !info.IsDir() {
		return errors.New(errors.ErrCodeFileNotFound, "%s is not a directory", dir)
	}
	return nil
}
