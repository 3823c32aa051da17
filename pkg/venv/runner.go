package venv

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Command is one process invocation.
type Command struct {
	Path string   // executable
	Args []string // arguments, without the executable
	Dir  string   // working directory; empty means the current one
	Env  []string // full environment; nil inherits the current one
}

func (c Command) String() string {
	return strings.Join(append([]string{c.Path}, c.Args...), " ")
}

// Runner executes commands and returns their standard output.
type Runner interface {
	Run(ctx context.Context, cmd Command) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Run implements Runner. On failure the error carries the command's
// standard error.
func (ExecRunner) Run(ctx context.Context, c Command) ([]byte, error) {
	cmd := exec.CommandContext(ctx, c.Path, c.Args...) //nolint:gosec // interpreter paths come from the project
	cmd.Dir = c.Dir
	cmd.Env = c.Env
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return out, fmt.Errorf("%s: %w", c, err)
		}
		return out, fmt.Errorf("%s: %w: %s", c, err, msg)
	}
	return out, nil
}
