// Package shell runs POSIX shell scripts in-process. Modules use it to drive
// native tooling such as dpkg-deb without depending on /bin/sh.
package shell

//go:generate mockgen -destination=./mocks/shell.go . Runner

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/glorpus-work/fluffpkg/internal/logger"
	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"
)

// Options configure one script run.
type Options struct {
	// Dir is the working directory. Defaults to the current directory.
	Dir string
	// Env is added to the environment of the current process.
	Env []string
	// Args are exposed to the script as $1, $2, ...
	Args []string
	// Stdout receives the script's standard output. Nil discards it.
	Stdout io.Writer
}

// Runner runs shell scripts.
type Runner interface {
	Run(ctx context.Context, script string, opts Options) error
}

// Interpreter is a Runner backed by mvdan.cc/sh.
type Interpreter struct{}

var _ Runner = Interpreter{}

// New returns the in-process interpreter.
func New() Interpreter {
	return Interpreter{}
}

// Run parses and runs script. A non-zero exit status is reported as
// ErrCommandFailed together with the tail of the script's stderr.
func (Interpreter) Run(ctx context.Context, script string, opts Options) error {
	prog, err := syntax.NewParser().Parse(strings.NewReader(script), "script")
	if err != nil {
		return fmt.Errorf("failed to parse script: %w", err)
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	var stderr bytes.Buffer

	runnerOpts := []interp.RunnerOption{
		interp.Env(expand.ListEnviron(append(os.Environ(), opts.Env...)...)),
		interp.StdIO(nil, stdout, &stderr),
	}
	if opts.Dir != "" {
		runnerOpts = append(runnerOpts, interp.Dir(opts.Dir))
	}
	if len(opts.Args) > 0 {
		// "--" keeps arguments that start with a dash from being read as shell options
		runnerOpts = append(runnerOpts, interp.Params(append([]string{"--"}, opts.Args...)...))
	}

	runner, err := interp.New(runnerOpts...)
	if err != nil {
		return fmt.Errorf("failed to create interpreter: %w", err)
	}

	logger.Debug("Running script", logger.Fields{"dir": opts.Dir, "args": opts.Args})
	err = runner.Run(ctx, prog)
	if err == nil {
		return nil
	}
	var status interp.ExitStatus
	if stderrors.As(err, &status) {
		return fmt.Errorf("exit status %d: %s: %w", int(status), tail(stderr.String()), errors.ErrCommandFailed)
	}
	return fmt.Errorf("%w: %w", errors.ErrCommandFailed, err)
}

// Quote quotes s for use as a single word in a script.
func Quote(s string) (string, error) {
	return syntax.Quote(s, syntax.LangPOSIX)
}

func tail(s string) string {
	s = strings.TrimSpace(s)
	lines := strings.Split(s, "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	return strings.Join(lines, "; ")
}
