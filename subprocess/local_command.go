package subprocess

import (
	"context"
	"os"
	"strings"

	"github.com/evergreen-ci/collbench"
	"github.com/evergreen-ci/collbench/util"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/level"
	"github.com/mongodb/grip/message"
	"github.com/mongodb/jasper"
	"github.com/pkg/errors"
)

// DefaultOutputTail is how much combined output a failed dispatch keeps.
const DefaultOutputTail = 64 * 1024

// Dispatcher runs one command to completion.
type Dispatcher interface {
	// Run blocks until the command exits and returns its exit code. A
	// non-zero exit or a failure to start is a *collbench.ProcessError;
	// exit code -1 means the process never started or did not exit normally.
	Run(context.Context, *Command) (int, error)
}

// Command is a single argv dispatched in a working directory.
type Command struct {
	ID        string
	Args      []string
	Directory string
	// Env is added to the current process environment.
	Env map[string]string
	// Verbose streams output to the logger instead of buffering it.
	Verbose bool
}

func (c *Command) String() string { return strings.Join(c.Args, " ") }

// LocalDispatcher runs commands on this machine.
type LocalDispatcher struct {
	// OutputTail bounds the output kept for error reports; zero uses
	// DefaultOutputTail.
	OutputTail int
}

func NewLocalDispatcher() *LocalDispatcher {
	return &LocalDispatcher{OutputTail: DefaultOutputTail}
}

func (d *LocalDispatcher) Run(ctx context.Context, c *Command) (int, error) {
	if len(c.Args) == 0 {
		return -1, &collbench.ProcessError{ExitCode: -1, Err: errors.New("no command to run")}
	}

	size := d.OutputTail
	if size <= 0 {
		size = DefaultOutputTail
	}
	output := util.NewTailWriter(size)

	cmd := jasper.NewCommand().
		ID(c.ID).
		Priority(level.Debug).
		Add(c.Args).
		Directory(c.Directory).
		Environment(environment(c.Env))
	if c.Verbose {
		cmd.SetOutputSender(level.Info, grip.GetSender()).SetErrorSender(level.Error, grip.GetSender())
	} else {
		cmd.SetCombinedWriter(output)
	}

	runErr := cmd.Run(ctx)
	if len(cmd.GetProcIDs()) == 0 {
		return -1, &collbench.ProcessError{
			Command:  c.String(),
			ExitCode: -1,
			Output:   output.String(),
			Err:      errors.Wrap(runErr, "starting process"),
		}
	}

	exitCode, waitErr := cmd.Wait(ctx)
	if runErr == nil && waitErr == nil && exitCode == 0 {
		return 0, nil
	}

	err := runErr
	if err == nil {
		err = waitErr
	}
	if ctx.Err() != nil {
		err = errors.Wrap(ctx.Err(), "dispatch canceled")
	}
	if exitCode == 0 {
		exitCode = -1
	}

	grip.Debug(message.WrapError(err, message.Fields{
		"message":   "dispatch failed",
		"id":        c.ID,
		"cmd":       c.String(),
		"exit_code": exitCode,
		"truncated": output.Truncated(),
	}))

	return exitCode, &collbench.ProcessError{
		Command:  c.String(),
		ExitCode: exitCode,
		Output:   output.String(),
		Err:      err,
	}
}

func environment(extra map[string]string) map[string]string {
	env := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && k != "" {
			env[k] = v
		}
	}
	for k, v := range extra {
		env[k] = v
	}
	return env
}
