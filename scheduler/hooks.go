package scheduler

import (
	"context"
	"path/filepath"

	"github.com/evergreen-ci/collbench"
	"github.com/evergreen-ci/collbench/subprocess"
	"github.com/evergreen-ci/collbench/util"
	"github.com/google/shlex"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

// HookResult is the outcome of one post-run collaborator.
type HookResult struct {
	Name     string
	Command  string
	ExitCode int
	Err      error
}

// summaryRecord is one row of the run summary.
type summaryRecord struct {
	Test       string  `csv:"test"`
	Trial      int     `csv:"trial"`
	Dispatched bool    `csv:"dispatched"`
	Success    bool    `csv:"success"`
	ExitCode   int     `csv:"exit_code"`
	Seconds    float64 `csv:"duration_seconds"`
	Result     string  `csv:"result"`
}

// finalize writes the run summary and hands the workspace to the plotting
// and then the archival collaborator. Hook failures are reported but never
// change the outcome of the run, and no hook runs when no trial was
// dispatched or the run was canceled.
func (o *Orchestrator) finalize(ctx context.Context) {
	o.transition(StateFinalizing)
	o.writeSummary()
	if o.dispatched == 0 || ctx.Err() != nil {
		return
	}

	post := o.global().Post
	for _, hook := range []struct{ name, command string }{
		{name: "plot", command: post.Plot},
		{name: "archive", command: post.Archive},
	} {
		if hook.command == "" {
			continue
		}
		result := o.runHook(ctx, hook.name, hook.command)
		o.report.Hooks = append(o.report.Hooks, result)
	}
}

func (o *Orchestrator) writeSummary() {
	records := make([]summaryRecord, 0, len(o.report.Results))
	for _, res := range o.report.Results {
		record := summaryRecord{
			Test:       res.Test,
			Trial:      res.Trial,
			Dispatched: res.Dispatched,
			Success:    res.Success,
			ExitCode:   res.ExitCode,
			Seconds:    res.Duration.Seconds(),
		}
		if res.Result != "" {
			record.Result = filepath.Base(res.Result)
		}
		records = append(records, record)
	}

	path := filepath.Join(o.workspace.Path(), collbench.SummaryFileName)
	grip.Warning(message.WrapError(util.WriteCSVFile(path, records), message.Fields{
		"runner":    RunnerName,
		"message":   "could not write run summary",
		"workspace": o.workspace.Path(),
	}))
}

func (o *Orchestrator) runHook(ctx context.Context, name, command string) HookResult {
	result := HookResult{Name: name, Command: command, ExitCode: -1}

	args, err := shlex.Split(command)
	if err == nil && len(args) == 0 {
		err = errors.New("empty command")
	}
	if err != nil {
		result.Err = errors.Wrapf(err, "parsing %s command", name)
	} else {
		result.ExitCode, result.Err = o.opts.Dispatcher.Run(ctx, &subprocess.Command{
			ID:        "post-" + name,
			Args:      append(args, o.workspace.Path()),
			Directory: o.workspace.Path(),
			Env:       map[string]string{collbench.WorkspaceEnv: o.workspace.Path()},
			Verbose:   o.verbose(),
		})
	}

	if result.Err != nil {
		grip.Warning(message.WrapError(result.Err, message.Fields{
			"runner":    RunnerName,
			"message":   "post-run collaborator failed",
			"hook":      name,
			"command":   command,
			"workspace": o.workspace.Path(),
		}))
	} else {
		grip.Info(message.Fields{
			"runner":    RunnerName,
			"message":   "post-run collaborator finished",
			"hook":      name,
			"workspace": o.workspace.Path(),
		})
	}

	return result
}
