// Package scheduler drives a benchmark run: it validates the spec, prepares
// the workspace, dispatches every test and trial in order under the global
// runtime budget, and hands the workspace to the post-run collaborators.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/evergreen-ci/collbench"
	"github.com/evergreen-ci/collbench/distribution"
	"github.com/evergreen-ci/collbench/launch"
	"github.com/evergreen-ci/collbench/model"
	"github.com/evergreen-ci/collbench/subprocess"
	"github.com/evergreen-ci/collbench/workspace"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

const RunnerName = "orchestrator"

type State string

const (
	StateInit               State = "init"
	StateValidating         State = "validating"
	StatePreparingWorkspace State = "preparing-workspace"
	StateRunningTest        State = "running-test"
	StateFinalizing         State = "finalizing"
	StateCompleted          State = "completed"
	StateAborted            State = "aborted"
)

// AbortReason says why a run ended in StateAborted.
type AbortReason string

const (
	AbortNone AbortReason = ""
	// AbortPreparation covers invalid configuration, missing binaries and
	// workspace failures, all detected before anything is dispatched.
	AbortPreparation          AbortReason = "preparation_failure"
	AbortDeadlineExceeded     AbortReason = "deadline_exceeded"
	AbortDeadlineAfterFailure AbortReason = "deadline_after_failure"
	AbortTestFailure          AbortReason = "test_failure"
	AbortCanceled             AbortReason = "canceled"
)

// RunResult is the outcome of one trial. Trial is -1 when the test failed
// before its first trial could be dispatched.
type RunResult struct {
	Test       string
	Trial      int
	Dispatched bool
	Success    bool
	ExitCode   int
	Script     string
	Messages   string
	Result     string
	Duration   time.Duration
	Err        error
}

// Report summarizes a finished run.
type Report struct {
	State       State
	AbortReason AbortReason
	Workspace   string
	Results     []RunResult
	Hooks       []HookResult
	Started     time.Time
	Finished    time.Time
}

// Dispatched counts the trials that were actually started.
func (r *Report) Dispatched() int {
	n := 0
	for _, res := range r.Results {
		if res.Dispatched {
			n++
		}
	}
	return n
}

// Failures returns every unsuccessful trial.
func (r *Report) Failures() []RunResult {
	out := []RunResult{}
	for _, res := range r.Results {
		if !res.Success {
			out = append(out, res)
		}
	}
	return out
}

// Options inject the orchestrator's collaborators and the command-line
// overrides of the output policy.
type Options struct {
	Dispatcher subprocess.Dispatcher
	Clock      func() time.Time
	LookPath   func(string) (string, error)

	// OutputDirectory replaces global_config.output.directory when set.
	OutputDirectory string
	// Ephemeral and Verbose can only switch the spec's settings on.
	Ephemeral bool
	Verbose   bool
}

// Orchestrator runs one benchmark spec once. It is not safe for concurrent
// use and executes strictly one dispatch at a time.
type Orchestrator struct {
	spec       *model.BenchmarkSpec
	opts       Options
	state      State
	started    time.Time
	workspace  *workspace.Workspace
	report     *Report
	dispatched int
}

func New(spec *model.BenchmarkSpec, opts Options) *Orchestrator {
	if opts.Dispatcher == nil {
		opts.Dispatcher = subprocess.NewLocalDispatcher()
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.LookPath == nil {
		opts.LookPath = subprocess.LookPath
	}
	return &Orchestrator{spec: spec, opts: opts, state: StateInit}
}

func (o *Orchestrator) State() State { return o.state }

func (o *Orchestrator) global() *model.GlobalConfig { return o.spec.Global }

func (o *Orchestrator) verbose() bool { return o.opts.Verbose || o.global().Output.Verbose }

func (o *Orchestrator) ephemeral() bool { return o.opts.Ephemeral || o.global().Output.Ephemeral }

func (o *Orchestrator) outputDirectory() string {
	if o.opts.OutputDirectory != "" {
		return o.opts.OutputDirectory
	}
	return o.global().Output.Directory
}

func (o *Orchestrator) transition(next State) {
	grip.Debug(message.Fields{
		"runner":    RunnerName,
		"benchmark": o.spec.Name,
		"from":      o.state,
		"to":        next,
	})
	o.state = next
}

// Run executes the whole benchmark. The report is returned even when the
// run aborts; the error is nil only for StateCompleted.
func (o *Orchestrator) Run(ctx context.Context) (*Report, error) {
	if o.state != StateInit {
		return nil, errors.Errorf("orchestrator already in state '%s'", o.state)
	}
	o.started = o.opts.Clock()
	o.report = &Report{Started: o.started}

	o.transition(StateValidating)
	if err := o.Validate(); err != nil {
		return o.abort(ctx, AbortPreparation, err)
	}

	o.transition(StatePreparingWorkspace)
	out := o.global().Output
	ws, err := workspace.Create(o.outputDirectory(), out.Name, out.OnCollision)
	if err != nil {
		return o.abort(ctx, AbortPreparation, err)
	}
	o.workspace = ws
	o.report.Workspace = ws.Path()

	for i := range o.spec.Tests {
		if reason, err := o.checkpoint(ctx, true); err != nil {
			return o.abort(ctx, reason, err)
		}
		o.transition(StateRunningTest)
		if reason, err := o.runTest(ctx, &o.spec.Tests[i]); err != nil {
			return o.abort(ctx, reason, err)
		}
	}

	o.finalize(ctx)
	o.finish(StateCompleted, AbortNone)

	grip.Info(message.Fields{
		"runner":     RunnerName,
		"message":    "benchmark completed",
		"benchmark":  o.spec.Name,
		"tests":      len(o.spec.Tests),
		"dispatched": o.dispatched,
		"failures":   len(o.report.Failures()),
		"elapsed":    o.elapsed().String(),
		"workspace":  o.report.Workspace,
	})

	return o.report, nil
}

func (o *Orchestrator) abort(ctx context.Context, reason AbortReason, err error) (*Report, error) {
	if o.workspace != nil {
		o.finalize(ctx)
	}
	o.finish(StateAborted, reason)

	grip.Error(message.WrapError(err, message.Fields{
		"runner":     RunnerName,
		"message":    "benchmark aborted",
		"benchmark":  o.spec.Name,
		"reason":     reason,
		"dispatched": o.dispatched,
		"elapsed":    o.elapsed().String(),
		"workspace":  o.report.Workspace,
	}))

	return o.report, err
}

func (o *Orchestrator) finish(state State, reason AbortReason) {
	o.transition(state)
	o.report.State = state
	o.report.AbortReason = reason
	o.report.Finished = o.opts.Clock()
}

func (o *Orchestrator) elapsed() time.Duration { return o.opts.Clock().Sub(o.started) }

func (o *Orchestrator) exhausted() bool { return o.elapsed() >= o.global().Budget() }

func (o *Orchestrator) deadlineError(cause error) error {
	return &collbench.DeadlineExceeded{
		Budget:     o.global().Budget(),
		Elapsed:    o.elapsed(),
		Dispatched: o.dispatched,
		Cause:      cause,
	}
}

// checkpoint is the only place a run stops between dispatches: on
// cancellation, or on an exhausted budget when checkDeadline is set.
func (o *Orchestrator) checkpoint(ctx context.Context, checkDeadline bool) (AbortReason, error) {
	if err := ctx.Err(); err != nil {
		return AbortCanceled, errors.Wrap(err, "run canceled")
	}
	if checkDeadline && o.exhausted() {
		return AbortDeadlineExceeded, o.deadlineError(nil)
	}
	return AbortNone, nil
}

// handleFailure applies the failure policy to a failed test or trial. A
// nil error means the run continues with the next test.
func (o *Orchestrator) handleFailure(ctx context.Context, test string, failure error) (AbortReason, error) {
	if err := ctx.Err(); err != nil {
		return AbortCanceled, errors.Wrap(err, "run canceled")
	}
	if o.exhausted() {
		return AbortDeadlineAfterFailure, o.deadlineError(failure)
	}
	if o.global().OnFailure == collbench.FailureAbort {
		return AbortTestFailure, failure
	}

	grip.Warning(message.WrapError(failure, message.Fields{
		"runner":    RunnerName,
		"message":   "test failed, continuing with the next test",
		"benchmark": o.spec.Name,
		"test":      test,
	}))
	return AbortNone, nil
}

func (o *Orchestrator) runTest(ctx context.Context, test *model.TestCase) (AbortReason, error) {
	params, err := resolveParameters(test, o.global(), o.verbose())
	if err == nil {
		err = o.resolveMessages(test, &params)
	}
	if err != nil {
		o.report.Results = append(o.report.Results, RunResult{Test: test.Name, Trial: -1, ExitCode: -1, Err: err})
		return o.handleFailure(ctx, test.Name, err)
	}
	if params.Generated && o.ephemeral() {
		defer func() {
			grip.Warning(message.WrapError(o.workspace.Remove(params.MessagesPath), message.Fields{
				"runner":  RunnerName,
				"message": "could not remove generated message data",
				"test":    test.Name,
			}))
		}()
	}

	perTrial := o.global().DeadlineCheck == collbench.DeadlinePerTrial
	for trial := 0; trial < params.Trials; trial++ {
		if trial > 0 {
			if reason, err := o.checkpoint(ctx, perTrial); err != nil {
				return reason, err
			}
		}

		result := o.runTrial(ctx, test, params, trial)
		o.report.Results = append(o.report.Results, result)

		if o.ephemeral() {
			grip.Warning(message.WrapError(o.workspace.Remove(result.Result), message.Fields{
				"runner":  RunnerName,
				"message": "could not remove result file",
				"test":    test.Name,
				"trial":   trial,
			}))
		}

		if result.Err != nil {
			// Later trials of a failed test are skipped under every policy.
			return o.handleFailure(ctx, test.Name, result.Err)
		}
	}

	return AbortNone, nil
}

func (o *Orchestrator) resolveMessages(test *model.TestCase, params *EffectiveRunParameters) error {
	if test.MessagesData.IsLiteral() {
		path, err := literalPath(test.MessagesData.Path)
		if err != nil {
			return err
		}
		params.MessagesPath = path
		return nil
	}

	req := test.MessagesData.Generator
	ds, err := distribution.Generate(req.Name, generationParams(req, params.NProc, o.workspace.Path()))
	if err != nil {
		var gerr *collbench.GenerationError
		if errors.As(err, &gerr) {
			return err
		}
		return &collbench.GenerationError{Generator: req.Name, Err: err}
	}
	params.MessagesPath = ds.Path
	params.Generated = true

	msg := message.Fields{
		"runner":    RunnerName,
		"message":   "generated message data",
		"test":      test.Name,
		"generator": ds.Name,
		"shape":     ds.Shape,
		"nproc":     ds.NProc,
		"path":      ds.Path,
	}
	if info, err := os.Stat(ds.Path); err == nil {
		msg["size"] = humanize.Bytes(uint64(info.Size()))
	}
	grip.Info(msg)

	return nil
}

func (o *Orchestrator) launchOptions(test *model.TestCase, params EffectiveRunParameters, resultPath string, trial int) launch.Options {
	jobName := test.Name
	if params.Trials > 1 {
		jobName = fmt.Sprintf("%s-%d", test.Name, trial)
	}
	return launch.Options{
		Executor: o.global().Executor,
		JobName:  jobName,
		NProc:    params.NProc,
		Trials:   params.Trials,
		Invocation: launch.WorkerInvocation{
			Worker:       params.Worker,
			MessagesPath: params.MessagesPath,
			OutputPath:   resultPath,
			Timeout:      params.Timeout,
			Verbose:      params.Verbose,
		},
	}
}

func (o *Orchestrator) runTrial(ctx context.Context, test *model.TestCase, params EffectiveRunParameters, trial int) RunResult {
	result := RunResult{
		Test:     test.Name,
		Trial:    trial,
		ExitCode: -1,
		Script:   o.workspace.ScriptPath(test.Name, trial, params.Trials),
		Messages: params.MessagesPath,
		Result:   o.workspace.ResultPath(test.Name, trial, params.Trials),
	}

	script, err := launch.Build(o.launchOptions(test, params, result.Result, trial))
	if err != nil {
		result.Err = errors.Wrapf(err, "building launch script for test '%s'", test.Name)
		return result
	}
	if err = o.workspace.WriteScript(result.Script, script); err != nil {
		result.Err = err
		return result
	}
	args, err := launch.SubmitArgs(o.global().Executor, result.Script)
	if err != nil {
		result.Err = errors.WithStack(err)
		return result
	}

	msg := message.Fields{
		"runner":    RunnerName,
		"message":   fmt.Sprintf("dispatching %s trial", humanize.Ordinal(trial+1)),
		"benchmark": o.spec.Name,
		"test":      test.Name,
		"type":      test.Type,
		"trial":     trial,
		"trials":    params.Trials,
		"nproc":     params.NProc,
		"script":    result.Script,
		"remaining": (o.global().Budget() - o.elapsed()).String(),
	}
	if test.Pattern != nil {
		msg["mode"] = test.Pattern.Mode
		msg["collective"] = test.Pattern.CollectiveOperation
	}
	grip.Info(msg)

	start := o.opts.Clock()
	o.dispatched++
	result.Dispatched = true
	result.ExitCode, result.Err = o.opts.Dispatcher.Run(ctx, &subprocess.Command{
		ID:        fmt.Sprintf("%s-%d", test.Name, trial),
		Args:      args,
		Directory: o.workspace.Path(),
		Env:       map[string]string{collbench.WorkspaceEnv: o.workspace.Path()},
		Verbose:   params.Verbose,
	})
	result.Duration = o.opts.Clock().Sub(start)
	result.Success = result.Err == nil

	grip.Info(message.Fields{
		"runner":    RunnerName,
		"message":   "dispatch finished",
		"test":      test.Name,
		"trial":     trial,
		"success":   result.Success,
		"exit_code": result.ExitCode,
		"elapsed":   result.Duration.String(),
	})

	return result
}
