package scheduler

import (
	"fmt"

	"github.com/evergreen-ci/collbench"
	"github.com/evergreen-ci/collbench/distribution"
	"github.com/evergreen-ci/collbench/launch"
	"github.com/evergreen-ci/collbench/subprocess"
	"github.com/evergreen-ci/utility"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

// Validate performs every check that must pass before the run has any
// side effect: generator parameters (a *collbench.ConfigError listing all
// violations), then worker executables, literal data files and the
// launcher or submit binary (the first *collbench.ResourceError found; the
// rest are logged).
func (o *Orchestrator) Validate() error {
	if err := o.validateGenerators(); err != nil {
		return err
	}
	return o.validateResources()
}

func (o *Orchestrator) validateGenerators() error {
	verr := &collbench.ConfigError{}
	for i := range o.spec.Tests {
		test := &o.spec.Tests[i]
		field := fmt.Sprintf("test_suite[%d]", i)

		params, err := resolveParameters(test, o.global(), false)
		if err != nil {
			verr.Add(field, "%s", err.Error())
			continue
		}
		if test.MessagesData.IsLiteral() {
			continue
		}

		req := test.MessagesData.Generator
		err = distribution.Validate(req.Name, generationParams(req, params.NProc, ""))
		if err == nil {
			continue
		}
		var cerr *collbench.ConfigError
		if !errors.As(err, &cerr) {
			verr.Add(field+".messages_data", "%s", err.Error())
			continue
		}
		for _, v := range cerr.Violations {
			verr.Add(field+".messages_data."+v.Field, "%s", v.Constraint)
		}
	}
	return verr.Resolve()
}

func (o *Orchestrator) validateResources() error {
	var first error
	check := func(err error) {
		if err == nil {
			return
		}
		grip.Error(message.WrapError(err, message.Fields{
			"runner":    RunnerName,
			"message":   "missing resource",
			"benchmark": o.spec.Name,
		}))
		if first == nil {
			first = err
		}
	}

	for i := range o.spec.Tests {
		test := &o.spec.Tests[i]
		params, err := resolveParameters(test, o.global(), false)
		if err != nil {
			check(&collbench.ResourceError{Resource: test.Collective, Err: err})
			continue
		}
		check(subprocess.CheckExecutable(params.Worker))

		if test.MessagesData.IsLiteral() {
			path, err := literalPath(test.MessagesData.Path)
			if err != nil {
				check(err)
			} else if !utility.FileExists(path) {
				check(&collbench.ResourceError{Resource: path, Err: errors.New("message data file does not exist")})
			}
		}
	}

	check(o.checkLauncher())

	return first
}

// checkLauncher resolves the binary that starts every launch script: the
// launcher for direct execution, the submit command for clusters.
func (o *Orchestrator) checkLauncher() error {
	executor := o.global().Executor
	binary := executor.Launcher
	if executor.Kind == collbench.ExecutorCluster {
		args, err := launch.SubmitArgs(executor, "")
		if err != nil {
			return &collbench.ResourceError{Resource: executor.SubmitCommand, Err: err}
		}
		binary = args[0]
	}
	_, err := o.opts.LookPath(binary)
	return err
}
