package scheduler

import (
	"path/filepath"

	"github.com/evergreen-ci/collbench"
	"github.com/evergreen-ci/collbench/model"
	"github.com/pkg/errors"
)

// EffectiveRunParameters are the values one test actually runs with. They
// are computed once per test and never written back into the spec, so a
// test-local process count cannot leak into later tests.
type EffectiveRunParameters struct {
	NProc   int
	Timeout int
	Trials  int
	Verbose bool
	// Worker is the absolute path of the worker executable.
	Worker string
	// MessagesPath is set once the message data is resolved.
	MessagesPath string
	// Generated marks message data produced for this run, which the run
	// therefore owns and may delete.
	Generated bool
}

// resolveParameters computes everything except the message path.
func resolveParameters(test *model.TestCase, g *model.GlobalConfig, verbose bool) (EffectiveRunParameters, error) {
	params := EffectiveRunParameters{
		Timeout: test.TimeoutSeconds(),
		Trials:  test.TrialCount(),
		Verbose: verbose,
	}

	nproc, ok := g.DefaultNProc()
	if !test.MessagesData.IsLiteral() {
		local, hasLocal, err := test.MessagesData.Generator.NProc()
		if err != nil {
			return params, errors.WithStack(err)
		}
		if hasLocal {
			nproc, ok = local, true
		}
	}
	if !ok {
		return params, errors.Errorf("test '%s' has no process count", test.Name)
	}
	params.NProc = nproc

	worker, err := filepath.Abs(test.Collective)
	if err != nil {
		return params, errors.Wrapf(err, "resolving worker '%s'", test.Collective)
	}
	params.Worker = worker

	return params, nil
}

// generationParams returns a copy of the request's params with the
// effective process count and the workspace as the save directory.
func generationParams(req *model.GenerationRequest, nproc int, savedir string) map[string]interface{} {
	out := make(map[string]interface{}, len(req.Params)+2)
	for k, v := range req.Params {
		out[k] = v
	}
	out["nproc"] = nproc
	out["savedir"] = savedir
	return out
}

// literalPath resolves a user-supplied data file against the invocation
// directory, since launch scripts run inside the workspace.
func literalPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &collbench.ResourceError{Resource: path, Err: errors.WithStack(err)}
	}
	return abs, nil
}
