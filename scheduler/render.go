package scheduler

import (
	"path/filepath"

	"github.com/evergreen-ci/collbench"
	"github.com/evergreen-ci/collbench/distribution"
	"github.com/evergreen-ci/collbench/launch"
	"github.com/evergreen-ci/collbench/workspace"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
)

// Render returns the launch script Run would write for the first trial of
// the named test, assuming the preferred workspace name is free. It neither
// generates data nor creates directories.
func (o *Orchestrator) Render(testName string) (string, error) {
	test, ok := o.spec.FindTest(testName)
	if !ok {
		return "", collbench.NewConfigError("test", "no test named '%s'", testName)
	}

	params, err := resolveParameters(test, o.global(), o.verbose())
	if err != nil {
		return "", errors.WithStack(err)
	}

	root, err := homedir.Expand(o.outputDirectory())
	if err != nil {
		return "", errors.Wrapf(err, "expanding '%s'", o.outputDirectory())
	}
	root, err = filepath.Abs(root)
	if err != nil {
		return "", errors.WithStack(err)
	}
	dir := filepath.Join(root, workspace.SanitizeName(o.global().Output.Name))

	if test.MessagesData.IsLiteral() {
		params.MessagesPath, err = literalPath(test.MessagesData.Path)
	} else {
		req := test.MessagesData.Generator
		params.MessagesPath, err = distribution.DataPath(req.Name, generationParams(req, params.NProc, dir))
	}
	if err != nil {
		return "", err
	}

	result := filepath.Join(dir, workspace.ResultName(test.Name, 0, params.Trials))
	return launch.Build(o.launchOptions(test, params, result, 0))
}
