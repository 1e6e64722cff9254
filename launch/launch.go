// Package launch renders the shell scripts that start a benchmark worker
// under a process launcher or a batch scheduler. Rendering is pure: nothing
// here touches the filesystem or starts a process.
package launch

import (
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"time"

	"github.com/alessio/shellescape"
	"github.com/evergreen-ci/collbench"
	"github.com/evergreen-ci/collbench/model"
	"github.com/google/shlex"
	"github.com/mongodb/grip"
	"github.com/pkg/errors"
)

// WorkerInvocation is the worker half of a launch line.
type WorkerInvocation struct {
	Worker       string
	MessagesPath string
	OutputPath   string
	// Timeout is in seconds and is handed to the worker, which enforces it.
	Timeout int
	Verbose bool
}

// Args is the worker's argv.
func (w WorkerInvocation) Args() []string {
	args := []string{
		w.Worker,
		"--fmessages", w.MessagesPath,
		"--foutput", w.OutputPath,
		"--timeout", fmt.Sprint(w.Timeout),
	}
	if w.Verbose {
		args = append(args, "--verbose")
	}
	return args
}

// Options describe one trial's launch.
type Options struct {
	Executor model.ExecutorConfig
	// JobName labels the job for the cluster scheduler.
	JobName string
	NProc   int
	// Trials sizes the default cluster wall time.
	Trials     int
	Invocation WorkerInvocation
}

func (o *Options) validate() error {
	catcher := grip.NewBasicCatcher()
	catcher.ErrorfWhen(!o.Executor.Kind.Validate(), "executor kind '%s' is not supported", o.Executor.Kind)
	catcher.ErrorfWhen(o.NProc < collbench.MinProcesses, "process count must be >= %d, got %d", collbench.MinProcesses, o.NProc)
	catcher.NewWhen(o.Invocation.Worker == "", "worker must be specified")
	catcher.NewWhen(o.Invocation.MessagesPath == "", "messages path must be specified")
	catcher.NewWhen(o.Invocation.OutputPath == "", "output path must be specified")
	catcher.ErrorfWhen(o.Invocation.Timeout <= 0, "timeout must be > 0, got %d", o.Invocation.Timeout)
	catcher.NewWhen(o.Executor.Kind == collbench.ExecutorDirect && o.Executor.Launcher == "", "launcher must be specified")
	return catcher.Resolve()
}

const directTemplate = `#!/bin/sh
# {{ .JobName }}
exec {{ quote .Launcher }} -np {{ .NProc }}{{ range .LauncherArgs }} {{ quote . }}{{ end }}{{ range .Worker }} {{ quote . }}{{ end }}
`

const clusterTemplate = `#!/bin/bash
#SBATCH --job-name={{ .JobName }}
#SBATCH --nodes={{ .Nodes }}
#SBATCH --ntasks={{ .NProc }}
#SBATCH --time={{ .WallTime }}
{{- range .Modules }}
module load {{ quote . }}
{{- end }}

srun{{ range .LauncherArgs }} {{ quote . }}{{ end }}{{ range .Worker }} {{ quote . }}{{ end }}
`

var funcs = template.FuncMap{"quote": shellescape.Quote}

var scripts = template.Must(template.New("direct").Funcs(funcs).Parse(directTemplate))

func init() {
	template.Must(scripts.New("cluster").Parse(clusterTemplate))
}

type scriptData struct {
	JobName      string
	Launcher     string
	LauncherArgs []string
	Worker       []string
	NProc        int
	Nodes        int
	Modules      []string
	WallTime     string
}

// Build renders the launch script for opts.
func Build(opts Options) (string, error) {
	if err := opts.validate(); err != nil {
		return "", errors.Wrap(err, "invalid launch options")
	}

	launcherArgs, err := shlex.Split(opts.Executor.LauncherArgs)
	if err != nil {
		return "", errors.Wrapf(err, "splitting launcher args '%s'", opts.Executor.LauncherArgs)
	}

	data := scriptData{
		JobName:      jobName(opts.JobName),
		Launcher:     opts.Executor.Launcher,
		LauncherArgs: launcherArgs,
		Worker:       opts.Invocation.Args(),
		NProc:        opts.NProc,
		Nodes:        opts.Executor.Nodes,
		Modules:      opts.Executor.Modules,
	}

	name := string(collbench.ExecutorDirect)
	if opts.Executor.Kind == collbench.ExecutorCluster {
		name = string(collbench.ExecutorCluster)
		if data.Nodes < 1 {
			data.Nodes = collbench.DefaultNodes
		}
		limit, err := opts.Executor.WallTimeLimit()
		if err != nil {
			return "", errors.WithStack(err)
		}
		if limit == 0 {
			limit = DefaultWallTime(opts.Invocation.Timeout, opts.Trials)
		}
		data.WallTime = FormatWallTime(limit)
	}

	out := &strings.Builder{}
	if err := scripts.ExecuteTemplate(out, name, data); err != nil {
		return "", errors.Wrapf(err, "rendering %s launch script", name)
	}
	return out.String(), nil
}

// SubmitArgs is the argv that starts a rendered script: the script itself
// for direct execution, or the submit command followed by the script.
func SubmitArgs(executor model.ExecutorConfig, scriptPath string) ([]string, error) {
	if executor.Kind != collbench.ExecutorCluster {
		return []string{scriptPath}, nil
	}
	args, err := shlex.Split(executor.SubmitCommand)
	if err != nil {
		return nil, errors.Wrapf(err, "splitting submit command '%s'", executor.SubmitCommand)
	}
	if len(args) == 0 {
		return nil, errors.New("submit command is empty")
	}
	return append(args, scriptPath), nil
}

// DefaultWallTime covers every trial of a test plus scheduling slack.
func DefaultWallTime(timeoutSeconds, trials int) time.Duration {
	if trials < 1 {
		trials = 1
	}
	return time.Duration(timeoutSeconds*trials)*time.Second + collbench.ClusterWallTimeSlack
}

// FormatWallTime renders d as HH:MM:SS, rounding partial seconds up.
func FormatWallTime(d time.Duration) string {
	total := int64((d + time.Second - 1) / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}

var unsafeJobChars = regexp.MustCompile(`[^A-Za-z0-9_.-]+`)

func jobName(name string) string {
	name = unsafeJobChars.ReplaceAllString(name, "_")
	if name == "" {
		return "collbench"
	}
	return name
}
