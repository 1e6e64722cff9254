package launch

import (
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"text/template"
	"time"

	"github.com/evergreen-ci/collbench"
	"github.com/evergreen-ci/collbench/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDirect(t *testing.T) {
	script, err := Build(Options{
		Executor: model.ExecutorConfig{
			Kind:         collbench.ExecutorDirect,
			Launcher:     "mpirun",
			LauncherArgs: "--oversubscribe -x FOO=bar baz",
		},
		JobName: "bcast trial 0",
		NProc:   4,
		Trials:  1,
		Invocation: WorkerInvocation{
			Worker:       "/opt/bench/bcast",
			MessagesPath: "/r/4-equal.csv",
			OutputPath:   "/r/my results.csv",
			Timeout:      10,
			Verbose:      true,
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/sh\n"+
		"# bcast_trial_0\n"+
		"exec mpirun -np 4 --oversubscribe -x FOO=bar baz /opt/bench/bcast"+
		" --fmessages /r/4-equal.csv --foutput '/r/my results.csv' --timeout 10 --verbose\n", script)
}

func TestBuildCluster(t *testing.T) {
	opts := Options{
		Executor: model.ExecutorConfig{
			Kind:         collbench.ExecutorCluster,
			LauncherArgs: "--mpi=pmix",
			Nodes:        2,
			Modules:      []string{"gcc/12", "openmpi"},
		},
		JobName: "a2a",
		NProc:   8,
		Trials:  3,
		Invocation: WorkerInvocation{
			Worker:       "/w",
			MessagesPath: "/m.csv",
			OutputPath:   "/o.csv",
			Timeout:      20,
		},
	}

	script, err := Build(opts)
	require.NoError(t, err)
	assert.Equal(t, "#!/bin/bash\n"+
		"#SBATCH --job-name=a2a\n"+
		"#SBATCH --nodes=2\n"+
		"#SBATCH --ntasks=8\n"+
		"#SBATCH --time=00:02:00\n"+
		"module load gcc/12\n"+
		"module load openmpi\n"+
		"\n"+
		"srun --mpi=pmix /w --fmessages /m.csv --foutput /o.csv --timeout 20\n", script)

	t.Run("ExplicitWallTime", func(t *testing.T) {
		opts.Executor.WallTime = "45m"
		opts.Executor.Modules = nil
		script, err := Build(opts)
		require.NoError(t, err)
		assert.Contains(t, script, "#SBATCH --time=00:45:00\n\nsrun")
	})
}

func TestBuildRejectsInvalidOptions(t *testing.T) {
	valid := func() Options {
		return Options{
			Executor:   model.ExecutorConfig{Kind: collbench.ExecutorDirect, Launcher: "mpirun"},
			NProc:      2,
			Invocation: WorkerInvocation{Worker: "/w", MessagesPath: "/m", OutputPath: "/o", Timeout: 1},
		}
	}
	_, err := Build(valid())
	require.NoError(t, err)

	for name, mutate := range map[string]func(*Options){
		"TooFewProcesses": func(o *Options) { o.NProc = 1 },
		"UnknownKind":     func(o *Options) { o.Executor.Kind = "k8s" },
		"NoWorker":        func(o *Options) { o.Invocation.Worker = "" },
		"NoTimeout":       func(o *Options) { o.Invocation.Timeout = 0 },
		"NoLauncher":      func(o *Options) { o.Executor.Launcher = "" },
		"BadArgs":         func(o *Options) { o.Executor.LauncherArgs = "'unterminated" },
		"BadWallTime": func(o *Options) {
			o.Executor.Kind = collbench.ExecutorCluster
			o.Executor.WallTime = "later"
		},
	} {
		t.Run(name, func(t *testing.T) {
			opts := valid()
			mutate(&opts)
			_, err := Build(opts)
			assert.Error(t, err)
		})
	}
}

func TestSubmitArgs(t *testing.T) {
	args, err := SubmitArgs(model.ExecutorConfig{Kind: collbench.ExecutorDirect}, "/ws/a.sh")
	require.NoError(t, err)
	assert.Equal(t, []string{"/ws/a.sh"}, args)

	args, err = SubmitArgs(model.ExecutorConfig{
		Kind:          collbench.ExecutorCluster,
		SubmitCommand: collbench.DefaultSubmitCommand,
	}, "/ws/a.sh")
	require.NoError(t, err)
	assert.Equal(t, []string{"sbatch", "--wait", "/ws/a.sh"}, args)

	_, err = SubmitArgs(model.ExecutorConfig{Kind: collbench.ExecutorCluster}, "/ws/a.sh")
	assert.Error(t, err)
	_, err = SubmitArgs(model.ExecutorConfig{Kind: collbench.ExecutorCluster, SubmitCommand: "sbatch 'x"}, "/ws/a.sh")
	assert.Error(t, err)
}

func TestWallTime(t *testing.T) {
	assert.Equal(t, 90*time.Second, DefaultWallTime(10, 3))
	assert.Equal(t, 70*time.Second, DefaultWallTime(10, 0))
	assert.Equal(t, "01:30:01", FormatWallTime(90*time.Minute+500*time.Millisecond))
	assert.Equal(t, "26:00:00", FormatWallTime(26*time.Hour))
	assert.Equal(t, "00:00:00", FormatWallTime(0))
}

func TestQuote(t *testing.T) {
	quote := func(word string) string {
		out := &strings.Builder{}
		require.NoError(t, template.Must(template.New("q").Funcs(funcs).Parse("{{ quote . }}")).Execute(out, word))
		return out.String()
	}
	assert.Equal(t, "plain/path-1.csv", quote("plain/path-1.csv"))
	assert.Equal(t, "''", quote(""))
	assert.Equal(t, `'it'"'"'s'`, quote("it's"))

	if runtime.GOOS == "windows" {
		return
	}
	for _, word := range []string{"a b", "it's", "$HOME", "`x`", "semi;colon", "\"dq\"", "back\\slash"} {
		out, err := exec.Command("sh", "-c", "printf %s "+quote(word)).Output()
		require.NoError(t, err)
		assert.Equal(t, word, string(out))
	}
}
