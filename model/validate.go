package model

import (
	"fmt"

	"github.com/evergreen-ci/collbench"
	"github.com/evergreen-ci/collbench/workspace"
	"github.com/evergreen-ci/utility"
	"github.com/google/shlex"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
)

// Validate checks field presence, bounds and enumerations, returning a
// *collbench.ConfigError listing every violation. It does not check
// generator parameters or the filesystem; the scheduler does that before
// the run starts.
func (s *BenchmarkSpec) Validate() error {
	verr := &collbench.ConfigError{}

	verr.AddWhen(s.Name == "", "benchmark_name", "must be a non-empty string")
	verr.AddWhen(len(s.Tests) == 0, "test_suite", "must contain at least one test")

	if s.Global == nil {
		verr.Add("global_config", "is required")
	} else {
		s.Global.validate(verr)
	}

	for i := range s.Tests {
		s.Tests[i].validate(verr, fmt.Sprintf("test_suite[%d]", i), s.Global)
	}
	for _, c := range s.ResultCollisions() {
		grip.Warning(message.Fields{
			"message":      "tests share a result file name, later results overwrite earlier ones",
			"file":         c.File,
			"first_test":   s.Tests[c.First].Name,
			"test":         s.Tests[c.Second].Name,
			"first_index":  c.First,
			"second_index": c.Second,
		})
	}

	return verr.Resolve()
}

// ResultCollision is a pair of tests whose result files, once test names
// are sanitized and trial suffixes added, have the same name.
type ResultCollision struct {
	File   string
	First  int
	Second int
}

// ResultCollisions lists each test whose result files would overwrite those
// of an earlier test, naming the first shared file.
func (s *BenchmarkSpec) ResultCollisions() []ResultCollision {
	var out []ResultCollision
	owners := map[string]int{}
	for i := range s.Tests {
		t := &s.Tests[i]
		if t.Name == "" {
			continue
		}
		trials := utility.FromIntPtr(t.Trials)
		if trials < 1 {
			trials = 1
		}
		collided := false
		for trial := 0; trial < trials; trial++ {
			file := workspace.ResultName(t.Name, trial, trials)
			if first, ok := owners[file]; ok && !collided {
				out = append(out, ResultCollision{File: file, First: first, Second: i})
				collided = true
				continue
			}
			owners[file] = i
		}
	}
	return out
}

func (g *GlobalConfig) validate(verr *collbench.ConfigError) {
	if g.MaxRuntime == nil {
		verr.Add("global_config.max_runtime", "is required")
	} else {
		verr.AddWhen(*g.MaxRuntime < 0, "global_config.max_runtime", "must be >= 0, got %d", *g.MaxRuntime)
		verr.AddWhen(int64(*g.MaxRuntime) > collbench.MaxRuntimeSeconds, "global_config.max_runtime",
			"must be <= %d seconds, got %d", collbench.MaxRuntimeSeconds, *g.MaxRuntime)
	}
	if g.NProc != nil {
		verr.AddWhen(*g.NProc < collbench.MinProcesses, "global_config.nproc",
			"must be >= %d, got %d", collbench.MinProcesses, *g.NProc)
	}
	verr.AddWhen(g.OnFailure != "" && !g.OnFailure.Validate(), "global_config.on_failure",
		"must be one of '%s' or '%s', got '%s'", collbench.FailureNextTest, collbench.FailureAbort, g.OnFailure)
	verr.AddWhen(g.DeadlineCheck != "" && !g.DeadlineCheck.Validate(), "global_config.deadline_check",
		"must be one of '%s' or '%s', got '%s'", collbench.DeadlinePerTest, collbench.DeadlinePerTrial, g.DeadlineCheck)

	e := &g.Executor
	verr.AddWhen(e.Kind != "" && !e.Kind.Validate(), "global_config.executor.kind",
		"must be one of '%s' or '%s', got '%s'", collbench.ExecutorDirect, collbench.ExecutorCluster, e.Kind)
	verr.AddWhen(e.Nodes < 0, "global_config.executor.nodes", "must not be negative, got %d", e.Nodes)
	if _, err := shlex.Split(e.LauncherArgs); err != nil {
		verr.Add("global_config.executor.launcher_args", "cannot be split into arguments: %s", err.Error())
	}
	if _, err := shlex.Split(e.SubmitCommand); err != nil {
		verr.Add("global_config.executor.submit_command", "cannot be split into arguments: %s", err.Error())
	}
	if d, err := e.WallTimeLimit(); err != nil {
		verr.Add("global_config.executor.wall_time", "must be a duration such as '30m': %s", err.Error())
	} else {
		verr.AddWhen(d < 0, "global_config.executor.wall_time", "must not be negative")
	}
	for i, mod := range e.Modules {
		verr.AddWhen(mod == "", fmt.Sprintf("global_config.executor.modules[%d]", i), "must be a non-empty string")
	}

	verr.AddWhen(g.Output.OnCollision != "" && !g.Output.OnCollision.Validate(), "global_config.output.on_collision",
		"must be one of '%s', '%s' or '%s', got '%s'", collbench.CollisionSuffix, collbench.CollisionFail,
		collbench.CollisionOverwrite, g.Output.OnCollision)
}

func (t *TestCase) validate(verr *collbench.ConfigError, path string, g *GlobalConfig) {
	verr.AddWhen(t.Name == "", path+".test_name", "must be a non-empty string")
	verr.AddWhen(t.Type == "", path+".test_type", "must be a non-empty string")
	verr.AddWhen(t.Collective == "", path+".collective", "must be a non-empty string")
	if t.Timeout != nil {
		verr.AddWhen(*t.Timeout <= 0, path+".timeout", "must be > 0, got %d", *t.Timeout)
	}
	if t.Trials != nil {
		verr.AddWhen(*t.Trials < 1, path+".trials", "must be >= 1, got %d", *t.Trials)
	}

	if t.Pattern != nil {
		verr.AddWhen(!utility.StringSliceContains(collbench.CommunicationModes, t.Pattern.Mode),
			path+".communication_pattern.mode", "must be one of %v, got '%s'",
			collbench.CommunicationModes, t.Pattern.Mode)
		verr.AddWhen(!utility.StringSliceContains(collbench.CollectiveOperations, t.Pattern.CollectiveOperation),
			path+".communication_pattern.collective_operation", "must be one of %v, got '%s'",
			collbench.CollectiveOperations, t.Pattern.CollectiveOperation)
	}

	hasGlobalNProc := g != nil && g.NProc != nil
	data := &t.MessagesData
	if data.IsLiteral() {
		verr.AddWhen(data.Path == "", path+".messages_data", "must be a non-empty path or a generation request")
		verr.AddWhen(!hasGlobalNProc, path+".messages_data",
			"a literal data file needs global_config.nproc to size the launch")
		return
	}

	verr.AddWhen(data.Generator.Name == "", path+".messages_data.generator", "must be a non-empty string")
	n, ok, err := data.Generator.NProc()
	switch {
	case err != nil:
		verr.Add(path+".messages_data.params.nproc", "must be an integer: %s", err.Error())
	case ok:
		verr.AddWhen(n < collbench.MinProcesses, path+".messages_data.params.nproc",
			"must be >= %d, got %d", collbench.MinProcesses, n)
	case !hasGlobalNProc:
		verr.Add(path+".messages_data.params.nproc", "is required when global_config.nproc is not set")
	}
}
