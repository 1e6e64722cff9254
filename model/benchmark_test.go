package model

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/evergreen-ci/collbench"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v2"
)

const validSpec = `
benchmark_name: "  scatterv-sweep "
test_suite:
  - test_name: scatterv-normal
    test_type: latency
    collective: ./bin/scatterv
    communication_pattern:
      mode: blocking
      collective_operation: scatterv
    messages_data:
      generator: normal
      params:
        nproc: 8
        seed: 7
    timeout: 30
    trials: 3
  - test_name: bcast-file
    test_type: latency
    collective: ./bin/bcast
    messages_data: data/4-equal.csv
global_config:
  max_runtime: 600
  nproc: 4
  output:
    directory: /tmp/results
    verbose: true
`

func violationFields(t *testing.T, err error) []string {
	var cerr *collbench.ConfigError
	require.True(t, errors.As(err, &cerr), "expected a ConfigError, got %v", err)
	fields := make([]string, 0, len(cerr.Violations))
	for _, v := range cerr.Violations {
		fields = append(fields, v.Field)
	}
	return fields
}

func TestParseSpec(t *testing.T) {
	spec, err := ParseSpec([]byte(validSpec))
	require.NoError(t, err)

	assert.Equal(t, "scatterv-sweep", spec.Name)
	require.Len(t, spec.Tests, 2)

	generated := spec.Tests[0]
	assert.False(t, generated.MessagesData.IsLiteral())
	require.NotNil(t, generated.MessagesData.Generator)
	assert.Equal(t, "normal", generated.MessagesData.Generator.Name)
	n, ok, err := generated.MessagesData.Generator.NProc()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 8, n)
	assert.Equal(t, 30, generated.TimeoutSeconds())
	assert.Equal(t, 3, generated.TrialCount())
	require.NotNil(t, generated.Pattern)
	assert.Equal(t, "scatterv", generated.Pattern.CollectiveOperation)

	literal := spec.Tests[1]
	assert.True(t, literal.MessagesData.IsLiteral())
	assert.Equal(t, "data/4-equal.csv", literal.MessagesData.Path)
	assert.Equal(t, collbench.DefaultTimeoutSeconds, literal.TimeoutSeconds())
	assert.Equal(t, 1, literal.TrialCount())

	g := spec.Global
	assert.Equal(t, 600*time.Second, g.Budget())
	nproc, ok := g.DefaultNProc()
	assert.True(t, ok)
	assert.Equal(t, 4, nproc)
	assert.Equal(t, collbench.FailureNextTest, g.OnFailure)
	assert.Equal(t, collbench.DeadlinePerTest, g.DeadlineCheck)
	assert.Equal(t, collbench.ExecutorDirect, g.Executor.Kind)
	assert.Equal(t, collbench.DefaultLauncher, g.Executor.Launcher)
	assert.Equal(t, collbench.DefaultNodes, g.Executor.Nodes)
	assert.Equal(t, "/tmp/results", g.Output.Directory)
	assert.Equal(t, "scatterv-sweep", g.Output.Name)
	assert.Equal(t, collbench.CollisionSuffix, g.Output.OnCollision)
	assert.True(t, g.Output.Verbose)
	assert.False(t, g.Output.Ephemeral)

	found, ok := spec.FindTest("bcast-file")
	require.True(t, ok)
	assert.Equal(t, "./bin/bcast", found.Collective)
	_, ok = spec.FindTest("missing")
	assert.False(t, ok)
}

func TestParseSpecJSON(t *testing.T) {
	doc := `{
  "benchmark_name": "json-bench",
  "test_suite": [
    {
      "test_name": "a2a",
      "test_type": "bandwidth",
      "collective": "./alltoallw",
      "messages_data": {"generator": "equal", "params": {"val": 10, "m2m": true}}
    }
  ],
  "global_config": {"max_runtime": 0, "processes": 4, "output": {"directory": "out"}}
}`
	spec, err := ParseSpec([]byte(doc))
	require.NoError(t, err)
	assert.Equal(t, "json-bench", spec.Name)
	nproc, ok := spec.Global.DefaultNProc()
	assert.True(t, ok, "the legacy 'processes' key populates nproc")
	assert.Equal(t, 4, nproc)
	assert.Equal(t, time.Duration(0), spec.Global.Budget())
	assert.Equal(t, true, spec.Tests[0].MessagesData.Generator.Params["m2m"])
}

func TestParseSpecViolations(t *testing.T) {
	for name, test := range map[string]struct {
		doc    string
		fields []string
	}{
		"MissingGlobalConfig": {
			doc: `
benchmark_name: x
test_suite:
  - {test_name: a, test_type: latency, collective: ./w, messages_data: f.csv}
`,
			fields: []string{"global_config", "test_suite[0].messages_data"},
		},
		"NegativeRuntimeAndSmallNProc": {
			doc: `
benchmark_name: x
test_suite:
  - {test_name: a, test_type: latency, collective: ./w, messages_data: f.csv}
global_config: {max_runtime: -1, nproc: 1}
`,
			fields: []string{"global_config.max_runtime", "global_config.nproc"},
		},
		"EmptyStrings": {
			doc: `
benchmark_name: "   "
test_suite:
  - {test_name: "", test_type: " ", collective: "", messages_data: ""}
global_config: {max_runtime: 10, nproc: 2}
`,
			fields: []string{
				"benchmark_name",
				"test_suite[0].test_name",
				"test_suite[0].test_type",
				"test_suite[0].collective",
				"test_suite[0].messages_data",
			},
		},
		"BadTimeoutAndTrials": {
			doc: `
benchmark_name: x
test_suite:
  - {test_name: a, test_type: latency, collective: ./w, messages_data: f.csv, timeout: 0, trials: 0}
global_config: {max_runtime: 10, nproc: 2}
`,
			fields: []string{"test_suite[0].timeout", "test_suite[0].trials"},
		},
		"BadPolicies": {
			doc: `
benchmark_name: x
test_suite:
  - {test_name: a, test_type: latency, collective: ./w, messages_data: f.csv}
global_config:
  max_runtime: 10
  nproc: 2
  on_failure: retry
  deadline_check: step
  executor: {kind: k8s, wall_time: soon}
  output: {on_collision: prompt}
`,
			fields: []string{
				"global_config.on_failure",
				"global_config.deadline_check",
				"global_config.executor.kind",
				"global_config.executor.wall_time",
				"global_config.output.on_collision",
			},
		},
		"GeneratorWithoutAnyNProc": {
			doc: `
benchmark_name: x
test_suite:
  - test_name: a
    test_type: latency
    collective: ./w
    messages_data: {generator: equal, params: {val: 3}}
global_config: {max_runtime: 10}
`,
			fields: []string{"test_suite[0].messages_data.params.nproc"},
		},
		"GeneratorNProcTooSmall": {
			doc: `
benchmark_name: x
test_suite:
  - test_name: a
    test_type: latency
    collective: ./w
    messages_data: {generator: equal, params: {val: 3, nproc: 1}}
global_config: {max_runtime: 10, nproc: 4}
`,
			fields: []string{"test_suite[0].messages_data.params.nproc"},
		},
		"BadCommunicationPattern": {
			doc: `
benchmark_name: x
test_suite:
  - test_name: a
    test_type: latency
    collective: ./w
    communication_pattern: {mode: eager, collective_operation: reduce}
    messages_data: f.csv
global_config: {max_runtime: 10, nproc: 4}
`,
			fields: []string{
				"test_suite[0].communication_pattern.mode",
				"test_suite[0].communication_pattern.collective_operation",
			},
		},
		"RuntimeBeyondDuration": {
			doc: `
benchmark_name: x
test_suite:
  - {test_name: a, test_type: latency, collective: ./w, messages_data: f.csv}
global_config: {max_runtime: 10000000000, nproc: 2}
`,
			fields: []string{"global_config.max_runtime"},
		},
		"NegativeNodes": {
			doc: `
benchmark_name: x
test_suite:
  - {test_name: a, test_type: latency, collective: ./w, messages_data: f.csv}
global_config: {max_runtime: 10, nproc: 2, executor: {kind: cluster, nodes: -1}}
`,
			fields: []string{"global_config.executor.nodes"},
		},
		"FractionalGeneratorNProc": {
			doc: `
benchmark_name: x
test_suite:
  - test_name: a
    test_type: latency
    collective: ./w
    messages_data: {generator: equal, params: {val: 3, nproc: 2.7}}
global_config: {max_runtime: 10, nproc: 4}
`,
			fields: []string{"test_suite[0].messages_data.params.nproc"},
		},
		"EmptySuite": {
			doc: `
benchmark_name: x
test_suite: []
global_config: {max_runtime: 10, nproc: 4}
`,
			fields: []string{"test_suite"},
		},
	} {
		t.Run(name, func(t *testing.T) {
			spec, err := ParseSpec([]byte(test.doc))
			require.Error(t, err)
			assert.Nil(t, spec)
			assert.ElementsMatch(t, test.fields, violationFields(t, err))
		})
	}
}

func TestParseSpecRejectsMalformedDocuments(t *testing.T) {
	for name, doc := range map[string]string{
		"UnknownField":     "benchmark_name: x\nbogus: 1\n",
		"NotAMapping":      "- 1\n- 2\n",
		"BadMessagesData":  "benchmark_name: x\ntest_suite:\n  - messages_data: [1, 2]\n",
		"FractionalNProc":  "benchmark_name: x\nglobal_config: {max_runtime: 10, nproc: 2.7}\n",
		"FractionalBudget": "benchmark_name: x\nglobal_config: {max_runtime: 0.5}\n",
		"FractionalTrials": "benchmark_name: x\ntest_suite:\n  - {test_name: a, trials: 1.5}\n",
		"FractionalNodes":  "benchmark_name: x\nglobal_config: {executor: {nodes: 0.5}}\n",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSpec([]byte(doc))
			assert.Equal(t, []string{"document"}, violationFields(t, err))
		})
	}
}

func TestLargestBudget(t *testing.T) {
	doc := fmt.Sprintf(`
benchmark_name: x
test_suite:
  - {test_name: a, test_type: latency, collective: ./w, messages_data: f.csv}
global_config: {max_runtime: %d, nproc: 2, executor: {nodes: 0}}
`, collbench.MaxRuntimeSeconds)
	spec, err := ParseSpec([]byte(doc))
	require.NoError(t, err)
	assert.True(t, spec.Global.Budget() > 0)
	assert.Equal(t, time.Duration(collbench.MaxRuntimeSeconds)*time.Second, spec.Global.Budget())

	spec, err = ParseSpec([]byte(strings.Replace(doc, fmt.Sprint(collbench.MaxRuntimeSeconds), "4.0", 1)))
	require.NoError(t, err)
	assert.Equal(t, 4*time.Second, spec.Global.Budget())
}

func TestNegativeNodesMessage(t *testing.T) {
	_, err := ParseSpec([]byte(`
benchmark_name: x
test_suite:
  - {test_name: a, test_type: latency, collective: ./w, messages_data: f.csv}
global_config: {max_runtime: 10, nproc: 2, executor: {nodes: -2}}
`))
	var cerr *collbench.ConfigError
	require.True(t, errors.As(err, &cerr))
	require.Len(t, cerr.Violations, 1)
	assert.Equal(t, "must not be negative, got -2", cerr.Violations[0].Constraint)
}

func TestResultCollisions(t *testing.T) {
	tests := func(entries ...string) *BenchmarkSpec {
		spec := &BenchmarkSpec{}
		for _, e := range entries {
			name, trials, _ := strings.Cut(e, ":")
			tc := TestCase{Name: name}
			if trials != "" {
				n, err := strconv.Atoi(trials)
				require.NoError(t, err)
				tc.Trials = &n
			}
			spec.Tests = append(spec.Tests, tc)
		}
		return spec
	}

	assert.Empty(t, tests("a", "b", "c:3").ResultCollisions())
	assert.Empty(t, tests("a:2", "a-2").ResultCollisions())

	assert.Equal(t, []ResultCollision{{File: "a_b.csv", First: 0, Second: 1}}, tests("a/b", "a_b").ResultCollisions())
	assert.Equal(t, []ResultCollision{{File: "x.csv", First: 0, Second: 2}}, tests("x", "y", "x").ResultCollisions())
	assert.Equal(t, []ResultCollision{{File: "x-1.csv", First: 0, Second: 1}}, tests("x:2", "x-1").ResultCollisions())
	assert.Equal(t, []ResultCollision{{File: "p_q-0.csv", First: 0, Second: 1}}, tests("p/q:2", "p\\q:3").ResultCollisions())

	spec, err := ParseSpec([]byte(`
benchmark_name: x
test_suite:
  - {test_name: a/b, test_type: latency, collective: ./w, messages_data: f.csv}
  - {test_name: a_b, test_type: latency, collective: ./w, messages_data: f.csv}
global_config: {max_runtime: 10, nproc: 2}
`))
	require.NoError(t, err, "a collision is a warning, not a violation")
	assert.Len(t, spec.ResultCollisions(), 1)
}

func TestLoadSpec(t *testing.T) {
	dir := t.TempDir()

	_, err := LoadSpec(filepath.Join(dir, "nope.yml"))
	assert.Equal(t, []string{"document"}, violationFields(t, err))

	fn := filepath.Join(dir, "bench.yml")
	require.NoError(t, os.WriteFile(fn, []byte(validSpec), 0644))
	spec, err := LoadSpec(fn)
	require.NoError(t, err)
	assert.Len(t, spec.Tests, 2)
}

func TestMessagesDataMarshalRoundTrip(t *testing.T) {
	spec, err := ParseSpec([]byte(validSpec))
	require.NoError(t, err)

	out, err := yaml.Marshal(spec)
	require.NoError(t, err)

	again, err := ParseSpec(out)
	require.NoError(t, err)
	assert.Equal(t, spec.Tests[1].MessagesData.Path, again.Tests[1].MessagesData.Path)
	require.NotNil(t, again.Tests[0].MessagesData.Generator)
	assert.Equal(t, "normal", again.Tests[0].MessagesData.Generator.Name)
}
