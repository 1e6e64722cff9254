package model

import (
	"math"
	"strings"
	"time"

	"github.com/evergreen-ci/collbench"
	"github.com/evergreen-ci/collbench/util"
	"github.com/evergreen-ci/utility"
	"github.com/pkg/errors"
)

// BenchmarkSpec is the root of a benchmark specification document. It is
// not modified after LoadSpec or ParseSpec return it.
type BenchmarkSpec struct {
	Name   string        `yaml:"benchmark_name"`
	Tests  []TestCase    `yaml:"test_suite"`
	Global *GlobalConfig `yaml:"global_config"`
}

// TestCase describes one benchmark: a worker executable and the message
// data it is run against.
type TestCase struct {
	Name         string                `yaml:"test_name"`
	Type         string                `yaml:"test_type"`
	Collective   string                `yaml:"collective"`
	Pattern      *CommunicationPattern `yaml:"communication_pattern,omitempty"`
	MessagesData MessagesData          `yaml:"messages_data"`
	Timeout      *int                  `yaml:"timeout,omitempty"`
	Trials       *int                  `yaml:"trials,omitempty"`
}

// CommunicationPattern is descriptive metadata about the collective a
// worker exercises.
type CommunicationPattern struct {
	Mode                string `yaml:"mode"`
	CollectiveOperation string `yaml:"collective_operation"`
}

// TimeoutSeconds is the timeout handed to the worker.
func (t *TestCase) TimeoutSeconds() int {
	return utility.FromIntPtr(t.Timeout)
}

// TrialCount is the number of identical dispatches for this test.
func (t *TestCase) TrialCount() int {
	return utility.FromIntPtr(t.Trials)
}

// GlobalConfig holds the settings shared by every test of a run.
type GlobalConfig struct {
	MaxRuntime *int `yaml:"max_runtime"`
	NProc      *int `yaml:"nproc,omitempty"`
	// Processes is the older spelling of NProc.
	Processes     *int                          `yaml:"processes,omitempty"`
	OnFailure     collbench.FailurePolicy       `yaml:"on_failure,omitempty"`
	DeadlineCheck collbench.DeadlineGranularity `yaml:"deadline_check,omitempty"`
	Executor      ExecutorConfig                `yaml:"executor,omitempty"`
	Output        OutputPolicy                  `yaml:"output,omitempty"`
	Post          PostRunConfig                 `yaml:"post,omitempty"`
}

// Budget is the wall-clock budget for the whole run.
func (g *GlobalConfig) Budget() time.Duration {
	return time.Duration(utility.FromIntPtr(g.MaxRuntime)) * time.Second
}

// DefaultNProc returns the global process count, if one is configured.
func (g *GlobalConfig) DefaultNProc() (int, bool) {
	if g.NProc == nil {
		return 0, false
	}
	return *g.NProc, true
}

// ExecutorConfig selects and parameterizes the launcher.
type ExecutorConfig struct {
	Kind          collbench.ExecutorKind `yaml:"kind,omitempty"`
	Launcher      string                 `yaml:"launcher,omitempty"`
	LauncherArgs  string                 `yaml:"launcher_args,omitempty"`
	SubmitCommand string                 `yaml:"submit_command,omitempty"`
	Nodes         int                    `yaml:"nodes,omitempty"`
	Modules       []string               `yaml:"modules,omitempty"`
	WallTime      string                 `yaml:"wall_time,omitempty"`
}

// WallTimeLimit parses WallTime; zero means derive it from the test.
func (e *ExecutorConfig) WallTimeLimit() (time.Duration, error) {
	if e.WallTime == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(e.WallTime)
	return d, errors.Wrapf(err, "parsing wall time '%s'", e.WallTime)
}

// OutputPolicy controls where and how results are written.
type OutputPolicy struct {
	Directory   string                    `yaml:"directory,omitempty"`
	Name        string                    `yaml:"name,omitempty"`
	OnCollision collbench.CollisionPolicy `yaml:"on_collision,omitempty"`
	Verbose     bool                      `yaml:"verbose,omitempty"`
	Ephemeral   bool                      `yaml:"ephemeral,omitempty"`
}

// PostRunConfig names the external collaborators run after the last test.
type PostRunConfig struct {
	Plot    string `yaml:"plot,omitempty"`
	Archive string `yaml:"archive,omitempty"`
}

// MessagesData is either a literal path to a pre-generated data file or an
// inline generation request. Exactly one of the two is set.
type MessagesData struct {
	Path      string
	Generator *GenerationRequest
}

// GenerationRequest asks the distribution generator for a data file.
type GenerationRequest struct {
	Name   string                 `yaml:"generator"`
	Params map[string]interface{} `yaml:"params,omitempty"`
}

// NProc returns the test-local process count, if the request carries one.
func (r *GenerationRequest) NProc() (int, bool, error) {
	raw, ok := r.Params["nproc"]
	if !ok || raw == nil {
		return 0, false, nil
	}
	var n int
	if err := util.WeakDecode(raw, &n, util.DecodeOptions{}); err != nil {
		return 0, true, errors.Wrapf(err, "decoding nproc '%v'", raw)
	}
	return n, true, nil
}

// UnmarshalYAML rejects fractional timeouts and trial counts, which the
// YAML decoder would otherwise truncate.
func (t *TestCase) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain TestCase
	if err := unmarshal((*plain)(t)); err != nil {
		return err
	}
	return requireWholeNumbers(unmarshal, "timeout", "trials")
}

// UnmarshalYAML rejects fractional budgets and process counts.
func (g *GlobalConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain GlobalConfig
	if err := unmarshal((*plain)(g)); err != nil {
		return err
	}
	return requireWholeNumbers(unmarshal, "max_runtime", "nproc", "processes")
}

// UnmarshalYAML rejects a fractional node count.
func (e *ExecutorConfig) UnmarshalYAML(unmarshal func(interface{}) error) error {
	type plain ExecutorConfig
	if err := unmarshal((*plain)(e)); err != nil {
		return err
	}
	return requireWholeNumbers(unmarshal, "nodes")
}

func requireWholeNumbers(unmarshal func(interface{}) error, keys ...string) error {
	raw := map[string]interface{}{}
	if err := unmarshal(&raw); err != nil {
		return err
	}
	for _, key := range keys {
		if f, ok := raw[key].(float64); ok && math.Trunc(f) != f {
			return errors.Errorf("%s: %v is not a whole number", key, f)
		}
	}
	return nil
}

// IsLiteral reports whether the data is a pre-existing file.
func (m *MessagesData) IsLiteral() bool { return m.Generator == nil }

// UnmarshalYAML accepts either a scalar path or a generation mapping.
func (m *MessagesData) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var path string
	if err := unmarshal(&path); err == nil {
		m.Path = path
		m.Generator = nil
		return nil
	}

	req := &GenerationRequest{}
	if err := unmarshal(req); err != nil {
		return errors.Wrap(err, "messages_data must be a file path or a {generator, params} mapping")
	}
	m.Path = ""
	m.Generator = req
	return nil
}

// MarshalYAML mirrors UnmarshalYAML.
func (m MessagesData) MarshalYAML() (interface{}, error) {
	if m.Generator != nil {
		return m.Generator, nil
	}
	return m.Path, nil
}

// LoadSpec reads, defaults and validates the benchmark document at path.
func LoadSpec(path string) (*BenchmarkSpec, error) {
	spec := &BenchmarkSpec{}
	if err := util.ReadFromYAMLFile(path, spec); err != nil {
		return nil, collbench.NewConfigError("document", "%s", errors.Cause(err).Error())
	}
	if err := spec.prepare(); err != nil {
		return nil, err
	}
	return spec, nil
}

// ParseSpec is LoadSpec for an in-memory document.
func ParseSpec(data []byte) (*BenchmarkSpec, error) {
	spec := &BenchmarkSpec{}
	if err := util.UnmarshalYAMLStrict(data, spec); err != nil {
		return nil, collbench.NewConfigError("document", "%s", errors.Cause(err).Error())
	}
	if err := spec.prepare(); err != nil {
		return nil, err
	}
	return spec, nil
}

func (s *BenchmarkSpec) prepare() error {
	s.normalize()
	if err := s.Validate(); err != nil {
		return err
	}
	s.setDefaults()
	return nil
}

// FindTest returns the first test with the given name.
func (s *BenchmarkSpec) FindTest(name string) (*TestCase, bool) {
	for i := range s.Tests {
		if s.Tests[i].Name == name {
			return &s.Tests[i], true
		}
	}
	return nil, false
}

// normalize trims surrounding whitespace from every string field.
func (s *BenchmarkSpec) normalize() {
	s.Name = strings.TrimSpace(s.Name)
	for i := range s.Tests {
		t := &s.Tests[i]
		t.Name = strings.TrimSpace(t.Name)
		t.Type = strings.TrimSpace(t.Type)
		t.Collective = strings.TrimSpace(t.Collective)
		t.MessagesData.Path = strings.TrimSpace(t.MessagesData.Path)
		if t.MessagesData.Generator != nil {
			t.MessagesData.Generator.Name = strings.TrimSpace(t.MessagesData.Generator.Name)
		}
		if t.Pattern != nil {
			t.Pattern.Mode = strings.TrimSpace(t.Pattern.Mode)
			t.Pattern.CollectiveOperation = strings.TrimSpace(t.Pattern.CollectiveOperation)
		}
	}

	g := s.Global
	if g == nil {
		return
	}
	if g.NProc == nil && g.Processes != nil {
		g.NProc = g.Processes
	}
	g.Executor.Launcher = strings.TrimSpace(g.Executor.Launcher)
	g.Executor.SubmitCommand = strings.TrimSpace(g.Executor.SubmitCommand)
	g.Executor.WallTime = strings.TrimSpace(g.Executor.WallTime)
	g.Output.Directory = strings.TrimSpace(g.Output.Directory)
	g.Output.Name = strings.TrimSpace(g.Output.Name)
	g.Post.Plot = strings.TrimSpace(g.Post.Plot)
	g.Post.Archive = strings.TrimSpace(g.Post.Archive)
}

func (s *BenchmarkSpec) setDefaults() {
	for i := range s.Tests {
		t := &s.Tests[i]
		if t.Timeout == nil {
			t.Timeout = utility.ToIntPtr(collbench.DefaultTimeoutSeconds)
		}
		if t.Trials == nil {
			t.Trials = utility.ToIntPtr(collbench.DefaultTrials)
		}
	}

	g := s.Global
	if g.OnFailure == "" {
		g.OnFailure = collbench.FailureNextTest
	}
	if g.DeadlineCheck == "" {
		g.DeadlineCheck = collbench.DeadlinePerTest
	}
	if g.Executor.Kind == "" {
		g.Executor.Kind = collbench.ExecutorDirect
	}
	if g.Executor.Launcher == "" {
		g.Executor.Launcher = collbench.DefaultLauncher
	}
	if g.Executor.SubmitCommand == "" {
		g.Executor.SubmitCommand = collbench.DefaultSubmitCommand
	}
	if g.Executor.Nodes == 0 {
		g.Executor.Nodes = collbench.DefaultNodes
	}
	if g.Output.Directory == "" {
		g.Output.Directory = collbench.DefaultOutputDirectory
	}
	if g.Output.Name == "" {
		g.Output.Name = s.Name
	}
	if g.Output.OnCollision == "" {
		g.Output.OnCollision = collbench.CollisionSuffix
	}
}
