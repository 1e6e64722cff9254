package operations

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/evergreen-ci/collbench/distribution"
	"github.com/evergreen-ci/collbench/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"
)

func newTestApp(out *bytes.Buffer) *cli.App {
	app := cli.NewApp()
	app.Name = "collbench"
	app.Writer = out
	app.ErrWriter = out
	app.Commands = []cli.Command{Run(), Validate(), Generate(), Render()}
	return app
}

func writeSpec(t *testing.T, dir, workerExit string) (string, string) {
	testutil.SkipOnWindows(t)
	launcher := testutil.FakeLauncher(t, dir)
	worker := testutil.FakeWorker(t, dir, "worker", 0)
	if workerExit != "" {
		worker = testutil.WriteExecutable(t, dir, "worker", "exit "+workerExit+"\n")
	}

	path := filepath.Join(dir, "bench.yaml")
	doc := fmt.Sprintf(`benchmark_name: cli
test_suite:
  - test_name: flat
    test_type: latency
    collective: %q
    messages_data: {generator: equal, params: {val: 8}}
global_config:
  max_runtime: 60
  nproc: 2
  on_failure: abort
  executor: {launcher: %q}
`, worker, launcher)
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))
	return path, launcher
}

func TestGenerateCommand(t *testing.T) {
	dir := t.TempDir()
	out := &bytes.Buffer{}

	err := newTestApp(out).Run([]string{"collbench", "generate",
		"--nproc", "3", "--dist", "equal", "--m2m", "--dir", dir, "--param", "val=7"})
	require.NoError(t, err)

	path := filepath.Join(dir, "3-m2m-equal.csv")
	rows, err := distribution.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, [][]int64{{7, 7, 7}, {7, 7, 7}, {7, 7, 7}}, rows)
	assert.Contains(t, out.String(), path)
}

func TestGenerateCommandErrors(t *testing.T) {
	dir := t.TempDir()
	for name, args := range map[string][]string{
		"MissingNProc":     {"--dist", "equal", "--param", "val=1"},
		"MissingDist":      {"--nproc", "4"},
		"UnknownDist":      {"--nproc", "4", "--dist", "pareto"},
		"MalformedParam":   {"--nproc", "4", "--dist", "equal", "--param", "val"},
		"MissingParameter": {"--nproc", "4", "--dist", "equal"},
	} {
		t.Run(name, func(t *testing.T) {
			args = append([]string{"collbench", "generate", "--dir", dir}, args...)
			assert.Error(t, newTestApp(&bytes.Buffer{}).Run(args))
		})
	}
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"avg=10", " rho = 4", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"avg": "10", "rho": "4", "empty": ""}, params)

	_, err = parseParams([]string{"=3"})
	assert.Error(t, err)
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	spec, _ := writeSpec(t, dir, "")
	out := &bytes.Buffer{}

	require.NoError(t, newTestApp(out).Run([]string{"collbench", "validate", "--spec", spec}))
	assert.Contains(t, out.String(), "on_failure: abort")
	assert.Contains(t, out.String(), "trials: 1")
	assert.Contains(t, out.String(), "benchmark 'cli' is valid: 1 tests")

	assert.Error(t, newTestApp(out).Run([]string{"collbench", "validate"}))
	assert.Error(t, newTestApp(out).Run([]string{"collbench", "validate", "--spec", filepath.Join(dir, "nope.yaml")}))
}

func TestRunCommand(t *testing.T) {
	dir := t.TempDir()
	spec, _ := writeSpec(t, dir, "")
	results := filepath.Join(dir, "results")
	out := &bytes.Buffer{}

	require.NoError(t, newTestApp(out).Run([]string{"collbench", "run", "--spec", spec, "--output-dir", results}))
	assert.FileExists(t, filepath.Join(results, "cli", "flat.csv"))
	assert.FileExists(t, filepath.Join(results, "cli", "2-equal.csv"))
	assert.Contains(t, out.String(), "completed: 1 dispatched, 0 failed")
	assert.Contains(t, out.String(), filepath.Join(results, "cli"))
}

func TestRunCommandFailsOnAbort(t *testing.T) {
	dir := t.TempDir()
	spec, _ := writeSpec(t, dir, "5")
	out := &bytes.Buffer{}

	err := newTestApp(out).Run([]string{"collbench", "run", "--spec", spec, "--output-dir", filepath.Join(dir, "results"), "--ephemeral"})
	require.Error(t, err)
	assert.Contains(t, out.String(), "failed (exit 5)")
	assert.Contains(t, out.String(), "aborted (test_failure)")
	assert.NoFileExists(t, filepath.Join(dir, "results", "cli", "2-equal.csv"))
}

func TestRenderCommand(t *testing.T) {
	dir := t.TempDir()
	spec, launcher := writeSpec(t, dir, "")
	out := &bytes.Buffer{}

	require.NoError(t, newTestApp(out).Run([]string{"collbench", "render", "--spec", spec, "--test", "flat", "--output-dir", filepath.Join(dir, "results")}))
	assert.Contains(t, out.String(), "exec "+launcher+" -np 2 ")
	assert.NoDirExists(t, filepath.Join(dir, "results"))

	assert.Error(t, newTestApp(out).Run([]string{"collbench", "render", "--spec", spec, "--test", "other"}))
	assert.Error(t, newTestApp(out).Run([]string{"collbench", "render", "--spec", spec}))
}
