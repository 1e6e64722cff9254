// Package testutil provides stand-ins for the external programs a benchmark
// run drives, so runs can be exercised without an MPI installation.
package testutil

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/require"
)

// CallsLog is the file, relative to the workspace, that fake workers and
// hooks append to.
const CallsLog = "calls.log"

// SkipOnWindows skips tests that run shell scripts.
func SkipOnWindows(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell script fixtures don't make sense on windows")
	}
}

// WriteExecutable writes a /bin/sh script with the given body into dir.
func WriteExecutable(t *testing.T, dir, name, body string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0755))
	require.NoError(t, os.Chmod(path, 0755))
	return path
}

// FakeLauncher writes an mpirun stand-in that requires "-np <n>" and then
// runs the remaining arguments once.
func FakeLauncher(t *testing.T, dir string) string {
	return WriteExecutable(t, dir, "fake-mpirun", `[ "$1" = "-np" ] || { echo "missing -np" >&2; exit 64; }
shift 2
exec "$@"
`)
}

// FakeSubmitter writes an "sbatch --wait" stand-in that runs the script it
// is given with bash.
func FakeSubmitter(t *testing.T, dir string) string {
	return WriteExecutable(t, dir, "fake-sbatch", `[ "$1" = "--wait" ] && shift
printf 'submit %s\n' "$1" >> "$COLLBENCH_WORKSPACE/`+CallsLog+`"
exec sh "$1"
`)
}

// FakeWorker writes a worker that honors the worker argument contract,
// records its call in the workspace calls log, writes a result file and
// exits with exitCode. Failing workers write no result file.
func FakeWorker(t *testing.T, dir, name string, exitCode int) string {
	return WriteExecutable(t, dir, name, fmt.Sprintf(`messages=""; output=""; timeout=""; verbose=0
while [ $# -gt 0 ]; do
  case "$1" in
    --fmessages) messages="$2"; shift 2 ;;
    --foutput) output="$2"; shift 2 ;;
    --timeout) timeout="$2"; shift 2 ;;
    --verbose) verbose=1; shift ;;
    *) echo "unexpected argument $1" >&2; exit 65 ;;
  esac
done
printf '%%s %%s %%s %%s\n' "$(basename "$0")" "$(basename "$output")" "$timeout" "$verbose" >> "$COLLBENCH_WORKSPACE/%s"
[ -r "$messages" ] || { echo "cannot read $messages" >&2; exit 66; }
[ %d -eq 0 ] || { echo "worker failing on purpose" >&2; exit %d; }
echo "Rank,Iteration,Starttime,Endtime" > "$output"
echo "0,0,0,$timeout" >> "$output"
`, CallsLog, exitCode, exitCode))
}

// FakeHook writes a post-run collaborator that records its name, its last
// argument and the exported workspace, plus the workspace listing.
func FakeHook(t *testing.T, dir, name string, exitCode int) string {
	return WriteExecutable(t, dir, name, fmt.Sprintf(`for last; do :; done
printf 'hook %%s %%s %%s\n' "$(basename "$0")" "$last" "$COLLBENCH_WORKSPACE" >> "$COLLBENCH_WORKSPACE/%s"
ls "$last" > "$last/$(basename "$0").listing"
exit %d
`, CallsLog, exitCode))
}
