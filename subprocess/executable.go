package subprocess

import (
	"os"
	"os/exec"
	"path/filepath"

	"github.com/evergreen-ci/collbench"
	"github.com/evergreen-ci/utility"
	"github.com/pkg/errors"
)

// CheckExecutable verifies that path names an existing regular file that
// somebody may execute.
func CheckExecutable(path string) error {
	if !utility.FileExists(path) {
		return &collbench.ResourceError{Resource: path, Err: errors.New("file does not exist")}
	}
	info, err := os.Stat(path)
	if err != nil {
		return &collbench.ResourceError{Resource: path, Err: errors.WithStack(err)}
	}
	if info.IsDir() {
		return &collbench.ResourceError{Resource: path, Err: errors.New("is a directory")}
	}
	if info.Mode().Perm()&0111 == 0 {
		return &collbench.ResourceError{Resource: path, Err: errors.Errorf("is not executable (mode %s)", info.Mode().Perm())}
	}
	return nil
}

// LookPath resolves a binary the way the shell would: names containing a
// separator are checked directly, anything else is searched on PATH.
func LookPath(name string) (string, error) {
	if name == "" {
		return "", &collbench.ResourceError{Resource: name, Err: errors.New("empty binary name")}
	}
	if filepath.Base(name) != name {
		if err := CheckExecutable(name); err != nil {
			return "", err
		}
		return name, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", &collbench.ResourceError{Resource: name, Err: errors.Wrap(err, "binary not found on PATH")}
	}
	return path, nil
}
