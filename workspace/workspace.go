// Package workspace manages the per-run output directory that holds
// generated data, rendered launch scripts and result files.
package workspace

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/evergreen-ci/collbench"
	"github.com/mitchellh/go-homedir"
	"github.com/mongodb/grip"
	"github.com/mongodb/grip/message"
	"github.com/pkg/errors"
)

// maxSuffix bounds the search for a free directory name.
const maxSuffix = 10000

// Workspace is a directory created for exactly one run. Its path does not
// change after Create returns.
type Workspace struct {
	path string
}

// Create makes the run directory preferredName under root, resolving an
// existing directory of that name according to policy.
func Create(root, preferredName string, policy collbench.CollisionPolicy) (*Workspace, error) {
	expanded, err := homedir.Expand(root)
	if err != nil {
		return nil, &collbench.ResourceError{Resource: root, Err: errors.Wrap(err, "expanding home directory")}
	}
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return nil, &collbench.ResourceError{Resource: root, Err: errors.Wrap(err, "getting absolute path")}
	}
	if err = os.MkdirAll(abs, 0755); err != nil {
		return nil, &collbench.ResourceError{Resource: abs, Err: errors.Wrap(err, "creating output root")}
	}

	base := filepath.Join(abs, SanitizeName(preferredName))

	var path string
	switch policy {
	case collbench.CollisionFail:
		path, err = base, os.Mkdir(base, 0755)
		if os.IsExist(err) {
			err = errors.New("directory already exists")
		}
	case collbench.CollisionOverwrite:
		if err = removeAll(base); err == nil {
			path, err = base, os.Mkdir(base, 0755)
		}
	default:
		path, err = mkdirWithSuffix(base)
	}
	if err != nil {
		return nil, &collbench.ResourceError{Resource: base, Err: errors.WithStack(err)}
	}

	grip.Info(message.Fields{
		"message":   "created workspace",
		"workspace": path,
		"policy":    policy,
	})

	return &Workspace{path: path}, nil
}

// mkdirWithSuffix relies on os.Mkdir failing for existing directories, so
// two concurrent runs never share a workspace.
func mkdirWithSuffix(base string) (string, error) {
	for i := 0; i < maxSuffix; i++ {
		candidate := base
		if i > 0 {
			candidate = fmt.Sprintf("%s-%d", base, i)
		}
		err := os.Mkdir(candidate, 0755)
		if err == nil {
			return candidate, nil
		}
		if !os.IsExist(err) {
			return "", err
		}
	}
	return "", errors.Errorf("no free directory name after %d attempts", maxSuffix)
}

// removeAll is os.RemoveAll after making every entry writable, since
// read-only files left behind by workers would otherwise block removal.
func removeAll(dir string) error {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return nil
	}
	grip.Warning(errors.Wrapf(filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		mode := os.FileMode(0644)
		if d.IsDir() {
			mode = 0755
		}
		grip.Debug(errors.Wrapf(os.Chmod(path, mode), "changing permission before removal for path '%s'", path))
		return nil
	}), "walking '%s' to change permissions", dir))
	return errors.Wrapf(os.RemoveAll(dir), "removing '%s'", dir)
}

// SanitizeName turns an arbitrary name into a single path element.
func SanitizeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "benchmark"
	}
	return name
}

// Path is the absolute path of the workspace directory.
func (w *Workspace) Path() string { return w.path }

func artifactName(test string, trial, trials int, ext string) string {
	name := SanitizeName(test)
	if trials > 1 {
		name = fmt.Sprintf("%s-%d", name, trial)
	}
	return name + ext
}

// ResultName is the file a worker writes the results of one trial to:
// <test>.csv for single-trial tests and <test>-<trial>.csv otherwise.
func ResultName(test string, trial, trials int) string {
	return artifactName(test, trial, trials, collbench.ResultFileExtension)
}

// ScriptName is the launch script file of one trial.
func ScriptName(test string, trial, trials int) string {
	return artifactName(test, trial, trials, collbench.ScriptFileExtension)
}

func (w *Workspace) ResultPath(test string, trial, trials int) string {
	return filepath.Join(w.path, ResultName(test, trial, trials))
}

func (w *Workspace) ScriptPath(test string, trial, trials int) string {
	return filepath.Join(w.path, ScriptName(test, trial, trials))
}

// WriteScript writes an executable script at path, which must be inside
// the workspace.
func (w *Workspace) WriteScript(path, content string) error {
	if err := w.contains(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, []byte(content), 0755); err != nil {
		return &collbench.ResourceError{Resource: path, Err: errors.Wrap(err, "writing script")}
	}
	// WriteFile keeps the mode of a file that already exists.
	if err := os.Chmod(path, 0755); err != nil {
		return &collbench.ResourceError{Resource: path, Err: errors.Wrap(err, "making script executable")}
	}
	return nil
}

// Remove deletes files inside the workspace. Missing files are ignored and
// the workspace directory itself is never removed.
func (w *Workspace) Remove(paths ...string) error {
	catcher := grip.NewBasicCatcher()
	for _, path := range paths {
		if err := w.contains(path); err != nil {
			catcher.Add(err)
			continue
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			catcher.Add(&collbench.ResourceError{Resource: path, Err: errors.Wrap(err, "removing file")})
			continue
		}
		grip.Debug(message.Fields{
			"message":   "removed ephemeral file",
			"path":      path,
			"workspace": w.path,
		})
	}
	return catcher.Resolve()
}

func (w *Workspace) contains(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return &collbench.ResourceError{Resource: path, Err: errors.WithStack(err)}
	}
	rel, err := filepath.Rel(w.path, abs)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return &collbench.ResourceError{Resource: path, Err: errors.Errorf("not inside workspace '%s'", w.path)}
	}
	return nil
}
