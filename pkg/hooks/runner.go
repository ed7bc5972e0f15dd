package hooks

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/glorpus-work/fluffpkg/internal/logger"
	pkgerrors "github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/fsutil"
)

// Runner looks hook scripts up in a directory and executes them.
//
// For a hook type T it runs <Dir>/T.tengo and then, when the variables carry
// a packageName P, <Dir>/P/T.tengo. Missing scripts are skipped.
type Runner struct {
	Dir      string
	executor *TengoExecutor
}

// NewRunner returns a Runner reading scripts from dir.
func NewRunner(dir string) *Runner {
	return &Runner{Dir: dir, executor: NewTengoExecutor()}
}

// RunHook runs the scripts registered for hook.
func (r *Runner) RunHook(hook string, vars map[string]interface{}) error {
	t := HookType(hook)
	if !t.Valid() {
		return fmt.Errorf("unsupported hook event %q: %w", hook, pkgerrors.ErrHookExecution)
	}
	if r.Dir == "" {
		return nil
	}

	for _, path := range r.scriptPaths(t, vars) {
		script, err := os.ReadFile(path)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%s: %w: %w", path, pkgerrors.ErrHookLoad, err)
		}
		logger.Debug("Running hook", logger.Fields{"hook": hook, "script": path})
		if err := r.executor.Execute(path, script, vars); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) scriptPaths(t HookType, vars map[string]interface{}) []string {
	paths := []string{filepath.Join(r.Dir, string(t)+ScriptExtension)}
	if pkg, ok := vars["packageName"].(string); ok && pkg != "" && filepath.Base(pkg) == pkg {
		paths = append(paths, filepath.Join(r.Dir, pkg, string(t)+ScriptExtension))
	}
	return paths
}

// WriteExamples writes a commented example script for every hook type into
// dir as <type>.tengo.example. Existing files are left alone.
func WriteExamples(dir string) error {
	if err := fsutil.EnsureDir(dir); err != nil {
		return err
	}
	for _, t := range AllTypes {
		path := filepath.Join(dir, string(t)+ScriptExtension+".example")
		if _, err := os.Stat(path); err == nil {
			continue
		}
		if err := fsutil.WriteFileAtomic(path, []byte(Template(t)), fsutil.FileModeDefault); err != nil {
			return err
		}
	}
	return nil
}

// Template returns an example script for a hook type.
func Template(t HookType) string {
	const vars = `// Available variables:
// - packageName: string
// - packageVersion: string (empty before the module picked a version)
// - module: string
// - executablePath: string (empty before installation)
// - upgrade: bool, true while the package is being upgraded
`
	switch t {
	case PreInstall:
		return `// pre-install: runs before a module installs a package.
// Set err to abort the installation.
` + vars + `
/*
if packageName == "discord" && !upgrade {
    err = "refusing to install " + packageName
}
*/
`
	case PostInstall:
		return `// post-install: runs after a package was installed and recorded.
` + vars + `
/*
fmt := import("fmt")
fmt.println("installed ", packageName, " ", packageVersion)
*/
`
	case PreRemove:
		return `// pre-remove: runs before launchers are detached and files removed.
` + vars + `
/*
os := import("os")
os.remove_all(os.getenv("HOME") + "/.cache/" + packageName)
*/
`
	case PostRemove:
		return `// post-remove: runs after a package was removed.
` + vars
	default:
		return "// unknown hook type: " + string(t) + "\n"
	}
}
