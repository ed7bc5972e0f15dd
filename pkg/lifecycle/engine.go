// Package lifecycle drives packages through install, upgrade and remove by
// combining the record store with the registered backend modules.
package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/glorpus-work/fluffpkg/pkg/backend"
	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/model"
	"github.com/glorpus-work/fluffpkg/pkg/store"
)

// Engine ties the registry, the record store and desktop integration
// together.
type Engine struct {
	Registry *backend.Registry
	Store    store.Store
	Desktop  Desktop    // optional
	Scripts  HookRunner // optional
	Hooks    Hooks
}

var _ backend.Installer = (*Engine)(nil)

// New constructs an Engine. Desktop and scripts may be nil.
func New(registry *backend.Registry, st store.Store, desktop Desktop, scripts HookRunner, hooks Hooks) *Engine {
	return &Engine{
		Registry: registry,
		Store:    st,
		Desktop:  desktop,
		Scripts:  scripts,
		Hooks:    hooks,
	}
}

func emit(h Hooks, e Event) {
	if h.OnEvent != nil {
		h.OnEvent(e)
	}
}

// plan describes one backend install.
type plan struct {
	version  string
	locked   bool
	launcher bool
	path     bool
	upgrade  bool
}

// ResolveCandidate resolves a user query to exactly one candidate.
func (e *Engine) ResolveCandidate(ctx context.Context, name string) (*model.Candidate, error) {
	emit(e.Hooks, Event{Phase: PhaseResolving, Package: name})
	res, err := store.Query(ctx, e.Store, name)
	if err != nil {
		return nil, err
	}
	switch res.Kind {
	case model.QueryFound:
		if len(res.Candidates) > 1 {
			return nil, fmt.Errorf("%w for '%s': %s", errors.ErrMultipleCandidates, name,
				strings.Join(res.PackageNames(), ", "))
		}
		return res.Candidates[0], nil
	case model.QueryStrongRecommend:
		return nil, &SuggestionError{Query: name, Suggestions: res.PackageNames()}
	default:
		return nil, errors.ErrNoCandidateWithName(name)
	}
}

// Install installs the candidate matching name. Once the installation is
// recorded, launcher, PATH and post-install script failures are reported as
// PhaseWarning events and the installation is returned without error.
func (e *Engine) Install(ctx context.Context, name string, opts InstallOptions) (*model.Installation, error) {
	c, err := e.ResolveCandidate(ctx, name)
	if err != nil {
		return nil, err
	}

	installed, err := store.IsInstalled(ctx, e.Store, c.PackageName)
	if err != nil {
		return nil, err
	}
	if installed {
		return nil, errors.ErrAlreadyInstalledWithName(c.PackageName)
	}

	b, err := e.Registry.Backend(c.Module)
	if err != nil {
		return nil, err
	}

	return e.install(ctx, b, c, plan{
		version:  opts.Version,
		locked:   opts.Version != "",
		launcher: !opts.NoLauncher,
		path:     opts.Path,
	})
}

func (e *Engine) install(ctx context.Context, b backend.Backend, c *model.Candidate, p plan) (*model.Installation, error) {
	emit(e.Hooks, Event{Phase: PhaseInstalling, Package: c.PackageName, Msg: p.version})

	vars := hookVars(c.PackageName, p.version, c.Module, "", p.upgrade)
	if err := e.runHook(HookPreInstall, vars); err != nil {
		return nil, err
	}

	res, err := b.Install(ctx, c.Clone(), backend.InstallOptions{Version: p.version})
	if err != nil {
		return nil, backendError("install", c.PackageName, err)
	}
	if res == nil {
		return nil, errors.Internalf("module %s returned no install result for %s", c.Module, c.PackageName)
	}

	version := res.Version
	if version == "" {
		version = p.version
	}
	inst := &model.Installation{
		Name:           c.Name,
		Version:        version,
		PackageName:    c.PackageName,
		Module:         c.Module,
		Source:         c.Source,
		ExecutablePath: res.ExecutablePath,
		VersionLocked:  p.locked,
		InstalledAt:    time.Now(),
	}
	if err := e.Store.MarkInstalled(ctx, inst); err != nil {
		return nil, err
	}

	// the package is installed from here on, later failures only warn
	if p.launcher && e.Desktop != nil {
		if err := e.attachLauncher(ctx, inst, c, res.Icon); err != nil {
			e.warn(inst.PackageName, errors.Wrapf(err, "failed to create launcher for %s", c.PackageName))
		}
	}
	if p.path && e.Desktop != nil {
		if err := e.attachPath(ctx, inst); err != nil {
			e.warn(inst.PackageName, errors.Wrapf(err, "failed to link %s into the PATH", c.PackageName))
		}
	}

	vars = hookVars(inst.PackageName, inst.Version, inst.Module, inst.ExecutablePath, p.upgrade)
	if err := e.runHook(HookPostInstall, vars); err != nil {
		e.warn(inst.PackageName, err)
	}

	emit(e.Hooks, Event{Phase: PhaseDone, Package: inst.PackageName, Msg: inst.Version})
	return inst, nil
}

// Remove uninstalls the package matching name.
func (e *Engine) Remove(ctx context.Context, name string) error {
	inst, err := store.FindInstallation(ctx, e.Store, name)
	if err != nil {
		return err
	}
	_, _, err = e.remove(ctx, inst, false)
	return err
}

// attachLauncher creates the launcher and records it. The launcher is taken
// down again when recording fails.
func (e *Engine) attachLauncher(ctx context.Context, inst *model.Installation, c *model.Candidate, icon string) error {
	if err := e.Desktop.AttachLauncher(inst, c, icon); err != nil {
		return err
	}
	if err := e.Store.MarkAttribute(ctx, inst.PackageName, model.AttributeLauncher, true); err != nil {
		_ = e.Desktop.DetachLauncher(inst)
		return err
	}
	inst.Launcher = true
	return nil
}

func (e *Engine) attachPath(ctx context.Context, inst *model.Installation) error {
	if err := e.Desktop.AttachPath(inst); err != nil {
		return err
	}
	if err := e.Store.MarkAttribute(ctx, inst.PackageName, model.AttributePath, true); err != nil {
		_ = e.Desktop.DetachPath(inst)
		return err
	}
	inst.Path = true
	return nil
}

func (e *Engine) warn(pkg string, err error) {
	emit(e.Hooks, Event{Phase: PhaseWarning, Package: pkg, Msg: err.Error()})
}

// remove undoes an installation. It returns the launcher and PATH state the
// installation had so an upgrade can restore them.
func (e *Engine) remove(ctx context.Context, inst *model.Installation, upgrade bool) (launcher, path bool, err error) {
	b, err := e.Registry.Backend(inst.Module)
	if err != nil {
		return false, false, err
	}
	remover, ok := b.(backend.Remover)
	if !ok {
		return false, false, errors.ErrNotSupportedWithDetails(inst.Module, string(backend.CapRemove))
	}

	emit(e.Hooks, Event{Phase: PhaseRemoving, Package: inst.PackageName, Msg: inst.Version})

	vars := hookVars(inst.PackageName, inst.Version, inst.Module, inst.ExecutablePath, upgrade)
	if err := e.runHook(HookPreRemove, vars); err != nil {
		return false, false, err
	}

	if inst.Launcher && e.Desktop != nil {
		if err := e.Desktop.DetachLauncher(inst); err != nil {
			return false, false, errors.Wrapf(err, "failed to remove launcher of %s", inst.PackageName)
		}
	}
	if inst.Path && e.Desktop != nil {
		if err := e.Desktop.DetachPath(inst); err != nil {
			return false, false, errors.Wrapf(err, "failed to unlink %s from the PATH", inst.PackageName)
		}
	}

	if err := remover.Remove(ctx, inst.Clone()); err != nil {
		return false, false, backendError("remove", inst.PackageName, err)
	}
	if err := e.Store.UnmarkInstalled(ctx, inst.PackageName); err != nil {
		return false, false, err
	}

	// the record is gone, an upgrade must go on to the install
	if err := e.runHook(HookPostRemove, vars); err != nil {
		e.warn(inst.PackageName, err)
	}

	emit(e.Hooks, Event{Phase: PhaseDone, Package: inst.PackageName})
	return inst.Launcher, inst.Path, nil
}

// Versions lists the versions the module offers for the candidate matching
// name.
func (e *Engine) Versions(ctx context.Context, name string) ([]string, error) {
	c, err := e.ResolveCandidate(ctx, name)
	if err != nil {
		return nil, err
	}
	b, err := e.Registry.Backend(c.Module)
	if err != nil {
		return nil, err
	}
	v, ok := b.(backend.Versioner)
	if !ok {
		return nil, errors.ErrNotSupportedWithDetails(c.Module, string(backend.CapVersions))
	}
	versions, err := v.Versions(ctx, c.Clone())
	if err != nil {
		return nil, backendError("list versions of", c.PackageName, err)
	}
	return versions, nil
}

// ExecPath returns the executable of the installation matching name. Modules
// without the capability fall back to the recorded path.
func (e *Engine) ExecPath(ctx context.Context, name string, noVersion bool) (string, error) {
	inst, err := store.FindInstallation(ctx, e.Store, name)
	if err != nil {
		return "", err
	}
	b, err := e.Registry.Backend(inst.Module)
	if err != nil {
		return "", err
	}
	if p, ok := b.(backend.ExecPather); ok {
		path, err := p.ExecPath(ctx, inst.Clone(), backend.ExecPathOptions{NoVersion: noVersion})
		if err != nil {
			return "", backendError("resolve executable of", inst.PackageName, err)
		}
		return path, nil
	}
	if inst.ExecutablePath == "" {
		return "", errors.ErrNotSupportedWithDetails(inst.Module, string(backend.CapExecPath))
	}
	return inst.ExecutablePath, nil
}

// SetLauncher creates or removes the launcher of an installation.
func (e *Engine) SetLauncher(ctx context.Context, name string, on bool) error {
	inst, err := store.FindInstallation(ctx, e.Store, name)
	if err != nil {
		return err
	}
	if inst.Launcher == on {
		return nil
	}
	if e.Desktop != nil {
		if on {
			c, err := e.Store.Candidate(ctx, inst.PackageName)
			if err != nil {
				return err
			}
			err = e.Desktop.AttachLauncher(inst, c, "")
			if err != nil {
				return err
			}
		} else if err := e.Desktop.DetachLauncher(inst); err != nil {
			return err
		}
	}
	return e.Store.MarkAttribute(ctx, inst.PackageName, model.AttributeLauncher, on)
}

// SetPath creates or removes the PATH link of an installation.
func (e *Engine) SetPath(ctx context.Context, name string, on bool) error {
	inst, err := store.FindInstallation(ctx, e.Store, name)
	if err != nil {
		return err
	}
	if inst.Path == on {
		return nil
	}
	if e.Desktop != nil {
		var err error
		if on {
			err = e.Desktop.AttachPath(inst)
		} else {
			err = e.Desktop.DetachPath(inst)
		}
		if err != nil {
			return err
		}
	}
	return e.Store.MarkAttribute(ctx, inst.PackageName, model.AttributePath, on)
}

func (e *Engine) runHook(hook string, vars map[string]interface{}) error {
	if e.Scripts == nil {
		return nil
	}
	return e.Scripts.RunHook(hook, vars)
}

func hookVars(pkg, version, module, execPath string, upgrade bool) map[string]interface{} {
	return map[string]interface{}{
		"packageName":    pkg,
		"packageVersion": version,
		"module":         module,
		"executablePath": execPath,
		"upgrade":        upgrade,
	}
}

func backendError(op, pkg string, err error) error {
	return fmt.Errorf("failed to %s %s: %w: %w", op, pkg, errors.ErrBackend, err)
}
