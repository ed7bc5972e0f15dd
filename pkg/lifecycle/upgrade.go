package lifecycle

import (
	"context"
	stderrors "errors"
	"fmt"

	"github.com/glorpus-work/fluffpkg/pkg/backend"
	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/model"
	"github.com/glorpus-work/fluffpkg/pkg/store"
)

// Upgrade replaces the installation matching name with the newest version the
// module offers. Locked installations need force; the upgraded installation is
// never locked. Upgrading removes the old version before installing the new
// one; when the install fails the package stays removed and a
// *PartialUpgradeError is returned.
func (e *Engine) Upgrade(ctx context.Context, name string, force bool) (*model.Installation, error) {
	inst, err := store.FindInstallation(ctx, e.Store, name)
	if err != nil {
		return nil, err
	}
	if inst.VersionLocked && !force {
		return nil, fmt.Errorf("package '%s' (%s): %w", inst.PackageName, inst.Version, errors.ErrSpecificVersion)
	}

	b, err := e.Registry.Backend(inst.Module)
	if err != nil {
		return nil, err
	}
	upgrader, ok := b.(backend.Upgrader)
	if !ok {
		return nil, errors.ErrNotSupportedWithDetails(inst.Module, string(backend.CapUpgrade))
	}
	if _, ok := b.(backend.Remover); !ok {
		return nil, errors.ErrNotSupportedWithDetails(inst.Module, string(backend.CapRemove))
	}

	c, err := e.Store.Candidate(ctx, inst.PackageName)
	if err != nil {
		return nil, err
	}

	emit(e.Hooks, Event{Phase: PhaseUpgrading, Package: inst.PackageName, Msg: inst.Version})
	newest, err := upgrader.Newest(ctx, c.Clone())
	if err != nil {
		return nil, backendError("look up the newest version of", inst.PackageName, err)
	}
	if newest == inst.Version {
		return nil, errors.ErrAlreadyNewestWithName(inst.PackageName, inst.Version)
	}

	launcher, path, err := e.remove(ctx, inst, true)
	if err != nil {
		return nil, err
	}

	upgraded, err := e.install(ctx, b, c, plan{
		version:  newest,
		launcher: launcher,
		path:     path,
		upgrade:  true,
	})
	if err != nil {
		installed, _ := store.IsInstalled(ctx, e.Store, inst.PackageName)
		if !installed {
			return nil, &PartialUpgradeError{Package: inst.PackageName, Previous: inst, Err: err}
		}
		return upgraded, err
	}
	return upgraded, nil
}

// UpgradeAll upgrades every installation. Locked, already newest and
// unsupported packages are reported as skipped; any other failure stops the
// run.
func (e *Engine) UpgradeAll(ctx context.Context, force bool) (*UpgradeReport, error) {
	installations, err := e.Store.Installations(ctx)
	if err != nil {
		return nil, err
	}

	report := &UpgradeReport{}
	for _, inst := range installations {
		upgraded, err := e.Upgrade(ctx, inst.PackageName, force)
		switch {
		case err == nil:
			report.Upgraded = append(report.Upgraded, upgraded)
		case Skippable(err):
			emit(e.Hooks, Event{Phase: PhaseSkipped, Package: inst.PackageName, Msg: err.Error()})
			report.Skipped = append(report.Skipped, Skip{Package: inst.PackageName, Reason: err})
		default:
			return report, err
		}
	}
	return report, nil
}

// Skippable reports whether a failed upgrade only means there is nothing to do.
func Skippable(err error) bool {
	return stderrors.Is(err, errors.ErrSpecificVersion) ||
		stderrors.Is(err, errors.ErrAlreadyNewest) ||
		stderrors.Is(err, errors.ErrNotSupported)
}
