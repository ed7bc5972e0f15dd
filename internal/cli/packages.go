package cli

import (
	"context"
	"fmt"

	"github.com/glorpus-work/fluffpkg/internal/logger"
	"github.com/glorpus-work/fluffpkg/pkg/grammar"
	"github.com/glorpus-work/fluffpkg/pkg/lifecycle"
)

func (a *App) runInstall(ctx context.Context, res *grammar.Result) error {
	ver, _ := res.Value("--version")
	opts := lifecycle.InstallOptions{
		Version:    ver,
		NoLauncher: res.Flag("--nolauncher"),
		Path:       res.Flag("--path"),
	}
	for _, name := range res.Rest("packages") {
		inst, err := a.Engine.Install(ctx, name, opts)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.Out, "%s %s successfully installed\n", inst.Name, inst.Version)
	}
	return nil
}

func (a *App) runRemove(ctx context.Context, res *grammar.Result) error {
	for _, name := range res.Rest("packages") {
		if err := a.Engine.Remove(ctx, name); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.Out, "%s successfully removed\n", name)
	}
	return nil
}

// runUpgrade upgrades the named packages, failing on the first error, or
// every installed package when none are named, skipping those that cannot
// or need not be upgraded.
func (a *App) runUpgrade(ctx context.Context, res *grammar.Result) error {
	force := res.Flag("--force")
	names := res.Rest("packages")

	if len(names) == 0 {
		report, err := a.Engine.UpgradeAll(ctx, force)
		if err != nil {
			return err
		}
		for _, s := range report.Skipped {
			_, _ = fmt.Fprintf(a.Out, "Skipping %s: %v\n", s.Package, s.Reason)
		}
		for _, inst := range report.Upgraded {
			_, _ = fmt.Fprintf(a.Out, "%s upgraded to %s\n", inst.Name, inst.Version)
		}
		logger.Debug("Upgrade finished", logger.Fields{"upgraded": len(report.Upgraded), "skipped": len(report.Skipped)})
		return nil
	}

	for _, name := range names {
		inst, err := a.Engine.Upgrade(ctx, name, force)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.Out, "%s upgraded to %s\n", inst.Name, inst.Version)
	}
	return nil
}

func (a *App) runVersions(ctx context.Context, res *grammar.Result) error {
	name, _ := res.Pos("package")
	versions, err := a.Engine.Versions(ctx, name)
	if err != nil {
		return err
	}
	for _, v := range versions {
		_, _ = fmt.Fprintln(a.Out, v)
	}
	return nil
}

func (a *App) runExecPath(ctx context.Context, res *grammar.Result) error {
	name, _ := res.Pos("package")
	path, err := a.Engine.ExecPath(ctx, name, res.Flag("--noversion"))
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.Out, path)
	return nil
}

// runForget drops candidates. Installed packages must be removed first.
func (a *App) runForget(ctx context.Context, res *grammar.Result) error {
	for _, name := range res.Rest("packages") {
		if err := a.Store.RemoveCandidate(ctx, name); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.Out, "%s forgotten\n", name)
	}
	return nil
}
