package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/glorpus-work/fluffpkg/internal/logger"
	"github.com/glorpus-work/fluffpkg/pkg/backend"
	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/grammar"
	"github.com/glorpus-work/fluffpkg/pkg/model"
	"github.com/glorpus-work/fluffpkg/pkg/store"
)

func (a *App) runModify(ctx context.Context, res *grammar.Result) error {
	name, _ := res.Pos("package")
	attr := res.Sub(backend.AttributeArg)

	switch attr.Command {
	case attrLauncher, attrPath:
		state, _ := attr.Pos("state")
		on, err := parseState(state)
		if err != nil {
			return err
		}
		if attr.Command == attrLauncher {
			return a.Engine.SetLauncher(ctx, name, on)
		}
		return a.Engine.SetPath(ctx, name, on)
	}

	c, err := a.Engine.ResolveCandidate(ctx, name)
	if err != nil {
		return err
	}
	switch attr.Command {
	case attrAddCategories, attrRemoveCategories:
		return a.setCategories(ctx, c, updateCategories(c.Categories, attr.Rest("categories"), attr.Command == attrAddCategories))
	}

	at, ok := a.Registry.Attribute(c.Module, attr.Command)
	if !ok || at.Modify == nil {
		return fmt.Errorf("%s: %w", attr.Command, errors.ErrAttributeNotAllowed)
	}
	return at.Modify(ctx, a.invocation(attr), c)
}

// updateCategories adds or removes categories, keeping the order of the
// existing ones and skipping duplicates.
func updateCategories(current, changes []string, add bool) []string {
	out := slices.Clone(current)
	for _, cat := range changes {
		idx := slices.Index(out, cat)
		switch {
		case add && idx < 0:
			out = append(out, cat)
		case !add && idx >= 0:
			out = slices.Delete(out, idx, idx+1)
		}
	}
	return out
}

// setCategories stores new categories and rewrites the launcher of an
// installed package.
func (a *App) setCategories(ctx context.Context, c *model.Candidate, categories []string) error {
	if err := a.Store.UpdateCategories(ctx, c.PackageName, categories); err != nil {
		return err
	}
	inst, err := a.Store.Installation(ctx, c.PackageName)
	if stderrors.Is(err, errors.ErrNotInstalled) {
		return nil
	}
	if err != nil {
		return err
	}
	if !inst.Launcher {
		return nil
	}
	if err := a.Desktop.SetCategories(c.PackageName, categories); err != nil {
		return err
	}
	logger.Debug("Launcher categories updated", logger.Fields{"package": c.PackageName, "categories": categories})
	return nil
}

func parseState(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	on, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("%q, expected on or off: %w", s, errors.ErrInvalidBoolValue)
	}
	return on, nil
}

func (a *App) runShow(ctx context.Context, res *grammar.Result) error {
	name, _ := res.Pos("package")
	attr := res.Sub(backend.AttributeArg)

	value, err := a.showValue(ctx, name, attr)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(a.Out, value)
	return nil
}

func (a *App) showValue(ctx context.Context, name string, attr *grammar.Result) (string, error) {
	switch attr.Command {
	case attrVersion, attrExecutable, attrLauncher, attrPath, attrLocked:
		inst, err := store.FindInstallation(ctx, a.Store, name)
		if err != nil {
			return "", err
		}
		switch attr.Command {
		case attrVersion:
			return inst.Version, nil
		case attrExecutable:
			return a.Engine.ExecPath(ctx, inst.PackageName, false)
		case attrLauncher:
			return yesNo(inst.Launcher), nil
		case attrPath:
			return yesNo(inst.Path), nil
		default:
			return yesNo(inst.VersionLocked), nil
		}
	}

	c, err := a.Engine.ResolveCandidate(ctx, name)
	if err != nil {
		return "", err
	}
	switch attr.Command {
	case attrCategories:
		return strings.Join(c.Categories, ";"), nil
	case attrModule:
		return c.Module, nil
	case attrSource:
		return c.Source.String(), nil
	case attrDownloadURL:
		return c.DownloadURL, nil
	}

	at, ok := a.Registry.Attribute(c.Module, attr.Command)
	if !ok || at.Show == nil {
		return "", errors.Internalf("attribute %s has no handler", attr.Command)
	}
	return at.Show(ctx, a.invocation(attr), c)
}
