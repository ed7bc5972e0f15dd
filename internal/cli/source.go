package cli

import (
	"context"
	"fmt"

	"github.com/glorpus-work/fluffpkg/internal/logger"
	"github.com/glorpus-work/fluffpkg/pkg/grammar"
	"github.com/glorpus-work/fluffpkg/pkg/sources"
)

func (a *App) runSource(ctx context.Context, res *grammar.Result) error {
	action := res.Sub("action")
	location, _ := action.Pos("location")

	switch action.Command {
	case "add":
		src, err := sources.NewSource(location, action.Flag("--remote"))
		if err != nil {
			return err
		}
		report, err := a.Sources.Add(ctx, src)
		if err != nil {
			return err
		}
		a.printReport(report)
		return nil

	case "remove":
		src, err := a.Sources.Resolve(ctx, location)
		if err != nil {
			return err
		}
		if err := a.Sources.Remove(ctx, src); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(a.Out, "Removed source %s\n", src)
		return nil

	case "update":
		if location == "" {
			reports, err := a.Sources.UpdateAll(ctx)
			for _, r := range reports {
				a.printReport(r)
			}
			return err
		}
		src, err := a.Sources.Resolve(ctx, location)
		if err != nil {
			return err
		}
		report, err := a.Sources.Update(ctx, src)
		if err != nil {
			return err
		}
		a.printReport(report)
		return nil

	default:
		known, err := a.Store.Sources(ctx)
		if err != nil {
			return err
		}
		for _, src := range known {
			_, _ = fmt.Fprintln(a.Out, src)
		}
		return nil
	}
}

func (a *App) printReport(r *sources.Report) {
	_, _ = fmt.Fprintf(a.Out, "%s: %d added, %d updated, %d removed\n",
		r.Source, len(r.Added), len(r.Updated), len(r.Removed))
	for _, s := range r.Skipped {
		logger.Warn("Candidate skipped", logger.Fields{"package": s.Package, "reason": s.Reason.Error()})
	}
}
