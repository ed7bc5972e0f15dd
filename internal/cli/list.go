package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/glorpus-work/fluffpkg/pkg/grammar"
	"github.com/glorpus-work/fluffpkg/pkg/model"
)

// ListPadding is the space between two columns of a listing.
const ListPadding = 1

var headerStyle = lipgloss.NewStyle().Bold(true)

func (a *App) runList(ctx context.Context, res *grammar.Result) error {
	installed, err := a.Store.Installations(ctx)
	if err != nil {
		return err
	}
	byName := make(map[string]*model.Installation, len(installed))
	for _, inst := range installed {
		byName[inst.PackageName] = inst
	}

	if res.Flag("--installed") {
		if len(installed) == 0 {
			_, _ = fmt.Fprintln(a.Out, "No packages installed")
			return nil
		}
		rows := make([][]string, 0, len(installed))
		for _, inst := range installed {
			rows = append(rows, []string{
				inst.PackageName, inst.Version, inst.Module,
				yesNo(inst.Launcher), yesNo(inst.Path), yesNo(inst.VersionLocked),
			})
		}
		_, _ = fmt.Fprintln(a.Out, renderTable([]string{"PACKAGE", "VERSION", "MODULE", "LAUNCHER", "PATH", "LOCKED"}, rows))
		return nil
	}

	candidates, err := a.Store.Candidates(ctx)
	if err != nil {
		return err
	}
	if len(candidates) == 0 {
		_, _ = fmt.Fprintln(a.Out, "No candidates, add a source or use a module command")
		return nil
	}
	rows := make([][]string, 0, len(candidates))
	for _, c := range candidates {
		status := ""
		if inst, ok := byName[c.PackageName]; ok {
			status = "installed " + inst.Version
		}
		rows = append(rows, []string{c.PackageName, c.Name, c.Module, strings.Join(c.Categories, ";"), status})
	}
	_, _ = fmt.Fprintln(a.Out, renderTable([]string{"PACKAGE", "NAME", "MODULE", "CATEGORIES", "STATUS"}, rows))
	return nil
}

// renderTable lays rows out in columns under a ruled header.
func renderTable(headers []string, rows [][]string) string {
	cell := lipgloss.NewStyle().PaddingRight(ListPadding)
	return table.New().
		Border(lipgloss.NormalBorder()).
		BorderTop(false).
		BorderBottom(false).
		BorderLeft(false).
		BorderRight(false).
		BorderColumn(false).
		BorderHeader(true).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle.PaddingRight(ListPadding)
			}
			return cell
		}).
		String()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
