package cli

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/glorpus-work/fluffpkg/pkg/backend"
	"github.com/glorpus-work/fluffpkg/pkg/grammar"
	"github.com/spf13/cobra"
)

// TabWidth is the padding between the columns of the command overview.
const TabWidth = 2

func (a *App) runHelp(_ context.Context, res *grammar.Result) error {
	commands := a.Registry.Grammar()
	name, ok := res.Pos("command")
	if !ok {
		writeOverview(a.Out, commands)
		return nil
	}

	cmd := grammar.Lookup(commands, name)
	if cmd == nil {
		return a.explain(&grammar.UnknownCommandError{Name: name, Available: grammar.Names(commands)})
	}
	// modify and show list the attributes of every module
	if cmd.Name == backend.ModifyCommand || cmd.Name == backend.ShowCommand {
		cmd = a.allAttributes(cmd)
	}
	_, _ = fmt.Fprint(a.Out, cmd.Usage())
	return nil
}

// allAttributes extends modify or show with the attributes of every module.
// Attributes offered by several modules are listed once.
func (a *App) allAttributes(cmd *grammar.Command) *grammar.Command {
	offered := len(attributeSub(cmd).Commands)
	var extra []*grammar.Command
	for _, module := range a.Registry.Modules() {
		spliced, err := a.attributeGrammar(cmd.Name, module)
		if err != nil {
			continue
		}
		for _, sc := range attributeSub(spliced).Commands[offered:] {
			if grammar.Lookup(extra, sc.Name) == nil {
				extra = append(extra, sc)
			}
		}
	}
	if len(extra) == 0 {
		return cmd
	}
	merged, err := cmd.WithSubcommands(backend.AttributeArg, extra...)
	if err != nil {
		return cmd
	}
	return merged
}

func attributeSub(cmd *grammar.Command) grammar.Sub {
	for _, arg := range cmd.Args {
		if s, ok := arg.(grammar.Sub); ok && s.Name == backend.AttributeArg {
			return s
		}
	}
	return grammar.Sub{}
}

// writeOverview lists every command with its help text.
func writeOverview(w io.Writer, commands []*grammar.Command) {
	_, _ = fmt.Fprintln(w, "Usage: fluffpkg <command> [arguments]")
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Commands:")
	tw := tabwriter.NewWriter(w, 0, 0, TabWidth, ' ', 0)
	for _, c := range commands {
		_, _ = fmt.Fprintf(tw, "  %s\t%s\n", c.Name, c.Help)
	}
	_, _ = fmt.Fprintf(tw, "  %s\t%s\n", "version", "Show version information")
	_, _ = fmt.Fprintf(tw, "  %s\t%s\n", "config", "Manage configuration")
	_, _ = fmt.Fprintf(tw, "  %s\t%s\n", "cache", "Manage the download cache")
	_ = tw.Flush()
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Run 'fluffpkg help <command>' for the arguments of a command.")
}

// NewHelpCmd replaces the cobra help command. Grammar commands are described
// from their grammar, cobra commands by cobra.
func NewHelpCmd() *cobra.Command {
	return &cobra.Command{
		Use:                "help [command]",
		Short:              "Show help for a command",
		DisableFlagParsing: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root := cmd.Root()
			if sub, _, err := root.Find(args); len(args) > 0 && err == nil && sub != root && sub != cmd {
				return sub.Help()
			}
			return RunGrammar(cmd.Context(), append([]string{cmdHelp}, args...), cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
}
