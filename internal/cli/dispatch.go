package cli

import (
	"context"
	stderrors "errors"
	"fmt"
	"slices"
	"strings"

	"github.com/glorpus-work/fluffpkg/pkg/backend"
	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/grammar"
	"github.com/sahilm/fuzzy"
	"golang.org/x/text/cases"
)

// MaxSuggestions caps the "did you mean" list of an unknown command.
const MaxSuggestions = 3

type handler func(ctx context.Context, res *grammar.Result) error

func (a *App) handlers() map[string]handler {
	return map[string]handler{
		cmdInstall:            a.runInstall,
		cmdRemove:             a.runRemove,
		cmdUpgrade:            a.runUpgrade,
		cmdList:               a.runList,
		backend.ModifyCommand: a.runModify,
		backend.ShowCommand:   a.runShow,
		cmdVersions:           a.runVersions,
		cmdExecPath:           a.runExecPath,
		cmdSource:             a.runSource,
		cmdForget:             a.runForget,
		cmdHelp:               a.runHelp,
	}
}

// Run parses a command line against the built-in and module commands and
// runs the selected command. Nothing is changed when parsing fails.
func (a *App) Run(ctx context.Context, args []string) error {
	commands := a.grammarFor(ctx, args)
	res, err := grammar.Parse(args, commands)
	if err != nil {
		return a.explain(err)
	}

	if h, ok := a.handlers()[res.Command]; ok {
		return h(ctx, res)
	}
	cmd, ok := a.Registry.Command(res.Command)
	if !ok {
		return errors.Internalf("command %s has no handler", res.Command)
	}
	return cmd.Run(ctx, a.invocation(res))
}

func (a *App) invocation(res *grammar.Result) *backend.Invocation {
	return &backend.Invocation{
		Result:    res,
		Installer: a.Engine,
		Store:     a.Store,
		Out:       a.Out,
	}
}

// grammarFor returns the top-level grammar for a command line. For modify
// and show the attribute list is extended with the attributes of the module
// owning the named package; an unresolvable package keeps the built-in
// attributes only.
func (a *App) grammarFor(ctx context.Context, args []string) []*grammar.Command {
	commands := a.Registry.Grammar()
	if len(args) == 0 {
		return commands
	}
	cmd := grammar.Lookup(commands, args[0])
	if cmd == nil || (cmd.Name != backend.ModifyCommand && cmd.Name != backend.ShowCommand) {
		return commands
	}

	module := ""
	if name := firstPositional(args[1:]); name != "" {
		if c, err := a.Engine.ResolveCandidate(ctx, name); err == nil {
			module = c.Module
		}
	}

	spliced, err := a.attributeGrammar(cmd.Name, module)
	if err != nil {
		return commands
	}

	out := slices.Clone(commands)
	for i, c := range out {
		if c == cmd {
			out[i] = spliced
		}
	}
	return out
}

func (a *App) attributeGrammar(command, module string) (*grammar.Command, error) {
	if command == backend.ModifyCommand {
		return a.Registry.ModifyGrammar(module)
	}
	return a.Registry.ShowGrammar(module)
}

func firstPositional(tokens []string) string {
	for _, tok := range tokens {
		if !strings.HasPrefix(tok, "-") {
			return tok
		}
	}
	return ""
}

// explain prints the usage of a command that failed to parse and adds
// suggestions to unknown command errors.
func (a *App) explain(err error) error {
	var usage *grammar.UsageError
	if stderrors.As(err, &usage) {
		_, _ = fmt.Fprint(a.Err, usage.Usage())
		return err
	}

	var unknown *grammar.UnknownCommandError
	if stderrors.As(err, &unknown) && unknown.Name != "" {
		if names := suggest(unknown.Name, unknown.Available); len(names) > 0 {
			return fmt.Errorf("%w, did you mean: %s", err, strings.Join(names, ", "))
		}
	}
	return err
}

// suggest returns the names closest to a mistyped command, best match first.
func suggest(name string, available []string) []string {
	matches := fuzzy.Find(cases.Fold().String(name), available)
	out := make([]string, 0, MaxSuggestions)
	for _, m := range matches {
		if len(out) == MaxSuggestions {
			break
		}
		out = append(out, m.Str)
	}
	if len(out) > 0 {
		return out
	}
	// no subsequence match, fall back to a shared two letter prefix
	for _, n := range available {
		if len(out) == MaxSuggestions {
			break
		}
		if len(name) >= 2 && strings.HasPrefix(n, cases.Fold().String(name[:2])) {
			out = append(out, n)
		}
	}
	return out
}
