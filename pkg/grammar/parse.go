package grammar

import (
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/glorpus-work/fluffpkg/pkg/errors"
)

// Result is the outcome of parsing a token stream against one command.
// Options are keyed by their long name (short name if there is none),
// positionals and lists by their declared name.
type Result struct {
	Command     string
	Flags       map[string]bool
	Values      map[string]string
	Positionals map[string]string
	Lists       map[string][]string
	Subs        map[string]*Result
}

func newResult(cmd *Command) *Result {
	r := &Result{
		Command:     cmd.Name,
		Flags:       make(map[string]bool),
		Values:      make(map[string]string),
		Positionals: make(map[string]string),
		Lists:       make(map[string][]string),
		Subs:        make(map[string]*Result),
	}
	for _, arg := range cmd.Args {
		if f, ok := arg.(Flag); ok {
			r.Flags[f.key()] = false
		}
	}
	return r
}

// Flag reports whether the flag was given.
func (r *Result) Flag(name string) bool {
	return r.Flags[name]
}

// Value returns the value of an option and whether it was given.
func (r *Result) Value(name string) (string, bool) {
	v, ok := r.Values[name]
	return v, ok
}

// Pos returns a positional argument and whether it was given.
func (r *Result) Pos(name string) (string, bool) {
	v, ok := r.Positionals[name]
	return v, ok
}

// Rest returns the tokens collected by a trailing list argument.
func (r *Result) Rest(name string) []string {
	return r.Lists[name]
}

// Sub returns the nested result of a sub-command argument, or nil.
func (r *Result) Sub(name string) *Result {
	return r.Subs[name]
}

// UnknownCommandError reports a first token that names no command.
type UnknownCommandError struct {
	Name      string
	Available []string
}

func (e *UnknownCommandError) Error() string {
	if e.Name == "" {
		return "no command given"
	}
	return fmt.Sprintf("unknown command: %s", e.Name)
}

func (e *UnknownCommandError) Unwrap() error { return errors.ErrUnknownCommand }

// UsageError reports a token stream that does not fit a command. It carries
// the command so callers can print its usage.
type UsageError struct {
	Command *Command
	Prefix  []string
	Reason  string
}

func (e *UsageError) Error() string { return e.Reason }

func (e *UsageError) Unwrap() error { return errors.ErrUsage }

// Usage renders the usage text of the command that failed to parse.
func (e *UsageError) Usage() string {
	return e.Command.usageWithPrefix(e.Prefix)
}

// Parse parses tokens against a set of commands. The first token selects the
// command, case-insensitively.
func Parse(tokens []string, commands []*Command) (*Result, error) {
	return parse(tokens, commands, nil)
}

func parse(tokens []string, commands []*Command, prefix []string) (*Result, error) {
	if len(tokens) == 0 {
		return nil, &UnknownCommandError{Available: Names(commands)}
	}
	cmd := Lookup(commands, tokens[0])
	if cmd == nil {
		return nil, &UnknownCommandError{Name: tokens[0], Available: Names(commands)}
	}
	p := &parser{cmd: cmd, prefix: prefix, result: newResult(cmd)}
	if err := p.run(tokens[1:]); err != nil {
		return nil, err
	}
	return p.result, nil
}

type parser struct {
	cmd    *Command
	prefix []string
	result *Result
}

func (p *parser) fail(format string, args ...interface{}) error {
	return &UsageError{Command: p.cmd, Prefix: p.prefix, Reason: fmt.Sprintf(format, args...)}
}

func (p *parser) run(tokens []string) error {
	var (
		positionals []Pos
		rest        *Rest
		sub         *Sub
	)
	for _, arg := range p.cmd.Args {
		switch a := arg.(type) {
		case Pos:
			positionals = append(positionals, a)
		case Rest:
			rest = &a
		case Sub:
			sub = &a
		}
	}

	next := 0
	subDone := false
	for i := 0; i < len(tokens); i++ {
		tok := tokens[i]

		if key, val, ok := strings.Cut(tok, "="); ok {
			if v, found := p.cmd.value(key); found {
				p.result.Values[v.key()] = val
				continue
			}
			if _, found := p.cmd.flag(key); found {
				return p.fail("argument %s does not take a value", key)
			}
		}

		if f, found := p.cmd.flag(tok); found {
			p.result.Flags[f.key()] = true
			continue
		}

		if v, found := p.cmd.value(tok); found {
			if i+1 >= len(tokens) {
				return p.fail("argument %s requires a value", tok)
			}
			i++
			p.result.Values[v.key()] = tokens[i]
			continue
		}

		if looksLikeOption(tok) {
			return p.fail("unknown argument: %s", tok)
		}

		if next < len(positionals) {
			p.result.Positionals[positionals[next].Name] = tok
			next++
			continue
		}

		if sub != nil {
			nested, err := parse(tokens[i:], sub.Commands, p.cmd.subPrefix(p.prefix))
			if err != nil {
				var unknown *UnknownCommandError
				if stderrors.As(err, &unknown) {
					return p.fail("unknown %s: %s", sub.Name, unknown.Name)
				}
				return err
			}
			p.result.Subs[sub.Name] = nested
			subDone = true
			break
		}

		if rest != nil {
			p.result.Lists[rest.Name] = append(p.result.Lists[rest.Name], tok)
			continue
		}

		return p.fail("unknown argument: %s", tok)
	}

	for _, arg := range p.cmd.Args {
		switch a := arg.(type) {
		case Pos:
			if _, ok := p.result.Positionals[a.Name]; !ok && !a.Optional {
				return p.fail("missing argument: %s", a.Name)
			}
		case Rest:
			if len(p.result.Lists[a.Name]) == 0 && !a.Optional {
				return p.fail("missing argument: %s", a.Name)
			}
		case Sub:
			if !subDone {
				return p.fail("missing argument: %s", a.Name)
			}
		}
	}
	return nil
}

func looksLikeOption(tok string) bool {
	return len(tok) > 1 && strings.HasPrefix(tok, "-")
}
