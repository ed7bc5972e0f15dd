// Package grammar describes command lines as a tree of commands and parses
// token streams against it. Every command owns an ordered list of arguments:
// flags, value options, positionals, a trailing positional list, or a
// sub-command argument whose parse recurses into another set of commands.
package grammar

import (
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"golang.org/x/text/cases"
)

// TabWidth is the padding between the columns of the usage table.
const TabWidth = 2

// Arg is one argument of a command. The set of implementations is closed:
// Flag, Value, Pos, Rest and Sub.
type Arg interface {
	usage() string
	label() string
	describe() string
}

// Flag is a boolean option, present or absent.
type Flag struct {
	Short string
	Long  string
	Help  string
}

// Value is an option that takes exactly one value, either as the following
// token or in key=value form.
type Value struct {
	Short       string
	Long        string
	Help        string
	Placeholder string
}

// Pos is a single positional argument.
type Pos struct {
	Name     string
	Help     string
	Optional bool
}

// Rest collects every remaining positional token.
type Rest struct {
	Name     string
	Help     string
	Optional bool
}

// Sub is a positional naming one of Commands. Parsing continues inside the
// selected command with the remaining tokens.
type Sub struct {
	Name     string
	Help     string
	Commands []*Command
}

// Command is a node of the grammar.
type Command struct {
	Name string
	Help string
	Args []Arg
}

func (f Flag) key() string { return optionKey(f.Short, f.Long) }

func (f Flag) usage() string { return "[" + joinNonEmpty("|", f.Short, f.Long) + "]" }

func (f Flag) label() string { return joinNonEmpty(", ", f.Short, f.Long) }

func (f Flag) describe() string { return f.Help }

func (v Value) key() string { return optionKey(v.Short, v.Long) }

func (v Value) placeholder() string {
	if v.Placeholder == "" {
		return "VALUE"
	}
	return v.Placeholder
}

func (v Value) usage() string {
	return "[" + joinNonEmpty("|", v.Short, v.Long) + " " + v.placeholder() + "]"
}

func (v Value) label() string { return joinNonEmpty(", ", v.Short, v.Long) + " " + v.placeholder() }

func (v Value) describe() string { return v.Help }

func (p Pos) usage() string {
	if p.Optional {
		return "[" + p.Name + "]"
	}
	return "<" + p.Name + ">"
}

func (p Pos) label() string { return p.Name }

func (p Pos) describe() string { return p.Help }

func (r Rest) usage() string {
	if r.Optional {
		return "[" + r.Name + "...]"
	}
	return "<" + r.Name + "...>"
}

func (r Rest) label() string { return r.Name }

func (r Rest) describe() string { return r.Help }

func (s Sub) usage() string { return "<" + s.Name + "> ..." }

func (s Sub) label() string { return s.Name }

func (s Sub) describe() string { return s.Help }

func optionKey(short, long string) string {
	if long != "" {
		return long
	}
	return short
}

func joinNonEmpty(sep string, parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, sep)
}

// Lookup finds a command by name, ignoring case.
func Lookup(commands []*Command, name string) *Command {
	fold := cases.Fold()
	want := fold.String(name)
	for _, c := range commands {
		if fold.String(c.Name) == want {
			return c
		}
	}
	return nil
}

// Names returns the names of the given commands in order.
func Names(commands []*Command) []string {
	names := make([]string, 0, len(commands))
	for _, c := range commands {
		names = append(names, c.Name)
	}
	return names
}

// Validate checks the structural rules of the command and its sub-commands:
// a non-empty name, at most one Sub or Rest, unique option names, unique
// positional names and unique sub-command names.
func (c *Command) Validate() error {
	if c == nil || c.Name == "" {
		return fmt.Errorf("%w: command without a name", errors.ErrInvalidGrammar)
	}

	open := 0
	options := make(map[string]bool)
	positionals := make(map[string]bool)
	for _, arg := range c.Args {
		switch a := arg.(type) {
		case Flag:
			if err := claimOption(options, c.Name, a.Short, a.Long); err != nil {
				return err
			}
		case Value:
			if err := claimOption(options, c.Name, a.Short, a.Long); err != nil {
				return err
			}
		case Pos:
			if err := claimPositional(positionals, c.Name, a.Name); err != nil {
				return err
			}
		case Rest:
			open++
			if err := claimPositional(positionals, c.Name, a.Name); err != nil {
				return err
			}
		case Sub:
			open++
			if err := claimPositional(positionals, c.Name, a.Name); err != nil {
				return err
			}
			if err := validateCommandSet(a.Commands); err != nil {
				return errors.Wrapf(err, "%s %s", c.Name, a.Name)
			}
		default:
			return fmt.Errorf("%w: %s: unsupported argument %T", errors.ErrInvalidGrammar, c.Name, arg)
		}
	}
	if open > 1 {
		return fmt.Errorf("%w: %s: at most one sub-command or trailing list argument is allowed", errors.ErrInvalidGrammar, c.Name)
	}
	return nil
}

func validateCommandSet(commands []*Command) error {
	seen := make(map[string]bool, len(commands))
	fold := cases.Fold()
	for _, sc := range commands {
		if err := sc.Validate(); err != nil {
			return err
		}
		name := fold.String(sc.Name)
		if seen[name] {
			return fmt.Errorf("%w: duplicate command %q", errors.ErrInvalidGrammar, sc.Name)
		}
		seen[name] = true
	}
	return nil
}

// ValidateAll validates a set of sibling commands.
func ValidateAll(commands []*Command) error {
	return validateCommandSet(commands)
}

func claimOption(seen map[string]bool, cmd string, names ...string) error {
	if joinNonEmpty("", names...) == "" {
		return fmt.Errorf("%w: %s: option without a name", errors.ErrInvalidGrammar, cmd)
	}
	for _, n := range names {
		if n == "" {
			continue
		}
		if seen[n] {
			return fmt.Errorf("%w: %s: duplicate option %s", errors.ErrInvalidGrammar, cmd, n)
		}
		seen[n] = true
	}
	return nil
}

func claimPositional(seen map[string]bool, cmd, name string) error {
	if name == "" {
		return fmt.Errorf("%w: %s: positional without a name", errors.ErrInvalidGrammar, cmd)
	}
	if seen[name] {
		return fmt.Errorf("%w: %s: duplicate argument %s", errors.ErrInvalidGrammar, cmd, name)
	}
	seen[name] = true
	return nil
}

// WithSubcommands returns a copy of the command whose Sub argument named
// argName also offers extra. The receiver is left untouched. A name already
// offered by the Sub is rejected.
func (c *Command) WithSubcommands(argName string, extra ...*Command) (*Command, error) {
	out := &Command{Name: c.Name, Help: c.Help, Args: slices.Clone(c.Args)}
	for i, arg := range out.Args {
		s, ok := arg.(Sub)
		if !ok || s.Name != argName {
			continue
		}
		commands := slices.Clone(s.Commands)
		for _, e := range extra {
			if Lookup(commands, e.Name) != nil {
				return nil, fmt.Errorf("%w: %s %s already offers %q", errors.ErrCommandConflict, c.Name, argName, e.Name)
			}
			commands = append(commands, e)
		}
		out.Args[i] = Sub{Name: s.Name, Help: s.Help, Commands: commands}
		return out, nil
	}
	return nil, errors.Internalf("command %s has no sub-command argument %q", c.Name, argName)
}

// Usage renders the usage line and argument table of the command.
func (c *Command) Usage() string {
	return c.usageWithPrefix(nil)
}

func (c *Command) usageWithPrefix(prefix []string) string {
	var b strings.Builder

	parts := append(slices.Clone(prefix), c.Name)
	for _, arg := range c.Args {
		parts = append(parts, arg.usage())
	}
	fmt.Fprintf(&b, "Usage: %s\n", strings.Join(parts, " "))
	if c.Help != "" {
		fmt.Fprintf(&b, "%s\n", c.Help)
	}

	if len(c.Args) > 0 {
		b.WriteString("\nArguments:\n")
		tw := tabwriter.NewWriter(&b, 0, 0, TabWidth, ' ', 0)
		for _, arg := range c.Args {
			_, _ = fmt.Fprintf(tw, "  %s\t%s\n", arg.label(), arg.describe())
		}
		_ = tw.Flush()
	}

	for _, arg := range c.Args {
		s, ok := arg.(Sub)
		if !ok || len(s.Commands) == 0 {
			continue
		}
		fmt.Fprintf(&b, "\nAvailable %s values:\n", s.Name)
		tw := tabwriter.NewWriter(&b, 0, 0, TabWidth, ' ', 0)
		for _, sc := range s.Commands {
			_, _ = fmt.Fprintf(tw, "  %s\t%s\n", sc.Name, sc.Help)
		}
		_ = tw.Flush()
	}

	return b.String()
}

// subPrefix is the usage prefix of commands reached through this command's
// Sub argument: the command name and the arguments declared before the Sub.
func (c *Command) subPrefix(prefix []string) []string {
	out := append(slices.Clone(prefix), c.Name)
	for _, arg := range c.Args {
		switch a := arg.(type) {
		case Sub:
			return out
		case Pos, Rest:
			out = append(out, a.usage())
		}
	}
	return out
}

func (c *Command) flag(name string) (Flag, bool) {
	for _, arg := range c.Args {
		if f, ok := arg.(Flag); ok && (name == f.Short || name == f.Long) && name != "" {
			return f, true
		}
	}
	return Flag{}, false
}

func (c *Command) value(name string) (Value, bool) {
	for _, arg := range c.Args {
		if v, ok := arg.(Value); ok && (name == v.Short || name == v.Long) && name != "" {
			return v, true
		}
	}
	return Value{}, false
}
