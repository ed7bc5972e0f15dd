package backend

import (
	"fmt"

	"github.com/glorpus-work/fluffpkg/pkg/errors"
	"github.com/glorpus-work/fluffpkg/pkg/grammar"
	"golang.org/x/text/cases"
)

// Names of the built-in commands whose attribute list modules extend.
const (
	ModifyCommand = "modify"
	ShowCommand   = "show"
	AttributeArg  = "attribute"
)

// Registry holds the registered modules and composes the command grammar
// from the built-in commands and every module's contributions.
type Registry struct {
	builtins   []*grammar.Command
	backends   map[string]Backend
	order      []string
	commands   map[string]Command
	attributes map[string][]Attribute
	reserved   map[string]bool
	attrNames  map[string]bool
}

// NewRegistry creates a registry around the built-in grammar. Module commands
// may not reuse built-in command names, and module attributes may not reuse
// the attributes of the built-in modify and show commands.
func NewRegistry(builtins []*grammar.Command) *Registry {
	r := &Registry{
		builtins:   builtins,
		backends:   make(map[string]Backend),
		commands:   make(map[string]Command),
		attributes: make(map[string][]Attribute),
		reserved:   make(map[string]bool),
		attrNames:  make(map[string]bool),
	}
	fold := cases.Fold()
	for _, c := range builtins {
		r.reserved[fold.String(c.Name)] = true
		if c.Name != ModifyCommand && c.Name != ShowCommand {
			continue
		}
		for _, arg := range c.Args {
			if s, ok := arg.(grammar.Sub); ok && s.Name == AttributeArg {
				for _, sc := range s.Commands {
					r.attrNames[fold.String(sc.Name)] = true
				}
			}
		}
	}
	return r
}

// Register adds a module. Nothing is recorded when any check fails.
func (r *Registry) Register(b Backend) error {
	name := b.Name()
	if name == "" {
		return errors.Internalf("module without a name")
	}
	if _, exists := r.backends[name]; exists {
		return fmt.Errorf("%w: %s", errors.ErrModuleExists, name)
	}

	fold := cases.Fold()
	var commands []Command
	if p, ok := b.(CommandProvider); ok {
		commands = p.Commands()
		seen := make(map[string]bool, len(commands))
		for _, c := range commands {
			if c.Grammar == nil || c.Run == nil {
				return errors.Internalf("module %s declares an incomplete command", name)
			}
			if err := c.Grammar.Validate(); err != nil {
				return errors.Wrapf(err, "module %s", name)
			}
			key := fold.String(c.Grammar.Name)
			if _, taken := r.commands[key]; taken || r.reserved[key] || seen[key] {
				return fmt.Errorf("%w: module %s: command %q is already defined", errors.ErrCommandConflict, name, c.Grammar.Name)
			}
			seen[key] = true
		}
	}

	var attributes []Attribute
	if p, ok := b.(AttributeProvider); ok {
		attributes = p.Attributes()
		seen := make(map[string]bool, len(attributes))
		for _, a := range attributes {
			key := fold.String(a.Name)
			if r.attrNames[key] || seen[key] {
				return fmt.Errorf("%w: module %s: attribute %q is already defined", errors.ErrCommandConflict, name, a.Name)
			}
			if a.Modify == nil && a.Show == nil {
				return errors.Internalf("module %s: attribute %s can neither be modified nor shown", name, a.Name)
			}
			if err := attributeCommand(a, true).Validate(); err != nil {
				return errors.Wrapf(err, "module %s", name)
			}
			seen[key] = true
		}
	}

	r.backends[name] = b
	r.order = append(r.order, name)
	for _, c := range commands {
		r.commands[fold.String(c.Grammar.Name)] = c
	}
	r.attributes[name] = attributes
	return nil
}

// Backend returns a registered module.
func (r *Registry) Backend(module string) (Backend, error) {
	b, ok := r.backends[module]
	if !ok {
		return nil, errors.ErrUnknownModuleWithName(module)
	}
	return b, nil
}

// Modules returns the registered module names in registration order.
func (r *Registry) Modules() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Supports reports whether a registered module implements a capability.
// Unknown modules support nothing.
func (r *Registry) Supports(module string, c Capability) bool {
	b, ok := r.backends[module]
	if !ok {
		return false
	}
	return Supports(b, c)
}

// Command returns the module command registered under name.
func (r *Registry) Command(name string) (Command, bool) {
	c, ok := r.commands[cases.Fold().String(name)]
	return c, ok
}

// Attribute returns a module attribute by name.
func (r *Registry) Attribute(module, name string) (Attribute, bool) {
	fold := cases.Fold()
	for _, a := range r.attributes[module] {
		if fold.String(a.Name) == fold.String(name) {
			return a, true
		}
	}
	return Attribute{}, false
}

// Builtins returns the built-in grammar.
func (r *Registry) Builtins() []*grammar.Command {
	return r.builtins
}

// Grammar returns a fresh top-level grammar holding the built-in commands
// followed by every module command in registration order.
func (r *Registry) Grammar() []*grammar.Command {
	out := make([]*grammar.Command, 0, len(r.builtins)+len(r.commands))
	out = append(out, r.builtins...)
	for _, module := range r.order {
		if p, ok := r.backends[module].(CommandProvider); ok {
			for _, c := range p.Commands() {
				out = append(out, c.Grammar)
			}
		}
	}
	return out
}

// ModifyGrammar returns the modify command extended with the attributes of
// module. Unknown modules get the built-in attributes only.
func (r *Registry) ModifyGrammar(module string) (*grammar.Command, error) {
	return r.spliced(ModifyCommand, module, true)
}

// ShowGrammar returns the show command extended with the attributes of module.
func (r *Registry) ShowGrammar(module string) (*grammar.Command, error) {
	return r.spliced(ShowCommand, module, false)
}

func (r *Registry) spliced(command, module string, modify bool) (*grammar.Command, error) {
	base := grammar.Lookup(r.builtins, command)
	if base == nil {
		return nil, errors.Internalf("built-in command %s is missing", command)
	}

	var extra []*grammar.Command
	for _, a := range r.attributes[module] {
		if (modify && a.Modify == nil) || (!modify && a.Show == nil) {
			continue
		}
		extra = append(extra, attributeCommand(a, modify))
	}
	if len(extra) == 0 {
		return base, nil
	}
	return base.WithSubcommands(AttributeArg, extra...)
}

// attributeCommand builds the grammar node of an attribute. Arguments only
// apply to modify; show takes none.
func attributeCommand(a Attribute, modify bool) *grammar.Command {
	c := &grammar.Command{Name: a.Name, Help: a.Help}
	if modify {
		c.Args = a.Args
	}
	return c
}
