package state

import (
	"fmt"
	"sort"

	"github.com/wcstack/statecore/pkg/pathinfo"
)

// GetterFunc computes a value. Reads through r are tracked as dependencies of
// the getter's path.
type GetterFunc func(r Reader) (any, error)

// SetterFunc handles a write to a setter path.
type SetterFunc func(w Writer, value any) error

// Getter is either a Go func or an expression for the named engine.
type Getter struct {
	Func   GetterFunc
	Expr   string
	Engine string
}

// Setter is either a Go func or an expression whose result is written to
// Target. The expression sees the written value as `value`.
type Setter struct {
	Func   SetterFunc
	Expr   string
	Engine string
	Target string
}

// Definition describes one state instance: its backing object and the
// classification of its paths.
type Definition struct {
	Name    string
	Data    map[string]any
	Lists   []string
	Getters map[string]Getter
	Setters map[string]Setter
	// Depends maps a path to the paths it statically depends on.
	Depends map[string][]string
}

func (d *Definition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("state: %w: empty name", ErrInvalidDefinition)
	}
	check := func(kind, path string) error {
		if _, err := pathinfo.Parse(path); err != nil {
			return fmt.Errorf("state: %w: %s %s in %q: %w", ErrInvalidDefinition, kind, path, d.Name, err)
		}
		return nil
	}
	for _, path := range d.Lists {
		if err := check("list", path); err != nil {
			return err
		}
	}
	for path, g := range d.Getters {
		if err := check("getter", path); err != nil {
			return err
		}
		if g.Func == nil && g.Expr == "" {
			return fmt.Errorf("state: %w: getter %s in %q has neither func nor expression", ErrInvalidDefinition, path, d.Name)
		}
	}
	for path, s := range d.Setters {
		if err := check("setter", path); err != nil {
			return err
		}
		if s.Func == nil {
			if s.Expr == "" || s.Target == "" {
				return fmt.Errorf("state: %w: setter %s in %q needs a func or an expression and target", ErrInvalidDefinition, path, d.Name)
			}
			if err := check("setter target", s.Target); err != nil {
				return err
			}
		}
	}
	for path, sources := range d.Depends {
		if err := check("dependent", path); err != nil {
			return err
		}
		for _, source := range sources {
			sourcePath, _ := pathinfo.SplitTarget(source)
			if err := check("dependency", sourcePath); err != nil {
				return err
			}
		}
	}
	return nil
}

// Registry maps state names to their definitions.
type Registry struct {
	defs map[string]*Definition
}

func NewRegistry(defs ...*Definition) (*Registry, error) {
	r := &Registry{defs: map[string]*Definition{}}
	for _, def := range defs {
		if err := r.Register(def); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(def *Definition) error {
	if err := def.validate(); err != nil {
		return err
	}
	if _, ok := r.defs[def.Name]; ok {
		return fmt.Errorf("state: %w: %q", ErrDuplicateState, def.Name)
	}
	r.defs[def.Name] = def
	return nil
}

func (r *Registry) Get(name string) (*Definition, bool) {
	def, ok := r.defs[name]
	return def, ok
}

// Names returns the registered state names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.defs))
	for name := range r.defs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
