package declare

import (
	"context"
	"fmt"

	"github.com/wcstack/statecore/pkg/state"
)

// Build turns a Model into state definitions, together with the engine
// options its settings imply.
func Build(model *Model) ([]*state.Definition, []state.Option, error) {
	defs := make([]*state.Definition, 0, len(model.States))
	for _, decl := range model.States {
		def, err := buildState(decl)
		if err != nil {
			return nil, nil, err
		}
		defs = append(defs, def)
	}

	var opts []state.Option
	if model.Engine.MaxDepth > 0 {
		opts = append(opts, state.WithMaxDepth(model.Engine.MaxDepth))
	}
	if model.Engine.ReconcileMemoLimit > 0 {
		opts = append(opts, state.WithReconcileMemoLimit(model.Engine.ReconcileMemoLimit))
	}
	return defs, opts, nil
}

func buildState(decl *StateDecl) (*state.Definition, error) {
	def := &state.Definition{
		Name:    decl.Name,
		Data:    decl.Data,
		Lists:   decl.Lists,
		Getters: map[string]state.Getter{},
		Setters: map[string]state.Setter{},
		Depends: map[string][]string{},
	}
	seen := map[string]string{}
	claim := func(kind, path string) error {
		if prev, ok := seen[path]; ok {
			return fmt.Errorf("declare: %w: %s %s in state %q already declared as %s", ErrDuplicatePath, kind, path, decl.Name, prev)
		}
		seen[path] = kind
		return nil
	}

	for _, g := range decl.Getters {
		if err := claim("getter", g.Path); err != nil {
			return nil, err
		}
		def.Getters[g.Path] = state.Getter{Expr: g.Expr, Engine: g.Engine}
	}
	for _, s := range decl.Setters {
		if err := claim("setter", s.Path); err != nil {
			return nil, err
		}
		def.Setters[s.Path] = state.Setter{Expr: s.Expr, Engine: s.Engine, Target: s.Target}
	}
	for _, d := range decl.Depends {
		def.Depends[d.Path] = append(def.Depends[d.Path], d.On...)
	}
	return def, nil
}

// Open loads paths and builds an engine over the declared states. opts are
// applied after the settings found in the files.
func Open(ctx context.Context, paths []string, opts ...state.Option) (*state.Engine, error) {
	model, err := Load(ctx, paths...)
	if err != nil {
		return nil, err
	}
	defs, fileOpts, err := Build(model)
	if err != nil {
		return nil, err
	}
	reg, err := state.NewRegistry(defs...)
	if err != nil {
		return nil, err
	}
	return state.New(reg, append(fileOpts, opts...)...)
}
