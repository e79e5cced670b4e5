// Package declare loads state declarations from HCL or YAML files into a
// format-agnostic Model and turns that Model into state definitions.
package declare

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/wcstack/statecore/pkg/ctxlog"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported declaration format")
	ErrDuplicatePath     = errors.New("path declared twice")
)

// Model is the union of every declaration file loaded.
type Model struct {
	Engine EngineSettings
	States []*StateDecl
}

// EngineSettings are engine-wide knobs a file may carry. Zero keeps the
// engine default.
type EngineSettings struct {
	MaxDepth           int
	ReconcileMemoLimit int
}

type StateDecl struct {
	Name    string
	Lists   []string
	Data    map[string]any
	Getters []GetterDecl
	Setters []SetterDecl
	Depends []DependsDecl
}

type GetterDecl struct {
	Path   string
	Engine string
	Expr   string
}

type SetterDecl struct {
	Path   string
	Engine string
	Expr   string
	Target string
}

// DependsDecl declares that Path depends on each path in On. An entry of On
// may name another state as `path@state`.
type DependsDecl struct {
	Path string
	On   []string
}

// merge folds other into m. Later engine settings win when set.
func (m *Model) merge(other *Model) {
	if other.Engine.MaxDepth > 0 {
		m.Engine.MaxDepth = other.Engine.MaxDepth
	}
	if other.Engine.ReconcileMemoLimit > 0 {
		m.Engine.ReconcileMemoLimit = other.Engine.ReconcileMemoLimit
	}
	m.States = append(m.States, other.States...)
}

// Load reads every file in paths, choosing the loader by extension.
func Load(ctx context.Context, paths ...string) (*Model, error) {
	logger := ctxlog.FromContext(ctx)
	model := &Model{}
	for _, path := range paths {
		var (
			loaded *Model
			err    error
		)
		switch strings.ToLower(filepath.Ext(path)) {
		case ".hcl":
			loaded, err = LoadHCL(path)
		case ".yaml", ".yml":
			loaded, err = LoadYAML(path)
		default:
			return nil, fmt.Errorf("declare: %w: %s", ErrUnsupportedFormat, path)
		}
		if err != nil {
			return nil, err
		}
		logger.Debug("Loaded declarations.", "file", path, "states", len(loaded.States))
		model.merge(loaded)
	}
	return model, nil
}
