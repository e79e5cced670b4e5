package evaluator

import (
	celgo "github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
)

type celEvaluator struct {
	cache ProgramCache
}

// NewCEL returns an Evaluator backed by cel-go. Besides get(path), programs
// see a dynamically typed `value` variable.
func NewCEL(opts ...Option) Evaluator {
	cfg := applyOptions(opts)
	return &celEvaluator{cache: cfg.cache}
}

func (e *celEvaluator) Name() string { return "cel" }

func (e *celEvaluator) Compile(expression string) (Program, error) {
	if expression == "" {
		return nil, wrapError("cel", expression, ErrEmptyExpression)
	}
	key := cacheKey("cel", expression)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(*celProgram); ok {
				return program, nil
			}
		}
	}

	p := &celProgram{expression: expression, slot: &scopeSlot{}}
	env, err := celgo.NewEnv(
		celgo.Variable("value", celgo.DynType),
		celgo.Function("get",
			celgo.Overload("get_string", []*celgo.Type{celgo.StringType}, celgo.DynType,
				celgo.UnaryBinding(p.get),
			),
		),
		celgo.Function("getAll",
			celgo.Overload("getAll_string", []*celgo.Type{celgo.StringType}, celgo.ListType(celgo.DynType),
				celgo.UnaryBinding(p.getAll),
			),
		),
	)
	if err != nil {
		return nil, wrapError("cel", expression, err)
	}
	ast, issues := env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, wrapError("cel", expression, issues.Err())
	}
	program, err := env.Program(ast)
	if err != nil {
		return nil, wrapError("cel", expression, err)
	}
	p.program = program
	if e.cache != nil {
		e.cache.Set(key, p)
	}
	return p, nil
}

type celProgram struct {
	program    celgo.Program
	expression string
	slot       *scopeSlot
}

func (p *celProgram) get(arg ref.Val) ref.Val {
	path, ok := arg.Value().(string)
	if !ok {
		return types.NewErr("get expects a path string")
	}
	v, err := p.slot.get(path)
	if err != nil {
		return types.NewErr("%v", err)
	}
	if v == nil {
		return types.NullValue
	}
	return types.DefaultTypeAdapter.NativeToValue(v)
}

func (p *celProgram) getAll(arg ref.Val) ref.Val {
	path, ok := arg.Value().(string)
	if !ok {
		return types.NewErr("getAll expects a path string")
	}
	v, err := p.slot.getAll(path)
	if err != nil {
		return types.NewErr("%v", err)
	}
	return types.DefaultTypeAdapter.NativeToValue(v)
}

func (p *celProgram) Run(scope Scope, vars map[string]any) (any, error) {
	restore := p.slot.enter(scope)
	defer restore()

	activation := map[string]any{"value": nil}
	for k, v := range vars {
		activation[k] = v
	}
	out, _, err := p.program.Eval(activation)
	if readErr := p.slot.err; readErr != nil {
		return nil, wrapError("cel", p.expression, readErr)
	}
	if err != nil {
		return nil, wrapError("cel", p.expression, err)
	}
	return out.Value(), nil
}
