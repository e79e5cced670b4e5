package evaluator

import (
	"fmt"

	exprlang "github.com/expr-lang/expr"
	exprvm "github.com/expr-lang/expr/vm"
)

type exprEvaluator struct {
	cache ProgramCache
}

// NewExpr returns an Evaluator backed by github.com/expr-lang/expr.
func NewExpr(opts ...Option) Evaluator {
	cfg := applyOptions(opts)
	return &exprEvaluator{cache: cfg.cache}
}

func (e *exprEvaluator) Name() string { return "expr" }

func (e *exprEvaluator) Compile(expression string) (Program, error) {
	if expression == "" {
		return nil, wrapError("expr", expression, ErrEmptyExpression)
	}
	key := cacheKey("expr", expression)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(*exprProgram); ok {
				return program, nil
			}
		}
	}

	p := &exprProgram{expression: expression, slot: &scopeSlot{}}
	program, err := exprlang.Compile(expression,
		exprlang.Env(map[string]any{}),
		exprlang.AllowUndefinedVariables(),
		exprlang.Function("get", p.get, new(func(string) any)),
		exprlang.Function("getAll", p.getAll, new(func(string) []any)),
	)
	if err != nil {
		return nil, wrapError("expr", expression, err)
	}
	p.program = program
	if e.cache != nil {
		e.cache.Set(key, p)
	}
	return p, nil
}

type exprProgram struct {
	program    *exprvm.Program
	expression string
	slot       *scopeSlot
}

func (p *exprProgram) get(params ...any) (any, error) {
	path, ok := params[0].(string)
	if !ok {
		return nil, fmt.Errorf("get expects a path string, got %T", params[0])
	}
	return p.slot.get(path)
}

func (p *exprProgram) getAll(params ...any) (any, error) {
	path, ok := params[0].(string)
	if !ok {
		return nil, fmt.Errorf("getAll expects a path string, got %T", params[0])
	}
	return p.slot.getAll(path)
}

func (p *exprProgram) Run(scope Scope, vars map[string]any) (any, error) {
	restore := p.slot.enter(scope)
	defer restore()

	env := make(map[string]any, len(vars))
	for k, v := range vars {
		env[k] = v
	}
	out, err := exprlang.Run(p.program, env)
	if readErr := p.slot.err; readErr != nil {
		return nil, wrapError("expr", p.expression, readErr)
	}
	if err != nil {
		return nil, wrapError("expr", p.expression, err)
	}
	return out, nil
}
