package evaluator

import (
	"fmt"

	"github.com/dop251/goja"
)

type jsEvaluator struct {
	cache ProgramCache
}

// NewJS returns an Evaluator backed by goja. Each run gets a fresh runtime.
func NewJS(opts ...Option) Evaluator {
	cfg := applyOptions(opts)
	return &jsEvaluator{cache: cfg.cache}
}

func (e *jsEvaluator) Name() string { return "js" }

func (e *jsEvaluator) Compile(expression string) (Program, error) {
	if expression == "" {
		return nil, wrapError("js", expression, ErrEmptyExpression)
	}
	key := cacheKey("js", expression)
	if e.cache != nil {
		if cached, ok := e.cache.Get(key); ok {
			if program, ok := cached.(*goja.Program); ok {
				return &jsProgram{program: program, expression: expression}, nil
			}
		}
	}
	program, err := goja.Compile("", wrapExpression(expression), false)
	if err != nil {
		return nil, wrapError("js", expression, err)
	}
	if e.cache != nil {
		e.cache.Set(key, program)
	}
	return &jsProgram{program: program, expression: expression}, nil
}

func wrapExpression(expression string) string {
	return fmt.Sprintf("(function(){ return (%s); })()", expression)
}

type jsProgram struct {
	program    *goja.Program
	expression string
}

func (p *jsProgram) Run(scope Scope, vars map[string]any) (any, error) {
	vm := goja.New()
	slot := &scopeSlot{scope: scope}
	if err := vm.Set("get", slot.get); err != nil {
		return nil, wrapError("js", p.expression, err)
	}
	if err := vm.Set("getAll", slot.getAll); err != nil {
		return nil, wrapError("js", p.expression, err)
	}
	for k, v := range vars {
		if err := vm.Set(k, v); err != nil {
			return nil, wrapError("js", p.expression, err)
		}
	}

	value, err := vm.RunProgram(p.program)
	if readErr := slot.err; readErr != nil {
		return nil, wrapError("js", p.expression, readErr)
	}
	if err != nil {
		return nil, wrapError("js", p.expression, err)
	}
	return value.Export(), nil
}
