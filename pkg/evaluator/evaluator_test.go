package evaluator

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingScope struct {
	values map[string]any
	reads  []string
}

func (s *recordingScope) Get(path string) (any, error) {
	s.reads = append(s.reads, path)
	v, ok := s.values[path]
	if !ok {
		return nil, errMissing
	}
	return v, nil
}

func (s *recordingScope) GetAll(path string) ([]any, error) {
	s.reads = append(s.reads, path)
	v, ok := s.values[path].([]any)
	if !ok {
		return nil, errMissing
	}
	return v, nil
}

var errMissing = errors.New("missing path")

type funcScope func(path string) (any, error)

func (f funcScope) Get(path string) (any, error) { return f(path) }

func (f funcScope) GetAll(path string) ([]any, error) { return nil, errMissing }

func engines() []Evaluator {
	return []Evaluator{NewExpr(), NewCEL(), NewJS()}
}

func TestGetterReadsAreTracked(t *testing.T) {
	for _, e := range engines() {
		t.Run(e.Name(), func(t *testing.T) {
			program, err := e.Compile("get('items.*.price') * get('items.*.qty')")
			require.NoError(t, err)

			scope := &recordingScope{values: map[string]any{"items.*.price": 2, "items.*.qty": 3}}
			out, err := program.Run(scope, nil)
			require.NoError(t, err)
			assert.EqualValues(t, 6, out)
			assert.Equal(t, []string{"items.*.price", "items.*.qty"}, scope.reads)
		})
	}
}

func TestGetAll(t *testing.T) {
	expressions := map[string]string{
		"expr": "sum(getAll('items.*.qty'))",
		"cel":  "size(getAll('items.*.qty'))",
		"js":   "getAll('items.*.qty').reduce(function(a, b) { return a + b; }, 0)",
	}
	want := map[string]int{"expr": 6, "cel": 3, "js": 6}

	for _, e := range engines() {
		t.Run(e.Name(), func(t *testing.T) {
			program, err := e.Compile(expressions[e.Name()])
			require.NoError(t, err)

			scope := &recordingScope{values: map[string]any{"items.*.qty": []any{1, 2, 3}}}
			out, err := program.Run(scope, nil)
			require.NoError(t, err)
			assert.EqualValues(t, want[e.Name()], out)
			assert.Equal(t, []string{"items.*.qty"}, scope.reads)
		})
	}
}

func TestSetterSeesValue(t *testing.T) {
	for _, e := range engines() {
		t.Run(e.Name(), func(t *testing.T) {
			program, err := e.Compile("value / 2")
			require.NoError(t, err)

			out, err := program.Run(&recordingScope{}, map[string]any{"value": 10})
			require.NoError(t, err)
			assert.EqualValues(t, 5, out)
		})
	}
}

func TestReadErrorsPropagate(t *testing.T) {
	for _, e := range engines() {
		t.Run(e.Name(), func(t *testing.T) {
			program, err := e.Compile("get('nope')")
			require.NoError(t, err)

			_, err = program.Run(&recordingScope{}, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, errMissing)

			var evalErr *Error
			require.ErrorAs(t, err, &evalErr)
			assert.Equal(t, e.Name(), evalErr.Engine)
			assert.Equal(t, "get('nope')", evalErr.Expr)
		})
	}
}

func TestCompileErrors(t *testing.T) {
	for _, e := range engines() {
		t.Run(e.Name(), func(t *testing.T) {
			_, err := e.Compile("")
			assert.ErrorIs(t, err, ErrEmptyExpression)

			_, err = e.Compile("get('a') +")
			var evalErr *Error
			assert.ErrorAs(t, err, &evalErr)
		})
	}
}

func TestNestedRunsRestoreScope(t *testing.T) {
	program, err := NewExpr().Compile("get('x') + 1")
	require.NoError(t, err)

	inner := funcScope(func(string) (any, error) { return 1, nil })
	outer := funcScope(func(string) (any, error) {
		return program.Run(inner, nil)
	})
	out, err := program.Run(outer, nil)
	require.NoError(t, err)
	assert.EqualValues(t, 3, out)
}

func TestProgramCache(t *testing.T) {
	cache := NewMapCache()
	set := Default(cache)

	first, err := set.Compile("", "get('a')")
	require.NoError(t, err)
	second, err := set.Compile("expr", "get('a')")
	require.NoError(t, err)
	assert.Same(t, first, second)

	js, err := set.Compile("js", "get('a')")
	require.NoError(t, err)
	assert.NotSame(t, first, js)
}

func TestSetLookup(t *testing.T) {
	set := NewSet(NewExpr(), NewJS())
	assert.Equal(t, []string{"expr", "js"}, set.Names())

	_, err := set.Lookup("lua")
	assert.ErrorIs(t, err, ErrUnknownEngine)
	assert.Contains(t, err.Error(), "expr, js")
}
