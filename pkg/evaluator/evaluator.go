// Package evaluator compiles getter and setter expressions. Expressions read
// state through get(path) and getAll(path); the Scope behind them decides how
// a path resolves and records the read.
package evaluator

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Scope is the state an expression runs against. Get resolves one value in
// the current loop context; GetAll returns every value a wildcard path
// matches.
type Scope interface {
	Get(path string) (any, error)
	GetAll(path string) ([]any, error)
}

// Program is a compiled expression. vars are extra top-level names; setters
// see the written value as `value`.
type Program interface {
	Run(scope Scope, vars map[string]any) (any, error)
}

type Evaluator interface {
	Name() string
	Compile(expression string) (Program, error)
}

// ProgramCache stores compiled programs keyed by expression.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MapCache is an unbounded ProgramCache.
type MapCache struct {
	mu    sync.Mutex
	items map[string]any
}

func NewMapCache() *MapCache {
	return &MapCache{items: map[string]any{}}
}

func (c *MapCache) Get(key string) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *MapCache) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
}

const DefaultEngine = "expr"

var ErrUnknownEngine = errors.New("unknown expression engine")

// Set is a named collection of evaluators.
type Set struct {
	byName map[string]Evaluator
}

func NewSet(evaluators ...Evaluator) *Set {
	s := &Set{byName: map[string]Evaluator{}}
	for _, e := range evaluators {
		s.byName[e.Name()] = e
	}
	return s
}

// Default returns a Set with the expr, cel and js engines sharing cache.
func Default(cache ProgramCache) *Set {
	return NewSet(
		NewExpr(WithProgramCache(cache)),
		NewCEL(WithProgramCache(cache)),
		NewJS(WithProgramCache(cache)),
	)
}

// Lookup returns the evaluator for engine; an empty name means DefaultEngine.
func (s *Set) Lookup(engine string) (Evaluator, error) {
	if engine == "" {
		engine = DefaultEngine
	}
	if e, ok := s.byName[engine]; ok {
		return e, nil
	}
	return nil, fmt.Errorf("evaluator: %w %q (have %s)", ErrUnknownEngine, engine, strings.Join(s.Names(), ", "))
}

func (s *Set) Names() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Compile looks up engine and compiles expression with it.
func (s *Set) Compile(engine, expression string) (Program, error) {
	e, err := s.Lookup(engine)
	if err != nil {
		return nil, err
	}
	return e.Compile(expression)
}

type Option func(*config)

type config struct {
	cache ProgramCache
}

func WithProgramCache(cache ProgramCache) Option {
	return func(c *config) { c.cache = cache }
}

func applyOptions(opts []Option) config {
	var cfg config
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	return cfg
}

// cacheKey keeps programs of different engines apart in a shared cache.
func cacheKey(engine, expression string) string {
	return engine + "\x00" + expression
}

// scopeSlot holds the scope of the program currently running. Runs nest when
// a getter reads another getter, so callers save and restore it.
type scopeSlot struct {
	scope Scope
	err   error
}

func (s *scopeSlot) enter(scope Scope) (restore func()) {
	prev := *s
	s.scope, s.err = scope, nil
	return func() { *s = prev }
}

var errNoScope = errors.New("state read outside of an evaluation")

func (s *scopeSlot) get(path string) (any, error) {
	if s.scope == nil {
		return nil, errNoScope
	}
	v, err := s.scope.Get(path)
	s.record(err)
	return v, err
}

func (s *scopeSlot) getAll(path string) ([]any, error) {
	if s.scope == nil {
		return nil, errNoScope
	}
	v, err := s.scope.GetAll(path)
	s.record(err)
	return v, err
}

func (s *scopeSlot) record(err error) {
	if err != nil && s.err == nil {
		s.err = err
	}
}
