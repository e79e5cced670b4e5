// Package state binds named state objects to the addressing, dependency and
// update machinery: it resolves and writes values by address, tracks what
// getters read, and turns every write into one coalesced flush.
package state

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wcstack/statecore/pkg/address"
	"github.com/wcstack/statecore/pkg/cache"
	"github.com/wcstack/statecore/pkg/ctxlog"
	"github.com/wcstack/statecore/pkg/deps"
	"github.com/wcstack/statecore/pkg/evaluator"
	"github.com/wcstack/statecore/pkg/listindex"
	"github.com/wcstack/statecore/pkg/loop"
	"github.com/wcstack/statecore/pkg/metrics"
	"github.com/wcstack/statecore/pkg/pathinfo"
	"github.com/wcstack/statecore/pkg/updater"
)

type Config struct {
	MaxDepth           int
	ReconcileMemoLimit int
}

func DefaultConfig() Config {
	return Config{
		MaxDepth:           deps.DefaultMaxDepth,
		ReconcileMemoLimit: listindex.DefaultMemoLimit,
	}
}

type Option func(*Engine)

// WithMaxDepth bounds dependency walks. Values below 1 keep the default.
func WithMaxDepth(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.cfg.MaxDepth = n
		}
	}
}

func WithReconcileMemoLimit(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.cfg.ReconcileMemoLimit = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option { return func(e *Engine) { e.logger = logger } }

func WithMetrics(m *metrics.Metrics) Option { return func(e *Engine) { e.metrics = m } }

func WithTracer(tracer trace.Tracer) Option { return func(e *Engine) { e.tracer = tracer } }

func WithSink(sink updater.Sink) Option { return func(e *Engine) { e.sink = sink } }

// WithOnError receives errors raised while flushing, after they are logged.
func WithOnError(fn updater.OnErrorFunc) Option { return func(e *Engine) { e.onError = fn } }

// WithEvaluators sets the engines used to compile getter and setter
// expressions.
func WithEvaluators(set *evaluator.Set) Option { return func(e *Engine) { e.evaluators = set } }

// WithLoop runs flushes on l instead of a loop owned by the engine.
func WithLoop(l *loop.Loop) Option { return func(e *Engine) { e.loop = l } }

type Engine struct {
	cfg        Config
	logger     *slog.Logger
	metrics    *metrics.Metrics
	tracer     trace.Tracer
	evaluators *evaluator.Set
	loop       *loop.Loop
	sink       updater.Sink
	onError    updater.OnErrorFunc

	reconciler *listindex.Reconciler
	factory    *address.Factory
	lists      *deps.ListTable
	cache      *cache.Cache
	walker     *deps.Walker
	queue      *updater.Queue
	states     map[string]*instance
}

type getter struct {
	fn      GetterFunc
	program evaluator.Program
}

type setter struct {
	fn      SetterFunc
	program evaluator.Program
	target  *pathinfo.PathInfo
}

type instance struct {
	engine  *Engine
	name    string
	data    map[string]any
	graph   *deps.Graph
	getters map[*pathinfo.PathInfo]*getter
	setters map[*pathinfo.PathInfo]*setter
}

func (i *instance) Graph() *deps.Graph { return i.graph }

func (i *instance) ListValue(addr *address.StateAddress) ([]any, error) {
	return i.engine.listValue(i, addr)
}

// New builds an engine over every state in reg.
func New(reg *Registry, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg:    DefaultConfig(),
		logger: ctxlog.Discard,
		states: map[string]*instance{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = metrics.New(nil)
	}
	if e.tracer == nil {
		e.tracer = otel.Tracer("github.com/wcstack/statecore/pkg/state")
	}
	if e.evaluators == nil {
		e.evaluators = evaluator.Default(evaluator.NewMapCache())
	}
	if e.loop == nil {
		e.loop = loop.New(func(r any) {
			e.logger.Error("microtask panicked", "panic", r)
		})
	}

	e.reconciler = listindex.NewReconciler(listindex.NewArena(), e.cfg.ReconcileMemoLimit)
	e.factory = address.NewFactory()
	e.lists = deps.NewListTable()
	e.cache = cache.New()
	e.walker = &deps.Walker{
		Factory:    e.factory,
		Reconciler: e.reconciler,
		Lists:      e.lists,
		Sources:    e.source,
		MaxDepth:   e.cfg.MaxDepth,
		OnCommit:   e.commitList,
	}
	queueOpts := []updater.Option{
		updater.WithLogger(e.logger),
		updater.WithMetrics(e.metrics),
		updater.WithTracer(e.tracer),
		updater.WithOnError(e.onError),
	}
	if e.sink != nil {
		queueOpts = append(queueOpts, updater.WithSink(e.sink))
	}
	e.queue = updater.New(e.loop, updater.ResolverFunc(e.Resolve), queueOpts...)

	if reg == nil {
		return e, nil
	}
	for _, name := range reg.Names() {
		def, _ := reg.Get(name)
		inst, err := e.newInstance(def)
		if err != nil {
			return nil, err
		}
		e.states[name] = inst
	}
	for _, name := range reg.Names() {
		def, _ := reg.Get(name)
		if err := e.addDepends(def); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func (e *Engine) newInstance(def *Definition) (*instance, error) {
	data := def.Data
	if data == nil {
		data = map[string]any{}
	}
	inst := &instance{
		engine:  e,
		name:    def.Name,
		data:    data,
		graph:   deps.NewGraph(),
		getters: map[*pathinfo.PathInfo]*getter{},
		setters: map[*pathinfo.PathInfo]*setter{},
	}

	for _, path := range def.Lists {
		if err := inst.graph.AddList(path); err != nil {
			return nil, err
		}
	}
	for _, path := range sortedKeys(def.Getters) {
		g := def.Getters[path]
		pi := pathinfo.Get(path)
		if err := inst.graph.AddPath(path); err != nil {
			return nil, err
		}
		compiled := &getter{fn: g.Func}
		if g.Func == nil {
			program, err := e.evaluators.Compile(g.Engine, g.Expr)
			if err != nil {
				return nil, &pathinfo.PathError{Op: "state: compile getter", Path: path, Err: err}
			}
			compiled.program = program
		}
		inst.getters[pi] = compiled
	}
	for _, path := range sortedKeys(def.Setters) {
		s := def.Setters[path]
		pi := pathinfo.Get(path)
		if err := inst.graph.AddPath(path); err != nil {
			return nil, err
		}
		compiled := &setter{fn: s.Func}
		if s.Func == nil {
			program, err := e.evaluators.Compile(s.Engine, s.Expr)
			if err != nil {
				return nil, &pathinfo.PathError{Op: "state: compile setter", Path: path, Err: err}
			}
			compiled.program = program
			compiled.target = pathinfo.Get(s.Target)
		}
		inst.setters[pi] = compiled
	}
	return inst, nil
}

func (e *Engine) addDepends(def *Definition) error {
	inst := e.states[def.Name]
	for _, path := range sortedKeys(def.Depends) {
		if err := inst.graph.AddPath(path); err != nil {
			return err
		}
		for _, source := range def.Depends[path] {
			sourcePath, sourceState := pathinfo.SplitTarget(source)
			target := path
			owner := inst
			if sourceState != "" && sourceState != def.Name {
				other, ok := e.states[sourceState]
				if !ok {
					return fmt.Errorf("state: %w: %q (dependency of %s in %q)", ErrUnknownState, sourceState, path, def.Name)
				}
				owner = other
				target = path + pathinfo.StateSeparator + def.Name
			}
			if err := owner.graph.AddPath(sourcePath); err != nil {
				return err
			}
			owner.graph.AddStatic(sourcePath, target)
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (e *Engine) instance(name string) (*instance, error) {
	inst, ok := e.states[name]
	if !ok {
		return nil, fmt.Errorf("state: %w: %q", ErrUnknownState, name)
	}
	return inst, nil
}

func (e *Engine) source(name string) (deps.Source, error) {
	inst, err := e.instance(name)
	if err != nil {
		return nil, err
	}
	return inst, nil
}

// Loop is the loop flushes are scheduled on.
func (e *Engine) Loop() *loop.Loop { return e.loop }

func (e *Engine) Config() Config { return e.cfg }

// States returns the names of the state instances, sorted.
func (e *Engine) States() []string {
	return sortedKeys(e.states)
}

// Graph returns the dependency graph of a state instance.
func (e *Engine) Graph(stateName string) (*deps.Graph, error) {
	inst, err := e.instance(stateName)
	if err != nil {
		return nil, err
	}
	return inst.graph, nil
}

func (e *Engine) Stamp(stateName string) updater.Stamp {
	return e.queue.Stamp(stateName)
}

// Resolve returns the current value at addr, from the cache when the entry is
// fresh.
func (e *Engine) Resolve(addr *address.AbsoluteStateAddress) (any, error) {
	inst, err := e.instance(addr.StateName())
	if err != nil {
		return nil, err
	}
	value, err := e.resolve(inst, addr.Address())
	if err != nil {
		return nil, pathinfo.Wrap("state: resolve", addr.PathInfo().Path, err)
	}
	return value, nil
}

// Write stores value at addr and propagates the change to everything that
// depends on it. It reports false, and propagates nothing, when a scalar
// value is unchanged.
func (e *Engine) Write(addr *address.AbsoluteStateAddress, value any) (bool, error) {
	_, span := e.tracer.Start(context.Background(), "statecore.write",
		trace.WithAttributes(
			attribute.String("state", addr.StateName()),
			attribute.String("path", addr.PathInfo().Path),
		),
	)
	defer span.End()

	inst, err := e.instance(addr.StateName())
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "unknown state")
		return false, err
	}
	changed, err := e.write(inst, addr.Address(), value)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "write failed")
		return false, pathinfo.Wrap("state: write", addr.PathInfo().Path, err)
	}
	span.SetAttributes(attribute.Bool("changed", changed))
	span.SetStatus(codes.Ok, "")
	return changed, nil
}

// Enqueue schedules addr for the next flush.
func (e *Engine) Enqueue(addr *address.AbsoluteStateAddress) *updater.Pending {
	return e.queue.Enqueue(addr)
}

// Bind registers an observer. Its path joins the dependency graph so that
// changes to any ancestor reach it.
func (e *Engine) Bind(b updater.Binding) error {
	target := b.Target()
	inst, err := e.instance(target.StateName())
	if err != nil {
		return err
	}
	if err := inst.graph.AddPath(target.PathInfo().Path); err != nil {
		return err
	}
	e.queue.Bind(b)
	return nil
}

func (e *Engine) Unbind(b updater.Binding) bool {
	return e.queue.Unbind(b)
}

// Replace swaps the whole backing object of a state instance. Cached values
// of that instance are dropped and every bound address is enqueued. List
// elements keep their identities by position, so bindings to wildcard
// addresses stay live. The returned Pending is nil when nothing is bound.
func (e *Engine) Replace(stateName string, data map[string]any) (*updater.Pending, error) {
	inst, err := e.instance(stateName)
	if err != nil {
		return nil, err
	}
	if data == nil {
		data = map[string]any{}
	}
	inst.data = data
	stamp := e.queue.BumpVersion(stateName)
	dropped := e.cache.DeleteState(stateName)
	detached := e.lists.Detach(stateName)

	bound := e.queue.BoundAddresses(stateName)
	sort.Slice(bound, func(i, j int) bool { return bound[i].String() < bound[j].String() })
	var pending *updater.Pending
	for _, addr := range bound {
		pending = e.queue.Enqueue(addr)
	}
	e.logger.Debug("replaced state",
		"state", stateName,
		"version", stamp.Version,
		"cache_dropped", dropped,
		"lists_detached", detached,
		"bound", len(bound),
	)
	return pending, nil
}

// Binding is a named observer of one address.
type Binding struct {
	Name   string
	target *address.AbsoluteStateAddress
}

func NewBinding(name string, target *address.AbsoluteStateAddress) *Binding {
	return &Binding{Name: name, target: target}
}

func (b *Binding) Target() *address.AbsoluteStateAddress { return b.target }

func (b *Binding) Label() string { return b.Name }

func (b *Binding) String() string { return b.Name + " -> " + b.target.String() }

func walkFailure(err error) string {
	switch {
	case errors.Is(err, deps.ErrMaxDepth):
		return "max_depth"
	case errors.Is(err, deps.ErrMissingListIndex):
		return "missing_list_index"
	default:
		return "other"
	}
}
