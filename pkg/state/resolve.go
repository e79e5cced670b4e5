package state

import (
	"fmt"
	"reflect"

	"github.com/wcstack/statecore/pkg/address"
	"github.com/wcstack/statecore/pkg/cache"
	"github.com/wcstack/statecore/pkg/listindex"
	"github.com/wcstack/statecore/pkg/pathinfo"
)

// resolve reads sa in inst. Wildcard and getter paths go through the cache;
// plain data paths are read straight from the backing object.
func (e *Engine) resolve(inst *instance, sa *address.StateAddress) (any, error) {
	pi := sa.PathInfo()
	g := inst.getters[pi]
	if pi.WildcardCount == 0 && g == nil {
		return e.readRaw(inst, sa)
	}
	if pi.WildcardCount > 0 {
		if err := inst.graph.AddPath(pi.Path); err != nil {
			return nil, err
		}
	}

	abs := e.factory.Absolute(inst.name, sa)
	if entry, ok := e.cache.Get(abs); ok && !entry.Dirty {
		e.metrics.CacheHits.Inc()
		return entry.Value, nil
	}
	e.metrics.CacheMisses.Inc()

	var (
		value any
		err   error
	)
	if g != nil {
		value, err = e.runGetter(inst, sa, g)
	} else {
		value, err = e.readRaw(inst, sa)
	}
	if err != nil {
		return nil, err
	}
	e.cache.Set(abs, cache.Entry{Value: value})
	return value, nil
}

func (e *Engine) readRaw(inst *instance, sa *address.StateAddress) (any, error) {
	pi := sa.PathInfo()
	if pi.ParentPathInfo == nil {
		return inst.data[pi.Path], nil
	}
	parent := sa.Parent()
	if parent == nil {
		return nil, &pathinfo.PathError{Op: "state: read", Path: pi.Path, Err: ErrMissingParent}
	}
	pv, err := e.resolve(inst, parent)
	if err != nil {
		return nil, err
	}

	if pi.IsWildcardTerminal() {
		list, i, err := element(pv, sa)
		if err != nil {
			return nil, err
		}
		return list[i], nil
	}
	if pv == nil {
		return nil, nil
	}
	value, err := field(pv, pi.LastSegment)
	if err != nil {
		return nil, &pathinfo.PathError{Op: "state: read", Path: pi.Path, Err: err}
	}
	return value, nil
}

// element locates the list slot addressed by a wildcard-terminal sa.
func element(pv any, sa *address.StateAddress) ([]any, int, error) {
	path := sa.Path()
	li := sa.ListIndex()
	if li == nil {
		return nil, 0, &pathinfo.PathError{Op: "state: read", Path: path, Err: ErrMissingListIndex}
	}
	list, err := toList(pv)
	if err != nil {
		return nil, 0, &pathinfo.PathError{Op: "state: read", Path: path, Err: err}
	}
	i := li.Index()
	if i < 0 || i >= len(list) {
		return nil, 0, &pathinfo.PathError{
			Op:   "state: read",
			Path: path,
			Err:  fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(list)),
		}
	}
	return list, i, nil
}

func field(v any, key string) (any, error) {
	if m, ok := v.(map[string]any); ok {
		return m[key], nil
	}
	rv := reflect.ValueOf(v)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: %s", ErrNotObject, rv.Type())
		}
		item := rv.MapIndex(reflect.ValueOf(key).Convert(rv.Type().Key()))
		if !item.IsValid() {
			return nil, nil
		}
		return item.Interface(), nil
	case reflect.Struct:
		f := rv.FieldByName(key)
		if !f.IsValid() || !f.CanInterface() {
			return nil, nil
		}
		return f.Interface(), nil
	}
	return nil, fmt.Errorf("%w: %T", ErrNotObject, v)
}

// toList returns v as []any. Other slice types are copied, so they lose the
// reference identity that short-circuits reconciliation.
func toList(v any) ([]any, error) {
	switch list := v.(type) {
	case nil:
		return nil, nil
	case []any:
		return list, nil
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, fmt.Errorf("%w: %T", ErrNotList, v)
	}
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, nil
}

func (e *Engine) listValue(inst *instance, sa *address.StateAddress) ([]any, error) {
	v, err := e.resolve(inst, sa)
	if err != nil {
		return nil, err
	}
	list, err := toList(v)
	if err != nil {
		return nil, &pathinfo.PathError{Op: "state: list", Path: sa.Path(), Err: err}
	}
	if list == nil {
		list = []any{}
	}
	return list, nil
}

// listIndexes reconciles the list at sa against its last-seen value and
// persists the result immediately.
func (e *Engine) listIndexes(inst *instance, sa *address.StateAddress) ([]*listindex.ListIndex, error) {
	if err := inst.graph.AddList(sa.Path()); err != nil {
		return nil, err
	}
	value, err := e.listValue(inst, sa)
	if err != nil {
		return nil, err
	}
	abs := e.factory.Absolute(inst.name, sa)
	oldList, oldIndexes, _ := e.lists.Get(abs)
	diff, err := e.reconciler.Diff(sa.ListIndex(), oldList, value, oldIndexes)
	if err != nil {
		return nil, pathinfo.Wrap("state: list", sa.Path(), err)
	}
	e.lists.Set(abs, diff.NewList, diff.NewIndexes)
	e.commitList(abs, diff)
	return diff.NewIndexes, nil
}

// commitList runs once a reconciliation has been persisted. Addresses under
// deleted elements are dropped along with their cached values.
func (e *Engine) commitList(abs *address.AbsoluteStateAddress, diff *listindex.ListDiff) {
	adds := diff.Adds.Cardinality()
	changes := diff.Changes.Cardinality()
	deletes := diff.Deletes.Cardinality()
	if adds+changes+deletes == 0 {
		return
	}
	e.metrics.Reconciliations.WithLabelValues(listindex.IndexSetAdd.String()).Add(float64(adds))
	e.metrics.Reconciliations.WithLabelValues(listindex.IndexSetChange.String()).Add(float64(changes))
	e.metrics.Reconciliations.WithLabelValues(listindex.IndexSetDelete.String()).Add(float64(deletes))
	e.logger.Debug("reconciled list",
		"address", abs.String(),
		"adds", adds,
		"changes", changes,
		"deletes", deletes,
	)

	dropped := e.factory.Prune(diff.Select(listindex.IndexSetDelete))
	for _, d := range dropped {
		e.cache.Delete(d)
		e.lists.Delete(d)
	}
	e.metrics.Pruned.Add(float64(len(dropped)))
}

func (e *Engine) write(inst *instance, sa *address.StateAddress, value any) (bool, error) {
	pi := sa.PathInfo()
	if s := inst.setters[pi]; s != nil {
		if err := e.runSetter(inst, sa, s, value); err != nil {
			return false, err
		}
		return true, nil
	}
	if inst.getters[pi] != nil {
		return false, &pathinfo.PathError{Op: "state: write", Path: pi.Path, Err: ErrReadOnly}
	}
	if current, err := e.resolve(inst, sa); err == nil && sameValue(current, value) {
		return false, nil
	}
	if err := e.assign(inst, sa, value); err != nil {
		return false, err
	}

	abs := e.factory.Absolute(inst.name, sa)
	if pi.WildcardCount > 0 {
		e.cache.Set(abs, cache.Entry{Value: value})
	}
	if err := e.propagate(abs); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) assign(inst *instance, sa *address.StateAddress, value any) error {
	pi := sa.PathInfo()
	if pi.ParentPathInfo == nil {
		inst.data[pi.Path] = value
		return nil
	}
	parent := sa.Parent()
	if parent == nil {
		return &pathinfo.PathError{Op: "state: write", Path: pi.Path, Err: ErrMissingParent}
	}
	pv, err := e.resolve(inst, parent)
	if err != nil {
		return err
	}
	if pv == nil {
		return &pathinfo.PathError{Op: "state: write", Path: pi.Path, Err: fmt.Errorf("%w: %s", ErrMissingParent, parent.Path())}
	}

	if pi.IsWildcardTerminal() {
		if _, ok := pv.([]any); !ok {
			return &pathinfo.PathError{Op: "state: write", Path: pi.Path, Err: fmt.Errorf("%w: %T is not []any", ErrNotList, pv)}
		}
		list, i, err := element(pv, sa)
		if err != nil {
			return err
		}
		list[i] = value
		return nil
	}

	if m, ok := pv.(map[string]any); ok {
		m[pi.LastSegment] = value
		return nil
	}
	rv := reflect.ValueOf(pv)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		key := reflect.ValueOf(pi.LastSegment).Convert(rv.Type().Key())
		val := reflect.ValueOf(value)
		if !val.IsValid() || !val.Type().AssignableTo(rv.Type().Elem()) {
			return &pathinfo.PathError{Op: "state: write", Path: pi.Path, Err: fmt.Errorf("%w: cannot store %T in %s", ErrNotObject, value, rv.Type())}
		}
		rv.SetMapIndex(key, val)
		return nil
	}
	return &pathinfo.PathError{Op: "state: write", Path: pi.Path, Err: fmt.Errorf("%w: %T", ErrNotObject, pv)}
}

// propagate walks everything that depends on abs, invalidating cached values
// and enqueueing each visited address.
func (e *Engine) propagate(abs *address.AbsoluteStateAddress) error {
	e.metrics.Walks.Inc()
	affected, err := e.walker.Walk(abs, func(a *address.AbsoluteStateAddress) error {
		e.metrics.Visited.Inc()
		if a != abs && e.cache.Invalidate(a) {
			e.metrics.Invalidations.Inc()
		}
		e.queue.Enqueue(a)
		return nil
	})
	if err != nil {
		e.metrics.WalkErrors.WithLabelValues(walkFailure(err)).Inc()
		return err
	}
	e.logger.Debug("walked dependencies", "start", abs.String(), "affected", len(affected))
	return nil
}

// sameValue reports whether a write of b over a can be skipped. Only scalar
// values compare equal; maps, slices and pointers may have changed in place.
func sameValue(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	ra, rb := reflect.ValueOf(a), reflect.ValueOf(b)
	if ra.Type() != rb.Type() || !ra.Comparable() {
		return false
	}
	switch ra.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.UnsafePointer, reflect.Interface:
		return false
	}
	return a == b
}
