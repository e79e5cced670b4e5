package state

import (
	"fmt"
	"sort"

	"github.com/wcstack/statecore/pkg/address"
	"github.com/wcstack/statecore/pkg/listindex"
	"github.com/wcstack/statecore/pkg/pathinfo"
)

// AddressOf resolves the wildcards of path with explicit indexes, outermost
// first.
func (e *Engine) AddressOf(stateName, path string, indexes ...int) (*address.AbsoluteStateAddress, error) {
	inst, err := e.instance(stateName)
	if err != nil {
		return nil, err
	}
	pi, err := pathinfo.Parse(path)
	if err != nil {
		return nil, err
	}
	switch {
	case len(indexes) < pi.WildcardCount:
		return nil, &pathinfo.PathError{
			Op:   "state: address",
			Path: path,
			Err:  fmt.Errorf("%w: want %d, got %d", ErrInsufficientIndexes, pi.WildcardCount, len(indexes)),
		}
	case len(indexes) > pi.WildcardCount:
		return nil, &pathinfo.PathError{
			Op:   "state: address",
			Path: path,
			Err:  fmt.Errorf("%w: want %d, got %d", ErrTooManyIndexes, pi.WildcardCount, len(indexes)),
		}
	}

	var li *listindex.ListIndex
	for level, want := range indexes {
		listAddr := e.factory.Get(pi.WildcardParentPathInfos[level], li)
		available, err := e.listIndexes(inst, listAddr)
		if err != nil {
			return nil, pathinfo.Wrap("state: address", path, err)
		}
		if want < 0 || want >= len(available) {
			return nil, &pathinfo.PathError{
				Op:   "state: address",
				Path: path,
				Err:  fmt.Errorf("%w: %d of %d in %s", ErrIndexOutOfRange, want, len(available), listAddr),
			}
		}
		li = available[want]
	}
	return e.factory.GetAbsolute(stateName, pi, li), nil
}

// Get is AddressOf followed by Resolve.
func (e *Engine) Get(stateName, path string, indexes ...int) (any, error) {
	addr, err := e.AddressOf(stateName, path, indexes...)
	if err != nil {
		return nil, err
	}
	return e.Resolve(addr)
}

// Set is AddressOf followed by Write.
func (e *Engine) Set(stateName, path string, value any, indexes ...int) (bool, error) {
	addr, err := e.AddressOf(stateName, path, indexes...)
	if err != nil {
		return false, err
	}
	return e.Write(addr, value)
}

// GetAll returns the values path matches. Without indexes every combination
// of list elements is returned in list order; with one index per wildcard a
// single value is returned. Anything in between is rejected.
func (e *Engine) GetAll(stateName, path string, indexes []int) ([]any, error) {
	inst, err := e.instance(stateName)
	if err != nil {
		return nil, err
	}
	pi, err := pathinfo.Parse(path)
	if err != nil {
		return nil, err
	}

	switch {
	case len(indexes) == 0:
		addrs, err := e.expand(inst, pi, nil, 0)
		if err != nil {
			return nil, pathinfo.Wrap("state: get all", path, err)
		}
		values, err := e.resolveAll(inst, addrs)
		if err != nil {
			return nil, pathinfo.Wrap("state: get all", path, err)
		}
		return values, nil
	case len(indexes) == pi.WildcardCount:
		value, err := e.Get(stateName, path, indexes...)
		if err != nil {
			return nil, err
		}
		return []any{value}, nil
	default:
		return nil, &pathinfo.PathError{
			Op:   "state: get all",
			Path: path,
			Err:  fmt.Errorf("%w: %d of %d indexes", ErrPartialWildcard, len(indexes), pi.WildcardCount),
		}
	}
}

// Addresses returns every concrete address path matches, in list order.
func (e *Engine) Addresses(stateName, path string) ([]*address.AbsoluteStateAddress, error) {
	inst, err := e.instance(stateName)
	if err != nil {
		return nil, err
	}
	pi, err := pathinfo.Parse(path)
	if err != nil {
		return nil, err
	}
	addrs, err := e.expand(inst, pi, nil, 0)
	if err != nil {
		return nil, pathinfo.Wrap("state: addresses", path, err)
	}
	out := make([]*address.AbsoluteStateAddress, 0, len(addrs))
	for _, sa := range addrs {
		out = append(out, e.factory.Absolute(stateName, sa))
	}
	return out, nil
}

// ListIndexes returns the live element indexes of the list at addr.
func (e *Engine) ListIndexes(addr *address.AbsoluteStateAddress) ([]*listindex.ListIndex, error) {
	inst, err := e.instance(addr.StateName())
	if err != nil {
		return nil, err
	}
	indexes, err := e.listIndexes(inst, addr.Address())
	if err != nil {
		return nil, pathinfo.Wrap("state: list indexes", addr.PathInfo().Path, err)
	}
	return indexes, nil
}

// expand enumerates the addresses of pi below base, whose list index covers
// the first `from` wildcards.
func (e *Engine) expand(inst *instance, pi *pathinfo.PathInfo, base *listindex.ListIndex, from int) ([]*address.StateAddress, error) {
	current := []*listindex.ListIndex{base}
	for level := from; level < pi.WildcardCount; level++ {
		listInfo := pi.WildcardParentPathInfos[level]
		var next []*listindex.ListIndex
		for _, parent := range current {
			children, err := e.listIndexes(inst, e.factory.Get(listInfo, parent))
			if err != nil {
				return nil, err
			}
			next = append(next, children...)
		}
		current = next
	}
	out := make([]*address.StateAddress, 0, len(current))
	for _, li := range current {
		out = append(out, e.factory.Get(pi, li))
	}
	return out, nil
}

func (e *Engine) resolveAll(inst *instance, addrs []*address.StateAddress) ([]any, error) {
	values := make([]any, 0, len(addrs))
	for _, sa := range addrs {
		v, err := e.resolve(inst, sa)
		if err != nil {
			return nil, err
		}
		values = append(values, v)
	}
	return values, nil
}

// Affected returns every address a change at addr would reach, in visit
// order, without invalidating or enqueueing anything.
func (e *Engine) Affected(addr *address.AbsoluteStateAddress) ([]*address.AbsoluteStateAddress, error) {
	if _, err := e.instance(addr.StateName()); err != nil {
		return nil, err
	}
	return e.walker.Walk(addr, func(*address.AbsoluteStateAddress) error { return nil })
}

// Prime resolves every getter at every address it currently has, so the
// dependencies getters discover while reading are known before the first
// write.
func (e *Engine) Prime() error {
	for _, name := range e.States() {
		inst := e.states[name]
		paths := make([]string, 0, len(inst.getters))
		for pi := range inst.getters {
			paths = append(paths, pi.Path)
		}
		sort.Strings(paths)
		for _, path := range paths {
			addrs, err := e.Addresses(name, path)
			if err != nil {
				return err
			}
			for _, addr := range addrs {
				if _, err := e.Resolve(addr); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
