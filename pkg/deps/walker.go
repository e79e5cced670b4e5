package deps

import (
	"errors"
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/wcstack/statecore/pkg/address"
	"github.com/wcstack/statecore/pkg/listindex"
	"github.com/wcstack/statecore/pkg/pathinfo"
)

var (
	ErrMaxDepth         = errors.New("maximum dependency depth exceeded")
	ErrMissingListIndex = errors.New("cannot expand dynamic dependency with wildcard for non-list address")
	ErrNotList          = errors.New("value is not a list")
	ErrUnknownState     = errors.New("unknown state instance")
)

// DefaultMaxDepth bounds a walk so an accidental cycle terminates.
const DefaultMaxDepth = 1000

// Source is what the walker needs from one state instance.
type Source interface {
	Graph() *Graph
	// ListValue reads the live list at addr without tracking the read.
	ListValue(addr *address.StateAddress) ([]any, error)
}

// SourceFunc looks up the Source of a state instance by name.
type SourceFunc func(stateName string) (Source, error)

type Walker struct {
	Factory    *address.Factory
	Reconciler *listindex.Reconciler
	Lists      *ListTable
	Sources    SourceFunc
	MaxDepth   int

	// OnCommit, when set, sees every list reconciliation persisted at the end
	// of a walk.
	OnCommit func(addr *address.AbsoluteStateAddress, diff *listindex.ListDiff)
}

// VisitFunc is called once for every address a walk reaches, the start
// address included.
type VisitFunc func(addr *address.AbsoluteStateAddress) error

type walk struct {
	*Walker
	visit        VisitFunc
	visited      mapset.Set[*address.AbsoluteStateAddress]
	order        []*address.AbsoluteStateAddress
	pending      map[*address.AbsoluteStateAddress]*listindex.ListDiff
	pendingOrder []*address.AbsoluteStateAddress
}

// Walk visits start and everything that transitively depends on it, and
// returns the dependents in visiting order (start excluded). Reconciled lists
// are persisted to Lists only once the whole walk has succeeded.
func (w *Walker) Walk(start *address.AbsoluteStateAddress, visit VisitFunc) ([]*address.AbsoluteStateAddress, error) {
	wk := &walk{
		Walker:  w,
		visit:   visit,
		visited: mapset.NewThreadUnsafeSet[*address.AbsoluteStateAddress](),
		pending: map[*address.AbsoluteStateAddress]*listindex.ListDiff{},
	}
	if err := wk.step(start, 0); err != nil {
		return nil, err
	}
	wk.commit()
	return wk.order[1:], nil
}

func (w *Walker) maxDepth() int {
	if w.MaxDepth <= 0 {
		return DefaultMaxDepth
	}
	return w.MaxDepth
}

func (wk *walk) step(cur *address.AbsoluteStateAddress, depth int) error {
	if wk.visited.Contains(cur) {
		return nil
	}
	if depth > wk.maxDepth() {
		return &pathinfo.PathError{Op: "deps: walk", Path: cur.PathInfo().Path, Err: ErrMaxDepth}
	}
	wk.visited.Add(cur)
	wk.order = append(wk.order, cur)
	if wk.visit != nil {
		if err := wk.visit(cur); err != nil {
			return err
		}
	}

	src, err := wk.Sources(cur.StateName())
	if err != nil {
		return err
	}
	graph := src.Graph()
	path := cur.PathInfo().Path

	for _, target := range graph.Static(path) {
		next, err := wk.staticTargets(cur, src, target)
		if err != nil {
			return err
		}
		for _, addr := range next {
			if err := wk.step(addr, depth+1); err != nil {
				return err
			}
		}
	}
	for _, target := range graph.Dynamic(path) {
		next, err := wk.dynamicTargets(cur, src, target)
		if err != nil {
			return err
		}
		for _, addr := range next {
			if err := wk.step(addr, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

func (wk *walk) staticTargets(cur *address.AbsoluteStateAddress, src Source, target string) ([]*address.AbsoluteStateAddress, error) {
	targetPath, targetState := pathinfo.SplitTarget(target)
	tpi, err := pathinfo.Parse(targetPath)
	if err != nil {
		return nil, err
	}
	if targetState != "" && targetState != cur.StateName() {
		return wk.crossState(targetState, tpi)
	}

	state := cur.StateName()
	if src.Graph().IsList(cur.PathInfo().Path) && tpi.IsWildcardTerminal() {
		indexes, err := wk.expand(state, src, cur.Address())
		if err != nil {
			return nil, err
		}
		out := make([]*address.AbsoluteStateAddress, 0, len(indexes))
		for _, li := range indexes {
			out = append(out, wk.Factory.GetAbsolute(state, tpi, li))
		}
		return out, nil
	}

	li := cur.ListIndex()
	if tpi.WildcardCount == 0 {
		li = nil
	} else {
		if li == nil || li.Length() < tpi.WildcardCount {
			return nil, &pathinfo.PathError{Op: "deps: walk", Path: tpi.Path, Err: ErrMissingListIndex}
		}
		li = li.At(tpi.WildcardCount - 1)
	}
	return []*address.AbsoluteStateAddress{wk.Factory.GetAbsolute(state, tpi, li)}, nil
}

func (wk *walk) dynamicTargets(cur *address.AbsoluteStateAddress, src Source, target string) ([]*address.AbsoluteStateAddress, error) {
	targetPath, targetState := pathinfo.SplitTarget(target)
	tpi, err := pathinfo.Parse(targetPath)
	if err != nil {
		return nil, err
	}
	if targetState != "" && targetState != cur.StateName() {
		return wk.crossState(targetState, tpi)
	}

	state := cur.StateName()
	shared := cur.PathInfo().SharedWildcardDepth(tpi)
	li := cur.ListIndex()

	switch {
	case tpi.WildcardCount > shared:
		var base *listindex.ListIndex
		if shared > 0 {
			if li == nil || li.Length() < shared {
				return nil, &pathinfo.PathError{Op: "deps: walk", Path: cur.PathInfo().Path, Err: ErrMissingListIndex}
			}
			base = li.At(shared - 1)
		}
		return wk.fanOut(state, src, tpi, base, shared)
	case shared > 0:
		if li == nil || li.Length() < shared {
			return nil, &pathinfo.PathError{Op: "deps: walk", Path: cur.PathInfo().Path, Err: ErrMissingListIndex}
		}
		return []*address.AbsoluteStateAddress{wk.Factory.GetAbsolute(state, tpi, li.At(shared-1))}, nil
	default:
		return []*address.AbsoluteStateAddress{wk.Factory.GetAbsolute(state, tpi, nil)}, nil
	}
}

// crossState addresses a target in another state instance. No loop context
// is shared across instances, so wildcards fan out from the root.
func (wk *walk) crossState(stateName string, tpi *pathinfo.PathInfo) ([]*address.AbsoluteStateAddress, error) {
	src, err := wk.Sources(stateName)
	if err != nil {
		return nil, err
	}
	if tpi.WildcardCount == 0 {
		return []*address.AbsoluteStateAddress{wk.Factory.GetAbsolute(stateName, tpi, nil)}, nil
	}
	return wk.fanOut(stateName, src, tpi, nil, 0)
}

// fanOut expands tpi's wildcards from level `from` down, one list per level,
// starting under base.
func (wk *walk) fanOut(state string, src Source, tpi *pathinfo.PathInfo, base *listindex.ListIndex, from int) ([]*address.AbsoluteStateAddress, error) {
	current := []*listindex.ListIndex{base}
	for level := from; level < tpi.WildcardCount; level++ {
		listInfo := tpi.WildcardParentPathInfos[level]
		var next []*listindex.ListIndex
		for _, parent := range current {
			children, err := wk.expand(state, src, wk.Factory.Get(listInfo, parent))
			if err != nil {
				return nil, err
			}
			next = append(next, children...)
		}
		current = next
	}
	out := make([]*address.AbsoluteStateAddress, 0, len(current))
	for _, li := range current {
		out = append(out, wk.Factory.GetAbsolute(state, tpi, li))
	}
	return out, nil
}

// expand reconciles the live list at listAddr against its last-seen value and
// returns the live element indexes. The result is held back until commit.
func (wk *walk) expand(state string, src Source, listAddr *address.StateAddress) ([]*listindex.ListIndex, error) {
	abs := wk.Factory.Absolute(state, listAddr)
	if diff, ok := wk.pending[abs]; ok {
		return diff.NewIndexes, nil
	}
	value, err := src.ListValue(listAddr)
	if err != nil {
		return nil, err
	}
	oldList, oldIndexes, _ := wk.Lists.Get(abs)
	diff, err := wk.Reconciler.Diff(listAddr.ListIndex(), oldList, value, oldIndexes)
	if err != nil {
		return nil, pathinfo.Wrap("deps: walk", listAddr.Path(), err)
	}
	wk.pending[abs] = diff
	wk.pendingOrder = append(wk.pendingOrder, abs)
	return diff.NewIndexes, nil
}

func (wk *walk) commit() {
	for _, abs := range wk.pendingOrder {
		diff := wk.pending[abs]
		wk.Lists.Set(abs, diff.NewList, diff.NewIndexes)
		if wk.OnCommit != nil {
			wk.OnCommit(abs, diff)
		}
	}
}

// Lookup returns a SourceFunc over a fixed map of sources.
func Lookup(sources map[string]Source) SourceFunc {
	return func(stateName string) (Source, error) {
		src, ok := sources[stateName]
		if !ok {
			return nil, fmt.Errorf("deps: %w: %q", ErrUnknownState, stateName)
		}
		return src, nil
	}
}
