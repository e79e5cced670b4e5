package listindex

import (
	"errors"
	"fmt"
	"reflect"
	"unsafe"

	mapset "github.com/deckarep/golang-set/v2"
)

var ErrIndexSetMismatch = errors.New("listindex: list-index set does not match the list it tracks")

// IndexSet selects one of the index collections of a ListDiff.
type IndexSet uint8

const (
	IndexSetOld IndexSet = iota
	IndexSetNew
	IndexSetAdd
	IndexSetChange
	IndexSetDelete
)

func (s IndexSet) String() string {
	switch s {
	case IndexSetOld:
		return "old"
	case IndexSetNew:
		return "new"
	case IndexSetAdd:
		return "add"
	case IndexSetChange:
		return "change"
	case IndexSetDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// ListDiff is the outcome of reconciling one list transition.
type ListDiff struct {
	Parent     *ListIndex
	OldList    []any
	NewList    []any
	OldIndexes []*ListIndex
	NewIndexes []*ListIndex

	Adds    mapset.Set[*ListIndex]
	Changes mapset.Set[*ListIndex]
	Deletes mapset.Set[*ListIndex]
}

// Select returns the requested indexes in list order: new-list order for
// new, add and change, old-list order for old and delete.
func (d *ListDiff) Select(set IndexSet) []*ListIndex {
	switch set {
	case IndexSetOld:
		return d.OldIndexes
	case IndexSetNew:
		return d.NewIndexes
	case IndexSetAdd:
		return filterIndexes(d.NewIndexes, d.Adds)
	case IndexSetChange:
		return filterIndexes(d.NewIndexes, d.Changes)
	case IndexSetDelete:
		return filterIndexes(d.OldIndexes, d.Deletes)
	default:
		panic(fmt.Sprintf("listindex: unknown index set %d", set))
	}
}

func filterIndexes(indexes []*ListIndex, set mapset.Set[*ListIndex]) []*ListIndex {
	if set.Cardinality() == 0 {
		return nil
	}
	out := make([]*ListIndex, 0, set.Cardinality())
	for _, li := range indexes {
		if set.Contains(li) {
			out = append(out, li)
		}
	}
	return out
}

// sliceKey identifies a slice by its backing array and length, the closest Go
// has to array reference identity.
type sliceKey[T any] struct {
	data *T
	len  int
}

func keyOf[T any](s []T) sliceKey[T] {
	if s == nil {
		return sliceKey[T]{}
	}
	return sliceKey[T]{data: unsafe.SliceData(s), len: len(s)}
}

type memoKey struct {
	parent   *ListIndex
	old, new sliceKey[any]
	indexes  sliceKey[*ListIndex]
}

// Reconciler diffs list transitions and memoizes each result by the exact
// (parent, old list, old index set, new list) tuple.
type Reconciler struct {
	arena *Arena
	limit int
	memo  map[memoKey]*ListDiff
}

const DefaultMemoLimit = 4096

func NewReconciler(arena *Arena, memoLimit int) *Reconciler {
	if memoLimit <= 0 {
		memoLimit = DefaultMemoLimit
	}
	return &Reconciler{
		arena: arena,
		limit: memoLimit,
		memo:  map[memoKey]*ListDiff{},
	}
}

func (r *Reconciler) Arena() *Arena { return r.arena }

// Diff reconciles oldIndexes, which track oldList, against newList. oldList is
// nil the first time a list is seen. When oldList is nil but oldIndexes is
// not, the indexes are carried over by position.
//
// The returned NewList is a private copy of newList, so later in-place edits
// of the caller's slice cannot alter what the next Diff compares against.
func (r *Reconciler) Diff(parent *ListIndex, oldList, newList []any, oldIndexes []*ListIndex) (*ListDiff, error) {
	if oldList != nil && len(oldIndexes) != len(oldList) {
		return nil, fmt.Errorf("%w: %d indexes for %d elements", ErrIndexSetMismatch, len(oldIndexes), len(oldList))
	}
	key := memoKey{
		parent:  parent,
		old:     keyOf(oldList),
		new:     keyOf(newList),
		indexes: keyOf(oldIndexes),
	}
	if diff, ok := r.memo[key]; ok && sameElements(diff.NewList, newList) {
		diff.restamp()
		return diff, nil
	}

	var diff *ListDiff
	if oldList == nil && oldIndexes != nil {
		diff = r.realign(parent, newList, oldIndexes)
	} else {
		diff = r.reconcile(parent, oldList, newList, oldIndexes)
	}
	if len(r.memo) >= r.limit {
		clear(r.memo)
	}
	r.memo[key] = diff
	return diff, nil
}

// restamp moves every index back to its slot in NewIndexes. Other diffs may
// have shared these indexes since this one was computed.
func (d *ListDiff) restamp() {
	for pos, li := range d.NewIndexes {
		if li.Index() != pos {
			li.SetIndex(pos)
		}
	}
}

func newDiff(parent *ListIndex, oldList, newList []any, oldIndexes []*ListIndex) *ListDiff {
	return &ListDiff{
		Parent:     parent,
		OldList:    oldList,
		NewList:    append(make([]any, 0, len(newList)), newList...),
		OldIndexes: oldIndexes,
		Adds:       mapset.NewThreadUnsafeSet[*ListIndex](),
		Changes:    mapset.NewThreadUnsafeSet[*ListIndex](),
		Deletes:    mapset.NewThreadUnsafeSet[*ListIndex](),
	}
}

func (r *Reconciler) reconcile(parent *ListIndex, oldList, newList []any, oldIndexes []*ListIndex) *ListDiff {
	diff := newDiff(parent, oldList, newList, oldIndexes)

	if len(newList) == 0 {
		diff.NewIndexes = []*ListIndex{}
		for _, li := range oldIndexes {
			diff.Deletes.Add(li)
		}
		return diff
	}

	if oldList != nil && sameElements(oldList, newList) {
		diff.NewIndexes = oldIndexes
		for pos, li := range oldIndexes {
			if li.Index() != pos {
				li.SetIndex(pos)
				diff.Changes.Add(li)
			}
		}
		return diff
	}

	queues := make(map[any][]int, len(oldList))
	for pos, value := range oldList {
		k := elementKey(value)
		queues[k] = append(queues[k], pos)
	}

	diff.NewIndexes = make([]*ListIndex, len(newList))
	matched := make([]bool, len(oldIndexes))
	for pos, value := range newList {
		k := elementKey(value)
		queue := queues[k]
		if len(queue) == 0 {
			li := r.arena.New(parent, pos)
			diff.NewIndexes[pos] = li
			diff.Adds.Add(li)
			continue
		}
		oldPos := queue[0]
		queues[k] = queue[1:]
		matched[oldPos] = true
		diff.NewIndexes[pos] = oldIndexes[oldPos]
	}

	// Re-stamp once every slot has been matched.
	for pos, li := range diff.NewIndexes {
		if diff.Adds.Contains(li) {
			continue
		}
		if li.Index() != pos {
			li.SetIndex(pos)
			diff.Changes.Add(li)
		}
	}
	for oldPos, li := range oldIndexes {
		if !matched[oldPos] {
			diff.Deletes.Add(li)
		}
	}
	return diff
}

// realign keeps the index at each position that still exists, adds indexes
// for new trailing slots and deletes the rest.
func (r *Reconciler) realign(parent *ListIndex, newList []any, oldIndexes []*ListIndex) *ListDiff {
	diff := newDiff(parent, nil, newList, oldIndexes)
	diff.NewIndexes = make([]*ListIndex, len(newList))
	for pos := range newList {
		if pos >= len(oldIndexes) {
			li := r.arena.New(parent, pos)
			diff.NewIndexes[pos] = li
			diff.Adds.Add(li)
			continue
		}
		li := oldIndexes[pos]
		if li.Index() != pos {
			li.SetIndex(pos)
			diff.Changes.Add(li)
		}
		diff.NewIndexes[pos] = li
	}
	for _, li := range oldIndexes[min(len(newList), len(oldIndexes)):] {
		diff.Deletes.Add(li)
	}
	return diff
}

// sameElements reports whether a and b hold the same elements, by element
// identity, in the same order.
func sameElements(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if elementKey(a[i]) != elementKey(b[i]) {
			return false
		}
	}
	return true
}

type refKey struct {
	kind reflect.Kind
	ptr  uintptr
	len  int
}

// elementKey maps a list element to a hashable identity: the value itself
// when comparable, the backing reference for maps, slices and funcs. Structs
// and arrays whose interface fields hold uncomparable values fall back to
// their formatted contents.
func elementKey(value any) any {
	if value == nil {
		return nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Map, reflect.Func, reflect.Chan:
		return refKey{kind: rv.Kind(), ptr: rv.Pointer()}
	case reflect.Slice:
		return refKey{kind: rv.Kind(), ptr: rv.Pointer(), len: rv.Len()}
	}
	if rv.Comparable() {
		return value
	}
	return fmt.Sprintf("%T:%#v", value, value)
}
