// Package listindex provides stable identities for list element positions
// across nested loops.
//
// A ListIndex says "the Nth element under this loop nesting". Its index moves
// when the owning list is reordered, but the identity survives, which is what
// lets addresses and cached values follow an element around.
package listindex

import (
	"fmt"
	"strings"
	"weak"
)

// Arena owns the version counter shared by every ListIndex it creates. Tests
// get isolation by creating their own.
type Arena struct {
	version uint64
	nextID  uint64
}

func NewArena() *Arena {
	return &Arena{}
}

func (a *Arena) nextVersion() uint64 {
	a.version++
	return a.version
}

// Version is the latest version handed out by the arena.
func (a *Arena) Version() uint64 {
	return a.version
}

type ListIndex struct {
	arena    *Arena
	id       uint64
	parent   *ListIndex
	position int
	index    int
	version  uint64

	indexes     []int
	listIndexes []weak.Pointer[ListIndex]
}

// New creates a ListIndex under parent, which is nil for a top-level list.
func (a *Arena) New(parent *ListIndex, index int) *ListIndex {
	a.nextID++
	li := &ListIndex{
		arena:   a,
		id:      a.nextID,
		parent:  parent,
		index:   index,
		version: a.version,
	}
	if parent != nil {
		li.position = parent.position + 1
	}
	return li
}

func (li *ListIndex) ID() uint64 { return li.id }

func (li *ListIndex) Parent() *ListIndex { return li.parent }

// Position is the loop depth, 0 for a top-level list.
func (li *ListIndex) Position() int { return li.position }

// Length is the number of loop levels from the root to li inclusive.
func (li *ListIndex) Length() int { return li.position + 1 }

func (li *ListIndex) Index() int { return li.index }

func (li *ListIndex) Version() uint64 { return li.version }

// SetIndex moves li to a new position within its list.
func (li *ListIndex) SetIndex(index int) {
	li.index = index
	li.version = li.arena.nextVersion()
	if li.indexes != nil {
		li.indexes[li.position] = index
	}
}

// Dirty reports whether an ancestor moved after li last built its
// coordinate vector.
func (li *ListIndex) Dirty() bool {
	if li.parent == nil {
		return false
	}
	return li.parent.Dirty() || li.parent.version > li.version
}

// Indexes is the coordinate vector from the root list down to li. The slice
// is owned by li and must not be modified.
func (li *ListIndex) Indexes() []int {
	if li.parent == nil {
		if li.indexes == nil {
			li.indexes = []int{li.index}
		} else if li.indexes[0] != li.index {
			li.indexes[0] = li.index
		}
		return li.indexes
	}
	if li.indexes == nil || li.Dirty() {
		parentIndexes := li.parent.Indexes()
		indexes := make([]int, 0, len(parentIndexes)+1)
		indexes = append(indexes, parentIndexes...)
		li.indexes = append(indexes, li.index)
		if li.parent.version > li.version {
			li.version = li.parent.version
		}
	}
	return li.indexes
}

// ListIndexes is the chain of ancestors from the root down to li. Entries are
// weak: the chain is a lookup, it does not keep ancestors alive.
func (li *ListIndex) ListIndexes() []weak.Pointer[ListIndex] {
	if li.listIndexes == nil {
		var chain []weak.Pointer[ListIndex]
		if li.parent != nil {
			parentChain := li.parent.ListIndexes()
			chain = make([]weak.Pointer[ListIndex], 0, len(parentChain)+1)
			chain = append(chain, parentChain...)
		}
		li.listIndexes = append(chain, weak.Make(li))
	}
	return li.listIndexes
}

// At returns the ancestor-or-self at absolute position pos. Negative positions
// count back from li, so At(-1) is li itself. It returns nil when pos is out of
// range or the ancestor has been reclaimed.
func (li *ListIndex) At(pos int) *ListIndex {
	chain := li.ListIndexes()
	if pos < 0 {
		pos = len(chain) + pos
	}
	if pos < 0 || pos >= len(chain) {
		return nil
	}
	return chain[pos].Value()
}

// Contains reports whether other is li or one of its ancestors.
func (li *ListIndex) Contains(other *ListIndex) bool {
	for cur := li; cur != nil; cur = cur.parent {
		if cur == other {
			return true
		}
	}
	return false
}

func (li *ListIndex) String() string {
	if li == nil {
		return "<nil>"
	}
	parts := make([]string, 0, li.Length())
	for _, index := range li.Indexes() {
		parts = append(parts, fmt.Sprint(index))
	}
	return fmt.Sprintf("#%d[%s]", li.id, strings.Join(parts, ","))
}
