package deps

import (
	"github.com/wcstack/statecore/pkg/address"
	"github.com/wcstack/statecore/pkg/listindex"
)

type listSnapshot struct {
	list    []any
	indexes []*listindex.ListIndex
}

// ListTable remembers, per list address, the list value last reconciled and
// the index set that tracks it. Diffs are always taken against this table.
// Stored lists are the reconciler's private copies.
type ListTable struct {
	entries map[*address.AbsoluteStateAddress]listSnapshot
}

func NewListTable() *ListTable {
	return &ListTable{entries: map[*address.AbsoluteStateAddress]listSnapshot{}}
}

func (t *ListTable) Get(addr *address.AbsoluteStateAddress) ([]any, []*listindex.ListIndex, bool) {
	snap, ok := t.entries[addr]
	return snap.list, snap.indexes, ok
}

func (t *ListTable) Set(addr *address.AbsoluteStateAddress, list []any, indexes []*listindex.ListIndex) {
	t.entries[addr] = listSnapshot{list: list, indexes: indexes}
}

func (t *ListTable) Delete(addr *address.AbsoluteStateAddress) {
	delete(t.entries, addr)
}

// Detach forgets the last-seen lists of stateName but keeps their index sets,
// so the next reconciliation carries identities over by position.
func (t *ListTable) Detach(stateName string) int {
	n := 0
	for addr, snap := range t.entries {
		if addr.StateName() == stateName {
			t.entries[addr] = listSnapshot{indexes: snap.indexes}
			n++
		}
	}
	return n
}

func (t *ListTable) Len() int { return len(t.entries) }
