package address

import (
	"github.com/wcstack/statecore/pkg/listindex"
	"github.com/wcstack/statecore/pkg/pathinfo"
)

type absoluteKey struct {
	stateName string
	address   *StateAddress
}

// Factory canonicalizes addresses. Lookups go ListIndex -> PathInfo ->
// address, with a separate table for addresses outside any loop.
type Factory struct {
	byIndex  map[*listindex.ListIndex]map[*pathinfo.PathInfo]*StateAddress
	noIndex  map[*pathinfo.PathInfo]*StateAddress
	absolute map[absoluteKey]*AbsoluteStateAddress
}

func NewFactory() *Factory {
	return &Factory{
		byIndex:  map[*listindex.ListIndex]map[*pathinfo.PathInfo]*StateAddress{},
		noIndex:  map[*pathinfo.PathInfo]*StateAddress{},
		absolute: map[absoluteKey]*AbsoluteStateAddress{},
	}
}

// Get returns the canonical address for (pi, li), creating it on first use.
func (f *Factory) Get(pi *pathinfo.PathInfo, li *listindex.ListIndex) *StateAddress {
	if li == nil {
		if addr, ok := f.noIndex[pi]; ok {
			return addr
		}
		addr := &StateAddress{factory: f, pathInfo: pi}
		f.noIndex[pi] = addr
		return addr
	}

	byPath, ok := f.byIndex[li]
	if !ok {
		byPath = map[*pathinfo.PathInfo]*StateAddress{}
		f.byIndex[li] = byPath
	}
	if addr, ok := byPath[pi]; ok {
		return addr
	}
	addr := &StateAddress{factory: f, pathInfo: pi, listIndex: li}
	byPath[pi] = addr
	return addr
}

// Absolute returns the canonical absolute address of addr in stateName.
func (f *Factory) Absolute(stateName string, addr *StateAddress) *AbsoluteStateAddress {
	key := absoluteKey{stateName: stateName, address: addr}
	if abs, ok := f.absolute[key]; ok {
		return abs
	}
	abs := &AbsoluteStateAddress{stateName: stateName, address: addr}
	f.absolute[key] = abs
	return abs
}

// GetAbsolute is Get followed by Absolute.
func (f *Factory) GetAbsolute(stateName string, pi *pathinfo.PathInfo, li *listindex.ListIndex) *AbsoluteStateAddress {
	return f.Absolute(stateName, f.Get(pi, li))
}

// Prune forgets every address whose ListIndex chain passes through one of
// deleted and returns the absolute addresses it dropped. Addresses already
// handed out stay valid but are no longer canonical.
func (f *Factory) Prune(deleted []*listindex.ListIndex) []*AbsoluteStateAddress {
	if len(deleted) == 0 {
		return nil
	}
	gone := map[*listindex.ListIndex]bool{}
	for li := range f.byIndex {
		for _, d := range deleted {
			if li.Contains(d) {
				gone[li] = true
				break
			}
		}
	}

	var dropped []*AbsoluteStateAddress
	for key, abs := range f.absolute {
		if li := key.address.listIndex; li != nil && gone[li] {
			dropped = append(dropped, abs)
			delete(f.absolute, key)
		}
	}
	for li := range gone {
		delete(f.byIndex, li)
	}
	return dropped
}

// Len is the number of canonical state addresses currently held.
func (f *Factory) Len() int {
	n := len(f.noIndex)
	for _, byPath := range f.byIndex {
		n += len(byPath)
	}
	return n
}
