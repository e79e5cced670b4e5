// Package address gives every (path, list position) pair a single canonical
// identity, so addresses can be compared by pointer and used as map keys.
package address

import (
	"fmt"

	"github.com/wcstack/statecore/pkg/listindex"
	"github.com/wcstack/statecore/pkg/pathinfo"
)

// StateAddress is "this path at this list position". Obtain one from a
// Factory; two addresses are equal iff they are the same pointer.
type StateAddress struct {
	factory   *Factory
	pathInfo  *pathinfo.PathInfo
	listIndex *listindex.ListIndex

	parent         *StateAddress
	parentResolved bool
}

func (a *StateAddress) PathInfo() *pathinfo.PathInfo { return a.pathInfo }

func (a *StateAddress) ListIndex() *listindex.ListIndex { return a.listIndex }

func (a *StateAddress) Path() string { return a.pathInfo.Path }

// Parent is the address one segment up. A wildcard-terminal path hands its
// parent the enclosing loop's ListIndex; any other path keeps its own. Parent
// is nil for single-segment paths.
func (a *StateAddress) Parent() *StateAddress {
	if a.parentResolved {
		return a.parent
	}
	a.parentResolved = true
	ppi := a.pathInfo.ParentPathInfo
	if ppi == nil {
		return nil
	}
	li := a.listIndex
	if a.pathInfo.IsWildcardTerminal() && li != nil {
		li = li.Parent()
	}
	a.parent = a.factory.Get(ppi, li)
	return a.parent
}

func (a *StateAddress) String() string {
	if a == nil {
		return "<nil>"
	}
	if a.listIndex == nil {
		return a.pathInfo.Path
	}
	return fmt.Sprintf("%s%v", a.pathInfo.Path, a.listIndex.Indexes())
}

// AbsoluteStateAddress pins a StateAddress to the state instance that owns it.
type AbsoluteStateAddress struct {
	stateName string
	address   *StateAddress
}

func (a *AbsoluteStateAddress) StateName() string { return a.stateName }

func (a *AbsoluteStateAddress) Address() *StateAddress { return a.address }

func (a *AbsoluteStateAddress) PathInfo() *pathinfo.PathInfo { return a.address.pathInfo }

func (a *AbsoluteStateAddress) ListIndex() *listindex.ListIndex { return a.address.listIndex }

func (a *AbsoluteStateAddress) String() string {
	if a == nil {
		return "<nil>"
	}
	return a.address.String() + pathinfo.StateSeparator + a.stateName
}
