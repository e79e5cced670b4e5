package address

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wcstack/statecore/pkg/listindex"
	"github.com/wcstack/statecore/pkg/pathinfo"
)

func TestFactoryCanonicalizes(t *testing.T) {
	f := NewFactory()
	arena := listindex.NewArena()
	pi := pathinfo.Get("users.*.name")
	li := arena.New(nil, 0)
	twin := arena.New(nil, 0)

	assert.Same(t, f.Get(pi, li), f.Get(pi, li))
	assert.NotSame(t, f.Get(pi, li), f.Get(pi, twin))
	assert.Same(t, f.Get(pathinfo.Get("title"), nil), f.Get(pathinfo.Get("title"), nil))
	assert.NotSame(t, f.Get(pi, nil), f.Get(pi, li))
}

func TestParentWithoutListIndex(t *testing.T) {
	f := NewFactory()
	addr := f.Get(pathinfo.Get("a.b.c"), nil)

	parent := addr.Parent()
	require.NotNil(t, parent)
	assert.Equal(t, "a.b", parent.Path())
	assert.Same(t, parent, addr.Parent())
	assert.Same(t, f.Get(pathinfo.Get("a.b"), nil), parent)
	assert.Nil(t, parent.Parent().Parent())
}

func TestParentOfWildcardTerminalUsesEnclosingLoop(t *testing.T) {
	f := NewFactory()
	arena := listindex.NewArena()
	user := arena.New(nil, 1)
	post := arena.New(user, 3)

	addr := f.Get(pathinfo.Get("users.*.posts.*"), post)
	parent := addr.Parent()
	assert.Equal(t, "users.*.posts", parent.Path())
	assert.Same(t, post.Parent(), parent.ListIndex())

	grandparent := parent.Parent()
	assert.Equal(t, "users.*", grandparent.Path())
	assert.Same(t, user, grandparent.ListIndex())

	list := grandparent.Parent()
	assert.Equal(t, "users", list.Path())
	assert.Nil(t, list.ListIndex())
}

func TestParentOfFieldKeepsListIndex(t *testing.T) {
	f := NewFactory()
	li := listindex.NewArena().New(nil, 2)
	addr := f.Get(pathinfo.Get("users.*.name"), li)

	assert.Same(t, li, addr.Parent().ListIndex())
	assert.Equal(t, "users.*[2]", addr.Parent().String())
}

func TestAbsoluteCanonicalizes(t *testing.T) {
	f := NewFactory()
	addr := f.Get(pathinfo.Get("total"), nil)

	a := f.Absolute("cart", addr)
	assert.Same(t, a, f.Absolute("cart", addr))
	assert.NotSame(t, a, f.Absolute("wishlist", addr))
	assert.Equal(t, "total@cart", a.String())
}

func TestPrune(t *testing.T) {
	f := NewFactory()
	arena := listindex.NewArena()
	keep := arena.New(nil, 0)
	drop := arena.New(nil, 1)
	dropChild := arena.New(drop, 0)

	kept := f.GetAbsolute("s", pathinfo.Get("users.*"), keep)
	f.GetAbsolute("s", pathinfo.Get("users.*"), drop)
	f.GetAbsolute("s", pathinfo.Get("users.*.posts.*"), dropChild)

	dropped := f.Prune([]*listindex.ListIndex{drop})
	assert.Len(t, dropped, 2)
	assert.Same(t, kept, f.GetAbsolute("s", pathinfo.Get("users.*"), keep))
	assert.Equal(t, 1, f.Len())
}
