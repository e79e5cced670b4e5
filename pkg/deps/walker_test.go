package deps

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wcstack/statecore/pkg/address"
	"github.com/wcstack/statecore/pkg/listindex"
	"github.com/wcstack/statecore/pkg/pathinfo"
)

type fakeSource struct {
	graph *Graph
	data  map[string]any
	reads int
}

func (s *fakeSource) Graph() *Graph { return s.graph }

func (s *fakeSource) ListValue(addr *address.StateAddress) ([]any, error) {
	s.reads++
	var indexes []int
	if li := addr.ListIndex(); li != nil {
		indexes = li.Indexes()
	}
	list, ok := lookup(s.data, addr.PathInfo().Segments, indexes).([]any)
	if !ok {
		return nil, ErrNotList
	}
	return list, nil
}

func lookup(value any, segments []string, indexes []int) any {
	k := 0
	for _, segment := range segments {
		switch v := value.(type) {
		case map[string]any:
			value = v[segment]
		case []any:
			value = v[indexes[k]]
			k++
		default:
			return nil
		}
	}
	return value
}

func newWalker(sources map[string]Source) *Walker {
	return &Walker{
		Factory:    address.NewFactory(),
		Reconciler: listindex.NewReconciler(listindex.NewArena(), 0),
		Lists:      NewListTable(),
		Sources:    Lookup(sources),
	}
}

// describe renders a walk result as path[indexes]@state strings.
func describe(addrs []*address.AbsoluteStateAddress) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		out = append(out, a.String())
	}
	return out
}

func usersSource(t *testing.T) *fakeSource {
	t.Helper()
	g := NewGraph()
	require.NoError(t, g.AddList("users"))
	g.AddStatic("users", "users.*")
	return &fakeSource{
		graph: g,
		data: map[string]any{
			"users": []any{map[string]any{"id": 1}, map[string]any{"id": 2}},
		},
	}
}

func TestWalkListExpansionIsDeterministic(t *testing.T) {
	src := usersSource(t)
	w := newWalker(map[string]Source{"app": src})
	start := w.Factory.GetAbsolute("app", pathinfo.Get("users"), nil)

	var visited []string
	got, err := w.Walk(start, func(addr *address.AbsoluteStateAddress) error {
		visited = append(visited, addr.String())
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 2)

	for i, addr := range got {
		assert.Equal(t, "users.*", addr.PathInfo().Path)
		assert.Equal(t, i, addr.ListIndex().Index())
	}
	want := []string{"users@app", "users.*[0]@app", "users.*[1]@app"}
	if diff := cmp.Diff(want, visited); diff != "" {
		t.Errorf("visit order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, want[1:], describe(got))
}

func TestWalkDepthGuard(t *testing.T) {
	chain := func(n int) *Graph {
		g := NewGraph()
		for i := 0; i < n-1; i++ {
			g.AddStatic(fmt.Sprintf("p%d", i), fmt.Sprintf("p%d", i+1))
		}
		return g
	}

	t.Run("exceeds", func(t *testing.T) {
		w := newWalker(map[string]Source{"app": &fakeSource{graph: chain(1002)}})
		_, err := w.Walk(w.Factory.GetAbsolute("app", pathinfo.Get("p0"), nil), nil)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrMaxDepth))

		var pathErr *pathinfo.PathError
		require.ErrorAs(t, err, &pathErr)
		assert.Equal(t, "p1001", pathErr.Path)
	})

	t.Run("at limit", func(t *testing.T) {
		w := newWalker(map[string]Source{"app": &fakeSource{graph: chain(1001)}})
		got, err := w.Walk(w.Factory.GetAbsolute("app", pathinfo.Get("p0"), nil), nil)
		require.NoError(t, err)
		assert.Len(t, got, 1000)
	})

	t.Run("cycle terminates", func(t *testing.T) {
		g := NewGraph()
		g.AddStatic("a", "b")
		g.AddStatic("b", "a")
		w := newWalker(map[string]Source{"app": &fakeSource{graph: g}})
		got, err := w.Walk(w.Factory.GetAbsolute("app", pathinfo.Get("a"), nil), nil)
		require.NoError(t, err)
		assert.Equal(t, []string{"b@app"}, describe(got))
	})
}

func TestWalkDynamicCarryover(t *testing.T) {
	g := NewGraph()
	g.AddDynamic("products.*.price", "products.*.tax")
	src := &fakeSource{graph: g}
	w := newWalker(map[string]Source{"shop": src})

	li := w.Reconciler.Arena().New(nil, 1)
	start := w.Factory.GetAbsolute("shop", pathinfo.Get("products.*.price"), li)

	got, err := w.Walk(start, nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "products.*.tax", got[0].PathInfo().Path)
	assert.Same(t, li, got[0].ListIndex())
	assert.Zero(t, src.reads)
}

func TestWalkDynamicWithoutSharedContextCarriesNil(t *testing.T) {
	g := NewGraph()
	g.AddDynamic("products.*.price", "total")
	w := newWalker(map[string]Source{"shop": &fakeSource{graph: g}})

	li := w.Reconciler.Arena().New(nil, 0)
	got, err := w.Walk(w.Factory.GetAbsolute("shop", pathinfo.Get("products.*.price"), li), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Nil(t, got[0].ListIndex())
}

func TestWalkDynamicFanOut(t *testing.T) {
	t.Run("from root", func(t *testing.T) {
		g := NewGraph()
		require.NoError(t, g.AddList("products"))
		g.AddDynamic("taxRate", "products.*.tax")
		src := &fakeSource{graph: g, data: map[string]any{
			"taxRate":  0.2,
			"products": []any{"a", "b", "c"},
		}}
		w := newWalker(map[string]Source{"shop": src})

		got, err := w.Walk(w.Factory.GetAbsolute("shop", pathinfo.Get("taxRate"), nil), nil)
		require.NoError(t, err)
		assert.Equal(t, []string{
			"products.*.tax[0]@shop",
			"products.*.tax[1]@shop",
			"products.*.tax[2]@shop",
		}, describe(got))
	})

	t.Run("below shared depth", func(t *testing.T) {
		g := NewGraph()
		g.AddDynamic("categories.*.name", "categories.*.products.*.label")
		src := &fakeSource{graph: g, data: map[string]any{
			"categories": []any{
				map[string]any{"name": "x", "products": []any{"a", "b"}},
				map[string]any{"name": "y", "products": []any{"c"}},
			},
		}}
		w := newWalker(map[string]Source{"shop": src})

		category := w.Reconciler.Arena().New(nil, 1)
		got, err := w.Walk(w.Factory.GetAbsolute("shop", pathinfo.Get("categories.*.name"), category), nil)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, []int{1, 0}, got[0].ListIndex().Indexes())
		assert.Same(t, category, got[0].ListIndex().Parent())
	})

	t.Run("missing list index", func(t *testing.T) {
		g := NewGraph()
		g.AddDynamic("products.*.price", "products.*.tax")
		w := newWalker(map[string]Source{"shop": &fakeSource{graph: g}})

		_, err := w.Walk(w.Factory.GetAbsolute("shop", pathinfo.Get("products.*.price"), nil), nil)
		assert.ErrorIs(t, err, ErrMissingListIndex)
	})
}

func TestWalkStaticCarriesListIndex(t *testing.T) {
	g := NewGraph()
	require.NoError(t, g.AddPath("users.*.name"))
	g.AddStatic("users.*.name", "users.*.label")
	w := newWalker(map[string]Source{"app": &fakeSource{graph: g}})

	li := w.Reconciler.Arena().New(nil, 4)
	got, err := w.Walk(w.Factory.GetAbsolute("app", pathinfo.Get("users.*.name"), li), nil)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "users.*.label", got[0].PathInfo().Path)
	assert.Same(t, li, got[0].ListIndex())
}

func TestWalkEmptyListYieldsNothing(t *testing.T) {
	src := usersSource(t)
	src.data["users"] = []any{}
	w := newWalker(map[string]Source{"app": src})

	got, err := w.Walk(w.Factory.GetAbsolute("app", pathinfo.Get("users"), nil), nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWalkCommitsListsAfterTraversal(t *testing.T) {
	t.Run("identity survives reorder", func(t *testing.T) {
		src := usersSource(t)
		w := newWalker(map[string]Source{"app": src})
		var commits int
		w.OnCommit = func(*address.AbsoluteStateAddress, *listindex.ListDiff) { commits++ }
		start := w.Factory.GetAbsolute("app", pathinfo.Get("users"), nil)

		first, err := w.Walk(start, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, w.Lists.Len())

		users := src.data["users"].([]any)
		src.data["users"] = []any{users[1], users[0]}
		second, err := w.Walk(start, nil)
		require.NoError(t, err)

		require.Len(t, second, 2)
		assert.Same(t, first[1].ListIndex(), second[0].ListIndex())
		assert.Same(t, first[0].ListIndex(), second[1].ListIndex())
		assert.Equal(t, 2, commits)
	})

	t.Run("failed walk persists nothing", func(t *testing.T) {
		src := usersSource(t)
		w := newWalker(map[string]Source{"app": src})
		boom := errors.New("boom")

		_, err := w.Walk(w.Factory.GetAbsolute("app", pathinfo.Get("users"), nil), func(addr *address.AbsoluteStateAddress) error {
			if addr.ListIndex() != nil {
				return boom
			}
			return nil
		})
		assert.ErrorIs(t, err, boom)
		assert.Zero(t, w.Lists.Len())
	})
}

func TestWalkCrossState(t *testing.T) {
	cart := NewGraph()
	cart.AddStatic("total", "grandTotal@summary")
	summary := NewGraph()
	summary.AddStatic("grandTotal", "banner")

	w := newWalker(map[string]Source{
		"cart":    &fakeSource{graph: cart},
		"summary": &fakeSource{graph: summary},
	})
	got, err := w.Walk(w.Factory.GetAbsolute("cart", pathinfo.Get("total"), nil), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"grandTotal@summary", "banner@summary"}, describe(got))

	t.Run("unknown state", func(t *testing.T) {
		cart.AddStatic("total", "x@nowhere")
		_, err := w.Walk(w.Factory.GetAbsolute("cart", pathinfo.Get("total"), nil), nil)
		assert.ErrorIs(t, err, ErrUnknownState)
	})
}
