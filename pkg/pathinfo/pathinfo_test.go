package pathinfo

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterns(t *testing.T) {
	in := NewInterner()

	a, err := in.Parse("users.*.name")
	require.NoError(t, err)
	b, err := in.Parse("users.*.name")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Same(t, a.ParentPathInfo, b.ParentPathInfo)
}

func TestParseDescriptor(t *testing.T) {
	in := NewInterner()
	info, err := in.Parse("users.*.posts.*.title")
	require.NoError(t, err)

	assert.Equal(t, "title", info.LastSegment)
	assert.Equal(t, []int{1, 3}, info.WildcardPositions)
	assert.Equal(t, 2, info.WildcardCount)
	if diff := cmp.Diff([]string{"users.*", "users.*.posts.*"}, info.WildcardPaths); diff != "" {
		t.Fatalf("wildcard paths mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"users", "users.*.posts"}, info.WildcardParentPaths); diff != "" {
		t.Fatalf("wildcard parent paths mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, "users.*.posts.*", info.ParentPathInfo.Path)
	assert.Equal(t, "users.*.posts", info.ParentPathInfo.ParentPathInfo.Path)
	assert.True(t, info.ParentPathInfo.IsWildcardTerminal())
	assert.Equal(t, "users.*.posts", info.WildcardParentPathInfos[1].Path)

	root, err := in.Parse("users")
	require.NoError(t, err)
	assert.Nil(t, root.ParentPathInfo)
	assert.Zero(t, root.WildcardCount)
}

func TestParseErrors(t *testing.T) {
	testCases := []struct {
		name string
		path string
		want error
	}{
		{name: "empty", path: "", want: ErrEmptyPath},
		{name: "empty segment", path: "a..b", want: ErrEmptySegment},
		{name: "partial wildcard", path: "a.b*", want: ErrPartialSegment},
		{name: "leading wildcard", path: "*.a", want: ErrLeadingWildcard},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := NewInterner().Parse(tc.path)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tc.want))

			var pathErr *PathError
			require.True(t, errors.As(err, &pathErr))
			assert.Equal(t, tc.path, pathErr.Path)
		})
	}
}

func TestSharedWildcardDepth(t *testing.T) {
	in := NewInterner()
	category, _ := in.Parse("categories.*.name")
	product, _ := in.Parse("categories.*.products.*.price")
	plain, _ := in.Parse("title")
	users, _ := in.Parse("users.*.name")

	assert.Equal(t, 1, category.SharedWildcardDepth(product))
	assert.Equal(t, 2, product.SharedWildcardDepth(product))
	assert.Equal(t, 0, plain.SharedWildcardDepth(product))
	assert.Equal(t, 0, users.SharedWildcardDepth(category))
}

func TestSplitTarget(t *testing.T) {
	path, state := SplitTarget("total@cart")
	assert.Equal(t, "total", path)
	assert.Equal(t, "cart", state)

	path, state = SplitTarget("users.*.name")
	assert.Equal(t, "users.*.name", path)
	assert.Empty(t, state)
}
