package itemtree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uptr(v uint) *uint { return &v }

func fullIDs(nodes []*Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.FullID)
	}
	return out
}

func TestBuild_NumericSiblingOrder(t *testing.T) {
	roots := Build([]Flat{
		{ID: 3, FullID: "X-10"},
		{ID: 1, FullID: "X-1"},
		{ID: 2, FullID: "X-2"},
	})
	assert.Equal(t, []string{"X-1", "X-2", "X-10"}, fullIDs(roots))
}

func TestBuild_NestsChildrenAndSortsRecursively(t *testing.T) {
	roots := Build([]Flat{
		{ID: 5, FullID: "NUM-1-10", ParentID: uptr(1)},
		{ID: 2, FullID: "NUM-2"},
		{ID: 4, FullID: "NUM-1-2", ParentID: uptr(1)},
		{ID: 1, FullID: "NUM-1"},
		{ID: 6, FullID: "NUM-1-2-1", ParentID: uptr(4)},
	})

	require.Equal(t, []string{"NUM-1", "NUM-2"}, fullIDs(roots))
	assert.Equal(t, []string{"NUM-1-2", "NUM-1-10"}, fullIDs(roots[0].Children))
	assert.Equal(t, []string{"NUM-1-2-1"}, fullIDs(roots[0].Children[0].Children))
	assert.Empty(t, roots[1].Children)
}

func TestBuild_OrphansBecomeRoots(t *testing.T) {
	roots := Build([]Flat{
		{ID: 7, FullID: "A-3-1", ParentID: uptr(99)},
		{ID: 8, FullID: "A-1"},
	})
	assert.Equal(t, []string{"A-1", "A-3-1"}, fullIDs(roots))
}

func TestBuild_Empty(t *testing.T) {
	assert.Empty(t, Build(nil))
}

func TestCompareFullIDs(t *testing.T) {
	assert.Negative(t, CompareFullIDs("X-2", "X-10"))
	assert.Positive(t, CompareFullIDs("X-10", "X-9"))
	assert.Zero(t, CompareFullIDs("X-1-1", "X-1-1"))
	assert.Negative(t, CompareFullIDs("X-1", "X-1-1"))
	assert.Negative(t, CompareFullIDs("X-1a", "X-1b"))
	assert.Negative(t, CompareFullIDs("ABC-1", "ABD-1"))
}

func TestWalk_DepthFirst(t *testing.T) {
	roots := Build([]Flat{
		{ID: 1, FullID: "P-1"},
		{ID: 2, FullID: "P-1-1", ParentID: uptr(1)},
		{ID: 3, FullID: "P-2"},
	})

	var seen []string
	var depths []int
	Walk(roots, func(n *Node, depth int) {
		seen = append(seen, n.FullID)
		depths = append(depths, depth)
	})
	assert.Equal(t, []string{"P-1", "P-1-1", "P-2"}, seen)
	assert.Equal(t, []int{0, 1, 0}, depths)
}
