// Package itemtree assembles flat item rows into an ordered hierarchy.
package itemtree

import (
	"sort"
	"strconv"
	"strings"
)

// Separator joins the segments of a hierarchical fullId.
const Separator = "-"

// Flat is the subset of an item the tree needs.
type Flat struct {
	ID       uint   `json:"id"`
	FullID   string `json:"full_id"`
	Title    string `json:"title"`
	ParentID *uint  `json:"parent_id"`
}

// Node is a materialized tree node.
type Node struct {
	Flat
	Children []*Node `json:"children"`
}

// Build returns the roots of the forest formed by items. Items whose parent is not part of the
// input become roots. Siblings are ordered with CompareFullIDs at every level.
func Build(items []Flat) []*Node {
	nodes := make(map[uint]*Node, len(items))
	for _, it := range items {
		nodes[it.ID] = &Node{Flat: it, Children: []*Node{}}
	}

	roots := make([]*Node, 0)
	for _, it := range items {
		n := nodes[it.ID]
		if it.ParentID != nil && *it.ParentID != it.ID {
			if parent, ok := nodes[*it.ParentID]; ok {
				parent.Children = append(parent.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}

	sortNodes(roots)
	return roots
}

func sortNodes(nodes []*Node) {
	sort.SliceStable(nodes, func(i, j int) bool {
		return CompareFullIDs(nodes[i].FullID, nodes[j].FullID) < 0
	})
	for _, n := range nodes {
		sortNodes(n.Children)
	}
}

// CompareFullIDs orders fullIds segment by segment. Two numeric segments compare as integers,
// anything else compares lexically, and a shorter id sorts before its extensions.
func CompareFullIDs(a, b string) int {
	as := strings.Split(a, Separator)
	bs := strings.Split(b, Separator)

	for i := 0; i < len(as) && i < len(bs); i++ {
		if c := compareSegment(as[i], bs[i]); c != 0 {
			return c
		}
	}
	switch {
	case len(as) < len(bs):
		return -1
	case len(as) > len(bs):
		return 1
	}
	return 0
}

func compareSegment(a, b string) int {
	an, aErr := strconv.ParseUint(a, 10, 64)
	bn, bErr := strconv.ParseUint(b, 10, 64)
	if aErr == nil && bErr == nil {
		switch {
		case an < bn:
			return -1
		case an > bn:
			return 1
		}
		return 0
	}
	return strings.Compare(a, b)
}

// Walk visits every node depth-first in sibling order.
func Walk(roots []*Node, fn func(n *Node, depth int)) {
	var visit func(nodes []*Node, depth int)
	visit = func(nodes []*Node, depth int) {
		for _, n := range nodes {
			fn(n, depth)
			visit(n.Children, depth+1)
		}
	}
	visit(roots, 0)
}
