package model

import (
	"fmt"
	"slices"
)

// minSplitGain is the loss reduction a split must exceed to be kept.
const minSplitGain = 1e-6

// Node is one tree node. Rows with x[Feature] < Threshold go Left.
type Node struct {
	Feature   int     `json:"feature,omitempty"`
	Threshold float64 `json:"threshold,omitempty"`
	Left      int     `json:"left,omitempty"`
	Right     int     `json:"right,omitempty"`
	Leaf      bool    `json:"leaf,omitempty"`
	Value     float64 `json:"value,omitempty"`
}

// Tree is a regression tree stored as a flat node list rooted at index 0.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

func (t *Tree) predict(x []float64) float64 {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Leaf {
			return n.Value
		}
		if x[n.Feature] < n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// validate checks the layout predict relies on: children come after their parent
// and split features index into a schema of width features.
func (t *Tree) validate(width int) error {
	if len(t.Nodes) == 0 {
		return fmt.Errorf("empty tree")
	}
	for i, n := range t.Nodes {
		if n.Leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= width {
			return fmt.Errorf("node %d: feature %d outside schema of %d", i, n.Feature, width)
		}
		if n.Left <= i || n.Left >= len(t.Nodes) || n.Right <= i || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d: children %d/%d out of range", i, n.Left, n.Right)
		}
	}
	return nil
}

func (t *Tree) depth() int {
	var walk func(i, d int) int
	walk = func(i, d int) int {
		n := t.Nodes[i]
		if n.Leaf {
			return d
		}
		return max(walk(n.Left, d+1), walk(n.Right, d+1))
	}
	return walk(0, 0)
}

type split struct {
	feature   int
	threshold float64
	gain      float64
}

// treeBuilder grows one tree on squared-error gradients; every hessian is 1.
type treeBuilder struct {
	x     [][]float64
	grad  []float64
	p     Params
	nodes []Node
}

func (b *treeBuilder) build(idx []int, depth int) int {
	var g float64
	for _, i := range idx {
		g += b.grad[i]
	}
	h := float64(len(idx))

	id := len(b.nodes)
	b.nodes = append(b.nodes, Node{})

	if depth < b.p.MaxDepth && len(idx) >= 2 {
		if s, ok := b.bestSplit(idx, g, h); ok {
			left := make([]int, 0, len(idx))
			right := make([]int, 0, len(idx))
			for _, i := range idx {
				if b.x[i][s.feature] < s.threshold {
					left = append(left, i)
				} else {
					right = append(right, i)
				}
			}
			l := b.build(left, depth+1)
			r := b.build(right, depth+1)
			b.nodes[id] = Node{Feature: s.feature, Threshold: s.threshold, Left: l, Right: r}
			return id
		}
	}

	b.nodes[id] = Node{Leaf: true, Value: -g / (h + b.p.Lambda) * b.p.LearningRate}
	return id
}

// bestSplit scans every feature in order with exact greedy enumeration.
// Ties keep the earliest candidate so the result is deterministic.
func (b *treeBuilder) bestSplit(idx []int, g, h float64) (split, bool) {
	parent := g * g / (h + b.p.Lambda)
	best := split{gain: minSplitGain}
	found := false

	sorted := make([]int, len(idx))
	nFeatures := len(b.x[idx[0]])
	for f := 0; f < nFeatures; f++ {
		copy(sorted, idx)
		slices.SortStableFunc(sorted, func(a, c int) int {
			switch {
			case b.x[a][f] < b.x[c][f]:
				return -1
			case b.x[a][f] > b.x[c][f]:
				return 1
			default:
				return 0
			}
		})

		var gl, hl float64
		for k := 0; k < len(sorted)-1; k++ {
			i := sorted[k]
			gl += b.grad[i]
			hl++
			v, next := b.x[i][f], b.x[sorted[k+1]][f]
			if v == next {
				continue
			}
			hr := h - hl
			if hl < b.p.MinChildWeight || hr < b.p.MinChildWeight {
				continue
			}
			gr := g - gl
			gain := gl*gl/(hl+b.p.Lambda) + gr*gr/(hr+b.p.Lambda) - parent
			if gain > best.gain {
				best = split{feature: f, threshold: (v + next) / 2, gain: gain}
				found = true
			}
		}
	}
	return best, found
}
