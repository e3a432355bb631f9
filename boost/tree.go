// PTRA: Patient Trajectory Analysis Library
// Copyright (c) 2022 imec vzw.

// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version, and Additional Terms
// (see below).

// This program is distributed in the hope that it will be useful, but
// WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the GNU
// Affero General Public License for more details.

// You should have received a copy of the GNU Affero General Public
// License and Additional Terms along with this program. If not, see
// <https://github.com/ExaScience/ptra/blob/master/LICENSE.txt>.

package boost

import (
	"math"
	"sort"

	"github.com/exascience/pargo/parallel"
)

// kRtEps is the minimum loss reduction for a split to be considered at all.
const kRtEps = 1e-6

// node is a node of a regression tree. Leaves have feature -1.
type node struct {
	feature     int     // split feature, -1 for a leaf
	threshold   float64 // rows with a value < threshold go left
	defaultLeft bool    // direction of rows with a missing value
	left, right int
	value       float64 // leaf weight, learning rate included
	cover       float64 // sum of the hessians of the training rows that reach the node
	depth       int
}

// next returns the child a value is routed to.
func (n *node) next(v float64) int {
	if math.IsNaN(v) {
		if n.defaultLeft {
			return n.left
		}
		return n.right
	}
	if v < n.threshold {
		return n.left
	}
	return n.right
}

type tree struct {
	nodes []node
}

// leaf returns the index of the leaf a feature row ends up in.
func (t *tree) leaf(x []float64) int {
	i := 0
	for t.nodes[i].feature >= 0 {
		n := &t.nodes[i]
		i = n.next(x[n.feature])
	}
	return i
}

func (t *tree) depth() int {
	d := 0
	for i := range t.nodes {
		if t.nodes[i].depth > d {
			d = t.nodes[i].depth
		}
	}
	return d
}

// expectedValue returns the cover-weighted mean of the leaf values.
func (t *tree) expectedValue() float64 {
	var rec func(i int) float64
	rec = func(i int) float64 {
		n := &t.nodes[i]
		if n.feature < 0 {
			return n.value
		}
		l, r := &t.nodes[n.left], &t.nodes[n.right]
		return (l.cover*rec(n.left) + r.cover*rec(n.right)) / n.cover
	}
	return rec(0)
}

// split is a split candidate for a node.
type split struct {
	gain        float64
	feature     int
	threshold   float64
	defaultLeft bool
	gl, hl      float64 // gradient and hessian sums of the left child
}

// grower builds trees with the exact greedy algorithm, one depth level at a time. Rows with a present value are
// sorted once per feature; each level scans every feature once for all nodes of that level.
type grower struct {
	params     Params
	cols       [][]float64 // feature values, column major
	sorted     [][]int     // per feature, rows with a present value in ascending order of value
	grad, hess []float64
	pos        []int // node each row currently sits in
}

func newGrower(cols [][]float64, params Params) *grower {
	nrows := 0
	if len(cols) > 0 {
		nrows = len(cols[0])
	}
	g := &grower{
		params: params,
		cols:   cols,
		sorted: make([][]int, len(cols)),
		grad:   make([]float64, nrows),
		hess:   make([]float64, nrows),
		pos:    make([]int, nrows),
	}
	parallel.Range(0, len(cols), 0, func(low, high int) {
		for f := low; f < high; f++ {
			col := cols[f]
			rows := []int{}
			for i, v := range col {
				if !math.IsNaN(v) {
					rows = append(rows, i)
				}
			}
			sort.SliceStable(rows, func(a, b int) bool {
				return col[rows[a]] < col[rows[b]]
			})
			g.sorted[f] = rows
		}
	})
	return g
}

// grow builds one tree for the current gradients. Afterwards pos holds the leaf of every row.
func (g *grower) grow() *tree {
	t := &tree{}
	var gTotal, hTotal float64
	for i := range g.pos {
		g.pos[i] = 0
		gTotal += g.grad[i]
		hTotal += g.hess[i]
	}
	t.nodes = append(t.nodes, node{feature: -1, cover: hTotal})
	gsum, hsum := []float64{gTotal}, []float64{hTotal}
	frontier := []int{0}
	for depth := 0; depth < g.params.MaxDepth && len(frontier) > 0; depth++ {
		slot := make([]int, len(t.nodes))
		for i := range slot {
			slot[i] = -1
		}
		for k, nd := range frontier {
			slot[nd] = k
		}
		best := g.findSplits(frontier, slot, gsum, hsum)
		next := []int{}
		for k, nd := range frontier {
			s := best[k]
			if s.feature < 0 {
				continue
			}
			l, r := len(t.nodes), len(t.nodes)+1
			gr, hr := gsum[nd]-s.gl, hsum[nd]-s.hl
			t.nodes = append(t.nodes,
				node{feature: -1, cover: s.hl, depth: depth + 1},
				node{feature: -1, cover: hr, depth: depth + 1})
			gsum = append(gsum, s.gl, gr)
			hsum = append(hsum, s.hl, hr)
			n := &t.nodes[nd]
			n.feature, n.threshold, n.defaultLeft = s.feature, s.threshold, s.defaultLeft
			n.left, n.right = l, r
			next = append(next, l, r)
		}
		if len(next) > 0 {
			g.updatePositions(t, slot)
		}
		frontier = next
	}
	for i := range t.nodes {
		if t.nodes[i].feature < 0 {
			t.nodes[i].value = -gsum[i] / (hsum[i] + g.params.Lambda) * g.params.LearningRate
		}
	}
	return t
}

// findSplits returns the best split of every frontier node; the feature of a split is -1 when the node stays a leaf.
func (g *grower) findSplits(frontier, slot []int, gsum, hsum []float64) []split {
	counts := make([]int, len(frontier))
	for _, nd := range g.pos {
		if k := slot[nd]; k >= 0 {
			counts[k]++
		}
	}
	perFeature := make([][]split, len(g.cols))
	parallel.Range(0, len(g.cols), 0, func(low, high int) {
		for f := low; f < high; f++ {
			perFeature[f] = g.scanFeature(f, frontier, slot, counts, gsum, hsum)
		}
	})
	best := make([]split, len(frontier))
	for k := range best {
		best[k].feature = -1
	}
	for _, splits := range perFeature {
		for k, s := range splits {
			if s.feature >= 0 && (best[k].feature < 0 || s.gain > best[k].gain) {
				best[k] = s
			}
		}
	}
	return best
}

// scanFeature enumerates the split points of one feature for all frontier nodes. Each threshold is tried with the
// missing values sent right and sent left; a final candidate sends all present values left and the missing ones right.
func (g *grower) scanFeature(f int, frontier, slot, counts []int, gsum, hsum []float64) []split {
	n := len(frontier)
	result := make([]split, n)
	for k := range result {
		result[k].feature = -1
	}
	col := g.cols[f]
	pg, ph := make([]float64, n), make([]float64, n)
	present := make([]int, n)
	for _, r := range g.sorted[f] {
		if k := slot[g.pos[r]]; k >= 0 {
			pg[k] += g.grad[r]
			ph[k] += g.hess[r]
			present[k]++
		}
	}
	accG, accH := make([]float64, n), make([]float64, n)
	last := make([]float64, n)
	seen := make([]bool, n)
	for _, r := range g.sorted[f] {
		k := slot[g.pos[r]]
		if k < 0 {
			continue
		}
		v := col[r]
		if seen[k] && v > last[k] {
			nd := frontier[k]
			thr := last[k]/2 + v/2
			if thr <= last[k] {
				thr = v
			}
			g.consider(&result[k], f, thr, false, accG[k], accH[k], gsum[nd], hsum[nd])
			if present[k] < counts[k] {
				missG, missH := gsum[nd]-pg[k], hsum[nd]-ph[k]
				g.consider(&result[k], f, thr, true, accG[k]+missG, accH[k]+missH, gsum[nd], hsum[nd])
			}
		}
		accG[k] += g.grad[r]
		accH[k] += g.hess[r]
		last[k] = v
		seen[k] = true
	}
	for k, nd := range frontier {
		if seen[k] && present[k] < counts[k] {
			g.consider(&result[k], f, math.Nextafter(last[k], math.Inf(1)), false, pg[k], ph[k], gsum[nd], hsum[nd])
		}
	}
	return result
}

// consider replaces best by the candidate split when it is admissible and has a higher gain.
func (g *grower) consider(best *split, f int, thr float64, defaultLeft bool, gl, hl, gTotal, hTotal float64) {
	gr, hr := gTotal-gl, hTotal-hl
	if hl <= 0 || hr <= 0 || hl < g.params.MinChildWeight || hr < g.params.MinChildWeight {
		return
	}
	lambda := g.params.Lambda
	gain := gl*gl/(hl+lambda) + gr*gr/(hr+lambda) - gTotal*gTotal/(hTotal+lambda)
	if gain <= kRtEps || gain <= g.params.Gamma {
		return
	}
	if best.feature < 0 || gain > best.gain {
		*best = split{gain: gain, feature: f, threshold: thr, defaultLeft: defaultLeft, gl: gl, hl: hl}
	}
}

// updatePositions moves the rows of the nodes that were just split into their children.
func (g *grower) updatePositions(t *tree, slot []int) {
	parallel.Range(0, len(g.pos), 0, func(low, high int) {
		for i := low; i < high; i++ {
			nd := g.pos[i]
			if nd >= len(slot) || slot[nd] < 0 {
				continue
			}
			n := &t.nodes[nd]
			if n.feature < 0 {
				continue
			}
			g.pos[i] = n.next(g.cols[n.feature][i])
		}
	})
}
