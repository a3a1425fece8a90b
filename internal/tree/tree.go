// Package tree induces ID3-style decision trees with categorical multiway
// splits and numeric threshold splits.
package tree

import (
	"context"
	"math"
	"slices"
	"sort"

	"github.com/samber/lo"
	"gonum.org/v1/gonum/stat"

	"github.com/JonMunkholm/tabinfer/internal/dataset"
)

// DefaultMinSamplesSplit is the conventional minimum node size for splitting.
const DefaultMinSamplesSplit = 2

// gainEpsilon absorbs floating point noise when comparing gains.
const gainEpsilon = 1e-12

// Params configures tree induction.
type Params struct {
	Target string
	// Features defaults to every column except the target, in column order.
	Features []string
	// MaxDepth bounds the depth of split nodes; nil means unbounded.
	MaxDepth        *int
	MinSamplesSplit int
}

// Result is an induced tree with its training statistics.
type Result struct {
	Root     *Node    `json:"tree"`
	Target   string   `json:"target"`
	Features []string `json:"features"`
	// FeatureTypes is keyed by feature name.
	FeatureTypes map[string]dataset.ColumnType `json:"feature_types"`
	Classes      []string                      `json:"classes"`
	Accuracy     float64                       `json:"accuracy_train"`
	Correct      int                           `json:"correct"`
	Total        int                           `json:"total"`
	Depth        int                           `json:"depth"`
	Leaves       int                           `json:"leaves"`
	Rules        []Rule                        `json:"rules"`
}

type feature struct {
	name    string
	col     int
	numeric bool
}

type builder struct {
	ctx      context.Context
	ds       *dataset.Dataset
	features []feature
	classOf  []int // class index per dataset row, -1 when the target is missing
	classes  []string
	minSplit int
	maxDepth *int
}

// Build induces a tree predicting p.Target from p.Features.
func Build(ctx context.Context, ds *dataset.Dataset, p Params) (*Result, error) {
	if p.Target == "" {
		return nil, dataset.Invalidf("target column is required")
	}
	targetIdx, ok := ds.Index(p.Target)
	if !ok {
		return nil, dataset.Invalidf("target column %q not found", p.Target)
	}
	names := p.Features
	if len(names) == 0 {
		names = ds.Others(p.Target)
	}
	if lo.Contains(names, p.Target) {
		return nil, dataset.Invalidf("feature %q is also the target", p.Target)
	}
	idx, err := ds.Resolve(names)
	if err != nil {
		return nil, err
	}
	if p.MinSamplesSplit < 1 {
		return nil, dataset.Invalidf("min_samples_split must be at least 1, got %d", p.MinSamplesSplit)
	}
	if p.MaxDepth != nil && *p.MaxDepth < 0 {
		return nil, dataset.Invalidf("max_depth must be non-negative, got %d", *p.MaxDepth)
	}

	features := make([]feature, len(idx))
	types := make(map[string]dataset.ColumnType, len(idx))
	for i, c := range idx {
		col := ds.Column(c)
		features[i] = feature{name: col.Name, col: c, numeric: col.Type == dataset.Numeric}
		types[col.Name] = col.Type
	}
	// Ties between attributes go to the earlier column.
	sort.SliceStable(features, func(a, b int) bool { return features[a].col < features[b].col })

	b := &builder{
		ctx:      ctx,
		ds:       ds,
		features: features,
		classOf:  make([]int, ds.NumRows()),
		minSplit: p.MinSamplesSplit,
		maxDepth: p.MaxDepth,
	}

	classIndex := make(map[string]int)
	var rows []int
	for r := 0; r < ds.NumRows(); r++ {
		v := ds.At(r, targetIdx)
		if v.IsMissing() {
			b.classOf[r] = -1
			continue
		}
		ci, ok := classIndex[v.Text()]
		if !ok {
			ci = len(b.classes)
			classIndex[v.Text()] = ci
			b.classes = append(b.classes, v.Text())
		}
		b.classOf[r] = ci
		rows = append(rows, r)
	}
	if len(rows) == 0 {
		return nil, dataset.Invalidf("no rows with a value for target %q", p.Target)
	}

	available := make([]bool, len(features))
	for i := range available {
		available[i] = true
	}
	root, err := b.build(rows, available, 0)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Root:         root,
		Target:       p.Target,
		Features:     lo.Map(features, func(f feature, _ int) string { return f.name }),
		FeatureTypes: types,
		Classes:      b.classes,
		Total:        len(rows),
	}
	for _, r := range rows {
		leaf := root.route(func(name string) dataset.Value {
			i, _ := ds.Index(name)
			return ds.At(r, i)
		})
		if leaf.Prediction == b.classes[b.classOf[r]] {
			res.Correct++
		}
	}
	res.Accuracy = float64(res.Correct) / float64(res.Total)
	res.Depth = root.depth()
	res.Leaves = root.leaves()
	res.Rules = root.rules()
	return res, nil
}

func (b *builder) build(rows []int, available []bool, depth int) (*Node, error) {
	if err := dataset.Canceled(b.ctx, "decision tree induction"); err != nil {
		return nil, err
	}

	counts := make([]int, len(b.classes))
	for _, r := range rows {
		counts[b.classOf[r]]++
	}
	node := &Node{
		Kind:         Leaf,
		Prediction:   b.classes[majority(counts)],
		Samples:      len(rows),
		Entropy:      entropy(counts, len(rows)),
		Distribution: b.distribution(counts),
	}

	switch {
	case node.Entropy == 0:
	case !lo.Contains(available, true):
	case len(rows) < b.minSplit:
	case b.maxDepth != nil && depth >= *b.maxDepth:
	default:
		if err := b.split(node, rows, counts, available, depth); err != nil {
			return nil, err
		}
	}
	return node, nil
}

// split turns node into the best split over the available attributes. A
// zero-gain split is still taken when it separates the rows, since deeper
// splits may then become informative; node stays a leaf when no attribute
// partitions the rows at all.
func (b *builder) split(node *Node, rows []int, counts []int, available []bool, depth int) error {
	parent := node.Entropy
	best := candidate{gain: math.Inf(-1), feature: -1}
	for fi, f := range b.features {
		if !available[fi] {
			continue
		}
		var c candidate
		if f.numeric {
			c = b.numericCandidate(rows, f, counts, parent)
		} else {
			c = b.categoricalCandidate(rows, f, parent)
		}
		if len(c.parts) < 2 || slices.ContainsFunc(c.parts, func(p []int) bool { return len(p) == 0 }) {
			continue
		}
		if c.gain > best.gain+gainEpsilon {
			c.feature = fi
			best = c
		}
	}
	if best.feature < 0 {
		return nil
	}

	f := b.features[best.feature]
	gain := math.Max(best.gain, 0)
	if f.numeric {
		left, err := b.build(best.parts[0], available, depth+1)
		if err != nil {
			return err
		}
		right, err := b.build(best.parts[1], available, depth+1)
		if err != nil {
			return err
		}
		node.Kind = NumericSplit
		node.Numeric = &Numeric{Feature: f.name, Threshold: best.threshold, Gain: gain, Left: left, Right: right}
		return nil
	}

	childAvail := append([]bool(nil), available...)
	childAvail[best.feature] = false
	split := &Categorical{Feature: f.name, Gain: gain}
	for i, part := range best.parts {
		child, err := b.build(part, childAvail, depth+1)
		if err != nil {
			return err
		}
		split.Branches = append(split.Branches, Branch{Value: best.values[i], Child: child})
	}
	node.Kind = CategoricalSplit
	node.Categorical = split
	return nil
}

type candidate struct {
	feature   int
	gain      float64
	threshold float64
	values    []dataset.Value
	parts     [][]int
}

// categoricalCandidate groups rows by value in first-seen order; missing
// values form their own group.
func (b *builder) categoricalCandidate(rows []int, f feature, parent float64) candidate {
	groups := make(map[string]int)
	var values []dataset.Value
	var parts [][]int
	for _, r := range rows {
		v := b.ds.At(r, f.col)
		g, ok := groups[v.Text()]
		if !ok {
			g = len(parts)
			groups[v.Text()] = g
			values = append(values, v)
			parts = append(parts, nil)
		}
		parts[g] = append(parts[g], r)
	}
	if len(parts) < 2 {
		return candidate{}
	}

	remainder := 0.0
	for _, part := range parts {
		counts := make([]int, len(b.classes))
		for _, r := range part {
			counts[b.classOf[r]]++
		}
		remainder += float64(len(part)) / float64(len(rows)) * entropy(counts, len(part))
	}
	return candidate{gain: parent - remainder, values: values, parts: parts}
}

// numericCandidate scans midpoints between consecutive distinct values and
// keeps the lowest threshold with the highest gain. Rows with a missing
// value always fall on the right.
func (b *builder) numericCandidate(rows []int, f feature, total []int, parent float64) candidate {
	type obs struct {
		v   float64
		row int
	}
	var present []obs
	var missing []int
	for _, r := range rows {
		if v, ok := b.ds.At(r, f.col).Float(); ok {
			present = append(present, obs{v, r})
		} else {
			missing = append(missing, r)
		}
	}
	sort.SliceStable(present, func(i, j int) bool { return present[i].v < present[j].v })

	n := len(rows)
	left := make([]int, len(b.classes))
	right := make([]int, len(b.classes))
	best := candidate{gain: math.Inf(-1)}
	found := false
	cut := 0
	for i := 0; i < len(present)-1; i++ {
		left[b.classOf[present[i].row]]++
		if present[i].v == present[i+1].v {
			continue
		}
		nl := i + 1
		for c := range right {
			right[c] = total[c] - left[c]
		}
		gain := parent -
			float64(nl)/float64(n)*entropy(left, nl) -
			float64(n-nl)/float64(n)*entropy(right, n-nl)
		if !found || gain > best.gain+gainEpsilon {
			found = true
			best.gain = gain
			best.threshold = midpoint(present[i].v, present[i+1].v)
			cut = nl
		}
	}
	if !found {
		return candidate{}
	}

	l := make([]int, 0, cut)
	r := make([]int, 0, len(rows)-cut)
	for i, o := range present {
		if i < cut {
			l = append(l, o.row)
		} else {
			r = append(r, o.row)
		}
	}
	best.parts = [][]int{l, append(r, missing...)}
	return best
}

// midpoint returns a threshold t with a <= t < b. The plain average of two
// adjacent floats can round up to b.
func midpoint(a, b float64) float64 {
	mid := a + (b-a)/2
	if mid >= b || mid < a {
		return a
	}
	return mid
}

func (b *builder) distribution(counts []int) []ClassCount {
	out := make([]ClassCount, 0, len(counts))
	for i, c := range counts {
		if c > 0 {
			out = append(out, ClassCount{Class: b.classes[i], Count: c})
		}
	}
	return out
}

// majority returns the most frequent class; ties go to the first-seen class.
func majority(counts []int) int {
	best := 0
	for i, c := range counts {
		if c > counts[best] {
			best = i
		}
	}
	return best
}

// entropy is the base-2 Shannon entropy of a class histogram.
func entropy(counts []int, n int) float64 {
	if n == 0 {
		return 0
	}
	p := make([]float64, len(counts))
	for i, c := range counts {
		p[i] = float64(c) / float64(n)
	}
	h := stat.Entropy(p) / math.Ln2
	if h < gainEpsilon {
		return 0
	}
	return h
}
