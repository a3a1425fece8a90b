// Package reduct performs rough-set attribute reduction on a decision
// table: indiscernibility classes, dependency degree, a QuickReduct
// heuristic, exhaustive search for every minimal reduct, and the core.
package reduct

import (
	"context"
	"fmt"
	"math/bits"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/JonMunkholm/tabinfer/internal/dataset"
)

const (
	// DefaultMaxAttributes is the attribute ceiling for exhaustive search
	// when none is configured; 2^16 subsets is a few seconds on large tables.
	DefaultMaxAttributes = 16
	// HardCeiling is the largest ceiling a caller may configure.
	HardCeiling = 24

	// cancelEvery is how many subsets a worker evaluates between context checks.
	cancelEvery = 64
)

// Params configures a reduct run.
type Params struct {
	Decision string
	// Conditions defaults to every column except the decision, in column order.
	Conditions []string
	// MaxAttributes caps the number of conditions for exhaustive search.
	// Zero selects DefaultMaxAttributes.
	MaxAttributes int
	// Workers bounds parallel subset evaluation. Values below 2 run sequentially.
	Workers int
}

// Dependency is γ expressed as positive-region size over row count.
type Dependency struct {
	Positive int     `json:"positive"`
	Total    int     `json:"total"`
	Gamma    float64 `json:"gamma"`
}

func dependency(pos, n int) Dependency {
	d := Dependency{Positive: pos, Total: n}
	if n > 0 {
		d.Gamma = float64(pos) / float64(n)
	}
	return d
}

// Class is one indiscernibility class.
type Class struct {
	ID         int             `json:"id"`
	Members    []int           `json:"members"`
	Values     []dataset.Value `json:"values"`
	Decisions  []string        `json:"decisions"`
	Consistent bool            `json:"consistent"`
}

// Reduct is one minimal attribute subset preserving γ of the full set.
type Reduct struct {
	Attributes []string   `json:"attributes"`
	Size       int        `json:"size"`
	Dependency Dependency `json:"dependency"`
	EqualsFull bool       `json:"equals_full"`
	// Improvement is γ(R) − γ(∅).
	Improvement float64 `json:"improvement"`
	Classes     []Class `json:"classes"`
}

// Step is one greedy QuickReduct addition.
type Step struct {
	Attribute string  `json:"attribute"`
	Gamma     float64 `json:"gamma"`
	Gain      float64 `json:"gain"`
}

// Heuristic is the QuickReduct result. The greedy order is not guaranteed
// minimal; redundant attributes are then pruned one at a time and the
// outcome is checked against the exhaustive reducts.
type Heuristic struct {
	Steps      []Step     `json:"steps"`
	Greedy     []string   `json:"greedy"`
	Pruned     []string   `json:"pruned"`
	Attributes []string   `json:"attributes"`
	Dependency Dependency `json:"dependency"`
	// GreedyMinimal reports whether the greedy set was already minimal.
	GreedyMinimal bool `json:"greedy_minimal"`
	// Minimal reports whether Attributes is one of the exhaustive reducts.
	Minimal bool `json:"minimal"`
}

// Significance is γ(C) − γ(C∖{a}) for one attribute.
type Significance struct {
	Attribute     string  `json:"attribute"`
	Significance  float64 `json:"significance"`
	Indispensable bool    `json:"indispensable"`
}

// Result is the full rough-set analysis of a decision table.
type Result struct {
	Decision         string          `json:"decision"`
	Conditions       []string        `json:"conditions"`
	RowCount         int             `json:"row_count"`
	Classes          []Class         `json:"classes"`
	Dependency       Dependency      `json:"dependency"`
	EmptyDependency  Dependency      `json:"empty_dependency"`
	Reducts          []Reduct        `json:"reducts"`
	Core             []string        `json:"core"`
	Significance     []Significance  `json:"significance"`
	Heuristic        Heuristic       `json:"heuristic"`
	Approximations   []Approximation `json:"approximations"`
	SubsetsEvaluated int64           `json:"subsets_evaluated"`
}

// analysis binds a coded table to the dataset it came from.
type analysis struct {
	ds         *dataset.Dataset
	conditions []string
	condCols   []int
	decision   int
	t          *table
	arena      *arena
	decisionOf []string // decision text per code
}

func prepare(ds *dataset.Dataset, decision string, conditions []string) (*analysis, error) {
	if decision == "" {
		return nil, dataset.Invalidf("decision column is required")
	}
	decIdx, ok := ds.Index(decision)
	if !ok {
		return nil, dataset.Invalidf("decision column %q not found", decision)
	}
	if len(conditions) == 0 {
		conditions = ds.Others(decision)
	}
	if lo.Contains(conditions, decision) {
		return nil, dataset.Invalidf("condition %q is also the decision", decision)
	}
	cols, err := ds.Resolve(conditions)
	if err != nil {
		return nil, err
	}
	if ds.NumRows() == 0 {
		return nil, dataset.Invalidf("table has no rows")
	}

	n := ds.NumRows()
	t := &table{n: n, attrs: make([][]uint32, len(cols)), decisions: make([]uint32, n)}
	for a, c := range cols {
		t.attrs[a] = encode(ds, c, nil)
	}
	var decisionOf []string
	t.decisions = encode(ds, decIdx, &decisionOf)

	return &analysis{
		ds:         ds,
		conditions: append([]string(nil), conditions...),
		condCols:   cols,
		decision:   decIdx,
		t:          t,
		arena:      newArena(t),
		decisionOf: decisionOf,
	}, nil
}

// encode codes a column by value text in first-seen order; missing is its
// own value.
func encode(ds *dataset.Dataset, col int, names *[]string) []uint32 {
	codes := make([]uint32, ds.NumRows())
	seen := make(map[string]uint32)
	for r := range codes {
		key := ds.At(r, col).Text()
		code, ok := seen[key]
		if !ok {
			code = uint32(len(seen))
			seen[key] = code
			if names != nil {
				*names = append(*names, key)
			}
		}
		codes[r] = code
	}
	return codes
}

func (an *analysis) fullMask() uint64 {
	return uint64(1)<<uint(len(an.conditions)) - 1
}

func (an *analysis) names(mask uint64) []string {
	return lo.Map(members(mask), func(a int, _ int) string { return an.conditions[a] })
}

// Run analyses ds with p.Decision as the decision attribute.
func Run(ctx context.Context, ds *dataset.Dataset, p Params) (*Result, error) {
	limit := p.MaxAttributes
	if limit == 0 {
		limit = DefaultMaxAttributes
	}
	if limit < 0 || limit > HardCeiling {
		return nil, dataset.Invalidf("max attributes must be between 1 and %d, got %d", HardCeiling, limit)
	}

	an, err := prepare(ds, p.Decision, p.Conditions)
	if err != nil {
		return nil, err
	}
	m := len(an.conditions)
	if m == 0 {
		return nil, dataset.Invalidf("at least one condition attribute is required")
	}
	if m > limit {
		return nil, fmt.Errorf("%w: %d condition attributes exceed the exhaustive search ceiling of %d (2^%d subsets); select fewer attributes",
			dataset.ErrSearchTooLarge, m, limit, m)
	}

	full := an.fullMask()
	n := ds.NumRows()
	posFull := an.arena.positive(full)
	posEmpty := an.arena.positive(0)

	res := &Result{
		Decision:        p.Decision,
		Conditions:      an.conditions,
		RowCount:        n,
		Classes:         an.classes(full),
		Dependency:      dependency(posFull, n),
		EmptyDependency: dependency(posEmpty, n),
	}

	reducts, err := an.search(ctx, posFull, p.Workers)
	if err != nil {
		return nil, err
	}

	core := mapset.NewThreadUnsafeSet(an.conditions...)
	for _, mask := range reducts {
		pos := an.arena.positive(mask)
		attrs := an.names(mask)
		core = core.Intersect(mapset.NewThreadUnsafeSet(attrs...))
		res.Reducts = append(res.Reducts, Reduct{
			Attributes:  attrs,
			Size:        len(attrs),
			Dependency:  dependency(pos, n),
			EqualsFull:  mask == full,
			Improvement: dependency(pos, n).Gamma - res.EmptyDependency.Gamma,
			Classes:     an.classes(mask),
		})
	}
	res.Core = lo.Filter(an.conditions, func(a string, _ int) bool { return core.Contains(a) })

	for a, name := range an.conditions {
		pos := an.arena.positive(full &^ (uint64(1) << uint(a)))
		res.Significance = append(res.Significance, Significance{
			Attribute:     name,
			Significance:  res.Dependency.Gamma - dependency(pos, n).Gamma,
			Indispensable: pos < posFull,
		})
	}

	heuristic, err := an.quickReduct(ctx, posFull)
	if err != nil {
		return nil, err
	}
	heuristic.Minimal = lo.Contains(reducts, heuristic.mask)
	res.Heuristic = heuristic.Heuristic

	res.Approximations = an.approximations(full)
	res.SubsetsEvaluated = an.arena.evaluated.Load()
	return res, nil
}

// search returns every minimal subset whose positive region equals posFull,
// ordered by size and then by attribute position. Subsets are visited in
// increasing size; supersets of reducts already found are skipped, so each
// hit is minimal.
func (an *analysis) search(ctx context.Context, posFull, workers int) ([]uint64, error) {
	m := len(an.conditions)
	var found []uint64
	for size := 0; size <= m; size++ {
		level := lo.Filter(combinations(m, size), func(mask uint64, _ int) bool {
			return !lo.SomeBy(found, func(r uint64) bool { return mask&r == r })
		})
		if len(level) == 0 {
			continue
		}
		pos, err := an.evaluate(ctx, level, workers)
		if err != nil {
			return nil, err
		}
		for i, mask := range level {
			if pos[i] == posFull {
				found = append(found, mask)
			}
		}
	}

	sort.SliceStable(found, func(i, j int) bool {
		a, b := found[i], found[j]
		if ca, cb := bits.OnesCount64(a), bits.OnesCount64(b); ca != cb {
			return ca < cb
		}
		return lessLex(members(a), members(b))
	})
	return found, nil
}

// evaluate computes positive-region sizes for masks, fanning out across
// workers.
func (an *analysis) evaluate(ctx context.Context, masks []uint64, workers int) ([]int, error) {
	out := make([]int, len(masks))
	if workers < 2 || len(masks) < 2*workers {
		for i, mask := range masks {
			if i%cancelEvery == 0 {
				if err := dataset.Canceled(ctx, "reduct search"); err != nil {
					return nil, err
				}
			}
			out[i] = an.arena.positive(mask)
		}
		return out, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	chunk := (len(masks) + workers - 1) / workers
	for start := 0; start < len(masks); start += chunk {
		from, to := start, min(start+chunk, len(masks))
		g.Go(func() error {
			for i := from; i < to; i++ {
				if (i-from)%cancelEvery == 0 {
					if err := dataset.Canceled(gctx, "reduct search"); err != nil {
						return err
					}
				}
				out[i] = an.arena.positive(masks[i])
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type heuristicResult struct {
	Heuristic
	mask uint64
}

// quickReduct greedily adds the attribute with the largest γ increase until
// γ(C) is reached. When no attribute increases γ the earliest attribute is
// added anyway so the loop always terminates at γ(C).
func (an *analysis) quickReduct(ctx context.Context, posFull int) (heuristicResult, error) {
	n := an.t.n
	var h heuristicResult
	mask := uint64(0)
	pos := an.arena.positive(0)

	for pos < posFull {
		if err := dataset.Canceled(ctx, "quick reduct"); err != nil {
			return h, err
		}
		bestAttr, bestPos := -1, -1
		for a := range an.conditions {
			bit := uint64(1) << uint(a)
			if mask&bit != 0 {
				continue
			}
			if p := an.arena.positive(mask | bit); p > bestPos {
				bestAttr, bestPos = a, p
			}
		}
		mask |= uint64(1) << uint(bestAttr)
		h.Steps = append(h.Steps, Step{
			Attribute: an.conditions[bestAttr],
			Gamma:     dependency(bestPos, n).Gamma,
			Gain:      dependency(bestPos, n).Gamma - dependency(pos, n).Gamma,
		})
		pos = bestPos
	}
	h.Greedy = lo.Map(h.Steps, func(s Step, _ int) string { return s.Attribute })

	// Drop attributes whose removal keeps γ, earliest added first.
	h.GreedyMinimal = true
	h.Pruned = []string{}
	for changed := true; changed; {
		changed = false
		for _, s := range h.Steps {
			a := lo.IndexOf(an.conditions, s.Attribute)
			bit := uint64(1) << uint(a)
			if mask&bit == 0 {
				continue
			}
			if an.arena.positive(mask&^bit) == posFull {
				mask &^= bit
				h.Pruned = append(h.Pruned, s.Attribute)
				h.GreedyMinimal = false
				changed = true
				break
			}
		}
	}

	h.mask = mask
	h.Attributes = an.names(mask)
	h.Dependency = dependency(an.arena.positive(mask), n)
	return h, nil
}

// classes builds the indiscernibility classes of mask in first-appearance
// order.
func (an *analysis) classes(mask uint64) []Class {
	block, blocks := an.t.partition(mask)
	out := make([]Class, blocks)
	attrs := members(mask)
	decSeen := make([]map[uint32]bool, blocks)
	for r, b := range block {
		c := &out[b]
		if c.Members == nil {
			c.ID = int(b)
			c.Consistent = true
			c.Values = lo.Map(attrs, func(a int, _ int) dataset.Value { return an.ds.At(r, an.condCols[a]) })
			decSeen[b] = make(map[uint32]bool)
		}
		c.Members = append(c.Members, r)
		d := an.t.decisions[r]
		if !decSeen[b][d] {
			decSeen[b][d] = true
			c.Decisions = append(c.Decisions, an.decisionOf[d])
		}
	}
	for i := range out {
		out[i].Consistent = len(out[i].Decisions) == 1
	}
	return out
}

func lessLex(a, b []int) bool {
	for i := 0; i < len(a) && i < len(b); i++ {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return len(a) < len(b)
}
