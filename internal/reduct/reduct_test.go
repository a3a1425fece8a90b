package reduct

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/tabinfer/internal/dataset"
)

// b alone separates nothing; a and c are interchangeable copies.
const twin = "a,b,c,d\nx,p,u,yes\nx,q,u,no\ny,p,v,yes\ny,q,v,yes\n"

func load(t *testing.T, csv string) *dataset.Dataset {
	t.Helper()
	ds, err := dataset.Load(strings.NewReader(csv), dataset.LoadOptions{})
	require.NoError(t, err)
	return ds
}

func attrs(res *Result) [][]string {
	return lo.Map(res.Reducts, func(r Reduct, _ int) []string { return r.Attributes })
}

func TestRun_TwinAttributes(t *testing.T) {
	res, err := Run(context.Background(), load(t, twin), Params{Decision: "d"})
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "b", "c"}, res.Conditions)
	assert.Equal(t, 1.0, res.Dependency.Gamma)
	assert.Equal(t, 0.0, res.EmptyDependency.Gamma)
	assert.Equal(t, [][]string{{"a", "b"}, {"b", "c"}}, attrs(res))
	assert.Equal(t, []string{"b"}, res.Core)
	assert.Len(t, res.Classes, 4)
	for _, c := range res.Classes {
		assert.True(t, c.Consistent)
	}

	for _, r := range res.Reducts {
		assert.Equal(t, 2, r.Size)
		assert.False(t, r.EqualsFull)
		assert.Equal(t, 1.0, r.Improvement)
	}

	sig := lo.KeyBy(res.Significance, func(s Significance) string { return s.Attribute })
	assert.True(t, sig["b"].Indispensable)
	assert.Equal(t, 0.5, sig["b"].Significance)
	assert.False(t, sig["a"].Indispensable)
	assert.False(t, sig["c"].Indispensable)

	assert.Equal(t, []string{"a", "b"}, res.Heuristic.Greedy)
	assert.Equal(t, []string{"a", "b"}, res.Heuristic.Attributes)
	assert.Empty(t, res.Heuristic.Pruned)
	assert.True(t, res.Heuristic.GreedyMinimal)
	assert.True(t, res.Heuristic.Minimal)
	require.Len(t, res.Heuristic.Steps, 2)
	assert.Equal(t, 0.5, res.Heuristic.Steps[0].Gain)
	assert.Equal(t, 0.5, res.Heuristic.Steps[1].Gain)

	// {a,b,c} is a superset of {a,b} and is never searched, but γ(C) is
	// computed first; everything else is one evaluation per subset.
	assert.Equal(t, int64(8), res.SubsetsEvaluated)
}

func TestRun_ColumnOrderDoesNotChangeReducts(t *testing.T) {
	ds := load(t, twin)

	forward, err := Run(context.Background(), ds, Params{Decision: "d", Conditions: []string{"a", "b", "c"}})
	require.NoError(t, err)
	reversed, err := Run(context.Background(), ds, Params{Decision: "d", Conditions: []string{"c", "b", "a"}})
	require.NoError(t, err)

	normalize := func(res *Result) []string {
		out := lo.Map(res.Reducts, func(r Reduct, _ int) string {
			names := append([]string(nil), r.Attributes...)
			sort.Strings(names)
			return strings.Join(names, ",")
		})
		sort.Strings(out)
		return out
	}
	assert.Equal(t, normalize(forward), normalize(reversed))
	assert.ElementsMatch(t, forward.Core, reversed.Core)
	assert.Equal(t, forward.Dependency, reversed.Dependency)
}

func TestRun_EmptyCore(t *testing.T) {
	res, err := Run(context.Background(), load(t, "a,c,d\nx,u,yes\nx,u,yes\ny,v,no\n"), Params{Decision: "d"})
	require.NoError(t, err)

	assert.Equal(t, [][]string{{"a"}, {"c"}}, attrs(res))
	assert.Empty(t, res.Core)
}

func TestRun_InconsistentTable(t *testing.T) {
	res, err := Run(context.Background(), load(t, "a,b,d\nx,p,yes\nx,p,no\ny,q,yes\n"), Params{Decision: "d"})
	require.NoError(t, err)

	assert.InDelta(t, 1.0/3.0, res.Dependency.Gamma, 1e-12)
	assert.Equal(t, 1, res.Dependency.Positive)
	assert.Equal(t, [][]string{{"a"}, {"b"}}, attrs(res))
	for _, r := range res.Reducts {
		assert.Equal(t, res.Dependency, r.Dependency)
	}
	assert.False(t, res.Classes[0].Consistent)
	assert.Equal(t, []string{"yes", "no"}, res.Classes[0].Decisions)
}

func TestRun_ConstantDecisionHasEmptyReduct(t *testing.T) {
	res, err := Run(context.Background(), load(t, "a,b,d\nx,p,yes\ny,q,yes\n"), Params{Decision: "d"})
	require.NoError(t, err)

	assert.Equal(t, 1.0, res.EmptyDependency.Gamma)
	require.Len(t, res.Reducts, 1)
	assert.Empty(t, res.Reducts[0].Attributes)
	assert.Equal(t, 0.0, res.Reducts[0].Improvement)
	assert.Empty(t, res.Core)
	assert.Empty(t, res.Heuristic.Steps)
	assert.True(t, res.Heuristic.Minimal)
}

func TestRun_HeuristicPrunesRedundantAttributes(t *testing.T) {
	// a gains most on its own, but once b and c are in a adds nothing.
	csv := "a,b,c,d\n" +
		"1,p,u,yes\n1,p,v,yes\n1,q,u,yes\n1,q,v,no\n" +
		"2,p,u,no\n2,p,v,no\n2,q,u,no\n2,q,v,no\n" +
		"3,p,u,no\n3,q,v,yes\n"
	res, err := Run(context.Background(), load(t, csv), Params{Decision: "d"})
	require.NoError(t, err)

	h := res.Heuristic
	assert.Equal(t, res.Dependency.Positive, h.Dependency.Positive)
	assert.Subset(t, h.Greedy, h.Attributes)
	assert.Equal(t, len(h.Greedy), len(h.Attributes)+len(h.Pruned))
	assert.Equal(t, len(h.Pruned) == 0, h.GreedyMinimal)

	// Whatever the greedy path, the pruned result cannot lose an attribute.
	ds := load(t, csv)
	for _, drop := range h.Attributes {
		rest := lo.Without(h.Attributes, drop)
		if len(rest) == 0 {
			continue
		}
		sub, err := Run(context.Background(), ds, Params{Decision: "d", Conditions: rest})
		require.NoError(t, err)
		assert.Less(t, sub.Dependency.Positive, res.Dependency.Positive)
	}
}

func randomTable(seed int64, rows, cols int) string {
	rng := rand.New(rand.NewSource(seed))
	var sb strings.Builder
	for c := 0; c < cols; c++ {
		fmt.Fprintf(&sb, "c%d,", c)
	}
	sb.WriteString("d\n")
	for r := 0; r < rows; r++ {
		for c := 0; c < cols; c++ {
			fmt.Fprintf(&sb, "v%d,", rng.Intn(3))
		}
		fmt.Fprintf(&sb, "k%d\n", rng.Intn(2))
	}
	return sb.String()
}

func TestRun_ReductsAreMinimal(t *testing.T) {
	ds := load(t, randomTable(7, 40, 6))

	res, err := Run(context.Background(), ds, Params{Decision: "d"})
	require.NoError(t, err)
	require.NotEmpty(t, res.Reducts)

	for _, r := range res.Reducts {
		assert.Equal(t, res.Dependency.Positive, r.Dependency.Positive)
		for _, drop := range r.Attributes {
			rest := lo.Without(r.Attributes, drop)
			if len(rest) == 0 {
				assert.Less(t, res.EmptyDependency.Positive, res.Dependency.Positive)
				continue
			}
			sub, err := Run(context.Background(), ds, Params{Decision: "d", Conditions: rest})
			require.NoError(t, err)
			assert.Less(t, sub.Dependency.Positive, res.Dependency.Positive, "%v minus %s", r.Attributes, drop)
		}
	}

	// The core is exactly the attributes every reduct shares.
	shared := res.Reducts[0].Attributes
	for _, r := range res.Reducts[1:] {
		shared = lo.Intersect(shared, r.Attributes)
	}
	assert.ElementsMatch(t, shared, res.Core)

	indispensable := lo.FilterMap(res.Significance, func(s Significance, _ int) (string, bool) {
		return s.Attribute, s.Indispensable
	})
	assert.ElementsMatch(t, res.Core, indispensable)
}

func TestRun_ParallelMatchesSequential(t *testing.T) {
	ds := load(t, randomTable(11, 120, 9))

	seq, err := Run(context.Background(), ds, Params{Decision: "d", Workers: 1})
	require.NoError(t, err)
	par, err := Run(context.Background(), ds, Params{Decision: "d", Workers: 4})
	require.NoError(t, err)

	assert.Equal(t, attrs(seq), attrs(par))
	assert.Equal(t, seq.Core, par.Core)
	assert.Equal(t, seq.SubsetsEvaluated, par.SubsetsEvaluated)
}

func TestRun_SearchTooLarge(t *testing.T) {
	_, err := Run(context.Background(), load(t, twin), Params{Decision: "d", MaxAttributes: 2})
	assert.ErrorIs(t, err, dataset.ErrSearchTooLarge)
}

func TestRun_InvalidParameters(t *testing.T) {
	ds := load(t, twin)

	tests := []struct {
		name string
		p    Params
	}{
		{"missing decision", Params{}},
		{"unknown decision", Params{Decision: "z"}},
		{"unknown condition", Params{Decision: "d", Conditions: []string{"q"}}},
		{"decision as condition", Params{Decision: "d", Conditions: []string{"a", "d"}}},
		{"duplicate condition", Params{Decision: "d", Conditions: []string{"a", "a"}}},
		{"ceiling above hard limit", Params{Decision: "d", MaxAttributes: HardCeiling + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Run(context.Background(), ds, tt.p)
			assert.ErrorIs(t, err, dataset.ErrInvalidParameter)
		})
	}

	t.Run("no conditions", func(t *testing.T) {
		_, err := Run(context.Background(), load(t, "d\nyes\nno\n"), Params{Decision: "d"})
		assert.ErrorIs(t, err, dataset.ErrInvalidParameter)
	})
}

func TestRun_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Run(ctx, load(t, twin), Params{Decision: "d"})
	assert.ErrorIs(t, err, dataset.ErrCancelled)
}

func TestApproximate(t *testing.T) {
	ds := load(t, twin)

	a, err := Approximate(context.Background(), ds, "d", []string{"a"}, "yes")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 3}, a.Target)
	assert.Equal(t, []int{2, 3}, a.Lower)
	assert.Equal(t, []int{0, 1, 2, 3}, a.Upper)
	assert.Equal(t, []int{0, 1}, a.Boundary)
	assert.Equal(t, 0.5, a.Accuracy)

	a, err = Approximate(context.Background(), ds, "d", nil, "no")
	require.NoError(t, err)
	assert.Equal(t, []int{1}, a.Lower)
	assert.Equal(t, []int{1}, a.Upper)
	assert.Empty(t, a.Boundary)
	assert.Equal(t, 1.0, a.Accuracy)

	_, err = Approximate(context.Background(), ds, "d", nil, "maybe")
	assert.ErrorIs(t, err, dataset.ErrInvalidParameter)
}

func TestRun_ApproximationsCoverEveryDecision(t *testing.T) {
	res, err := Run(context.Background(), load(t, "a,d\nx,yes\nx,no\ny,no\n"), Params{Decision: "d"})
	require.NoError(t, err)

	require.Len(t, res.Approximations, 2)
	yes, no := res.Approximations[0], res.Approximations[1]
	assert.Equal(t, "yes", yes.Value)
	assert.Empty(t, yes.Lower)
	assert.Equal(t, 0.0, yes.Accuracy)
	assert.Equal(t, "no", no.Value)
	assert.Equal(t, []int{2}, no.Lower)
	assert.Equal(t, []int{0, 1, 2}, no.Upper)
}
