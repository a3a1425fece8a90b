package reduct

import (
	"context"

	"github.com/bits-and-blooms/bitset"

	"github.com/JonMunkholm/tabinfer/internal/dataset"
)

// Approximation is the rough-set lower and upper approximation of the rows
// holding one decision value.
type Approximation struct {
	Decision   string   `json:"decision"`
	Attributes []string `json:"attributes"`
	Value      string   `json:"value"`
	Target     []int    `json:"target"`
	Lower      []int    `json:"lower"`
	Upper      []int    `json:"upper"`
	Boundary   []int    `json:"boundary"`
	// Accuracy is |lower| / |upper|; 1 when the upper approximation is empty.
	Accuracy float64 `json:"accuracy"`
}

func rows(b *bitset.BitSet) []int {
	out := make([]int, 0, b.Count())
	for i, ok := b.NextSet(0); ok; i, ok = b.NextSet(i + 1) {
		out = append(out, int(i))
	}
	return out
}

// approximate computes the approximation of decision code d under mask.
func (an *analysis) approximate(mask uint64, d uint32) Approximation {
	n := uint(an.t.n)
	block, blocks := an.t.partition(mask)

	target := bitset.New(n)
	for r, code := range an.t.decisions {
		if code == d {
			target.Set(uint(r))
		}
	}

	classes := make([]*bitset.BitSet, blocks)
	for r, b := range block {
		if classes[b] == nil {
			classes[b] = bitset.New(n)
		}
		classes[b].Set(uint(r))
	}

	lower, upper := bitset.New(n), bitset.New(n)
	for _, c := range classes {
		switch hit := c.IntersectionCardinality(target); {
		case hit == c.Count():
			lower.InPlaceUnion(c)
			upper.InPlaceUnion(c)
		case hit > 0:
			upper.InPlaceUnion(c)
		}
	}

	acc := 1.0
	if upper.Count() > 0 {
		acc = float64(lower.Count()) / float64(upper.Count())
	}
	return Approximation{
		Decision:   an.ds.Column(an.decision).Name,
		Attributes: an.names(mask),
		Value:      an.decisionOf[d],
		Target:     rows(target),
		Lower:      rows(lower),
		Upper:      rows(upper),
		Boundary:   rows(upper.Difference(lower)),
		Accuracy:   acc,
	}
}

func (an *analysis) approximations(mask uint64) []Approximation {
	out := make([]Approximation, len(an.decisionOf))
	for d := range an.decisionOf {
		out[d] = an.approximate(mask, uint32(d))
	}
	return out
}

// Approximate computes the approximation of the rows whose decision equals
// value, using the given condition attributes. An empty attribute list uses
// every column except the decision.
func Approximate(ctx context.Context, ds *dataset.Dataset, decision string, attributes []string, value string) (*Approximation, error) {
	an, err := prepare(ds, decision, attributes)
	if err != nil {
		return nil, err
	}
	if len(an.conditions) > 64 {
		return nil, dataset.Invalidf("at most 64 attributes are supported, got %d", len(an.conditions))
	}
	if err := dataset.Canceled(ctx, "approximation"); err != nil {
		return nil, err
	}

	col := ds.Column(an.decision)
	key := dataset.CanonicalText(value, col.Type)
	for d, text := range an.decisionOf {
		if text == key {
			a := an.approximate(an.fullMask(), uint32(d))
			return &a, nil
		}
	}
	return nil, dataset.Invalidf("decision value %q does not occur in column %q", value, decision)
}
