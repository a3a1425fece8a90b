package reduct

import (
	"math/bits"
	"sync"

	"go.uber.org/atomic"
)

// table is the coded form of a decision table: every condition value and
// decision value replaced by a small integer so that indiscernibility is a
// comparison of codes.
type table struct {
	n         int
	attrs     [][]uint32 // attrs[a][row]
	decisions []uint32
}

// partition groups rows by their codes on the attributes in mask. block[r]
// is the class id of row r; ids are assigned in order of first appearance.
func (t *table) partition(mask uint64) (block []int32, blocks int) {
	block = make([]int32, t.n)
	blocks = 1
	if t.n == 0 {
		return block, 0
	}
	for m := mask; m != 0; m &= m - 1 {
		a := bits.TrailingZeros64(m)
		codes := t.attrs[a]
		next := make(map[uint64]int32, blocks)
		for r := 0; r < t.n; r++ {
			key := uint64(block[r])<<32 | uint64(codes[r])
			id, ok := next[key]
			if !ok {
				id = int32(len(next))
				next[key] = id
			}
			block[r] = id
		}
		blocks = len(next)
	}
	return block, blocks
}

// positive returns the size of the positive region of the decision under
// the attributes in mask: rows whose class is decision-consistent.
func (t *table) positive(mask uint64) int {
	block, blocks := t.partition(mask)
	first := make([]uint32, blocks)
	size := make([]int, blocks)
	consistent := make([]bool, blocks)
	for r, b := range block {
		if size[b] == 0 {
			first[b] = t.decisions[r]
			consistent[b] = true
		} else if t.decisions[r] != first[b] {
			consistent[b] = false
		}
		size[b]++
	}
	pos := 0
	for b := range size {
		if consistent[b] {
			pos += size[b]
		}
	}
	return pos
}

// arena memoises positive-region sizes per attribute subset.
type arena struct {
	t         *table
	mu        sync.Mutex
	memo      map[uint64]int
	evaluated atomic.Int64
}

func newArena(t *table) *arena {
	return &arena{t: t, memo: make(map[uint64]int)}
}

func (a *arena) positive(mask uint64) int {
	a.mu.Lock()
	pos, ok := a.memo[mask]
	a.mu.Unlock()
	if ok {
		return pos
	}

	pos = a.t.positive(mask)
	a.evaluated.Inc()

	a.mu.Lock()
	a.memo[mask] = pos
	a.mu.Unlock()
	return pos
}

// combinations returns every mask over m attributes with exactly k bits
// set, in increasing numeric order.
func combinations(m, k int) []uint64 {
	if k == 0 {
		return []uint64{0}
	}
	if k > m {
		return nil
	}
	var out []uint64
	limit := uint64(1) << uint(m)
	for c := uint64(1)<<uint(k) - 1; c < limit; {
		out = append(out, c)
		// Gosper's hack: next integer with the same popcount.
		lowest := c & -c
		ripple := c + lowest
		c = ((ripple ^ c) >> 2 / lowest) | ripple
	}
	return out
}

// members lists attribute indices set in mask in ascending order.
func members(mask uint64) []int {
	out := make([]int, 0, bits.OnesCount64(mask))
	for m := mask; m != 0; m &= m - 1 {
		out = append(out, bits.TrailingZeros64(m))
	}
	return out
}
