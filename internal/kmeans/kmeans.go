// Package kmeans implements Lloyd's K-Means clustering over the numeric
// columns of a dataset.
package kmeans

import (
	"context"
	"math"
	"math/rand"
	"strconv"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"

	"github.com/JonMunkholm/tabinfer/internal/dataset"
)

// Init selects the centroid initialisation strategy.
type Init string

const (
	// InitRandom samples k distinct rows.
	InitRandom Init = "random"
	// InitKMeansPP samples rows with probability proportional to squared
	// distance from the centroids chosen so far.
	InitKMeansPP Init = "kmeans++"
)

const (
	DefaultMaxIter = 100
	DefaultTol     = 1e-4

	// parallelRows is the row count above which assignment is split across workers.
	parallelRows = 4096
)

// Params configures a clustering run. MaxIter and Tol carry no implicit
// defaults; use DefaultParams for the conventional values.
type Params struct {
	K       int
	Columns []string
	MaxIter int
	Tol     float64
	// RandomState seeds initialisation. Nil picks a seed from the clock; the
	// seed used is reported in the model either way.
	RandomState *int64
	Init        Init
	// Workers bounds assignment parallelism. Values below 2 run sequentially.
	Workers int
}

// DefaultParams returns params with the default iteration bound and tolerance.
func DefaultParams(k int) Params {
	return Params{K: k, MaxIter: DefaultMaxIter, Tol: DefaultTol, Init: InitRandom}
}

// Iteration records one Lloyd step.
type Iteration struct {
	Iteration int         `json:"iteration"`
	Inertia   float64     `json:"inertia"`
	Shift     float64     `json:"shift"`
	Centroids [][]float64 `json:"centroids"`
}

// Model is the result of a clustering run. Labels[i] is the cluster of
// dataset row Rows[i]; rows with a missing value in a selected column are
// listed in Skipped and carry no label.
type Model struct {
	Columns    []string    `json:"columns"`
	Centroids  [][]float64 `json:"centroids"`
	Labels     []int       `json:"labels"`
	Rows       []int       `json:"rows"`
	Skipped    []int       `json:"skipped"`
	Sizes      []int       `json:"sizes"`
	Inertia    float64     `json:"inertia"`
	Iterations int         `json:"iterations"`
	Converged  bool        `json:"converged"`
	Seed       int64       `json:"seed"`
	Init       Init        `json:"init"`
	History    []Iteration `json:"history"`
}

// Run clusters the selected numeric columns of ds into p.K groups.
func Run(ctx context.Context, ds *dataset.Dataset, p Params) (*Model, error) {
	cols, idx, err := selectColumns(ds, p.Columns)
	if err != nil {
		return nil, err
	}
	if p.MaxIter < 1 {
		return nil, dataset.Invalidf("max_iter must be at least 1, got %d", p.MaxIter)
	}
	if p.Tol < 0 || math.IsNaN(p.Tol) || math.IsInf(p.Tol, 0) {
		return nil, dataset.Invalidf("tol must be a finite non-negative number, got %v", p.Tol)
	}
	init := p.Init
	if init == "" {
		init = InitRandom
	}
	if init != InitRandom && init != InitKMeansPP {
		return nil, dataset.Invalidf("init must be %q or %q, got %q", InitRandom, InitKMeansPP, init)
	}

	points, rows, skipped := extractPoints(ds, idx)
	if p.K < 1 {
		return nil, dataset.Invalidf("k must be at least 1, got %d", p.K)
	}
	if p.K > len(points) {
		return nil, dataset.Invalidf("k (%d) exceeds the number of usable rows (%d)", p.K, len(points))
	}

	seed := time.Now().UnixNano()
	if p.RandomState != nil {
		seed = *p.RandomState
	}
	rng := rand.New(rand.NewSource(seed))

	var centroids [][]float64
	if init == InitKMeansPP {
		centroids = initPlusPlus(points, p.K, rng)
	} else {
		centroids = initRandom(points, p.K, rng)
	}

	a := &assigner{points: points, workers: p.Workers}
	labels := make([]int, len(points))
	model := &Model{Columns: cols, Rows: rows, Skipped: skipped, Seed: seed, Init: init}

	for iter := 1; iter <= p.MaxIter; iter++ {
		if err := dataset.Canceled(ctx, "k-means iteration "+strconv.Itoa(iter)); err != nil {
			return nil, err
		}
		if err := a.assign(ctx, centroids, labels); err != nil {
			return nil, err
		}

		next := updateCentroids(points, labels, centroids)
		shift := 0.0
		for c := range next {
			shift = math.Max(shift, floats.Distance(next[c], centroids[c], 2))
		}
		centroids = next

		model.Iterations = iter
		model.History = append(model.History, Iteration{
			Iteration: iter,
			Inertia:   inertia(points, labels, centroids),
			Shift:     shift,
			Centroids: cloneMatrix(centroids),
		})

		if shift < p.Tol {
			model.Converged = true
			break
		}
	}

	// Labels are those of the last assignment step, so every non-empty
	// centroid is the mean of the rows labelled with it.
	model.Centroids = centroids
	model.Labels = labels
	model.Inertia = model.History[len(model.History)-1].Inertia
	model.Sizes = make([]int, p.K)
	for _, l := range labels {
		model.Sizes[l]++
	}
	return model, nil
}

// Predict returns the index of the centroid nearest to point.
func (m *Model) Predict(point []float64) int {
	return nearest(point, m.Centroids)
}

func selectColumns(ds *dataset.Dataset, names []string) ([]string, []int, error) {
	if len(names) == 0 {
		names = ds.ColumnsOfType(dataset.Numeric)
		if len(names) == 0 {
			return nil, nil, dataset.Invalidf("table has no numeric columns to cluster")
		}
	}
	idx, err := ds.Resolve(names)
	if err != nil {
		return nil, nil, err
	}
	for i, c := range idx {
		if ds.Column(c).Type != dataset.Numeric {
			return nil, nil, dataset.Invalidf("column %q is not numeric", names[i])
		}
	}
	return append([]string(nil), names...), idx, nil
}

func extractPoints(ds *dataset.Dataset, idx []int) (points [][]float64, rows, skipped []int) {
	rows, skipped = []int{}, []int{}
	for r := 0; r < ds.NumRows(); r++ {
		pt := make([]float64, len(idx))
		ok := true
		for j, c := range idx {
			f, isNum := ds.At(r, c).Float()
			if !isNum {
				ok = false
				break
			}
			pt[j] = f
		}
		if !ok {
			skipped = append(skipped, r)
			continue
		}
		points = append(points, pt)
		rows = append(rows, r)
	}
	return points, rows, skipped
}

func initRandom(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	picks := rng.Perm(len(points))[:k]
	return lo.Map(picks, func(i int, _ int) []float64 {
		return append([]float64(nil), points[i]...)
	})
}

func initPlusPlus(points [][]float64, k int, rng *rand.Rand) [][]float64 {
	n := len(points)
	chosen := make([]bool, n)
	first := rng.Intn(n)
	chosen[first] = true
	centroids := [][]float64{append([]float64(nil), points[first]...)}

	d2 := make([]float64, n)
	for len(centroids) < k {
		last := centroids[len(centroids)-1]
		total := 0.0
		for i, pt := range points {
			d := floats.Distance(pt, last, 2)
			if len(centroids) == 1 || d*d < d2[i] {
				d2[i] = d * d
			}
			if !chosen[i] {
				total += d2[i]
			}
		}

		pick := -1
		if total > 0 {
			target := rng.Float64() * total
			for i := range points {
				if chosen[i] {
					continue
				}
				target -= d2[i]
				if target <= 0 {
					pick = i
					break
				}
			}
		}
		if pick < 0 {
			// All remaining rows coincide with a centroid; pick uniformly.
			free := lo.Filter(lo.Range(n), func(i int, _ int) bool { return !chosen[i] })
			pick = free[rng.Intn(len(free))]
		}
		chosen[pick] = true
		centroids = append(centroids, append([]float64(nil), points[pick]...))
	}
	return centroids
}

type assigner struct {
	points  [][]float64
	workers int
}

// assign writes the nearest-centroid index for every point into labels.
func (a *assigner) assign(ctx context.Context, centroids [][]float64, labels []int) error {
	n := len(a.points)
	if a.workers < 2 || n < parallelRows {
		for i, pt := range a.points {
			labels[i] = nearest(pt, centroids)
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	chunk := (n + a.workers - 1) / a.workers
	for start := 0; start < n; start += chunk {
		from, to := start, min(start+chunk, n)
		g.Go(func() error {
			for i := from; i < to; i++ {
				if (i-from)%1024 == 0 && gctx.Err() != nil {
					return dataset.Canceled(gctx, "k-means assignment")
				}
				labels[i] = nearest(a.points[i], centroids)
			}
			return nil
		})
	}
	return g.Wait()
}

// nearest returns the closest centroid; ties go to the lowest index.
func nearest(pt []float64, centroids [][]float64) int {
	best, bestDist := 0, math.Inf(1)
	for c, centroid := range centroids {
		if d := floats.Distance(pt, centroid, 2); d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// updateCentroids returns the mean of each cluster. A cluster with no
// members keeps its previous centroid.
func updateCentroids(points [][]float64, labels []int, prev [][]float64) [][]float64 {
	dim := len(prev[0])
	sums := make([][]float64, len(prev))
	counts := make([]int, len(prev))
	for c := range sums {
		sums[c] = make([]float64, dim)
	}
	for i, pt := range points {
		floats.Add(sums[labels[i]], pt)
		counts[labels[i]]++
	}
	for c := range sums {
		if counts[c] == 0 {
			copy(sums[c], prev[c])
			continue
		}
		floats.Scale(1/float64(counts[c]), sums[c])
	}
	return sums
}

func inertia(points [][]float64, labels []int, centroids [][]float64) float64 {
	total := 0.0
	for i, pt := range points {
		d := floats.Distance(pt, centroids[labels[i]], 2)
		total += d * d
	}
	return total
}

func cloneMatrix(m [][]float64) [][]float64 {
	return lo.Map(m, func(row []float64, _ int) []float64 {
		return append([]float64(nil), row...)
	})
}
