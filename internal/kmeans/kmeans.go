package kmeans

import (
	"cmp"
	"context"
	"log/slog"
	"math"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/annidx/distance"
)

// minChunk is the smallest slice of vectors handed to one assignment worker.
const minChunk = 256

// Options configures Train.
type Options struct {
	Metric        distance.Metric
	MaxIterations int
	// Workers > 1 fans the assignment step out over goroutines.
	// The centroid update is always serial.
	Workers int
	Logger  *slog.Logger
}

// Result is the outcome of Train.
type Result struct {
	Centroids   [][]float32
	Assignments []int // Assignments[i] is the cluster of vectors[i]
	Iterations  int
	Converged   bool
}

// Train runs Lloyd's algorithm starting from initial, which is not modified.
//
// Each iteration assigns every vector to its nearest centroid (ties go to
// the lowest centroid index), then moves each centroid to the mean of its
// members. A centroid without members keeps its position. Training stops
// when no assignment changes or after MaxIterations passes; ctx is checked
// once per iteration. In both cases every returned assignment is the
// nearest of the returned centroids.
func Train(ctx context.Context, vectors [][]float32, initial [][]float32, opts Options) (*Result, error) {
	distFunc, err := distance.Provider(opts.Metric)
	if err != nil {
		return nil, err
	}

	k := len(initial)
	centroids := make([][]float32, k)
	for i, c := range initial {
		centroids[i] = slices.Clone(c)
	}

	n := len(vectors)
	assignments := make([]int, n)
	for i := range assignments {
		assignments[i] = -1
	}
	next := make([]int, n)

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	res := &Result{Centroids: centroids, Assignments: assignments}

	for iter := 0; iter < opts.MaxIterations; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		if err := assign(ctx, vectors, centroids, next, distFunc, opts.Workers); err != nil {
			return nil, err
		}
		res.Iterations++

		changed := 0
		for i := range next {
			if next[i] != assignments[i] {
				changed++
			}
		}
		copy(assignments, next)

		logger.Debug("kmeans iteration", "iteration", iter+1, "changed", changed)

		if changed == 0 {
			res.Converged = true
			break
		}
		// The final assignment stays paired with the centroids it was
		// computed against.
		if iter == opts.MaxIterations-1 {
			break
		}

		update(vectors, centroids, assignments, opts.Metric)
	}

	return res, nil
}

// assign writes the nearest centroid of every vector into out.
// Workers only read centroids and write disjoint ranges of out.
func assign(ctx context.Context, vectors, centroids [][]float32, out []int, fn distance.Func, workers int) error {
	n := len(vectors)
	if workers <= 1 || n < 2*minChunk {
		for i, v := range vectors {
			out[i] = Nearest(v, centroids, fn)
		}
		return nil
	}

	chunk := max(minChunk, (n+workers-1)/workers)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for start := 0; start < n; start += chunk {
		end := min(start+chunk, n)
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for i := start; i < end; i++ {
				out[i] = Nearest(vectors[i], centroids, fn)
			}
			return nil
		})
	}
	return g.Wait()
}

// update moves every non-empty centroid to the mean of its members.
func update(vectors, centroids [][]float32, assignments []int, metric distance.Metric) {
	k := len(centroids)
	if k == 0 {
		return
	}
	dim := len(centroids[0])

	sums := make([][]float32, k)
	for j := range sums {
		sums[j] = make([]float32, dim)
	}
	counts := make([]int, k)

	for i, c := range assignments {
		distance.AddScaled(sums[c], 1, vectors[i])
		counts[c]++
	}

	for j := range centroids {
		if counts[j] == 0 {
			continue
		}
		distance.ScaleInPlace(sums[j], 1/float32(counts[j]))
		if metric == distance.MetricCosine {
			// Spherical k-means: keep centroids on the unit sphere.
			distance.NormalizeL2InPlace(sums[j])
		}
		copy(centroids[j], sums[j])
	}
}

// Nearest returns the index of the centroid closest to vec.
// Ties go to the lowest index. Returns -1 if there are no centroids.
func Nearest(vec []float32, centroids [][]float32, fn distance.Func) int {
	best := -1
	minDist := float32(math.Inf(1))

	for j, c := range centroids {
		d := fn(vec, c)
		if d < minDist || best == -1 {
			minDist = d
			best = j
		}
	}

	return best
}

type centroidDist struct {
	id   int
	dist float32
}

// Closest returns the indices of the n centroids closest to query,
// nearest first, ties broken by lowest index.
func Closest(query []float32, centroids [][]float32, n int, fn distance.Func) []int {
	n = min(n, len(centroids))
	if n <= 0 {
		return nil
	}

	dists := make([]centroidDist, len(centroids))
	for i, c := range centroids {
		dists[i] = centroidDist{id: i, dist: fn(query, c)}
	}

	slices.SortFunc(dists, func(a, b centroidDist) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.id, b.id)
	})

	result := make([]int, n)
	for i := range n {
		result[i] = dists[i].id
	}

	return result
}
