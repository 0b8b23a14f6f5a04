// Package optim searches parameter grids for the setting that minimizes a
// run metric, evaluating grid points in parallel.
package optim

import (
	"context"
	"errors"
	"fmt"
	"math"
	"runtime"
	"sync"
)

// Evaluator runs one parameter setting and returns its metrics.
type Evaluator func(ctx context.Context, params map[string]float64) (map[string]float64, error)

type Candidate struct {
	Params  map[string]float64
	Metrics map[string]float64
	Err     error
}

type GridSearch struct {
	paramNames []string
	ranges     [][]float64
	Workers    int // 0 uses GOMAXPROCS
}

func NewGridSearch(params []string, ranges [][]float64) (*GridSearch, error) {
	if len(params) == 0 || len(params) != len(ranges) {
		return nil, fmt.Errorf("grid needs one range per parameter, got %d names and %d ranges", len(params), len(ranges))
	}
	for i, r := range ranges {
		if len(r) == 0 {
			return nil, fmt.Errorf("empty range for %s", params[i])
		}
	}
	return &GridSearch{paramNames: params, ranges: ranges}, nil
}

// Points enumerates the grid, last parameter varying fastest.
func (g *GridSearch) Points() []map[string]float64 {
	var out []map[string]float64
	g.collect(0, make(map[string]float64), &out)
	return out
}

func (g *GridSearch) collect(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.paramNames) {
		p := make(map[string]float64, len(current))
		for k, v := range current {
			p[k] = v
		}
		*out = append(*out, p)
		return
	}

	name := g.paramNames[depth]
	for _, val := range g.ranges[depth] {
		current[name] = val
		g.collect(depth+1, current, out)
	}
	delete(current, name)
}

// Search evaluates every grid point and returns the one with the smallest
// metric, plus all candidates in grid order. Failed points are kept in the
// list with Err set; the search fails only when every point fails.
func (g *GridSearch) Search(ctx context.Context, eval Evaluator, metric string) (Candidate, []Candidate, error) {
	points := g.Points()
	all := make([]Candidate, len(points))

	workers := g.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for idx := range jobs {
				m, err := eval(ctx, points[idx])
				if err == nil {
					if _, ok := m[metric]; !ok {
						err = fmt.Errorf("metric %q not reported", metric)
					}
				}
				all[idx] = Candidate{Params: points[idx], Metrics: m, Err: err}
			}
		}()
	}

feed:
	for i := range points {
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return Candidate{}, all, err
	}

	bestIdx := -1
	best := math.Inf(1)
	var errs []error
	for i, c := range all {
		if c.Err != nil {
			errs = append(errs, c.Err)
			continue
		}
		if v := c.Metrics[metric]; v < best || bestIdx < 0 {
			best, bestIdx = v, i
		}
	}
	if bestIdx < 0 {
		return Candidate{}, all, fmt.Errorf("every grid point failed: %w", errors.Join(errs...))
	}
	return all[bestIdx], all, nil
}

// Linspace returns n evenly spaced values from lo to hi inclusive.
func Linspace(lo, hi float64, n int) []float64 {
	if n <= 1 {
		return []float64{lo}
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out
}
