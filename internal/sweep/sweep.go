// Package sweep solves the lab model over a grid of parameter values.
package sweep

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"strconv"
	"strings"

	"github.com/myth/coroner/internal/lab"
	"golang.org/x/sync/errgroup"
)

// maxAxisValues bounds a single range expression.
const maxAxisValues = 10000

// Axis is one swept parameter and the values it takes.
type Axis struct {
	Name   string
	Values []float64
}

// ParseAxis reads "name=v1,v2,..." or "name=from:to:step" (inclusive).
func ParseAxis(s string) (Axis, error) {
	name, rest, ok := strings.Cut(s, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" || rest == "" {
		return Axis{}, fmt.Errorf("axis %q: want name=v1,v2 or name=from:to:step", s)
	}

	if parts := strings.Split(rest, ":"); len(parts) == 3 {
		var bounds [3]float64
		for i, p := range parts {
			v, err := parseValue(p)
			if err != nil {
				return Axis{}, fmt.Errorf("axis %q: %w", s, err)
			}
			bounds[i] = v
		}
		from, to, step := bounds[0], bounds[1], bounds[2]
		if step <= 0 || to < from {
			return Axis{}, fmt.Errorf("axis %q: range must be ascending with a positive step", s)
		}
		count := math.Floor((to-from)/step+1e-9) + 1
		if math.IsInf(count, 0) || count > maxAxisValues {
			return Axis{}, fmt.Errorf("axis %q: more than %d values", s, maxAxisValues)
		}
		n := int(count)
		values := make([]float64, n)
		for i := range values {
			// round away accumulated step error, e.g. 0.1*3
			values[i] = math.Round((from+float64(i)*step)*1e9) / 1e9
		}
		return Axis{Name: name, Values: values}, nil
	}

	var values []float64
	for _, p := range strings.Split(rest, ",") {
		v, err := parseValue(p)
		if err != nil {
			return Axis{}, fmt.Errorf("axis %q: %w", s, err)
		}
		values = append(values, v)
	}
	return Axis{Name: name, Values: values}, nil
}

func parseValue(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("%v is not finite", v)
	}
	return v, nil
}

// Point is the outcome of one grid cell. Err is set when the cell's
// parameters were rejected or the integrator faulted.
type Point struct {
	Values  map[string]float64
	Summary lab.Summary
	Err     error
}

type Grid struct {
	axes    []Axis
	workers int
}

func NewGrid(axes ...Axis) *Grid {
	return &Grid{axes: axes, workers: runtime.NumCPU()}
}

// WithWorkers bounds the number of concurrent solves.
func (g *Grid) WithWorkers(n int) *Grid {
	if n > 0 {
		g.workers = n
	}
	return g
}

// Size is the number of cells in the grid.
func (g *Grid) Size() int {
	if len(g.axes) == 0 {
		return 0
	}
	n := 1
	for _, a := range g.axes {
		n *= len(a.Values)
	}
	return n
}

// Run solves every cell starting from base. Cells are returned in grid
// order with the last axis varying fastest. Per-cell failures are recorded
// on the point; Run itself fails only on cancellation.
func (g *Grid) Run(ctx context.Context, base lab.Params, opts ...lab.Option) ([]Point, error) {
	var cells []map[string]float64
	g.enumerate(0, make(map[string]float64), &cells)

	points := make([]Point, len(cells))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)

	for i, values := range cells {
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			points[i] = g.solve(base, values, opts)
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return points, nil
}

func (g *Grid) enumerate(depth int, current map[string]float64, out *[]map[string]float64) {
	if depth == len(g.axes) {
		if depth > 0 {
			*out = append(*out, current)
		}
		return
	}

	axis := g.axes[depth]
	for _, val := range axis.Values {
		next := make(map[string]float64, len(current)+1)
		for k, v := range current {
			next[k] = v
		}
		next[axis.Name] = val

		g.enumerate(depth+1, next, out)
	}
}

// solve applies the cell's edits in axis order, so a cell is rejected if any
// intermediate edit is.
func (g *Grid) solve(base lab.Params, values map[string]float64, opts []lab.Option) Point {
	pt := Point{Values: values}

	ctrl, err := lab.New(base, opts...)
	if err != nil {
		pt.Err = err
		return pt
	}
	for _, axis := range g.axes {
		if err := ctrl.SetParameter(axis.Name, values[axis.Name]); err != nil {
			pt.Err = err
			return pt
		}
	}

	traj, err := ctrl.Recompute()
	if err != nil {
		pt.Err = err
		return pt
	}
	pt.Summary = traj.Summary()
	return pt
}

// Best returns the successful point with the smallest metric.
func Best(points []Point, metric func(lab.Summary) float64) (Point, bool) {
	best, found := Point{}, false
	bestVal := math.Inf(1)
	for _, pt := range points {
		if pt.Err != nil {
			continue
		}
		if v := metric(pt.Summary); v < bestVal {
			best, bestVal, found = pt, v, true
		}
	}
	return best, found
}

// Metrics names the summary fields a sweep can rank by.
var Metrics = map[string]func(lab.Summary) float64{
	"peak_infectious": func(s lab.Summary) float64 { return s.PeakInfectious },
	"peak_day":        func(s lab.Summary) float64 { return float64(s.PeakDay) },
	"attack_rate":     func(s lab.Summary) float64 { return s.AttackRate },
	"final_removed":   func(s lab.Summary) float64 { return s.FinalRemoved },
}
