package curve

import (
	"sort"

	"github.com/KevinKickass/OpenBeamCore/internal/types"
)

// Curve is an ordered table of (x, y) points, e.g. excitation current
// against integrated field. It is immutable once built.
type Curve struct {
	points [][2]float64
}

// New validates the (n, 2) shape and copies the points.
func New(points [][]float64) (*Curve, error) {
	if len(points) == 0 {
		return nil, types.Errorf(types.KindConfig, "curve is empty")
	}
	c := &Curve{points: make([][2]float64, len(points))}
	for i, p := range points {
		if len(p) != 2 {
			return nil, types.Errorf(types.KindConfig, "curve row %d has %d columns, expected 2", i, len(p))
		}
		c.points[i] = [2]float64{p[0], p[1]}
	}
	return c, nil
}

func (c *Curve) Len() int { return len(c.points) }

func (c *Curve) Points() [][2]float64 {
	return append([][2]float64(nil), c.points...)
}

func (c *Curve) X() []float64 { return c.column(0) }
func (c *Curve) Y() []float64 { return c.column(1) }

func (c *Curve) column(j int) []float64 {
	out := make([]float64, len(c.points))
	for i, p := range c.points {
		out[i] = p[j]
	}
	return out
}

// Inverse swaps the columns and sorts the result by the new x.
func (c *Curve) Inverse() *Curve {
	inv := &Curve{points: make([][2]float64, len(c.points))}
	for i, p := range c.points {
		inv.points[i] = [2]float64{p[1], p[0]}
	}
	sort.SliceStable(inv.points, func(i, j int) bool {
		return inv.points[i][0] < inv.points[j][0]
	})
	return inv
}

// Scale returns a copy with y' = y*factor + offset.
func (c *Curve) Scale(factor, offset float64) *Curve {
	out := &Curve{points: make([][2]float64, len(c.points))}
	for i, p := range c.points {
		out.points[i] = [2]float64{p[0], p[1]*factor + offset}
	}
	return out
}

// Sorted returns a copy ordered by x.
func (c *Curve) Sorted() *Curve {
	out := &Curve{points: c.Points()}
	sort.SliceStable(out.points, func(i, j int) bool {
		return out.points[i][0] < out.points[j][0]
	})
	return out
}
