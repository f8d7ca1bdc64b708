package rover

import (
	"math"
	"sort"
)

type point struct {
	X, Y int
}

// Circle is a center and radius in pixel coordinates.
type Circle struct {
	X, Y, R float64
}

const circleEps = 1e-7

func (c Circle) contains(p point) bool {
	dx := float64(p.X) - c.X
	dy := float64(p.Y) - c.Y
	return math.Sqrt(dx*dx+dy*dy) <= c.R+circleEps*math.Max(1, c.R)
}

// minEnclosingCircle returns the smallest circle containing every point.
// The points are reduced to their convex hull first; the incremental
// construction then runs over hull vertices in a fixed order, so the result
// is deterministic for a given input.
func minEnclosingCircle(pts []point) Circle {
	if len(pts) == 0 {
		return Circle{}
	}
	hull := convexHull(pts)
	c := Circle{X: float64(hull[0].X), Y: float64(hull[0].Y)}
	for i := 1; i < len(hull); i++ {
		if c.contains(hull[i]) {
			continue
		}
		c = Circle{X: float64(hull[i].X), Y: float64(hull[i].Y)}
		for j := 0; j < i; j++ {
			if c.contains(hull[j]) {
				continue
			}
			c = circleFrom2(hull[i], hull[j])
			for k := 0; k < j; k++ {
				if !c.contains(hull[k]) {
					c = circleFrom3(hull[i], hull[j], hull[k])
				}
			}
		}
	}
	return c
}

func circleFrom2(a, b point) Circle {
	cx := float64(a.X+b.X) / 2
	cy := float64(a.Y+b.Y) / 2
	return Circle{X: cx, Y: cy, R: math.Hypot(float64(a.X)-cx, float64(a.Y)-cy)}
}

// circleFrom3 returns the circumcircle of a, b, c, or the widest two-point
// circle when they are collinear.
func circleFrom3(a, b, c point) Circle {
	ax, ay := float64(a.X), float64(a.Y)
	bx, by := float64(b.X)-ax, float64(b.Y)-ay
	cx, cy := float64(c.X)-ax, float64(c.Y)-ay
	d := 2 * (bx*cy - by*cx)
	if math.Abs(d) < 1e-12 {
		best := circleFrom2(a, b)
		for _, cand := range []Circle{circleFrom2(a, c), circleFrom2(b, c)} {
			if cand.R > best.R {
				best = cand
			}
		}
		return best
	}
	b2 := bx*bx + by*by
	c2 := cx*cx + cy*cy
	ux := (cy*b2 - by*c2) / d
	uy := (bx*c2 - cx*b2) / d
	return Circle{X: ux + ax, Y: uy + ay, R: math.Hypot(ux, uy)}
}

// convexHull uses Andrew's monotone chain and drops collinear points.
func convexHull(pts []point) []point {
	sorted := make([]point, len(pts))
	copy(sorted, pts)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].X != sorted[j].X {
			return sorted[i].X < sorted[j].X
		}
		return sorted[i].Y < sorted[j].Y
	})
	uniq := sorted[:1]
	for _, p := range sorted[1:] {
		if p != uniq[len(uniq)-1] {
			uniq = append(uniq, p)
		}
	}
	if len(uniq) < 3 {
		return uniq
	}

	hull := make([]point, 0, 2*len(uniq))
	for _, p := range uniq {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	lower := len(hull) + 1
	for i := len(uniq) - 2; i >= 0; i-- {
		p := uniq[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], p) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, p)
	}
	return hull[:len(hull)-1]
}

func cross(o, a, b point) int {
	return (a.X-o.X)*(b.Y-o.Y) - (a.Y-o.Y)*(b.X-o.X)
}
