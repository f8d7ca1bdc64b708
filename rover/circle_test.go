package rover

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
)

func TestMinEnclosingCircle(t *testing.T) {
	tests := []struct {
		name string
		pts  []point
		want Circle
	}{
		{"empty", nil, Circle{}},
		{"single", []point{{3, 4}}, Circle{X: 3, Y: 4}},
		{"pair", []point{{0, 0}, {10, 0}}, Circle{X: 5, Y: 0, R: 5}},
		{"collinear", []point{{0, 0}, {4, 0}, {2, 0}, {10, 0}}, Circle{X: 5, Y: 0, R: 5}},
		{"square", []point{{0, 0}, {4, 0}, {4, 4}, {0, 4}, {2, 2}}, Circle{X: 2, Y: 2, R: math.Sqrt(8)}},
		{"right triangle", []point{{0, 0}, {6, 0}, {0, 8}}, Circle{X: 3, Y: 4, R: 5}},
		{"obtuse triangle", []point{{0, 0}, {10, 0}, {5, 1}}, Circle{X: 5, Y: 0, R: 5}},
	}
	approx := cmp.Comparer(func(a, b float64) bool { return math.Abs(a-b) < 1e-9 })
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := minEnclosingCircle(tt.pts)
			if diff := cmp.Diff(tt.want, got, approx); diff != "" {
				t.Errorf("minEnclosingCircle mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMinEnclosingCircleContainsEveryPoint(t *testing.T) {
	var pts []point
	for i := 0; i < 200; i++ {
		pts = append(pts, point{X: (i * 37) % 101, Y: (i * 53) % 67})
	}
	c := minEnclosingCircle(pts)
	for _, p := range pts {
		assert.True(t, c.contains(p), "point %v outside %+v", p, c)
	}
	assert.Equal(t, c, minEnclosingCircle(pts))
}

func TestConvexHull(t *testing.T) {
	pts := []point{{0, 0}, {2, 0}, {4, 0}, {4, 4}, {0, 4}, {1, 1}, {2, 3}, {0, 0}}
	assert.ElementsMatch(t, []point{{0, 0}, {4, 0}, {4, 4}, {0, 4}}, convexHull(pts))
	assert.Equal(t, []point{{1, 1}}, convexHull([]point{{1, 1}, {1, 1}}))
}
