package model

import "math"

// Tile is an integer grid position. Entities always sit on a tile.
type Tile struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (t Tile) Point() Point { return Point{X: float64(t.X), Y: float64(t.Y)} }

// Point is a continuous position used by lane polylines and the planner.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p Point) Tile() Tile {
	return Tile{X: int(math.Round(p.X)), Y: int(math.Round(p.Y))}
}

func Dist(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func TileDist(a, b Tile) float64 {
	return Dist(a.Point(), b.Point())
}

// PolylineLength returns the arc length of an ordered polyline.
func PolylineLength(poly []Point) float64 {
	total := 0.0
	for i := 1; i < len(poly); i++ {
		total += Dist(poly[i-1], poly[i])
	}
	return total
}

// PointAt returns the position at arc length s, clamped to the polyline ends.
func PointAt(poly []Point, s float64) Point {
	if len(poly) == 0 {
		return Point{}
	}
	if s <= 0 || len(poly) == 1 {
		return poly[0]
	}
	walked := 0.0
	for i := 1; i < len(poly); i++ {
		seg := Dist(poly[i-1], poly[i])
		if seg <= 0 {
			continue
		}
		if walked+seg >= s {
			f := (s - walked) / seg
			return Point{
				X: poly[i-1].X + (poly[i].X-poly[i-1].X)*f,
				Y: poly[i-1].Y + (poly[i].Y-poly[i-1].Y)*f,
			}
		}
		walked += seg
	}
	return poly[len(poly)-1]
}

// Project finds the closest point on the polyline to p. It returns the arc
// length of that point and the straight-line distance from p to it.
func Project(poly []Point, p Point) (s float64, dist float64) {
	if len(poly) == 0 {
		return 0, math.Inf(1)
	}
	if len(poly) == 1 {
		return 0, Dist(poly[0], p)
	}
	best := math.Inf(1)
	walked := 0.0
	for i := 1; i < len(poly); i++ {
		a, b := poly[i-1], poly[i]
		seg := Dist(a, b)
		f := 0.0
		if seg > 0 {
			f = ((p.X-a.X)*(b.X-a.X) + (p.Y-a.Y)*(b.Y-a.Y)) / (seg * seg)
			f = math.Max(0, math.Min(1, f))
		}
		q := Point{X: a.X + (b.X-a.X)*f, Y: a.Y + (b.Y-a.Y)*f}
		if d := Dist(q, p); d < best {
			best = d
			s = walked + seg*f
		}
		walked += seg
	}
	return s, best
}
