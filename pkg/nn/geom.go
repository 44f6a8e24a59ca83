package nn

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/chewxy/math32"
)

type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p Point) Distance(b Point) float32 {
	return math32.Sqrt(float32((p.X-b.X)*(p.X-b.X) + (p.Y-b.Y)*(p.Y-b.Y)))
}

type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (r Rect) X2() int {
	return r.X + r.Width
}

func (r Rect) Y2() int {
	return r.Y + r.Height
}

func (r Rect) Area() int {
	return r.Width * r.Height
}

func (r Rect) Intersection(b Rect) Rect {
	x1 := max(r.X, b.X)
	y1 := max(r.Y, b.Y)
	x2 := min(r.X2(), b.X2())
	y2 := min(r.Y2(), b.Y2())
	return Rect{
		X:      x1,
		Y:      y1,
		Width:  max(0, x2-x1),
		Height: max(0, y2-y1),
	}
}

// Intersection over Union
func (r Rect) IOU(b Rect) float32 {
	intersection := r.Intersection(b)
	union := r.Area() + b.Area() - intersection.Area()
	if union == 0 {
		return 0
	}
	return float32(intersection.Area()) / float32(union)
}

func (r Rect) Center() Point {
	return Point{
		X: r.X + r.Width/2,
		Y: r.Y + r.Height/2,
	}
}

func (r *Rect) Offset(dx, dy int) {
	r.X += dx
	r.Y += dy
}

// Box is an [x1, y1, x2, y2] rectangle, with x2 and y2 exclusive.
// This is the layout that detection providers emit on the wire.
type Box [4]int

func MakeBox(x1, y1, x2, y2 int) Box {
	return Box{x1, y1, x2, y2}
}

func (b Box) X1() int { return b[0] }
func (b Box) Y1() int { return b[1] }
func (b Box) X2() int { return b[2] }
func (b Box) Y2() int { return b[3] }

func (b Box) Width() int {
	return b[2] - b[0]
}

func (b Box) Height() int {
	return b[3] - b[1]
}

func (b Box) Area() int {
	return max(0, b.Width()) * max(0, b.Height())
}

func (b Box) Rect() Rect {
	return Rect{X: b[0], Y: b[1], Width: b.Width(), Height: b.Height()}
}

func (b Box) Contains(x, y int) bool {
	return x >= b[0] && x < b[2] && y >= b[1] && y < b[3]
}

// Validate returns ErrInvalidGeometry if the box has negative extent
func (b Box) Validate() error {
	if b[0] > b[2] || b[1] > b[3] {
		return fmt.Errorf("%w: box %v has x1 > x2 or y1 > y2", ErrInvalidGeometry, [4]int(b))
	}
	return nil
}

// Clip returns the part of the box inside [0,width) x [0,height).
// A box that lies entirely outside becomes empty.
func (b Box) Clip(width, height int) Box {
	x1 := min(max(b[0], 0), width)
	y1 := min(max(b[1], 0), height)
	x2 := min(max(b[2], x1), width)
	y2 := min(max(b[3], y1), height)
	return Box{x1, y1, x2, y2}
}

func BoxFromRect(r Rect) Box {
	return Box{r.X, r.Y, r.X2(), r.Y2()}
}

// UnmarshalJSON accepts integer or floating point coordinates.
// Some detectors emit float boxes, which we truncate toward zero.
func (b *Box) UnmarshalJSON(data []byte) error {
	var raw []float64
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 4 {
		return fmt.Errorf("%w: box must have 4 coordinates, not %v", ErrInvalidPrediction, len(raw))
	}
	for i, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: box coordinate is not finite", ErrSerialization)
		}
		b[i] = int(v)
	}
	return nil
}
