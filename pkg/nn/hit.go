package nn

import (
	"slices"

	flatbush "github.com/bmharper/flatbush-go"
)

// BoxesAt returns the indices of the boxes that contain the point (x,y), nearest box center first.
// The indices refer to the adjusted boxes when useAdjusted is true and the record has been adjusted.
func (p *Prediction) BoxesAt(x, y int, useAdjusted bool) []int {
	boxes := p.Boxes
	if useAdjusted && p.Adjusted != nil {
		boxes = p.BoxesAdj
	}
	if len(boxes) == 0 {
		return []int{}
	}

	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(boxes))
	for _, b := range boxes {
		fb.Add(int32(b.X1()), int32(b.Y1()), int32(b.X2()), int32(b.Y2()))
	}
	fb.Finish()

	hits := []int{}
	for _, i := range fb.Search(int32(x), int32(y), int32(x), int32(y)) {
		// The index treats edges as inclusive, but our boxes exclude x2 and y2
		if boxes[i].Contains(x, y) {
			hits = append(hits, i)
		}
	}

	pt := Point{X: x, Y: y}
	slices.SortStableFunc(hits, func(a, b int) int {
		da := boxes[a].Rect().Center().Distance(pt)
		db := boxes[b].Rect().Center().Distance(pt)
		if da < db {
			return -1
		} else if da > db {
			return 1
		}
		return a - b
	})
	return hits
}
