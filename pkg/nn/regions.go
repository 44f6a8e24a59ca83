package nn

import (
	"fmt"
	"strconv"
)

// Region is a set of pixel coordinates, as two parallel slices.
// A pixel may appear more than once.
type Region struct {
	Rows []int
	Cols []int
}

func (r *Region) Len() int {
	return len(r.Rows)
}

func (r *Region) add(row, col int) {
	r.Rows = append(r.Rows, row)
	r.Cols = append(r.Cols, col)
}

// TargetRegions resolves a selection into the pixels that it covers, within an image of
// width x height. Boxes and masks are clipped to the image.
// instanceID is AllInstances, or the position of one instance within its class, as listed by InstanceIDs.
// Mask targets ignore useAdjusted, because user boxes never have masks.
func (p *Prediction) TargetRegions(className, instanceID string, targetType TargetType, useAdjusted bool, width, height int) (Region, error) {
	classID, err := p.classID(className)
	if err != nil {
		return Region{}, err
	}
	switch targetType {
	case TargetBox:
		// Instances without a box (the head of a mask-only record) keep their position, but
		// contribute no pixels.
		boxes, tail := p.boxSequences(useAdjusted)
		classes, _ := p.classSequences(useAdjusted)
		offset := len(classes) - len(tail)
		selected := []*Box{}
		for i, c := range classes {
			if c != classID {
				continue
			}
			if i >= offset {
				selected = append(selected, &boxes[i-offset])
			} else {
				selected = append(selected, nil)
			}
		}
		if selected, err = narrow(selected, instanceID); err != nil {
			return Region{}, err
		}
		return regionFromBoxes(selected, width, height), nil
	case TargetMask:
		selected := []*Mask{}
		if len(p.Masks) == len(p.Classes) {
			for i, c := range p.Classes {
				if c == classID {
					selected = append(selected, p.Masks[i])
				}
			}
		}
		if selected, err = narrow(selected, instanceID); err != nil {
			return Region{}, err
		}
		return regionFromMasks(selected, width, height), nil
	default:
		return Region{}, fmt.Errorf("%w: '%v'", ErrUnknownTargetType, targetType)
	}
}

// Narrow 'all' down to the one element at position instanceID
func narrow[T any](all []T, instanceID string) ([]T, error) {
	if instanceID == AllInstances {
		return all, nil
	}
	idx, err := strconv.Atoi(instanceID)
	if err != nil {
		return nil, fmt.Errorf("%w: '%v' is not an instance id", ErrInstanceIndex, instanceID)
	}
	if idx < 0 || idx >= len(all) {
		return nil, fmt.Errorf("%w: instance %v requested, but there are %v", ErrInstanceIndex, idx, len(all))
	}
	return all[idx : idx+1], nil
}

// Every pixel of every box, one box after the other, each in row major order.
// nil boxes are skipped.
func regionFromBoxes(boxes []*Box, width, height int) Region {
	clipped := make([]Box, 0, len(boxes))
	n := 0
	for _, b := range boxes {
		if b == nil {
			continue
		}
		c := b.Clip(width, height)
		clipped = append(clipped, c)
		n += c.Area()
	}
	r := Region{
		Rows: make([]int, 0, n),
		Cols: make([]int, 0, n),
	}
	for _, b := range clipped {
		for y := b.Y1(); y < b.Y2(); y++ {
			for x := b.X1(); x < b.X2(); x++ {
				r.add(y, x)
			}
		}
	}
	return r
}

// The union of the masks, in row major order
func regionFromMasks(masks []*Mask, width, height int) Region {
	var union *Mask
	for _, m := range masks {
		if m == nil {
			continue
		}
		if union == nil {
			union = NewMask(m.Width, m.Height)
		}
		for i := 0; i < min(len(m.Bits), len(union.Bits)); i++ {
			if m.Bits[i] {
				union.Bits[i] = true
			}
		}
	}
	r := Region{
		Rows: []int{},
		Cols: []int{},
	}
	if union == nil {
		return r
	}
	for y := 0; y < min(union.Height, height); y++ {
		for x := 0; x < min(union.Width, width); x++ {
			if union.Bits[y*union.Width+x] {
				r.add(y, x)
			}
		}
	}
	return r
}
