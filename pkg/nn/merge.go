package nn

import (
	"slices"

	flatbush "github.com/bmharper/flatbush-go"
)

// MergeOverlapping removes detections that overlap a more confident detection of the same
// class by at least minIoU. The survivors keep their original order.
func MergeOverlapping(input []ObjectDetection, minIoU float32) []ObjectDetection {
	// Create spatial index to avoid O(N^2) comparisons
	fb := flatbush.NewFlatbush[int32]()
	fb.Reserve(len(input))
	for _, b := range input {
		fb.Add(int32(b.Box.X), int32(b.Box.Y), int32(b.Box.X2()), int32(b.Box.Y2()))
	}
	fb.Finish()

	// Visit the most confident detections first, so that they win
	order := make([]int, len(input))
	for i := range order {
		order[i] = i
	}
	slices.SortStableFunc(order, func(a, b int) int {
		if input[a].Confidence > input[b].Confidence {
			return -1
		} else if input[a].Confidence < input[b].Confidence {
			return 1
		}
		return 0
	})

	deleted := map[int]bool{}
	for _, i := range order {
		if deleted[i] {
			continue
		}
		in := input[i]
		for _, j := range fb.Search(int32(in.Box.X), int32(in.Box.Y), int32(in.Box.X2()), int32(in.Box.Y2())) {
			if i == j || deleted[j] || input[j].Class != in.Class {
				continue
			}
			if in.Box.IOU(input[j].Box) >= minIoU {
				deleted[j] = true
			}
		}
	}

	retain := make([]ObjectDetection, 0, len(input))
	for i, obj := range input {
		if !deleted[i] {
			retain = append(retain, obj)
		}
	}
	return retain
}
