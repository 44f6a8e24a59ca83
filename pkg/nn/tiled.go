package nn

import (
	"slices"

	"github.com/bmharper/tiledinference"
	"golang.org/x/sync/errgroup"
)

// Minimum overlap between adjacent tiles
const tilePadding = 32

// TiledInference runs model over img. If img is larger than the model input, it is split into
// overlapping tiles, and objects that straddle tile boundaries are merged back together.
// Results are relative to the crop, and clipped to it. Tiles run on up to nThreads goroutines,
// but the results are always in tile order.
func TiledInference(model ObjectDetector, img ImageCrop, params *DetectionParams, nThreads int) ([]ObjectDetection, error) {
	config := model.Config()
	tileParams := *params
	tileParams.Unclipped = true

	tiling := tiledinference.MakeTiling(img.CropWidth, img.CropHeight, config.Width, config.Height, tilePadding)
	perTile := make([][]ObjectDetection, tiling.NumX*tiling.NumY)
	perTileBoxes := make([][]tiledinference.Box, tiling.NumX*tiling.NumY)

	var g errgroup.Group
	g.SetLimit(max(nThreads, 1))
	for ty := 0; ty < tiling.NumY; ty++ {
		for tx := 0; tx < tiling.NumX; tx++ {
			i := ty*tiling.NumX + tx
			g.Go(func() error {
				var err error
				perTile[i], perTileBoxes[i], err = detectTile(model, &tileParams, tiling, tx, ty, img)
				return err
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	objects := slices.Concat(perTile...)
	bounds := Rect{Width: img.CropWidth, Height: img.CropHeight}
	if tiling.IsSingle() {
		for i := range objects {
			objects[i].Box = objects[i].Box.Intersection(bounds)
		}
		return objects, nil
	}

	groups, mergedBoxes := tiledinference.MergeBoxes(tiling, slices.Concat(perTileBoxes...), nil)
	merged := make([]ObjectDetection, 0, len(groups))
	for i, group := range groups {
		// The merged box may be larger than any single member
		obj := objects[group[0]]
		r := mergedBoxes[i].Rect
		obj.Box = Rect{X: int(r.X1), Y: int(r.Y1), Width: int(r.Width()), Height: int(r.Height())}.Intersection(bounds)
		for _, member := range group[1:] {
			obj.Confidence = max(obj.Confidence, objects[member].Confidence)
		}
		merged = append(merged, obj)
	}
	return merged, nil
}

// Run one tile. Objects are moved into crop coordinates, and returned a second time in the form
// that tiledinference merges.
func detectTile(model ObjectDetector, params *DetectionParams, tiling tiledinference.Tiling, tx, ty int, img ImageCrop) ([]ObjectDetection, []tiledinference.Box, error) {
	r := tiling.TileRect(tx, ty)
	x1, y1 := int(r.X1), int(r.Y1)
	objects, err := model.DetectObjects(img.Crop(x1, y1, int(r.X2), int(r.Y2)), params)
	if err != nil {
		return nil, nil, err
	}
	boxes := make([]tiledinference.Box, len(objects))
	for i := range objects {
		objects[i].Box.Offset(x1, y1)
		b := objects[i].Box
		boxes[i] = tiledinference.Box{
			Rect:  tiledinference.Rect{X1: int32(b.X), Y1: int32(b.Y), X2: int32(b.X2()), Y2: int32(b.Y2())},
			Class: int32(objects[i].Class),
			Tile:  tiling.MakeTileIndex(tx, ty),
		}
	}
	return objects, boxes, nil
}
