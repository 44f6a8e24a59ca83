package detector

import (
	"context"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/anonymiser/pkg/imageio"
	"github.com/cyclopcam/anonymiser/pkg/nn"
)

// ObjectDetector turns an nn.ObjectDetector into a Detector.
// Images larger than the model are split into tiles.
//
// Params:
//   - "threshold": minimum confidence (default nn.DefaultProbabilityThreshold)
//   - "iou": overlap above which two objects of the same class are merged (default nn.DefaultNmsIouThreshold)
type ObjectDetector struct {
	model      nn.ObjectDetector
	classNames []string
	nameToID   map[string]int
	nThreads   int
}

// NewObjectDetector wraps model. If the model config has no classes, it is assumed to be a COCO model.
func NewObjectDetector(model nn.ObjectDetector, nThreads int) *ObjectDetector {
	classNames := model.Config().Classes
	var nameToID map[string]int
	if len(classNames) == 0 {
		classNames, nameToID = nn.COCOVocabulary()
	} else {
		nameToID = nn.DenseNameToID(classNames)
	}
	return &ObjectDetector{
		model:      model,
		classNames: classNames,
		nameToID:   nameToID,
		nThreads:   max(nThreads, 1),
	}
}

func (d *ObjectDetector) Close() {
	d.model.Close()
}

func (d *ObjectDetector) ClassNames() []string {
	return d.classNames
}

func (d *ObjectDetector) Detect(ctx context.Context, img *cimg.Image, params Params) (*nn.Prediction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rgb := imageio.ToRGB(img)
	nnParams := nn.NewDetectionParams()
	nnParams.ProbabilityThreshold = float32(params.Float("threshold", nn.DefaultProbabilityThreshold))
	nnParams.NmsIouThreshold = float32(params.Float("iou", nn.DefaultNmsIouThreshold))

	objects, err := nn.TiledInference(d.model, nn.WholeImage(3, rgb.Pixels, rgb.Width, rgb.Height), nnParams, d.nThreads)
	if err != nil {
		return nil, err
	}

	bounds := nn.Rect{Width: rgb.Width, Height: rgb.Height}
	keep := make([]nn.ObjectDetection, 0, len(objects))
	for _, obj := range objects {
		if obj.Confidence < nnParams.ProbabilityThreshold || obj.Class < 0 || obj.Class >= len(d.classNames) {
			continue
		}
		obj.Box = obj.Box.Intersection(bounds)
		if obj.Box.Area() == 0 {
			continue
		}
		keep = append(keep, obj)
	}
	keep = nn.MergeOverlapping(keep, nnParams.NmsIouThreshold)
	return nn.NewPrediction(d.classNames, d.nameToID, keep), nil
}
