// Package detector runs object detectors over images, and produces nn.Prediction records.
// Detectors are either local (Static, ObjectDetector), or behind a detection provider
// that speaks HTTP (Remote).
package detector

import (
	"context"
	"errors"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/anonymiser/pkg/nn"
)

var ErrInvalidModelIndex = errors.New("invalid model index")
var ErrDetectorUnavailable = errors.New("detector unavailable")

// Detector finds objects in an image
type Detector interface {
	// Detect returns a record with every field populated. img is 24-bit RGB.
	Detect(ctx context.Context, img *cimg.Image, params Params) (*nn.Prediction, error)

	// ClassNames is the vocabulary of the detector. It never changes.
	ClassNames() []string
}

// Params are detector specific options, such as a confidence threshold
type Params map[string]any

// Float returns a numeric parameter, or def if it is absent or not a number
func (p Params) Float(key string, def float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case float32:
		return float64(v)
	case int:
		return float64(v)
	}
	return def
}

// Info describes the detectors of a provider. This is the body of GET /info.
type Info struct {
	Choices      []string   `json:"choices"`
	Descriptions []string   `json:"descriptions"`
	Classes      [][]string `json:"classes"`
}

// Body of POST /detect
type DetectRequest struct {
	ImageStr   string `json:"image_str"` // base64 JPEG
	ModelIndex int    `json:"model_index"`
}

// Response of POST /detect
type DetectResponse struct {
	Predictions *nn.Prediction `json:"predictions"`
}
