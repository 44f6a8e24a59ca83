package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/anonymiser/pkg/nn"
)

// Static replays a stored record, whatever the image.
// Useful for tests, and for serving the results of an offline detector.
type Static struct {
	pred *nn.Prediction
}

func NewStatic(pred *nn.Prediction) (*Static, error) {
	pred = pred.Clone()
	pred.Adjusted = nil
	pred.Normalize()
	if err := pred.Validate(); err != nil {
		return nil, err
	}
	return &Static{pred: pred}, nil
}

// LoadStatic reads a record from a JSON file
func LoadStatic(filename string) (*Static, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	pred := &nn.Prediction{}
	if err := json.Unmarshal(b, pred); err != nil {
		return nil, fmt.Errorf("%w: %v: %w", nn.ErrInvalidPrediction, filename, err)
	}
	return NewStatic(pred)
}

func (s *Static) Detect(ctx context.Context, img *cimg.Image, params Params) (*nn.Prediction, error) {
	return s.pred.Clone(), nil
}

func (s *Static) ClassNames() []string {
	return s.pred.ClassNames
}
