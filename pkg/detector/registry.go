package detector

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/anonymiser/pkg/nn"
	"github.com/cyclopcam/logs"
)

type entry struct {
	name        string
	description string
	detector    Detector
}

// Registry is an ordered list of detectors, addressed by index
type Registry struct {
	log     logs.Log
	entries []entry
}

func NewRegistry(log logs.Log) *Registry {
	return &Registry{
		log: log,
	}
}

func (r *Registry) Add(name, description string, det Detector) {
	r.entries = append(r.entries, entry{name, description, det})
}

func (r *Registry) Len() int {
	return len(r.entries)
}

// Choices returns the display name of each detector
func (r *Registry) Choices() []string {
	c := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		c = append(c, e.name)
	}
	return c
}

func (r *Registry) Descriptions() []string {
	d := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		d = append(d, e.description)
	}
	return d
}

// Classes returns the vocabulary of each detector
func (r *Registry) Classes() [][]string {
	c := make([][]string, 0, len(r.entries))
	for _, e := range r.entries {
		c = append(c, e.detector.ClassNames())
	}
	return c
}

func (r *Registry) Info() *Info {
	return &Info{
		Choices:      r.Choices(),
		Descriptions: r.Descriptions(),
		Classes:      r.Classes(),
	}
}

// Detector returns the detector at index
func (r *Registry) Detector(index int) (Detector, error) {
	if index < 0 || index >= len(r.entries) {
		return nil, fmt.Errorf("%w: %v (there are %v detectors)", ErrInvalidModelIndex, index, len(r.entries))
	}
	return r.entries[index].detector, nil
}

// Detect runs detector 'index' over img, and checks that the result obeys the record contract
func (r *Registry) Detect(ctx context.Context, img *cimg.Image, index int, params Params) (*nn.Prediction, error) {
	det, err := r.Detector(index)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	pred, err := det.Detect(ctx, img, params)
	if err != nil {
		r.log.Warnf("Detector %v (%v) failed: %v", index, r.entries[index].name, err)
		return nil, err
	}
	pred.Normalize()
	if err := pred.Validate(); err != nil {
		r.log.Warnf("Detector %v (%v) produced an invalid record: %v", index, r.entries[index].name, err)
		return nil, err
	}
	r.log.Debugf("Detector %v (%v) found %v objects in %v ms", index, r.entries[index].name, len(pred.Classes), time.Since(start).Milliseconds())
	return pred, nil
}

// Close closes every detector that holds resources
func (r *Registry) Close() {
	for _, e := range r.entries {
		switch c := e.detector.(type) {
		case io.Closer:
			if err := c.Close(); err != nil {
				r.log.Warnf("Error closing detector %v: %v", e.name, err)
			}
		case interface{ Close() }:
			c.Close()
		}
	}
}
