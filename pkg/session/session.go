// Package session holds the state of one user's work on one image: the detection records
// of each detector that has been run, the user's boxes, and the chain of anonymised images.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/anonymiser/pkg/anonymise"
	"github.com/cyclopcam/anonymiser/pkg/detector"
	"github.com/cyclopcam/anonymiser/pkg/imageio"
	"github.com/cyclopcam/anonymiser/pkg/nn"
)

var ErrNoImage = errors.New("no image has been uploaded")
var ErrNoPrediction = errors.New("no detector has been run on this image")

type State int

const (
	StateNoImage State = iota
	StateImageLoaded
	StateDetected
	StateAnonymised
)

func (s State) String() string {
	switch s {
	case StateNoImage:
		return "noImage"
	case StateImageLoaded:
		return "imageLoaded"
	case StateDetected:
		return "detected"
	case StateAnonymised:
		return "anonymised"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Provider runs detectors. It is satisfied by *detector.Registry.
type Provider interface {
	Len() int
	Detect(ctx context.Context, img *cimg.Image, index int, params detector.Params) (*nn.Prediction, error)
}

const DefaultDetectTimeout = 60 * time.Second

// Request is one anonymisation action
type Request struct {
	ClassName       string           `json:"className"`
	InstanceID      string           `json:"instanceID"` // nn.AllInstances, or the position of the instance within its class
	TargetType      nn.TargetType    `json:"targetType"`
	IgnoreUserBoxes bool             `json:"ignoreUserBoxes"` // Don't anonymise the boxes that the user added
	Compound        bool             `json:"compound"`        // Apply on top of the previous compound result
	Params          anonymise.Params `json:"params"`
}

// Session is safe to use from multiple goroutines, but operations are serialized
type Session struct {
	ID string

	lock          sync.Mutex
	provider      Provider
	detectTimeout time.Duration

	state         State
	input         *cimg.Image
	predictions   map[int]*nn.Prediction // Key is detector index. Records carry their own user boxes.
	detectorIndex int                    // Valid when state >= StateDetected
	latest        *cimg.Image            // Most recent anonymised image
	chain         *cimg.Image            // Head of the compound chain
	passes        int                    // Number of anonymisations in the chain
}

func newSession(id string, provider Provider, detectTimeout time.Duration) *Session {
	if detectTimeout <= 0 {
		detectTimeout = DefaultDetectTimeout
	}
	return &Session{
		ID:            id,
		provider:      provider,
		detectTimeout: detectTimeout,
		predictions:   map[int]*nn.Prediction{},
	}
}

func (s *Session) State() State {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.state
}

// Upload replaces the session's image, and forgets everything derived from the previous one
func (s *Session) Upload(img *cimg.Image) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.input = imageio.ToRGB(img)
	s.predictions = map[int]*nn.Prediction{}
	s.clearChain()
	s.state = StateImageLoaded
}

// Reset returns the session to its initial state
func (s *Session) Reset() {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.input = nil
	s.predictions = map[int]*nn.Prediction{}
	s.clearChain()
	s.state = StateNoImage
}

// SelectDetector makes detector 'index' the current detector, running it if it has not yet
// been run on this image. A cached record is reused as is, because running the detector again
// could produce different results. Returns a copy of the record, and whether it came from the cache.
func (s *Session) SelectDetector(ctx context.Context, index int, params detector.Params) (*nn.Prediction, bool, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.input == nil {
		return nil, false, ErrNoImage
	}
	if index < 0 || index >= s.provider.Len() {
		return nil, false, fmt.Errorf("%w: %v", detector.ErrInvalidModelIndex, index)
	}
	pred, cached := s.predictions[index]
	if !cached {
		dctx, cancel := context.WithTimeout(ctx, s.detectTimeout)
		defer cancel()
		var err error
		pred, err = s.provider.Detect(dctx, s.input, index, params)
		if err != nil {
			return nil, false, err
		}
		if err := pred.Validate(); err != nil {
			return nil, false, err
		}
		s.predictions[index] = pred
	}
	s.detectorIndex = index
	s.clearChain()
	s.state = StateDetected
	return pred.Clone(), cached, nil
}

// AddLabeledBox adds a user box to the current record
func (s *Session) AddLabeledBox(box nn.Box, label string) (*nn.Prediction, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	pred, err := s.current()
	if err != nil {
		return nil, err
	}
	if err := pred.AddLabeledBox(box, label); err != nil {
		return nil, err
	}
	s.clearChain()
	s.state = StateDetected
	return pred.Clone(), nil
}

// Facets are the choices available for anonymisation
type Facets struct {
	TargetTypes []nn.TargetType `json:"targetTypes"`
	Classes     []string        `json:"classes"`
}

func (s *Session) Facets(useAdjusted bool) (*Facets, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	pred, err := s.current()
	if err != nil {
		return nil, err
	}
	return &Facets{
		TargetTypes: pred.PredTypes(useAdjusted),
		Classes:     pred.PredClasses(useAdjusted),
	}, nil
}

func (s *Session) InstanceIDs(className string, useAdjusted bool) ([]string, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	pred, err := s.current()
	if err != nil {
		return nil, err
	}
	return pred.InstanceIDs(className, useAdjusted)
}

// Anonymise resolves the request into a region of the image, and anonymises it.
// With Compound, the previous compound result is the input, and the output becomes the new head
// of the chain. Without Compound, the original image is the input, and the chain is discarded.
func (s *Session) Anonymise(req Request) (*cimg.Image, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	pred, err := s.current()
	if err != nil {
		return nil, err
	}
	region, err := pred.TargetRegions(req.ClassName, req.InstanceID, req.TargetType, !req.IgnoreUserBoxes, s.input.Width, s.input.Height)
	if err != nil {
		return nil, err
	}
	src := s.input
	if req.Compound && s.chain != nil {
		src = s.chain
	}
	out, err := anonymise.Anonymise(src, region, req.Params)
	if err != nil {
		return nil, err
	}
	s.latest = out
	if req.Compound {
		s.chain = out
		s.passes++
	} else {
		s.chain = nil
		s.passes = 0
	}
	s.state = StateAnonymised
	return out, nil
}

// Snapshot is a read-only view of a session
type Snapshot struct {
	ID            string         `json:"id"`
	State         State          `json:"state"`
	Width         int            `json:"width"`
	Height        int            `json:"height"`
	DetectorIndex int            `json:"detectorIndex"` // -1 if no detector is selected
	CachedIndices []int          `json:"cachedIndices"` // Detectors whose records are cached
	Passes        int            `json:"passes"`        // Length of the compound chain
	Prediction    *nn.Prediction `json:"prediction"`    // Copy of the current record, or nil
}

func (s *Session) Snapshot() *Snapshot {
	s.lock.Lock()
	defer s.lock.Unlock()
	snap := &Snapshot{
		ID:            s.ID,
		State:         s.state,
		DetectorIndex: -1,
		CachedIndices: []int{},
		Passes:        s.passes,
	}
	if s.input != nil {
		snap.Width = s.input.Width
		snap.Height = s.input.Height
	}
	for i := 0; i < s.provider.Len(); i++ {
		if _, ok := s.predictions[i]; ok {
			snap.CachedIndices = append(snap.CachedIndices, i)
		}
	}
	if s.state >= StateDetected {
		snap.DetectorIndex = s.detectorIndex
		snap.Prediction = s.predictions[s.detectorIndex].Clone()
	}
	return snap
}

// Images returns the uploaded image, and the most recent anonymised image.
// Either may be nil. The images must not be modified.
func (s *Session) Images() (input, latest *cimg.Image) {
	s.lock.Lock()
	defer s.lock.Unlock()
	return s.input, s.latest
}

// Prediction returns a copy of the current record
func (s *Session) Prediction() (*nn.Prediction, error) {
	s.lock.Lock()
	defer s.lock.Unlock()
	pred, err := s.current()
	if err != nil {
		return nil, err
	}
	return pred.Clone(), nil
}

// Caller must hold the lock
func (s *Session) current() (*nn.Prediction, error) {
	if s.input == nil {
		return nil, ErrNoImage
	}
	if s.state < StateDetected {
		return nil, ErrNoPrediction
	}
	return s.predictions[s.detectorIndex], nil
}

// Caller must hold the lock
func (s *Session) clearChain() {
	s.latest = nil
	s.chain = nil
	s.passes = 0
}
