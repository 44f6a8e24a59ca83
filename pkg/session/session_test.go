package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/anonymiser/pkg/anonymise"
	"github.com/cyclopcam/anonymiser/pkg/detector"
	"github.com/cyclopcam/anonymiser/pkg/nn"
	"github.com/cyclopcam/logs"
	"github.com/stretchr/testify/require"
)

// Detector 0 finds two people and a car. Detector 1 finds a face. Detector 2 hangs.
type fakeProvider struct {
	calls []int
	fail  bool
}

func (f *fakeProvider) Len() int {
	return 3
}

func (f *fakeProvider) Detect(ctx context.Context, img *cimg.Image, index int, params detector.Params) (*nn.Prediction, error) {
	f.calls = append(f.calls, index)
	if f.fail {
		return nil, detector.ErrDetectorUnavailable
	}
	switch index {
	case 0:
		return &nn.Prediction{
			ClassNames: []string{"person", "car"},
			NameToID:   map[string]int{"person": 0, "car": 1},
			Classes:    []int{0, 0, 1},
			Labels:     []string{"person", "car"},
			Scores:     []float64{0.9, 0.8, 0.7},
			Boxes:      []nn.Box{{0, 0, 10, 10}, {10, 10, 20, 20}, {0, 0, 5, 5}},
			Masks:      []*nn.Mask{},
			Instances:  []int{0, 1, 0},
		}, nil
	case 1:
		return nn.NewPrediction([]string{"face"}, nil, []nn.ObjectDetection{{Class: 0, Confidence: 1, Box: nn.Rect{X: 20, Y: 0, Width: 5, Height: 5}}}), nil
	default:
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

func testImage() *cimg.Image {
	img := cimg.NewImage(30, 30, cimg.PixelFormatRGB)
	for i := range img.Pixels {
		img.Pixels[i] = 128
	}
	return img
}

func pixel(img *cimg.Image, x, y int) [3]byte {
	p := y*img.Stride + x*3
	return [3]byte{img.Pixels[p], img.Pixels[p+1], img.Pixels[p+2]}
}

var red = anonymise.Params{Mode: anonymise.ModeColor, Color: anonymise.RGB{255, 0, 0}}
var gray = [3]byte{128, 128, 128}

func TestSessionLifecycle(t *testing.T) {
	provider := &fakeProvider{}
	s := newSession("a", provider, time.Second)
	require.Equal(t, StateNoImage, s.State())

	_, _, err := s.SelectDetector(context.Background(), 0, nil)
	require.ErrorIs(t, err, ErrNoImage)
	_, err = s.Facets(false)
	require.ErrorIs(t, err, ErrNoImage)

	s.Upload(testImage())
	require.Equal(t, StateImageLoaded, s.State())
	_, err = s.Facets(false)
	require.ErrorIs(t, err, ErrNoPrediction)
	_, err = s.Anonymise(Request{ClassName: "person", InstanceID: "all", TargetType: nn.TargetBox, Params: red})
	require.ErrorIs(t, err, ErrNoPrediction)

	_, _, err = s.SelectDetector(context.Background(), 3, nil)
	require.ErrorIs(t, err, detector.ErrInvalidModelIndex)
	require.Equal(t, StateImageLoaded, s.State())

	pred, cached, err := s.SelectDetector(context.Background(), 0, nil)
	require.NoError(t, err)
	require.False(t, cached)
	require.Equal(t, StateDetected, s.State())
	require.Equal(t, []string{"person", "car"}, pred.ClassNames)

	facets, err := s.Facets(true)
	require.NoError(t, err)
	require.Equal(t, []nn.TargetType{nn.TargetBox}, facets.TargetTypes)
	require.Equal(t, []string{"person", "car"}, facets.Classes)
	ids, err := s.InstanceIDs("person", true)
	require.NoError(t, err)
	require.Equal(t, []string{"all", "0", "1"}, ids)

	out, err := s.Anonymise(Request{ClassName: "person", InstanceID: "0", TargetType: nn.TargetBox, Params: red})
	require.NoError(t, err)
	require.Equal(t, StateAnonymised, s.State())
	require.Equal(t, [3]byte{255, 0, 0}, pixel(out, 5, 5))
	require.Equal(t, gray, pixel(out, 15, 15))
	input, latest := s.Images()
	require.Same(t, out, latest)
	require.Equal(t, gray, pixel(input, 5, 5), "the uploaded image must not change")

	s.Reset()
	require.Equal(t, StateNoImage, s.State())
	input, latest = s.Images()
	require.Nil(t, input)
	require.Nil(t, latest)
}

func TestSessionDetectorCache(t *testing.T) {
	provider := &fakeProvider{}
	s := newSession("a", provider, time.Second)
	s.Upload(testImage())

	_, _, err := s.SelectDetector(context.Background(), 0, nil)
	require.NoError(t, err)
	_, err = s.AddLabeledBox(nn.Box{25, 25, 30, 30}, "car")
	require.NoError(t, err)

	_, cached, err := s.SelectDetector(context.Background(), 1, nil)
	require.NoError(t, err)
	require.False(t, cached)
	facets, err := s.Facets(false)
	require.NoError(t, err)
	require.Equal(t, []string{"face"}, facets.Classes)

	// Back to the first detector: no new call, and the user's box is still there
	pred, cached, err := s.SelectDetector(context.Background(), 0, nil)
	require.NoError(t, err)
	require.True(t, cached)
	require.True(t, pred.HasAdjusted())
	require.Equal(t, []int{0, 1}, provider.calls)
	require.Equal(t, []int{0, 1}, s.Snapshot().CachedIndices)

	// A new image invalidates the cache
	s.Upload(testImage())
	require.Empty(t, s.Snapshot().CachedIndices)
	pred, cached, err = s.SelectDetector(context.Background(), 0, nil)
	require.NoError(t, err)
	require.False(t, cached)
	require.False(t, pred.HasAdjusted())
	require.Equal(t, []int{0, 1, 0}, provider.calls)
}

func TestSessionCompound(t *testing.T) {
	s := newSession("a", &fakeProvider{}, time.Second)
	s.Upload(testImage())
	_, _, err := s.SelectDetector(context.Background(), 0, nil)
	require.NoError(t, err)

	blue := anonymise.Params{Mode: anonymise.ModeColor, Color: anonymise.RGB{0, 0, 255}}
	_, err = s.Anonymise(Request{ClassName: "person", InstanceID: "1", TargetType: nn.TargetBox, Params: red, Compound: true})
	require.NoError(t, err)
	out, err := s.Anonymise(Request{ClassName: "car", InstanceID: "all", TargetType: nn.TargetBox, Params: blue, Compound: true})
	require.NoError(t, err)
	require.Equal(t, [3]byte{255, 0, 0}, pixel(out, 15, 15))
	require.Equal(t, [3]byte{0, 0, 255}, pixel(out, 2, 2))
	require.Equal(t, 2, s.Snapshot().Passes)

	// Without compound, we start again from the original
	out, err = s.Anonymise(Request{ClassName: "car", InstanceID: "all", TargetType: nn.TargetBox, Params: blue})
	require.NoError(t, err)
	require.Equal(t, gray, pixel(out, 15, 15))
	require.Equal(t, [3]byte{0, 0, 255}, pixel(out, 2, 2))
	require.Equal(t, 0, s.Snapshot().Passes)

	// Compound with no chain starts from the original
	out, err = s.Anonymise(Request{ClassName: "person", InstanceID: "1", TargetType: nn.TargetBox, Params: red, Compound: true})
	require.NoError(t, err)
	require.Equal(t, gray, pixel(out, 2, 2))
	require.Equal(t, 1, s.Snapshot().Passes)

	// Adding a box discards the chain
	_, err = s.AddLabeledBox(nn.Box{25, 25, 30, 30}, "car")
	require.NoError(t, err)
	require.Equal(t, StateDetected, s.State())
	require.Equal(t, 0, s.Snapshot().Passes)

	// User boxes are included, unless the request says otherwise
	out, err = s.Anonymise(Request{ClassName: "car", InstanceID: "all", TargetType: nn.TargetBox, Params: blue})
	require.NoError(t, err)
	require.Equal(t, [3]byte{0, 0, 255}, pixel(out, 27, 27))
	out, err = s.Anonymise(Request{ClassName: "car", InstanceID: "all", TargetType: nn.TargetBox, Params: blue, IgnoreUserBoxes: true})
	require.NoError(t, err)
	require.Equal(t, gray, pixel(out, 27, 27))
}

func TestSessionFailuresLeaveState(t *testing.T) {
	provider := &fakeProvider{}
	s := newSession("a", provider, 20*time.Millisecond)
	s.Upload(testImage())
	_, _, err := s.SelectDetector(context.Background(), 0, nil)
	require.NoError(t, err)
	_, err = s.Anonymise(Request{ClassName: "person", InstanceID: "all", TargetType: nn.TargetBox, Params: red, Compound: true})
	require.NoError(t, err)
	before := s.Snapshot()

	// Detector timeout
	_, _, err = s.SelectDetector(context.Background(), 2, nil)
	require.True(t, errors.Is(err, context.DeadlineExceeded))

	provider.fail = true
	_, _, err = s.SelectDetector(context.Background(), 1, nil)
	require.ErrorIs(t, err, detector.ErrDetectorUnavailable)

	_, err = s.Anonymise(Request{ClassName: "dog", InstanceID: "all", TargetType: nn.TargetBox, Params: red})
	require.ErrorIs(t, err, nn.ErrUnknownClass)
	_, err = s.Anonymise(Request{ClassName: "person", InstanceID: "7", TargetType: nn.TargetBox, Params: red})
	require.ErrorIs(t, err, nn.ErrInstanceIndex)
	_, err = s.Anonymise(Request{ClassName: "person", InstanceID: "0", TargetType: "ellipse", Params: red})
	require.ErrorIs(t, err, nn.ErrUnknownTargetType)
	_, err = s.Anonymise(Request{ClassName: "person", InstanceID: "0", TargetType: nn.TargetBox, Params: anonymise.Params{Mode: "swirl"}})
	require.ErrorIs(t, err, anonymise.ErrUnsupportedAnonymisationType)
	_, err = s.AddLabeledBox(nn.Box{5, 5, 1, 1}, "car")
	require.ErrorIs(t, err, nn.ErrInvalidGeometry)

	require.Equal(t, before, s.Snapshot())
	require.Equal(t, StateAnonymised, s.State())
}

func TestManager(t *testing.T) {
	log := logs.NewTestingLog(t)
	m := NewManager(log, &fakeProvider{}, ManagerConfig{IdleTimeout: time.Minute})
	a := m.Create()
	b := m.Create()
	require.NotEqual(t, a.ID, b.ID)
	require.Equal(t, 2, m.Len())

	got, ok := m.Get(a.ID)
	require.True(t, ok)
	require.Same(t, a, got)

	got, created := m.GetOrCreate(b.ID)
	require.False(t, created)
	require.Same(t, b, got)
	got, created = m.GetOrCreate("nope")
	require.True(t, created)
	require.NotEqual(t, "nope", got.ID)
	require.Equal(t, 3, m.Len())

	// Sessions are isolated
	a.Upload(testImage())
	require.Equal(t, StateImageLoaded, a.State())
	require.Equal(t, StateNoImage, b.State())

	require.Equal(t, 0, m.ExpireIdle(time.Now()))
	require.Equal(t, 3, m.ExpireIdle(time.Now().Add(2*time.Minute)))
	_, ok = m.Get(a.ID)
	require.False(t, ok)

	c := m.Create()
	m.Delete(c.ID)
	require.Equal(t, 0, m.Len())

	m.StartExpiry()
	m.Close()
}

func TestSessionOversizedUserBox(t *testing.T) {
	s := newSession("a", &fakeProvider{}, time.Second)
	s.Upload(testImage())
	_, _, err := s.SelectDetector(context.Background(), 0, nil)
	require.NoError(t, err)
	_, err = s.AddLabeledBox(nn.Box{0, 0, 100000, 100000}, "car")
	require.NoError(t, err)
	_, err = s.AddLabeledBox(nn.Box{25, 25, 1 << 33, 1 << 33}, "person")
	require.NoError(t, err)

	out, err := s.Anonymise(Request{ClassName: "car", InstanceID: "1", TargetType: nn.TargetBox, Params: red})
	require.NoError(t, err)
	require.Equal(t, [3]byte{255, 0, 0}, pixel(out, 0, 0))
	require.Equal(t, [3]byte{255, 0, 0}, pixel(out, 29, 29))

	out, err = s.Anonymise(Request{ClassName: "person", InstanceID: "2", TargetType: nn.TargetBox, Params: red})
	require.NoError(t, err)
	require.Equal(t, gray, pixel(out, 24, 24))
	require.Equal(t, [3]byte{255, 0, 0}, pixel(out, 29, 29))
}
