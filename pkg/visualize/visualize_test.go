package visualize

import (
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/anonymiser/pkg/nn"
	"github.com/stretchr/testify/require"
)

func grayImage(w, h int) *cimg.Image {
	img := cimg.NewImage(w, h, cimg.PixelFormatRGB)
	for i := range img.Pixels {
		img.Pixels[i] = 100
	}
	return img
}

func record() *nn.Prediction {
	return &nn.Prediction{
		ClassNames: []string{"person", "car"},
		NameToID:   map[string]int{"person": 0, "car": 1},
		Classes:    []int{0, 0, 1},
		Labels:     []string{"person", "car"},
		Scores:     []float64{0.9, 0.8, 0.7},
		Boxes:      []nn.Box{{10, 10, 60, 60}, {70, 10, 120, 60}, {10, 70, 60, 120}},
		Masks:      []*nn.Mask{},
		Instances:  []int{0, 1, 0},
	}
}

func pixel(img *cimg.Image, x, y int) [3]uint8 {
	p := img.Pixels[y*img.Stride+x*3:]
	return [3]uint8{p[0], p[1], p[2]}
}

func TestLabel(t *testing.T) {
	p := record()
	require.Equal(t, "P1", Label(p, 0, 1))
	require.Equal(t, "C0", Label(p, 1, 0))

	p.Labels = []string{"person"}
	require.Equal(t, "1", Label(p, 0, 1))
}

func TestClassColorStable(t *testing.T) {
	require.Equal(t, ClassColor(3), ClassColor(3))
	require.NotEqual(t, ClassColor(0), ClassColor(1))
}

func TestDrawBoxes(t *testing.T) {
	img := grayImage(160, 160)
	p := record()
	out := DrawBoxes(img, p, false)
	require.Equal(t, img.Width, out.Width)
	require.Equal(t, img.Height, out.Height)

	// Input is untouched
	require.Equal(t, [3]uint8{100, 100, 100}, pixel(img, 35, 10))
	// Top edge of the first box is drawn, and far away pixels are untouched
	require.NotEqual(t, [3]uint8{100, 100, 100}, pixel(out, 35, 10))
	require.Equal(t, [3]uint8{100, 100, 100}, pixel(out, 150, 150))
}

func TestDrawUserBoxes(t *testing.T) {
	// Large enough for lines thicker than one pixel
	img := grayImage(800, 800)
	p := record()
	require.NoError(t, p.AddLabeledBox(nn.Box{300, 300, 500, 500}, "car"))

	without := DrawBoxes(img, p, false)
	require.Equal(t, [3]uint8{100, 100, 100}, pixel(without, 400, 300))

	with := DrawBoxes(img, p, true)
	c := pixel(with, 400, 300)
	// Close to the user box highlight color
	require.Greater(t, int(c[0]), 180)
	require.Less(t, int(c[1]), 60)
}
