package imageio

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/stretchr/testify/require"
)

func TestToRGB(t *testing.T) {
	gray := cimg.NewImage(3, 2, cimg.PixelFormatGRAY)
	gray.Pixels[gray.Stride+2] = 200
	rgb := ToRGB(gray)
	require.Equal(t, cimg.PixelFormatRGB, rgb.Format)
	p := rgb.Stride + 2*3
	require.Equal(t, []byte{200, 200, 200}, rgb.Pixels[p:p+3])
	require.Equal(t, []byte{0, 0, 0}, rgb.Pixels[0:3])
}

func TestNRGBARoundTrip(t *testing.T) {
	img := cimg.NewImage(5, 4, cimg.PixelFormatRGB)
	for i := range img.Pixels {
		img.Pixels[i] = byte(i * 7)
	}
	back := FromNRGBA(ToNRGBA(img))
	require.Equal(t, img.Width, back.Width)
	require.Equal(t, img.Pixels, back.Pixels)
}

func TestDecode(t *testing.T) {
	// Flat colors survive JPEG compression almost unchanged
	img := cimg.NewImage(32, 16, cimg.PixelFormatRGB)
	for y := 0; y < img.Height; y++ {
		for x := 0; x < img.Width; x++ {
			p := y*img.Stride + x*3
			img.Pixels[p], img.Pixels[p+1], img.Pixels[p+2] = 200, 100, 50
		}
	}
	jpg, err := EncodeJPEG(img, DefaultJPEGQuality)
	require.NoError(t, err)
	dec, err := Decode(jpg)
	require.NoError(t, err)
	require.Equal(t, 32, dec.Width)
	require.Equal(t, 16, dec.Height)
	require.InDelta(t, 200, int(dec.Pixels[0]), 4)
	require.InDelta(t, 100, int(dec.Pixels[1]), 4)

	nrgba := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	nrgba.Set(1, 1, color.NRGBA{R: 10, G: 20, B: 30, A: 255})
	buf := bytes.Buffer{}
	require.NoError(t, png.Encode(&buf, nrgba))
	dec, err = Decode(buf.Bytes())
	require.NoError(t, err)
	p := dec.Stride + 3
	require.Equal(t, []byte{10, 20, 30}, dec.Pixels[p:p+3])

	_, err = Decode([]byte("not an image"))
	require.ErrorIs(t, err, ErrUnsupportedImage)
}
