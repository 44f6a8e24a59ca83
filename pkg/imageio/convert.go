package imageio

import (
	"image"

	"github.com/bmharper/cimg/v2"
)

// ToRGB returns a packed 24-bit RGB copy of img.
// Gray images are expanded, and any channels after the third are dropped.
func ToRGB(img *cimg.Image) *cimg.Image {
	out := cimg.NewImage(img.Width, img.Height, cimg.PixelFormatRGB)
	nchan := img.NChan()
	if nchan == 3 {
		for y := 0; y < img.Height; y++ {
			copy(out.Pixels[y*out.Stride:y*out.Stride+img.Width*3], img.Pixels[y*img.Stride:y*img.Stride+img.Width*3])
		}
		return out
	}
	for y := 0; y < img.Height; y++ {
		src := img.Pixels[y*img.Stride:]
		dst := out.Pixels[y*out.Stride:]
		for x := 0; x < img.Width; x++ {
			if nchan < 3 {
				v := src[x*nchan]
				dst[x*3], dst[x*3+1], dst[x*3+2] = v, v, v
			} else {
				dst[x*3], dst[x*3+1], dst[x*3+2] = src[x*nchan], src[x*nchan+1], src[x*nchan+2]
			}
		}
	}
	return out
}

// ToNRGBA converts an RGB image to the standard library image type, for the imaging package
func ToNRGBA(img *cimg.Image) *image.NRGBA {
	out := image.NewNRGBA(image.Rect(0, 0, img.Width, img.Height))
	for y := 0; y < img.Height; y++ {
		src := img.Pixels[y*img.Stride:]
		dst := out.Pix[y*out.Stride:]
		for x := 0; x < img.Width; x++ {
			dst[x*4] = src[x*3]
			dst[x*4+1] = src[x*3+1]
			dst[x*4+2] = src[x*3+2]
			dst[x*4+3] = 255
		}
	}
	return out
}

// FromNRGBA converts back to RGB, discarding alpha
func FromNRGBA(img *image.NRGBA) *cimg.Image {
	b := img.Bounds()
	out := cimg.NewImage(b.Dx(), b.Dy(), cimg.PixelFormatRGB)
	for y := 0; y < out.Height; y++ {
		src := img.Pix[y*img.Stride:]
		dst := out.Pixels[y*out.Stride:]
		for x := 0; x < out.Width; x++ {
			dst[x*3] = src[x*4]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+2]
		}
	}
	return out
}
