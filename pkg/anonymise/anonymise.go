package anonymise

import (
	"errors"
	"fmt"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/anonymiser/pkg/imageio"
	"github.com/cyclopcam/anonymiser/pkg/nn"
	"github.com/disintegration/imaging"
)

var ErrUnsupportedAnonymisationType = errors.New("unsupported anonymisation type")

// Mode is the kind of anonymisation applied to a region
type Mode string

const (
	ModeBlur  Mode = "blur"
	ModeColor Mode = "color"
)

const DefaultBlurKernel = 7

// DefaultColor is cyan
var DefaultColor = RGB{0, 255, 255}

type RGB [3]uint8

type Params struct {
	Mode       Mode `json:"mode"`
	BlurKernel int  `json:"blurKernel"` // Side of the square Gaussian kernel. Even values are rounded up.
	Color      RGB  `json:"color"`
}

func NewParams() Params {
	return Params{
		Mode:       ModeBlur,
		BlurKernel: DefaultBlurKernel,
		Color:      DefaultColor,
	}
}

// Anonymise returns a copy of img, with the pixels of region blurred or painted over.
// Region pixels that lie outside the image are ignored.
// The result is always 24-bit RGB, and img is never modified.
func Anonymise(img *cimg.Image, region nn.Region, params Params) (*cimg.Image, error) {
	switch params.Mode {
	case ModeBlur:
		out := imageio.ToRGB(img)
		blurred := Blur(out, params.BlurKernel)
		copyRegion(out, blurred, region)
		return out, nil
	case ModeColor:
		out := imageio.ToRGB(img)
		fillRegion(out, region, params.Color)
		return out, nil
	default:
		return nil, fmt.Errorf("%w: '%v', use '%v' or '%v'", ErrUnsupportedAnonymisationType, params.Mode, ModeBlur, ModeColor)
	}
}

// OddKernel rounds an even kernel size up to the next odd value.
// Sizes below 1 become 1.
func OddKernel(k int) int {
	if k < 1 {
		return 1
	}
	if k%2 == 0 {
		return k + 1
	}
	return k
}

// BlurSigma maps a nominal kernel size k to a Gaussian standard deviation, using the formula
// OpenCV applies when the caller specifies only the kernel size.
func BlurSigma(k int) float64 {
	k = OddKernel(k)
	return 0.3*(float64(k-1)*0.5-1) + 0.8
}

// Blur returns a Gaussian blurred copy of an RGB image, with sigma BlurSigma(kernel).
// kernel sets the strength only: imaging.Blur chooses its own support of ceil(3*sigma) pixels
// on each side, so the effective window is not exactly kernel wide. A kernel of 1 is a plain copy.
func Blur(img *cimg.Image, kernel int) *cimg.Image {
	kernel = OddKernel(kernel)
	if kernel == 1 {
		return imageio.ToRGB(img)
	}
	return imageio.FromNRGBA(imaging.Blur(imageio.ToNRGBA(img), BlurSigma(kernel)))
}

func copyRegion(dst, src *cimg.Image, region nn.Region) {
	for i, y := range region.Rows {
		x := region.Cols[i]
		if x < 0 || y < 0 || x >= dst.Width || y >= dst.Height {
			continue
		}
		p := y*dst.Stride + x*3
		q := y*src.Stride + x*3
		dst.Pixels[p] = src.Pixels[q]
		dst.Pixels[p+1] = src.Pixels[q+1]
		dst.Pixels[p+2] = src.Pixels[q+2]
	}
}

func fillRegion(dst *cimg.Image, region nn.Region, color RGB) {
	for i, y := range region.Rows {
		x := region.Cols[i]
		if x < 0 || y < 0 || x >= dst.Width || y >= dst.Height {
			continue
		}
		p := y*dst.Stride + x*3
		dst.Pixels[p] = color[0]
		dst.Pixels[p+1] = color[1]
		dst.Pixels[p+2] = color[2]
	}
}
