package imageio

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/bmharper/cimg/v2"
	"github.com/disintegration/imaging"
)

var ErrUnsupportedImage = errors.New("unsupported image")

const DefaultJPEGQuality = 95

// Decode reads a JPEG, PNG, GIF, BMP or TIFF image into 24-bit RGB.
// JPEG goes through libjpeg-turbo, and everything else through the imaging package.
func Decode(b []byte) (*cimg.Image, error) {
	if len(b) >= 3 && b[0] == 0xff && b[1] == 0xd8 && b[2] == 0xff {
		img, err := cimg.Decompress(b)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUnsupportedImage, err)
		}
		return ToRGB(img), nil
	}
	img, err := imaging.Decode(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedImage, err)
	}
	return FromNRGBA(imaging.Clone(img)), nil
}

func ReadFile(filename string) (*cimg.Image, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return Decode(b)
}

// EncodeJPEG compresses an RGB image at the given quality (1..100)
func EncodeJPEG(img *cimg.Image, quality int) ([]byte, error) {
	return cimg.Compress(img, cimg.MakeCompressParams(cimg.Sampling444, quality, 0))
}

func WriteJPEG(filename string, img *cimg.Image, quality int) error {
	b, err := EncodeJPEG(img, quality)
	if err != nil {
		return err
	}
	return os.WriteFile(filename, b, 0644)
}
