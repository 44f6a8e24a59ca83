package anonymise

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/cyclopcam/anonymiser/pkg/gen"
	"github.com/lucasb-eyer/go-colorful"
)

var ErrInvalidColor = errors.New("invalid color")

// Intensity maps a blur intensity between 0 and 1 to a Gaussian kernel size
type Intensity struct {
	MinKernel int `json:"minKernel"`
	MaxKernel int `json:"maxKernel"`
}

func DefaultIntensity() Intensity {
	return Intensity{
		MinKernel: 1,
		MaxKernel: 57,
	}
}

func (i Intensity) Validate() error {
	if i.MinKernel < 1 || i.MaxKernel < i.MinKernel {
		return fmt.Errorf("blur kernel bounds must satisfy 1 <= minKernel <= maxKernel, but are %v, %v", i.MinKernel, i.MaxKernel)
	}
	return nil
}

// ConvertIntensity returns an odd kernel size in [MinKernel, MaxKernel+1].
// It is monotonic in t, and t is clamped to [0,1].
func (i Intensity) ConvertIntensity(t float64) int {
	if math.IsNaN(t) {
		t = 0
	}
	t = gen.Clamp(t, 0, 1)
	k := int(math.Round(t * float64(i.MaxKernel-i.MinKernel+1)))
	k = max(k, i.MinKernel)
	if k%2 == 0 {
		k++
	}
	return k
}

// ConvertColorHexToRGB parses "#rrggbb" or the shorthand "#rgb". The '#' is optional.
func ConvertColorHexToRGB(hex string) (RGB, error) {
	hex = strings.TrimSpace(hex)
	if !strings.HasPrefix(hex, "#") {
		hex = "#" + hex
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return RGB{}, fmt.Errorf("%w: '%v'", ErrInvalidColor, hex)
	}
	r, g, b := c.RGB255()
	return RGB{r, g, b}, nil
}

// Hex returns the color as "#rrggbb"
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}
