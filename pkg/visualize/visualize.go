// Package visualize draws detection results over an image, for previews
package visualize

import (
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/anonymiser/pkg/imageio"
	"github.com/cyclopcam/anonymiser/pkg/nn"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"github.com/lucasb-eyer/go-colorful"
	"golang.org/x/image/font/gofont/goregular"
)

// UserBoxColor is used for every box that a user drew
var UserBoxColor = color.NRGBA{250, 0, 110, 255}

var font *truetype.Font

func init() {
	var err error
	font, err = truetype.Parse(goregular.TTF)
	if err != nil {
		panic(err)
	}
}

// ClassColor returns a stable color for a class id.
// Hues are spaced by the golden angle, so that neighbouring ids look different.
func ClassColor(classID int) color.Color {
	hue := math.Mod(float64(classID)*137.508, 360)
	if hue < 0 {
		hue += 360
	}
	return colorful.Hsv(hue, 0.85, 0.8)
}

// Label returns the text drawn next to a box.
// Records with more than one distinct class prefix the instance id with the class initial.
func Label(pred *nn.Prediction, classID, instanceID int) string {
	id := strconv.Itoa(instanceID)
	if len(pred.Labels) <= 1 {
		return id
	}
	name := ""
	for n, c := range pred.NameToID {
		if c == classID {
			name = n
			break
		}
	}
	if name == "" {
		return id
	}
	r := []rune(name)
	return string(unicode.ToUpper(r[0])) + id
}

// DrawBoxes returns a copy of img with every box in pred outlined and labelled.
// If useAdjusted is true and the user has added boxes, the adjusted boxes are drawn.
func DrawBoxes(img *cimg.Image, pred *nn.Prediction, useAdjusted bool) *cimg.Image {
	boxes, classes, instances := pred.Boxes, pred.Classes, pred.Instances
	var isUser []bool
	if useAdjusted && pred.HasAdjusted() {
		boxes, classes, instances, isUser = pred.BoxesAdj, pred.ClassesAdj, pred.InstancesAdj, pred.IsUserBox
	}
	// Mask-only records carry no boxes for the detector instances, but may carry user boxes at the tail
	offset := len(classes) - len(boxes)

	dc := gg.NewContextForImage(imageio.ToNRGBA(imageio.ToRGB(img)))
	thick := math.Max(1, float64(img.Width+img.Height)/700)
	for i, box := range boxes {
		j := i + offset
		if j < 0 || j >= len(classes) || j >= len(instances) {
			continue
		}
		c := ClassColor(classes[j])
		if isUser != nil && j < len(isUser) && isUser[j] {
			c = UserBoxColor
		}
		drawRect(dc, box, c, thick)
		drawLabel(dc, box, Label(pred, classes[j], instances[j]), c, img.Width, img.Height)
	}
	return imageio.FromNRGBA(toNRGBA(dc.Image()))
}

func drawRect(dc *gg.Context, b nn.Box, c color.Color, width float64) {
	dc.SetColor(c)
	dc.SetLineWidth(width)
	dc.DrawRectangle(float64(b.X1()), float64(b.Y1()), float64(b.Width()), float64(b.Height()))
	dc.Stroke()
}

// The label sits on a white background, at the bottom left corner of the box
func drawLabel(dc *gg.Context, b nn.Box, text string, c color.Color, imgWidth, imgHeight int) {
	size := math.Min(0.05*float64(imgHeight), 0.65*float64(b.Height()))
	size = math.Max(8, math.Min(size, 48))
	dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: size}))
	w, h := dc.MeasureString(text)
	maxW := 0.65 * float64(b.Width())
	if w > maxW && maxW >= 8 && strings.TrimSpace(text) != "" {
		size = math.Max(8, size*maxW/w)
		dc.SetFontFace(truetype.NewFace(font, &truetype.Options{Size: size}))
		w, h = dc.MeasureString(text)
	}
	x := float64(b.X1())
	y := math.Min(float64(b.Y2()), float64(imgHeight))
	dc.SetColor(color.White)
	dc.DrawRectangle(x, y-h, w, h)
	dc.Fill()
	dc.SetColor(c)
	dc.DrawString(text, x, y)
}

// gg renders into an opaque RGBA image, so premultiplied and straight alpha are identical
func toNRGBA(img image.Image) *image.NRGBA {
	if n, ok := img.(*image.NRGBA); ok {
		return n
	}
	if rgba, ok := img.(*image.RGBA); ok {
		return &image.NRGBA{Pix: rgba.Pix, Stride: rgba.Stride, Rect: rgba.Rect}
	}
	b := img.Bounds()
	out := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			out.Set(x, y, img.At(b.Min.X+x, b.Min.Y+y))
		}
	}
	return out
}
