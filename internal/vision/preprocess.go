package vision

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"checkpoint-gate/internal/domain/gate"
)

const DefaultThreshold = 64

// Resize scales img to the working resolution unless it already matches.
func Resize(img image.Image, width, height int) image.Image {
	b := img.Bounds()
	if b.Dx() == width && b.Dy() == height {
		return img
	}
	return imaging.Resize(img, width, height, imaging.Linear)
}

// ClampBox limits box to bounds. Detectors may return boxes that extend
// past the frame.
func ClampBox(box gate.Box, bounds image.Rectangle) gate.Box {
	clamped := gate.Box{
		X1: max(box.X1, bounds.Min.X),
		Y1: max(box.Y1, bounds.Min.Y),
		X2: min(box.X2, bounds.Max.X),
		Y2: min(box.Y2, bounds.Max.Y),
	}
	return clamped
}

// CropForOCR cuts the clamped box out of img, converts it to grayscale and
// applies an inverted binary threshold: pixels brighter than threshold
// become black, the rest white. ok is false when the clamped box is empty.
func CropForOCR(img image.Image, box gate.Box, threshold uint8) (*image.NRGBA, bool) {
	box = ClampBox(box, img.Bounds())
	if box.Empty() {
		return nil, false
	}

	crop := imaging.Crop(img, box.Rect())
	gray := imaging.Grayscale(crop)
	return Binarize(gray, threshold), true
}

// Binarize applies the inverted threshold to an already grayscale image.
func Binarize(img image.Image, threshold uint8) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		if c.R > threshold {
			return color.NRGBA{R: 0, G: 0, B: 0, A: 255}
		}
		return color.NRGBA{R: 255, G: 255, B: 255, A: 255}
	})
}
