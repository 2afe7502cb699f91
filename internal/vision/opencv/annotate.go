package opencv

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"checkpoint-gate/internal/vision"
)

var (
	boxColor  = color.RGBA{R: 0, G: 255, B: 0, A: 0}
	textColor = color.RGBA{R: 36, G: 255, B: 12, A: 0}
)

// Annotator draws detection boxes and plate text, then JPEG-encodes the frame.
type Annotator struct{}

func (Annotator) Encode(img image.Image, overlays []vision.Overlay) ([]byte, error) {
	frame, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer frame.Close()

	for _, o := range overlays {
		rect := o.Box.Rect()
		gocv.Rectangle(&frame, rect, boxColor, 2)
		if o.Label != "" {
			gocv.PutText(&frame, o.Label, image.Pt(rect.Min.X, rect.Min.Y-10),
				gocv.FontHersheySimplex, 0.9, textColor, 2)
		}
	}

	buf, err := gocv.IMEncode(gocv.JPEGFileExt, frame)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

var _ vision.Encoder = Annotator{}
