// Package opencv implements the camera source, plate detectors and live-view
// encoder on top of gocv.
package opencv

import (
	"context"
	"fmt"
	"image"
	"io"

	"gocv.io/x/gocv"

	"checkpoint-gate/internal/vision"
)

// Capture reads frames from a URL, file path or device index.
type Capture struct {
	capture *gocv.VideoCapture
	mat     gocv.Mat
}

// CaptureOpener opens a new Capture for every pipeline session.
type CaptureOpener struct {
	URL string
}

func (o CaptureOpener) Open(ctx context.Context) (vision.FrameSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return OpenCapture(o.URL)
}

func OpenCapture(url string) (*Capture, error) {
	capture, err := gocv.OpenVideoCapture(url)
	if err != nil {
		return nil, fmt.Errorf("open video source %s: %w", url, err)
	}
	if !capture.IsOpened() {
		capture.Close()
		return nil, fmt.Errorf("open video source %s: not opened", url)
	}
	return &Capture{capture: capture, mat: gocv.NewMat()}, nil
}

func (c *Capture) Read() (image.Image, error) {
	if ok := c.capture.Read(&c.mat); !ok || c.mat.Empty() {
		return nil, io.EOF
	}
	img, err := c.mat.ToImage()
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	return img, nil
}

func (c *Capture) Close() error {
	if err := c.mat.Close(); err != nil {
		return err
	}
	return c.capture.Close()
}

var _ vision.FrameSource = (*Capture)(nil)
var _ vision.SourceOpener = CaptureOpener{}
