// Package vision defines the perception capabilities the pipeline depends on
// and the pure-Go preprocessing shared by every backend.
package vision

import (
	"context"
	"image"

	"checkpoint-gate/internal/domain/gate"
)

// FrameSource yields camera frames in order. Read returns io.EOF when the
// stream ends.
type FrameSource interface {
	Read() (image.Image, error)
	Close() error
}

// SourceOpener opens a new FrameSource for one pipeline session.
type SourceOpener interface {
	Open(ctx context.Context) (FrameSource, error)
}

type SourceOpenerFunc func(ctx context.Context) (FrameSource, error)

func (f SourceOpenerFunc) Open(ctx context.Context) (FrameSource, error) { return f(ctx) }

// Detector locates plate regions in a working-resolution frame.
type Detector interface {
	Detect(ctx context.Context, img image.Image) ([]gate.Detection, error)
}

// Reader extracts text lines from a binarized plate crop.
type Reader interface {
	Read(ctx context.Context, crop image.Image) ([]gate.PlateCandidate, error)
}

// Overlay is one labelled box drawn on the live view.
type Overlay struct {
	Box   gate.Box
	Label string
}

// Encoder renders overlays on a frame and encodes it for the live view.
type Encoder interface {
	Encode(img image.Image, overlays []Overlay) ([]byte, error)
}
