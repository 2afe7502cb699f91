package stream

import (
	"context"
	"fmt"
	"io"
)

const (
	Boundary    = "frame"
	ContentType = "multipart/x-mixed-replace; boundary=" + Boundary
)

// WritePart writes one MJPEG part.
func WritePart(w io.Writer, jpeg []byte) error {
	if _, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\n\r\n", Boundary); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n\r\n")
	return err
}

// WriteMultipart copies frames to w until ctx ends, frames closes or a
// write fails. flush, when non-nil, runs after every part.
func WriteMultipart(ctx context.Context, w io.Writer, frames <-chan []byte, flush func()) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case frame, ok := <-frames:
			if !ok {
				return nil
			}
			if err := WritePart(w, frame); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}
			if flush != nil {
				flush()
			}
		}
	}
}
