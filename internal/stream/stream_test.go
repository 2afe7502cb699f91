package stream

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePartFraming(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePart(&buf, []byte("JPEG")))
	assert.Equal(t, "--frame\r\nContent-Type: image/jpeg\r\n\r\nJPEG\r\n\r\n", buf.String())
	assert.Equal(t, "multipart/x-mixed-replace; boundary=frame", ContentType)
}

func TestHubDeliversLatestFirst(t *testing.T) {
	h := NewHub()
	h.Publish([]byte("a"))

	frames, cancel := h.Subscribe()
	defer cancel()
	assert.Equal(t, []byte("a"), <-frames)

	h.Publish([]byte("b"))
	assert.Equal(t, []byte("b"), <-frames)
}

func TestHubSlowViewerGetsNewest(t *testing.T) {
	h := NewHub()
	frames, cancel := h.Subscribe()
	defer cancel()

	for _, f := range []string{"1", "2", "3"} {
		h.Publish([]byte(f))
	}
	assert.Equal(t, []byte("3"), <-frames)
	select {
	case f := <-frames:
		t.Fatalf("unexpected extra frame %q", f)
	default:
	}
}

func TestHubUnsubscribe(t *testing.T) {
	h := NewHub()
	frames, cancel := h.Subscribe()
	assert.Equal(t, 1, h.Subscribers())

	cancel()
	cancel()
	assert.Equal(t, 0, h.Subscribers())
	_, ok := <-frames
	assert.False(t, ok)

	h.Publish([]byte("x"))
}

func TestHubErrClearedByPublish(t *testing.T) {
	h := NewHub()
	h.SetErr(errors.New("camera offline"))
	assert.Error(t, h.Err())
	h.Publish([]byte("x"))
	assert.NoError(t, h.Err())
}

func TestHubErrClearedWithoutFrames(t *testing.T) {
	h := NewHub()
	h.SetErr(errors.New("camera offline"))
	h.SetErr(nil)
	assert.NoError(t, h.Err())
}

func TestWriteMultipartStopsOnCancel(t *testing.T) {
	h := NewHub()
	frames, cancel := h.Subscribe()
	defer cancel()

	ctx, stop := context.WithCancel(context.Background())
	var buf bytes.Buffer
	flushes := 0
	done := make(chan error, 1)
	go func() { done <- WriteMultipart(ctx, &buf, frames, func() { flushes++ }) }()

	h.Publish([]byte("one"))
	require.Eventually(t, func() bool { return h.Subscribers() == 1 && len(frames) == 0 }, time.Second, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	stop()
	require.NoError(t, <-done)

	assert.Equal(t, "--frame\r\nContent-Type: image/jpeg\r\n\r\none\r\n\r\n", buf.String())
	assert.Equal(t, 1, flushes)
}

func TestWriteMultipartEndsWhenHubCloses(t *testing.T) {
	h := NewHub()
	frames, _ := h.Subscribe()
	h.Close()

	var buf bytes.Buffer
	require.NoError(t, WriteMultipart(context.Background(), &buf, frames, nil))
	assert.Zero(t, buf.Len())
}
