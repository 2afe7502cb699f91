// Package tesseract reads plate text with the Tesseract OCR engine.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"sync"

	"github.com/otiai10/gosseract/v2"

	"checkpoint-gate/internal/domain/gate"
	"checkpoint-gate/internal/utils"
	"checkpoint-gate/internal/vision"
)

type Config struct {
	Language  string
	Whitelist string
}

// Reader wraps one gosseract client. The client is not safe for
// concurrent use, so calls are serialized.
type Reader struct {
	mu     sync.Mutex
	client *gosseract.Client
}

func NewReader(cfg Config) (*Reader, error) {
	client := gosseract.NewClient()
	if cfg.Language != "" {
		if err := client.SetLanguage(cfg.Language); err != nil {
			client.Close()
			return nil, fmt.Errorf("set ocr language: %w", err)
		}
	}
	if cfg.Whitelist != "" {
		if err := client.SetWhitelist(cfg.Whitelist); err != nil {
			client.Close()
			return nil, fmt.Errorf("set ocr whitelist: %w", err)
		}
	}
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_BLOCK); err != nil {
		client.Close()
		return nil, fmt.Errorf("set ocr page mode: %w", err)
	}
	return &Reader{client: client}, nil
}

// Read returns one candidate per recognised text line, cleaned and with
// confidence scaled to 0..1.
func (r *Reader) Read(ctx context.Context, crop image.Image) ([]gate.PlateCandidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, crop); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, fmt.Errorf("set ocr image: %w", err)
	}
	lines, err := r.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return nil, fmt.Errorf("read text lines: %w", err)
	}

	candidates := make([]gate.PlateCandidate, 0, len(lines))
	for _, line := range lines {
		text := utils.CleanPlateText(line.Word)
		if text == "" {
			continue
		}
		candidates = append(candidates, gate.PlateCandidate{
			Text:       text,
			Confidence: line.Confidence / 100.0,
		})
	}
	return candidates, nil
}

func (r *Reader) Close() error {
	return r.client.Close()
}

var _ vision.Reader = (*Reader)(nil)
