// Package authdoc checks authorization documents for the approval phrase.
// Every failure approves nothing.
package authdoc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

const DefaultPhrase = "AUTHORIZED TO PASS"

var ErrNotPDF = errors.New("not a pdf document")

// Inspect reports whether the PDF at path contains phrase. Any error,
// including a panic inside the PDF parser, yields false.
func Inspect(path, phrase string) (bool, error) {
	if phrase == "" {
		phrase = DefaultPhrase
	}
	if !strings.EqualFold(filepath.Ext(path), ".pdf") {
		return false, fmt.Errorf("%w: %s", ErrNotPDF, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return false, fmt.Errorf("open document: %w", err)
	}
	defer f.Close()

	text, err := ExtractText(f)
	if err != nil {
		return false, err
	}
	return Contains(text, phrase), nil
}

// ExtractText returns the text shown on every page of a PDF, one page per
// line.
func ExtractText(r io.Reader) (text string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			text, err = "", fmt.Errorf("panic while reading pdf: %v", rec)
		}
	}()

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read document: %w", err)
	}

	ctx, err := api.ReadValidateAndOptimize(bytes.NewReader(data), model.NewDefaultConfiguration())
	if err != nil {
		return "", fmt.Errorf("read and validate pdf: %w", err)
	}

	var pages []string
	for pageNr := 1; pageNr <= ctx.PageCount; pageNr++ {
		content, err := pdfcpu.ExtractPageContent(ctx, pageNr)
		if err != nil || content == nil {
			continue
		}
		raw, err := io.ReadAll(content)
		if err != nil {
			continue
		}
		pages = append(pages, contentText(raw))
	}
	return strings.Join(pages, "\n"), nil
}

// Contains matches phrase against text with runs of whitespace collapsed.
func Contains(text, phrase string) bool {
	return strings.Contains(collapse(text), collapse(phrase))
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
