package mupdf

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/rs/zerolog/log"
)

// DefaultThumbnailScale renders previews at 30% of the page's natural size.
const DefaultThumbnailScale = 0.3

// RenderPagePNG renders one page (1-based) at scale times 72 DPI and encodes it as PNG.
func RenderPagePNG(pdf []byte, pageNum int, scale float64) ([]byte, error) {
	if scale <= 0 {
		scale = DefaultThumbnailScale
	}
	doc, err := Open(pdf)
	if err != nil {
		return nil, err
	}
	defer doc.Close()

	if pageNum < 1 || pageNum > doc.NumPage() {
		return nil, fmt.Errorf("page %d out of range (document has %d pages)", pageNum, doc.NumPage())
	}
	img, err := doc.ImageDPI(pageNum-1, 72*scale)
	if err != nil {
		return nil, fmt.Errorf("failed to render page %d: %w", pageNum, err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("failed to encode PNG: %w", err)
	}
	log.Debug().
		Int("page", pageNum).
		Int("width", img.Bounds().Dx()).
		Int("height", img.Bounds().Dy()).
		Int("png_size", buf.Len()).
		Msg("rendered page thumbnail")
	return buf.Bytes(), nil
}

// Thumbnail renders the first page of pdf. Any failure yields nil: a missing
// preview never blocks binder operations.
func Thumbnail(pdf []byte, scale float64) (out []byte) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("preview renderer panicked")
			out = nil
		}
	}()
	out, err := RenderPagePNG(pdf, 1, scale)
	if err != nil {
		log.Debug().Err(err).Msg("preview unavailable")
		return nil
	}
	return out
}
