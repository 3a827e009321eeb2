package ocr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	// Registered decoders for Validate
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// NoTextFound is returned in place of empty OCR output
const NoTextFound = "No relevant text found in image."

// DefaultMaxPixels caps the decoded size of an upload at about 40 megapixels
const DefaultMaxPixels = 40_000_000

var (
	ErrInvalidImage = errors.New("invalid image")
	ErrExtraction   = errors.New("text extraction failed")
)

// Extractor pulls printed text out of an image
type Extractor interface {
	Extract(ctx context.Context, img []byte) (string, error)
	Name() string
}

// Validate checks that img decodes as one of the registered formats and
// that its header declares no more than maxPixels pixels. The header is
// checked before the full decode allocates the pixel buffer. A maxPixels
// of zero or less means DefaultMaxPixels. It returns the format name.
func Validate(img []byte, maxPixels int) (string, error) {
	if len(img) == 0 {
		return "", fmt.Errorf("%w: empty upload", ErrInvalidImage)
	}
	if maxPixels <= 0 {
		maxPixels = DefaultMaxPixels
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(img))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", fmt.Errorf("%w: empty dimensions %dx%d", ErrInvalidImage, cfg.Width, cfg.Height)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(maxPixels) {
		return "", fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrInvalidImage, cfg.Width, cfg.Height, maxPixels)
	}

	_, format, err := image.Decode(bytes.NewReader(img))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	return format, nil
}

// ImageText returns the text of an optional uploaded image.
// No image gives "", an image without text gives NoTextFound.
// maxPixels is passed to Validate.
func ImageText(ctx context.Context, ext Extractor, img []byte, present bool, maxPixels int) (string, error) {
	if !present {
		return "", nil
	}
	if _, err := Validate(img, maxPixels); err != nil {
		return "", err
	}

	text, err := ext.Extract(ctx, img)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", fmt.Errorf("%w: %w", ErrExtraction, ctxErr)
		}
		return "", fmt.Errorf("%w: %w", ErrExtraction, err)
	}

	text = strings.TrimSpace(text)
	if text == "" {
		return NoTextFound, nil
	}
	return text, nil
}

// Disabled is an Extractor that never finds text
type Disabled struct{}

func (Disabled) Extract(context.Context, []byte) (string, error) { return "", nil }

func (Disabled) Name() string { return "none" }
