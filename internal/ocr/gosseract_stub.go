//go:build !cgo_tesseract

package ocr

import (
	"context"
	"errors"
)

// Gosseract is a stub when built without cgo_tesseract
type Gosseract struct{}

// NewGosseract returns an error as gosseract is not available in this build
func NewGosseract(language string) (*Gosseract, error) {
	return nil, errors.New("gosseract not available: build with -tags cgo_tesseract")
}

func (g *Gosseract) Name() string { return "gosseract" }

func (g *Gosseract) Extract(ctx context.Context, img []byte) (string, error) {
	return "", errors.New("gosseract not available")
}

func (g *Gosseract) Close() error { return nil }
