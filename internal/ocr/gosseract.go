//go:build cgo_tesseract

package ocr

import (
	"context"
	"sync"

	"github.com/otiai10/gosseract/v2"
)

// Gosseract extracts text through the tesseract C API.
// A gosseract client is not goroutine safe, so calls are serialised.
type Gosseract struct {
	mu     sync.Mutex
	client *gosseract.Client
}

// NewGosseract creates an in-process extractor for the given language
func NewGosseract(language string) (*Gosseract, error) {
	client := gosseract.NewClient()
	if language != "" {
		if err := client.SetLanguage(language); err != nil {
			client.Close()
			return nil, err
		}
	}
	return &Gosseract{client: client}, nil
}

func (g *Gosseract) Name() string { return "gosseract" }

func (g *Gosseract) Extract(ctx context.Context, img []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.client.SetImageFromBytes(img); err != nil {
		return "", err
	}
	return g.client.Text()
}

// Close releases the underlying tesseract handle
func (g *Gosseract) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.client.Close()
}
