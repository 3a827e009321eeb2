package ocr

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Tesseract runs the tesseract CLI with the image on stdin
type Tesseract struct {
	binary   string
	language string
	timeout  time.Duration
}

// NewTesseract creates a CLI-backed extractor. A zero timeout means the
// caller's context alone bounds the run.
func NewTesseract(binary, language string, timeout time.Duration) *Tesseract {
	if binary == "" {
		binary = "tesseract"
	}
	if language == "" {
		language = "eng"
	}
	return &Tesseract{binary: binary, language: language, timeout: timeout}
}

func (t *Tesseract) Name() string { return "tesseract" }

// Available reports whether the binary can be found on PATH
func (t *Tesseract) Available() bool {
	_, err := exec.LookPath(t.binary)
	return err == nil
}

func (t *Tesseract) Extract(ctx context.Context, img []byte) (string, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, t.binary, "stdin", "stdout", "-l", t.language)
	cmd.Stdin = bytes.NewReader(img)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return "", fmt.Errorf("%s: %w", t.binary, err)
		}
		return "", fmt.Errorf("%s: %w: %s", t.binary, err, msg)
	}
	return stdout.String(), nil
}
