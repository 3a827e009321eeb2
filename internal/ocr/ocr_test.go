package ocr

import (
	"bytes"
	"compress/zlib"
	"context"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type fakeExtractor struct {
	text  string
	err   error
	calls atomic.Int32
}

func (f *fakeExtractor) Extract(ctx context.Context, img []byte) (string, error) {
	f.calls.Add(1)
	return f.text, f.err
}

func (f *fakeExtractor) Name() string { return "fake" }

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	img.Set(1, 1, color.Black)
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestValidate(t *testing.T) {
	format, err := Validate(pngBytes(t), 0)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if format != "png" {
		t.Errorf("Expected png, got %s", format)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{name: "empty", data: nil},
		{name: "text", data: []byte("definitely not an image")},
		{name: "truncated png", data: pngBytes(t)[:20]},
		{name: "oversized header", data: oversizedPNG(t, 60000, 60000)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Validate(tt.data, 0); !errors.Is(err, ErrInvalidImage) {
				t.Errorf("Expected ErrInvalidImage, got %v", err)
			}
		})
	}
}

// oversizedPNG writes a valid PNG header declaring a w by h RGBA image
// followed by a small compressed payload, without ever holding the pixels.
func oversizedPNG(t *testing.T, w, h uint32) []byte {
	t.Helper()
	var out bytes.Buffer
	out.WriteString("\x89PNG\r\n\x1a\n")

	chunk := func(typ string, data []byte) {
		binary.Write(&out, binary.BigEndian, uint32(len(data)))
		crc := crc32.NewIEEE()
		crc.Write([]byte(typ))
		crc.Write(data)
		out.WriteString(typ)
		out.Write(data)
		binary.Write(&out, binary.BigEndian, crc.Sum32())
	}

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:4], w)
	binary.BigEndian.PutUint32(ihdr[4:8], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // truecolour with alpha
	chunk("IHDR", ihdr)

	var idat bytes.Buffer
	zw := zlib.NewWriter(&idat)
	if _, err := zw.Write(make([]byte, 64<<10)); err != nil {
		t.Fatal(err)
	}
	zw.Close()
	chunk("IDAT", idat.Bytes())
	chunk("IEND", nil)
	return out.Bytes()
}

func TestValidatePixelLimit(t *testing.T) {
	bomb := oversizedPNG(t, 60000, 60000)
	if len(bomb) > 1<<20 {
		t.Fatalf("Expected a small upload, got %d bytes", len(bomb))
	}
	_, err := Validate(bomb, 0)
	if !errors.Is(err, ErrInvalidImage) {
		t.Fatalf("Expected ErrInvalidImage, got %v", err)
	}
	if !strings.Contains(err.Error(), "exceeds") {
		t.Errorf("Expected pixel limit error, got %v", err)
	}

	// 4x4 fixture is 16 pixels
	if _, err := Validate(pngBytes(t), 15); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("Expected limit of 15 pixels to reject fixture, got %v", err)
	}
	if _, err := Validate(pngBytes(t), 16); err != nil {
		t.Errorf("Expected limit of 16 pixels to accept fixture, got %v", err)
	}

	ext := &fakeExtractor{text: "x"}
	if _, err := ImageText(context.Background(), ext, bomb, true, 0); !errors.Is(err, ErrInvalidImage) {
		t.Errorf("Expected ErrInvalidImage from ImageText, got %v", err)
	}
	if ext.calls.Load() != 0 {
		t.Error("Extractor should not run on a rejected image")
	}
}

func TestImageText(t *testing.T) {
	ctx := context.Background()
	img := pngBytes(t)

	tests := []struct {
		name    string
		ext     *fakeExtractor
		img     []byte
		present bool
		want    string
		wantErr error
	}{
		{name: "no image", ext: &fakeExtractor{text: "ignored"}, present: false, want: ""},
		{name: "text found", ext: &fakeExtractor{text: "  Meter 123 kWh\n"}, img: img, present: true, want: "Meter 123 kWh"},
		{name: "blank text", ext: &fakeExtractor{text: " \n\t"}, img: img, present: true, want: NoTextFound},
		{name: "invalid image", ext: &fakeExtractor{text: "x"}, img: []byte("nope"), present: true, wantErr: ErrInvalidImage},
		{name: "engine failure", ext: &fakeExtractor{err: errors.New("boom")}, img: img, present: true, wantErr: ErrExtraction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ImageText(ctx, tt.ext, tt.img, tt.present, 0)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("Expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ImageText failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestImageTextSkipsEngineWithoutImage(t *testing.T) {
	ext := &fakeExtractor{text: "x"}
	if _, err := ImageText(context.Background(), ext, nil, false, 0); err != nil {
		t.Fatal(err)
	}
	if ext.calls.Load() != 0 {
		t.Error("Extractor should not run without an image")
	}
}

func TestCached(t *testing.T) {
	inner := &fakeExtractor{text: "cached text"}
	ext, err := NewCached(inner, 4)
	if err != nil {
		t.Fatal(err)
	}

	img := pngBytes(t)
	for i := 0; i < 3; i++ {
		got, err := ext.Extract(context.Background(), img)
		if err != nil {
			t.Fatal(err)
		}
		if got != "cached text" {
			t.Errorf("Unexpected text %q", got)
		}
	}
	if inner.calls.Load() != 1 {
		t.Errorf("Expected 1 engine call, got %d", inner.calls.Load())
	}
	if ext.Name() != "fake" {
		t.Errorf("Cached should report the wrapped name, got %s", ext.Name())
	}
}

func TestCachedDoesNotStoreErrors(t *testing.T) {
	inner := &fakeExtractor{err: errors.New("engine down")}
	ext, err := NewCached(inner, 4)
	if err != nil {
		t.Fatal(err)
	}
	img := pngBytes(t)
	ext.Extract(context.Background(), img)
	ext.Extract(context.Background(), img)
	if inner.calls.Load() != 2 {
		t.Errorf("Errors should not be cached, got %d calls", inner.calls.Load())
	}
}

func TestNewCachedDisabled(t *testing.T) {
	inner := &fakeExtractor{}
	ext, err := NewCached(inner, 0)
	if err != nil {
		t.Fatal(err)
	}
	if ext != Extractor(inner) {
		t.Error("Size 0 should return the wrapped extractor")
	}
}

// fakeTesseract writes a shell script standing in for the tesseract binary
func fakeTesseract(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fake needs a unix shell")
	}
	path := filepath.Join(t.TempDir(), "tesseract")
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestTesseract(t *testing.T) {
	bin := fakeTesseract(t, `cat >/dev/null; echo "args: $1 $2 $3 $4"`)
	ext := NewTesseract(bin, "eng", time.Second)

	got, err := ext.Extract(context.Background(), pngBytes(t))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if got != "args: stdin stdout -l eng\n" {
		t.Errorf("Unexpected output %q", got)
	}
	if !ext.Available() {
		t.Error("Fake binary should be available")
	}
}

func TestTesseractFailure(t *testing.T) {
	bin := fakeTesseract(t, `echo "Error in pixReadMem" >&2; exit 1`)
	ext := NewTesseract(bin, "eng", time.Second)

	_, err := ext.Extract(context.Background(), pngBytes(t))
	if err == nil {
		t.Fatal("Expected error from failing binary")
	}
	if !bytes.Contains([]byte(err.Error()), []byte("pixReadMem")) {
		t.Errorf("Error should carry stderr, got %v", err)
	}
}

func TestTesseractTimeout(t *testing.T) {
	bin := fakeTesseract(t, `exec sleep 5`)
	ext := NewTesseract(bin, "eng", 50*time.Millisecond)

	_, err := ext.Extract(context.Background(), pngBytes(t))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}
}

func TestTesseractMissingBinary(t *testing.T) {
	ext := NewTesseract(filepath.Join(t.TempDir(), "missing"), "eng", time.Second)
	if ext.Available() {
		t.Error("Missing binary should not be available")
	}
	if _, err := ext.Extract(context.Background(), pngBytes(t)); err == nil {
		t.Error("Expected error for missing binary")
	}
}

func TestGosseractStubOrEngine(t *testing.T) {
	g, err := NewGosseract("eng")
	if err != nil {
		return
	}
	defer g.Close()
	if g.Name() != "gosseract" {
		t.Errorf("Unexpected name %s", g.Name())
	}
}
