// Package testsupport provides fixtures shared by pagebind tests: small
// generated page images and pre-normalized configurations.
package testsupport

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
)

// UniformGray builds a w x h image filled with a single gray level (0-255).
func UniformGray(w, h int, level uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for i := range img.Pix {
		img.Pix[i] = level
	}
	return img
}

// HorizontalGradient builds a w x h image whose gray level ramps from left
// (start) to right (end). Useful for pages with real content variance.
func HorizontalGradient(w, h int, start, end uint8) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		level := uint8(int(start) + (int(end)-int(start))*x/max(w-1, 1))
		for y := 0; y < h; y++ {
			img.SetGray(x, y, color.Gray{Y: level})
		}
	}
	return img
}

// WritePNG encodes img to path, creating parent directories as needed.
func WritePNG(t testing.TB, path string, img image.Image) {
	t.Helper()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	if err := png.Encode(f, img); err != nil {
		t.Fatalf("encode %s: %v", path, err)
	}
}

// WritePage writes a uniform gray page image and returns its path.
func WritePage(t testing.TB, dir, name string, w, h int, level uint8) string {
	t.Helper()

	path := filepath.Join(dir, name)
	WritePNG(t, path, UniformGray(w, h, level))
	return path
}

// WriteCorruptImage writes a file with an image extension but garbage bytes.
func WriteCorruptImage(t testing.TB, dir, name string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	if err := os.WriteFile(path, []byte("this is not an image"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}
