// Package native implements the image statistics provider with pure Go image
// decoding. It handles the jpg/jpeg/png/webp set the catalog admits without
// requiring any external binary.
package native

import (
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"math"
	"os"
	"path/filepath"
	"strings"

	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"pagebind/internal/imagestats"
)

// Provider computes statistics in-process from decoded pixel data.
type Provider struct{}

// New constructs the native provider.
func New() *Provider {
	return &Provider{}
}

// Ping always succeeds: the decoders are compiled in.
func (p *Provider) Ping(ctx context.Context) error {
	return nil
}

// Size reads only the image header.
func (p *Provider) Size(ctx context.Context, path string) (int, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s: %v", imagestats.ErrUnreadableImage, filepath.Base(path), err)
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %s: %v", imagestats.ErrUnreadableImage, filepath.Base(path), err)
	}
	return cfg.Width, cfg.Height, nil
}

// Stats computes mean and standard deviation of the region's luminance on the
// 0-65535 scale.
func (p *Provider) Stats(ctx context.Context, path string, region imagestats.Region) (imagestats.Stats, error) {
	if err := ctx.Err(); err != nil {
		return imagestats.Stats{}, err
	}
	gray, err := loadGray(path)
	if err != nil {
		return imagestats.Stats{}, err
	}
	rect, err := clampRegion(gray.Bounds(), region)
	if err != nil {
		return imagestats.Stats{}, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}

	var sum, sumSq float64
	count := 0
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			// Expand 8-bit gray to the 16-bit quantum scale.
			v := float64(gray.GrayAt(x, y).Y) * 257
			sum += v
			sumSq += v * v
			count++
		}
	}
	if count == 0 {
		return imagestats.Stats{}, fmt.Errorf("%s: empty region", filepath.Base(path))
	}

	mean := sum / float64(count)
	variance := sumSq/float64(count) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return imagestats.Stats{Mean: mean, StdDev: math.Sqrt(variance)}, nil
}

// Dissimilarity resamples both regions to a shared grid and returns their
// normalized root-mean-square pixel difference.
func (p *Provider) Dissimilarity(ctx context.Context, pathA string, regionA imagestats.Region, pathB string, regionB imagestats.Region) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	stripA, err := extractGray(pathA, regionA)
	if err != nil {
		return 0, err
	}
	stripB, err := extractGray(pathB, regionB)
	if err != nil {
		return 0, err
	}

	w := stripA.Bounds().Dx()
	if bw := stripB.Bounds().Dx(); bw > w {
		w = bw
	}
	h := stripA.Bounds().Dy()
	if bh := stripB.Bounds().Dy(); bh > h {
		h = bh
	}
	a := resampleGray(stripA, w, h)
	b := resampleGray(stripB, w, h)

	var sumSq float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			diff := (float64(a.GrayAt(x, y).Y) - float64(b.GrayAt(x, y).Y)) / 255
			sumSq += diff * diff
		}
	}
	return math.Sqrt(sumSq / float64(w*h)), nil
}

// ConcatHorizontal joins the two images edge to edge at original resolution.
// The destination format is chosen by extension; jpg/jpeg and png are
// supported.
func (p *Provider) ConcatHorizontal(ctx context.Context, leftPath, rightPath, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	left, err := loadImage(leftPath)
	if err != nil {
		return err
	}
	right, err := loadImage(rightPath)
	if err != nil {
		return err
	}

	lb, rb := left.Bounds(), right.Bounds()
	height := lb.Dy()
	if rb.Dy() > height {
		height = rb.Dy()
	}
	canvas := image.NewRGBA(image.Rect(0, 0, lb.Dx()+rb.Dx(), height))
	// White backing so a shorter page does not leave transparent rows.
	for i := range canvas.Pix {
		canvas.Pix[i] = 0xff
	}
	xdraw.Draw(canvas, image.Rect(0, 0, lb.Dx(), lb.Dy()), left, lb.Min, xdraw.Src)
	xdraw.Draw(canvas, image.Rect(lb.Dx(), 0, lb.Dx()+rb.Dx(), rb.Dy()), right, rb.Min, xdraw.Src)

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer func() {
		_ = out.Close()
	}()

	switch strings.ToLower(filepath.Ext(dst)) {
	case ".jpg", ".jpeg":
		if err := jpeg.Encode(out, canvas, &jpeg.Options{Quality: 95}); err != nil {
			return fmt.Errorf("encode %s: %w", filepath.Base(dst), err)
		}
	case ".png":
		if err := png.Encode(out, canvas); err != nil {
			return fmt.Errorf("encode %s: %w", filepath.Base(dst), err)
		}
	default:
		return fmt.Errorf("concat: unsupported output format %q", filepath.Ext(dst))
	}
	return out.Close()
}

func loadImage(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", imagestats.ErrUnreadableImage, filepath.Base(path), err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", imagestats.ErrUnreadableImage, filepath.Base(path), err)
	}
	return img, nil
}

func loadGray(path string) (*image.Gray, error) {
	img, err := loadImage(path)
	if err != nil {
		return nil, err
	}
	if gray, ok := img.(*image.Gray); ok {
		return gray, nil
	}
	bounds := img.Bounds()
	gray := image.NewGray(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	xdraw.Draw(gray, gray.Bounds(), img, bounds.Min, xdraw.Src)
	return gray, nil
}

func extractGray(path string, region imagestats.Region) (*image.Gray, error) {
	gray, err := loadGray(path)
	if err != nil {
		return nil, err
	}
	rect, err := clampRegion(gray.Bounds(), region)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return gray.SubImage(rect).(*image.Gray), nil
}

func resampleGray(src *image.Gray, w, h int) *image.Gray {
	if src.Bounds().Dx() == w && src.Bounds().Dy() == h && src.Bounds().Min == (image.Point{}) {
		return src
	}
	dst := image.NewGray(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}

func clampRegion(bounds image.Rectangle, region imagestats.Region) (image.Rectangle, error) {
	if region.IsFull() {
		return bounds, nil
	}
	rect := image.Rect(
		bounds.Min.X+region.X,
		bounds.Min.Y+region.Y,
		bounds.Min.X+region.X+region.Width,
		bounds.Min.Y+region.Y+region.Height,
	).Intersect(bounds)
	if rect.Empty() {
		return image.Rectangle{}, fmt.Errorf("region %+v outside image bounds %v", region, bounds)
	}
	return rect, nil
}
