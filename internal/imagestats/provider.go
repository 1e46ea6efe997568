// Package imagestats defines the image statistics capability the pipeline
// consumes: region luminance statistics, pairwise region dissimilarity, and
// horizontal concatenation. Implementations live in the native and magick
// subpackages; tests supply fakes.
package imagestats

import (
	"context"
	"errors"
)

// QuantumMax is the upper bound of the luminance scale statistics are
// reported on. It matches the 16-bit quantum used by ImageMagick builds.
const QuantumMax = 65535

// Sentinel errors shared by all provider implementations.
var (
	// ErrUnreadableImage marks a source file that cannot be decoded. Callers
	// recover locally: classification fails open to content, merge writing
	// degrades the pair to separate copies.
	ErrUnreadableImage = errors.New("unreadable image")
	// ErrUnavailable marks a provider that cannot be reached at all. The
	// pipeline treats it as fatal before any classification begins.
	ErrUnavailable = errors.New("statistics provider unavailable")
)

// Region selects a rectangle of an image. The zero value selects the whole
// image.
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
}

// IsFull reports whether the region covers the whole image.
func (r Region) IsFull() bool {
	return r.Width == 0 && r.Height == 0
}

// Stats holds region luminance statistics on the 0-65535 quantum scale.
type Stats struct {
	Mean   float64
	StdDev float64
}

// Provider is the image statistics capability supplied to the pipeline.
//
// All operations are read-only with respect to their source files, and every
// implementation must be deterministic: repeated calls on the same inputs
// yield the same results.
type Provider interface {
	// Ping verifies the provider is usable. It returns ErrUnavailable
	// (possibly wrapped) when it is not.
	Ping(ctx context.Context) error

	// Size returns the pixel dimensions of the image at path.
	Size(ctx context.Context, path string) (width, height int, err error)

	// Stats computes mean and standard deviation of the region's luminance.
	Stats(ctx context.Context, path string, region Region) (Stats, error)

	// Dissimilarity compares two regions and returns a normalized score in
	// [0, 1]: 0 means identical, 1 means maximally different.
	Dissimilarity(ctx context.Context, pathA string, regionA Region, pathB string, regionB Region) (float64, error)

	// ConcatHorizontal writes a new image to dst formed by placing the image
	// at rightPath immediately to the right of the image at leftPath, at
	// original resolution.
	ConcatHorizontal(ctx context.Context, leftPath, rightPath, dst string) error
}
