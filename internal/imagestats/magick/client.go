// Package magick implements the image statistics provider by shelling out to
// ImageMagick. Every operation maps to one or two short-lived `magick`
// invocations, so the package works with any format the installed ImageMagick
// can decode.
package magick

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"pagebind/internal/imagestats"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) (stdout, stderr []byte, err error)
}

// Option configures the client.
type Option func(*Client)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(c *Client) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// WithCallTimeout caps each ImageMagick invocation. Zero disables the cap.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.callTimeout = timeout
	}
}

// Client wraps ImageMagick CLI interactions.
type Client struct {
	binary      string
	callTimeout time.Duration
	exec        Executor
}

// New constructs an ImageMagick-backed provider.
func New(binary string, opts ...Option) (*Client, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("imagemagick binary required")
	}
	client := &Client{
		binary: binary,
		exec:   commandExecutor{},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// Ping runs `magick -version` and maps any failure to ErrUnavailable.
func (c *Client) Ping(ctx context.Context) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()
	if _, _, err := c.exec.Run(ctx, c.binary, []string{"-version"}); err != nil {
		return fmt.Errorf("%w: %s: %v", imagestats.ErrUnavailable, c.binary, err)
	}
	return nil
}

// Size queries the pixel dimensions of the image at path.
func (c *Client) Size(ctx context.Context, path string) (int, int, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	stdout, stderr, err := c.exec.Run(ctx, c.binary, []string{"identify", "-format", "%w %h", path + "[0]"})
	if err != nil {
		return 0, 0, classifyRunError(err, path, stderr)
	}
	fields := strings.Fields(string(bytes.TrimSpace(stdout)))
	if len(fields) != 2 {
		return 0, 0, fmt.Errorf("%w: %s: unexpected identify output %q", imagestats.ErrUnreadableImage, filepath.Base(path), stdout)
	}
	width, werr := strconv.Atoi(fields[0])
	height, herr := strconv.Atoi(fields[1])
	if werr != nil || herr != nil || width <= 0 || height <= 0 {
		return 0, 0, fmt.Errorf("%w: %s: unexpected identify output %q", imagestats.ErrUnreadableImage, filepath.Base(path), stdout)
	}
	return width, height, nil
}

// Stats computes region luminance statistics via fx expressions, scaled to
// the 0-65535 quantum scale.
func (c *Client) Stats(ctx context.Context, path string, region imagestats.Region) (imagestats.Stats, error) {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	args := []string{path + "[0]"}
	args = append(args, cropArgs(region)...)
	args = append(args, "-colorspace", "Gray", "-format", "%[fx:mean] %[fx:standard_deviation]", "info:")

	stdout, stderr, err := c.exec.Run(ctx, c.binary, args)
	if err != nil {
		return imagestats.Stats{}, classifyRunError(err, path, stderr)
	}
	fields := strings.Fields(string(bytes.TrimSpace(stdout)))
	if len(fields) != 2 {
		return imagestats.Stats{}, fmt.Errorf("%w: %s: unexpected stats output %q", imagestats.ErrUnreadableImage, filepath.Base(path), stdout)
	}
	mean, merr := strconv.ParseFloat(fields[0], 64)
	stddev, serr := strconv.ParseFloat(fields[1], 64)
	if merr != nil || serr != nil {
		return imagestats.Stats{}, fmt.Errorf("%w: %s: unexpected stats output %q", imagestats.ErrUnreadableImage, filepath.Base(path), stdout)
	}
	return imagestats.Stats{
		Mean:   mean * imagestats.QuantumMax,
		StdDev: stddev * imagestats.QuantumMax,
	}, nil
}

// Dissimilarity extracts both regions to temporary strip files and compares
// them with `magick compare -metric RMSE`. The strips are removed
// unconditionally once the comparison finishes.
func (c *Client) Dissimilarity(ctx context.Context, pathA string, regionA imagestats.Region, pathB string, regionB imagestats.Region) (float64, error) {
	tmpDir, err := os.MkdirTemp("", "pagebind-strips-")
	if err != nil {
		return 0, fmt.Errorf("create strip dir: %w", err)
	}
	defer func() {
		_ = os.RemoveAll(tmpDir)
	}()

	stripA := filepath.Join(tmpDir, "a.png")
	stripB := filepath.Join(tmpDir, "b.png")
	if err := c.extract(ctx, pathA, regionA, stripA); err != nil {
		return 0, err
	}
	if err := c.extract(ctx, pathB, regionB, stripB); err != nil {
		return 0, err
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	// compare exits 1 when the images differ; only exit 2 is an error.
	stdout, stderr, err := c.exec.Run(callCtx, c.binary, []string{"compare", "-metric", "RMSE", stripA, stripB, "null:"})
	if err != nil && !isDifferExit(err) {
		return 0, classifyRunError(err, pathA, stderr)
	}
	score, ok := parseNormalizedRMSE(stderr)
	if !ok {
		// Some builds report on stdout instead.
		if score, ok = parseNormalizedRMSE(stdout); !ok {
			return 0, fmt.Errorf("%w: unexpected compare output %q", imagestats.ErrUnreadableImage, strings.TrimSpace(string(stderr)))
		}
	}
	return score, nil
}

// ConcatHorizontal appends the right image to the left with +append.
func (c *Client) ConcatHorizontal(ctx context.Context, leftPath, rightPath, dst string) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	_, stderr, err := c.exec.Run(ctx, c.binary, []string{leftPath + "[0]", rightPath + "[0]", "+append", dst})
	if err != nil {
		return classifyRunError(err, leftPath, stderr)
	}
	return nil
}

func (c *Client) extract(ctx context.Context, path string, region imagestats.Region, dst string) error {
	ctx, cancel := c.callContext(ctx)
	defer cancel()

	args := []string{path + "[0]"}
	args = append(args, cropArgs(region)...)
	args = append(args, dst)
	if _, stderr, err := c.exec.Run(ctx, c.binary, args); err != nil {
		return classifyRunError(err, path, stderr)
	}
	return nil
}

func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, c.callTimeout)
}

func cropArgs(region imagestats.Region) []string {
	if region.IsFull() {
		return nil
	}
	geometry := fmt.Sprintf("%dx%d+%d+%d", region.Width, region.Height, region.X, region.Y)
	return []string{"-crop", geometry, "+repage"}
}

// parseNormalizedRMSE extracts the parenthesized normalized score from
// compare output such as "6517.9 (0.0994)".
func parseNormalizedRMSE(output []byte) (float64, bool) {
	text := strings.TrimSpace(string(output))
	open := strings.LastIndexByte(text, '(')
	end := strings.LastIndexByte(text, ')')
	if open < 0 || end <= open {
		return 0, false
	}
	score, err := strconv.ParseFloat(strings.TrimSpace(text[open+1:end]), 64)
	if err != nil || score < 0 {
		return 0, false
	}
	if score > 1 {
		score = 1
	}
	return score, true
}

func isDifferExit(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr) && exitErr.ExitCode() == 1
}

func classifyRunError(err error, path string, stderr []byte) error {
	if errors.Is(err, exec.ErrNotFound) {
		return fmt.Errorf("%w: %v", imagestats.ErrUnavailable, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	detail := strings.TrimSpace(string(stderr))
	if detail == "" {
		detail = err.Error()
	}
	return fmt.Errorf("%w: %s: %s", imagestats.ErrUnreadableImage, filepath.Base(path), detail)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, []byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		err = ctxErr
	}
	return stdout.Bytes(), stderr.Bytes(), err
}
