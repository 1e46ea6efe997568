// Package catalog discovers page images in a source directory and orders them
// into canonical reading order.
package catalog

import (
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"pagebind/internal/logging"
)

// ContentFlag records the classifier's verdict for a page. It is assigned
// once and never re-evaluated.
type ContentFlag uint8

const (
	// FlagUnclassified is the zero value before classification runs.
	FlagUnclassified ContentFlag = iota
	// FlagContent marks a page carrying visible content.
	FlagContent
	// FlagBlank marks a near-uniform, near-white page.
	FlagBlank
)

// Page is one source image in a pipeline run.
type Page struct {
	// Path is the absolute location of the image file.
	Path string
	// OrderKey is the path relative to the source root; pages sort by
	// natural numeric ordering of this key.
	OrderKey string
	// Flag is set by the classifier and immutable afterwards.
	Flag ContentFlag
}

// Name returns the page's file name for logging.
func (p Page) Name() string {
	return filepath.Base(p.Path)
}

var allowedExtensions = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".webp": {},
}

// Catalog builds ordered page sequences from source directories.
type Catalog struct {
	logger *slog.Logger
}

// New constructs a catalog. A nil logger is replaced with a no-op logger.
func New(logger *slog.Logger) *Catalog {
	return &Catalog{logger: logging.NewComponentLogger(logger, "catalog")}
}

// Build walks dir (flat or nested) and returns every qualifying image file in
// natural reading order. Files whose extension is outside the allow-list are
// ignored. An empty result is not an error.
func (c *Catalog) Build(dir string) ([]Page, error) {
	var pages []Page
	err := filepath.WalkDir(dir, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if _, ok := allowedExtensions[ext]; !ok {
			return nil
		}
		rel, relErr := filepath.Rel(dir, path)
		if relErr != nil {
			rel = entry.Name()
		}
		c.sniffMismatch(path, ext)
		pages = append(pages, Page{Path: path, OrderKey: rel})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan source directory: %w", err)
	}

	// Natural ordering: digit runs compare as integers, so 2.jpg precedes
	// 10.jpg.
	collator := collate.New(language.Und, collate.Numeric)
	sort.SliceStable(pages, func(i, j int) bool {
		return collator.CompareString(pages[i].OrderKey, pages[j].OrderKey) < 0
	})
	return pages, nil
}

// sniffMismatch warns when file content disagrees with the extension. The
// page is still admitted on extension; decoding problems surface later as a
// fail-open classification.
func (c *Catalog) sniffMismatch(path, ext string) {
	detected, err := mimetype.DetectFile(path)
	if err != nil {
		return
	}
	if strings.HasPrefix(detected.String(), "image/") && detected.Is(mimeForExt(ext)) {
		return
	}
	c.logger.Warn("file content does not match extension",
		logging.String(logging.FieldPage, filepath.Base(path)),
		logging.String("extension", ext),
		logging.String("detected", detected.String()),
	)
}

func mimeForExt(ext string) string {
	switch ext {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return ""
	}
}
